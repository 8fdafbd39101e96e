package predict

import (
	"errors"
	"testing"
	"time"

	"github.com/HerbHall/sleepcast/pkg/sleep"
)

var testNow = time.Date(2026, 10, 19, 12, 30, 0, 0, time.UTC)

// series builds an EventSeries with n occurrences at the given time of day,
// one per day starting at start.
func series(start time.Time, n int, avg time.Duration) sleep.EventSeries {
	s := sleep.EventSeries{Average: avg}
	for i := 0; i < n; i++ {
		s.Durations = append(s.Durations, avg)
		s.Timestamps = append(s.Timestamps, start.Add(time.Duration(i)*sleep.Day))
	}
	return s
}

func stats(n int, sleepAvg, wakeAvg time.Duration, dayLength *time.Duration) sleep.Statistics {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return sleep.Statistics{
		Summary: sleep.Summary{AverageDayLength: dayLength},
		Schedule: sleep.Schedule{
			Sleep: series(base.Add(sleepAvg), n, sleepAvg),
			Wake:  series(base.Add(wakeAvg), n, wakeAvg),
		},
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }

func TestEstimateCycle_DefaultDayLength(t *testing.T) {
	t.Parallel()

	p, err := EstimateCycle(stats(5, time.Hour, 9*time.Hour, nil), testNow, DefaultConfig())
	if err != nil {
		t.Fatalf("EstimateCycle: %v", err)
	}
	if p.DayLength != 24*time.Hour {
		t.Errorf("DayLength = %v, want 24h", p.DayLength)
	}
	if p.Skew != 0 {
		t.Errorf("Skew = %v, want 0", p.Skew)
	}

	midnight := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	if want := midnight.Add(time.Hour); !p.SleepAnchor.Equal(want) {
		t.Errorf("SleepAnchor = %v, want %v", p.SleepAnchor, want)
	}
	if want := midnight.Add(9 * time.Hour); !p.WakeAnchor.Equal(want) {
		t.Errorf("WakeAnchor = %v, want %v", p.WakeAnchor, want)
	}
	if p.LookbackRows != 4 {
		t.Errorf("LookbackRows = %d, want 4", p.LookbackRows)
	}
	if p.UncertaintyBase != 30*time.Minute {
		t.Errorf("UncertaintyBase = %v, want 30m", p.UncertaintyBase)
	}
	if p.UncertaintyGrowth != 1.1 {
		t.Errorf("UncertaintyGrowth = %v, want 1.1", p.UncertaintyGrowth)
	}
}

func TestEstimateCycle_SummaryDayLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		summary *time.Duration
		want    time.Duration
	}{
		{"absent", nil, 24 * time.Hour},
		{"long cycle", durationPtr(24*time.Hour + 20*time.Minute), 24*time.Hour + 20*time.Minute},
		{"short cycle", durationPtr(23 * time.Hour), 23 * time.Hour},
		{"non-positive ignored", durationPtr(0), 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := EstimateCycle(stats(3, time.Hour, 8*time.Hour, tt.summary), testNow, Config{})
			if err != nil {
				t.Fatalf("EstimateCycle: %v", err)
			}
			if p.DayLength != tt.want {
				t.Errorf("DayLength = %v, want %v", p.DayLength, tt.want)
			}
			if p.Skew != tt.want-24*time.Hour {
				t.Errorf("Skew = %v, want %v", p.Skew, tt.want-24*time.Hour)
			}
		})
	}
}

func TestEstimateCycle_SkewDistributedOverHalfTheOccurrences(t *testing.T) {
	t.Parallel()

	t0 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	st := sleep.Statistics{
		Summary: sleep.Summary{AverageDayLength: durationPtr(24*time.Hour + 2*time.Minute)},
		Schedule: sleep.Schedule{
			Sleep: sleep.EventSeries{
				Average:    0,
				Durations:  []time.Duration{0, 0, 2 * time.Minute},
				Timestamps: []time.Time{t0, t0.Add(24 * time.Hour), t0.Add(24*time.Hour + 2*time.Minute)},
			},
			Wake: sleep.EventSeries{
				Average:    8*time.Hour + time.Minute + 20*time.Second,
				Durations:  []time.Duration{8 * time.Hour, 8*time.Hour + time.Minute, 8*time.Hour + 3*time.Minute},
				Timestamps: []time.Time{t0.Add(8 * time.Hour), t0.Add(8*time.Hour + time.Minute), t0.Add(8*time.Hour + 3*time.Minute)},
			},
		},
	}

	p, err := EstimateCycle(st, testNow, DefaultConfig())
	if err != nil {
		t.Fatalf("EstimateCycle: %v", err)
	}
	if p.Skew != 2*time.Minute {
		t.Fatalf("Skew = %v, want 2m", p.Skew)
	}

	midnight := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	naiveSleep := midnight.Add(st.Schedule.Sleep.Average)
	naiveWake := midnight.Add(st.Schedule.Wake.Average)
	if got := p.SleepAnchor.Sub(naiveSleep); got != 3*time.Minute {
		t.Errorf("sleep anchor offset = %v, want 3m", got)
	}
	if got := p.WakeAnchor.Sub(naiveWake); got != 3*time.Minute {
		t.Errorf("wake anchor offset = %v, want 3m", got)
	}
}

func TestEstimateCycle_WakeAnchorFollowsSleepAnchor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		sleepAvg time.Duration
		wakeAvg  time.Duration
		day      *time.Duration
		addsDay  bool
	}{
		{"after midnight sleeper", time.Hour, 9 * time.Hour, nil, false},
		{"before midnight sleeper", 23 * time.Hour, 7 * time.Hour, nil, true},
		{"late sleeper, long cycle", 22*time.Hour + 30*time.Minute, 6 * time.Hour, durationPtr(25 * time.Hour), true},
		{"day sleeper, short cycle", 9 * time.Hour, 17 * time.Hour, durationPtr(23*time.Hour + 30*time.Minute), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := EstimateCycle(stats(7, tt.sleepAvg, tt.wakeAvg, tt.day), testNow, DefaultConfig())
			if err != nil {
				t.Fatalf("EstimateCycle: %v", err)
			}
			if !p.WakeAnchor.After(p.SleepAnchor) {
				t.Errorf("WakeAnchor %v is not after SleepAnchor %v", p.WakeAnchor, p.SleepAnchor)
			}
			gap := p.WakeAnchor.Sub(p.SleepAnchor)
			want := tt.wakeAvg - tt.sleepAvg
			if tt.addsDay {
				want += 24 * time.Hour
			}
			if gap != want {
				t.Errorf("wake - sleep = %v, want %v", gap, want)
			}
		})
	}
}

// Equal averages are the one case where the anchors coincide: the day is
// only added when the wake average is strictly earlier.
func TestEstimateCycle_EqualAveragesShareAnAnchor(t *testing.T) {
	t.Parallel()

	p, err := EstimateCycle(stats(3, 6*time.Hour, 6*time.Hour, nil), testNow, DefaultConfig())
	if err != nil {
		t.Fatalf("EstimateCycle: %v", err)
	}
	if !p.WakeAnchor.Equal(p.SleepAnchor) {
		t.Errorf("WakeAnchor %v, SleepAnchor %v: want equal", p.WakeAnchor, p.SleepAnchor)
	}
	if want := Midnight(testNow.Add(-24 * time.Hour)).Add(6 * time.Hour); !p.SleepAnchor.Equal(want) {
		t.Errorf("SleepAnchor = %v, want %v", p.SleepAnchor, want)
	}
}

func TestEstimateCycle_Deterministic(t *testing.T) {
	t.Parallel()

	st := stats(10, 23*time.Hour, 7*time.Hour, durationPtr(24*time.Hour+15*time.Minute))
	a, err := EstimateCycle(st, testNow, DefaultConfig())
	if err != nil {
		t.Fatalf("EstimateCycle: %v", err)
	}
	// Any time on the same UTC day yields the same anchors.
	b, err := EstimateCycle(st, testNow.Add(11*time.Hour), DefaultConfig())
	if err != nil {
		t.Fatalf("EstimateCycle: %v", err)
	}
	if a != b {
		t.Errorf("parameters differ within one day:\n%+v\n%+v", a, b)
	}
}

func TestEstimateCycle_Errors(t *testing.T) {
	t.Parallel()

	full := stats(3, time.Hour, 9*time.Hour, nil)

	noSleep := full
	noSleep.Schedule.Sleep = sleep.EventSeries{}

	noWake := full
	noWake.Schedule.Wake = sleep.EventSeries{}

	shortDurations := full
	shortDurations.Schedule.Sleep.Durations = shortDurations.Schedule.Sleep.Durations[:2]

	tooFewWakes := full
	tooFewWakes.Schedule.Wake = series(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), 1, 9*time.Hour)

	tooManyWakes := full
	tooManyWakes.Schedule.Wake = series(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), 4, 9*time.Hour)

	trailingSleep := full
	trailingSleep.Schedule.Wake = series(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), 2, 9*time.Hour)

	tests := []struct {
		name  string
		stats sleep.Statistics
		want  error
	}{
		{"empty", sleep.Statistics{}, ErrInsufficientData},
		{"no sleep", noSleep, ErrInsufficientData},
		{"no wake", noWake, ErrInsufficientData},
		{"durations shorter than timestamps", shortDurations, ErrMismatchedSeries},
		{"too few wakes", tooFewWakes, ErrMismatchedSeries},
		{"too many wakes", tooManyWakes, ErrMismatchedSeries},
		{"trailing unmatched sleep", trailingSleep, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := EstimateCycle(tt.stats, testNow, DefaultConfig())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMidnight(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+10", 10*60*60)
	in := time.Date(2026, 10, 19, 5, 0, 0, 0, loc) // 2026-10-18 19:00 UTC
	want := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	if got := Midnight(in); !got.Equal(want) {
		t.Errorf("Midnight(%v) = %v, want %v", in, got, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v", err)
	}
	bad := []Config{
		{Granularity: 0, UncertaintyGrowth: 1.1, Horizon: 14},
		{Granularity: time.Hour, UncertaintyGrowth: 0.9, Horizon: 14},
		{Granularity: time.Hour, UncertaintyGrowth: 1.1, Horizon: -1},
	}
	for _, c := range bad {
		if err := c.Validate(); err == nil {
			t.Errorf("Validate(%+v) = nil, want error", c)
		}
	}
}
