package sheet

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/sleepcast/internal/predict"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

var start = time.Date(2026, 9, 1, 23, 0, 0, 0, time.UTC)

func daily(first time.Time, n int, interval time.Duration) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = first.Add(time.Duration(i) * interval)
	}
	return out
}

func params() predict.CycleParameters {
	return predict.CycleParameters{
		DayLength:         24 * time.Hour,
		UncertaintyBase:   30 * time.Minute,
		UncertaintyGrowth: 1.1,
	}
}

func build(t *testing.T, sleeps, wakes []time.Time) *Sheet {
	t.Helper()
	tbl, err := predict.BuildTable(params(), sleeps, wakes, predict.DefaultConfig())
	require.NoError(t, err)
	s, err := Evaluate(tbl)
	require.NoError(t, err)
	return s
}

func assertNear(t *testing.T, want, got time.Time, msgAndArgs ...any) {
	t.Helper()
	assert.WithinDuration(t, want, got, time.Millisecond, msgAndArgs...)
}

func TestEvaluate_Panel(t *testing.T) {
	t.Parallel()

	s := build(t, daily(start, 5, sleep.Day), daily(start.Add(8*time.Hour), 5, sleep.Day))

	p := s.Panel
	assert.Equal(t, 4, p.Lookback)
	assert.Equal(t, 30*time.Minute, p.BaseUncertainty)
	assert.InDelta(t, 1.1, p.Growth, 1e-9)
	assert.True(t, p.LastSleep.Equal(start.Add(4*sleep.Day)))
	assert.True(t, p.WindowStartSleep.Equal(start))
	assert.Equal(t, sleep.Day, p.AvgSleepInterval)
	assert.True(t, p.LastWake.Equal(start.Add(4*sleep.Day+8*time.Hour)))
	assert.True(t, p.WindowStartWake.Equal(start.Add(8*time.Hour)))
	assert.Equal(t, sleep.Day, p.AvgWakeInterval)
	assert.Equal(t, sleep.Day, p.AvgDayLength)
}

func TestEvaluate_ShortCycleClampsWindowStart(t *testing.T) {
	t.Parallel()

	// A 23h cycle: four days back from the last sleep lands before the first.
	s := build(t, daily(start, 5, 23*time.Hour), daily(start.Add(8*time.Hour), 5, 23*time.Hour))

	assert.True(t, s.Panel.WindowStartSleep.Equal(start))
	assert.Equal(t, 23*time.Hour, s.Panel.AvgSleepInterval)
	assert.Equal(t, 23*time.Hour, s.Panel.AvgDayLength)
}

func TestEvaluate_LongCycleUsesWindow(t *testing.T) {
	t.Parallel()

	// A 25h cycle over 30 sleeps: 29 days back from the last sleep lands
	// 29h after the first, so the lookup picks the second sleep.
	sleeps := daily(start, 30, 25*time.Hour)
	s := build(t, sleeps, daily(start.Add(8*time.Hour), 30, 25*time.Hour))

	assert.True(t, s.Panel.WindowStartSleep.Equal(sleeps[1]), "window start = %v", s.Panel.WindowStartSleep)
	assert.Equal(t, 28*25*time.Hour/29, s.Panel.AvgSleepInterval)
}

func TestEvaluate_ObservedRowsHaveNoUncertainty(t *testing.T) {
	t.Parallel()

	sleeps := daily(start, 6, sleep.Day)
	wakes := daily(start.Add(8*time.Hour), 6, sleep.Day)
	s := build(t, sleeps, wakes)

	for i := range sleeps {
		r := s.Rows[i]
		for _, f := range predict.Fields {
			obs := sleeps[i]
			if f.Kind() == sleep.KindWake {
				obs = wakes[i]
			}
			require.NotNil(t, r.Bound(f), "row %d %s", i, f)
			assert.True(t, r.Bound(f).Equal(obs), "row %d %s = %v, want %v", i, f, r.Bound(f), obs)
		}
	}
}

func TestEvaluate_FirstForecastRow(t *testing.T) {
	t.Parallel()

	sleeps := daily(start, 5, sleep.Day)
	wakes := daily(start.Add(8*time.Hour), 5, sleep.Day)
	s := build(t, sleeps, wakes)

	require.Len(t, s.Rows, 9)
	r := s.Rows[5]
	term := 33 * time.Minute // 30m * 1.1
	assertNear(t, sleeps[4].Add(sleep.Day-term), *r.SleepEarliest)
	assertNear(t, sleeps[4].Add(sleep.Day+term), *r.SleepLatest)
	assertNear(t, wakes[4].Add(sleep.Day-term), *r.WakeEarliest)
	assertNear(t, wakes[4].Add(sleep.Day+term), *r.WakeLatest)

	// The next row widens by 30m * 1.1^2 on each side.
	next := s.Rows[6]
	base := 30 * time.Minute
	term2 := time.Duration(float64(base) * 1.1 * 1.1)
	assertNear(t, r.SleepEarliest.Add(sleep.Day-term2), *next.SleepEarliest)
	assertNear(t, r.SleepLatest.Add(sleep.Day+term2), *next.SleepLatest)
}

func TestEvaluate_UncertaintyWidensForward(t *testing.T) {
	t.Parallel()

	sleeps := daily(start, 20, 24*time.Hour+12*time.Minute)
	wakes := daily(start.Add(8*time.Hour), 19, 24*time.Hour+12*time.Minute)
	s := build(t, sleeps, wakes)

	for _, k := range []sleep.Kind{sleep.KindSleep, sleep.KindWake} {
		for i := 1; i < len(s.Rows); i++ {
			r := s.Rows[i]
			var observed bool
			if k == sleep.KindWake {
				observed = r.ObservedWake != nil
			} else {
				observed = r.ObservedSleep != nil
			}
			w, ok := r.Width(k)
			require.True(t, ok, "row %d %s unresolved", i, k)
			if observed {
				assert.Zero(t, w, "row %d %s observed", i, k)
				continue
			}
			prev, ok := s.Rows[i-1].Width(k)
			require.True(t, ok)
			assert.Greater(t, w, prev, "row %d %s does not widen", i, k)
		}
	}
}

func TestObserve_CascadesThroughLaterRows(t *testing.T) {
	t.Parallel()

	sleeps := daily(start, 5, sleep.Day)
	wakes := daily(start.Add(8*time.Hour), 5, sleep.Day)
	s := build(t, sleeps, wakes)
	before := s.Rows[7]

	// Observed two hours late.
	late := sleeps[4].Add(sleep.Day + 2*time.Hour)
	idx, err := s.Observe(sleep.KindSleep, late)
	require.NoError(t, err)
	assert.Equal(t, 5, idx)
	assert.Equal(t, 1, s.Appended)

	r := s.Rows[5]
	assert.True(t, r.SleepEarliest.Equal(late))
	assert.True(t, r.SleepLatest.Equal(late))
	// Wake on row 5 is still a forecast.
	w, ok := r.Width(sleep.KindWake)
	require.True(t, ok)
	assert.Greater(t, w, time.Duration(0))

	// The panel now sees the later sleep and a longer day.
	assert.True(t, s.Panel.LastSleep.Equal(late))
	assert.Greater(t, s.Panel.AvgSleepInterval, sleep.Day)
	assert.Greater(t, s.Panel.AvgDayLength, sleep.Day)

	// Row 6 restarts from the observation with the base widening.
	base := 30 * time.Minute
	term := time.Duration(float64(base) * 1.1)
	assertNear(t, late.Add(s.Panel.AvgDayLength-term), *s.Rows[6].SleepEarliest)

	// Every later row moved.
	assert.True(t, s.Rows[7].SleepEarliest.After(*before.SleepEarliest))
}

func TestObserve_ExtendsWhenFull(t *testing.T) {
	t.Parallel()

	s := build(t, daily(start, 2, sleep.Day), daily(start.Add(8*time.Hour), 2, sleep.Day))
	require.Len(t, s.Rows, 3)

	_, err := s.Observe(sleep.KindSleep, start.Add(2*sleep.Day))
	require.NoError(t, err)
	idx, err := s.Observe(sleep.KindSleep, start.Add(3*sleep.Day))
	require.NoError(t, err)
	assert.Equal(t, 3, idx)
	require.Len(t, s.Rows, 4)

	// Wake on the new row is forecast from the row above.
	require.NotNil(t, s.Rows[3].WakeEarliest)
	require.NotNil(t, s.Rows[2].WakeEarliest)
	assert.True(t, s.Rows[3].WakeEarliest.After(*s.Rows[2].WakeEarliest))
}

func TestObserve_FillsTrailingWake(t *testing.T) {
	t.Parallel()

	s := build(t, daily(start, 3, sleep.Day), daily(start.Add(8*time.Hour), 2, sleep.Day))
	wake := start.Add(2*sleep.Day + 7*time.Hour)

	idx, err := s.Observe(sleep.KindWake, wake)
	require.NoError(t, err)
	assert.Equal(t, 2, idx)
	assert.True(t, s.Rows[2].WakeEarliest.Equal(wake))
}

func TestEvaluate_Idempotent(t *testing.T) {
	t.Parallel()

	sleeps := daily(start, 7, 24*time.Hour+5*time.Minute)
	wakes := daily(start.Add(8*time.Hour), 7, 24*time.Hour+5*time.Minute)
	a := build(t, sleeps, wakes)
	b := build(t, sleeps, wakes)
	assert.Equal(t, a.Rows, b.Rows)
	assert.Equal(t, a.Panel, b.Panel)
}

func TestEvaluate_NilTable(t *testing.T) {
	t.Parallel()

	_, err := Evaluate(nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, predict.ErrInsufficientData))
}

func TestLookupBefore(t *testing.T) {
	t.Parallel()

	col := daily(start, 4, sleep.Day)
	tests := []struct {
		name   string
		target time.Time
		want   time.Time
	}{
		{"exact", col[2], col[2]},
		{"between", col[2].Add(time.Hour), col[2]},
		{"after all", col[3].Add(sleep.Day), col[3]},
		{"before all", col[0].Add(-time.Hour), col[0]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.True(t, lookupBefore(col, tt.target).Equal(tt.want))
		})
	}
}
