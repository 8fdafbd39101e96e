// Package seed generates synthetic sleep diaries for demos and local testing.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/sleepcast/internal/diary"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// Source tags every generated period.
const Source = "seed"

// Options shape a generated diary. The sleeper falls asleep at Start and
// then every DayLength, sleeping for SleepFor each time. Jitter moves each
// boundary by up to that much in either direction.
type Options struct {
	Start     time.Time
	Nights    int
	DayLength time.Duration
	SleepFor  time.Duration
	Jitter    time.Duration
	Seed      uint64
}

// DefaultOptions returns a free-running sleeper drifting 20 minutes later
// each day, starting Nights cycles before now.
func DefaultOptions(now time.Time) Options {
	o := Options{
		Nights:    21,
		DayLength: 24*time.Hour + 20*time.Minute,
		SleepFor:  8 * time.Hour,
		Jitter:    25 * time.Minute,
		Seed:      1,
	}
	o.Start = now.UTC().Truncate(time.Hour).Add(-time.Duration(o.Nights) * o.DayLength)
	return o
}

func (o Options) validate() error {
	var errs []error
	if o.Start.IsZero() {
		errs = append(errs, errors.New("start is required"))
	}
	if o.Nights < 1 {
		errs = append(errs, fmt.Errorf("nights must be at least 1, got %d", o.Nights))
	}
	if o.SleepFor <= 0 {
		errs = append(errs, fmt.Errorf("sleep duration must be positive, got %s", o.SleepFor))
	}
	if o.Jitter < 0 {
		errs = append(errs, fmt.Errorf("jitter must not be negative, got %s", o.Jitter))
	}
	// Jittered periods must stay apart and keep a positive length.
	if o.SleepFor+4*o.Jitter >= o.DayLength {
		errs = append(errs, fmt.Errorf("day length %s too short for %s of sleep with %s jitter",
			o.DayLength, o.SleepFor, o.Jitter))
	}
	if 2*o.Jitter >= o.SleepFor && o.SleepFor > 0 {
		errs = append(errs, fmt.Errorf("jitter %s too large for %s of sleep", o.Jitter, o.SleepFor))
	}
	return errors.Join(errs...)
}

// Diary returns the generated periods in chronological order. The same
// options always produce the same boundaries.
func Diary(o Options) ([]sleep.Period, error) {
	if err := o.validate(); err != nil {
		return nil, fmt.Errorf("seed options: %w", err)
	}
	rng := rand.New(rand.NewPCG(o.Seed, o.Seed^0x5eed))
	jitter := func() time.Duration {
		if o.Jitter == 0 {
			return 0
		}
		return time.Duration(rng.Int64N(int64(2*o.Jitter+1))) - o.Jitter
	}

	start := o.Start.UTC()
	periods := make([]sleep.Period, 0, o.Nights)
	for i := range o.Nights {
		asleep := start.Add(time.Duration(i)*o.DayLength + jitter()).Truncate(time.Minute)
		awake := asleep.Add(o.SleepFor + jitter()).Truncate(time.Minute)
		periods = append(periods, sleep.Period{
			ID:       uuid.New().String(),
			AsleepAt: asleep,
			AwakeAt:  &awake,
			Source:   Source,
		})
	}
	return periods, nil
}

// SeedDiary populates an empty diary with a generated history. A diary that
// already holds periods is left alone, so re-running is safe; the returned
// count is then zero.
func SeedDiary(ctx context.Context, svc *diary.Service, o Options) (int, error) {
	existing, err := svc.ListPeriods(ctx)
	if err != nil {
		return 0, fmt.Errorf("list periods: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	periods, err := Diary(o)
	if err != nil {
		return 0, err
	}
	n, err := svc.ImportPeriods(ctx, periods)
	if err != nil {
		return 0, fmt.Errorf("seed diary: %w", err)
	}
	return n, nil
}
