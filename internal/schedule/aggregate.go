// Package schedule reduces a diary of sleep periods to the per-event
// statistics the prediction engine consumes.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// ErrOpenPeriodNotLast is returned when a period without a wake time is
// followed by later periods.
var ErrOpenPeriodNotLast = errors.New("only the most recent period may be missing its wake time")

// ErrWakeNotAfterSleep is returned for a period whose wake time does not
// follow its sleep time.
var ErrWakeNotAfterSleep = errors.New("wake time is not after sleep time")

// Aggregate computes per-kind statistics from periods. Periods are sorted
// by AsleepAt first; the input slice is not modified.
func Aggregate(periods []sleep.Period) (sleep.Statistics, error) {
	sorted := make([]sleep.Period, len(periods))
	copy(sorted, periods)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AsleepAt.Before(sorted[j].AsleepAt)
	})

	var sleeps, wakes []time.Time
	for i, p := range sorted {
		if p.AwakeAt == nil {
			if i != len(sorted)-1 {
				return sleep.Statistics{}, fmt.Errorf("%w: period %q at %s",
					ErrOpenPeriodNotLast, p.ID, p.AsleepAt.Format(time.RFC3339))
			}
		} else {
			if !p.AwakeAt.After(p.AsleepAt) {
				return sleep.Statistics{}, fmt.Errorf("%w: period %q wakes at %s, asleep at %s",
					ErrWakeNotAfterSleep, p.ID, p.AwakeAt.Format(time.RFC3339), p.AsleepAt.Format(time.RFC3339))
			}
			wakes = append(wakes, *p.AwakeAt)
		}
		sleeps = append(sleeps, p.AsleepAt)
	}

	stats := sleep.Statistics{
		Schedule: sleep.Schedule{
			Sleep: Series(sleeps),
			Wake:  Series(wakes),
		},
	}
	stats.Summary.AverageDayLength = averageDayLength(sleeps, wakes)
	return stats, nil
}

// Series summarises chronological timestamps of one kind. Each duration
// since UTC midnight is moved by whole days to lie within 12 hours of the
// first occurrence, so a sleeper drifting across midnight (23:30, 00:30)
// averages to midnight rather than to noon. The average is then
// normalised back into a single day.
func Series(ts []time.Time) sleep.EventSeries {
	s := sleep.EventSeries{Timestamps: ts}
	if len(ts) == 0 {
		return s
	}
	s.Durations = make([]time.Duration, len(ts))
	var ref, sum time.Duration
	for i, t := range ts {
		d := SinceMidnight(t)
		if i == 0 {
			ref = d
		} else {
			d = unwrap(d, ref)
		}
		s.Durations[i] = d
		sum += d
	}
	s.Average = normalise(sum / time.Duration(len(ts)))
	return s
}

// SinceMidnight returns how long after 00:00 UTC t falls.
func SinceMidnight(t time.Time) time.Duration {
	t = t.UTC()
	return t.Sub(t.Truncate(sleep.Day))
}

func unwrap(d, ref time.Duration) time.Duration {
	for d-ref > sleep.Day/2 {
		d -= sleep.Day
	}
	for ref-d > sleep.Day/2 {
		d += sleep.Day
	}
	return d
}

func normalise(d time.Duration) time.Duration {
	d %= sleep.Day
	if d < 0 {
		d += sleep.Day
	}
	return d
}

// averageDayLength is the mean gap between consecutive sleeps and
// consecutive wakes. It is nil until two full cycles have been measured,
// that is two wake-to-wake gaps, which takes three wakes.
func averageDayLength(sleeps, wakes []time.Time) *time.Duration {
	var total time.Duration
	var gaps int
	for _, ts := range [][]time.Time{sleeps, wakes} {
		if len(ts) < 2 {
			continue
		}
		total += ts[len(ts)-1].Sub(ts[0])
		gaps += len(ts) - 1
	}
	if len(wakes) < 3 || gaps == 0 {
		return nil
	}
	avg := total / time.Duration(gaps)
	return &avg
}
