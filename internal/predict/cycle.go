// Package predict estimates future sleep and wake times from a diary's
// aggregated statistics.
//
// The engine is pure: EstimateCycle derives the phase of a possibly
// non-24h cycle, and BuildTable expresses the forecast as a small graph of
// row-relative expressions plus a panel of named parameters. Resolving
// that graph into concrete times is left to the caller (see package sheet),
// so appending an observation re-flows through every later row without
// running the estimator again.
package predict

import (
	"fmt"
	"time"

	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// CycleParameters describes the assumed sleep cycle at the start of the
// averaging window. It is immutable once computed.
type CycleParameters struct {
	DayLength         time.Duration `json:"day_length"`         // Average full cycle duration
	Skew              time.Duration `json:"skew"`               // DayLength minus 24h
	SleepAnchor       time.Time     `json:"sleep_anchor"`       // Boundary zero for sleep
	WakeAnchor        time.Time     `json:"wake_anchor"`        // Boundary zero for wake
	UncertaintyBase   time.Duration `json:"uncertainty_base"`   // Half the estimation granularity
	UncertaintyGrowth float64       `json:"uncertainty_growth"` // Per-row widening multiplier
	LookbackRows      int           `json:"lookback_rows"`      // Observations minus one
}

// BaseDayFraction returns UncertaintyBase as a fraction of one day.
func (p CycleParameters) BaseDayFraction() float64 {
	return float64(p.UncertaintyBase) / float64(sleep.Day)
}

// EstimateCycle derives the cycle parameters from aggregated statistics.
// now is the caller's current time; the anchors are built from midnight UTC
// of the day before it, so equal inputs always give equal anchors. The wake
// anchor moves a day later only when the average wake is strictly earlier
// than the average sleep; equal averages give equal anchors.
func EstimateCycle(stats sleep.Statistics, now time.Time, cfg Config) (CycleParameters, error) {
	sl, wk := stats.Schedule.Sleep, stats.Schedule.Wake
	if sl.Len() == 0 || wk.Len() == 0 {
		return CycleParameters{}, fmt.Errorf("%w: %d sleep, %d wake", ErrInsufficientData, sl.Len(), wk.Len())
	}
	if err := checkSeries(sl, wk); err != nil {
		return CycleParameters{}, err
	}
	cfg, err := cfg.resolve()
	if err != nil {
		return CycleParameters{}, err
	}

	dayLength := sleep.Day
	if d := stats.Summary.AverageDayLength; d != nil && *d > 0 {
		dayLength = *d
	}
	skew := dayLength - sleep.Day

	midnight := Midnight(now.Add(-sleep.Day))
	sleepAnchor := midnight.Add(sl.Average + distributedSkew(len(sl.Durations), skew))
	wakeAnchor := midnight.Add(wk.Average + distributedSkew(len(wk.Durations), skew))
	// Wake must follow the same period's sleep.
	if wk.Average < sl.Average {
		wakeAnchor = wakeAnchor.Add(sleep.Day)
	}

	return CycleParameters{
		DayLength:         dayLength,
		Skew:              skew,
		SleepAnchor:       sleepAnchor,
		WakeAnchor:        wakeAnchor,
		UncertaintyBase:   cfg.Granularity / 2,
		UncertaintyGrowth: cfg.UncertaintyGrowth,
		LookbackRows:      sl.Len() - 1,
	}, nil
}

// Midnight truncates t to 00:00 UTC of the same UTC day.
func Midnight(t time.Time) time.Time {
	return t.UTC().Truncate(sleep.Day)
}

// distributedSkew spreads the accumulated skew evenly back across the
// observed history: half the occurrence count times the per-cycle skew.
func distributedSkew(occurrences int, skew time.Duration) time.Duration {
	return time.Duration(occurrences) * skew / 2
}

// checkSeries verifies that each series is internally consistent and that
// the wake series is either as long as the sleep series or one shorter
// (a trailing sleep that has not ended yet).
func checkSeries(sl, wk sleep.EventSeries) error {
	if len(sl.Durations) != len(sl.Timestamps) {
		return fmt.Errorf("%w: sleep has %d durations for %d timestamps",
			ErrMismatchedSeries, len(sl.Durations), len(sl.Timestamps))
	}
	if len(wk.Durations) != len(wk.Timestamps) {
		return fmt.Errorf("%w: wake has %d durations for %d timestamps",
			ErrMismatchedSeries, len(wk.Durations), len(wk.Timestamps))
	}
	return checkPairing(len(sl.Timestamps), len(wk.Timestamps))
}

func checkPairing(sleeps, wakes int) error {
	if wakes != sleeps && wakes != sleeps-1 {
		return fmt.Errorf("%w: %d sleep and %d wake timestamps", ErrMismatchedSeries, sleeps, wakes)
	}
	return nil
}
