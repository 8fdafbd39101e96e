package sheet

import (
	"fmt"
	"math"
	"time"

	"github.com/HerbHall/sleepcast/internal/predict"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// ResolvedPanel is the parameter panel with every lookup evaluated.
type ResolvedPanel struct {
	Lookback         int           `json:"lookback"`
	BaseUncertainty  time.Duration `json:"base_uncertainty"`
	Growth           float64       `json:"uncertainty_growth"`
	LastSleep        time.Time     `json:"last_sleep"`
	WindowStartSleep time.Time     `json:"window_start_sleep"`
	AvgSleepInterval time.Duration `json:"avg_sleep_interval"`
	LastWake         time.Time     `json:"last_wake"`
	WindowStartWake  time.Time     `json:"window_start_wake"`
	AvgWakeInterval  time.Duration `json:"avg_wake_interval"`
	AvgDayLength     time.Duration `json:"avg_day_length"`
}

// env holds resolved panel values by key, split by type.
type env struct {
	nums  map[predict.ParamKey]float64
	times map[predict.ParamKey]time.Time
	durs  map[predict.ParamKey]time.Duration
}

func resolvePanel(entries []predict.PanelEntry, sleeps, wakes []time.Time) (ResolvedPanel, error) {
	e := env{
		nums:  make(map[predict.ParamKey]float64),
		times: make(map[predict.ParamKey]time.Time),
		durs:  make(map[predict.ParamKey]time.Duration),
	}
	columns := map[sleep.Kind][]time.Time{sleep.KindSleep: sleeps, sleep.KindWake: wakes}

	for _, entry := range entries {
		if entry.Value != nil {
			e.nums[entry.Key] = *entry.Value
			continue
		}
		if entry.Lookup == nil {
			return ResolvedPanel{}, fmt.Errorf("panel entry %s has neither value nor lookup", entry.Key)
		}
		if err := e.resolve(entry.Key, *entry.Lookup, columns); err != nil {
			return ResolvedPanel{}, fmt.Errorf("resolve %s: %w", entry.Key, err)
		}
	}

	return ResolvedPanel{
		Lookback:         int(e.nums[predict.ParamLookback]),
		BaseUncertainty:  time.Duration(math.Round(e.nums[predict.ParamBaseUncertainty] * float64(sleep.Day))),
		Growth:           e.nums[predict.ParamGrowth],
		LastSleep:        e.times[predict.ParamLastSleep],
		WindowStartSleep: e.times[predict.ParamWindowStartSleep],
		AvgSleepInterval: e.durs[predict.ParamAvgSleepInterval],
		LastWake:         e.times[predict.ParamLastWake],
		WindowStartWake:  e.times[predict.ParamWindowStartWake],
		AvgWakeInterval:  e.durs[predict.ParamAvgWakeInterval],
		AvgDayLength:     e.durs[predict.ParamAvgDayLength],
	}, nil
}

func (e env) resolve(key predict.ParamKey, a predict.Aggregate, columns map[sleep.Kind][]time.Time) error {
	switch a.Op {
	case predict.OpMax:
		col := columns[a.Column]
		if len(col) == 0 {
			return fmt.Errorf("%w: empty %s column", predict.ErrInsufficientData, a.Column)
		}
		latest := col[0]
		for _, t := range col[1:] {
			if t.After(latest) {
				latest = t
			}
		}
		e.times[key] = latest

	case predict.OpLookupBefore:
		if len(a.Args) != 2 {
			return fmt.Errorf("%s needs 2 arguments, got %d", a.Op, len(a.Args))
		}
		col := columns[a.Column]
		if len(col) == 0 {
			return fmt.Errorf("%w: empty %s column", predict.ErrInsufficientData, a.Column)
		}
		days := e.nums[a.Args[1]]
		target := e.times[a.Args[0]].Add(-time.Duration(days * float64(sleep.Day)))
		e.times[key] = lookupBefore(col, target)

	case predict.OpMeanInterval:
		if len(a.Args) != 3 {
			return fmt.Errorf("%s needs 3 arguments, got %d", a.Op, len(a.Args))
		}
		n := e.nums[a.Args[2]]
		if n < 1 {
			return fmt.Errorf("%w: lookback of %g", predict.ErrInsufficientHistory, n)
		}
		span := e.times[a.Args[0]].Sub(e.times[a.Args[1]])
		e.durs[key] = time.Duration(float64(span) / n)

	case predict.OpMean:
		if len(a.Args) == 0 {
			return fmt.Errorf("%s needs arguments", a.Op)
		}
		var sum time.Duration
		for _, k := range a.Args {
			sum += e.durs[k]
		}
		e.durs[key] = sum / time.Duration(len(a.Args))

	default:
		return fmt.Errorf("unknown aggregate %q", a.Op)
	}
	return nil
}

// lookupBefore returns the latest value in col at or before target. When
// every value is later than target the earliest value is used, so a window
// that reaches past the start of the diary is clamped to its first entry.
func lookupBefore(col []time.Time, target time.Time) time.Time {
	var best, earliest time.Time
	found := false
	for i, t := range col {
		if i == 0 || t.Before(earliest) {
			earliest = t
		}
		if t.After(target) {
			continue
		}
		if !found || t.After(best) {
			best = t
			found = true
		}
	}
	if !found {
		return earliest
	}
	return best
}
