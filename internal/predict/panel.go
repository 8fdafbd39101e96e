package predict

import "github.com/HerbHall/sleepcast/pkg/sleep"

// ParamKey names an entry of the parameter panel.
type ParamKey string

const (
	ParamLookback         ParamKey = "lookback"
	ParamBaseUncertainty  ParamKey = "base_uncertainty"
	ParamGrowth           ParamKey = "uncertainty_growth"
	ParamLastSleep        ParamKey = "last_sleep"
	ParamWindowStartSleep ParamKey = "window_start_sleep"
	ParamAvgSleepInterval ParamKey = "avg_sleep_interval"
	ParamLastWake         ParamKey = "last_wake"
	ParamWindowStartWake  ParamKey = "window_start_wake"
	ParamAvgWakeInterval  ParamKey = "avg_wake_interval"
	ParamAvgDayLength     ParamKey = "avg_day_length"
)

// AggregateOp is a lookup the renderer performs over the observed columns.
type AggregateOp string

const (
	// OpMax is the latest value of Column.
	OpMax AggregateOp = "max"
	// OpLookupBefore is the latest value of Column at or before
	// Args[0] minus Args[1] days.
	OpLookupBefore AggregateOp = "lookup_before"
	// OpMeanInterval is (Args[0] - Args[1]) / Args[2].
	OpMeanInterval AggregateOp = "mean_interval"
	// OpMean is the arithmetic mean of the Args.
	OpMean AggregateOp = "mean"
)

// Aggregate describes a panel value computed from other cells.
type Aggregate struct {
	Op     AggregateOp `json:"op"`
	Column sleep.Kind  `json:"column,omitempty"`
	Args   []ParamKey  `json:"args,omitempty"`
}

// PanelEntry is one labelled parameter. Exactly one of Value and Lookup is set.
type PanelEntry struct {
	Key    ParamKey   `json:"key"`
	Label  string     `json:"label"`
	Value  *float64   `json:"value,omitempty"`
	Lookup *Aggregate `json:"lookup,omitempty"`
}

// Panel returns the fixed, ordered parameter panel for the given cycle.
// Constants are plain numbers (the base uncertainty as a day fraction);
// everything else is an aggregate over the observed columns, which lets a
// recomputed artifact correct its own day length as observations accrue.
func Panel(p CycleParameters) []PanelEntry {
	return []PanelEntry{
		number(ParamLookback, "Average over this many days", float64(p.LookbackRows)),
		number(ParamBaseUncertainty, "Base uncertainty", p.BaseDayFraction()),
		number(ParamGrowth, "Daily uncertainty multiplier", p.UncertaintyGrowth),
		lookup(ParamLastSleep, "Last recorded sleep", Aggregate{Op: OpMax, Column: sleep.KindSleep}),
		lookup(ParamWindowStartSleep, "Start of sleep-averaging period", Aggregate{
			Op: OpLookupBefore, Column: sleep.KindSleep, Args: []ParamKey{ParamLastSleep, ParamLookback},
		}),
		lookup(ParamAvgSleepInterval, "Average time between sleeps", Aggregate{
			Op: OpMeanInterval, Args: []ParamKey{ParamLastSleep, ParamWindowStartSleep, ParamLookback},
		}),
		lookup(ParamLastWake, "Last recorded wake", Aggregate{Op: OpMax, Column: sleep.KindWake}),
		lookup(ParamWindowStartWake, "Start of wake-averaging period", Aggregate{
			Op: OpLookupBefore, Column: sleep.KindWake, Args: []ParamKey{ParamLastWake, ParamLookback},
		}),
		lookup(ParamAvgWakeInterval, "Average time between wakes", Aggregate{
			Op: OpMeanInterval, Args: []ParamKey{ParamLastWake, ParamWindowStartWake, ParamLookback},
		}),
		lookup(ParamAvgDayLength, "Average day length", Aggregate{
			Op: OpMean, Args: []ParamKey{ParamAvgSleepInterval, ParamAvgWakeInterval},
		}),
	}
}

func number(key ParamKey, label string, v float64) PanelEntry {
	return PanelEntry{Key: key, Label: label, Value: &v}
}

func lookup(key ParamKey, label string, a Aggregate) PanelEntry {
	return PanelEntry{Key: key, Label: label, Lookup: &a}
}
