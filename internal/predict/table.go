package predict

import (
	"fmt"
	"time"

	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// Row is one line of the forecast. Rows inside the observed range carry
// the observed timestamps; future rows carry none.
type Row struct {
	Index         int        `json:"index"`
	ObservedSleep *time.Time `json:"observed_sleep,omitempty"`
	ObservedWake  *time.Time `json:"observed_wake,omitempty"`
	Cells         [4]Expr    `json:"cells"` // Indexed by Field
}

// Cell returns the expression for field f.
func (r Row) Cell(f Field) Expr {
	return r.Cells[f]
}

// Observed returns the observed timestamp of kind k, or nil.
func (r Row) Observed(k sleep.Kind) *time.Time {
	if k == sleep.KindWake {
		return r.ObservedWake
	}
	return r.ObservedSleep
}

// NewRow builds row index with the given observations. A field with an
// observation is concrete; otherwise it is derived from the previous row,
// except on row zero which has no predecessor.
func NewRow(index int, observedSleep, observedWake *time.Time) Row {
	r := Row{Index: index, ObservedSleep: observedSleep, ObservedWake: observedWake}
	for _, f := range Fields {
		switch obs := r.Observed(f.Kind()); {
		case obs != nil:
			r.Cells[f] = Concrete(*obs)
		case index > 0:
			r.Cells[f] = RelativeTo(f)
		}
	}
	return r
}

// Table is the forecast: the cycle it was built from, the ordered rows and
// the parameter panel every relative expression refers to.
type Table struct {
	Cycle        CycleParameters `json:"cycle"`
	ObservedRows int             `json:"observed_rows"`
	Rows         []Row           `json:"rows"`
	Panel        []PanelEntry    `json:"panel"`
}

// BuildTable lays out the observed rows followed by up to cfg.Horizon
// forecast rows (never more than the lookback window).
func BuildTable(params CycleParameters, sleeps, wakes []time.Time, cfg Config) (*Table, error) {
	if len(sleeps) == 0 || len(wakes) == 0 {
		return nil, fmt.Errorf("%w: %d sleep, %d wake", ErrInsufficientData, len(sleeps), len(wakes))
	}
	if err := checkPairing(len(sleeps), len(wakes)); err != nil {
		return nil, err
	}
	observed := len(sleeps)
	lookback := observed - 1
	if lookback < 1 {
		return nil, fmt.Errorf("%w: %d observed", ErrInsufficientHistory, observed)
	}
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}

	params.LookbackRows = lookback
	total := observed + max(0, min(cfg.Horizon, lookback))

	rows := make([]Row, total)
	for r := range rows {
		rows[r] = NewRow(r, at(sleeps, r), at(wakes, r))
	}

	return &Table{
		Cycle:        params,
		ObservedRows: observed,
		Rows:         rows,
		Panel:        Panel(params),
	}, nil
}

// Forecast runs the cycle estimator and the table builder over stats.
func Forecast(stats sleep.Statistics, now time.Time, cfg Config) (*Table, error) {
	params, err := EstimateCycle(stats, now, cfg)
	if err != nil {
		return nil, err
	}
	return BuildTable(params, stats.Schedule.Sleep.Timestamps, stats.Schedule.Wake.Timestamps, cfg)
}

func at(ts []time.Time, i int) *time.Time {
	if i >= len(ts) {
		return nil
	}
	t := ts[i]
	return &t
}
