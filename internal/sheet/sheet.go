// Package sheet evaluates a forecast table the way a spreadsheet would:
// the parameter panel is resolved against the observed columns, then rows
// are walked top to bottom and every derived cell takes the observed value
// when one exists, or its expression otherwise. Because each row depends
// only on the row above it, one top-to-bottom pass reaches the fixed point,
// and appending an observation only requires another pass.
package sheet

import (
	"fmt"
	"math"
	"time"

	"github.com/HerbHall/sleepcast/internal/predict"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// Row is a resolved forecast row. Bounds are nil where no estimate exists.
type Row struct {
	Index         int        `json:"index"`
	ObservedSleep *time.Time `json:"observed_sleep,omitempty"`
	ObservedWake  *time.Time `json:"observed_wake,omitempty"`
	SleepEarliest *time.Time `json:"sleep_earliest,omitempty"`
	SleepLatest   *time.Time `json:"sleep_latest,omitempty"`
	WakeEarliest  *time.Time `json:"wake_earliest,omitempty"`
	WakeLatest    *time.Time `json:"wake_latest,omitempty"`
}

// Bound returns the resolved value of field f.
func (r Row) Bound(f predict.Field) *time.Time {
	switch f {
	case predict.SleepEarliest:
		return r.SleepEarliest
	case predict.SleepLatest:
		return r.SleepLatest
	case predict.WakeEarliest:
		return r.WakeEarliest
	default:
		return r.WakeLatest
	}
}

func (r *Row) setBound(f predict.Field, t *time.Time) {
	switch f {
	case predict.SleepEarliest:
		r.SleepEarliest = t
	case predict.SleepLatest:
		r.SleepLatest = t
	case predict.WakeEarliest:
		r.WakeEarliest = t
	default:
		r.WakeLatest = t
	}
}

// Width returns latest minus earliest for kind k, or false when either
// bound is unresolved.
func (r Row) Width(k sleep.Kind) (time.Duration, bool) {
	lo, hi := r.SleepEarliest, r.SleepLatest
	if k == sleep.KindWake {
		lo, hi = r.WakeEarliest, r.WakeLatest
	}
	if lo == nil || hi == nil {
		return 0, false
	}
	return hi.Sub(*lo), true
}

// Sheet is a live evaluation of a forecast table. It owns a copy of the
// table's rows so observations can be appended without touching the
// source table.
type Sheet struct {
	cycle    predict.CycleParameters
	panel    []predict.PanelEntry
	cells    []predict.Row
	Panel    ResolvedPanel `json:"panel"`
	Rows     []Row         `json:"rows"`
	Appended int           `json:"appended"`
}

// Evaluate resolves t into concrete bounds.
func Evaluate(t *predict.Table) (*Sheet, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil table", predict.ErrInsufficientData)
	}
	s := &Sheet{
		cycle: t.Cycle,
		panel: t.Panel,
		cells: append([]predict.Row(nil), t.Rows...),
	}
	if err := s.recompute(); err != nil {
		return nil, err
	}
	return s, nil
}

// Observe writes an observation into the first row whose column for kind
// k is still empty, extending the sheet by one row when every row is
// filled, and recomputes. It returns the index of the row written.
func (s *Sheet) Observe(k sleep.Kind, at time.Time) (int, error) {
	idx := -1
	for i, r := range s.cells {
		if r.Observed(k) == nil {
			idx = i
			break
		}
	}
	if idx < 0 {
		idx = len(s.cells)
		s.cells = append(s.cells, predict.NewRow(idx, nil, nil))
	}

	t := at
	row := s.cells[idx]
	if k == sleep.KindWake {
		row.ObservedWake = &t
	} else {
		row.ObservedSleep = &t
	}
	s.cells[idx] = row
	s.Appended++

	if err := s.recompute(); err != nil {
		return idx, err
	}
	return idx, nil
}

// Cycle returns the cycle parameters the sheet was built from.
func (s *Sheet) Cycle() predict.CycleParameters {
	return s.cycle
}

func (s *Sheet) recompute() error {
	panel, err := resolvePanel(s.panel, s.column(sleep.KindSleep), s.column(sleep.KindWake))
	if err != nil {
		return err
	}
	if panel.AvgDayLength <= 0 {
		panel.AvgDayLength = s.cycle.DayLength
	}
	s.Panel = panel

	rows := make([]Row, len(s.cells))
	// term holds the last uncertainty term applied per field; zero after
	// an observation.
	var term [len(predict.Fields)]float64
	for i, c := range s.cells {
		out := Row{Index: c.Index, ObservedSleep: c.ObservedSleep, ObservedWake: c.ObservedWake}
		for _, f := range predict.Fields {
			if obs := c.Observed(f.Kind()); obs != nil {
				v := *obs
				out.setBound(f, &v)
				term[f] = 0
				continue
			}
			e := c.Cell(f)
			switch e.Kind {
			case predict.ExprConcrete:
				v := e.Value
				out.setBound(f, &v)
				term[f] = 0
			case predict.ExprRelative:
				prev := i + e.RowOffset
				if prev < 0 || prev >= i {
					continue
				}
				prior := rows[prev].Bound(e.Field)
				if prior == nil {
					continue
				}
				if term[e.Field] == 0 {
					term[e.Field] = float64(panel.BaseUncertainty)
				}
				term[e.Field] *= panel.Growth
				offset := panel.AvgDayLength + time.Duration(math.Round(float64(e.Sign)*term[e.Field]))
				v := prior.Add(offset)
				out.setBound(f, &v)
			}
		}
		rows[i] = out
	}
	s.Rows = rows
	return nil
}

// column returns the observed values of kind k in row order.
func (s *Sheet) column(k sleep.Kind) []time.Time {
	var out []time.Time
	for _, r := range s.cells {
		if obs := r.Observed(k); obs != nil {
			out = append(out, *obs)
		}
	}
	return out
}
