package predict

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// Field names one of the four derived columns of a forecast row.
type Field int

const (
	SleepEarliest Field = iota
	SleepLatest
	WakeEarliest
	WakeLatest
)

// Fields lists the derived columns in rendering order.
var Fields = [...]Field{SleepEarliest, SleepLatest, WakeEarliest, WakeLatest}

// Kind returns the event kind the field estimates.
func (f Field) Kind() sleep.Kind {
	if f == WakeEarliest || f == WakeLatest {
		return sleep.KindWake
	}
	return sleep.KindSleep
}

// Sign returns the direction the field widens in: earliest bounds move
// earlier, latest bounds move later.
func (f Field) Sign() Sign {
	if f == SleepEarliest || f == WakeEarliest {
		return Earlier
	}
	return Later
}

func (f Field) String() string {
	switch f {
	case SleepEarliest:
		return "sleep_earliest"
	case SleepLatest:
		return "sleep_latest"
	case WakeEarliest:
		return "wake_earliest"
	case WakeLatest:
		return "wake_latest"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (f Field) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Sign is the direction an uncertainty term is applied in.
type Sign int

const (
	Earlier Sign = -1
	Later   Sign = 1
)

// ExprKind discriminates Expr values.
type ExprKind uint8

const (
	ExprNone     ExprKind = iota // No estimate can be formed (row zero without an observation)
	ExprConcrete                 // A known value
	ExprRelative                 // Derived from the previous row
)

func (k ExprKind) String() string {
	switch k {
	case ExprConcrete:
		return "concrete"
	case ExprRelative:
		return "relative"
	default:
		return "none"
	}
}

// Expr is the content of one derived cell.
//
// A relative expression evaluates to
//
//	prior(Field) + avg_day_length + Sign * uncertainty
//
// where prior is the same field RowOffset rows away and uncertainty is
// base_uncertainty * growth^k, k being the number of rows since that
// field's column last held an observation.
type Expr struct {
	Kind      ExprKind
	Value     time.Time
	Field     Field
	RowOffset int
	Sign      Sign
}

// Concrete returns an expression holding a known value.
func Concrete(t time.Time) Expr {
	return Expr{Kind: ExprConcrete, Value: t}
}

// RelativeTo returns an expression deriving f from the previous row.
func RelativeTo(f Field) Expr {
	return Expr{Kind: ExprRelative, Field: f, RowOffset: -1, Sign: f.Sign()}
}

func (e Expr) String() string {
	switch e.Kind {
	case ExprConcrete:
		return e.Value.UTC().Format(time.RFC3339)
	case ExprRelative:
		op := "+"
		if e.Sign == Earlier {
			op = "-"
		}
		return fmt.Sprintf("row[%d].%s + %s %s %s",
			e.RowOffset, e.Field, ParamAvgDayLength, op, "uncertainty")
	default:
		return ""
	}
}

type exprJSON struct {
	Type      string     `json:"type"`
	Value     *time.Time `json:"value,omitempty"`
	Field     *Field     `json:"field,omitempty"`
	RowOffset int        `json:"row_offset,omitempty"`
	Sign      int        `json:"sign,omitempty"`
	DayLength ParamKey   `json:"day_length,omitempty"`
}

// MarshalJSON renders the expression as a tagged object.
func (e Expr) MarshalJSON() ([]byte, error) {
	out := exprJSON{Type: e.Kind.String()}
	switch e.Kind {
	case ExprConcrete:
		v := e.Value
		out.Value = &v
	case ExprRelative:
		f := e.Field
		out.Field = &f
		out.RowOffset = e.RowOffset
		out.Sign = int(e.Sign)
		out.DayLength = ParamAvgDayLength
	}
	return json.Marshal(out)
}
