// Package sleep provides the public data types shared by the sleep diary,
// the statistics aggregator and the prediction engine.
package sleep

import "time"

// Kind identifies which boundary of a sleep period an event marks.
type Kind string

const (
	KindSleep Kind = "sleep"
	KindWake  Kind = "wake"
)

// Day is the nominal cycle length every skew is measured against.
const Day = 24 * time.Hour

// EventSeries summarises every observed occurrence of one kind of event.
// Durations and Timestamps are parallel and chronological.
type EventSeries struct {
	Average    time.Duration   `json:"average"`    // Mean duration since UTC midnight
	Durations  []time.Duration `json:"durations"`  // Per-occurrence duration since UTC midnight
	Timestamps []time.Time     `json:"timestamps"` // Absolute event times
}

// Len returns the number of observed occurrences.
func (s EventSeries) Len() int {
	return len(s.Timestamps)
}

// Schedule pairs the sleep and wake series.
type Schedule struct {
	Sleep EventSeries `json:"sleep"`
	Wake  EventSeries `json:"wake"`
}

// Series returns the series for the given kind.
func (s Schedule) Series(k Kind) EventSeries {
	if k == KindWake {
		return s.Wake
	}
	return s.Sleep
}

// Summary holds whole-history aggregates. AverageDayLength is nil until
// two wake-to-wake gaps (three wakes) have been observed.
type Summary struct {
	AverageDayLength *time.Duration `json:"average_day_length,omitempty"`
}

// Statistics is the aggregated view of a diary consumed by the cycle estimator.
type Statistics struct {
	Summary  Summary  `json:"summary"`
	Schedule Schedule `json:"schedule"`
}

// Period is one observed sleep. AwakeAt is nil while the sleeper has not
// yet woken up.
type Period struct {
	ID        string     `json:"id" example:"5f0c6a7e-3c1b-4d84-a1e5-0a9c0f3b8e21"`
	AsleepAt  time.Time  `json:"asleep_at" example:"2026-10-18T23:40:00Z"`
	AwakeAt   *time.Time `json:"awake_at,omitempty" example:"2026-10-19T07:15:00Z"`
	Source    string     `json:"source,omitempty" example:"api"`
	CreatedAt time.Time  `json:"created_at"`
}

// Open reports whether the period is still waiting for its wake event.
func (p Period) Open() bool {
	return p.AwakeAt == nil
}
