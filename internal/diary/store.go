package diary

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/HerbHall/sleepcast/internal/store"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

var (
	// ErrNoOpenPeriod is returned when a wake is recorded with nobody asleep.
	ErrNoOpenPeriod = errors.New("no open sleep period to close")
	// ErrPeriodOpen is returned when a sleep is recorded before the previous
	// period has been closed.
	ErrPeriodOpen = errors.New("the most recent sleep period has no wake time yet")
	// ErrOutOfOrder is returned when an event would precede the diary's last event.
	ErrOutOfOrder = errors.New("event is not after the last recorded event")
	// ErrInvalidPeriod is returned for a period that wakes before it sleeps.
	ErrInvalidPeriod = errors.New("awake_at must be after asleep_at")
	// ErrNotFound is returned when no row matches the requested ID.
	ErrNotFound = errors.New("not found")
)

// timeLayout is fixed-width UTC so that lexical order is chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

// Snapshot is a stored forecast. Payload is the rendered JSON document.
type Snapshot struct {
	ID          string          `json:"id"`
	GeneratedAt time.Time       `json:"generated_at"`
	DayLength   time.Duration   `json:"day_length"`
	SleepAnchor time.Time       `json:"sleep_anchor"`
	WakeAnchor  time.Time       `json:"wake_anchor"`
	Rows        int             `json:"rows"`
	Payload     json.RawMessage `json:"payload"`
}

// Store provides database access for the diary.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a Store backed by db. Migrations must already be applied.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// OpenStore applies the diary migrations to db and returns a Store on it.
func OpenStore(ctx context.Context, db *store.SQLiteStore) (*Store, error) {
	if err := db.Migrate(ctx, ComponentName, migrations()); err != nil {
		return nil, fmt.Errorf("diary migrations: %w", err)
	}
	return NewStore(db.DB()), nil
}

// -- Periods --

// InsertPeriod stores a complete or open period. A missing ID is generated.
func (s *Store) InsertPeriod(ctx context.Context, p *sleep.Period) error {
	if p.AwakeAt != nil && !p.AwakeAt.After(p.AsleepAt) {
		return ErrInvalidPeriod
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO periods (id, asleep_at, awake_at, source, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, formatTime(p.AsleepAt), nullableTime(p.AwakeAt), p.Source, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert period: %w", err)
	}
	return nil
}

// InsertPeriods stores periods in one transaction; either all are stored
// or none is.
func (s *Store) InsertPeriods(ctx context.Context, periods []sleep.Period) error {
	now := s.now().UTC()
	err := s.tx(ctx, func(tx *sql.Tx) error {
		for i := range periods {
			p := &periods[i]
			if p.AwakeAt != nil && !p.AwakeAt.After(p.AsleepAt) {
				return fmt.Errorf("period starting %s: %w", p.AsleepAt.Format(time.RFC3339), ErrInvalidPeriod)
			}
			if p.ID == "" {
				p.ID = uuid.New().String()
			}
			if p.CreatedAt.IsZero() {
				p.CreatedAt = now
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO periods (id, asleep_at, awake_at, source, created_at)
				VALUES (?, ?, ?, ?, ?)`,
				p.ID, formatTime(p.AsleepAt), nullableTime(p.AwakeAt), p.Source, formatTime(p.CreatedAt),
			); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("insert periods: %w", err)
	}
	return nil
}

// RecordSleep opens a new period at the given time. It fails when a period
// is already open or when at does not follow the last recorded wake.
func (s *Store) RecordSleep(ctx context.Context, at time.Time, source string) (*sleep.Period, error) {
	var p *sleep.Period
	err := s.tx(ctx, func(tx *sql.Tx) error {
		last, err := latestPeriod(ctx, tx)
		if err != nil {
			return err
		}
		if last != nil {
			if last.Open() {
				return ErrPeriodOpen
			}
			if !at.After(*last.AwakeAt) {
				return fmt.Errorf("%w: sleep at %s, last wake at %s",
					ErrOutOfOrder, at.UTC().Format(time.RFC3339), last.AwakeAt.Format(time.RFC3339))
			}
		}
		p = &sleep.Period{
			ID:        uuid.New().String(),
			AsleepAt:  at.UTC(),
			Source:    source,
			CreatedAt: s.now().UTC(),
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO periods (id, asleep_at, awake_at, source, created_at)
			VALUES (?, ?, NULL, ?, ?)`,
			p.ID, formatTime(p.AsleepAt), p.Source, formatTime(p.CreatedAt),
		)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record sleep: %w", err)
	}
	return p, nil
}

// RecordWake closes the open period at the given time.
func (s *Store) RecordWake(ctx context.Context, at time.Time) (*sleep.Period, error) {
	var p *sleep.Period
	err := s.tx(ctx, func(tx *sql.Tx) error {
		last, err := latestPeriod(ctx, tx)
		if err != nil {
			return err
		}
		if last == nil || !last.Open() {
			return ErrNoOpenPeriod
		}
		if !at.After(last.AsleepAt) {
			return fmt.Errorf("%w: wake at %s, asleep since %s",
				ErrInvalidPeriod, at.UTC().Format(time.RFC3339), last.AsleepAt.Format(time.RFC3339))
		}
		awake := at.UTC()
		last.AwakeAt = &awake
		p = last
		_, err = tx.ExecContext(ctx, "UPDATE periods SET awake_at = ? WHERE id = ?", formatTime(awake), last.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record wake: %w", err)
	}
	return p, nil
}

// ListPeriods returns every period ordered by asleep_at.
func (s *Store) ListPeriods(ctx context.Context) ([]sleep.Period, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, asleep_at, awake_at, source, created_at
		FROM periods ORDER BY asleep_at`)
	if err != nil {
		return nil, fmt.Errorf("list periods: %w", err)
	}
	defer rows.Close()

	var periods []sleep.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, *p)
	}
	return periods, rows.Err()
}

// DeletePeriod removes a period by ID.
func (s *Store) DeletePeriod(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM periods WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete period: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("period %q: %w", id, ErrNotFound)
	}
	return nil
}

// -- Snapshots --

// SaveSnapshot stores a forecast snapshot, generating its ID when empty.
func (s *Store) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.ID == "" {
		snap.ID = uuid.New().String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forecast_snapshots (
			id, generated_at, day_length_ns, sleep_anchor, wake_anchor, row_count, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, formatTime(snap.GeneratedAt), int64(snap.DayLength),
		formatTime(snap.SleepAnchor), formatTime(snap.WakeAnchor), snap.Rows, string(snap.Payload),
	)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recently generated snapshot, or
// ErrNotFound when none has been stored.
func (s *Store) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	var generated, sleepAnc, wakeAnc, payload string
	var dayLength int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, generated_at, day_length_ns, sleep_anchor, wake_anchor, row_count, payload
		FROM forecast_snapshots ORDER BY generated_at DESC LIMIT 1`,
	).Scan(&snap.ID, &generated, &dayLength, &sleepAnc, &wakeAnc, &snap.Rows, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("latest snapshot: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.DayLength = time.Duration(dayLength)
	snap.Payload = json.RawMessage(payload)
	for _, f := range []struct {
		dst *time.Time
		src string
	}{{&snap.GeneratedAt, generated}, {&snap.SleepAnchor, sleepAnc}, {&snap.WakeAnchor, wakeAnc}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, fmt.Errorf("latest snapshot: parse %q: %w", f.src, err)
		}
	}
	return &snap, nil
}

// DeleteSnapshotsBefore removes snapshots generated before cutoff and
// returns how many were deleted.
func (s *Store) DeleteSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM forecast_snapshots WHERE generated_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete snapshots: %w", err)
	}
	return res.RowsAffected()
}

// -- helpers --

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPeriod(sc rowScanner) (*sleep.Period, error) {
	var p sleep.Period
	var asleep, created string
	var awake sql.NullString
	if err := sc.Scan(&p.ID, &asleep, &awake, &p.Source, &created); err != nil {
		return nil, fmt.Errorf("scan period row: %w", err)
	}
	var err error
	if p.AsleepAt, err = parseTime(asleep); err != nil {
		return nil, fmt.Errorf("period %s asleep_at: %w", p.ID, err)
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("period %s created_at: %w", p.ID, err)
	}
	if awake.Valid {
		t, err := parseTime(awake.String)
		if err != nil {
			return nil, fmt.Errorf("period %s awake_at: %w", p.ID, err)
		}
		p.AwakeAt = &t
	}
	return &p, nil
}

func latestPeriod(ctx context.Context, tx *sql.Tx) (*sleep.Period, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, asleep_at, awake_at, source, created_at
		FROM periods ORDER BY asleep_at DESC LIMIT 1`)
	p, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
