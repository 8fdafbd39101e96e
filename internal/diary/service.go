// Package diary records sleep periods and turns them into forecasts. It
// owns the diary tables, the HTTP API under /api/v1/diary and the events
// that keep websocket clients current.
package diary

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/sleepcast/internal/event"
	"github.com/HerbHall/sleepcast/internal/predict"
	"github.com/HerbHall/sleepcast/internal/render"
	"github.com/HerbHall/sleepcast/internal/schedule"
	"github.com/HerbHall/sleepcast/internal/sheet"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// Source values stored on periods.
const (
	SourceAPI    = "api"
	SourceCLI    = "cli"
	SourceImport = "import"
)

// Report is one computed forecast.
type Report struct {
	GeneratedAt time.Time
	Periods     int
	Statistics  sleep.Statistics
	Table       *predict.Table
	Sheet       *sheet.Sheet
}

// PeriodEvent is the payload of TopicPeriodRecorded and TopicPeriodDeleted.
// Live carries the forecast with the new observation applied, when a
// refreshed forecast was available to apply it to.
type PeriodEvent struct {
	Kind     sleep.Kind    `json:"kind,omitempty"`
	Period   *sleep.Period `json:"period,omitempty"`
	Imported int           `json:"imported,omitempty"`
	Live     *LiveForecast `json:"live,omitempty"`
}

// LiveForecast is an immutable copy of a sheet's resolved values.
type LiveForecast struct {
	Rows     []sheet.Row         `json:"rows"`
	Panel    sheet.ResolvedPanel `json:"panel"`
	Appended int                 `json:"appended"`
}

// RejectedEvent is the payload of TopicForecastRejected.
type RejectedEvent struct {
	Reason string `json:"reason"`
}

// IsEngineError reports whether err means the diary cannot support a
// forecast yet, as opposed to an internal failure.
func IsEngineError(err error) bool {
	return errors.Is(err, predict.ErrInsufficientData) ||
		errors.Is(err, predict.ErrInsufficientHistory) ||
		errors.Is(err, predict.ErrMismatchedSeries) ||
		errors.Is(err, schedule.ErrOpenPeriodNotLast)
}

// Service ties the diary store to the prediction engine.
type Service struct {
	store  *Store
	bus    event.Publisher
	cfg    predict.Config
	logger *zap.Logger
	now    func() time.Time

	// writeMu orders diary writes against Refresh, so each write lands
	// either in the forecast being refreshed or on the sheet it installs,
	// never in both or neither.
	writeMu sync.Mutex
	// refreshed runs between computing a refresh and installing its sheet.
	refreshed func()

	mu   sync.Mutex
	live *sheet.Sheet // Last refreshed sheet, advanced by RecordSleep/RecordWake
}

// NewService creates a Service. bus may be nil.
func NewService(st *Store, bus event.Publisher, cfg predict.Config, logger *zap.Logger) *Service {
	return &Service{
		store:  st,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// SetClock replaces the wall clock used for "now".
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.store.now = now
}

// Config returns the engine configuration the service forecasts with.
func (s *Service) Config() predict.Config {
	return s.cfg
}

// Forecast computes a forecast from the whole diary as of now. A zero now
// means the service clock.
func (s *Service) Forecast(ctx context.Context, now time.Time) (*Report, error) {
	if now.IsZero() {
		now = s.now()
	}
	start := time.Now()
	rep, err := s.forecast(ctx, now)
	forecastDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		forecastsTotal.WithLabelValues(resultOK).Inc()
	case IsEngineError(err):
		forecastsTotal.WithLabelValues(resultInsufficient).Inc()
	default:
		forecastsTotal.WithLabelValues(resultError).Inc()
	}
	return rep, err
}

func (s *Service) forecast(ctx context.Context, now time.Time) (*Report, error) {
	periods, err := s.store.ListPeriods(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := schedule.Aggregate(periods)
	if err != nil {
		return nil, fmt.Errorf("aggregate diary: %w", err)
	}
	tbl, err := predict.Forecast(stats, now, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("forecast: %w", err)
	}
	sh, err := sheet.Evaluate(tbl)
	if err != nil {
		return nil, fmt.Errorf("evaluate forecast: %w", err)
	}
	return &Report{
		GeneratedAt: now.UTC(),
		Periods:     len(periods),
		Statistics:  stats,
		Table:       tbl,
		Sheet:       sh,
	}, nil
}

// Refresh computes a forecast, stores it as a snapshot and makes it the
// live sheet for subsequent recordings.
func (s *Service) Refresh(ctx context.Context) (*Snapshot, error) {
	s.writeMu.Lock()
	snap, err := s.refresh(ctx)
	s.writeMu.Unlock()
	if err != nil {
		if IsEngineError(err) {
			s.publish(ctx, event.TopicForecastRejected, RejectedEvent{Reason: err.Error()})
		}
		return nil, err
	}

	if err := s.store.SaveSnapshot(ctx, snap); err != nil {
		return nil, err
	}

	s.logger.Info("forecast refreshed",
		zap.String("snapshot_id", snap.ID),
		zap.Int("rows", snap.Rows),
		zap.Duration("day_length", snap.DayLength),
	)
	s.publish(ctx, event.TopicForecastRefreshed, snap)
	return snap, nil
}

// refresh computes the snapshot and installs its sheet as the live one.
// The snapshot is encoded first, since recordings mutate the live sheet.
// Callers hold writeMu.
func (s *Service) refresh(ctx context.Context) (*Snapshot, error) {
	rep, err := s.Forecast(ctx, time.Time{})
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := render.JSON(&buf, rep.Table, rep.Sheet); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	snap := &Snapshot{
		GeneratedAt: rep.GeneratedAt,
		DayLength:   rep.Table.Cycle.DayLength,
		SleepAnchor: rep.Table.Cycle.SleepAnchor,
		WakeAnchor:  rep.Table.Cycle.WakeAnchor,
		Rows:        len(rep.Sheet.Rows),
		Payload:     bytes.TrimSpace(buf.Bytes()),
	}
	if s.refreshed != nil {
		s.refreshed()
	}
	s.mu.Lock()
	s.live = rep.Sheet
	s.mu.Unlock()
	return snap, nil
}

// LatestSnapshot returns the newest stored snapshot.
func (s *Service) LatestSnapshot(ctx context.Context) (*Snapshot, error) {
	return s.store.LatestSnapshot(ctx)
}

// PruneSnapshots deletes snapshots generated more than retention ago.
func (s *Service) PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error) {
	return s.store.DeleteSnapshotsBefore(ctx, s.now().Add(-retention))
}

// ListPeriods returns the diary in chronological order.
func (s *Service) ListPeriods(ctx context.Context) ([]sleep.Period, error) {
	return s.store.ListPeriods(ctx)
}

// RecordSleep opens a period at at, or now when at is zero.
func (s *Service) RecordSleep(ctx context.Context, at time.Time, source string) (*sleep.Period, error) {
	if at.IsZero() {
		at = s.now()
	}
	s.writeMu.Lock()
	p, err := s.store.RecordSleep(ctx, at, source)
	var live *LiveForecast
	if err == nil {
		live = s.observeLive(sleep.KindSleep, p.AsleepAt)
	}
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}
	s.recorded(ctx, sleep.KindSleep, p, p.AsleepAt, live)
	return p, nil
}

// RecordWake closes the open period at at, or now when at is zero.
func (s *Service) RecordWake(ctx context.Context, at time.Time) (*sleep.Period, error) {
	if at.IsZero() {
		at = s.now()
	}
	s.writeMu.Lock()
	p, err := s.store.RecordWake(ctx, at)
	var live *LiveForecast
	if err == nil {
		live = s.observeLive(sleep.KindWake, *p.AwakeAt)
	}
	s.writeMu.Unlock()
	if err != nil {
		return nil, err
	}
	s.recorded(ctx, sleep.KindWake, p, *p.AwakeAt, live)
	return p, nil
}

// AddPeriod stores a complete or open period after checking that the
// diary stays consistent with it.
func (s *Service) AddPeriod(ctx context.Context, p *sleep.Period) error {
	err := s.rewrite(func() error {
		if err := s.checkAppend(ctx, []sleep.Period{*p}); err != nil {
			return err
		}
		return s.store.InsertPeriod(ctx, p)
	})
	if err != nil {
		return err
	}
	periodsRecorded.WithLabelValues("period").Inc()
	s.publish(ctx, event.TopicPeriodRecorded, PeriodEvent{Period: p})
	return nil
}

// DeletePeriod removes a period.
func (s *Service) DeletePeriod(ctx context.Context, id string) error {
	if err := s.rewrite(func() error { return s.store.DeletePeriod(ctx, id) }); err != nil {
		return err
	}
	s.publish(ctx, event.TopicPeriodDeleted, PeriodEvent{Period: &sleep.Period{ID: id}})
	return nil
}

// ImportPeriods stores periods in one transaction after checking that the
// combined diary is consistent. It returns the number stored.
func (s *Service) ImportPeriods(ctx context.Context, periods []sleep.Period) (int, error) {
	if len(periods) == 0 {
		return 0, nil
	}
	err := s.rewrite(func() error {
		if err := s.checkAppend(ctx, periods); err != nil {
			return err
		}
		return s.store.InsertPeriods(ctx, periods)
	})
	if err != nil {
		return 0, err
	}
	periodsRecorded.WithLabelValues("import").Add(float64(len(periods)))
	s.logger.Info("diary imported", zap.Int("periods", len(periods)))
	s.publish(ctx, event.TopicPeriodRecorded, PeriodEvent{Imported: len(periods)})
	return len(periods), nil
}

// rewrite runs a write the live sheet cannot follow and drops the sheet
// when it succeeds.
func (s *Service) rewrite(fn func() error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	s.dropLive()
	return nil
}

// checkAppend aggregates the existing diary together with extra so that an
// open period in the middle, or a wake before its sleep, is refused before
// anything is written.
func (s *Service) checkAppend(ctx context.Context, extra []sleep.Period) error {
	existing, err := s.store.ListPeriods(ctx)
	if err != nil {
		return err
	}
	if _, err := schedule.Aggregate(append(existing, extra...)); err != nil {
		return err
	}
	return nil
}

// observeLive applies one observation to the live sheet and returns the
// result, or nil when there is no live sheet. Callers hold writeMu.
func (s *Service) observeLive(k sleep.Kind, at time.Time) *LiveForecast {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil {
		return nil
	}
	if _, err := s.live.Observe(k, at); err != nil {
		s.logger.Warn("live forecast dropped", zap.String("kind", string(k)), zap.Error(err))
		s.live = nil
		return nil
	}
	return &LiveForecast{
		Rows:     s.live.Rows,
		Panel:    s.live.Panel,
		Appended: s.live.Appended,
	}
}

// recorded announces one observation.
func (s *Service) recorded(ctx context.Context, k sleep.Kind, p *sleep.Period, at time.Time, live *LiveForecast) {
	periodsRecorded.WithLabelValues(string(k)).Inc()
	s.logger.Debug("diary event recorded",
		zap.String("kind", string(k)),
		zap.String("period_id", p.ID),
		zap.Time("at", at),
	)
	s.publish(ctx, event.TopicPeriodRecorded, PeriodEvent{Kind: k, Period: p, Live: live})
}

func (s *Service) dropLive() {
	s.mu.Lock()
	s.live = nil
	s.mu.Unlock()
}

func (s *Service) publish(ctx context.Context, topic string, payload any) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, event.Event{
		Topic:     topic,
		Source:    ComponentName,
		Timestamp: s.now().UTC(),
		Payload:   payload,
	})
}
