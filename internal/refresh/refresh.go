// Package refresh rebuilds the forecast snapshot on a cron schedule and
// prunes snapshots that have aged out.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/HerbHall/sleepcast/internal/diary"
)

// Config holds the refresh job settings.
type Config struct {
	Schedule          string        `mapstructure:"schedule"`
	SnapshotRetention time.Duration `mapstructure:"snapshot_retention"`
	RunOnStart        bool          `mapstructure:"run_on_start"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the defaults: shortly after UTC midnight, keeping a
// month of snapshots.
func DefaultConfig() Config {
	return Config{
		Schedule:          "5 0 * * *",
		SnapshotRetention: 30 * 24 * time.Hour,
		RunOnStart:        true,
		Timeout:           30 * time.Second,
	}
}

// Refresher is the part of the diary service the job drives.
type Refresher interface {
	Refresh(ctx context.Context) (*diary.Snapshot, error)
	PruneSnapshots(ctx context.Context, retention time.Duration) (int64, error)
}

// Result summarises one run.
type Result struct {
	Snapshot *diary.Snapshot
	Pruned   int64
	Skipped  bool
}

// Job runs Refresher on a schedule.
type Job struct {
	cfg    Config
	target Refresher
	logger *zap.Logger

	mu     sync.Mutex
	cron   *rcron.Cron
	entry  rcron.EntryID
	cancel context.CancelFunc
}

// New validates cfg and returns a stopped job.
func New(target Refresher, cfg Config, logger *zap.Logger) (*Job, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultConfig().Schedule
	}
	if _, err := rcron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Job{cfg: cfg, target: target, logger: logger}, nil
}

// Start schedules the job. The context bounds every run; cancelling it
// has the same effect as Stop for runs in flight.
func (j *Job) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return errors.New("refresh job already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := rcron.New(
		rcron.WithLocation(time.UTC),
		rcron.WithChain(rcron.SkipIfStillRunning(cronLogger{j.logger.Sugar()})),
	)
	id, err := c.AddFunc(j.cfg.Schedule, func() {
		if _, err := j.RunOnce(runCtx); err != nil {
			j.logger.Error("scheduled refresh failed", zap.Error(err))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("schedule refresh: %w", err)
	}
	c.Start()

	j.cron, j.entry, j.cancel = c, id, cancel
	j.logger.Info("refresh job started",
		zap.String("schedule", j.cfg.Schedule),
		zap.Time("next", c.Entry(id).Next),
	)

	if j.cfg.RunOnStart {
		go func() {
			if _, err := j.RunOnce(runCtx); err != nil {
				j.logger.Error("startup refresh failed", zap.Error(err))
			}
		}()
	}
	return nil
}

// Stop halts the scheduler and waits up to five seconds for a running
// refresh to finish.
func (j *Job) Stop() {
	j.mu.Lock()
	c, cancel := j.cron, j.cancel
	j.cron, j.cancel = nil, nil
	j.mu.Unlock()
	if c == nil {
		return
	}

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		j.logger.Warn("refresh job did not stop within 5s")
	}
	cancel()
}

// Next returns the next scheduled run, or the zero time when stopped.
func (j *Job) Next() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron == nil {
		return time.Time{}
	}
	return j.cron.Entry(j.entry).Next
}

// RunOnce refreshes the snapshot and prunes old ones. A diary that cannot
// produce a forecast yet is not an error: the run is reported as skipped
// and pruning still happens.
func (j *Job) RunOnce(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, j.cfg.Timeout)
	defer cancel()

	var res Result
	snap, err := j.target.Refresh(ctx)
	switch {
	case err == nil:
		res.Snapshot = snap
	case diary.IsEngineError(err):
		res.Skipped = true
		j.logger.Info("forecast refresh skipped", zap.String("reason", err.Error()))
	default:
		return res, fmt.Errorf("refresh forecast: %w", err)
	}

	if j.cfg.SnapshotRetention > 0 {
		n, err := j.target.PruneSnapshots(ctx, j.cfg.SnapshotRetention)
		if err != nil {
			j.logger.Warn("failed to prune snapshots", zap.Error(err))
		} else if n > 0 {
			j.logger.Info("pruned old snapshots", zap.Int64("count", n))
		}
		res.Pruned = n
	}
	return res, nil
}

// cronLogger adapts zap to the cron.Logger interface.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
