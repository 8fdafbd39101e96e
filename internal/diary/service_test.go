package diary

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/HerbHall/sleepcast/internal/event"
	"github.com/HerbHall/sleepcast/internal/predict"
	"github.com/HerbHall/sleepcast/internal/schedule"
	"github.com/HerbHall/sleepcast/pkg/sleep"
)

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) handle(_ context.Context, ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) last() event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

// clockNow is the service clock in tests: the morning after the fifth night.
var clockNow = t0.Add(4*sleep.Day + 12*time.Hour)

func testService(t *testing.T) (*Service, *recorder) {
	t.Helper()
	bus := event.NewBus(zap.NewNop())
	rec := &recorder{}
	bus.SubscribeAll(rec.handle)

	svc := NewService(testStore(t), bus, predict.DefaultConfig(), zap.NewNop())
	svc.SetClock(func() time.Time { return clockNow })
	return svc, rec
}

// seed stores n nights of 23:00-07:00 sleep starting at t0.
func seed(t *testing.T, svc *Service, n int) {
	t.Helper()
	periods := make([]sleep.Period, n)
	for i := range periods {
		asleep := t0.Add(time.Duration(i) * sleep.Day)
		periods[i] = sleep.Period{AsleepAt: asleep, AwakeAt: ptr(asleep.Add(8 * time.Hour)), Source: SourceImport}
	}
	got, err := svc.ImportPeriods(context.Background(), periods)
	require.NoError(t, err)
	require.Equal(t, n, got)
}

func TestService_Forecast(t *testing.T) {
	svc, _ := testService(t)
	seed(t, svc, 5)

	okBefore := testutil.ToFloat64(forecastsTotal.WithLabelValues(resultOK))

	rep, err := svc.Forecast(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 5, rep.Periods)
	assert.True(t, rep.GeneratedAt.Equal(clockNow))
	assert.Equal(t, 5, rep.Table.ObservedRows)
	assert.Len(t, rep.Sheet.Rows, 9)
	assert.Equal(t, sleep.Day, rep.Table.Cycle.DayLength)
	assert.Equal(t, 23*time.Hour, rep.Statistics.Schedule.Sleep.Average)

	// The first forecast night is 24h after the last observed sleep, give
	// or take one widened base uncertainty.
	r := rep.Sheet.Rows[5]
	require.NotNil(t, r.SleepEarliest)
	assert.WithinDuration(t, t0.Add(5*sleep.Day-33*time.Minute), *r.SleepEarliest, time.Millisecond)

	assert.Equal(t, okBefore+1, testutil.ToFloat64(forecastsTotal.WithLabelValues(resultOK)))
}

func TestService_ForecastInsufficient(t *testing.T) {
	svc, _ := testService(t)
	seed(t, svc, 1)

	before := testutil.ToFloat64(forecastsTotal.WithLabelValues(resultInsufficient))
	_, err := svc.Forecast(context.Background(), time.Time{})
	require.Error(t, err)
	assert.True(t, IsEngineError(err))
	assert.ErrorIs(t, err, predict.ErrInsufficientHistory)
	assert.Equal(t, before+1, testutil.ToFloat64(forecastsTotal.WithLabelValues(resultInsufficient)))
}

func TestService_RefreshStoresSnapshot(t *testing.T) {
	svc, rec := testService(t)
	seed(t, svc, 5)
	ctx := context.Background()

	snap, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 9, snap.Rows)
	assert.Contains(t, string(snap.Payload), `"graph"`)

	latest, err := svc.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, latest.ID)
	assert.True(t, latest.SleepAnchor.Equal(snap.SleepAnchor))

	ev := rec.last()
	assert.Equal(t, event.TopicForecastRefreshed, ev.Topic)
	assert.Equal(t, ComponentName, ev.Source)
}

func TestService_RefreshRejected(t *testing.T) {
	svc, rec := testService(t)
	_, err := svc.Refresh(context.Background())
	require.Error(t, err)

	ev := rec.last()
	require.Equal(t, event.TopicForecastRejected, ev.Topic)
	payload, ok := ev.Payload.(RejectedEvent)
	require.True(t, ok)
	assert.Contains(t, payload.Reason, "insufficient")
}

func TestService_RecordAdvancesLiveForecast(t *testing.T) {
	svc, rec := testService(t)
	seed(t, svc, 5)
	ctx := context.Background()

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	late := t0.Add(5*sleep.Day + 90*time.Minute)
	p, err := svc.RecordSleep(ctx, late, SourceAPI)
	require.NoError(t, err)
	assert.True(t, p.Open())

	ev := rec.last()
	require.Equal(t, event.TopicPeriodRecorded, ev.Topic)
	payload, ok := ev.Payload.(PeriodEvent)
	require.True(t, ok)
	assert.Equal(t, sleep.KindSleep, payload.Kind)
	require.NotNil(t, payload.Live)
	assert.Equal(t, 1, payload.Live.Appended)
	require.NotNil(t, payload.Live.Rows[5].ObservedSleep)
	assert.True(t, payload.Live.Rows[5].ObservedSleep.Equal(late))
	assert.True(t, payload.Live.Panel.LastSleep.Equal(late))

	_, err = svc.RecordWake(ctx, late.Add(7*time.Hour))
	require.NoError(t, err)
	payload = rec.last().Payload.(PeriodEvent)
	require.NotNil(t, payload.Live)
	assert.Equal(t, 2, payload.Live.Appended)
}

// A sleep recorded while a refresh is computing must still reach the sheet
// the refresh installs, so the following wake closes the same row.
func TestService_RecordDuringRefreshReachesLiveSheet(t *testing.T) {
	svc, _ := testService(t)
	seed(t, svc, 5)
	ctx := context.Background()

	late := t0.Add(5*sleep.Day + 90*time.Minute)
	recordedSleep := make(chan error, 1)
	svc.refreshed = func() {
		svc.refreshed = nil
		go func() {
			_, err := svc.RecordSleep(ctx, late, SourceAPI)
			recordedSleep <- err
		}()
		// Give the recording every chance to slip in before the swap.
		time.Sleep(50 * time.Millisecond)
	}

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)
	require.NoError(t, <-recordedSleep)

	_, err = svc.RecordWake(ctx, late.Add(7*time.Hour))
	require.NoError(t, err)

	svc.mu.Lock()
	live := svc.live
	svc.mu.Unlock()
	require.NotNil(t, live, "live sheet was dropped")

	row := live.Rows[5]
	require.NotNil(t, row.ObservedSleep, "recorded sleep missing from the live sheet")
	require.NotNil(t, row.ObservedWake)
	assert.True(t, row.ObservedSleep.Equal(late))
	assert.True(t, row.ObservedWake.Equal(late.Add(7*time.Hour)))
	assert.Equal(t, 2, live.Appended)

	periods, err := svc.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 6)
	assert.True(t, periods[5].AsleepAt.Equal(*row.ObservedSleep))
	assert.True(t, periods[5].AwakeAt.Equal(*row.ObservedWake))
}

func TestService_RecordWithoutRefresh(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()

	_, err := svc.RecordSleep(ctx, time.Time{}, SourceCLI)
	require.NoError(t, err)
	payload := rec.last().Payload.(PeriodEvent)
	assert.Nil(t, payload.Live)
	require.NotNil(t, payload.Period)
	assert.True(t, payload.Period.AsleepAt.Equal(clockNow))
}

func TestService_AddPeriodKeepsDiaryConsistent(t *testing.T) {
	svc, _ := testService(t)
	ctx := context.Background()

	open := &sleep.Period{AsleepAt: t0}
	require.NoError(t, svc.AddPeriod(ctx, open))

	// A later period would leave the open one in the middle.
	later := &sleep.Period{AsleepAt: t0.Add(sleep.Day), AwakeAt: ptr(t0.Add(sleep.Day + 8*time.Hour))}
	err := svc.AddPeriod(ctx, later)
	assert.ErrorIs(t, err, schedule.ErrOpenPeriodNotLast)

	periods, err := svc.ListPeriods(ctx)
	require.NoError(t, err)
	assert.Len(t, periods, 1)
}

func TestService_DeletePeriod(t *testing.T) {
	svc, rec := testService(t)
	seed(t, svc, 2)
	ctx := context.Background()

	periods, err := svc.ListPeriods(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.DeletePeriod(ctx, periods[0].ID))
	assert.Equal(t, event.TopicPeriodDeleted, rec.last().Topic)

	assert.ErrorIs(t, svc.DeletePeriod(ctx, periods[0].ID), ErrNotFound)
}

func TestService_Import(t *testing.T) {
	svc, rec := testService(t)
	ctx := context.Background()

	in := strings.NewReader("asleep_at,awake_at\n" +
		"2026-10-01T23:00:00Z,2026-10-02T07:00:00Z\n" +
		"2026-10-02T23:10:00Z,2026-10-03T07:05:00Z\n" +
		"2026-10-03T23:20:00Z,\n")
	n, err := svc.Import(ctx, in, SourceImport)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	payload := rec.last().Payload.(PeriodEvent)
	assert.Equal(t, 3, payload.Imported)

	periods, err := svc.ListPeriods(ctx)
	require.NoError(t, err)
	require.Len(t, periods, 3)
	assert.True(t, periods[2].Open())
	assert.Equal(t, SourceImport, periods[0].Source)
}

func TestService_PruneSnapshots(t *testing.T) {
	svc, _ := testService(t)
	seed(t, svc, 3)
	ctx := context.Background()

	_, err := svc.Refresh(ctx)
	require.NoError(t, err)

	n, err := svc.PruneSnapshots(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)

	svc.SetClock(func() time.Time { return clockNow.Add(48 * time.Hour) })
	n, err = svc.PruneSnapshots(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
