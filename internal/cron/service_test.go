package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kolo-backend/pkg/logger"
	"github.com/angelmondragon/kolo-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	extends  int
	loseAt   int
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Extend(context.Context) error {
	f.extends++
	if f.loseAt > 0 && f.extends >= f.loseAt {
		return ErrLockLost
	}
	return nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.released++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	require.NoError(t, err)
	service, err := NewService(ServiceParams{
		Logger:     logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.NewRegistry()),
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "request-expiry"}
	failure := &testJob{name: "group-reconcile", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, success, failure)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
	assert.True(t, success.deadline, "jobs run under a timeout")
	assert.Equal(t, 2, lock.extends)
	assert.Equal(t, 1, lock.released)
}

func TestServiceRunCycleStopsWhenLockLost(t *testing.T) {
	first := &testJob{name: "request-expiry"}
	second := &testJob{name: "recurring-contributions"}
	lock := &fakeLock{loseAt: 1}
	service := newTestService(t, lock, first, second)

	err := service.runCycle(context.Background())
	require.ErrorIs(t, err, ErrLockLost)
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs)
}

func TestServiceRunCycleSkipsWhenLocked(t *testing.T) {
	job := &testJob{name: "request-expiry"}
	lock := &fakeLock{acquired: true}
	service := newTestService(t, lock, job)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.released)
}

func TestNewServiceRequiresRegistry(t *testing.T) {
	_, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Lock:   &fakeLock{},
	})
	assert.Error(t, err)
}

type periodicJob struct {
	testJob
	every time.Duration
}

func (p *periodicJob) Every() time.Duration { return p.every }

func TestServiceRespectsJobCadence(t *testing.T) {
	every := &testJob{name: "request-expiry"}
	sweep := &periodicJob{testJob: testJob{name: "outbox-retention"}, every: 6 * time.Hour}
	service := newTestService(t, &fakeLock{}, every, sweep)

	now := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	service.now = func() time.Time { return now }

	require.NoError(t, service.runCycle(context.Background()))
	now = now.Add(15 * time.Minute)
	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 2, every.runs)
	assert.Equal(t, 1, sweep.runs, "periodic job waits for its cadence")

	now = now.Add(6 * time.Hour)
	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 2, sweep.runs)
}

type panickyJob struct{}

func (panickyJob) Name() string              { return "group-reconcile" }
func (panickyJob) Run(context.Context) error { panic("nil group") }

func TestServiceRecoversJobPanics(t *testing.T) {
	after := &testJob{name: "recurring-contributions"}
	lock := &fakeLock{}
	service := newTestService(t, lock, panickyJob{}, after)

	require.NoError(t, service.runCycle(context.Background()))
	assert.Equal(t, 1, after.runs, "a panicking job does not stop the cycle")
	assert.Equal(t, 1, lock.released)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "request-expiry"}
	service := newTestService(t, &fakeLock{}, job)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := service.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
