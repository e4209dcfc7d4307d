package cron

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/threadline-backend/pkg/logger"
	"github.com/angelmondragon/threadline-backend/pkg/metrics"
)

type fakeLock struct {
	acquired bool
	releases int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.acquired {
		return false, nil
	}
	f.acquired = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.acquired = false
	f.releases++
	return nil
}

type testJob struct {
	name  string
	err   error
	runs  int
	after func()
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	if t.after != nil {
		t.after()
	}
	return t.err
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	registry, err := NewRegistry(failure, success)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewJobMetrics(reg),
	})
	require.NoError(t, err)

	report, err := service.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fail", "success"}, report.Ran)
	assert.Equal(t, []string{"fail"}, report.Failed)
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
	assert.False(t, lock.acquired)
	assert.Equal(t, 1, lock.releases)

	expected := `
# HELP threadline_job_runs_total Scheduled job runs by result.
# TYPE threadline_job_runs_total counter
threadline_job_runs_total{job="fail",result="failure"} 1
threadline_job_runs_total{job="success",result="success"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "threadline_job_runs_total"))
}

func TestServiceSkipsCycleWhenLockHeld(t *testing.T) {
	job := &testJob{name: "expiry"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     &fakeLock{acquired: true},
	})
	require.NoError(t, err)

	report, err := service.RunCycle(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Zero(t, job.runs)
}

func TestServiceBoundsJobRuntime(t *testing.T) {
	var deadline time.Time
	job := &funcJob{name: "slow", fn: func(ctx context.Context) error {
		deadline, _ = ctx.Deadline()
		return nil
	}}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{
		Logger:     logger.Nop(),
		Registry:   registry,
		Lock:       &fakeLock{},
		JobTimeout: time.Minute,
	})
	require.NoError(t, err)

	before := time.Now()
	_, err = service.RunCycle(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Minute), deadline, 5*time.Second)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "expiry"}
	registry, _ := NewRegistry(job)
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     &fakeLock{},
		Interval: time.Hour,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	job.after = cancel
	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
	assert.Equal(t, 1, job.runs, "first cycle runs immediately")
}

func TestNewServiceRequiresLock(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop()})
	assert.Error(t, err)
}

type funcJob struct {
	name string
	fn   func(context.Context) error
}

func (f *funcJob) Name() string                  { return f.name }
func (f *funcJob) Run(ctx context.Context) error { return f.fn(ctx) }
