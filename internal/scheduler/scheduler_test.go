package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
)

func runs(m *metrics.Metrics, job, outcome string) float64 {
	return testutil.ToFloat64(m.JobRunsTotal.WithLabelValues(job, outcome))
}

func TestRunNowRecordsOutcomes(t *testing.T) {
	m := metrics.New()
	s := New(nil, m)

	calls := 0
	require.NoError(t, s.Every(10*time.Second, time.Second, JobFunc{
		JobName: "trip_updates",
		Fn: func(ctx context.Context) error {
			calls++
			if calls == 2 {
				return errors.New("feed unavailable")
			}
			return nil
		},
	}))

	ran, err := s.RunNow("trip_updates")
	assert.True(t, ran)
	assert.NoError(t, err)

	ran, err = s.RunNow("trip_updates")
	assert.True(t, ran)
	assert.Error(t, err)

	assert.Equal(t, float64(1), runs(m, "trip_updates", metrics.OutcomeOK))
	assert.Equal(t, float64(1), runs(m, "trip_updates", metrics.OutcomeError))
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	m := metrics.New()
	s := New(nil, m)

	started := make(chan struct{})
	release := make(chan struct{})
	var executions atomic.Int32

	require.NoError(t, s.Every(10*time.Second, 5*time.Second, JobFunc{
		JobName: "vehicle_positions",
		Fn: func(ctx context.Context) error {
			executions.Add(1)
			close(started)
			<-release
			return nil
		},
	}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = s.RunNow("vehicle_positions")
	}()
	<-started

	ran, err := s.RunNow("vehicle_positions")
	assert.False(t, ran, "second tick must not run while the first is active")
	assert.NoError(t, err)

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), executions.Load())
	assert.Equal(t, float64(1), runs(m, "vehicle_positions", metrics.OutcomeSkipped))
	assert.Equal(t, float64(1), runs(m, "vehicle_positions", metrics.OutcomeOK))
}

func TestPanicIsContained(t *testing.T) {
	m := metrics.New()
	s := New(nil, m)

	require.NoError(t, s.Every(time.Minute, time.Second, JobFunc{
		JobName: "alerts",
		Fn:      func(ctx context.Context) error { panic("nil map") },
	}))

	ran, err := s.RunNow("alerts")
	assert.True(t, ran)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil map")
	assert.Equal(t, float64(1), runs(m, "alerts", metrics.OutcomePanic))

	// the guard is released after a panic
	ran, _ = s.RunNow("alerts")
	assert.True(t, ran)
}

func TestRunHasTimeout(t *testing.T) {
	s := New(nil, nil)

	require.NoError(t, s.Every(time.Minute, 50*time.Millisecond, JobFunc{
		JobName: "slow",
		Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}))

	_, err := s.RunNow("slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEveryRejectsDuplicatesAndBadIntervals(t *testing.T) {
	s := New(nil, nil)
	job := JobFunc{JobName: "dup", Fn: func(context.Context) error { return nil }}

	require.NoError(t, s.Every(time.Second, time.Second, job))
	assert.Error(t, s.Every(time.Second, time.Second, job))
	assert.Error(t, s.Every(0, time.Second, JobFunc{JobName: "zero"}))

	_, err := s.RunNow("missing")
	assert.Error(t, err)
}

func TestScheduledTicksFireAndStopCancelsRuns(t *testing.T) {
	s := New(nil, nil)

	var ticks atomic.Int32
	cancelled := make(chan struct{})
	require.NoError(t, s.Every(time.Second, 10*time.Second, JobFunc{
		JobName: "ticker",
		Fn: func(ctx context.Context) error {
			if ticks.Add(1) == 1 {
				<-ctx.Done()
				close(cancelled)
			}
			return nil
		},
	}))

	s.Start()
	assert.Eventually(t, func() bool { return ticks.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight run was not cancelled by Stop")
	}
}

func TestSlowJobDoesNotDelayOtherJobs(t *testing.T) {
	m := metrics.New()
	s := New(nil, m)

	release := make(chan struct{})
	var slowStarts atomic.Int32
	require.NoError(t, s.Every(time.Second, 30*time.Second, JobFunc{
		JobName: "vehicle_positions",
		Fn: func(ctx context.Context) error {
			slowStarts.Add(1)
			select {
			case <-release:
			case <-ctx.Done():
			}
			return nil
		},
	}))
	require.NoError(t, s.Every(time.Second, time.Second, JobFunc{
		JobName: "trip_updates",
		Fn:      func(context.Context) error { return nil },
	}))

	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	assert.Eventually(t, func() bool {
		return runs(m, "trip_updates", metrics.OutcomeOK) >= 2 &&
			runs(m, "vehicle_positions", metrics.OutcomeSkipped) >= 1
	}, 5*time.Second, 20*time.Millisecond, "trip updates keep ticking while vehicle positions hangs")

	assert.Equal(t, int32(1), slowStarts.Load(), "the hung run is never re-entered")
	assert.Equal(t, float64(0), runs(m, "vehicle_positions", metrics.OutcomeOK))

	close(release)
	assert.Eventually(t, func() bool {
		return runs(m, "vehicle_positions", metrics.OutcomeOK) == 1
	}, 3*time.Second, 20*time.Millisecond)
}
