package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(5), "capped")
	assert.Equal(t, time.Second, policy.NextDelay(0))

	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(1))
	assert.Equal(t, 1, RetryPolicy{}.Attempts())
	assert.Equal(t, 3, RetryPolicy{MaxAttempts: 3}.Attempts())
}

func startScheduler(t *testing.T, workers int) *Scheduler {
	t.Helper()
	s := NewScheduler(workers, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s
}

func TestSchedulerFires(t *testing.T) {
	s := startScheduler(t, 2)
	fired := make(chan string, 2)

	s.Schedule("b1", "grace", time.Now().Add(20*time.Millisecond), func(ctx context.Context) { fired <- "grace" })
	s.Schedule("b1", "followup", time.Now().Add(-time.Second), func(ctx context.Context) { fired <- "followup" })

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case k := <-fired:
			got[k] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timer did not fire")
		}
	}
	assert.True(t, got["grace"])
	assert.True(t, got["followup"])
	assert.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSchedulerCancel(t *testing.T) {
	s := startScheduler(t, 1)
	var calls atomic.Int32

	s.Schedule("b1", "grace", time.Now().Add(50*time.Millisecond), func(ctx context.Context) { calls.Add(1) })
	s.Schedule("b1", "followup", time.Now().Add(50*time.Millisecond), func(ctx context.Context) { calls.Add(1) })
	s.Schedule("b2", "grace", time.Now().Add(50*time.Millisecond), func(ctx context.Context) { calls.Add(10) })
	require.Equal(t, 3, s.Pending())

	s.Cancel("b1")
	assert.Equal(t, 1, s.Pending())

	assert.Eventually(t, func() bool { return calls.Load() == 10 }, time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(10), calls.Load())
}

func TestSchedulerReplace(t *testing.T) {
	s := startScheduler(t, 1)
	var (
		mu  sync.Mutex
		got []string
	)
	record := func(v string) func(context.Context) {
		return func(context.Context) {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
		}
	}

	s.Schedule("b1", "grace", time.Now().Add(30*time.Millisecond), record("old"))
	s.Schedule("b1", "grace", time.Now().Add(40*time.Millisecond), record("new"))
	assert.Equal(t, 1, s.Pending())

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"new"}, got)
}

func TestSchedulerRecoversPanic(t *testing.T) {
	s := startScheduler(t, 1)
	ran := make(chan struct{})

	s.Schedule("b1", "grace", time.Now(), func(ctx context.Context) { panic("boom") })
	s.Schedule("b2", "grace", time.Now().Add(20*time.Millisecond), func(ctx context.Context) { close(ran) })

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestSchedulerStopDropsPending(t *testing.T) {
	s := NewScheduler(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Start(ctx)
		close(done)
	}()

	var calls atomic.Int32
	s.Schedule("b1", "grace", time.Now().Add(time.Hour), func(ctx context.Context) { calls.Add(1) })
	cancel()
	<-done

	assert.Equal(t, 0, s.Pending())
	s.Schedule("b2", "grace", time.Now(), func(ctx context.Context) { calls.Add(1) })
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, int32(0), calls.Load())
}
