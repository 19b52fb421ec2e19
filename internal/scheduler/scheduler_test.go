package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepairer struct {
	calls atomic.Int64
	err   error
}

func (r *countingRepairer) RepairAll(context.Context) (int, error) {
	r.calls.Add(1)
	return 0, r.err
}

func TestScheduler_RepairsPeriodically(t *testing.T) {
	r := &countingRepairer{}
	s, err := New(r, WithInterval(20*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Runs() >= 3 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, r.calls.Load(), int64(3))
}

func TestScheduler_FailuresDoNotStopJob(t *testing.T) {
	r := &countingRepairer{err: errors.New("database is locked")}
	s, err := New(r, WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Runs() >= 2 }, 5*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestNew_RejectsBadInterval(t *testing.T) {
	_, err := New(&countingRepairer{}, WithInterval(0))
	assert.Error(t, err)
}
