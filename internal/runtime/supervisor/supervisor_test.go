package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "reviewbot/pkg/logx"
)

func TestGoRecordsFirstErrorAndCancels(t *testing.T) {
	sup := NewSupervisor(context.Background(), WithCancelOnError(true))
	boom := errors.New("boom")

	sup.Go("failing", func(ctx context.Context) error { return boom })
	sup.Go("waiter", func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.Equal(t, SupervisorCounters{Active: 0, Started: 2}, sup.Counters())
}

func TestGoRecoversPanics(t *testing.T) {
	sup := NewSupervisor(context.Background(), WithLogger(logx.Nop()))
	sup.Go("panicky", func(ctx context.Context) error { panic("nil map write") })

	err := sup.Wait(context.Background())
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "panicky", pe.Name)
	assert.Equal(t, "nil map write", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestCancellationIsNotAnError(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	sup := NewSupervisor(parent)
	sup.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	cancel()

	require.NoError(t, sup.Wait(context.Background()))
	require.NoError(t, sup.Err())
	assert.Equal(t, SupervisorCounters{Active: 0, Started: 1}, sup.Counters())
}

func TestWaitHonorsDeadline(t *testing.T) {
	sup := NewSupervisor(context.Background())
	release := make(chan struct{})
	sup.Go("stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, sup.Wait(ctx), context.DeadlineExceeded)
}
