package bus

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaylabs/voxrelay/internal/orchestration/events"
)

func TestPublishDispatchesInSubscriptionOrder(t *testing.T) {
	b := New(nil)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		b.Subscribe(events.SubjectVADSpeechStart, func(ctx context.Context, ev events.Event) error {
			order = append(order, i)
			return nil
		})
	}

	ok := b.Publish(context.Background(), events.NewVADSpeechStart(0.8), true)
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestHandlerErrorIsIsolatedAndDerivesErrorEvent(t *testing.T) {
	b := New(nil)
	var secondRan atomic.Bool
	var gotError atomic.Bool

	b.Subscribe(events.SubjectVADSpeechStart, func(ctx context.Context, ev events.Event) error {
		return errors.New("boom")
	})
	b.Subscribe(events.SubjectVADSpeechStart, func(ctx context.Context, ev events.Event) error {
		secondRan.Store(true)
		return nil
	})
	b.Subscribe(events.SubjectErrorOccurred, func(ctx context.Context, ev events.Event) error {
		gotError.Store(true)
		return nil
	})

	b.Publish(context.Background(), events.NewVADSpeechStart(0.8), true)
	// the derived error.occurred publish is scheduled asynchronously
	require.Eventually(t, gotError.Load, time.Second, 5*time.Millisecond)
	assert.True(t, secondRan.Load())
}

func TestErrorWhileHandlingErrorOccurredIsNotReDerived(t *testing.T) {
	b := New(nil)
	var errorHandlerCalls atomic.Int32

	b.Subscribe(events.SubjectErrorOccurred, func(ctx context.Context, ev events.Event) error {
		errorHandlerCalls.Add(1)
		return errors.New("fails while handling an error")
	})

	b.Publish(context.Background(), events.NewErrorOccurred("t", "m", "c", nil), true)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), errorHandlerCalls.Load())
}

func TestShutdownForceCancelsStragglingHandlers(t *testing.T) {
	b := New(nil)
	handlerCtxDone := make(chan struct{})
	started := make(chan struct{})

	b.Subscribe(events.SubjectVADSpeechStart, func(ctx context.Context, ev events.Event) error {
		close(started)
		<-ctx.Done()
		close(handlerCtxDone)
		return nil
	})

	b.Publish(context.Background(), events.NewVADSpeechStart(0.8), false)
	<-started

	b.Shutdown(context.Background(), 20*time.Millisecond)

	require.Eventually(t, func() bool {
		select {
		case <-handlerCtxDone:
			return true
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "straggling handler's context should have been cancelled")
}

func TestShutdownStopsFurtherDispatch(t *testing.T) {
	b := New(nil)
	var calls atomic.Int32
	b.Subscribe(events.SubjectVADSpeechStart, func(ctx context.Context, ev events.Event) error {
		calls.Add(1)
		return nil
	})

	b.Shutdown(context.Background(), 100*time.Millisecond)

	ok := b.Publish(context.Background(), events.NewVADSpeechStart(0.8), true)
	assert.False(t, ok)
	assert.Equal(t, int32(0), calls.Load())
}
