package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/expense-approval/internal/domain/event"
)

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeNamed(event.TypeClaimVoted, "first", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "first")
		return nil
	})
	d.SubscribeNamed(event.TypeClaimVoted, "second", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "second")
		return nil
	})
	d.Subscribe(event.TypeClaimSubmitted, func(ctx context.Context, evt *event.Event) error {
		order = append(order, "other")
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeClaimVoted, 1, nil)))
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	d := NewDispatcher()
	boom := errors.New("boom")
	secondCalled := false

	d.SubscribeNamed(event.TypeClaimVoted, "failing", func(ctx context.Context, evt *event.Event) error {
		return boom
	})
	d.SubscribeNamed(event.TypeClaimVoted, "after", func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeClaimVoted, 1, nil))
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.False(t, secondCalled)
}

func TestDispatch_RecoversPanics(t *testing.T) {
	logger := &recordingLogger{}
	d := NewDispatcher(WithLogger(logger))

	d.Subscribe(event.TypeStatusChanged, func(ctx context.Context, evt *event.Event) error {
		panic("handler exploded")
	})

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeStatusChanged, 1, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "handler exploded")
	assert.GreaterOrEqual(t, logger.errorCount(), 1)
}

func TestDispatch_NoHandlers(t *testing.T) {
	d := NewDispatcher()
	assert.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeClaimReconfigured, 1, nil)))
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	called := false
	d.SubscribeNamed(event.TypeClaimVoted, "notify", func(ctx context.Context, evt *event.Event) error {
		called = true
		return nil
	})

	d.Unsubscribe(event.TypeClaimVoted, "notify")
	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeClaimVoted, 1, nil)))
	assert.False(t, called)
	assert.Empty(t, d.ListHandlers(event.TypeClaimVoted))
}

func TestListHandlers_HidesFunctions(t *testing.T) {
	d := NewDispatcher()
	d.SubscribeNamed(event.TypeClaimSubmitted, "advisor", func(ctx context.Context, evt *event.Event) error { return nil })
	d.Subscribe(event.TypeClaimSubmitted, func(ctx context.Context, evt *event.Event) error { return nil })

	handlers := d.ListHandlers(event.TypeClaimSubmitted)
	require.Len(t, handlers, 2)
	assert.Equal(t, "advisor", handlers[0].Name)
	assert.Equal(t, "claim.submitted#1", handlers[1].Name)
	for _, h := range handlers {
		assert.Nil(t, h.Handler)
		assert.Equal(t, event.TypeClaimSubmitted, h.EventType)
	}
}

func TestDispatchAsync_SurvivesCallerCancellation(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int32
	var sawCancel atomic.Bool

	for i := 0; i < 3; i++ {
		d.Subscribe(event.TypeClaimSubmitted, func(ctx context.Context, evt *event.Event) error {
			time.Sleep(10 * time.Millisecond)
			if ctx.Err() != nil {
				sawCancel.Store(true)
			}
			calls.Add(1)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, event.NewEvent(event.TypeClaimSubmitted, 1, nil))
	cancel()

	require.NoError(t, d.Close())
	assert.Equal(t, int32(3), calls.Load())
	assert.False(t, sawCancel.Load())
}

func TestDispatchAsync_LogsHandlerErrors(t *testing.T) {
	logger := &recordingLogger{}
	d := NewDispatcher(WithLogger(logger))
	d.Subscribe(event.TypeClaimVoted, func(ctx context.Context, evt *event.Event) error {
		return errors.New("lark unavailable")
	})

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeClaimVoted, 1, nil))
	require.NoError(t, d.Close())
	assert.Equal(t, 1, logger.errorCount())
}

func TestClose(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.Close())
	assert.Error(t, d.Close())

	err := d.Dispatch(context.Background(), event.NewEvent(event.TypeClaimVoted, 1, nil))
	assert.ErrorIs(t, err, ErrClosed)

	// async dispatch on a closed dispatcher is dropped without blocking
	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeClaimVoted, 1, nil))
}
