package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, bus.Start(ctx))

	paid := newRecordingHandler("PayrollRecordPaid")
	bus.Subscribe(paid)

	require.NoError(t, bus.Publish(ctx, newTestEvent("PayrollRecordPaid"), newTestEvent("PayrollRecordFailed")))
	assert.Equal(t, 1, paid.count())

	t.Run("failing and panicking handlers do not stop delivery", func(t *testing.T) {
		failing := newRecordingHandler("PayrollRecordFailed")
		failing.err = errors.New("render failed")
		panicking := newRecordingHandler("PayrollRecordFailed")
		panicking.panics = true
		after := newRecordingHandler("PayrollRecordFailed")

		bus.Subscribe(failing)
		bus.Subscribe(panicking)
		bus.Subscribe(after)

		assert.NoError(t, bus.Publish(ctx, newTestEvent("PayrollRecordFailed")))
		assert.Equal(t, 1, failing.count())
		assert.Equal(t, 1, after.count())
	})

	t.Run("unsubscribed handler receives nothing", func(t *testing.T) {
		bus.Unsubscribe(paid)
		require.NoError(t, bus.Publish(ctx, newTestEvent("PayrollRecordPaid")))
		assert.Equal(t, 1, paid.count())
	})

	require.NoError(t, bus.Stop(ctx))
	assert.ErrorIs(t, bus.Publish(ctx, newTestEvent("PayrollRecordPaid")), ErrBusStopped)
}

func TestInMemoryEventBus_Async(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithWorkers(2, 16))
	require.NoError(t, bus.Start(context.Background()))

	h := newRecordingHandler("PayrollRecordPaid")
	bus.Subscribe(h)

	// a cancelled request must not cancel delivery
	reqCtx, cancel := context.WithCancel(context.Background())
	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(reqCtx, newTestEvent("PayrollRecordPaid")))
	}
	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	require.NoError(t, bus.Stop(stopCtx))
	assert.Equal(t, 10, h.count())
}

func TestInMemoryEventBus_AsyncFullQueueRespectsContext(t *testing.T) {
	bus := NewInMemoryEventBus(zap.NewNop(), WithWorkers(1, 1))
	// workers not started: the queue fills up

	require.NoError(t, bus.Publish(context.Background(), newTestEvent("PayrollRecordPaid")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, newTestEvent("PayrollRecordPaid"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
