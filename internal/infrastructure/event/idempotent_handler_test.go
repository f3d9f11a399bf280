package event

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hrpay/backend/internal/domain/shared"
	"github.com/hrpay/backend/internal/infrastructure/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type unavailableStore struct{}

func (unavailableStore) MarkProcessed(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("redis down")
}
func (unavailableStore) IsProcessed(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}
func (unavailableStore) Release(context.Context, string) error { return errors.New("redis down") }
func (unavailableStore) Close() error                         { return nil }

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("redelivered event runs once", func(t *testing.T) {
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		inner := newRecordingHandler("PayrollRecordPaid")
		h := NewIdempotentHandler(inner, store, zap.NewNop())

		event := newTestEvent("PayrollRecordPaid")
		require.NoError(t, h.Handle(ctx, event))
		require.NoError(t, h.Handle(ctx, event))

		assert.Equal(t, 1, inner.count())
		assert.Equal(t, IdempotencyStats{Processed: 1, Duplicates: 1}, h.Stats())
		assert.Equal(t, []string{"PayrollRecordPaid"}, h.EventTypes())
		assert.Same(t, inner, h.Unwrap())
	})

	t.Run("aggregate key collapses distinct events", func(t *testing.T) {
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		inner := newRecordingHandler("PayrollRecordPaid")
		h := NewIdempotentHandler(inner, store, zap.NewNop(), WithKeyFunc(ByAggregate), WithTTL(time.Hour))

		first := newTestEvent("PayrollRecordPaid")
		second := newTestEvent("PayrollRecordPaid")
		second.Aggregate = first.Aggregate

		require.NoError(t, h.Handle(ctx, first))
		require.NoError(t, h.Handle(ctx, second))
		assert.Equal(t, 1, inner.count())
	})

	t.Run("failure releases the key", func(t *testing.T) {
		store := cache.NewInMemoryIdempotencyStore()
		defer store.Close()
		inner := newRecordingHandler("PayrollRecordPaid")
		inner.err = errors.New("storage unavailable")
		h := NewIdempotentHandler(inner, store, zap.NewNop())

		event := newTestEvent("PayrollRecordPaid")
		assert.Error(t, h.Handle(ctx, event))

		processed, err := store.IsProcessed(ctx, ByEventID(event))
		require.NoError(t, err)
		assert.False(t, processed)

		inner.err = nil
		require.NoError(t, h.Handle(ctx, event))
		assert.Equal(t, 2, inner.count())
		assert.Equal(t, int64(1), h.Stats().Failed)
	})

	t.Run("unavailable store still processes", func(t *testing.T) {
		inner := newRecordingHandler("PayrollRecordPaid")
		h := NewIdempotentHandler(inner, unavailableStore{}, nil)

		require.NoError(t, h.Handle(ctx, newTestEvent("PayrollRecordPaid")))
		assert.Equal(t, 1, inner.count())
	})
}

var _ shared.IdempotencyStore = unavailableStore{}
