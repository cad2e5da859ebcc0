package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore(t *testing.T) {
	ctx := context.Background()

	t.Run("first mark succeeds, second is a duplicate", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		fresh, err := store.MarkProcessed(ctx, "servicedesk:TICKET-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)

		again, err := store.MarkProcessed(ctx, "servicedesk:TICKET-1", time.Minute)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("different keys do not collide", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		_, err := store.MarkProcessed(ctx, "servicedesk:TICKET-1", time.Minute)
		require.NoError(t, err)

		fresh, err := store.MarkProcessed(ctx, "crm:TICKET-1", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)
	})

	t.Run("expired entries can be marked again", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		_, err := store.MarkProcessed(ctx, "servicedesk:TICKET-2", time.Millisecond)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		fresh, err := store.MarkProcessed(ctx, "servicedesk:TICKET-2", time.Minute)
		require.NoError(t, err)
		assert.True(t, fresh)
	})

	t.Run("IsProcessed reflects marks and expiry", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		defer store.Close()

		processed, err := store.IsProcessed(ctx, "servicedesk:TICKET-3")
		require.NoError(t, err)
		assert.False(t, processed)

		_, err = store.MarkProcessed(ctx, "servicedesk:TICKET-3", time.Millisecond)
		require.NoError(t, err)

		processed, err = store.IsProcessed(ctx, "servicedesk:TICKET-3")
		require.NoError(t, err)
		assert.True(t, processed)

		time.Sleep(5 * time.Millisecond)

		processed, err = store.IsProcessed(ctx, "servicedesk:TICKET-3")
		require.NoError(t, err)
		assert.False(t, processed)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		store := NewInMemoryIdempotencyStore()
		require.NoError(t, store.Close())
		require.NoError(t, store.Close())
	})
}
