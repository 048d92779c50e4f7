package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormCheckpointRepository(t *testing.T) {
	repo := NewGormCheckpointRepository(setupTestDB(t))
	ctx := context.Background()

	key := integration.CheckpointKey{
		SourceID:  "qnb-main",
		Kind:      integration.DocumentKindInvoice,
		Direction: integration.DirectionIncoming,
		TenantID:  uuid.New(),
	}
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got, "no checkpoint before the first save")

	cp := integration.NewSyncCheckpoint(key, start)
	require.True(t, cp.Advance(start.AddDate(0, 0, 10), "INV-10", now))
	require.NoError(t, repo.Save(ctx, cp))

	got, err = repo.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.LastFetchedDate.Equal(start.AddDate(0, 0, 10)))
	assert.Equal(t, "INV-10", got.LastExternalID)
	assert.Equal(t, key, got.CheckpointKey)

	t.Run("advances", func(t *testing.T) {
		require.True(t, got.Advance(start.AddDate(0, 0, 20), "INV-20", now.Add(time.Hour)))
		require.NoError(t, repo.Save(ctx, got))

		again, err := repo.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, again.LastFetchedDate.Equal(start.AddDate(0, 0, 20)))
		assert.Equal(t, "INV-20", again.LastExternalID)
	})

	t.Run("never moves backwards", func(t *testing.T) {
		stale := integration.NewSyncCheckpoint(key, start)
		assert.ErrorIs(t, repo.Save(ctx, stale), integration.ErrCheckpointRegression)
	})

	t.Run("keys are independent", func(t *testing.T) {
		outgoing := key
		outgoing.Direction = integration.DirectionOutgoing
		got, err := repo.Get(ctx, outgoing)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}
