package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormTransactionScope(t *testing.T) {
	scope := NewGormTransactionScope(setupTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("commit", func(t *testing.T) {
		err := scope.Execute(ctx, func(ctx context.Context, stores integration.Stores) error {
			p := &integration.Partner{TenantID: tenantID, Name: "Committed Ltd"}
			if err := stores.Partners().Create(ctx, p); err != nil {
				return err
			}
			b, err := integration.NewBinding(tenantID, "qnb-main", "VKN-1", integration.EntityKindPartner, &p.ID, now)
			if err != nil {
				return err
			}
			return stores.Bindings().Create(ctx, b)
		})
		require.NoError(t, err)

		ok, err := scope.Stores().Bindings().Exists(ctx, "qnb-main", "VKN-1", integration.EntityKindPartner)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := scope.Execute(ctx, func(ctx context.Context, stores integration.Stores) error {
			if err := stores.Partners().Create(ctx, &integration.Partner{TenantID: tenantID, Name: "Rolled Back"}); err != nil {
				return err
			}
			b, err := integration.NewBinding(tenantID, "qnb-main", "VKN-2", integration.EntityKindPartner, nil, now)
			if err != nil {
				return err
			}
			if err := stores.Bindings().Create(ctx, b); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		ok, err := scope.Stores().Bindings().Exists(ctx, "qnb-main", "VKN-2", integration.EntityKindPartner)
		require.NoError(t, err)
		assert.False(t, ok)

		partners, err := scope.Stores().Partners().ListForMatching(ctx, tenantID)
		require.NoError(t, err)
		require.Len(t, partners, 1)
		assert.Equal(t, "Committed Ltd", partners[0].Name)
	})
}
