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

func newTestBinding(t *testing.T, sourceID, externalID string, date *time.Time) *integration.Binding {
	t.Helper()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	b, err := integration.NewBinding(uuid.New(), sourceID, externalID, integration.EntityKindDocument, nil, now)
	require.NoError(t, err)
	b.DocumentDate = date
	return b
}

func day(d int) *time.Time {
	t := time.Date(2025, 2, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestGormBindingRepository_CreateFind(t *testing.T) {
	repo := NewGormBindingRepository(setupTestDB(t))
	ctx := context.Background()

	b := newTestBinding(t, "qnb-main", "INV2025000001", day(3))
	b.AttachSnapshot([]byte("<Invoice/>"), "abc123")
	require.NoError(t, repo.Create(ctx, b))

	found, err := repo.Find(ctx, "qnb-main", "INV2025000001", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.Equal(t, b.ID, found.ID)
	assert.Equal(t, integration.BindingStateDraft, found.State)
	assert.Nil(t, found.InternalID)
	assert.Equal(t, []byte("<Invoice/>"), found.PayloadSnapshot)
	assert.Equal(t, "abc123", found.PayloadHash)
	require.NotNil(t, found.DocumentDate)
	assert.True(t, found.DocumentDate.Equal(*day(3)))

	t.Run("duplicate key is a conflict", func(t *testing.T) {
		dup := newTestBinding(t, "qnb-main", "INV2025000001", nil)
		assert.ErrorIs(t, repo.Create(ctx, dup), integration.ErrBindingConflict)
	})

	t.Run("same external id under another kind is allowed", func(t *testing.T) {
		other := newTestBinding(t, "qnb-main", "INV2025000001", nil)
		other.EntityKind = integration.EntityKindPartner
		assert.NoError(t, repo.Create(ctx, other))
	})

	t.Run("missing binding", func(t *testing.T) {
		_, err := repo.Find(ctx, "qnb-main", "missing", integration.EntityKindDocument)
		assert.ErrorIs(t, err, integration.ErrBindingNotFound)

		ok, err := repo.Exists(ctx, "qnb-main", "missing", integration.EntityKindDocument)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestGormBindingRepository_SaveAndDelete(t *testing.T) {
	repo := NewGormBindingRepository(setupTestDB(t))
	ctx := context.Background()

	b := newTestBinding(t, "bizimhesap", "G-1", nil)
	require.NoError(t, repo.Create(ctx, b))

	internalID := uuid.New()
	partnerID := uuid.New()
	require.NoError(t, b.Link(internalID, b.LastSyncAt.Add(time.Hour)))
	b.PartnerID = &partnerID
	require.NoError(t, repo.Save(ctx, b))

	found, err := repo.Find(ctx, "bizimhesap", "G-1", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.Equal(t, integration.BindingStateDelivered, found.State)
	require.NotNil(t, found.PartnerID)
	assert.Equal(t, partnerID, *found.PartnerID)
	require.NotNil(t, found.InternalID)
	assert.Equal(t, internalID, *found.InternalID)

	linked, err := repo.FindByInternalID(ctx, integration.EntityKindDocument, internalID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, b.ID, linked[0].ID)

	t.Run("save of unknown binding", func(t *testing.T) {
		ghost := newTestBinding(t, "bizimhesap", "G-404", nil)
		assert.ErrorIs(t, repo.Save(ctx, ghost), integration.ErrBindingNotFound)
	})

	require.NoError(t, repo.Delete(ctx, b.ID))
	ok, err := repo.Exists(ctx, "bizimhesap", "G-1", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGormBindingRepository_List(t *testing.T) {
	repo := NewGormBindingRepository(setupTestDB(t))
	ctx := context.Background()

	for _, b := range []*integration.Binding{
		newTestBinding(t, "luca", "V-00003", day(10)),
		newTestBinding(t, "luca", "V-00001", day(2)),
		newTestBinding(t, "luca", "V-00002", day(2)),
		newTestBinding(t, "luca", "V-00009", nil),
		newTestBinding(t, "qnb-main", "INV-1", day(5)),
	} {
		require.NoError(t, repo.Create(ctx, b))
	}

	ids := func(bs []integration.Binding) []string {
		out := make([]string, len(bs))
		for i, b := range bs {
			out[i] = b.ExternalID
		}
		return out
	}

	tests := []struct {
		name   string
		filter integration.BindingFilter
		want   []string
	}{
		{
			name:   "date window ordered by date then id",
			filter: integration.BindingFilter{SourceID: "luca", DocumentFrom: day(1), DocumentTo: day(28)},
			want:   []string{"V-00001", "V-00002", "V-00003"},
		},
		{
			name:   "upper bound only",
			filter: integration.BindingFilter{SourceID: "luca", DocumentTo: day(5)},
			want:   []string{"V-00001", "V-00002"},
		},
		{
			name:   "limit",
			filter: integration.BindingFilter{SourceID: "luca", DocumentFrom: day(1), Limit: 1},
			want:   []string{"V-00001"},
		},
		{
			name:   "state filter",
			filter: integration.BindingFilter{SourceID: "qnb-main", State: integration.BindingStateDraft},
			want:   []string{"INV-1"},
		},
		{
			name:   "no match",
			filter: integration.BindingFilter{SourceID: "luca", State: integration.BindingStateAccepted},
			want:   []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.List(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}
}
