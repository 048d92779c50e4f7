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

func TestGormSyncLogRepository(t *testing.T) {
	repo := NewGormSyncLogRepository(setupTestDB(t))
	ctx := context.Background()
	tenantID := uuid.New()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	var logs []*integration.SyncLog
	for i := range 3 {
		l := integration.NewSyncLog(tenantID, "ticimax", "sync.pull", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, repo.Create(ctx, l))
		logs = append(logs, l)
	}
	require.NoError(t, repo.Create(ctx, integration.NewSyncLog(tenantID, "other", "sync.pull", base)))

	counters := integration.Counters{}
	counters.Add(integration.CounterCreated, 4)
	counters.Inc(integration.CounterFailed)
	logs[2].Finish(counters, "1 document failed", base.Add(5*time.Minute))
	logs[2].SetSnippets("GET /feed.xml", "<Products>")
	require.NoError(t, repo.Save(ctx, logs[2]))

	recent, err := repo.ListRecent(ctx, "ticimax", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, logs[2].ID, recent[0].ID, "newest first")
	assert.Equal(t, logs[1].ID, recent[1].ID)

	saved := recent[0]
	assert.Equal(t, integration.SyncStatusPartial, saved.Status)
	assert.Equal(t, 4, saved.Created)
	assert.Equal(t, 1, saved.Failed)
	assert.Equal(t, "1 document failed", saved.Message)
	assert.Equal(t, "GET /feed.xml", saved.RequestSnippet)
	require.NotNil(t, saved.FinishedAt)

	all, err := repo.ListRecent(ctx, "ticimax", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGormSourceStatusRepository(t *testing.T) {
	repo := NewGormSourceStatusRepository(setupTestDB(t))
	ctx := context.Background()

	got, err := repo.Get(ctx, "luca")
	require.NoError(t, err)
	assert.Nil(t, got)

	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Save(ctx, &integration.SourceStatus{
		SourceID: "luca", State: integration.SourceStateError, LastError: "workbook missing", UpdatedAt: now,
	}))
	require.NoError(t, repo.Save(ctx, &integration.SourceStatus{
		SourceID: "luca", State: integration.SourceStateOK, UpdatedAt: now.Add(time.Minute),
	}))

	got, err = repo.Get(ctx, "luca")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, integration.SourceStateOK, got.State)
	assert.Empty(t, got.LastError)
	assert.True(t, got.UpdatedAt.Equal(now.Add(time.Minute)))
}
