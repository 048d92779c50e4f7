package sources

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

// CallRecorder writes one SyncLog row per upstream call, carrying the request
// and the first integration.SnippetLimit characters of the response.
// A nil recorder or a recorder without a repository records nothing.
type CallRecorder struct {
	Logs     integration.SyncLogRepository
	TenantID uuid.UUID
	Clock    integration.Clock
	Logger   *zap.Logger
}

// Record stores the outcome of one call. Failures to persist are logged, never returned.
func (r *CallRecorder) Record(ctx context.Context, sourceID, operation string, request, response []byte, callErr error) {
	if r == nil || r.Logs == nil {
		return
	}
	clock := r.Clock
	if clock == nil {
		clock = integration.SystemClock{}
	}
	now := clock.Now()
	entry := integration.NewSyncLog(r.TenantID, sourceID, operation, now)
	entry.SetSnippets(string(request), string(response))
	if callErr != nil {
		entry.Fail(callErr.Error(), now)
	} else {
		entry.Finish(integration.Counters{}, fmt.Sprintf("%d bytes", len(response)), now)
	}
	if err := r.Logs.Create(context.WithoutCancel(ctx), entry); err != nil && r.Logger != nil {
		r.Logger.Warn("call log not stored",
			zap.String("source_id", sourceID),
			zap.String("operation", operation),
			zap.Error(err),
		)
	}
}
