package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SnippetLimit bounds request and response snippets stored with a sync log.
const SnippetLimit = 5000

// SyncStatus represents the outcome of a sync run
type SyncStatus string

const (
	SyncStatusRunning SyncStatus = "running"
	SyncStatusSuccess SyncStatus = "success"
	// SyncStatusPartial means some records failed
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// Counters is the counters map every named operation returns
type Counters map[string]int

// Inc adds one to name
func (c Counters) Inc(name string) {
	c[name]++
}

// Add adds n to name
func (c Counters) Add(name string, n int) {
	c[name] += n
}

// Merge adds every counter of other
func (c Counters) Merge(other Counters) {
	for k, v := range other {
		c[k] += v
	}
}

// Counter names shared by the operations
const (
	CounterCreated         = "created"
	CounterUpdated         = "updated"
	CounterFailed          = "failed"
	CounterSkipped         = "skipped"
	CounterBound           = "bound"
	CounterUnparseable     = "unparseable"
	CounterAmbiguous       = "ambiguous"
	CounterLegacyUnmatched = "legacy_unmatched"
	CounterBlockedWrites   = "protected_write_blocked"
	CounterDeleted         = "deleted"
	CounterKept            = "kept"
)

// SyncLog is the per-run outcome record
type SyncLog struct {
	ID              uuid.UUID
	TenantID        uuid.UUID
	SourceID        string
	Operation       string
	Status          SyncStatus
	Created         int
	Updated         int
	Failed          int
	Skipped         int
	Message         string
	RequestSnippet  string
	ResponseSnippet string
	StartedAt       time.Time
	FinishedAt      *time.Time
	CreatedAt       time.Time
}

// NewSyncLog starts a running log
func NewSyncLog(tenantID uuid.UUID, sourceID, operation string, now time.Time) *SyncLog {
	return &SyncLog{
		ID:        uuid.New(),
		TenantID:  tenantID,
		SourceID:  sourceID,
		Operation: operation,
		Status:    SyncStatusRunning,
		StartedAt: now,
		CreatedAt: now,
	}
}

// Finish records the counters and derives the status
func (l *SyncLog) Finish(counters Counters, message string, now time.Time) {
	l.Created = counters[CounterCreated]
	l.Updated = counters[CounterUpdated] + counters[CounterBound]
	l.Failed = counters[CounterFailed]
	l.Skipped = counters[CounterSkipped]
	l.Message = message
	l.FinishedAt = &now
	switch {
	case l.Failed == 0:
		l.Status = SyncStatusSuccess
	case l.Created+l.Updated > 0:
		l.Status = SyncStatusPartial
	default:
		l.Status = SyncStatusFailed
	}
}

// Fail marks the run as failed
func (l *SyncLog) Fail(message string, now time.Time) {
	l.Status = SyncStatusFailed
	l.Message = message
	l.FinishedAt = &now
}

// SetSnippets stores request and response excerpts, truncated to SnippetLimit characters
func (l *SyncLog) SetSnippets(request, response string) {
	l.RequestSnippet = Truncate(request, SnippetLimit)
	l.ResponseSnippet = Truncate(response, SnippetLimit)
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SyncLogRepository persists sync logs
type SyncLogRepository interface {
	Create(ctx context.Context, log *SyncLog) error
	Save(ctx context.Context, log *SyncLog) error
	// ListRecent returns the latest logs of a source, newest first
	ListRecent(ctx context.Context, sourceID string, limit int) ([]SyncLog, error)
}

// SourceStatusRepository persists per-source health
type SourceStatusRepository interface {
	Get(ctx context.Context, sourceID string) (*SourceStatus, error)
	Save(ctx context.Context, status *SourceStatus) error
}
