package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts the wall clock
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now in UTC
type SystemClock struct{}

// Now returns the current UTC time
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant
type FixedClock struct{ T time.Time }

// Now returns the fixed instant
func (c FixedClock) Now() time.Time { return c.T }

// Stores gives access to every store a unit of work writes through.
// All stores returned by one Stores value share the same transaction.
type Stores interface {
	Bindings() BindingRepository
	Checkpoints() CheckpointRepository
	SyncLogs() SyncLogRepository
	SourceStatuses() SourceStatusRepository
	Partners() PartnerService
	Products() ProductService
	Ledger() LedgerService
}

// TransactionScope runs units of work atomically
type TransactionScope interface {
	// Execute runs fn within a database transaction.
	// If fn returns an error, every write made through its Stores is rolled back.
	Execute(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error

	// Stores returns non-transactional stores for reads outside a unit of work
	Stores() Stores
}

// RunContext is the explicit scope threaded through every call of a run
type RunContext struct {
	TenantID uuid.UUID
	SourceID string
	// SyncSource tags writes as integration-originated for the protected-field guard
	SyncSource string
	Clock      Clock
	// Tx is the transactional handle of the current unit of work
	Tx Stores
}

// NewRunContext builds a run context tagged with the source id
func NewRunContext(tenantID uuid.UUID, sourceID string, clock Clock, tx Stores) RunContext {
	if clock == nil {
		clock = SystemClock{}
	}
	return RunContext{
		TenantID:   tenantID,
		SourceID:   sourceID,
		SyncSource: sourceID,
		Clock:      clock,
		Tx:         tx,
	}
}

// WithTx returns a copy bound to another transactional handle
func (rc RunContext) WithTx(tx Stores) RunContext {
	rc.Tx = tx
	return rc
}

// WithTenant returns a copy scoped to another tenant
func (rc RunContext) WithTenant(tenantID uuid.UUID) RunContext {
	rc.TenantID = tenantID
	return rc
}

// Now reads the run clock
func (rc RunContext) Now() time.Time {
	if rc.Clock == nil {
		return time.Now().UTC()
	}
	return rc.Clock.Now()
}

// Context attaches the sync source tag to ctx
func (rc RunContext) Context(ctx context.Context) context.Context {
	if rc.SyncSource == "" {
		return ctx
	}
	return WithSyncSource(ctx, rc.SyncSource)
}

type syncSourceKey struct{}

// WithSyncSource tags ctx as carrying writes from an integration path
func WithSyncSource(ctx context.Context, sourceID string) context.Context {
	return context.WithValue(ctx, syncSourceKey{}, sourceID)
}

// SyncSourceFromContext returns the sync source tag, "" for non-integration calls
func SyncSourceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(syncSourceKey{}).(string); ok {
		return v
	}
	return ""
}
