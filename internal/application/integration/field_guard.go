package integration

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

// ProtectedPartnerFields are the fields of a tenant's own partner record that no
// integration path may write.
var ProtectedPartnerFields = []string{
	integration.PartnerFieldName,
	integration.PartnerFieldStreet,
	integration.PartnerFieldStreet2,
	integration.PartnerFieldCity,
	integration.PartnerFieldZip,
	integration.PartnerFieldCountry,
	integration.PartnerFieldState,
	integration.PartnerFieldPhone,
	integration.PartnerFieldMobile,
	integration.PartnerFieldEmail,
	integration.PartnerFieldWebsite,
	integration.PartnerFieldTaxID,
	integration.PartnerFieldComment,
	integration.PartnerFieldImage,
}

// FilterProtectedWrites splits values into the writes allowed on a partner and the
// protected field names that were dropped. Nothing is dropped unless the partner is
// tenant-owned and the call carries a sync source tag.
func FilterProtectedWrites(values integration.PartnerValues, tenantOwned bool, syncSource string) (integration.PartnerValues, []string) {
	if !tenantOwned || syncSource == "" {
		return values, nil
	}
	allowed := make(integration.PartnerValues, len(values))
	var blocked []string
	for field, v := range values {
		if slices.Contains(ProtectedPartnerFields, field) {
			blocked = append(blocked, field)
			continue
		}
		allowed[field] = v
	}
	slices.Sort(blocked)
	return allowed, blocked
}

// ProtectedFieldGuard applies FilterProtectedWrites at the boundary of every
// partner mutation made through a wrapped PartnerService.
type ProtectedFieldGuard struct {
	ownPartners map[uuid.UUID]struct{}
	logger      *zap.Logger
	metrics     Metrics
	blocked     atomic.Int64
}

// NewProtectedFieldGuard guards the given tenant-owned partner ids
func NewProtectedFieldGuard(ownPartnerIDs []uuid.UUID, logger *zap.Logger, metrics Metrics) *ProtectedFieldGuard {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	own := make(map[uuid.UUID]struct{}, len(ownPartnerIDs))
	for _, id := range ownPartnerIDs {
		if id != uuid.Nil {
			own[id] = struct{}{}
		}
	}
	return &ProtectedFieldGuard{ownPartners: own, logger: logger, metrics: metrics}
}

// IsTenantOwned reports whether id is one of the tenants' own partner records
func (g *ProtectedFieldGuard) IsTenantOwned(id uuid.UUID) bool {
	_, ok := g.ownPartners[id]
	return ok
}

// BlockedCount returns how many field writes were dropped since start-up
func (g *ProtectedFieldGuard) BlockedCount() int64 {
	return g.blocked.Load()
}

// Filter runs the guard for one mutation and reports blocked writes
func (g *ProtectedFieldGuard) Filter(ctx context.Context, partnerID uuid.UUID, values integration.PartnerValues) integration.PartnerValues {
	source := integration.SyncSourceFromContext(ctx)
	allowed, blocked := FilterProtectedWrites(values, g.IsTenantOwned(partnerID), source)
	if len(blocked) > 0 {
		g.blocked.Add(int64(len(blocked)))
		g.metrics.ProtectedWriteBlocked(source, len(blocked))
		g.logger.Warn("protected partner fields dropped",
			zap.String("source_id", source),
			zap.String("partner_id", partnerID.String()),
			zap.Strings("fields", blocked),
		)
	}
	return allowed
}

// Wrap returns a PartnerService whose updates pass through the guard
func (g *ProtectedFieldGuard) Wrap(inner integration.PartnerService) integration.PartnerService {
	return &guardedPartnerService{PartnerService: inner, guard: g}
}

type guardedPartnerService struct {
	integration.PartnerService
	guard *ProtectedFieldGuard
}

func (s *guardedPartnerService) Update(ctx context.Context, id uuid.UUID, values integration.PartnerValues) error {
	allowed := s.guard.Filter(ctx, id, values)
	if len(allowed) == 0 {
		return nil
	}
	return s.PartnerService.Update(ctx, id, allowed)
}

var _ integration.PartnerService = (*guardedPartnerService)(nil)
