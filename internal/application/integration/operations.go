package integration

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// Named operations hosts invoke through the scheduler or the admin surface
const (
	OperationSyncPull      = "sync.pull"
	OperationSyncReconcile = "sync.reconcile"
	OperationEnrich        = "partners.enrich_from_external"
	OperationBulkMatch     = "partners.bulk_match"
	OperationCleanupDrafts = "legacy.cleanup_drafts"
)

// ErrUnknownOperation is returned for an operation name outside the table
var ErrUnknownOperation = errors.New("integration: unknown operation")

// ErrInvalidArgument is returned when an operation argument cannot be parsed
var ErrInvalidArgument = errors.New("integration: invalid operation argument")

// PartnerListingDays is how far back partner listings reach
const PartnerListingDays = 3650

// PlanProvider returns the pull plan of a configured source
type PlanProvider interface {
	Plan(sourceID string) (SourcePlan, error)
	SourceIDs() []string
}

// StaticPlans is a PlanProvider over a fixed set of plans
type StaticPlans map[string]SourcePlan

// Plan returns the plan of sourceID
func (p StaticPlans) Plan(sourceID string) (SourcePlan, error) {
	plan, ok := p[sourceID]
	if !ok {
		return SourcePlan{}, fmt.Errorf("%w: %s", integration.ErrSourceNotFound, sourceID)
	}
	return plan, nil
}

// SourceIDs returns the configured source ids in order
func (p StaticPlans) SourceIDs() []string {
	ids := make([]string, 0, len(p))
	for id := range p {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

type operationFunc func(ctx context.Context, arg string) (integration.Counters, error)

// Operations dispatches the named operations by table lookup
type Operations struct {
	coordinator *Coordinator
	plans       PlanProvider
	table       map[string]operationFunc
}

// NewOperations creates the operation table
func NewOperations(coordinator *Coordinator, plans PlanProvider) *Operations {
	o := &Operations{coordinator: coordinator, plans: plans}
	o.table = map[string]operationFunc{
		OperationSyncPull:      o.syncPull,
		OperationSyncReconcile: o.syncReconcile,
		OperationEnrich:        o.enrichPartners,
		OperationBulkMatch:     o.bulkMatch,
		OperationCleanupDrafts: o.cleanupDrafts,
	}
	return o
}

// Names returns the supported operation names
func (o *Operations) Names() []string {
	names := make([]string, 0, len(o.table))
	for name := range o.table {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Plans returns the plan provider
func (o *Operations) Plans() PlanProvider {
	return o.plans
}

// Run executes operation with its single argument (a source id or a year)
func (o *Operations) Run(ctx context.Context, operation, arg string) (integration.Counters, error) {
	fn, ok := o.table[operation]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, operation)
	}
	return fn(ctx, arg)
}

func (o *Operations) syncPull(ctx context.Context, sourceID string) (integration.Counters, error) {
	plan, err := o.plans.Plan(sourceID)
	if err != nil {
		return nil, err
	}
	return o.coordinator.Pull(ctx, plan)
}

// syncReconcile revisits draft document bindings and links the ones whose ledger
// entry can now be found.
func (o *Operations) syncReconcile(ctx context.Context, sourceID string) (integration.Counters, error) {
	plan, err := o.plans.Plan(sourceID)
	if err != nil {
		return nil, err
	}
	c := o.coordinator
	adapter, err := c.registry.Get(plan.SourceID)
	if err != nil {
		return nil, err
	}
	drafts, err := c.scope.Stores().Bindings().List(ctx, integration.BindingFilter{
		SourceID:   plan.SourceID,
		EntityKind: integration.EntityKindDocument,
		State:      integration.BindingStateDraft,
	})
	if err != nil {
		return nil, fmt.Errorf("list draft bindings: %w", err)
	}

	counters := integration.Counters{}
	for i := range drafts {
		b := &drafts[i]
		if len(b.PayloadSnapshot) == 0 {
			counters.Inc(integration.CounterKept)
			continue
		}
		summary := integration.DocumentSummary{ExternalID: b.ExternalID}
		if b.DocumentDate != nil {
			summary.Date = *b.DocumentDate
		}
		doc, err := adapter.ParseDocument(ctx, summary, b.PayloadSnapshot)
		if err != nil {
			counters.Inc(integration.CounterFailed)
			c.logger.Warn("draft binding snapshot unparseable",
				zap.String("source_id", plan.SourceID),
				zap.String("external_id", b.ExternalID),
				zap.Error(err),
			)
			continue
		}
		if !doc.Kind.IsLedgerDocument() {
			counters.Inc(integration.CounterKept)
			continue
		}

		linked := false
		err = c.scope.Execute(ctx, func(ctx context.Context, tx integration.Stores) error {
			rc := integration.NewRunContext(b.TenantID, plan.SourceID, c.clock, tx)
			var partner *integration.Partner
			if !doc.Counterparty.IsEmpty() {
				m, err := c.partners.Match(ctx, rc, doc.Counterparty)
				if err != nil {
					return err
				}
				partner = m.Partner
			}
			res, err := c.reconciler.Match(ctx, rc, ReconcileInput{Doc: doc, Partner: partner, TargetTenant: b.TenantID})
			if err != nil {
				return err
			}
			if res.EntryID == nil {
				return nil
			}
			if err := b.Link(*res.EntryID, rc.Now()); err != nil {
				return err
			}
			linked = true
			return tx.Bindings().Save(ctx, b)
		})
		switch {
		case err != nil:
			counters.Inc(integration.CounterFailed)
			c.logger.Warn("reconcile draft binding failed",
				zap.String("source_id", plan.SourceID),
				zap.String("external_id", b.ExternalID),
				zap.Error(err),
			)
		case linked:
			counters.Inc(integration.CounterBound)
		default:
			counters.Inc(integration.CounterKept)
		}
	}
	o.writeLog(ctx, plan, OperationSyncReconcile, counters)
	return counters, nil
}

// enrichPartners fills empty fields of existing partners from the source's partner feed
func (o *Operations) enrichPartners(ctx context.Context, sourceID string) (integration.Counters, error) {
	return o.walkPartners(ctx, sourceID, OperationEnrich, func(ctx context.Context, rc integration.RunContext, plan SourcePlan, cand integration.PartnerCandidate) (*PartnerResolution, error) {
		opts := plan.Partner
		opts.CanCreate = false
		return o.coordinator.partners.Resolve(ctx, rc, cand, opts)
	})
}

// bulkMatch binds listed partners to existing records without writing partner fields
func (o *Operations) bulkMatch(ctx context.Context, sourceID string) (integration.Counters, error) {
	return o.walkPartners(ctx, sourceID, OperationBulkMatch, func(ctx context.Context, rc integration.RunContext, _ SourcePlan, cand integration.PartnerCandidate) (*PartnerResolution, error) {
		res, err := o.coordinator.partners.Match(ctx, rc, cand)
		if err != nil {
			return nil, err
		}
		if res.Partner == nil {
			res.MatchType = PartnerMatchSkipped
		}
		return res, nil
	})
}

type partnerStep func(ctx context.Context, rc integration.RunContext, plan SourcePlan, cand integration.PartnerCandidate) (*PartnerResolution, error)

func (o *Operations) walkPartners(ctx context.Context, sourceID, operation string, step partnerStep) (integration.Counters, error) {
	plan, err := o.plans.Plan(sourceID)
	if err != nil {
		return nil, err
	}
	c := o.coordinator
	adapter, err := c.registry.Get(plan.SourceID)
	if err != nil {
		return nil, err
	}
	if !adapter.Capabilities().Has(integration.CapabilityPartners) {
		return nil, fmt.Errorf("%w: %s cannot list partners", integration.ErrCapabilityNotSupported, plan.SourceID)
	}

	today := normalize.Day(c.clock.Now())
	window := integration.Window{Start: today.AddDate(0, 0, -PartnerListingDays), End: today}
	summaries, err := c.list(ctx, adapter, window, Stream{Kind: integration.DocumentKindPartner, Direction: integration.DirectionIncoming})
	if err != nil {
		return nil, err
	}

	counters := integration.Counters{}
	for _, summary := range summaries {
		var outcome string
		raw, err := adapter.DownloadDocument(ctx, summary)
		if err == nil {
			var doc *integration.ExternalDocument
			doc, err = adapter.ParseDocument(ctx, summary, raw)
			if err == nil {
				err = c.scope.Execute(ctx, func(ctx context.Context, tx integration.Stores) error {
					rc := integration.NewRunContext(plan.TenantID, plan.SourceID, c.clock, tx)
					res, err := step(ctx, rc, plan, doc.Counterparty)
					if err != nil {
						return err
					}
					switch {
					case res.Partner == nil:
						outcome = integration.CounterSkipped
						return nil
					case len(res.Fill) > 0:
						outcome = integration.CounterUpdated
					default:
						outcome = integration.CounterBound
					}
					existing, err := tx.Bindings().Find(ctx, plan.SourceID, doc.ExternalID, integration.EntityKindPartner)
					if err != nil && !errors.Is(err, integration.ErrBindingNotFound) {
						return err
					}
					return c.bindEntity(ctx, rc, doc, integration.EntityKindPartner, res.PartnerID(), existing)
				})
			}
		}
		if err != nil {
			counters.Inc(integration.CounterFailed)
			c.logger.Warn("partner record failed",
				zap.String("source_id", plan.SourceID),
				zap.String("operation", operation),
				zap.String("external_id", summary.ExternalID),
				zap.Error(err),
			)
			continue
		}
		counters.Inc(outcome)
	}
	o.writeLog(ctx, plan, operation, counters)
	return counters, nil
}

// cleanupDrafts removes unposted ledger entries EDIRE created in year, keeping posted ones
func (o *Operations) cleanupDrafts(ctx context.Context, arg string) (integration.Counters, error) {
	year, err := strconv.Atoi(arg)
	if err != nil || year < 1900 || year > 9999 {
		return nil, fmt.Errorf("%w: year %q", ErrInvalidArgument, arg)
	}
	c := o.coordinator
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)
	bindings, err := c.scope.Stores().Bindings().List(ctx, integration.BindingFilter{
		EntityKind:   integration.EntityKindDocument,
		DocumentFrom: &from,
		DocumentTo:   &to,
	})
	if err != nil {
		return nil, fmt.Errorf("list bindings: %w", err)
	}

	counters := integration.Counters{integration.CounterDeleted: 0, integration.CounterKept: 0}
	seen := make(map[uuid.UUID]bool)
	for _, b := range bindings {
		if b.InternalID == nil || seen[*b.InternalID] {
			continue
		}
		entryID := *b.InternalID
		seen[entryID] = true
		deleted := false
		err := c.scope.Execute(ctx, func(ctx context.Context, tx integration.Stores) error {
			entry, err := tx.Ledger().GetEntry(ctx, entryID)
			if err != nil {
				if isNotFound(err) {
					return nil
				}
				return err
			}
			if entry.Posted || entry.SourceID == "" || entry.SourceID != b.SourceID {
				return nil
			}
			if err := tx.Ledger().DeleteDraftEntry(ctx, entryID); err != nil {
				return err
			}
			linked, err := tx.Bindings().FindByInternalID(ctx, integration.EntityKindDocument, entryID)
			if err != nil {
				return err
			}
			for _, l := range linked {
				if err := tx.Bindings().Delete(ctx, l.ID); err != nil {
					return err
				}
			}
			deleted = true
			return nil
		})
		switch {
		case err != nil:
			counters.Inc(integration.CounterFailed)
			c.logger.Warn("cleanup draft entry failed", zap.String("entry_id", entryID.String()), zap.Error(err))
		case deleted:
			counters.Inc(integration.CounterDeleted)
		default:
			counters.Inc(integration.CounterKept)
		}
	}
	c.logger.Info("legacy drafts cleaned",
		zap.Int("year", year),
		zap.Int("deleted", counters[integration.CounterDeleted]),
		zap.Int("kept", counters[integration.CounterKept]),
	)
	return counters, nil
}

func (o *Operations) writeLog(ctx context.Context, plan SourcePlan, operation string, counters integration.Counters) {
	c := o.coordinator
	l := integration.NewSyncLog(plan.TenantID, plan.SourceID, operation, c.clock.Now())
	l.Finish(counters, fmt.Sprintf("%v", map[string]int(counters)), c.clock.Now())
	if err := c.scope.Stores().SyncLogs().Create(ctx, l); err != nil {
		c.logger.Warn("write sync log", zap.String("operation", operation), zap.Error(err))
	}
}
