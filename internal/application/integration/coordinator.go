package integration

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
	"github.com/mobilsoft/edire/internal/infrastructure/telemetry"
)

// ---------------------------------------------------------------------------
// Source plans
// ---------------------------------------------------------------------------

// Stream is one (kind, direction) listing of a source
type Stream struct {
	Kind      integration.DocumentKind
	Direction integration.Direction
}

// SourcePlan describes how a source is pulled
type SourcePlan struct {
	SourceID string
	TenantID uuid.UUID
	Streams  []Stream
	// StartDate is the lower bound used when no checkpoint exists yet
	StartDate time.Time
	// IncomingWindowDays and OutgoingWindowDays size the listing sub-windows
	IncomingWindowDays int
	OutgoingWindowDays int
	Partner            PartnerResolveOptions
	Product            ProductResolveOptions
}

// Default sub-window sizes
const (
	DefaultIncomingWindowDays = 30
	DefaultOutgoingWindowDays = 90
)

func (p SourcePlan) windowDays(direction integration.Direction) int {
	if direction == integration.DirectionOutgoing {
		return cmp.Or(p.OutgoingWindowDays, DefaultOutgoingWindowDays)
	}
	return cmp.Or(p.IncomingWindowDays, DefaultIncomingWindowDays)
}

// RunLock keeps a source from running concurrently with itself
type RunLock interface {
	// Acquire returns integration.ErrSourceBusy when another run holds the source
	Acquire(ctx context.Context, sourceID string) (release func(context.Context) error, err error)
}

// RetryPolicy bounds transport retries within one scheduler tick
type RetryPolicy struct {
	// Attempts is the number of retries after the first call
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryPolicy retries three times starting at 500ms
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay * time.Duration(1<<attempt)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// CoordinatorConfig holds the run-level settings
type CoordinatorConfig struct {
	// Budget bounds one source run; zero disables the bound
	Budget time.Duration
	Retry  RetryPolicy
}

// DefaultCoordinatorConfig returns a 45s budget and the default retry policy
func DefaultCoordinatorConfig() CoordinatorConfig {
	return CoordinatorConfig{Budget: 45 * time.Second, Retry: DefaultRetryPolicy()}
}

// ---------------------------------------------------------------------------
// Coordinator
// ---------------------------------------------------------------------------

// Coordinator pulls documents from the sources and drives each one through
// resolution, routing and reconciliation as a single unit of work.
type Coordinator struct {
	registry   integration.SourceRegistry
	scope      integration.TransactionScope
	partners   *PartnerResolver
	products   *ProductResolver
	routing    *RoutingPolicy
	reconciler *LedgerReconciler
	lock       RunLock
	clock      integration.Clock
	cfg        CoordinatorConfig
	logger     *zap.Logger
	metrics    Metrics
}

// CoordinatorDeps groups the collaborators of a Coordinator
type CoordinatorDeps struct {
	Registry   integration.SourceRegistry
	Scope      integration.TransactionScope
	Partners   *PartnerResolver
	Products   *ProductResolver
	Routing    *RoutingPolicy
	Reconciler *LedgerReconciler
	// Lock is optional
	Lock    RunLock
	Clock   integration.Clock
	Logger  *zap.Logger
	Metrics Metrics
}

// NewCoordinator creates a coordinator
func NewCoordinator(deps CoordinatorDeps, cfg CoordinatorConfig) *Coordinator {
	if deps.Clock == nil {
		deps.Clock = integration.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = NoopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Coordinator{
		registry:   deps.Registry,
		scope:      deps.Scope,
		partners:   deps.Partners,
		products:   deps.Products,
		routing:    deps.Routing,
		reconciler: deps.Reconciler,
		lock:       deps.Lock,
		clock:      deps.Clock,
		cfg:        cfg,
		logger:     deps.Logger,
		metrics:    deps.Metrics,
	}
}

// Pull runs one sync.pull of a source and returns its counters.
// Document failures are counted and do not fail the run; an AuthError that
// survives a credential refresh does.
func (c *Coordinator) Pull(ctx context.Context, plan SourcePlan) (integration.Counters, error) {
	adapter, err := c.registry.Get(plan.SourceID)
	if err != nil {
		return nil, err
	}
	if c.lock != nil {
		release, err := c.lock.Acquire(ctx, plan.SourceID)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				c.logger.Warn("release source lock", zap.String("source_id", plan.SourceID), zap.Error(err))
			}
		}()
	}

	if c.cfg.Budget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Budget)
		defer cancel()
	}

	stores := c.scope.Stores()
	// Bookkeeping writes must land even when the budget expired.
	bookCtx := context.WithoutCancel(ctx)
	syncLog := integration.NewSyncLog(plan.TenantID, plan.SourceID, OperationSyncPull, c.clock.Now())
	if err := stores.SyncLogs().Create(bookCtx, syncLog); err != nil {
		return nil, fmt.Errorf("create sync log: %w", err)
	}

	counters := integration.Counters{}
	var runErr error
	for _, stream := range plan.Streams {
		if !adapter.Capabilities().Supports(stream.Kind, stream.Direction) {
			c.logger.Debug("stream not supported by source",
				zap.String("source_id", plan.SourceID),
				zap.String("kind", stream.Kind.String()),
				zap.String("direction", stream.Direction.String()),
			)
			continue
		}
		if err := c.pullStream(ctx, adapter, plan, stream, counters); err != nil {
			runErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	msg := fmt.Sprintf("%v", map[string]int(counters))
	if runErr != nil {
		syncLog.Finish(counters, runErr.Error(), c.clock.Now())
		syncLog.Fail(runErr.Error(), c.clock.Now())
		c.setSourceState(bookCtx, plan.SourceID, integration.SourceStateError, runErr.Error())
	} else {
		syncLog.Finish(counters, msg, c.clock.Now())
		c.setSourceState(bookCtx, plan.SourceID, integration.SourceStateOK, "")
	}
	if err := stores.SyncLogs().Save(bookCtx, syncLog); err != nil {
		c.logger.Warn("save sync log", zap.String("source_id", plan.SourceID), zap.Error(err))
	}

	c.logger.Info("source pull finished",
		zap.String("source_id", plan.SourceID),
		zap.Any("counters", counters),
		zap.Bool("budget_exhausted", errors.Is(ctx.Err(), context.DeadlineExceeded)),
	)
	return counters, runErr
}

// pullStream walks the sub-windows of one stream from its checkpoint to today
func (c *Coordinator) pullStream(
	ctx context.Context,
	adapter integration.SourceAdapter,
	plan SourcePlan,
	stream Stream,
	counters integration.Counters,
) error {
	key := integration.CheckpointKey{
		SourceID:  plan.SourceID,
		Kind:      stream.Kind,
		Direction: stream.Direction,
		TenantID:  plan.TenantID,
	}
	cp, err := c.scope.Stores().Checkpoints().Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	days := plan.windowDays(stream.Direction)
	today := normalize.Day(c.clock.Now())
	if cp == nil {
		start := plan.StartDate
		if start.IsZero() {
			start = today.AddDate(0, 0, -days+1)
		}
		cp = integration.NewSyncCheckpoint(key, normalize.Day(start))
	}

	for _, window := range (integration.Window{Start: normalize.Day(cp.LastFetchedDate), End: today}).Split(days) {
		if ctx.Err() != nil {
			return nil
		}
		summaries, err := c.list(ctx, adapter, window, stream)
		if err != nil {
			if integration.IsAuthError(err) {
				return err
			}
			counters.Inc(integration.CounterFailed)
			c.logger.Error("list documents failed",
				zap.String("source_id", plan.SourceID),
				zap.Time("window_start", window.Start),
				zap.Time("window_end", window.End),
				zap.Error(err),
			)
			return nil
		}

		failed := false
		for _, summary := range summaries {
			if ctx.Err() != nil {
				return nil
			}
			next, outcome, err := c.processDocument(ctx, adapter, plan, summary, cp, !failed)
			counters.Inc(outcome)
			c.metrics.DocumentProcessed(plan.SourceID, outcome)
			if err != nil {
				if outcome != integration.CounterFailed {
					counters.Inc(integration.CounterFailed)
				}
				if integration.IsAuthError(err) {
					return err
				}
				failed = true
				c.logger.Error("document failed",
					zap.String("source_id", plan.SourceID),
					zap.String("external_id", summary.ExternalID),
					zap.String("outcome", outcome),
					zap.Error(err),
				)
				continue
			}
			if next != nil {
				cp = next
			}
		}
		if failed {
			// Later windows would move the checkpoint past the failure.
			return nil
		}
	}
	return nil
}

// list collects one window, retried on transport errors, sorted by date then external id
func (c *Coordinator) list(
	ctx context.Context,
	adapter integration.SourceAdapter,
	window integration.Window,
	stream Stream,
) ([]integration.DocumentSummary, error) {
	var out []integration.DocumentSummary
	err := c.withRetry(ctx, adapter, func() error {
		out = out[:0]
		for summary, err := range adapter.ListDocuments(ctx, window, stream.Kind, stream.Direction) {
			if err != nil {
				return err
			}
			if summary.Kind == "" {
				summary.Kind = stream.Kind
			}
			if summary.Direction == "" {
				summary.Direction = stream.Direction
			}
			out = append(out, summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(out, func(a, b integration.DocumentSummary) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ExternalID, b.ExternalID)
	})
	return out, nil
}

// processDocument runs one document as a unit of work. When advance is set and the
// unit commits, the returned checkpoint has moved to the document date.
func (c *Coordinator) processDocument(
	ctx context.Context,
	adapter integration.SourceAdapter,
	plan SourcePlan,
	summary integration.DocumentSummary,
	cp *integration.SyncCheckpoint,
	advance bool,
) (*integration.SyncCheckpoint, string, error) {
	ctx, span := telemetry.StartSpan(ctx, "edire.document",
		telemetry.WithAttribute(telemetry.SpanAttrSourceID, plan.SourceID),
		telemetry.WithAttribute(telemetry.SpanAttrExternalID, summary.ExternalID),
		telemetry.WithAttribute(telemetry.SpanAttrKind, summary.Kind.String()),
	)
	defer span.End()

	outcome, err := c.process(ctx, adapter, plan, summary, cp, advance)
	telemetry.SetAttributes(span, telemetry.SpanAttrOutcome, outcome)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, outcome, err
	}
	telemetry.SetOK(span)
	if !advance {
		return nil, outcome, nil
	}
	next := *cp
	next.Advance(normalize.Day(summary.Date), summary.ExternalID, c.clock.Now())
	return &next, outcome, nil
}

func (c *Coordinator) process(
	ctx context.Context,
	adapter integration.SourceAdapter,
	plan SourcePlan,
	summary integration.DocumentSummary,
	cp *integration.SyncCheckpoint,
	advance bool,
) (string, error) {
	entity := entityKindOf(summary.Kind)
	existing, err := c.scope.Stores().Bindings().Find(ctx, plan.SourceID, summary.ExternalID, entity)
	if err != nil && !errors.Is(err, integration.ErrBindingNotFound) {
		return integration.CounterFailed, fmt.Errorf("find binding: %w", err)
	}
	if existing != nil {
		if entity == integration.EntityKindDocument {
			return integration.CounterSkipped, c.commitCheckpoint(ctx, cp, summary, advance)
		}
		if len(summary.Payload) > 0 && existing.PayloadHash == integration.PayloadHash(summary.Payload) {
			return integration.CounterSkipped, c.commitCheckpoint(ctx, cp, summary, advance)
		}
	}

	var raw []byte
	if err := c.withRetry(ctx, adapter, func() error {
		var err error
		raw, err = adapter.DownloadDocument(ctx, summary)
		return err
	}); err != nil {
		return integration.CounterFailed, err
	}

	doc, err := adapter.ParseDocument(ctx, summary, raw)
	if err != nil {
		var perr *integration.ParseError
		if !errors.As(err, &perr) {
			return integration.CounterFailed, err
		}
		return c.recordUnparseable(ctx, plan, summary, raw, perr, cp, advance)
	}
	if doc.Unbalanced {
		verr := &integration.UnbalancedVoucherError{Ref: doc.Number, Debit: sumDebit(doc), Credit: sumCredit(doc)}
		c.logger.Warn("unbalanced voucher skipped",
			zap.String("source_id", plan.SourceID),
			zap.String("ref", doc.Number),
			zap.Error(verr),
		)
		return integration.CounterFailed, c.commitCheckpoint(ctx, cp, summary, advance)
	}

	rc := integration.NewRunContext(plan.TenantID, plan.SourceID, c.clock, nil)
	var outcome string
	// A started unit commits even when the run budget expires meanwhile.
	err = c.scope.Execute(context.WithoutCancel(ctx), func(ctx context.Context, tx integration.Stores) error {
		trc := rc.WithTx(tx)
		var err error
		switch entity {
		case integration.EntityKindProduct:
			outcome, err = c.applyProduct(ctx, trc, plan, doc, existing)
		case integration.EntityKindPartner:
			outcome, err = c.applyPartner(ctx, trc, plan, doc, existing)
		default:
			outcome, err = c.applyDocument(ctx, trc, plan, doc)
		}
		if err != nil {
			return err
		}
		return c.advanceIn(ctx, tx, cp, summary, advance)
	})
	if err != nil {
		if integration.IsAmbiguity(err) {
			c.logger.Warn("ambiguous document skipped",
				zap.String("source_id", plan.SourceID),
				zap.String("external_id", summary.ExternalID),
				zap.Error(err),
			)
			return integration.CounterAmbiguous, err
		}
		return integration.CounterFailed, err
	}
	return outcome, nil
}

// applyDocument resolves, routes and reconciles a ledger-bearing document and binds it
func (c *Coordinator) applyDocument(
	ctx context.Context,
	rc integration.RunContext,
	plan SourcePlan,
	doc *integration.ExternalDocument,
) (string, error) {
	var entryID, partnerID *uuid.UUID
	outcome := integration.CounterBound
	tenantID := rc.TenantID

	if doc.Kind.IsLedgerDocument() {
		decision := integration.RoutingDecision{Target: integration.TenantPrimary, Reason: integration.RouteReasonDisabled}
		if c.routing != nil && doc.Kind == integration.DocumentKindInvoice {
			var known *integration.Partner
			if !doc.Counterparty.IsEmpty() {
				m, err := c.partners.Match(ctx, rc, doc.Counterparty)
				if err != nil {
					return "", fmt.Errorf("match counterparty: %w", err)
				}
				known = m.Partner
			}
			var err error
			decision, err = c.routing.Decide(ctx, rc.Tx.Ledger(), known, doc)
			if err != nil {
				return "", fmt.Errorf("route document: %w", err)
			}
			tenantID = c.routing.TenantFor(decision, rc.TenantID)
		}
		trc := rc.WithTenant(tenantID)

		var partner *integration.Partner
		if !doc.Counterparty.IsEmpty() {
			opts := plan.Partner
			opts.AsSupplier = doc.Direction == integration.DirectionIncoming
			opts.AsCustomer = doc.Direction == integration.DirectionOutgoing
			res, err := c.partners.Resolve(ctx, trc, doc.Counterparty, opts)
			if err != nil {
				return "", fmt.Errorf("resolve counterparty: %w", err)
			}
			partner = res.Partner
		}

		linePartners, err := c.resolveLinePartners(ctx, trc, plan, doc)
		if err != nil {
			return "", err
		}

		res, err := c.reconciler.Reconcile(ctx, trc, ReconcileInput{
			Doc:          doc,
			Partner:      partner,
			Decision:     decision,
			TargetTenant: tenantID,
			LinePartners: linePartners,
			ProductOpts:  plan.Product,
		})
		if err != nil {
			return "", err
		}
		entryID = res.EntryID
		partnerID = partnerIDOf(partner)
		if partnerID == nil && res.InferredPartnerID != nil {
			partnerID = res.InferredPartnerID
			c.logger.Info("counterparty inferred from entry lines",
				zap.String("source_id", rc.SourceID),
				zap.String("external_id", doc.ExternalID),
				zap.String("partner_id", partnerID.String()),
			)
		}
		switch {
		case res.Strategy == StrategyLegacyUnmatched:
			outcome = integration.CounterLegacyUnmatched
		case res.Created:
			outcome = integration.CounterCreated
		}
	}

	binding, err := integration.NewBinding(tenantID, rc.SourceID, doc.ExternalID, integration.EntityKindDocument, entryID, rc.Now())
	if err != nil {
		return "", err
	}
	date := doc.Date
	binding.DocumentDate = &date
	binding.PartnerID = partnerID
	binding.AttachSnapshot(doc.Raw, doc.PayloadHash)
	if err := rc.Tx.Bindings().Create(ctx, binding); err != nil {
		return "", fmt.Errorf("create binding: %w", err)
	}
	return outcome, nil
}

// resolveLinePartners resolves the per-line partner names of a voucher
func (c *Coordinator) resolveLinePartners(
	ctx context.Context,
	rc integration.RunContext,
	plan SourcePlan,
	doc *integration.ExternalDocument,
) (map[string]uuid.UUID, error) {
	if doc.Kind != integration.DocumentKindLedgerLine {
		return nil, nil
	}
	out := make(map[string]uuid.UUID)
	for _, line := range doc.Lines {
		if line.PartnerName == "" {
			continue
		}
		if _, ok := out[line.PartnerName]; ok {
			continue
		}
		res, err := c.partners.Resolve(ctx, rc, integration.PartnerCandidate{Name: line.PartnerName}, plan.Partner)
		if err != nil {
			return nil, fmt.Errorf("resolve line partner %q: %w", line.PartnerName, err)
		}
		if id := res.PartnerID(); id != nil {
			out[line.PartnerName] = *id
		}
	}
	return out, nil
}

func (c *Coordinator) applyProduct(
	ctx context.Context,
	rc integration.RunContext,
	plan SourcePlan,
	doc *integration.ExternalDocument,
	existing *integration.Binding,
) (string, error) {
	if doc.Product == nil {
		return "", integration.NewParseError(rc.SourceID, doc.ExternalID, doc.Raw, integration.ErrInvalidDocument)
	}
	res, err := c.products.Resolve(ctx, rc, *doc.Product, plan.Product)
	if err != nil {
		return "", err
	}
	outcome := integration.CounterSkipped
	switch {
	case res.Created:
		outcome = integration.CounterCreated
	case res.Updated:
		outcome = integration.CounterUpdated
	}
	return outcome, c.bindEntity(ctx, rc, doc, integration.EntityKindProduct, res.TemplateID, existing)
}

func (c *Coordinator) applyPartner(
	ctx context.Context,
	rc integration.RunContext,
	plan SourcePlan,
	doc *integration.ExternalDocument,
	existing *integration.Binding,
) (string, error) {
	res, err := c.partners.Resolve(ctx, rc, doc.Counterparty, plan.Partner)
	if err != nil {
		return "", err
	}
	outcome := integration.CounterSkipped
	switch res.MatchType {
	case PartnerMatchNew, PartnerMatchBranch:
		outcome = integration.CounterCreated
	case PartnerMatchExact, PartnerMatchSimilar:
		outcome = integration.CounterUpdated
	}
	return outcome, c.bindEntity(ctx, rc, doc, integration.EntityKindPartner, res.PartnerID(), existing)
}

// bindEntity creates or refreshes the binding of a partner or product record
func (c *Coordinator) bindEntity(
	ctx context.Context,
	rc integration.RunContext,
	doc *integration.ExternalDocument,
	kind integration.EntityKind,
	internalID *uuid.UUID,
	existing *integration.Binding,
) error {
	now := rc.Now()
	if existing != nil {
		existing.Touch(doc.Raw, doc.PayloadHash, now)
		if internalID != nil && existing.InternalID == nil {
			if err := existing.Link(*internalID, now); err != nil {
				return err
			}
		}
		return rc.Tx.Bindings().Save(ctx, existing)
	}
	if internalID == nil {
		// Skipped records stay unbound so a later run with create rights picks them up.
		return nil
	}
	binding, err := integration.NewBinding(rc.TenantID, rc.SourceID, doc.ExternalID, kind, internalID, now)
	if err != nil {
		return err
	}
	binding.AttachSnapshot(doc.Raw, doc.PayloadHash)
	if err := rc.Tx.Bindings().Create(ctx, binding); err != nil {
		return fmt.Errorf("create binding: %w", err)
	}
	return nil
}

func (c *Coordinator) recordUnparseable(
	ctx context.Context,
	plan SourcePlan,
	summary integration.DocumentSummary,
	raw []byte,
	perr *integration.ParseError,
	cp *integration.SyncCheckpoint,
	advance bool,
) (string, error) {
	c.logger.Warn("unparseable document",
		zap.String("source_id", plan.SourceID),
		zap.String("external_id", summary.ExternalID),
		zap.ByteString("payload", perr.Snippet),
		zap.Error(perr),
	)
	err := c.scope.Execute(context.WithoutCancel(ctx), func(ctx context.Context, tx integration.Stores) error {
		placeholder, err := integration.NewPlaceholderBinding(plan.TenantID, plan.SourceID, summary.ExternalID, perr.Snippet, c.clock.Now())
		if err != nil {
			return err
		}
		if !summary.Date.IsZero() {
			date := summary.Date
			placeholder.DocumentDate = &date
		}
		placeholder.PayloadHash = integration.PayloadHash(raw)
		if err := tx.Bindings().Create(ctx, placeholder); err != nil && !errors.Is(err, integration.ErrBindingConflict) {
			return err
		}
		return c.advanceIn(ctx, tx, cp, summary, advance)
	})
	if err != nil {
		return integration.CounterFailed, err
	}
	return integration.CounterUnparseable, nil
}

// commitCheckpoint advances the checkpoint outside a document unit
func (c *Coordinator) commitCheckpoint(ctx context.Context, cp *integration.SyncCheckpoint, summary integration.DocumentSummary, advance bool) error {
	return c.advanceIn(ctx, c.scope.Stores(), cp, summary, advance)
}

func (c *Coordinator) advanceIn(ctx context.Context, stores integration.Stores, cp *integration.SyncCheckpoint, summary integration.DocumentSummary, advance bool) error {
	if !advance {
		return nil
	}
	next := *cp
	if !next.Advance(normalize.Day(summary.Date), summary.ExternalID, c.clock.Now()) {
		return nil
	}
	if err := stores.Checkpoints().Save(ctx, &next); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (c *Coordinator) setSourceState(ctx context.Context, sourceID string, state integration.SourceState, message string) {
	status := &integration.SourceStatus{
		SourceID:  sourceID,
		State:     state,
		LastError: integration.Truncate(message, integration.SnippetLimit),
		UpdatedAt: c.clock.Now(),
	}
	if err := c.scope.Stores().SourceStatuses().Save(ctx, status); err != nil {
		c.logger.Warn("save source state", zap.String("source_id", sourceID), zap.Error(err))
	}
}

// withRetry retries transport errors with exponential back-off and refreshes
// credentials once on an auth error.
func (c *Coordinator) withRetry(ctx context.Context, adapter integration.SourceAdapter, op func() error) error {
	refreshed := false
	attempt := 0
	for {
		err := op()
		switch {
		case err == nil:
			return nil
		case integration.IsAuthError(err):
			reauth, ok := adapter.(integration.Reauthenticator)
			if refreshed || !ok {
				return err
			}
			refreshed = true
			if rerr := reauth.RefreshAuth(ctx); rerr != nil {
				return &integration.AuthError{SourceID: adapter.SourceID(), Err: rerr}
			}
			c.logger.Info("credentials refreshed", zap.String("source_id", adapter.SourceID()))
		case integration.IsTransportError(err):
			if attempt >= c.cfg.Retry.Attempts {
				return err
			}
			delay := c.cfg.Retry.delay(attempt)
			attempt++
			c.logger.Warn("transport error, retrying",
				zap.String("source_id", adapter.SourceID()),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
		default:
			return err
		}
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func entityKindOf(kind integration.DocumentKind) integration.EntityKind {
	switch kind {
	case integration.DocumentKindProduct:
		return integration.EntityKindProduct
	case integration.DocumentKindPartner:
		return integration.EntityKindPartner
	default:
		return integration.EntityKindDocument
	}
}

func sumDebit(doc *integration.ExternalDocument) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range doc.Lines {
		sum = sum.Add(l.Debit)
	}
	return sum
}

func sumCredit(doc *integration.ExternalDocument) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range doc.Lines {
		sum = sum.Add(l.Credit)
	}
	return sum
}
