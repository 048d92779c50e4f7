package integration

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// ReconcileStrategy names the reconciler step that produced a result
type ReconcileStrategy string

const (
	StrategyLineNumber      ReconcileStrategy = "line_number"
	StrategyHeaderRef       ReconcileStrategy = "header_ref"
	StrategyPartnerAmount   ReconcileStrategy = "partner_date_amount"
	StrategyAmountOnly      ReconcileStrategy = "date_amount"
	StrategyLegacyUnmatched ReconcileStrategy = "legacy-unmatched"
	StrategyCreated         ReconcileStrategy = "created"
	StrategySaleOrder       ReconcileStrategy = "sale_order"
	StrategyNone            ReconcileStrategy = "none"
)

// ReconcilerConfig holds the reconciliation settings
type ReconcilerConfig struct {
	// LegacyCutoffYear: documents of this year or earlier never create invoices
	LegacyCutoffYear int
	// NumberWindowDays bounds strategies 1 and 2
	NumberWindowDays int
	// AmountWindowDays bounds strategies 3 and 4
	AmountWindowDays int
	// CurrencyRounding is the smallest currency unit
	CurrencyRounding decimal.Decimal
	// ExpandVATVariants widens strategy 3 to other partners sharing the tax id forms
	ExpandVATVariants bool
}

// DefaultReconcilerConfig returns cutoff 2025, ±7 / ±3 days and 0.01 rounding
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		LegacyCutoffYear:  2025,
		NumberWindowDays:  7,
		AmountWindowDays:  3,
		CurrencyRounding:  decimal.RequireFromString("0.01"),
		ExpandVATVariants: true,
	}
}

// AmountTolerance is max(2 × rounding, 0.02)
func (c ReconcilerConfig) AmountTolerance() decimal.Decimal {
	return decimal.Max(c.CurrencyRounding.Mul(decimal.NewFromInt(2)), decimal.RequireFromString("0.02"))
}

// BalanceTolerance is 2 × rounding, used for voucher balance checks
func (c ReconcilerConfig) BalanceTolerance() decimal.Decimal {
	return c.CurrencyRounding.Mul(decimal.NewFromInt(2))
}

// ReconcileResult is the outcome for one document
type ReconcileResult struct {
	// EntryID is the matched or created record; nil for legacy-unmatched
	EntryID  *uuid.UUID
	Strategy ReconcileStrategy
	// InferredPartnerID is set by strategy 4
	InferredPartnerID *uuid.UUID
	Created           bool
}

// ReconcileInput carries what the reconciler needs besides the document
type ReconcileInput struct {
	Doc      *integration.ExternalDocument
	Partner  *integration.Partner
	Decision integration.RoutingDecision
	// TargetTenant is the tenant routing picked
	TargetTenant uuid.UUID
	// LinePartners maps spreadsheet line partner names to resolved ids
	LinePartners map[string]uuid.UUID
	// ProductOpts controls product resolution of document lines
	ProductOpts ProductResolveOptions
}

// LedgerReconciler binds external documents to ledger entries, creating entries
// only outside the legacy era.
type LedgerReconciler struct {
	cfg      ReconcilerConfig
	products *ProductResolver
	logger   *zap.Logger
	metrics  Metrics
}

// NewLedgerReconciler creates a reconciler
func NewLedgerReconciler(cfg ReconcilerConfig, products *ProductResolver, logger *zap.Logger, metrics Metrics) *LedgerReconciler {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &LedgerReconciler{cfg: cfg, products: products, logger: logger, metrics: metrics}
}

// Config returns the reconciler settings
func (r *LedgerReconciler) Config() ReconcilerConfig {
	return r.cfg
}

// Match runs strategies 1 to 5 without writing. A nil EntryID with
// StrategyNone means the caller may create.
func (r *LedgerReconciler) Match(ctx context.Context, rc integration.RunContext, in ReconcileInput) (*ReconcileResult, error) {
	doc := in.Doc
	ledger := rc.Tx.Ledger()
	tenantID := in.TargetTenant
	if tenantID == uuid.Nil {
		tenantID = rc.TenantID
	}
	numberSearch := integration.EntrySearch{
		TenantID: tenantID,
		From:     doc.Date.AddDate(0, 0, -r.cfg.NumberWindowDays),
		To:       doc.Date.AddDate(0, 0, r.cfg.NumberWindowDays),
	}
	needles := documentNeedles(doc)

	// 1. Document number or external id in ledger lines
	if len(needles) > 0 {
		found, err := ledger.FindByLineText(ctx, numberSearch, needles)
		if err != nil {
			return nil, fmt.Errorf("find entries by line text: %w", err)
		}
		if e := closestEntry(found, doc); e != nil {
			return matched(e, StrategyLineNumber), nil
		}

		// 2. Same number on the entry header
		found, err = ledger.FindByHeaderText(ctx, numberSearch, needles)
		if err != nil {
			return nil, fmt.Errorf("find entries by header text: %w", err)
		}
		if e := closestEntry(found, doc); e != nil {
			return matched(e, StrategyHeaderRef), nil
		}
	}

	amount := documentAmount(doc)
	amountSearch := integration.EntrySearch{
		TenantID: tenantID,
		From:     doc.Date.AddDate(0, 0, -r.cfg.AmountWindowDays),
		To:       doc.Date.AddDate(0, 0, r.cfg.AmountWindowDays),
	}

	// 3. Counterparty + date + amount
	if in.Partner != nil && !amount.IsZero() {
		partnerIDs, err := r.partnerIDs(ctx, rc, tenantID, in.Partner)
		if err != nil {
			return nil, err
		}
		found, err := ledger.FindByPartners(ctx, amountSearch, partnerIDs)
		if err != nil {
			return nil, fmt.Errorf("find entries by partner: %w", err)
		}
		if e := closestEntry(r.withAmount(found, amount), doc); e != nil {
			return matched(e, StrategyPartnerAmount), nil
		}
	}

	// 4. Date + amount, unique
	if !amount.IsZero() {
		found, err := ledger.FindByDate(ctx, amountSearch)
		if err != nil {
			return nil, fmt.Errorf("find entries by date: %w", err)
		}
		hits := r.withAmount(found, amount)
		switch len(hits) {
		case 0:
		case 1:
			res := matched(&hits[0], StrategyAmountOnly)
			res.InferredPartnerID = inferPartner(&hits[0])
			return res, nil
		default:
			ids := make([]uuid.UUID, len(hits))
			for i := range hits {
				ids[i] = hits[i].ID
			}
			slices.SortFunc(ids, func(a, b uuid.UUID) int { return bytes.Compare(a[:], b[:]) })
			r.metrics.Ambiguous(rc.SourceID, "ledger_entry")
			return nil, &integration.AmbiguityError{Entity: "ledger_entry", CandidateIDs: ids}
		}
	}

	// 5. Legacy era never creates invoices
	if doc.Kind == integration.DocumentKindInvoice && doc.Date.Year() <= r.cfg.LegacyCutoffYear {
		r.metrics.LegacyUnmatched(rc.SourceID)
		r.logger.Warn("legacy document without ledger match",
			zap.String("source_id", rc.SourceID),
			zap.String("external_id", doc.ExternalID),
			zap.String("number", doc.Number),
			zap.Time("date", doc.Date),
		)
		return &ReconcileResult{Strategy: StrategyLegacyUnmatched}, nil
	}
	return &ReconcileResult{Strategy: StrategyNone}, nil
}

// Reconcile matches the document and creates a ledger record when nothing matched.
// Routed non-invoice transactions become sale orders.
func (r *LedgerReconciler) Reconcile(ctx context.Context, rc integration.RunContext, in ReconcileInput) (*ReconcileResult, error) {
	ctx = rc.Context(ctx)
	if !in.Decision.AsSaleOrder() {
		res, err := r.Match(ctx, rc, in)
		if err != nil || res.Strategy != StrategyNone {
			return res, err
		}
	}

	tenantID := in.TargetTenant
	if tenantID == uuid.Nil {
		tenantID = rc.TenantID
	}
	trc := rc.WithTenant(tenantID)
	lines, err := r.buildLines(ctx, trc, in)
	if err != nil {
		return nil, err
	}
	doc := in.Doc
	partnerID := partnerIDOf(in.Partner)

	if in.Decision.AsSaleOrder() {
		for i := range lines {
			lines[i].TaxPercent = decimal.Zero
		}
		id, err := rc.Tx.Ledger().CreateSaleOrder(ctx, integration.SaleOrderDraft{
			TenantID:  tenantID,
			PartnerID: partnerID,
			Date:      doc.Date,
			Currency:  doc.Currency,
			Ref:       firstNonEmpty(doc.Number, doc.ExternalID),
			Total:     saleOrderTotal(doc),
			Lines:     lines,
			SourceID:  rc.SourceID,
		})
		if err != nil {
			return nil, fmt.Errorf("create sale order: %w", err)
		}
		return &ReconcileResult{EntryID: &id, Strategy: StrategySaleOrder, Created: true}, nil
	}

	moveType := integration.MoveTypeFor(doc.Direction)
	if doc.Kind == integration.DocumentKindLedgerLine {
		moveType = integration.MoveTypeEntry
	}
	entry, err := rc.Tx.Ledger().CreateEntry(ctx, integration.EntryDraft{
		TenantID:  tenantID,
		MoveType:  moveType,
		PartnerID: partnerID,
		Date:      doc.Date,
		Currency:  doc.Currency,
		Ref:       firstNonEmpty(doc.Number, doc.ExternalID),
		Name:      doc.Number,
		Total:     documentAmount(doc),
		Lines:     lines,
		SourceID:  rc.SourceID,
	})
	if err != nil {
		return nil, fmt.Errorf("create ledger entry: %w", err)
	}
	id := entry.ID
	return &ReconcileResult{EntryID: &id, Strategy: StrategyCreated, Created: true}, nil
}

func (r *LedgerReconciler) buildLines(ctx context.Context, rc integration.RunContext, in ReconcileInput) ([]integration.LedgerLine, error) {
	doc := in.Doc
	partnerID := partnerIDOf(in.Partner)
	lines := make([]integration.LedgerLine, 0, len(doc.Lines))
	for _, l := range doc.Lines {
		if doc.Kind == integration.DocumentKindLedgerLine {
			line := integration.LedgerLine{
				Name:        firstNonEmpty(l.Label, l.AccountName),
				Ref:         doc.Number,
				AccountCode: l.AccountCode,
				Debit:       l.Debit,
				Credit:      l.Credit,
			}
			if id, ok := in.LinePartners[l.PartnerName]; ok {
				pid := id
				line.PartnerID = &pid
			}
			lines = append(lines, line)
			continue
		}

		line := integration.LedgerLine{
			Name:       firstNonEmpty(l.Description, l.ProductCode, doc.Number),
			Ref:        doc.Number,
			PartnerID:  partnerID,
			Quantity:   l.Quantity,
			PriceUnit:  l.UnitPrice,
			TaxPercent: l.TaxPercent,
		}
		if r.products != nil && (l.ProductCode != "" || l.Barcode != "" || l.Description != "") {
			res, err := r.products.Resolve(ctx, rc, integration.ProductRecord{
				SKU:       l.ProductCode,
				Barcode:   l.Barcode,
				Name:      l.Description,
				ListPrice: l.UnitPrice,
			}, in.ProductOpts)
			if err != nil {
				return nil, fmt.Errorf("resolve line %d product: %w", l.Sequence, err)
			}
			if res.TemplateID != nil {
				line.ProductID = res.TemplateID
			}
		}
		if doc.Direction == integration.DirectionOutgoing {
			line.Credit = l.Subtotal
		} else {
			line.Debit = l.Subtotal
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// partnerIDs returns the partner and, when enabled, every partner sharing its tax id forms
func (r *LedgerReconciler) partnerIDs(ctx context.Context, rc integration.RunContext, tenantID uuid.UUID, p *integration.Partner) ([]uuid.UUID, error) {
	ids := []uuid.UUID{p.ID}
	if !r.cfg.ExpandVATVariants || p.TaxID == "" {
		return ids, nil
	}
	others, err := rc.Tx.Partners().FindByTaxID(ctx, tenantID, normalize.TaxIDVariants(p.TaxID))
	if err != nil {
		return nil, fmt.Errorf("expand tax id variants: %w", err)
	}
	for _, o := range others {
		if !slices.Contains(ids, o.ID) {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

func (r *LedgerReconciler) withAmount(entries []integration.LedgerEntry, amount decimal.Decimal) []integration.LedgerEntry {
	tol := r.cfg.AmountTolerance()
	var out []integration.LedgerEntry
	for _, e := range entries {
		if e.Total.Sub(amount).Abs().LessThanOrEqual(tol) {
			out = append(out, e)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func matched(e *integration.LedgerEntry, s ReconcileStrategy) *ReconcileResult {
	id := e.ID
	return &ReconcileResult{EntryID: &id, Strategy: s}
}

// closestEntry breaks ties by smallest date delta, then lowest id
func closestEntry(entries []integration.LedgerEntry, doc *integration.ExternalDocument) *integration.LedgerEntry {
	if len(entries) == 0 {
		return nil
	}
	sorted := slices.Clone(entries)
	slices.SortFunc(sorted, func(a, b integration.LedgerEntry) int {
		if da, db := absDays(a.Date, doc.Date), absDays(b.Date, doc.Date); da != db {
			return da - db
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	return &sorted[0]
}

func documentNeedles(doc *integration.ExternalDocument) []string {
	var out []string
	for _, s := range []string{doc.Number, doc.ExternalID, doc.UUID} {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// documentAmount is the payable total, or the debit sum for vouchers
func documentAmount(doc *integration.ExternalDocument) decimal.Decimal {
	if doc.Kind == integration.DocumentKindLedgerLine && doc.Totals.Total.IsZero() {
		sum := decimal.Zero
		for _, l := range doc.Lines {
			sum = sum.Add(l.Debit)
		}
		return normalize.Money(sum)
	}
	return doc.Totals.Total
}

func saleOrderTotal(doc *integration.ExternalDocument) decimal.Decimal {
	if !doc.Totals.Net.IsZero() {
		return doc.Totals.Net
	}
	return doc.Totals.Total.Sub(doc.Totals.Tax)
}

func inferPartner(e *integration.LedgerEntry) *uuid.UUID {
	if e.PartnerID != nil {
		id := *e.PartnerID
		return &id
	}
	if ids := e.LinePartnerIDs(); len(ids) > 0 {
		id := ids[0]
		return &id
	}
	return nil
}

func partnerIDOf(p *integration.Partner) *uuid.UUID {
	if p == nil {
		return nil
	}
	id := p.ID
	return &id
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
