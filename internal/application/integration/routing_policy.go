package integration

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// ErrSecondaryTenantMissing is returned when routing is on without a secondary tenant
var ErrSecondaryTenantMissing = errors.New("integration: routing enabled without secondary tenant")

// RoutingConfig holds the multi-tenant routing switches
type RoutingConfig struct {
	Enabled           bool
	PrimaryTenantID   uuid.UUID
	SecondaryTenantID uuid.UUID
	// NoTaxIDToSecondary routes partners without a tax id
	NoTaxIDToSecondary bool
	// ExemptToSecondary routes tax-exempt partners
	ExemptToSecondary bool
	// NeverInvoicedToSecondary routes partners with zero posted invoices
	NeverInvoicedToSecondary bool
	NonInvoiceRule           integration.NonInvoiceRule
}

// Validate checks the configuration and fills defaults
func (c *RoutingConfig) Validate() error {
	if c.NonInvoiceRule == "" {
		c.NonInvoiceRule = integration.NonInvoiceRuleBoth
	}
	if !c.NonInvoiceRule.IsValid() {
		return errors.New("integration: invalid non-invoice rule")
	}
	if c.Enabled && c.SecondaryTenantID == uuid.Nil {
		return ErrSecondaryTenantMissing
	}
	return nil
}

// RoutingPolicy picks the target tenant of a transaction
type RoutingPolicy struct {
	cfg RoutingConfig
}

// NewRoutingPolicy creates a routing policy
func NewRoutingPolicy(cfg RoutingConfig) (*RoutingPolicy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &RoutingPolicy{cfg: cfg}, nil
}

// Enabled reports whether multi-tenant routing is on
func (p *RoutingPolicy) Enabled() bool {
	return p.cfg.Enabled
}

// Decide evaluates the predicates in order; the first true one routes to secondary.
// partner may be nil when the counterparty could not be resolved.
func (p *RoutingPolicy) Decide(
	ctx context.Context,
	ledger integration.LedgerService,
	partner *integration.Partner,
	doc *integration.ExternalDocument,
) (integration.RoutingDecision, error) {
	if !p.cfg.Enabled {
		return integration.RoutingDecision{Target: integration.TenantPrimary, Reason: integration.RouteReasonDisabled}, nil
	}
	secondary := func(reason integration.RouteReason) (integration.RoutingDecision, error) {
		return integration.RoutingDecision{Target: integration.TenantSecondary, Reason: reason}, nil
	}

	if partner != nil && partner.NeverInvoice {
		return secondary(integration.RouteReasonNeverInvoice)
	}
	if p.cfg.NoTaxIDToSecondary && partnerTaxID(partner, doc) == "" {
		return secondary(integration.RouteReasonNoTaxID)
	}
	if p.cfg.ExemptToSecondary && IsTaxExempt(partner) {
		return secondary(integration.RouteReasonTaxExempt)
	}
	if p.cfg.NeverInvoicedToSecondary && partner != nil {
		count, err := ledger.CountPostedInvoices(ctx, partner.TenantID, partner.ID)
		if err != nil {
			return integration.RoutingDecision{}, err
		}
		if count == 0 {
			return secondary(integration.RouteReasonNeverInvoiced)
		}
	}
	if p.cfg.NonInvoiceRule.Matches(doc.IsNonInvoice()) {
		return secondary(integration.RouteReasonNonInvoice)
	}
	return integration.RoutingDecision{Target: integration.TenantPrimary, Reason: integration.RouteReasonDefault}, nil
}

// TenantFor returns the tenant id of a decision's target
func (p *RoutingPolicy) TenantFor(decision integration.RoutingDecision, fallback uuid.UUID) uuid.UUID {
	if decision.Target == integration.TenantSecondary && p.cfg.SecondaryTenantID != uuid.Nil {
		return p.cfg.SecondaryTenantID
	}
	if p.cfg.PrimaryTenantID != uuid.Nil {
		return p.cfg.PrimaryTenantID
	}
	return fallback
}

// IsTaxExempt detects exemption from the partner flag or a fiscal position whose
// name contains "muaf" or "exempt".
func IsTaxExempt(partner *integration.Partner) bool {
	if partner == nil {
		return false
	}
	if partner.IsTaxExempt {
		return true
	}
	fp := strings.ToLower(normalize.Fold(partner.FiscalPosition))
	return strings.Contains(fp, "muaf") || strings.Contains(fp, "exempt")
}

func partnerTaxID(partner *integration.Partner, doc *integration.ExternalDocument) string {
	if partner != nil && partner.TaxID != "" {
		return normalize.TaxID(partner.TaxID)
	}
	return normalize.TaxID(doc.Counterparty.TaxID)
}
