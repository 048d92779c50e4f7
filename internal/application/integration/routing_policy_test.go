package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

func TestRoutingConfig_Validate(t *testing.T) {
	cfg := RoutingConfig{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, integration.NonInvoiceRuleBoth, cfg.NonInvoiceRule)

	_, err := NewRoutingPolicy(RoutingConfig{Enabled: true})
	assert.ErrorIs(t, err, ErrSecondaryTenantMissing)

	_, err = NewRoutingPolicy(RoutingConfig{NonInvoiceRule: "sometimes"})
	assert.Error(t, err)
}

func TestRoutingPolicy_Decide(t *testing.T) {
	db := newMemDB()
	invoiced := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Düzenli Müşteri", TaxID: "1234567890"})
	db.addEntry(integration.LedgerEntry{
		TenantID:  primaryTenant,
		MoveType:  integration.MoveTypeOutInvoice,
		PartnerID: &invoiced.ID,
		Posted:    true,
		Total:     dec("100"),
	})
	fresh := &integration.Partner{ID: uuid.New(), TenantID: primaryTenant, Name: "Yeni", TaxID: "5555555555"}

	invoiceDoc := &integration.ExternalDocument{Number: "ABC2026000000001", Totals: integration.Totals{Tax: dec("18")}}
	noNumber := &integration.ExternalDocument{Totals: integration.Totals{Tax: dec("18")}}
	nonInvoice := &integration.ExternalDocument{}

	base := RoutingConfig{Enabled: true, PrimaryTenantID: primaryTenant, SecondaryTenantID: secondaryTenant}

	tests := []struct {
		name    string
		cfg     func(c *RoutingConfig)
		partner *integration.Partner
		doc     *integration.ExternalDocument
		target  integration.TenantRole
		reason  integration.RouteReason
	}{
		{
			name:    "disabled",
			cfg:     func(c *RoutingConfig) { c.Enabled = false },
			partner: &invoiced,
			doc:     nonInvoice,
			target:  integration.TenantPrimary,
			reason:  integration.RouteReasonDisabled,
		},
		{
			name:    "never-invoice flag",
			partner: &integration.Partner{ID: uuid.New(), NeverInvoice: true, TaxID: "1234567890"},
			doc:     invoiceDoc,
			target:  integration.TenantSecondary,
			reason:  integration.RouteReasonNeverInvoice,
		},
		{
			name:   "no tax id",
			cfg:    func(c *RoutingConfig) { c.NoTaxIDToSecondary = true },
			doc:    invoiceDoc,
			target: integration.TenantSecondary,
			reason: integration.RouteReasonNoTaxID,
		},
		{
			name:    "tax exempt by fiscal position",
			cfg:     func(c *RoutingConfig) { c.ExemptToSecondary = true },
			partner: &integration.Partner{ID: uuid.New(), TaxID: "1234567890", FiscalPosition: "KDV Muaf"},
			doc:     invoiceDoc,
			target:  integration.TenantSecondary,
			reason:  integration.RouteReasonTaxExempt,
		},
		{
			name:    "never invoiced",
			cfg:     func(c *RoutingConfig) { c.NeverInvoicedToSecondary = true },
			partner: fresh,
			doc:     invoiceDoc,
			target:  integration.TenantSecondary,
			reason:  integration.RouteReasonNeverInvoiced,
		},
		{
			name:    "invoiced partner stays primary",
			cfg:     func(c *RoutingConfig) { c.NeverInvoicedToSecondary = true },
			partner: &invoiced,
			doc:     invoiceDoc,
			target:  integration.TenantPrimary,
			reason:  integration.RouteReasonDefault,
		},
		{
			name:    "non-invoice, both signals",
			partner: &invoiced,
			doc:     nonInvoice,
			target:  integration.TenantSecondary,
			reason:  integration.RouteReasonNonInvoice,
		},
		{
			name:    "one signal is not enough under both",
			partner: &invoiced,
			doc:     noNumber,
			target:  integration.TenantPrimary,
			reason:  integration.RouteReasonDefault,
		},
		{
			name:    "one signal is enough under either",
			cfg:     func(c *RoutingConfig) { c.NonInvoiceRule = integration.NonInvoiceRuleEither },
			partner: &invoiced,
			doc:     noNumber,
			target:  integration.TenantSecondary,
			reason:  integration.RouteReasonNonInvoice,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			policy, err := NewRoutingPolicy(cfg)
			require.NoError(t, err)

			decision, err := policy.Decide(context.Background(), db.Stores().Ledger(), tt.partner, tt.doc)
			require.NoError(t, err)
			assert.Equal(t, tt.target, decision.Target)
			assert.Equal(t, tt.reason, decision.Reason)
			assert.Equal(t, tt.target == integration.TenantSecondary, decision.AsSaleOrder())
		})
	}
}

func TestRoutingPolicy_TenantFor(t *testing.T) {
	policy, err := NewRoutingPolicy(RoutingConfig{Enabled: true, PrimaryTenantID: primaryTenant, SecondaryTenantID: secondaryTenant})
	require.NoError(t, err)

	fallback := uuid.New()
	assert.Equal(t, secondaryTenant, policy.TenantFor(integration.RoutingDecision{Target: integration.TenantSecondary}, fallback))
	assert.Equal(t, primaryTenant, policy.TenantFor(integration.RoutingDecision{Target: integration.TenantPrimary}, fallback))

	off, err := NewRoutingPolicy(RoutingConfig{})
	require.NoError(t, err)
	assert.Equal(t, fallback, off.TenantFor(integration.RoutingDecision{Target: integration.TenantPrimary}, fallback))
}

func TestIsTaxExempt(t *testing.T) {
	assert.False(t, IsTaxExempt(nil))
	assert.True(t, IsTaxExempt(&integration.Partner{IsTaxExempt: true}))
	assert.True(t, IsTaxExempt(&integration.Partner{FiscalPosition: "Tax Exempt Export"}))
	assert.True(t, IsTaxExempt(&integration.Partner{FiscalPosition: "İhracat KDV MUAF"}))
	assert.False(t, IsTaxExempt(&integration.Partner{FiscalPosition: "Yurt İçi"}))
}
