package integration

// TenantRole selects one of the two legal entities routing chooses between
type TenantRole string

const (
	TenantPrimary   TenantRole = "primary"
	TenantSecondary TenantRole = "secondary"
)

// NonInvoiceRule decides when a transaction counts as non-invoice
type NonInvoiceRule string

const (
	// NonInvoiceRuleNumberEmpty: the invoice number is empty
	NonInvoiceRuleNumberEmpty NonInvoiceRule = "invoice_number_empty"
	// NonInvoiceRuleZeroTax: the tax total is zero
	NonInvoiceRuleZeroTax NonInvoiceRule = "zero_tax"
	// NonInvoiceRuleBoth: number empty and tax zero
	NonInvoiceRuleBoth NonInvoiceRule = "both"
	// NonInvoiceRuleEither: number empty or tax zero
	NonInvoiceRuleEither NonInvoiceRule = "either"
)

// IsValid returns true if the rule is valid
func (r NonInvoiceRule) IsValid() bool {
	switch r {
	case NonInvoiceRuleNumberEmpty, NonInvoiceRuleZeroTax, NonInvoiceRuleBoth, NonInvoiceRuleEither:
		return true
	default:
		return false
	}
}

// Matches evaluates the rule against the two non-invoice signals
func (r NonInvoiceRule) Matches(numberEmpty, zeroTax bool) bool {
	switch r {
	case NonInvoiceRuleNumberEmpty:
		return numberEmpty
	case NonInvoiceRuleZeroTax:
		return zeroTax
	case NonInvoiceRuleEither:
		return numberEmpty || zeroTax
	default:
		return numberEmpty && zeroTax
	}
}

// RouteReason names the predicate that sent a transaction to the secondary tenant
type RouteReason string

const (
	RouteReasonDisabled      RouteReason = "routing_disabled"
	RouteReasonNeverInvoice  RouteReason = "never_invoice"
	RouteReasonNoTaxID       RouteReason = "no_tax_id"
	RouteReasonTaxExempt     RouteReason = "tax_exempt"
	RouteReasonNeverInvoiced RouteReason = "never_invoiced"
	RouteReasonNonInvoice    RouteReason = "non_invoice"
	RouteReasonDefault       RouteReason = "default"
)

// RoutingDecision is the routing outcome for one transaction
type RoutingDecision struct {
	Target TenantRole
	Reason RouteReason
}

// AsSaleOrder reports whether the transaction is written as a sale order
func (d RoutingDecision) AsSaleOrder() bool {
	return d.Target == TenantSecondary
}
