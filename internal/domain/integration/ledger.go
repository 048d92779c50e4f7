package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MoveType is the type of a ledger entry
type MoveType string

const (
	MoveTypeOutInvoice MoveType = "out_invoice"
	MoveTypeInInvoice  MoveType = "in_invoice"
	MoveTypeOutRefund  MoveType = "out_refund"
	MoveTypeInRefund   MoveType = "in_refund"
	MoveTypeEntry      MoveType = "entry"
)

// IsInvoice reports whether the move is an invoice or refund
func (m MoveType) IsInvoice() bool {
	return m != MoveTypeEntry && m != ""
}

// MoveTypeFor returns the invoice move type for a direction
func MoveTypeFor(direction Direction) MoveType {
	if direction == DirectionOutgoing {
		return MoveTypeOutInvoice
	}
	return MoveTypeInInvoice
}

// LedgerLine is a journal item of a LedgerEntry
type LedgerLine struct {
	Name        string
	Ref         string
	PartnerID   *uuid.UUID
	AccountCode string
	ProductID   *uuid.UUID
	Quantity    decimal.Decimal
	PriceUnit   decimal.Decimal
	TaxPercent  decimal.Decimal
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// LedgerEntry is the journal record EDIRE reconciles against
type LedgerEntry struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	MoveType  MoveType
	PartnerID *uuid.UUID
	Date      time.Time
	Total     decimal.Decimal
	Currency  string
	Ref       string
	Name      string
	Posted    bool
	Lines     []LedgerLine
	// SourceID names the source that created the entry; empty for hand-booked entries
	SourceID  string
	CreatedAt time.Time
}

// LinePartnerIDs returns the distinct partner ids found on the lines
func (e *LedgerEntry) LinePartnerIDs() []uuid.UUID {
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, l := range e.Lines {
		if l.PartnerID == nil {
			continue
		}
		if _, ok := seen[*l.PartnerID]; ok {
			continue
		}
		seen[*l.PartnerID] = struct{}{}
		out = append(out, *l.PartnerID)
	}
	return out
}

// EntryDraft is what the reconciler asks the Ledger collaborator to create
type EntryDraft struct {
	TenantID  uuid.UUID
	MoveType  MoveType
	PartnerID *uuid.UUID
	Date      time.Time
	Currency  string
	Ref       string
	Name      string
	Total     decimal.Decimal
	Lines     []LedgerLine
	// SourceID is recorded on the entry for triage
	SourceID string
}

// SaleOrderDraft is a non-invoice transaction written without tax
type SaleOrderDraft struct {
	TenantID  uuid.UUID
	PartnerID *uuid.UUID
	Date      time.Time
	Currency  string
	Ref       string
	Total     decimal.Decimal
	Lines     []LedgerLine
	SourceID  string
}

// EntrySearch narrows ledger lookups to a tenant and an inclusive date range
type EntrySearch struct {
	TenantID uuid.UUID
	From     time.Time
	To       time.Time
	// MoveTypes limits the search; empty means any
	MoveTypes []MoveType
}

// LedgerService is the Ledger collaborator contract
type LedgerService interface {
	GetEntry(ctx context.Context, id uuid.UUID) (*LedgerEntry, error)

	// FindByLineText returns entries having a line whose name or ref contains any needle
	FindByLineText(ctx context.Context, search EntrySearch, needles []string) ([]LedgerEntry, error)

	// FindByHeaderText returns entries whose ref or name contains any needle
	FindByHeaderText(ctx context.Context, search EntrySearch, needles []string) ([]LedgerEntry, error)

	// FindByPartners returns entries whose header or lines reference any partner
	FindByPartners(ctx context.Context, search EntrySearch, partnerIDs []uuid.UUID) ([]LedgerEntry, error)

	// FindByDate returns every entry in the range
	FindByDate(ctx context.Context, search EntrySearch) ([]LedgerEntry, error)

	// CountPostedInvoices counts posted invoices of a partner
	CountPostedInvoices(ctx context.Context, tenantID, partnerID uuid.UUID) (int64, error)

	CreateEntry(ctx context.Context, draft EntryDraft) (*LedgerEntry, error)

	CreateSaleOrder(ctx context.Context, draft SaleOrderDraft) (uuid.UUID, error)

	// DeleteDraftEntry removes an unposted entry; posted entries yield an error
	DeleteDraftEntry(ctx context.Context, id uuid.UUID) error
}
