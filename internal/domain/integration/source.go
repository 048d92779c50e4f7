package integration

import (
	"context"
	"iter"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// SourceType identifies the adapter family serving a source
// ---------------------------------------------------------------------------

// SourceType identifies the adapter family serving a source
type SourceType string

const (
	// SourceTypeQNB is the QNB e-document SOAP gateway
	SourceTypeQNB SourceType = "qnb"
	// SourceTypeBizimHesap is the BizimHesap REST bookkeeping backend
	SourceTypeBizimHesap SourceType = "bizimhesap"
	// SourceTypeXMLFeed is a supplier XML product feed
	SourceTypeXMLFeed SourceType = "xmlfeed"
	// SourceTypeSpreadsheet is a legacy accounting spreadsheet export
	SourceTypeSpreadsheet SourceType = "spreadsheet"
)

// IsValid returns true if the source type is valid
func (t SourceType) IsValid() bool {
	switch t {
	case SourceTypeQNB, SourceTypeBizimHesap, SourceTypeXMLFeed, SourceTypeSpreadsheet:
		return true
	default:
		return false
	}
}

// String returns the string representation of SourceType
func (t SourceType) String() string {
	return string(t)
}

// ---------------------------------------------------------------------------
// Capabilities
// ---------------------------------------------------------------------------

// Capability declares a feature an adapter supports
type Capability string

const (
	CapabilityIncomingInvoices Capability = "incoming-invoices"
	CapabilityOutgoingInvoices Capability = "outgoing-invoices"
	CapabilityPartners         Capability = "partners"
	CapabilityProducts         Capability = "products"
	CapabilityLedgerLines      Capability = "ledger-lines"
	CapabilityCurrencyRates    Capability = "currency-rates"
	CapabilityWrite            Capability = "write"
)

// Capabilities is a set of capabilities
type Capabilities map[Capability]struct{}

// NewCapabilities builds a capability set
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, c := range caps {
		set[c] = struct{}{}
	}
	return set
}

// Has reports whether the set contains c
func (c Capabilities) Has(capability Capability) bool {
	_, ok := c[capability]
	return ok
}

// List returns the capabilities sorted by name
func (c Capabilities) List() []Capability {
	out := make([]Capability, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Supports reports whether the set allows listing kind in direction
func (c Capabilities) Supports(kind DocumentKind, direction Direction) bool {
	switch kind {
	case DocumentKindInvoice, DocumentKindDespatch, DocumentKindResponse:
		if direction == DirectionOutgoing {
			return c.Has(CapabilityOutgoingInvoices)
		}
		return c.Has(CapabilityIncomingInvoices)
	case DocumentKindLedgerLine:
		return c.Has(CapabilityLedgerLines)
	case DocumentKindProduct:
		return c.Has(CapabilityProducts)
	case DocumentKindPartner:
		return c.Has(CapabilityPartners)
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Window
// ---------------------------------------------------------------------------

// Window is an inclusive date range
type Window struct {
	Start time.Time
	End   time.Time
}

// Validate checks the window is ordered
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() || w.End.Before(w.Start) {
		return ErrInvalidWindow
	}
	return nil
}

// Contains reports whether t falls within the window
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Split cuts the window into consecutive sub-windows of at most days days.
// Sub-windows do not overlap: each starts the day after the previous one ends.
func (w Window) Split(days int) []Window {
	if days <= 0 || w.Validate() != nil {
		return nil
	}
	var out []Window
	for start := w.Start; !start.After(w.End); {
		end := start.AddDate(0, 0, days-1)
		if end.After(w.End) {
			end = w.End
		}
		out = append(out, Window{Start: start, End: end})
		start = end.AddDate(0, 0, 1)
	}
	return out
}

// ---------------------------------------------------------------------------
// SourceAdapter port
// ---------------------------------------------------------------------------

// DocumentSummary is what a listing call yields for each upstream document
type DocumentSummary struct {
	ExternalID   string
	Kind         DocumentKind
	Direction    Direction
	Number       string
	Date         time.Time
	PartnerTaxID string
	PartnerName  string
	Total        decimal.Decimal
	Currency     string
	// Payload carries the full record when the listing already returned it
	// (REST rows, feed items, spreadsheet vouchers); Download then returns it as is.
	Payload []byte
}

// SourceAdapter is the contract every upstream implements
type SourceAdapter interface {
	// SourceID returns the configured id of this source
	SourceID() string

	// Type returns the adapter family
	Type() SourceType

	// ListDocuments lazily yields the documents of kind and direction within window.
	// The sequence is finite and cannot be restarted; an error ends it.
	ListDocuments(ctx context.Context, window Window, kind DocumentKind, direction Direction) iter.Seq2[DocumentSummary, error]

	// DownloadDocument returns the raw payload for a listed document
	DownloadDocument(ctx context.Context, summary DocumentSummary) ([]byte, error)

	// ParseDocument maps a raw payload to the canonical structure
	ParseDocument(ctx context.Context, summary DocumentSummary, raw []byte) (*ExternalDocument, error)

	// Capabilities declares which features the source supports
	Capabilities() Capabilities
}

// Reauthenticator is implemented by adapters holding refreshable credentials
type Reauthenticator interface {
	// RefreshAuth discards cached credentials and obtains new ones
	RefreshAuth(ctx context.Context) error
}

// SourceRegistry maps source ids to adapters
type SourceRegistry interface {
	// Register adds an adapter under its source id
	Register(adapter SourceAdapter) error

	// Get returns the adapter for a source id
	Get(sourceID string) (SourceAdapter, error)

	// List returns all registered adapters ordered by source id
	List() []SourceAdapter
}

// SourceState is the health of a source as seen by the scheduler
type SourceState string

const (
	SourceStateOK    SourceState = "ok"
	SourceStateError SourceState = "error"
)

// SourceStatus records the last known state of a source
type SourceStatus struct {
	SourceID  string
	State     SourceState
	LastError string
	UpdatedAt time.Time
}
