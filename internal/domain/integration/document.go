package integration

import (
	"crypto/md5"
	"encoding/hex"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Direction
// ---------------------------------------------------------------------------

// Direction tells whether a document was received or issued by the tenant
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// IsValid returns true if the direction is valid
func (d Direction) IsValid() bool {
	return d == DirectionIncoming || d == DirectionOutgoing
}

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// ---------------------------------------------------------------------------
// DocumentKind
// ---------------------------------------------------------------------------

// DocumentKind classifies what an external record carries
type DocumentKind string

const (
	DocumentKindInvoice    DocumentKind = "invoice"
	DocumentKindDespatch   DocumentKind = "despatch"
	DocumentKindResponse   DocumentKind = "response"
	DocumentKindLedgerLine DocumentKind = "ledger_line"
	// DocumentKindProduct is a product feed record
	DocumentKindProduct DocumentKind = "product"
	// DocumentKindPartner is a partner feed record
	DocumentKindPartner DocumentKind = "partner"
)

// IsValid returns true if the kind is valid
func (k DocumentKind) IsValid() bool {
	switch k {
	case DocumentKindInvoice, DocumentKindDespatch, DocumentKindResponse,
		DocumentKindLedgerLine, DocumentKindProduct, DocumentKindPartner:
		return true
	default:
		return false
	}
}

// IsLedgerDocument reports whether the kind is reconciled against ledger entries
func (k DocumentKind) IsLedgerDocument() bool {
	return k == DocumentKindInvoice || k == DocumentKindLedgerLine
}

// String returns the string representation of DocumentKind
func (k DocumentKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// ExternalDocument
// ---------------------------------------------------------------------------

// Totals holds the monetary totals of a document, rounded to two decimals
type Totals struct {
	// Gross is the sum of line amounts before discounts
	Gross decimal.Decimal
	// Net is the untaxed amount
	Net decimal.Decimal
	// Tax is the total tax amount
	Tax decimal.Decimal
	// Total is the payable amount
	Total decimal.Decimal
}

// PartnerCandidate is the counterparty snapshot carried by a document or a partner feed
// record. Every field is optional.
type PartnerCandidate struct {
	// ExternalID is the upstream id of the partner, when the source has one
	ExternalID string
	TaxID      string
	Name       string
	// NormalizedName is Name in comparison form
	NormalizedName string
	Street         string
	Street2        string
	City           string
	District       string
	Zip            string
	Country        string
	TaxOffice      string
	Phone          string
	Mobile         string
	Email          string
	Website        string
	// IBANs lists every harvested account; the first is the primary one
	IBANs []string
	// AuthorizedContact is a person name to attach as a child contact
	AuthorizedContact string
	IsCustomer        bool
	IsSupplier        bool
	TaxExempt         bool
}

// IsEmpty reports whether the candidate carries no identity at all
func (c PartnerCandidate) IsEmpty() bool {
	return c.TaxID == "" && c.NormalizedName == "" && c.Phone == "" && c.Email == ""
}

// ProductRecord is the product snapshot carried by a product feed record
type ProductRecord struct {
	SKU           string
	Barcode       string
	Name          string
	Description   string
	ListPrice     decimal.Decimal
	CostPrice     decimal.Decimal
	SupplierPrice decimal.Decimal
	Stock         decimal.Decimal
	// HasStock is false when the feed omitted the stock field
	HasStock bool
	Category string
	Brand    string
	Images   []string
}

// DocumentLine is one line on an ExternalDocument
type DocumentLine struct {
	Sequence int
	// Product reference
	ProductCode string
	Barcode     string
	Description string
	Quantity    decimal.Decimal
	UnitCode    string
	UnitPrice   decimal.Decimal
	Subtotal    decimal.Decimal
	TaxPercent  decimal.Decimal
	TaxAmount   decimal.Decimal

	// Ledger line fields, set for spreadsheet vouchers
	AccountCode string
	AccountName string
	PartnerName string
	Label       string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// ExternalDocument is the normalized unit produced by every adapter
type ExternalDocument struct {
	SourceID   string
	ExternalID string
	Direction  Direction
	Kind       DocumentKind
	// Number is the upstream document number, e.g. "ABC2026000000001"
	Number string
	// UUID is the document-level UUID when the payload carries one
	UUID     string
	Date     time.Time
	Currency string
	// TypeCode and ProfileID carry UBL InvoiceTypeCode and ProfileID
	TypeCode     string
	ProfileID    string
	Totals       Totals
	Counterparty PartnerCandidate
	Lines        []DocumentLine
	// Product is set for DocumentKindProduct records
	Product *ProductRecord
	// Unbalanced is set by the spreadsheet parser when debits and credits differ
	Unbalanced bool
	// Attachment holds an optional rendered copy (PDF) of the document
	Attachment  []byte
	Raw         []byte
	PayloadHash string
}

// Validate checks the fields every consumer relies on
func (d *ExternalDocument) Validate() error {
	if d.SourceID == "" || d.ExternalID == "" {
		return ErrInvalidDocument
	}
	if !d.Kind.IsValid() || !d.Direction.IsValid() {
		return ErrInvalidDocument
	}
	if d.Kind.IsLedgerDocument() && d.Date.IsZero() {
		return ErrInvalidDocument
	}
	if d.Currency == "" {
		d.Currency = DefaultCurrency
	}
	if d.PayloadHash == "" && len(d.Raw) > 0 {
		d.PayloadHash = PayloadHash(d.Raw)
	}
	return nil
}

// IsNonInvoice reports the two non-invoice signals of a transaction:
// an empty invoice number and a zero tax total.
func (d *ExternalDocument) IsNonInvoice() (numberEmpty, zeroTax bool) {
	return d.Number == "", d.Totals.Tax.IsZero()
}

// DefaultCurrency is assumed when a payload omits its currency.
const DefaultCurrency = "TRY"

// PayloadHash returns the hex MD5 of a normalized raw payload
func PayloadHash(raw []byte) string {
	sum := md5.Sum(raw)
	return hex.EncodeToString(sum[:])
}
