package integration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	// Source errors
	ErrSourceNotFound          = errors.New("integration: source not registered")
	ErrSourceAlreadyRegistered = errors.New("integration: source already registered")
	ErrSourceNotEnabled        = errors.New("integration: source not enabled")
	ErrSourceBusy              = errors.New("integration: source run already in progress")
	ErrCapabilityNotSupported  = errors.New("integration: capability not supported by source")
	ErrInvalidWindow           = errors.New("integration: invalid date window")

	// Document errors
	ErrInvalidDocument  = errors.New("integration: invalid external document")
	ErrDocumentNotFound = errors.New("integration: external document not found")

	// Binding errors
	ErrBindingNotFound      = errors.New("integration: binding not found")
	ErrBindingConflict      = errors.New("integration: binding already points to a different internal id")
	ErrBindingInvalidSource = errors.New("integration: binding requires source id")
	ErrBindingInvalidExtID  = errors.New("integration: binding requires external id")
	ErrBindingInvalidKind   = errors.New("integration: invalid binding entity kind")
	ErrBindingInvalidState  = errors.New("integration: invalid binding state transition")

	// Checkpoint errors
	ErrCheckpointRegression = errors.New("integration: checkpoint cannot move backwards")

	// Collaborator errors
	ErrPartnerNotFound = errors.New("integration: partner not found")
	ErrProductNotFound = errors.New("integration: product not found")
	ErrProductConflict = errors.New("integration: barcode or variant attribute set already in use")
	ErrEntryNotFound   = errors.New("integration: ledger entry not found")
	ErrTaxIDConflict   = errors.New("integration: partner already carries a different tax id")
)

// ---------------------------------------------------------------------------
// Error kinds
// ---------------------------------------------------------------------------

// TransportError wraps network, timeout and TLS failures. It is retryable.
type TransportError struct {
	SourceID string
	Op       string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("integration: transport error on %s/%s: %v", e.SourceID, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError reports 401/403 responses and WS-Security faults.
type AuthError struct {
	SourceID string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("integration: authentication failed for %s: %v", e.SourceID, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// ParseError reports a raw payload that does not yield a valid ExternalDocument.
type ParseError struct {
	SourceID   string
	ExternalID string
	// Snippet holds at most the first 500 bytes of the payload
	Snippet []byte
	Err     error
}

// ParseSnippetSize is how much of an unparseable payload is kept for triage.
const ParseSnippetSize = 500

// NewParseError builds a ParseError keeping the leading bytes of raw.
func NewParseError(sourceID, externalID string, raw []byte, err error) *ParseError {
	n := len(raw)
	if n > ParseSnippetSize {
		n = ParseSnippetSize
	}
	snippet := make([]byte, n)
	copy(snippet, raw[:n])
	return &ParseError{SourceID: sourceID, ExternalID: externalID, Snippet: snippet, Err: err}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("integration: cannot parse %s/%s: %v", e.SourceID, e.ExternalID, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// AmbiguityError is returned when a resolver finds several equally scored candidates
// and cannot pick one deterministically.
type AmbiguityError struct {
	Entity       string
	CandidateIDs []uuid.UUID
}

func (e *AmbiguityError) Error() string {
	ids := make([]string, len(e.CandidateIDs))
	for i, id := range e.CandidateIDs {
		ids[i] = id.String()
	}
	return fmt.Sprintf("integration: ambiguous %s match between [%s]", e.Entity, strings.Join(ids, ", "))
}

// UnbalancedVoucherError reports a ledger voucher whose debits and credits differ.
type UnbalancedVoucherError struct {
	Ref    string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedVoucherError) Error() string {
	return fmt.Sprintf("integration: voucher %s unbalanced (debit %s, credit %s)",
		e.Ref, e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// IsTransportError reports whether err is, or wraps, a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAuthError reports whether err is, or wraps, an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsParseError reports whether err is, or wraps, a ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsAmbiguity reports whether err is, or wraps, an AmbiguityError.
func IsAmbiguity(err error) bool {
	var ae *AmbiguityError
	return errors.As(err, &ae)
}
