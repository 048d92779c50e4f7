package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// EntityKind
// ---------------------------------------------------------------------------

// EntityKind is the kind of internal record a Binding points at
type EntityKind string

const (
	EntityKindPartner  EntityKind = "partner"
	EntityKindProduct  EntityKind = "product"
	EntityKindDocument EntityKind = "document"
)

// IsValid returns true if the entity kind is valid
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindPartner, EntityKindProduct, EntityKindDocument:
		return true
	default:
		return false
	}
}

// String returns the string representation of EntityKind
func (k EntityKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// BindingState tracks the external document lifecycle
// ---------------------------------------------------------------------------

// BindingState tracks the external document lifecycle
type BindingState string

const (
	// BindingStateDraft means persisted without a ledger link yet
	BindingStateDraft BindingState = "draft"
	// BindingStateDelivered means linked to a ledger entry
	BindingStateDelivered BindingState = "delivered"
	BindingStateAccepted  BindingState = "accepted"
	BindingStateRejected  BindingState = "rejected"
	// BindingStateUnparseable marks a placeholder for a payload that could not be parsed
	BindingStateUnparseable BindingState = "unparseable"
)

// IsValid returns true if the state is valid
func (s BindingState) IsValid() bool {
	switch s {
	case BindingStateDraft, BindingStateDelivered, BindingStateAccepted,
		BindingStateRejected, BindingStateUnparseable:
		return true
	default:
		return false
	}
}

// IsFinal returns true when no further transition is allowed
func (s BindingState) IsFinal() bool {
	return s == BindingStateAccepted || s == BindingStateRejected || s == BindingStateUnparseable
}

// CanTransitionTo checks draft → delivered → accepted|rejected
func (s BindingState) CanTransitionTo(target BindingState) bool {
	switch s {
	case BindingStateDraft:
		return target == BindingStateDelivered || target == BindingStateRejected
	case BindingStateDelivered:
		return target == BindingStateAccepted || target == BindingStateRejected
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Binding Entity
// ---------------------------------------------------------------------------

// Binding links an external record to an internal one.
// (SourceID, ExternalID, EntityKind) is unique.
type Binding struct {
	// ID is the unique identifier of this binding
	ID uuid.UUID
	// TenantID is the tenant the internal record belongs to
	TenantID   uuid.UUID
	SourceID   string
	ExternalID string
	EntityKind EntityKind
	// InternalID is nil for placeholder bindings
	InternalID *uuid.UUID
	State      BindingState
	// DocumentDate is the date of the bound document, if any
	DocumentDate *time.Time
	// PartnerID is the counterparty of a bound document, resolved or inferred
	// from the lines of the matched entry
	PartnerID   *uuid.UUID
	PayloadHash  string
	// PayloadSnapshot is the external payload as received
	PayloadSnapshot []byte
	FirstSeenAt     time.Time
	LastSyncAt      time.Time
}

// NewBinding creates a binding to an internal record
func NewBinding(
	tenantID uuid.UUID,
	sourceID, externalID string,
	kind EntityKind,
	internalID *uuid.UUID,
	now time.Time,
) (*Binding, error) {
	if sourceID == "" {
		return nil, ErrBindingInvalidSource
	}
	if externalID == "" {
		return nil, ErrBindingInvalidExtID
	}
	if !kind.IsValid() {
		return nil, ErrBindingInvalidKind
	}
	state := BindingStateDraft
	if internalID != nil {
		state = BindingStateDelivered
	}
	return &Binding{
		ID:          uuid.New(),
		TenantID:    tenantID,
		SourceID:    sourceID,
		ExternalID:  externalID,
		EntityKind:  kind,
		InternalID:  internalID,
		State:       state,
		FirstSeenAt: now,
		LastSyncAt:  now,
	}, nil
}

// NewPlaceholderBinding creates the binding recorded for an unparseable payload so
// the document is not attempted again.
func NewPlaceholderBinding(tenantID uuid.UUID, sourceID, externalID string, snippet []byte, now time.Time) (*Binding, error) {
	b, err := NewBinding(tenantID, sourceID, externalID, EntityKindDocument, nil, now)
	if err != nil {
		return nil, err
	}
	b.State = BindingStateUnparseable
	b.PayloadSnapshot = snippet
	return b, nil
}

// AttachSnapshot records the payload and its hash
func (b *Binding) AttachSnapshot(raw []byte, hash string) {
	b.PayloadSnapshot = raw
	b.PayloadHash = hash
}

// Link points a draft binding at its internal record. A binding already pointing at
// a different record is never overwritten.
func (b *Binding) Link(internalID uuid.UUID, now time.Time) error {
	if b.InternalID != nil {
		if *b.InternalID == internalID {
			return nil
		}
		return ErrBindingConflict
	}
	if !b.State.CanTransitionTo(BindingStateDelivered) {
		return ErrBindingInvalidState
	}
	id := internalID
	b.InternalID = &id
	b.State = BindingStateDelivered
	b.LastSyncAt = now
	return nil
}

// TransitionTo moves the binding along the document lifecycle
func (b *Binding) TransitionTo(target BindingState, now time.Time) error {
	if !b.State.CanTransitionTo(target) {
		return ErrBindingInvalidState
	}
	b.State = target
	b.LastSyncAt = now
	return nil
}

// Touch records a sync without changing the linkage
func (b *Binding) Touch(raw []byte, hash string, now time.Time) {
	b.AttachSnapshot(raw, hash)
	b.LastSyncAt = now
}

// BindingFilter narrows a binding listing
type BindingFilter struct {
	SourceID   string
	EntityKind EntityKind
	State      BindingState
	// DocumentFrom and DocumentTo bound DocumentDate, inclusive
	DocumentFrom *time.Time
	DocumentTo   *time.Time
	Limit        int
}

// BindingRepository persists bindings
type BindingRepository interface {
	// Find returns the binding for the key or ErrBindingNotFound
	Find(ctx context.Context, sourceID, externalID string, kind EntityKind) (*Binding, error)

	// Exists reports whether the key is bound
	Exists(ctx context.Context, sourceID, externalID string, kind EntityKind) (bool, error)

	// Create inserts a binding; a duplicate key yields ErrBindingConflict
	Create(ctx context.Context, binding *Binding) error

	// Save updates state, snapshot and timestamps of an existing binding
	Save(ctx context.Context, binding *Binding) error

	// Delete removes a stale binding explicitly
	Delete(ctx context.Context, id uuid.UUID) error

	// List returns bindings matching the filter ordered by document date, then external id
	List(ctx context.Context, filter BindingFilter) ([]Binding, error)

	// FindByInternalID returns the bindings pointing at an internal record
	FindByInternalID(ctx context.Context, kind EntityKind, internalID uuid.UUID) ([]Binding, error)
}
