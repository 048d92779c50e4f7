package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckpointKey identifies a checkpoint row
type CheckpointKey struct {
	SourceID  string
	Kind      DocumentKind
	Direction Direction
	TenantID  uuid.UUID
}

// SyncCheckpoint is the per (source, kind, direction, tenant) cursor.
// LastFetchedDate never decreases.
type SyncCheckpoint struct {
	CheckpointKey
	LastFetchedDate time.Time
	// LastExternalID is the last external id seen, when the upstream pages by id
	LastExternalID string
	UpdatedAt      time.Time
}

// NewSyncCheckpoint starts a cursor at start
func NewSyncCheckpoint(key CheckpointKey, start time.Time) *SyncCheckpoint {
	return &SyncCheckpoint{CheckpointKey: key, LastFetchedDate: start}
}

// Advance moves the cursor to date. Earlier dates are ignored so the cursor stays
// monotonic; the return value reports whether it moved.
func (c *SyncCheckpoint) Advance(date time.Time, externalID string, now time.Time) bool {
	if date.IsZero() || !date.After(c.LastFetchedDate) {
		if date.Equal(c.LastFetchedDate) && externalID != "" {
			c.LastExternalID = externalID
			c.UpdatedAt = now
		}
		return false
	}
	c.LastFetchedDate = date
	c.LastExternalID = externalID
	c.UpdatedAt = now
	return true
}

// CheckpointRepository persists checkpoints
type CheckpointRepository interface {
	// Get returns the checkpoint or nil when none exists yet
	Get(ctx context.Context, key CheckpointKey) (*SyncCheckpoint, error)

	// Save upserts a checkpoint. Saving a date earlier than the stored one
	// yields ErrCheckpointRegression.
	Save(ctx context.Context, checkpoint *SyncCheckpoint) error
}
