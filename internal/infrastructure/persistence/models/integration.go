package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
)

// BindingModel is the persistence model for integration.Binding.
type BindingModel struct {
	ID              uuid.UUID                `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID                `gorm:"type:uuid;not null;index"`
	SourceID        string                   `gorm:"type:varchar(64);not null;uniqueIndex:idx_edire_binding_key,priority:1"`
	ExternalID      string                   `gorm:"type:varchar(255);not null;uniqueIndex:idx_edire_binding_key,priority:2"`
	EntityKind      integration.EntityKind   `gorm:"type:varchar(20);not null;uniqueIndex:idx_edire_binding_key,priority:3;index:idx_edire_binding_internal,priority:1"`
	InternalID      *uuid.UUID               `gorm:"type:uuid;index:idx_edire_binding_internal,priority:2"`
	State           integration.BindingState `gorm:"type:varchar(20);not null;index"`
	DocumentDate    *time.Time               `gorm:"index"`
	PartnerID       *uuid.UUID               `gorm:"type:uuid"`
	PayloadHash     string                   `gorm:"type:varchar(64)"`
	PayloadSnapshot []byte                   `gorm:"type:bytea"`
	FirstSeenAt     time.Time                `gorm:"not null"`
	LastSyncAt      time.Time                `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BindingModel) TableName() string {
	return "edire_bindings"
}

// ToDomain converts the persistence model to a domain Binding.
func (m *BindingModel) ToDomain() integration.Binding {
	return integration.Binding{
		ID:              m.ID,
		TenantID:        m.TenantID,
		SourceID:        m.SourceID,
		ExternalID:      m.ExternalID,
		EntityKind:      m.EntityKind,
		InternalID:      m.InternalID,
		State:           m.State,
		DocumentDate:    m.DocumentDate,
		PartnerID:       m.PartnerID,
		PayloadHash:     m.PayloadHash,
		PayloadSnapshot: m.PayloadSnapshot,
		FirstSeenAt:     m.FirstSeenAt,
		LastSyncAt:      m.LastSyncAt,
	}
}

// BindingModelFromDomain creates a persistence model from a domain Binding.
func BindingModelFromDomain(b *integration.Binding) *BindingModel {
	return &BindingModel{
		ID:              b.ID,
		TenantID:        b.TenantID,
		SourceID:        b.SourceID,
		ExternalID:      b.ExternalID,
		EntityKind:      b.EntityKind,
		InternalID:      b.InternalID,
		State:           b.State,
		DocumentDate:    b.DocumentDate,
		PartnerID:       b.PartnerID,
		PayloadHash:     b.PayloadHash,
		PayloadSnapshot: b.PayloadSnapshot,
		FirstSeenAt:     b.FirstSeenAt,
		LastSyncAt:      b.LastSyncAt,
	}
}

// CheckpointModel is the persistence model for integration.SyncCheckpoint.
// One row exists per (source, kind, direction, tenant).
type CheckpointModel struct {
	SourceID        string                   `gorm:"type:varchar(64);primaryKey"`
	Kind            integration.DocumentKind `gorm:"type:varchar(20);primaryKey"`
	Direction       integration.Direction    `gorm:"type:varchar(20);primaryKey"`
	TenantID        uuid.UUID                `gorm:"type:uuid;primaryKey"`
	LastFetchedDate time.Time                `gorm:"not null"`
	LastExternalID  string                   `gorm:"type:varchar(255)"`
	UpdatedAt       time.Time                `gorm:"not null;autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (CheckpointModel) TableName() string {
	return "edire_checkpoints"
}

// ToDomain converts the persistence model to a domain SyncCheckpoint.
func (m *CheckpointModel) ToDomain() *integration.SyncCheckpoint {
	return &integration.SyncCheckpoint{
		CheckpointKey: integration.CheckpointKey{
			SourceID:  m.SourceID,
			Kind:      m.Kind,
			Direction: m.Direction,
			TenantID:  m.TenantID,
		},
		LastFetchedDate: m.LastFetchedDate,
		LastExternalID:  m.LastExternalID,
		UpdatedAt:       m.UpdatedAt,
	}
}

// CheckpointModelFromDomain creates a persistence model from a domain SyncCheckpoint.
func CheckpointModelFromDomain(c *integration.SyncCheckpoint) *CheckpointModel {
	return &CheckpointModel{
		SourceID:        c.SourceID,
		Kind:            c.Kind,
		Direction:       c.Direction,
		TenantID:        c.TenantID,
		LastFetchedDate: c.LastFetchedDate,
		LastExternalID:  c.LastExternalID,
		UpdatedAt:       c.UpdatedAt,
	}
}

// SyncLogModel is the persistence model for integration.SyncLog.
type SyncLogModel struct {
	ID              uuid.UUID              `gorm:"type:uuid;primary_key"`
	TenantID        uuid.UUID              `gorm:"type:uuid;not null;index"`
	SourceID        string                 `gorm:"type:varchar(64);not null;index:idx_edire_sync_log_source,priority:1"`
	Operation       string                 `gorm:"type:varchar(64);not null"`
	Status          integration.SyncStatus `gorm:"type:varchar(20);not null;index"`
	Created         int                    `gorm:"column:created_count;not null;default:0"`
	Updated         int                    `gorm:"column:updated_count;not null;default:0"`
	Failed          int                    `gorm:"column:failed_count;not null;default:0"`
	Skipped         int                    `gorm:"column:skipped_count;not null;default:0"`
	Message         string                 `gorm:"type:text"`
	RequestSnippet  string                 `gorm:"type:text"`
	ResponseSnippet string                 `gorm:"type:text"`
	StartedAt       time.Time              `gorm:"not null"`
	FinishedAt      *time.Time
	CreatedAt       time.Time `gorm:"not null;index:idx_edire_sync_log_source,priority:2"`
}

// TableName returns the table name for GORM
func (SyncLogModel) TableName() string {
	return "edire_sync_logs"
}

// ToDomain converts the persistence model to a domain SyncLog.
func (m *SyncLogModel) ToDomain() integration.SyncLog {
	return integration.SyncLog{
		ID:              m.ID,
		TenantID:        m.TenantID,
		SourceID:        m.SourceID,
		Operation:       m.Operation,
		Status:          m.Status,
		Created:         m.Created,
		Updated:         m.Updated,
		Failed:          m.Failed,
		Skipped:         m.Skipped,
		Message:         m.Message,
		RequestSnippet:  m.RequestSnippet,
		ResponseSnippet: m.ResponseSnippet,
		StartedAt:       m.StartedAt,
		FinishedAt:      m.FinishedAt,
		CreatedAt:       m.CreatedAt,
	}
}

// SyncLogModelFromDomain creates a persistence model from a domain SyncLog.
func SyncLogModelFromDomain(l *integration.SyncLog) *SyncLogModel {
	return &SyncLogModel{
		ID:              l.ID,
		TenantID:        l.TenantID,
		SourceID:        l.SourceID,
		Operation:       l.Operation,
		Status:          l.Status,
		Created:         l.Created,
		Updated:         l.Updated,
		Failed:          l.Failed,
		Skipped:         l.Skipped,
		Message:         l.Message,
		RequestSnippet:  l.RequestSnippet,
		ResponseSnippet: l.ResponseSnippet,
		StartedAt:       l.StartedAt,
		FinishedAt:      l.FinishedAt,
		CreatedAt:       l.CreatedAt,
	}
}

// SourceStatusModel keeps the last known state of each source.
type SourceStatusModel struct {
	SourceID  string                  `gorm:"type:varchar(64);primaryKey"`
	State     integration.SourceState `gorm:"type:varchar(20);not null"`
	LastError string                  `gorm:"type:text"`
	UpdatedAt time.Time               `gorm:"not null;autoUpdateTime:false"`
}

// TableName returns the table name for GORM
func (SourceStatusModel) TableName() string {
	return "edire_source_states"
}

// ToDomain converts the persistence model to a domain SourceStatus.
func (m *SourceStatusModel) ToDomain() *integration.SourceStatus {
	return &integration.SourceStatus{
		SourceID:  m.SourceID,
		State:     m.State,
		LastError: m.LastError,
		UpdatedAt: m.UpdatedAt,
	}
}
