package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantModel provides the common columns of tenant-scoped ERP records.
type TenantModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// BeforeCreate assigns an id to records inserted without one
func (m *TenantModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// All returns every model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&BindingModel{},
		&CheckpointModel{},
		&SyncLogModel{},
		&SourceStatusModel{},
		&PartnerModel{},
		&ProductTemplateModel{},
		&ProductVariantModel{},
		&LedgerEntryModel{},
		&LedgerLineModel{},
		&SaleOrderModel{},
		&SaleOrderLineModel{},
	}
}
