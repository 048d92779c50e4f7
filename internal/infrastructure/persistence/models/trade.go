package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/shopspring/decimal"
)

// SaleOrderModel stores non-invoice transactions routed away from the ledger.
type SaleOrderModel struct {
	TenantModel
	PartnerID *uuid.UUID           `gorm:"type:uuid;index"`
	Date      time.Time            `gorm:"not null;index"`
	Currency  string               `gorm:"type:varchar(3);not null"`
	Ref       string               `gorm:"type:varchar(255);index"`
	Total     decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	SourceID  string               `gorm:"type:varchar(64);index"`
	Lines     []SaleOrderLineModel `gorm:"foreignKey:OrderID"`
}

// TableName returns the table name for GORM
func (SaleOrderModel) TableName() string {
	return "erp_sale_orders"
}

// SaleOrderLineModel is a line of a SaleOrderModel. Tax is never applied.
type SaleOrderLineModel struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key"`
	OrderID   uuid.UUID       `gorm:"type:uuid;not null;index"`
	Sequence  int             `gorm:"not null"`
	Name      string          `gorm:"type:varchar(500)"`
	ProductID *uuid.UUID      `gorm:"type:uuid"`
	Quantity  decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PriceUnit decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (SaleOrderLineModel) TableName() string {
	return "erp_sale_order_lines"
}

// SaleOrderModelFromDraft creates an order with its lines from a draft.
func SaleOrderModelFromDraft(d integration.SaleOrderDraft) *SaleOrderModel {
	m := &SaleOrderModel{
		TenantModel: TenantModel{ID: uuid.New(), TenantID: d.TenantID},
		PartnerID:   d.PartnerID,
		Date:        d.Date,
		Currency:    d.Currency,
		Ref:         d.Ref,
		Total:       d.Total,
		SourceID:    d.SourceID,
	}
	for i, l := range d.Lines {
		m.Lines = append(m.Lines, SaleOrderLineModel{
			ID:        uuid.New(),
			OrderID:   m.ID,
			Sequence:  i + 1,
			Name:      l.Name,
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			PriceUnit: l.PriceUnit,
		})
	}
	return m
}
