package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerEntryModel is the persistence model for integration.LedgerEntry.
type LedgerEntryModel struct {
	TenantModel
	MoveType  integration.MoveType `gorm:"type:varchar(20);not null;index"`
	PartnerID *uuid.UUID           `gorm:"type:uuid;index"`
	Date      time.Time            `gorm:"not null;index"`
	Total     decimal.Decimal      `gorm:"type:decimal(18,4);not null"`
	Currency  string               `gorm:"type:varchar(3);not null"`
	Ref       string               `gorm:"type:varchar(255);index"`
	Name      string               `gorm:"type:varchar(255);index"`
	Posted    bool                 `gorm:"not null;default:false"`
	SourceID  string               `gorm:"type:varchar(64);index"`
	Lines     []LedgerLineModel    `gorm:"foreignKey:EntryID"`
}

// TableName returns the table name for GORM
func (LedgerEntryModel) TableName() string {
	return "erp_ledger_entries"
}

// ToDomain converts the persistence model, with any loaded lines, to a domain LedgerEntry.
func (m *LedgerEntryModel) ToDomain() integration.LedgerEntry {
	e := integration.LedgerEntry{
		ID:        m.ID,
		TenantID:  m.TenantID,
		MoveType:  m.MoveType,
		PartnerID: m.PartnerID,
		Date:      m.Date,
		Total:     m.Total,
		Currency:  m.Currency,
		Ref:       m.Ref,
		Name:      m.Name,
		Posted:    m.Posted,
		SourceID:  m.SourceID,
		CreatedAt: m.CreatedAt,
	}
	for _, l := range m.Lines {
		e.Lines = append(e.Lines, l.ToDomain())
	}
	return e
}

// LedgerEntryModelFromDraft creates an unposted entry with its lines from a draft.
func LedgerEntryModelFromDraft(d integration.EntryDraft) *LedgerEntryModel {
	m := &LedgerEntryModel{
		TenantModel: TenantModel{ID: uuid.New(), TenantID: d.TenantID},
		MoveType:    d.MoveType,
		PartnerID:   d.PartnerID,
		Date:        d.Date,
		Total:       d.Total,
		Currency:    d.Currency,
		Ref:         d.Ref,
		Name:        d.Name,
		SourceID:    d.SourceID,
	}
	for i, l := range d.Lines {
		m.Lines = append(m.Lines, ledgerLineModel(m.ID, i+1, l))
	}
	return m
}

// LedgerLineModel is the persistence model for integration.LedgerLine.
type LedgerLineModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primary_key"`
	EntryID     uuid.UUID       `gorm:"type:uuid;not null;index"`
	Sequence    int             `gorm:"not null"`
	Name        string          `gorm:"type:varchar(500);index"`
	Ref         string          `gorm:"type:varchar(255);index"`
	PartnerID   *uuid.UUID      `gorm:"type:uuid;index"`
	AccountCode string          `gorm:"type:varchar(32)"`
	ProductID   *uuid.UUID      `gorm:"type:uuid"`
	Quantity    decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	PriceUnit   decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	TaxPercent  decimal.Decimal `gorm:"type:decimal(6,2);not null"`
	Debit       decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	Credit      decimal.Decimal `gorm:"type:decimal(18,4);not null"`
}

// TableName returns the table name for GORM
func (LedgerLineModel) TableName() string {
	return "erp_ledger_lines"
}

// BeforeCreate assigns an id to lines inserted without one
func (m *LedgerLineModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model to a domain LedgerLine.
func (m *LedgerLineModel) ToDomain() integration.LedgerLine {
	return integration.LedgerLine{
		Name:        m.Name,
		Ref:         m.Ref,
		PartnerID:   m.PartnerID,
		AccountCode: m.AccountCode,
		ProductID:   m.ProductID,
		Quantity:    m.Quantity,
		PriceUnit:   m.PriceUnit,
		TaxPercent:  m.TaxPercent,
		Debit:       m.Debit,
		Credit:      m.Credit,
	}
}

func ledgerLineModel(entryID uuid.UUID, seq int, l integration.LedgerLine) LedgerLineModel {
	return LedgerLineModel{
		ID:          uuid.New(),
		EntryID:     entryID,
		Sequence:    seq,
		Name:        l.Name,
		Ref:         l.Ref,
		PartnerID:   l.PartnerID,
		AccountCode: l.AccountCode,
		ProductID:   l.ProductID,
		Quantity:    l.Quantity,
		PriceUnit:   l.PriceUnit,
		TaxPercent:  l.TaxPercent,
		Debit:       l.Debit,
		Credit:      l.Credit,
	}
}
