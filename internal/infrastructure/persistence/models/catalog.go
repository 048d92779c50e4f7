package models

import (
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ProductTemplateModel is the persistence model for integration.ProductTemplate.
// A non-empty barcode is unique within a tenant.
type ProductTemplateModel struct {
	ID            uuid.UUID             `gorm:"type:uuid;primary_key"`
	TenantID      uuid.UUID             `gorm:"type:uuid;not null;index;uniqueIndex:idx_erp_product_templates_barcode,priority:1"`
	CreatedAt     time.Time             `gorm:"not null"`
	UpdatedAt     time.Time             `gorm:"not null"`
	Name          string                `gorm:"type:varchar(255);not null;index"`
	DefaultCode   string                `gorm:"type:varchar(100);index"`
	Barcode       string                `gorm:"type:varchar(64);uniqueIndex:idx_erp_product_templates_barcode,priority:2,where:barcode <> ''"`
	Description   string                `gorm:"type:text"`
	ListPrice     decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	CostPrice     decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	SupplierPrice decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	Stock         decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	CategoryPath  string                `gorm:"type:varchar(500)"`
	Brand         string                `gorm:"type:varchar(100)"`
	Images        []string              `gorm:"type:text;serializer:json"`
	SupplierID    *uuid.UUID            `gorm:"type:uuid;index"`
	SourceID      string                `gorm:"type:varchar(64);index"`
	Active        bool                  `gorm:"not null;index"`
	Variants      []ProductVariantModel `gorm:"foreignKey:TemplateID"`
}

// TableName returns the table name for GORM
func (ProductTemplateModel) TableName() string {
	return "erp_product_templates"
}

// BeforeCreate assigns an id to templates inserted without one
func (m *ProductTemplateModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model, with any loaded variants, to a domain ProductTemplate.
func (m *ProductTemplateModel) ToDomain() integration.ProductTemplate {
	t := integration.ProductTemplate{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Name:          m.Name,
		DefaultCode:   m.DefaultCode,
		Barcode:       m.Barcode,
		Description:   m.Description,
		ListPrice:     m.ListPrice,
		CostPrice:     m.CostPrice,
		SupplierPrice: m.SupplierPrice,
		Stock:         m.Stock,
		CategoryPath:  m.CategoryPath,
		Brand:         m.Brand,
		Images:        slices.Clone(m.Images),
		SupplierID:    m.SupplierID,
		SourceID:      m.SourceID,
		Active:        m.Active,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	for _, v := range m.Variants {
		t.Variants = append(t.Variants, v.ToDomain())
	}
	return t
}

// FromDomain populates the template columns from a domain ProductTemplate.
// Variants are persisted separately.
func (m *ProductTemplateModel) FromDomain(t *integration.ProductTemplate) {
	m.ID = t.ID
	m.TenantID = t.TenantID
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
	m.Name = t.Name
	m.DefaultCode = t.DefaultCode
	m.Barcode = t.Barcode
	m.Description = t.Description
	m.ListPrice = t.ListPrice
	m.CostPrice = t.CostPrice
	m.SupplierPrice = t.SupplierPrice
	m.Stock = t.Stock
	m.CategoryPath = t.CategoryPath
	m.Brand = t.Brand
	m.Images = slices.Clone(t.Images)
	m.SupplierID = t.SupplierID
	m.SourceID = t.SourceID
	m.Active = t.Active
}

// ProductVariantModel is the persistence model for integration.ProductVariant.
// AttributeKey is the deterministic rendering used to look variants up; a
// template has at most one variant per attribute set.
type ProductVariantModel struct {
	ID           uuid.UUID         `gorm:"type:uuid;primary_key"`
	TenantID     uuid.UUID         `gorm:"type:uuid;not null;index;uniqueIndex:idx_erp_product_variants_barcode,priority:1"`
	TemplateID   uuid.UUID         `gorm:"type:uuid;not null;uniqueIndex:idx_erp_variant_attrs,priority:1"`
	Barcode      string            `gorm:"type:varchar(64);uniqueIndex:idx_erp_product_variants_barcode,priority:2,where:barcode <> ''"`
	Attributes   map[string]string `gorm:"type:text;serializer:json"`
	AttributeKey string            `gorm:"type:varchar(500);not null;uniqueIndex:idx_erp_variant_attrs,priority:2"`
}

// TableName returns the table name for GORM
func (ProductVariantModel) TableName() string {
	return "erp_product_variants"
}

// BeforeCreate assigns an id to variants inserted without one
func (m *ProductVariantModel) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// ToDomain converts the persistence model to a domain ProductVariant.
func (m *ProductVariantModel) ToDomain() integration.ProductVariant {
	return integration.ProductVariant{
		ID:         m.ID,
		TemplateID: m.TemplateID,
		Barcode:    m.Barcode,
		Attributes: maps.Clone(m.Attributes),
	}
}

// ProductVariantModelFromDomain creates a persistence model for a variant of a tenant's template.
func ProductVariantModelFromDomain(tenantID uuid.UUID, v *integration.ProductVariant) *ProductVariantModel {
	return &ProductVariantModel{
		ID:           v.ID,
		TenantID:     tenantID,
		TemplateID:   v.TemplateID,
		Barcode:      v.Barcode,
		Attributes:   maps.Clone(v.Attributes),
		AttributeKey: v.AttributeKey(),
	}
}
