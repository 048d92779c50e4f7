package models

import (
	"slices"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// PartnerModel is the persistence model for integration.Partner.
// PhoneKey and MobileKey hold the normalized numbers used for matching.
type PartnerModel struct {
	TenantModel
	ParentID        *uuid.UUID `gorm:"type:uuid;index"`
	Name            string     `gorm:"type:varchar(255);not null"`
	NormalizedName  string     `gorm:"type:varchar(255);index"`
	TaxID           string     `gorm:"type:varchar(20);index"`
	TaxOffice       string     `gorm:"type:varchar(100)"`
	Street          string     `gorm:"type:varchar(255)"`
	Street2         string     `gorm:"type:varchar(255)"`
	City            string     `gorm:"type:varchar(100)"`
	District        string     `gorm:"type:varchar(100)"`
	Zip             string     `gorm:"type:varchar(20)"`
	Country         string     `gorm:"type:varchar(100)"`
	State           string     `gorm:"type:varchar(100)"`
	Phone           string     `gorm:"type:varchar(50)"`
	PhoneKey        string     `gorm:"type:varchar(20);index"`
	Mobile          string     `gorm:"type:varchar(50)"`
	MobileKey       string     `gorm:"type:varchar(20);index"`
	Email           string     `gorm:"type:varchar(200);index"`
	Website         string     `gorm:"type:varchar(255)"`
	Comment         string     `gorm:"type:text"`
	IBANs           []string   `gorm:"column:ibans;type:text;serializer:json"`
	FiscalPosition  string     `gorm:"type:varchar(100)"`
	IsCompany       bool       `gorm:"not null;default:false"`
	IsTaxExempt     bool       `gorm:"not null;default:false"`
	NeverInvoice    bool       `gorm:"not null;default:false"`
	CustomerRank    int        `gorm:"not null;default:0"`
	SupplierRank    int        `gorm:"not null;default:0"`
	CreatedBySource string     `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (PartnerModel) TableName() string {
	return "erp_partners"
}

// ToDomain converts the persistence model to a domain Partner.
func (m *PartnerModel) ToDomain() integration.Partner {
	return integration.Partner{
		ID:              m.ID,
		TenantID:        m.TenantID,
		ParentID:        m.ParentID,
		Name:            m.Name,
		NormalizedName:  m.NormalizedName,
		TaxID:           m.TaxID,
		TaxOffice:       m.TaxOffice,
		Street:          m.Street,
		Street2:         m.Street2,
		City:            m.City,
		District:        m.District,
		Zip:             m.Zip,
		Country:         m.Country,
		State:           m.State,
		Phone:           m.Phone,
		Mobile:          m.Mobile,
		Email:           m.Email,
		Website:         m.Website,
		Comment:         m.Comment,
		IBANs:           slices.Clone(m.IBANs),
		FiscalPosition:  m.FiscalPosition,
		IsCompany:       m.IsCompany,
		IsTaxExempt:     m.IsTaxExempt,
		NeverInvoice:    m.NeverInvoice,
		CustomerRank:    m.CustomerRank,
		SupplierRank:    m.SupplierRank,
		CreatedBySource: m.CreatedBySource,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Partner.
func (m *PartnerModel) FromDomain(p *integration.Partner) {
	m.ID = p.ID
	m.TenantID = p.TenantID
	m.CreatedAt = p.CreatedAt
	m.UpdatedAt = p.UpdatedAt
	m.ParentID = p.ParentID
	m.Name = p.Name
	m.NormalizedName = p.NormalizedName
	if m.NormalizedName == "" {
		m.NormalizedName = normalize.Name(p.Name)
	}
	m.TaxID = p.TaxID
	m.TaxOffice = p.TaxOffice
	m.Street = p.Street
	m.Street2 = p.Street2
	m.City = p.City
	m.District = p.District
	m.Zip = p.Zip
	m.Country = p.Country
	m.State = p.State
	m.Phone = p.Phone
	m.PhoneKey = normalize.Phone(p.Phone)
	m.Mobile = p.Mobile
	m.MobileKey = normalize.Phone(p.Mobile)
	m.Email = p.Email
	m.Website = p.Website
	m.Comment = p.Comment
	m.IBANs = slices.Clone(p.IBANs)
	m.FiscalPosition = p.FiscalPosition
	m.IsCompany = p.IsCompany
	m.IsTaxExempt = p.IsTaxExempt
	m.NeverInvoice = p.NeverInvoice
	m.CustomerRank = p.CustomerRank
	m.SupplierRank = p.SupplierRank
	m.CreatedBySource = p.CreatedBySource
}
