package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Partner field names. They double as the keys of PartnerValues.
const (
	PartnerFieldName         = "name"
	PartnerFieldStreet       = "street"
	PartnerFieldStreet2      = "street2"
	PartnerFieldCity         = "city"
	PartnerFieldDistrict     = "district"
	PartnerFieldZip          = "zip"
	PartnerFieldCountry      = "country"
	PartnerFieldState        = "state"
	PartnerFieldPhone        = "phone"
	PartnerFieldMobile       = "mobile"
	PartnerFieldEmail        = "email"
	PartnerFieldWebsite      = "website"
	PartnerFieldTaxID        = "tax_id"
	PartnerFieldTaxOffice    = "tax_office"
	PartnerFieldComment      = "comment"
	PartnerFieldImage        = "image"
	PartnerFieldIBAN         = "iban"
	PartnerFieldCustomerRank = "customer_rank"
	PartnerFieldSupplierRank = "supplier_rank"
	PartnerFieldTaxExempt    = "is_tax_exempt"
	PartnerFieldFiscalPos    = "fiscal_position"
)

// Partner is a legal or natural counterparty as seen through PartnerService
type Partner struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	// ParentID is set on branches and contacts
	ParentID       *uuid.UUID
	Name           string
	NormalizedName string
	TaxID          string
	TaxOffice      string
	Street         string
	Street2        string
	City           string
	District       string
	Zip            string
	Country        string
	State          string
	Phone          string
	Mobile         string
	Email          string
	Website        string
	Comment        string
	IBANs          []string
	// FiscalPosition is the name of the partner's fiscal position, if any
	FiscalPosition string
	IsCompany      bool
	IsTaxExempt    bool
	NeverInvoice   bool
	CustomerRank   int
	SupplierRank   int
	// CreatedBySource is the source id that created the partner
	CreatedBySource string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FilledScore counts the non-empty identity fields; it breaks resolver ties
func (p *Partner) FilledScore() int {
	n := 0
	for _, v := range []string{p.TaxID, p.Phone, p.Mobile, p.Email, p.Street, p.City} {
		if v != "" {
			n++
		}
	}
	return n
}

// FieldValue returns the current value of a string field, "" when unknown
func (p *Partner) FieldValue(field string) string {
	switch field {
	case PartnerFieldName:
		return p.Name
	case PartnerFieldStreet:
		return p.Street
	case PartnerFieldStreet2:
		return p.Street2
	case PartnerFieldCity:
		return p.City
	case PartnerFieldDistrict:
		return p.District
	case PartnerFieldZip:
		return p.Zip
	case PartnerFieldCountry:
		return p.Country
	case PartnerFieldState:
		return p.State
	case PartnerFieldPhone:
		return p.Phone
	case PartnerFieldMobile:
		return p.Mobile
	case PartnerFieldEmail:
		return p.Email
	case PartnerFieldWebsite:
		return p.Website
	case PartnerFieldTaxID:
		return p.TaxID
	case PartnerFieldTaxOffice:
		return p.TaxOffice
	case PartnerFieldComment:
		return p.Comment
	case PartnerFieldIBAN:
		if len(p.IBANs) > 0 {
			return p.IBANs[0]
		}
	}
	return ""
}

// PartnerValues is a set of field writes keyed by PartnerField* names
type PartnerValues map[string]any

// Fields returns the written field names
func (v PartnerValues) Fields() []string {
	out := make([]string, 0, len(v))
	for k := range v {
		out = append(out, k)
	}
	return out
}

// Apply sets the written fields on p. Unknown keys and mistyped values are ignored.
func (p *Partner) Apply(values PartnerValues) {
	for field, v := range values {
		switch val := v.(type) {
		case string:
			p.setString(field, val)
		case []string:
			if field == PartnerFieldIBAN {
				p.IBANs = append([]string(nil), val...)
			}
		case int:
			switch field {
			case PartnerFieldCustomerRank:
				p.CustomerRank = val
			case PartnerFieldSupplierRank:
				p.SupplierRank = val
			}
		case bool:
			if field == PartnerFieldTaxExempt {
				p.IsTaxExempt = val
			}
		}
	}
}

func (p *Partner) setString(field, v string) {
	switch field {
	case PartnerFieldName:
		p.Name = v
	case PartnerFieldStreet:
		p.Street = v
	case PartnerFieldStreet2:
		p.Street2 = v
	case PartnerFieldCity:
		p.City = v
	case PartnerFieldDistrict:
		p.District = v
	case PartnerFieldZip:
		p.Zip = v
	case PartnerFieldCountry:
		p.Country = v
	case PartnerFieldState:
		p.State = v
	case PartnerFieldPhone:
		p.Phone = v
	case PartnerFieldMobile:
		p.Mobile = v
	case PartnerFieldEmail:
		p.Email = v
	case PartnerFieldWebsite:
		p.Website = v
	case PartnerFieldTaxID:
		p.TaxID = v
	case PartnerFieldTaxOffice:
		p.TaxOffice = v
	case PartnerFieldComment:
		p.Comment = v
	case PartnerFieldFiscalPos:
		p.FiscalPosition = v
	case PartnerFieldIBAN:
		p.IBANs = append([]string{v}, p.IBANs...)
	}
}

// PartnerService is the Partner collaborator contract
type PartnerService interface {
	Get(ctx context.Context, id uuid.UUID) (*Partner, error)

	// FindByTaxID returns partners whose tax id equals any of the variants
	FindByTaxID(ctx context.Context, tenantID uuid.UUID, variants []string) ([]Partner, error)

	// FindByPhone matches the normalized phone against phone and mobile
	FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) ([]Partner, error)

	// FindByEmail matches case-insensitively
	FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]Partner, error)

	// ListForMatching returns the top-level partners of a tenant for similarity scans
	ListForMatching(ctx context.Context, tenantID uuid.UUID) ([]Partner, error)

	Create(ctx context.Context, partner *Partner) error

	// Update applies field writes to an existing partner
	Update(ctx context.Context, id uuid.UUID, values PartnerValues) error
}
