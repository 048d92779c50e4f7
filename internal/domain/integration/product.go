package integration

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultVariantAttribute is the attribute "BASE (VARIANT)" names create values on.
const DefaultVariantAttribute = "Color"

// ProductTemplate is a sellable or purchasable item as seen through ProductService
type ProductTemplate struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Name          string
	DefaultCode   string
	Barcode       string
	Description   string
	ListPrice     decimal.Decimal
	CostPrice     decimal.Decimal
	SupplierPrice decimal.Decimal
	Stock         decimal.Decimal
	CategoryPath  string
	Brand         string
	Images        []string
	SupplierID    *uuid.UUID
	SourceID      string
	Active        bool
	Variants      []ProductVariant
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ProductVariant is identified by (template id, attribute-value set)
type ProductVariant struct {
	ID         uuid.UUID
	TemplateID uuid.UUID
	Barcode    string
	// Attributes maps attribute name to value
	Attributes map[string]string
}

// FilledScore counts the non-empty descriptive fields; it breaks resolver ties
func (t *ProductTemplate) FilledScore() int {
	n := 0
	for _, v := range []string{t.DefaultCode, t.Barcode, t.Description, t.CategoryPath, t.Brand} {
		if v != "" {
			n++
		}
	}
	if len(t.Images) > 0 {
		n++
	}
	return n
}

// AttributeKey renders the attribute-value set deterministically, e.g. "Color=MAVI"
func (v ProductVariant) AttributeKey() string {
	return AttributeKey(v.Attributes)
}

// AttributeKey renders an attribute-value set deterministically
func AttributeKey(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + attrs[k]
	}
	return strings.Join(parts, ";")
}

// Product field names, the keys of ProductValues
const (
	ProductFieldName          = "name"
	ProductFieldBarcode       = "barcode"
	ProductFieldDescription   = "description"
	ProductFieldListPrice     = "list_price"
	ProductFieldCostPrice     = "cost_price"
	ProductFieldSupplierPrice = "supplier_price"
	ProductFieldStock         = "stock"
	ProductFieldCategory      = "category_path"
	ProductFieldBrand         = "brand"
	ProductFieldImages        = "images"
	ProductFieldActive        = "active"
)

// ProductValues is a set of field writes keyed by ProductField* names
type ProductValues map[string]any

// Apply sets the written fields on t. Unknown keys and mistyped values are ignored.
func (t *ProductTemplate) Apply(values ProductValues) {
	for field, v := range values {
		switch val := v.(type) {
		case string:
			switch field {
			case ProductFieldName:
				t.Name = val
			case ProductFieldBarcode:
				t.Barcode = val
			case ProductFieldDescription:
				t.Description = val
			case ProductFieldCategory:
				t.CategoryPath = val
			case ProductFieldBrand:
				t.Brand = val
			}
		case decimal.Decimal:
			switch field {
			case ProductFieldListPrice:
				t.ListPrice = val
			case ProductFieldCostPrice:
				t.CostPrice = val
			case ProductFieldSupplierPrice:
				t.SupplierPrice = val
			case ProductFieldStock:
				t.Stock = val
			}
		case []string:
			if field == ProductFieldImages {
				t.Images = append([]string(nil), val...)
			}
		case bool:
			if field == ProductFieldActive {
				t.Active = val
			}
		}
	}
}

// ProductService is the Product collaborator contract
type ProductService interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*ProductTemplate, error)

	// FindVariantByBarcode returns the variant and its template
	FindVariantByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*ProductVariant, *ProductTemplate, error)

	FindTemplateBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*ProductTemplate, error)

	// FindTemplatesBySKUPrefix returns templates whose default code starts with prefix
	FindTemplatesBySKUPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) ([]ProductTemplate, error)

	FindTemplateByName(ctx context.Context, tenantID uuid.UUID, name string) (*ProductTemplate, error)

	// ListForMatching returns active templates for similarity scans
	ListForMatching(ctx context.Context, tenantID uuid.UUID) ([]ProductTemplate, error)

	CreateTemplate(ctx context.Context, template *ProductTemplate) error

	UpdateTemplate(ctx context.Context, id uuid.UUID, values ProductValues) error

	// FindVariant returns the variant of a template with exactly the given attributes
	FindVariant(ctx context.Context, templateID uuid.UUID, attrs map[string]string) (*ProductVariant, error)

	// CreateVariant adds a variant; the attribute values are created on demand
	CreateVariant(ctx context.Context, variant *ProductVariant) error
}
