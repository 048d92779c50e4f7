package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

// GormProductService implements integration.ProductService over the
// erp_product_templates and erp_product_variants tables
type GormProductService struct {
	db *gorm.DB
}

// NewGormProductService creates a new GormProductService
func NewGormProductService(db *gorm.DB) *GormProductService {
	return &GormProductService{db: db}
}

func (s *GormProductService) templates(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.ProductTemplateModel{}).Preload("Variants")
}

func (s *GormProductService) first(query *gorm.DB) (*integration.ProductTemplate, error) {
	var model models.ProductTemplateModel
	if err := query.Order("created_at ASC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrProductNotFound
		}
		return nil, err
	}
	t := model.ToDomain()
	return &t, nil
}

func (s *GormProductService) list(query *gorm.DB) ([]integration.ProductTemplate, error) {
	var rows []models.ProductTemplateModel
	if err := query.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.ProductTemplate, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// GetTemplate returns a template with its variants
func (s *GormProductService) GetTemplate(ctx context.Context, id uuid.UUID) (*integration.ProductTemplate, error) {
	return s.first(s.templates(ctx).Where("id = ?", id))
}

// FindVariantByBarcode returns the variant carrying barcode and its template
func (s *GormProductService) FindVariantByBarcode(ctx context.Context, tenantID uuid.UUID, barcode string) (*integration.ProductVariant, *integration.ProductTemplate, error) {
	if barcode == "" {
		return nil, nil, integration.ErrProductNotFound
	}
	var variant models.ProductVariantModel
	err := s.db.WithContext(ctx).Where("tenant_id = ? AND barcode = ?", tenantID, barcode).First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, integration.ErrProductNotFound
		}
		return nil, nil, err
	}
	template, err := s.GetTemplate(ctx, variant.TemplateID)
	if err != nil {
		return nil, nil, err
	}
	v := variant.ToDomain()
	return &v, template, nil
}

// FindTemplateBySKU matches the default code exactly
func (s *GormProductService) FindTemplateBySKU(ctx context.Context, tenantID uuid.UUID, sku string) (*integration.ProductTemplate, error) {
	if sku == "" {
		return nil, integration.ErrProductNotFound
	}
	return s.first(s.templates(ctx).Where("tenant_id = ? AND default_code = ?", tenantID, sku))
}

// FindTemplatesBySKUPrefix returns templates whose default code starts with prefix
func (s *GormProductService) FindTemplatesBySKUPrefix(ctx context.Context, tenantID uuid.UUID, prefix string) ([]integration.ProductTemplate, error) {
	return s.list(s.templates(ctx).Where(
		"tenant_id = ? AND default_code <> '' AND default_code LIKE ? ESCAPE '!'",
		tenantID, likeEscaper.Replace(prefix)+"%",
	))
}

// FindTemplateByName matches the name case-insensitively
func (s *GormProductService) FindTemplateByName(ctx context.Context, tenantID uuid.UUID, name string) (*integration.ProductTemplate, error) {
	return s.first(s.templates(ctx).Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name))
}

// ListForMatching returns the active templates of a tenant
func (s *GormProductService) ListForMatching(ctx context.Context, tenantID uuid.UUID) ([]integration.ProductTemplate, error) {
	return s.list(s.templates(ctx).Where("tenant_id = ? AND active = ?", tenantID, true))
}

// CreateTemplate inserts a template together with its variants
func (s *GormProductService) CreateTemplate(ctx context.Context, template *integration.ProductTemplate) error {
	if template.ID == uuid.Nil {
		template.ID = uuid.New()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := &models.ProductTemplateModel{}
		model.FromDomain(template)
		if err := tx.Omit("Variants").Create(model).Error; err != nil {
			return productConflict(err)
		}
		for i := range template.Variants {
			v := &template.Variants[i]
			v.TemplateID = template.ID
			vm := models.ProductVariantModelFromDomain(template.TenantID, v)
			if err := tx.Create(vm).Error; err != nil {
				return productConflict(err)
			}
			v.ID = vm.ID
		}
		return nil
	})
}

// UpdateTemplate applies values to a stored template
func (s *GormProductService) UpdateTemplate(ctx context.Context, id uuid.UUID, values integration.ProductValues) error {
	var model models.ProductTemplateModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return integration.ErrProductNotFound
		}
		return err
	}
	template := model.ToDomain()
	template.Apply(values)
	model.FromDomain(&template)
	err := s.db.WithContext(ctx).Model(&model).Select("*").Omit("id", "tenant_id", "created_at", "Variants").Updates(&model).Error
	return productConflict(err)
}

// FindVariant returns the variant of a template with exactly attrs
func (s *GormProductService) FindVariant(ctx context.Context, templateID uuid.UUID, attrs map[string]string) (*integration.ProductVariant, error) {
	var variant models.ProductVariantModel
	err := s.db.WithContext(ctx).
		Where("template_id = ? AND attribute_key = ?", templateID, integration.AttributeKey(attrs)).
		First(&variant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrProductNotFound
		}
		return nil, err
	}
	v := variant.ToDomain()
	return &v, nil
}

// CreateVariant adds a variant to an existing template
func (s *GormProductService) CreateVariant(ctx context.Context, variant *integration.ProductVariant) error {
	var template models.ProductTemplateModel
	if err := s.db.WithContext(ctx).Select("id", "tenant_id").Where("id = ?", variant.TemplateID).First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return integration.ErrProductNotFound
		}
		return err
	}
	model := models.ProductVariantModelFromDomain(template.TenantID, variant)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return productConflict(err)
	}
	variant.ID = model.ID
	return nil
}

// productConflict maps unique violations on barcodes and attribute sets
func productConflict(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", integration.ErrProductConflict, err)
	}
	return err
}

var _ integration.ProductService = (*GormProductService)(nil)
