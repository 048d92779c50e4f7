package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormPartnerService implements integration.PartnerService over the erp_partners table
type GormPartnerService struct {
	db *gorm.DB
}

// NewGormPartnerService creates a new GormPartnerService
func NewGormPartnerService(db *gorm.DB) *GormPartnerService {
	return &GormPartnerService{db: db}
}

// Get returns a partner by id
func (s *GormPartnerService) Get(ctx context.Context, id uuid.UUID) (*integration.Partner, error) {
	model, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	p := model.ToDomain()
	return &p, nil
}

func (s *GormPartnerService) find(ctx context.Context, id uuid.UUID) (*models.PartnerModel, error) {
	var model models.PartnerModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrPartnerNotFound
		}
		return nil, err
	}
	return &model, nil
}

func (s *GormPartnerService) list(query *gorm.DB) ([]integration.Partner, error) {
	var rows []models.PartnerModel
	if err := query.Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.Partner, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByTaxID returns partners whose tax id equals any of the variants
func (s *GormPartnerService) FindByTaxID(ctx context.Context, tenantID uuid.UUID, variants []string) ([]integration.Partner, error) {
	if len(variants) == 0 {
		return nil, nil
	}
	return s.list(s.db.WithContext(ctx).
		Where("tenant_id = ? AND tax_id <> '' AND tax_id IN ?", tenantID, variants))
}

// FindByPhone matches an already normalized number against phone and mobile
func (s *GormPartnerService) FindByPhone(ctx context.Context, tenantID uuid.UUID, phone string) ([]integration.Partner, error) {
	if phone == "" {
		return nil, nil
	}
	return s.list(s.db.WithContext(ctx).
		Where("tenant_id = ? AND (phone_key = ? OR mobile_key = ?)", tenantID, phone, phone))
}

// FindByEmail matches case-insensitively
func (s *GormPartnerService) FindByEmail(ctx context.Context, tenantID uuid.UUID, email string) ([]integration.Partner, error) {
	if email == "" {
		return nil, nil
	}
	return s.list(s.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(email) = LOWER(?)", tenantID, email))
}

// ListForMatching returns the top-level partners of a tenant
func (s *GormPartnerService) ListForMatching(ctx context.Context, tenantID uuid.UUID) ([]integration.Partner, error) {
	return s.list(s.db.WithContext(ctx).Where("tenant_id = ? AND parent_id IS NULL", tenantID))
}

// Create inserts a partner, assigning an id when it has none
func (s *GormPartnerService) Create(ctx context.Context, partner *integration.Partner) error {
	if partner.ID == uuid.Nil {
		partner.ID = uuid.New()
	}
	model := &models.PartnerModel{}
	model.FromDomain(partner)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	partner.CreatedAt = model.CreatedAt
	partner.UpdatedAt = model.UpdatedAt
	return nil
}

// Update applies values to a stored partner
func (s *GormPartnerService) Update(ctx context.Context, id uuid.UUID, values integration.PartnerValues) error {
	model, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	partner := model.ToDomain()
	partner.Apply(values)
	if _, renamed := values[integration.PartnerFieldName]; renamed {
		partner.NormalizedName = ""
	}
	model.FromDomain(&partner)
	return s.db.WithContext(ctx).Model(model).Select("*").Omit("id", "tenant_id", "created_at").Updates(model).Error
}

var _ integration.PartnerService = (*GormPartnerService)(nil)
