package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBindingRepository implements integration.BindingRepository using GORM
type GormBindingRepository struct {
	db *gorm.DB
}

// NewGormBindingRepository creates a new GormBindingRepository
func NewGormBindingRepository(db *gorm.DB) *GormBindingRepository {
	return &GormBindingRepository{db: db}
}

// Find returns the binding for (source, external id, kind)
func (r *GormBindingRepository) Find(ctx context.Context, sourceID, externalID string, kind integration.EntityKind) (*integration.Binding, error) {
	var model models.BindingModel
	err := r.db.WithContext(ctx).
		Where("source_id = ? AND external_id = ? AND entity_kind = ?", sourceID, externalID, kind).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrBindingNotFound
		}
		return nil, err
	}
	b := model.ToDomain()
	return &b, nil
}

// Exists reports whether a binding exists for (source, external id, kind)
func (r *GormBindingRepository) Exists(ctx context.Context, sourceID, externalID string, kind integration.EntityKind) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.BindingModel{}).
		Where("source_id = ? AND external_id = ? AND entity_kind = ?", sourceID, externalID, kind).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Create inserts a binding; a second binding for the same key is a conflict
func (r *GormBindingRepository) Create(ctx context.Context, binding *integration.Binding) error {
	exists, err := r.Exists(ctx, binding.SourceID, binding.ExternalID, binding.EntityKind)
	if err != nil {
		return err
	}
	if exists {
		return integration.ErrBindingConflict
	}
	err = r.db.WithContext(ctx).Create(models.BindingModelFromDomain(binding)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return integration.ErrBindingConflict
	}
	return err
}

// Save updates every column of an existing binding
func (r *GormBindingRepository) Save(ctx context.Context, binding *integration.Binding) error {
	model := models.BindingModelFromDomain(binding)
	result := r.db.WithContext(ctx).Model(model).Select("*").Omit("id").Updates(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrBindingNotFound
	}
	return nil
}

// Delete removes a binding by id
func (r *GormBindingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.BindingModel{}, "id = ?", id).Error
}

// List returns bindings matching the filter ordered by document date then external id.
// Date bounds exclude bindings without a document date.
func (r *GormBindingRepository) List(ctx context.Context, filter integration.BindingFilter) ([]integration.Binding, error) {
	query := r.db.WithContext(ctx).Model(&models.BindingModel{})
	if filter.SourceID != "" {
		query = query.Where("source_id = ?", filter.SourceID)
	}
	if filter.EntityKind != "" {
		query = query.Where("entity_kind = ?", filter.EntityKind)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.DocumentFrom != nil {
		query = query.Where("document_date IS NOT NULL AND document_date >= ?", *filter.DocumentFrom)
	}
	if filter.DocumentTo != nil {
		query = query.Where("document_date IS NOT NULL AND document_date <= ?", *filter.DocumentTo)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []models.BindingModel
	if err := query.Order("document_date ASC").Order("external_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.Binding, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// FindByInternalID returns the bindings of kind pointing at an internal record
func (r *GormBindingRepository) FindByInternalID(ctx context.Context, kind integration.EntityKind, internalID uuid.UUID) ([]integration.Binding, error) {
	var rows []models.BindingModel
	err := r.db.WithContext(ctx).
		Where("entity_kind = ? AND internal_id = ?", kind, internalID).
		Order("external_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]integration.Binding, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

var _ integration.BindingRepository = (*GormBindingRepository)(nil)
