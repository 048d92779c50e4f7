package persistence

import (
	"context"
	"errors"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCheckpointRepository implements integration.CheckpointRepository using GORM
type GormCheckpointRepository struct {
	db *gorm.DB
}

// NewGormCheckpointRepository creates a new GormCheckpointRepository
func NewGormCheckpointRepository(db *gorm.DB) *GormCheckpointRepository {
	return &GormCheckpointRepository{db: db}
}

func (r *GormCheckpointRepository) scope(ctx context.Context, key integration.CheckpointKey) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.CheckpointModel{}).
		Where("source_id = ? AND kind = ? AND direction = ? AND tenant_id = ?",
			key.SourceID, key.Kind, key.Direction, key.TenantID)
}

// Get returns the checkpoint for key, or nil when none was saved yet
func (r *GormCheckpointRepository) Get(ctx context.Context, key integration.CheckpointKey) (*integration.SyncCheckpoint, error) {
	var model models.CheckpointModel
	if err := r.scope(ctx, key).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts a checkpoint. Moving LastFetchedDate backwards is rejected.
func (r *GormCheckpointRepository) Save(ctx context.Context, checkpoint *integration.SyncCheckpoint) error {
	current, err := r.Get(ctx, checkpoint.CheckpointKey)
	if err != nil {
		return err
	}
	model := models.CheckpointModelFromDomain(checkpoint)
	if current == nil {
		return r.db.WithContext(ctx).Create(model).Error
	}
	if checkpoint.LastFetchedDate.Before(current.LastFetchedDate) {
		return integration.ErrCheckpointRegression
	}
	return r.scope(ctx, checkpoint.CheckpointKey).Updates(map[string]any{
		"last_fetched_date": model.LastFetchedDate,
		"last_external_id":  model.LastExternalID,
		"updated_at":        model.UpdatedAt,
	}).Error
}

var _ integration.CheckpointRepository = (*GormCheckpointRepository)(nil)
