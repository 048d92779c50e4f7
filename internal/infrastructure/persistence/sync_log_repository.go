package persistence

import (
	"context"
	"errors"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormSyncLogRepository implements integration.SyncLogRepository using GORM
type GormSyncLogRepository struct {
	db *gorm.DB
}

// NewGormSyncLogRepository creates a new GormSyncLogRepository
func NewGormSyncLogRepository(db *gorm.DB) *GormSyncLogRepository {
	return &GormSyncLogRepository{db: db}
}

// Create inserts a sync log
func (r *GormSyncLogRepository) Create(ctx context.Context, log *integration.SyncLog) error {
	return r.db.WithContext(ctx).Create(models.SyncLogModelFromDomain(log)).Error
}

// Save writes every column of a sync log, inserting it when missing
func (r *GormSyncLogRepository) Save(ctx context.Context, log *integration.SyncLog) error {
	return r.db.WithContext(ctx).Save(models.SyncLogModelFromDomain(log)).Error
}

// ListRecent returns the latest logs of a source, newest first
func (r *GormSyncLogRepository) ListRecent(ctx context.Context, sourceID string, limit int) ([]integration.SyncLog, error) {
	query := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.SyncLogModel
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.SyncLog, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// GormSourceStatusRepository implements integration.SourceStatusRepository using GORM
type GormSourceStatusRepository struct {
	db *gorm.DB
}

// NewGormSourceStatusRepository creates a new GormSourceStatusRepository
func NewGormSourceStatusRepository(db *gorm.DB) *GormSourceStatusRepository {
	return &GormSourceStatusRepository{db: db}
}

// Get returns the status of a source, or nil when it never ran
func (r *GormSourceStatusRepository) Get(ctx context.Context, sourceID string) (*integration.SourceStatus, error) {
	var model models.SourceStatusModel
	if err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Take(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts the status of a source
func (r *GormSourceStatusRepository) Save(ctx context.Context, status *integration.SourceStatus) error {
	return r.db.WithContext(ctx).Save(&models.SourceStatusModel{
		SourceID:  status.SourceID,
		State:     status.State,
		LastError: status.LastError,
		UpdatedAt: status.UpdatedAt,
	}).Error
}

var (
	_ integration.SyncLogRepository      = (*GormSyncLogRepository)(nil)
	_ integration.SourceStatusRepository = (*GormSourceStatusRepository)(nil)
)
