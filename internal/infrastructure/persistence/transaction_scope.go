package persistence

import (
	"context"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"gorm.io/gorm"
)

// GormTransactionScope implements integration.TransactionScope using GORM transactions.
// Every store handed to fn shares the same transaction; the transaction
// commits when fn returns nil and rolls back otherwise.
type GormTransactionScope struct {
	db *gorm.DB
}

// NewGormTransactionScope creates a new GormTransactionScope.
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// Execute runs fn within a database transaction.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(ctx context.Context, stores integration.Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, NewGormStores(tx))
	})
}

// Stores returns stores bound to the connection pool, outside any transaction.
func (s *GormTransactionScope) Stores() integration.Stores {
	return NewGormStores(s.db)
}

// GormStores hands out every store bound to one *gorm.DB.
type GormStores struct {
	db *gorm.DB
}

// NewGormStores creates stores on db, which may be a transaction.
func NewGormStores(db *gorm.DB) *GormStores {
	return &GormStores{db: db}
}

func (s *GormStores) Bindings() integration.BindingRepository {
	return NewGormBindingRepository(s.db)
}

func (s *GormStores) Checkpoints() integration.CheckpointRepository {
	return NewGormCheckpointRepository(s.db)
}

func (s *GormStores) SyncLogs() integration.SyncLogRepository {
	return NewGormSyncLogRepository(s.db)
}

func (s *GormStores) SourceStatuses() integration.SourceStatusRepository {
	return NewGormSourceStatusRepository(s.db)
}

func (s *GormStores) Partners() integration.PartnerService {
	return NewGormPartnerService(s.db)
}

func (s *GormStores) Products() integration.ProductService {
	return NewGormProductService(s.db)
}

func (s *GormStores) Ledger() integration.LedgerService {
	return NewGormLedgerService(s.db)
}

var (
	_ integration.TransactionScope = (*GormTransactionScope)(nil)
	_ integration.Stores           = (*GormStores)(nil)
)
