package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// ErrPostedEntry is returned when deleting an entry that is already posted
var ErrPostedEntry = errors.New("persistence: posted ledger entry cannot be deleted")

// GormLedgerService implements integration.LedgerService over the
// erp_ledger_entries, erp_ledger_lines and erp_sale_orders tables
type GormLedgerService struct {
	db *gorm.DB
}

// NewGormLedgerService creates a new GormLedgerService
func NewGormLedgerService(db *gorm.DB) *GormLedgerService {
	return &GormLedgerService{db: db}
}

func (s *GormLedgerService) entries(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") })
}

func (s *GormLedgerService) search(ctx context.Context, search integration.EntrySearch) *gorm.DB {
	query := s.entries(ctx).Where("tenant_id = ? AND date >= ? AND date <= ?", search.TenantID, search.From, search.To)
	if len(search.MoveTypes) > 0 {
		query = query.Where("move_type IN ?", search.MoveTypes)
	}
	return query
}

func (s *GormLedgerService) list(query *gorm.DB) ([]integration.LedgerEntry, error) {
	var rows []models.LedgerEntryModel
	if err := query.Order("date ASC").Order("created_at ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]integration.LedgerEntry, len(rows))
	for i := range rows {
		out[i] = rows[i].ToDomain()
	}
	return out, nil
}

// containsAny renders "(col LIKE ? OR ...)" over every column and non-empty needle
func containsAny(columns []string, needles []string) (string, []any) {
	var parts []string
	var args []any
	for _, n := range needles {
		if n == "" {
			continue
		}
		pattern := "%" + likeEscaper.Replace(n) + "%"
		for _, c := range columns {
			parts = append(parts, c+" LIKE ? ESCAPE '!'")
			args = append(args, pattern)
		}
	}
	if len(parts) == 0 {
		return "", nil
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

// GetEntry returns an entry with its lines
func (s *GormLedgerService) GetEntry(ctx context.Context, id uuid.UUID) (*integration.LedgerEntry, error) {
	var model models.LedgerEntryModel
	if err := s.entries(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrEntryNotFound
		}
		return nil, err
	}
	e := model.ToDomain()
	return &e, nil
}

// FindByLineText returns entries having a line whose name or ref contains any needle
func (s *GormLedgerService) FindByLineText(ctx context.Context, search integration.EntrySearch, needles []string) ([]integration.LedgerEntry, error) {
	cond, args := containsAny([]string{"name", "ref"}, needles)
	if cond == "" {
		return nil, nil
	}
	lines := s.db.Model(&models.LedgerLineModel{}).Select("entry_id").Where(cond, args...)
	return s.list(s.search(ctx, search).Where("id IN (?)", lines))
}

// FindByHeaderText returns entries whose ref or name contains any needle
func (s *GormLedgerService) FindByHeaderText(ctx context.Context, search integration.EntrySearch, needles []string) ([]integration.LedgerEntry, error) {
	cond, args := containsAny([]string{"ref", "name"}, needles)
	if cond == "" {
		return nil, nil
	}
	return s.list(s.search(ctx, search).Where(cond, args...))
}

// FindByPartners returns entries whose header or lines reference any partner
func (s *GormLedgerService) FindByPartners(ctx context.Context, search integration.EntrySearch, partnerIDs []uuid.UUID) ([]integration.LedgerEntry, error) {
	if len(partnerIDs) == 0 {
		return nil, nil
	}
	lines := s.db.Model(&models.LedgerLineModel{}).Select("entry_id").Where("partner_id IN ?", partnerIDs)
	return s.list(s.search(ctx, search).Where("(partner_id IN ? OR id IN (?))", partnerIDs, lines))
}

// FindByDate returns every entry in the range
func (s *GormLedgerService) FindByDate(ctx context.Context, search integration.EntrySearch) ([]integration.LedgerEntry, error) {
	return s.list(s.search(ctx, search))
}

// CountPostedInvoices counts the posted invoices and refunds of a partner
func (s *GormLedgerService) CountPostedInvoices(ctx context.Context, tenantID, partnerID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.LedgerEntryModel{}).
		Where("tenant_id = ? AND partner_id = ? AND posted = ?", tenantID, partnerID, true).
		Where("move_type NOT IN ?", []integration.MoveType{integration.MoveTypeEntry, ""}).
		Count(&count).Error
	return count, err
}

// CreateEntry writes an unposted entry with its lines
func (s *GormLedgerService) CreateEntry(ctx context.Context, draft integration.EntryDraft) (*integration.LedgerEntry, error) {
	model := models.LedgerEntryModelFromDraft(draft)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return nil, err
	}
	e := model.ToDomain()
	return &e, nil
}

// CreateSaleOrder writes a non-invoice sale order with its lines
func (s *GormLedgerService) CreateSaleOrder(ctx context.Context, draft integration.SaleOrderDraft) (uuid.UUID, error) {
	model := models.SaleOrderModelFromDraft(draft)
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

// DeleteDraftEntry removes an unposted entry and its lines
func (s *GormLedgerService) DeleteDraftEntry(ctx context.Context, id uuid.UUID) error {
	var model models.LedgerEntryModel
	if err := s.db.WithContext(ctx).Select("id", "posted").Where("id = ?", id).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return integration.ErrEntryNotFound
		}
		return err
	}
	if model.Posted {
		return ErrPostedEntry
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("entry_id = ?", id).Delete(&models.LedgerLineModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.LedgerEntryModel{}).Error
	})
}

var _ integration.LedgerService = (*GormLedgerService)(nil)
