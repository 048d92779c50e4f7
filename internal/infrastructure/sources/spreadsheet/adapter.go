package spreadsheet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

// ErrNoWorkbooks is returned when the configured directory holds no .xlsx file
var ErrNoWorkbooks = errors.New("spreadsheet: no workbooks found")

// Adapter is a spreadsheet ledger source. Workbooks are parsed once per
// modification time and the vouchers cached.
type Adapter struct {
	cfg    Config
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]cachedWorkbook
}

type cachedWorkbook struct {
	modTime  time.Time
	vouchers []Voucher
}

// NewAdapter creates a spreadsheet adapter
func NewAdapter(cfg Config, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:    cfg,
		logger: logger.With(zap.String("source_id", cfg.SourceID)),
		cache:  make(map[string]cachedWorkbook),
	}, nil
}

// SourceID returns the configured source id
func (a *Adapter) SourceID() string { return a.cfg.SourceID }

// Type returns integration.SourceTypeSpreadsheet
func (a *Adapter) Type() integration.SourceType { return integration.SourceTypeSpreadsheet }

// Capabilities declares ledger lines only
func (a *Adapter) Capabilities() integration.Capabilities {
	return integration.NewCapabilities(integration.CapabilityLedgerLines)
}

// workbooks lists the files behind the configured path
func (a *Adapter) workbooks() ([]string, error) {
	info, err := os.Stat(a.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: %w", err)
	}
	if !info.IsDir() {
		return []string{a.cfg.Path}, nil
	}
	files, err := filepath.Glob(filepath.Join(a.cfg.Path, "*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: %w", err)
	}
	// Office lock files
	files = slices.DeleteFunc(files, func(f string) bool {
		return strings.HasPrefix(filepath.Base(f), "~$")
	})
	if len(files) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoWorkbooks, a.cfg.Path)
	}
	slices.Sort(files)
	return files, nil
}

func (a *Adapter) vouchers(path string) ([]Voucher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: %w", err)
	}
	a.mu.Lock()
	cached, ok := a.cache[path]
	a.mu.Unlock()
	if ok && cached.modTime.Equal(info.ModTime()) {
		return cached.vouchers, nil
	}

	vouchers, err := a.readWorkbook(path)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	a.cache[path] = cachedWorkbook{modTime: info.ModTime(), vouchers: vouchers}
	a.mu.Unlock()
	return vouchers, nil
}

func (a *Adapter) readWorkbook(path string) ([]Voucher, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: open %s: %w", path, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			a.logger.Warn("close workbook", zap.String("path", path), zap.Error(err))
		}
	}()

	sheet, fallback := pickSheet(f.GetSheetList(), a.cfg.Sheet)
	if sheet == "" {
		return nil, fmt.Errorf("spreadsheet: %s has no sheets", path)
	}
	if fallback {
		a.logger.Info("configured sheet absent, using first sheet",
			zap.String("path", path),
			zap.String("sheet", sheet),
		)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("spreadsheet: read %s/%s: %w", path, sheet, err)
	}

	vouchers, stats := NewParser(a.cfg.AccountMap).Parse(rows)
	a.logger.Info("workbook parsed",
		zap.String("path", path),
		zap.Int("vouchers", stats.Vouchers),
		zap.Int("lines", stats.Lines),
		zap.Int("parents_dropped", stats.ParentsDropped),
		zap.Int("repeats_dropped", stats.RepeatsDropped),
		zap.Int("invalid_vouchers", stats.InvalidVouchers),
	)
	return vouchers, nil
}

// pickSheet returns the first sheet named want, or the first sheet
func pickSheet(sheets []string, want string) (name string, fallback bool) {
	for _, s := range sheets {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return s, false
		}
	}
	if len(sheets) == 0 {
		return "", false
	}
	return sheets[0], true
}

// ListDocuments yields the vouchers dated within window. Refs repeated in a
// later workbook are skipped.
func (a *Adapter) ListDocuments(
	ctx context.Context,
	window integration.Window,
	kind integration.DocumentKind,
	direction integration.Direction,
) iter.Seq2[integration.DocumentSummary, error] {
	return func(yield func(integration.DocumentSummary, error) bool) {
		if kind != integration.DocumentKindLedgerLine {
			yield(integration.DocumentSummary{}, fmt.Errorf("%w: spreadsheet cannot list %s", integration.ErrCapabilityNotSupported, kind))
			return
		}
		files, err := a.workbooks()
		if err != nil {
			yield(integration.DocumentSummary{}, err)
			return
		}

		seen := make(map[string]struct{})
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				yield(integration.DocumentSummary{}, err)
				return
			}
			vouchers, err := a.vouchers(path)
			if err != nil {
				yield(integration.DocumentSummary{}, err)
				return
			}
			for _, v := range vouchers {
				if !window.Contains(v.Date) {
					continue
				}
				if _, dup := seen[v.Ref]; dup {
					a.logger.Warn("duplicate voucher ref", zap.String("ref", v.Ref), zap.String("path", path))
					continue
				}
				seen[v.Ref] = struct{}{}

				payload, err := json.Marshal(v)
				if err != nil {
					yield(integration.DocumentSummary{}, fmt.Errorf("spreadsheet: snapshot voucher %s: %w", v.Ref, err))
					return
				}
				s := integration.DocumentSummary{
					ExternalID: v.Ref,
					Kind:       integration.DocumentKindLedgerLine,
					Direction:  direction,
					Number:     v.Ref,
					Date:       v.Date,
					Total:      v.Debit,
					Currency:   integration.DefaultCurrency,
					Payload:    payload,
				}
				if !yield(s, nil) {
					return
				}
			}
		}
	}
}

// DownloadDocument returns the voucher captured by the listing
func (a *Adapter) DownloadDocument(_ context.Context, summary integration.DocumentSummary) ([]byte, error) {
	if len(summary.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s has no payload", integration.ErrDocumentNotFound, summary.ExternalID)
	}
	return summary.Payload, nil
}

// ParseDocument maps a voucher snapshot to a ledger document. Unbalanced
// vouchers parse successfully and carry the Unbalanced flag.
func (a *Adapter) ParseDocument(_ context.Context, summary integration.DocumentSummary, raw []byte) (*integration.ExternalDocument, error) {
	var v Voucher
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, integration.NewParseError(a.cfg.SourceID, summary.ExternalID, raw, err)
	}
	if len(v.Lines) == 0 {
		return nil, integration.NewParseError(a.cfg.SourceID, summary.ExternalID, raw, errors.New("voucher has no lines"))
	}
	direction := summary.Direction
	if direction == "" {
		direction = integration.DirectionIncoming
	}

	lines := make([]integration.DocumentLine, len(v.Lines))
	for i, l := range v.Lines {
		lines[i] = integration.DocumentLine{
			Sequence:    i + 1,
			Description: l.Label,
			AccountCode: l.AccountCode,
			AccountName: l.AccountName,
			PartnerName: l.PartnerName,
			Label:       l.Label,
			Debit:       l.Debit,
			Credit:      l.Credit,
		}
	}
	doc := &integration.ExternalDocument{
		SourceID:    a.cfg.SourceID,
		ExternalID:  v.Ref,
		Direction:   direction,
		Kind:        integration.DocumentKindLedgerLine,
		Number:      v.Ref,
		Date:        v.Date,
		Currency:    integration.DefaultCurrency,
		Totals:      integration.Totals{Gross: v.Debit, Net: v.Debit, Total: v.Debit},
		Lines:       lines,
		Unbalanced:  v.Unbalanced,
		Raw:         raw,
		PayloadHash: integration.PayloadHash(raw),
	}
	if err := doc.Validate(); err != nil {
		return nil, integration.NewParseError(a.cfg.SourceID, summary.ExternalID, raw, err)
	}
	return doc, nil
}

var _ integration.SourceAdapter = (*Adapter)(nil)
