// Package xmlfeed implements supplier XML product feeds: dialect templates
// seeding a configurable mapping table, value transforms, charset detection
// and markup pricing.
package xmlfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
	"github.com/mobilsoft/edire/internal/infrastructure/sources"
)

const userAgent = "edire-feed/1.0"

// Adapter is an XML product feed source
type Adapter struct {
	cfg      Config
	client   *http.Client
	logger   *zap.Logger
	recorder *sources.CallRecorder
}

// NewAdapter creates a feed adapter. recorder may be nil.
func NewAdapter(cfg Config, recorder *sources.CallRecorder, logger *zap.Logger) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		cfg:      cfg,
		client:   sources.NewHTTPClient(time.Duration(cfg.TimeoutSeconds) * time.Second),
		logger:   logger.With(zap.String("source_id", cfg.SourceID)),
		recorder: recorder,
	}, nil
}

// SourceID returns the configured source id
func (a *Adapter) SourceID() string { return a.cfg.SourceID }

// Type returns integration.SourceTypeXMLFeed
func (a *Adapter) Type() integration.SourceType { return integration.SourceTypeXMLFeed }

// Capabilities declares products only
func (a *Adapter) Capabilities() integration.Capabilities {
	return integration.NewCapabilities(integration.CapabilityProducts)
}

func (a *Adapter) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("xmlfeed: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/xml, text/xml, */*")
	if a.cfg.Username != "" && a.cfg.Password != "" {
		req.SetBasicAuth(a.cfg.Username, a.cfg.Password)
	}
	body, _, err := sources.Do(a.client, req, a.cfg.SourceID, "feed")
	a.recorder.Record(ctx, a.cfg.SourceID, "GET feed", []byte("GET "+a.cfg.URL), body, err)
	return body, err
}

// ListDocuments downloads the feed and yields one product summary per item.
// Items without a name, failing a required mapping, outside the price bounds
// or below MinStock are skipped. Every summary is dated at window.End.
func (a *Adapter) ListDocuments(
	ctx context.Context,
	window integration.Window,
	kind integration.DocumentKind,
	direction integration.Direction,
) iter.Seq2[integration.DocumentSummary, error] {
	return func(yield func(integration.DocumentSummary, error) bool) {
		if kind != integration.DocumentKindProduct {
			yield(integration.DocumentSummary{}, fmt.Errorf("%w: xmlfeed cannot list %s", integration.ErrCapabilityNotSupported, kind))
			return
		}
		raw, err := a.fetch(ctx)
		if err != nil {
			yield(integration.DocumentSummary{}, err)
			return
		}
		elements, err := parseItems(raw, a.cfg.RootPath)
		if err != nil {
			yield(integration.DocumentSummary{}, fmt.Errorf("%s: %w", a.cfg.SourceID, err))
			return
		}

		seen := make(map[string]struct{}, len(elements))
		skipped := 0
		for _, el := range elements {
			item, ok := extractItem(el, a.cfg.Mappings)
			if !ok || !a.accept(item) {
				skipped++
				continue
			}
			id := itemID(item)
			if _, dup := seen[id]; dup {
				a.logger.Warn("duplicate feed item", zap.String("external_id", id))
				skipped++
				continue
			}
			seen[id] = struct{}{}

			payload, err := json.Marshal(item)
			if err != nil {
				yield(integration.DocumentSummary{}, fmt.Errorf("xmlfeed: snapshot item %s: %w", id, err))
				return
			}
			s := integration.DocumentSummary{
				ExternalID: id,
				Kind:       integration.DocumentKindProduct,
				Direction:  direction,
				Number:     item.SKU,
				Date:       window.End,
				Total:      a.salePrice(item),
				Currency:   item.Currency,
				Payload:    payload,
			}
			if !yield(s, nil) {
				return
			}
		}
		a.logger.Debug("feed listed",
			zap.Int("items", len(elements)),
			zap.Int("skipped", skipped),
		)
	}
}

// accept applies the price bounds and the MinStock filter
func (a *Adapter) accept(item Item) bool {
	price := normalize.ParseAmountExact(item.Price)
	if a.cfg.MinPrice.IsPositive() && price.LessThan(a.cfg.MinPrice) {
		return false
	}
	if a.cfg.MaxPrice.IsPositive() && price.GreaterThan(a.cfg.MaxPrice) {
		return false
	}
	if a.cfg.MinStock > 0 {
		stock := normalize.ParseAmountExact(item.Stock)
		if stock.LessThan(decimal.NewFromInt(int64(a.cfg.MinStock))) {
			return false
		}
	}
	return true
}

// itemID picks the most stable identity of an item: barcode, then SKU, then
// a hash of the normalized name
func itemID(item Item) string {
	switch {
	case item.Barcode != "":
		return item.Barcode
	case item.SKU != "":
		return "sku:" + item.SKU
	default:
		return "name:" + integration.PayloadHash([]byte(normalize.Name(item.Name)))
	}
}

func costOf(item Item) decimal.Decimal {
	if c := normalize.ParseAmountExact(item.CostPrice); c.IsPositive() {
		return c
	}
	return normalize.ParseAmountExact(item.Price)
}

func (a *Adapter) salePrice(item Item) decimal.Decimal {
	if a.cfg.Pricing.Enabled() {
		return a.cfg.Pricing.SalePrice(costOf(item))
	}
	return normalize.Money(normalize.ParseAmountExact(item.Price))
}

// DownloadDocument returns the item captured by the listing
func (a *Adapter) DownloadDocument(_ context.Context, summary integration.DocumentSummary) ([]byte, error) {
	if len(summary.Payload) == 0 {
		return nil, fmt.Errorf("%w: %s has no payload", integration.ErrDocumentNotFound, summary.ExternalID)
	}
	return summary.Payload, nil
}

// ParseDocument maps an item snapshot to a product record. With pricing
// configured the list price is the marked-up supplier price; otherwise the
// feed price is kept.
func (a *Adapter) ParseDocument(_ context.Context, summary integration.DocumentSummary, raw []byte) (*integration.ExternalDocument, error) {
	var item Item
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, integration.NewParseError(a.cfg.SourceID, summary.ExternalID, raw, err)
	}
	direction := summary.Direction
	if direction == "" {
		direction = integration.DirectionIncoming
	}

	cost := normalize.Money(costOf(item))
	rec := &integration.ProductRecord{
		SKU:           item.SKU,
		Barcode:       item.Barcode,
		Name:          item.Name,
		Description:   normalize.CleanDescription(item.Description),
		ListPrice:     a.salePrice(item),
		CostPrice:     cost,
		SupplierPrice: cost,
		HasStock:      strings.TrimSpace(item.Stock) != "",
		Category:      item.Category,
		Brand:         item.Brand,
		Images:        item.Images,
	}
	if rec.HasStock {
		rec.Stock = normalize.ParseAmountExact(item.Stock)
	}

	doc := &integration.ExternalDocument{
		SourceID:    a.cfg.SourceID,
		ExternalID:  summary.ExternalID,
		Direction:   direction,
		Kind:        integration.DocumentKindProduct,
		Number:      item.SKU,
		Currency:    item.Currency,
		Product:     rec,
		Raw:         raw,
		PayloadHash: integration.PayloadHash(raw),
	}
	if doc.ExternalID == "" {
		doc.ExternalID = itemID(item)
	}
	if err := doc.Validate(); err != nil {
		return nil, integration.NewParseError(a.cfg.SourceID, summary.ExternalID, raw, err)
	}
	return doc, nil
}

var _ integration.SourceAdapter = (*Adapter)(nil)
