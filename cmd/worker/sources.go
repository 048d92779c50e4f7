package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/config"
	"github.com/mobilsoft/edire/internal/infrastructure/sources"
	"github.com/mobilsoft/edire/internal/infrastructure/sources/bizimhesap"
	"github.com/mobilsoft/edire/internal/infrastructure/sources/qnb"
	"github.com/mobilsoft/edire/internal/infrastructure/sources/spreadsheet"
	"github.com/mobilsoft/edire/internal/infrastructure/sources/xmlfeed"
	"github.com/mobilsoft/edire/internal/infrastructure/storage"
)

// sourceSet is what the worker runs against: one adapter and one plan per enabled source
type sourceSet struct {
	registry *sources.Registry
	plans    appintegration.StaticPlans
}

// buildSources creates the adapters and pull plans of every enabled source.
// archive may be nil.
func buildSources(
	cfg *config.Config,
	logs integration.SyncLogRepository,
	archive storage.PayloadArchive,
	log *zap.Logger,
) (*sourceSet, error) {
	set := &sourceSet{registry: sources.NewRegistry(), plans: appintegration.StaticPlans{}}

	defaultTenant, err := parseOptionalUUID(cfg.Routing.PrimaryTenantID)
	if err != nil {
		return nil, fmt.Errorf("routing.primary_tenant_id: %w", err)
	}

	for _, sc := range cfg.EnabledSources() {
		plan, err := buildPlan(sc, defaultTenant)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.ID, err)
		}
		recorder := &sources.CallRecorder{Logs: logs, TenantID: plan.TenantID, Logger: log}

		adapter, err := buildAdapter(sc, recorder, log)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.ID, err)
		}
		if len(plan.Streams) == 0 {
			plan.Streams = defaultStreams(adapter.Capabilities())
		}
		if err := set.registry.Register(storage.Archive(adapter, archive, log)); err != nil {
			return nil, err
		}
		set.plans[sc.ID] = plan

		log.Info("Source registered",
			zap.String("source_id", sc.ID),
			zap.String("type", sc.Type),
			zap.Int("streams", len(plan.Streams)),
		)
	}
	return set, nil
}

func buildAdapter(sc config.SourceConfig, recorder *sources.CallRecorder, log *zap.Logger) (integration.SourceAdapter, error) {
	switch integration.SourceType(sc.Type) {
	case integration.SourceTypeQNB:
		return qnb.NewAdapter(qnb.Config{
			SourceID:       sc.ID,
			Username:       sc.Credentials.Username,
			Password:       sc.Credentials.Password,
			VKN:            sc.QNB.VKN,
			Environment:    sc.QNB.Environment,
			Endpoint:       sc.QNB.Endpoint,
			TimeoutSeconds: sc.TimeoutSeconds,
			PageSize:       sc.QNB.PageSize,
			MaxPages:       sc.QNB.MaxPages,
			FetchPDF:       sc.QNB.FetchPDF,
			TokenURL:       sc.Credentials.TokenURL,
			ClientID:       sc.Credentials.ClientID,
			ClientSecret:   sc.Credentials.ClientSecret,
		}, log)
	case integration.SourceTypeBizimHesap:
		return bizimhesap.NewAdapter(bizimhesap.Config{
			SourceID:       sc.ID,
			APIKey:         sc.Credentials.APIKey,
			BaseURL:        sc.BizimHesap.BaseURL,
			TimeoutSeconds: sc.TimeoutSeconds,
			Warehouse:      sc.BizimHesap.Warehouse,
		}, recorder, log)
	case integration.SourceTypeXMLFeed:
		return xmlfeed.NewAdapter(feedConfig(sc), recorder, log)
	case integration.SourceTypeSpreadsheet:
		accounts := make(map[string]spreadsheet.AccountMapping, len(sc.Spreadsheet.AccountMap))
		for code, m := range sc.Spreadsheet.AccountMap {
			accounts[code] = spreadsheet.AccountMapping{Code: m.Code, Name: m.Name, PartnerName: m.PartnerName}
		}
		return spreadsheet.NewAdapter(spreadsheet.Config{
			SourceID:   sc.ID,
			Path:       sc.Spreadsheet.Path,
			Sheet:      sc.Spreadsheet.Sheet,
			AccountMap: accounts,
		}, log)
	default:
		return nil, fmt.Errorf("unknown source type %q", sc.Type)
	}
}

func feedConfig(sc config.SourceConfig) xmlfeed.Config {
	mappings := make([]xmlfeed.Mapping, 0, len(sc.Feed.Mappings))
	for _, m := range sc.Feed.Mappings {
		mappings = append(mappings, xmlfeed.Mapping{
			Target:    xmlfeed.Target(m.Target),
			Path:      m.Path,
			Transform: xmlfeed.Transform(m.Transform),
			Regex:     m.Regex,
			Replace:   m.Replace,
			Default:   m.Default,
			Required:  m.Required,
		})
	}
	return xmlfeed.Config{
		SourceID: sc.ID,
		URL:      sc.Feed.URL,
		Username: sc.Credentials.Username,
		Password: sc.Credentials.Password,
		Template: sc.Feed.Template,
		RootPath: sc.Feed.RootPath,
		Mappings: mappings,
		Pricing: xmlfeed.Pricing{
			Type:     xmlfeed.MarkupType(sc.Feed.Pricing.Type),
			Percent:  decimal.NewFromFloat(sc.Feed.Pricing.Percent),
			Fixed:    decimal.NewFromFloat(sc.Feed.Pricing.Fixed),
			Rounding: xmlfeed.Rounding(sc.Feed.Pricing.Rounding),
		},
		MinStock:       sc.Feed.MinStock,
		MinPrice:       decimal.NewFromFloat(sc.Feed.MinPrice),
		MaxPrice:       decimal.NewFromFloat(sc.Feed.MaxPrice),
		TimeoutSeconds: sc.TimeoutSeconds,
	}
}

func buildPlan(sc config.SourceConfig, defaultTenant uuid.UUID) (appintegration.SourcePlan, error) {
	plan := appintegration.SourcePlan{
		SourceID:           sc.ID,
		TenantID:           defaultTenant,
		IncomingWindowDays: sc.IncomingWindowDays,
		OutgoingWindowDays: sc.OutgoingWindowDays,
		Partner: appintegration.PartnerResolveOptions{
			CanCreate:  sc.CreatePartners,
			AsCustomer: sc.AsCustomer,
			AsSupplier: sc.AsSupplier,
		},
		Product: appintegration.ProductResolveOptions{
			CanCreate:        sc.CreateProducts,
			VariantAttribute: sc.Feed.VariantAttribute,
			Update:           updatePolicy(sc.Update),
		},
	}

	if sc.TenantID != "" {
		id, err := uuid.Parse(sc.TenantID)
		if err != nil {
			return plan, fmt.Errorf("tenant_id: %w", err)
		}
		plan.TenantID = id
	}
	if sc.StartDate != "" {
		start, err := time.Parse(time.DateOnly, sc.StartDate)
		if err != nil {
			return plan, fmt.Errorf("start_date: %w", err)
		}
		plan.StartDate = start
	}
	if sc.Feed.SupplierID != "" {
		id, err := uuid.Parse(sc.Feed.SupplierID)
		if err != nil {
			return plan, fmt.Errorf("feed.supplier_id: %w", err)
		}
		plan.Product.SupplierID = &id
	}

	streams, err := parseStreams(sc.Streams)
	if err != nil {
		return plan, err
	}
	plan.Streams = streams
	return plan, nil
}

var errInvalidStream = errors.New("invalid stream")

// parseStreams reads "kind:direction" pairs such as "invoice:incoming"
func parseStreams(raw []string) ([]appintegration.Stream, error) {
	out := make([]appintegration.Stream, 0, len(raw))
	for _, s := range raw {
		k, d, ok := strings.Cut(strings.TrimSpace(s), ":")
		kind := integration.DocumentKind(strings.ToLower(k))
		direction := integration.Direction(strings.ToLower(d))
		if !ok || !kind.IsValid() || !direction.IsValid() {
			return nil, fmt.Errorf("%w: %q", errInvalidStream, s)
		}
		out = append(out, appintegration.Stream{Kind: kind, Direction: direction})
	}
	return out, nil
}

// defaultStreams lists everything a source declares it can serve
func defaultStreams(caps integration.Capabilities) []appintegration.Stream {
	var out []appintegration.Stream
	add := func(c integration.Capability, kind integration.DocumentKind, direction integration.Direction) {
		if caps.Has(c) {
			out = append(out, appintegration.Stream{Kind: kind, Direction: direction})
		}
	}
	add(integration.CapabilityIncomingInvoices, integration.DocumentKindInvoice, integration.DirectionIncoming)
	add(integration.CapabilityOutgoingInvoices, integration.DocumentKindInvoice, integration.DirectionOutgoing)
	add(integration.CapabilityPartners, integration.DocumentKindPartner, integration.DirectionIncoming)
	add(integration.CapabilityProducts, integration.DocumentKindProduct, integration.DirectionIncoming)
	add(integration.CapabilityLedgerLines, integration.DocumentKindLedgerLine, integration.DirectionIncoming)
	return out
}

func updatePolicy(u config.UpdateConfig) appintegration.ProductUpdatePolicy {
	p := appintegration.DefaultProductUpdatePolicy()
	if u.Price != nil {
		p.Price = *u.Price
	}
	if u.Stock != nil {
		p.Stock = *u.Stock
	}
	if u.OnlyIfValue != nil {
		p.OnlyIfValue = *u.OnlyIfValue
	}
	p.Images = u.Images
	p.Description = u.Description
	if u.ZeroStock != "" {
		p.ZeroStock = appintegration.ZeroStockAction(u.ZeroStock)
	}
	return p
}

func parseOptionalUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(s)
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("%q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

// ensureArchive creates the bucket. A failure is logged only; downloads keep
// working and each copy that cannot be stored is logged on its own.
func ensureArchive(ctx context.Context, archive *storage.S3Archive, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := archive.EnsureBucket(ctx); err != nil {
		log.Warn("Archive bucket not ready", zap.String("bucket", archive.Bucket()), zap.Error(err))
	}
}
