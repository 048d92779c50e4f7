package integration

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
	"github.com/mobilsoft/edire/internal/domain/shared/similarity"
)

var variantNameRe = regexp.MustCompile(`^(.+?)\s*\(([^)]+)\)\s*$`)

// SplitVariantName splits "BASE (VARIANT)" into its parts; ok is false otherwise.
func SplitVariantName(name string) (base, variant string, ok bool) {
	m := variantNameRe.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return strings.TrimSpace(name), "", false
	}
	base, variant = strings.TrimSpace(m[1]), strings.TrimSpace(m[2])
	if base == "" || variant == "" {
		return strings.TrimSpace(name), "", false
	}
	return base, variant, true
}

// SKUPrefix returns the first whitespace-delimited token of a SKU
func SKUPrefix(sku string) string {
	fields := strings.Fields(sku)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// HasSKUPrefix reports whether code starts with prefix followed by a token
// boundary: the end of the code or a rune that is neither a letter nor a digit.
// "KLM" matches "KLM-RED" and "KLM 01" but not "KLMX".
func HasSKUPrefix(code, prefix string) bool {
	if prefix == "" || !strings.HasPrefix(code, prefix) {
		return false
	}
	rest := code[len(prefix):]
	if rest == "" {
		return true
	}
	next, _ := utf8.DecodeRuneInString(rest)
	return !unicode.IsLetter(next) && !unicode.IsDigit(next)
}

// ProductMatchType tells how a product record was resolved
type ProductMatchType string

const (
	ProductMatchBarcode     ProductMatchType = "barcode"
	ProductMatchSKU         ProductMatchType = "sku"
	ProductMatchSKUPrefix   ProductMatchType = "sku_prefix"
	ProductMatchVariant     ProductMatchType = "variant"
	ProductMatchDescription ProductMatchType = "description"
	ProductMatchName        ProductMatchType = "name"
	ProductMatchNew         ProductMatchType = "new"
	ProductMatchSkipped     ProductMatchType = "skipped"
)

// ZeroStockAction decides what a zero stock level does to a product
type ZeroStockAction string

const (
	ZeroStockKeep       ZeroStockAction = "keep"
	ZeroStockDeactivate ZeroStockAction = "deactivate"
)

// ProductUpdatePolicy holds a source's update flags
type ProductUpdatePolicy struct {
	Price       bool
	Stock       bool
	Images      bool
	Description bool
	// OnlyIfValue skips writes whose incoming value is empty or zero
	OnlyIfValue bool
	ZeroStock   ZeroStockAction
}

// DefaultProductUpdatePolicy updates price and stock only
func DefaultProductUpdatePolicy() ProductUpdatePolicy {
	return ProductUpdatePolicy{Price: true, Stock: true, OnlyIfValue: true, ZeroStock: ZeroStockKeep}
}

// ProductResolveOptions controls the product cascade
type ProductResolveOptions struct {
	CanCreate bool
	// VariantAttribute is the attribute "BASE (VARIANT)" values go to
	VariantAttribute string
	Update           ProductUpdatePolicy
	// SupplierID is stamped on created templates
	SupplierID *uuid.UUID
}

// ProductResolution is the outcome of one product resolution
type ProductResolution struct {
	TemplateID *uuid.UUID
	VariantID  *uuid.UUID
	MatchType  ProductMatchType
	Created    bool
	Updated    bool
}

// ProductResolver runs the product matching cascade:
// barcode, SKU, SKU prefix, "BASE (VARIANT)", description similarity, name similarity.
type ProductResolver struct {
	thresholds similarity.Thresholds
	logger     *zap.Logger
	metrics    Metrics
}

// NewProductResolver creates a product resolver
func NewProductResolver(thresholds similarity.Thresholds, logger *zap.Logger, metrics Metrics) *ProductResolver {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &ProductResolver{thresholds: thresholds, logger: logger, metrics: metrics}
}

// Resolve matches rec and applies creates/updates through rc.Tx.
func (r *ProductResolver) Resolve(
	ctx context.Context,
	rc integration.RunContext,
	rec integration.ProductRecord,
	opts ProductResolveOptions,
) (*ProductResolution, error) {
	ctx = rc.Context(ctx)
	if opts.VariantAttribute == "" {
		opts.VariantAttribute = integration.DefaultVariantAttribute
	}
	rec.Barcode = normalize.Barcode(rec.Barcode)
	rec.SKU = strings.TrimSpace(rec.SKU)
	rec.Name = normalize.CollapseSpaces(rec.Name)

	svc := rc.Tx.Products()
	prefix := SKUPrefix(rec.SKU)
	base, variant, isVariant := SplitVariantName(rec.Name)

	// 1. Barcode on a variant
	if rec.Barcode != "" {
		v, tmpl, err := svc.FindVariantByBarcode(ctx, rc.TenantID, rec.Barcode)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("find variant by barcode: %w", err)
		}
		if v != nil && tmpl != nil {
			return r.update(ctx, rc, tmpl, &v.ID, rec, opts, ProductMatchBarcode)
		}
	}

	// 2. Exact SKU
	if rec.SKU != "" {
		tmpl, err := svc.FindTemplateBySKU(ctx, rc.TenantID, rec.SKU)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("find template by sku: %w", err)
		}
		if tmpl != nil {
			return r.attachOrUpdate(ctx, rc, tmpl, rec, opts, variant, isVariant, ProductMatchSKU)
		}
	}

	// 3. SKU prefix
	if prefix != "" {
		found, err := svc.FindTemplatesBySKUPrefix(ctx, rc.TenantID, prefix)
		if err != nil {
			return nil, fmt.Errorf("find templates by sku prefix: %w", err)
		}
		var hits []scoredTemplate
		for i := range found {
			if HasSKUPrefix(found[i].DefaultCode, prefix) {
				hits = append(hits, scoredTemplate{template: &found[i], score: 1})
			}
		}
		if len(hits) > 0 {
			tmpl := r.pick(rc, ProductMatchSKUPrefix, hits)
			return r.attachOrUpdate(ctx, rc, tmpl, rec, opts, variant, isVariant, ProductMatchSKUPrefix)
		}
	}

	// 4. "BASE (VARIANT)"
	if isVariant {
		return r.resolveVariant(ctx, rc, base, variant, rec, opts)
	}

	all, err := svc.ListForMatching(ctx, rc.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list products for matching: %w", err)
	}

	// 5. Description similarity or SKU prefix inside the description
	if desc := normalize.Name(normalize.CleanDescription(rec.Description)); desc != "" {
		var hits []scoredTemplate
		for i := range all {
			t := &all[i]
			if t.Description == "" {
				continue
			}
			tdesc := normalize.Name(normalize.CleanDescription(t.Description))
			score := similarity.Score(desc, tdesc)
			if prefix != "" && strings.Contains(tdesc, normalize.Name(prefix)) {
				score = 1
			}
			if score >= r.thresholds.Description {
				hits = append(hits, scoredTemplate{template: t, score: score})
			}
		}
		if len(hits) > 0 {
			return r.update(ctx, rc, r.pick(rc, ProductMatchDescription, hits), nil, rec, opts, ProductMatchDescription)
		}
	}

	// 6. Name similarity
	if name := normalize.Name(rec.Name); name != "" {
		var hits []scoredTemplate
		for i := range all {
			t := &all[i]
			score := similarity.Score(name, normalize.Name(t.Name))
			if score >= r.thresholds.NameStrict {
				hits = append(hits, scoredTemplate{template: t, score: score})
			}
		}
		if len(hits) > 0 {
			return r.update(ctx, rc, r.pick(rc, ProductMatchName, hits), nil, rec, opts, ProductMatchName)
		}
	}

	if !opts.CanCreate {
		return &ProductResolution{MatchType: ProductMatchSkipped}, nil
	}
	return r.create(ctx, rc, rec, opts)
}

// attachOrUpdate handles a template hit. A "BASE (VARIANT)" record carrying a new
// barcode becomes a variant of the hit template.
func (r *ProductResolver) attachOrUpdate(
	ctx context.Context,
	rc integration.RunContext,
	tmpl *integration.ProductTemplate,
	rec integration.ProductRecord,
	opts ProductResolveOptions,
	variant string,
	isVariant bool,
	match ProductMatchType,
) (*ProductResolution, error) {
	if isVariant && opts.CanCreate {
		res, err := r.ensureVariant(ctx, rc, tmpl, variant, rec, opts)
		if err != nil {
			return nil, err
		}
		if res.Created {
			res.MatchType = match
			return res, nil
		}
		return r.update(ctx, rc, tmpl, res.VariantID, rec, opts, match)
	}
	return r.update(ctx, rc, tmpl, nil, rec, opts, match)
}

func (r *ProductResolver) resolveVariant(
	ctx context.Context,
	rc integration.RunContext,
	base, variant string,
	rec integration.ProductRecord,
	opts ProductResolveOptions,
) (*ProductResolution, error) {
	svc := rc.Tx.Products()
	baseSKU, _, _ := SplitVariantName(rec.SKU)

	tmpl, err := svc.FindTemplateByName(ctx, rc.TenantID, base)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("find base template: %w", err)
	}
	if tmpl == nil && baseSKU != "" {
		tmpl, err = svc.FindTemplateBySKU(ctx, rc.TenantID, baseSKU)
		if err != nil && !isNotFound(err) {
			return nil, fmt.Errorf("find base template by sku: %w", err)
		}
	}

	created := false
	if tmpl == nil {
		if !opts.CanCreate {
			return &ProductResolution{MatchType: ProductMatchSkipped}, nil
		}
		baseRec := rec
		baseRec.Name = base
		baseRec.SKU = baseSKU
		baseRec.Barcode = ""
		tmpl = r.newTemplate(rc, baseRec, opts)
		if err := svc.CreateTemplate(ctx, tmpl); err != nil {
			return nil, fmt.Errorf("create base template: %w", err)
		}
		created = true
		r.logger.Info("base product created",
			zap.String("source_id", rc.SourceID),
			zap.String("name", base),
		)
	}

	res, err := r.ensureVariant(ctx, rc, tmpl, variant, rec, opts)
	if err != nil {
		return nil, err
	}
	res.MatchType = ProductMatchVariant
	res.Created = res.Created || created
	if res.Created {
		return res, nil
	}
	return r.update(ctx, rc, tmpl, res.VariantID, rec, opts, ProductMatchVariant)
}

// ensureVariant finds or creates the variant with attribute value variant.
func (r *ProductResolver) ensureVariant(
	ctx context.Context,
	rc integration.RunContext,
	tmpl *integration.ProductTemplate,
	variant string,
	rec integration.ProductRecord,
	opts ProductResolveOptions,
) (*ProductResolution, error) {
	svc := rc.Tx.Products()
	attrs := map[string]string{opts.VariantAttribute: variant}
	tmplID := tmpl.ID

	existing, err := svc.FindVariant(ctx, tmpl.ID, attrs)
	if err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("find variant: %w", err)
	}
	if existing != nil {
		vid := existing.ID
		return &ProductResolution{TemplateID: &tmplID, VariantID: &vid}, nil
	}

	v := &integration.ProductVariant{
		ID:         uuid.New(),
		TemplateID: tmpl.ID,
		Barcode:    rec.Barcode,
		Attributes: attrs,
	}
	if err := svc.CreateVariant(ctx, v); err != nil {
		return nil, fmt.Errorf("create variant: %w", err)
	}
	r.logger.Info("product variant created",
		zap.String("source_id", rc.SourceID),
		zap.String("template", tmpl.Name),
		zap.String("variant", variant),
		zap.String("barcode", rec.Barcode),
	)
	vid := v.ID
	return &ProductResolution{TemplateID: &tmplID, VariantID: &vid, Created: true}, nil
}

func (r *ProductResolver) create(
	ctx context.Context,
	rc integration.RunContext,
	rec integration.ProductRecord,
	opts ProductResolveOptions,
) (*ProductResolution, error) {
	tmpl := r.newTemplate(rc, rec, opts)
	tmpl.Barcode = rec.Barcode
	tmpl.Variants = []integration.ProductVariant{{
		ID:         uuid.New(),
		TemplateID: tmpl.ID,
		Barcode:    rec.Barcode,
		Attributes: map[string]string{},
	}}
	if err := rc.Tx.Products().CreateTemplate(ctx, tmpl); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	tid, vid := tmpl.ID, tmpl.Variants[0].ID
	return &ProductResolution{TemplateID: &tid, VariantID: &vid, MatchType: ProductMatchNew, Created: true}, nil
}

func (r *ProductResolver) newTemplate(rc integration.RunContext, rec integration.ProductRecord, opts ProductResolveOptions) *integration.ProductTemplate {
	now := rc.Now()
	active := true
	if rec.HasStock && rec.Stock.Sign() <= 0 && opts.Update.ZeroStock == ZeroStockDeactivate {
		active = false
	}
	return &integration.ProductTemplate{
		ID:            uuid.New(),
		TenantID:      rc.TenantID,
		Name:          rec.Name,
		DefaultCode:   rec.SKU,
		Description:   normalize.CleanDescription(rec.Description),
		ListPrice:     rec.ListPrice,
		CostPrice:     rec.CostPrice,
		SupplierPrice: rec.SupplierPrice,
		Stock:         rec.Stock,
		CategoryPath:  rec.Category,
		Brand:         rec.Brand,
		Images:        rec.Images,
		SupplierID:    opts.SupplierID,
		SourceID:      rc.SourceID,
		Active:        active,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// update writes the flag-controlled fields. Name and barcode are write-once and
// never part of an update.
func (r *ProductResolver) update(
	ctx context.Context,
	rc integration.RunContext,
	tmpl *integration.ProductTemplate,
	variantID *uuid.UUID,
	rec integration.ProductRecord,
	opts ProductResolveOptions,
	match ProductMatchType,
) (*ProductResolution, error) {
	values := ProductUpdateValues(tmpl, rec, opts.Update)
	tid := tmpl.ID
	res := &ProductResolution{TemplateID: &tid, VariantID: variantID, MatchType: match}
	if len(values) == 0 {
		return res, nil
	}
	if err := rc.Tx.Products().UpdateTemplate(ctx, tmpl.ID, values); err != nil {
		return nil, fmt.Errorf("update product %s: %w", tmpl.ID, err)
	}
	res.Updated = true
	return res, nil
}

// ProductUpdateValues computes the writes a record implies for a template under policy.
func ProductUpdateValues(tmpl *integration.ProductTemplate, rec integration.ProductRecord, policy ProductUpdatePolicy) integration.ProductValues {
	values := integration.ProductValues{}
	setDecimal := func(field string, current, incoming decimal.Decimal) {
		if policy.OnlyIfValue && incoming.IsZero() {
			return
		}
		if !current.Equal(incoming) {
			values[field] = incoming
		}
	}
	if policy.Price {
		setDecimal(integration.ProductFieldListPrice, tmpl.ListPrice, rec.ListPrice)
		setDecimal(integration.ProductFieldCostPrice, tmpl.CostPrice, rec.CostPrice)
		setDecimal(integration.ProductFieldSupplierPrice, tmpl.SupplierPrice, rec.SupplierPrice)
	}
	if policy.Stock && rec.HasStock {
		if !tmpl.Stock.Equal(rec.Stock) {
			values[integration.ProductFieldStock] = rec.Stock
		}
		if policy.ZeroStock == ZeroStockDeactivate {
			active := rec.Stock.Sign() > 0
			if active != tmpl.Active {
				values[integration.ProductFieldActive] = active
			}
		}
	}
	if policy.Images && len(rec.Images) > 0 && !slices.Equal(tmpl.Images, rec.Images) {
		values[integration.ProductFieldImages] = rec.Images
	}
	if policy.Description {
		desc := normalize.CleanDescription(rec.Description)
		if (desc != "" || !policy.OnlyIfValue) && desc != tmpl.Description {
			values[integration.ProductFieldDescription] = desc
		}
	}
	if rec.Category != "" && rec.Category != tmpl.CategoryPath {
		values[integration.ProductFieldCategory] = rec.Category
	}
	if rec.Brand != "" && tmpl.Brand == "" {
		values[integration.ProductFieldBrand] = rec.Brand
	}
	return values
}

type scoredTemplate struct {
	template *integration.ProductTemplate
	score    float64
}

// pick keeps the highest score, then prefers the higher filled score and the
// lowest id. Ties are logged and counted as ambiguous.
func (r *ProductResolver) pick(rc integration.RunContext, match ProductMatchType, hits []scoredTemplate) *integration.ProductTemplate {
	best := slices.MaxFunc(hits, func(a, b scoredTemplate) int {
		switch {
		case a.score < b.score:
			return -1
		case a.score > b.score:
			return 1
		}
		return 0
	}).score
	var top []*integration.ProductTemplate
	for _, h := range hits {
		if h.score == best {
			top = append(top, h.template)
		}
	}
	if len(top) == 1 {
		return top[0]
	}
	slices.SortFunc(top, func(a, b *integration.ProductTemplate) int {
		if fa, fb := a.FilledScore(), b.FilledScore(); fa != fb {
			return fb - fa
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	ids := make([]uuid.UUID, len(top))
	for i, t := range top {
		ids[i] = t.ID
	}
	r.metrics.Ambiguous(rc.SourceID, "product")
	r.logger.Warn("ambiguous product match",
		zap.String("source_id", rc.SourceID),
		zap.String("rule", string(match)),
		zap.String("picked", top[0].ID.String()),
		zap.Stringers("candidates", ids),
	)
	return top[0]
}

