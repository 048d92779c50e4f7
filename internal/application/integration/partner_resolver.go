package integration

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
	"github.com/mobilsoft/edire/internal/domain/shared/similarity"
)

// PartnerMatchType tells how a candidate was resolved
type PartnerMatchType string

const (
	PartnerMatchExact   PartnerMatchType = "exact"
	PartnerMatchBranch  PartnerMatchType = "branch"
	PartnerMatchSimilar PartnerMatchType = "similar"
	PartnerMatchNew     PartnerMatchType = "new"
	PartnerMatchSkipped PartnerMatchType = "skipped"
)

// PartnerResolveOptions controls what the resolver may write
type PartnerResolveOptions struct {
	// CanCreate allows new partners and branches
	CanCreate bool
	// AsCustomer and AsSupplier stamp the rank counters
	AsCustomer bool
	AsSupplier bool
}

// PartnerResolution is the outcome of one resolution
type PartnerResolution struct {
	Partner   *integration.Partner
	MatchType PartnerMatchType
	// Fill holds the fill-empty-only writes applied to a matched partner
	Fill integration.PartnerValues
	// Rule names the cascade step that hit, e.g. "tax_id" or "phone"
	Rule string
	// TaxIDConflict is set when the matched partner carries a different tax id
	TaxIDConflict bool
	// Ambiguous lists the tied candidates when a tie-break was needed
	Ambiguous []uuid.UUID
}

// PartnerID returns the resolved partner id, nil when skipped
func (r *PartnerResolution) PartnerID() *uuid.UUID {
	if r == nil || r.Partner == nil {
		return nil
	}
	id := r.Partner.ID
	return &id
}

// PartnerResolver runs the partner matching cascade:
// tax id, phone, e-mail, name similarity (branch / similar), corroborated
// secondary similarity, then create or skip.
type PartnerResolver struct {
	thresholds similarity.Thresholds
	guard      *ProtectedFieldGuard
	logger     *zap.Logger
	metrics    Metrics
}

// NewPartnerResolver creates a partner resolver. guard may be nil.
func NewPartnerResolver(thresholds similarity.Thresholds, guard *ProtectedFieldGuard, logger *zap.Logger, metrics Metrics) *PartnerResolver {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &PartnerResolver{thresholds: thresholds, guard: guard, logger: logger, metrics: metrics}
}

func (r *PartnerResolver) partners(rc integration.RunContext) integration.PartnerService {
	svc := rc.Tx.Partners()
	if r.guard != nil {
		return r.guard.Wrap(svc)
	}
	return svc
}

// Resolve matches a candidate and applies the resulting writes through rc.Tx.
func (r *PartnerResolver) Resolve(
	ctx context.Context,
	rc integration.RunContext,
	cand integration.PartnerCandidate,
	opts PartnerResolveOptions,
) (*PartnerResolution, error) {
	ctx = rc.Context(ctx)
	cand = canonicalCandidate(cand)
	if cand.IsEmpty() {
		return &PartnerResolution{MatchType: PartnerMatchSkipped, Rule: "empty"}, nil
	}

	res, err := r.match(ctx, rc, cand)
	if err != nil {
		return nil, err
	}
	if len(res.Ambiguous) > 1 {
		r.metrics.Ambiguous(rc.SourceID, "partner")
		r.logger.Warn("ambiguous partner match",
			zap.String("source_id", rc.SourceID),
			zap.String("rule", res.Rule),
			zap.String("picked", res.Partner.ID.String()),
			zap.Stringers("candidates", res.Ambiguous),
		)
	}

	switch res.MatchType {
	case PartnerMatchExact, PartnerMatchSimilar:
		if err := r.fill(ctx, rc, res, cand, opts); err != nil {
			return nil, err
		}
	case PartnerMatchBranch:
		if !opts.CanCreate {
			// Without create rights a branch hit degrades to updating the parent.
			res.MatchType = PartnerMatchSimilar
			if err := r.fill(ctx, rc, res, cand, opts); err != nil {
				return nil, err
			}
			break
		}
		branch, err := r.createBranch(ctx, rc, res.Partner, cand, opts)
		if err != nil {
			return nil, err
		}
		res.Partner = branch
	default:
		if !opts.CanCreate {
			res.MatchType = PartnerMatchSkipped
			return res, nil
		}
		created, err := r.create(ctx, rc, cand, nil, cand.Name, opts)
		if err != nil {
			return nil, err
		}
		res.Partner = created
		res.MatchType = PartnerMatchNew
	}

	if cand.AuthorizedContact != "" && res.Partner != nil && opts.CanCreate {
		if err := r.ensureContact(ctx, rc, res.Partner, cand.AuthorizedContact); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// Match runs the cascade without writing anything.
func (r *PartnerResolver) Match(ctx context.Context, rc integration.RunContext, cand integration.PartnerCandidate) (*PartnerResolution, error) {
	return r.match(rc.Context(ctx), rc, canonicalCandidate(cand))
}

func (r *PartnerResolver) match(ctx context.Context, rc integration.RunContext, cand integration.PartnerCandidate) (*PartnerResolution, error) {
	svc := rc.Tx.Partners()

	// 1. Tax id
	if cand.TaxID != "" {
		found, err := svc.FindByTaxID(ctx, rc.TenantID, normalize.TaxIDVariants(cand.TaxID))
		if err != nil {
			return nil, fmt.Errorf("find partner by tax id: %w", err)
		}
		if len(found) > 0 {
			picked, tied := pickPartner(preferSameStreet(found, cand.Street))
			return &PartnerResolution{Partner: picked, MatchType: PartnerMatchExact, Rule: "tax_id", Ambiguous: tied}, nil
		}
	}

	// 2. Phone
	if cand.Phone != "" {
		found, err := svc.FindByPhone(ctx, rc.TenantID, cand.Phone)
		if err != nil {
			return nil, fmt.Errorf("find partner by phone: %w", err)
		}
		if hit := withoutTaxConflict(found, cand.TaxID); len(hit) > 0 {
			picked, tied := pickPartner(hit)
			return &PartnerResolution{Partner: picked, MatchType: PartnerMatchExact, Rule: "phone", Ambiguous: tied}, nil
		}
	}

	// 3. E-mail
	if cand.Email != "" {
		found, err := svc.FindByEmail(ctx, rc.TenantID, cand.Email)
		if err != nil {
			return nil, fmt.Errorf("find partner by email: %w", err)
		}
		if hit := withoutTaxConflict(found, cand.TaxID); len(hit) > 0 {
			picked, tied := pickPartner(hit)
			return &PartnerResolution{Partner: picked, MatchType: PartnerMatchExact, Rule: "email", Ambiguous: tied}, nil
		}
	}

	if cand.NormalizedName == "" {
		return &PartnerResolution{MatchType: PartnerMatchNew, Rule: "no_name"}, nil
	}

	all, err := svc.ListForMatching(ctx, rc.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list partners for matching: %w", err)
	}

	var strict, secondary []scoredPartner
	for i := range all {
		p := &all[i]
		if isPlainContact(p) {
			continue
		}
		score := similarity.Score(cand.NormalizedName, partnerNormalizedName(p))
		switch {
		case score >= r.thresholds.NameStrict:
			strict = append(strict, scoredPartner{partner: p, score: score})
		case score >= r.thresholds.NameSecondary:
			secondary = append(secondary, scoredPartner{partner: p, score: score})
		}
	}
	strict = withoutTaxConflictScored(strict, cand.TaxID)

	// 4 and 5. Strict name similarity, split by address
	if len(strict) > 0 {
		candStreet := normalize.Name(cand.Street)
		var sameAddr []scoredPartner
		for _, sp := range strict {
			ps := normalize.Name(sp.partner.Street)
			if candStreet == "" || ps == "" || ps == candStreet {
				sameAddr = append(sameAddr, sp)
			}
		}
		if len(sameAddr) > 0 {
			picked, tied := pickScored(sameAddr)
			return &PartnerResolution{Partner: picked, MatchType: PartnerMatchSimilar, Rule: "name_strict", Ambiguous: tied}, nil
		}
		var parents []scoredPartner
		for _, sp := range strict {
			if sp.partner.ParentID == nil {
				parents = append(parents, sp)
			}
		}
		if len(parents) == 0 {
			parents = strict
		}
		picked, tied := pickScored(parents)
		return &PartnerResolution{Partner: picked, MatchType: PartnerMatchBranch, Rule: "name_branch", Ambiguous: tied}, nil
	}

	// 6. Secondary similarity corroborated by e-mail or phone
	var corroborated []scoredPartner
	for _, sp := range withoutTaxConflictScored(secondary, cand.TaxID) {
		if sharesContact(sp.partner, cand) {
			corroborated = append(corroborated, sp)
		}
	}
	if len(corroborated) > 0 {
		picked, tied := pickScored(corroborated)
		return &PartnerResolution{Partner: picked, MatchType: PartnerMatchSimilar, Rule: "name_secondary", Ambiguous: tied}, nil
	}

	// 7. Nothing matched
	return &PartnerResolution{MatchType: PartnerMatchNew, Rule: "none"}, nil
}

// fill applies fill-empty-only writes to the matched partner
func (r *PartnerResolver) fill(
	ctx context.Context,
	rc integration.RunContext,
	res *PartnerResolution,
	cand integration.PartnerCandidate,
	opts PartnerResolveOptions,
) error {
	p := res.Partner
	existingTax := normalize.TaxID(p.TaxID)
	if cand.TaxID != "" && existingTax != "" && existingTax != cand.TaxID {
		res.TaxIDConflict = true
		r.logger.Warn("partner tax id differs, update skipped",
			zap.String("source_id", rc.SourceID),
			zap.String("partner_id", p.ID.String()),
			zap.String("partner_tax_id", existingTax),
			zap.String("incoming_tax_id", cand.TaxID),
		)
		return nil
	}

	values := FillEmptyValues(p, cand)
	if opts.AsCustomer && p.CustomerRank == 0 {
		values[integration.PartnerFieldCustomerRank] = 1
	}
	if opts.AsSupplier && p.SupplierRank == 0 {
		values[integration.PartnerFieldSupplierRank] = 1
	}
	if len(values) == 0 {
		return nil
	}
	res.Fill = values
	if err := r.partners(rc).Update(ctx, p.ID, values); err != nil {
		return fmt.Errorf("update partner %s: %w", p.ID, err)
	}
	return nil
}

// FillEmptyValues returns the candidate values for fields empty on the partner.
// The partner name is never part of the payload.
func FillEmptyValues(p *integration.Partner, cand integration.PartnerCandidate) integration.PartnerValues {
	values := integration.PartnerValues{}
	set := func(field, value string) {
		if value != "" && p.FieldValue(field) == "" {
			values[field] = value
		}
	}
	set(integration.PartnerFieldTaxID, cand.TaxID)
	set(integration.PartnerFieldTaxOffice, cand.TaxOffice)
	set(integration.PartnerFieldStreet, cand.Street)
	set(integration.PartnerFieldStreet2, cand.Street2)
	set(integration.PartnerFieldCity, cand.City)
	set(integration.PartnerFieldDistrict, cand.District)
	set(integration.PartnerFieldZip, cand.Zip)
	set(integration.PartnerFieldCountry, cand.Country)
	set(integration.PartnerFieldPhone, cand.Phone)
	set(integration.PartnerFieldMobile, cand.Mobile)
	set(integration.PartnerFieldEmail, cand.Email)
	set(integration.PartnerFieldWebsite, cand.Website)
	if len(cand.IBANs) > 0 && len(p.IBANs) == 0 {
		values[integration.PartnerFieldIBAN] = cand.IBANs
	}
	if cand.TaxExempt && !p.IsTaxExempt {
		values[integration.PartnerFieldTaxExempt] = true
	}
	return values
}

func (r *PartnerResolver) createBranch(
	ctx context.Context,
	rc integration.RunContext,
	parent *integration.Partner,
	cand integration.PartnerCandidate,
	opts PartnerResolveOptions,
) (*integration.Partner, error) {
	name := BranchName(parent.Name, cand)
	parentID := parent.ID
	branch, err := r.create(ctx, rc, cand, &parentID, name, opts)
	if err != nil {
		return nil, err
	}
	r.logger.Info("partner branch created",
		zap.String("source_id", rc.SourceID),
		zap.String("parent_id", parent.ID.String()),
		zap.String("branch", name),
	)
	return branch, nil
}

// BranchName renders "<parent name> — <locality>" where locality is the first
// non-empty of city, district or the first address token of at least three runes.
func BranchName(parentName string, cand integration.PartnerCandidate) string {
	locality := strings.TrimSpace(cand.City)
	if locality == "" {
		locality = strings.TrimSpace(cand.District)
	}
	if locality == "" {
		for _, tok := range strings.Fields(cand.Street) {
			if len([]rune(tok)) >= similarity.MinTokenLength {
				locality = tok
				break
			}
		}
	}
	if locality == "" {
		return parentName
	}
	return parentName + " — " + locality
}

func (r *PartnerResolver) create(
	ctx context.Context,
	rc integration.RunContext,
	cand integration.PartnerCandidate,
	parentID *uuid.UUID,
	name string,
	opts PartnerResolveOptions,
) (*integration.Partner, error) {
	now := rc.Now()
	p := &integration.Partner{
		ID:              uuid.New(),
		TenantID:        rc.TenantID,
		ParentID:        parentID,
		Name:            strings.TrimSpace(name),
		NormalizedName:  normalize.Name(name),
		TaxID:           cand.TaxID,
		TaxOffice:       cand.TaxOffice,
		Street:          cand.Street,
		Street2:         cand.Street2,
		City:            cand.City,
		District:        cand.District,
		Zip:             cand.Zip,
		Country:         cand.Country,
		Phone:           cand.Phone,
		Mobile:          cand.Mobile,
		Email:           cand.Email,
		Website:         cand.Website,
		IBANs:           cand.IBANs,
		IsCompany:       cand.TaxID == "" || normalize.IsCompanyTaxID(cand.TaxID),
		IsTaxExempt:     cand.TaxExempt,
		CreatedBySource: rc.SourceID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.Name == "" {
		p.Name = cand.TaxID
	}
	if opts.AsCustomer {
		p.CustomerRank = 1
	}
	if opts.AsSupplier {
		p.SupplierRank = 1
	}
	if err := rc.Tx.Partners().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create partner: %w", err)
	}
	return p, nil
}

// ensureContact attaches the authorized person as a child contact once
func (r *PartnerResolver) ensureContact(ctx context.Context, rc integration.RunContext, parent *integration.Partner, person string) error {
	person = strings.TrimSpace(person)
	if person == "" || normalize.Name(person) == partnerNormalizedName(parent) {
		return nil
	}
	all, err := rc.Tx.Partners().ListForMatching(ctx, rc.TenantID)
	if err != nil {
		return fmt.Errorf("list partners for contact: %w", err)
	}
	want := normalize.Name(person)
	for i := range all {
		if all[i].ParentID != nil && *all[i].ParentID == parent.ID && partnerNormalizedName(&all[i]) == want {
			return nil
		}
	}
	parentID := parent.ID
	now := rc.Now()
	contact := &integration.Partner{
		ID:              uuid.New(),
		TenantID:        rc.TenantID,
		ParentID:        &parentID,
		Name:            person,
		NormalizedName:  want,
		CreatedBySource: rc.SourceID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := rc.Tx.Partners().Create(ctx, contact); err != nil {
		return fmt.Errorf("create contact: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type scoredPartner struct {
	partner *integration.Partner
	score   float64
}

func canonicalCandidate(c integration.PartnerCandidate) integration.PartnerCandidate {
	c.TaxID = normalize.TaxID(c.TaxID)
	c.Name = normalize.CollapseSpaces(c.Name)
	if c.NormalizedName == "" {
		c.NormalizedName = normalize.Name(c.Name)
	}
	c.Phone = normalize.Phone(c.Phone)
	c.Mobile = normalize.Phone(c.Mobile)
	if c.Phone == "" {
		c.Phone = c.Mobile
	}
	c.Email = normalize.Email(c.Email)
	ibans := make([]string, 0, len(c.IBANs))
	for _, iban := range c.IBANs {
		if n := normalize.IBAN(iban); n != "" {
			ibans = append(ibans, n)
		}
	}
	c.IBANs = ibans
	return c
}

func partnerNormalizedName(p *integration.Partner) string {
	if p.NormalizedName != "" {
		return p.NormalizedName
	}
	return normalize.Name(p.Name)
}

// isPlainContact reports child records that only name a person
func isPlainContact(p *integration.Partner) bool {
	return p.ParentID != nil && p.TaxID == "" && p.Street == "" && p.Phone == "" && p.Email == ""
}

func sharesContact(p *integration.Partner, cand integration.PartnerCandidate) bool {
	if cand.Email != "" && normalize.Email(p.Email) == cand.Email {
		return true
	}
	if cand.Phone != "" {
		if normalize.Phone(p.Phone) == cand.Phone || normalize.Phone(p.Mobile) == cand.Phone {
			return true
		}
	}
	return false
}

func withoutTaxConflict(ps []integration.Partner, taxID string) []integration.Partner {
	if taxID == "" {
		return ps
	}
	out := ps[:0:0]
	for _, p := range ps {
		if t := normalize.TaxID(p.TaxID); t == "" || t == taxID {
			out = append(out, p)
		}
	}
	return out
}

func withoutTaxConflictScored(ps []scoredPartner, taxID string) []scoredPartner {
	if taxID == "" {
		return ps
	}
	var out []scoredPartner
	for _, sp := range ps {
		if t := normalize.TaxID(sp.partner.TaxID); t == "" || t == taxID {
			out = append(out, sp)
		}
	}
	return out
}

func preferSameStreet(ps []integration.Partner, street string) []integration.Partner {
	s := normalize.Name(street)
	if s == "" || len(ps) < 2 {
		return ps
	}
	var same []integration.Partner
	for _, p := range ps {
		if normalize.Name(p.Street) == s {
			same = append(same, p)
		}
	}
	if len(same) == 0 {
		return ps
	}
	return same
}

// pickPartner applies the tie-break: highest filled score, then lowest id.
// The second result lists the tied candidates when there was more than one.
func pickPartner(ps []integration.Partner) (*integration.Partner, []uuid.UUID) {
	scored := make([]scoredPartner, len(ps))
	for i := range ps {
		scored[i] = scoredPartner{partner: &ps[i], score: 1}
	}
	return pickScored(scored)
}

// pickScored keeps the highest similarity, then applies the filled-score / lowest-id tie-break
func pickScored(ps []scoredPartner) (*integration.Partner, []uuid.UUID) {
	best := slices.MaxFunc(ps, func(a, b scoredPartner) int {
		switch {
		case a.score < b.score:
			return -1
		case a.score > b.score:
			return 1
		}
		return 0
	}).score
	var top []*integration.Partner
	for _, sp := range ps {
		if sp.score == best {
			top = append(top, sp.partner)
		}
	}
	if len(top) == 1 {
		return top[0], nil
	}
	slices.SortFunc(top, func(a, b *integration.Partner) int {
		if fa, fb := a.FilledScore(), b.FilledScore(); fa != fb {
			return fb - fa
		}
		return bytes.Compare(a.ID[:], b.ID[:])
	})
	ids := make([]uuid.UUID, len(top))
	for i, p := range top {
		ids[i] = p.ID
	}
	return top[0], ids
}
