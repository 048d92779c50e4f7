package integration

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// ---------------------------------------------------------------------------
// memDB: an in-memory TransactionScope whose Execute rolls back on error
// ---------------------------------------------------------------------------

type memState struct {
	bindings    map[uuid.UUID]integration.Binding
	checkpoints map[integration.CheckpointKey]integration.SyncCheckpoint
	logs        map[uuid.UUID]integration.SyncLog
	statuses    map[string]integration.SourceStatus
	partners    map[uuid.UUID]integration.Partner
	templates   map[uuid.UUID]integration.ProductTemplate
	entries     map[uuid.UUID]integration.LedgerEntry
	orders      map[uuid.UUID]integration.SaleOrderDraft
}

func newMemState() *memState {
	return &memState{
		bindings:    map[uuid.UUID]integration.Binding{},
		checkpoints: map[integration.CheckpointKey]integration.SyncCheckpoint{},
		logs:        map[uuid.UUID]integration.SyncLog{},
		statuses:    map[string]integration.SourceStatus{},
		partners:    map[uuid.UUID]integration.Partner{},
		templates:   map[uuid.UUID]integration.ProductTemplate{},
		entries:     map[uuid.UUID]integration.LedgerEntry{},
		orders:      map[uuid.UUID]integration.SaleOrderDraft{},
	}
}

func (s *memState) clone() *memState {
	return &memState{
		bindings:    maps.Clone(s.bindings),
		checkpoints: maps.Clone(s.checkpoints),
		logs:        maps.Clone(s.logs),
		statuses:    maps.Clone(s.statuses),
		partners:    maps.Clone(s.partners),
		templates:   maps.Clone(s.templates),
		entries:     maps.Clone(s.entries),
		orders:      maps.Clone(s.orders),
	}
}

type memDB struct {
	state     *memState
	execCalls int
}

func newMemDB() *memDB {
	return &memDB{state: newMemState()}
}

func (db *memDB) Execute(ctx context.Context, fn func(ctx context.Context, stores integration.Stores) error) error {
	db.execCalls++
	saved := db.state.clone()
	if err := fn(ctx, memStores{db}); err != nil {
		db.state = saved
		return err
	}
	return nil
}

func (db *memDB) Stores() integration.Stores { return memStores{db} }

// runContext returns a run context writing straight into db
func (db *memDB) runContext(tenantID uuid.UUID, sourceID string, now time.Time) integration.RunContext {
	return integration.NewRunContext(tenantID, sourceID, integration.FixedClock{T: now}, db.Stores())
}

func (db *memDB) partnerList() []integration.Partner {
	return sortedByID(slices.Collect(maps.Values(db.state.partners)), func(p integration.Partner) uuid.UUID { return p.ID })
}

func (db *memDB) templateList() []integration.ProductTemplate {
	return sortedByID(slices.Collect(maps.Values(db.state.templates)), func(t integration.ProductTemplate) uuid.UUID { return t.ID })
}

func (db *memDB) entryList() []integration.LedgerEntry {
	return sortedByID(slices.Collect(maps.Values(db.state.entries)), func(e integration.LedgerEntry) uuid.UUID { return e.ID })
}

func (db *memDB) bindingList() []integration.Binding {
	return sortedByID(slices.Collect(maps.Values(db.state.bindings)), func(b integration.Binding) uuid.UUID { return b.ID })
}

func (db *memDB) addPartner(p integration.Partner) integration.Partner {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.NormalizedName == "" {
		p.NormalizedName = normalize.Name(p.Name)
	}
	db.state.partners[p.ID] = p
	return p
}

func (db *memDB) addEntry(e integration.LedgerEntry) integration.LedgerEntry {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.MoveType == "" {
		e.MoveType = integration.MoveTypeEntry
	}
	db.state.entries[e.ID] = e
	return e
}

func sortedByID[T any](items []T, id func(T) uuid.UUID) []T {
	slices.SortFunc(items, func(a, b T) int {
		ia, ib := id(a), id(b)
		return bytes.Compare(ia[:], ib[:])
	})
	return items
}

type memStores struct{ db *memDB }

func (s memStores) Bindings() integration.BindingRepository            { return memBindings(s) }
func (s memStores) Checkpoints() integration.CheckpointRepository      { return memCheckpoints(s) }
func (s memStores) SyncLogs() integration.SyncLogRepository            { return memLogs(s) }
func (s memStores) SourceStatuses() integration.SourceStatusRepository { return memStatuses(s) }
func (s memStores) Partners() integration.PartnerService               { return memPartners(s) }
func (s memStores) Products() integration.ProductService               { return memProducts(s) }
func (s memStores) Ledger() integration.LedgerService                  { return memLedger(s) }

var (
	_ integration.TransactionScope = (*memDB)(nil)
	_ integration.Stores           = memStores{}
)

// ---------------------------------------------------------------------------
// bindings, checkpoints, logs, statuses
// ---------------------------------------------------------------------------

type memBindings memStores

func (r memBindings) Find(_ context.Context, sourceID, externalID string, kind integration.EntityKind) (*integration.Binding, error) {
	for _, b := range r.db.state.bindings {
		if b.SourceID == sourceID && b.ExternalID == externalID && b.EntityKind == kind {
			return &b, nil
		}
	}
	return nil, integration.ErrBindingNotFound
}

func (r memBindings) Exists(ctx context.Context, sourceID, externalID string, kind integration.EntityKind) (bool, error) {
	_, err := r.Find(ctx, sourceID, externalID, kind)
	if errors.Is(err, integration.ErrBindingNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r memBindings) Create(ctx context.Context, b *integration.Binding) error {
	if ok, _ := r.Exists(ctx, b.SourceID, b.ExternalID, b.EntityKind); ok {
		return integration.ErrBindingConflict
	}
	r.db.state.bindings[b.ID] = *b
	return nil
}

func (r memBindings) Save(_ context.Context, b *integration.Binding) error {
	if _, ok := r.db.state.bindings[b.ID]; !ok {
		return integration.ErrBindingNotFound
	}
	r.db.state.bindings[b.ID] = *b
	return nil
}

func (r memBindings) Delete(_ context.Context, id uuid.UUID) error {
	delete(r.db.state.bindings, id)
	return nil
}

func (r memBindings) List(_ context.Context, f integration.BindingFilter) ([]integration.Binding, error) {
	var out []integration.Binding
	for _, b := range r.db.state.bindings {
		if f.SourceID != "" && b.SourceID != f.SourceID ||
			f.EntityKind != "" && b.EntityKind != f.EntityKind ||
			f.State != "" && b.State != f.State {
			continue
		}
		if f.DocumentFrom != nil && (b.DocumentDate == nil || b.DocumentDate.Before(*f.DocumentFrom)) {
			continue
		}
		if f.DocumentTo != nil && (b.DocumentDate == nil || b.DocumentDate.After(*f.DocumentTo)) {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b integration.Binding) int { return strings.Compare(a.ExternalID, b.ExternalID) })
	return out, nil
}

func (r memBindings) FindByInternalID(_ context.Context, kind integration.EntityKind, id uuid.UUID) ([]integration.Binding, error) {
	var out []integration.Binding
	for _, b := range r.db.state.bindings {
		if b.EntityKind == kind && b.InternalID != nil && *b.InternalID == id {
			out = append(out, b)
		}
	}
	return out, nil
}

type memCheckpoints memStores

func (r memCheckpoints) Get(_ context.Context, key integration.CheckpointKey) (*integration.SyncCheckpoint, error) {
	cp, ok := r.db.state.checkpoints[key]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (r memCheckpoints) Save(_ context.Context, cp *integration.SyncCheckpoint) error {
	if cur, ok := r.db.state.checkpoints[cp.CheckpointKey]; ok && cp.LastFetchedDate.Before(cur.LastFetchedDate) {
		return integration.ErrCheckpointRegression
	}
	r.db.state.checkpoints[cp.CheckpointKey] = *cp
	return nil
}

type memLogs memStores

func (r memLogs) Create(_ context.Context, l *integration.SyncLog) error {
	r.db.state.logs[l.ID] = *l
	return nil
}

func (r memLogs) Save(_ context.Context, l *integration.SyncLog) error {
	r.db.state.logs[l.ID] = *l
	return nil
}

func (r memLogs) ListRecent(_ context.Context, sourceID string, limit int) ([]integration.SyncLog, error) {
	var out []integration.SyncLog
	for _, l := range r.db.state.logs {
		if l.SourceID == sourceID {
			out = append(out, l)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memStatuses memStores

func (r memStatuses) Get(_ context.Context, sourceID string) (*integration.SourceStatus, error) {
	s, ok := r.db.state.statuses[sourceID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r memStatuses) Save(_ context.Context, s *integration.SourceStatus) error {
	r.db.state.statuses[s.SourceID] = *s
	return nil
}

// ---------------------------------------------------------------------------
// partners
// ---------------------------------------------------------------------------

type memPartners memStores

func (r memPartners) Get(_ context.Context, id uuid.UUID) (*integration.Partner, error) {
	p, ok := r.db.state.partners[id]
	if !ok {
		return nil, integration.ErrPartnerNotFound
	}
	return &p, nil
}

func (r memPartners) filter(tenantID uuid.UUID, keep func(p integration.Partner) bool) []integration.Partner {
	var out []integration.Partner
	for _, p := range r.db.partnerList() {
		if p.TenantID == tenantID && keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r memPartners) FindByTaxID(_ context.Context, tenantID uuid.UUID, variants []string) ([]integration.Partner, error) {
	return r.filter(tenantID, func(p integration.Partner) bool {
		return p.TaxID != "" && slices.Contains(variants, p.TaxID)
	}), nil
}

func (r memPartners) FindByPhone(_ context.Context, tenantID uuid.UUID, phone string) ([]integration.Partner, error) {
	return r.filter(tenantID, func(p integration.Partner) bool {
		return normalize.Phone(p.Phone) == phone || normalize.Phone(p.Mobile) == phone
	}), nil
}

func (r memPartners) FindByEmail(_ context.Context, tenantID uuid.UUID, email string) ([]integration.Partner, error) {
	return r.filter(tenantID, func(p integration.Partner) bool {
		return strings.EqualFold(p.Email, email)
	}), nil
}

func (r memPartners) ListForMatching(_ context.Context, tenantID uuid.UUID) ([]integration.Partner, error) {
	return r.filter(tenantID, func(integration.Partner) bool { return true }), nil
}

func (r memPartners) Create(_ context.Context, p *integration.Partner) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	cp.IBANs = slices.Clone(p.IBANs)
	r.db.state.partners[p.ID] = cp
	return nil
}

func (r memPartners) Update(_ context.Context, id uuid.UUID, values integration.PartnerValues) error {
	p, ok := r.db.state.partners[id]
	if !ok {
		return integration.ErrPartnerNotFound
	}
	p.Apply(values)
	r.db.state.partners[id] = p
	return nil
}

// ---------------------------------------------------------------------------
// products
// ---------------------------------------------------------------------------

type memProducts memStores

func (r memProducts) GetTemplate(_ context.Context, id uuid.UUID) (*integration.ProductTemplate, error) {
	t, ok := r.db.state.templates[id]
	if !ok {
		return nil, integration.ErrProductNotFound
	}
	return &t, nil
}

func (r memProducts) FindVariantByBarcode(_ context.Context, tenantID uuid.UUID, barcode string) (*integration.ProductVariant, *integration.ProductTemplate, error) {
	for _, t := range r.db.templateList() {
		if t.TenantID != tenantID {
			continue
		}
		for _, v := range t.Variants {
			if v.Barcode == barcode {
				return &v, &t, nil
			}
		}
	}
	return nil, nil, integration.ErrProductNotFound
}

func (r memProducts) FindTemplateBySKU(_ context.Context, tenantID uuid.UUID, sku string) (*integration.ProductTemplate, error) {
	for _, t := range r.db.templateList() {
		if t.TenantID == tenantID && t.DefaultCode == sku {
			return &t, nil
		}
	}
	return nil, integration.ErrProductNotFound
}

func (r memProducts) FindTemplatesBySKUPrefix(_ context.Context, tenantID uuid.UUID, prefix string) ([]integration.ProductTemplate, error) {
	var out []integration.ProductTemplate
	for _, t := range r.db.templateList() {
		if t.TenantID == tenantID && t.DefaultCode != "" && strings.HasPrefix(t.DefaultCode, prefix) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memProducts) FindTemplateByName(_ context.Context, tenantID uuid.UUID, name string) (*integration.ProductTemplate, error) {
	for _, t := range r.db.templateList() {
		if t.TenantID == tenantID && strings.EqualFold(t.Name, name) {
			return &t, nil
		}
	}
	return nil, integration.ErrProductNotFound
}

func (r memProducts) ListForMatching(_ context.Context, tenantID uuid.UUID) ([]integration.ProductTemplate, error) {
	var out []integration.ProductTemplate
	for _, t := range r.db.templateList() {
		if t.TenantID == tenantID && t.Active {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r memProducts) CreateTemplate(_ context.Context, t *integration.ProductTemplate) error {
	cp := *t
	cp.Variants = slices.Clone(t.Variants)
	for i := range cp.Variants {
		cp.Variants[i].TemplateID = t.ID
	}
	r.db.state.templates[t.ID] = cp
	return nil
}

func (r memProducts) UpdateTemplate(_ context.Context, id uuid.UUID, values integration.ProductValues) error {
	t, ok := r.db.state.templates[id]
	if !ok {
		return integration.ErrProductNotFound
	}
	t.Apply(values)
	r.db.state.templates[id] = t
	return nil
}

func (r memProducts) FindVariant(_ context.Context, templateID uuid.UUID, attrs map[string]string) (*integration.ProductVariant, error) {
	t, ok := r.db.state.templates[templateID]
	if !ok {
		return nil, integration.ErrProductNotFound
	}
	want := integration.AttributeKey(attrs)
	for _, v := range t.Variants {
		if v.AttributeKey() == want {
			return &v, nil
		}
	}
	return nil, integration.ErrProductNotFound
}

func (r memProducts) CreateVariant(_ context.Context, v *integration.ProductVariant) error {
	t, ok := r.db.state.templates[v.TemplateID]
	if !ok {
		return integration.ErrProductNotFound
	}
	t.Variants = append(slices.Clone(t.Variants), *v)
	r.db.state.templates[t.ID] = t
	return nil
}

// ---------------------------------------------------------------------------
// ledger
// ---------------------------------------------------------------------------

type memLedger memStores

func (r memLedger) GetEntry(_ context.Context, id uuid.UUID) (*integration.LedgerEntry, error) {
	e, ok := r.db.state.entries[id]
	if !ok {
		return nil, integration.ErrEntryNotFound
	}
	return &e, nil
}

func (r memLedger) search(s integration.EntrySearch, keep func(e integration.LedgerEntry) bool) []integration.LedgerEntry {
	var out []integration.LedgerEntry
	for _, e := range r.db.entryList() {
		if e.TenantID != s.TenantID || e.Date.Before(s.From) || e.Date.After(s.To) {
			continue
		}
		if len(s.MoveTypes) > 0 && !slices.Contains(s.MoveTypes, e.MoveType) {
			continue
		}
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if s != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func (r memLedger) FindByLineText(_ context.Context, s integration.EntrySearch, needles []string) ([]integration.LedgerEntry, error) {
	return r.search(s, func(e integration.LedgerEntry) bool {
		for _, l := range e.Lines {
			if containsAny(l.Name, needles) || containsAny(l.Ref, needles) {
				return true
			}
		}
		return false
	}), nil
}

func (r memLedger) FindByHeaderText(_ context.Context, s integration.EntrySearch, needles []string) ([]integration.LedgerEntry, error) {
	return r.search(s, func(e integration.LedgerEntry) bool {
		return containsAny(e.Ref, needles) || containsAny(e.Name, needles)
	}), nil
}

func (r memLedger) FindByPartners(_ context.Context, s integration.EntrySearch, ids []uuid.UUID) ([]integration.LedgerEntry, error) {
	return r.search(s, func(e integration.LedgerEntry) bool {
		if e.PartnerID != nil && slices.Contains(ids, *e.PartnerID) {
			return true
		}
		for _, id := range e.LinePartnerIDs() {
			if slices.Contains(ids, id) {
				return true
			}
		}
		return false
	}), nil
}

func (r memLedger) FindByDate(_ context.Context, s integration.EntrySearch) ([]integration.LedgerEntry, error) {
	return r.search(s, func(integration.LedgerEntry) bool { return true }), nil
}

func (r memLedger) CountPostedInvoices(_ context.Context, tenantID, partnerID uuid.UUID) (int64, error) {
	var n int64
	for _, e := range r.db.state.entries {
		if e.TenantID == tenantID && e.Posted && e.MoveType.IsInvoice() && e.PartnerID != nil && *e.PartnerID == partnerID {
			n++
		}
	}
	return n, nil
}

func (r memLedger) CreateEntry(_ context.Context, d integration.EntryDraft) (*integration.LedgerEntry, error) {
	e := integration.LedgerEntry{
		ID:        uuid.New(),
		TenantID:  d.TenantID,
		MoveType:  d.MoveType,
		PartnerID: d.PartnerID,
		Date:      d.Date,
		Total:     d.Total,
		Currency:  d.Currency,
		Ref:       d.Ref,
		Name:      d.Name,
		Lines:     slices.Clone(d.Lines),
		SourceID:  d.SourceID,
	}
	r.db.state.entries[e.ID] = e
	return &e, nil
}

func (r memLedger) CreateSaleOrder(_ context.Context, d integration.SaleOrderDraft) (uuid.UUID, error) {
	id := uuid.New()
	d.Lines = slices.Clone(d.Lines)
	r.db.state.orders[id] = d
	return id, nil
}

func (r memLedger) DeleteDraftEntry(_ context.Context, id uuid.UUID) error {
	e, ok := r.db.state.entries[id]
	if !ok {
		return integration.ErrEntryNotFound
	}
	if e.Posted {
		return errors.New("posted entry")
	}
	delete(r.db.state.entries, id)
	return nil
}

// ---------------------------------------------------------------------------
// fakeAdapter: a scripted SourceAdapter
// ---------------------------------------------------------------------------

type fakeDoc struct {
	summary integration.DocumentSummary
	doc     *integration.ExternalDocument
	// parseErr makes ParseDocument fail with a ParseError
	parseErr bool
}

type fakeAdapter struct {
	id    string
	caps  integration.Capabilities
	docs  []fakeDoc
	calls map[string]int
	// downloadErrs is consumed one error per DownloadDocument call
	downloadErrs []error
	refreshes    int
}

func newFakeAdapter(id string, caps ...integration.Capability) *fakeAdapter {
	return &fakeAdapter{id: id, caps: integration.NewCapabilities(caps...), calls: map[string]int{}}
}

func (a *fakeAdapter) add(doc *integration.ExternalDocument) {
	a.docs = append(a.docs, fakeDoc{
		summary: integration.DocumentSummary{
			ExternalID: doc.ExternalID,
			Kind:       doc.Kind,
			Direction:  doc.Direction,
			Number:     doc.Number,
			Date:       doc.Date,
			Total:      doc.Totals.Total,
			Payload:    doc.Raw,
		},
		doc: doc,
	})
}

func (a *fakeAdapter) SourceID() string                       { return a.id }
func (a *fakeAdapter) Type() integration.SourceType           { return integration.SourceTypeQNB }
func (a *fakeAdapter) Capabilities() integration.Capabilities { return a.caps }

func (a *fakeAdapter) ListDocuments(_ context.Context, w integration.Window, kind integration.DocumentKind, dir integration.Direction) iter.Seq2[integration.DocumentSummary, error] {
	a.calls["list"]++
	return func(yield func(integration.DocumentSummary, error) bool) {
		for _, d := range a.docs {
			if d.summary.Kind != kind || d.summary.Direction != dir || !w.Contains(d.summary.Date) {
				continue
			}
			if !yield(d.summary, nil) {
				return
			}
		}
	}
}

func (a *fakeAdapter) DownloadDocument(_ context.Context, s integration.DocumentSummary) ([]byte, error) {
	a.calls["download"]++
	if len(a.downloadErrs) > 0 {
		err := a.downloadErrs[0]
		a.downloadErrs = a.downloadErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return []byte(s.ExternalID), nil
}

func (a *fakeAdapter) ParseDocument(_ context.Context, s integration.DocumentSummary, raw []byte) (*integration.ExternalDocument, error) {
	a.calls["parse"]++
	for _, d := range a.docs {
		if d.summary.ExternalID != s.ExternalID {
			continue
		}
		if d.parseErr {
			return nil, integration.NewParseError(a.id, s.ExternalID, raw, errors.New("bad payload"))
		}
		doc := *d.doc
		doc.SourceID = a.id
		if len(doc.Raw) == 0 {
			doc.Raw = raw
		}
		if err := doc.Validate(); err != nil {
			return nil, err
		}
		return &doc, nil
	}
	return nil, integration.NewParseError(a.id, s.ExternalID, raw, integration.ErrDocumentNotFound)
}

func (a *fakeAdapter) RefreshAuth(context.Context) error {
	a.refreshes++
	return nil
}

var (
	_ integration.SourceAdapter   = (*fakeAdapter)(nil)
	_ integration.Reauthenticator = (*fakeAdapter)(nil)
)

type fakeRegistry map[string]integration.SourceAdapter

func (r fakeRegistry) Register(a integration.SourceAdapter) error {
	r[a.SourceID()] = a
	return nil
}

func (r fakeRegistry) Get(id string) (integration.SourceAdapter, error) {
	a, ok := r[id]
	if !ok {
		return nil, integration.ErrSourceNotFound
	}
	return a, nil
}

func (r fakeRegistry) List() []integration.SourceAdapter {
	return slices.Collect(maps.Values(r))
}

// recordingMetrics counts Metrics calls
type recordingMetrics struct {
	outcomes map[string]int
	blocked  int
	legacy   int
	ambig    int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: map[string]int{}}
}

func (m *recordingMetrics) DocumentProcessed(_ string, outcome string) { m.outcomes[outcome]++ }
func (m *recordingMetrics) ProtectedWriteBlocked(_ string, fields int) { m.blocked += fields }
func (m *recordingMetrics) LegacyUnmatched(string)                     { m.legacy++ }
func (m *recordingMetrics) Ambiguous(string, string)                   { m.ambig++ }
