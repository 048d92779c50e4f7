package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/similarity"
)

const testSource = "qnb-main"

var (
	primaryTenant   = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	secondaryTenant = uuid.MustParse("22222222-2222-2222-2222-222222222222")
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type harness struct {
	db       *memDB
	adapter  *fakeAdapter
	coord    *Coordinator
	ops      *Operations
	metrics  *recordingMetrics
	plan     SourcePlan
	now      time.Time
	guard    *ProtectedFieldGuard
	partners *PartnerResolver
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	routing RoutingConfig
	now     time.Time
	caps    []integration.Capability
	streams []Stream
	ownIDs  []uuid.UUID
}

func withRouting(cfg RoutingConfig) harnessOption {
	return func(c *harnessConfig) { c.routing = cfg }
}

func withStreams(streams ...Stream) harnessOption {
	return func(c *harnessConfig) { c.streams = streams }
}

func withNow(now time.Time) harnessOption {
	return func(c *harnessConfig) { c.now = now }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{
		now: day(2026, time.March, 10),
		caps: []integration.Capability{
			integration.CapabilityIncomingInvoices,
			integration.CapabilityOutgoingInvoices,
			integration.CapabilityPartners,
			integration.CapabilityProducts,
			integration.CapabilityLedgerLines,
		},
		streams: []Stream{{Kind: integration.DocumentKindInvoice, Direction: integration.DirectionIncoming}},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	logger := zap.NewNop()
	metrics := newRecordingMetrics()
	th := similarity.DefaultThresholds()
	db := newMemDB()
	adapter := newFakeAdapter(testSource, cfg.caps...)
	guard := NewProtectedFieldGuard(cfg.ownIDs, logger, metrics)
	partners := NewPartnerResolver(th, guard, logger, metrics)
	products := NewProductResolver(th, logger, metrics)
	routing, err := NewRoutingPolicy(cfg.routing)
	require.NoError(t, err)

	coord := NewCoordinator(CoordinatorDeps{
		Registry:   fakeRegistry{testSource: adapter},
		Scope:      db,
		Partners:   partners,
		Products:   products,
		Routing:    routing,
		Reconciler: NewLedgerReconciler(DefaultReconcilerConfig(), products, logger, metrics),
		Clock:      integration.FixedClock{T: cfg.now},
		Logger:     logger,
		Metrics:    metrics,
	}, CoordinatorConfig{Retry: RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond}})

	plan := SourcePlan{
		SourceID:  testSource,
		TenantID:  primaryTenant,
		Streams:   cfg.streams,
		StartDate: day(2025, time.January, 1),
		Partner:   PartnerResolveOptions{CanCreate: true},
		Product:   ProductResolveOptions{CanCreate: true, Update: DefaultProductUpdatePolicy()},
	}
	return &harness{
		db:       db,
		adapter:  adapter,
		coord:    coord,
		ops:      NewOperations(coord, StaticPlans{testSource: plan}),
		metrics:  metrics,
		plan:     plan,
		now:      cfg.now,
		guard:    guard,
		partners: partners,
	}
}

func (h *harness) pull(t *testing.T) integration.Counters {
	t.Helper()
	counters, err := h.coord.Pull(context.Background(), h.plan)
	require.NoError(t, err)
	return counters
}

func (h *harness) checkpoint(kind integration.DocumentKind, dir integration.Direction) *integration.SyncCheckpoint {
	cp, _ := h.db.Stores().Checkpoints().Get(context.Background(), integration.CheckpointKey{
		SourceID: testSource, Kind: kind, Direction: dir, TenantID: primaryTenant,
	})
	return cp
}

func incomingInvoice(extID, number, taxID, name string, date time.Time, net, tax, total string) *integration.ExternalDocument {
	return &integration.ExternalDocument{
		ExternalID: extID,
		Direction:  integration.DirectionIncoming,
		Kind:       integration.DocumentKindInvoice,
		Number:     number,
		Date:       date,
		Totals:     integration.Totals{Net: dec(net), Tax: dec(tax), Total: dec(total)},
		Counterparty: integration.PartnerCandidate{
			TaxID: taxID,
			Name:  name,
		},
		Lines: []integration.DocumentLine{{
			Sequence:    1,
			Description: "Pamuklu Kumaş",
			Quantity:    dec("1"),
			UnitPrice:   dec(net),
			Subtotal:    dec(net),
			TaxPercent:  dec("18"),
		}},
		Raw: []byte("<Invoice><ID>" + number + "</ID></Invoice>"),
	}
}

// ---------------------------------------------------------------------------
// End-to-end scenarios
// ---------------------------------------------------------------------------

func TestCoordinator_FreshIncomingInvoice(t *testing.T) {
	h := newHarness(t)
	h.adapter.add(incomingInvoice("E1", "ABC2026000000001", "1234567890", "ACME TEKSTİL A.Ş.",
		day(2026, time.March, 5), "1000.00", "180.00", "1180.00"))

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterCreated])
	assert.Zero(t, counters[integration.CounterFailed])

	partners := h.db.partnerList()
	require.Len(t, partners, 1)
	assert.Equal(t, "ACME TEKSTİL A.Ş.", partners[0].Name)
	assert.Equal(t, 1, partners[0].SupplierRank)
	assert.Equal(t, "1234567890", partners[0].TaxID)
	assert.Equal(t, primaryTenant, partners[0].TenantID)

	entries := h.db.entryList()
	require.Len(t, entries, 1)
	assert.Equal(t, integration.MoveTypeInInvoice, entries[0].MoveType)
	assert.Equal(t, primaryTenant, entries[0].TenantID)
	assert.True(t, entries[0].Total.Equal(dec("1180.00")))
	require.NotNil(t, entries[0].PartnerID)
	assert.Equal(t, partners[0].ID, *entries[0].PartnerID)

	binding, err := h.db.Stores().Bindings().Find(context.Background(), testSource, "E1", integration.EntityKindDocument)
	require.NoError(t, err)
	require.NotNil(t, binding.InternalID)
	assert.Equal(t, entries[0].ID, *binding.InternalID)
	assert.Equal(t, integration.BindingStateDelivered, binding.State)
	require.NotNil(t, binding.PartnerID)
	assert.Equal(t, partners[0].ID, *binding.PartnerID)

	cp := h.checkpoint(integration.DocumentKindInvoice, integration.DirectionIncoming)
	require.NotNil(t, cp)
	assert.Equal(t, day(2026, time.March, 5), cp.LastFetchedDate)
	assert.Equal(t, "E1", cp.LastExternalID)
}

func TestCoordinator_ReplayIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.adapter.add(incomingInvoice("E1", "ABC2026000000001", "1234567890", "ACME TEKSTİL A.Ş.",
		day(2026, time.March, 5), "1000.00", "180.00", "1180.00"))

	h.pull(t)
	partnersBefore := len(h.db.partnerList())
	templatesBefore := len(h.db.templateList())
	downloads := h.adapter.calls["download"]

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterSkipped])
	assert.Zero(t, counters[integration.CounterCreated])
	assert.Len(t, h.db.entryList(), 1)
	assert.Len(t, h.db.bindingList(), 1)
	assert.Len(t, h.db.partnerList(), partnersBefore)
	assert.Len(t, h.db.templateList(), templatesBefore)
	assert.Equal(t, downloads, h.adapter.calls["download"], "bound documents are not downloaded again")
}

func TestCoordinator_LegacyMatchByDocumentNumber(t *testing.T) {
	h := newHarness(t)
	existing := h.db.addEntry(integration.LedgerEntry{
		TenantID: primaryTenant,
		MoveType: integration.MoveTypeEntry,
		Date:     day(2025, time.June, 10),
		Ref:      "2025/00777",
		Total:    dec("590.00"),
		Posted:   true,
	})
	h.adapter.add(incomingInvoice("E777", "2025/00777", "9876543210", "Eski Tedarikçi Ltd Şti",
		day(2025, time.June, 12), "500.00", "90.00", "590.00"))

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterBound])
	assert.Zero(t, counters[integration.CounterCreated])

	require.Len(t, h.db.entryList(), 1, "no new invoice in the legacy era")
	binding, err := h.db.Stores().Bindings().Find(context.Background(), testSource, "E777", integration.EntityKindDocument)
	require.NoError(t, err)
	require.NotNil(t, binding.InternalID)
	assert.Equal(t, existing.ID, *binding.InternalID)
	assert.Equal(t, integration.BindingStateDelivered, binding.State)
}

func TestCoordinator_LegacyUnmatchedWritesDraftBinding(t *testing.T) {
	h := newHarness(t)
	h.adapter.add(incomingInvoice("E900", "2025/00900", "9876543210", "Eski Tedarikçi",
		day(2025, time.May, 2), "100.00", "18.00", "118.00"))

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterLegacyUnmatched])
	assert.Empty(t, h.db.entryList())
	assert.Equal(t, 1, h.metrics.legacy)

	binding, err := h.db.Stores().Bindings().Find(context.Background(), testSource, "E900", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.Nil(t, binding.InternalID)
	assert.Equal(t, integration.BindingStateDraft, binding.State)
}

func TestCoordinator_AmountOnlyMatchInfersCounterparty(t *testing.T) {
	h := newHarness(t)
	linePartner := uuid.New()
	entry := h.db.addEntry(integration.LedgerEntry{
		TenantID: primaryTenant,
		Date:     day(2026, time.February, 9),
		Total:    dec("500.00"),
		Ref:      "MAHSUP",
		Lines: []integration.LedgerLine{
			{Name: "Kumaş alımı", PartnerID: &linePartner, Credit: dec("500.00")},
			{Name: "Kumaş alımı", AccountCode: "153", Debit: dec("500.00")},
		},
	})
	doc := incomingInvoice("E501", "XYZ2026000000100", "", "", day(2026, time.February, 10), "423.73", "76.27", "500.00")
	require.True(t, doc.Counterparty.IsEmpty())
	h.adapter.add(doc)

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterBound])
	assert.Empty(t, h.db.partnerList())
	assert.Len(t, h.db.entryList(), 1)

	binding, err := h.db.Stores().Bindings().Find(context.Background(), testSource, "E501", integration.EntityKindDocument)
	require.NoError(t, err)
	require.NotNil(t, binding.InternalID)
	assert.Equal(t, entry.ID, *binding.InternalID)
	require.NotNil(t, binding.PartnerID)
	assert.Equal(t, linePartner, *binding.PartnerID)
}

func TestCoordinator_AmbiguousAmountOnlyMatch(t *testing.T) {
	h := newHarness(t)
	for _, d := range []int{8, 12} {
		h.db.addEntry(integration.LedgerEntry{
			TenantID: primaryTenant,
			Date:     day(2026, time.February, d),
			Total:    dec("500.00"),
			Ref:      "MAHSUP",
		})
	}
	h.adapter.add(incomingInvoice("E500", "XYZ2026000000099", "5555555555", "Bilinmeyen Firma",
		day(2026, time.February, 10), "423.73", "76.27", "500.00"))

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterAmbiguous])
	assert.Equal(t, 1, counters[integration.CounterFailed])
	assert.Equal(t, 1, h.metrics.ambig)

	exists, err := h.db.Stores().Bindings().Exists(context.Background(), testSource, "E500", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, h.db.partnerList(), "the unit of work is rolled back")
	assert.Len(t, h.db.entryList(), 2)
	assert.Nil(t, h.checkpoint(integration.DocumentKindInvoice, integration.DirectionIncoming))
}

func TestCoordinator_NonInvoiceRoutedToSecondaryTenant(t *testing.T) {
	h := newHarness(t,
		withRouting(RoutingConfig{
			Enabled:           true,
			PrimaryTenantID:   primaryTenant,
			SecondaryTenantID: secondaryTenant,
			NonInvoiceRule:    integration.NonInvoiceRuleBoth,
		}),
		withStreams(Stream{Kind: integration.DocumentKindInvoice, Direction: integration.DirectionOutgoing}),
	)
	h.adapter.add(&integration.ExternalDocument{
		ExternalID: "S-42",
		Direction:  integration.DirectionOutgoing,
		Kind:       integration.DocumentKindInvoice,
		Date:       day(2026, time.March, 3),
		Totals:     integration.Totals{Net: dec("250.00"), Tax: decimal.Zero, Total: dec("250.00")},
		Counterparty: integration.PartnerCandidate{
			Name:  "Ayşe Yılmaz",
			Phone: "0532 111 22 33",
		},
		Lines: []integration.DocumentLine{{
			Sequence:    1,
			Description: "Bluetooth Hoparlör",
			Quantity:    dec("1"),
			UnitPrice:   dec("250.00"),
			Subtotal:    dec("250.00"),
			TaxPercent:  dec("20"),
		}},
		Raw: []byte(`{"guid":"S-42"}`),
	})

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterCreated])

	assert.Empty(t, h.db.entryList(), "no invoice is written")
	require.Len(t, h.db.state.orders, 1)
	for _, order := range h.db.state.orders {
		assert.Equal(t, secondaryTenant, order.TenantID)
		assert.True(t, order.Total.Equal(dec("250.00")))
		for _, line := range order.Lines {
			assert.True(t, line.TaxPercent.IsZero())
		}
	}

	partners := h.db.partnerList()
	require.Len(t, partners, 1)
	assert.Equal(t, secondaryTenant, partners[0].TenantID)
	assert.Equal(t, 1, partners[0].CustomerRank)

	binding, err := h.db.Stores().Bindings().Find(context.Background(), testSource, "S-42", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.Equal(t, secondaryTenant, binding.TenantID)
}

// ---------------------------------------------------------------------------
// Error handling
// ---------------------------------------------------------------------------

func TestCoordinator_ParseErrorWritesPlaceholder(t *testing.T) {
	h := newHarness(t)
	doc := incomingInvoice("BAD", "ABC1", "1234567890", "X", day(2026, time.March, 2), "1", "0", "1")
	h.adapter.add(doc)
	h.adapter.docs[0].parseErr = true

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterUnparseable])
	assert.Empty(t, h.db.partnerList())
	assert.Empty(t, h.db.entryList())

	binding, err := h.db.Stores().Bindings().Find(context.Background(), testSource, "BAD", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.Equal(t, integration.BindingStateUnparseable, binding.State)
	assert.Nil(t, binding.InternalID)
	assert.Equal(t, []byte("BAD"), binding.PayloadSnapshot)

	h.pull(t)
	assert.Equal(t, 1, h.adapter.calls["parse"], "unparseable documents are not attempted again")
}

func TestCoordinator_TransportErrorsAreRetried(t *testing.T) {
	h := newHarness(t)
	h.adapter.add(incomingInvoice("E1", "ABC1", "1234567890", "ACME", day(2026, time.March, 5), "10", "2", "12"))
	transient := &integration.TransportError{SourceID: testSource, Op: "download", Err: errors.New("timeout")}
	h.adapter.downloadErrs = []error{transient, transient}

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterCreated])
	assert.Equal(t, 3, h.adapter.calls["download"])
}

func TestCoordinator_CheckpointStopsAtEarliestFailure(t *testing.T) {
	h := newHarness(t)
	h.adapter.add(incomingInvoice("E1", "ABC1", "1234567890", "ACME", day(2026, time.March, 2), "10", "2", "12"))
	h.adapter.add(incomingInvoice("E2", "ABC2", "1234567890", "ACME", day(2026, time.March, 5), "20", "4", "24"))
	transient := &integration.TransportError{SourceID: testSource, Op: "download", Err: errors.New("connection reset")}
	h.adapter.downloadErrs = []error{transient, transient, transient, transient}

	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterFailed])
	assert.Equal(t, 1, counters[integration.CounterCreated])
	assert.Equal(t, 5, h.adapter.calls["download"])

	exists, err := h.db.Stores().Bindings().Exists(context.Background(), testSource, "E2", integration.EntityKindDocument)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Nil(t, h.checkpoint(integration.DocumentKindInvoice, integration.DirectionIncoming),
		"the checkpoint does not move past the failed document")

	// The next run retries E1 and skips the bound E2.
	counters = h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterCreated])
	assert.Equal(t, 1, counters[integration.CounterSkipped])
	cp := h.checkpoint(integration.DocumentKindInvoice, integration.DirectionIncoming)
	require.NotNil(t, cp)
	assert.Equal(t, day(2026, time.March, 5), cp.LastFetchedDate)
}

func TestCoordinator_AuthErrorRefreshesOnce(t *testing.T) {
	h := newHarness(t)
	h.adapter.add(incomingInvoice("E1", "ABC1", "1234567890", "ACME", day(2026, time.March, 5), "10", "2", "12"))
	h.adapter.downloadErrs = []error{&integration.AuthError{SourceID: testSource, Err: errors.New("401")}}

	counters := h.pull(t)
	assert.Equal(t, 1, h.adapter.refreshes)
	assert.Equal(t, 1, counters[integration.CounterCreated])

	status, err := h.db.Stores().SourceStatuses().Get(context.Background(), testSource)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, integration.SourceStateOK, status.State)
}

func TestCoordinator_AuthErrorAfterRefreshMarksSourceError(t *testing.T) {
	h := newHarness(t)
	h.adapter.add(incomingInvoice("E1", "ABC1", "1234567890", "ACME", day(2026, time.March, 5), "10", "2", "12"))
	denied := &integration.AuthError{SourceID: testSource, Err: errors.New("403")}
	h.adapter.downloadErrs = []error{denied, denied}

	_, err := h.coord.Pull(context.Background(), h.plan)
	require.Error(t, err)
	assert.True(t, integration.IsAuthError(err))
	assert.Equal(t, 1, h.adapter.refreshes)

	status, err := h.db.Stores().SourceStatuses().Get(context.Background(), testSource)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, integration.SourceStateError, status.State)
	assert.Contains(t, status.LastError, "403")

	logs, err := h.db.Stores().SyncLogs().ListRecent(context.Background(), testSource, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, integration.SyncStatusFailed, logs[0].Status)
}

func TestCoordinator_UnsupportedStreamIsSkipped(t *testing.T) {
	h := newHarness(t, withStreams(Stream{Kind: integration.DocumentKindInvoice, Direction: integration.DirectionOutgoing}))
	h.adapter.caps = integration.NewCapabilities(integration.CapabilityIncomingInvoices)

	counters := h.pull(t)
	assert.Empty(t, counters)
	assert.Zero(t, h.adapter.calls["list"])
}

func TestCoordinator_ProductRecordsUpdateOnHashChange(t *testing.T) {
	h := newHarness(t, withStreams(Stream{Kind: integration.DocumentKindProduct, Direction: integration.DirectionIncoming}))
	record := func(price string) *integration.ExternalDocument {
		return &integration.ExternalDocument{
			ExternalID: "SKU-1",
			Direction:  integration.DirectionIncoming,
			Kind:       integration.DocumentKindProduct,
			Date:       day(2026, time.March, 9),
			Product: &integration.ProductRecord{
				SKU:       "SKU-1",
				Barcode:   "8690000000011",
				Name:      "Çelik Termos",
				ListPrice: dec(price),
			},
			Raw: []byte(`<urun><kod>SKU-1</kod><fiyat>` + price + `</fiyat></urun>`),
		}
	}
	h.adapter.add(record("100"))
	counters := h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterCreated])

	h.pull(t)
	assert.Equal(t, 1, h.adapter.calls["download"], "unchanged payloads are skipped")

	h.adapter.docs = nil
	h.adapter.add(record("120"))
	counters = h.pull(t)
	assert.Equal(t, 1, counters[integration.CounterUpdated])

	templates := h.db.templateList()
	require.Len(t, templates, 1)
	assert.True(t, templates[0].ListPrice.Equal(dec("120")))
	assert.Equal(t, "Çelik Termos", templates[0].Name)
}
