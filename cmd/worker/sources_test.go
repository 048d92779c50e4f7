package main

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/config"
)

func TestParseStreams(t *testing.T) {
	t.Run("valid pairs", func(t *testing.T) {
		streams, err := parseStreams([]string{"invoice:incoming", " Invoice:OUTGOING ", "ledger_line:incoming"})
		require.NoError(t, err)
		assert.Equal(t, []appintegration.Stream{
			{Kind: integration.DocumentKindInvoice, Direction: integration.DirectionIncoming},
			{Kind: integration.DocumentKindInvoice, Direction: integration.DirectionOutgoing},
			{Kind: integration.DocumentKindLedgerLine, Direction: integration.DirectionIncoming},
		}, streams)
	})

	for _, raw := range []string{"invoice", "invoice:sideways", "receipt:incoming", ""} {
		t.Run("rejects "+raw, func(t *testing.T) {
			_, err := parseStreams([]string{raw})
			assert.ErrorIs(t, err, errInvalidStream)
		})
	}
}

func TestDefaultStreams(t *testing.T) {
	caps := integration.NewCapabilities(
		integration.CapabilityIncomingInvoices,
		integration.CapabilityProducts,
	)
	assert.Equal(t, []appintegration.Stream{
		{Kind: integration.DocumentKindInvoice, Direction: integration.DirectionIncoming},
		{Kind: integration.DocumentKindProduct, Direction: integration.DirectionIncoming},
	}, defaultStreams(caps))

	assert.Empty(t, defaultStreams(integration.NewCapabilities()))
}

func TestUpdatePolicy(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		assert.Equal(t, appintegration.DefaultProductUpdatePolicy(), updatePolicy(config.UpdateConfig{}))
	})

	t.Run("overrides", func(t *testing.T) {
		off := false
		p := updatePolicy(config.UpdateConfig{
			Price:       &off,
			OnlyIfValue: &off,
			Images:      true,
			ZeroStock:   "deactivate",
		})
		assert.False(t, p.Price)
		assert.True(t, p.Stock)
		assert.False(t, p.OnlyIfValue)
		assert.True(t, p.Images)
		assert.False(t, p.Description)
		assert.Equal(t, appintegration.ZeroStockDeactivate, p.ZeroStock)
	})
}

func TestBuildPlan(t *testing.T) {
	defaultTenant := uuid.New()

	t.Run("falls back to the default tenant", func(t *testing.T) {
		plan, err := buildPlan(config.SourceConfig{ID: "qnb-main", IncomingWindowDays: 7}, defaultTenant)
		require.NoError(t, err)
		assert.Equal(t, "qnb-main", plan.SourceID)
		assert.Equal(t, defaultTenant, plan.TenantID)
		assert.Equal(t, 7, plan.IncomingWindowDays)
		assert.True(t, plan.StartDate.IsZero())
		assert.Nil(t, plan.Product.SupplierID)
		assert.Empty(t, plan.Streams)
	})

	t.Run("reads overrides", func(t *testing.T) {
		tenant := uuid.New()
		supplier := uuid.New()
		sc := config.SourceConfig{
			ID:             "feed",
			TenantID:       tenant.String(),
			StartDate:      "2024-03-01",
			Streams:        []string{"product:incoming"},
			CreateProducts: true,
			AsSupplier:     true,
		}
		sc.Feed.SupplierID = supplier.String()
		sc.Feed.VariantAttribute = "Size"

		plan, err := buildPlan(sc, defaultTenant)
		require.NoError(t, err)
		assert.Equal(t, tenant, plan.TenantID)
		assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), plan.StartDate)
		require.NotNil(t, plan.Product.SupplierID)
		assert.Equal(t, supplier, *plan.Product.SupplierID)
		assert.True(t, plan.Product.CanCreate)
		assert.Equal(t, "Size", plan.Product.VariantAttribute)
		assert.True(t, plan.Partner.AsSupplier)
		assert.Len(t, plan.Streams, 1)
	})

	tests := []struct {
		name string
		sc   config.SourceConfig
	}{
		{"bad tenant", config.SourceConfig{ID: "a", TenantID: "nope"}},
		{"bad start date", config.SourceConfig{ID: "a", StartDate: "01.03.2024"}},
		{"bad stream", config.SourceConfig{ID: "a", Streams: []string{"invoice"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildPlan(tt.sc, defaultTenant)
			assert.Error(t, err)
		})
	}
}

func TestParseUUIDs(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	ids, err := parseUUIDs([]string{a.String(), " " + b.String()})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)

	_, err = parseUUIDs([]string{"x"})
	assert.Error(t, err)

	id, err := parseOptionalUUID("")
	require.NoError(t, err)
	assert.Equal(t, uuid.Nil, id)
}

func TestBuildAdapter_UnknownType(t *testing.T) {
	_, err := buildAdapter(config.SourceConfig{ID: "x", Type: "ftp"}, nil, zap.NewNop())
	assert.ErrorContains(t, err, "unknown source type")
}
