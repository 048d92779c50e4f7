package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func entryIDs(entries []integration.LedgerEntry) []uuid.UUID {
	out := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestGormLedgerService(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGormLedgerService(db)
	ctx := context.Background()

	tenantID := uuid.New()
	customer := uuid.New()
	bank := uuid.New()
	jan := func(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

	invoice, err := svc.CreateEntry(ctx, integration.EntryDraft{
		TenantID:  tenantID,
		MoveType:  integration.MoveTypeOutInvoice,
		PartnerID: &customer,
		Date:      jan(10),
		Currency:  "TRY",
		Ref:       "GIB2025000000123",
		Name:      "INV/2025/0001",
		Total:     decimal.RequireFromString("1180"),
		SourceID:  "qnb-main",
		Lines: []integration.LedgerLine{
			{Name: "Danışmanlık", Quantity: decimal.NewFromInt(1), PriceUnit: decimal.NewFromInt(1000), TaxPercent: decimal.NewFromInt(18)},
		},
	})
	require.NoError(t, err)
	assert.False(t, invoice.Posted)

	voucher, err := svc.CreateEntry(ctx, integration.EntryDraft{
		TenantID: tenantID,
		MoveType: integration.MoveTypeEntry,
		Date:     jan(15),
		Currency: "TRY",
		Ref:      "00042",
		SourceID: "luca",
		Lines: []integration.LedgerLine{
			{Name: "Tahsilat 00042", Ref: "00042", AccountCode: "102.01", Debit: decimal.NewFromInt(500)},
			{Name: "Tahsilat 00042", Ref: "00042", AccountCode: "120.01", PartnerID: &bank, Credit: decimal.NewFromInt(500)},
		},
	})
	require.NoError(t, err)

	_, err = svc.CreateEntry(ctx, integration.EntryDraft{TenantID: tenantID, MoveType: integration.MoveTypeEntry, Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Ref: "00042"})
	require.NoError(t, err)

	january := integration.EntrySearch{TenantID: tenantID, From: jan(1), To: jan(31)}

	t.Run("get keeps line order", func(t *testing.T) {
		got, err := svc.GetEntry(ctx, voucher.ID)
		require.NoError(t, err)
		require.Len(t, got.Lines, 2)
		assert.Equal(t, "102.01", got.Lines[0].AccountCode)
		assert.True(t, got.Lines[0].Debit.Equal(decimal.NewFromInt(500)))
		assert.Equal(t, []uuid.UUID{bank}, got.LinePartnerIDs())

		_, err = svc.GetEntry(ctx, uuid.New())
		assert.ErrorIs(t, err, integration.ErrEntryNotFound)
	})

	t.Run("line text", func(t *testing.T) {
		got, err := svc.FindByLineText(ctx, january, []string{"00042"})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{voucher.ID}, entryIDs(got))

		got, err = svc.FindByLineText(ctx, january, []string{""})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("header text honours move types", func(t *testing.T) {
		got, err := svc.FindByHeaderText(ctx, january, []string{"000000123", "00042"})
		require.NoError(t, err)
		assert.ElementsMatch(t, []uuid.UUID{invoice.ID, voucher.ID}, entryIDs(got))

		invoicesOnly := january
		invoicesOnly.MoveTypes = []integration.MoveType{integration.MoveTypeOutInvoice}
		got, err = svc.FindByHeaderText(ctx, invoicesOnly, []string{"000000123", "00042"})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{invoice.ID}, entryIDs(got))
	})

	t.Run("partners on header or lines", func(t *testing.T) {
		got, err := svc.FindByPartners(ctx, january, []uuid.UUID{customer, bank})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{invoice.ID, voucher.ID}, entryIDs(got))
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		got, err := svc.FindByDate(ctx, integration.EntrySearch{TenantID: tenantID, From: jan(10), To: jan(15)})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{invoice.ID, voucher.ID}, entryIDs(got))
	})

	t.Run("posted invoice count", func(t *testing.T) {
		n, err := svc.CountPostedInvoices(ctx, tenantID, customer)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, db.Table("erp_ledger_entries").Where("id = ?", invoice.ID).Update("posted", true).Error)
		n, err = svc.CountPostedInvoices(ctx, tenantID, customer)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})

	t.Run("delete draft", func(t *testing.T) {
		assert.ErrorIs(t, svc.DeleteDraftEntry(ctx, invoice.ID), ErrPostedEntry)
		assert.ErrorIs(t, svc.DeleteDraftEntry(ctx, uuid.New()), integration.ErrEntryNotFound)

		require.NoError(t, svc.DeleteDraftEntry(ctx, voucher.ID))
		_, err := svc.GetEntry(ctx, voucher.ID)
		assert.ErrorIs(t, err, integration.ErrEntryNotFound)

		var lines int64
		require.NoError(t, db.Table("erp_ledger_lines").Where("entry_id = ?", voucher.ID).Count(&lines).Error)
		assert.Zero(t, lines)
	})
}

func TestGormLedgerService_CreateSaleOrder(t *testing.T) {
	db := setupTestDB(t)
	svc := NewGormLedgerService(db)
	partner := uuid.New()

	id, err := svc.CreateSaleOrder(context.Background(), integration.SaleOrderDraft{
		TenantID:  uuid.New(),
		PartnerID: &partner,
		Date:      time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
		Currency:  "TRY",
		Ref:       "EARSIV-1",
		Total:     decimal.NewFromInt(300),
		SourceID:  "bizimhesap",
		Lines: []integration.LedgerLine{
			{Name: "Kargo", Quantity: decimal.NewFromInt(1), PriceUnit: decimal.NewFromInt(300)},
		},
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)

	var count int64
	require.NoError(t, db.Table("erp_sale_order_lines").Where("order_id = ?", id).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var ref string
	require.NoError(t, db.Session(&gorm.Session{}).Table("erp_sale_orders").Select("ref").Where("id = ?", id).Scan(&ref).Error)
	assert.Equal(t, "EARSIV-1", ref)
}
