package integration

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/domain/shared/similarity"
)

func newTestPartnerResolver() *PartnerResolver {
	return NewPartnerResolver(similarity.DefaultThresholds(), nil, zap.NewNop(), nil)
}

func TestPartnerResolver_TaxIDVariants(t *testing.T) {
	db := newMemDB()
	existing := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Acme Tekstil", TaxID: "TR1234567890"})
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))

	res, err := newTestPartnerResolver().Resolve(context.Background(), rc,
		integration.PartnerCandidate{TaxID: "1234567890", Name: "Completely Different"},
		PartnerResolveOptions{CanCreate: true, AsSupplier: true})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchExact, res.MatchType)
	assert.Equal(t, "tax_id", res.Rule)
	assert.Equal(t, existing.ID, res.Partner.ID)
	assert.Len(t, db.partnerList(), 1)
	assert.Equal(t, 1, db.state.partners[existing.ID].SupplierRank)
	assert.Equal(t, "Acme Tekstil", db.state.partners[existing.ID].Name, "the name is never overwritten")
}

func TestPartnerResolver_TaxIDTieBreak(t *testing.T) {
	db := newMemDB()
	sparse := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Acme", TaxID: "1234567890"})
	rich := db.addPartner(integration.Partner{
		TenantID: primaryTenant, Name: "Acme Tekstil", TaxID: "1234567890",
		Phone: "2125550000", Email: "info@acme.com.tr", City: "İstanbul",
	})
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))

	res, err := newTestPartnerResolver().Match(context.Background(), rc, integration.PartnerCandidate{TaxID: "1234567890"})
	require.NoError(t, err)
	assert.Equal(t, rich.ID, res.Partner.ID)
	assert.ElementsMatch(t, []uuid.UUID{sparse.ID, rich.ID}, res.Ambiguous)
}

func TestPartnerResolver_PhoneAndEmail(t *testing.T) {
	db := newMemDB()
	byPhone := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Ayşe Yılmaz", Mobile: "+90 532 111 22 33"})
	byMail := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Mehmet Demir", Email: "Mehmet@Example.com"})
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))
	resolver := newTestPartnerResolver()

	res, err := resolver.Match(context.Background(), rc, integration.PartnerCandidate{Name: "A. Yılmaz", Phone: "0532 111 2233"})
	require.NoError(t, err)
	assert.Equal(t, "phone", res.Rule)
	assert.Equal(t, byPhone.ID, res.Partner.ID)

	res, err = resolver.Match(context.Background(), rc, integration.PartnerCandidate{Email: "mehmet@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "email", res.Rule)
	assert.Equal(t, byMail.ID, res.Partner.ID)
}

func TestPartnerResolver_PhoneMatchIgnoresTaxConflict(t *testing.T) {
	db := newMemDB()
	db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Other Co", TaxID: "9999999999", Phone: "2125550000"})
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))

	res, err := newTestPartnerResolver().Resolve(context.Background(), rc,
		integration.PartnerCandidate{TaxID: "1234567890", Name: "Yeni Firma", Phone: "0212 555 00 00"},
		PartnerResolveOptions{CanCreate: true})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchNew, res.MatchType)
	assert.Len(t, db.partnerList(), 2)
}

func TestPartnerResolver_StrictNameSameAddressFillsEmptyFields(t *testing.T) {
	db := newMemDB()
	existing := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "ACME TEKSTİL SAN. VE TİC. LTD. ŞTİ.", Street: "Atatürk Cad. No 5"})
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))

	res, err := newTestPartnerResolver().Resolve(context.Background(), rc,
		integration.PartnerCandidate{Name: "Acme Tekstil A.Ş.", Street: "Atatürk Cad. No 5", City: "Bursa", Email: "info@acme.com.tr"},
		PartnerResolveOptions{CanCreate: true})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchSimilar, res.MatchType)
	assert.Equal(t, existing.ID, res.Partner.ID)
	assert.Equal(t, integration.PartnerValues{
		integration.PartnerFieldCity:  "Bursa",
		integration.PartnerFieldEmail: "info@acme.com.tr",
	}, res.Fill)

	stored := db.state.partners[existing.ID]
	assert.Equal(t, "Bursa", stored.City)
	assert.Equal(t, "ACME TEKSTİL SAN. VE TİC. LTD. ŞTİ.", stored.Name)
}

func TestPartnerResolver_DifferentStreetCreatesBranch(t *testing.T) {
	db := newMemDB()
	parent := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Acme Tekstil", Street: "Atatürk Cad. No 5"})
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))
	cand := integration.PartnerCandidate{Name: "ACME TEKSTİL", Street: "Cumhuriyet Mah. 12", City: "Bursa"}

	res, err := newTestPartnerResolver().Resolve(context.Background(), rc, cand, PartnerResolveOptions{CanCreate: true})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchBranch, res.MatchType)
	require.NotNil(t, res.Partner.ParentID)
	assert.Equal(t, parent.ID, *res.Partner.ParentID)
	assert.Equal(t, "Acme Tekstil — Bursa", res.Partner.Name)
	assert.Len(t, db.partnerList(), 2)

	t.Run("without create rights the parent is updated", func(t *testing.T) {
		db := newMemDB()
		parent := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Acme Tekstil", Street: "Atatürk Cad. No 5"})
		rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))

		res, err := newTestPartnerResolver().Resolve(context.Background(), rc, cand, PartnerResolveOptions{})
		require.NoError(t, err)
		assert.Equal(t, PartnerMatchSimilar, res.MatchType)
		assert.Equal(t, parent.ID, res.Partner.ID)
		assert.Len(t, db.partnerList(), 1)
		assert.Equal(t, "Bursa", db.state.partners[parent.ID].City)
	})
}

func TestPartnerResolver_LooseNameAloneIsNoMatch(t *testing.T) {
	db := newMemDB()
	existing := db.addPartner(integration.Partner{TenantID: primaryTenant, Name: "Acme Tekstil", Email: "satis@acme.com.tr"})
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))
	resolver := newTestPartnerResolver()

	res, err := resolver.Match(context.Background(), rc, integration.PartnerCandidate{Name: "Acme Tekstil Ürünleri"})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchNew, res.MatchType)
	assert.Nil(t, res.Partner)

	res, err = resolver.Match(context.Background(), rc, integration.PartnerCandidate{Name: "Acme Tekstil Ürünleri", Email: "satis@acme.com.tr"})
	require.NoError(t, err)
	assert.Equal(t, "email", res.Rule)
	assert.Equal(t, existing.ID, res.Partner.ID)

	db.state.partners[existing.ID] = func() integration.Partner {
		p := db.state.partners[existing.ID]
		p.Email = ""
		p.Phone = "2125550000"
		return p
	}()
	res, err = resolver.Match(context.Background(), rc, integration.PartnerCandidate{Name: "Acme Tekstil Ürünleri", Email: "x@y.com", Mobile: "0212 555 00 00"})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchExact, res.MatchType, "the phone step hits before similarity")
}

func TestPartnerResolver_CreateAndSkip(t *testing.T) {
	db := newMemDB()
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))
	resolver := newTestPartnerResolver()
	cand := integration.PartnerCandidate{
		TaxID:             "12345678901",
		Name:              "  Ali   Veli ",
		IBANs:             []string{"TR33 0006 1005 1978 6457 8413 26"},
		AuthorizedContact: "Zeynep Veli",
	}

	res, err := resolver.Resolve(context.Background(), rc, cand, PartnerResolveOptions{})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchSkipped, res.MatchType)
	assert.Nil(t, res.PartnerID())
	assert.Empty(t, db.partnerList())

	res, err = resolver.Resolve(context.Background(), rc, cand, PartnerResolveOptions{CanCreate: true, AsCustomer: true})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchNew, res.MatchType)
	created := db.state.partners[res.Partner.ID]
	assert.Equal(t, "Ali Veli", created.Name)
	assert.False(t, created.IsCompany, "an 11-digit id is a person")
	assert.Equal(t, 1, created.CustomerRank)
	assert.Equal(t, []string{"TR330006100519786457841326"}, created.IBANs)
	assert.Equal(t, testSource, created.CreatedBySource)

	partners := db.partnerList()
	require.Len(t, partners, 2)
	var contact *integration.Partner
	for i := range partners {
		if partners[i].ParentID != nil {
			contact = &partners[i]
		}
	}
	require.NotNil(t, contact)
	assert.Equal(t, "Zeynep Veli", contact.Name)

	// A second pass does not duplicate the contact.
	_, err = resolver.Resolve(context.Background(), rc, cand, PartnerResolveOptions{CanCreate: true})
	require.NoError(t, err)
	assert.Len(t, db.partnerList(), 2)
}

func TestPartnerResolver_EmptyCandidate(t *testing.T) {
	db := newMemDB()
	rc := db.runContext(primaryTenant, testSource, day(2026, 3, 1))

	res, err := newTestPartnerResolver().Resolve(context.Background(), rc, integration.PartnerCandidate{TaxID: "12"}, PartnerResolveOptions{CanCreate: true})
	require.NoError(t, err)
	assert.Equal(t, PartnerMatchSkipped, res.MatchType)
	assert.Empty(t, db.partnerList())
}

func TestBranchName(t *testing.T) {
	tests := []struct {
		name string
		cand integration.PartnerCandidate
		want string
	}{
		{"city first", integration.PartnerCandidate{City: "Bursa", District: "Osmangazi"}, "Acme — Bursa"},
		{"district when no city", integration.PartnerCandidate{District: "Osmangazi"}, "Acme — Osmangazi"},
		{"first long address token", integration.PartnerCandidate{Street: "No 5 Cumhuriyet Mah"}, "Acme — Cumhuriyet"},
		{"nothing usable", integration.PartnerCandidate{Street: "No 5"}, "Acme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BranchName("Acme", tt.cand))
		})
	}
}

func TestFillEmptyValues_NeverWritesName(t *testing.T) {
	p := &integration.Partner{Name: "", Phone: "2125550000"}
	values := FillEmptyValues(p, integration.PartnerCandidate{Name: "Acme", Phone: "2125551111", TaxOffice: "Kadıköy"})
	assert.NotContains(t, values, integration.PartnerFieldName)
	assert.NotContains(t, values, integration.PartnerFieldPhone)
	assert.Equal(t, "Kadıköy", values[integration.PartnerFieldTaxOffice])
}
