package xmlfeed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/mobilsoft/edire/internal/domain/integration"
)

const ticimaxFeed = `<?xml version="1.0" encoding="UTF-8"?>
<Products>
  <Product>
    <ProductCode>PK-100</ProductCode>
    <Barcode>8690000000017</Barcode>
    <ProductName>  Pamuk   Kumaş </ProductName>
    <Description><![CDATA[<p>Yüzde yüz pamuk, <b>yıkanabilir</b> kumaş.</p>]]></Description>
    <Price1>1.250,00</Price1>
    <BuyingPrice>800,00</BuyingPrice>
    <Stock>12 adet</Stock>
    <Category><CategoryName>Kumaş</CategoryName></Category>
    <Brand>ACME</Brand>
    <Images>
      <Image><Path>https://cdn.example/pk-1.jpg</Path></Image>
      <Image><Path>https://cdn.example/pk-2.jpg</Path></Image>
      <Image><Path>https://cdn.example/pk-1.jpg</Path></Image>
    </Images>
  </Product>
  <Product>
    <ProductCode>NONAME</ProductCode>
  </Product>
  <Product>
    <ProductCode>KR-1</ProductCode>
    <ProductName>Keten Kumaş</ProductName>
    <Price1>300</Price1>
    <Stock>0</Stock>
    <Picture>https://cdn.example/kr.jpg</Picture>
  </Product>
</Products>`

const googleFeed = `<?xml version="1.0"?>
<rss version="2.0" xmlns:g="http://base.google.com/ns/1.0">
  <channel>
    <item>
      <g:id>TS-9</g:id>
      <title>Tişört (KIRMIZI)</title>
      <g:gtin>8690000000099</g:gtin>
      <g:price>149.90 TRY</g:price>
      <g:brand>Mobil</g:brand>
      <g:image_link>https://cdn.example/ts.jpg</g:image_link>
    </item>
  </channel>
</rss>`

func testWindow() integration.Window {
	return integration.Window{
		Start: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	}
}

func serveFeed(t *testing.T, body []byte, user, pass string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user != "" {
			u, p, ok := r.BasicAuth()
			if !ok || u != user || p != pass {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/feed.xml"
}

func collect(t *testing.T, a *Adapter) ([]integration.DocumentSummary, error) {
	t.Helper()
	var out []integration.DocumentSummary
	for s, err := range a.ListDocuments(context.Background(), testWindow(), integration.DocumentKindProduct, integration.DirectionIncoming) {
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
	return out, nil
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "missing source id", cfg: Config{URL: "https://feed.example/x.xml"}, wantErr: ErrConfigMissingSourceID},
		{name: "ftp url", cfg: Config{SourceID: "f", URL: "ftp://feed.example/x.xml"}, wantErr: ErrConfigInvalidURL},
		{name: "unknown template", cfg: Config{SourceID: "f", URL: "https://feed.example", Template: "cimri"}, wantErr: ErrConfigUnknownTemplate},
		{name: "custom without mappings", cfg: Config{SourceID: "f", URL: "https://feed.example", Template: TemplateCustom}, wantErr: ErrConfigNoMappings},
		{
			name: "bad regex",
			cfg: Config{SourceID: "f", URL: "https://feed.example", Template: TemplateCustom, Mappings: []Mapping{
				{Target: TargetName, Path: "name", Transform: TransformRegex, Regex: "("},
			}},
			wantErr: ErrConfigInvalidMapping,
		},
		{
			name: "unknown target",
			cfg: Config{SourceID: "f", URL: "https://feed.example", Mappings: []Mapping{
				{Target: "weight", Path: "w"},
			}},
			wantErr: ErrConfigInvalidMapping,
		},
		{
			name:    "bad rounding",
			cfg:     Config{SourceID: "f", URL: "https://feed.example", Pricing: Pricing{Rounding: "95"}},
			wantErr: ErrConfigInvalidPricing,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.cfg.Validate(), tt.wantErr)
		})
	}

	t.Run("template defaults", func(t *testing.T) {
		cfg := Config{SourceID: "f", URL: "https://feed.example", Template: TemplateTicimax}
		require.NoError(t, cfg.Validate())
		assert.Equal(t, "//Products/Product", cfg.RootPath)
		assert.Len(t, cfg.Mappings, 10)
		assert.Equal(t, 120, cfg.TimeoutSeconds)
		assert.Equal(t, MarkupPercent, cfg.Pricing.Type)
	})
}

func TestTemplates(t *testing.T) {
	names := Templates()
	assert.Len(t, names, 15)
	for _, name := range names {
		tmpl := templates[name]
		assert.NotEmpty(t, tmpl.Root, name)
		if name == TemplateCustom {
			assert.Empty(t, tmpl.Fields)
			continue
		}
		var hasName bool
		for _, f := range tmpl.Fields {
			assert.True(t, f.Target.IsValid(), "%s: %s", name, f.Target)
			hasName = hasName || f.Target == TargetName
		}
		assert.True(t, hasName, name)
	}
}

func TestMapping_Apply(t *testing.T) {
	tests := []struct {
		name    string
		mapping Mapping
		in      string
		want    string
	}{
		{"none trims", Mapping{Transform: TransformNone}, "  ACME ", "ACME"},
		{"uppercase turkish", Mapping{Transform: TransformUppercase}, "istanbul", "İSTANBUL"},
		{"lowercase turkish", Mapping{Transform: TransformLowercase}, "IŞIK", "ışık"},
		{"titlecase", Mapping{Transform: TransformTitlecase}, "pamuk kumaş", "Pamuk Kumaş"},
		{"strip", Mapping{Transform: TransformStrip}, " a   b \n c ", "a b c"},
		{"number", Mapping{Transform: TransformNumber}, "12,5 kg", "12.5"},
		{"price turkish", Mapping{Transform: TransformPrice}, "1.234,56 TL", "1234.56"},
		{"price with code", Mapping{Transform: TransformPrice}, "149.90 TRY", "149.90"},
		{"html strip", Mapping{Transform: TransformHTMLStrip}, "<p>Merhaba <b>dünya</b></p>", "Merhaba dünya"},
		{"empty uses default", Mapping{Transform: TransformNone, Default: "N/A"}, "  ", "N/A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.mapping.Apply(tt.in))
		})
	}

	t.Run("regex", func(t *testing.T) {
		m := Mapping{Target: TargetSKU, Path: "code", Transform: TransformRegex, Regex: `^TDR-`, Replace: ""}
		require.NoError(t, m.validate())
		assert.Equal(t, "100", m.Apply("TDR-100"))
	})
}

func TestPricing_SalePrice(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name    string
		pricing Pricing
		cost    string
		want    string
	}{
		{"percent", Pricing{Type: MarkupPercent, Percent: d("30")}, "100", "130"},
		{"percent ends 99", Pricing{Type: MarkupPercent, Percent: d("30"), Rounding: Rounding99}, "100", "130.99"},
		{"percent ends 90", Pricing{Type: MarkupPercent, Percent: d("30"), Rounding: Rounding90}, "100", "130.9"},
		{"whole number", Pricing{Type: MarkupPercent, Percent: d("20"), Rounding: Rounding00}, "108", "130"},
		{"fixed", Pricing{Type: MarkupFixed, Fixed: d("15")}, "100", "115"},
		{"both", Pricing{Type: MarkupBoth, Percent: d("30"), Fixed: d("15")}, "100", "145"},
		{"zero cost", Pricing{Type: MarkupPercent, Percent: d("30")}, "0", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.pricing.SalePrice(d(tt.cost))
			assert.True(t, got.Equal(d(tt.want)), "got %s", got)
		})
	}
}

func TestDecodeFeed(t *testing.T) {
	text := "<urun><adi>Kumaş Çanta Ürünü</adi></urun>"
	latin, err := charmap.ISO8859_9.NewEncoder().String(text)
	require.NoError(t, err)

	t.Run("declared iso-8859-9", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0" encoding="ISO-8859-9"?>` + latin)
		out, err := DecodeFeed(raw)
		require.NoError(t, err)
		assert.Contains(t, string(out), "Kumaş Çanta Ürünü")
	})
	t.Run("declared windows-1254", func(t *testing.T) {
		raw := []byte(`<?xml version="1.0" encoding='windows-1254'?>` + latin)
		out, err := DecodeFeed(raw)
		require.NoError(t, err)
		assert.Contains(t, string(out), "Kumaş Çanta Ürünü")
	})
	t.Run("undeclared legacy bytes", func(t *testing.T) {
		out, err := DecodeFeed([]byte(latin))
		require.NoError(t, err)
		assert.Equal(t, text, string(out))
	})
	t.Run("utf-8 untouched", func(t *testing.T) {
		out, err := DecodeFeed([]byte(text))
		require.NoError(t, err)
		assert.Equal(t, text, string(out))
	})
}

func TestAdapter_TicimaxFeed(t *testing.T) {
	url := serveFeed(t, []byte(ticimaxFeed), "bayi", "s3cret")
	a, err := NewAdapter(Config{
		SourceID: "tedarikci",
		URL:      url,
		Username: "bayi",
		Password: "s3cret",
		Template: TemplateTicimax,
		Pricing:  Pricing{Type: MarkupPercent, Percent: decimal.NewFromInt(30), Rounding: Rounding99},
	}, nil, nil)
	require.NoError(t, err)

	summaries, err := collect(t, a)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	first := summaries[0]
	assert.Equal(t, "8690000000017", first.ExternalID)
	assert.Equal(t, "PK-100", first.Number)
	assert.Equal(t, testWindow().End, first.Date)
	assert.True(t, first.Total.Equal(decimal.RequireFromString("1040.99")), first.Total.String())

	raw, err := a.DownloadDocument(context.Background(), first)
	require.NoError(t, err)
	doc, err := a.ParseDocument(context.Background(), first, raw)
	require.NoError(t, err)
	p := doc.Product
	require.NotNil(t, p)
	assert.Equal(t, "PK-100", p.SKU)
	assert.Equal(t, "Pamuk Kumaş", p.Name)
	assert.Equal(t, "Yüzde yüz pamuk, yıkanabilir kumaş.", p.Description)
	assert.True(t, p.CostPrice.Equal(decimal.NewFromInt(800)))
	assert.True(t, p.SupplierPrice.Equal(decimal.NewFromInt(800)))
	assert.True(t, p.ListPrice.Equal(decimal.RequireFromString("1040.99")))
	assert.True(t, p.HasStock)
	assert.True(t, p.Stock.Equal(decimal.NewFromInt(12)))
	assert.Equal(t, "Kumaş", p.Category)
	assert.Equal(t, "ACME", p.Brand)
	assert.Equal(t, []string{"https://cdn.example/pk-1.jpg", "https://cdn.example/pk-2.jpg"}, p.Images)
	assert.Equal(t, integration.DefaultCurrency, doc.Currency)

	second := summaries[1]
	assert.Equal(t, "sku:KR-1", second.ExternalID)
	doc, err = a.ParseDocument(context.Background(), second, second.Payload)
	require.NoError(t, err)
	assert.True(t, doc.Product.HasStock)
	assert.True(t, doc.Product.Stock.IsZero())
	assert.Equal(t, []string{"https://cdn.example/kr.jpg"}, doc.Product.Images)
}

func TestAdapter_Filters(t *testing.T) {
	url := serveFeed(t, []byte(ticimaxFeed), "", "")

	t.Run("min stock", func(t *testing.T) {
		a, err := NewAdapter(Config{SourceID: "f", URL: url, Template: TemplateTicimax, MinStock: 1}, nil, nil)
		require.NoError(t, err)
		summaries, err := collect(t, a)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "PK-100", summaries[0].Number)
	})
	t.Run("price bounds", func(t *testing.T) {
		a, err := NewAdapter(Config{SourceID: "f", URL: url, Template: TemplateTicimax, MaxPrice: decimal.NewFromInt(500)}, nil, nil)
		require.NoError(t, err)
		summaries, err := collect(t, a)
		require.NoError(t, err)
		require.Len(t, summaries, 1)
		assert.Equal(t, "KR-1", summaries[0].Number)
		assert.True(t, summaries[0].Total.Equal(decimal.NewFromInt(300)))
	})
}

func TestAdapter_GoogleNamespacedFeed(t *testing.T) {
	url := serveFeed(t, []byte(googleFeed), "", "")
	a, err := NewAdapter(Config{SourceID: "g", URL: url, Template: TemplateWooCommerce}, nil, nil)
	require.NoError(t, err)

	summaries, err := collect(t, a)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	doc, err := a.ParseDocument(context.Background(), summaries[0], summaries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "TS-9", doc.Product.SKU)
	assert.Equal(t, "8690000000099", doc.Product.Barcode)
	assert.Equal(t, "Tişört (KIRMIZI)", doc.Product.Name)
	assert.True(t, doc.Product.ListPrice.Equal(decimal.RequireFromString("149.90")))
	assert.False(t, doc.Product.HasStock)
	assert.Equal(t, []string{"https://cdn.example/ts.jpg"}, doc.Product.Images)
}

func TestAdapter_CustomMappingAndRootFallback(t *testing.T) {
	feed := `<?xml version="1.0" encoding="ISO-8859-9"?><liste><urun kod="A-1"><adi>kahve fincanı</adi><fiyat>45,50</fiyat></urun></liste>`
	raw, err := charmap.ISO8859_9.NewEncoder().String(feed)
	require.NoError(t, err)
	url := serveFeed(t, []byte(raw), "", "")

	a, err := NewAdapter(Config{
		SourceID: "c",
		URL:      url,
		Template: TemplateCustom,
		RootPath: "//Products/Product",
		Mappings: []Mapping{
			{Target: TargetSKU, Path: "@kod"},
			{Target: TargetName, Path: "ADI", Transform: TransformTitlecase},
			{Target: TargetPrice, Path: "fiyat", Transform: TransformPrice},
			{Target: TargetBrand, Path: "marka", Default: "Markasız"},
		},
	}, nil, nil)
	require.NoError(t, err)

	summaries, err := collect(t, a)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	doc, err := a.ParseDocument(context.Background(), summaries[0], summaries[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "sku:A-1", doc.ExternalID)
	assert.Equal(t, "Kahve Fincanı", doc.Product.Name)
	assert.Equal(t, "Markasız", doc.Product.Brand)
	assert.True(t, doc.Product.ListPrice.Equal(decimal.RequireFromString("45.50")))
}

func TestAdapter_RequiredMappingAndDuplicates(t *testing.T) {
	feed := `<Products>
		<Product><sku>A</sku><name>Bir</name></Product>
		<Product><sku>A</sku><name>Bir tekrar</name></Product>
		<Product><name>Kodsuz</name></Product>
	</Products>`
	url := serveFeed(t, []byte(feed), "", "")
	a, err := NewAdapter(Config{
		SourceID: "r",
		URL:      url,
		Template: TemplateCustom,
		Mappings: []Mapping{
			{Target: TargetSKU, Path: "sku", Required: true},
			{Target: TargetName, Path: "name"},
		},
	}, nil, nil)
	require.NoError(t, err)

	summaries, err := collect(t, a)
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "sku:A", summaries[0].ExternalID)
}

func TestAdapter_Errors(t *testing.T) {
	t.Run("unsupported kind", func(t *testing.T) {
		a, err := NewAdapter(Config{SourceID: "f", URL: "https://feed.example/x.xml"}, nil, nil)
		require.NoError(t, err)
		for _, err := range a.ListDocuments(context.Background(), testWindow(), integration.DocumentKindInvoice, integration.DirectionIncoming) {
			assert.ErrorIs(t, err, integration.ErrCapabilityNotSupported)
		}
	})
	t.Run("auth rejected", func(t *testing.T) {
		url := serveFeed(t, []byte(ticimaxFeed), "bayi", "s3cret")
		a, err := NewAdapter(Config{SourceID: "f", URL: url, Template: TemplateTicimax}, nil, nil)
		require.NoError(t, err)
		_, err = collect(t, a)
		var authErr *integration.AuthError
		assert.True(t, errors.As(err, &authErr))
	})
	t.Run("no items", func(t *testing.T) {
		url := serveFeed(t, []byte(`<catalog><thing/></catalog>`), "", "")
		a, err := NewAdapter(Config{SourceID: "f", URL: url}, nil, nil)
		require.NoError(t, err)
		_, err = collect(t, a)
		assert.ErrorIs(t, err, ErrNoItems)
	})
	t.Run("broken xml", func(t *testing.T) {
		url := serveFeed(t, []byte(`<Products><<Product/></Products>`), "", "")
		a, err := NewAdapter(Config{SourceID: "f", URL: url}, nil, nil)
		require.NoError(t, err)
		_, err = collect(t, a)
		assert.ErrorIs(t, err, ErrInvalidXML)
	})
}
