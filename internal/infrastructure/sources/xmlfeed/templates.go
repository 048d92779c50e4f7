package xmlfeed

import "slices"

// Feed dialects
const (
	TemplateTSoft       = "tsoft"
	TemplateTicimax     = "ticimax"
	TemplateIdeaSoft    = "ideasoft"
	TemplateAkinsoft    = "akinsoft"
	TemplateOpenCart    = "opencart"
	TemplateWooCommerce = "woocommerce"
	TemplateShopify     = "shopify"
	TemplatePrestaShop  = "prestashop"
	TemplateMagento     = "magento"
	TemplateGoogle      = "google"
	TemplateTrendyol    = "trendyol"
	TemplateHepsiburada = "hepsiburada"
	TemplateN11         = "n11"
	TemplateCustom      = "custom"
	TemplateGeneric     = "generic"
)

// Template is a dialect's item path and default field paths. It only seeds
// the mapping table; configured mappings always win.
type Template struct {
	Root   string
	Fields []FieldPath
}

// FieldPath pairs a target with its path in the item element
type FieldPath struct {
	Target Target
	Path   string
}

func (t Template) mappings() []Mapping {
	out := make([]Mapping, 0, len(t.Fields))
	for _, f := range t.Fields {
		m := Mapping{Target: f.Target, Path: f.Path, Transform: TransformNone}
		switch f.Target {
		case TargetPrice, TargetCostPrice:
			m.Transform = TransformPrice
		case TargetStock:
			m.Transform = TransformNumber
		}
		out = append(out, m)
	}
	return out
}

// fallbackRoots are tried in order when the configured root path finds nothing
var fallbackRoots = []string{"//Product", "//product", "//item", "//entry", "//urun", "//Urun", "//URUN"}

var templates = map[string]Template{
	TemplateTSoft: {Root: "//product", Fields: []FieldPath{
		{TargetSKU, "ws_code"},
		{TargetBarcode, "barcode"},
		{TargetName, "name"},
		{TargetDescription, "detail"},
		{TargetPrice, "price_special"},
		{TargetCostPrice, "price"},
		{TargetStock, "stock"},
		{TargetCategory, "category"},
		{TargetBrand, "brand"},
		{TargetImage, "images/img_item"},
		{TargetCurrency, "currency"},
	}},
	TemplateTicimax: {Root: "//Products/Product", Fields: []FieldPath{
		{TargetSKU, "ProductCode"},
		{TargetBarcode, "Barcode"},
		{TargetName, "ProductName"},
		{TargetDescription, "Description"},
		{TargetPrice, "Price1"},
		{TargetCostPrice, "BuyingPrice"},
		{TargetStock, "Stock"},
		{TargetCategory, "Category/CategoryName"},
		{TargetBrand, "Brand"},
		{TargetImage, "Images/Image/Path"},
	}},
	TemplateIdeaSoft: {Root: "//ProductList/Product", Fields: []FieldPath{
		{TargetSKU, "Code"},
		{TargetBarcode, "Barcode"},
		{TargetName, "Name"},
		{TargetDescription, "Details"},
		{TargetPrice, "Price"},
		{TargetCostPrice, "CostPrice"},
		{TargetStock, "Quantity"},
		{TargetCategory, "Categories/Category"},
		{TargetBrand, "Brand"},
		{TargetImage, "Images/Image/Url"},
	}},
	TemplateAkinsoft: {Root: "//urun", Fields: []FieldPath{
		{TargetSKU, "STOK_KODU"},
		{TargetBarcode, "BARKODU"},
		{TargetName, "STOK_ADI"},
		{TargetDescription, "DETAY"},
		{TargetCategory, "KATEGORI"},
		{TargetBrand, "MARKA"},
		{TargetImage, "GORSEL1"},
		{TargetImage2, "GORSEL2"},
		{TargetImage3, "GORSEL3"},
		{TargetImage4, "GORSEL4"},
	}},
	TemplateOpenCart: {Root: "//products/product", Fields: []FieldPath{
		{TargetSKU, "model"},
		{TargetBarcode, "ean"},
		{TargetName, "name"},
		{TargetDescription, "description"},
		{TargetPrice, "price"},
		{TargetStock, "quantity"},
		{TargetCategory, "category"},
		{TargetImage, "image"},
	}},
	TemplateWooCommerce: {Root: "//rss/channel/item", Fields: []FieldPath{
		{TargetSKU, "g:id"},
		{TargetBarcode, "g:gtin"},
		{TargetName, "title"},
		{TargetDescription, "description"},
		{TargetPrice, "g:price"},
		{TargetCategory, "g:product_type"},
		{TargetBrand, "g:brand"},
		{TargetImage, "g:image_link"},
	}},
	TemplateShopify: {Root: "//products/product", Fields: []FieldPath{
		{TargetSKU, "sku"},
		{TargetBarcode, "barcode"},
		{TargetName, "title"},
		{TargetDescription, "body_html"},
		{TargetPrice, "price"},
		{TargetStock, "inventory_quantity"},
		{TargetCategory, "product_type"},
		{TargetBrand, "vendor"},
		{TargetImage, "image/src"},
	}},
	TemplatePrestaShop: {Root: "//products/product", Fields: []FieldPath{
		{TargetSKU, "reference"},
		{TargetBarcode, "ean13"},
		{TargetName, "name"},
		{TargetDescription, "description"},
		{TargetPrice, "price"},
		{TargetStock, "quantity"},
		{TargetCategory, "category"},
		{TargetImage, "image"},
	}},
	TemplateMagento: {Root: "//products/product", Fields: []FieldPath{
		{TargetSKU, "sku"},
		{TargetBarcode, "barcode"},
		{TargetName, "name"},
		{TargetDescription, "description"},
		{TargetPrice, "price"},
		{TargetStock, "qty"},
		{TargetCategory, "category"},
		{TargetImage, "image"},
	}},
	TemplateGoogle: {Root: "//feed/entry", Fields: []FieldPath{
		{TargetSKU, "g:id"},
		{TargetBarcode, "g:gtin"},
		{TargetName, "title"},
		{TargetDescription, "content"},
		{TargetPrice, "g:price"},
		{TargetCategory, "g:google_product_category"},
		{TargetBrand, "g:brand"},
		{TargetImage, "g:image_link"},
	}},
	TemplateTrendyol: {Root: "//items/item", Fields: []FieldPath{
		{TargetSKU, "stockCode"},
		{TargetBarcode, "barcode"},
		{TargetName, "title"},
		{TargetDescription, "description"},
		{TargetPrice, "salePrice"},
		{TargetCostPrice, "listPrice"},
		{TargetStock, "quantity"},
		{TargetCategory, "categoryName"},
		{TargetBrand, "brand"},
		{TargetImage, "images/url"},
	}},
	TemplateHepsiburada: {Root: "//products/product", Fields: []FieldPath{
		{TargetSKU, "merchantSku"},
		{TargetBarcode, "barcode"},
		{TargetName, "productName"},
		{TargetDescription, "description"},
		{TargetPrice, "price"},
		{TargetStock, "availableStock"},
		{TargetCategory, "categoryName"},
		{TargetImage, "image"},
	}},
	TemplateN11: {Root: "//Products/Product", Fields: []FieldPath{
		{TargetSKU, "productSellerCode"},
		{TargetBarcode, "barcode"},
		{TargetName, "title"},
		{TargetDescription, "description"},
		{TargetPrice, "price"},
		{TargetStock, "quantity"},
		{TargetCategory, "category/name"},
		{TargetImage, "images/image/url"},
	}},
	TemplateCustom: {Root: "//Product"},
	TemplateGeneric: {Root: "//Product", Fields: []FieldPath{
		{TargetSKU, "sku"},
		{TargetBarcode, "barcode"},
		{TargetName, "name"},
		{TargetDescription, "description"},
		{TargetPrice, "price"},
		{TargetCostPrice, "cost_price"},
		{TargetStock, "stock"},
		{TargetCategory, "category"},
		{TargetBrand, "brand"},
		{TargetImage, "image"},
	}},
}

// Templates returns the known template names, sorted
func Templates() []string {
	out := make([]string, 0, len(templates))
	for name := range templates {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// imageFallbacks are probed when no mapped image path yields a URL
var imageFallbacks = []string{
	"images/img_item", "Images/Image/Path", "Images/Image/Url", "Images/Image",
	"images/image/url", "images/image", "Image", "picture1", "picture", "photo",
	"img", "ImageUrl", "MainImage", "ProductImage",
}

// descriptionFallbacks are probed when no mapped description is long enough
var descriptionFallbacks = []string{
	"detail", "Description", "Details", "LongDescription", "ProductDescription",
	"content", "body", "text", "Aciklama", "detay",
}
