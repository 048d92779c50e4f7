package xmlfeed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/beevik/etree"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// Feed parse errors
var (
	ErrNoItems    = errors.New("xmlfeed: no items found")
	ErrInvalidXML = errors.New("xmlfeed: invalid xml")
)

var utf8BOM = []byte("\xef\xbb\xbf")

var declEncodingRe = regexp.MustCompile(`encoding=["']([^"']+)["']`)

// declaredEncoding returns the lowercased encoding of the XML declaration, or ""
func declaredEncoding(raw []byte) string {
	head := raw[:min(len(raw), 200)]
	if !bytes.HasPrefix(bytes.TrimLeft(head, "\ufeff \t\r\n"), []byte("<?xml")) {
		return ""
	}
	m := declEncodingRe.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return strings.ToLower(string(m[1]))
}

// DecodeFeed converts a feed body to UTF-8. The XML declaration names the
// charset; undeclared bodies that are not valid UTF-8 are read as ISO-8859-9.
func DecodeFeed(raw []byte) ([]byte, error) {
	label := declaredEncoding(raw)
	if label != "" && label != "utf-8" && label != "utf8" {
		enc, err := htmlindex.Get(label)
		if err == nil {
			out, _, err := transform.Bytes(enc.NewDecoder(), raw)
			if err == nil {
				return out, nil
			}
		}
	}
	if utf8.Valid(raw) {
		return raw, nil
	}
	out, _, err := transform.Bytes(charmap.ISO8859_9.NewDecoder(), raw)
	if err != nil {
		return nil, fmt.Errorf("xmlfeed: decode body: %w", err)
	}
	return out, nil
}

// parseItems decodes a feed and returns the item elements found at root,
// falling back to the common item names when root yields nothing
func parseItems(raw []byte, root string) ([]*etree.Element, error) {
	body, err := DecodeFeed(raw)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimPrefix(body, utf8BOM)
	doc := etree.NewDocument()
	// The body is UTF-8 already; the declaration may still name the source charset.
	doc.ReadSettings.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}
	doc.ReadSettings.Permissive = true
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}
	if doc.Root() == nil {
		return nil, ErrInvalidXML
	}

	for _, path := range append([]string{root}, fallbackRoots...) {
		if path == "" {
			continue
		}
		p, err := etree.CompilePath(path)
		if err != nil {
			continue
		}
		if items := doc.FindElementsPath(p); len(items) > 0 {
			return items, nil
		}
	}
	return nil, ErrNoItems
}

// Item is one feed entry after mapping and transforms
type Item struct {
	SKU         string   `json:"sku,omitempty"`
	Barcode     string   `json:"barcode,omitempty"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Price       string   `json:"price,omitempty"`
	CostPrice   string   `json:"cost_price,omitempty"`
	Stock       string   `json:"stock,omitempty"`
	Category    string   `json:"category,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Currency    string   `json:"currency,omitempty"`
	Images      []string `json:"images,omitempty"`
}

// minDescriptionLen is the shortest fallback text taken as a description
const minDescriptionLen = 10

// extractItem applies the mapping table to one element. ok is false when a
// required mapping or the name is empty.
func extractItem(el *etree.Element, mappings []Mapping) (item Item, ok bool) {
	var images []string
	for i := range mappings {
		m := &mappings[i]
		if m.Target.isImage() {
			for _, raw := range lookupAll(el, m.Path) {
				if v := m.Apply(raw); v != "" {
					images = append(images, v)
				}
			}
			if len(images) == 0 && m.Default != "" && m.Target == TargetImage {
				images = append(images, m.Default)
			}
			continue
		}

		raw, _ := lookup(el, m.Path)
		value := m.Apply(raw)
		if value == "" && m.Required {
			return Item{}, false
		}
		switch m.Target {
		case TargetSKU:
			item.SKU = value
		case TargetBarcode:
			item.Barcode = normalize.Barcode(value)
		case TargetName:
			item.Name = normalize.CollapseSpaces(value)
		case TargetDescription:
			item.Description = value
		case TargetPrice:
			item.Price = value
		case TargetCostPrice:
			item.CostPrice = value
		case TargetStock:
			item.Stock = value
		case TargetCategory:
			item.Category = normalize.CollapseSpaces(value)
		case TargetBrand:
			item.Brand = normalize.CollapseSpaces(value)
		case TargetCurrency:
			item.Currency = strings.ToUpper(value)
		}
	}

	if len(images) == 0 {
		images = fallbackImages(el)
	}
	item.Images = dedupe(images)

	if item.Description == "" {
		for _, path := range descriptionFallbacks {
			if v, found := lookup(el, path); found && len(strings.TrimSpace(v)) > minDescriptionLen {
				item.Description = strings.TrimSpace(v)
				break
			}
		}
	}
	if item.Name == "" {
		return Item{}, false
	}
	return item, true
}

func fallbackImages(el *etree.Element) []string {
	for _, path := range imageFallbacks {
		var urls []string
		for _, v := range lookupAll(el, path) {
			if strings.HasPrefix(v, "http") {
				urls = append(urls, v)
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}
	return nil
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := values[:0]
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
