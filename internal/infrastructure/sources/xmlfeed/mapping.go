package xmlfeed

import (
	"regexp"
	"strings"

	"github.com/beevik/etree"

	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// Target is the product field a mapping fills
type Target string

const (
	TargetSKU         Target = "sku"
	TargetBarcode     Target = "barcode"
	TargetName        Target = "name"
	TargetDescription Target = "description"
	TargetPrice       Target = "price"
	TargetCostPrice   Target = "cost_price"
	TargetStock       Target = "stock"
	TargetCategory    Target = "category"
	TargetBrand       Target = "brand"
	TargetImage       Target = "image"
	TargetImage2      Target = "image2"
	TargetImage3      Target = "image3"
	TargetImage4      Target = "image4"
	TargetCurrency    Target = "currency"
)

// IsValid returns true if the target is known
func (t Target) IsValid() bool {
	switch t {
	case TargetSKU, TargetBarcode, TargetName, TargetDescription, TargetPrice, TargetCostPrice,
		TargetStock, TargetCategory, TargetBrand, TargetImage, TargetImage2, TargetImage3,
		TargetImage4, TargetCurrency:
		return true
	default:
		return false
	}
}

func (t Target) isImage() bool {
	return t == TargetImage || t == TargetImage2 || t == TargetImage3 || t == TargetImage4
}

// Transform post-processes an extracted value
type Transform string

const (
	TransformNone      Transform = "none"
	TransformUppercase Transform = "uppercase"
	TransformLowercase Transform = "lowercase"
	TransformTitlecase Transform = "titlecase"
	TransformStrip     Transform = "strip"
	TransformNumber    Transform = "number"
	TransformPrice     Transform = "price"
	TransformHTMLStrip Transform = "html_strip"
	TransformRegex     Transform = "regex"
)

// IsValid returns true if the transform is known
func (t Transform) IsValid() bool {
	switch t {
	case TransformNone, TransformUppercase, TransformLowercase, TransformTitlecase, TransformStrip,
		TransformNumber, TransformPrice, TransformHTMLStrip, TransformRegex:
		return true
	default:
		return false
	}
}

// Mapping is one row of the field mapping table
type Mapping struct {
	Target Target
	// Path is a "/"-separated child path matched case-insensitively; a final
	// "@name" segment reads an attribute
	Path      string
	Transform Transform
	// Regex and Replace drive TransformRegex
	Regex   string
	Replace string
	// Default is used when the path is missing or the value ends up empty
	Default string
	// Required drops the item when the value ends up empty
	Required bool

	re *regexp.Regexp
}

var (
	tagRe       = regexp.MustCompile(`<[^>]+>`)
	nonNumberRe = regexp.MustCompile(`[^\d.,-]`)
)

// Apply transforms a raw value. Empty results fall back to Default.
func (m *Mapping) Apply(raw string) string {
	value := strings.TrimSpace(raw)
	if value == "" {
		return m.Default
	}
	switch m.Transform {
	case TransformUppercase:
		value = normalize.Upper(value)
	case TransformLowercase:
		value = normalize.Lower(value)
	case TransformTitlecase:
		value = normalize.Title(value)
	case TransformStrip:
		value = normalize.CollapseSpaces(value)
	case TransformNumber:
		value = nonNumberRe.ReplaceAllString(value, "")
		value = normalize.ParseAmountExact(value).String()
	case TransformPrice:
		value = nonNumberRe.ReplaceAllString(value, "")
		value = normalize.ParseAmountTR(value).StringFixed(normalize.MoneyPlaces)
	case TransformHTMLStrip:
		value = normalize.CollapseSpaces(tagRe.ReplaceAllString(value, " "))
	case TransformRegex:
		if m.re != nil {
			value = strings.TrimSpace(m.re.ReplaceAllString(value, m.Replace))
		}
	}
	if value == "" {
		return m.Default
	}
	return value
}

// ---------------------------------------------------------------------------
// Path lookup
// ---------------------------------------------------------------------------

// matchTag compares a path segment with an element tag, ignoring case.
// "g:id" matches the prefixed tag only; "id" matches any prefix.
func matchTag(el *etree.Element, segment string) bool {
	if strings.Contains(segment, ":") {
		return strings.EqualFold(el.FullTag(), segment)
	}
	return strings.EqualFold(el.Tag, segment)
}

func childByTag(el *etree.Element, segment string) *etree.Element {
	for _, c := range el.ChildElements() {
		if matchTag(c, segment) {
			return c
		}
	}
	return nil
}

func attrValue(el *etree.Element, name string) (string, bool) {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Key, name) || strings.EqualFold(a.FullKey(), name) {
			return a.Value, true
		}
	}
	return "", false
}

// lookup returns the text at path below el
func lookup(el *etree.Element, path string) (string, bool) {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	current := el
	for _, seg := range segments {
		if current == nil {
			return "", false
		}
		if name, ok := strings.CutPrefix(seg, "@"); ok {
			return attrValue(current, name)
		}
		current = childByTag(current, seg)
	}
	if current == nil {
		return "", false
	}
	return current.Text(), true
}

// lookupAll returns the non-empty texts of every element matching the last
// segment of path under the parent the leading segments lead to
func lookupAll(el *etree.Element, path string) []string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	last := segments[len(segments)-1]
	if strings.HasPrefix(last, "@") {
		if v, ok := lookup(el, path); ok && strings.TrimSpace(v) != "" {
			return []string{strings.TrimSpace(v)}
		}
		return nil
	}
	parents := []*etree.Element{el}
	for _, seg := range segments[:len(segments)-1] {
		var next []*etree.Element
		for _, p := range parents {
			for _, c := range p.ChildElements() {
				if matchTag(c, seg) {
					next = append(next, c)
				}
			}
		}
		parents = next
	}
	var out []string
	for _, p := range parents {
		for _, c := range p.ChildElements() {
			if !matchTag(c, last) {
				continue
			}
			v := strings.TrimSpace(c.Text())
			if v == "" {
				v, _ = attrValue(c, "url")
			}
			if v == "" {
				v, _ = attrValue(c, "src")
			}
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}
