package normalize

import (
	"regexp"
	"strings"

	"github.com/ttacon/libphonenumber"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	nonDigitRe   = regexp.MustCompile(`\D+`)
	nonAlnumRe   = regexp.MustCompile(`[^0-9A-Z]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)

	turkishFold = strings.NewReplacer(
		"Ç", "C", "Ğ", "G", "İ", "I", "Ö", "O", "Ş", "S", "Ü", "U",
		"Â", "A", "Ê", "E", "Î", "I", "Ô", "O", "Û", "U",
	)
)

// noiseSequences lists legal-form tokens removed from names, after folding and
// punctuation removal. "A.Ş." becomes the two tokens "A S", so multi-token
// sequences are matched too.
var noiseSequences = [][]string{
	{"A", "S"},
	{"S", "T", "I"},
	{"AS"},
	{"LTD"},
	{"STI"},
	{"SAN"},
	{"TIC"},
	{"VE"},
	{"LIMITED"},
}

// TaxID returns the canonical VKN (10 digits) or TCKN (11 digits).
// A leading TR country prefix is removed and a 9-digit VKN is left-padded.
// Anything else yields "".
func TaxID(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "TR")
	digits := nonDigitRe.ReplaceAllString(s, "")
	if len(digits) == 9 {
		digits = "0" + digits
	}
	if len(digits) != 10 && len(digits) != 11 {
		return ""
	}
	return digits
}

// TaxIDVariants returns the forms a tax id may be stored under by external
// systems: the bare digits and the TR-prefixed form.
func TaxIDVariants(raw string) []string {
	digits := TaxID(raw)
	if digits == "" {
		return nil
	}
	return []string{digits, "TR" + digits}
}

// IsCompanyTaxID reports whether the canonical id is a corporate VKN.
func IsCompanyTaxID(taxID string) bool {
	return len(taxID) == 10
}

// Upper uppercases with Turkish casing rules (i → İ, ı → I).
// A cases.Caser keeps state, so one is built per call.
func Upper(raw string) string {
	return cases.Upper(language.Turkish).String(raw)
}

// Lower lowercases with Turkish casing rules (I → ı, İ → i).
func Lower(raw string) string {
	return cases.Lower(language.Turkish).String(raw)
}

// Title title-cases every word with Turkish casing rules.
func Title(raw string) string {
	return cases.Title(language.Turkish).String(raw)
}

// Fold uppercases and replaces Turkish letters with their ASCII base letters.
func Fold(raw string) string {
	return turkishFold.Replace(Upper(raw))
}

// Name returns the comparison form of a partner or product name: Turkish
// uppercase, ASCII folded, punctuation removed, legal-form tokens dropped and
// whitespace collapsed. Name is idempotent.
func Name(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = nonAlnumRe.ReplaceAllString(Fold(s), " ")
	tokens := strings.Fields(s)
	for {
		next := dropNoise(tokens)
		if len(next) == len(tokens) {
			break
		}
		tokens = next
	}
	return strings.Join(tokens, " ")
}

func dropNoise(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		if n := matchNoise(tokens[i:]); n > 0 {
			i += n
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out
}

func matchNoise(tokens []string) int {
	for _, seq := range noiseSequences {
		if len(seq) > len(tokens) {
			continue
		}
		matched := true
		for j, t := range seq {
			if tokens[j] != t {
				matched = false
				break
			}
		}
		if matched {
			return len(seq)
		}
	}
	return 0
}

// CollapseSpaces trims and collapses runs of whitespace into a single space.
func CollapseSpaces(raw string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
}

// IBAN removes whitespace and uppercases.
func IBAN(raw string) string {
	return strings.ToUpper(whitespaceRe.ReplaceAllString(raw, ""))
}

// Barcode trims whitespace. Barcodes are compared exactly.
func Barcode(raw string) string {
	return strings.TrimSpace(raw)
}

// Email lowercases and trims an address; values without '@' yield "".
func Email(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if !strings.Contains(s, "@") {
		return ""
	}
	return s
}

// Phone returns the national significant number of a Turkish phone number as
// digits, without the 90 country code or trunk 0.
func Phone(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if num, err := libphonenumber.Parse(s, "TR"); err == nil {
		if national := libphonenumber.GetNationalSignificantNumber(num); len(national) >= 7 {
			return national
		}
	}
	digits := nonDigitRe.ReplaceAllString(s, "")
	if len(digits) == 12 && strings.HasPrefix(digits, "90") {
		digits = digits[2:]
	}
	if len(digits) == 11 && strings.HasPrefix(digits, "0") {
		digits = digits[1:]
	}
	if len(digits) < 7 {
		return ""
	}
	return digits
}
