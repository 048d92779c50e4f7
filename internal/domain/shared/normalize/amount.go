package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// MoneyPlaces is the number of decimals monetary values are stored with.
const MoneyPlaces = 2

var thousandsOnlyRe = regexp.MustCompile(`^-?\d{1,3}(\.\d{3})+$`)

// ParseAmountTR parses a Turkish-formatted amount such as "1.234,56" and
// rounds it half-to-even to two decimals. Plain machine formats ("1234.56")
// are accepted as well. Unparseable input yields zero.
func ParseAmountTR(raw string) decimal.Decimal {
	d, ok := parseAmount(raw)
	if !ok {
		return decimal.Zero
	}
	return Money(d)
}

// ParseAmountExact parses like ParseAmountTR but keeps every decimal place.
// Quantities and unit prices use it.
func ParseAmountExact(raw string) decimal.Decimal {
	d, _ := parseAmount(raw)
	return d
}

// Money rounds a value half-to-even to two decimals.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(MoneyPlaces)
}

func parseAmount(raw string) (decimal.Decimal, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, "TL")
	s = strings.TrimSuffix(s, "₺")
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "\u00a0", "")
	if s == "" {
		return decimal.Zero, false
	}

	switch {
	case strings.Contains(s, ","):
		// Turkish: dots group thousands, comma separates decimals.
		if strings.LastIndex(s, ".") > strings.LastIndex(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.ReplaceAll(s, ",", ".")
		}
	case thousandsOnlyRe.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
