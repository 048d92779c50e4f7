package xmlfeed

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mobilsoft/edire/internal/domain/shared/normalize"
)

// MarkupType selects how the sale price is derived from the supplier price
type MarkupType string

const (
	MarkupPercent MarkupType = "percent"
	MarkupFixed   MarkupType = "fixed"
	MarkupBoth    MarkupType = "both"
)

// Rounding is the ending forced onto a marked-up price
type Rounding string

const (
	RoundingNone Rounding = "none"
	// Rounding99 keeps the integer part and ends in .99
	Rounding99 Rounding = "99"
	// Rounding90 keeps the integer part and ends in .90
	Rounding90 Rounding = "90"
	// Rounding00 rounds to the nearest integer
	Rounding00 Rounding = "00"
)

// Pricing turns a supplier price into a sale price. The zero value leaves
// prices untouched.
type Pricing struct {
	Type     MarkupType
	Percent  decimal.Decimal
	Fixed    decimal.Decimal
	Rounding Rounding
}

func (p *Pricing) validate() error {
	if p.Type == "" {
		p.Type = MarkupPercent
	}
	if p.Rounding == "" {
		p.Rounding = RoundingNone
	}
	switch p.Type {
	case MarkupPercent, MarkupFixed, MarkupBoth:
	default:
		return fmt.Errorf("%w: markup type %q", ErrConfigInvalidPricing, p.Type)
	}
	switch p.Rounding {
	case RoundingNone, Rounding99, Rounding90, Rounding00:
	default:
		return fmt.Errorf("%w: rounding %q", ErrConfigInvalidPricing, p.Rounding)
	}
	if p.Percent.IsNegative() {
		return fmt.Errorf("%w: negative percent", ErrConfigInvalidPricing)
	}
	return nil
}

// Enabled reports whether any markup or rounding is configured
func (p Pricing) Enabled() bool {
	return !p.Percent.IsZero() || !p.Fixed.IsZero() || (p.Rounding != "" && p.Rounding != RoundingNone)
}

var hundred = decimal.NewFromInt(100)

// SalePrice applies the markup and rounding to cost. A zero cost stays zero.
func (p Pricing) SalePrice(cost decimal.Decimal) decimal.Decimal {
	if cost.Sign() <= 0 {
		return decimal.Zero
	}
	price := cost
	if p.Type == MarkupPercent || p.Type == MarkupBoth || p.Type == "" {
		price = price.Mul(hundred.Add(p.Percent)).Div(hundred)
	}
	if p.Type == MarkupFixed || p.Type == MarkupBoth {
		price = price.Add(p.Fixed)
	}
	switch p.Rounding {
	case Rounding99:
		price = price.Floor().Add(decimal.RequireFromString("0.99"))
	case Rounding90:
		price = price.Floor().Add(decimal.RequireFromString("0.90"))
	case Rounding00:
		price = price.Round(0)
	}
	return normalize.Money(price)
}
