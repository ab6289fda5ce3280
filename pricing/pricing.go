// Package pricing computes the monetary breakdown of an order.
package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNoItems         = errors.New("order must have at least one item")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidPrice    = errors.New("unit price must be positive")
	ErrRateOutOfRange  = errors.New("rate must be between 0 and 20")
)

var (
	hundred = decimal.NewFromInt(100)
	maxRate = decimal.NewFromInt(20)
)

// DefaultServiceChargePct and DefaultTaxRate apply when a request omits them.
var (
	DefaultServiceChargePct = decimal.NewFromInt(10)
	DefaultTaxRate          = decimal.NewFromInt(7)
)

// Line is one priced order line.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Rates are percentages, e.g. 10 means 10%.
type Rates struct {
	ServiceChargePct decimal.Decimal
	TaxRate          decimal.Decimal
}

// DefaultRates returns the 10% service charge / 7% VAT pair.
func DefaultRates() Rates {
	return Rates{ServiceChargePct: DefaultServiceChargePct, TaxRate: DefaultTaxRate}
}

// Validate checks both rates are within 0..20.
func (r Rates) Validate() error {
	if r.ServiceChargePct.IsNegative() || r.ServiceChargePct.GreaterThan(maxRate) {
		return fmt.Errorf("service_charge_percentage: %w", ErrRateOutOfRange)
	}
	if r.TaxRate.IsNegative() || r.TaxRate.GreaterThan(maxRate) {
		return fmt.Errorf("tax_rate: %w", ErrRateOutOfRange)
	}
	return nil
}

// Breakdown is the computed result. LineTotals is parallel to the input lines.
type Breakdown struct {
	LineTotals    []decimal.Decimal
	Subtotal      decimal.Decimal
	ServiceCharge decimal.Decimal
	Tax           decimal.Decimal
	Total         decimal.Decimal
}

// Compute returns subtotal, service charge, tax and total for lines.
//
// Service charge and tax are each rounded half-up to 2 decimals on their own;
// the total is the exact sum of the three parts.
func Compute(lines []Line, rates Rates) (Breakdown, error) {
	if len(lines) == 0 {
		return Breakdown{}, ErrNoItems
	}
	if err := rates.Validate(); err != nil {
		return Breakdown{}, err
	}

	b := Breakdown{LineTotals: make([]decimal.Decimal, len(lines))}
	for i, l := range lines {
		if l.Quantity <= 0 {
			return Breakdown{}, fmt.Errorf("item %d: %w", i+1, ErrInvalidQuantity)
		}
		if !l.UnitPrice.IsPositive() {
			return Breakdown{}, fmt.Errorf("item %d: %w", i+1, ErrInvalidPrice)
		}
		lt := l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
		b.LineTotals[i] = lt
		b.Subtotal = b.Subtotal.Add(lt)
	}

	b.ServiceCharge = Percent(b.Subtotal, rates.ServiceChargePct)
	b.Tax = Percent(b.Subtotal, rates.TaxRate)
	b.Total = b.Subtotal.Add(b.ServiceCharge).Add(b.Tax)
	return b, nil
}

// Percent returns round2(amount × pct / 100). Round is half away from zero,
// which is half-up for the non-negative amounts used here.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred).Round(2)
}
