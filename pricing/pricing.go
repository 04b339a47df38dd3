// Package pricing computes order totals with fixed-point decimal arithmetic.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Scale is the number of fractional digits kept for every monetary amount.
const Scale = 2

// DefaultTaxRate is applied when no rate is configured.
var DefaultTaxRate = decimal.RequireFromString("0.05")

// Line is one priced input to the engine.
type Line struct {
	UnitPrice decimal.Decimal
	Quantity  int
}

// Totals is the result of pricing a set of lines. LineTotals is index-aligned
// with the input lines.
type Totals struct {
	LineTotals   []decimal.Decimal
	Subtotal     decimal.Decimal
	ShippingCost decimal.Decimal
	Tax          decimal.Decimal
	Total        decimal.Decimal
}

// Engine prices lines with a fixed tax rate and shipping cost. It has no state
// beyond its configuration and is safe for concurrent use.
type Engine struct {
	taxRate      decimal.Decimal
	shippingCost decimal.Decimal
}

// NewEngine constructs an Engine. Negative rates or costs are rejected.
func NewEngine(taxRate, shippingCost decimal.Decimal) (*Engine, error) {
	if taxRate.IsNegative() {
		return nil, fmt.Errorf("tax rate must be non-negative, got %s", taxRate)
	}
	if shippingCost.IsNegative() {
		return nil, fmt.Errorf("shipping cost must be non-negative, got %s", shippingCost)
	}
	return &Engine{taxRate: taxRate, shippingCost: Round(shippingCost)}, nil
}

// NewDefaultEngine uses DefaultTaxRate and free shipping.
func NewDefaultEngine() *Engine {
	e, _ := NewEngine(DefaultTaxRate, decimal.Zero)
	return e
}

// TaxRate returns the configured rate.
func (e *Engine) TaxRate() decimal.Decimal { return e.taxRate }

// Compute prices lines:
//
//	lineTotal = round2(unitPrice * quantity)
//	subtotal  = sum(lineTotal)
//	tax       = round2(subtotal * taxRate)
//	total     = round2(subtotal + shipping + tax)
func (e *Engine) Compute(lines []Line) Totals {
	t := Totals{
		LineTotals:   make([]decimal.Decimal, len(lines)),
		Subtotal:     decimal.Zero,
		ShippingCost: e.shippingCost,
	}
	for i, l := range lines {
		lt := Round(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))))
		t.LineTotals[i] = lt
		t.Subtotal = t.Subtotal.Add(lt)
	}
	t.Subtotal = Round(t.Subtotal)
	t.Tax = Round(t.Subtotal.Mul(e.taxRate))
	t.Total = Round(t.Subtotal.Add(t.ShippingCost).Add(t.Tax))
	return t
}

// Round rounds half-up to Scale digits. decimal.Round rounds half away from
// zero, which equals half-up for the non-negative amounts priced here.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Format renders d with exactly Scale fractional digits.
func Format(d decimal.Decimal) string {
	return d.StringFixed(Scale)
}
