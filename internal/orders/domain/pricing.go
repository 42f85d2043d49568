package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingPolicy is the shipping and tax table. Swapping it changes pricing
// without touching any other component.
type PricingPolicy struct {
	HomeCountry           string
	DomesticAliases       []string
	DomesticShipping      decimal.Decimal
	InternationalShipping decimal.Decimal
	DomesticTaxRate       decimal.Decimal
	InternationalTaxRate  decimal.Decimal
}

// DefaultPricingPolicy ships from the US: 9.99 domestic, 19.99 elsewhere, 8% tax everywhere
func DefaultPricingPolicy() PricingPolicy {
	return PricingPolicy{
		HomeCountry:           "US",
		DomesticAliases:       []string{"US", "USA", "United States", "United States of America"},
		DomesticShipping:      decimal.RequireFromString("9.99"),
		InternationalShipping: decimal.RequireFromString("19.99"),
		DomesticTaxRate:       decimal.RequireFromString("0.08"),
		InternationalTaxRate:  decimal.RequireFromString("0.08"),
	}
}

// Validate rejects negative rates and an empty alias table
func (p PricingPolicy) Validate() error {
	if len(p.DomesticAliases) == 0 && strings.TrimSpace(p.HomeCountry) == "" {
		return NewValidationError("pricing policy needs a home country or domestic aliases")
	}
	checks := []struct {
		name  string
		value decimal.Decimal
	}{
		{"domestic_shipping", p.DomesticShipping},
		{"international_shipping", p.InternationalShipping},
		{"domestic_tax_rate", p.DomesticTaxRate},
		{"international_tax_rate", p.InternationalTaxRate},
	}
	for _, c := range checks {
		if c.value.IsNegative() {
			return NewInvalidAmount("pricing policy "+c.name+" must not be negative", nil)
		}
	}
	if p.DomesticTaxRate.GreaterThan(decimal.NewFromInt(1)) || p.InternationalTaxRate.GreaterThan(decimal.NewFromInt(1)) {
		return NewInvalidAmount("pricing policy tax rates are fractions, not percentages", nil)
	}
	return nil
}

// IsDomestic matches country against the home country and its aliases,
// ignoring case and surrounding whitespace
func (p PricingPolicy) IsDomestic(country string) bool {
	c := normalizeCountry(country)
	if c == "" {
		return false
	}
	if c == normalizeCountry(p.HomeCountry) {
		return true
	}
	for _, alias := range p.DomesticAliases {
		if c == normalizeCountry(alias) {
			return true
		}
	}
	return false
}

func normalizeCountry(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// PriceLine is one priced item fed to the calculator
type PriceLine struct {
	BookID    uuid.UUID
	Quantity  int
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
}

// Quote is the calculator's output
type Quote struct {
	TotalAmount  decimal.Decimal
	ShippingCost decimal.Decimal
	TaxAmount    decimal.Decimal
}

// Calculator prices an order from its lines and destination
type Calculator struct {
	policy PricingPolicy
}

// NewCalculator creates a calculator bound to a policy
func NewCalculator(policy PricingPolicy) *Calculator {
	return &Calculator{policy: policy}
}

// Policy returns the table in use
func (c *Calculator) Policy() PricingPolicy {
	return c.policy
}

// Quote computes the amounts for lines shipped to country. It has no side
// effects and fails with InvalidAmount on the first bad line.
func (c *Calculator) Quote(lines []PriceLine, country string) (Quote, error) {
	if len(lines) == 0 {
		return Quote{}, ErrEmptyOrder
	}

	total := decimal.Zero
	for _, line := range lines {
		if err := ValidateLine(line.BookID, line.Quantity, line.UnitPrice, line.Discount); err != nil {
			return Quote{}, err
		}
		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		total = total.Add(lineTotal.Sub(line.Discount))
	}

	shipping := c.policy.InternationalShipping
	rate := c.policy.InternationalTaxRate
	if c.policy.IsDomestic(country) {
		shipping = c.policy.DomesticShipping
		rate = c.policy.DomesticTaxRate
	}

	return Quote{
		TotalAmount:  total,
		ShippingCost: shipping,
		TaxAmount:    total.Mul(rate).Round(2),
	}, nil
}

// ValidateLine applies the per-line amount rules shared by items and quotes
func ValidateLine(bookID uuid.UUID, quantity int, unitPrice, discount decimal.Decimal) error {
	details := map[string]interface{}{"book_id": bookID.String()}
	if quantity < 1 {
		details["quantity"] = quantity
		return NewInvalidAmount("quantity must be at least 1", details)
	}
	if !unitPrice.IsPositive() {
		details["unit_price"] = unitPrice.String()
		return NewInvalidAmount("unit price must be greater than 0", details)
	}
	if !unitPrice.Equal(unitPrice.Round(2)) {
		details["unit_price"] = unitPrice.String()
		return NewInvalidAmount("unit price must have at most 2 decimal places", details)
	}
	if discount.IsNegative() {
		details["discount_amount"] = discount.String()
		return NewInvalidAmount("discount must not be negative", details)
	}
	if !discount.Equal(discount.Round(2)) {
		details["discount_amount"] = discount.String()
		return NewInvalidAmount("discount must have at most 2 decimal places", details)
	}
	lineTotal := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	if discount.GreaterThan(lineTotal) {
		details["discount_amount"] = discount.String()
		details["line_total"] = lineTotal.String()
		return NewInvalidAmount("discount exceeds line total", details)
	}
	return nil
}
