package services

import (
	"strings"

	"ticket-checkout/internal/status"

	"github.com/shopspring/decimal"
)

// TaxPolicy computes the tax owed on a taxable amount for a region.
type TaxPolicy interface {
	Tax(region string, taxable decimal.Decimal) (decimal.Decimal, error)
}

// RegionalTaxPolicy applies a flat rate per region. A region must be
// configured, with a zero rate if it is untaxed.
type RegionalTaxPolicy struct {
	rates map[string]decimal.Decimal
}

func NewRegionalTaxPolicy(rates map[string]decimal.Decimal) *RegionalTaxPolicy {
	normalized := make(map[string]decimal.Decimal, len(rates))
	for region, rate := range rates {
		normalized[normalizeRegion(region)] = rate
	}
	return &RegionalTaxPolicy{rates: normalized}
}

// Supports reports whether region has a configured rate.
func (p *RegionalTaxPolicy) Supports(region string) bool {
	_, ok := p.rates[normalizeRegion(region)]
	return ok
}

func (p *RegionalTaxPolicy) Tax(region string, taxable decimal.Decimal) (decimal.Decimal, error) {
	rate, ok := p.rates[normalizeRegion(region)]
	if !ok {
		return decimal.Zero, status.Invalid("no tax rate configured for region %q", region)
	}
	if !taxable.IsPositive() {
		return decimal.Zero, nil
	}
	return taxable.Mul(rate).Round(2), nil
}

func normalizeRegion(region string) string {
	return strings.ToUpper(strings.TrimSpace(region))
}
