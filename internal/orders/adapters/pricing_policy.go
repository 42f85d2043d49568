package adapters

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"bookvault/internal/orders/domain"
)

// pricingPolicyFile is the on-disk shape of a pricing table. Amounts are
// strings so they parse straight into decimals.
type pricingPolicyFile struct {
	HomeCountry     string   `yaml:"home_country"`
	DomesticAliases []string `yaml:"domestic_aliases"`
	Shipping        struct {
		Domestic      string `yaml:"domestic"`
		International string `yaml:"international"`
	} `yaml:"shipping"`
	Tax struct {
		DomesticRate      string `yaml:"domestic_rate"`
		InternationalRate string `yaml:"international_rate"`
	} `yaml:"tax"`
}

// LoadPricingPolicy reads a YAML pricing table. An empty path returns the
// default policy; fields missing from the file keep their default values.
func LoadPricingPolicy(path string) (domain.PricingPolicy, error) {
	if path == "" {
		return domain.DefaultPricingPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return domain.PricingPolicy{}, fmt.Errorf("failed to read pricing policy: %w", err)
	}
	return ParsePricingPolicy(data)
}

// ParsePricingPolicy decodes and validates a YAML pricing table
func ParsePricingPolicy(data []byte) (domain.PricingPolicy, error) {
	var file pricingPolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return domain.PricingPolicy{}, fmt.Errorf("failed to parse pricing policy: %w", err)
	}

	policy := domain.DefaultPricingPolicy()
	if file.HomeCountry != "" {
		policy.HomeCountry = file.HomeCountry
	}
	if file.DomesticAliases != nil {
		policy.DomesticAliases = file.DomesticAliases
	}

	amounts := []struct {
		name  string
		raw   string
		field *decimal.Decimal
	}{
		{"shipping.domestic", file.Shipping.Domestic, &policy.DomesticShipping},
		{"shipping.international", file.Shipping.International, &policy.InternationalShipping},
		{"tax.domestic_rate", file.Tax.DomesticRate, &policy.DomesticTaxRate},
		{"tax.international_rate", file.Tax.InternationalRate, &policy.InternationalTaxRate},
	}
	for _, a := range amounts {
		if a.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(a.raw)
		if err != nil {
			return domain.PricingPolicy{}, fmt.Errorf("invalid pricing policy %s %q: %w", a.name, a.raw, err)
		}
		*a.field = v
	}

	if err := policy.Validate(); err != nil {
		return domain.PricingPolicy{}, err
	}
	return policy, nil
}
