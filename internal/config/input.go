// Package config loads and validates the two YAML inputs the calculator
// consumes: the rule catalog (countries, rules, additional services) and
// the pricing request. Validation is fail-fast; in particular every rule
// expression is parsed at load time so a malformed rule can never reach
// the engine.
package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/vatops/vatcalc/internal/domain"
	"github.com/vatops/vatcalc/internal/expr"
	"github.com/vatops/vatcalc/internal/pricing"
)

// Catalog is the validated rule catalog.
type Catalog struct {
	CurrencyCode       string
	Countries          []pricing.Country
	Rules              []domain.Rule
	AdditionalServices []pricing.AdditionalService
}

// Country returns the catalog entry for code.
func (c *Catalog) Country(code string) (pricing.Country, bool) {
	for _, country := range c.Countries {
		if country.Code == code {
			return country, true
		}
	}
	return pricing.Country{}, false
}

type rawCatalog struct {
	Currency           string            `yaml:"currency"`
	Countries          []pricing.Country `yaml:"countries"`
	Rules              []domain.Rule     `yaml:"rules"`
	AdditionalServices []rawService      `yaml:"additional_services"`
}

type rawService struct {
	ID    string          `yaml:"id"`
	Name  string          `yaml:"name"`
	Price decimal.Decimal `yaml:"price"`
}

// InputParser handles parsing of catalog and request files.
type InputParser struct {
	evaluator *expr.Evaluator
}

// NewInputParser creates a parser with its own expression evaluator for
// load-time validation.
func NewInputParser() *InputParser {
	return &InputParser{evaluator: expr.New()}
}

// LoadCatalog reads, parses, and validates a rule catalog file.
func (ip *InputParser) LoadCatalog(filename string) (*Catalog, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return ip.ParseCatalog(data)
}

// ParseCatalog parses and validates catalog YAML.
func (ip *InputParser) ParseCatalog(data []byte) (*Catalog, error) {
	var raw rawCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := domain.ValidateCurrencyCode(raw.Currency); err != nil {
		return nil, fmt.Errorf("catalog currency: %w", err)
	}

	catalog := &Catalog{CurrencyCode: raw.Currency}

	seenCountries := make(map[string]struct{}, len(raw.Countries))
	for i, country := range raw.Countries {
		if country.Code == "" {
			return nil, fmt.Errorf("country %d: code is required", i)
		}
		if _, dup := seenCountries[country.Code]; dup {
			return nil, fmt.Errorf("country %s: duplicate entry", country.Code)
		}
		seenCountries[country.Code] = struct{}{}
		if country.BasePrice.IsNegative() {
			return nil, fmt.Errorf("country %s: base price cannot be negative", country.Code)
		}
		catalog.Countries = append(catalog.Countries, country)
	}
	if len(catalog.Countries) == 0 {
		return nil, fmt.Errorf("catalog defines no countries")
	}

	seenRules := make(map[string]struct{}, len(raw.Rules))
	for i, rule := range raw.Rules {
		validated, err := domain.NewRule(ip.evaluator, rule)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, rule.Name, err)
		}
		if _, dup := seenRules[validated.ID]; dup {
			return nil, fmt.Errorf("rule %s: duplicate id", validated.ID)
		}
		seenRules[validated.ID] = struct{}{}
		if _, ok := seenCountries[validated.CountryCode]; !ok {
			return nil, fmt.Errorf("rule %s: unknown country %s", validated.ID, validated.CountryCode)
		}
		catalog.Rules = append(catalog.Rules, validated)
	}

	seenServices := make(map[string]struct{}, len(raw.AdditionalServices))
	for i, svc := range raw.AdditionalServices {
		if svc.ID == "" {
			return nil, fmt.Errorf("additional service %d: id is required", i)
		}
		if _, dup := seenServices[svc.ID]; dup {
			return nil, fmt.Errorf("additional service %s: duplicate entry", svc.ID)
		}
		seenServices[svc.ID] = struct{}{}
		price, err := domain.NewMoney(svc.Price, raw.Currency)
		if err != nil {
			return nil, fmt.Errorf("additional service %s: %w", svc.ID, err)
		}
		catalog.AdditionalServices = append(catalog.AdditionalServices, pricing.AdditionalService{
			ID:    svc.ID,
			Name:  svc.Name,
			Price: price,
		})
	}

	return catalog, nil
}

// LoadRequest reads and parses a pricing request file, then validates it
// against the catalog.
func (ip *InputParser) LoadRequest(filename string, catalog *Catalog) (*pricing.Request, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return ip.ParseRequest(data, catalog)
}

// ParseRequest parses request YAML and validates it against the catalog.
func (ip *InputParser) ParseRequest(data []byte, catalog *Catalog) (*pricing.Request, error) {
	var req pricing.Request
	if err := yaml.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := ValidateRequest(&req, catalog); err != nil {
		return nil, fmt.Errorf("request validation failed: %w", err)
	}
	return &req, nil
}

// ValidateRequest checks the cross-references between a request and the
// catalog it will be priced against. Field-level validation (volume,
// frequency, currency syntax) is owned by the Calculation factory; this
// catches what only the catalog can know.
func ValidateRequest(req *pricing.Request, catalog *Catalog) error {
	if req.CurrencyCode != catalog.CurrencyCode {
		return fmt.Errorf("request currency %s does not match catalog currency %s (base prices are catalog-denominated)",
			req.CurrencyCode, catalog.CurrencyCode)
	}
	if len(req.CountryCodes) == 0 {
		return fmt.Errorf("no countries requested")
	}
	for _, code := range req.CountryCodes {
		if _, ok := catalog.Country(code); !ok {
			return fmt.Errorf("unknown country %s", code)
		}
	}
	for _, id := range req.AdditionalServiceIDs {
		found := false
		for _, svc := range catalog.AdditionalServices {
			if svc.ID == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown additional service %s", id)
		}
	}
	return nil
}
