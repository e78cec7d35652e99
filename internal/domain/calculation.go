package domain

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FilingFrequency is how often a VAT filing is submitted.
type FilingFrequency string

const (
	FrequencyMonthly   FilingFrequency = "Monthly"
	FrequencyQuarterly FilingFrequency = "Quarterly"
	FrequencyAnnually  FilingFrequency = "Annually"
)

// ValidFilingFrequency reports whether f is a known frequency.
func ValidFilingFrequency(f FilingFrequency) bool {
	switch f {
	case FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually:
		return true
	}
	return false
}

// CalculationCountry is one country's priced contribution, owned by its
// Calculation. AppliedRuleIDs preserves the order rules fired in.
type CalculationCountry struct {
	CalculationID  string   `json:"calculationId"`
	CountryCode    string   `json:"countryCode"`
	CountryCost    Money    `json:"-"`
	AppliedRuleIDs []string `json:"appliedRuleIds"`
}

// CalculationAdditionalService is one add-on service's contribution.
type CalculationAdditionalService struct {
	CalculationID string `json:"calculationId"`
	ServiceID     string `json:"serviceId"`
	Cost          Money  `json:"-"`
}

// Calculation is the aggregate for one pricing request: the countries and
// additional services priced, their running total, and applied discounts.
// All mutators keep totalCost equal to the sum of the parts and reject
// currency drift. A Calculation is single-writer: callers must not share
// one instance across concurrent mutations.
type Calculation struct {
	id                string
	userID            string
	serviceID         string
	transactionVolume int64
	filingFrequency   FilingFrequency
	currencyCode      string
	totalCost         Money
	countries         map[string]*CalculationCountry
	services          map[string]*CalculationAdditionalService
	discounts         map[string]Money
	isArchived        bool
}

// NewCalculation validates the required fields and returns an empty
// calculation with a zero total in the given currency.
func NewCalculation(userID, serviceID string, transactionVolume int64, frequency FilingFrequency, currencyCode string) (*Calculation, error) {
	if userID == "" {
		return nil, newValidationError("userId", "is required")
	}
	if serviceID == "" {
		return nil, newValidationError("serviceId", "is required")
	}
	if transactionVolume <= 0 {
		return nil, newValidationError("transactionVolume", "must be positive")
	}
	if !ValidFilingFrequency(frequency) {
		return nil, newValidationError("filingFrequency", fmt.Sprintf("unknown frequency %q", frequency))
	}
	zero, err := ZeroMoney(currencyCode)
	if err != nil {
		return nil, err
	}
	return &Calculation{
		id:                uuid.NewString(),
		userID:            userID,
		serviceID:         serviceID,
		transactionVolume: transactionVolume,
		filingFrequency:   frequency,
		currencyCode:      currencyCode,
		totalCost:         zero,
		countries:         make(map[string]*CalculationCountry),
		services:          make(map[string]*CalculationAdditionalService),
		discounts:         make(map[string]Money),
	}, nil
}

func (c *Calculation) ID() string                       { return c.id }
func (c *Calculation) UserID() string                   { return c.userID }
func (c *Calculation) ServiceID() string                { return c.serviceID }
func (c *Calculation) TransactionVolume() int64         { return c.transactionVolume }
func (c *Calculation) FilingFrequency() FilingFrequency { return c.filingFrequency }
func (c *Calculation) CurrencyCode() string             { return c.currencyCode }
func (c *Calculation) TotalCost() Money                 { return c.totalCost }
func (c *Calculation) IsArchived() bool                 { return c.isArchived }

// Countries returns the country entries sorted by country code.
func (c *Calculation) Countries() []CalculationCountry {
	out := make([]CalculationCountry, 0, len(c.countries))
	for _, cc := range c.countries {
		entry := *cc
		entry.AppliedRuleIDs = append([]string(nil), cc.AppliedRuleIDs...)
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CountryCode < out[j].CountryCode })
	return out
}

// AdditionalServices returns the service entries sorted by service id.
func (c *Calculation) AdditionalServices() []CalculationAdditionalService {
	out := make([]CalculationAdditionalService, 0, len(c.services))
	for _, s := range c.services {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ServiceID < out[j].ServiceID })
	return out
}

// AppliedDiscounts returns reason -> discount amount for every discount
// applied so far.
func (c *Calculation) AppliedDiscounts() map[string]Money {
	out := make(map[string]Money, len(c.discounts))
	for reason, amount := range c.discounts {
		out[reason] = amount
	}
	return out
}

// AddCountry attaches a priced country. The cost currency must match the
// calculation currency and the country must not already be present.
func (c *Calculation) AddCountry(countryCode string, cost Money, appliedRuleIDs []string) (*CalculationCountry, error) {
	if countryCode == "" {
		return nil, newValidationError("countryCode", "is required")
	}
	if cost.Currency() != c.currencyCode {
		return nil, fmt.Errorf("%w: country %s priced in %s, calculation is %s",
			ErrCurrencyMismatch, countryCode, cost.Currency(), c.currencyCode)
	}
	if _, exists := c.countries[countryCode]; exists {
		return nil, fmt.Errorf("%w: country %s", ErrDuplicateEntry, countryCode)
	}
	total, err := c.totalCost.Add(cost)
	if err != nil {
		return nil, err
	}
	entry := &CalculationCountry{
		CalculationID:  c.id,
		CountryCode:    countryCode,
		CountryCost:    cost,
		AppliedRuleIDs: append([]string(nil), appliedRuleIDs...),
	}
	c.countries[countryCode] = entry
	c.totalCost = total
	return entry, nil
}

// RemoveCountry detaches a country, subtracting its cost from the total.
// Returns false without error when the country is absent.
func (c *Calculation) RemoveCountry(countryCode string) (bool, error) {
	entry, exists := c.countries[countryCode]
	if !exists {
		return false, nil
	}
	total, err := c.totalCost.Subtract(entry.CountryCost)
	if err != nil {
		return false, fmt.Errorf("removing country %s: %w", countryCode, err)
	}
	delete(c.countries, countryCode)
	c.totalCost = total
	return true, nil
}

// AddAdditionalService attaches a priced add-on service, symmetric to
// AddCountry.
func (c *Calculation) AddAdditionalService(serviceID string, cost Money) (*CalculationAdditionalService, error) {
	if serviceID == "" {
		return nil, newValidationError("serviceId", "is required")
	}
	if cost.Currency() != c.currencyCode {
		return nil, fmt.Errorf("%w: service %s priced in %s, calculation is %s",
			ErrCurrencyMismatch, serviceID, cost.Currency(), c.currencyCode)
	}
	if _, exists := c.services[serviceID]; exists {
		return nil, fmt.Errorf("%w: additional service %s", ErrDuplicateEntry, serviceID)
	}
	total, err := c.totalCost.Add(cost)
	if err != nil {
		return nil, err
	}
	entry := &CalculationAdditionalService{CalculationID: c.id, ServiceID: serviceID, Cost: cost}
	c.services[serviceID] = entry
	c.totalCost = total
	return entry, nil
}

// RemoveAdditionalService detaches an add-on service. Returns false
// without error when absent.
func (c *Calculation) RemoveAdditionalService(serviceID string) (bool, error) {
	entry, exists := c.services[serviceID]
	if !exists {
		return false, nil
	}
	total, err := c.totalCost.Subtract(entry.Cost)
	if err != nil {
		return false, fmt.Errorf("removing service %s: %w", serviceID, err)
	}
	delete(c.services, serviceID)
	c.totalCost = total
	return true, nil
}

// RecalculateTotalCost recomputes the total as the sum over all countries
// and additional services, replacing the running value. Discounts are
// intentionally not replayed; callers applying discounts after batch
// mutation re-apply them on the fresh total.
func (c *Calculation) RecalculateTotalCost() (Money, error) {
	total, err := ZeroMoney(c.currencyCode)
	if err != nil {
		return Money{}, err
	}
	for _, entry := range c.countries {
		total, err = total.Add(entry.CountryCost)
		if err != nil {
			return Money{}, err
		}
	}
	for _, entry := range c.services {
		total, err = total.Add(entry.Cost)
		if err != nil {
			return Money{}, err
		}
	}
	c.totalCost = total
	return total, nil
}

// ApplyDiscount reduces the total by percentage (0..100), records the
// discount under its reason, and returns the discount amount.
func (c *Calculation) ApplyDiscount(percentage decimal.Decimal, reason string) (Money, error) {
	hundred := decimal.NewFromInt(100)
	if percentage.IsNegative() || percentage.GreaterThan(hundred) {
		return Money{}, newValidationError("percentage", "must be between 0 and 100")
	}
	if reason == "" {
		return Money{}, newValidationError("reason", "is required")
	}
	factor := decimal.NewFromInt(1).Sub(percentage.Div(hundred))
	newTotal, err := c.totalCost.Multiply(factor)
	if err != nil {
		return Money{}, err
	}
	discount, err := c.totalCost.Subtract(newTotal)
	if err != nil {
		return Money{}, err
	}
	c.totalCost = newTotal
	c.discounts[reason] = discount
	return discount, nil
}

// UpdateTransactionVolume replaces the volume; it must stay positive.
func (c *Calculation) UpdateTransactionVolume(volume int64) error {
	if volume <= 0 {
		return newValidationError("transactionVolume", "must be positive")
	}
	c.transactionVolume = volume
	return nil
}

// UpdateFilingFrequency replaces the frequency.
func (c *Calculation) UpdateFilingFrequency(frequency FilingFrequency) error {
	if !ValidFilingFrequency(frequency) {
		return newValidationError("filingFrequency", fmt.Sprintf("unknown frequency %q", frequency))
	}
	c.filingFrequency = frequency
	return nil
}

// Archive marks the calculation archived. Archiving is a visibility flag,
// not a freeze: archived calculations still accept mutation. Idempotent.
func (c *Calculation) Archive() { c.isArchived = true }

// Unarchive clears the archived flag. Idempotent.
func (c *Calculation) Unarchive() { c.isArchived = false }
