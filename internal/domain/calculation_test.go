package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCalculation(t *testing.T) *Calculation {
	t.Helper()
	calc, err := NewCalculation("u1", "s1", 500, FrequencyQuarterly, "EUR")
	require.NoError(t, err)
	return calc
}

func TestNewCalculation_Validation(t *testing.T) {
	tests := []struct {
		name      string
		userID    string
		serviceID string
		volume    int64
		frequency FilingFrequency
		currency  string
	}{
		{"missing user", "", "s1", 500, FrequencyQuarterly, "EUR"},
		{"missing service", "u1", "", 500, FrequencyQuarterly, "EUR"},
		{"zero volume", "u1", "s1", 0, FrequencyQuarterly, "EUR"},
		{"negative volume", "u1", "s1", -5, FrequencyQuarterly, "EUR"},
		{"unknown frequency", "u1", "s1", 500, "Weekly", "EUR"},
		{"bad currency", "u1", "s1", 500, FrequencyQuarterly, "eu"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewCalculation(tc.userID, tc.serviceID, tc.volume, tc.frequency, tc.currency)
			assert.Error(t, err)
		})
	}

	calc := newTestCalculation(t)
	assert.NotEmpty(t, calc.ID())
	assert.True(t, calc.TotalCost().IsZero())
	assert.Equal(t, "EUR", calc.TotalCost().Currency())
}

func TestCalculation_AddCountryAccumulatesTotal(t *testing.T) {
	calc := newTestCalculation(t)

	_, err := calc.AddCountry("GB", eur("1500"), []string{"gb-base"})
	require.NoError(t, err)
	_, err = calc.AddCountry("DE", eur("1250"), nil)
	require.NoError(t, err)

	assert.True(t, calc.TotalCost().Equal(eur("2750")), "total is %s", calc.TotalCost())

	countries := calc.Countries()
	require.Len(t, countries, 2)
	assert.Equal(t, "DE", countries[0].CountryCode)
	assert.Equal(t, "GB", countries[1].CountryCode)
	assert.Equal(t, []string{"gb-base"}, countries[1].AppliedRuleIDs)
}

func TestCalculation_AddCountryRejectsDuplicateAndMismatch(t *testing.T) {
	calc := newTestCalculation(t)

	_, err := calc.AddCountry("GB", eur("1500"), nil)
	require.NoError(t, err)

	_, err = calc.AddCountry("GB", eur("100"), nil)
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	_, err = calc.AddCountry("FR", MustMoney(decimal.NewFromInt(900), "USD"), nil)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	// Failed adds must not disturb the total.
	assert.True(t, calc.TotalCost().Equal(eur("1500")))
}

func TestCalculation_RemoveCountry(t *testing.T) {
	calc := newTestCalculation(t)
	_, err := calc.AddCountry("GB", eur("1500"), nil)
	require.NoError(t, err)

	removed, err := calc.RemoveCountry("FR")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = calc.RemoveCountry("GB")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, calc.TotalCost().IsZero())
	assert.Empty(t, calc.Countries())
}

func TestCalculation_AdditionalServices(t *testing.T) {
	calc := newTestCalculation(t)

	_, err := calc.AddAdditionalService("fiscal-rep", eur("120"))
	require.NoError(t, err)

	_, err = calc.AddAdditionalService("fiscal-rep", eur("120"))
	assert.ErrorIs(t, err, ErrDuplicateEntry)

	_, err = calc.AddAdditionalService("intrastat", MustMoney(decimal.NewFromInt(80), "GBP"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	assert.True(t, calc.TotalCost().Equal(eur("120")))

	removed, err := calc.RemoveAdditionalService("missing")
	require.NoError(t, err)
	assert.False(t, removed)

	removed, err = calc.RemoveAdditionalService("fiscal-rep")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.True(t, calc.TotalCost().IsZero())
}

func TestCalculation_RecalculateTotalCost(t *testing.T) {
	calc := newTestCalculation(t)
	_, err := calc.AddCountry("GB", eur("1500"), nil)
	require.NoError(t, err)
	_, err = calc.AddCountry("DE", eur("1250"), nil)
	require.NoError(t, err)
	_, err = calc.AddAdditionalService("fiscal-rep", eur("120"))
	require.NoError(t, err)

	total, err := calc.RecalculateTotalCost()
	require.NoError(t, err)
	assert.True(t, total.Equal(eur("2870")))
	assert.True(t, calc.TotalCost().Equal(eur("2870")))
}

func TestCalculation_ApplyDiscount(t *testing.T) {
	calc := newTestCalculation(t)
	_, err := calc.AddCountry("GB", eur("100"), nil)
	require.NoError(t, err)

	discount, err := calc.ApplyDiscount(decimal.NewFromInt(10), "volume discount")
	require.NoError(t, err)
	assert.True(t, discount.Equal(eur("10")), "discount is %s", discount)
	assert.True(t, calc.TotalCost().Equal(eur("90")), "total is %s", calc.TotalCost())

	discounts := calc.AppliedDiscounts()
	require.Contains(t, discounts, "volume discount")
	assert.True(t, discounts["volume discount"].Equal(eur("10")))
}

func TestCalculation_ApplyDiscount_Validation(t *testing.T) {
	calc := newTestCalculation(t)
	_, err := calc.AddCountry("GB", eur("100"), nil)
	require.NoError(t, err)

	_, err = calc.ApplyDiscount(decimal.NewFromInt(-1), "reason")
	assert.Error(t, err)

	_, err = calc.ApplyDiscount(decimal.NewFromInt(101), "reason")
	assert.Error(t, err)

	_, err = calc.ApplyDiscount(decimal.NewFromInt(10), "")
	assert.Error(t, err)

	// Boundary values are legal.
	_, err = calc.ApplyDiscount(decimal.Zero, "no-op")
	assert.NoError(t, err)
	_, err = calc.ApplyDiscount(decimal.NewFromInt(100), "free")
	assert.NoError(t, err)
	assert.True(t, calc.TotalCost().IsZero())
}

func TestCalculation_ArchiveIsIdempotentVisibilityFlag(t *testing.T) {
	calc := newTestCalculation(t)

	assert.False(t, calc.IsArchived())
	calc.Archive()
	calc.Archive()
	assert.True(t, calc.IsArchived())

	// Archived calculations still accept mutation.
	_, err := calc.AddCountry("GB", eur("100"), nil)
	assert.NoError(t, err)

	calc.Unarchive()
	calc.Unarchive()
	assert.False(t, calc.IsArchived())
}

func TestCalculation_FieldMutators(t *testing.T) {
	calc := newTestCalculation(t)

	assert.Error(t, calc.UpdateTransactionVolume(0))
	require.NoError(t, calc.UpdateTransactionVolume(900))
	assert.Equal(t, int64(900), calc.TransactionVolume())

	assert.Error(t, calc.UpdateFilingFrequency("Daily"))
	require.NoError(t, calc.UpdateFilingFrequency(FrequencyMonthly))
	assert.Equal(t, FrequencyMonthly, calc.FilingFrequency())
}
