package pricing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vatops/vatcalc/internal/domain"
	"github.com/vatops/vatcalc/internal/expr"
	"github.com/vatops/vatcalc/internal/rules"
)

var evalDate = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

// memoryStore records the last saved calculation.
type memoryStore struct {
	saved map[string]*domain.Calculation
}

func newMemoryStore() *memoryStore {
	return &memoryStore{saved: make(map[string]*domain.Calculation)}
}

func (s *memoryStore) Save(_ context.Context, calc *domain.Calculation) (string, error) {
	s.saved[calc.ID()] = calc
	return calc.ID(), nil
}

func (s *memoryStore) Load(_ context.Context, id string) (*domain.Calculation, error) {
	calc, ok := s.saved[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return calc, nil
}

func testRule(t *testing.T, r domain.Rule) domain.Rule {
	t.Helper()
	validated, err := domain.NewRule(expr.New(), r)
	require.NoError(t, err)
	return validated
}

func newTestService(t *testing.T, store CalculationStore) *Service {
	t.Helper()

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ruleList := []domain.Rule{
		testRule(t, domain.Rule{
			ID: "de-vat", CountryCode: "DE", Type: domain.RuleTypeVatRate,
			Name: "German VAT uplift", Expression: "basePrice * 1.19",
			EffectiveFrom: from, Priority: 10, IsActive: true,
		}),
		testRule(t, domain.Rule{
			ID: "de-volume", CountryCode: "DE", Type: domain.RuleTypeThreshold,
			Name: "High volume surcharge", Expression: "basePrice + transactionVolume / 10",
			Conditions: []domain.RuleCondition{
				{Parameter: "transactionVolume", Operator: domain.OperatorGreaterThan, Value: "100"},
			},
			EffectiveFrom: from, Priority: 20, IsActive: true,
		}),
		testRule(t, domain.Rule{
			ID: "gb-flat", CountryCode: "GB", Type: domain.RuleTypeComplexity,
			Name: "Brexit complexity", Expression: "basePrice + 150",
			EffectiveFrom: from, Priority: 10, IsActive: true,
		}),
	}

	countries := []Country{
		{Code: "DE", Name: "Germany", BasePrice: decimal.NewFromInt(400)},
		{Code: "GB", Name: "United Kingdom", BasePrice: decimal.NewFromInt(600)},
		{Code: "FR", Name: "France", BasePrice: decimal.NewFromInt(350)},
	}
	services := []AdditionalService{
		{ID: "fiscal-rep", Name: "Fiscal representation", Price: domain.MustMoney(decimal.NewFromInt(120), "EUR")},
	}

	engine := rules.NewEngine(rules.SkipFailedRules, zap.NewNop())
	engine.Now = func() time.Time { return evalDate }
	repo := rules.NewMemoryRepository(ruleList)
	return NewService(repo, engine, countries, services, store, zap.NewNop())
}

func baseRequest() Request {
	return Request{
		UserID:            "u1",
		ServiceID:         "s1",
		ServiceType:       "vat-filing",
		CountryCodes:      []string{"DE", "GB"},
		TransactionVolume: 500,
		FilingFrequency:   domain.FrequencyQuarterly,
		CurrencyCode:      "EUR",
	}
}

func TestService_Calculate(t *testing.T) {
	store := newMemoryStore()
	svc := newTestService(t, store)

	req := baseRequest()
	req.AdditionalServiceIDs = []string{"fiscal-rep"}

	result, err := svc.Calculate(context.Background(), req)
	require.NoError(t, err)

	// DE: 400 * 1.19 = 476, then 476 + 500/10 = 526.
	// GB: 600 + 150 = 750. Total: 526 + 750 + 120 = 1396.
	require.Len(t, result.PerCountry, 2)
	de := result.PerCountry[0]
	assert.Equal(t, "DE", de.CountryCode)
	assert.True(t, de.Cost.Amount().Equal(decimal.NewFromInt(526)), "DE cost is %s", de.Cost)
	assert.Equal(t, []string{"de-vat", "de-volume"}, de.AppliedRuleIDs)

	gb := result.PerCountry[1]
	assert.Equal(t, "GB", gb.CountryCode)
	assert.True(t, gb.Cost.Amount().Equal(decimal.NewFromInt(750)))

	require.Len(t, result.Services, 1)
	assert.Equal(t, "fiscal-rep", result.Services[0].ServiceID)

	assert.True(t, result.TotalCost.Amount().Equal(decimal.NewFromInt(1396)), "total is %s", result.TotalCost)
	assert.Equal(t, "EUR", result.TotalCost.Currency())

	// Persisted through the store.
	saved, err := store.Load(context.Background(), result.CalculationID)
	require.NoError(t, err)
	assert.True(t, saved.TotalCost().Equal(result.TotalCost))
}

func TestService_Calculate_LowVolumeSkipsConditionalRule(t *testing.T) {
	svc := newTestService(t, nil)

	req := baseRequest()
	req.CountryCodes = []string{"DE"}
	req.TransactionVolume = 50

	result, err := svc.Calculate(context.Background(), req)
	require.NoError(t, err)

	// Volume condition (>100) fails, only the VAT rule applies.
	assert.Equal(t, []string{"de-vat"}, result.PerCountry[0].AppliedRuleIDs)
	assert.True(t, result.PerCountry[0].Cost.Amount().Equal(decimal.NewFromInt(476)))
}

func TestService_Calculate_CountryWithoutRules(t *testing.T) {
	svc := newTestService(t, nil)

	req := baseRequest()
	req.CountryCodes = []string{"FR"}

	result, err := svc.Calculate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.TotalCost.Amount().Equal(decimal.NewFromInt(350)), "base price passes through")
	assert.Empty(t, result.PerCountry[0].AppliedRuleIDs)
}

func TestService_Calculate_Discount(t *testing.T) {
	svc := newTestService(t, nil)

	req := baseRequest()
	req.CountryCodes = []string{"FR"}
	req.Discount = &DiscountRequest{Percentage: decimal.NewFromInt(10), Reason: "volume discount"}

	result, err := svc.Calculate(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.TotalCost.Amount().Equal(decimal.NewFromInt(315)), "total is %s", result.TotalCost)
	require.Contains(t, result.AppliedDiscounts, "volume discount")
	assert.True(t, result.AppliedDiscounts["volume discount"].Amount().Equal(decimal.NewFromInt(35)))
}

func TestService_Calculate_Failures(t *testing.T) {
	svc := newTestService(t, nil)

	t.Run("invalid request fields", func(t *testing.T) {
		req := baseRequest()
		req.TransactionVolume = 0
		_, err := svc.Calculate(context.Background(), req)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("no countries", func(t *testing.T) {
		req := baseRequest()
		req.CountryCodes = nil
		_, err := svc.Calculate(context.Background(), req)
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("unknown country", func(t *testing.T) {
		req := baseRequest()
		req.CountryCodes = []string{"XX"}
		_, err := svc.Calculate(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("unknown additional service", func(t *testing.T) {
		req := baseRequest()
		req.AdditionalServiceIDs = []string{"bodyguard"}
		_, err := svc.Calculate(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate country", func(t *testing.T) {
		req := baseRequest()
		req.CountryCodes = []string{"DE", "DE"}
		_, err := svc.Calculate(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrDuplicateEntry)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := svc.Calculate(ctx, baseRequest())
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestService_ValidateExpression(t *testing.T) {
	svc := newTestService(t, nil)

	t.Run("valid without samples", func(t *testing.T) {
		outcome := svc.ValidateExpression("basePrice * vatRate", []string{"vatRate"}, nil)
		assert.True(t, outcome.IsValid)
		assert.Nil(t, outcome.EvaluationResult)
	})

	t.Run("valid with samples", func(t *testing.T) {
		outcome := svc.ValidateExpression("basePrice * vatRate", []string{"vatRate"},
			map[string]decimal.Decimal{
				"basePrice": decimal.NewFromInt(100),
				"vatRate":   decimal.RequireFromString("0.2"),
			})
		require.True(t, outcome.IsValid)
		require.NotNil(t, outcome.EvaluationResult)
		assert.True(t, outcome.EvaluationResult.Equal(decimal.NewFromInt(20)))
	})

	t.Run("unknown parameter", func(t *testing.T) {
		outcome := svc.ValidateExpression("basePrice + unknownParam", nil, nil)
		assert.False(t, outcome.IsValid)
		assert.Contains(t, outcome.Message, "unknownParam")
	})

	t.Run("syntax error", func(t *testing.T) {
		outcome := svc.ValidateExpression("basePrice + ", nil, nil)
		assert.False(t, outcome.IsValid)
	})

	t.Run("division by zero in dry run", func(t *testing.T) {
		outcome := svc.ValidateExpression("basePrice / divisor", []string{"divisor"},
			map[string]decimal.Decimal{
				"basePrice": decimal.NewFromInt(10),
				"divisor":   decimal.Zero,
			})
		assert.False(t, outcome.IsValid)
		assert.Contains(t, outcome.Message, "division by zero")
	})
}
