package rules

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vatops/vatcalc/internal/domain"
	"github.com/vatops/vatcalc/internal/expr"
)

var evalDate = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine(mode FailureMode) *Engine {
	e := NewEngine(mode, zap.NewNop())
	e.Now = func() time.Time { return evalDate }
	return e
}

func mustRule(t *testing.T, r domain.Rule) domain.Rule {
	t.Helper()
	validated, err := domain.NewRule(expr.New(), r)
	require.NoError(t, err)
	return validated
}

func deRule(t *testing.T, id, expression string, priority int) domain.Rule {
	t.Helper()
	return mustRule(t, domain.Rule{
		ID:            id,
		CountryCode:   "DE",
		Type:          domain.RuleTypeVatRate,
		Name:          id,
		Expression:    expression,
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:      priority,
		IsActive:      true,
	})
}

func engineContext(basePrice string) domain.Context {
	return domain.Context{
		domain.BindingBasePrice:         domain.NumberValue(decimal.RequireFromString(basePrice)),
		domain.BindingTransactionVolume: domain.NumberValue(decimal.NewFromInt(500)),
		"serviceType":                   domain.StringValue("vat-filing"),
		"filingFrequency":               domain.StringValue("Quarterly"),
	}
}

func TestEngine_SequentialComposition(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	// Priority 10 doubles the base, priority 20 adds 50: the second rule
	// must see the first rule's output as its basePrice.
	ruleList := []domain.Rule{
		deRule(t, "rule20", "basePrice + 50", 20),
		deRule(t, "rule10", "basePrice * 2", 10),
	}

	result, err := engine.PriceCountry("DE", ruleList, engineContext("100"), "EUR")
	require.NoError(t, err)

	assert.Equal(t, []string{"rule10", "rule20"}, result.AppliedRuleIDs)
	assert.True(t, result.Cost.Amount().Equal(decimal.NewFromInt(250)), "cost is %s", result.Cost)
	assert.Equal(t, "EUR", result.Cost.Currency())
	assert.Empty(t, result.Warnings)
}

func TestEngine_PriorityTieBrokenByRuleID(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	ruleList := []domain.Rule{
		deRule(t, "b-rule", "basePrice + 1", 10),
		deRule(t, "a-rule", "basePrice * 2", 10),
	}

	result, err := engine.PriceCountry("DE", ruleList, engineContext("100"), "EUR")
	require.NoError(t, err)

	// a-rule first: 100*2=200, then +1. The other order would give 202.
	assert.Equal(t, []string{"a-rule", "b-rule"}, result.AppliedRuleIDs)
	assert.True(t, result.Cost.Amount().Equal(decimal.NewFromInt(201)))
}

func TestEngine_SelectionFilters(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	expired := deRule(t, "expired", "basePrice * 10", 5)
	to := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expired.EffectiveTo = &to

	future := deRule(t, "future", "basePrice * 10", 5)
	future.EffectiveFrom = evalDate.AddDate(1, 0, 0)

	inactive := deRule(t, "inactive", "basePrice * 10", 5)
	inactive.SetActive(false)

	otherCountry := deRule(t, "fr-rule", "basePrice * 10", 5)
	otherCountry.CountryCode = "FR"

	conditional := deRule(t, "monthly-only", "basePrice * 10", 5)
	conditional.Conditions = []domain.RuleCondition{
		{Parameter: "filingFrequency", Operator: domain.OperatorEquals, Value: "Monthly"},
	}

	applied := deRule(t, "uplift", "basePrice + 25", 5)

	ruleList := []domain.Rule{expired, future, inactive, otherCountry, conditional, applied}
	result, err := engine.PriceCountry("DE", ruleList, engineContext("100"), "EUR")
	require.NoError(t, err)

	assert.Equal(t, []string{"uplift"}, result.AppliedRuleIDs)
	assert.True(t, result.Cost.Amount().Equal(decimal.NewFromInt(125)))
}

func TestEngine_NoApplicableRulesYieldsBasePrice(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	result, err := engine.PriceCountry("DE", nil, engineContext("450"), "EUR")
	require.NoError(t, err)
	assert.Empty(t, result.AppliedRuleIDs)
	assert.True(t, result.Cost.Amount().Equal(decimal.NewFromInt(450)))
}

func TestEngine_ParameterDefaultsAreBound(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	rule := mustRule(t, domain.Rule{
		ID:          "de-vat",
		CountryCode: "DE",
		Type:        domain.RuleTypeVatRate,
		Name:        "vat with default rate",
		Expression:  "basePrice * vatRate",
		Parameters: []domain.RuleParameter{
			{Name: "vatRate", DataType: domain.ParameterNumber, DefaultValue: "1.19"},
		},
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:      10,
		IsActive:      true,
	})

	result, err := engine.PriceCountry("DE", []domain.Rule{rule}, engineContext("100"), "EUR")
	require.NoError(t, err)
	assert.True(t, result.Cost.Amount().Equal(decimal.RequireFromString("119")), "cost is %s", result.Cost)

	// An explicit context value overrides the default.
	ctx := engineContext("100")
	ctx["vatRate"] = domain.NumberValue(decimal.RequireFromString("1.25"))
	result, err = engine.PriceCountry("DE", []domain.Rule{rule}, ctx, "EUR")
	require.NoError(t, err)
	assert.True(t, result.Cost.Amount().Equal(decimal.RequireFromString("125")))
}

func TestEngine_NegativeResultClampedWithWarning(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	ruleList := []domain.Rule{deRule(t, "bad-discount", "basePrice - 500", 10)}
	result, err := engine.PriceCountry("DE", ruleList, engineContext("100"), "EUR")
	require.NoError(t, err)

	assert.True(t, result.Cost.IsZero())
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, WarningNegativeRuleResult, result.Warnings[0].Code)
	// The rule itself still applied; only the final wrap was clamped.
	assert.Equal(t, []string{"bad-discount"}, result.AppliedRuleIDs)
}

func TestEngine_SkipMode_IsolatesFailingRule(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	divByZero := mustRule(t, domain.Rule{
		ID:          "div-zero",
		CountryCode: "DE",
		Type:        domain.RuleTypeThreshold,
		Name:        "divides by zero",
		Expression:  "basePrice / zeroParam",
		Parameters: []domain.RuleParameter{
			{Name: "zeroParam", DataType: domain.ParameterNumber, DefaultValue: "0"},
		},
		EffectiveFrom: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Priority:      10,
		IsActive:      true,
	})
	healthy := deRule(t, "uplift", "basePrice + 25", 20)

	result, err := engine.PriceCountry("DE", []domain.Rule{divByZero, healthy}, engineContext("100"), "EUR")
	require.NoError(t, err)

	assert.Equal(t, []string{"uplift"}, result.AppliedRuleIDs)
	assert.True(t, result.Cost.Amount().Equal(decimal.NewFromInt(125)))
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, WarningRuleSkipped, result.Warnings[0].Code)
	assert.Equal(t, "div-zero", result.Warnings[0].RuleID)
}

func TestEngine_AbortMode_FailsCountry(t *testing.T) {
	engine := newTestEngine(AbortCountryOnFailure)

	// A declared parameter with no binding and no numeric default fails at
	// evaluation time, not at rule construction.
	unbound := deRule(t, "needs-param", "basePrice", 10)
	unbound.Parameters = []domain.RuleParameter{{Name: "missingParam", DataType: domain.ParameterString}}
	unbound.Expression = "basePrice * missingParam"

	_, err := engine.PriceCountry("DE", []domain.Rule{unbound}, engineContext("100"), "EUR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs-param")
}

func TestEngine_MissingBasePriceRejected(t *testing.T) {
	engine := newTestEngine(SkipFailedRules)

	_, err := engine.PriceCountry("DE", nil, domain.Context{}, "EUR")
	require.Error(t, err)
	assert.True(t, domain.IsValidationError(err))
}

func TestParseFailureMode(t *testing.T) {
	mode, err := ParseFailureMode("skip")
	require.NoError(t, err)
	assert.Equal(t, SkipFailedRules, mode)

	mode, err = ParseFailureMode("abort")
	require.NoError(t, err)
	assert.Equal(t, AbortCountryOnFailure, mode)

	_, err = ParseFailureMode("halt")
	assert.Error(t, err)
}
