// Package rules selects and applies country pricing rules: condition
// matching, candidate filtering, deterministic ordering, and the
// sequential fold that turns a base price into a country cost.
package rules

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vatops/vatcalc/internal/domain"
	"github.com/vatops/vatcalc/internal/expr"
)

// FailureMode controls what a single rule's evaluation failure does to the
// country being priced. The two modes produce materially different prices,
// so the choice is an explicit engine setting, never implicit.
type FailureMode int

const (
	// SkipFailedRules drops the failing rule, records a warning, and keeps
	// pricing with the remaining rules. Default.
	SkipFailedRules FailureMode = iota
	// AbortCountryOnFailure fails the whole country on the first rule
	// evaluation error.
	AbortCountryOnFailure
)

func (m FailureMode) String() string {
	if m == AbortCountryOnFailure {
		return "abort"
	}
	return "skip"
}

// ParseFailureMode parses the CLI spelling of a failure mode.
func ParseFailureMode(s string) (FailureMode, error) {
	switch s {
	case "skip":
		return SkipFailedRules, nil
	case "abort":
		return AbortCountryOnFailure, nil
	default:
		return SkipFailedRules, fmt.Errorf("unknown failure mode %q (want skip or abort)", s)
	}
}

// Warning codes attached to country results.
const (
	WarningRuleSkipped        = "rule_skipped"
	WarningNegativeRuleResult = "negative_rule_result"
)

// Warning records a non-fatal anomaly during country pricing.
type Warning struct {
	RuleID  string `json:"ruleId,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CountryResult is the outcome of pricing one country: the final cost, the
// rules that contributed in order, and any warnings raised on the way.
type CountryResult struct {
	CountryCode    string
	Cost           domain.Money
	AppliedRuleIDs []string
	Warnings       []Warning
}

// Engine applies a country's rules to an evaluation context. It performs
// no I/O; callers hand it an already-fetched rule list. Safe for
// concurrent use across countries since all inputs are immutable.
type Engine struct {
	// Mode is the failure policy for single-rule evaluation errors.
	Mode FailureMode
	// Now supplies the evaluation date for effective-window checks.
	// Overridable in tests.
	Now func() time.Time

	evaluator *expr.Evaluator
	matcher   *Matcher
	logger    *zap.Logger
}

// NewEngine creates an engine with the given failure mode. A nil logger
// disables diagnostics.
func NewEngine(mode FailureMode, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		Mode:      mode,
		Now:       time.Now,
		evaluator: expr.New(),
		matcher:   NewMatcher(logger),
		logger:    logger,
	}
}

// Evaluator exposes the engine's shared expression evaluator so callers
// can reuse its parse cache for dry-runs.
func (e *Engine) Evaluator() *expr.Evaluator { return e.evaluator }

// PriceCountry derives the cost for one country by folding the applicable
// rules over the base price.
//
// The context must contain a numeric basePrice entry; transactionVolume
// and serviceType are expected but not enforced here. Each rule's
// expression is evaluated with the context's numeric bindings, the rule's
// numeric parameter defaults for anything unbound, and basePrice rebound
// to the running value so rules compose. A negative final value is clamped
// to zero with a warning rather than failing the country.
func (e *Engine) PriceCountry(countryCode string, ruleList []domain.Rule, ctx domain.Context, currencyCode string) (CountryResult, error) {
	result := CountryResult{CountryCode: countryCode}

	baseValue, ok := ctx[domain.BindingBasePrice]
	if !ok {
		return result, &domain.ValidationError{Field: domain.BindingBasePrice, Reason: "missing from evaluation context"}
	}
	current, ok := baseValue.Number()
	if !ok {
		return result, &domain.ValidationError{Field: domain.BindingBasePrice, Reason: "is not numeric"}
	}

	applicable := NewRuleSet(ruleList).Applicable(e.matcher, countryCode, nil, e.Now(), ctx)
	baseBindings := ctx.NumericBindings()

	for _, rule := range applicable {
		bindings := make(map[string]decimal.Decimal, len(baseBindings)+len(rule.Parameters)+1)
		for name, v := range baseBindings {
			bindings[name] = v
		}
		for _, p := range rule.Parameters {
			if p.DataType != domain.ParameterNumber || p.DefaultValue == "" {
				continue
			}
			if _, bound := bindings[p.Name]; bound {
				continue
			}
			d, err := decimal.NewFromString(p.DefaultValue)
			if err != nil {
				continue
			}
			bindings[p.Name] = d
		}
		bindings[domain.BindingBasePrice] = current

		value, err := e.evaluator.Evaluate(rule.Expression, bindings)
		if err != nil {
			if e.Mode == AbortCountryOnFailure {
				return CountryResult{CountryCode: countryCode}, fmt.Errorf("rule %s failed for country %s: %w", rule.ID, countryCode, err)
			}
			e.logger.Warn("rule evaluation failed, rule skipped",
				zap.String("ruleId", rule.ID),
				zap.String("country", countryCode),
				zap.Error(err))
			result.Warnings = append(result.Warnings, Warning{
				RuleID:  rule.ID,
				Code:    WarningRuleSkipped,
				Message: err.Error(),
			})
			continue
		}
		current = value
		result.AppliedRuleIDs = append(result.AppliedRuleIDs, rule.ID)
	}

	if current.IsNegative() {
		e.logger.Warn("country cost went negative, clamped to zero",
			zap.String("country", countryCode),
			zap.String("value", current.String()))
		result.Warnings = append(result.Warnings, Warning{
			Code:    WarningNegativeRuleResult,
			Message: fmt.Sprintf("final value %s clamped to zero", current.String()),
		})
		current = decimal.Zero
	}

	cost, err := domain.NewMoney(current, currencyCode)
	if err != nil {
		return CountryResult{CountryCode: countryCode}, err
	}
	result.Cost = cost
	return result, nil
}
