package rules

import (
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vatops/vatcalc/internal/domain"
)

// Matcher decides whether a rule's conditions hold against an evaluation
// context. Matching never errors: anything that cannot be compared fails
// closed to "does not match" so a missing optional parameter skips one rule
// instead of blocking a whole country. Every skip is logged for
// diagnosability.
type Matcher struct {
	logger *zap.Logger
}

// NewMatcher creates a Matcher. A nil logger disables skip diagnostics.
func NewMatcher(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Matches reports whether every condition holds in ctx. An empty condition
// list always matches (unconditional rule).
func (m *Matcher) Matches(conditions []domain.RuleCondition, ctx domain.Context) bool {
	for _, cond := range conditions {
		if !m.matchesOne(cond, ctx) {
			return false
		}
	}
	return true
}

func (m *Matcher) matchesOne(cond domain.RuleCondition, ctx domain.Context) bool {
	value, ok := ctx[cond.Parameter]
	if !ok {
		m.logger.Debug("condition parameter missing from context, rule skipped",
			zap.String("parameter", cond.Parameter),
			zap.String("operator", string(cond.Operator)))
		return false
	}

	switch cond.Operator {
	case domain.OperatorEquals:
		return value.String() == cond.Value
	case domain.OperatorNotEquals:
		return value.String() != cond.Value
	case domain.OperatorGreaterThan, domain.OperatorLessThan:
		left, ok := value.Number()
		if !ok {
			m.logger.Debug("condition value not numeric, rule skipped",
				zap.String("parameter", cond.Parameter),
				zap.String("contextValue", value.String()))
			return false
		}
		right, err := decimal.NewFromString(cond.Value)
		if err != nil {
			m.logger.Debug("condition comparand not numeric, rule skipped",
				zap.String("parameter", cond.Parameter),
				zap.String("comparand", cond.Value))
			return false
		}
		if cond.Operator == domain.OperatorGreaterThan {
			return left.GreaterThan(right)
		}
		return left.LessThan(right)
	case domain.OperatorContains:
		return strings.Contains(value.String(), cond.Value)
	default:
		// Unknown operators are rejected at rule construction; treat any
		// stragglers as non-matching.
		return false
	}
}
