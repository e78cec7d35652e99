package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vatops/vatcalc/internal/expr"
)

// RuleType classifies what a pricing rule contributes.
type RuleType string

const (
	RuleTypeVatRate            RuleType = "VatRate"
	RuleTypeThreshold          RuleType = "Threshold"
	RuleTypeComplexity         RuleType = "Complexity"
	RuleTypeSpecialRequirement RuleType = "SpecialRequirement"
	RuleTypeDiscount           RuleType = "Discount"
)

// ValidRuleType reports whether t is one of the known rule types.
func ValidRuleType(t RuleType) bool {
	switch t {
	case RuleTypeVatRate, RuleTypeThreshold, RuleTypeComplexity, RuleTypeSpecialRequirement, RuleTypeDiscount:
		return true
	}
	return false
}

// ParameterType is the closed set of rule parameter data types.
type ParameterType string

const (
	ParameterString  ParameterType = "string"
	ParameterNumber  ParameterType = "number"
	ParameterBoolean ParameterType = "boolean"
	ParameterDate    ParameterType = "date"
)

// ConditionOperator is the comparison applied by a RuleCondition.
type ConditionOperator string

const (
	OperatorEquals      ConditionOperator = "equals"
	OperatorNotEquals   ConditionOperator = "notEquals"
	OperatorGreaterThan ConditionOperator = "greaterThan"
	OperatorLessThan    ConditionOperator = "lessThan"
	OperatorContains    ConditionOperator = "contains"
)

// Rule priority bounds. Lower priority applies earlier.
const (
	MinRulePriority = 0
	MaxRulePriority = 1000
)

// Reserved expression bindings supplied by the engine on every evaluation.
// basePrice carries the running value through the rule chain.
const (
	BindingBasePrice         = "basePrice"
	BindingTransactionVolume = "transactionVolume"
)

// RuleParameter declares a named input to a rule expression. Names are
// unique within a rule and follow identifier syntax.
type RuleParameter struct {
	Name         string        `yaml:"name" json:"name"`
	DataType     ParameterType `yaml:"data_type" json:"dataType"`
	DefaultValue string        `yaml:"default_value" json:"defaultValue"`
}

// RuleCondition gates rule applicability. All conditions of a rule must
// match the evaluation context for the rule to apply.
type RuleCondition struct {
	Parameter string            `yaml:"parameter" json:"parameter"`
	Operator  ConditionOperator `yaml:"operator" json:"operator"`
	Value     string            `yaml:"value" json:"value"`
}

// Rule is a country-scoped, time-bounded, conditionally applicable
// arithmetic expression contributing to a filing cost. Rules are immutable
// value types from the engine's point of view; mutation happens only
// through the Update* methods on the authoritative copy.
type Rule struct {
	ID            string          `yaml:"id" json:"id"`
	CountryCode   string          `yaml:"country_code" json:"countryCode"`
	Type          RuleType        `yaml:"type" json:"type"`
	Name          string          `yaml:"name" json:"name"`
	Description   string          `yaml:"description,omitempty" json:"description,omitempty"`
	Expression    string          `yaml:"expression" json:"expression"`
	Parameters    []RuleParameter `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Conditions    []RuleCondition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	EffectiveFrom time.Time       `yaml:"effective_from" json:"effectiveFrom"`
	EffectiveTo   *time.Time      `yaml:"effective_to,omitempty" json:"effectiveTo,omitempty"`
	Priority      int             `yaml:"priority" json:"priority"`
	IsActive      bool            `yaml:"is_active" json:"isActive"`
}

// NewRule validates and returns a Rule. The expression must parse and may
// only reference declared parameters or the reserved engine bindings; the
// effective window must be ordered; parameter names must be unique
// identifiers. An empty id is replaced with a generated one.
func NewRule(evaluator *expr.Evaluator, r Rule) (Rule, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CountryCode == "" {
		return Rule{}, newValidationError("countryCode", "is required")
	}
	if !ValidRuleType(r.Type) {
		return Rule{}, newValidationError("type", fmt.Sprintf("unknown rule type %q", r.Type))
	}
	if r.Name == "" {
		return Rule{}, newValidationError("name", "is required")
	}
	if r.Priority < MinRulePriority || r.Priority > MaxRulePriority {
		return Rule{}, newValidationError("priority", fmt.Sprintf("must be between %d and %d", MinRulePriority, MaxRulePriority))
	}
	if r.EffectiveFrom.IsZero() {
		return Rule{}, newValidationError("effectiveFrom", "is required")
	}
	if r.EffectiveTo != nil && !r.EffectiveTo.After(r.EffectiveFrom) {
		return Rule{}, newValidationError("effectiveTo", "must be after effectiveFrom")
	}
	if err := validateParameters(r.Parameters); err != nil {
		return Rule{}, err
	}
	if err := validateConditions(r.Conditions); err != nil {
		return Rule{}, err
	}
	if err := evaluator.Validate(r.Expression, declaredFor(r.Parameters)); err != nil {
		return Rule{}, fmt.Errorf("expression rejected: %w", err)
	}
	return r, nil
}

// EffectiveAt reports whether the rule's window covers t. The lower bound
// is inclusive, the upper bound exclusive.
func (r Rule) EffectiveAt(t time.Time) bool {
	if t.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && !t.Before(*r.EffectiveTo) {
		return false
	}
	return true
}

// ParameterNames returns the declared parameter names in declaration order.
func (r Rule) ParameterNames() []string {
	names := make([]string, len(r.Parameters))
	for i, p := range r.Parameters {
		names[i] = p.Name
	}
	return names
}

// UpdateExpression replaces the expression after revalidating it against
// the rule's declared parameters.
func (r *Rule) UpdateExpression(evaluator *expr.Evaluator, expression string) error {
	if err := evaluator.Validate(expression, declaredFor(r.Parameters)); err != nil {
		return fmt.Errorf("expression rejected: %w", err)
	}
	r.Expression = expression
	return nil
}

// UpdateWindow replaces the effective window, keeping it ordered.
func (r *Rule) UpdateWindow(from time.Time, to *time.Time) error {
	if from.IsZero() {
		return newValidationError("effectiveFrom", "is required")
	}
	if to != nil && !to.After(from) {
		return newValidationError("effectiveTo", "must be after effectiveFrom")
	}
	r.EffectiveFrom = from
	r.EffectiveTo = to
	return nil
}

// UpdatePriority replaces the priority within bounds.
func (r *Rule) UpdatePriority(priority int) error {
	if priority < MinRulePriority || priority > MaxRulePriority {
		return newValidationError("priority", fmt.Sprintf("must be between %d and %d", MinRulePriority, MaxRulePriority))
	}
	r.Priority = priority
	return nil
}

// SetActive toggles the activity flag.
func (r *Rule) SetActive(active bool) { r.IsActive = active }

func declaredFor(params []RuleParameter) map[string]struct{} {
	declared := expr.DeclaredSet(BindingBasePrice, BindingTransactionVolume)
	for _, p := range params {
		declared[p.Name] = struct{}{}
	}
	return declared
}

func validateParameters(params []RuleParameter) error {
	seen := make(map[string]struct{}, len(params))
	for _, p := range params {
		if !validIdentifier(p.Name) {
			return newValidationError("parameters", fmt.Sprintf("%q is not a valid identifier", p.Name))
		}
		if _, dup := seen[p.Name]; dup {
			return newValidationError("parameters", fmt.Sprintf("duplicate parameter %q", p.Name))
		}
		seen[p.Name] = struct{}{}
		switch p.DataType {
		case ParameterString, ParameterNumber, ParameterBoolean, ParameterDate:
		default:
			return newValidationError("parameters", fmt.Sprintf("unknown data type %q for %q", p.DataType, p.Name))
		}
	}
	return nil
}

func validateConditions(conditions []RuleCondition) error {
	for _, c := range conditions {
		if c.Parameter == "" {
			return newValidationError("conditions", "parameter is required")
		}
		switch c.Operator {
		case OperatorEquals, OperatorNotEquals, OperatorGreaterThan, OperatorLessThan, OperatorContains:
		default:
			return newValidationError("conditions", fmt.Sprintf("unknown operator %q", c.Operator))
		}
	}
	return nil
}

func validIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if i == 0 {
			if !isLetter {
				return false
			}
			continue
		}
		if !isLetter && !isDigit && r != '_' {
			return false
		}
	}
	return true
}
