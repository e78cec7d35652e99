// Package pricing exposes the calculation façade: it turns a pricing
// request into a priced Calculation by fetching rules per country,
// running the rule engine, and aggregating the results.
package pricing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vatops/vatcalc/internal/domain"
	"github.com/vatops/vatcalc/internal/expr"
	"github.com/vatops/vatcalc/internal/rules"
)

// Country is a priceable jurisdiction with its pre-rule base price.
type Country struct {
	Code      string          `yaml:"code" json:"code"`
	Name      string          `yaml:"name" json:"name"`
	BasePrice decimal.Decimal `yaml:"base_price" json:"basePrice"`
}

// AdditionalService is an add-on (fiscal representation, retroactive
// filings, ...) priced as a flat amount.
type AdditionalService struct {
	ID    string       `json:"id"`
	Name  string       `json:"name"`
	Price domain.Money `json:"-"`
}

// CalculationStore persists calculations. Implementing it is a collaborator
// concern; the service only calls it, and tolerates its absence.
type CalculationStore interface {
	Save(ctx context.Context, calc *domain.Calculation) (string, error)
	Load(ctx context.Context, id string) (*domain.Calculation, error)
}

// DiscountRequest applies a percentage discount to the final total.
type DiscountRequest struct {
	Percentage decimal.Decimal `yaml:"percentage" json:"percentage"`
	Reason     string          `yaml:"reason" json:"reason"`
}

// Request describes one pricing run.
type Request struct {
	UserID               string                 `yaml:"user_id" json:"userId"`
	ServiceID            string                 `yaml:"service_id" json:"serviceId"`
	ServiceType          string                 `yaml:"service_type" json:"serviceType"`
	CountryCodes         []string               `yaml:"countries" json:"countryCodes"`
	TransactionVolume    int64                  `yaml:"transaction_volume" json:"transactionVolume"`
	FilingFrequency      domain.FilingFrequency `yaml:"filing_frequency" json:"filingFrequency"`
	AdditionalServiceIDs []string               `yaml:"additional_services" json:"additionalServiceIds"`
	CurrencyCode         string                 `yaml:"currency" json:"currencyCode"`
	Discount             *DiscountRequest       `yaml:"discount,omitempty" json:"discount,omitempty"`
	Parameters           map[string]string      `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// CountryBreakdown is one country's slice of the result.
type CountryBreakdown struct {
	CountryCode    string
	Cost           domain.Money
	AppliedRuleIDs []string
	Warnings       []rules.Warning
}

// ServiceBreakdown is one additional service's slice of the result.
type ServiceBreakdown struct {
	ServiceID string
	Name      string
	Cost      domain.Money
}

// Result is the caller-facing outcome of Calculate.
type Result struct {
	CalculationID    string
	CurrencyCode     string
	TotalCost        domain.Money
	PerCountry       []CountryBreakdown
	Services         []ServiceBreakdown
	AppliedDiscounts map[string]domain.Money
}

// Service wires the rule repository, catalog data, and engine into the two
// operations the API layer consumes: Calculate and ValidateExpression.
type Service struct {
	repo      rules.Repository
	engine    *rules.Engine
	countries map[string]Country
	services  map[string]AdditionalService
	store     CalculationStore
	logger    *zap.Logger
}

// NewService builds a pricing service. store may be nil when persistence
// is not wired (dry runs, CLI usage).
func NewService(repo rules.Repository, engine *rules.Engine, countries []Country, services []AdditionalService, store CalculationStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	countryIndex := make(map[string]Country, len(countries))
	for _, c := range countries {
		countryIndex[c.Code] = c
	}
	serviceIndex := make(map[string]AdditionalService, len(services))
	for _, s := range services {
		serviceIndex[s.ID] = s
	}
	return &Service{
		repo:      repo,
		engine:    engine,
		countries: countryIndex,
		services:  serviceIndex,
		store:     store,
		logger:    logger,
	}
}

// Calculate prices the request: one engine pass per country, flat prices
// for additional services, then the optional discount. Countries are
// priced independently; a failure in one country fails the request only
// because a partially priced calculation must never escape.
func (s *Service) Calculate(ctx context.Context, req Request) (*Result, error) {
	calc, err := domain.NewCalculation(req.UserID, req.ServiceID, req.TransactionVolume, req.FilingFrequency, req.CurrencyCode)
	if err != nil {
		return nil, err
	}
	if len(req.CountryCodes) == 0 {
		return nil, &domain.ValidationError{Field: "countryCodes", Reason: "at least one country is required"}
	}

	asOf := s.engine.Now()
	result := &Result{
		CalculationID: calc.ID(),
		CurrencyCode:  req.CurrencyCode,
	}

	for _, code := range req.CountryCodes {
		country, ok := s.countries[code]
		if !ok {
			return nil, fmt.Errorf("%w: country %s", domain.ErrNotFound, code)
		}

		ruleList, err := s.repo.GetActiveRules(ctx, code, nil, asOf)
		if err != nil {
			return nil, fmt.Errorf("fetching rules for %s: %w", code, err)
		}

		countryCtx := s.buildContext(req, country)
		priced, err := s.engine.PriceCountry(code, ruleList, countryCtx, req.CurrencyCode)
		if err != nil {
			return nil, fmt.Errorf("pricing country %s: %w", code, err)
		}

		if _, err := calc.AddCountry(code, priced.Cost, priced.AppliedRuleIDs); err != nil {
			return nil, err
		}
		result.PerCountry = append(result.PerCountry, CountryBreakdown{
			CountryCode:    code,
			Cost:           priced.Cost,
			AppliedRuleIDs: priced.AppliedRuleIDs,
			Warnings:       priced.Warnings,
		})
	}

	for _, id := range req.AdditionalServiceIDs {
		svc, ok := s.services[id]
		if !ok {
			return nil, fmt.Errorf("%w: additional service %s", domain.ErrNotFound, id)
		}
		if _, err := calc.AddAdditionalService(id, svc.Price); err != nil {
			return nil, err
		}
		result.Services = append(result.Services, ServiceBreakdown{
			ServiceID: id,
			Name:      svc.Name,
			Cost:      svc.Price,
		})
	}

	if req.Discount != nil {
		discount, err := calc.ApplyDiscount(req.Discount.Percentage, req.Discount.Reason)
		if err != nil {
			return nil, err
		}
		s.logger.Info("discount applied",
			zap.String("calculationId", calc.ID()),
			zap.String("reason", req.Discount.Reason),
			zap.String("amount", discount.String()))
	}
	result.AppliedDiscounts = calc.AppliedDiscounts()
	result.TotalCost = calc.TotalCost()

	if s.store != nil {
		if _, err := s.store.Save(ctx, calc); err != nil {
			return nil, fmt.Errorf("saving calculation: %w", err)
		}
	}
	return result, nil
}

func (s *Service) buildContext(req Request, country Country) domain.Context {
	ctx := domain.Context{
		domain.BindingBasePrice:         domain.NumberValue(country.BasePrice),
		domain.BindingTransactionVolume: domain.IntValue(req.TransactionVolume),
		"serviceType":                   domain.StringValue(req.ServiceType),
		"filingFrequency":               domain.StringValue(string(req.FilingFrequency)),
		"countryCode":                   domain.StringValue(country.Code),
	}
	for name, raw := range req.Parameters {
		if d, err := decimal.NewFromString(raw); err == nil {
			ctx[name] = domain.NumberValue(d)
			continue
		}
		ctx[name] = domain.StringValue(raw)
	}
	return ctx
}

// ExpressionValidation is the outcome of a rule-authoring dry run.
type ExpressionValidation struct {
	IsValid          bool
	Message          string
	EvaluationResult *decimal.Decimal
}

// ValidateExpression checks an expression against a declared parameter
// list and, when sample values are supplied, dry-runs it. Pure: no rule is
// touched, nothing is stored.
func (s *Service) ValidateExpression(expression string, parameters []string, sampleValues map[string]decimal.Decimal) ExpressionValidation {
	evaluator := s.engine.Evaluator()
	declared := expr.DeclaredSet(domain.BindingBasePrice, domain.BindingTransactionVolume)
	for _, p := range parameters {
		declared[p] = struct{}{}
	}
	if err := evaluator.Validate(expression, declared); err != nil {
		return ExpressionValidation{IsValid: false, Message: err.Error()}
	}
	if len(sampleValues) == 0 {
		return ExpressionValidation{IsValid: true, Message: "expression is valid"}
	}
	value, err := evaluator.Evaluate(expression, sampleValues)
	if err != nil {
		return ExpressionValidation{IsValid: false, Message: err.Error()}
	}
	return ExpressionValidation{
		IsValid:          true,
		Message:          "expression is valid",
		EvaluationResult: &value,
	}
}
