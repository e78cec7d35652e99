package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/shopspring/decimal"

	"github.com/vatops/vatcalc/internal/domain"
	"github.com/vatops/vatcalc/internal/expr"
	"github.com/vatops/vatcalc/internal/pricing"
)

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case CatalogLoadedMsg:
		m.catalog = msg.Catalog
		m.result = msg.Result
		return m, nil

	case ErrorMsg:
		m.err = msg.Err
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "esc":
			if m.currentScene == SceneWorkbench {
				m.currentScene = SceneResults
			} else {
				m.currentScene = SceneWorkbench
			}
			return m, nil
		}
		if m.currentScene == SceneWorkbench {
			return m.updateWorkbench(msg)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) updateWorkbench(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab":
		m.focusIndex = (m.focusIndex + 1) % 2
		if m.focusIndex == 0 {
			m.exprInput.Focus()
			m.valuesInput.Blur()
		} else {
			m.exprInput.Blur()
			m.valuesInput.Focus()
		}
		return m, nil
	case "enter":
		m.outcome = m.runExpression()
		return m, nil
	}

	var cmd tea.Cmd
	if m.focusIndex == 0 {
		m.exprInput, cmd = m.exprInput.Update(msg)
	} else {
		m.valuesInput, cmd = m.valuesInput.Update(msg)
	}
	return m, cmd
}

// runExpression validates the typed expression against the typed sample
// bindings and evaluates it when bindings were provided. It mirrors the
// ValidateExpression dry-run the pricing service exposes.
func (m Model) runExpression() *pricing.ExpressionValidation {
	expression := strings.TrimSpace(m.exprInput.Value())
	if expression == "" {
		return &pricing.ExpressionValidation{IsValid: false, Message: "type an expression first"}
	}

	bindings, err := parseBindings(m.valuesInput.Value())
	if err != nil {
		return &pricing.ExpressionValidation{IsValid: false, Message: err.Error()}
	}

	declared := expr.DeclaredSet(domain.BindingBasePrice, domain.BindingTransactionVolume)
	for name := range bindings {
		declared[name] = struct{}{}
	}

	evaluator := expr.New()
	if err := evaluator.Validate(expression, declared); err != nil {
		return &pricing.ExpressionValidation{IsValid: false, Message: err.Error()}
	}
	if len(bindings) == 0 {
		return &pricing.ExpressionValidation{IsValid: true, Message: "expression is valid"}
	}
	value, err := evaluator.Evaluate(expression, bindings)
	if err != nil {
		return &pricing.ExpressionValidation{IsValid: false, Message: err.Error()}
	}
	return &pricing.ExpressionValidation{IsValid: true, Message: "expression is valid", EvaluationResult: &value}
}

func parseBindings(raw string) (map[string]decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	bindings := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return nil, fmt.Errorf("malformed binding %q (want name=number)", pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("binding %s: %w", name, err)
		}
		bindings[strings.TrimSpace(name)] = d
	}
	return bindings, nil
}
