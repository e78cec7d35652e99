package tui

import (
	"fmt"
	"strings"
)

// View renders the active scene.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("vatcalc workbench"))
	b.WriteString("  ")
	b.WriteString(SubtitleStyle.Render(m.currentScene.String()))
	b.WriteString("\n\n")

	if m.err != nil {
		b.WriteString(ErrorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n\n")
		b.WriteString(HelpStyle.Render("ctrl+c quit"))
		return AppStyle.Render(b.String())
	}

	switch m.currentScene {
	case SceneResults:
		m.viewResults(&b)
	default:
		m.viewWorkbench(&b)
	}

	b.WriteString("\n")
	b.WriteString(HelpStyle.Render("tab switch field • enter evaluate • esc switch scene • ctrl+c quit"))
	return AppStyle.Render(b.String())
}

func (m Model) viewWorkbench(b *strings.Builder) {
	b.WriteString(LabelStyle.Render("Expression"))
	b.WriteString("\n")
	b.WriteString(m.exprInput.View())
	b.WriteString("\n\n")
	b.WriteString(LabelStyle.Render("Sample bindings"))
	b.WriteString("\n")
	b.WriteString(m.valuesInput.View())
	b.WriteString("\n\n")

	if m.outcome == nil {
		b.WriteString(SubtitleStyle.Render("press enter to validate"))
		b.WriteString("\n")
		return
	}
	if !m.outcome.IsValid {
		b.WriteString(ErrorStyle.Render(m.outcome.Message))
		b.WriteString("\n")
		return
	}
	line := m.outcome.Message
	if m.outcome.EvaluationResult != nil {
		line = fmt.Sprintf("%s, result: %s", line, m.outcome.EvaluationResult.String())
	}
	b.WriteString(ResultStyle.Render(line))
	b.WriteString("\n")
}

func (m Model) viewResults(b *strings.Builder) {
	if m.result == nil {
		b.WriteString(SubtitleStyle.Render("no request priced (start with a request file to see results)"))
		b.WriteString("\n")
		return
	}

	var box strings.Builder
	for _, country := range m.result.PerCountry {
		fmt.Fprintf(&box, "%-4s %16s", country.CountryCode, country.Cost.String())
		if len(country.AppliedRuleIDs) > 0 {
			fmt.Fprintf(&box, "  %s", SubtitleStyle.Render(strings.Join(country.AppliedRuleIDs, ", ")))
		}
		box.WriteString("\n")
		for _, w := range country.Warnings {
			box.WriteString(ErrorStyle.Render(fmt.Sprintf("     [%s] %s", w.Code, w.Message)))
			box.WriteString("\n")
		}
	}
	for _, svc := range m.result.Services {
		fmt.Fprintf(&box, "%-20s %16s\n", svc.Name, svc.Cost.String())
	}
	for reason, amount := range m.result.AppliedDiscounts {
		fmt.Fprintf(&box, "%-20s -%15s\n", reason, amount.String())
	}
	box.WriteString(strings.Repeat("-", 38))
	box.WriteString("\n")
	fmt.Fprintf(&box, "%-20s %16s", "TOTAL", ResultStyle.Render(m.result.TotalCost.String()))

	b.WriteString(BoxStyle.Render(box.String()))
	b.WriteString("\n")
}
