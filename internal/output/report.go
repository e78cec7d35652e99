// Package output renders pricing results in the formats the CLI offers.
package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vatops/vatcalc/internal/pricing"
	"github.com/vatops/vatcalc/internal/rules"
)

// Formatter renders a pricing result to bytes.
type Formatter interface {
	Name() string
	Format(result *pricing.Result) ([]byte, error)
}

// GetFormatterByName returns the formatter registered under name, or nil.
func GetFormatterByName(name string) Formatter {
	switch name {
	case "console":
		return ConsoleFormatter{}
	case "json":
		return JSONFormatter{}
	case "csv":
		return CSVFormatter{}
	default:
		return nil
	}
}

// FormatterNames lists the supported format names.
func FormatterNames() []string {
	return []string{"console", "json", "csv"}
}

// ConsoleFormatter renders a human-readable breakdown.
type ConsoleFormatter struct{}

func (ConsoleFormatter) Name() string { return "console" }

func (ConsoleFormatter) Format(result *pricing.Result) ([]byte, error) {
	var b strings.Builder

	b.WriteString("=====================================================\n")
	b.WriteString("VAT FILING COST BREAKDOWN\n")
	b.WriteString("=====================================================\n\n")

	b.WriteString("PER-COUNTRY COSTS\n")
	b.WriteString("-----------------\n")
	for _, country := range result.PerCountry {
		fmt.Fprintf(&b, "  %-4s %14s", country.CountryCode, country.Cost.String())
		if len(country.AppliedRuleIDs) > 0 {
			fmt.Fprintf(&b, "   rules: %s", strings.Join(country.AppliedRuleIDs, ", "))
		}
		b.WriteString("\n")
		for _, w := range country.Warnings {
			fmt.Fprintf(&b, "       warning [%s]: %s\n", w.Code, w.Message)
		}
	}
	b.WriteString("\n")

	if len(result.Services) > 0 {
		b.WriteString("ADDITIONAL SERVICES\n")
		b.WriteString("-------------------\n")
		for _, svc := range result.Services {
			fmt.Fprintf(&b, "  %-24s %14s\n", svc.Name, svc.Cost.String())
		}
		b.WriteString("\n")
	}

	if len(result.AppliedDiscounts) > 0 {
		b.WriteString("DISCOUNTS\n")
		b.WriteString("---------\n")
		for reason, amount := range result.AppliedDiscounts {
			fmt.Fprintf(&b, "  %-24s -%13s\n", reason, amount.String())
		}
		b.WriteString("\n")
	}

	b.WriteString("-----------------------------------------------------\n")
	fmt.Fprintf(&b, "TOTAL: %s\n", result.TotalCost.String())

	return []byte(b.String()), nil
}

// jsonMoney keeps money explicit in the wire shape: amount string plus
// currency, never a float.
type jsonMoney struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type jsonCountry struct {
	CountryCode    string          `json:"countryCode"`
	Cost           jsonMoney       `json:"cost"`
	AppliedRuleIDs []string        `json:"appliedRuleIds"`
	Warnings       []rules.Warning `json:"warnings,omitempty"`
}

type jsonService struct {
	ServiceID string    `json:"serviceId"`
	Name      string    `json:"name"`
	Cost      jsonMoney `json:"cost"`
}

type jsonResult struct {
	CalculationID    string               `json:"calculationId"`
	Currency         string               `json:"currency"`
	TotalCost        jsonMoney            `json:"totalCost"`
	PerCountry       []jsonCountry        `json:"perCountry"`
	Services         []jsonService        `json:"additionalServices,omitempty"`
	AppliedDiscounts map[string]jsonMoney `json:"appliedDiscounts,omitempty"`
}

// JSONFormatter renders the result as indented JSON.
type JSONFormatter struct{}

func (JSONFormatter) Name() string { return "json" }

func (JSONFormatter) Format(result *pricing.Result) ([]byte, error) {
	out := jsonResult{
		CalculationID: result.CalculationID,
		Currency:      result.CurrencyCode,
		TotalCost:     jsonMoney{Amount: result.TotalCost.Amount().StringFixed(2), Currency: result.TotalCost.Currency()},
	}
	for _, country := range result.PerCountry {
		out.PerCountry = append(out.PerCountry, jsonCountry{
			CountryCode:    country.CountryCode,
			Cost:           jsonMoney{Amount: country.Cost.Amount().StringFixed(2), Currency: country.Cost.Currency()},
			AppliedRuleIDs: country.AppliedRuleIDs,
			Warnings:       country.Warnings,
		})
	}
	for _, svc := range result.Services {
		out.Services = append(out.Services, jsonService{
			ServiceID: svc.ServiceID,
			Name:      svc.Name,
			Cost:      jsonMoney{Amount: svc.Cost.Amount().StringFixed(2), Currency: svc.Cost.Currency()},
		})
	}
	if len(result.AppliedDiscounts) > 0 {
		out.AppliedDiscounts = make(map[string]jsonMoney, len(result.AppliedDiscounts))
		for reason, amount := range result.AppliedDiscounts {
			out.AppliedDiscounts[reason] = jsonMoney{Amount: amount.Amount().StringFixed(2), Currency: amount.Currency()}
		}
	}
	return json.MarshalIndent(out, "", "  ")
}

// CSVFormatter renders one row per cost line (country, service, discount,
// total) for spreadsheet import.
type CSVFormatter struct{}

func (CSVFormatter) Name() string { return "csv" }

func (CSVFormatter) Format(result *pricing.Result) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"line_type", "code", "name", "amount", "currency", "applied_rules"}); err != nil {
		return nil, err
	}
	for _, country := range result.PerCountry {
		record := []string{
			"country",
			country.CountryCode,
			"",
			country.Cost.Amount().StringFixed(2),
			country.Cost.Currency(),
			strings.Join(country.AppliedRuleIDs, ";"),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	for _, svc := range result.Services {
		record := []string{"service", svc.ServiceID, svc.Name, svc.Cost.Amount().StringFixed(2), svc.Cost.Currency(), ""}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	for reason, amount := range result.AppliedDiscounts {
		record := []string{"discount", "", reason, amount.Amount().StringFixed(2), amount.Currency(), ""}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	total := []string{"total", "", "", result.TotalCost.Amount().StringFixed(2), result.TotalCost.Currency(), ""}
	if err := w.Write(total); err != nil {
		return nil, err
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}
