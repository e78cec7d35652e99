package main

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vatops/vatcalc/internal/config"
	"github.com/vatops/vatcalc/internal/logging"
	"github.com/vatops/vatcalc/internal/output"
	"github.com/vatops/vatcalc/internal/pricing"
	"github.com/vatops/vatcalc/internal/rules"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "vatcalc",
	Short: "VAT filing cost calculator CLI",
	Long:  "Computes multi-jurisdiction VAT filing costs by evaluating country pricing rules",
}

var calculateCmd = &cobra.Command{
	Use:   "calculate [request-file]",
	Short: "Price a filing request against a rule catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		debugMode, _ := cmd.Flags().GetBool("debug")
		logger, err := logging.New(debugMode)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		catalogFile, _ := cmd.Flags().GetString("catalog")
		parser := config.NewInputParser()
		catalog, err := parser.LoadCatalog(catalogFile)
		if err != nil {
			return err
		}

		req, err := parser.LoadRequest(args[0], catalog)
		if err != nil {
			return err
		}

		modeName, _ := cmd.Flags().GetString("mode")
		mode, err := rules.ParseFailureMode(modeName)
		if err != nil {
			return err
		}

		svc := buildService(catalog, mode, logger)
		result, err := svc.Calculate(context.Background(), *req)
		if err != nil {
			return err
		}

		formatName, _ := cmd.Flags().GetString("format")
		formatter := output.GetFormatterByName(formatName)
		if formatter == nil {
			return fmt.Errorf("unsupported format %q (want one of %s)",
				formatName, strings.Join(output.FormatterNames(), ", "))
		}
		data, err := formatter.Format(result)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [catalog-file]",
	Short: "Validate a rule catalog file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parser := config.NewInputParser()
		catalog, err := parser.LoadCatalog(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("catalog is valid: %d countries, %d rules, %d additional services, currency %s\n",
			len(catalog.Countries), len(catalog.Rules), len(catalog.AdditionalServices), catalog.CurrencyCode)
		return nil
	},
}

var exprCmd = &cobra.Command{
	Use:   "expr [expression]",
	Short: "Validate and dry-run a rule expression",
	Long: "Validates an expression against a declared parameter list and, when " +
		"sample values are supplied, evaluates it. Example:\n\n" +
		"  vatcalc expr \"basePrice * vatRate\" --params vatRate --values basePrice=100,vatRate=0.2",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params, _ := cmd.Flags().GetStringSlice("params")
		rawValues, _ := cmd.Flags().GetString("values")
		values, err := parseSampleValues(rawValues)
		if err != nil {
			return err
		}

		svc := buildService(&config.Catalog{}, rules.SkipFailedRules, zap.NewNop())
		outcome := svc.ValidateExpression(args[0], params, values)
		if !outcome.IsValid {
			fmt.Printf("invalid: %s\n", outcome.Message)
			os.Exit(1)
		}
		fmt.Println(outcome.Message)
		if outcome.EvaluationResult != nil {
			fmt.Printf("result: %s\n", outcome.EvaluationResult.String())
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(os.Stdout, "vatcalc %s (commit %s, built %s)\n", version, commit, date)
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			fmt.Fprintln(os.Stdout, bi.Main.Path)
		}
	},
}

func buildService(catalog *config.Catalog, mode rules.FailureMode, logger *zap.Logger) *pricing.Service {
	repo := rules.NewCachingRepository(rules.NewMemoryRepository(catalog.Rules))
	engine := rules.NewEngine(mode, logger)
	return pricing.NewService(repo, engine, catalog.Countries, catalog.AdditionalServices, nil, logger)
}

// parseSampleValues parses "a=1,b=2.5" into expression bindings.
func parseSampleValues(raw string) (map[string]decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	values := make(map[string]decimal.Decimal)
	for _, pair := range strings.Split(raw, ",") {
		name, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return nil, fmt.Errorf("malformed value %q (want name=number)", pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("value for %s: %w", name, err)
		}
		values[strings.TrimSpace(name)] = d
	}
	return values, nil
}

func init() {
	calculateCmd.Flags().String("catalog", "catalog.yaml", "Rule catalog file")
	calculateCmd.Flags().String("format", "console", "Output format (console, json, csv)")
	calculateCmd.Flags().String("mode", "skip", "Rule failure policy (skip, abort)")
	calculateCmd.Flags().Bool("debug", false, "Enable debug logging")

	exprCmd.Flags().StringSlice("params", nil, "Declared parameter names")
	exprCmd.Flags().String("values", "", "Sample bindings, e.g. basePrice=100,vatRate=0.2")

	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(exprCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
