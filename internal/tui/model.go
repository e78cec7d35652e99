// Package tui is the interactive workbench: an expression playground for
// rule authors and a results browser for priced requests.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/vatops/vatcalc/internal/config"
	"github.com/vatops/vatcalc/internal/pricing"
	"github.com/vatops/vatcalc/internal/rules"
)

// Scene identifies which screen is active.
type Scene int

const (
	SceneWorkbench Scene = iota
	SceneResults
)

func (s Scene) String() string {
	if s == SceneResults {
		return "Results"
	}
	return "Workbench"
}

// CatalogLoadedMsg carries the parsed catalog and, when a request file was
// given, the priced result.
type CatalogLoadedMsg struct {
	Catalog *config.Catalog
	Result  *pricing.Result
}

// ErrorMsg carries a fatal load error.
type ErrorMsg struct {
	Err error
}

// Model is the application state.
type Model struct {
	currentScene Scene
	width        int
	height       int

	catalogPath string
	requestPath string
	catalog     *config.Catalog
	result      *pricing.Result

	exprInput   textinput.Model
	valuesInput textinput.Model
	focusIndex  int

	outcome *pricing.ExpressionValidation

	err error
}

// NewModel creates the application model. requestPath may be empty; the
// results scene then stays blank.
func NewModel(catalogPath, requestPath string) Model {
	exprInput := textinput.New()
	exprInput.Placeholder = "basePrice * vatRate"
	exprInput.Prompt = "expr> "
	exprInput.Focus()

	valuesInput := textinput.New()
	valuesInput.Placeholder = "basePrice=100, vatRate=0.2"
	valuesInput.Prompt = "vals> "

	return Model{
		currentScene: SceneWorkbench,
		catalogPath:  catalogPath,
		requestPath:  requestPath,
		exprInput:    exprInput,
		valuesInput:  valuesInput,
		width:        80,
		height:       24,
	}
}

// Init loads the catalog (and prices the request when one was given).
func (m Model) Init() tea.Cmd {
	return tea.Batch(loadCmd(m.catalogPath, m.requestPath), textinput.Blink)
}

func loadCmd(catalogPath, requestPath string) tea.Cmd {
	return func() tea.Msg {
		if catalogPath == "" {
			return CatalogLoadedMsg{Catalog: &config.Catalog{}}
		}
		parser := config.NewInputParser()
		catalog, err := parser.LoadCatalog(catalogPath)
		if err != nil {
			return ErrorMsg{Err: err}
		}
		msg := CatalogLoadedMsg{Catalog: catalog}

		if requestPath != "" {
			req, err := parser.LoadRequest(requestPath, catalog)
			if err != nil {
				return ErrorMsg{Err: err}
			}
			repo := rules.NewMemoryRepository(catalog.Rules)
			engine := rules.NewEngine(rules.SkipFailedRules, zap.NewNop())
			svc := pricing.NewService(repo, engine, catalog.Countries, catalog.AdditionalServices, nil, zap.NewNop())
			result, err := svc.Calculate(context.Background(), *req)
			if err != nil {
				return ErrorMsg{Err: err}
			}
			msg.Result = result
		}
		return msg
	}
}
