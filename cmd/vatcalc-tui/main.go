package main

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/vatops/vatcalc/internal/tui"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: vatcalc-tui <catalog-file> [request-file]")
		os.Exit(1)
	}
	catalogPath := os.Args[1]
	requestPath := ""
	if len(os.Args) > 2 {
		requestPath = os.Args[2]
	}

	if _, err := os.Stat(catalogPath); os.IsNotExist(err) {
		fmt.Printf("Error: catalog file not found: %s\n", catalogPath)
		os.Exit(1)
	}

	model := tui.NewModel(catalogPath, requestPath)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running TUI: %v\n", err)
		os.Exit(1)
	}
}
