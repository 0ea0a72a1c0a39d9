package main

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lox/shellgame/cmd/shellgame/shared"
	"github.com/lox/shellgame/internal/client"
	"github.com/lox/shellgame/internal/tui"
)

// PlayCmd connects the TUI to a running server.
type PlayCmd struct {
	URL   string `kong:"default='ws://localhost:8080/ws',help='Server WebSocket URL'"`
	Name  string `kong:"default='player',help='Player name sent at auth'"`
	Debug bool   `kong:"help='Write debug logs to shellgame-debug.log'"`
}

func (c *PlayCmd) Run() error {
	logger := shared.SetupTUILogger(c.Debug)

	cl := client.NewClient(c.URL, logger)
	if err := cl.Connect(c.Name); err != nil {
		return err
	}
	defer cl.Close()

	model := tui.NewModel(cl, logger)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err := program.Run()
	return err
}
