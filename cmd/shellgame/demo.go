package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/quartz"

	"github.com/lox/shellgame/cmd/shellgame/shared"
	"github.com/lox/shellgame/internal/randutil"
	"github.com/lox/shellgame/internal/server"
	"github.com/lox/shellgame/internal/tui"
)

// DemoCmd runs the game fully in-process: same engine, same wire
// projections, no network.
type DemoCmd struct {
	Name      string `kong:"default='player',help='Player name'"`
	SlotCount int    `kong:"default='3',help='Number of cups'"`
	SwapCount int    `kong:"default='8',help='Swaps per shuffle'"`
	Seed      *int64 `kong:"help='Deterministic RNG seed (optional)'"`
	Debug     bool   `kong:"help='Write debug logs to shellgame-debug.log'"`
}

func (c *DemoCmd) Run() error {
	logger := shared.SetupTUILogger(c.Debug)

	cfg := server.DefaultConfig()
	cfg.Game.SlotCount = c.SlotCount
	cfg.Game.SwapCount = c.SwapCount
	if err := cfg.Validate(); err != nil {
		return err
	}

	seed := time.Now().UnixNano()
	if c.Seed != nil {
		seed = *c.Seed
	}

	svc := server.NewGameService(cfg, quartz.NewReal(), logger)
	svc.NewPairs = func() randutil.PairSource {
		return randutil.NewPairSource(randutil.New(seed))
	}

	backend, err := tui.NewLocalBackend(svc, c.Name, logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	model := tui.NewModel(backend, logger)
	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}
