package main

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/lox/shellgame/cmd/shellgame/shared"
	"github.com/lox/shellgame/internal/randutil"
	"github.com/lox/shellgame/internal/server"
)

// ServeCmd runs the WebSocket game server.
type ServeCmd struct {
	Config string `kong:"help='Path to an HCL config file'"`
	Addr   string `kong:"help='Listen address, overrides the config file'"`
	Debug  bool   `kong:"help='Enable debug logging'"`
	Seed   *int64 `kong:"help='Deterministic RNG seed for shuffles (optional)'"`
}

func (c *ServeCmd) Run() error {
	cfg, err := server.LoadConfig(c.Config)
	if err != nil {
		return err
	}

	logger := shared.SetupLogger(cfg.Server.LogLevel, c.Debug)

	addr := cfg.Addr()
	if c.Addr != "" {
		addr = c.Addr
	}

	svc := server.NewGameService(cfg, quartz.NewReal(), logger)
	if c.Seed != nil {
		// Each session gets its own derived seed so concurrent players do
		// not see identical shuffles.
		base := *c.Seed
		var sessions atomic.Int64
		svc.NewPairs = func() randutil.PairSource {
			return randutil.NewPairSource(randutil.New(base + sessions.Add(1)))
		}
		logger.Info("using deterministic seed", "seed", base)
	}

	srv := server.NewServer(addr, svc, logger)

	logger.Info("starting shell game server",
		"addr", addr,
		"slots", cfg.Game.SlotCount,
		"swaps", cfg.Game.SwapCount,
		"starting_balance", cfg.Wager.StartingBalance,
		"payout", cfg.Wager.PayoutMultiplier)

	ctx := shared.SetupSignalHandler(logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
