package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/shellgame/internal/randutil"
	"github.com/lox/shellgame/internal/shuffle"
	"github.com/lox/shellgame/internal/wager"
)

// GameService builds per-player sessions. It owns nothing the two state
// machines own; it is the enclosing-application glue that correlates a
// resolved round with the wager in flight and supplies balance updates.
type GameService struct {
	cfg    *Config
	clock  quartz.Clock
	logger *log.Logger

	// NewPairs builds the random source for each player session. Tests
	// override it with seeded or scripted sources.
	NewPairs func() randutil.PairSource
}

// NewGameService creates a game service over the given clock.
func NewGameService(cfg *Config, clock quartz.Clock, logger *log.Logger) *GameService {
	return &GameService{
		cfg:    cfg,
		clock:  clock,
		logger: logger.WithPrefix("game"),
		NewPairs: func() randutil.PairSource {
			return randutil.NewPairSource(randutil.New(time.Now().UnixNano()))
		},
	}
}

// PlayerSession couples one wager store with one shuffle session for a
// single player. All state lives in the two machines; the session only
// routes intents in and snapshots out.
type PlayerSession struct {
	userID string
	logger *log.Logger
	store  *wager.Store
	round  *shuffle.Session
	send   func(*Message)
	payout float64

	mu      sync.Mutex
	pending *wager.BetRecord
	stake   float64

	cancels []func()
}

// NewPlayerSession creates the two machines for a player and wires their
// snapshots to the send callback.
func (g *GameService) NewPlayerSession(ctx context.Context, userID string, send func(*Message)) (*PlayerSession, error) {
	gameCfg, err := g.cfg.GameConfig()
	if err != nil {
		return nil, fmt.Errorf("building game config: %w", err)
	}

	store := wager.NewStore(g.logger,
		wager.WithStartingBalance(g.cfg.Wager.StartingBalance),
		wager.WithCurrency(g.cfg.Wager.Currency),
		wager.WithBetStep(g.cfg.Wager.MinBetStep),
	)
	// Push the opening balance through the store so the default bet seeds.
	store.UpdateBalance(g.cfg.Wager.StartingBalance, g.cfg.Wager.Currency)
	round, err := shuffle.NewSession(gameCfg, g.clock, g.NewPairs(), g.logger)
	if err != nil {
		return nil, fmt.Errorf("creating shuffle session: %w", err)
	}

	ps := &PlayerSession{
		userID: userID,
		logger: g.logger.With("player", userID),
		store:  store,
		round:  round,
		send:   send,
		payout: g.cfg.Wager.PayoutMultiplier,
	}

	round.SetMotionObserver(func(f shuffle.MotionFrame) {
		msg, err := NewMessage(MessageTypeMotion, MotionData{
			Swap:     f.Swap,
			Slot:     int(f.Slot),
			From:     f.From,
			To:       f.To,
			Progress: f.Progress,
		})
		if err != nil {
			return
		}
		ps.send(msg)
	})

	ps.cancels = append(ps.cancels, store.Subscribe(func(snap wager.Snapshot) {
		msg, err := NewMessage(MessageTypeWagerState, WagerStateFromSnapshot(snap))
		if err != nil {
			ps.logger.Error("failed to encode wager state", "error", err)
			return
		}
		ps.send(msg)
	}))
	ps.cancels = append(ps.cancels, round.Subscribe(func(snap shuffle.Snapshot) {
		if snap.Phase == shuffle.PhaseResolving {
			ps.settle(snap)
		}
		msg, err := NewMessage(MessageTypeRoundState, RoundStateFromSnapshot(snap))
		if err != nil {
			ps.logger.Error("failed to encode round state", "error", err)
			return
		}
		ps.send(msg)
	}))

	ps.logger.Info("player session created",
		"balance", g.cfg.Wager.StartingBalance, "currency", g.cfg.Wager.Currency)
	return ps, nil
}

// Store exposes the wager machine for intent routing.
func (ps *PlayerSession) Store() *wager.Store { return ps.store }

// Round exposes the shuffle machine for intent routing.
func (ps *PlayerSession) Round() *shuffle.Session { return ps.round }

// PlaceBet reads CanBet, starts the bet lifecycle, takes the stake, and
// kicks off a round. Returns an error only for the collaborator to surface;
// the machines themselves are left valid on every path.
func (ps *PlayerSession) PlaceBet(ctx context.Context) error {
	snap := ps.store.Snapshot()
	if !snap.CanBet {
		return fmt.Errorf("cannot bet: balance %v, bet %v, in flight %v",
			snap.Balance, snap.BetAmount, snap.BetInFlight)
	}

	record := wager.BetRecord{
		Session:  ps.userID,
		Bet:      snap.BetAmount,
		Currency: snap.Currency,
	}
	if err := record.Validate(); err != nil {
		return err
	}
	if ps.round.Snapshot().Phase != shuffle.PhaseIdle {
		return fmt.Errorf("round already in progress")
	}

	ps.store.StartBetting()
	// House takes the stake up front; a win pays it back at the multiplier.
	ps.store.UpdateBalance(snap.Balance-snap.BetAmount, "")

	ps.mu.Lock()
	ps.pending = &record
	ps.stake = record.Bet
	ps.mu.Unlock()

	if !ps.round.Start(ctx) {
		ps.mu.Lock()
		ps.pending = nil
		ps.mu.Unlock()
		ps.store.UpdateBalance(snap.Balance, "")
		ps.store.BetError(fmt.Errorf("round failed to start"))
		return fmt.Errorf("round failed to start")
	}

	ps.logger.Info("bet placed", "bet", record.Bet, "currency", record.Currency)
	return nil
}

// settle confirms the pending wager against a resolved round. Runs inside
// the round's snapshot notification, before the resolve snapshot is
// forwarded to the client.
func (ps *PlayerSession) settle(snap shuffle.Snapshot) {
	ps.mu.Lock()
	record := ps.pending
	stake := ps.stake
	ps.pending = nil
	ps.mu.Unlock()
	if record == nil {
		return // practice round, nothing staked
	}

	if snap.Won {
		winnings := stake * ps.payout
		ps.store.UpdateBalance(ps.store.Snapshot().Balance+winnings, "")
		ps.logger.Info("wager won", "stake", stake, "winnings", winnings)
	} else {
		ps.logger.Info("wager lost", "stake", stake)
	}
	ps.store.ConfirmBet(*record)
}

// RefreshBalance re-sends the current wager state on request.
func (ps *PlayerSession) RefreshBalance() {
	msg, err := NewMessage(MessageTypeWagerState, WagerStateFromSnapshot(ps.store.Snapshot()))
	if err != nil {
		ps.logger.Error("failed to encode wager state", "error", err)
		return
	}
	ps.send(msg)
}

// StartRound starts a practice round with no stake. Out-of-phase starts
// are silently ignored, matching the engine contract.
func (ps *PlayerSession) StartRound(ctx context.Context) {
	ps.round.Start(ctx)
}

// SelectCup forwards the player's choice. Out-of-phase selections are
// silently ignored, matching the engine contract.
func (ps *PlayerSession) SelectCup(ctx context.Context, position int) {
	ps.round.Select(ctx, position)
}

// Close cancels the snapshot subscriptions.
func (ps *PlayerSession) Close() {
	for _, cancel := range ps.cancels {
		cancel()
	}
}
