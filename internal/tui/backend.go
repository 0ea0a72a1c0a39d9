package tui

import (
	"context"
	"encoding/json"

	"github.com/charmbracelet/log"

	"github.com/lox/shellgame/internal/server"
)

// StateUpdate is one decoded server-to-client message. Exactly one field
// is non-nil per update.
type StateUpdate struct {
	Auth   *server.AuthResponseData
	Wager  *server.WagerStateData
	Round  *server.RoundStateData
	Motion *server.MotionData
	Err    *server.ErrorData
}

// Backend is what the TUI talks to: either a live WebSocket connection or
// an in-process game service. Intent methods are fire-and-forget; all
// resulting state arrives on Updates.
type Backend interface {
	SetBet(amount float64) error
	IncreaseBet() error
	DecreaseBet() error
	MaxBet() error
	PlaceBet() error
	StartRound() error
	SelectCup(position int) error
	RefreshBalance() error
	Updates() <-chan StateUpdate
	Close() error
}

// DecodeUpdate converts a wire message into a StateUpdate. Unknown message
// types return ok=false and are dropped by callers.
func DecodeUpdate(msg *server.Message) (StateUpdate, bool) {
	switch msg.Type {
	case server.MessageTypeAuthResponse:
		var data server.AuthResponseData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return StateUpdate{}, false
		}
		return StateUpdate{Auth: &data}, true

	case server.MessageTypeWagerState:
		var data server.WagerStateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return StateUpdate{}, false
		}
		return StateUpdate{Wager: &data}, true

	case server.MessageTypeRoundState:
		var data server.RoundStateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return StateUpdate{}, false
		}
		return StateUpdate{Round: &data}, true

	case server.MessageTypeMotion:
		var data server.MotionData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return StateUpdate{}, false
		}
		return StateUpdate{Motion: &data}, true

	case server.MessageTypeError:
		var data server.ErrorData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			return StateUpdate{}, false
		}
		return StateUpdate{Err: &data}, true

	default:
		return StateUpdate{}, false
	}
}

// LocalBackend drives an in-process player session through the same wire
// messages a server would send, so the TUI behaves identically in demo
// mode and network mode.
type LocalBackend struct {
	ctx     context.Context
	cancel  context.CancelFunc
	player  *server.PlayerSession
	logger  *log.Logger
	updates chan StateUpdate
}

// NewLocalBackend builds a player session on the given game service and
// subscribes the backend to its outgoing messages.
func NewLocalBackend(svc *server.GameService, playerName string, logger *log.Logger) (*LocalBackend, error) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &LocalBackend{
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.WithPrefix("local"),
		updates: make(chan StateUpdate, 256),
	}

	ps, err := svc.NewPlayerSession(ctx, playerName, b.forward)
	if err != nil {
		cancel()
		return nil, err
	}
	b.player = ps
	ps.Store().SetIdentity(playerName, "local", "")
	ps.Store().SetConnected(true)
	ps.RefreshBalance()
	return b, nil
}

// forward decodes an outgoing wire message back into a StateUpdate. A full
// update buffer drops the frame; snapshots are self-contained so the next
// one repairs the display.
func (b *LocalBackend) forward(msg *server.Message) {
	update, ok := DecodeUpdate(msg)
	if !ok {
		return
	}
	select {
	case b.updates <- update:
	case <-b.ctx.Done():
	default:
		b.logger.Debug("update buffer full, dropping frame", "type", msg.Type)
	}
}

func (b *LocalBackend) SetBet(amount float64) error {
	b.player.Store().SetBetAmount(amount)
	return nil
}

func (b *LocalBackend) IncreaseBet() error {
	b.player.Store().IncreaseBet()
	return nil
}

func (b *LocalBackend) DecreaseBet() error {
	b.player.Store().DecreaseBet()
	return nil
}

func (b *LocalBackend) MaxBet() error {
	b.player.Store().SetMaxBet()
	return nil
}

func (b *LocalBackend) PlaceBet() error {
	return b.player.PlaceBet(b.ctx)
}

func (b *LocalBackend) StartRound() error {
	b.player.StartRound(b.ctx)
	return nil
}

func (b *LocalBackend) SelectCup(position int) error {
	b.player.SelectCup(b.ctx, position)
	return nil
}

func (b *LocalBackend) RefreshBalance() error {
	b.player.RefreshBalance()
	return nil
}

func (b *LocalBackend) Updates() <-chan StateUpdate {
	return b.updates
}

func (b *LocalBackend) Close() error {
	b.cancel()
	b.player.Close()
	return nil
}
