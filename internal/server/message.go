package server

import (
	"encoding/json"
	"time"

	"github.com/lox/shellgame/internal/shuffle"
	"github.com/lox/shellgame/internal/wager"
)

// MessageType identifies a WebSocket message.
type MessageType string

// WebSocket message type constants for the client-server protocol.
const (
	// Client to server messages
	MessageTypeAuth           MessageType = "auth"
	MessageTypeSetBet         MessageType = "set_bet"
	MessageTypeIncreaseBet    MessageType = "increase_bet"
	MessageTypeDecreaseBet    MessageType = "decrease_bet"
	MessageTypeMaxBet         MessageType = "max_bet"
	MessageTypePlaceBet       MessageType = "place_bet"
	MessageTypeRefreshBalance MessageType = "refresh_balance"
	MessageTypeStartRound     MessageType = "start_round"
	MessageTypeSelectCup      MessageType = "select_cup"

	// Server to client messages
	MessageTypeAuthResponse MessageType = "auth_response"
	MessageTypeWagerState   MessageType = "wager_state"
	MessageTypeRoundState   MessageType = "round_state"
	MessageTypeMotion       MessageType = "motion"
	MessageTypeError        MessageType = "error"
)

// String returns the string representation of the message type.
func (mt MessageType) String() string {
	return string(mt)
}

// Message is the base WebSocket message envelope.
type Message struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(messageType MessageType, data any) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		Data:      dataBytes,
		Timestamp: time.Now(),
	}, nil
}

// Client → Server payloads

type AuthData struct {
	PlayerName string `json:"playerName"`
	Token      string `json:"token,omitempty"`
	Provider   string `json:"provider,omitempty"`
	Currency   string `json:"currency,omitempty"`
}

type SetBetData struct {
	Amount float64 `json:"amount"`
}

type SelectCupData struct {
	Position int `json:"position"`
}

// Server → Client payloads

type AuthResponseData struct {
	Success  bool   `json:"success"`
	PlayerID string `json:"playerId,omitempty"`
	Error    string `json:"error,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WagerStateData is the wire projection of a wager snapshot.
type WagerStateData struct {
	Balance         float64 `json:"balance"`
	Currency        string  `json:"currency"`
	BetAmount       float64 `json:"betAmount"`
	BetInFlight     bool    `json:"betInFlight"`
	Connected       bool    `json:"connected"`
	ConnectionError string  `json:"connectionError,omitempty"`
	CanBet          bool    `json:"canBet"`
	CanIncrease     bool    `json:"canIncrease"`
	CanDecrease     bool    `json:"canDecrease"`
}

// WagerStateFromSnapshot builds the wire projection of a snapshot.
func WagerStateFromSnapshot(snap wager.Snapshot) WagerStateData {
	return WagerStateData{
		Balance:         snap.Balance,
		Currency:        snap.Currency,
		BetAmount:       snap.BetAmount,
		BetInFlight:     snap.BetInFlight,
		Connected:       snap.Connected,
		ConnectionError: snap.ConnectionError,
		CanBet:          snap.CanBet,
		CanIncrease:     snap.CanIncrease,
		CanDecrease:     snap.CanDecrease,
	}
}

// RoundStateData is the wire projection of a shuffle snapshot. The marked
// position is deliberately omitted while cups are closed: the token's
// location stays server-side and reaches the client only while a cup is
// open (the peek and the resolve).
type RoundStateData struct {
	Phase        string `json:"phase"`
	Round        int    `json:"round"`
	SlotCount    int    `json:"slotCount"`
	Revealed     []int  `json:"revealed,omitempty"`
	Token        *int   `json:"token,omitempty"`
	Score        int    `json:"score"`
	RoundsPlayed int    `json:"roundsPlayed"`
	Result       string `json:"result,omitempty"`
	Won          bool   `json:"won"`
}

// RoundStateFromSnapshot builds the wire projection of a snapshot.
func RoundStateFromSnapshot(snap shuffle.Snapshot) RoundStateData {
	data := RoundStateData{
		Phase:        snap.Phase.String(),
		Round:        snap.Round,
		SlotCount:    len(snap.Slots),
		Revealed:     snap.Revealed,
		Score:        snap.Score,
		RoundsPlayed: snap.RoundsPlayed,
		Result:       snap.Result,
		Won:          snap.Won,
	}
	// The token position ships only while its cup is actually open.
	for _, pos := range snap.Revealed {
		if pos == snap.Marked {
			marked := snap.Marked
			data.Token = &marked
			break
		}
	}
	return data
}

// MotionData is a per-frame cup motion update.
type MotionData struct {
	Swap     int     `json:"swap"`
	Slot     int     `json:"slot"`
	From     int     `json:"from"`
	To       int     `json:"to"`
	Progress float64 `json:"progress"`
}
