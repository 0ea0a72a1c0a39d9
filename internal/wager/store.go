// Package wager implements the wagering state machine: balance, bet sizing
// and the bet lifecycle, with derived eligibility flags and snapshot
// notification. The store never rejects input; out-of-range amounts are
// clamped and out-of-phase intents are ignored, so it always sits in a
// valid state.
package wager

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/lox/shellgame/internal/pubsub"
)

// DefaultBetSeed is the one-time convenience bet applied when a balance
// arrives while the bet amount is still zero.
const DefaultBetSeed = 10

// DefaultBetStep is the increment used by IncreaseBet/DecreaseBet.
const DefaultBetStep = 10

// DefaultStartingBalance is the balance a fresh store is created with.
const DefaultStartingBalance = 1000

// BetRecord is the wager handed to the enclosing application when a bet is
// placed, and stored back as the last outcome on confirmation. The store
// treats it as opaque.
type BetRecord struct {
	Session  string  `json:"session"`
	Bet      float64 `json:"bet"`
	Currency string  `json:"currency"`
}

// Validate checks the record at the boundary where a collaborator builds it.
func (r BetRecord) Validate() error {
	if r.Session == "" {
		return fmt.Errorf("bet record missing session")
	}
	if r.Bet <= 0 {
		return fmt.Errorf("bet record amount must be positive, got %v", r.Bet)
	}
	return nil
}

// Snapshot is the full wager state delivered to subscribers. The Can* and
// IsAuthenticated fields are derived from the others at snapshot time.
type Snapshot struct {
	SessionToken    string
	UserID          string
	ProviderID      string
	Balance         float64
	Currency        string
	BetAmount       float64
	BetInFlight     bool
	LastOutcome     *BetRecord
	Connected       bool
	ConnectionError string

	IsAuthenticated bool
	CanBet          bool
	CanIncrease     bool
	CanDecrease     bool
}

// AuthPolicy decides whether the current state counts as authenticated.
// Real authorization is expected to be gated upstream; the default policy
// reports true unconditionally.
type AuthPolicy func(Snapshot) bool

// AllowAll is the default AuthPolicy. It matches the historical behavior of
// always reporting authenticated; integrators who need a real gate must
// install their own policy.
func AllowAll(Snapshot) bool { return true }

// Store owns the wager state. It is a single-writer structure: all mutation
// goes through its methods, each of which notifies subscribers with a fresh
// snapshot before returning.
type Store struct {
	mu     sync.Mutex
	state  Snapshot
	step   float64
	auth   AuthPolicy
	broker *pubsub.Broker[Snapshot]
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithAuthPolicy installs a custom authentication policy.
func WithAuthPolicy(p AuthPolicy) Option {
	return func(s *Store) { s.auth = p }
}

// WithStartingBalance overrides the initial balance.
func WithStartingBalance(balance float64) Option {
	return func(s *Store) { s.state.Balance = max(0, balance) }
}

// WithBetStep overrides the increase/decrease granularity.
func WithBetStep(step float64) Option {
	return func(s *Store) {
		if step > 0 {
			s.step = step
		}
	}
}

// WithCurrency sets the initial currency code.
func WithCurrency(code string) Option {
	return func(s *Store) { s.state.Currency = code }
}

// NewStore creates a store with the default lifecycle state: balance 1000,
// bet 0, connected.
func NewStore(logger *log.Logger, opts ...Option) *Store {
	s := &Store{
		state: Snapshot{
			Balance:   DefaultStartingBalance,
			Currency:  "USD",
			Connected: true,
		},
		step:   DefaultBetStep,
		auth:   AllowAll,
		broker: pubsub.NewBroker[Snapshot](),
		logger: logger.WithPrefix("wager"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers fn for snapshot notifications and returns a cancel
// func. Notification order is subscription order.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	return s.broker.Subscribe(fn)
}

// Snapshot returns the current state with derived flags populated.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	snap := s.state
	snap.IsAuthenticated = s.auth(s.state)
	snap.CanBet = snap.IsAuthenticated && snap.Connected &&
		snap.Balance > 0 &&
		snap.BetAmount > 0 && snap.BetAmount <= snap.Balance &&
		!snap.BetInFlight
	snap.CanIncrease = !snap.BetInFlight && snap.BetAmount < snap.Balance
	snap.CanDecrease = !snap.BetInFlight && snap.BetAmount > 0
	return snap
}

func (s *Store) notifyLocked() Snapshot {
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.broker.Publish(snap)
	s.mu.Lock()
	return snap
}

// UpdateBalance sets the balance and, when given a non-empty code, the
// currency. If no bet amount exists yet and the new balance is positive the
// bet is seeded to min(DefaultBetSeed, balance); once a nonzero bet exists
// the seed never reapplies.
func (s *Store) UpdateBalance(balance float64, currency string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Balance = max(0, balance)
	if currency != "" {
		s.state.Currency = currency
	}
	if s.state.BetAmount == 0 && s.state.Balance > 0 {
		s.state.BetAmount = min(DefaultBetSeed, s.state.Balance)
	}
	// An existing bet can exceed a shrunken balance; pull it back in range.
	s.state.BetAmount = clamp(s.state.BetAmount, 0, s.state.Balance)

	s.notifyLocked()
}

// SetBetAmount stores amount clamped to [0, balance]. Invalid ranges are
// silently corrected, never rejected.
func (s *Store) SetBetAmount(amount float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.BetAmount = clamp(amount, 0, s.state.Balance)
	s.notifyLocked()
}

// IncreaseBet raises the bet by the configured step, inheriting the clamp.
func (s *Store) IncreaseBet() {
	s.SetBetAmount(s.Snapshot().BetAmount + s.step)
}

// DecreaseBet lowers the bet by the configured step, inheriting the clamp.
func (s *Store) DecreaseBet() {
	s.SetBetAmount(s.Snapshot().BetAmount - s.step)
}

// SetMaxBet sets the bet amount to the full balance.
func (s *Store) SetMaxBet() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.BetAmount = s.state.Balance
	s.notifyLocked()
}

// SetIdentity merges the supplied identity fields; empty fields are left
// untouched. The currency code is stored as-is.
func (s *Store) SetIdentity(userID, providerID, currency string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if userID != "" {
		s.state.UserID = userID
	}
	if providerID != "" {
		s.state.ProviderID = providerID
	}
	if currency != "" {
		s.state.Currency = currency
	}
	s.notifyLocked()
}

// SetSession stores an opaque session token. No local validation; token
// issuance and checking belong to the external identity provider.
func (s *Store) SetSession(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.SessionToken = token
	s.notifyLocked()
}

// StartBetting marks a bet as in flight. The caller must follow up with
// exactly one of ConfirmBet or BetError; the store enforces no timeout, so
// a caller that never terminates the bet leaves the store in flight.
func (s *Store) StartBetting() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.BetInFlight = true
	s.notifyLocked()
}

// ConfirmBet records the outcome and ends the in-flight window.
func (s *Store) ConfirmBet(record BetRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.LastOutcome = &record
	s.state.BetInFlight = false
	s.notifyLocked()
}

// BetError ends the in-flight window after an upstream failure. The balance
// is left untouched; the failure is logged, not fatal.
func (s *Store) BetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Warn("bet failed", "error", err, "bet", s.state.BetAmount)
	s.state.BetInFlight = false
	s.notifyLocked()
}

// SetConnected updates connectivity. Reconnecting clears any stored
// connection error, preserving the connected-implies-no-error invariant.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Connected = connected
	if connected {
		s.state.ConnectionError = ""
	}
	s.notifyLocked()
}

// SetConnectionError records a connectivity failure and forces the store
// into the disconnected state.
func (s *Store) SetConnectionError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ConnectionError = err.Error()
	s.state.Connected = false
	s.notifyLocked()
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
