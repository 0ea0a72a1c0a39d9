package shuffle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/shellgame/internal/pubsub"
	"github.com/lox/shellgame/internal/randutil"
)

// Phase is one state of the session's finite state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRevealing
	PhaseShuffling
	PhaseAwaitingSelection
	PhaseResolving
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRevealing:
		return "revealing"
	case PhaseShuffling:
		return "shuffling"
	case PhaseAwaitingSelection:
		return "awaiting_selection"
	case PhaseResolving:
		return "resolving"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarkPolicy controls where the token starts on rounds after the first.
type MarkPolicy int

const (
	// MarkPersist carries the token's position over from the previous
	// round's resolution. This is the historical behavior.
	MarkPersist MarkPolicy = iota
	// MarkRerandomize draws a fresh uniform position every round.
	MarkRerandomize
)

// ParseMarkPolicy converts a config string into a MarkPolicy.
func ParseMarkPolicy(s string) (MarkPolicy, error) {
	switch s {
	case "", "persist":
		return MarkPersist, nil
	case "rerandomize":
		return MarkRerandomize, nil
	default:
		return MarkPersist, fmt.Errorf("unknown mark policy %q (want persist or rerandomize)", s)
	}
}

// Config holds the tunable parameters of a session.
type Config struct {
	SlotCount      int
	SwapCount      int
	SwapDuration   time.Duration
	RevealDuration time.Duration
	ResultDuration time.Duration
	TrailInterval  time.Duration
	MarkPolicy     MarkPolicy
}

// DefaultConfig returns the standard three-cup game.
func DefaultConfig() Config {
	return Config{
		SlotCount:      3,
		SwapCount:      8,
		SwapDuration:   300 * time.Millisecond,
		RevealDuration: 900 * time.Millisecond,
		ResultDuration: 1200 * time.Millisecond,
		TrailInterval:  50 * time.Millisecond,
	}
}

// Validate checks the config for impossible values.
func (c Config) Validate() error {
	if c.SlotCount < 2 {
		return fmt.Errorf("slot count must be at least 2, got %d", c.SlotCount)
	}
	if c.SwapCount < 1 {
		return fmt.Errorf("swap count must be at least 1, got %d", c.SwapCount)
	}
	if c.SwapDuration < 0 || c.RevealDuration < 0 || c.ResultDuration < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	return nil
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SlotCount == 0 {
		c.SlotCount = def.SlotCount
	}
	if c.SwapCount == 0 {
		c.SwapCount = def.SwapCount
	}
	if c.SwapDuration == 0 {
		c.SwapDuration = def.SwapDuration
	}
	if c.RevealDuration == 0 {
		c.RevealDuration = def.RevealDuration
	}
	if c.ResultDuration == 0 {
		c.ResultDuration = def.ResultDuration
	}
	if c.TrailInterval == 0 {
		c.TrailInterval = def.TrailInterval
	}
	return c
}

// Snapshot is the full session state delivered to subscribers.
type Snapshot struct {
	Phase        Phase
	Round        int
	Slots        []SlotID
	Marked       int
	Revealed     []int
	Score        int
	RoundsPlayed int
	Result       string
	Won          bool
}

// MotionFrame is a per-frame motion update for one cup during a swap. It is
// delivered outside the snapshot channel so animation frames do not flood
// state subscribers.
type MotionFrame struct {
	Swap     int
	Slot     SlotID
	From     int
	To       int
	Progress float64
}

// TrailFrame is emitted periodically while a swap's cups are moving, for
// incidental trail effects. The emitting ticker is cleared when the owning
// swap completes.
type TrailFrame struct {
	Swap  int
	Slots [2]SlotID
}

// Session orchestrates rounds of the shuffle game: reveal the token,
// run a serial sequence of randomized swaps, then resolve the player's
// selection. Score and rounds played persist until the session is dropped.
type Session struct {
	cfg    Config
	clock  quartz.Clock
	sched  Scheduler
	pairs  randutil.PairSource
	logger *log.Logger
	broker *pubsub.Broker[Snapshot]

	motionFn func(MotionFrame)
	trailFn  func(TrailFrame)

	mu           sync.Mutex
	tracker      *Tracker
	phase        Phase
	round        int
	score        int
	roundsPlayed int
	revealed     []int
	result       string
	won          bool
	firstRound   bool
}

// NewSession creates an idle session. The clock drives all motion and
// delays; hand it quartz.NewReal() in production or a quartz.Mock in tests.
func NewSession(cfg Config, clock quartz.Clock, pairs randutil.PairSource, logger *log.Logger) (*Session, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}
	return &Session{
		cfg:        cfg,
		clock:      clock,
		sched:      NewClockScheduler(clock),
		pairs:      pairs,
		logger:     logger.WithPrefix("shuffle"),
		broker:     pubsub.NewBroker[Snapshot](),
		tracker:    NewTracker(cfg.SlotCount),
		phase:      PhaseIdle,
		firstRound: true,
	}, nil
}

// Subscribe registers fn for snapshot notifications and returns a cancel
// func. Notification order is subscription order.
func (s *Session) Subscribe(fn func(Snapshot)) func() {
	return s.broker.Subscribe(fn)
}

// SetMotionObserver installs a per-frame motion callback. Must be set
// before Start; not synchronized against a running round.
func (s *Session) SetMotionObserver(fn func(MotionFrame)) { s.motionFn = fn }

// SetTrailObserver installs the trail-effect callback. Must be set before
// Start.
func (s *Session) SetTrailObserver(fn func(TrailFrame)) { s.trailFn = fn }

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	revealed := make([]int, len(s.revealed))
	copy(revealed, s.revealed)
	return Snapshot{
		Phase:        s.phase,
		Round:        s.round,
		Slots:        s.tracker.Slots(),
		Marked:       s.tracker.Marked(),
		Revealed:     revealed,
		Score:        s.score,
		RoundsPlayed: s.roundsPlayed,
		Result:       s.result,
		Won:          s.won,
	}
}

// Start begins a new round: reveal, shuffle, await selection. It reports
// whether the round actually started; calls outside the Idle phase are
// ignored, which keeps a reset invalid while the machine is Shuffling or
// Resolving. The round runs asynchronously until ctx is cancelled or the
// round resolves.
func (s *Session) Start(ctx context.Context) bool {
	s.mu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		s.logger.Debug("start ignored", "phase", phase)
		return false
	}

	s.round++
	prevMarked := s.tracker.Marked()
	s.tracker.Reset(s.cfg.SlotCount)
	if s.firstRound || s.cfg.MarkPolicy == MarkRerandomize {
		s.tracker.SetMarked(s.pairs.IntN(s.cfg.SlotCount))
	} else {
		// The round restarts visually but the token's last known position
		// carries over from the prior resolution.
		s.tracker.SetMarked(prevMarked)
	}
	s.firstRound = false

	s.phase = PhaseRevealing
	s.revealed = []int{s.tracker.Marked()} // the peek
	s.result = ""
	s.won = false
	s.logger.Info("round started", "round", s.round, "marked", s.tracker.Marked())
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.broker.Publish(snap)

	go s.runRound(ctx)
	return true
}

// runRound drives Revealing through AwaitingSelection. Swaps are strictly
// serial: swap i+1 does not begin until swap i's logical update has
// committed, which is what keeps the marked position correct.
func (s *Session) runRound(ctx context.Context) {
	<-s.sched.Animate(ctx, s.cfg.RevealDuration, nil)
	if ctx.Err() != nil {
		return
	}

	s.transition(PhaseShuffling, func() { s.revealed = nil })

	for i := 0; i < s.cfg.SwapCount; i++ {
		if ctx.Err() != nil {
			return
		}
		a, b := s.pairs.DistinctPair(s.cfg.SlotCount)
		s.runSwap(ctx, i, SlotID(a), SlotID(b))
	}
	if ctx.Err() != nil {
		return
	}

	s.transition(PhaseAwaitingSelection, nil)
}

// runSwap animates one pairwise exchange: two motion tasks started
// together, joined, then the logical swap committed atomically.
func (s *Session) runSwap(ctx context.Context, idx int, a, b SlotID) {
	s.mu.Lock()
	posA, posB := s.tracker.Position(a), s.tracker.Position(b)
	s.mu.Unlock()

	trailCtx, stopTrail := context.WithCancel(ctx)
	if s.trailFn != nil && s.cfg.TrailInterval > 0 {
		s.clock.TickerFunc(trailCtx, s.cfg.TrailInterval, func() error {
			s.trailFn(TrailFrame{Swap: idx, Slots: [2]SlotID{a, b}})
			return nil
		}, "trail")
	}

	first := s.sched.Animate(ctx, s.cfg.SwapDuration, s.frameFn(idx, a, posA, posB))
	second := s.sched.Animate(ctx, s.cfg.SwapDuration, s.frameFn(idx, b, posB, posA))
	<-first
	<-second
	stopTrail()
	if ctx.Err() != nil {
		return
	}

	s.mu.Lock()
	s.tracker.Swap(a, b)
	s.logger.Debug("swap committed", "swap", idx, "a", a, "b", b, "marked", s.tracker.Marked())
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.broker.Publish(snap)
}

func (s *Session) frameFn(idx int, slot SlotID, from, to int) func(float64) {
	if s.motionFn == nil {
		return nil
	}
	return func(p float64) {
		s.motionFn(MotionFrame{Swap: idx, Slot: slot, From: from, To: to, Progress: p})
	}
}

// Select resolves the player's choice. Only valid while awaiting selection;
// any other phase, or an out-of-range choice, is a silent no-op so the
// contract holds even when a collaborator's disable logic is bypassed.
// Reports whether the selection was accepted.
func (s *Session) Select(ctx context.Context, choice int) bool {
	s.mu.Lock()
	if s.phase != PhaseAwaitingSelection || choice < 0 || choice >= s.tracker.Len() {
		phase := s.phase
		s.mu.Unlock()
		s.logger.Debug("selection ignored", "phase", phase, "choice", choice)
		return false
	}

	s.phase = PhaseResolving
	s.roundsPlayed++
	s.won = choice == s.tracker.Marked()
	s.revealed = []int{choice}
	if s.won {
		s.score++
		s.result = "You found it!"
	} else {
		// Show the player where the token really was.
		s.revealed = append(s.revealed, s.tracker.Marked())
		s.result = fmt.Sprintf("It was under cup %d", s.tracker.Marked()+1)
	}
	s.logger.Info("round resolved",
		"round", s.round, "choice", choice, "marked", s.tracker.Marked(),
		"won", s.won, "score", s.score, "roundsPlayed", s.roundsPlayed)
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.broker.Publish(snap)

	go func() {
		<-s.sched.Animate(ctx, s.cfg.ResultDuration, nil)
		if ctx.Err() != nil {
			return
		}
		s.transition(PhaseIdle, func() { s.revealed = nil })
	}()
	return true
}

func (s *Session) transition(phase Phase, mutate func()) {
	s.mu.Lock()
	s.logger.Debug("phase transition", "from", s.phase, "to", phase)
	s.phase = phase
	if mutate != nil {
		mutate()
	}
	snap := s.snapshotLocked()
	s.mu.Unlock()
	s.broker.Publish(snap)
}
