package shuffle

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lox/shellgame/internal/randutil"
)

func newTestSession(t *testing.T, cfg Config, pairs randutil.PairSource) (*Session, *quartz.Mock) {
	t.Helper()
	mock := quartz.NewMock(t)
	s, err := NewSession(cfg, mock, pairs, log.New(io.Discard))
	require.NoError(t, err)
	return s, mock
}

// advanceUntil fast-forwards the mock clock event by event until the
// session reaches the wanted phase.
func advanceUntil(t *testing.T, mock *quartz.Mock, s *Session, phase Phase) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := 0; i < 100000; i++ {
		if s.Snapshot().Phase == phase {
			return
		}
		if d, ok := mock.Peek(); ok {
			mock.Advance(d).MustWait(ctx)
			continue
		}
		// No timer scheduled yet; let the round goroutine catch up.
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("session never reached phase %s (stuck in %s)", phase, s.Snapshot().Phase)
}

func TestSession_ScriptedRound(t *testing.T) {
	// Token starts under position 1; swaps (0,1) then (1,2) carry the cup
	// holding it to position 2.
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 1}, {1, 2}}, Mark: 1}
	s, mock := newTestSession(t, Config{SwapCount: 2}, pairs)
	ctx := context.Background()

	require.True(t, s.Start(ctx))
	snap := s.Snapshot()
	assert.Equal(t, PhaseRevealing, snap.Phase)
	assert.Equal(t, 1, snap.Marked)
	assert.Equal(t, []int{1}, snap.Revealed, "the peek opens the marked cup")

	advanceUntil(t, mock, s, PhaseAwaitingSelection)
	snap = s.Snapshot()
	assert.Equal(t, 2, snap.Marked)
	assert.Empty(t, snap.Revealed)

	// Correct guess: score and rounds both increment.
	require.True(t, s.Select(ctx, 2))
	snap = s.Snapshot()
	assert.Equal(t, PhaseResolving, snap.Phase)
	assert.True(t, snap.Won)
	assert.Equal(t, 1, snap.Score)
	assert.Equal(t, 1, snap.RoundsPlayed)
	assert.Equal(t, "You found it!", snap.Result)
	assert.Equal(t, []int{2}, snap.Revealed)

	advanceUntil(t, mock, s, PhaseIdle)
}

func TestSession_WrongSelectionRevealsMarked(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 2}}, Mark: 0}
	s, mock := newTestSession(t, Config{SwapCount: 1}, pairs)
	ctx := context.Background()

	require.True(t, s.Start(ctx))
	advanceUntil(t, mock, s, PhaseAwaitingSelection)

	marked := s.Snapshot().Marked
	wrong := (marked + 1) % 3
	require.True(t, s.Select(ctx, wrong))

	snap := s.Snapshot()
	assert.False(t, snap.Won)
	assert.Equal(t, 0, snap.Score, "only roundsPlayed increments on a miss")
	assert.Equal(t, 1, snap.RoundsPlayed)
	assert.Equal(t, []int{wrong, marked}, snap.Revealed, "the true location is shown on a miss")
	assert.NotEmpty(t, snap.Result)
}

func TestSession_SelectOutsideAwaitingSelectionIsNoop(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 1}}, Mark: 0}
	s, mock := newTestSession(t, Config{SwapCount: 1}, pairs)
	ctx := context.Background()

	// Idle: nothing to select.
	assert.False(t, s.Select(ctx, 0))
	assert.Equal(t, 0, s.Snapshot().RoundsPlayed)

	// Revealing: still a no-op.
	require.True(t, s.Start(ctx))
	assert.False(t, s.Select(ctx, 0))
	assert.Equal(t, 0, s.Snapshot().RoundsPlayed)

	advanceUntil(t, mock, s, PhaseAwaitingSelection)

	// Resolving: a second selection while the first resolves is ignored.
	require.True(t, s.Select(ctx, 0))
	assert.False(t, s.Select(ctx, 1))
	assert.Equal(t, 1, s.Snapshot().RoundsPlayed)
}

func TestSession_SelectOutOfRangeIsNoop(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 1}}, Mark: 0}
	s, mock := newTestSession(t, Config{SwapCount: 1}, pairs)
	ctx := context.Background()

	require.True(t, s.Start(ctx))
	advanceUntil(t, mock, s, PhaseAwaitingSelection)

	assert.False(t, s.Select(ctx, -1))
	assert.False(t, s.Select(ctx, 3))
	assert.Equal(t, 0, s.Snapshot().RoundsPlayed)
}

func TestSession_StartIgnoredWhileRoundRunning(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 1}}, Mark: 0}
	s, mock := newTestSession(t, Config{SwapCount: 1}, pairs)
	ctx := context.Background()

	require.True(t, s.Start(ctx))
	assert.False(t, s.Start(ctx), "start is only valid from Idle")

	advanceUntil(t, mock, s, PhaseAwaitingSelection)
	assert.False(t, s.Start(ctx))
	assert.Equal(t, 1, s.Snapshot().Round)
}

func TestSession_MarkPersistsAcrossRounds(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 1}, {1, 2}}, Mark: 1}
	s, mock := newTestSession(t, Config{SwapCount: 2, MarkPolicy: MarkPersist}, pairs)
	ctx := context.Background()

	require.True(t, s.Start(ctx))
	advanceUntil(t, mock, s, PhaseAwaitingSelection)
	finalMarked := s.Snapshot().Marked
	require.True(t, s.Select(ctx, finalMarked))
	advanceUntil(t, mock, s, PhaseIdle)

	// The next round restarts visually, but the token stays where the
	// last round left it.
	require.True(t, s.Start(ctx))
	assert.Equal(t, finalMarked, s.Snapshot().Marked)
	assert.Equal(t, 2, s.Snapshot().Round)
	assert.Equal(t, 1, s.Snapshot().Score, "score persists across rounds")
	advanceUntil(t, mock, s, PhaseAwaitingSelection)
}

func TestSession_MarkRerandomizePolicy(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 1}}, Mark: 2}
	s, mock := newTestSession(t, Config{SwapCount: 1, MarkPolicy: MarkRerandomize}, pairs)
	ctx := context.Background()

	require.True(t, s.Start(ctx))
	advanceUntil(t, mock, s, PhaseAwaitingSelection)
	require.True(t, s.Select(ctx, 0))
	advanceUntil(t, mock, s, PhaseIdle)

	require.True(t, s.Start(ctx))
	// Fresh uniform draw each round: the scripted source always says 2.
	assert.Equal(t, 2, s.Snapshot().Marked)
}

func TestSession_SnapshotsStayPermutations(t *testing.T) {
	pairs := randutil.NewPairSource(randutil.New(5))
	s, mock := newTestSession(t, Config{SwapCount: 8}, pairs)
	ctx := context.Background()

	var mu sync.Mutex
	var snaps []Snapshot
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		snaps = append(snaps, snap)
		mu.Unlock()
	})

	require.True(t, s.Start(ctx))
	advanceUntil(t, mock, s, PhaseAwaitingSelection)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, snaps)
	for _, snap := range snaps {
		seen := map[SlotID]bool{}
		for _, id := range snap.Slots {
			require.False(t, seen[id], "duplicate slot identity in snapshot")
			seen[id] = true
		}
		require.Len(t, seen, 3)
		require.GreaterOrEqual(t, snap.Marked, 0)
		require.Less(t, snap.Marked, 3)
	}
}

func TestSession_MotionFramesJoinBeforeCommit(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 2}}, Mark: 0}
	s, mock := newTestSession(t, Config{SwapCount: 1}, pairs)
	ctx := context.Background()

	var mu sync.Mutex
	frames := map[SlotID][]float64{}
	s.SetMotionObserver(func(f MotionFrame) {
		mu.Lock()
		frames[f.Slot] = append(frames[f.Slot], f.Progress)
		mu.Unlock()
	})

	require.True(t, s.Start(ctx))
	advanceUntil(t, mock, s, PhaseAwaitingSelection)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, frames, 2, "both cups of the swap must animate")
	for slot, ps := range frames {
		require.NotEmpty(t, ps)
		assert.Equal(t, 1.0, ps[len(ps)-1], "slot %d motion must finish before commit", slot)
	}
}

func TestSession_TrailTickerClearedAfterSwap(t *testing.T) {
	pairs := &randutil.ScriptedPairs{Pairs: [][2]int{{0, 1}}, Mark: 0}
	s, mock := newTestSession(t, Config{SwapCount: 1, TrailInterval: 20 * time.Millisecond}, pairs)
	ctx := context.Background()

	var mu sync.Mutex
	trailCount := 0
	s.SetTrailObserver(func(TrailFrame) {
		mu.Lock()
		trailCount++
		mu.Unlock()
	})

	require.True(t, s.Start(ctx))
	advanceUntil(t, mock, s, PhaseAwaitingSelection)

	mu.Lock()
	during := trailCount
	mu.Unlock()
	require.Greater(t, during, 0, "trail ticker fires while the swap runs")

	// With the swap complete its trail ticker is stopped; advancing time
	// further must not produce more trail frames.
	for i := 0; i < 10; i++ {
		mock.Advance(20 * time.Millisecond).MustWait(ctx)
	}
	mu.Lock()
	after := trailCount
	mu.Unlock()
	assert.Equal(t, during, after)
}

func TestSession_ConfigValidation(t *testing.T) {
	mock := quartz.NewMock(t)
	logger := log.New(io.Discard)

	_, err := NewSession(Config{SlotCount: 1, SwapCount: 1}, mock, nil, logger)
	assert.Error(t, err)

	_, err = NewSession(Config{SlotCount: 3, SwapCount: -1}, mock, nil, logger)
	assert.Error(t, err)

	s, err := NewSession(Config{}, mock, nil, logger)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, s.Snapshot().Phase)
}

func TestParseMarkPolicy(t *testing.T) {
	p, err := ParseMarkPolicy("")
	require.NoError(t, err)
	assert.Equal(t, MarkPersist, p)

	p, err = ParseMarkPolicy("persist")
	require.NoError(t, err)
	assert.Equal(t, MarkPersist, p)

	p, err = ParseMarkPolicy("rerandomize")
	require.NoError(t, err)
	assert.Equal(t, MarkRerandomize, p)

	_, err = ParseMarkPolicy("bogus")
	assert.Error(t, err)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "awaiting_selection", PhaseAwaitingSelection.String())
	assert.Equal(t, "phase(99)", Phase(99).String())
}
