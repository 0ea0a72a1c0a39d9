package wager

import (
	"errors"
	"io"
	"math/rand/v2"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	return NewStore(log.New(io.Discard), opts...)
}

func TestNewStore_Defaults(t *testing.T) {
	s := newTestStore(t)
	snap := s.Snapshot()

	assert.Equal(t, float64(1000), snap.Balance)
	assert.Equal(t, float64(0), snap.BetAmount)
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.ConnectionError)
	assert.False(t, snap.BetInFlight)
	assert.Nil(t, snap.LastOutcome)
}

func TestUpdateBalance_SeedsDefaultBet(t *testing.T) {
	// With bet 0, a balance update seeds the default bet of 10.
	s := newTestStore(t)
	s.UpdateBalance(1000, "")

	assert.Equal(t, float64(10), s.Snapshot().BetAmount)
}

func TestUpdateBalance_SeedCappedByBalance(t *testing.T) {
	s := newTestStore(t)
	s.UpdateBalance(4, "")

	assert.Equal(t, float64(4), s.Snapshot().BetAmount)
}

func TestUpdateBalance_SeedNotReappliedOnceBetExists(t *testing.T) {
	s := newTestStore(t)
	s.SetBetAmount(50)
	s.UpdateBalance(2000, "")

	assert.Equal(t, float64(50), s.Snapshot().BetAmount)
}

func TestUpdateBalance_CurrencyOptional(t *testing.T) {
	s := newTestStore(t)
	s.UpdateBalance(100, "EUR")
	assert.Equal(t, "EUR", s.Snapshot().Currency)

	s.UpdateBalance(200, "")
	assert.Equal(t, "EUR", s.Snapshot().Currency)
}

func TestUpdateBalance_ShrinkingBalanceClampsBet(t *testing.T) {
	s := newTestStore(t)
	s.SetBetAmount(800)
	s.UpdateBalance(300, "")

	assert.Equal(t, float64(300), s.Snapshot().BetAmount)
}

func TestSetBetAmount_ClampsToBalance(t *testing.T) {
	// A bet above the balance clamps to the balance instead of erroring.
	s := newTestStore(t)
	s.SetBetAmount(5000)
	assert.Equal(t, float64(1000), s.Snapshot().BetAmount)

	s.SetBetAmount(-50)
	assert.Equal(t, float64(0), s.Snapshot().BetAmount)
}

func TestBetMutators_InvariantHolds(t *testing.T) {
	// Arbitrary mutator sequences keep 0 <= bet <= balance after each call.
	s := newTestStore(t)
	r := rand.New(rand.NewPCG(1, 2))

	check := func() {
		snap := s.Snapshot()
		require.GreaterOrEqual(t, snap.BetAmount, float64(0))
		require.LessOrEqual(t, snap.BetAmount, snap.Balance)
	}

	for i := 0; i < 500; i++ {
		switch r.IntN(5) {
		case 0:
			s.SetBetAmount(float64(r.IntN(3000) - 500))
		case 1:
			s.IncreaseBet()
		case 2:
			s.DecreaseBet()
		case 3:
			s.SetMaxBet()
		case 4:
			s.UpdateBalance(float64(r.IntN(2000)), "")
		}
		check()
	}
}

func TestIncreaseDecreaseBet_StepAndClamp(t *testing.T) {
	s := newTestStore(t)
	s.SetBetAmount(995)

	s.IncreaseBet()
	assert.Equal(t, float64(1000), s.Snapshot().BetAmount)

	s.SetBetAmount(5)
	s.DecreaseBet()
	assert.Equal(t, float64(0), s.Snapshot().BetAmount)
}

func TestSetMaxBet(t *testing.T) {
	s := newTestStore(t)
	s.SetMaxBet()
	assert.Equal(t, float64(1000), s.Snapshot().BetAmount)
}

func TestSetIdentity_PartialMerge(t *testing.T) {
	s := newTestStore(t)
	s.SetIdentity("user-1", "provider-a", "GBP")
	snap := s.Snapshot()
	assert.Equal(t, "user-1", snap.UserID)
	assert.Equal(t, "provider-a", snap.ProviderID)
	assert.Equal(t, "GBP", snap.Currency)

	s.SetIdentity("", "provider-b", "")
	snap = s.Snapshot()
	assert.Equal(t, "user-1", snap.UserID)
	assert.Equal(t, "provider-b", snap.ProviderID)
	assert.Equal(t, "GBP", snap.Currency)
}

func TestSetSession_StoresOpaqueToken(t *testing.T) {
	s := newTestStore(t)
	s.SetSession("not-a-real-jwt")
	assert.Equal(t, "not-a-real-jwt", s.Snapshot().SessionToken)
}

func TestBetLifecycle_ConfirmBet(t *testing.T) {
	s := newTestStore(t)
	s.SetBetAmount(100)

	s.StartBetting()
	snap := s.Snapshot()
	assert.True(t, snap.BetInFlight)
	assert.False(t, snap.CanBet)
	assert.False(t, snap.CanIncrease)
	assert.False(t, snap.CanDecrease)

	record := BetRecord{Session: "user-1", Bet: 100, Currency: "USD"}
	s.ConfirmBet(record)
	snap = s.Snapshot()
	assert.False(t, snap.BetInFlight)
	require.NotNil(t, snap.LastOutcome)
	assert.Equal(t, record, *snap.LastOutcome)
	assert.True(t, snap.CanBet)
}

func TestBetLifecycle_BetError(t *testing.T) {
	s := newTestStore(t)
	s.SetBetAmount(100)
	s.StartBetting()

	s.BetError(errors.New("upstream rejected"))
	snap := s.Snapshot()
	assert.False(t, snap.BetInFlight)
	assert.Equal(t, float64(1000), snap.Balance, "bet error must not touch balance")
	assert.True(t, snap.CanBet, "store must be re-evaluable after a failed bet")
}

func TestCanBet_RequiresPositiveBetAndBalance(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Snapshot().CanBet, "zero bet is not placeable")

	s.SetBetAmount(10)
	assert.True(t, s.Snapshot().CanBet)

	s.UpdateBalance(0, "")
	assert.False(t, s.Snapshot().CanBet)
}

func TestCanBet_RequiresConnection(t *testing.T) {
	s := newTestStore(t)
	s.SetBetAmount(10)
	s.SetConnected(false)

	assert.False(t, s.Snapshot().CanBet)
}

func TestConnectivityInvariant(t *testing.T) {
	s := newTestStore(t)

	s.SetConnectionError(errors.New("socket closed"))
	snap := s.Snapshot()
	assert.False(t, snap.Connected)
	assert.Equal(t, "socket closed", snap.ConnectionError)

	s.SetConnected(true)
	snap = s.Snapshot()
	assert.True(t, snap.Connected)
	assert.Empty(t, snap.ConnectionError, "reconnecting must clear the stored error")
}

func TestAuthPolicy_DefaultAllowsAll(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, s.Snapshot().IsAuthenticated)
}

func TestAuthPolicy_CustomGate(t *testing.T) {
	s := newTestStore(t, WithAuthPolicy(func(snap Snapshot) bool {
		return snap.SessionToken != ""
	}))
	s.SetBetAmount(10)

	assert.False(t, s.Snapshot().IsAuthenticated)
	assert.False(t, s.Snapshot().CanBet)

	s.SetSession("token")
	assert.True(t, s.Snapshot().IsAuthenticated)
	assert.True(t, s.Snapshot().CanBet)
}

func TestMutatorsNotifySubscribers(t *testing.T) {
	s := newTestStore(t)

	var snaps []Snapshot
	s.Subscribe(func(snap Snapshot) { snaps = append(snaps, snap) })

	s.SetBetAmount(25)
	s.StartBetting()
	s.ConfirmBet(BetRecord{Session: "u", Bet: 25, Currency: "USD"})

	require.Len(t, snaps, 3)
	assert.Equal(t, float64(25), snaps[0].BetAmount)
	assert.True(t, snaps[1].BetInFlight)
	assert.False(t, snaps[2].BetInFlight)
}

func TestBetRecord_Validate(t *testing.T) {
	assert.NoError(t, BetRecord{Session: "u", Bet: 10, Currency: "USD"}.Validate())
	assert.Error(t, BetRecord{Bet: 10}.Validate())
	assert.Error(t, BetRecord{Session: "u", Bet: 0}.Validate())
}

func TestOptions(t *testing.T) {
	s := newTestStore(t,
		WithStartingBalance(500),
		WithBetStep(25),
		WithCurrency("BTC"),
	)

	snap := s.Snapshot()
	assert.Equal(t, float64(500), snap.Balance)
	assert.Equal(t, "BTC", snap.Currency)

	s.IncreaseBet()
	assert.Equal(t, float64(25), s.Snapshot().BetAmount)
}
