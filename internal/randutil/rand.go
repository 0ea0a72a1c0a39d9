package randutil

import rand "math/rand/v2"

const (
	goldenRatio64 = 0x9e3779b97f4a7c15
)

// New returns a *rand.Rand seeded deterministically from the provided int64.
// The helper centralises how we derive the two 64-bit seeds required by
// rand/v2 so that all call sites get reproducible sequences.
func New(seed int64) *rand.Rand {
	u := uint64(seed)
	return rand.New(rand.NewPCG(mix(u), mix(u+goldenRatio64)))
}

func mix(x uint64) uint64 {
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return x
}

// PairSource draws two distinct indices in [0, n). The shuffle engine takes
// one of these so tests can script the exact swap sequence.
type PairSource interface {
	DistinctPair(n int) (int, int)
	IntN(n int) int
}

// randSource adapts a *rand.Rand to PairSource.
type randSource struct {
	r *rand.Rand
}

// NewPairSource returns a PairSource backed by r. A nil r uses the shared
// global generator.
func NewPairSource(r *rand.Rand) PairSource {
	return &randSource{r: r}
}

func (s *randSource) IntN(n int) int {
	if s.r == nil {
		return rand.IntN(n)
	}
	return s.r.IntN(n)
}

// DistinctPair returns two distinct uniform indices in [0, n). Panics if
// n < 2, matching the rand.IntN convention for impossible draws.
func (s *randSource) DistinctPair(n int) (int, int) {
	if n < 2 {
		panic("randutil: DistinctPair requires n >= 2")
	}
	a := s.IntN(n)
	b := s.IntN(n - 1)
	if b >= a {
		b++
	}
	return a, b
}

// ScriptedPairs replays a fixed sequence of pairs, then wraps around. Tests
// use it to drive the shuffle engine through known swaps; Mark is returned
// from every IntN draw, which pins the engine's initial marked-slot pick.
type ScriptedPairs struct {
	Pairs [][2]int
	Mark  int
	next  int
}

func (s *ScriptedPairs) DistinctPair(n int) (int, int) {
	p := s.Pairs[s.next%len(s.Pairs)]
	s.next++
	return p[0], p[1]
}

func (s *ScriptedPairs) IntN(n int) int {
	return s.Mark % n
}
