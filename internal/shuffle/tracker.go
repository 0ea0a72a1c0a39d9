// Package shuffle implements the shuffle-game session engine: a permutation
// tracker for the hidden token's location, a clock-driven motion scheduler,
// and the phase state machine that runs a round from reveal through
// selection.
package shuffle

import "fmt"

// SlotID is the stable identity of a container, distinct from its current
// visual position. Screen coordinates belong to the presentation layer and
// are referenced by identity only.
type SlotID int

// Tracker maintains the bijection between slot identities and positions,
// and follows the marked position (the token's location) across pairwise
// exchanges. A swap exchanges two slots' positions; the token rides along
// with whichever slot it is under. It is not safe for concurrent use; the
// session serializes all access.
type Tracker struct {
	slots  []SlotID // position -> identity
	marked int      // position currently holding the token
}

// NewTracker creates a tracker over n slots in canonical order with the
// token under position 0.
func NewTracker(n int) *Tracker {
	t := &Tracker{}
	t.Reset(n)
	return t
}

// Reset re-indexes the slots to canonical positions 0..n-1, so identity i
// sits at position i. The marked position is reset to 0; callers that carry
// the token over between rounds restore it with SetMarked.
func (t *Tracker) Reset(n int) {
	if n < 2 {
		panic(fmt.Sprintf("shuffle: tracker needs at least 2 slots, got %d", n))
	}
	t.slots = make([]SlotID, n)
	for i := range t.slots {
		t.slots[i] = SlotID(i)
	}
	t.marked = 0
}

// Len returns the number of slots.
func (t *Tracker) Len() int { return len(t.slots) }

// Slots returns a copy of the position-to-identity mapping.
func (t *Tracker) Slots() []SlotID {
	out := make([]SlotID, len(t.slots))
	copy(out, t.slots)
	return out
}

// Position returns the current position of slot id, or -1 if unknown.
func (t *Tracker) Position(id SlotID) int {
	for i, s := range t.slots {
		if s == id {
			return i
		}
	}
	return -1
}

// Marked returns the position currently holding the token.
func (t *Tracker) Marked() int { return t.marked }

// MarkedID returns the identity of the slot holding the token.
func (t *Tracker) MarkedID() SlotID { return t.slots[t.marked] }

// IsMarked reports whether position i holds the token.
func (t *Tracker) IsMarked(i int) bool { return i == t.marked }

// SetMarked moves the token to position i. Panics on an invalid index: the
// marked position must always be valid, and only the engine calls this.
func (t *Tracker) SetMarked(i int) {
	if i < 0 || i >= len(t.slots) {
		panic(fmt.Sprintf("shuffle: marked position %d out of range [0,%d)", i, len(t.slots)))
	}
	t.marked = i
}

// Swap atomically exchanges the positions of slots a and b. If the token
// sits under either slot its marked position follows to the other. The
// engine calls this only after both swap motions have completed, one swap
// at a time; interleaving logical swaps would race on the marked update.
func (t *Tracker) Swap(a, b SlotID) {
	if a == b {
		return
	}
	i, j := t.Position(a), t.Position(b)
	if i < 0 || j < 0 {
		panic(fmt.Sprintf("shuffle: swap of unknown slots %d,%d", a, b))
	}
	t.slots[i], t.slots[j] = t.slots[j], t.slots[i]
	switch t.marked {
	case i:
		t.marked = j
	case j:
		t.marked = i
	}
}
