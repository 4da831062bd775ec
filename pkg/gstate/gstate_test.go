package gstate

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := State{MovePending: true, MoveID: 42, Orphans: 3, MovePair: [2]uint32{7, 8}}
	got := Decode(Encode(s))
	if got != s {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, s)
	}
}

func TestZeroStateIsZero(t *testing.T) {
	if !(State{}).IsZero() {
		t.Fatalf("zero-value State should report IsZero")
	}
	if (State{Orphans: 1}).IsZero() {
		t.Fatalf("nonzero orphan count should not report IsZero")
	}
}

func TestPrepOrphansBracketCancelsToZero(t *testing.T) {
	acc := NewAccumulator(State{})

	acc.PrepOrphans(1)
	if acc.Current().IsZero() {
		t.Fatalf("expected nonzero state mid-window")
	}

	acc.PrepOrphans(1) // closing bracket XORs the same delta back out
	if !acc.Current().IsZero() {
		t.Fatalf("expected the bracket to cancel back to zero, got %+v", acc.Current())
	}
}

func TestMovePrepAndClear(t *testing.T) {
	acc := NewAccumulator(State{})
	acc.PrepMove(5, [2]uint32{1, 2})
	if acc.Current().IsZero() {
		t.Fatalf("expected pending move to be nonzero")
	}
	acc.ClearMove()
	if !acc.Current().IsZero() {
		t.Fatalf("expected state to be zero after ClearMove, got %+v", acc.Current())
	}
}

func TestDeltaZeroUntilChanged(t *testing.T) {
	acc := NewAccumulator(State{})
	if !acc.Delta().IsZero() {
		t.Fatalf("fresh accumulator should have zero delta")
	}

	acc.PrepOrphans(1)
	if acc.Delta().IsZero() {
		t.Fatalf("expected nonzero delta after PrepOrphans")
	}

	acc.Committed()
	if !acc.Delta().IsZero() {
		t.Fatalf("expected zero delta immediately after Committed")
	}
}

func TestXORReconstructsFromMultipleTags(t *testing.T) {
	// Two independently-committed deltas should XOR back to the
	// combined live state, modelling multiple MOVESTATE tags found
	// while scanning the root chain at mount.
	a := State{Orphans: 1}
	b := State{MovePending: true, MoveID: 9, MovePair: [2]uint32{3, 4}}

	combined := XOR(a, b)
	if combined.Orphans != 1 || !combined.MovePending || combined.MoveID != 9 {
		t.Fatalf("unexpected combined state: %+v", combined)
	}
}
