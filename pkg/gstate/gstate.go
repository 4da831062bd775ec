// Package gstate implements the 12-byte XOR-accumulated global state
// described in spec §4.5/§3: a record tracking in-flight orphans and a
// pending cross-directory move, carried inside metadata commits so that
// a crash mid-rename or mid-relocation leaves a recoverable trace.
//
// Implementation note (see DESIGN.md "Open Question decisions"): rather
// than scatter MOVESTATE deltas across whichever pair a given operation
// happens to commit to and require mount to walk the entire directory
// tree to recombine them, this engine always carries the live value as
// a single MOVESTATE tag in the root metadata pair, written there by a
// dedicated gstate-only commit (pkg/lfs's commitGState). pkg/lfs makes
// that commit during mount recovery and around a directory Remove;
// Rename's pending-move state is not written to disk. This
// keeps mount-time reconstruction to a single fetch of the root chain
// while preserving every observable invariant in spec §4.5 (G1-G3).
package gstate

import "github.com/flashfs/flashfs/pkg/tag"

// State is the decoded gstate record: a tag-shaped word (Type1 nonzero
// means a move is pending, ID names the pending move's source id, Size
// holds the live orphan count) plus the two pair fields.
type State struct {
	MovePending bool
	MoveID      uint16
	Orphans     uint16
	MovePair    [2]uint32
}

// IsZero reports whether the state represents a fully consistent
// filesystem (spec invariant G1: "Live gstate is zero iff the
// filesystem is consistent").
func (s State) IsZero() bool {
	return !s.MovePending && s.Orphans == 0 && s.MoveID == 0 &&
		s.MovePair[0] == 0 && s.MovePair[1] == 0
}

// Encode packs s into its 12-byte on-disk form: a tag-shaped word
// (type1/id/size) followed by the two little-endian pair block
// addresses.
func Encode(s State) [12]byte {
	var t tag.Tag
	t.Valid = true
	t.ID = s.MoveID & tag.MaxID
	t.Size = s.Orphans & 0x3ff
	if s.MovePending {
		t.Type1 = tag.Type1MoveState
	}

	var out [12]byte
	v := tag.Encode(t)
	out[0] = byte(v)
	out[1] = byte(v >> 8)
	out[2] = byte(v >> 16)
	out[3] = byte(v >> 24)
	tag.PutLE32(out[4:8], s.MovePair[0])
	tag.PutLE32(out[8:12], s.MovePair[1])
	return out
}

// Decode unpacks a 12-byte gstate record.
func Decode(b [12]byte) State {
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	t := tag.Decode(v)

	return State{
		MovePending: t.Type1 == tag.Type1MoveState,
		MoveID:      t.ID,
		Orphans:     t.Size,
		MovePair:    [2]uint32{tag.FromLE32(b[4:8]), tag.FromLE32(b[8:12])},
	}
}

// XOR combines two states field-by-field via the 12-byte XOR
// accumulation rule in spec §4.5. Used both to fold multiple on-disk
// MOVESTATE tags together and, internally, to compute the delta between
// two in-memory snapshots.
func XOR(a, b State) State {
	ea, eb := Encode(a), Encode(b)
	var out [12]byte
	for i := range out {
		out[i] = ea[i] ^ eb[i]
	}
	return Decode(out)
}

// Accumulator tracks the filesystem's desired gstate against the value
// currently reflected on disk, so that each commit can be handed the
// precise delta to XOR in (spec §4.5: "every commit writes a MOVESTATE
// tag whose value, XORed with all other MOVESTATE tags on disk, equals
// the live gstate").
type Accumulator struct {
	disk  State
	local State
}

// NewAccumulator seeds an accumulator from the value recovered at mount
// (both disk and local start equal — nothing pending yet).
func NewAccumulator(mounted State) *Accumulator {
	return &Accumulator{disk: mounted, local: mounted}
}

// Current returns the live, in-memory gstate.
func (a *Accumulator) Current() State {
	return a.local
}

// PrepOrphans XORs delta into the live orphan count. delta is typically
// ±1 (spec §4.5's prep_orphans(±n)); pairs of +1/-1 calls bracketing a
// risky window cancel exactly (invariant G2) because XOR is its own
// inverse.
func (a *Accumulator) PrepOrphans(delta uint16) {
	a.local.Orphans ^= delta
}

// PrepMove records a pending cross-directory move: a CREATE has landed
// at (pair, id) but the matching DELETE at the source hasn't yet
// committed.
func (a *Accumulator) PrepMove(id uint16, pair [2]uint32) {
	a.local.MovePending = true
	a.local.MoveID = id
	a.local.MovePair = pair
}

// ClearMove cancels a pending move once its DELETE has committed.
func (a *Accumulator) ClearMove() {
	a.local.MovePending = false
	a.local.MoveID = 0
	a.local.MovePair = [2]uint32{0, 0}
}

// Delta returns the value the next commit should XOR in (disk XOR
// local) to bring the on-disk accumulation in line with the live state.
// A zero Delta means there is nothing to commit.
func (a *Accumulator) Delta() State {
	return XOR(a.disk, a.local)
}

// Committed marks the current local state as now reflected on disk,
// called once the commit carrying Delta() has been CRC-verified.
func (a *Accumulator) Committed() {
	a.disk = a.local
}
