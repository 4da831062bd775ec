// Package alloc implements the block allocator described in spec §4.2: a
// rotating lookahead bitmap over the address space, refilled by asking
// the filesystem to walk every block reachable from a live structure.
//
// The bitmap storage itself is github.com/bits-and-blooms/bitset rather
// than a hand-rolled []uint64 — see DESIGN.md for the pack entries that
// ground this choice — while the window-sliding arithmetic
// (mapping a bit index back to an absolute block address, deciding when
// to rescan) follows the explicit group/offset decomposition style of
// the teacher's pkg/ext block-usage bitmap.
package alloc

import (
	"errors"

	"github.com/bits-and-blooms/bitset"
)

// ErrNoSpace is returned when a full device sweep finds no free block.
var ErrNoSpace = errors.New("alloc: no space left on device")

// TraverseFunc walks the blocks reachable from any live directory
// chain, CTZ list, open file, or pending-move source, calling yield for
// each of them. The allocator's refill calls it each time the window
// slides.
type TraverseFunc func(yield func(block uint32) error) error

// Allocator is the bounded-RAM lookahead allocator (spec §4.2).
type Allocator struct {
	blockCount uint32
	lookahead  uint32 // lookahead_size in bytes; window width in bits is 8x this

	off uint32 // absolute base of the current window
	size uint32 // window width in bits, <= 8*lookahead
	i    uint32 // next candidate within the window
	ack  uint32 // blocks remaining until a full device rescan is due

	bits *bitset.BitSet
}

// New creates an allocator over a device with blockCount blocks, with a
// lookahead window sized lookaheadBytes (must be > 0).
func New(blockCount, lookaheadBytes uint32) *Allocator {
	a := &Allocator{
		blockCount: blockCount,
		lookahead:  lookaheadBytes,
		ack:        blockCount,
	}
	a.resetWindow()
	return a
}

// resetWindow leaves the window empty (size 0, i at size) so the very
// first Alloc call falls straight into the rescan branch instead of
// handing out blocks 0,1,2,... from an all-clear bitmap that was never
// populated by traverse (spec §4.2's "invoke the traverse callback
// ... restart").
func (a *Allocator) resetWindow() {
	a.size = 0
	a.i = 0
	a.bits = bitset.New(0)
}

// Alloc returns the next free block, triggering a lookahead rescan (via
// traverse) when the current window is exhausted. It returns
// ErrNoSpace once ack has counted all the way down to zero without a
// window producing a free bit — i.e. every block on the device has been
// examined since the last Ack and all of them are live.
func (a *Allocator) Alloc(traverse TraverseFunc) (uint32, error) {

	for {
		for a.i < a.size {
			bit := a.i
			candidate := (a.off + bit) % a.blockCount
			a.i++
			a.ack--
			if !a.bits.Test(uint(bit)) {
				return candidate, nil
			}
		}

		if a.ack == 0 {
			return 0, ErrNoSpace
		}

		a.off = (a.off + a.size) % a.blockCount
		width := a.lookahead * 8
		if width > a.ack {
			width = a.ack
		}
		a.size = width
		a.i = 0
		a.bits = bitset.New(uint(a.size))

		if err := a.refill(traverse); err != nil {
			return 0, err
		}
	}
}

// refill walks every reachable block via traverse, setting the
// corresponding bit in the current window when a live block falls
// inside it.
func (a *Allocator) refill(traverse TraverseFunc) error {
	if traverse == nil {
		return nil
	}
	return traverse(func(block uint32) error {
		rel := (block + a.blockCount - a.off) % a.blockCount
		if rel < a.size {
			a.bits.Set(uint(rel))
		}
		return nil
	})
}

// Ack declares that every block returned by Alloc since the last Ack is
// now durably referenced; blocks from operations that completed before
// this Ack may be treated as free again once the window rotates back
// over them (spec invariant A2 — reclaiming scratch blocks from aborted
// compactions).
func (a *Allocator) Ack() {
	a.ack = a.blockCount
}
