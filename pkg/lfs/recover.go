package lfs

import (
	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// recover runs the consistency pass spec §4.5 requires at mount: finish
// an interrupted cross-directory move, then clear any leftover orphan
// count. It is idempotent — calling it against an already-consistent
// gstate (IsZero) is a no-op.
func (fs *FS) recover() error {
	state := fs.acc.Current()
	if state.IsZero() {
		return nil
	}

	if state.MovePending {
		if err := fs.finishPendingMove(state.MoveID, state.MovePair); err != nil {
			return err
		}
		fs.acc.ClearMove()
	}

	if state.Orphans != 0 {
		// Orphaned pairs are unreachable from any live directory chain
		// by construction, so the allocator's traversal-based refill
		// already treats their blocks as free; there is nothing left
		// to physically reclaim. The only remaining inconsistency is
		// the bookkeeping count itself, which PrepOrphans clears the
		// same way a bracketing PrepOrphans(1) would.
		fs.acc.PrepOrphans(state.Orphans)
	}

	return fs.commitGState()
}

// finishPendingMove completes an interrupted rename: the CREATE half
// landed at the destination before the crash, so only the source
// DELETE remains to be replayed.
func (fs *FS) finishPendingMove(id uint16, pair [2]uint32) error {
	m, err := mdir.Fetch(fs.cache, pair)
	if err != nil {
		return err
	}
	if _, ok := m.Get(tag.Type1Name, tag.ChunkReg, id); !ok {
		if _, ok := m.Get(tag.Type1Name, tag.ChunkDir, id); !ok {
			// Source already gone — the DELETE committed before the
			// crash and only the gstate clear itself was lost.
			return nil
		}
	}

	_, err = mdir.Commit(fs.cache, fs.allocFunc, m, []mdir.Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkDelete, ID: id},
	}, gstateBytes(fs.acc), false)
	return err
}

// commitGState writes the accumulator's current value to the root
// pair's MOVESTATE tag without touching any other entry.
func (fs *FS) commitGState() error {
	root, err := mdir.Fetch(fs.cache, rootPair)
	if err != nil {
		return err
	}
	if _, err := mdir.Commit(fs.cache, fs.allocFunc, root, nil, gstateBytes(fs.acc), true); err != nil {
		return err
	}
	fs.acc.Committed()
	return nil
}
