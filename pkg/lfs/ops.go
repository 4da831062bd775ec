package lfs

import (
	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// Remove deletes the file or empty directory at path.
//
// Removing a directory brackets the DELETE commit with a PrepOrphans
// bracket (spec §4.5 G2): the orphan count goes briefly nonzero around
// the commit so that a crash immediately after it still finds a trace
// telling a subsequent mount to treat the directory's now-unreachable
// pair as reclaimable, then is XORed back to zero once the delete is
// known to have landed.
func (fs *FS) Remove(path string) error {
	r, err := fs.lookup(path)
	if err != nil {
		return err
	}

	if r.isDir() {
		entries, err := fs.ReadDir(path)
		if err != nil {
			return err
		}
		if len(entries) != 0 {
			return ErrNotEmpty
		}

		fs.acc.PrepOrphans(1)
		if err := fs.commitGState(); err != nil {
			return err
		}
		// commitGState may have rewritten the root pair, which can be
		// the pair holding this entry, so resolve it again.
		if r, err = fs.lookup(path); err != nil {
			return err
		}
		if _, err := mdir.Commit(fs.cache, fs.allocFunc, r.Holding, []mdir.Attr{
			{Type1: tag.Type1Splice, Chunk: tag.ChunkDelete, ID: r.ID},
		}, gstateBytes(fs.acc), false); err != nil {
			return err
		}
		fs.acc.Committed()

		fs.acc.PrepOrphans(1)
		return fs.commitGState()
	}

	_, err = mdir.Commit(fs.cache, fs.allocFunc, r.Holding, []mdir.Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkDelete, ID: r.ID},
	}, gstateBytes(fs.acc), false)
	if err != nil {
		return err
	}
	fs.acc.Committed()
	return nil
}

// Rename moves the entry at oldPath to newPath. Real littlefs defers
// the move by emitting a FROM_MOVE pseudo-tag that compaction later
// expands; this engine instead does the move eagerly — copy the
// NAME/STRUCT pair to the destination, then delete the source — and
// brackets those two commits with the gstate pending-move state. That
// state is held only in the in-memory accumulator: Rename does not
// write it to disk, so a crash between the two commits leaves both the
// destination and the source entry in place, and the next mount finds
// no pending move to finish. See DESIGN.md for why this trade was made.
func (fs *FS) Rename(oldPath, newPath string) error {
	r, err := fs.lookup(oldPath)
	if err != nil {
		return err
	}

	destComps, err := cleanComponents(newPath)
	if err != nil {
		return err
	}
	if len(destComps) == 0 {
		return ErrIsDir
	}
	destName := destComps[len(destComps)-1]
	if len(destName) > int(fs.cfg.NameMax) {
		return ErrNameTooLong
	}

	destParentPair, err := fs.resolveDirPair(destComps[:len(destComps)-1])
	if err != nil {
		return err
	}
	if existing, err := findInChain(fs, destParentPair, destName); err == nil {
		// spec §4.6 rename step 2: an existing destination must share
		// the source's type, and an existing directory must be empty.
		if existing.isDir() != r.isDir() {
			if existing.isDir() {
				return ErrIsDir
			}
			return ErrNotDir
		}
		if existing.isDir() {
			childPair, err := decodeDirStruct(existing.StructData)
			if err != nil {
				return err
			}
			m, err := mdir.Fetch(fs.cache, childPair)
			if err != nil {
				return err
			}
			if m.Count != 0 || m.Split {
				return ErrNotEmpty
			}
		}
		if _, err := mdir.Commit(fs.cache, fs.allocFunc, existing.Holding, []mdir.Attr{
			{Type1: tag.Type1Splice, Chunk: tag.ChunkDelete, ID: existing.ID},
		}, gstateBytes(fs.acc), false); err != nil {
			return err
		}
		fs.acc.Committed()

		// The delete may have renumbered ids in the source's own chain
		// (e.g. a same-directory overwrite), so re-resolve the source
		// before using its id/holding again.
		r, err = fs.lookup(oldPath)
		if err != nil {
			return err
		}
	} else if err != ErrNotExist {
		return err
	}

	destM, err := fs.tailMDir(destParentPair)
	if err != nil {
		return err
	}
	newID := destM.Count

	srcPair := r.Holding.Pair
	fs.acc.PrepMove(r.ID, srcPair)

	structCopy := append([]byte(nil), r.StructData...)
	_, err = mdir.Commit(fs.cache, fs.allocFunc, destM, []mdir.Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: newID},
		{Type1: tag.Type1Name, Chunk: r.NameTag.Chunk, ID: newID, Data: []byte(destName)},
		{Type1: tag.Type1Struct, Chunk: r.StructTag.Chunk, ID: newID, Data: structCopy},
	}, gstateBytes(fs.acc), false)
	if err != nil {
		fs.acc.ClearMove()
		return err
	}
	fs.acc.Committed()

	srcM, err := mdir.Fetch(fs.cache, srcPair)
	if err != nil {
		return err
	}
	fs.acc.ClearMove()
	_, err = mdir.Commit(fs.cache, fs.allocFunc, srcM, []mdir.Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkDelete, ID: r.ID},
	}, gstateBytes(fs.acc), false)
	if err != nil {
		return err
	}
	fs.acc.Committed()
	return nil
}
