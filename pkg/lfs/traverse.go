package lfs

import (
	"github.com/flashfs/flashfs/pkg/ctz"
	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// traverseLive walks every block reachable from the root: both blocks
// of every MDIR pair in every directory chain, plus every CTZ block of
// every regular file found along the way. It is handed to the
// allocator as its refill callback (spec §4.2's "walk the whole live
// structure").
func (fs *FS) traverseLive(yield func(block uint32) error) error {
	blockSize := fs.cache.Geometry().BlockSize
	return fs.walkDir(rootPair, yield, blockSize)
}

func (fs *FS) walkDir(pair [2]uint32, yield func(block uint32) error, blockSize uint32) error {
	for {
		if err := yield(pair[0]); err != nil {
			return err
		}
		if err := yield(pair[1]); err != nil {
			return err
		}

		m, err := mdir.Fetch(fs.cache, pair)
		if err != nil {
			return err
		}

		for _, id := range m.IDs() {
			if e, ok := m.Get(tag.Type1Struct, tag.ChunkDirStruct, id); ok {
				childPair, err := decodeDirStruct(e.Data)
				if err != nil {
					return err
				}
				if err := fs.walkDir(childPair, yield, blockSize); err != nil {
					return err
				}
			} else if e, ok := m.Get(tag.Type1Struct, tag.ChunkCTZStruct, id); ok {
				head, size, err := decodeCTZStruct(e.Data)
				if err != nil {
					return err
				}
				if err := ctz.Traverse(fs.cache, blockSize, head, size, yield); err != nil {
					return err
				}
			}
		}

		if !m.Split {
			return nil
		}
		pair = m.Tail
	}
}

// Traverse invokes cb once for every block the filesystem currently
// considers live (the same set the allocator protects from reuse). It
// is the basis for the supplemented fsck/usage-report tooling (spec
// §8's consistency-checking scenario).
func (fs *FS) Traverse(cb func(block uint32) error) error {
	return fs.traverseLive(cb)
}

// Size reports how many blocks are currently live, for a simple
// usage-reporting CLI (df-style) without needing full fsck plumbing.
func (fs *FS) Size() (uint32, error) {
	seen := map[uint32]bool{}
	err := fs.Traverse(func(block uint32) error {
		seen[block] = true
		return nil
	})
	return uint32(len(seen)), err
}
