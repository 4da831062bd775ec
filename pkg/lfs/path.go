package lfs

import (
	"fmt"
	"strings"

	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// cleanComponents resolves "." and ".." textually (spec §4.6 "Find") and
// returns the remaining path components in order. A ".." with nothing
// to pop is an error rather than silently climbing past the root.
func cleanComponents(path string) ([]string, error) {
	var stack []string
	for _, p := range strings.Split(path, "/") {
		switch p {
		case "", ".":
			continue
		case "..":
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: %q climbs above root", ErrInvalid, path)
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, p)
		}
	}
	return stack, nil
}

// lookupResult is what resolving a path to its final component yields:
// the MDIR block that physically holds the entry, the entry's id within
// it, and its NAME/STRUCT tags.
type lookupResult struct {
	Holding    *mdir.MDir
	ID         uint16
	NameTag    tag.Tag
	StructTag  tag.Tag
	StructData []byte
}

func (r *lookupResult) isDir() bool { return r.NameTag.Chunk == tag.ChunkDir }

// tailMDir follows pair's TAIL chain to the last (soft-tail) block,
// where new entries get appended and id 0..count-1 is contiguous.
func (fs *FS) tailMDir(pair [2]uint32) (*mdir.MDir, error) {
	m, err := mdir.Fetch(fs.cache, pair)
	if err != nil {
		return nil, err
	}
	for m.Split {
		next, err := mdir.Fetch(fs.cache, m.Tail)
		if err != nil {
			return nil, err
		}
		m = next
	}
	return m, nil
}

// findInChain scans every MDIR in pair's chain for a live NAME entry
// (directory or regular file) matching name, returning its holding
// block, id, and NAME/STRUCT tags.
func findInChain(fs *FS, pair [2]uint32, name string) (*lookupResult, error) {
	for {
		m, err := mdir.Fetch(fs.cache, pair)
		if err != nil {
			return nil, err
		}
		for _, id := range m.IDs() {
			for _, chunk := range []uint8{tag.ChunkReg, tag.ChunkDir} {
				e, ok := m.Get(tag.Type1Name, chunk, id)
				if !ok || string(e.Data) != name {
					continue
				}
				se, structChunk, ok := getStruct(m, id)
				if !ok {
					return nil, fmt.Errorf("lfs: %q has a NAME tag but no STRUCT tag", name)
				}
				return &lookupResult{Holding: m, ID: id, NameTag: e.Tag, StructTag: tag.Tag{Type1: tag.Type1Struct, Chunk: structChunk}, StructData: se.Data}, nil
			}
		}
		if !m.Split {
			return nil, ErrNotExist
		}
		pair = m.Tail
	}
}

// getStruct returns whichever STRUCT tag id carries, trying each of the
// three chunk subtypes in turn.
func getStruct(m *mdir.MDir, id uint16) (mdir.Entry, uint8, bool) {
	for _, chunk := range []uint8{tag.ChunkDirStruct, tag.ChunkCTZStruct, tag.ChunkInlineStruct} {
		if e, ok := m.Get(tag.Type1Struct, chunk, id); ok {
			return e, chunk, true
		}
	}
	return mdir.Entry{}, 0, false
}

// resolveDirPair descends comps from the root, requiring every
// component to be a directory, and returns the pair of the final one
// (comps may be empty, returning rootPair itself).
func (fs *FS) resolveDirPair(comps []string) ([2]uint32, error) {
	pair := rootPair
	for _, name := range comps {
		r, err := findInChain(fs, pair, name)
		if err != nil {
			return [2]uint32{}, err
		}
		if !r.isDir() {
			return [2]uint32{}, ErrNotDir
		}
		childPair, err := decodeDirStruct(r.StructData)
		if err != nil {
			return [2]uint32{}, err
		}
		pair = childPair
	}
	return pair, nil
}

// lookup resolves path to its final component's entry.
func (fs *FS) lookup(path string) (*lookupResult, error) {
	comps, err := cleanComponents(path)
	if err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		return nil, fmt.Errorf("lfs: lookup: %q is the root directory, not an entry", path)
	}
	dirPair, err := fs.resolveDirPair(comps[:len(comps)-1])
	if err != nil {
		return nil, err
	}
	return findInChain(fs, dirPair, comps[len(comps)-1])
}

func encodeDirStruct(pair [2]uint32) []byte {
	return append(tag.ToLE32(pair[0]), tag.ToLE32(pair[1])...)
}

func decodeDirStruct(b []byte) ([2]uint32, error) {
	if len(b) < 8 {
		return [2]uint32{}, fmt.Errorf("lfs: malformed dir struct (%d bytes)", len(b))
	}
	return [2]uint32{tag.FromLE32(b[0:4]), tag.FromLE32(b[4:8])}, nil
}

func encodeCTZStruct(head uint32, size uint64) []byte {
	b := make([]byte, 12)
	tag.PutLE32(b[0:4], head)
	b[4] = byte(size)
	b[5] = byte(size >> 8)
	b[6] = byte(size >> 16)
	b[7] = byte(size >> 24)
	b[8] = byte(size >> 32)
	b[9] = byte(size >> 40)
	b[10] = byte(size >> 48)
	b[11] = byte(size >> 56)
	return b
}

func decodeCTZStruct(b []byte) (head uint32, size uint64, err error) {
	if len(b) < 12 {
		return 0, 0, fmt.Errorf("lfs: malformed ctz struct (%d bytes)", len(b))
	}
	head = tag.FromLE32(b[0:4])
	for i := 0; i < 8; i++ {
		size |= uint64(b[4+i]) << (8 * uint(i))
	}
	return head, size, nil
}
