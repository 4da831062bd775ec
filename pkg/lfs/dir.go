package lfs

import (
	"fmt"

	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// EntryType distinguishes the two kinds of directory entry.
type EntryType int

const (
	TypeReg EntryType = iota
	TypeDir
)

// Info is what Stat and ReadDir report per entry (SPEC_FULL §3's
// "Stat/Info" supplement).
type Info struct {
	Name string
	Type EntryType
	Size uint64
}

// Mkdir creates an empty directory at path. The parent must exist and
// path's final component must not already exist.
func (fs *FS) Mkdir(path string) error {
	comps, err := cleanComponents(path)
	if err != nil {
		return err
	}
	if len(comps) == 0 {
		return fmt.Errorf("%w: cannot create the root directory", ErrExist)
	}
	name := comps[len(comps)-1]
	if len(name) > int(fs.cfg.NameMax) {
		return ErrNameTooLong
	}

	parentPair, err := fs.resolveDirPair(comps[:len(comps)-1])
	if err != nil {
		return err
	}
	if _, err := findInChain(fs, parentPair, name); err == nil {
		return ErrExist
	} else if err != ErrNotExist {
		return err
	}

	childA, err := fs.allocFunc()
	if err != nil {
		return err
	}
	childB, err := fs.allocFunc()
	if err != nil {
		return err
	}
	childPair := [2]uint32{childA, childB}
	if _, err := mdir.Format(fs.cache, childPair, nil, gstateBytes(fs.acc)); err != nil {
		return err
	}

	m, err := fs.tailMDir(parentPair)
	if err != nil {
		return err
	}
	newID := m.Count

	res, err := mdir.Commit(fs.cache, fs.allocFunc, m, []mdir.Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: newID},
		{Type1: tag.Type1Name, Chunk: tag.ChunkDir, ID: newID, Data: []byte(name)},
		{Type1: tag.Type1Struct, Chunk: tag.ChunkDirStruct, ID: newID, Data: encodeDirStruct(childPair)},
	}, gstateBytes(fs.acc), false)
	if err != nil {
		return err
	}
	fs.acc.Committed()
	_ = res
	return nil
}

// ReadDir lists the entries of the directory at path (not including
// synthetic "." and "..", which spec §4.6 reserves for the positional
// read API; callers that want POSIX-style positions 0/1 for those
// should prepend them themselves).
func (fs *FS) ReadDir(path string) ([]Info, error) {
	pair, err := fs.dirPairOf(path)
	if err != nil {
		return nil, err
	}

	var out []Info
	for {
		m, err := mdir.Fetch(fs.cache, pair)
		if err != nil {
			return nil, err
		}
		for _, id := range m.IDs() {
			if e, ok := m.Get(tag.Type1Name, tag.ChunkReg, id); ok {
				out = append(out, fs.infoFor(m, id, e, TypeReg))
			} else if e, ok := m.Get(tag.Type1Name, tag.ChunkDir, id); ok {
				out = append(out, fs.infoFor(m, id, e, TypeDir))
			}
		}
		if !m.Split {
			return out, nil
		}
		pair = m.Tail
	}
}

func (fs *FS) infoFor(m *mdir.MDir, id uint16, nameEntry mdir.Entry, t EntryType) Info {
	info := Info{Name: string(nameEntry.Data), Type: t}
	if t == TypeReg {
		if _, size, err := fs.regularFileSize(m, id); err == nil {
			info.Size = size
		}
	}
	return info
}

func (fs *FS) regularFileSize(m *mdir.MDir, id uint16) (inline bool, size uint64, err error) {
	if e, ok := m.Get(tag.Type1Struct, tag.ChunkInlineStruct, id); ok {
		return true, uint64(len(e.Data)), nil
	}
	if e, ok := m.Get(tag.Type1Struct, tag.ChunkCTZStruct, id); ok {
		_, sz, err := decodeCTZStruct(e.Data)
		return false, sz, err
	}
	return false, 0, fmt.Errorf("lfs: entry %d has no recognizable file struct", id)
}

// dirPairOf resolves path (which must name a directory, or be "/") to
// the pair of its own chain's head.
func (fs *FS) dirPairOf(path string) ([2]uint32, error) {
	comps, err := cleanComponents(path)
	if err != nil {
		return [2]uint32{}, err
	}
	return fs.resolveDirPair(comps)
}

// Stat reports Info for path, whether file or directory.
func (fs *FS) Stat(path string) (Info, error) {
	comps, err := cleanComponents(path)
	if err != nil {
		return Info{}, err
	}
	if len(comps) == 0 {
		return Info{Name: "/", Type: TypeDir}, nil
	}
	r, err := fs.lookup(path)
	if err != nil {
		return Info{}, err
	}
	if r.isDir() {
		return Info{Name: comps[len(comps)-1], Type: TypeDir}, nil
	}
	_, size, err := fs.regularFileSize(r.Holding, r.ID)
	if err != nil {
		return Info{}, err
	}
	return Info{Name: comps[len(comps)-1], Type: TypeReg, Size: size}, nil
}
