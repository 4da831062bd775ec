package lfs

import (
	"errors"
	"io"

	"github.com/flashfs/flashfs/pkg/ctz"
	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// OpenFlag mirrors the POSIX-ish open flags spec §4.6 names.
type OpenFlag int

const (
	ORdOnly OpenFlag = 1 << iota
	OWrOnly
	ORdWr
	OCreate
	OExcl
	OTrunc
)

// File is an open file handle, attached to its mount's open list for
// the lifetime of the handle (spec §4.7).
type File struct {
	fs      *FS
	holding *mdir.MDir
	id      uint16

	inline  bool
	data    []byte // inline content, or the file's full buffered content pre-relocation
	head    uint32 // CTZ head, valid when !inline
	size    uint64 // authoritative size
	pending []byte // bytes appended since the last Sync, for a non-inline file

	pos   uint64
	dirty bool
}

// Open resolves path to a file, optionally creating it (OCreate).
func (fs *FS) Open(path string, flags OpenFlag) (*File, error) {
	r, err := fs.lookup(path)
	switch {
	case errors.Is(err, ErrNotExist):
		if flags&OCreate == 0 {
			return nil, ErrNotExist
		}
		r, err = fs.create(path)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if flags&OCreate != 0 && flags&OExcl != 0 {
			return nil, ErrExist
		}
		if r.isDir() {
			return nil, ErrIsDir
		}
	}

	f := &File{fs: fs, holding: r.Holding, id: r.ID}
	if r.StructTag.Chunk == tag.ChunkInlineStruct {
		f.inline = true
		f.data = append([]byte(nil), r.StructData...)
		f.size = uint64(len(f.data))
	} else {
		head, size, err := decodeCTZStruct(r.StructData)
		if err != nil {
			return nil, err
		}
		f.head, f.size = head, size
	}

	if flags&OTrunc != 0 {
		f.inline = true
		f.data = nil
		f.pending = nil
		f.size = 0
		f.dirty = true
	}

	fs.open = append(fs.open, f)
	return f, nil
}

func (fs *FS) create(path string) (*lookupResult, error) {
	comps, err := cleanComponents(path)
	if err != nil {
		return nil, err
	}
	if len(comps) == 0 {
		return nil, ErrIsDir
	}
	name := comps[len(comps)-1]
	if len(name) > int(fs.cfg.NameMax) {
		return nil, ErrNameTooLong
	}

	parentPair, err := fs.resolveDirPair(comps[:len(comps)-1])
	if err != nil {
		return nil, err
	}
	m, err := fs.tailMDir(parentPair)
	if err != nil {
		return nil, err
	}
	newID := m.Count

	res, err := mdir.Commit(fs.cache, fs.allocFunc, m, []mdir.Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: newID},
		{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: newID, Data: []byte(name)},
		{Type1: tag.Type1Struct, Chunk: tag.ChunkInlineStruct, ID: newID, Data: nil},
	}, gstateBytes(fs.acc), false)
	if err != nil {
		return nil, err
	}
	fs.acc.Committed()

	return &lookupResult{
		Holding:    res.Self,
		ID:         newID,
		NameTag:    tag.Tag{Type1: tag.Type1Name, Chunk: tag.ChunkReg},
		StructTag:  tag.Tag{Type1: tag.Type1Struct, Chunk: tag.ChunkInlineStruct},
		StructData: nil,
	}, nil
}

// Seek repositions the file's read cursor. Writes always land at the
// current end of the file (see Write); Seek only affects Read.
func (f *File) Seek(pos uint64) { f.pos = pos }

// Size returns the file's current length, including bytes written but
// not yet synced.
func (f *File) Size() uint64 { return f.size }

// Read reads into buf starting at the current position, returning
// io.EOF once the committed content is exhausted. Bytes written since
// the last Sync to a non-inline file are not yet visible to Read —
// call Sync first if a read-after-write needs to observe them.
func (f *File) Read(buf []byte) (int, error) {
	if f.inline {
		if f.pos >= uint64(len(f.data)) {
			return 0, io.EOF
		}
		n := copy(buf, f.data[f.pos:])
		f.pos += uint64(n)
		return n, nil
	}

	committed := f.size - uint64(len(f.pending))
	if f.pos >= committed {
		return 0, io.EOF
	}
	blockSize := f.fs.cache.Geometry().BlockSize

	remaining := len(buf)
	if want := committed - f.pos; uint64(remaining) > want {
		remaining = int(want)
	}
	out := 0
	for remaining > 0 {
		block, off, err := ctz.Find(f.fs.cache, blockSize, f.head, committed, f.pos)
		if err != nil {
			return out, err
		}
		chunk := int(blockSize - off)
		if chunk > remaining {
			chunk = remaining
		}
		if err := f.fs.cache.Read(uint32(chunk), block, off, buf[out:out+chunk]); err != nil {
			return out, err
		}
		f.pos += uint64(chunk)
		out += chunk
		remaining -= chunk
	}
	return out, nil
}

// Write appends p to the file. Only append-at-end-of-file is
// supported — p lands at the current size regardless of the read
// cursor's position (spec §4.6 "write: Appends to the per-file cache").
func (f *File) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if f.inline {
		f.data = append(f.data, p...)
		f.size = uint64(len(f.data))
	} else {
		f.pending = append(f.pending, p...)
		f.size += uint64(len(p))
	}
	f.pos = f.size
	f.dirty = true
	return len(p), nil
}

// growCTZ extends head (current size) with data, returning the new
// head and size.
func (fs *FS) growCTZ(head uint32, size uint64, data []byte) (newHead uint32, newSize uint64, err error) {
	geo := fs.cache.Geometry()
	newHead, newSize = head, size
	for len(data) > 0 {
		nh, off, err := ctz.Extend(fs.cache, fs.allocFunc, geo.BlockSize, geo.BlockCount, newHead, newSize)
		if err != nil {
			return 0, 0, err
		}
		avail := geo.BlockSize - off
		n := uint32(len(data))
		if n > avail {
			n = avail
		}
		if err := fs.cache.Prog(nh, off, data[:n], true); err != nil {
			return 0, 0, err
		}
		if err := fs.cache.Flush(true); err != nil {
			return 0, 0, err
		}
		newHead = nh
		newSize += uint64(n)
		data = data[n:]
	}
	return newHead, newSize, nil
}

// Sync writes the file's pending content and an updated STRUCT tag in
// one commit, relocating an inline file to CTZ storage if it has grown
// past the inline ceiling (spec §4.6 "sync/close").
func (f *File) Sync() error {
	if !f.dirty {
		return nil
	}

	var structData []byte
	var chunk uint8

	if f.inline && uint64(len(f.data)) > uint64(f.fs.cfg.inlineLimit()) {
		head, size, err := f.fs.growCTZ(0, 0, f.data)
		if err != nil {
			return err
		}
		f.inline = false
		f.head, f.size = head, size
		f.data = nil
		structData = encodeCTZStruct(f.head, f.size)
		chunk = tag.ChunkCTZStruct
	} else if f.inline {
		structData = f.data
		chunk = tag.ChunkInlineStruct
	} else {
		if len(f.pending) > 0 {
			prevSize := f.size - uint64(len(f.pending))
			head, size, err := f.fs.growCTZ(f.head, prevSize, f.pending)
			if err != nil {
				return err
			}
			f.head, f.size = head, size
			f.pending = nil
		}
		structData = encodeCTZStruct(f.head, f.size)
		chunk = tag.ChunkCTZStruct
	}

	// Inline and CTZ structs are stored under different (type, id)
	// keys, so the struct of the other kind is removed in the same
	// commit; otherwise a stale one would stay live beside the new one.
	other := tag.ChunkInlineStruct
	if chunk == tag.ChunkInlineStruct {
		other = tag.ChunkCTZStruct
	}
	res, err := mdir.Commit(f.fs.cache, f.fs.allocFunc, f.holding, []mdir.Attr{
		{Type1: tag.Type1Struct, Chunk: chunk, ID: f.id, Data: structData},
		{Type1: tag.Type1Struct, Chunk: other, ID: f.id, RemoveMarker: true},
	}, gstateBytes(f.fs.acc), false)
	if err != nil {
		return err
	}
	f.fs.acc.Committed()
	f.holding = res.Self
	f.dirty = false
	return nil
}

// Close syncs and detaches the handle from its mount's open list.
func (f *File) Close() error {
	if err := f.Sync(); err != nil {
		return err
	}
	open := f.fs.open
	for i, h := range open {
		if h == f {
			f.fs.open = append(open[:i], open[i+1:]...)
			break
		}
	}
	return nil
}
