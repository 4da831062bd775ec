package lfs

import (
	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// SetAttr attaches a custom attribute (spec §9's supplemented
// key/value metadata) to the entry at path, identified by an 8-bit
// key alongside the NAME/STRUCT tags already stored at that id.
func (fs *FS) SetAttr(path string, key uint8, value []byte) error {
	r, err := fs.lookup(path)
	if err != nil {
		return err
	}
	if len(value) > int(fs.cfg.AttrMax) {
		return ErrInvalid
	}
	_, err = mdir.Commit(fs.cache, fs.allocFunc, r.Holding, []mdir.Attr{
		{Type1: tag.Type1UserAttr, Chunk: key, ID: r.ID, Data: value},
	}, gstateBytes(fs.acc), false)
	if err != nil {
		return err
	}
	fs.acc.Committed()
	return nil
}

// GetAttr reads a custom attribute previously set with SetAttr,
// returning ErrNoAttr if the entry carries no value under key.
func (fs *FS) GetAttr(path string, key uint8) ([]byte, error) {
	r, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	e, ok := r.Holding.Get(tag.Type1UserAttr, key, r.ID)
	if !ok {
		return nil, ErrNoAttr
	}
	return append([]byte(nil), e.Data...), nil
}

// RemoveAttr tombstones a previously-set custom attribute.
func (fs *FS) RemoveAttr(path string, key uint8) error {
	r, err := fs.lookup(path)
	if err != nil {
		return err
	}
	if _, ok := r.Holding.Get(tag.Type1UserAttr, key, r.ID); !ok {
		return ErrNoAttr
	}
	_, err = mdir.Commit(fs.cache, fs.allocFunc, r.Holding, []mdir.Attr{
		{Type1: tag.Type1UserAttr, Chunk: key, ID: r.ID, RemoveMarker: true},
	}, gstateBytes(fs.acc), false)
	if err != nil {
		return err
	}
	fs.acc.Committed()
	return nil
}
