// Package mdir implements the metadata-pair log (spec §4.3): two blocks
// per directory holding a sequence of XOR-chained, length-prefixed tags
// terminated by CRC commits, with fetch/commit/compact/split on top.
package mdir

import (
	"github.com/flashfs/flashfs/pkg/tag"
)

// chainSeed marks "no chain yet" at the start of a block scan. Real
// NOR/NAND erased memory reads back as all-ones, so 0xffffffff doubles
// as both the XOR-chain seed and a natural "nothing written here" value.
const chainSeed = uint32(0xffffffff)

// Attr is one attribute to write in a commit: a tag plus its payload.
// Data's length becomes the tag's Size field unless RemoveMarker is set,
// in which case Size is the sentinel tag.UserAttrRemove, which doesn't
// correspond to a byte count.
type Attr struct {
	Type1 uint8
	Chunk uint8
	ID    uint16
	Data  []byte
	// RemoveMarker, if true, writes a zero-length attribute whose Size
	// field is tag.UserAttrRemove instead of len(Data), tombstoning a
	// previously-set user attribute through compaction (spec §9).
	RemoveMarker bool
}

func (a Attr) size() uint16 {
	if a.RemoveMarker {
		return tag.UserAttrRemove
	}
	return uint16(len(a.Data))
}

func (a Attr) tag() tag.Tag {
	return tag.Tag{
		Valid: true,
		Type1: a.Type1,
		Chunk: a.Chunk,
		ID:    a.ID,
		Size:  a.size(),
	}
}

// Entry is a decoded tag plus its payload bytes, as returned by Get and
// by the match callback during Fetch.
type Entry struct {
	Tag  tag.Tag
	Data []byte
}

// dedupKey groups entries for compaction's "keep only the latest value
// per (type, id)" rule (spec §4.3.3 step 3). MOVESTATE/CRC tags aren't
// addressed by id and are handled separately during compaction.
type dedupKey struct {
	typ uint16
	id  uint16
}
