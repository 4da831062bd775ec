package mdir

import (
	"errors"
	"fmt"

	"github.com/flashfs/flashfs/pkg/bd"
	"github.com/flashfs/flashfs/pkg/tag"
)

// MDir is the in-memory, materialized view of one metadata pair: the
// flattened set of live attributes (after replaying every CREATE/DELETE
// splice and keeping only the latest value per (type, id)) plus the log
// bookkeeping (Commit) needs to keep appending to the winning block.
type MDir struct {
	Pair [2]uint32 // Pair[0] is the block Fetch picked as active; Pair[1] is its sibling

	rev    uint32 // revision counter of Pair[0]
	off    uint32 // byte offset in Pair[0] where the next commit begins
	etag   uint32 // XOR-chain seed for the next tag written to Pair[0]
	erased bool   // whether the last commit ended exactly on a prog-size boundary (its CRC tag's reset parity)

	Count  uint16
	Tail   [2]uint32
	Split  bool
	GState [12]byte

	entries map[dedupKey]Entry
}

// ErrNotFound reports that no live attribute matches. Get and GetByType
// signal a miss through their bool result and do not return it.
var ErrNotFound = errors.New("mdir: attribute not found")

// errNoFit is returned internally when even a from-scratch write of
// the supplied attrs can't fit in a single fresh block.
var errNoFit = errors.New("mdir: format: attrs don't fit in one block")

// revNewer reports whether a is a later revision than b under littlefs's
// sequence-wrapping comparison (spec §4.3.1): a plain a>b comparison
// would break once the counter wraps past 2^32, so the comparison is
// done on the signed difference instead.
func revNewer(a, b uint32) bool {
	return int32(a-b) > 0
}

// Fetch reads both blocks of pair, scans each for its most recent
// CRC-validated commit, and returns the materialized view built from
// whichever block carries the newer revision count (spec §4.3.1).
func Fetch(cache *bd.Cache, pair [2]uint32) (*MDir, error) {
	var best *scanResult
	var bestIdx int

	for i, block := range pair {
		res, err := scanBlock(cache, block)
		if err != nil {
			continue
		}
		if best == nil || revNewer(res.rev, best.rev) {
			best = res
			bestIdx = i
		}
	}

	if best == nil {
		return nil, fmt.Errorf("mdir: fetch: both blocks of pair %v are unreadable", pair)
	}

	m := &MDir{
		Count:   best.count,
		Tail:    best.tail,
		Split:   best.split,
		GState:  best.gstate,
		rev:     best.rev,
		off:     best.off,
		etag:    best.etag,
		erased:  best.erased,
		entries: best.entries,
	}
	m.Pair[0] = pair[bestIdx]
	m.Pair[1] = pair[1-bestIdx]
	return m, nil
}

// Get returns the live attribute for (type1, chunk, id), if any.
func (m *MDir) Get(type1, chunk uint8, id uint16) (Entry, bool) {
	e, ok := m.entries[dedupKey{typ: uint16(type1)<<8 | uint16(chunk), id: id}]
	return e, ok
}

// GetByType returns the live attribute matching the combined 11-bit
// type (as returned by tag.Tag.Type) and id.
func (m *MDir) GetByType(typ uint16, id uint16) (Entry, bool) {
	e, ok := m.entries[dedupKey{typ: typ, id: id}]
	return e, ok
}

// IDs returns the distinct ids with at least one live attribute,
// ascending. Used by directory listing (spec §5.2).
func (m *MDir) IDs() []uint16 {
	seen := make(map[uint16]bool)
	for k := range m.entries {
		seen[k.id] = true
	}
	out := make([]uint16, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// scanResult is the outcome of scanning a single block for its newest
// CRC-validated commit.
type scanResult struct {
	rev     uint32
	off     uint32
	etag    uint32
	erased  bool
	count   uint16
	tail    [2]uint32
	split   bool
	gstate  [12]byte
	entries map[dedupKey]Entry
}

// scanBlock walks block's tag stream from just past its revision
// counter, applying every tag to a working set and only folding that
// working set into the returned, confirmed result once a CRC tag
// validates the bytes since the previous commit (or block start). Any
// tags written after the last valid CRC — a torn write — are silently
// discarded, which is exactly the crash-consistency contract spec §4.3.2
// describes.
func scanBlock(cache *bd.Cache, block uint32) (*scanResult, error) {
	geo := cache.Geometry()
	blockSize, progSize := geo.BlockSize, geo.ProgSize

	revBuf := make([]byte, 4)
	if err := cache.Read(4, block, 0, revBuf); err != nil {
		return nil, err
	}
	rev := tag.FromLE32(revBuf)

	confirmed := &scanResult{
		rev:     rev,
		off:     4,
		etag:    chainSeed,
		entries: map[dedupKey]Entry{},
	}

	working := map[dedupKey]Entry{}
	var workingTail [2]uint32
	var workingSplit bool
	var workingCount uint16
	var workingGState [12]byte

	prevEncoded := chainSeed
	crc := tag.NewCRC()
	crc.Update(revBuf)
	off := uint32(4)

	for {
		if off+4 > blockSize {
			break
		}

		hdr := make([]byte, 4)
		if err := cache.Read(4, block, off, hdr); err != nil {
			return nil, err
		}
		encoded := tag.FromBE32(hdr) ^ prevEncoded
		t := tag.Decode(encoded)
		if !t.Valid {
			break
		}

		payloadLen := t.Size
		if t.Size == tag.UserAttrRemove {
			payloadLen = 0
		}
		if off+4+uint32(payloadLen) > blockSize {
			break
		}

		if t.Type1 == tag.Type1CRC {
			crc.Update(hdr)
			payBuf := make([]byte, 4)
			if err := cache.Read(4, block, off+4, payBuf); err != nil {
				return nil, err
			}
			stored := tag.FromLE32(payBuf)
			if stored != crc.Sum() {
				break
			}

			// The CRC tag's chunk LSB is a reset-parity hint: it must
			// match whether the byte right after this commit falls on a
			// prog-size boundary (spec §4.3.1/§6.2). A mismatch means the
			// commit was torn between the CRC and the pad, so it's
			// treated the same as a failed CRC: discard and stop.
			wantErased := (off+8)%progSize == 0
			if (t.Chunk&1 == 1) != wantErased {
				break
			}

			confirmed.entries = cloneEntries(working)
			confirmed.tail = workingTail
			confirmed.split = workingSplit
			confirmed.count = workingCount
			confirmed.gstate = workingGState
			confirmed.off = alignUp32(off+8, progSize)
			confirmed.etag = encoded
			confirmed.erased = wantErased

			crc.Reset()
			off = confirmed.off
			prevEncoded = encoded
			continue
		}

		var payload []byte
		if payloadLen > 0 {
			payload = make([]byte, payloadLen)
			if err := cache.Read(4, block, off+4, payload); err != nil {
				return nil, err
			}
		}
		crc.Update(hdr)
		crc.Update(payload)

		applyTag(t, payload, working, &workingTail, &workingSplit, &workingCount, &workingGState)

		off += 4 + uint32(payloadLen)
		prevEncoded = encoded
	}

	return confirmed, nil
}

func cloneEntries(m map[dedupKey]Entry) map[dedupKey]Entry {
	out := make(map[dedupKey]Entry, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// applyTag folds one decoded log tag into the working materialized
// state. CREATE/DELETE splice tags renumber every entry's id in place
// (spec §4.3.3's "ids shift to stay contiguous" rule); everything else
// is a plain keep-latest-value-per-(type,id) write that also raises the
// count to at least id+1, so a compacted block (which carries no splice
// tags) still yields the right count when fetched.
func applyTag(t tag.Tag, payload []byte, entries map[dedupKey]Entry, wTail *[2]uint32, wSplit *bool, wCount *uint16, wGState *[12]byte) {
	switch t.Type1 {

	case tag.Type1Splice:
		switch t.Chunk {
		case tag.ChunkCreate:
			shiftIDs(entries, t.ID, 1)
			if t.ID >= *wCount {
				*wCount = t.ID + 1
			} else {
				*wCount++
			}
		case tag.ChunkDelete:
			for k := range entries {
				if k.id == t.ID {
					delete(entries, k)
				}
			}
			shiftIDs(entries, t.ID, -1)
			if *wCount > 0 {
				*wCount--
			}
		}

	case tag.Type1Tail:
		if len(payload) >= 8 {
			*wTail = [2]uint32{tag.FromLE32(payload[0:4]), tag.FromLE32(payload[4:8])}
		}
		*wSplit = t.Chunk == tag.ChunkHardTail

	case tag.Type1MoveState:
		if len(payload) >= 12 {
			copy(wGState[:], payload[:12])
		}

	case tag.Type1From:
		// pseudo-tag; never appears in a real on-disk stream

	default:
		if t.Size == tag.UserAttrRemove {
			delete(entries, dedupKey{typ: t.Type(), id: t.ID})
			return
		}
		entries[dedupKey{typ: t.Type(), id: t.ID}] = Entry{Tag: t, Data: payload}
		if t.ID >= *wCount {
			*wCount = t.ID + 1
		}
	}
}

// shiftIDs renumbers every entry with id >= from by delta (+1 on
// insert, -1 on delete). On insert this moves the entry previously at
// `from` up by one, freeing `from` for CREATE's own Name/Struct tags,
// which follow immediately after; on delete the caller has already
// removed the entries at `from`.
func shiftIDs(entries map[dedupKey]Entry, from uint16, delta int) {
	type move struct {
		old, new dedupKey
		e        Entry
	}
	var moves []move
	for k, e := range entries {
		if k.id >= from {
			nk := k
			nk.id = uint16(int(k.id) + delta)
			moves = append(moves, move{old: k, new: nk, e: e})
		}
	}
	for _, mv := range moves {
		delete(entries, mv.old)
	}
	for _, mv := range moves {
		entries[mv.new] = mv.e
	}
}
