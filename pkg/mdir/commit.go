package mdir

import (
	"errors"
	"fmt"

	"github.com/flashfs/flashfs/pkg/bd"
	"github.com/flashfs/flashfs/pkg/tag"
)

// AllocFunc returns a fresh free block, e.g. wired to an
// *alloc.Allocator's Alloc method by the caller.
type AllocFunc func() (uint32, error)

// CommitResult is what a successful Commit produces: the (possibly
// relocated) mdir itself, and — only when the append/compaction
// overflowed a single pair — the newly created tail pair holding the
// upper half of the entries (spec §4.3.4's split).
type CommitResult struct {
	Self  *MDir
	Split *MDir
}

// reservedCRCBytes is the header+payload size of the trailing CRC tag
// every commit ends with.
const reservedCRCBytes = 8

// Commit appends attrs (plus, if writeGState is true, a MOVESTATE tag
// carrying gstateVal) to m. It tries the cheap append path first —
// writing the new tags right after the previous commit in the active
// block — and only falls back to a full compaction, which flattens
// every live attribute into a fresh commit in the sibling block, when
// the append wouldn't fit or the device reports corruption (spec
// §4.3.2/§4.3.3).
func Commit(cache *bd.Cache, allocFn AllocFunc, m *MDir, attrs []Attr, gstateVal [12]byte, writeGState bool) (*CommitResult, error) {
	geo := cache.Geometry()
	blockSize, progSize := geo.BlockSize, geo.ProgSize

	entries := cloneEntries(m.entries)
	tailv, splitv, countv, gstatev := m.Tail, m.Split, m.Count, m.GState
	for _, a := range attrs {
		applyTag(a.tag(), attrData(a), entries, &tailv, &splitv, &countv, &gstatev)
	}
	if writeGState {
		gstatev = gstateVal
	}

	total := streamLen(attrs, writeGState, gstateVal)
	padded := alignUp32(total, progSize)

	// I3/G3: the MDIR must be erased (i.e. its tail left prog-size
	// aligned by the previous commit) before another append; a non-
	// erased tail forces compaction instead of corrupting an already
	// half-programmed prog unit. Every commit path pads its end up to a
	// prog-size boundary and stores that as off, so an aligned off is
	// the erased tail.
	if m.off%progSize == 0 && m.off+padded <= blockSize {
		resetParity := total%progSize == 0
		stream, newEtag := buildStream(m.etag, tag.NewCRC(), attrs, writeGState, gstateVal, resetParity)

		err := cache.Prog(m.Pair[0], m.off, stream, false)
		if err == nil {
			err = cache.Flush(true)
		}
		switch {
		case err == nil:
			m.off += padded
			m.etag = newEtag
			m.entries = entries
			m.Tail = tailv
			m.Split = splitv
			m.Count = countv
			m.GState = gstatev
			m.erased = resetParity
			return &CommitResult{Self: m}, nil
		case errors.Is(err, bd.ErrCorrupt):
			cache.Drop()
			// fall through to compaction, which relocates away from a
			// block that just proved unreliable.
		default:
			return nil, err
		}
	}

	return compact(cache, allocFn, m, entries, tailv, splitv, countv, gstatev)
}

// alignUp32 rounds v up to the next multiple of a (a must be > 0).
func alignUp32(v, a uint32) uint32 {
	if v%a == 0 {
		return v
	}
	return v + (a - v%a)
}

// attrData returns the bytes that should be folded into the working
// materialized state for a, honoring RemoveMarker.
func attrData(a Attr) []byte {
	if a.RemoveMarker {
		return nil
	}
	return a.Data
}

// buildStream encodes attrs (and, optionally, a trailing gstate tag)
// into a single XOR-chained byte stream terminated by a CRC commit,
// starting the chain from startEtag and folding the stream's bytes into
// crc (which the caller may have already primed with preceding bytes,
// e.g. a fresh block's revision counter). resetParity is stored as the
// CRC tag's chunk LSB: true if the byte immediately following this
// commit is left in the device's erased state (no padding needed to
// reach the next prog-size boundary), false if it's about to be
// overwritten by padding (spec §6.2's "chunk LSB = 1-bit next-erase-
// parity hint"). It returns the encoded bytes and the etag the chain
// should continue from on the next commit.
func buildStream(startEtag uint32, crc *tag.CRC, attrs []Attr, writeGState bool, gstateVal [12]byte, resetParity bool) ([]byte, uint32) {
	var buf []byte
	prev := startEtag

	write := func(t tag.Tag, payload []byte) {
		enc := tag.Encode(t)
		hdr := tag.ToBE32(enc ^ prev)
		buf = append(buf, hdr...)
		crc.Update(hdr)
		if len(payload) > 0 {
			buf = append(buf, payload...)
			crc.Update(payload)
		}
		prev = enc
	}

	for _, a := range attrs {
		var payload []byte
		if !a.RemoveMarker {
			payload = a.Data
		}
		write(a.tag(), payload)
	}

	if writeGState {
		write(tag.Tag{Valid: true, Type1: tag.Type1MoveState, Size: 12}, gstateVal[:])
	}

	var parityChunk uint8
	if resetParity {
		parityChunk = 1
	}
	crcTag := tag.Tag{Valid: true, Type1: tag.Type1CRC, Chunk: parityChunk, Size: 4}
	enc := tag.Encode(crcTag)
	hdr := tag.ToBE32(enc ^ prev)
	crc.Update(hdr)
	buf = append(buf, hdr...)
	buf = append(buf, tag.ToLE32(crc.Sum())...)
	prev = enc

	return buf, prev
}

// compact rewrites every live attribute (already flattened and deduped
// in entries) as one fresh commit into a block distinct from m.Pair[0]
// — normally m.Pair[1], the sibling — bumping the revision counter so
// Fetch will recognize it as the newer half of the pair. If the
// flattened set doesn't fit in a single block even on its own, the
// upper half of its ids is moved out to a freshly allocated tail pair
// (spec §4.3.4). A block that reports corruption while being erased or
// programmed is abandoned in favor of a freshly allocated replacement,
// bounded by one retry per candidate block.
func compact(cache *bd.Cache, allocFn AllocFunc, m *MDir, entries map[dedupKey]Entry, tailv [2]uint32, splitv bool, countv uint16, gstatev [12]byte) (*CommitResult, error) {
	attrs := attrsFromEntries(entries)
	rev := m.rev + 1
	target := m.Pair[1]

	ok, newEtag, written, erased, err := tryCompactBlock(cache, target, rev, attrs, tailv != [2]uint32{}, tailv, splitv, gstatev)
	if err != nil {
		if !errors.Is(err, bd.ErrCorrupt) {
			return nil, err
		}
		replacement, aerr := allocFn()
		if aerr != nil {
			return nil, fmt.Errorf("mdir: compact: sibling block %d corrupt and no replacement available: %w", target, aerr)
		}
		target = replacement
		ok, newEtag, written, erased, err = tryCompactBlock(cache, target, rev, attrs, tailv != [2]uint32{}, tailv, splitv, gstatev)
		if err != nil {
			return nil, err
		}
	}

	if ok {
		m.Pair[0], m.Pair[1] = target, m.Pair[0]
		m.rev = rev
		m.off = written
		m.etag = newEtag
		m.entries = entries
		m.Tail = tailv
		m.Split = splitv
		m.Count = countv
		m.GState = gstatev
		m.erased = erased
		return &CommitResult{Self: m}, nil
	}

	return split(cache, allocFn, m, entries, countv, gstatev, target, rev)
}

// tryCompactBlock erases block, writes rev followed by the full attr
// stream (plus an optional tail tag), and returns whether the stream
// fit. A false ok with a nil err means the block is fine but the
// content simply doesn't fit — the caller should split rather than
// retry. written is padded up to the next prog-size boundary measured
// from the start of the block (spec invariant I3); erased reports
// whether the stream ended exactly on a prog-size boundary (true) or
// needed padding to reach written (false), the same bit the CRC tag
// carries as its reset parity.
func tryCompactBlock(cache *bd.Cache, block uint32, rev uint32, attrs []Attr, withTail bool, tailv [2]uint32, hard bool, gstatev [12]byte) (ok bool, etag uint32, written uint32, erased bool, err error) {
	geo := cache.Geometry()
	blockSize, progSize := geo.BlockSize, geo.ProgSize

	full := make([]Attr, 0, len(attrs)+1)
	full = append(full, attrs...)
	if withTail {
		chunk := tag.ChunkSoftTail
		if hard {
			chunk = tag.ChunkHardTail
		}
		full = append(full, Attr{
			Type1: tag.Type1Tail,
			Chunk: chunk,
			Data:  append(tag.ToLE32(tailv[0]), tag.ToLE32(tailv[1])...),
		})
	}

	total := streamLen(full, true, gstatev)
	needed := total + 4
	if needed > blockSize {
		return false, 0, 0, false, nil
	}

	if err := cache.Erase(block); err != nil {
		return false, 0, 0, false, err
	}

	revBuf := tag.ToLE32(rev)
	if err := cache.Prog(block, 0, revBuf, false); err != nil {
		return false, 0, 0, false, err
	}

	resetParity := needed%progSize == 0
	crc := tag.NewCRC()
	crc.Update(revBuf)
	stream, newEtag := buildStream(chainSeed, crc, full, true, gstatev, resetParity)

	if err := cache.Prog(block, 4, stream, false); err != nil {
		return false, 0, 0, false, err
	}
	if err := cache.Flush(true); err != nil {
		return false, 0, 0, false, err
	}

	return true, newEtag, alignUp32(needed, progSize), resetParity, nil
}

// streamLen computes the encoded length buildStream would produce,
// without actually allocating it, so callers can size-check before
// committing to an erase.
func streamLen(attrs []Attr, withGState bool, gstatev [12]byte) uint32 {
	var n uint32
	for _, a := range attrs {
		n += 4
		if !a.RemoveMarker {
			n += uint32(len(a.Data))
		}
	}
	if withGState {
		n += 4 + 12
	}
	n += reservedCRCBytes
	return n
}

// attrsFromEntries flattens a materialized entry set back into the
// plain Attr list compaction writes — every CREATE/DELETE splice has
// already been folded away, so this is just a direct re-emission of
// whatever's live.
func attrsFromEntries(entries map[dedupKey]Entry) []Attr {
	out := make([]Attr, 0, len(entries))
	for k, e := range entries {
		out = append(out, Attr{
			Type1: uint8(k.typ >> 8),
			Chunk: uint8(k.typ & 0xff),
			ID:    k.id,
			Data:  e.Data,
		})
	}
	return out
}

// split is reached when even a from-scratch compaction of every live
// attribute can't fit in a single block. It partitions entries by id at
// the midpoint, keeps the lower half (plus a hard-tail attr pointing at
// a freshly allocated, freshly formatted pair) in the original pair, and
// writes the upper half — renumbered to start at id 0 — into that new
// pair (spec §4.3.4).
func split(cache *bd.Cache, allocFn AllocFunc, m *MDir, entries map[dedupKey]Entry, countv uint16, gstatev [12]byte, lowBlock uint32, lowRev uint32) (*CommitResult, error) {
	if countv < 2 {
		return nil, errors.New("mdir: split: a single entry's attributes don't fit in one block")
	}
	mid := countv / 2
	oldTail, oldSplit := m.Tail, m.Split

	low := map[dedupKey]Entry{}
	renumberedHigh := map[dedupKey]Entry{}
	for k, e := range entries {
		if k.id < mid {
			low[k] = e
		} else {
			renumberedHigh[dedupKey{typ: k.typ, id: k.id - mid}] = e
		}
	}

	newPairA, err := allocFn()
	if err != nil {
		return nil, fmt.Errorf("mdir: split: allocating tail pair: %w", err)
	}
	newPairB, err := allocFn()
	if err != nil {
		return nil, fmt.Errorf("mdir: split: allocating tail pair: %w", err)
	}
	newPair := [2]uint32{newPairA, newPairB}

	highAttrs := attrsFromEntries(renumberedHigh)
	okHigh, highEtag, highWritten, highErased, err := tryCompactBlock(cache, newPair[0], 1, highAttrs, oldTail != [2]uint32{}, oldTail, oldSplit, gstatev)
	if err != nil {
		return nil, fmt.Errorf("mdir: split: writing tail pair: %w", err)
	}
	if !okHigh {
		return nil, errors.New("mdir: split: upper half still doesn't fit in a fresh pair")
	}

	lowAttrs := attrsFromEntries(low)
	okLow, lowEtag, lowWritten, lowErased, err := tryCompactBlock(cache, lowBlock, lowRev, lowAttrs, true, newPair, true, gstatev)
	if err != nil {
		return nil, fmt.Errorf("mdir: split: writing lower half: %w", err)
	}
	if !okLow {
		return nil, errors.New("mdir: split: lower half still doesn't fit after splitting")
	}

	m.Pair[0], m.Pair[1] = lowBlock, m.Pair[0]
	m.rev = lowRev
	m.off = lowWritten
	m.etag = lowEtag
	m.entries = low
	m.Tail = newPair
	m.Split = true
	m.Count = mid
	m.GState = gstatev
	m.erased = lowErased

	tailM := &MDir{
		Pair:    newPair,
		rev:     1,
		off:     highWritten,
		etag:    highEtag,
		Count:   countv - mid,
		Tail:    oldTail,
		Split:   oldSplit,
		GState:  gstatev,
		erased:  highErased,
		entries: renumberedHigh,
	}

	return &CommitResult{Self: m, Split: tailM}, nil
}
