package mdir

import "github.com/flashfs/flashfs/pkg/bd"

// Format erases both blocks of pair and writes the first commit to
// pair[0]: an empty attribute set plus, if any are supplied, the given
// initial attrs and gstate value. It's used both to create the root
// pair at mkfs time and to materialize a brand-new directory's pair
// when a MKDIR commits. The first commit carries revision 1.
func Format(cache *bd.Cache, pair [2]uint32, attrs []Attr, gstateVal [12]byte) (*MDir, error) {
	if err := cache.Erase(pair[1]); err != nil {
		return nil, err
	}
	ok, etag, written, erased, err := tryCompactBlock(cache, pair[0], 1, attrs, false, [2]uint32{}, false, gstateVal)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoFit
	}

	entries := map[dedupKey]Entry{}
	var tailv [2]uint32
	var splitv bool
	var countv uint16
	var gstatev [12]byte
	for _, a := range attrs {
		applyTag(a.tag(), attrData(a), entries, &tailv, &splitv, &countv, &gstatev)
	}
	gstatev = gstateVal

	m := &MDir{
		Pair:    pair,
		rev:     1,
		off:     written,
		etag:    etag,
		Count:   countv,
		Tail:    tailv,
		Split:   splitv,
		GState:  gstatev,
		erased:  erased,
		entries: entries,
	}
	return m, nil
}
