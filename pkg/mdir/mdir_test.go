package mdir

import (
	"testing"

	"github.com/flashfs/flashfs/pkg/bd"
	"github.com/flashfs/flashfs/pkg/tag"
)

func newTestCache(t *testing.T, blockCount uint32) *bd.Cache {
	t.Helper()
	geo := bd.Geometry{ReadSize: 16, ProgSize: 16, BlockSize: 256, BlockCount: blockCount}
	ram, err := bd.NewRAM(geo)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	cache, err := bd.NewCache(ram, 16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return cache
}

func noAlloc() (uint32, error) {
	panic("alloc not expected in this test")
}

func TestFormatThenFetchRoundTrips(t *testing.T) {
	cache := newTestCache(t, 4)

	attrs := []Attr{
		{Type1: tag.Type1Name, Chunk: tag.ChunkDir, ID: 0, Data: []byte("root")},
	}
	m, err := Format(cache, [2]uint32{0, 1}, attrs, [12]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	fetched, err := Fetch(cache, [2]uint32{0, 1})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	e, ok := fetched.Get(tag.Type1Name, tag.ChunkDir, 0)
	if !ok || string(e.Data) != "root" {
		t.Fatalf("expected name %q, got ok=%v data=%q", "root", ok, e.Data)
	}
	if fetched.Pair != m.Pair {
		t.Fatalf("fetched pair %v != formatted pair %v", fetched.Pair, m.Pair)
	}
}

func TestCommitAppendsWithoutCompaction(t *testing.T) {
	cache := newTestCache(t, 4)
	m, err := Format(cache, [2]uint32{0, 1}, nil, [12]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	res, err := Commit(cache, noAlloc, m, []Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: 0},
		{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: 0, Data: []byte("a.txt")},
	}, [12]byte{}, false)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Split != nil {
		t.Fatalf("did not expect a split for a small commit")
	}

	fetched, err := Fetch(cache, [2]uint32{0, 1})
	if err != nil {
		t.Fatalf("Fetch after commit: %v", err)
	}
	if fetched.Count != 1 {
		t.Fatalf("expected count 1, got %d", fetched.Count)
	}
	e, ok := fetched.Get(tag.Type1Name, tag.ChunkReg, 0)
	if !ok || string(e.Data) != "a.txt" {
		t.Fatalf("expected a.txt, got ok=%v data=%q", ok, e.Data)
	}
}

func TestCommitDeleteRenumbersIDs(t *testing.T) {
	cache := newTestCache(t, 4)
	m, err := Format(cache, [2]uint32{0, 1}, nil, [12]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	res, err := Commit(cache, noAlloc, m, []Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: 0},
		{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: 0, Data: []byte("a")},
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: 1},
		{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: 1, Data: []byte("b")},
	}, [12]byte{}, false)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}

	res, err = Commit(cache, noAlloc, res.Self, []Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkDelete, ID: 0},
	}, [12]byte{}, false)
	if err != nil {
		t.Fatalf("delete commit: %v", err)
	}

	if res.Self.Count != 1 {
		t.Fatalf("expected count 1 after delete, got %d", res.Self.Count)
	}
	e, ok := res.Self.Get(tag.Type1Name, tag.ChunkReg, 0)
	if !ok || string(e.Data) != "b" {
		t.Fatalf("expected surviving entry b to shift down to id 0, got ok=%v data=%q", ok, e.Data)
	}
}

func TestCommitAppendStaysProgSizeAligned(t *testing.T) {
	cache := newTestCache(t, 4)
	m, err := Format(cache, [2]uint32{0, 1}, nil, [12]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	progSize := cache.Geometry().ProgSize
	res, err := Commit(cache, noAlloc, m, []Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: 0},
		{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: 0, Data: []byte("a")},
	}, [12]byte{}, false)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if res.Self.off%progSize != 0 {
		t.Fatalf("offset %d after first commit isn't prog-size aligned (prog_size=%d)", res.Self.off, progSize)
	}

	// A second append must start exactly where the first commit's pad
	// left off, not re-Prog the already-written prog unit (invariant
	// I3). Fetching a fresh MDir from disk exercises scanBlock's half
	// of that same contract.
	refetched, err := Fetch(cache, res.Self.Pair)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if refetched.off != res.Self.off || refetched.erased != res.Self.erased {
		t.Fatalf("refetched (off=%d erased=%v) != committed (off=%d erased=%v)",
			refetched.off, refetched.erased, res.Self.off, res.Self.erased)
	}

	res2, err := Commit(cache, noAlloc, refetched, []Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: 1},
		{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: 1, Data: []byte("b")},
	}, [12]byte{}, false)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if res2.Self.off%progSize != 0 {
		t.Fatalf("offset %d after second commit isn't prog-size aligned", res2.Self.off)
	}
	if res2.Self.off <= res.Self.off {
		t.Fatalf("second commit's offset %d did not advance past the first commit's %d", res2.Self.off, res.Self.off)
	}

	fetched, err := Fetch(cache, res2.Self.Pair)
	if err != nil {
		t.Fatalf("final Fetch: %v", err)
	}
	if fetched.Count != 2 {
		t.Fatalf("expected count 2, got %d", fetched.Count)
	}
}

func TestCommitCorruptAppendFallsBackToCompaction(t *testing.T) {
	geo := bd.Geometry{ReadSize: 16, ProgSize: 16, BlockSize: 256, BlockCount: 4}
	ram, err := bd.NewRAM(geo)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	cache, err := bd.NewCache(ram, 16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	m, err := Format(cache, [2]uint32{0, 1}, nil, [12]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	ram.FailNextProg(0) // force the append's flush/validate to fail

	alloc := func() (uint32, error) { return 2, nil }
	res, err := Commit(cache, alloc, m, []Attr{
		{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: 0, Data: []byte("x")},
	}, [12]byte{}, false)
	if err != nil {
		t.Fatalf("Commit after simulated corruption: %v", err)
	}

	fetched, err := Fetch(cache, res.Self.Pair)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	e, ok := fetched.Get(tag.Type1Name, tag.ChunkReg, 0)
	if !ok || string(e.Data) != "x" {
		t.Fatalf("expected entry to survive relocation, got ok=%v data=%q", ok, e.Data)
	}
}

func TestCommitForcesSplitWhenContentOutgrowsBlock(t *testing.T) {
	geo := bd.Geometry{ReadSize: 16, ProgSize: 16, BlockSize: 128, BlockCount: 6}
	ram, err := bd.NewRAM(geo)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	cache, err := bd.NewCache(ram, 16)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	m, err := Format(cache, [2]uint32{0, 1}, nil, [12]byte{})
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	pairs := [][2]uint32{{2, 3}, {4, 5}}
	next := 0
	alloc := func() (uint32, error) {
		b := pairs[next/2][next%2]
		next++
		return b, nil
	}

	var attrs []Attr
	payload := make([]byte, 40)
	for i := uint16(0); i < 3; i++ {
		attrs = append(attrs,
			Attr{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: i},
			Attr{Type1: tag.Type1Name, Chunk: tag.ChunkReg, ID: i, Data: payload},
		)
	}

	res, err := Commit(cache, alloc, m, attrs, [12]byte{}, false)
	if err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if res.Split == nil {
		t.Fatalf("expected a split given content far exceeding one block")
	}
	if !res.Self.Split {
		t.Fatalf("expected original mdir to record split=true")
	}
	if res.Self.Tail != res.Split.Pair {
		t.Fatalf("expected original mdir's tail to point at the split pair")
	}
}
