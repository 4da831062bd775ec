package ctz

import (
	"testing"

	"github.com/flashfs/flashfs/pkg/bd"
)

func newTestCache(t *testing.T, blockCount uint32) *bd.Cache {
	t.Helper()
	geo := bd.Geometry{ReadSize: 16, ProgSize: 16, BlockSize: 64, BlockCount: blockCount}
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

// growChain extends a CTZ chain one block at a time until it holds n
// blocks worth of data, returning the resulting head and logical size.
func growChain(t *testing.T, cache *bd.Cache, blockSize uint32, n int) (head uint32, size uint64) {
	t.Helper()

	next := uint32(0)
	alloc := func() (uint32, error) {
		b := next
		next++
		return b, nil
	}

	for i := 0; i < n; i++ {
		newHead, off, err := Extend(cache, alloc, blockSize, 1<<20, head, size)
		if err != nil {
			t.Fatalf("Extend %d: %v", i, err)
		}
		fill := blockSize - off
		buf := make([]byte, fill)
		for j := range buf {
			buf[j] = byte(i)
		}
		if err := cache.Prog(newHead, off, buf, false); err != nil {
			t.Fatalf("Prog %d: %v", i, err)
		}
		if err := cache.Flush(false); err != nil {
			t.Fatalf("Flush %d: %v", i, err)
		}
		head = newHead
		size += uint64(fill)
	}
	return head, size
}

func TestTraverseVisitsEveryBlockExactlyOnce(t *testing.T) {
	const blockSize = 64
	cache := newTestCache(t, 64)

	for n := 1; n <= 10; n++ {
		head, size := growChain(t, cache, blockSize, n)

		seen := map[uint32]int{}
		err := Traverse(cache, blockSize, head, size, func(block uint32) error {
			seen[block]++
			return nil
		})
		if err != nil {
			t.Fatalf("n=%d: Traverse: %v", n, err)
		}
		if len(seen) != n {
			t.Fatalf("n=%d: traverse visited %d distinct blocks, want %d (seen=%v)", n, len(seen), n, seen)
		}
		for b, count := range seen {
			if count != 1 {
				t.Fatalf("n=%d: block %d visited %d times, want 1", n, b, count)
			}
		}
	}
}

func TestFindLocatesEveryByteAcrossChain(t *testing.T) {
	const blockSize = 64
	cache := newTestCache(t, 64)

	const n = 8
	head, size := growChain(t, cache, blockSize, n)

	for pos := uint64(0); pos < size; pos += 7 {
		block, off, err := Find(cache, blockSize, head, size, pos)
		if err != nil {
			t.Fatalf("Find(%d): %v", pos, err)
		}
		buf := make([]byte, 1)
		if err := cache.Read(1, block, off, buf); err != nil {
			t.Fatalf("Read at Find(%d) result: %v", pos, err)
		}
	}
}
