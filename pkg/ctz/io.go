package ctz

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/flashfs/flashfs/pkg/bd"
)

// AllocFunc returns a fresh free block, e.g. wired to an
// *alloc.Allocator's Alloc method by the caller.
type AllocFunc func() (uint32, error)

// readPointer reads skip pointer slot k (4 bytes at offset 4*k) of block.
func readPointer(cache *bd.Cache, block uint32, k uint32) (uint32, error) {
	buf := make([]byte, PointerBytes)
	if err := cache.Read(PointerBytes, block, k*PointerBytes, buf); err != nil {
		return 0, err
	}
	return leUint32(buf), nil
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// Find walks the skip-list from head (the file's highest-index block,
// with size the authoritative file length) down to the block holding
// byte offset pos, returning that block's address and the offset within
// it. This is the hot path that gives CTZ its O(log n) seek time
// (spec §4.4).
func Find(cache *bd.Cache, blockSize uint32, head uint32, size uint64, pos uint64) (block uint32, off uint32, err error) {

	if size == 0 {
		return 0, 0, errors.New("ctz: find on a zero-size file")
	}
	if pos >= size {
		return 0, 0, fmt.Errorf("ctz: find: pos %d past size %d", pos, size)
	}

	current := CTZIndexFromSize(blockSize, size)
	target, targetOff := Index(blockSize, pos)

	block = head
	for current != target {
		skip := uint32(bits.TrailingZeros32(npw2(current-target+1))) - 1
		if tz := uint32(bits.TrailingZeros32(current)); tz < skip {
			skip = tz
		}

		ptr, rerr := readPointer(cache, block, skip)
		if rerr != nil {
			return 0, 0, fmt.Errorf("ctz: find: reading skip pointer %d of block %d: %w", skip, block, rerr)
		}

		block = ptr
		current -= uint32(1) << skip
	}

	return block, PointerBytes*SkipCount(target) + targetOff, nil
}

// Extend appends one new block to the chain rooted at head (file length
// size so far), returning the new head and the offset within it where
// user data resumes (i.e. past the skip-pointer prefix). If the current
// head isn't yet full, the new block is a grow-in-place copy of it
// instead of a new list node. On a CORRUPT erase/prog, Extend retries
// with a freshly allocated block; retries are bounded by blockCount
// since alloc itself exhausts the device.
func Extend(cache *bd.Cache, alloc AllocFunc, blockSize, blockCount uint32, head uint32, size uint64) (newHead uint32, newOff uint32, err error) {

	for attempt := uint32(0); attempt < blockCount; attempt++ {

		nblock, aerr := alloc()
		if aerr != nil {
			return 0, 0, aerr
		}

		if err := cache.Erase(nblock); err != nil {
			if errors.Is(err, bd.ErrCorrupt) {
				continue
			}
			return 0, 0, err
		}

		if size == 0 {
			return nblock, 0, nil
		}

		index := CTZIndexFromSize(blockSize, size)
		_, withinOff := Index(blockSize, size-1)
		headerLen := PointerBytes * SkipCount(index)
		tailUsed := headerLen + withinOff + 1

		if tailUsed != blockSize {
			// Current head isn't full: grow in place by copying its
			// existing bytes into the new block.
			buf := make([]byte, tailUsed)
			if err := cache.Read(tailUsed, head, 0, buf); err != nil {
				return 0, 0, err
			}
			if cerr := progCorruptible(cache, nblock, 0, buf); cerr != nil {
				if errors.Is(cerr, bd.ErrCorrupt) {
					cache.Drop()
					continue
				}
				return 0, 0, cerr
			}
			return nblock, tailUsed, nil
		}

		// Current head is full: append a genuine new list node and
		// chain its skip pointers back through head (spec invariant Z1).
		newIndex := index + 1
		skips := SkipCount(newIndex)

		corrupted := false
		walkHead := head
		for k := uint32(0); k < skips; k++ {
			nptr := walkHead

			if perr := progCorruptible(cache, nblock, k*PointerBytes, putLE32(nptr)); perr != nil {
				if errors.Is(perr, bd.ErrCorrupt) {
					corrupted = true
					break
				}
				return 0, 0, perr
			}

			if k != skips-1 {
				if ferr := cache.Flush(false); ferr != nil {
					return 0, 0, ferr
				}
				ptr, rerr := readPointer(cache, walkHead, k)
				if rerr != nil {
					return 0, 0, rerr
				}
				walkHead = ptr
			}
		}

		if corrupted {
			cache.Drop()
			continue
		}

		return nblock, PointerBytes * skips, nil
	}

	return 0, 0, fmt.Errorf("ctz: extend: exhausted %d relocation attempts", blockCount)
}

func progCorruptible(cache *bd.Cache, block, off uint32, data []byte) error {
	if err := cache.Prog(block, off, data, true); err != nil {
		return err
	}
	return cache.Flush(true)
}

// Traverse walks every block in the chain rooted at head (file length
// size), invoking cb once per block. Used by the allocator's lookahead
// refill to mark CTZ blocks as live (spec §4.4 "Used to mark CTZ blocks
// in the allocator's lookahead refill").
//
// Unlike Find, which jumps straight to a target index via the highest
// skip pointer that doesn't overshoot, Traverse must visit every block,
// so it only ever consults a block's first one or two pointers: an odd
// index has a single pointer (to index-1) and nothing else to visit;
// an even index additionally carries a pointer to index-1 (visited
// directly through cb, since nothing later descends into it) before
// dropping to index-2 to continue the walk.
func Traverse(cache *bd.Cache, blockSize uint32, head uint32, size uint64, cb func(block uint32) error) error {

	if size == 0 {
		return nil
	}

	current := CTZIndexFromSize(blockSize, size)
	block := head

	for {
		if err := cb(block); err != nil {
			return err
		}
		if current == 0 {
			return nil
		}

		count := uint32(2)
		if current&1 != 0 {
			count = 1
		}

		ptrs := make([]uint32, count)
		for i := uint32(0); i < count; i++ {
			ptr, err := readPointer(cache, block, i)
			if err != nil {
				return fmt.Errorf("ctz: traverse: reading skip pointer %d of block %d: %w", i, block, err)
			}
			ptrs[i] = ptr
		}

		for i := uint32(0); i < count-1; i++ {
			if err := cb(ptrs[i]); err != nil {
				return err
			}
		}

		block = ptrs[count-1]
		current -= count
	}
}
