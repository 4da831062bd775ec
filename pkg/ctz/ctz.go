// Package ctz implements the CTZ (count-trailing-zeros) skip-list used
// to address a file's data blocks (spec §4.4). Each data block carries
// back-pointers at offsets determined by the trailing-zero count of its
// index, giving O(log n) random seeks without any separate index
// structure.
package ctz

import (
	"math/bits"
)

// PointerBytes is the width of one on-disk skip pointer (a little-endian
// block address).
const PointerBytes = 4

// SkipCount returns ctz(i)+1, the number of skip pointers stored at the
// head of block i (spec §3: "skip_count(i) = ctz(i)+1"), for i > 0.
// Block 0 is the end of the list and carries no pointers, so
// SkipCount(0) is 0.
func SkipCount(i uint32) uint32 {
	if i == 0 {
		return 0
	}
	return uint32(bits.TrailingZeros32(i)) + 1
}

// DataSize returns block_size - 4*skip_count(i), the number of user-data
// bytes available in block i.
func DataSize(blockSize, i uint32) uint32 {
	return blockSize - PointerBytes*SkipCount(i)
}

// Index inverts the block-carries-skip-pointers geometry: given a byte
// offset into a file, returns the index of the block that holds it, and
// the byte offset within that block's data region.
//
// Blocks aren't uniformly sized (the first few bytes of each are
// consumed by skip pointers), so the inverse can't be computed by a
// single division; it accumulates block by block instead. This follows
// spec §4.4's ctz_index formula, generalized to also return the
// within-block offset Find needs.
func Index(blockSize uint32, off uint64) (index uint32, blockOff uint32) {
	if off == 0 {
		return 0, 0
	}

	// The exact index is found by walking forward block by block, since
	// skip-pointer overhead grows with popcount(i) rather than scaling
	// linearly with a single division.
	i := uint64(0)
	remaining := off
	for {
		size := uint64(DataSize(blockSize, uint32(i)))
		if remaining < size {
			return uint32(i), uint32(remaining)
		}
		remaining -= size
		i++
	}
}

// CTZIndexFromSize returns the index of the last (highest-index, "head")
// block of a file of the given size, i.e. ctz_index(size-1) from spec
// §4.4's Find description. A zero-size file has no blocks; callers must
// special-case it (it's stored inline, never as a CTZ structure).
func CTZIndexFromSize(blockSize uint32, size uint64) uint32 {
	if size == 0 {
		return 0
	}
	idx, _ := Index(blockSize, size-1)
	return idx
}

// npw2 returns the smallest power of two >= v (v must be > 0).
func npw2(v uint32) uint32 {
	if v <= 1 {
		return 1
	}
	return uint32(1) << bits.Len32(v-1)
}
