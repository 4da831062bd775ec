package ctz

import "testing"

func TestSkipCount(t *testing.T) {
	cases := map[uint32]uint32{
		0: 0, 1: 1, 2: 2, 3: 1, 4: 3, 5: 1, 6: 2, 7: 1, 8: 4,
	}
	for i, want := range cases {
		if got := SkipCount(i); got != want {
			t.Fatalf("SkipCount(%d) = %d, want %d", i, got, want)
		}
	}
}

func TestIndexRoundTripsWithDataSize(t *testing.T) {

	const blockSize = 512

	// Walk forward through ten blocks worth of data, checking that the
	// offset at the very start of each block maps back to that index
	// with a zero within-block offset, and the last byte of each block
	// maps to the same index with the maximal within-block offset.
	var pos uint64
	for idx := uint32(0); idx < 10; idx++ {
		gotIdx, gotOff := Index(blockSize, pos)
		if gotIdx != idx || gotOff != 0 {
			t.Fatalf("Index(%d) = (%d,%d), want (%d,0)", pos, gotIdx, gotOff, idx)
		}

		size := DataSize(blockSize, idx)
		last := pos + uint64(size) - 1
		gotIdx, gotOff = Index(blockSize, last)
		if gotIdx != idx || gotOff != size-1 {
			t.Fatalf("Index(%d) = (%d,%d), want (%d,%d)", last, gotIdx, gotOff, idx, size-1)
		}

		pos += uint64(size)
	}
}

func TestCTZIndexFromSizeMatchesLastByte(t *testing.T) {
	const blockSize = 512
	for size := uint64(1); size < 20000; size += 137 {
		want, _ := Index(blockSize, size-1)
		got := CTZIndexFromSize(blockSize, size)
		if got != want {
			t.Fatalf("CTZIndexFromSize(%d) = %d, want %d", size, got, want)
		}
	}
}

func TestNpw2(t *testing.T) {
	cases := map[uint32]uint32{1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 8: 8, 9: 16}
	for in, want := range cases {
		if got := npw2(in); got != want {
			t.Fatalf("npw2(%d) = %d, want %d", in, got, want)
		}
	}
}
