package tag

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {

	cases := []Tag{
		{Valid: true, Type1: Type1Name, Chunk: ChunkReg, ID: 3, Size: 8},
		{Valid: true, Type1: Type1Struct, Chunk: ChunkCTZStruct, ID: 0, Size: 8},
		{Valid: true, Type1: Type1CRC, Chunk: 1, ID: 0x3ff, Size: 4},
		{Valid: false, Type1: Type1Splice, Chunk: ChunkDelete, ID: 0, Size: 0x3ff},
	}

	for _, c := range cases {
		v := Encode(c)
		got := Decode(v)
		if got != c {
			t.Fatalf("round trip mismatch: in=%+v encoded=%#x out=%+v", c, v, got)
		}
	}
}

func TestValidBitConvention(t *testing.T) {

	// A tag's "valid" bit is stored inverted (0 means live). Flipping a
	// single bit should always invert Valid and nothing else, since it
	// is the top bit of the 32-bit word.
	v := Encode(Tag{Valid: true, Type1: Type1Name, Chunk: ChunkDir, ID: 5, Size: 0})
	flipped := v ^ (1 << 31)
	got := Decode(flipped)
	if got.Valid {
		t.Fatalf("expected flipped top bit to clear Valid")
	}
	if got.Type1 != Type1Name || got.Chunk != ChunkDir || got.ID != 5 {
		t.Fatalf("flipping the valid bit corrupted other fields: %+v", got)
	}
}

func TestChainXORIsInvolution(t *testing.T) {

	prev := Encode(Tag{Valid: true, Type1: Type1Name, Chunk: ChunkReg, ID: 1, Size: 4})
	next := Encode(Tag{Valid: true, Type1: Type1Struct, Chunk: ChunkInlineStruct, ID: 1, Size: 4})

	stored := Chain(prev, next)
	recovered := Chain(prev, stored)
	if recovered != next {
		t.Fatalf("XOR chain did not invert: got %#x want %#x", recovered, next)
	}
}

func TestTypeCombinesType1AndChunk(t *testing.T) {
	tg := Tag{Type1: Type1Struct, Chunk: ChunkCTZStruct}
	if tg.Type() != uint16(Type1Struct)<<8|uint16(ChunkCTZStruct) {
		t.Fatalf("unexpected combined type: %#x", tg.Type())
	}
}

func TestCRCMatchesKnownValue(t *testing.T) {
	// "123456789" is the standard CRC-32/IEEE check string; its checksum
	// is well known and catches polynomial/init mistakes immediately.
	c := NewCRC()
	c.Update([]byte("123456789"))
	if c.Sum() != 0xCBF43926 {
		t.Fatalf("CRC-32/IEEE mismatch: got %#x want 0xcbf43926", c.Sum())
	}
}

func TestCRCIncremental(t *testing.T) {
	whole := NewCRC()
	whole.Update([]byte("hello world"))

	split := NewCRC()
	split.Update([]byte("hello"))
	split.Update([]byte(" world"))

	if whole.Sum() != split.Sum() {
		t.Fatalf("incremental CRC does not match whole-buffer CRC")
	}
}
