package tag

import "encoding/binary"

// The wire format mixes byte orders by design (spec §6.2): ordinary
// multi-byte fields (revision counters, struct payloads, CRCs) are
// little-endian, while the tag header itself is big-endian so that the
// XOR-chain delta coding operates MSB-first. Helpers are named after the
// littlefs convention (from-wire / to-wire) so call sites read as
// explicit conversions rather than implicit struct layout, per spec §9
// ("never read fields through host-typed struct layout").

// FromLE32 decodes a little-endian uint32.
func FromLE32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

// ToLE32 encodes v as little-endian into a fresh 4-byte slice.
func ToLE32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// PutLE32 encodes v as little-endian into b, which must be >= 4 bytes.
func PutLE32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}

// FromBE32 decodes a big-endian uint32 (tag headers).
func FromBE32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// ToBE32 encodes v as big-endian into a fresh 4-byte slice.
func ToBE32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// PutBE32 encodes v as big-endian into b, which must be >= 4 bytes.
func PutBE32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}
