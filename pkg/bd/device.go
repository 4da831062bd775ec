// Package bd defines the block-device port the engine is built against
// (spec §6.1) and the cached layer (§4.1) every higher subsystem talks to.
// The raw Device interface and its RAM/file-backed implementations are
// the "external collaborators" spec.md treats as out of scope for the
// engine itself; they're included here so the engine has something to
// run against in tests and from the CLI.
package bd

import (
	"errors"
	"fmt"
)

// Sentinel errors a Device implementation may return. ErrCorrupt signals
// a bad block (erase/prog failure, or a failed validating read-back);
// the engine responds to it with block relocation (spec §7).
var (
	ErrCorrupt = errors.New("bd: corrupt block")
	ErrIO      = errors.New("bd: io error")
)

// Geometry describes the fixed, format-time shape of the device (spec §3).
type Geometry struct {
	ReadSize   uint32
	ProgSize   uint32
	BlockSize  uint32
	BlockCount uint32
}

// Validate checks the geometry invariants spec.md requires: ProgSize no
// larger than BlockSize, and BlockSize a whole multiple of both.
func (g Geometry) Validate() error {
	if g.ReadSize == 0 || g.ProgSize == 0 || g.BlockSize == 0 || g.BlockCount == 0 {
		return errors.New("bd: geometry fields must be non-zero")
	}
	if g.ProgSize > g.BlockSize {
		return fmt.Errorf("bd: prog_size %d exceeds block_size %d", g.ProgSize, g.BlockSize)
	}
	if g.BlockSize%g.ProgSize != 0 {
		return fmt.Errorf("bd: block_size %d is not a multiple of prog_size %d", g.BlockSize, g.ProgSize)
	}
	if g.BlockSize%g.ReadSize != 0 {
		return fmt.Errorf("bd: block_size %d is not a multiple of read_size %d", g.BlockSize, g.ReadSize)
	}
	return nil
}

// Device is the four-operation block-device port (spec §6.1). off and
// size are multiples of ReadSize for Read and of ProgSize for Prog.
// Prog assumes the target range has been Erased and not yet programmed.
type Device interface {
	Geometry() Geometry
	Read(block, off uint32, buf []byte) error
	Prog(block, off uint32, buf []byte) error
	Erase(block uint32) error
	Sync() error
}
