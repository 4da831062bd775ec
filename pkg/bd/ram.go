package bd

import "fmt"

// RAM is an in-memory Device, the backend used by the engine's own test
// suite and by the scenarios in spec §8 ("RAM BD with block_size=4096,
// ..."). Blocks start in the all-ones erased state real NOR/NAND resets
// to; SetEraseValue lets a test override the fill byte to exercise a
// device with a different erased-state convention.
type RAM struct {
	geo          Geometry
	blocks       [][]byte
	eraseValue   byte
	erased       []bool
	corruptErase map[uint32]bool
	corruptProg  map[uint32]bool
}

// NewRAM allocates a RAM device of the given geometry, all blocks erased.
func NewRAM(geo Geometry) (*RAM, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	r := &RAM{
		geo:          geo,
		blocks:       make([][]byte, geo.BlockCount),
		eraseValue:   0xff,
		erased:       make([]bool, geo.BlockCount),
		corruptErase: map[uint32]bool{},
		corruptProg:  map[uint32]bool{},
	}
	for i := range r.blocks {
		r.blocks[i] = make([]byte, geo.BlockSize)
		for j := range r.blocks[i] {
			r.blocks[i][j] = r.eraseValue
		}
		r.erased[i] = true
	}
	return r, nil
}

// SetEraseValue changes the byte Erase fills a block with. Must be
// called before any block is written; it does not retroactively
// rewrite already-erased blocks.
func (r *RAM) SetEraseValue(v byte) {
	r.eraseValue = v
}

// Geometry implements Device.
func (r *RAM) Geometry() Geometry { return r.geo }

func (r *RAM) checkBounds(op string, block, off, size uint32) error {
	if block >= r.geo.BlockCount {
		return fmt.Errorf("bd/ram: %s: block %d out of range (count %d)", op, block, r.geo.BlockCount)
	}
	if off+size > r.geo.BlockSize {
		return fmt.Errorf("bd/ram: %s: range [%d,%d) exceeds block_size %d", op, off, off+size, r.geo.BlockSize)
	}
	return nil
}

// Read implements Device.
func (r *RAM) Read(block, off uint32, buf []byte) error {
	if err := r.checkBounds("read", block, off, uint32(len(buf))); err != nil {
		return err
	}
	copy(buf, r.blocks[block][off:off+uint32(len(buf))])
	return nil
}

// Prog implements Device. Programming an un-erased block is a caller bug
// in the real hardware; here it is still allowed (RAM has no program
// restriction) but FailNextProg lets tests simulate a failing write.
func (r *RAM) Prog(block, off uint32, buf []byte) error {
	if err := r.checkBounds("prog", block, off, uint32(len(buf))); err != nil {
		return err
	}
	if r.corruptProg[block] {
		delete(r.corruptProg, block)
		return fmt.Errorf("bd/ram: prog block %d: %w", block, ErrCorrupt)
	}
	copy(r.blocks[block][off:off+uint32(len(buf))], buf)
	r.erased[block] = false
	return nil
}

// Erase implements Device.
func (r *RAM) Erase(block uint32) error {
	if block >= r.geo.BlockCount {
		return fmt.Errorf("bd/ram: erase: block %d out of range", block)
	}
	if r.corruptErase[block] {
		delete(r.corruptErase, block)
		return fmt.Errorf("bd/ram: erase block %d: %w", block, ErrCorrupt)
	}
	b := r.blocks[block]
	for i := range b {
		b[i] = r.eraseValue
	}
	r.erased[block] = true
	return nil
}

// Sync implements Device; RAM has nothing to flush.
func (r *RAM) Sync() error { return nil }

// FailNextErase arranges for the next Erase of block to return ErrCorrupt
// exactly once, used by power-loss-at-compaction tests (spec §8 scenario 5).
func (r *RAM) FailNextErase(block uint32) {
	r.corruptErase[block] = true
}

// ClearFailure cancels a pending FailNextErase/FailNextProg for block.
func (r *RAM) ClearFailure(block uint32) {
	delete(r.corruptErase, block)
	delete(r.corruptProg, block)
}

// FailNextProg arranges for the next Prog of block to return ErrCorrupt.
func (r *RAM) FailNextProg(block uint32) {
	r.corruptProg[block] = true
}
