package bd

import (
	"bytes"
	"fmt"
)

// noBlock is the cache's "empty" sentinel (spec §4.1: "sentinel block = ⊥").
const noBlock = ^uint32(0)

type cacheBuf struct {
	block uint32
	off   uint32
	size  uint32 // valid byte count starting at off
	buf   []byte // len == cache size
}

func newCacheBuf(size uint32) cacheBuf {
	return cacheBuf{block: noBlock, buf: make([]byte, size)}
}

func (c *cacheBuf) drop() {
	c.block = noBlock
	c.off = 0
	c.size = 0
}

// overlap reports whether off falls inside the cached range on the same
// block, and if so returns how many bytes from off onward the cache can
// satisfy immediately.
func (c *cacheBuf) overlap(block, off uint32) (covered uint32, ok bool) {
	if c.block != block || off < c.off || off >= c.off+c.size {
		return 0, false
	}
	return c.off + c.size - off, true
}

func alignDown(v, a uint32) uint32 { return v - v%a }
func alignUp(v, a uint32) uint32 {
	if v%a == 0 {
		return v
	}
	return v + (a - v%a)
}

// Cache wraps a raw Device with the two fixed-size buffers described in
// spec §4.1: a read cache that coalesces small reads, and a program
// cache that buffers writes until a full program-unit is ready.
type Cache struct {
	dev       Device
	geo       Geometry
	cacheSize uint32
	rcache    cacheBuf
	pcache    cacheBuf
	validate  bool
}

// NewCache wraps dev with a read/program cache of the given size. size
// must be a multiple of both ReadSize and ProgSize (spec §3).
func NewCache(dev Device, cacheSize uint32) (*Cache, error) {
	geo := dev.Geometry()
	if cacheSize%geo.ReadSize != 0 || cacheSize%geo.ProgSize != 0 {
		return nil, fmt.Errorf("bd: cache_size %d must be a multiple of read_size %d and prog_size %d",
			cacheSize, geo.ReadSize, geo.ProgSize)
	}
	if geo.BlockSize%cacheSize != 0 {
		return nil, fmt.Errorf("bd: block_size %d must be a multiple of cache_size %d", geo.BlockSize, cacheSize)
	}
	return &Cache{
		dev:       dev,
		geo:       geo,
		cacheSize: cacheSize,
		rcache:    newCacheBuf(cacheSize),
		pcache:    newCacheBuf(cacheSize),
	}, nil
}

// Geometry returns the underlying device geometry.
func (c *Cache) Geometry() Geometry { return c.geo }

// Read satisfies a read of size len(buf) at (block, off), preferring the
// program cache (which shadows not-yet-flushed writes), then the read
// cache, refilling the read cache as needed. hint is an upper bound on
// how many additional bytes the caller expects to consume from this
// block, letting the cache preload more than this call alone needs.
func (c *Cache) Read(hint, block, off uint32, buf []byte) error {

	if block >= c.geo.BlockCount {
		return fmt.Errorf("bd: read: block %d out of range", block)
	}

	for len(buf) > 0 {

		if n, ok := c.pcache.overlap(block, off); ok {
			d := min32(uint32(len(buf)), n)
			start := off - c.pcache.off
			copy(buf[:d], c.pcache.buf[start:start+d])
			buf = buf[d:]
			off += d
			continue
		}

		if n, ok := c.rcache.overlap(block, off); ok {
			d := min32(uint32(len(buf)), n)
			start := off - c.rcache.off
			copy(buf[:d], c.rcache.buf[start:start+d])
			buf = buf[d:]
			off += d
			continue
		}

		// Bypass the cache entirely for requests that are already
		// read_size-aligned and at least cache_size long: reading into
		// the cache first would just be a copy we don't need.
		if off%c.geo.ReadSize == 0 && uint32(len(buf)) >= c.cacheSize {
			n := alignDown(uint32(len(buf)), c.geo.ReadSize)
			if err := c.dev.Read(block, off, buf[:n]); err != nil {
				return err
			}
			buf = buf[n:]
			off += n
			continue
		}

		// Refill: never cross a block boundary in one underlying read.
		c.rcache.drop()
		rcOff := alignDown(off, c.geo.ReadSize)
		rcEnd := min32(alignUp(off+maxu32(hint, uint32(len(buf))), c.geo.ReadSize), c.geo.BlockSize)
		rcSize := min32(rcEnd-rcOff, c.cacheSize)
		if off-rcOff >= rcSize {
			// off itself didn't fit inside a cache_size-wide window;
			// widen to the largest legal window starting at rcOff.
			rcSize = min32(c.cacheSize, c.geo.BlockSize-rcOff)
		}
		if err := c.dev.Read(block, rcOff, c.rcache.buf[:rcSize]); err != nil {
			return err
		}
		c.rcache.block = block
		c.rcache.off = rcOff
		c.rcache.size = rcSize
	}

	return nil
}

// Prog appends buf to the program cache at (block, off), flushing
// whenever the cache fills or the caller moves to a different block or
// a non-contiguous offset. validate, if true, makes every flush this call
// triggers because the cache filled read back and byte-compare; a flush
// forced by a change of block or offset is not validated, and bytes still
// buffered when Prog returns are validated only by a later Flush(true).
func (c *Cache) Prog(block, off uint32, buf []byte, validate bool) error {

	if block >= c.geo.BlockCount {
		return fmt.Errorf("bd: prog: block %d out of range", block)
	}

	for len(buf) > 0 {

		if c.pcache.block != noBlock && (c.pcache.block != block || off != c.pcache.off+c.pcache.size) {
			if err := c.Flush(false); err != nil {
				return err
			}
		}

		if c.pcache.block == noBlock {
			c.pcache.block = block
			c.pcache.off = off
			c.pcache.size = 0
		}

		d := min32(uint32(len(buf)), c.cacheSize-c.pcache.size)
		copy(c.pcache.buf[c.pcache.size:c.pcache.size+d], buf[:d])
		c.pcache.size += d
		buf = buf[d:]
		off += d

		if c.pcache.size == c.cacheSize {
			if err := c.Flush(validate); err != nil {
				return err
			}
		}
	}

	return nil
}

// Flush writes out any buffered program-cache bytes, zeroing the buffer
// afterward (invariant C2). A partially filled cache is padded to a
// whole number of program units, counted from the cache's starting
// offset, before being written; the padding never runs past the end of
// the block, so a cache that started at an unaligned offset near the
// block end is written only up to that end. The pad bytes are
// whatever the zeroed buffer already holds, matching the "tail padded to
// prog_size" contract in spec §4.1.
func (c *Cache) Flush(validate bool) error {

	if c.pcache.block == noBlock || c.pcache.size == 0 {
		return nil
	}

	progLen := alignUp(c.pcache.size, c.geo.ProgSize)
	block, off := c.pcache.block, c.pcache.off
	if progLen > c.geo.BlockSize-off {
		progLen = c.geo.BlockSize - off
	}

	if err := c.dev.Prog(block, off, c.pcache.buf[:progLen]); err != nil {
		return err
	}

	if validate {
		c.rcache.drop()
		check := make([]byte, progLen)
		if err := c.dev.Read(block, off, check); err != nil {
			return err
		}
		if !bytes.Equal(check, c.pcache.buf[:progLen]) {
			return fmt.Errorf("bd: prog validate block %d off %d: %w", block, off, ErrCorrupt)
		}
	}

	for i := range c.pcache.buf {
		c.pcache.buf[i] = 0
	}
	c.pcache.drop()

	return nil
}

// Erase passes straight through to the device; erasure is never cached
// (spec §4.1 "no caching; passes through").
func (c *Cache) Erase(block uint32) error {
	if c.pcache.block == block {
		c.pcache.drop()
	}
	if c.rcache.block == block {
		c.rcache.drop()
	}
	return c.dev.Erase(block)
}

// Sync drops the read cache, flushes the program cache with validation,
// and syncs the underlying device.
func (c *Cache) Sync() error {
	c.rcache.drop()
	if err := c.Flush(true); err != nil {
		return err
	}
	return c.dev.Sync()
}

// Drop discards both caches without flushing, used when a commit is
// abandoned (e.g. mid-compaction relocation) and its buffered bytes must
// never reach the device.
func (c *Cache) Drop() {
	c.rcache.drop()
	c.pcache.drop()
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func maxu32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
