package lfs

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/flashfs/flashfs/pkg/alloc"
	"github.com/flashfs/flashfs/pkg/bd"
	"github.com/flashfs/flashfs/pkg/elog"
	"github.com/flashfs/flashfs/pkg/gstate"
	"github.com/flashfs/flashfs/pkg/mdir"
	"github.com/flashfs/flashfs/pkg/tag"
)

// VersionMajor/VersionMinor identify the on-disk format this engine
// reads and writes (spec §6.2). Mount refuses a different major or a
// larger minor than it understands.
const (
	VersionMajor = 2
	VersionMinor = 0
)

// rootPair is where every volume's root directory (and the superblock
// entry that lives alongside it, at id 0) resides.
var rootPair = [2]uint32{0, 1}

// Config bundles format/mount-time parameters (spec §6.3).
type Config struct {
	Device       bd.Device
	CacheSize    uint32
	LookaheadSize uint32
	BlockCycles  uint32 // accepted but not read: no wear-triggered relocation is performed
	NameMax      uint32
	FileMax      uint64
	AttrMax      uint32
	Logger       elog.Logger
}

func (c *Config) withDefaults() {
	if c.CacheSize == 0 {
		c.CacheSize = c.Device.Geometry().ProgSize
	}
	if c.LookaheadSize == 0 {
		c.LookaheadSize = 32
	}
	if c.NameMax == 0 {
		c.NameMax = 255
	}
	if c.FileMax == 0 {
		c.FileMax = 2147483647
	}
	if c.AttrMax == 0 {
		c.AttrMax = 1022
	}
	if c.Logger == nil {
		c.Logger = elog.NewDiscardLogger()
	}
}

// inlineLimit is the largest a file may be and still be stored inline
// in its owning MDIR (spec §3's "≤ ~min(cache_size, block_size/8,
// 1022)"), computed from the active geometry on each call.
func (c *Config) inlineLimit() uint16 {
	geo := c.Device.Geometry()
	limit := c.CacheSize
	if bs := geo.BlockSize / 8; bs < limit {
		limit = bs
	}
	if limit > tag.MaxSize {
		limit = tag.MaxSize
	}
	return uint16(limit)
}

// FS is a mounted volume. Every exported method here runs to
// completion synchronously (spec §5's single-threaded cooperative
// model); concurrent calls from multiple goroutines are the caller's
// responsibility to serialize.
type FS struct {
	cfg     Config
	cache   *bd.Cache
	alloc   *alloc.Allocator
	acc     *gstate.Accumulator
	mountID uuid.UUID
	open    []*File
}

func (fs *FS) allocFunc() (uint32, error) {
	return fs.alloc.Alloc(fs.traverseLive)
}

// Format writes a fresh, empty volume: it erases root pair {0,1} and
// writes the superblock entry at id 0 into it. No other block is
// erased; the allocator treats every block that no live structure
// reaches as free.
func Format(cfg Config) error {
	cfg.withDefaults()
	if err := cfg.Device.Geometry().Validate(); err != nil {
		return err
	}
	cache, err := bd.NewCache(cfg.Device, cfg.CacheSize)
	if err != nil {
		return err
	}

	geo := cfg.Device.Geometry()
	sb := make([]byte, 24)
	tag.PutLE32(sb[0:4], uint32(VersionMajor)<<16|uint32(VersionMinor))
	tag.PutLE32(sb[4:8], geo.BlockSize)
	tag.PutLE32(sb[8:12], geo.BlockCount)
	tag.PutLE32(sb[12:16], cfg.NameMax)
	tag.PutLE32(sb[16:20], uint32(cfg.FileMax))
	tag.PutLE32(sb[20:24], cfg.AttrMax)

	attrs := []mdir.Attr{
		{Type1: tag.Type1Splice, Chunk: tag.ChunkCreate, ID: 0},
		{Type1: tag.Type1Name, Chunk: tag.ChunkSuperblock, ID: 0, Data: []byte("littlefs")},
		{Type1: tag.Type1Struct, Chunk: tag.ChunkInlineStruct, ID: 0, Data: sb},
	}

	if _, err := mdir.Format(cache, rootPair, attrs, gstate.Encode(gstate.State{})); err != nil {
		return fmt.Errorf("lfs: format: %w", err)
	}
	return cache.Sync()
}

// Mount opens an existing volume, validates the superblock, reconstructs
// gstate from the root pair, and runs the recovery pass (orphan sweep,
// interrupted-move cleanup) before returning.
func Mount(cfg Config) (*FS, error) {
	cfg.withDefaults()
	if err := cfg.Device.Geometry().Validate(); err != nil {
		return nil, err
	}
	cache, err := bd.NewCache(cfg.Device, cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	root, err := mdir.Fetch(cache, rootPair)
	if err != nil {
		return nil, fmt.Errorf("lfs: mount: %w", err)
	}
	sbEntry, ok := root.Get(tag.Type1Name, tag.ChunkSuperblock, 0)
	if !ok || string(sbEntry.Data) != "littlefs" {
		return nil, fmt.Errorf("lfs: mount: no superblock found at root pair")
	}
	structEntry, ok := root.Get(tag.Type1Struct, tag.ChunkInlineStruct, 0)
	if !ok || len(structEntry.Data) < 24 {
		return nil, fmt.Errorf("lfs: mount: superblock missing its inline struct")
	}
	versionWord := tag.FromLE32(structEntry.Data[0:4])
	major, minor := uint16(versionWord>>16), uint16(versionWord)
	if major != VersionMajor {
		return nil, fmt.Errorf("lfs: mount: incompatible major version %d (engine is %d)", major, VersionMajor)
	}
	if minor > VersionMinor {
		return nil, fmt.Errorf("lfs: mount: volume minor version %d is newer than this engine (%d)", minor, VersionMinor)
	}

	blockCount := tag.FromLE32(structEntry.Data[8:12])
	if blockCount != cfg.Device.Geometry().BlockCount {
		return nil, fmt.Errorf("lfs: mount: superblock block_count %d does not match device geometry %d",
			blockCount, cfg.Device.Geometry().BlockCount)
	}

	fs := &FS{
		cfg:     cfg,
		cache:   cache,
		alloc:   alloc.New(cfg.Device.Geometry().BlockCount, cfg.LookaheadSize),
		acc:     gstate.NewAccumulator(gstate.Decode(root.GState)),
		mountID: uuid.New(),
	}

	if err := fs.recover(); err != nil {
		return nil, fmt.Errorf("lfs: mount: recovery: %w", err)
	}
	return fs, nil
}

// Sync flushes the underlying cached device. Open file handles must be
// synced individually first (spec §4.6 "sync/close"). Every block
// handed out by the allocator since the last Sync is now durably
// referenced, so the allocator's Ack clears its rescan countdown
// (spec invariant A2).
func (fs *FS) Sync() error {
	if err := fs.cache.Sync(); err != nil {
		return err
	}
	fs.alloc.Ack()
	return nil
}

// Close syncs every still-open file handle and then the device.
func (fs *FS) Close() error {
	for _, f := range append([]*File{}, fs.open...) {
		if err := f.Close(); err != nil {
			return err
		}
	}
	return fs.Sync()
}

// ForceConsistency re-runs the recovery pass (orphan sweep, interrupted
// move cleanup) without remounting — useful after a caller has detected
// a gstate inconsistency through Traverse-based fsck tooling.
func (fs *FS) ForceConsistency() error {
	return fs.recover()
}
