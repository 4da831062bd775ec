package bd

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// File is an os.File-backed Device for real flash-image files on disk.
// It takes an advisory exclusive flock for its lifetime: spec §3's
// "Non-goals" rule out concurrent mounts of the same image, and a flock
// turns an accidental second mount into an immediate, loud error instead
// of silent corruption.
type File struct {
	geo  Geometry
	f    *os.File
	size int64
}

// OpenFile opens (without creating) an existing flash-image file at path
// and wraps it as a Device of the given geometry. The file must already
// be at least geo.BlockSize*geo.BlockCount bytes.
func OpenFile(path string, geo Geometry) (*File, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("bd/file: open %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("bd/file: %s is locked by another mount: %w", path, err)
	}

	want := int64(geo.BlockSize) * int64(geo.BlockCount)
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if info.Size() < want {
		f.Close()
		return nil, fmt.Errorf("bd/file: %s is %d bytes, need at least %d", path, info.Size(), want)
	}

	return &File{geo: geo, f: f, size: want}, nil
}

// CreateFile creates (truncating if necessary) a new flash-image file of
// exactly the geometry's capacity, ready for Format.
func CreateFile(path string, geo Geometry) (*File, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("bd/file: create %s: %w", path, err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("bd/file: %s is locked by another mount: %w", path, err)
	}

	size := int64(geo.BlockSize) * int64(geo.BlockCount)
	if err := f.Truncate(size); err != nil {
		f.Close()
		return nil, err
	}

	return &File{geo: geo, f: f, size: size}, nil
}

// Geometry implements Device.
func (fd *File) Geometry() Geometry { return fd.geo }

func (fd *File) offset(block, off uint32) int64 {
	return int64(block)*int64(fd.geo.BlockSize) + int64(off)
}

// Read implements Device.
func (fd *File) Read(block, off uint32, buf []byte) error {
	_, err := fd.f.ReadAt(buf, fd.offset(block, off))
	if err != nil {
		return fmt.Errorf("bd/file: read block %d: %w", block, err)
	}
	return nil
}

// Prog implements Device.
func (fd *File) Prog(block, off uint32, buf []byte) error {
	_, err := fd.f.WriteAt(buf, fd.offset(block, off))
	if err != nil {
		return fmt.Errorf("bd/file: prog block %d: %w", block, err)
	}
	return nil
}

// Erase implements Device by writing 0xff (the common NOR/NAND erased
// value) across the block.
func (fd *File) Erase(block uint32) error {
	blank := make([]byte, fd.geo.BlockSize)
	for i := range blank {
		blank[i] = 0xff
	}
	_, err := fd.f.WriteAt(blank, fd.offset(block, 0))
	if err != nil {
		return fmt.Errorf("bd/file: erase block %d: %w", block, err)
	}
	return nil
}

// Sync implements Device.
func (fd *File) Sync() error {
	return fd.f.Sync()
}

// Close flushes, releases the flock, and closes the underlying file.
func (fd *File) Close() error {
	if err := fd.f.Sync(); err != nil {
		fd.f.Close()
		return err
	}
	_ = unix.Flock(int(fd.f.Fd()), unix.LOCK_UN)
	return fd.f.Close()
}
