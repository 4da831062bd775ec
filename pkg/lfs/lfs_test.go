package lfs

import (
	"io"
	"testing"

	"github.com/flashfs/flashfs/pkg/bd"
)

func newTestDevice(t *testing.T, blockCount uint32) bd.Device {
	t.Helper()
	geo := bd.Geometry{ReadSize: 16, ProgSize: 16, BlockSize: 512, BlockCount: blockCount}
	ram, err := bd.NewRAM(geo)
	if err != nil {
		t.Fatalf("NewRAM: %v", err)
	}
	return ram
}

func testConfig(dev bd.Device) Config {
	return Config{Device: dev, CacheSize: 16, LookaheadSize: 2}
}

func mustMount(t *testing.T, dev bd.Device) *FS {
	t.Helper()
	if err := Format(testConfig(dev)); err != nil {
		t.Fatalf("Format: %v", err)
	}
	fs, err := Mount(testConfig(dev))
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return fs
}

func TestFormatThenMount(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)
	defer fs.Close()

	info, err := fs.Stat("/")
	if err != nil {
		t.Fatalf("Stat(/): %v", err)
	}
	if info.Type != TypeDir {
		t.Fatalf("expected root to be a directory")
	}
}

func TestMkdirAndReadDir(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)
	defer fs.Close()

	if err := fs.Mkdir("/docs"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Mkdir("/docs"); err == nil {
		t.Fatalf("expected second Mkdir of the same path to fail")
	}

	entries, err := fs.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "docs" || entries[0].Type != TypeDir {
		t.Fatalf("unexpected root listing: %+v", entries)
	}

	if _, err := fs.Stat("/nope"); err != ErrNotExist {
		t.Fatalf("expected ErrNotExist, got %v", err)
	}
}

func TestFileWriteReadInline(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)
	defer fs.Close()

	f, err := fs.Open("/hello.txt", OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f2, err := fs.Open("/hello.txt", 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()

	buf := make([]byte, 64)
	n, err := f2.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello world" {
		t.Fatalf("expected %q, got %q", "hello world", buf[:n])
	}

	info, err := fs.Stat("/hello.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 11 {
		t.Fatalf("expected size 11, got %d", info.Size)
	}
}

func TestFileRelocatesToCTZWhenOutgrowingInline(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)
	defer fs.Close()

	f, err := fs.Open("/big.bin", OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := f.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := fs.Stat("/big.bin")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != uint64(len(payload)) {
		t.Fatalf("expected size %d, got %d", len(payload), info.Size)
	}

	f2, err := fs.Open("/big.bin", 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f2.Close()

	got := make([]byte, len(payload))
	total := 0
	for total < len(got) {
		n, err := f2.Read(got[total:])
		total += n
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Read: %v", err)
		}
	}
	if total != len(payload) {
		t.Fatalf("expected to read %d bytes, got %d", len(payload), total)
	}
	for i := range payload {
		if got[i] != payload[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], payload[i])
		}
	}
}

func TestRemoveFileAndEmptyDir(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)
	defer fs.Close()

	f, err := fs.Open("/tmp.txt", OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()

	if err := fs.Remove("/tmp.txt"); err != nil {
		t.Fatalf("Remove file: %v", err)
	}
	if _, err := fs.Stat("/tmp.txt"); err != ErrNotExist {
		t.Fatalf("expected file to be gone, got %v", err)
	}

	if err := fs.Mkdir("/empty"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Remove("/empty"); err != nil {
		t.Fatalf("Remove empty dir: %v", err)
	}

	if err := fs.Mkdir("/full"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	if err := fs.Mkdir("/full/child"); err != nil {
		t.Fatalf("Mkdir child: %v", err)
	}
	if err := fs.Remove("/full"); err != ErrNotEmpty {
		t.Fatalf("expected ErrNotEmpty, got %v", err)
	}
}

func TestRenameMovesEntry(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)
	defer fs.Close()

	f, err := fs.Open("/a.txt", OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Write([]byte("payload"))
	f.Close()

	if err := fs.Mkdir("/sub"); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	if err := fs.Rename("/a.txt", "/sub/b.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	if _, err := fs.Stat("/a.txt"); err != ErrNotExist {
		t.Fatalf("expected source to be gone, got %v", err)
	}
	info, err := fs.Stat("/sub/b.txt")
	if err != nil {
		t.Fatalf("Stat destination: %v", err)
	}
	if info.Size != 7 {
		t.Fatalf("expected size 7, got %d", info.Size)
	}

	if !fs.acc.Current().IsZero() {
		t.Fatalf("expected gstate to settle back to zero after rename, got %+v", fs.acc.Current())
	}
}

func TestSetGetRemoveAttr(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)
	defer fs.Close()

	f, err := fs.Open("/a.txt", OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()

	if err := fs.SetAttr("/a.txt", 0x10, []byte("v1")); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}
	got, err := fs.GetAttr("/a.txt", 0x10)
	if err != nil {
		t.Fatalf("GetAttr: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("expected v1, got %q", got)
	}

	if err := fs.RemoveAttr("/a.txt", 0x10); err != nil {
		t.Fatalf("RemoveAttr: %v", err)
	}
	if _, err := fs.GetAttr("/a.txt", 0x10); err != ErrNoAttr {
		t.Fatalf("expected ErrNoAttr, got %v", err)
	}
}

func TestMountAfterCrashDuringRenameFinishesTheMove(t *testing.T) {
	dev := newTestDevice(t, 32)
	fs := mustMount(t, dev)

	f, err := fs.Open("/a.txt", OCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f.Close()

	r, err := fs.lookup("/a.txt")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}

	// Simulate a crash that landed the destination CREATE but never
	// cleared the pending move nor deleted the source: hand-roll the
	// state an interrupted Rename would have left behind, pointing at
	// a.txt's actual holding pair and id.
	fs.acc.PrepMove(r.ID, r.Holding.Pair)
	if err := fs.commitGState(); err != nil {
		t.Fatalf("commitGState: %v", err)
	}
	if err := fs.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	remounted, err := Mount(testConfig(dev))
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	defer remounted.Close()

	if !remounted.acc.Current().IsZero() {
		t.Fatalf("expected recover() to settle gstate to zero, got %+v", remounted.acc.Current())
	}
	if _, err := remounted.Stat("/a.txt"); err != ErrNotExist {
		t.Fatalf("expected the interrupted move's source to be swept away, got %v", err)
	}
}
