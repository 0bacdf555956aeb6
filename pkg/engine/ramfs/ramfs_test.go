package ramfs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/example/flashfs/pkg/block"
	"github.com/example/flashfs/pkg/engine"
	"github.com/example/flashfs/pkg/flash"
)

const testFlashSize = 128 * 1024

func newTestDevice(t *testing.T) (*flash.Mem, *block.Device) {
	t.Helper()
	ctrl := flash.NewMem(testFlashSize, block.DefaultBlockSize)
	geom := block.DefaultGeometry(flash.RegionInternal, testFlashSize)
	dev, err := block.NewDevice(ctrl, geom, 0)
	if err != nil {
		t.Fatalf("NewDevice failed: %v", err)
	}
	return ctrl, dev
}

// setupMounted formats and mounts a fresh filesystem.
func setupMounted(t *testing.T) (*flash.Mem, *block.Device, *FS) {
	t.Helper()
	ctrl, dev := newTestDevice(t)
	fs := New(dev)
	if err := fs.Format(); err != nil {
		t.Fatalf("Format failed: %v", err)
	}
	if err := fs.Mount(); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	return ctrl, dev, fs
}

func TestMountUnformatted(t *testing.T) {
	_, dev := newTestDevice(t)
	fs := New(dev)
	if err := fs.Mount(); !errors.Is(err, engine.ErrCorrupt) {
		t.Fatalf("Mount of erased flash = %v, want ErrCorrupt", err)
	}
}

func TestFormatMount(t *testing.T) {
	_, _, fs := setupMounted(t)
	blocks, err := fs.FSSize()
	if err != nil {
		t.Fatalf("FSSize failed: %v", err)
	}
	if blocks != 0 {
		t.Fatalf("FSSize on empty filesystem = %d, want 0", blocks)
	}
	if err := fs.Mount(); !errors.Is(err, engine.ErrInval) {
		t.Fatalf("second Mount = %v, want ErrInval", err)
	}
}

func TestPersistenceAcrossRemount(t *testing.T) {
	_, dev, fs := setupMounted(t)

	data := make([]byte, 10000)
	for i := range data {
		data[i] = byte(i)
	}
	f, err := fs.Open("/f", engine.OWrOnly|engine.OCreate)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := fs.SetAttr("/f", 't', []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("SetAttr failed: %v", err)
	}
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount failed: %v", err)
	}

	// A new engine over the same device sees everything.
	fs2 := New(dev)
	if err := fs2.Mount(); err != nil {
		t.Fatalf("remount failed: %v", err)
	}
	f, err = fs2.Open("/f", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open after remount failed: %v", err)
	}
	got := make([]byte, len(data))
	n, err := f.Read(got)
	if err != nil || n != len(data) {
		t.Fatalf("Read = %d, %v, want %d", n, err, len(data))
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("contents changed across remount")
	}
	f.Close()

	info, err := fs2.Stat("/d")
	if err != nil || info.Type != engine.TypeDirectory {
		t.Fatalf("Stat(/d) = %+v, %v, want directory", info, err)
	}
	buf := make([]byte, 4)
	if n, err := fs2.GetAttr("/f", 't', buf); err != nil || n != 4 {
		t.Fatalf("GetAttr = %d, %v, want 4", n, err)
	}
	if !bytes.Equal(buf, []byte{1, 2, 3, 4}) {
		t.Fatalf("attr = %v, want 1 2 3 4", buf)
	}

	blocks, err := fs2.FSSize()
	if err != nil {
		t.Fatalf("FSSize failed: %v", err)
	}
	if blocks < 2 {
		t.Fatalf("FSSize with 10000 bytes of data = %d blocks, want >= 2", blocks)
	}
}

func TestMountCorrupted(t *testing.T) {
	ctrl, dev, fs := setupMounted(t)
	f, err := fs.Open("/f", engine.OWrOnly|engine.OCreate)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f.Write([]byte("payload"))
	f.Close()
	if err := fs.Unmount(); err != nil {
		t.Fatalf("Unmount failed: %v", err)
	}

	// Damage the payload; the checksum must catch it.
	ctrl.Corrupt(headerSize+2, 4)
	fs2 := New(dev)
	if err := fs2.Mount(); !errors.Is(err, engine.ErrCorrupt) {
		t.Fatalf("Mount of damaged image = %v, want ErrCorrupt", err)
	}
}

func TestOpenSemantics(t *testing.T) {
	_, _, fs := setupMounted(t)

	if _, err := fs.Open("/missing", engine.ORdOnly); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("Open missing = %v, want ErrNoEnt", err)
	}
	f, err := fs.Open("/f", engine.OWrOnly|engine.OCreate)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := f.Read(make([]byte, 1)); !errors.Is(err, engine.ErrBadFile) {
		t.Fatalf("Read on write-only = %v, want ErrBadFile", err)
	}
	f.Write([]byte("abc"))
	f.Close()

	if _, err := fs.Open("/f", engine.OWrOnly|engine.OCreate|engine.OExcl); !errors.Is(err, engine.ErrExist) {
		t.Fatalf("exclusive create of existing = %v, want ErrExist", err)
	}
	if err := fs.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if _, err := fs.Open("/d", engine.ORdOnly); !errors.Is(err, engine.ErrIsDir) {
		t.Fatalf("Open of directory = %v, want ErrIsDir", err)
	}

	// Append positions every write at the end.
	f, err = fs.Open("/f", engine.OWrOnly|engine.OAppend)
	if err != nil {
		t.Fatalf("append open failed: %v", err)
	}
	f.Write([]byte("def"))
	f.Close()
	f, _ = fs.Open("/f", engine.ORdOnly)
	got := make([]byte, 6)
	f.Read(got)
	f.Close()
	if string(got) != "abcdef" {
		t.Fatalf("after append = %q, want abcdef", got)
	}
}

func TestSparseWriteZeroFills(t *testing.T) {
	_, _, fs := setupMounted(t)
	f, err := fs.Open("/f", engine.ORdWr|engine.OCreate)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := f.Seek(100, engine.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	f.Write([]byte("x"))
	info, err := fs.Stat("/f")
	if err != nil || info.Size != 101 {
		t.Fatalf("size after sparse write = %d, %v, want 101", info.Size, err)
	}
	if _, err := f.Seek(0, engine.SeekStart); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	head := make([]byte, 100)
	f.Read(head)
	for i, b := range head {
		if b != 0 {
			t.Fatalf("gap byte %d = %#x, want 0", i, b)
		}
	}
	f.Close()
}

func TestDirIteration(t *testing.T) {
	_, _, fs := setupMounted(t)
	for _, name := range []string{"b", "a", "c"} {
		f, err := fs.Open("/"+name, engine.OWrOnly|engine.OCreate)
		if err != nil {
			t.Fatalf("create %q failed: %v", name, err)
		}
		f.Close()
	}

	d, err := fs.OpenDir("/")
	if err != nil {
		t.Fatalf("OpenDir failed: %v", err)
	}
	defer d.Close()

	// Dot entries come first, then children in sorted order.
	want := []string{".", "..", "a", "b", "c"}
	for _, name := range want {
		info, ok, err := d.Read()
		if err != nil || !ok {
			t.Fatalf("Read = %v, %v, want entry %q", ok, err, name)
		}
		if info.Name != name {
			t.Fatalf("entry = %q, want %q", info.Name, name)
		}
	}
	if _, ok, _ := d.Read(); ok {
		t.Fatalf("Read past end returned an entry")
	}
	if err := d.Rewind(); err != nil {
		t.Fatalf("Rewind failed: %v", err)
	}
	info, ok, err := d.Read()
	if err != nil || !ok || info.Name != "." {
		t.Fatalf("Read after Rewind = %q, %v, %v, want .", info.Name, ok, err)
	}
}

func TestRenameSemantics(t *testing.T) {
	_, _, fs := setupMounted(t)
	f, _ := fs.Open("/f", engine.OWrOnly|engine.OCreate)
	f.Write([]byte("x"))
	f.Close()
	fs.Mkdir("/d")
	fs.Mkdir("/full")
	g, _ := fs.Open("/full/inner", engine.OWrOnly|engine.OCreate)
	g.Close()

	if err := fs.Rename("/f", "/d"); !errors.Is(err, engine.ErrIsDir) {
		t.Fatalf("rename file onto dir = %v, want ErrIsDir", err)
	}
	if err := fs.Rename("/d", "/f"); !errors.Is(err, engine.ErrNotDir) {
		t.Fatalf("rename dir onto file = %v, want ErrNotDir", err)
	}
	if err := fs.Rename("/d", "/full"); !errors.Is(err, engine.ErrNotEmpty) {
		t.Fatalf("rename dir onto non-empty dir = %v, want ErrNotEmpty", err)
	}
	if err := fs.Rename("/missing", "/x"); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("rename missing = %v, want ErrNoEnt", err)
	}
	if err := fs.Rename("/f", "/g"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if _, err := fs.Stat("/f"); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("source survived rename: %v", err)
	}
}

func TestAttrs(t *testing.T) {
	_, _, fs := setupMounted(t)
	f, _ := fs.Open("/f", engine.OWrOnly|engine.OCreate)
	f.Close()

	buf := make([]byte, 8)
	if _, err := fs.GetAttr("/f", 't', buf); !errors.Is(err, engine.ErrNoAttr) {
		t.Fatalf("GetAttr unset = %v, want ErrNoAttr", err)
	}
	if err := fs.SetAttr("/f", 't', []byte{9, 9}); err != nil {
		t.Fatalf("SetAttr failed: %v", err)
	}
	n, err := fs.GetAttr("/f", 't', buf)
	if err != nil || n != 2 {
		t.Fatalf("GetAttr = %d, %v, want 2", n, err)
	}
	if err := fs.SetAttr("/missing", 't', []byte{1}); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("SetAttr on missing = %v, want ErrNoEnt", err)
	}
}
