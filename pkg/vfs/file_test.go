package vfs

import (
	"bytes"
	"errors"
	"testing"

	"github.com/example/flashfs/pkg/engine"
)

func TestFileWriteSeekRead(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))

	// Spans several erase blocks.
	data := make([]byte, 3*int(inst.Geometry().BlockSize)+123)
	for i := range data {
		data[i] = byte(i % 251)
	}
	writeFile(t, inst, "/big.bin", data)

	if got := readFile(t, inst, "/big.bin"); !bytes.Equal(got, data) {
		t.Fatalf("read back %d bytes, mismatch with %d written", len(got), len(data))
	}

	fd, err := inst.Open("/big.bin", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer inst.Close(fd)

	pos, err := inst.Seek(fd, 1000, engine.SeekStart)
	if err != nil || pos != 1000 {
		t.Fatalf("Seek(1000, start) = %d, %v", pos, err)
	}
	buf := make([]byte, 10)
	if _, err := inst.Read(fd, buf); err != nil {
		t.Fatalf("Read after seek failed: %v", err)
	}
	if !bytes.Equal(buf, data[1000:1010]) {
		t.Fatalf("Read after seek = %v, want %v", buf, data[1000:1010])
	}

	pos, err = inst.Seek(fd, -10, engine.SeekEnd)
	if err != nil || pos != int64(len(data)-10) {
		t.Fatalf("Seek(-10, end) = %d, %v", pos, err)
	}
	if _, err := inst.Seek(fd, 0, engine.Whence(9)); !errors.Is(err, engine.ErrInval) {
		t.Fatalf("Seek with bad whence = %v, want ErrInval", err)
	}
}

func TestFileReadAtEOF(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))
	writeFile(t, inst, "/small.txt", []byte("abc"))

	fd, err := inst.Open("/small.txt", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer inst.Close(fd)

	buf := make([]byte, 16)
	n, err := inst.Read(fd, buf)
	if err != nil || n != 3 {
		t.Fatalf("Read = %d, %v, want 3", n, err)
	}
	n, err = inst.Read(fd, buf)
	if err != nil || n != 0 {
		t.Fatalf("Read at EOF = %d, %v, want 0, nil", n, err)
	}
}

func TestOpenFlags(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))

	if _, err := inst.Open("/missing", engine.ORdOnly); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("Open missing = %v, want ErrNoEnt", err)
	}

	writeFile(t, inst, "/f", []byte("hello"))
	if _, err := inst.Open("/f", engine.OWrOnly|engine.OCreate|engine.OExcl); !errors.Is(err, engine.ErrExist) {
		t.Fatalf("Open O_EXCL on existing = %v, want ErrExist", err)
	}

	// Truncate discards previous contents.
	fd, err := inst.Open("/f", engine.OWrOnly|engine.OTrunc)
	if err != nil {
		t.Fatalf("Open O_TRUNC failed: %v", err)
	}
	inst.Close(fd)
	if info, err := inst.Stat("/f"); err != nil || info.Size != 0 {
		t.Fatalf("size after truncate = %d (err %v), want 0", info.Size, err)
	}
}

func TestCloseReleasesDescriptor(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))
	writeFile(t, inst, "/f", []byte("x"))

	fd, err := inst.Open("/f", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := inst.Close(fd); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := inst.Close(fd); !errors.Is(err, engine.ErrBadFile) {
		t.Fatalf("double Close = %v, want ErrBadFile", err)
	}
	if _, err := inst.Read(fd, make([]byte, 1)); !errors.Is(err, engine.ErrBadFile) {
		t.Fatalf("Read after Close = %v, want ErrBadFile", err)
	}

	// The slot is reusable.
	fd2, err := inst.Open("/f", engine.ORdOnly)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if fd2 != fd {
		t.Fatalf("reopen fd = %d, want reused slot %d", fd2, fd)
	}
	inst.Close(fd2)
}

func TestStat(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))
	writeFile(t, inst, "/f", []byte("hello"))

	info, err := inst.Stat("/f")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Name != "f" || info.Size != 5 || info.Dir {
		t.Fatalf("Stat = %+v, want name f, size 5, file", info)
	}
	if info.BlockSize != inst.Geometry().BlockSize {
		t.Fatalf("BlockSize = %d, want %d", info.BlockSize, inst.Geometry().BlockSize)
	}
}

func TestFStat(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))
	writeFile(t, inst, "/f", []byte("hello"))

	fd, err := inst.Open("/f", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer inst.Close(fd)

	info, err := inst.FStat(fd)
	if err != nil {
		t.Fatalf("FStat failed: %v", err)
	}
	if info.Name != "f" || info.Size != 5 {
		t.Fatalf("FStat = %+v, want name f, size 5", info)
	}
}

func TestFStatHashOnly(t *testing.T) {
	cfg := testConfig("storage")
	cfg.HashOnly = true
	_, inst := setupInstance(t, cfg)
	writeFile(t, inst, "/f", []byte("hello"))

	fd, err := inst.Open("/f", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer inst.Close(fd)

	if _, err := inst.FStat(fd); !errors.Is(err, engine.ErrInval) {
		t.Fatalf("FStat on hash-only instance = %v, want ErrInval", err)
	}
	// Path-based stat still works.
	if _, err := inst.Stat("/f"); err != nil {
		t.Fatalf("Stat on hash-only instance failed: %v", err)
	}
}

func TestUnlink(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))
	writeFile(t, inst, "/f", []byte("x"))

	fd, err := inst.Open("/f", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := inst.Unlink("/f"); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("Unlink of open file = %v, want ErrBusy", err)
	}
	if err := inst.Close(fd); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := inst.Unlink("/f"); err != nil {
		t.Fatalf("Unlink failed: %v", err)
	}
	if _, err := inst.Stat("/f"); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("Stat after Unlink = %v, want ErrNoEnt", err)
	}
	if err := inst.Unlink("/f"); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("Unlink of missing = %v, want ErrNoEnt", err)
	}
}

func TestUnlinkDirectory(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))
	if err := inst.Mkdir("/d"); err != nil {
		t.Fatalf("Mkdir failed: %v", err)
	}
	if err := inst.Unlink("/d"); !errors.Is(err, engine.ErrIsDir) {
		t.Fatalf("Unlink of directory = %v, want ErrIsDir", err)
	}
}

func TestRename(t *testing.T) {
	_, inst := setupInstance(t, testConfig("storage"))
	writeFile(t, inst, "/a", []byte("payload"))

	fd, err := inst.Open("/a", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := inst.Rename("/a", "/b"); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("Rename of open source = %v, want ErrBusy", err)
	}
	inst.Close(fd)

	writeFile(t, inst, "/c", []byte("other"))
	fd, err = inst.Open("/c", engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := inst.Rename("/a", "/c"); !errors.Is(err, engine.ErrBusy) {
		t.Fatalf("Rename onto open destination = %v, want ErrBusy", err)
	}
	inst.Close(fd)

	if err := inst.Rename("/a", "/b"); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if _, err := inst.Stat("/a"); !errors.Is(err, engine.ErrNoEnt) {
		t.Fatalf("source still present after rename: %v", err)
	}
	if got := readFile(t, inst, "/b"); string(got) != "payload" {
		t.Fatalf("renamed contents = %q, want %q", got, "payload")
	}
}
