package flash

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

const (
	testSize      = 16 * 4096
	testEraseUnit = 4096
)

func TestMemStartsErased(t *testing.T) {
	m := NewMem(testSize, testEraseUnit)
	buf := make([]byte, 64)
	if err := m.ReadRange(0, buf); err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	for i, b := range buf {
		if b != ErasedByte {
			t.Fatalf("fresh byte %d = %#x, want %#x", i, b, ErasedByte)
		}
	}
}

func TestMemWriteReadErase(t *testing.T) {
	m := NewMem(testSize, testEraseUnit)
	data := []byte("hello flash")
	if err := m.WriteRange(testEraseUnit, data); err != nil {
		t.Fatalf("WriteRange failed: %v", err)
	}
	got := make([]byte, len(data))
	if err := m.ReadRange(testEraseUnit, got); err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("read back %q, want %q", got, data)
	}
	if err := m.EraseRange(testEraseUnit, testEraseUnit); err != nil {
		t.Fatalf("EraseRange failed: %v", err)
	}
	m.ReadRange(testEraseUnit, got)
	if got[0] != ErasedByte {
		t.Fatalf("byte after erase = %#x, want %#x", got[0], ErasedByte)
	}
}

func TestMemBounds(t *testing.T) {
	m := NewMem(testSize, testEraseUnit)
	buf := make([]byte, 16)
	if err := m.ReadRange(testSize-8, buf); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("read past end = %v, want ErrOutOfRange", err)
	}
	if err := m.WriteRange(-1, buf); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("negative write = %v, want ErrOutOfRange", err)
	}
	// Erase must be erase-unit aligned.
	if err := m.EraseRange(100, testEraseUnit); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("unaligned erase = %v, want ErrOutOfRange", err)
	}
	if err := m.EraseRange(0, 100); !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("partial-unit erase = %v, want ErrOutOfRange", err)
	}
}

func TestFileImageLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flash.img")

	fi, err := OpenFile(path, testSize, testEraseUnit)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	// New images are fully erased.
	buf := make([]byte, 32)
	if err := fi.ReadRange(testSize-32, buf); err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	for i, b := range buf {
		if b != ErasedByte {
			t.Fatalf("new image byte %d = %#x, want %#x", i, b, ErasedByte)
		}
	}

	data := []byte("persisted")
	if err := fi.WriteRange(0, data); err != nil {
		t.Fatalf("WriteRange failed: %v", err)
	}
	if err := fi.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Reopening sees the written bytes.
	fi, err = OpenFile(path, testSize, testEraseUnit)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer fi.Close()
	got := make([]byte, len(data))
	if err := fi.ReadRange(0, got); err != nil {
		t.Fatalf("ReadRange failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("reopened image = %q, want %q", got, data)
	}

	// A size mismatch is refused.
	if _, err := OpenFile(path, testSize*2, testEraseUnit); err == nil {
		t.Fatalf("size mismatch accepted")
	}
}
