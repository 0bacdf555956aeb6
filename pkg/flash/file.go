package flash

import (
	"fmt"
	"os"
)

// File is a Controller backed by a flash image file on the host. It is what
// the flashfs CLI operates on: a byte-for-byte image of one flash region.
type File struct {
	f         *os.File
	size      int64
	eraseUnit int64
}

// OpenFile opens (or creates) a flash image of the given size. A newly
// created image is fully erased. An existing image must match size exactly;
// a truncated image almost always means the wrong file was passed.
func OpenFile(path string, size, eraseUnit int64) (*File, error) {
	if size <= 0 || eraseUnit <= 0 || size%eraseUnit != 0 {
		return nil, fmt.Errorf("flash: image size %d not a positive multiple of erase unit %d", size, eraseUnit)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("flash: open image: %w", err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("flash: stat image: %w", err)
	}
	fi := &File{f: f, size: size, eraseUnit: eraseUnit}
	switch st.Size() {
	case size:
	case 0:
		if err := fi.EraseRange(0, size); err != nil {
			f.Close()
			return nil, err
		}
	default:
		f.Close()
		return nil, fmt.Errorf("flash: image %s is %d bytes, want %d", path, st.Size(), size)
	}
	return fi, nil
}

func (fi *File) bounds(off, length int64) error {
	if off < 0 || length < 0 || off+length > fi.size {
		return ErrOutOfRange
	}
	return nil
}

// ReadRange implements Controller.
func (fi *File) ReadRange(off int64, dst []byte) error {
	if err := fi.bounds(off, int64(len(dst))); err != nil {
		return err
	}
	if _, err := fi.f.ReadAt(dst, off); err != nil {
		return fmt.Errorf("flash: read image: %w", err)
	}
	return nil
}

// WriteRange implements Controller.
func (fi *File) WriteRange(off int64, data []byte) error {
	if err := fi.bounds(off, int64(len(data))); err != nil {
		return err
	}
	if _, err := fi.f.WriteAt(data, off); err != nil {
		return fmt.Errorf("flash: write image: %w", err)
	}
	return nil
}

// EraseRange implements Controller.
func (fi *File) EraseRange(off, length int64) error {
	if err := fi.bounds(off, length); err != nil {
		return err
	}
	if off%fi.eraseUnit != 0 || length%fi.eraseUnit != 0 {
		return ErrOutOfRange
	}
	blank := make([]byte, fi.eraseUnit)
	for i := range blank {
		blank[i] = ErasedByte
	}
	for ; length > 0; length -= fi.eraseUnit {
		if _, err := fi.f.WriteAt(blank, off); err != nil {
			return fmt.Errorf("flash: erase image: %w", err)
		}
		off += fi.eraseUnit
	}
	return nil
}

// Sync implements Controller.
func (fi *File) Sync() error { return fi.f.Sync() }

// Size implements Controller.
func (fi *File) Size() int64 { return fi.size }

// Close closes the underlying image file.
func (fi *File) Close() error { return fi.f.Close() }
