package flash

// Mem is a Controller backed by a byte slice. It is the standard test double
// and doubles as a RAM disk for throwaway filesystems. A freshly created Mem
// is all 0xFF, the same state as never-programmed NOR flash, so mounting it
// without formatting first behaves like mounting a factory-fresh chip.
type Mem struct {
	buf       []byte
	eraseUnit int64
}

// NewMem returns an in-memory controller of the given size. size must be a
// positive multiple of eraseUnit.
func NewMem(size, eraseUnit int64) *Mem {
	if size <= 0 || eraseUnit <= 0 || size%eraseUnit != 0 {
		panic("flash: NewMem size must be a positive multiple of eraseUnit")
	}
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = ErasedByte
	}
	return &Mem{buf: buf, eraseUnit: eraseUnit}
}

func (m *Mem) bounds(off, length int64) error {
	if off < 0 || length < 0 || off+length > int64(len(m.buf)) {
		return ErrOutOfRange
	}
	return nil
}

// ReadRange implements Controller.
func (m *Mem) ReadRange(off int64, dst []byte) error {
	if err := m.bounds(off, int64(len(dst))); err != nil {
		return err
	}
	copy(dst, m.buf[off:])
	return nil
}

// WriteRange implements Controller.
func (m *Mem) WriteRange(off int64, data []byte) error {
	if err := m.bounds(off, int64(len(data))); err != nil {
		return err
	}
	copy(m.buf[off:], data)
	return nil
}

// EraseRange implements Controller.
func (m *Mem) EraseRange(off, length int64) error {
	if err := m.bounds(off, length); err != nil {
		return err
	}
	if off%m.eraseUnit != 0 || length%m.eraseUnit != 0 {
		return ErrOutOfRange
	}
	for i := off; i < off+length; i++ {
		m.buf[i] = ErasedByte
	}
	return nil
}

// Sync implements Controller. Memory writes are immediate.
func (m *Mem) Sync() error { return nil }

// Size implements Controller.
func (m *Mem) Size() int64 { return int64(len(m.buf)) }

// Corrupt overwrites length bytes at off with garbage. Test hook for
// simulating a damaged or half-written medium.
func (m *Mem) Corrupt(off, length int64) {
	if m.bounds(off, length) != nil {
		return
	}
	for i := off; i < off+length; i++ {
		m.buf[i] = byte(0xA5 ^ i)
	}
}
