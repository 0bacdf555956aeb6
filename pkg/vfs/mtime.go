package vfs

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/example/flashfs/pkg/engine"
)

// attrMTime is the engine attribute id the modification time lives under.
const attrMTime uint8 = 't'

// Utime sets the modification time of path explicitly, regardless of the
// instance's tracking mode.
func (v *Instance) Utime(path string, t time.Time) error {
	if v.mtime == MTimeOff {
		return v.wrap("utime", path, fmt.Errorf("mtime tracking disabled: %w", engine.ErrInval))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.setMTimeLocked(path, uint32(t.Unix()))
}

// Touch stamps path per the instance's tracking mode, the same update a
// write-open performs.
func (v *Instance) Touch(path string) error {
	if v.mtime == MTimeOff {
		return v.wrap("touch", path, fmt.Errorf("mtime tracking disabled: %w", engine.ErrInval))
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.touchLocked(path)
}

// touchLocked computes and stores the next mtime value for path. In seconds
// mode that is the wall clock. In nonce mode it is the previously stored
// counter plus one — wrapping past zero skips to one, zero being reserved
// for "never stamped" — seeded from a random source on first stamp.
func (v *Instance) touchLocked(path string) error {
	var val uint32
	switch v.mtime {
	case MTimeSeconds:
		val = uint32(time.Now().Unix())
	case MTimeNonce:
		prev, err := v.getMTimeLocked(path)
		switch {
		case errors.Is(err, engine.ErrNoAttr):
			val = randNonce()
		case err != nil:
			return err
		default:
			val = prev + 1
		}
		if val == 0 {
			val = 1
		}
	default:
		return nil
	}
	return v.setMTimeLocked(path, val)
}

func (v *Instance) setMTimeLocked(path string, val uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], val)
	if err := v.eng.SetAttr(path, attrMTime, buf[:]); err != nil {
		return v.wrap("utime", path, err)
	}
	return nil
}

func (v *Instance) getMTimeLocked(path string) (uint32, error) {
	var buf [4]byte
	n, err := v.eng.GetAttr(path, attrMTime, buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, fmt.Errorf("vfs: mtime attribute is %d bytes: %w", n, engine.ErrCorrupt)
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// modTimeLocked reads the stored stamp for stat results. Entries never
// stamped report the zero time.
func (v *Instance) modTimeLocked(path string) time.Time {
	val, err := v.getMTimeLocked(path)
	if err != nil || val == 0 {
		return time.Time{}
	}
	return time.Unix(int64(val), 0)
}

func randNonce() uint32 {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 1
	}
	return binary.LittleEndian.Uint32(buf[:])
}
