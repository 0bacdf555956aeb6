// Package flash defines the contract to the physical flash controllers.
//
// Two independent address spaces exist on the target hardware: the built-in
// flash of the SoC and an external SPI data flash. Everything above this
// package addresses flash by byte offset within one of those regions; the
// register-level glue that services these calls is not part of this module.
package flash

import (
	"errors"
	"fmt"
)

// Region selects one of the two physical flash address spaces.
type Region int

const (
	// RegionInternal is the built-in flash of the SoC.
	RegionInternal Region = iota
	// RegionExternal is the external SPI data flash.
	RegionExternal
)

// String returns the partition label conventionally bound to the region.
func (r Region) String() string {
	switch r {
	case RegionInternal:
		return "internal"
	case RegionExternal:
		return "external"
	default:
		return fmt.Sprintf("region(%d)", int(r))
	}
}

// ErrOutOfRange is returned when a request falls outside the controller's
// address space.
var ErrOutOfRange = errors.New("flash: request out of range")

// ErasedByte is the value NOR flash cells hold after an erase.
const ErasedByte = 0xFF

// Controller is the raw flash access contract. Offsets and lengths are in
// bytes relative to the start of the controller's region. WriteRange may
// only be called on erased cells; controllers do not enforce this, the
// filesystem engine above is responsible for erase-before-program.
type Controller interface {
	// ReadRange reads len(dst) bytes starting at off.
	ReadRange(off int64, dst []byte) error

	// WriteRange programs data starting at off.
	WriteRange(off int64, data []byte) error

	// EraseRange erases length bytes starting at off. Both must be aligned
	// to the controller's erase unit.
	EraseRange(off, length int64) error

	// Sync flushes any buffered writes to the physical medium.
	Sync() error

	// Size returns the capacity of the region in bytes.
	Size() int64
}
