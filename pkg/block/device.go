// Package block adapts (block, offset, length) requests from the filesystem
// engine onto a raw flash controller. The engine never sees byte offsets
// into the chip; it addresses erase-unit sized blocks within one region and
// this package does the base-offset translation.
package block

import (
	"fmt"

	"github.com/example/flashfs/pkg/flash"
)

// Default geometry constants. Both regions erase in 4 KiB blocks; the
// external SPI data flash programs in 256 byte pages while the internal
// flash controller accepts 128 byte writes.
const (
	DefaultBlockSize        = 4096
	DefaultInternalProgSize = 128
	DefaultExternalProgSize = 256
	DefaultCacheSize        = 512
	DefaultLookaheadSize    = 128
	DefaultBlockCycles      = 512
)

// Geometry describes the block-device shape handed to the filesystem engine.
type Geometry struct {
	// ReadSize is the minimum read unit in bytes.
	ReadSize uint32
	// ProgSize is the minimum program unit in bytes.
	ProgSize uint32
	// BlockSize is the erase unit in bytes.
	BlockSize uint32
	// BlockCount is the number of erase blocks in the partition.
	BlockCount uint32
	// CacheSize is the engine's per-file cache size in bytes.
	CacheSize uint32
	// LookaheadSize is the engine's block-allocator lookahead in bytes.
	LookaheadSize uint32
	// BlockCycles is the wear-leveling erase-cycle budget per block.
	BlockCycles uint32
}

// DefaultGeometry derives the geometry for a partition of totalBytes in the
// given region.
func DefaultGeometry(region flash.Region, totalBytes int64) Geometry {
	prog := uint32(DefaultExternalProgSize)
	if region == flash.RegionInternal {
		prog = DefaultInternalProgSize
	}
	return Geometry{
		ReadSize:      prog,
		ProgSize:      prog,
		BlockSize:     DefaultBlockSize,
		BlockCount:    uint32(totalBytes / DefaultBlockSize),
		CacheSize:     DefaultCacheSize,
		LookaheadSize: DefaultLookaheadSize,
		BlockCycles:   DefaultBlockCycles,
	}
}

// Validate checks the geometry for internal consistency.
func (g Geometry) Validate() error {
	switch {
	case g.ReadSize == 0 || g.ProgSize == 0 || g.BlockSize == 0 || g.BlockCount == 0:
		return fmt.Errorf("block: geometry has zero unit: %+v", g)
	case g.BlockSize%g.ProgSize != 0 || g.BlockSize%g.ReadSize != 0:
		return fmt.Errorf("block: block size %d not a multiple of read/prog units", g.BlockSize)
	}
	return nil
}

// TotalBytes returns the partition capacity.
func (g Geometry) TotalBytes() int64 {
	return int64(g.BlockSize) * int64(g.BlockCount)
}

// Device translates block-addressed engine requests into controller calls.
// The base offset positions the partition within the controller's region.
type Device struct {
	ctrl flash.Controller
	geom Geometry
	base int64
}

// NewDevice binds a controller to a partition described by geom, starting at
// base bytes into the controller's region.
func NewDevice(ctrl flash.Controller, geom Geometry, base int64) (*Device, error) {
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if base < 0 || base%int64(geom.BlockSize) != 0 {
		return nil, fmt.Errorf("block: base offset %d not block aligned", base)
	}
	if base+geom.TotalBytes() > ctrl.Size() {
		return nil, fmt.Errorf("block: partition [%d, %d) exceeds region size %d",
			base, base+geom.TotalBytes(), ctrl.Size())
	}
	return &Device{ctrl: ctrl, geom: geom, base: base}, nil
}

// Geometry returns the device geometry.
func (d *Device) Geometry() Geometry { return d.geom }

func (d *Device) offset(blk, off uint32, length int) (int64, error) {
	if blk >= d.geom.BlockCount {
		return 0, fmt.Errorf("block: block %d out of %d: %w", blk, d.geom.BlockCount, flash.ErrOutOfRange)
	}
	if int64(off)+int64(length) > int64(d.geom.BlockSize) {
		return 0, fmt.Errorf("block: [%d, %d) exceeds block size %d: %w",
			off, int64(off)+int64(length), d.geom.BlockSize, flash.ErrOutOfRange)
	}
	return d.base + int64(blk)*int64(d.geom.BlockSize) + int64(off), nil
}

// Read reads len(dst) bytes at off within block blk.
func (d *Device) Read(blk, off uint32, dst []byte) error {
	pos, err := d.offset(blk, off, len(dst))
	if err != nil {
		return err
	}
	return d.ctrl.ReadRange(pos, dst)
}

// Prog programs data at off within block blk.
func (d *Device) Prog(blk, off uint32, data []byte) error {
	pos, err := d.offset(blk, off, len(data))
	if err != nil {
		return err
	}
	return d.ctrl.WriteRange(pos, data)
}

// Erase erases block blk.
func (d *Device) Erase(blk uint32) error {
	pos, err := d.offset(blk, 0, 0)
	if err != nil {
		return err
	}
	return d.ctrl.EraseRange(pos, int64(d.geom.BlockSize))
}

// Sync flushes the controller.
func (d *Device) Sync() error { return d.ctrl.Sync() }

// EraseAll erases the whole partition. Used by the format flow before the
// engine lays down a fresh filesystem.
func (d *Device) EraseAll() error {
	return d.ctrl.EraseRange(d.base, d.geom.TotalBytes())
}
