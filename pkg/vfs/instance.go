// Package vfs is the filesystem-context and file-descriptor management
// layer between OS-facing frontends and the block-storage filesystem
// engine: partition registry, per-instance descriptor tables, dispatch
// entry points, and the format/recovery flow.
package vfs

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/example/flashfs/pkg/block"
	"github.com/example/flashfs/pkg/engine"
	"github.com/example/flashfs/pkg/flash"
)

// MTimeMode selects how modification times are tracked.
type MTimeMode int

const (
	// MTimeOff disables modification-time tracking.
	MTimeOff MTimeMode = iota
	// MTimeSeconds stamps wall-clock seconds. Requires a real-time clock.
	MTimeSeconds
	// MTimeNonce stamps a strictly increasing per-path counter, for devices
	// without a real-time clock. Ordering is meaningful, absolute values
	// are not.
	MTimeNonce
)

// Instance is one mounted filesystem bound to one partition label. All
// dispatch operations on an instance serialize on its single lock; there is
// one lock per instance, not per descriptor, so operations on different
// instances never contend.
//
// Locking convention: exported entry points acquire mu exactly once;
// helpers suffixed Locked require it to be held.
type Instance struct {
	label     string
	mountPath string
	region    flash.Region

	mu   sync.Mutex
	fds  fdTable
	eng  engine.Engine
	dev  *block.Device
	geom block.Geometry

	hashOnly bool
	mtime    MTimeMode

	log *logrus.Entry
}

// Label returns the partition label.
func (v *Instance) Label() string { return v.label }

// MountPath returns the base path the instance is exposed under.
func (v *Instance) MountPath() string { return v.mountPath }

// Geometry returns the block-device geometry of the partition.
func (v *Instance) Geometry() block.Geometry { return v.geom }

// Mounted reports whether the instance is currently mounted. An instance is
// mounted exactly when its descriptor table has capacity.
func (v *Instance) Mounted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mountedLocked()
}

func (v *Instance) mountedLocked() bool { return v.fds.capacity() > 0 }

func (v *Instance) checkMountedLocked(op string) error {
	if !v.mountedLocked() {
		return v.wrap(op, "", fmt.Errorf("not mounted: %w", engine.ErrInval))
	}
	return nil
}

// mountLocked mounts the engine and gives the descriptor table its floor
// capacity, which flips the instance to mounted.
func (v *Instance) mountLocked() error {
	if err := v.eng.Mount(); err != nil {
		return err
	}
	v.fds.init()
	return nil
}

// unmountLocked tears down every open descriptor and unmounts the engine.
// Outstanding descriptors are invalid afterwards.
func (v *Instance) unmountLocked() error {
	err := v.eng.Unmount()
	if err != nil {
		return err
	}
	v.fds.releaseAll()
	return nil
}

// formatLocked implements the format flow: transiently unmount if mounted,
// erase the physical range, format the engine, and remount. Callers must
// understand format invalidates every outstanding descriptor.
func (v *Instance) formatLocked() error {
	wasMounted := v.mountedLocked()
	if wasMounted {
		v.log.Debug("partition mounted, unmounting before format")
		if err := v.unmountLocked(); err != nil {
			return v.wrap("format", "", err)
		}
	}
	if err := v.dev.EraseAll(); err != nil {
		return v.wrap("format", "", fmt.Errorf("%w: erase: %v", engine.ErrIO, err))
	}
	if err := v.eng.Format(); err != nil {
		return v.wrap("format", "", err)
	}
	if wasMounted {
		v.log.Debug("remounting formatted partition")
		if err := v.mountLocked(); err != nil {
			return v.wrap("format", "", err)
		}
	}
	v.log.Info("format complete")
	return nil
}

// Info returns the total and used byte counts of a mounted instance.
func (v *Instance) Info() (total, used int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.checkMountedLocked("info"); err != nil {
		return 0, 0, err
	}
	blocks, err := v.eng.FSSize()
	if err != nil {
		return 0, 0, v.wrap("info", "", err)
	}
	return v.geom.TotalBytes(), blocks * int64(v.geom.BlockSize), nil
}

// FileInfo is the dispatch layer's stat result.
type FileInfo struct {
	// Name is the final path element.
	Name string
	// Size is the file size in bytes.
	Size int64
	// Dir reports whether the entry is a directory.
	Dir bool
	// ModTime is the tracked modification time; zero when tracking is off
	// or the entry was never stamped. In nonce mode the value is the
	// counter read as seconds since the epoch.
	ModTime time.Time
	// BlockSize is the partition's erase-block size.
	BlockSize uint32
}
