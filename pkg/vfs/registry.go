package vfs

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/example/flashfs/pkg/block"
	"github.com/example/flashfs/pkg/engine"
	"github.com/example/flashfs/pkg/flash"
)

// MaxPartitions is the registry capacity. Label lookup is a linear scan;
// the bound is deliberately small.
const MaxPartitions = 4

// Config describes one partition registration.
type Config struct {
	// Label uniquely identifies the partition within a registry.
	Label string

	// MountPath is the base path the filesystem is exposed under by an
	// OS-facing frontend. Informational to this layer.
	MountPath string

	// Region selects the physical flash address space.
	Region flash.Region

	// Controller is the raw flash controller for the region.
	Controller flash.Controller

	// NewEngine constructs the block-storage filesystem engine over the
	// partition's block device.
	NewEngine func(*block.Device) engine.Engine

	// Geometry overrides the region's default geometry when non-nil.
	Geometry *block.Geometry

	// BaseOffset positions the partition within the controller's region.
	// Must be erase-block aligned.
	BaseOffset int64

	// DontMount registers the partition without mounting it.
	DontMount bool

	// FormatIfMountFailed recovers an unmountable partition by formatting
	// it and retrying the mount once.
	FormatIfMountFailed bool

	// HashOnly stores only the 32-bit path hash for open files instead of
	// the full path. Saves memory; accepts a false-positive open-file match
	// on hash collision and disables descriptor-based stat.
	HashOnly bool

	// MTime selects modification-time tracking.
	MTime MTimeMode
}

func (cfg *Config) validate() error {
	switch {
	case cfg.Label == "":
		return fmt.Errorf("vfs: config: empty label: %w", engine.ErrInval)
	case cfg.Controller == nil:
		return fmt.Errorf("vfs: config %q: nil controller: %w", cfg.Label, engine.ErrInval)
	case cfg.NewEngine == nil:
		return fmt.Errorf("vfs: config %q: nil engine constructor: %w", cfg.Label, engine.ErrInval)
	}
	return nil
}

// Registry is a fixed-capacity table of partition instances keyed by label.
// The registry lock guards only slot allocation and release; per-instance
// operations take the instance's own lock and never block other instances.
type Registry struct {
	mu    sync.Mutex
	parts [MaxPartitions]*Instance
}

// NewRegistry returns an empty registry. Tests use independent registries;
// production code normally shares Default.
func NewRegistry() *Registry { return &Registry{} }

var (
	defaultRegistry *Registry
	defaultOnce     sync.Once
)

// Default returns the process-wide registry, created on first use.
func Default() *Registry {
	defaultOnce.Do(func() { defaultRegistry = NewRegistry() })
	return defaultRegistry
}

// lookupLocked returns the slot index of label, or -1.
func (r *Registry) lookupLocked(label string) int {
	for i, inst := range r.parts {
		if inst != nil && inst.label == label {
			return i
		}
	}
	return -1
}

// Lookup returns the registered instance for label.
func (r *Registry) Lookup(label string) (*Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.lookupLocked(label); i >= 0 {
		return r.parts[i], nil
	}
	return nil, fmt.Errorf("vfs: partition %q not registered: %w", label, engine.ErrNoEnt)
}

// Mounted reports whether label is registered and mounted.
func (r *Registry) Mounted(label string) bool {
	inst, err := r.Lookup(label)
	return err == nil && inst.Mounted()
}

// Register allocates a registry slot for cfg.Label, constructs the instance
// and its engine, and mounts it unless cfg.DontMount is set. A failed mount
// is retried once after a format when cfg.FormatIfMountFailed is set. Any
// remaining failure tears the partially constructed instance down and frees
// the slot.
func (r *Registry) Register(cfg Config) (*Instance, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	geom := block.DefaultGeometry(cfg.Region, cfg.Controller.Size()-cfg.BaseOffset)
	if cfg.Geometry != nil {
		geom = *cfg.Geometry
	}
	dev, err := block.NewDevice(cfg.Controller, geom, cfg.BaseOffset)
	if err != nil {
		return nil, err
	}

	inst := &Instance{
		label:     cfg.Label,
		mountPath: cfg.MountPath,
		region:    cfg.Region,
		dev:       dev,
		geom:      geom,
		hashOnly:  cfg.HashOnly,
		mtime:     cfg.MTime,
		log:       logrus.WithField("partition", cfg.Label),
	}
	inst.eng = cfg.NewEngine(dev)

	// Slot allocation is the only work done under the registry lock; the
	// mount I/O below runs under the instance lock so other partitions
	// stay usable.
	r.mu.Lock()
	if r.lookupLocked(cfg.Label) >= 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("vfs: partition %q already registered: %w", cfg.Label, engine.ErrExist)
	}
	slot := -1
	for i, p := range r.parts {
		if p == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		r.mu.Unlock()
		return nil, fmt.Errorf("vfs: no free partition slots (max %d): %w", MaxPartitions, engine.ErrNoMem)
	}
	r.parts[slot] = inst
	r.mu.Unlock()

	if cfg.DontMount {
		inst.log.Debug("registered without mounting")
		return inst, nil
	}

	inst.mu.Lock()
	err = inst.mountLocked()
	if err != nil && cfg.FormatIfMountFailed {
		inst.log.WithError(err).Warn("mount failed, formatting")
		if ferr := inst.formatLocked(); ferr != nil {
			inst.mu.Unlock()
			r.free(slot, inst)
			return nil, ferr
		}
		err = inst.mountLocked()
	}
	inst.mu.Unlock()
	if err != nil {
		inst.log.WithError(err).Error("mount failed")
		r.free(slot, inst)
		return nil, &PathError{Op: "mount", Label: cfg.Label, Err: err}
	}
	inst.log.WithField("path", cfg.MountPath).Info("mounted")
	return inst, nil
}

// free tears down inst and releases its slot. The single teardown funnel
// for failed registration and unregistration; it must not leak the handle
// list or the slot. The slot is only cleared if it still holds inst.
func (r *Registry) free(slot int, inst *Instance) {
	r.mu.Lock()
	if r.parts[slot] == inst {
		r.parts[slot] = nil
	}
	r.mu.Unlock()
	if inst == nil {
		return
	}
	inst.mu.Lock()
	if inst.mountedLocked() {
		if err := inst.unmountLocked(); err != nil {
			inst.log.WithError(err).Error("unmount during teardown failed")
			inst.fds.releaseAll()
		}
	}
	inst.eng = nil
	inst.mu.Unlock()
}

// Unregister unmounts and tears down the instance registered under label.
// Fails if the label was never registered. Detaching the label from any
// OS-facing frontend is the caller's job and must happen first.
func (r *Registry) Unregister(label string) error {
	r.mu.Lock()
	slot := r.lookupLocked(label)
	var inst *Instance
	if slot >= 0 {
		inst = r.parts[slot]
	}
	r.mu.Unlock()
	if inst == nil {
		return fmt.Errorf("vfs: partition %q was never registered: %w", label, engine.ErrInval)
	}
	logrus.WithField("partition", label).Debug("unregistering")
	r.free(slot, inst)
	return nil
}

// Info returns total and used bytes for a mounted partition.
func (r *Registry) Info(label string) (total, used int64, err error) {
	inst, err := r.Lookup(label)
	if err != nil {
		return 0, 0, err
	}
	return inst.Info()
}

// Format formats the partition described by cfg. If the label is already
// registered the live instance is formatted in place (transiently unmounted
// around the format, invalidating its descriptors). Otherwise a temporary
// instance is created for the duration and torn down afterwards, even on
// failure.
func (r *Registry) Format(cfg Config) error {
	inst, err := r.Lookup(cfg.Label)
	temporary := false
	if err != nil {
		logrus.WithField("partition", cfg.Label).Debug("creating temporary instance to format")
		tmp := cfg
		tmp.DontMount = true
		inst, err = r.Register(tmp)
		if err != nil {
			return err
		}
		temporary = true
		defer func() {
			if uerr := r.Unregister(cfg.Label); uerr != nil {
				inst.log.WithError(uerr).Error("temporary format instance teardown failed")
			}
		}()
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	if temporary {
		inst.log.Info("formatting unregistered partition")
	}
	return inst.formatLocked()
}
