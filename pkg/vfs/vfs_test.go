package vfs

import (
	"testing"

	"github.com/example/flashfs/pkg/block"
	"github.com/example/flashfs/pkg/engine"
	"github.com/example/flashfs/pkg/engine/ramfs"
	"github.com/example/flashfs/pkg/flash"
)

const testFlashSize = 256 * 1024

// testConfig returns a registration config over a fresh in-memory flash.
// The flash starts erased, so FormatIfMountFailed makes the first mount
// format it.
func testConfig(label string) Config {
	return Config{
		Label:               label,
		MountPath:           "/" + label,
		Region:              flash.RegionInternal,
		Controller:          flash.NewMem(testFlashSize, block.DefaultBlockSize),
		NewEngine:           func(dev *block.Device) engine.Engine { return ramfs.New(dev) },
		FormatIfMountFailed: true,
	}
}

// setupInstance registers a freshly formatted partition on its own registry
// and unregisters it at test end.
func setupInstance(t *testing.T, cfg Config) (*Registry, *Instance) {
	t.Helper()
	r := NewRegistry()
	inst, err := r.Register(cfg)
	if err != nil {
		t.Fatalf("Register(%q) failed: %v", cfg.Label, err)
	}
	t.Cleanup(func() { r.Unregister(cfg.Label) })
	return r, inst
}

// writeFile creates path with the given contents.
func writeFile(t *testing.T, inst *Instance, path string, data []byte) {
	t.Helper()
	fd, err := inst.Open(path, engine.OWrOnly|engine.OCreate|engine.OTrunc)
	if err != nil {
		t.Fatalf("Open(%q) for write failed: %v", path, err)
	}
	if _, err := inst.Write(fd, data); err != nil {
		t.Fatalf("Write(%q) failed: %v", path, err)
	}
	if err := inst.Close(fd); err != nil {
		t.Fatalf("Close(%q) failed: %v", path, err)
	}
}

// readFile reads all of path.
func readFile(t *testing.T, inst *Instance, path string) []byte {
	t.Helper()
	fd, err := inst.Open(path, engine.ORdOnly)
	if err != nil {
		t.Fatalf("Open(%q) for read failed: %v", path, err)
	}
	defer inst.Close(fd)
	var out []byte
	buf := make([]byte, 1024)
	for {
		n, err := inst.Read(fd, buf)
		if err != nil {
			t.Fatalf("Read(%q) failed: %v", path, err)
		}
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}
