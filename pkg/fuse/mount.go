package fuse

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bazil.org/fuse"
	"bazil.org/fuse/fs"
	"github.com/sirupsen/logrus"

	"github.com/example/flashfs/pkg/vfs"
)

// MountOptions contains options for mounting a partition.
type MountOptions struct {
	MountPoint string
	ReadOnly   bool
	Debug      bool
}

// Mount serves inst at the mount point until SIGINT or SIGTERM.
func Mount(inst *vfs.Instance, options MountOptions) error {
	mountOpts := []fuse.MountOption{
		fuse.FSName("flashfs"),
		fuse.Subtype("flashfs"),
	}
	if options.ReadOnly {
		mountOpts = append(mountOpts, fuse.ReadOnly())
	}
	if options.Debug {
		fuse.Debug = func(msg interface{}) {
			logrus.Debugf("fuse: %v", msg)
		}
	}

	logrus.WithField("mountpoint", options.MountPoint).Info("mounting FUSE filesystem")
	c, err := fuse.Mount(options.MountPoint, mountOpts...)
	if err != nil {
		return fmt.Errorf("fuse mount: %w", err)
	}
	defer c.Close()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- fs.Serve(c, NewFlashFS(inst))
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logrus.WithField("signal", s).Info("unmounting")
		if err := Unmount(options.MountPoint); err != nil {
			logrus.WithError(err).Warn("unmount failed, waiting for server exit")
		}
		return <-serveErr
	case err := <-serveErr:
		return err
	}
}

// Unmount unmounts the filesystem at the mount point.
func Unmount(mountPoint string) error {
	return fuse.Unmount(mountPoint)
}
