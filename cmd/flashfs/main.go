// Command flashfs manages filesystem partitions inside flash image files:
// formatting, inspection, file transfer in and out, and FUSE mounting.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/example/flashfs/pkg/engine"
	"github.com/example/flashfs/pkg/fuse"
	"github.com/example/flashfs/pkg/vfs"
)

func main() {
	env, err := LoadEnv()
	if err != nil {
		logrus.Fatal(err)
	}

	app := cli.App{
		Name:        "flashfs",
		Description: "manage filesystem partitions in flash image files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "partition configuration file",
				Value:   defaultString(env.Config, "flashfs.yaml"),
			},
			&cli.StringFlag{
				Name:    "partition",
				Aliases: []string{"p"},
				Usage:   "partition label (defaults to the first configured)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
				Value: env.Debug,
			},
		},
		Before: func(ctx *cli.Context) error {
			if ctx.Bool("debug") {
				logrus.SetLevel(logrus.DebugLevel)
			}
			return nil
		},
		Commands: []*cli.Command{{
			Name:        "format",
			Description: "format the partition, erasing all contents",
			Action: func(ctx *cli.Context) error {
				cfg, err := partitionConfig(ctx)
				if err != nil {
					return err
				}
				reg, err := cfg.registration(false)
				if err != nil {
					return err
				}
				return vfs.Default().Format(reg)
			},
		}, {
			Name:        "info",
			Description: "print total and used bytes",
			Action: withPartition(func(inst *vfs.Instance, ctx *cli.Context) error {
				total, used, err := inst.Info()
				if err != nil {
					return err
				}
				fmt.Printf("total: %d\nused:  %d\n", total, used)
				return nil
			}),
		}, {
			Name:        "ls",
			Description: "list a directory (default the root)",
			Action: withPartition(func(inst *vfs.Instance, ctx *cli.Context) error {
				dir := ctx.Args().First()
				if dir == "" {
					dir = "/"
				}
				d, err := inst.OpenDir(dir)
				if err != nil {
					return err
				}
				defer d.Close()
				for {
					info, ok, err := d.Read()
					if err != nil {
						return err
					}
					if !ok {
						return nil
					}
					if info.Type == engine.TypeDirectory {
						fmt.Printf("%10s  %s/\n", "", info.Name)
					} else {
						fmt.Printf("%10d  %s\n", info.Size, info.Name)
					}
				}
			}),
		}, {
			Name:        "cat",
			Description: "write a file's contents to stdout",
			Action: withPartition(func(inst *vfs.Instance, ctx *cli.Context) error {
				path := ctx.Args().First()
				if path == "" {
					return fmt.Errorf("usage: cat <path>")
				}
				fd, err := inst.Open(path, engine.ORdOnly)
				if err != nil {
					return err
				}
				defer inst.Close(fd)
				buf := make([]byte, 4096)
				for {
					n, err := inst.Read(fd, buf)
					if err != nil {
						return err
					}
					if n == 0 {
						return nil
					}
					if _, err := os.Stdout.Write(buf[:n]); err != nil {
						return err
					}
				}
			}),
		}, {
			Name:        "put",
			Description: "copy a host file into the partition",
			Action: withPartition(func(inst *vfs.Instance, ctx *cli.Context) error {
				src, dst := ctx.Args().Get(0), ctx.Args().Get(1)
				if src == "" || dst == "" {
					return fmt.Errorf("usage: put <host-file> <path>")
				}
				in, err := os.Open(src)
				if err != nil {
					return err
				}
				defer in.Close()
				fd, err := inst.Open(dst, engine.OWrOnly|engine.OCreate|engine.OTrunc)
				if err != nil {
					return err
				}
				buf := make([]byte, 4096)
				for {
					n, rerr := in.Read(buf)
					if n > 0 {
						if _, werr := inst.Write(fd, buf[:n]); werr != nil {
							inst.Close(fd)
							return werr
						}
					}
					if rerr == io.EOF {
						break
					}
					if rerr != nil {
						inst.Close(fd)
						return rerr
					}
				}
				return inst.Close(fd)
			}),
		}, {
			Name:        "rm",
			Description: "remove a file",
			Action: withPartition(func(inst *vfs.Instance, ctx *cli.Context) error {
				path := ctx.Args().First()
				if path == "" {
					return fmt.Errorf("usage: rm <path>")
				}
				return inst.Unlink(path)
			}),
		}, {
			Name:        "mkdir",
			Description: "create a directory",
			Action: withPartition(func(inst *vfs.Instance, ctx *cli.Context) error {
				path := ctx.Args().First()
				if path == "" {
					return fmt.Errorf("usage: mkdir <path>")
				}
				return inst.Mkdir(path)
			}),
		}, {
			Name:        "mount",
			Description: "serve the partition over FUSE until interrupted",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "read-only", Usage: "mount read-only"},
			},
			Action: withPartition(func(inst *vfs.Instance, ctx *cli.Context) error {
				mountpoint := ctx.Args().First()
				if mountpoint == "" {
					return fmt.Errorf("usage: mount <mountpoint>")
				}
				return fuse.Mount(inst, fuse.MountOptions{
					MountPoint: mountpoint,
					ReadOnly:   ctx.Bool("read-only"),
					Debug:      ctx.Bool("debug"),
				})
			}),
		}},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}

// partitionConfig resolves the selected partition from the config file.
func partitionConfig(ctx *cli.Context) (*PartitionConfig, error) {
	cfg, err := LoadConfig(ctx.String("config"))
	if err != nil {
		return nil, err
	}
	return cfg.Find(ctx.String("partition"))
}

// withPartition registers and mounts the selected partition around fn,
// formatting fresh images on first use, and unregisters it afterwards.
func withPartition(fn func(*vfs.Instance, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		pc, err := partitionConfig(ctx)
		if err != nil {
			return err
		}
		reg, err := pc.registration(true)
		if err != nil {
			return err
		}
		inst, err := vfs.Default().Register(reg)
		if err != nil {
			return err
		}
		defer func() {
			if err := vfs.Default().Unregister(pc.Label); err != nil {
				logrus.WithError(err).Error("unregister failed")
			}
		}()
		return fn(inst, ctx)
	}
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
