package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/example/flashfs/pkg/block"
	"github.com/example/flashfs/pkg/engine"
	"github.com/example/flashfs/pkg/engine/ramfs"
	"github.com/example/flashfs/pkg/flash"
	"github.com/example/flashfs/pkg/vfs"
)

// Env holds FLASHFS_* environment overrides.
type Env struct {
	Config string `envconfig:"CONFIG"`
	Debug  bool   `envconfig:"DEBUG"`
}

// LoadEnv reads the FLASHFS_* environment variables.
func LoadEnv() (Env, error) {
	var env Env
	if err := envconfig.Process("FLASHFS", &env); err != nil {
		return Env{}, fmt.Errorf("environment: %w", err)
	}
	return env, nil
}

// PartitionConfig describes one partition backed by a flash image file.
type PartitionConfig struct {
	Label      string `yaml:"label"`
	Image      string `yaml:"image"`
	Size       int64  `yaml:"size"`
	Region     string `yaml:"region"`
	BaseOffset int64  `yaml:"base_offset"`
	MountPath  string `yaml:"mount_path"`
	MTime      string `yaml:"mtime"`
	HashOnly   bool   `yaml:"hash_only"`
}

// FileConfig is the YAML configuration file layout.
type FileConfig struct {
	Partitions []PartitionConfig `yaml:"partitions"`
}

// LoadConfig parses the YAML configuration at path.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if len(cfg.Partitions) == 0 {
		return nil, fmt.Errorf("config %s: no partitions defined", path)
	}
	return &cfg, nil
}

// Find returns the partition named label, or the first partition when label
// is empty.
func (c *FileConfig) Find(label string) (*PartitionConfig, error) {
	if label == "" {
		return &c.Partitions[0], nil
	}
	for i := range c.Partitions {
		if c.Partitions[i].Label == label {
			return &c.Partitions[i], nil
		}
	}
	return nil, fmt.Errorf("config: partition %q not defined", label)
}

func parseRegion(s string) (flash.Region, error) {
	switch s {
	case "", "internal":
		return flash.RegionInternal, nil
	case "external":
		return flash.RegionExternal, nil
	default:
		return 0, fmt.Errorf("config: unknown region %q", s)
	}
}

func parseMTime(s string) (vfs.MTimeMode, error) {
	switch s {
	case "", "off":
		return vfs.MTimeOff, nil
	case "seconds":
		return vfs.MTimeSeconds, nil
	case "nonce":
		return vfs.MTimeNonce, nil
	default:
		return 0, fmt.Errorf("config: unknown mtime mode %q", s)
	}
}

// registration builds the vfs.Config for a partition, opening (and creating
// if needed) its backing image file.
func (p *PartitionConfig) registration(formatIfMountFailed bool) (vfs.Config, error) {
	region, err := parseRegion(p.Region)
	if err != nil {
		return vfs.Config{}, err
	}
	mtime, err := parseMTime(p.MTime)
	if err != nil {
		return vfs.Config{}, err
	}
	if p.Size <= 0 {
		return vfs.Config{}, fmt.Errorf("config: partition %q: size must be positive", p.Label)
	}
	ctrl, err := flash.OpenFile(p.Image, p.Size, block.DefaultBlockSize)
	if err != nil {
		return vfs.Config{}, err
	}
	return vfs.Config{
		Label:               p.Label,
		MountPath:           p.MountPath,
		Region:              region,
		Controller:          ctrl,
		NewEngine:           func(dev *block.Device) engine.Engine { return ramfs.New(dev) },
		BaseOffset:          p.BaseOffset,
		FormatIfMountFailed: formatIfMountFailed,
		HashOnly:            p.HashOnly,
		MTime:               mtime,
	}, nil
}
