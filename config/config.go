// Package config loads tinyfs settings from a YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/keks/tinyfs"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	envVarPrefix = "TINYFS"
	appName      = "tinyfs"
)

// Config is read from the environment as TINYFS_DISK, TINYFS_SIZE,
// TINYFS_BLOCK_SIZE and TINYFS_VERBOSE.
type Config struct {
	Disk      string `yaml:"disk"`
	Size      int    `yaml:"size"`
	BlockSize int    `yaml:"blockSize" split_words:"true"`
	Verbose   bool   `yaml:"verbose"`
}

// Default is the configuration before the file and the environment are
// applied.
func Default() Config {
	return Config{
		Disk:      "tinyFSDisk",
		Size:      10240,
		BlockSize: tinyfs.DefaultBlockSize,
	}
}

// File returns the path of the config file: $TINYFS_CONFIG_FILE, or
// tinyfs.yaml in the user's config directory.
func File() string {
	if configFile := os.Getenv(envVarPrefix + "_CONFIG_FILE"); configFile != "" {
		return configFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".config", appName+".yaml")
}

// Load reads File, which may be missing, and overlays the environment.
func Load() (*Config, error) {
	return LoadFile(File())
}

// LoadFile reads configFile, which may be missing, and overlays the
// environment.
func LoadFile(configFile string) (*Config, error) {
	c := Default()
	data, err := ioutil.ReadFile(configFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unmarshaling config file: %w", err)
	}

	if err := envconfig.Process(envVarPrefix, &c); err != nil {
		return nil, fmt.Errorf("parsing environment variables: %w", err)
	}

	return &c, nil
}

// Validate checks what every command needs to reach a disk. The size only
// matters when creating one; see ValidateMkfs.
func (c *Config) Validate() error {
	if c.Disk == "" {
		return fmt.Errorf("missing required config: disk (%s_DISK)", envVarPrefix)
	}
	if c.BlockSize < tinyfs.MinBlockSize {
		return fmt.Errorf(
			"block size `%d` below minimum `%d`",
			c.BlockSize,
			tinyfs.MinBlockSize,
		)
	}
	return nil
}

// ValidateMkfs is Validate plus the size limits of a new disk.
func (c *Config) ValidateMkfs() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Size < c.BlockSize {
		return fmt.Errorf(
			"disk size `%d` below one block of `%d`",
			c.Size,
			c.BlockSize,
		)
	}
	if c.Size/c.BlockSize > tinyfs.MaxBlocks {
		return fmt.Errorf(
			"disk size `%d` exceeds `%d` blocks of `%d`",
			c.Size,
			tinyfs.MaxBlocks,
			c.BlockSize,
		)
	}
	return nil
}
