// Package config loads the boot/host-time configuration surface:
// defaults, then an optional YAML file, then field-level overrides,
// with loosely-typed override values coerced through spf13/cast.
package config

import (
	"os"

	"github.com/kardianos/osext"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/sdupdate-project/sdupdate/flashsim"
	"github.com/sdupdate-project/sdupdate/sdkerrors"
)

// Config holds the mount point and candidate/backup file names the
// update core needs at runtime, plus a transfer chunk size. ChunkSize is
// loaded and checked to be positive, but the copier does not read it:
// it always transfers in its fixed copier.ChunkSize (256-byte) pieces.
type Config struct {
	SDMountPoint   string `yaml:"sd_mount_point"`
	UpdateDirName  string `yaml:"update_dir_name"`
	ImageFileName  string `yaml:"image_file_name"`
	BackupFileName string `yaml:"backup_file_name"`
	ChunkSize      int    `yaml:"chunk_size"`

	// FlashMap is the board's declared flash area table, used by the
	// doctor command to check for overlapping or ID-conflicting areas
	// before an update is attempted. Empty unless a config file
	// declares one.
	FlashMap []flashsim.Geometry `yaml:"flash_map"`
}

// Default returns the built-in defaults, used when no config file is
// present and as the base layer when one is.
func Default() Config {
	return Config{
		SDMountPoint:   "/sd",
		UpdateDirName:  "update",
		ImageFileName:  "firmware.bin",
		BackupFileName: "backup.bin",
		ChunkSize:      256,
	}
}

// DefaultPath locates a config file next to the running binary.
func DefaultPath() (string, error) {
	exe, err := osext.Executable()
	if err != nil {
		return "", sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to locate executable path")
	}
	return exe + ".yaml", nil
}

// Load reads path (if it exists) over the defaults, then applies
// overrides (loosely-typed, as if parsed from CLI flags or environment
// variables) via cast.
func Load(path string, overrides map[string]interface{}) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, sdkerrors.Wrap(sdkerrors.KindIoError, err, "failed to read config file %s", path)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, sdkerrors.Wrap(sdkerrors.KindIoError, errors.WithStack(err), "failed to parse config file %s", path)
		}
	}

	for key, value := range overrides {
		switch key {
		case "sd_mount_point":
			cfg.SDMountPoint = cast.ToString(value)
		case "update_dir_name":
			cfg.UpdateDirName = cast.ToString(value)
		case "image_file_name":
			cfg.ImageFileName = cast.ToString(value)
		case "backup_file_name":
			cfg.BackupFileName = cast.ToString(value)
		case "chunk_size":
			cfg.ChunkSize = cast.ToInt(value)
		}
	}

	if cfg.ChunkSize <= 0 {
		return Config{}, sdkerrors.New(sdkerrors.KindIoError, "chunk_size must be positive, got %d", cfg.ChunkSize)
	}

	return cfg, nil
}
