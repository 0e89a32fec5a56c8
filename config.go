package hmdlink

import (
	"fmt"
	"os"

	"github.com/motionreality/hmdlink/hgpu"
	"github.com/motionreality/hmdlink/hmd"
	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk configuration for a render-server binary.
// It carries the settings an operator tunes;
// the embedder supplies the device and pipeline in code
// via [FileConfig.ServerConfig].
type FileConfig struct {
	// Directory holding the endpoint socket.
	// Empty selects the OS temporary directory.
	SocketDir string `yaml:"socket_dir"`

	// Bind the reserved secondary endpoint instead of the primary.
	UseSecondaryEndpoint bool `yaml:"use_secondary_endpoint"`

	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Minimum level: debug, info, warn, or error.
	Level string `yaml:"level"`

	// File to log to, with rotation.
	// Empty logs to stderr only.
	File string `yaml:"file"`

	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`
}

// DefaultFileConfig returns the configuration a server runs with
// when no file is present.
func DefaultFileConfig() FileConfig {
	return FileConfig{
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 3,
			MaxAgeDays: 7,
			Compress:   true,
		},
	}
}

// LoadFileConfig reads path as YAML over the defaults.
// A missing file is not an error; the defaults are returned.
func LoadFileConfig(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ServerConfig combines the file settings with the in-process
// collaborators into a runnable [ServerConfig].
func (c FileConfig) ServerConfig(device hgpu.Device, open hmd.Opener) ServerConfig {
	return ServerConfig{
		SocketDir:            c.SocketDir,
		UseSecondaryEndpoint: c.UseSecondaryEndpoint,
		Device:               device,
		OpenPipeline:         open,
	}
}
