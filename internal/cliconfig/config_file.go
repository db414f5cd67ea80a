package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config with TOML friendly types. Pointers distinguish
// an explicit zero from an absent key.
type FileConfig struct {
	Transport       string `toml:"transport"`
	Address         string `toml:"address"`
	Serial          string `toml:"serial"`
	SecretKey       string `toml:"secret_key"`
	MaxBytes        *int   `toml:"max_bytes"`
	MaxFrameBytes   *int   `toml:"max_frame_bytes"`
	Channel         string `toml:"channel"`
	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	Watch           *bool  `toml:"watch"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.kalm/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".kalm", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("transport", fc.Transport, &cfg.Transport)
	s.setString("address", fc.Address, &cfg.Address)
	s.setString("serial", fc.Serial, &cfg.Serial)
	s.setString("secret-key", fc.SecretKey, &cfg.SecretKey)
	s.setString("channel", fc.Channel, &cfg.Channel)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)

	s.setInt("max-bytes", fc.MaxBytes, &cfg.MaxBytes)
	s.setInt("max-frame-bytes", fc.MaxFrameBytes, &cfg.MaxFrameBytes)

	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBool("watch", fc.Watch, &cfg.Watch)
	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
