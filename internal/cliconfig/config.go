package cliconfig

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bft-labs/kalm/pkg/kalm"
	"github.com/bft-labs/kalm/pkg/serial"
)

// DefaultChannel is the channel used by listen and send when none is given.
const DefaultChannel = "messages"

// Config holds CLI configuration for kalm.
type Config struct {
	Transport string
	Address   string
	Serial    string
	SecretKey string

	MaxBytes      int
	MaxFrameBytes int

	Channel         string
	LogLevel        string
	ShutdownTimeout time.Duration

	// Watch reloads the profile from the config file while listening.
	Watch bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	lib := kalm.DefaultConfig()
	return Config{
		Transport:       lib.Transport,
		Address:         "",
		Serial:          lib.Serial,
		MaxFrameBytes:   int(lib.Limits.MaxFrameBytes),
		Channel:         DefaultChannel,
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Transport == "" {
		return fmt.Errorf("transport is required")
	}
	if c.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if err := CheckByteLimit("max-bytes", c.MaxBytes); err != nil {
		return err
	}
	if err := CheckByteLimit("max-frame-bytes", c.MaxFrameBytes); err != nil {
		return err
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if _, err := serial.ByName(c.Serial); err != nil {
		return err
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// CheckByteLimit rejects byte counts that do not fit the wire's uint32.
func CheckByteLimit(name string, n int) error {
	if n < 0 {
		return fmt.Errorf("%s must not be negative, got %d", name, n)
	}
	if int64(n) > math.MaxUint32 {
		return fmt.Errorf("%s must be at most %d, got %d", name, uint32(math.MaxUint32), n)
	}
	return nil
}

// Library converts the CLI configuration to a kalm.Config. An empty address
// lets the library pick the transport default.
func (c Config) Library() kalm.Config {
	cfg := kalm.Config{
		Transport: c.Transport,
		Address:   c.Address,
		Serial:    c.Serial,
		SecretKey: c.SecretKey,
		Profile:   kalm.Profile{MaxBytes: uint32(c.MaxBytes)},
	}
	cfg.Limits.MaxFrameBytes = uint32(c.MaxFrameBytes)
	cfg.SetDefaults()
	return cfg
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if non-negative and flag not changed. A nil
// value means the source did not mention the setting.
func (s *configSetter) setInt(flag string, value *int, dst *int) {
	if value == nil || *value < 0 || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i < 0 {
		return fmt.Errorf("parse %s: negative value %d", flag, i)
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
