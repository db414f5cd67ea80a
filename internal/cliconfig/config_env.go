package cliconfig

import "os"

// EnvPrefix prefixes every environment variable read by ApplyEnvConfig.
const EnvPrefix = "KALM_"

// ApplyEnvConfig applies KALM_* environment variables. They override file
// values and are overridden by explicitly set flags.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("transport", os.Getenv(EnvPrefix+"TRANSPORT"), &cfg.Transport)
	s.setString("address", os.Getenv(EnvPrefix+"ADDRESS"), &cfg.Address)
	s.setString("serial", os.Getenv(EnvPrefix+"SERIAL"), &cfg.Serial)
	s.setString("secret-key", os.Getenv(EnvPrefix+"SECRET_KEY"), &cfg.SecretKey)
	s.setString("channel", os.Getenv(EnvPrefix+"CHANNEL"), &cfg.Channel)
	s.setString("log-level", os.Getenv(EnvPrefix+"LOG_LEVEL"), &cfg.LogLevel)

	if err := s.setIntFromString("max-bytes", os.Getenv(EnvPrefix+"MAX_BYTES"), &cfg.MaxBytes); err != nil {
		return err
	}
	if err := s.setIntFromString("max-frame-bytes", os.Getenv(EnvPrefix+"MAX_FRAME_BYTES"), &cfg.MaxFrameBytes); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv(EnvPrefix+"SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}
	s.setBoolFromString("watch", os.Getenv(EnvPrefix+"WATCH"), &cfg.Watch)
	return nil
}
