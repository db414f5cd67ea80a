package configwatcher

import "github.com/bft-labs/kalm/pkg/kalm"

// WithConfigWatcher returns a kalm Option that reloads the server profile
// when the config file changes.
//
// Usage:
//
//	srv, err := kalm.Listen(ctx, cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:          "/etc/kalm/config.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithConfigWatcher(cfg Config) kalm.Option {
	return kalm.WithPlugin(New(cfg))
}

// WithDefaultConfigWatcher watches $HOME/.kalm/config.toml.
func WithDefaultConfigWatcher() kalm.Option {
	return WithConfigWatcher(DefaultConfig())
}
