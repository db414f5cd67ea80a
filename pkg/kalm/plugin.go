package kalm

import (
	"context"
	"fmt"

	"github.com/bft-labs/kalm/pkg/log"
)

// Plugin extends a server with optional behavior. Plugins are initialized
// by Listen in registration order and shut down by Stop in reverse order.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to plugins at initialization.
type PluginConfig struct {
	// Config is the server configuration after defaults were applied.
	Config Config

	// Server is the server being started.
	Server *Server

	Logger log.Logger
}

// BasePlugin implements Plugin with no-ops.
type BasePlugin struct{}

func (BasePlugin) Name() string                                   { return "base" }
func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }
func (BasePlugin) Shutdown(context.Context) error                 { return nil }

// initializePlugins returns the plugins that initialized successfully so
// they can be shut down if a later one fails.
func initializePlugins(ctx context.Context, plugins []Plugin, cfg PluginConfig) ([]Plugin, error) {
	started := make([]Plugin, 0, len(plugins))
	for _, p := range plugins {
		if err := safeInitialize(ctx, p, cfg); err != nil {
			cfg.Logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			return started, fmt.Errorf("kalm: plugin %s: %w", p.Name(), err)
		}
		cfg.Logger.Info("plugin initialized", log.String("plugin", p.Name()))
		started = append(started, p)
	}
	return started, nil
}

func shutdownPlugins(ctx context.Context, plugins []Plugin, logger log.Logger) {
	for i := len(plugins) - 1; i >= 0; i-- {
		p := plugins[i]
		if err := safeShutdown(ctx, p); err != nil {
			logger.Warn("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(err))
		}
	}
}

func safeInitialize(ctx context.Context, p Plugin, cfg PluginConfig) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during initialization: %v", r)
		}
	}()
	return p.Initialize(ctx, cfg)
}

func safeShutdown(ctx context.Context, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during shutdown: %v", r)
		}
	}()
	return p.Shutdown(ctx)
}
