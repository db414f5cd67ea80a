// Package configwatcher reloads the buffering profile of a running kalm
// server when its TOML config file changes. Connections accepted after the
// reload use the new max_bytes; established ones keep their profile.
package configwatcher

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/kalm/internal/cliconfig"
	"github.com/bft-labs/kalm/pkg/kalm"
	"github.com/bft-labs/kalm/pkg/log"
)

// ErrNoPath is returned by Initialize when no config file is configured.
var ErrNoPath = errors.New("configwatcher: config path is required")

// profileTarget receives reloaded profiles. *kalm.Server satisfies it.
type profileTarget interface {
	Profile() kalm.Profile
	SetProfile(kalm.Profile)
}

// Plugin implements config watching functionality.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	path          string
	debounceDelay time.Duration

	// Runtime state
	target   profileTarget
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
	reloads  int
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the TOML file to watch.
	Path string

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config watching the default CLI config file.
func DefaultConfig() Config {
	return Config{
		Path:          cliconfig.DefaultConfigPath(),
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		path:          cfg.Path,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file for the server in cfg.
func (p *Plugin) Initialize(ctx context.Context, cfg kalm.PluginConfig) error {
	if p.path == "" {
		return ErrNoPath
	}
	if cfg.Server == nil {
		return fmt.Errorf("configwatcher: no server to update")
	}
	return p.start(ctx, cfg.Server, cfg.Logger)
}

func (p *Plugin) start(ctx context.Context, target profileTarget, logger log.Logger) error {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	logger = log.With(logger, log.String("plugin", p.Name()))

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("configwatcher: create watcher: %w", err)
	}
	// Editors replace files on save, so the directory is watched.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("configwatcher: watch %s: %w", filepath.Dir(p.path), err)
	}

	p.mu.Lock()
	p.target = target
	p.logger = logger
	p.mu.Unlock()

	// The watcher outlives the Listen context.
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)

	logger.Info("watching config file", log.String("path", p.path))
	return nil
}

// Shutdown stops the config watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	return nil
}

// Reloads returns how many times a changed profile was applied.
func (p *Plugin) Reloads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reloads
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceReload(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		if err := p.reload(); err != nil {
			p.logger.Warn("reload failed", log.String("path", p.path), log.Err(err))
		}
	})
}

// reload applies max_bytes from the file. A file without max_bytes leaves
// the profile unchanged.
func (p *Plugin) reload() error {
	fc, err := cliconfig.LoadFileConfig(p.path)
	if err != nil {
		return err
	}
	if fc.MaxBytes == nil {
		return nil
	}
	if err := cliconfig.CheckByteLimit("max_bytes", *fc.MaxBytes); err != nil {
		return err
	}

	next := kalm.Profile{MaxBytes: uint32(*fc.MaxBytes)}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.target.Profile() == next {
		return nil
	}
	p.target.SetProfile(next)
	p.reloads++
	return nil
}

// Ensure Plugin implements kalm.Plugin.
var _ kalm.Plugin = (*Plugin)(nil)
