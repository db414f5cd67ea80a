package configwatcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/kalm/pkg/kalm"
)

// fakeTarget records profiles applied by the plugin.
type fakeTarget struct {
	mu      sync.Mutex
	profile kalm.Profile
	sets    int
}

func (f *fakeTarget) Profile() kalm.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile
}

func (f *fakeTarget) SetProfile(p kalm.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profile = p
	f.sets++
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPlugin_ReloadsProfileOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "max_bytes = 0\n")

	target := &fakeTarget{}
	p := New(Config{Path: path, DebounceDelay: 10 * time.Millisecond})
	if err := p.start(context.Background(), target, nil); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	defer p.Shutdown(context.Background())

	writeConfig(t, path, "max_bytes = 512\n")
	waitUntil(t, func() bool { return target.Profile().MaxBytes == 512 })

	if p.Reloads() != 1 {
		t.Errorf("Reloads() = %d, want 1", p.Reloads())
	}
}

func TestPlugin_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	writeConfig(t, path, "")

	target := &fakeTarget{}
	p := New(Config{Path: path, DebounceDelay: 10 * time.Millisecond})
	if err := p.start(context.Background(), target, nil); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	defer p.Shutdown(context.Background())

	writeConfig(t, filepath.Join(dir, "other.toml"), "max_bytes = 99\n")
	time.Sleep(100 * time.Millisecond)

	if got := target.Profile().MaxBytes; got != 0 {
		t.Errorf("MaxBytes = %d after unrelated write, want 0", got)
	}
}

func TestPlugin_Reload(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantErr  bool
		wantSets int
		wantMax  uint32
	}{
		{"sets max bytes", "max_bytes = 30\n", false, 1, 30},
		{"missing key keeps profile", "channel = \"x\"\n", false, 0, 0},
		{"unchanged profile", "max_bytes = 0\n", false, 0, 0},
		{"negative", "max_bytes = -1\n", true, 0, 0},
		{"above uint32", "max_bytes = 4294967296\n", true, 0, 0},
		{"invalid toml", "max_bytes = \n", true, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			writeConfig(t, path, tt.content)

			target := &fakeTarget{}
			p := New(Config{Path: path})
			p.target = target

			err := p.reload()
			if (err != nil) != tt.wantErr {
				t.Fatalf("reload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if target.sets != tt.wantSets || target.profile.MaxBytes != tt.wantMax {
				t.Errorf("sets = %d MaxBytes = %d, want %d and %d", target.sets, target.profile.MaxBytes, tt.wantSets, tt.wantMax)
			}
		})
	}
}

func TestPlugin_InitializeRequiresPath(t *testing.T) {
	p := New(Config{})
	if err := p.Initialize(context.Background(), kalm.PluginConfig{}); !errors.Is(err, ErrNoPath) {
		t.Errorf("Initialize() error = %v, want ErrNoPath", err)
	}
}

func TestWithConfigWatcher_UpdatesServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	writeConfig(t, path, "max_bytes = 0\n")

	cfg := kalm.DefaultConfig()
	cfg.Address = "127.0.0.1:0"
	srv, err := kalm.Listen(context.Background(), cfg,
		WithConfigWatcher(Config{Path: path, DebounceDelay: 10 * time.Millisecond}))
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer srv.Stop(context.Background())

	writeConfig(t, path, "max_bytes = 4096\n")
	waitUntil(t, func() bool { return srv.Profile().MaxBytes == 4096 })
}
