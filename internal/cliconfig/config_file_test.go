package cliconfig

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestApplyFileConfig(t *testing.T) {
	trueVal := true
	thirty := 30
	zero := 0

	tests := []struct {
		name       string
		fileConfig FileConfig
		changed    map[string]bool
		initial    Config
		expected   Config
		wantErr    bool
	}{
		{
			name: "applies all valid config values",
			fileConfig: FileConfig{
				Transport:       "udp",
				Address:         "0.0.0.0:4000",
				Serial:          "cbor",
				SecretKey:       "secret",
				MaxBytes:        &thirty,
				Channel:         "events",
				LogLevel:        "debug",
				ShutdownTimeout: "3s",
				Watch:           &trueVal,
			},
			changed: map[string]bool{},
			initial: Config{},
			expected: Config{
				Transport:       "udp",
				Address:         "0.0.0.0:4000",
				Serial:          "cbor",
				SecretKey:       "secret",
				MaxBytes:        30,
				Channel:         "events",
				LogLevel:        "debug",
				ShutdownTimeout: 3 * time.Second,
				Watch:           true,
			},
		},
		{
			name: "respects changed flags",
			fileConfig: FileConfig{
				Transport: "ipc",
				Address:   "/tmp/file.sock",
			},
			changed: map[string]bool{"transport": true},
			initial: Config{
				Transport: "ws",
			},
			expected: Config{
				Transport: "ws", // unchanged because flag was set
				Address:   "/tmp/file.sock",
			},
		},
		{
			name:       "explicit zero disables buffering",
			fileConfig: FileConfig{MaxBytes: &zero},
			changed:    map[string]bool{},
			initial:    Config{MaxBytes: 512},
			expected:   Config{MaxBytes: 0},
		},
		{
			name:       "invalid duration",
			fileConfig: FileConfig{ShutdownTimeout: "soon"},
			changed:    map[string]bool{},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.initial
			err := ApplyFileConfig(&cfg, tt.fileConfig, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyFileConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyFileConfig() unexpected error: %v", err)
			}
			if cfg != tt.expected {
				t.Errorf("config = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}

func TestLoadFileConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.toml")

	tomlContent := `
transport = "ws"
address = "127.0.0.1:9000"
serial = "proto"
max_bytes = 4096
channel = "telemetry"
watch = true
`

	if err := os.WriteFile(configPath, []byte(tomlContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	fc, err := LoadFileConfig(configPath)
	if err != nil {
		t.Fatalf("LoadFileConfig() error = %v", err)
	}

	if fc.Transport != "ws" {
		t.Errorf("Transport = %v, want ws", fc.Transport)
	}
	if fc.Address != "127.0.0.1:9000" {
		t.Errorf("Address = %v, want 127.0.0.1:9000", fc.Address)
	}
	if fc.Serial != "proto" {
		t.Errorf("Serial = %v, want proto", fc.Serial)
	}
	if fc.MaxBytes == nil || *fc.MaxBytes != 4096 {
		t.Errorf("MaxBytes = %v, want 4096", fc.MaxBytes)
	}
	if fc.MaxFrameBytes != nil {
		t.Errorf("MaxFrameBytes = %v, want nil", *fc.MaxFrameBytes)
	}
	if fc.Channel != "telemetry" {
		t.Errorf("Channel = %v, want telemetry", fc.Channel)
	}
	if fc.Watch == nil || !*fc.Watch {
		t.Errorf("Watch = %v, want true", fc.Watch)
	}
}

func TestLoadFileConfig_InvalidFile(t *testing.T) {
	_, err := LoadFileConfig("/nonexistent/path/config.toml")
	if err == nil {
		t.Error("LoadFileConfig() expected error for nonexistent file")
	}
}

func TestLoadFileConfig_InvalidTOML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.toml")

	invalidContent := `
transport = "tcp"
this is not valid toml
`

	if err := os.WriteFile(configPath, []byte(invalidContent), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	_, err := LoadFileConfig(configPath)
	if err == nil {
		t.Error("LoadFileConfig() expected error for invalid TOML")
	}
}

func TestDefaultConfigPath(t *testing.T) {
	path := DefaultConfigPath()

	if path != "" && !strings.Contains(path, ".kalm") {
		t.Errorf("DefaultConfigPath() = %v, should contain .kalm", path)
	}
}

func TestFileExists(t *testing.T) {
	tmpDir := t.TempDir()
	existingFile := filepath.Join(tmpDir, "exists.txt")

	if err := os.WriteFile(existingFile, []byte("test"), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if !FileExists(existingFile) {
		t.Error("FileExists() = false, want true for existing file")
	}

	if FileExists(filepath.Join(tmpDir, "nonexistent.txt")) {
		t.Error("FileExists() = true, want false for nonexistent file")
	}
}
