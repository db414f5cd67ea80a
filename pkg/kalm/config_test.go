package kalm

import (
	"errors"
	"strings"
	"testing"

	"github.com/bft-labs/kalm/pkg/cipher"
	"github.com/bft-labs/kalm/pkg/serial"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Transport != TransportTCP || cfg.Address != "127.0.0.1:3000" || cfg.Serial != "json" {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
	if cfg.Profile.MaxBytes != 0 || cfg.SecretKey != "" {
		t.Errorf("DefaultConfig() enables batching or encryption: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestConfig_SetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.Transport != TransportTCP || cfg.Address != DefaultAddress || cfg.Serial != serial.NameJSON {
		t.Errorf("SetDefaults() = %+v", cfg)
	}

	ipcCfg := Config{Transport: "local"}
	ipcCfg.SetDefaults()
	if !strings.HasSuffix(ipcCfg.Address, "kalm-3000.sock") {
		t.Errorf("ipc default address = %q", ipcCfg.Address)
	}

	custom := Config{Serializer: serial.Null{}}
	custom.SetDefaults()
	if custom.Serial != "" {
		t.Errorf("Serial = %q, want empty when a Serializer is set", custom.Serial)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"null serializer", func(c *Config) { c.Serial = "null" }, false},
		{"empty address", func(c *Config) { c.Address = "" }, true},
		{"unknown serializer", func(c *Config) { c.Serial = "yaml" }, true},
		{"custom serializer", func(c *Config) { c.Serial = "yaml"; c.Serializer = serial.JSON{} }, false},
		{"tiny frame limit", func(c *Config) { c.Limits.MaxFrameBytes = 4 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error %v does not wrap ErrInvalidConfig", err)
			}
		})
	}
}

func TestTransportByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"tcp", "tcp"},
		{"Stream", "tcp"},
		{"udp", "udp"},
		{"datagram", "udp"},
		{"ipc", "ipc"},
		{"local", "ipc"},
		{"ws", "ws"},
		{"websocket", "ws"},
	}
	for _, tt := range tests {
		tr, err := transportByName(tt.name)
		if err != nil {
			t.Errorf("transportByName(%q) error = %v", tt.name, err)
			continue
		}
		if tr.Name() != tt.want {
			t.Errorf("transportByName(%q).Name() = %s, want %s", tt.name, tr.Name(), tt.want)
		}
	}

	if _, err := transportByName("carrier-pigeon"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unknown transport error = %v", err)
	}
}

func TestNewCodec(t *testing.T) {
	cfg := DefaultConfig()
	cd, err := newCodec(cfg)
	if err != nil {
		t.Fatalf("newCodec() error = %v", err)
	}
	if _, ok := cd.cipher.(cipher.None); !ok {
		t.Errorf("cipher = %T, want None without a key", cd.cipher)
	}

	cfg.SecretKey = "k"
	cd, err = newCodec(cfg)
	if err != nil {
		t.Fatalf("newCodec() with key error = %v", err)
	}
	if cd.cipher.Overhead() == 0 {
		t.Error("keyed cipher reports no overhead")
	}
}
