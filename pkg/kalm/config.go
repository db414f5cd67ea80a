package kalm

import (
	"fmt"
	"strings"

	"github.com/bft-labs/kalm/pkg/cipher"
	"github.com/bft-labs/kalm/pkg/frame"
	"github.com/bft-labs/kalm/pkg/serial"
	"github.com/bft-labs/kalm/pkg/transport"
	"github.com/bft-labs/kalm/pkg/transport/ipc"
	"github.com/bft-labs/kalm/pkg/transport/tcp"
	"github.com/bft-labs/kalm/pkg/transport/udp"
	"github.com/bft-labs/kalm/pkg/transport/ws"
)

// Transport names accepted in Config.Transport.
const (
	TransportTCP       = "tcp"
	TransportUDP       = "udp"
	TransportIPC       = "ipc"
	TransportWebSocket = "ws"
)

// DefaultAddress is used when Config.Address is empty.
const DefaultAddress = tcp.DefaultAddress

// Profile controls write buffering.
type Profile struct {
	// MaxBytes is the pending packet size that triggers a flush, counting
	// four bytes of framing per packet. Zero sends every write immediately.
	MaxBytes uint32 `toml:"max_bytes"`
}

// Config holds the settings shared by servers and clients. Both peers must
// agree on Serial and SecretKey.
type Config struct {
	// Transport selects the backend: "tcp", "udp", "ipc" or "ws".
	// Default: "tcp"
	Transport string

	// Address is host:port for network transports and a socket path for ipc.
	// Default: 127.0.0.1:3000, or a socket in the temp directory for ipc
	Address string

	// Serial names the serializer: "json", "cbor", "proto" or "null".
	// Default: "json"
	Serial string

	// Serializer overrides Serial with a custom implementation.
	Serializer serial.Serializer

	// SecretKey enables packet encryption when non-empty.
	SecretKey string

	Profile Profile

	// Limits bound the size of frames accepted from a peer.
	Limits frame.Limits
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Transport: TransportTCP,
		Address:   DefaultAddress,
		Serial:    serial.NameJSON,
		Limits:    frame.DefaultLimits(),
	}
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Transport == "" {
		c.Transport = TransportTCP
	}
	if c.Address == "" {
		if canonicalTransport(c.Transport) == TransportIPC {
			c.Address = ipc.DefaultAddress()
		} else {
			c.Address = DefaultAddress
		}
	}
	if c.Serial == "" && c.Serializer == nil {
		c.Serial = serial.NameJSON
	}
	if c.Limits.MaxFrameBytes == 0 {
		c.Limits = frame.DefaultLimits()
	}
}

// Validate checks the configuration. Transport is only checked when no
// custom transport is supplied, see WithTransport.
func (c Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidConfig)
	}
	if c.Serializer == nil {
		if _, err := serial.ByName(c.Serial); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	if c.Limits.MaxFrameBytes != 0 && c.Limits.MaxFrameBytes < frame.HeaderLen {
		return fmt.Errorf("%w: max frame bytes %d is below the frame header size", ErrInvalidConfig, c.Limits.MaxFrameBytes)
	}
	return nil
}

func canonicalTransport(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "tcp", "stream":
		return TransportTCP
	case "udp", "datagram":
		return TransportUDP
	case "ipc", "local", "unix":
		return TransportIPC
	case "ws", "websocket":
		return TransportWebSocket
	default:
		return ""
	}
}

// transportByName resolves a built-in backend.
func transportByName(name string) (transport.Transport, error) {
	switch canonicalTransport(name) {
	case TransportTCP:
		return tcp.New(), nil
	case TransportUDP:
		return udp.New(), nil
	case TransportIPC:
		return ipc.New(), nil
	case TransportWebSocket:
		return ws.New(), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, name)
	}
}

// codec is the per-connection encoding pipeline derived from Config.
type codec struct {
	serial serial.Serializer
	cipher cipher.Cipher
	limits frame.Limits
}

func newCodec(cfg Config) (codec, error) {
	s := cfg.Serializer
	if s == nil {
		var err error
		if s, err = serial.ByName(cfg.Serial); err != nil {
			return codec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	ci, err := cipher.FromSecret(cfg.SecretKey)
	if err != nil {
		return codec{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return codec{serial: s, cipher: ci, limits: cfg.Limits}, nil
}

// prepare applies defaults, validates and resolves the transport.
func prepare(cfg *Config, o *options) (transport.Transport, codec, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, codec{}, err
	}
	tr := o.transport
	if tr == nil {
		var err error
		if tr, err = transportByName(cfg.Transport); err != nil {
			return nil, codec{}, err
		}
	}
	cd, err := newCodec(*cfg)
	if err != nil {
		return nil, codec{}, err
	}
	return tr, cd, nil
}
