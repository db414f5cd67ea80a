package kalm

import (
	"errors"

	"github.com/bft-labs/kalm/internal/mux"
	"github.com/bft-labs/kalm/pkg/cipher"
	"github.com/bft-labs/kalm/pkg/frame"
	"github.com/bft-labs/kalm/pkg/serial"
)

var (
	// ErrConnection is returned when a listener cannot bind, a dial fails or
	// a link breaks while open.
	ErrConnection = errors.New("kalm: connection error")

	// ErrClosed is returned by operations on a closing or closed connection
	// or server.
	ErrClosed = errors.New("kalm: closed")

	// ErrInvalidConfig is returned when the configuration fails validation.
	ErrInvalidConfig = errors.New("kalm: invalid configuration")

	// ErrShutdownTimeout is returned by Server.Stop when connections did not
	// finish before the context ended.
	ErrShutdownTimeout = errors.New("kalm: shutdown timeout")
)

// Errors surfaced from the lower layers.
var (
	ErrIntegrity      = cipher.ErrIntegrity
	ErrMalformedFrame = frame.ErrMalformed
	ErrFrameTooLarge  = frame.ErrFrameTooLarge
	ErrSerialization  = serial.ErrSerialization
	ErrSubscriber     = mux.ErrSubscriber
)
