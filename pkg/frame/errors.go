package frame

import "errors"

var (
	// ErrMalformed is returned when declared lengths cannot describe a valid
	// frame. The byte stream can no longer be trusted after it is reported.
	ErrMalformed = errors.New("frame: malformed")

	ErrEmptyChannel   = errors.New("frame: empty channel name")
	ErrChannelTooLong = errors.New("frame: channel name too long")
	ErrNoPackets      = errors.New("frame: no packets")
	ErrTooManyPackets = errors.New("frame: too many packets")
	ErrFrameTooLarge  = errors.New("frame: frame too large")
)
