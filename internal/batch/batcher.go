// Package batch implements the outbound buffering profile: packets written to
// a connection accumulate until their encoded size reaches the configured
// threshold, then the whole queue is flushed as one transport send.
package batch

import "github.com/bft-labs/kalm/pkg/frame"

// Batcher accumulates packets until a flush is due.
type Batcher interface {
	// Add appends a packet and reports whether the batch must be flushed now.
	// The packet that crosses the threshold is part of that flush.
	Add(channel string, packet []byte) bool

	// Drain returns the pending packets as frames and resets the batch. Each
	// frame is within the limits the batcher was built with, provided every
	// packet fits a frame of its own.
	Drain() []frame.Frame

	// HasPending returns true if there are packets waiting to be sent.
	HasPending() bool
}
