package batch

import "github.com/bft-labs/kalm/pkg/frame"

// DefaultBatcher flushes once the pending encoded size reaches maxBytes.
// A zero maxBytes flushes on every write. It is not safe for concurrent use;
// the owning connection serializes access.
type DefaultBatcher struct {
	batch    *Batch
	maxBytes int
}

// NewDefaultBatcher creates a batcher with the given byte threshold whose
// drained frames stay within limits.
func NewDefaultBatcher(maxBytes uint32, limits frame.Limits) *DefaultBatcher {
	return &DefaultBatcher{
		batch:    NewBatch(limits),
		maxBytes: int(maxBytes),
	}
}

func (b *DefaultBatcher) Add(channel string, packet []byte) bool {
	b.batch.Add(channel, packet)
	return b.maxBytes == 0 || b.batch.TotalBytes >= b.maxBytes
}

func (b *DefaultBatcher) Drain() []frame.Frame {
	if b.batch.Empty() {
		return nil
	}
	frames := b.batch.Frames()
	b.batch.Reset()
	return frames
}

func (b *DefaultBatcher) HasPending() bool {
	return !b.batch.Empty()
}

// PendingBytes is the running total since the last flush.
func (b *DefaultBatcher) PendingBytes() int {
	return b.batch.TotalBytes
}

var _ Batcher = (*DefaultBatcher)(nil)
