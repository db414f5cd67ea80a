package batch

import "github.com/bft-labs/kalm/pkg/frame"

// Entry is one pending packet and the channel it was written to.
type Entry struct {
	Channel string
	Packet  []byte
}

// Batch is the FIFO queue of packets written since the last flush.
type Batch struct {
	Entries []Entry

	// TotalBytes is the encoded size the entries add to their frames.
	TotalBytes int

	limits frame.Limits
}

// NewBatch creates a new empty batch whose frames respect limits.
func NewBatch(limits frame.Limits) *Batch {
	return &Batch{Entries: make([]Entry, 0), limits: limits}
}

// Add appends a packet to the batch.
func (b *Batch) Add(channel string, packet []byte) {
	b.Entries = append(b.Entries, Entry{Channel: channel, Packet: packet})
	b.TotalBytes += frame.PacketOverhead + len(packet)
}

// Size returns the number of packets in the batch.
func (b *Batch) Size() int {
	return len(b.Entries)
}

// Empty returns true if the batch has no packets.
func (b *Batch) Empty() bool {
	return len(b.Entries) == 0
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	clear(b.Entries)
	b.Entries = b.Entries[:0]
	b.TotalBytes = 0
}

// Frames groups runs of consecutive packets on the same channel into frames,
// keeping write order. A run is split when it would exceed frame.MaxPackets
// or the body size limit.
func (b *Batch) Frames() []frame.Frame {
	var (
		out     []frame.Frame
		payload int
	)
	maxBody := int(b.limits.MaxBody())
	for _, e := range b.Entries {
		size := frame.PacketOverhead + len(e.Packet)
		if n := len(out); n > 0 && out[n-1].Channel == e.Channel &&
			len(out[n-1].Packets) < frame.MaxPackets &&
			frame.BodyLen(e.Channel, payload+size) <= maxBody {
			out[n-1].Packets = append(out[n-1].Packets, e.Packet)
			payload += size
			continue
		}
		out = append(out, frame.Frame{Channel: e.Channel, Packets: [][]byte{e.Packet}})
		payload = size
	}
	return out
}
