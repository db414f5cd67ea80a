package frame

const (
	// Magic prefixes every frame ("KLM1").
	Magic uint32 = 0x4B4C4D31

	// HeaderLen is the magic plus the body length field.
	HeaderLen = 8

	// PacketOverhead is the encoded size of one packet beyond its bytes.
	PacketOverhead = 4

	MaxChannelLen = 0xFFFF
	MaxPackets    = 0xFFFF
)

// Frame is one decoded wire unit.
type Frame struct {
	Channel string
	Packets [][]byte
}

// PayloadBytes is the number of packet bytes carried by the frame, as seen on
// the wire before any decryption or deserialization.
func (f Frame) PayloadBytes() uint32 {
	var n uint32
	for _, p := range f.Packets {
		n += uint32(len(p))
	}
	return n
}

// EncodedLen returns the number of bytes Encode produces for f.
func (f Frame) EncodedLen() int {
	n := HeaderLen + 2 + len(f.Channel) + 2
	for _, p := range f.Packets {
		n += PacketOverhead + len(p)
	}
	return n
}

// Limits constrains decode memory use.
type Limits struct {
	MaxFrameBytes uint32
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		MaxFrameBytes: 16 * 1024 * 1024,
	}
}

// MaxBody returns the largest accepted frame body, applying the default when
// MaxFrameBytes is zero.
func (l Limits) MaxBody() uint32 {
	if l.MaxFrameBytes == 0 {
		return DefaultLimits().MaxFrameBytes
	}
	return l.MaxFrameBytes
}

// BodyLen is the encoded body size of a frame on channel whose packets total
// payload bytes including their length prefixes.
func BodyLen(channel string, payload int) int {
	return 2 + len(channel) + 2 + payload
}
