package frame

import (
	"encoding/binary"
	"fmt"
)

// Encode serializes f into a single wire frame.
func Encode(f Frame, limits Limits) ([]byte, error) {
	return AppendEncode(nil, f, limits)
}

// AppendEncode appends the wire form of f to dst.
func AppendEncode(dst []byte, f Frame, limits Limits) ([]byte, error) {
	if f.Channel == "" {
		return dst, ErrEmptyChannel
	}
	if len(f.Channel) > MaxChannelLen {
		return dst, fmt.Errorf("%w: %d bytes", ErrChannelTooLong, len(f.Channel))
	}
	if len(f.Packets) == 0 {
		return dst, ErrNoPackets
	}
	if len(f.Packets) > MaxPackets {
		return dst, fmt.Errorf("%w: %d", ErrTooManyPackets, len(f.Packets))
	}
	total := f.EncodedLen()
	body := total - HeaderLen
	if uint64(body) > uint64(limits.MaxBody()) {
		return dst, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, body)
	}

	dst = binary.BigEndian.AppendUint32(dst, Magic)
	dst = binary.BigEndian.AppendUint32(dst, uint32(body))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Channel)))
	dst = append(dst, f.Channel...)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(f.Packets)))
	for _, p := range f.Packets {
		dst = binary.BigEndian.AppendUint32(dst, uint32(len(p)))
		dst = append(dst, p...)
	}
	return dst, nil
}

// DecodeNext parses the first frame in buf.
//
// It returns (nil, 0, nil) when buf does not yet hold a complete frame and
// (frame, consumed, nil) once it does. Any error wraps ErrMalformed. Packets
// are copied, so buf may be reused after the call.
func DecodeNext(buf []byte, limits Limits) (*Frame, int, error) {
	if len(buf) < HeaderLen {
		if !magicPrefixOK(buf) {
			return nil, 0, fmt.Errorf("%w: bad magic", ErrMalformed)
		}
		return nil, 0, nil
	}
	if m := binary.BigEndian.Uint32(buf[0:4]); m != Magic {
		return nil, 0, fmt.Errorf("%w: bad magic 0x%08x", ErrMalformed, m)
	}
	body := binary.BigEndian.Uint32(buf[4:8])
	if body > limits.MaxBody() {
		return nil, 0, fmt.Errorf("%w: body length %d exceeds limit %d", ErrMalformed, body, limits.MaxBody())
	}
	if body < 2+1+2+PacketOverhead {
		return nil, 0, fmt.Errorf("%w: body length %d too small", ErrMalformed, body)
	}
	end := HeaderLen + int(body)
	if len(buf) < end {
		return nil, 0, nil
	}

	f, err := decodeBody(buf[HeaderLen:end])
	if err != nil {
		return nil, 0, err
	}
	return f, end, nil
}

func decodeBody(b []byte) (*Frame, error) {
	chLen := int(binary.BigEndian.Uint16(b[0:2]))
	if chLen == 0 {
		return nil, fmt.Errorf("%w: empty channel", ErrMalformed)
	}
	i := 2
	if len(b)-i < chLen+2 {
		return nil, fmt.Errorf("%w: channel length %d overruns body", ErrMalformed, chLen)
	}
	channel := string(b[i : i+chLen])
	i += chLen

	count := int(binary.BigEndian.Uint16(b[i : i+2]))
	i += 2
	if count == 0 {
		return nil, fmt.Errorf("%w: zero packets", ErrMalformed)
	}

	packets := make([][]byte, 0, count)
	for n := 0; n < count; n++ {
		if len(b)-i < PacketOverhead {
			return nil, fmt.Errorf("%w: truncated packet header %d", ErrMalformed, n)
		}
		l := binary.BigEndian.Uint32(b[i : i+PacketOverhead])
		i += PacketOverhead
		if uint64(len(b)-i) < uint64(l) {
			return nil, fmt.Errorf("%w: packet %d length %d overruns body", ErrMalformed, n, l)
		}
		p := make([]byte, l)
		copy(p, b[i:i+int(l)])
		i += int(l)
		packets = append(packets, p)
	}
	if i != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(b)-i)
	}
	return &Frame{Channel: channel, Packets: packets}, nil
}

// magicPrefixOK reports whether a short buffer could still start a frame.
func magicPrefixOK(buf []byte) bool {
	var m [4]byte
	binary.BigEndian.PutUint32(m[:], Magic)
	for i := 0; i < len(buf) && i < 4; i++ {
		if buf[i] != m[i] {
			return false
		}
	}
	return true
}
