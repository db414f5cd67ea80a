// Package frame implements the kalm wire codec.
//
// A frame carries one channel name and one or more packets. All integers are
// big-endian:
//
//	offset  size  field
//	0       4     magic "KLM1"
//	4       4     body length N (bytes following this field)
//	8       2     channel length C (>= 1)
//	10      C     channel name, never encrypted
//	10+C    2     packet count P (>= 1)
//	...           P x { 4 byte packet length L, L packet bytes }
//
// Packets are opaque to the codec: they hold serialized and optionally sealed
// message bodies. [DecodeNext] is resumable: it reports an incomplete frame by
// consuming nothing, so callers can keep appending bytes from a stream or
// datagram transport and call it again.
package frame
