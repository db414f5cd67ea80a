package mux

// FrameInfo is the wire metadata of the frame a message arrived in.
type FrameInfo struct {
	Channel string
	// PayloadBytes counts every packet byte of the frame before decryption
	// and deserialization, so it reflects the sender's flush boundary.
	PayloadBytes uint32
}

// Message is what a subscriber receives for one packet.
type Message struct {
	Body         any
	Frame        FrameInfo
	ConnectionID string
}

// Subscriber handles messages for one channel.
type Subscriber interface {
	Handle(msg Message) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc func(msg Message) error

func (f SubscriberFunc) Handle(msg Message) error { return f(msg) }
