package kalm

// Stats counts traffic on a connection, or the sum over a server's live
// connections.
type Stats struct {
	FramesIn   uint64
	FramesOut  uint64
	PacketsIn  uint64
	PacketsOut uint64
	BytesIn    uint64
	BytesOut   uint64

	// Dispatched counts subscriber invocations.
	Dispatched uint64
	// Unsubscribed counts packets dropped because nobody listened.
	Unsubscribed uint64
	// DispatchErrors counts failed decodes and subscriber errors.
	DispatchErrors uint64
}

func (s *Stats) add(o Stats) {
	s.FramesIn += o.FramesIn
	s.FramesOut += o.FramesOut
	s.PacketsIn += o.PacketsIn
	s.PacketsOut += o.PacketsOut
	s.BytesIn += o.BytesIn
	s.BytesOut += o.BytesOut
	s.Dispatched += o.Dispatched
	s.Unsubscribed += o.Unsubscribed
	s.DispatchErrors += o.DispatchErrors
}

// ServerStats summarizes a server.
type ServerStats struct {
	// Accepted counts every link accepted since Listen.
	Accepted uint64
	// Active is the number of live connections.
	Active int
	// Traffic sums the stats of live connections.
	Traffic Stats
}
