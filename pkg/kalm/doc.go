// Package kalm provides channel-based messaging over interchangeable
// transports.
//
// A server is started with [Listen] and a client with [Connect]. Both sides
// exchange values on named channels through a [Connection]:
//
//	srv, err := kalm.Listen(ctx, cfg,
//	    kalm.WithConnectionHandler(func(c *kalm.Connection) {
//	        _ = c.SubscribeFunc("messages", func(m kalm.Message) error {
//	            fmt.Println(m.Body)
//	            return nil
//	        })
//	    }),
//	)
//
//	conn, err := kalm.Connect(ctx, cfg)
//	err = conn.Write("messages", map[string]any{"foo": "bar"})
//
// Writes are buffered according to the connection [Profile]; values are
// serialized by the configured serializer and, when a secret key is set,
// sealed with ChaCha20-Poly1305 before being framed.
//
// # Transports
//
//   - "tcp" (alias "stream"): TCP sockets
//   - "udp" (alias "datagram"): UDP demultiplexed by remote address
//   - "ipc" (alias "local"): unix domain sockets
//   - "ws" (alias "websocket"): websocket binary messages
//
// Custom backends are installed with [WithTransport].
package kalm
