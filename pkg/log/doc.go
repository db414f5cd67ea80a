// Package log provides the logging abstraction used by kalm connections,
// servers and plugins.
//
// Library code never writes to stderr on its own: the default logger is
// [NoopLogger]. Applications that want output wrap a zerolog logger:
//
//	logger := log.NewZerologAdapterWithLogger(zerolog.New(os.Stderr))
//	srv, err := kalm.Listen(ctx, cfg, kalm.WithLogger(logger))
//
// Any other backend can be plugged in by implementing [Logger].
package log
