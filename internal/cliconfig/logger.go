package cliconfig

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/bft-labs/kalm/pkg/log"
)

// Logger returns the console logger used by the CLI.
func Logger(level string) zerolog.Logger {
	return log.NewConsoleLogger(os.Stderr, level)
}
