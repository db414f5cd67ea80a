package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/kalm"
	"github.com/bft-labs/kalm/internal/cliconfig"
	"github.com/bft-labs/kalm/pkg/log"
	"github.com/bft-labs/kalm/pkg/serial"
	"github.com/bft-labs/kalm/plugins/configwatcher"
)

const longHelp = `kalm moves values between processes on named channels.

A server started with "kalm listen" logs every message it receives on the
configured channel; "kalm send" connects and writes its arguments. Both ends
must agree on transport, serializer and secret key.

Configuration is read from $HOME/.kalm/config.toml, then KALM_* environment
variables, then flags.`

var exampleUsage = strings.TrimSpace(`
  kalm listen --transport udp --address 127.0.0.1:4000
  kalm send --transport udp --address 127.0.0.1:4000 '{"foo":"bar"}' hello
  kalm listen --config ./kalm.toml --watch
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	root := &cobra.Command{
		Use:           "kalm",
		Short:         "Channel messaging over tcp, udp, unix sockets and websockets",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Flags
	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.kalm/config.toml)")
	pf.StringVar(&cfg.Transport, "transport", cfg.Transport, "transport: tcp, udp, ipc or ws")
	pf.StringVar(&cfg.Address, "address", cfg.Address, "host:port, or socket path for ipc (default depends on transport)")
	pf.StringVar(&cfg.Serial, "serial", cfg.Serial, "serializer: json, cbor, proto or null")
	pf.StringVar(&cfg.SecretKey, "secret-key", cfg.SecretKey, "shared secret enabling packet encryption")
	pf.IntVar(&cfg.MaxBytes, "max-bytes", cfg.MaxBytes, "buffer writes until this many bytes are pending (0 sends immediately)")
	pf.IntVar(&cfg.MaxFrameBytes, "max-frame-bytes", cfg.MaxFrameBytes, "largest frame accepted from a peer")
	pf.StringVar(&cfg.Channel, "channel", cfg.Channel, "channel to listen on or send to")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error")
	pf.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "time allowed for connections to close")

	listen := &cobra.Command{
		Use:   "listen",
		Short: "Start a server and log every message received on the channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile, err := loadConfig(cmd, &cfg, cfgPath)
			if err != nil {
				return err
			}
			return runListen(cfg, cfgFile)
		},
	}
	listen.Flags().BoolVar(&cfg.Watch, "watch", cfg.Watch, "reload max_bytes from the config file while running")

	send := &cobra.Command{
		Use:   "send <message>...",
		Short: "Connect and write each argument to the channel",
		Long: `Connect and write each argument to the channel. Arguments that are valid
JSON are sent as the decoded value, anything else as a string.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfig(cmd, &cfg, cfgPath); err != nil {
				return err
			}
			return runSend(cfg, args)
		},
	}

	root.AddCommand(listen, send)

	if err := root.Execute(); err != nil {
		logger := cliconfig.Logger(cfg.LogLevel)
		logger.Error().Err(err).Msg("kalm")
		os.Exit(1)
	}
}

// loadConfig applies file, environment and flag settings in increasing
// precedence and returns the config file in use, if any.
func loadConfig(cmd *cobra.Command, cfg *cliconfig.Config, cfgPath string) (string, error) {
	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	// Build set of changed flags
	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return "", fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(cfg, fc, changed); err != nil {
			return "", err
		}
	} else if cfgPath != "" {
		return "", fmt.Errorf("config file %s not found", cfgPath)
	} else {
		cfgFile = ""
	}

	if err := cliconfig.ApplyEnvConfig(cfg, changed); err != nil {
		return "", err
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	return cfgFile, nil
}

func runListen(cfg cliconfig.Config, cfgFile string) error {
	logger := cliconfig.Logger(cfg.LogLevel)
	logCfg := cfg
	if logCfg.SecretKey != "" {
		logCfg.SecretKey = "*****"
	}
	logger.Info().Interface("config", logCfg).Msg("configuration")

	opts := []kalm.Option{
		kalm.WithLogger(log.NewZerologAdapterWithLogger(logger)),
		kalm.WithConnectionHandler(func(c *kalm.Connection) {
			err := c.SubscribeFunc(cfg.Channel, func(m kalm.Message) error {
				logMessage(logger, m)
				return nil
			})
			if err != nil {
				logger.Warn().Err(err).Str("connection", c.ID()).Msg("subscribe failed")
			}
		}),
	}
	if cfg.Watch {
		if cfgFile == "" {
			return fmt.Errorf("--watch requires a config file")
		}
		opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{Path: cfgFile}))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := kalm.Listen(ctx, cfg.Library(), opts...)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	<-ctx.Done()
	logger.Info().Msg("received signal, stopping...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	st := srv.Stats()
	logger.Info().
		Uint64("accepted", st.Accepted).
		Msg("server stopped")
	return nil
}

func logMessage(logger zerolog.Logger, m kalm.Message) {
	event := logger.Info().
		Str("connection", m.ConnectionID).
		Str("channel", m.Frame.Channel).
		Uint32("payload_bytes", m.Frame.PayloadBytes)
	if b, ok := m.Body.([]byte); ok {
		event = event.Bytes("body", b)
	} else {
		event = event.Interface("body", m.Body)
	}
	event.Msg("message")
}

func runSend(cfg cliconfig.Config, args []string) error {
	logger := cliconfig.Logger(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := kalm.Connect(ctx, cfg.Library(), kalm.WithLogger(log.NewZerologAdapterWithLogger(logger)))
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	raw := isRawSerializer(cfg.Serial)
	for _, arg := range args {
		if err := conn.Write(cfg.Channel, parseArg(arg, raw)); err != nil {
			_ = conn.Close()
			return fmt.Errorf("write: %w", err)
		}
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	logger.Info().Int("messages", len(args)).Str("channel", cfg.Channel).Msg("sent")
	return nil
}

func isRawSerializer(name string) bool {
	s, err := serial.ByName(name)
	return err == nil && s.Name() == serial.NameNull
}

// parseArg decodes JSON arguments for structured serializers.
func parseArg(arg string, raw bool) any {
	if raw {
		return []byte(arg)
	}
	var v any
	if json.Valid([]byte(arg)) && json.Unmarshal([]byte(arg), &v) == nil {
		return v
	}
	return arg
}
