package kalm

import (
	"github.com/bft-labs/kalm/pkg/log"
	"github.com/bft-labs/kalm/pkg/transport"
)

// Option configures optional behavior of servers and connections.
type Option func(*options)

type options struct {
	logger            log.Logger
	eventHandler      EventHandler
	connectionHandler func(*Connection)
	plugins           []Plugin
	transport         transport.Transport
}

func defaultOptions() options {
	return options{
		logger:       log.NewNoopLogger(),
		eventHandler: BaseEventHandler{},
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.eventHandler == nil {
		o.eventHandler = BaseEventHandler{}
	}
	return o
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for connection events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithConnectionHandler is called exactly once for every connection a server
// accepts, before the connection starts receiving. Subscriptions made in fn
// see every message the peer sends. Ignored by Connect.
func WithConnectionHandler(fn func(*Connection)) Option {
	return func(o *options) {
		o.connectionHandler = fn
	}
}

// WithPlugin registers a server plugin. Ignored by Connect.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, p)
	}
}

// WithTransport replaces the backend named by Config.Transport.
func WithTransport(t transport.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}
