package kalm

import (
	"context"
	"fmt"
)

// Connect dials a server and returns an open connection. ctx bounds the
// dial only.
func Connect(ctx context.Context, cfg Config, opts ...Option) (*Connection, error) {
	o := buildOptions(opts)
	tr, cd, err := prepare(&cfg, &o)
	if err != nil {
		return nil, err
	}

	link, err := tr.Dial(ctx, cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s %s: %w", ErrConnection, tr.Name(), cfg.Address, err)
	}

	conn := newConnection(link, tr.Name(), cd, cfg.Profile, o)
	conn.start(func(fn func()) { go fn() })
	return conn, nil
}
