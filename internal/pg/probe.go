package pg

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashmap-kz/pgreplmon/internal/logger"
	"github.com/jackc/pgx/v5"
)

const DefaultProbeTimeout = 5 * time.Second

// Conn is the subset of *pgx.Conn the prober needs.
type Conn interface {
	Ping(ctx context.Context) error
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

type DialFunc func(ctx context.Context, ep Endpoint) (Conn, error)

// DialPgx opens a fresh, unpooled pgx connection.
func DialPgx(ctx context.Context, ep Endpoint) (Conn, error) {
	cfg, err := pgx.ParseConfig(ep.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parse conn config for %s: %w", ep, err)
	}
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type ProberOpts struct {
	Timeout          time.Duration
	ConsistencyTable string
	Dial             DialFunc
	Logger           *slog.Logger
}

type Prober struct {
	l       *slog.Logger
	dial    DialFunc
	timeout time.Duration
	queries []probeQuery
}

func NewProber(opts *ProberOpts) *Prober {
	if opts == nil {
		opts = &ProberOpts{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	dial := opts.Dial
	if dial == nil {
		dial = DialPgx
	}
	l := opts.Logger
	if l == nil {
		l = slog.Default()
	}
	return &Prober{
		l:       l.With(slog.String("component", "db-probe")),
		dial:    dial,
		timeout: timeout,
		queries: probeQueries(opts.ConsistencyTable),
	}
}

func (p *Prober) log() *slog.Logger {
	if p.l != nil {
		return p.l
	}
	return slog.With(slog.String("component", "db-probe"))
}

// Probe connects to ep, runs the catalog queries for its role and closes the
// connection. It is bounded by the prober timeout and never returns an error:
// connection failures yield an unreachable Result, query failures leave only
// the affected fields unset.
func (p *Prober) Probe(ctx context.Context, ep Endpoint) (res Result) {
	l := p.log().With(slog.String("instance", string(ep.Role)))
	res = Unreachable(ep)

	defer func() {
		if r := recover(); r != nil {
			l.Error("probe panicked", slog.Any("panic", r))
			res = Unreachable(ep)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.dial(ctx, ep)
	if err != nil {
		l.Error("cannot connect", slog.String("endpoint", ep.String()), slog.Any("err", err))
		return res
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), time.Second)
		defer closeCancel()
		if err := conn.Close(closeCtx); err != nil {
			l.Debug("close connection", slog.Any("err", err))
		}
	}()

	if err := conn.Ping(ctx); err != nil {
		l.Error("ping failed", slog.String("endpoint", ep.String()), slog.Any("err", err))
		return res
	}
	res.Reachable = true

	for _, q := range p.queries {
		if !q.appliesTo(ep.Role) {
			continue
		}
		if err := q.run(ctx, conn, &res); err != nil {
			l.Warn("query failed", slog.String("query", q.name), slog.Any("err", err))
		}
	}

	logger.DebugLazy(ctx, l, "probe finished", func() []slog.Attr {
		return []slog.Attr{slog.Any("result", res)}
	})
	return res
}
