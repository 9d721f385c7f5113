// ABOUTME: ExecutionProxy: re-emits opaque actions for authorized callers
// ABOUTME: Action contents are never inspected; authorization is the only decision

package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/2389/whitelist-gateway/internal/metrics"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

// Authorizer decides whether a caller may execute. *whitelist.Gate satisfies it.
type Authorizer interface {
	Check(ctx context.Context, caller string) (bool, error)
}

// Proxy forwards actions on behalf of admins.
type Proxy struct {
	auth    Authorizer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Proxy.
type Option func(*Proxy)

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Proxy) { p.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Proxy) { p.logger = l }
}

// New creates a Proxy. auth is required.
func New(auth Authorizer, opts ...Option) (*Proxy, error) {
	if auth == nil {
		return nil, errors.New("authorizer is required")
	}
	p := &Proxy{
		auth:   auth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger = p.logger.With("component", "proxy")
	return p, nil
}

// Execute returns msgs unchanged and in order, tagged action=execute, if
// caller is authorized. Otherwise it returns whitelist.ErrUnauthorized.
func (p *Proxy) Execute(ctx context.Context, caller string, msgs []json.RawMessage) (*whitelist.Response, error) {
	start := time.Now()

	ok, err := p.auth.Check(ctx, caller)
	if err == nil && !ok {
		err = whitelist.ErrUnauthorized
	}
	p.metrics.ObserveEntrypoint(whitelist.ActionExecute, whitelist.Outcome(err), start)
	if err != nil {
		return nil, err
	}

	resp := whitelist.NewResponse(whitelist.ActionExecute)
	resp.Messages = slices.Clone(msgs)

	p.metrics.AddForwarded(len(msgs))
	p.logger.Debug("forwarding actions", "caller", caller, "count", len(msgs))
	return resp, nil
}

// CanExecute reports whether caller may execute msg. Any admin may execute
// any action, so msg does not affect the answer.
func (p *Proxy) CanExecute(ctx context.Context, caller string, msg json.RawMessage) (bool, error) {
	return p.auth.Check(ctx, caller)
}
