// ABOUTME: Dispatcher: single entry for instantiate, exec and query messages
// ABOUTME: Authorizes the sender, then switches on the message variant

package contract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/2389/whitelist-gateway/internal/metrics"
	"github.com/2389/whitelist-gateway/internal/outbox"
	"github.com/2389/whitelist-gateway/internal/proxy"
	"github.com/2389/whitelist-gateway/internal/replay"
	"github.com/2389/whitelist-gateway/internal/store"
	"github.com/2389/whitelist-gateway/internal/whitelist"
)

const tracerName = "github.com/2389/whitelist-gateway/internal/contract"

// Dispatcher routes decoded messages to the registry and the proxy.
type Dispatcher struct {
	registry *whitelist.Registry
	gate     *whitelist.Gate
	proxy    *proxy.Proxy
	store    store.Store
	sink     outbox.Sink
	replay   *replay.Guard
	metrics  *metrics.Metrics
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithSink sets where forwarded actions are delivered. Defaults to a LogSink.
func WithSink(s outbox.Sink) Option {
	return func(d *Dispatcher) { d.sink = s }
}

// WithReplayGuard rejects reused request ids on execute.
func WithReplayGuard(g *replay.Guard) Option {
	return func(d *Dispatcher) { d.replay = g }
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer overrides the global otel tracer.
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher wires a registry, its store and a proxy built on the
// registry's gate.
func NewDispatcher(registry *whitelist.Registry, s store.Store, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("registry is required")
	}
	if s == nil {
		return nil, errors.New("store is required")
	}

	d := &Dispatcher{
		registry: registry,
		gate:     whitelist.NewGate(registry),
		store:    s,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	d.logger = d.logger.With("component", "dispatcher")
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	if d.sink == nil {
		d.sink = outbox.NewLogSink(d.logger)
	}

	px, err := proxy.New(d.gate, proxy.WithMetrics(d.metrics), proxy.WithLogger(d.logger))
	if err != nil {
		return nil, err
	}
	d.proxy = px
	return d, nil
}

// Registry returns the underlying registry.
func (d *Dispatcher) Registry() *whitelist.Registry {
	return d.registry
}

// ExecRequest is one authenticated exec call.
type ExecRequest struct {
	Sender    string
	RequestID string // optional; enables replay protection for execute
	Msg       *ExecMsg
}

// Instantiate creates the registry from msg.
func (d *Dispatcher) Instantiate(ctx context.Context, sender string, msg *InstantiateMsg) (*whitelist.Response, error) {
	ctx, span := d.tracer.Start(ctx, "whitelist.instantiate",
		trace.WithAttributes(attribute.Int("whitelist.admins", len(msg.Admins))),
	)
	defer span.End()

	resp, err := d.registry.Instantiate(ctx, sender, msg.Admins, msg.Mutable)
	recordSpanError(span, err)
	return resp, err
}

// Execute authorizes req.Sender and runs the message variant.
func (d *Dispatcher) Execute(ctx context.Context, req ExecRequest) (*whitelist.Response, error) {
	kind := req.Msg.Kind()
	if kind == "" {
		return nil, invalidMessage(errors.New("exactly one variant must be set"))
	}

	ctx, span := d.tracer.Start(ctx, "whitelist.exec."+kind,
		trace.WithAttributes(attribute.String("whitelist.entrypoint", kind)),
	)
	defer span.End()

	resp, err := d.execute(ctx, kind, req)
	recordSpanError(span, err)
	return resp, err
}

func (d *Dispatcher) execute(ctx context.Context, kind string, req ExecRequest) (*whitelist.Response, error) {
	start := time.Now()
	if err := d.gate.Require(ctx, req.Sender); err != nil {
		d.metrics.ObserveEntrypoint(kind, whitelist.Outcome(err), start)
		return nil, err
	}

	switch kind {
	case KindFreeze:
		return d.registry.Freeze(ctx, req.Sender)
	case KindUpdateAdmins:
		return d.registry.UpdateAdmins(ctx, req.Sender, req.Msg.UpdateAdmins.Admins)
	case KindExecute:
		return d.forward(ctx, req)
	default:
		return nil, invalidMessage(fmt.Errorf("unknown variant %q", kind))
	}
}

// forward runs the proxy, records the audit entry, then emits to the outbox.
// A replay claim is released whenever the call fails, so a failed execute
// can be retried under the same request id.
func (d *Dispatcher) forward(ctx context.Context, req ExecRequest) (*whitelist.Response, error) {
	if d.replay != nil {
		if err := d.replay.Claim(req.Sender, req.RequestID); err != nil {
			d.metrics.IncrementReplayRejected()
			return nil, err
		}
	}

	resp, err := d.proxy.Execute(ctx, req.Sender, req.Msg.Execute.Msgs)
	if err != nil {
		d.release(req)
		return nil, err
	}

	env := &outbox.Envelope{
		ID:        uuid.New().String(),
		Sender:    callerKey(d.registry, req.Sender),
		Messages:  resp.Messages,
		Digest:    outbox.Digest(resp.Messages),
		Timestamp: time.Now().UTC(),
	}

	detail := map[string]any{
		"envelope": env.ID,
		"count":    len(env.Messages),
		"digest":   env.Digest,
	}
	if req.RequestID != "" {
		detail["request_id"] = req.RequestID
	}
	err = d.store.Update(ctx, func(tx store.Tx) error {
		return tx.AppendAuditLog(ctx, &store.AuditEntry{
			Actor:     env.Sender,
			Action:    store.AuditExecute,
			Timestamp: env.Timestamp,
			Detail:    detail,
		})
	})
	if err != nil {
		d.release(req)
		return nil, fmt.Errorf("recording execute: %w", err)
	}

	if err := d.sink.Emit(ctx, env); err != nil {
		// Nothing was delivered, so the same request id may be retried. The
		// audit entry stays and names the envelope that never went out.
		d.release(req)
		d.logger.Warn("outbox emit failed",
			"sender", env.Sender,
			"envelope", env.ID,
			"request_id", req.RequestID,
			"error", err,
		)
		return nil, fmt.Errorf("emitting to outbox: %w", err)
	}
	resp.Attributes = append(resp.Attributes, whitelist.Attribute{Key: "envelope", Value: env.ID})
	return resp, nil
}

func (d *Dispatcher) release(req ExecRequest) {
	if d.replay != nil {
		d.replay.Release(req.Sender, req.RequestID)
	}
}

// Query answers a read-only message. The result marshals to the wire shape.
func (d *Dispatcher) Query(ctx context.Context, msg *QueryMsg) (any, error) {
	kind := msg.Kind()
	if kind == "" {
		return nil, invalidMessage(errors.New("exactly one variant must be set"))
	}

	ctx, span := d.tracer.Start(ctx, "whitelist.query."+kind,
		trace.WithAttributes(attribute.String("whitelist.entrypoint", kind)),
	)
	defer span.End()

	var (
		result any
		err    error
	)
	switch kind {
	case KindAdminList:
		result, err = d.registry.ListAdmins(ctx)
	case KindCanExecute:
		var ok bool
		ok, err = d.proxy.CanExecute(ctx, msg.CanExecute.Sender, msg.CanExecute.Msg)
		result = &CanExecuteResponse{CanExecute: ok}
	case KindContractInfo:
		result, err = d.registry.ContractInfo(ctx)
	}
	recordSpanError(span, err)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ExecuteJSON parses raw as an ExecMsg and executes it.
func (d *Dispatcher) ExecuteJSON(ctx context.Context, sender, requestID string, raw []byte) (*whitelist.Response, error) {
	msg, err := ParseExecMsg(raw)
	if err != nil {
		return nil, err
	}
	return d.Execute(ctx, ExecRequest{Sender: sender, RequestID: requestID, Msg: msg})
}

// QueryJSON parses raw as a QueryMsg and returns the JSON-encoded result.
func (d *Dispatcher) QueryJSON(ctx context.Context, raw []byte) (json.RawMessage, error) {
	msg, err := ParseQueryMsg(raw)
	if err != nil {
		return nil, err
	}
	result, err := d.Query(ctx, msg)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encoding query result: %w", err)
	}
	return data, nil
}

// InstantiateJSON parses raw as an InstantiateMsg and instantiates.
func (d *Dispatcher) InstantiateJSON(ctx context.Context, sender string, raw []byte) (*whitelist.Response, error) {
	msg, err := ParseInstantiateMsg(raw)
	if err != nil {
		return nil, err
	}
	return d.Instantiate(ctx, sender, msg)
}

func recordSpanError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// callerKey is the canonical form of caller, or caller itself if it does not validate.
func callerKey(r *whitelist.Registry, caller string) string {
	if p, err := r.Validator().Validate(caller); err == nil {
		return string(p)
	}
	return caller
}
