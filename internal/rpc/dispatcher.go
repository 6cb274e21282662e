package rpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/toolpad/internal/codec"
	"github.com/GriffinCanCode/toolpad/internal/fault"
	"github.com/GriffinCanCode/toolpad/internal/infrastructure/logging"
)

const (
	outcomeOK       = "ok"
	outcomeError    = "error"
	outcomeNotFound = "not_found"
)

// Recorder receives one sample per dispatched call.
type Recorder interface {
	RecordRPCCall(kind, method, outcome string, duration time.Duration)
}

// Dispatcher validates, invokes, classifies and logs RPC calls.
type Dispatcher struct {
	registry     *Registry
	logger       *zap.Logger
	metrics      Recorder
	redactStacks bool
	now          func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithMetrics records every call.
func WithMetrics(r Recorder) Option {
	return func(d *Dispatcher) { d.metrics = r }
}

// WithRedactedStacks removes stack traces from error envelopes.
func WithRedactedStacks(redact bool) Option {
	return func(d *Dispatcher) { d.redactStacks = redact }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(registry *Registry, logger *zap.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs one call. An unresolvable kind or name returns a
// *NotFoundError and runs nothing. Any other outcome, including a handler
// panic, is returned as a Response; each call is logged exactly once.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request, call Call) (*Response, error) {
	start := d.now()
	kindName := req.KindName()

	kind, ok := ParseKind(kindName)
	var (
		handler Handler
		method  Method
	)
	if ok {
		handler, method, ok = d.registry.Resolve(kind, req.Name)
	}
	if !ok {
		err := &NotFoundError{Kind: kindName, Name: req.Name}
		d.finish(ctx, zapcore.InfoLevel, "Rejected RPC request", kindName, req.Name, start,
			zap.String("error", err.Error()))
		d.record(kind.String(), "unknown", outcomeNotFound, start)
		return nil, err
	}

	call.Params = req.Params
	value, thrown, failed := invoke(ctx, handler, &call)

	if failed {
		rec := fault.Normalize(thrown)
		if d.redactStacks {
			rec = fault.Redact(rec)
		}
		fields := []zap.Field{zap.String("error", rec.Message)}
		if rec.Code != nil {
			fields = append(fields, zap.Any("code", rec.Code))
		}
		d.finish(ctx, zapcore.WarnLevel, "Handled RPC request", kind.String(), method.String(), start, fields...)
		d.record(kind.String(), method.String(), outcomeError, start)
		return Failure(rec), nil
	}

	resp := Success(codec.Encode(value))
	d.finish(ctx, zapcore.DebugLevel, "Handled RPC request", kind.String(), method.String(), start)
	d.record(kind.String(), method.String(), outcomeOK, start)
	return resp, nil
}

func invoke(ctx context.Context, h Handler, call *Call) (value any, thrown any, failed bool) {
	defer func() {
		if r := recover(); r != nil {
			value, thrown, failed = nil, r, true
		}
	}()
	v, err := h(ctx, call)
	if err != nil {
		return nil, err, true
	}
	return v, nil, false
}

func (d *Dispatcher) finish(ctx context.Context, level zapcore.Level, msg, kind, name string, start time.Time, extra ...zap.Field) {
	logger := logging.FromContext(ctx, d.logger)
	if ce := logger.Check(level, msg); ce != nil {
		fields := append([]zap.Field{
			zap.String("key", "rpc"),
			zap.String("kind", kind),
			zap.String("name", name),
			zap.Duration("duration", d.now().Sub(start)),
		}, extra...)
		ce.Write(fields...)
	}
}

func (d *Dispatcher) record(kind, method, outcome string, start time.Time) {
	if d.metrics != nil {
		d.metrics.RecordRPCCall(kind, method, outcome, d.now().Sub(start))
	}
}
