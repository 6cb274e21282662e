package sandbox

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/toolpad/internal/infrastructure/logging"
	"github.com/GriffinCanCode/toolpad/internal/shared/id"
)

// Host runs user-authored function modules, each in a runtime of its own.
// Run is safe for concurrent use; invocations never share a runtime.
type Host struct {
	config  Config
	pool    *Pool
	fetcher Fetcher
	logger  *zap.Logger
	metrics Recorder
	now     func() time.Time

	closed atomic.Bool
	active atomic.Int64
}

// Option configures a Host.
type Option func(*Host)

// WithRecorder records every invocation.
func WithRecorder(r Recorder) Option {
	return func(h *Host) { h.metrics = r }
}

// WithClock replaces time.Now for durations.
func WithClock(now func() time.Time) Option {
	return func(h *Host) { h.now = now }
}

// NewHost creates a host and warms its runtime pool. fetcher may be nil, in
// which case sandboxed fetch calls reject.
func NewHost(cfg Config, fetcher Fetcher, logger *zap.Logger, opts ...Option) (*Host, error) {
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = defaults.PoolSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := NewPool(cfg, cfg.PoolSize)
	if err != nil {
		return nil, err
	}

	h := &Host{
		config:  cfg,
		pool:    pool,
		fetcher: fetcher,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run executes one invocation. Once a runtime has been acquired a Result is
// returned on every path, carrying the console output and handle counts
// even when err is non-nil.
func (h *Host) Run(ctx context.Context, in Invocation) (*Result, error) {
	if h.closed.Load() {
		return nil, ErrHostClosed
	}
	start := h.now()

	rt, err := h.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	h.active.Add(1)
	if h.metrics != nil {
		h.metrics.InvocationStarted()
	}

	name := in.Name
	if name == "" {
		name = "function.js"
	}
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = h.config.Timeout
	}

	invocationID := id.NewInvocationID().String()
	logger := logging.FromContext(ctx, h.logger).With(zap.String("invocation_id", invocationID))
	inv := newInvocation(ctx, rt, invocationParams{
		id:         invocationID,
		timeout:    timeout,
		maxMemory:  h.config.MaxMemoryMB,
		active:     h.active.Load,
		maxConsole: h.config.MaxConsoleEntries,
		fetcher:    h.fetcher,
		logger:     logger,
	})

	var value any
	prg, err := compileModule(name, in.Source)
	if err == nil {
		value, err = inv.execute(name, prg, in.Args)
	}

	inv.teardown()
	h.pool.Release(rt)
	h.active.Add(-1)

	result := &Result{
		InvocationID: invocationID,
		Console:      inv.console,
		Duration:     h.now().Sub(start),
		Handles:      inv.handles.snapshot(),
	}
	if result.Console == nil {
		result.Console = []LogEntry{}
	}
	if err == nil {
		result.Value = value
	}

	h.finish(logger, name, result, inv.dropped, err)
	return result, err
}

func (h *Host) finish(logger *zap.Logger, name string, result *Result, dropped int, err error) {
	label := outcome(err)
	level, msg := zapcore.DebugLevel, "Function invocation finished"
	if err != nil {
		level, msg = zapcore.WarnLevel, "Function invocation failed"
	}
	if ce := logger.Check(level, msg); ce != nil {
		fields := []zap.Field{
			zap.String("key", "sandbox"),
			zap.String("module", name),
			zap.String("outcome", label),
			zap.Duration("duration", result.Duration),
			zap.Int("console_entries", len(result.Console)),
			zap.Int("handles_revoked", result.Handles.Revoked),
		}
		if dropped > 0 {
			fields = append(fields, zap.Int("console_dropped", dropped))
		}
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		ce.Write(fields...)
	}

	if h.metrics != nil {
		h.metrics.InvocationFinished()
		h.metrics.RecordInvocation(label, result.Duration)
	}
}

// Close releases the pool. Runs already in progress finish normally.
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	return h.pool.Close()
}

// Stats returns host statistics
func (h *Host) Stats() map[string]interface{} {
	stats := h.pool.Stats()
	stats["active"] = h.active.Load()
	stats["timeout"] = h.config.Timeout.String()
	stats["max_memory_mb"] = h.config.MaxMemoryMB
	return stats
}
