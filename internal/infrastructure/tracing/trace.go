package tracing

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/shared/id"
)

// Trace propagation headers
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderSpanID  = "X-Span-ID"
)

const spanBuffer = 1024

// Span is one timed operation inside a trace.
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   int
	Err      error

	tracer *Tracer
	mu     sync.Mutex
	fields []zap.Field
	ended  bool
}

// Tracer hands finished spans to a collector goroutine that logs them.
// A nil *Tracer is valid: its spans carry IDs but are never recorded.
type Tracer struct {
	service string
	logger  *zap.Logger
	now     func() time.Time
	spans   chan *Span
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// New creates a tracer and starts its collector.
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		service: service,
		logger:  logger.With(zap.String("key", "trace"), zap.String("service", service)),
		now:     time.Now,
		spans:   make(chan *Span, spanBuffer),
		done:    make(chan struct{}),
	}
	go t.collect()
	return t
}

type spanContext struct {
	traceID string
	spanID  string
}

type contextKey struct{}

// ContextWithRemote joins a trace started by the caller.
func ContextWithRemote(ctx context.Context, traceID, parentID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, spanContext{traceID: traceID, spanID: parentID})
}

// FromHeaders reads the propagation headers of an inbound request.
func FromHeaders(h http.Header) (traceID, parentID string) {
	return h.Get(HeaderTraceID), h.Get(HeaderSpanID)
}

// TraceID returns the trace ctx belongs to, or "".
func TraceID(ctx context.Context) string {
	sc, _ := ctx.Value(contextKey{}).(spanContext)
	return sc.traceID
}

// SpanID returns the innermost span of ctx, or "".
func SpanID(ctx context.Context) string {
	sc, _ := ctx.Value(contextKey{}).(spanContext)
	return sc.spanID
}

// Start opens a span under whatever span ctx already carries. End must be
// called exactly once; later calls are ignored.
func (t *Tracer) Start(ctx context.Context, name string, fields ...zap.Field) (*Span, context.Context) {
	now := time.Now
	if t != nil {
		now = t.now
	}
	parent, _ := ctx.Value(contextKey{}).(spanContext)
	traceID := parent.traceID
	if traceID == "" {
		traceID = id.New(id.Trace).String()
	}

	span := &Span{
		TraceID:  traceID,
		SpanID:   id.New(id.Span).String(),
		ParentID: parent.spanID,
		Name:     name,
		Start:    now(),
		tracer:   t,
		fields:   fields,
	}
	return span, context.WithValue(ctx, contextKey{}, spanContext{traceID: traceID, spanID: span.SpanID})
}

// Annotate attaches log fields to the span.
func (s *Span) Annotate(fields ...zap.Field) {
	s.mu.Lock()
	s.fields = append(s.fields, fields...)
	s.mu.Unlock()
}

// Fail records err. Nil errors are ignored.
func (s *Span) Fail(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	s.Err = err
	s.mu.Unlock()
}

// SetStatus records an HTTP status.
func (s *Span) SetStatus(code int) {
	s.mu.Lock()
	s.Status = code
	s.mu.Unlock()
}

// End stops the clock and submits the span.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	if s.tracer != nil {
		s.Duration = s.tracer.now().Sub(s.Start)
	} else {
		s.Duration = time.Since(s.Start)
	}
	s.mu.Unlock()

	s.tracer.submit(s)
}

func (t *Tracer) submit(span *Span) {
	if t == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.spans <- span:
	default:
		t.logger.Warn("Span buffer full, dropping span",
			zap.String("trace_id", span.TraceID),
			zap.String("span", span.Name),
		)
	}
}

func (t *Tracer) collect() {
	defer close(t.done)
	for span := range t.spans {
		t.record(span)
	}
}

func (t *Tracer) record(span *Span) {
	span.mu.Lock()
	defer span.mu.Unlock()

	fields := make([]zap.Field, 0, len(span.fields)+6)
	fields = append(fields,
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
		zap.String("span", span.Name),
		zap.Duration("duration", span.Duration),
	)
	if span.ParentID != "" {
		fields = append(fields, zap.String("parent_id", span.ParentID))
	}
	if span.Status != 0 {
		fields = append(fields, zap.Int("status", span.Status))
	}
	fields = append(fields, span.fields...)

	if span.Err != nil {
		t.logger.Warn("Span failed", append(fields, zap.Error(span.Err))...)
		return
	}
	t.logger.Debug("Span finished", fields...)
}

// Close stops the collector after flushing buffered spans.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()
	<-t.done
}
