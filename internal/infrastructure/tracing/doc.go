/*
Package tracing provides request tracing on top of the structured logger.

Every HTTP request gets a span. A caller joins an existing trace by sending
X-Trace-ID, plus X-Span-ID for the parent span; otherwise a trc_ ID is
minted. Both IDs are echoed in the response, and the trace ID is attached
to the request context for logging.FromContext, so RPC and sandbox log
lines of one request share it.

Inner spans (one per RPC call, one per function execution) nest under the
request span through the context:

	span, ctx := tracer.Start(ctx, "function.exec", zap.String("module", name))
	defer span.End()

Finished spans are logged by a collector goroutine: Debug on success, Warn
when Fail was called. Close flushes the buffer. A nil *Tracer mints IDs but
records nothing.
*/
package tracing
