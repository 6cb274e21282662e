package tracing

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/toolpad/internal/infrastructure/logging"
)

// HTTPMiddleware opens a span per request and echoes the trace headers.
// The trace ID is also stored for logging.FromContext.
func HTTPMiddleware(tracer *Tracer) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID, parentID := FromHeaders(c.Request.Header)
		ctx := ContextWithRemote(c.Request.Context(), traceID, parentID)

		name := c.FullPath()
		if name == "" {
			name = "unmatched"
		}
		span, ctx := tracer.Start(ctx, c.Request.Method+" "+name,
			zap.String("http.path", c.Request.URL.Path),
		)
		c.Request = c.Request.WithContext(logging.WithTraceID(ctx, span.TraceID))

		c.Header(HeaderTraceID, span.TraceID)
		c.Header(HeaderSpanID, span.SpanID)

		c.Next()

		span.SetStatus(c.Writer.Status())
		if len(c.Errors) > 0 {
			span.Fail(c.Errors.Last())
		}
		span.End()
	}
}
