package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/opentracing/opentracing-go/log"

	"github.com/customeros/mailpulse/internal/tracing"
)

// TracingMiddleware opens a server span per request and stores it in the
// request context for the handlers and repositories below.
func TracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracing.StartHttpServerTracerSpanWithHeader(
			c.Request.Context(),
			c.Request.Method+" "+c.FullPath(),
			c.Request.Header,
		)
		defer span.Finish()
		tracing.TagComponentRest(span)

		for k, v := range c.Request.Header {
			if strings.EqualFold(k, APIKeyHeader) || strings.EqualFold(k, "Authorization") {
				continue
			}
			span.LogFields(log.String("request.header.key", k), log.Object("request.header.value", v))
		}

		if id := c.Param("id"); id != "" {
			tracing.TagEntity(span, id)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		ext.HTTPStatusCode.Set(span, uint16(status))
		if status >= 500 {
			ext.Error.Set(span, true)
			span.LogFields(log.String("event", "error"), log.Int("status", status))
		}
	}
}
