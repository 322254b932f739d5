package observability

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// AdminMiddleware returns the logging, metrics and tracing handlers for the
// admin API of realm.
func AdminMiddleware(realm string, logger zerolog.Logger) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		requestTracing(realm),
		requestObserver(realm, logger.With().Str("realm", realm).Logger()),
	}
}

func routeOf(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

func requestObserver(realm string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := routeOf(c)
		elapsed := time.Since(start)
		RecordHTTPRequest(realm, c.Request.Method, path, status, elapsed)

		event := logger.Debug()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Int("bytes", c.Writer.Size()).
			Msg("observability.requestObserver")
	}
}

func requestTracing(realm string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer().Start(
			c.Request.Context(),
			fmt.Sprintf("admin %s %s", c.Request.Method, routeOf(c)),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("reckoning.realm", realm),
				attribute.String("http.method", c.Request.Method),
			),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", status))
		}
	}
}
