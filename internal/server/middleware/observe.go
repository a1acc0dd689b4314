package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Observe traces each request, records request count and latency, and writes
// a structured access log line. Uses the global otel providers.
func Observe(log *zap.Logger) fiber.Handler {
	tracer := otel.Tracer("roomly/identity/server")
	meter := otel.Meter("roomly/identity/server")
	requests, _ := meter.Int64Counter("http.server.requests")
	latency, _ := meter.Float64Histogram("http.server.duration_ms")
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+c.Route().Path,
			trace.WithSpanKind(trace.SpanKindServer))
		c.SetUserContext(ctx)

		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			}
			span.RecordError(err)
		}
		elapsed := time.Since(start)
		attrs := otelmetric.WithAttributes(
			attribute.String("http.route", c.Route().Path),
			attribute.String("http.method", c.Method()),
			attribute.Int("http.status_code", status),
		)
		requests.Add(ctx, 1, attrs)
		latency.Record(ctx, float64(elapsed.Milliseconds()), attrs)
		span.End()

		log.Info("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("duration", elapsed),
			zap.String("ip", c.IP()),
		)
		return err
	}
}
