package middleware

import (
	"strconv"

	"vortexx/internal/observability"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware opens a server span per request and continues any trace
// carried by the incoming headers. Document store calls made by the handler
// become children of it. Once routing is done the span is renamed after the
// matched route so that /api/posts/:id is one span name, not one per id.
func TracingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := otel.GetTextMapPropagator().Extract(c.UserContext(), propagation.HeaderCarrier(c.GetReqHeaders()))
		ctx, span := observability.Tracer.Start(ctx, c.Method()+" "+c.Path(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(c.Method()),
				semconv.URLPath(c.Path()),
				semconv.ClientAddress(c.IP()),
				semconv.UserAgentOriginal(c.Get(fiber.HeaderUserAgent)),
			),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		c.Locals("traceID", traceID)
		c.Set("X-Trace-ID", traceID)
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			span.SetAttributes(attribute.String("vortexx.request_id", rid))
		}
		c.SetUserContext(ctx)

		err := c.Next()

		if route := c.Route(); route != nil && route.Path != "" && route.Path != "/" {
			span.SetName(c.Method() + " " + route.Path)
			span.SetAttributes(semconv.HTTPRoute(route.Path))
		}
		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if username, ok := c.Locals("username").(string); ok && username != "" {
			span.SetAttributes(attribute.String("vortexx.username", username))
		}
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= fiber.StatusInternalServerError:
			span.SetStatus(codes.Error, "HTTP "+strconv.Itoa(status))
		}
		return err
	}
}
