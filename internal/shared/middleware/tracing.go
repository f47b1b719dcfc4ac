package middleware

import (
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	httpTracer = otel.Tracer("fintrack/http")
	httpMeter  = otel.Meter("fintrack/http")

	httpRequestDuration, _ = httpMeter.Float64Histogram("fintrack.http.request.duration",
		metric.WithDescription("API request duration in seconds"),
		metric.WithUnit("s"),
	)
	httpRequestTotal, _ = httpMeter.Int64Counter("fintrack.http.requests",
		metric.WithDescription("API requests by route and status"),
	)
)

// Tracing opens a server span per request and records duration and count
// per route. Identity must run before it for the owner to be attached.
func Tracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := routeOf(r)
		ctx, span := httpTracer.Start(r.Context(), r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
			),
		)
		defer span.End()

		if r.ContentLength > 0 {
			span.SetAttributes(attribute.Int64("http.request.body.size", r.ContentLength))
		}
		if owner, ok := OwnerFromContext(ctx); ok {
			span.SetAttributes(attribute.String("fintrack.owner_id", owner))
		}

		start := time.Now()
		wrapped := wrapResponseWriter(w)
		next.ServeHTTP(wrapped, r.WithContext(ctx))

		status := wrapped.status
		if status == 0 {
			status = http.StatusOK
		}
		span.SetAttributes(attribute.Int("http.response.status_code", status))
		switch {
		case status >= 500:
			span.SetStatus(codes.Error, http.StatusText(status))
		case status == http.StatusBadRequest || status == http.StatusNotFound:
			// Client mistakes stay Unset but are easy to filter on.
			span.AddEvent("client_error", trace.WithAttributes(attribute.Int("status", status)))
		}

		attrs := metric.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		httpRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		httpRequestTotal.Add(ctx, 1, attrs)
	})
}

// routeOf collapses record ids and receipt keys so metric cardinality stays
// bounded.
func routeOf(r *http.Request) string {
	path := r.URL.Path
	if path == "/api/expenses/summary" {
		return path
	}
	for _, prefix := range []string{"/api/expenses/", "/receipts/"} {
		if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
			return prefix + "{id}"
		}
	}
	return path
}
