package telemetry

import (
	"fmt"
	"log/slog"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentResty wraps every request of client in a span and a debug log line.
// Bodies and headers are left out: login forms carry the account password and
// responses carry session cookies.
func InstrumentResty(client *resty.Client, tracerName string) {
	tracer := otel.Tracer(tracerName)

	client.OnBeforeRequest(onBeforeRequest(tracer))
	client.OnAfterResponse(onAfterResponse)
	client.OnError(onError)
}

func onBeforeRequest(tracer trace.Tracer) resty.RequestMiddleware {
	return func(_ *resty.Client, req *resty.Request) error {
		ctx, _ := tracer.Start(req.Context(), fmt.Sprintf("http %s", req.Method))
		req.SetContext(ctx)
		return nil
	}
}

func onAfterResponse(_ *resty.Client, res *resty.Response) error {
	ctx := res.Request.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.SetAttributes(
		attribute.String("http.request.method", res.Request.Method),
		attribute.String("url.full", res.Request.URL),
		attribute.Int("http.response.status_code", res.StatusCode()),
	)

	slog.DebugContext(
		ctx, "request finished",
		"method", res.Request.Method,
		"url", res.Request.URL,
		"status", res.StatusCode(),
		"duration", res.Time(),
	)
	return nil
}

func onError(req *resty.Request, err error) {
	ctx := req.Context()
	span := trace.SpanFromContext(ctx)
	defer span.End()

	span.RecordError(err)
	span.SetStatus(codes.Error, "request failed")
	span.SetAttributes(
		attribute.String("http.request.method", req.Method),
		attribute.String("url.full", req.URL),
	)

	slog.DebugContext(
		ctx, "request failed",
		"method", req.Method,
		"url", req.URL,
		"err", err,
	)
}
