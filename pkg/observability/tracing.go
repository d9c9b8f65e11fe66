package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerName is the instrumentation scope of every span the service starts.
const TracerName = "github.com/FACorreiaa/store-usage"

// NewTracer returns a tracer from the global provider, or a no-op tracer when tracing is off.
// An exporter is installed by registering a provider with otel.SetTracerProvider before this call.
func NewTracer(enabled bool) trace.Tracer {
	if !enabled {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return otel.Tracer(TracerName)
}
