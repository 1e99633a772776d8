package adapter

import (
	"go.opentelemetry.io/otel"

	"github.com/srediag/shmem-region/region"
)

// instrumentationName identifies this library to OpenTelemetry backends.
const instrumentationName = "github.com/srediag/shmem-region"

// WithOTel returns a copy of conf bound to the process-global OpenTelemetry
// providers: hosts and attach outcomes count through the meter, attaches get
// a span through the tracer. Callers that manage their own providers set
// Config.Meter and Config.Tracer directly instead.
func WithOTel(conf region.Config) region.Config {
	conf.Meter = otel.Meter(instrumentationName)
	conf.Tracer = otel.Tracer(instrumentationName)
	return conf
}
