package assistant

import "go.opentelemetry.io/otel"

const scopeName = "github.com/rbright/resq/internal/assistant"

var tracer = otel.Tracer(scopeName)
