package session

import "go.opentelemetry.io/otel"

const scopeName = "github.com/rbright/resq/internal/session"

var tracer = otel.Tracer(scopeName)
