package playback

import "go.opentelemetry.io/otel"

const scopeName = "github.com/rbright/resq/internal/playback"

var tracer = otel.Tracer(scopeName)
