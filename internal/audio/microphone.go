package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rbright/resq/internal/capture"
)

// Microphone opens Pulse capture streams for the capture adapter.
type Microphone struct {
	Input    string
	Fallback string
	// KeepRaw retains recorded audio for debug dumps.
	KeepRaw  bool
	Logger   *slog.Logger
}

// Open selects a device and starts recording. A missing server or an empty
// device list is reported as capture.ErrUnsupported.
func (m Microphone) Open(ctx context.Context) (capture.Stream, error) {
	selection, err := SelectDevice(ctx, m.Input, m.Fallback)
	if err != nil {
		if errors.Is(err, ErrServerUnavailable) || errors.Is(err, ErrNoDevices) {
			return nil, fmt.Errorf("%w: %v", capture.ErrUnsupported, err)
		}
		return nil, err
	}
	if selection.Warning != "" && m.Logger != nil {
		m.Logger.Warn(selection.Warning)
	}

	stream, err := StartRecording(ctx, selection.Device, m.KeepRaw)
	if err != nil {
		if errors.Is(err, ErrServerUnavailable) {
			return nil, fmt.Errorf("%w: %v", capture.ErrUnsupported, err)
		}
		return nil, err
	}
	return stream, nil
}
