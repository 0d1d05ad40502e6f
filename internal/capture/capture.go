// Package capture turns one spoken utterance into exactly one capture Result.
package capture

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupported marks a missing or unusable capture capability.
	ErrUnsupported = errors.New("voice capture is not supported on this device")
	// ErrNoSpeech is reported when no words were recognized.
	ErrNoSpeech = errors.New("no speech detected")
)

// Kind tags a Result variant.
type Kind string

const (
	KindTranscript  Kind = "transcript"
	KindUnsupported Kind = "unsupported"
	KindError       Kind = "error"
)

// Result is the outcome of one capture attempt. Text is set only for
// KindTranscript; Reason only for KindUnsupported and KindError.
type Result struct {
	Kind   Kind
	Text   string
	Reason string

	Device        string
	BytesCaptured int64
	Duration      time.Duration
}

// Transcript builds a successful result.
func Transcript(text string) Result {
	return Result{Kind: KindTranscript, Text: text}
}

// Unsupported builds a result for an absent capture capability.
func Unsupported(reason string) Result {
	if reason == "" {
		reason = ErrUnsupported.Error()
	}
	return Result{Kind: KindUnsupported, Reason: reason}
}

// Failed builds a result for a capture that started but did not yield text.
func Failed(reason string) Result {
	return Result{Kind: KindError, Reason: reason}
}

// Capturer is the capture contract consumed by the session orchestrator.
type Capturer interface {
	BeginCapture(ctx context.Context) Result
}

// CapturerFunc adapts a function to Capturer.
type CapturerFunc func(context.Context) Result

func (f CapturerFunc) BeginCapture(ctx context.Context) Result {
	return f(ctx)
}

// Static returns a Capturer that always yields text as a transcript.
// Blank text yields a no-speech error.
func Static(text string) Capturer {
	return CapturerFunc(func(ctx context.Context) Result {
		if err := ctx.Err(); err != nil {
			return Failed(err.Error())
		}
		normalized := normalize(text)
		if normalized == "" {
			return Failed(ErrNoSpeech.Error())
		}
		return Transcript(normalized)
	})
}

// Stream is one open microphone stream.
type Stream interface {
	Chunks() <-chan []byte
	Stop() error
	BytesCaptured() int64
	RawPCM() []byte
	Name() string
}

// Microphone opens capture streams. Open returns an error wrapping
// ErrUnsupported when no usable input exists.
type Microphone interface {
	Open(ctx context.Context) (Stream, error)
}

// Segment is one recognizer hypothesis.
type Segment struct {
	Text        string
	Final       bool
	SpeechFinal bool
}

// StreamOptions describes the audio sent to a recognizer.
type StreamOptions struct {
	Language   string
	SampleRate int
	Channels   int
}

// Recognition is one live recognizer session.
type Recognition interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Segments() <-chan Segment
	Wait() error
	Close() error
}

// Recognizer starts recognition sessions. Start returns an error wrapping
// ErrUnsupported when the recognizer is not configured.
type Recognizer interface {
	Start(ctx context.Context, opts StreamOptions) (Recognition, error)
}
