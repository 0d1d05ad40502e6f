package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	captureSampleRate = 16000
	captureChannels   = 1
)

// Options bound one capture attempt.
type Options struct {
	Language      string
	ListenTimeout time.Duration
	PhraseLimit   time.Duration
	DrainTimeout  time.Duration
	DumpAudio     bool
	// OnListening is toggled on while the microphone is open.
	OnListening func(bool)
}

// Adapter drives a Microphone and a Recognizer for one utterance at a time.
// It has no concurrency policy of its own.
type Adapter struct {
	mic    Microphone
	rec    Recognizer
	opts   Options
	logger *slog.Logger
}

// NewAdapter wires capture capabilities. A nil mic or rec makes every
// capture report unsupported.
func NewAdapter(mic Microphone, rec Recognizer, opts Options, logger *slog.Logger) *Adapter {
	if opts.Language == "" {
		opts.Language = "en-US"
	}
	if opts.ListenTimeout <= 0 {
		opts.ListenTimeout = 5 * time.Second
	}
	if opts.PhraseLimit <= 0 {
		opts.PhraseLimit = 8 * time.Second
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = 3 * time.Second
	}
	return &Adapter{mic: mic, rec: rec, opts: opts, logger: logger}
}

// BeginCapture records until the recognizer finalizes the utterance, the
// phrase limit elapses, or ctx is cancelled.
func (a *Adapter) BeginCapture(ctx context.Context) Result {
	if a == nil || a.mic == nil || a.rec == nil {
		return Unsupported("")
	}

	started := time.Now()

	stream, err := a.mic.Open(ctx)
	if err != nil {
		return classifyStartError("open microphone", err)
	}

	recognition, err := a.rec.Start(ctx, StreamOptions{
		Language:   a.opts.Language,
		SampleRate: captureSampleRate,
		Channels:   captureChannels,
	})
	if err != nil {
		_ = stream.Stop()
		return classifyStartError("start recognizer", err)
	}

	a.setListening(true)
	defer a.setListening(false)

	pumpResult := make(chan error, 1)
	go pumpAudio(stream, recognition, pumpResult)
	var pumpErr <-chan error = pumpResult

	finish := func(r Result) Result {
		r.Device = stream.Name()
		r.BytesCaptured = stream.BytesCaptured()
		r.Duration = time.Since(started)
		a.writeDebugAudio(stream.RawPCM())
		return r
	}

	agg := &aggregator{}
	listenTimer := time.NewTimer(a.opts.ListenTimeout)
	defer listenTimer.Stop()
	phraseTimer := time.NewTimer(a.opts.PhraseLimit)
	defer phraseTimer.Stop()

	segments := recognition.Segments()
	open := true

listen:
	for {
		select {
		case <-ctx.Done():
			_ = stream.Stop()
			_ = recognition.Close()
			return finish(Failed("capture cancelled"))
		case seg, ok := <-segments:
			if !ok {
				open = false
				break listen
			}
			agg.Add(seg)
			if seg.SpeechFinal && agg.HasFinal() {
				break listen
			}
		case <-listenTimer.C:
			if !agg.Heard() {
				_ = stream.Stop()
				_ = recognition.Close()
				return finish(Failed(ErrNoSpeech.Error()))
			}
		case <-phraseTimer.C:
			a.logDebug("capture phrase limit reached", "limit", a.opts.PhraseLimit.String())
			break listen
		case err := <-pumpErr:
			pumpErr = nil
			if err != nil {
				_ = stream.Stop()
				_ = recognition.Close()
				return finish(Failed(fmt.Sprintf("stream audio: %v", err)))
			}
			// Microphone closed on its own; let the recognizer flush.
		}
	}

	_ = stream.Stop()
	if open {
		a.drain(ctx, recognition, segments, agg)
	}
	var sendErr error
	if pumpErr != nil {
		sendErr = <-pumpErr
	}
	recErr := recognition.Wait()

	text := agg.Text()
	if text == "" {
		if sendErr != nil {
			return finish(Failed(fmt.Sprintf("stream audio: %v", sendErr)))
		}
		if recErr != nil {
			return finish(Failed(fmt.Sprintf("recognizer: %v", recErr)))
		}
		return finish(Failed(ErrNoSpeech.Error()))
	}
	if recErr != nil {
		a.logDebug("recognizer ended with error after final transcript", "error", recErr.Error())
	}
	return finish(Transcript(text))
}

// drain collects trailing segments flushed after the microphone stops.
func (a *Adapter) drain(ctx context.Context, recognition Recognition, segments <-chan Segment, agg *aggregator) {
	timer := time.NewTimer(a.opts.DrainTimeout)
	defer timer.Stop()

	for {
		select {
		case seg, ok := <-segments:
			if !ok {
				return
			}
			agg.Add(seg)
		case <-timer.C:
			a.logDebug("recognizer drain timed out", "timeout", a.opts.DrainTimeout.String())
			_ = recognition.Close()
			return
		case <-ctx.Done():
			_ = recognition.Close()
			return
		}
	}
}

// pumpAudio forwards microphone chunks to the recognizer and reports the
// first send failure. It closes the send side when the microphone stops.
func pumpAudio(stream Stream, recognition Recognition, errCh chan<- error) {
	var sendErr error
	for chunk := range stream.Chunks() {
		if len(chunk) == 0 || sendErr != nil {
			continue
		}
		if err := recognition.SendAudio(chunk); err != nil {
			sendErr = err
			_ = stream.Stop()
		}
	}
	_ = recognition.CloseSend()
	errCh <- sendErr
}

func classifyStartError(stage string, err error) Result {
	if errors.Is(err, ErrUnsupported) {
		return Unsupported(err.Error())
	}
	return Failed(fmt.Sprintf("%s: %v", stage, err))
}

func (a *Adapter) setListening(on bool) {
	if a.opts.OnListening != nil {
		a.opts.OnListening(on)
	}
}

func (a *Adapter) logDebug(msg string, args ...any) {
	if a.logger == nil {
		return
	}
	a.logger.Debug(msg, args...)
}
