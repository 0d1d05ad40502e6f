// Package playback fetches assistant reply audio and renders it.
package playback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hajimehoshi/go-mp3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/rbright/resq/internal/pcm"
	"github.com/rbright/resq/internal/version"
)

// ErrPlayback marks every failure to render reply audio. It is never fatal
// to a session.
var ErrPlayback = errors.New("playback failed")

const maxAudioBytes = 32 << 20

// Sink renders decoded PCM. onStart runs once audible output begins.
type Sink interface {
	Play(ctx context.Context, audio pcm.Audio, onStart func()) error
}

// Fetcher turns an audio reference into bytes.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Resolver maps a reply audio pointer to a fetchable URL.
type Resolver func(ref string) (string, error)

// Controller owns one playback at a time for the orchestrator.
type Controller struct {
	fetcher Fetcher
	resolve Resolver
	sink    Sink
	logger  *slog.Logger
}

// New builds a Controller. resolve may be nil when refs are already absolute.
func New(fetcher Fetcher, resolve Resolver, sink Sink, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Controller{
		fetcher: fetcher,
		resolve: resolve,
		sink:    sink,
		logger:  logger,
	}
}

// Play renders ref and blocks until output ends. An empty ref is a no-op.
// onSpeaking(true) fires when output starts; onSpeaking(false) fires exactly
// once before Play returns whenever ref is non-empty.
func (c *Controller) Play(ctx context.Context, ref string, onSpeaking func(bool)) (err error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if onSpeaking == nil {
		onSpeaking = func(bool) {}
	}
	defer onSpeaking(false)

	ctx, span := tracer.Start(ctx, "playback.play")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if c.fetcher == nil || c.sink == nil {
		return fmt.Errorf("%w: no audio output configured", ErrPlayback)
	}

	target := ref
	if c.resolve != nil {
		resolved, resolveErr := c.resolve(ref)
		if resolveErr != nil {
			return fmt.Errorf("%w: %w", ErrPlayback, resolveErr)
		}
		target = resolved
	}
	span.SetAttributes(attribute.String("audio.url", target))

	data, err := c.fetcher.Fetch(ctx, target)
	if err != nil {
		return fmt.Errorf("%w: fetch %s: %w", ErrPlayback, target, err)
	}

	audio, err := Decode(data)
	if err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrPlayback, target, err)
	}
	span.SetAttributes(
		attribute.Int("audio.sample_rate", audio.SampleRate),
		attribute.Int("audio.channels", audio.Channels),
		attribute.Float64("audio.duration_seconds", audio.Duration().Seconds()),
	)

	c.logger.Debug("playback starting",
		"url", target,
		"sample_rate", audio.SampleRate,
		"channels", audio.Channels,
		"duration_ms", audio.Duration().Milliseconds(),
	)

	if err := c.sink.Play(ctx, audio, func() { onSpeaking(true) }); err != nil {
		return fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	return nil
}

// Decode sniffs data and returns PCM16 samples for WAV or MP3 payloads.
func Decode(data []byte) (pcm.Audio, error) {
	if len(data) == 0 {
		return pcm.Audio{}, fmt.Errorf("%w: empty payload", pcm.ErrUnsupportedFormat)
	}
	if pcm.IsWAV(data) {
		return pcm.DecodeWAV(data)
	}
	if looksLikeMP3(data) {
		return decodeMP3(data)
	}
	return pcm.Audio{}, fmt.Errorf("%w: unrecognized container", pcm.ErrUnsupportedFormat)
}

func looksLikeMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}
	// MPEG frame sync: 11 set bits.
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func decodeMP3(data []byte) (pcm.Audio, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return pcm.Audio{}, fmt.Errorf("open mp3: %w", err)
	}
	raw, err := io.ReadAll(decoder)
	if err != nil {
		return pcm.Audio{}, fmt.Errorf("decode mp3: %w", err)
	}
	if len(raw) == 0 {
		return pcm.Audio{}, fmt.Errorf("%w: mp3 has no frames", pcm.ErrUnsupportedFormat)
	}
	// go-mp3 always yields interleaved stereo PCM16.
	return pcm.Audio{
		Samples:    pcm.SamplesFromLE(raw),
		SampleRate: decoder.SampleRate(),
		Channels:   2,
	}, nil
}

// HTTPFetcher downloads audio with a bounded body size.
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch GETs url and returns the body for 2xx responses.
func (f HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAudioBytes {
		return nil, fmt.Errorf("audio exceeds %d bytes", maxAudioBytes)
	}
	return data, nil
}
