package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rbright/resq/internal/assistant"
	"github.com/rbright/resq/internal/audio"
	"github.com/rbright/resq/internal/capture"
	"github.com/rbright/resq/internal/config"
	"github.com/rbright/resq/internal/indicator"
	"github.com/rbright/resq/internal/ipc"
	"github.com/rbright/resq/internal/liveview"
	"github.com/rbright/resq/internal/metrics"
	"github.com/rbright/resq/internal/playback"
	"github.com/rbright/resq/internal/render"
	"github.com/rbright/resq/internal/reveal"
	"github.com/rbright/resq/internal/session"
	"github.com/rbright/resq/internal/stt/deepgram"
)

const inputHint = "Enter = talk, a = acknowledge, q = end"

// commandCall owns the IPC socket and runs an interactive call until the
// user ends it locally, over IPC, or by signal.
func (r Runner) commandCall(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	listener, err := ipc.Acquire(ctx, socketPath, ipc.AcquireOptions{
		ProbeTimeout: 180 * time.Millisecond,
		Retries:      8,
		OnStale: func(path string) {
			logger.Warn("removed stale call socket", "path", path)
		},
	})
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			fmt.Fprintln(r.Stderr, "error: a call is already active; use `resq capture` or `resq end`")
			return 1
		}
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	client, err := newAssistant(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	recorder := metrics.New()
	notifier := indicator.New(cfg.Indicator, audio.Speaker{MediaName: "resq cue"}, logger)
	opts := sessionOptions(cfg, logger)
	opts.Indicator = notifier
	opts.Metrics = recorder
	orch := session.New(newCapturer(cfg, logger), client, newPlayer(cfg, client, logger), opts)

	view := render.NewView(r.Stdout)
	defer orch.Subscribe(view.Update)()
	view.Update(orch.Snapshot())

	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- ipc.Serve(callCtx, listener, orch)
	}()

	if addr := strings.TrimSpace(cfg.LiveView.Listen); addr != "" {
		var metricsHandler http.Handler
		if cfg.LiveView.Metrics {
			metricsHandler = recorder.Handler()
		}
		live := liveview.New(orch, metricsHandler, logger)
		defer orch.Subscribe(live.Publish)()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := live.ListenAndServe(callCtx, addr); err != nil {
				errCh <- fmt.Errorf("live view: %w", err)
			}
		}()
	}

	logger.Info("call started", "session_id", orch.Snapshot().SessionID)
	code := r.callLoop(callCtx, orch, readLines(r.Stdin), errCh, logger)
	cancel()
	wg.Wait()
	return code
}

func (r Runner) callLoop(
	ctx context.Context,
	orch *session.Orchestrator,
	lines <-chan string,
	errCh <-chan error,
	logger *slog.Logger,
) int {
	for {
		select {
		case <-ctx.Done():
			orch.End()
			return 0
		case <-orch.Ended():
			fmt.Fprintln(r.Stdout, "call ended")
			return 0
		case err := <-errCh:
			if err != nil {
				fmt.Fprintf(r.Stderr, "error: %v\n", err)
				orch.End()
				return 1
			}
		case line, ok := <-lines:
			if !ok {
				orch.End()
				return 0
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "t", "talk":
				if err := orch.Start(ctx); err != nil {
					logger.Debug("capture ignored", "error", err.Error())
				}
			case "a", "ack":
				if err := orch.Acknowledge(); err != nil {
					logger.Debug("acknowledge ignored", "error", err.Error())
				}
			case "q", "quit", "end":
				orch.End()
				fmt.Fprintln(r.Stdout, "call ended")
				return 0
			default:
				fmt.Fprintf(r.Stderr, "unknown input %q (%s)\n", line, inputHint)
			}
		}
	}
}

// commandAsk runs a single cycle with text standing in for speech.
func (r Runner) commandAsk(ctx context.Context, cfg config.Config, logger *slog.Logger, text string) int {
	client, err := newAssistant(cfg)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}

	orch := session.New(capture.Static(text), client, newPlayer(cfg, client, logger), sessionOptions(cfg, logger))
	view := render.NewView(r.Stdout)
	defer orch.Subscribe(view.Update)()

	result, err := orch.Capture(ctx)
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	if result.PlaybackErr != nil {
		fmt.Fprintf(r.Stderr, "warning: %v\n", result.PlaybackErr)
	}
	if result.Abandoned {
		fmt.Fprintln(r.Stderr, "cancelled")
		return 1
	}
	if result.Err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", result.Err)
		return 1
	}
	return 0
}

func newAssistant(cfg config.Config) (*assistant.Client, error) {
	return assistant.NewClient(cfg.Assistant.Endpoint, assistant.WithPath(cfg.Assistant.Path))
}

func newPlayer(cfg config.Config, client *assistant.Client, logger *slog.Logger) session.Player {
	if !cfg.Playback.Enable {
		return nil
	}
	fetcher := playback.HTTPFetcher{Client: client.HTTPClient()}
	return playback.New(fetcher, client.ResolveAudio, audio.Speaker{}, logger)
}

func newCapturer(cfg config.Config, logger *slog.Logger) capture.Capturer {
	boosts, warnings, err := config.BuildKeywordBoosts(cfg)
	if err != nil {
		logger.Warn("recognizer keywords disabled", "error", err.Error())
	}
	for _, w := range warnings {
		logger.Debug("recognizer keyword", "message", w.Message)
	}
	keywords := make([]deepgram.Keyword, 0, len(boosts))
	for _, b := range boosts {
		keywords = append(keywords, deepgram.Keyword{Term: b.Keyword, Boost: b.Boost})
	}

	rec := deepgram.New(deepgram.Config{
		APIKey:        cfg.STT.APIKey,
		ListenURL:     cfg.STT.BaseURL,
		Model:         cfg.STT.Model,
		SmartFormat:   cfg.STT.SmartFormat,
		EndpointingMS: cfg.STT.EndpointingMS,
		Keywords:      keywords,
	})
	mic := audio.Microphone{
		Input:    cfg.Capture.Input,
		Fallback: cfg.Capture.Fallback,
		KeepRaw:  cfg.Debug.EnableAudioDump,
		Logger:   logger,
	}
	return capture.NewAdapter(mic, rec, capture.Options{
		Language:      cfg.Capture.Language,
		ListenTimeout: millis(cfg.Capture.ListenTimeoutMS),
		PhraseLimit:   millis(cfg.Capture.PhraseLimitMS),
		DumpAudio:     cfg.Debug.EnableAudioDump,
	}, logger)
}

func sessionOptions(cfg config.Config, logger *slog.Logger) session.Options {
	return session.Options{
		Logger:            logger,
		ProcessingTimeout: millis(cfg.Assistant.TimeoutMS),
		Reveal: reveal.Schedule{
			Locations: millis(cfg.Reveal.LocationsDelayMS),
			Summary:   millis(cfg.Reveal.SummaryDelayMS),
		},
		LocationConsent: cfg.Location.Consent,
		HoldErrors:      cfg.Session.HoldErrors,
	}
}

// readLines delivers stdin lines until EOF. A nil reader closes immediately.
func readLines(in io.Reader) <-chan string {
	out := make(chan string)
	if in == nil {
		close(out)
		return out
	}
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			out <- scanner.Text()
		}
	}()
	return out
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
