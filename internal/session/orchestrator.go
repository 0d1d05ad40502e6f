// Package session runs capture → request → staged reveal cycles and owns
// the call state shown to the user.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rbright/resq/internal/assistant"
	"github.com/rbright/resq/internal/capture"
	"github.com/rbright/resq/internal/extract"
	"github.com/rbright/resq/internal/fsm"
	"github.com/rbright/resq/internal/ipc"
	"github.com/rbright/resq/internal/reveal"
)

var (
	// ErrBusy rejects a capture request while a cycle is in flight.
	ErrBusy = errors.New("capture already in progress")
	// ErrEnded marks a cycle abandoned by End or caller cancellation.
	ErrEnded = errors.New("session ended")
	// ErrCaptureFailed wraps capture error reasons.
	ErrCaptureFailed = errors.New("capture failed")

	errStale     = errors.New("stale cycle")
	errUnchanged = errors.New("state unchanged")
)

// Assistant is the request/response contract of the assistant backend.
type Assistant interface {
	Send(context.Context, assistant.Request) (assistant.Reply, error)
}

// Player renders reply audio and reports speaking transitions.
type Player interface {
	Play(ctx context.Context, ref string, onSpeaking func(bool)) error
}

// Indicator is the session-facing subset of indicator behavior.
type Indicator interface {
	ShowListening(context.Context)
	ShowProcessing(context.Context)
	ShowResponding(context.Context)
	ShowError(context.Context, string)
	CueListening(context.Context)
	CueComplete(context.Context)
	CueError(context.Context)
	Hide(context.Context)
}

// Metrics receives cycle measurements.
type Metrics interface {
	PhaseEntered(phase string)
	RequestObserved(elapsed time.Duration, failed bool)
	ErrorSurfaced(kind string)
	PlaybackFailed()
	RevealFired(artifact string, at time.Duration)
	CycleFinished(outcome string, elapsed time.Duration)
}

type noopIndicator struct{}

func (noopIndicator) ShowListening(context.Context)     {}
func (noopIndicator) ShowProcessing(context.Context)    {}
func (noopIndicator) ShowResponding(context.Context)    {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueListening(context.Context)      {}
func (noopIndicator) CueComplete(context.Context)       {}
func (noopIndicator) CueError(context.Context)          {}
func (noopIndicator) Hide(context.Context)              {}

type noopMetrics struct{}

func (noopMetrics) PhaseEntered(string)                 {}
func (noopMetrics) RequestObserved(time.Duration, bool) {}
func (noopMetrics) ErrorSurfaced(string)                {}
func (noopMetrics) PlaybackFailed()                     {}
func (noopMetrics) RevealFired(string, time.Duration)   {}
func (noopMetrics) CycleFinished(string, time.Duration) {}

type silentPlayer struct{}

func (silentPlayer) Play(context.Context, string, func(bool)) error { return nil }

type missingAssistant struct{}

func (missingAssistant) Send(context.Context, assistant.Request) (assistant.Reply, error) {
	return assistant.Reply{}, fmt.Errorf("%w: no assistant endpoint configured", assistant.ErrNetwork)
}

// Options tunes an Orchestrator. Zero values are usable.
type Options struct {
	Logger    *slog.Logger
	Indicator Indicator
	Metrics   Metrics

	// ProcessingTimeout bounds the assistant request; 0 disables it.
	ProcessingTimeout time.Duration
	Reveal            reveal.Schedule
	LocationConsent   bool
	// HoldErrors keeps the errored phase until Acknowledge is called.
	HoldErrors bool
	// OnResult receives results of cycles started with Start.
	OnResult func(Result)
}

// Result is the record of one capture cycle.
type Result struct {
	CycleID         string
	Phases          []fsm.Phase
	Transcript      string
	Reply           assistant.Reply
	Reveals         []reveal.Event
	Kind            Kind
	Err             error
	PlaybackErr     error
	Abandoned       bool
	Device          string
	BytesCaptured   int64
	CaptureDuration time.Duration
	RequestLatency  time.Duration
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Outcome summarizes how the cycle ended.
func (r Result) Outcome() string {
	switch {
	case r.Abandoned:
		return "abandoned"
	case r.Err != nil:
		return "errored"
	default:
		return "completed"
	}
}

// Orchestrator owns State and runs at most one cycle at a time.
// Observers run synchronously and must not call End, Acknowledge or
// start a capture.
type Orchestrator struct {
	logger    *slog.Logger
	capturer  capture.Capturer
	assistant Assistant
	player    Player
	indicator Indicator
	metrics   Metrics
	opts      Options

	memory extract.Memory

	publishMu sync.Mutex

	mu           sync.RWMutex
	state        State
	sessionID    string
	cycleID      string
	version      uint64
	gen          uint64
	cancel       context.CancelFunc
	observers    map[int]func(Snapshot)
	nextObserver int

	ended chan struct{}
}

// New builds an Orchestrator. A nil capturer reports capture as unsupported,
// a nil player keeps replies text-only.
func New(capturer capture.Capturer, client Assistant, player Player, opts Options) *Orchestrator {
	if capturer == nil {
		capturer = capture.CapturerFunc(func(context.Context) capture.Result {
			return capture.Unsupported("")
		})
	}
	if client == nil {
		client = missingAssistant{}
	}
	if player == nil {
		player = silentPlayer{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	indicator := opts.Indicator
	if indicator == nil {
		indicator = noopIndicator{}
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &Orchestrator{
		logger:    logger,
		capturer:  capturer,
		assistant: client,
		player:    player,
		indicator: indicator,
		metrics:   metrics,
		opts:      opts,
		state:     State{Phase: fsm.PhaseIdle},
		sessionID: uuid.NewString(),
		observers: make(map[int]func(Snapshot)),
		ended:     make(chan struct{}, 1),
	}
}

// Snapshot returns a copy of the current State.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

// Phase returns the current phase.
func (o *Orchestrator) Phase() fsm.Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state.Phase
}

// Subscribe registers fn for every State change. The returned func removes it.
func (o *Orchestrator) Subscribe(fn func(Snapshot)) func() {
	o.mu.Lock()
	id := o.nextObserver
	o.nextObserver++
	o.observers[id] = fn
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		delete(o.observers, id)
		o.mu.Unlock()
	}
}

// Ended signals each time End is called.
func (o *Orchestrator) Ended() <-chan struct{} {
	return o.ended
}

// Capture runs one full cycle and blocks until it returns to idle, is held
// in errored, or is abandoned. ErrBusy is returned, with no effect on State,
// when a cycle is already in flight.
func (o *Orchestrator) Capture(ctx context.Context) (Result, error) {
	c, err := o.begin(ctx)
	if err != nil {
		return Result{}, err
	}
	return o.run(c), nil
}

// Start begins a cycle in the background. The result goes to
// Options.OnResult.
func (o *Orchestrator) Start(ctx context.Context) error {
	c, err := o.begin(ctx)
	if err != nil {
		return err
	}
	go func() {
		result := o.run(c)
		if o.opts.OnResult != nil {
			o.opts.OnResult(result)
		}
	}()
	return nil
}

// End ends the call at any phase: in-flight capture, request and playback
// are cancelled without waiting, pinned facts are dropped and State resets.
func (o *Orchestrator) End() {
	o.publishMu.Lock()
	o.mu.Lock()
	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state = State{Phase: fsm.PhaseIdle}
	o.sessionID = uuid.NewString()
	o.cycleID = ""
	o.version++
	snap := o.snapshotLocked()
	observers := o.observerListLocked()
	o.mu.Unlock()
	o.memory.Reset()
	publish(snap, observers)
	o.publishMu.Unlock()

	o.metrics.PhaseEntered(string(fsm.PhaseIdle))
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	o.indicator.Hide(cleanupCtx)
	cancel()

	o.logger.Info("session ended", "session_id", snap.SessionID)
	select {
	case o.ended <- struct{}{}:
	default:
	}
}

// Acknowledge clears a held error and returns to idle.
func (o *Orchestrator) Acknowledge() error {
	o.mu.RLock()
	gen := o.gen
	o.mu.RUnlock()

	_, err := o.transition(gen, fsm.EventAcknowledge, func(s *State) { s.Error = nil })
	return err
}

// Handle serves IPC commands for the call owner.
func (o *Orchestrator) Handle(ctx context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		snap := o.Snapshot()
		payload, err := json.Marshal(snap)
		if err != nil {
			return ipc.Response{OK: false, State: string(snap.Phase), Error: fmt.Sprintf("encode snapshot: %v", err)}
		}
		return ipc.Response{OK: true, State: string(snap.Phase), Message: "status", Snapshot: payload}
	case ipc.CommandCapture:
		if err := o.Start(ctx); err != nil {
			return ipc.Response{OK: false, State: string(o.Phase()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(o.Phase()), Message: "capture started"}
	case ipc.CommandEnd:
		o.End()
		return ipc.Response{OK: true, State: string(o.Phase()), Message: "session ended"}
	case ipc.CommandAck:
		if err := o.Acknowledge(); err != nil {
			return ipc.Response{OK: false, State: string(o.Phase()), Error: err.Error()}
		}
		return ipc.Response{OK: true, State: string(o.Phase()), Message: "error acknowledged"}
	default:
		return ipc.Response{OK: false, State: string(o.Phase()), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

type cycle struct {
	gen       uint64
	id        string
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
}

// begin moves idle → listening and clears State for the new cycle.
func (o *Orchestrator) begin(ctx context.Context) (cycle, error) {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	o.mu.Lock()
	next, err := fsm.Transition(o.state.Phase, fsm.EventCapture)
	if err != nil {
		phase := o.state.Phase
		o.mu.Unlock()
		return cycle{}, fmt.Errorf("%w (phase %s)", ErrBusy, phase)
	}

	o.gen++
	cycleCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.cycleID = uuid.NewString()
	o.state = State{Phase: next}
	o.version++
	c := cycle{gen: o.gen, id: o.cycleID, sessionID: o.sessionID, ctx: cycleCtx, cancel: cancel}
	snap := o.snapshotLocked()
	observers := o.observerListLocked()
	o.mu.Unlock()

	publish(snap, observers)
	o.metrics.PhaseEntered(string(next))
	return c, nil
}

func (o *Orchestrator) run(c cycle) Result {
	defer o.release(c)

	result := Result{
		CycleID:   c.id,
		Phases:    []fsm.Phase{fsm.PhaseIdle, fsm.PhaseListening},
		StartedAt: time.Now(),
	}

	ctx, span := tracer.Start(c.ctx, "session.cycle", trace.WithAttributes(
		attribute.String("session.id", c.sessionID),
		attribute.String("cycle.id", c.id),
	))
	defer span.End()

	o.runCycle(ctx, c.gen, &result)

	result.FinishedAt = time.Now()
	elapsed := result.FinishedAt.Sub(result.StartedAt)
	outcome := result.Outcome()
	o.metrics.CycleFinished(outcome, elapsed)
	span.SetAttributes(attribute.String("cycle.outcome", outcome))
	if result.Err != nil && !result.Abandoned {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}

	attrs := []any{
		"session_id", c.sessionID,
		"cycle_id", c.id,
		"outcome", outcome,
		"phases", result.Phases,
		"elapsed_ms", elapsed.Milliseconds(),
		"request_latency_ms", result.RequestLatency.Milliseconds(),
		"bytes_captured", result.BytesCaptured,
	}
	if result.Err != nil {
		attrs = append(attrs, "error", result.Err.Error(), "kind", string(result.Kind))
	}
	o.logger.Info("cycle finished", attrs...)
	return result
}

func (o *Orchestrator) runCycle(ctx context.Context, gen uint64, result *Result) {
	o.indicator.ShowListening(ctx)
	o.indicator.CueListening(context.Background())

	captured := o.captureOnce(ctx)
	if o.abandoned(ctx, gen, result) {
		return
	}
	result.Device = captured.Device
	result.BytesCaptured = captured.BytesCaptured
	result.CaptureDuration = captured.Duration

	switch captured.Kind {
	case capture.KindTranscript:
	case capture.KindUnsupported:
		cause := capture.ErrUnsupported
		if captured.Reason != "" && captured.Reason != capture.ErrUnsupported.Error() {
			cause = fmt.Errorf("%w: %s", capture.ErrUnsupported, captured.Reason)
		}
		o.fail(gen, result, fsm.EventUnsupported, KindCaptureUnsupported, cause)
		return
	default:
		o.fail(gen, result, fsm.EventCaptureFailed, KindCaptureFailed, fmt.Errorf("%w: %s", ErrCaptureFailed, captured.Reason))
		return
	}

	text := strings.TrimSpace(captured.Text)
	if text == "" {
		o.fail(gen, result, fsm.EventCaptureFailed, KindCaptureFailed, fmt.Errorf("%w: %w", ErrCaptureFailed, capture.ErrNoSpeech))
		return
	}
	result.Transcript = text
	if !o.step(gen, result, fsm.EventTranscript, func(s *State) { s.Transcript = text }) {
		return
	}
	o.indicator.ShowProcessing(ctx)

	facts := o.memory.Update(text, o.opts.LocationConsent)

	reply, err := o.request(ctx, text, result)
	if o.abandoned(ctx, gen, result) {
		return
	}
	if err != nil {
		kind := KindNetwork
		if errors.Is(err, assistant.ErrMalformedReply) {
			kind = KindMalformedReply
		}
		o.fail(gen, result, fsm.EventRequestFailed, kind, err)
		return
	}
	result.Reply = reply

	if !o.step(gen, result, fsm.EventReplied, func(s *State) {
		s.ResponseText = reply.ResponseText
		s.ResponseVisible = true
	}) {
		return
	}
	o.indicator.ShowResponding(ctx)

	o.respond(ctx, gen, result, facts, reply)
	if o.abandoned(ctx, gen, result) {
		return
	}

	if !o.step(gen, result, fsm.EventComplete, nil) {
		return
	}
	o.indicator.CueComplete(context.Background())
	o.indicator.Hide(context.Background())
}

// captureOnce waits for the capturer without letting it outlive ctx.
func (o *Orchestrator) captureOnce(ctx context.Context) capture.Result {
	done := make(chan capture.Result, 1)
	go func() {
		done <- o.capturer.BeginCapture(ctx)
	}()

	select {
	case res := <-done:
		return res
	case <-ctx.Done():
		return capture.Failed(ctx.Err().Error())
	}
}

// request sends text once, bounded by the processing timeout. A request
// that outlives the bound is reported as a network failure.
func (o *Orchestrator) request(ctx context.Context, text string, result *Result) (assistant.Reply, error) {
	reqCtx, cancel := ctx, context.CancelFunc(func() {})
	if o.opts.ProcessingTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, o.opts.ProcessingTimeout)
	}
	defer cancel()

	type sent struct {
		reply assistant.Reply
		err   error
	}
	done := make(chan sent, 1)
	started := time.Now()
	go func() {
		reply, err := o.assistant.Send(reqCtx, assistant.Request{Text: text})
		done <- sent{reply: reply, err: err}
	}()

	var out sent
	select {
	case out = <-done:
	case <-reqCtx.Done():
		out.err = reqCtx.Err()
	}
	result.RequestLatency = time.Since(started)
	o.metrics.RequestObserved(result.RequestLatency, out.err != nil)

	if out.err != nil && !errors.Is(out.err, assistant.ErrNetwork) && !errors.Is(out.err, assistant.ErrMalformedReply) {
		out.err = fmt.Errorf("%w: %w", assistant.ErrNetwork, out.err)
	}
	return out.reply, out.err
}

// respond runs playback alongside the reveal timeline and returns once
// both have finished.
func (o *Orchestrator) respond(ctx context.Context, gen uint64, result *Result, facts extract.Facts, reply assistant.Reply) {
	artifacts := o.artifactsFor(facts, reply)

	var playDone chan error
	if reply.HasAudio() {
		playDone = make(chan error, 1)
		go func() {
			playDone <- o.player.Play(ctx, reply.AudioRef, func(on bool) { o.setSpeaking(gen, on) })
		}()
	}

	arrivals := make(chan reveal.Artifact, len(reveal.Order))
	for _, artifact := range reveal.Order {
		arrivals <- artifact
	}
	close(arrivals)

	err := reveal.New(o.opts.Reveal).Run(ctx, arrivals, func(ev reveal.Event) {
		result.Reveals = append(result.Reveals, ev)
		o.metrics.RevealFired(string(ev.Artifact), ev.AvailableAt)
		_ = o.apply(gen, func(s *State) error {
			switch ev.Artifact {
			case reveal.ArtifactResponse:
				s.ResponseVisible = true
			case reveal.ArtifactLocations:
				s.Locations = slices.Clone(artifacts.Locations)
				s.LocationsVisible = true
			case reveal.ArtifactSummary:
				s.Summary = artifacts.Summary
				s.Keywords = slices.Clone(artifacts.Keywords)
				s.SummaryVisible = true
			}
			return nil
		})
	})
	if err != nil {
		return
	}

	if playDone == nil {
		return
	}
	select {
	case playErr := <-playDone:
		if playErr != nil && ctx.Err() == nil {
			result.PlaybackErr = playErr
			o.metrics.PlaybackFailed()
			trace.SpanFromContext(ctx).AddEvent("playback failed", trace.WithAttributes(
				attribute.String("error", playErr.Error()),
			))
			o.logger.Warn("reply audio unavailable; continuing with text",
				"kind", string(KindPlayback),
				"audio_ref", reply.AudioRef,
				"error", playErr.Error(),
			)
		}
	case <-ctx.Done():
	}
	_ = o.apply(gen, func(s *State) error {
		if !s.IsSpeaking {
			return errUnchanged
		}
		s.IsSpeaking = false
		return nil
	})
}

// artifactsFor prefers backend-provided artifacts and derives the rest.
func (o *Orchestrator) artifactsFor(facts extract.Facts, reply assistant.Reply) extract.Artifacts {
	derived := extract.Derive(facts, reply.ResponseText)

	out := extract.Artifacts{
		Locations: reply.Locations,
		Summary:   reply.Summary,
		Keywords:  reply.Keywords,
	}
	if len(out.Locations) == 0 {
		out.Locations = derived.Locations
	}
	if out.Summary == "" {
		out.Summary = derived.Summary
	}
	if len(out.Keywords) == 0 {
		out.Keywords = derived.Keywords
	}
	if !o.opts.LocationConsent {
		out.Locations = nil
	}
	return out
}

// setSpeaking applies playback transitions; speaking is only ever true while
// responding.
func (o *Orchestrator) setSpeaking(gen uint64, on bool) {
	_ = o.apply(gen, func(s *State) error {
		next := on && s.Phase == fsm.PhaseResponding
		if s.IsSpeaking == next {
			return errUnchanged
		}
		s.IsSpeaking = next
		return nil
	})
}

// fail surfaces a terminal cycle error, then acknowledges it unless errors
// are held for the user.
func (o *Orchestrator) fail(gen uint64, result *Result, event fsm.Event, kind Kind, cause error) {
	result.Kind = kind
	result.Err = cause

	message := userMessage(kind)
	if !o.step(gen, result, event, func(s *State) {
		s.Error = &Error{Kind: kind, Message: message}
	}) {
		return
	}

	o.metrics.ErrorSurfaced(string(kind))
	o.indicator.CueError(context.Background())
	o.indicator.ShowError(context.Background(), message)

	if o.opts.HoldErrors {
		return
	}
	o.step(gen, result, fsm.EventAcknowledge, func(s *State) { s.Error = nil })
}

func userMessage(kind Kind) string {
	switch kind {
	case KindCaptureUnsupported:
		return "Voice capture is not supported on this device."
	case KindCaptureFailed:
		return "Could not hear you. Please try again."
	case KindNetwork:
		return "Could not reach the assistant. Please try again."
	case KindMalformedReply:
		return "The assistant reply could not be read. Please try again."
	default:
		return "Something went wrong."
	}
}

// step applies event and records the phase in result.
func (o *Orchestrator) step(gen uint64, result *Result, event fsm.Event, fn func(*State)) bool {
	next, err := o.transition(gen, event, fn)
	if err != nil {
		if errors.Is(err, errStale) {
			result.Abandoned = true
			if result.Err == nil {
				result.Err = ErrEnded
			}
			return false
		}
		o.logger.Error("cycle transition rejected", "event", string(event), "error", err.Error())
		result.Err = err
		return false
	}
	result.Phases = append(result.Phases, next)
	return true
}

func (o *Orchestrator) transition(gen uint64, event fsm.Event, fn func(*State)) (fsm.Phase, error) {
	var next fsm.Phase
	err := o.apply(gen, func(s *State) error {
		phase, err := fsm.Transition(s.Phase, event)
		if err != nil {
			return err
		}
		s.Phase = phase
		if phase != fsm.PhaseResponding {
			s.IsSpeaking = false
		}
		if fn != nil {
			fn(s)
		}
		next = phase
		return nil
	})
	if err != nil {
		return "", err
	}
	o.metrics.PhaseEntered(string(next))
	return next, nil
}

// apply mutates State for cycle gen and publishes the result. Mutations from
// an abandoned cycle return errStale and change nothing.
func (o *Orchestrator) apply(gen uint64, fn func(*State) error) error {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return errStale
	}
	if err := fn(&o.state); err != nil {
		o.mu.Unlock()
		return err
	}
	o.version++
	snap := o.snapshotLocked()
	observers := o.observerListLocked()
	o.mu.Unlock()

	publish(snap, observers)
	return nil
}

// abandoned reports whether the cycle lost ownership of State. A cycle
// cancelled by its caller rather than End still resets State to idle.
func (o *Orchestrator) abandoned(ctx context.Context, gen uint64, result *Result) bool {
	if ctx.Err() == nil && o.isCurrent(gen) {
		return false
	}
	result.Abandoned = true
	result.Err = ErrEnded
	result.Kind = ""
	o.discard(gen)
	return true
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.gen == gen
}

// discard resets State when gen still owns it.
func (o *Orchestrator) discard(gen uint64) {
	o.publishMu.Lock()
	defer o.publishMu.Unlock()

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	o.gen++
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.state = State{Phase: fsm.PhaseIdle}
	o.version++
	snap := o.snapshotLocked()
	observers := o.observerListLocked()
	o.mu.Unlock()

	publish(snap, observers)
	o.metrics.PhaseEntered(string(fsm.PhaseIdle))
}

// release drops the cycle context once run returns.
func (o *Orchestrator) release(c cycle) {
	c.cancel()
	o.mu.Lock()
	if o.gen == c.gen {
		o.cancel = nil
	}
	o.mu.Unlock()
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	return Snapshot{
		State:     o.state.clone(),
		SessionID: o.sessionID,
		CycleID:   o.cycleID,
		Version:   o.version,
		UpdatedAt: time.Now(),
	}
}

func (o *Orchestrator) observerListLocked() []func(Snapshot) {
	if len(o.observers) == 0 {
		return nil
	}
	ids := make([]int, 0, len(o.observers))
	for id := range o.observers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]func(Snapshot), 0, len(ids))
	for _, id := range ids {
		out = append(out, o.observers[id])
	}
	return out
}

func publish(snap Snapshot, observers []func(Snapshot)) {
	for _, fn := range observers {
		fn(snap)
	}
}
