// Package indicator surfaces call phases as desktop notifications and
// short audio cues.
package indicator

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/resq/internal/config"
	"github.com/rbright/resq/internal/pcm"
)

const (
	backendDesktop = "desktop"
	backendNone    = "none"

	phaseTimeoutMS = 300000
)

// CuePlayer renders cue tones.
type CuePlayer interface {
	Play(ctx context.Context, audio pcm.Audio, onStart func()) error
}

type messages struct {
	listening  string
	processing string
	responding string
	errorText  string
}

func messagesFrom(cfg config.IndicatorConfig) messages {
	m := messages{
		listening:  "Listening…",
		processing: "Contacting assistant…",
		responding: "Assistant responding",
		errorText:  "Something went wrong",
	}
	override(&m.listening, cfg.TextListening)
	override(&m.processing, cfg.TextProcessing)
	override(&m.responding, cfg.TextResponding)
	override(&m.errorText, cfg.TextError)
	return m
}

func override(dst *string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		*dst = v
	}
}

// Notifier implements the session indicator. Notifications replace each
// other so one call shows a single evolving bubble.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages
	cues     CuePlayer

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
}

// New builds a Notifier. cues may be nil to disable sound.
func New(cfg config.IndicatorConfig, cues CuePlayer, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: messagesFrom(cfg),
		cues:     cues,
	}
}

// ShowListening shows the listening notification.
func (n *Notifier) ShowListening(ctx context.Context) {
	n.show(ctx, phaseTimeoutMS, n.messages.listening)
}

// ShowProcessing shows that the transcript is with the assistant.
func (n *Notifier) ShowProcessing(ctx context.Context) {
	n.show(ctx, phaseTimeoutMS, n.messages.processing)
}

// ShowResponding shows that the reply is being revealed.
func (n *Notifier) ShowResponding(ctx context.Context) {
	n.show(ctx, phaseTimeoutMS, n.messages.responding)
}

// ShowError displays text, or the configured error text when empty.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 2500
	}
	n.show(ctx, timeout, text)
}

// CueListening plays the rising two-tone start cue.
func (n *Notifier) CueListening(context.Context) {
	n.playCue(cueListening)
}

// CueComplete plays the completion cue.
func (n *Notifier) CueComplete(context.Context) {
	n.playCue(cueComplete)
}

// CueError plays the falling error cue.
func (n *Notifier) CueError(context.Context) {
	n.playCue(cueError)
}

// Hide dismisses the active notification.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.enabled() {
		return
	}
	n.run(ctx, n.dismiss)
}

func (n *Notifier) enabled() bool {
	return n.cfg.Enable && strings.EqualFold(strings.TrimSpace(n.cfg.Backend), backendDesktop)
}

func (n *Notifier) show(ctx context.Context, timeoutMS int, text string) {
	if !n.enabled() {
		return
	}
	n.run(ctx, func(ctx context.Context) error {
		return n.notify(ctx, timeoutMS, text)
	})
}

// notify sends a replaceable desktop notification and stores its ID.
func (n *Notifier) notify(ctx context.Context, timeoutMS int, text string) error {
	n.mu.Lock()
	replaceID := n.notificationID
	n.mu.Unlock()

	appName := strings.TrimSpace(n.cfg.DesktopAppName)
	if appName == "" {
		appName = "resq"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.notificationID = id
	n.mu.Unlock()
	return nil
}

// dismiss closes the current notification ID when present.
func (n *Notifier) dismiss(ctx context.Context) error {
	n.mu.Lock()
	id := n.notificationID
	n.notificationID = 0
	n.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout. It detaches
// from ctx cancellation so an ended call can still clear its notification.
func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable || n.cues == nil {
		return
	}
	audio := cueAudio(kind)
	if len(audio.Samples) == 0 {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.cues.Play(ctx, audio, nil); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
