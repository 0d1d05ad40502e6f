// Package doctor runs readiness diagnostics for config, assistant, recognizer, audio, and indicator.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/resq/internal/assistant"
	"github.com/rbright/resq/internal/audio"
	"github.com/rbright/resq/internal/config"
)

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Run executes environment/config/runtime checks for a loaded config.
func Run(ctx context.Context, loaded config.Loaded) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	checks = append(checks, checkAssistant(ctx, cfg.Assistant))
	checks = append(checks, checkSTTKey(cfg.STT))
	checks = append(checks, checkLanguage(cfg.Capture))
	checks = append(checks, checkAudioSelection(ctx, cfg.Capture))

	if cfg.Indicator.Enable && strings.EqualFold(cfg.Indicator.Backend, "desktop") {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	message := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		message = fmt.Sprintf("%q not found; using defaults", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		message += fmt.Sprintf(" (%d warning(s))", n)
	}
	return Check{Name: "config", Pass: true, Message: message}
}

// checkAssistant probes the backend health path. Any HTTP status below 500
// counts as reachable.
func checkAssistant(ctx context.Context, cfg config.AssistantConfig) Check {
	client, err := assistant.NewClient(cfg.Endpoint)
	if err != nil {
		return Check{Name: "assistant", Pass: false, Message: err.Error()}
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	status, err := client.Probe(probeCtx, cfg.HealthPath)
	if err != nil {
		return Check{Name: "assistant", Pass: false, Message: fmt.Sprintf("request failed: %v", err)}
	}
	target := strings.TrimRight(client.Endpoint(), "/") + cfg.HealthPath
	if status >= http.StatusInternalServerError {
		return Check{Name: "assistant", Pass: false, Message: fmt.Sprintf("HTTP %d from %s", status, target)}
	}
	return Check{Name: "assistant", Pass: true, Message: fmt.Sprintf("reachable at %s (HTTP %d)", target, status)}
}

func checkSTTKey(cfg config.STTConfig) Check {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Check{Name: "stt.api_key", Pass: false, Message: "DEEPGRAM_API_KEY is not set"}
	}
	return Check{Name: "stt.api_key", Pass: true, Message: "configured"}
}

// checkLanguage reports the single recognition locale. It never fails.
func checkLanguage(cfg config.CaptureConfig) Check {
	return Check{
		Name:    "capture.language",
		Pass:    true,
		Message: fmt.Sprintf("recognition fixed to %s for every call", cfg.Language),
	}
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, purpose string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s (needed for %s)", bin, purpose)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, purpose)}
}

// checkAudioSelection runs live device selection to surface selection/fallback issues.
func checkAudioSelection(ctx context.Context, cfg config.CaptureConfig) Check {
	selection, err := audio.SelectDevice(ctx, cfg.Input, cfg.Fallback)
	if err != nil {
		return Check{Name: "audio.device", Pass: false, Message: err.Error()}
	}
	message := fmt.Sprintf("selected %q", selection.Device.ID)
	if selection.Warning != "" {
		message = message + " (" + selection.Warning + ")"
	}
	return Check{Name: "audio.device", Pass: true, Message: message}
}
