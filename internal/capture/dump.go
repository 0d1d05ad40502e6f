package capture

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rbright/resq/internal/pcm"
)

// writeDebugAudio writes raw PCM to WAV when debug audio dumps are enabled.
func (a *Adapter) writeDebugAudio(rawPCM []byte) {
	if !a.opts.DumpAudio || len(rawPCM) == 0 {
		return
	}

	file, err := createDebugFile("capture", "wav")
	if err != nil {
		a.logWarn("unable to create debug audio dump", err)
		return
	}
	defer file.Close()

	if err := pcm.WriteWAV(file, rawPCM, captureSampleRate, captureChannels); err != nil {
		a.logWarn("unable to write debug audio dump", err)
	}
}

// createDebugFile creates timestamped debug artifacts under state/resq/debug.
func createDebugFile(prefix string, extension string) (*os.File, error) {
	stateDir, err := resolveStateDir()
	if err != nil {
		return nil, err
	}
	debugDir := filepath.Join(stateDir, "resq", "debug")
	if err := os.MkdirAll(debugDir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(debugDir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}

func resolveStateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return xdg, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory for state: %w", err)
	}
	return filepath.Join(home, ".local", "state"), nil
}

func (a *Adapter) logWarn(msg string, err error) {
	if a.logger == nil {
		return
	}
	a.logger.Warn(msg, "error", err.Error())
}
