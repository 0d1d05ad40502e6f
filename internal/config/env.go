package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envOverrides lists the environment variables that take precedence over file values.
type envOverrides struct {
	DeepgramAPIKey    string `envconfig:"DEEPGRAM_API_KEY"`
	AssistantEndpoint string `envconfig:"RESQ_ASSISTANT_ENDPOINT"`
	AssistantTimeout  int    `envconfig:"RESQ_ASSISTANT_TIMEOUT_MS"`
	CaptureLanguage   string `envconfig:"RESQ_CAPTURE_LANGUAGE"`
	LogLevel          string `envconfig:"RESQ_LOG_LEVEL"`
	LiveViewListen    string `envconfig:"RESQ_LIVEVIEW_LISTEN"`
}

// loadDotEnv populates the process environment from .env files without
// overriding variables that are already set. Missing files are skipped.
func loadDotEnv(configPath string) error {
	candidates := []string{".env", filepath.Join(filepath.Dir(configPath), ".env")}
	seen := make(map[string]struct{}, len(candidates))
	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(abs); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("stat %q: %w", abs, err)
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("load %q: %w", abs, err)
		}
	}
	return nil
}

// applyEnv overlays environment overrides onto cfg.
func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("", &env); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	if v := strings.TrimSpace(env.DeepgramAPIKey); v != "" {
		cfg.STT.APIKey = v
	}
	if v := strings.TrimSpace(env.AssistantEndpoint); v != "" {
		cfg.Assistant.Endpoint = v
	}
	if env.AssistantTimeout > 0 {
		cfg.Assistant.TimeoutMS = env.AssistantTimeout
	}
	if v := strings.TrimSpace(env.CaptureLanguage); v != "" {
		cfg.Capture.Language = v
	}
	if v := strings.TrimSpace(env.LogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := strings.TrimSpace(env.LiveViewListen); v != "" {
		cfg.LiveView.Listen = v
	}
	return nil
}
