package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if err := validateEndpoint(cfg.Assistant.Endpoint); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(cfg.Assistant.Path, "/") {
		return nil, fmt.Errorf("assistant.path must start with '/'")
	}
	if !strings.HasPrefix(cfg.Assistant.HealthPath, "/") {
		return nil, fmt.Errorf("assistant.health_path must start with '/'")
	}
	if cfg.Assistant.TimeoutMS <= 0 {
		return nil, fmt.Errorf("assistant.timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Capture.Language) == "" {
		return nil, fmt.Errorf("capture.language must not be empty")
	}
	if cfg.Capture.ListenTimeoutMS <= 0 {
		return nil, fmt.Errorf("capture.listen_timeout_ms must be > 0")
	}
	if cfg.Capture.PhraseLimitMS <= 0 {
		return nil, fmt.Errorf("capture.phrase_limit_ms must be > 0")
	}

	if strings.TrimSpace(cfg.STT.BaseURL) == "" {
		return nil, fmt.Errorf("stt.base_url must not be empty")
	}
	if cfg.STT.EndpointingMS < 0 {
		return nil, fmt.Errorf("stt.endpointing_ms must be >= 0")
	}

	if cfg.Reveal.LocationsDelayMS < 0 || cfg.Reveal.SummaryDelayMS < 0 {
		return nil, fmt.Errorf("reveal delays must be >= 0")
	}
	if cfg.Reveal.SummaryDelayMS < cfg.Reveal.LocationsDelayMS {
		warnings = append(warnings, Warning{Message: fmt.Sprintf(
			"reveal.summary_delay_ms (%d) is below reveal.locations_delay_ms (%d); summary waits for locations",
			cfg.Reveal.SummaryDelayMS, cfg.Reveal.LocationsDelayMS,
		)})
	}

	backend := strings.ToLower(strings.TrimSpace(cfg.Indicator.Backend))
	if backend != "desktop" && backend != "none" {
		return nil, fmt.Errorf("indicator.backend must be one of: desktop, none")
	}
	if cfg.Indicator.Enable && backend == "desktop" && strings.TrimSpace(cfg.Indicator.DesktopAppName) == "" {
		return nil, fmt.Errorf("indicator.desktop_app_name must not be empty when indicator.backend=desktop")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return nil, err
	}

	if cfg.Vocab.MaxKeywords <= 0 {
		return nil, fmt.Errorf("vocab.max_keywords must be > 0")
	}
	_, vocabWarnings, err := BuildKeywordBoosts(cfg)
	if err != nil {
		return nil, err
	}
	warnings = append(warnings, vocabWarnings...)

	if strings.TrimSpace(cfg.STT.APIKey) == "" {
		warnings = append(warnings, Warning{Message: "DEEPGRAM_API_KEY is not set; voice capture will report unsupported"})
	}

	return warnings, nil
}

func validateEndpoint(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("assistant.endpoint must not be empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("assistant.endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("assistant.endpoint must use http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("assistant.endpoint must include a host")
	}
	return nil
}

// ParseLevel maps log.level values to slog levels.
func ParseLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
}

// BuildKeywordBoosts merges enabled vocab sets into deterministic recognizer keyword payloads.
func BuildKeywordBoosts(cfg Config) ([]KeywordBoost, []Warning, error) {
	enabledSets := cfg.Vocab.GlobalSets
	if len(enabledSets) == 0 {
		return nil, nil, nil
	}

	type candidate struct {
		boost float64
		from  string
	}

	warnings := make([]Warning, 0)
	selected := make(map[string]candidate)

	for _, name := range enabledSets {
		set, ok := cfg.Vocab.Sets[name]
		if !ok {
			return nil, nil, fmt.Errorf("vocab.global references unknown set %q", name)
		}
		for _, keyword := range set.Keywords {
			keyword = strings.TrimSpace(keyword)
			if keyword == "" {
				continue
			}
			if existing, exists := selected[keyword]; exists {
				if set.Boost > existing.boost {
					warnings = append(warnings, Warning{Message: fmt.Sprintf("keyword %q present in %q and %q; using higher boost %.2f", keyword, existing.from, name, set.Boost)})
					selected[keyword] = candidate{boost: set.Boost, from: name}
				}
				continue
			}
			selected[keyword] = candidate{boost: set.Boost, from: name}
		}
	}

	if len(selected) > cfg.Vocab.MaxKeywords {
		return nil, nil, fmt.Errorf("vocabulary keyword count %d exceeds vocab.max_keywords=%d", len(selected), cfg.Vocab.MaxKeywords)
	}

	keywords := make([]KeywordBoost, 0, len(selected))
	for keyword, c := range selected {
		keywords = append(keywords, KeywordBoost{Keyword: keyword, Boost: c.boost})
	}

	sort.Slice(keywords, func(i, j int) bool {
		return keywords[i].Keyword < keywords[j].Keyword
	})

	return keywords, warnings, nil
}
