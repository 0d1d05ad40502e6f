package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

type jsoncConfig struct {
	Assistant *jsoncAssistant `json:"assistant"`
	Capture   *jsoncCapture   `json:"capture"`
	STT       *jsoncSTT       `json:"stt"`
	Reveal    *jsoncReveal    `json:"reveal"`
	Playback  *jsoncPlayback  `json:"playback"`
	Location  *jsoncLocation  `json:"location"`
	Session   *jsoncSession   `json:"session"`
	Indicator *jsoncIndicator `json:"indicator"`
	LiveView  *jsoncLiveView  `json:"liveview"`
	Log       *jsoncLog       `json:"log"`
	Vocab     *jsoncVocab     `json:"vocab"`
	Debug     *jsoncDebug     `json:"debug"`
}

type jsoncAssistant struct {
	Endpoint   *string `json:"endpoint"`
	Path       *string `json:"path"`
	HealthPath *string `json:"health_path"`
	TimeoutMS  *int    `json:"timeout_ms"`
}

type jsoncCapture struct {
	Input           *string `json:"input"`
	Fallback        *string `json:"fallback"`
	Language        *string `json:"language"`
	ListenTimeoutMS *int    `json:"listen_timeout_ms"`
	PhraseLimitMS   *int    `json:"phrase_limit_ms"`
}

type jsoncSTT struct {
	BaseURL       *string `json:"base_url"`
	APIKey        *string `json:"api_key"`
	Model         *string `json:"model"`
	SmartFormat   *bool   `json:"smart_format"`
	EndpointingMS *int    `json:"endpointing_ms"`
}

type jsoncReveal struct {
	LocationsDelayMS *int `json:"locations_delay_ms"`
	SummaryDelayMS   *int `json:"summary_delay_ms"`
}

type jsoncPlayback struct {
	Enable *bool `json:"enable"`
}

type jsoncLocation struct {
	Consent *bool `json:"consent"`
}

type jsoncSession struct {
	HoldErrors *bool `json:"hold_errors"`
}

type jsoncIndicator struct {
	Enable         *bool   `json:"enable"`
	Backend        *string `json:"backend"`
	DesktopAppName *string `json:"desktop_app_name"`
	SoundEnable    *bool   `json:"sound_enable"`
	TextListening  *string `json:"text_listening"`
	TextProcessing *string `json:"text_processing"`
	TextResponding *string `json:"text_responding"`
	TextError      *string `json:"text_error"`
	ErrorTimeoutMS *int    `json:"error_timeout_ms"`
}

type jsoncLiveView struct {
	Listen  *string `json:"listen"`
	Metrics *bool   `json:"metrics"`
}

type jsoncLog struct {
	Level *string `json:"level"`
}

type jsoncVocab struct {
	Global      *jsoncStringList         `json:"global"`
	MaxKeywords *int                     `json:"max_keywords"`
	Sets        map[string]jsoncVocabSet `json:"sets"`
}

type jsoncVocabSet struct {
	Boost    *float64 `json:"boost"`
	Keywords []string `json:"keywords"`
}

type jsoncDebug struct {
	AudioDump *bool `json:"audio_dump"`
}

type jsoncStringList []string

func (l *jsoncStringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = list
		return nil
	}

	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		parts := strings.Split(single, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			out = append(out, part)
		}
		*l = out
		return nil
	}

	return fmt.Errorf("expected string array or comma-delimited string")
}

func parseJSONC(content string, base Config) (Config, []Warning, error) {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return Config{}, nil, err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	var payload jsoncConfig
	if err := decoder.Decode(&payload); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}
	if err := ensureSingleJSONValue(decoder); err != nil {
		return Config{}, nil, wrapJSONDecodeError(normalized, err)
	}

	cfg := base
	warnings, err := payload.applyTo(&cfg)
	if err != nil {
		return Config{}, nil, err
	}

	validatedWarnings, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	warnings = append(warnings, validatedWarnings...)
	return cfg, warnings, nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func (payload jsoncConfig) applyTo(cfg *Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	if a := payload.Assistant; a != nil {
		setString(&cfg.Assistant.Endpoint, a.Endpoint)
		setString(&cfg.Assistant.Path, a.Path)
		setString(&cfg.Assistant.HealthPath, a.HealthPath)
		setInt(&cfg.Assistant.TimeoutMS, a.TimeoutMS)
	}

	if c := payload.Capture; c != nil {
		setString(&cfg.Capture.Input, c.Input)
		setString(&cfg.Capture.Fallback, c.Fallback)
		setString(&cfg.Capture.Language, c.Language)
		setInt(&cfg.Capture.ListenTimeoutMS, c.ListenTimeoutMS)
		setInt(&cfg.Capture.PhraseLimitMS, c.PhraseLimitMS)
	}

	if s := payload.STT; s != nil {
		setString(&cfg.STT.BaseURL, s.BaseURL)
		setString(&cfg.STT.Model, s.Model)
		setBool(&cfg.STT.SmartFormat, s.SmartFormat)
		setInt(&cfg.STT.EndpointingMS, s.EndpointingMS)
		if s.APIKey != nil {
			setString(&cfg.STT.APIKey, s.APIKey)
			warnings = append(warnings, Warning{Message: "stt.api_key is stored in the config file; prefer DEEPGRAM_API_KEY"})
		}
	}

	if r := payload.Reveal; r != nil {
		setInt(&cfg.Reveal.LocationsDelayMS, r.LocationsDelayMS)
		setInt(&cfg.Reveal.SummaryDelayMS, r.SummaryDelayMS)
	}

	if payload.Playback != nil {
		setBool(&cfg.Playback.Enable, payload.Playback.Enable)
	}
	if payload.Location != nil {
		setBool(&cfg.Location.Consent, payload.Location.Consent)
	}
	if payload.Session != nil {
		setBool(&cfg.Session.HoldErrors, payload.Session.HoldErrors)
	}

	if i := payload.Indicator; i != nil {
		setBool(&cfg.Indicator.Enable, i.Enable)
		setString(&cfg.Indicator.Backend, i.Backend)
		setString(&cfg.Indicator.DesktopAppName, i.DesktopAppName)
		setBool(&cfg.Indicator.SoundEnable, i.SoundEnable)
		setString(&cfg.Indicator.TextListening, i.TextListening)
		setString(&cfg.Indicator.TextProcessing, i.TextProcessing)
		setString(&cfg.Indicator.TextResponding, i.TextResponding)
		setString(&cfg.Indicator.TextError, i.TextError)
		setInt(&cfg.Indicator.ErrorTimeoutMS, i.ErrorTimeoutMS)
	}

	if l := payload.LiveView; l != nil {
		setString(&cfg.LiveView.Listen, l.Listen)
		setBool(&cfg.LiveView.Metrics, l.Metrics)
	}
	if payload.Log != nil {
		setString(&cfg.Log.Level, payload.Log.Level)
	}

	if payload.Vocab != nil {
		if payload.Vocab.Global != nil {
			cfg.Vocab.GlobalSets = cfg.Vocab.GlobalSets[:0]
			for _, name := range *payload.Vocab.Global {
				name = strings.TrimSpace(name)
				if name == "" {
					continue
				}
				cfg.Vocab.GlobalSets = append(cfg.Vocab.GlobalSets, name)
			}
		}
		setInt(&cfg.Vocab.MaxKeywords, payload.Vocab.MaxKeywords)
		if payload.Vocab.Sets != nil {
			if cfg.Vocab.Sets == nil {
				cfg.Vocab.Sets = make(map[string]VocabSet)
			}
			for name, set := range payload.Vocab.Sets {
				trimmedName := strings.TrimSpace(name)
				if trimmedName == "" {
					return nil, fmt.Errorf("vocab.sets contains an empty set name")
				}

				entry := VocabSet{Name: trimmedName, Keywords: append([]string(nil), set.Keywords...)}
				if set.Boost != nil {
					entry.Boost = *set.Boost
				}
				cfg.Vocab.Sets[trimmedName] = entry
			}
		}
	}

	if payload.Debug != nil {
		setBool(&cfg.Debug.EnableAudioDump, payload.Debug.AudioDump)
	}

	return warnings, nil
}

func normalizeJSONC(content string) (string, error) {
	withoutComments, err := stripJSONCComments(content)
	if err != nil {
		return "", err
	}
	return stripJSONCTrailingCommas(withoutComments), nil
}

func stripJSONCComments(content string) (string, error) {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false
	lineComment := false
	blockComment := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if lineComment {
			if ch == '\n' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			if ch == '\r' {
				lineComment = false
				out.WriteByte(ch)
				continue
			}
			out.WriteByte(' ')
			continue
		}

		if blockComment {
			if ch == '*' && i+1 < len(content) && content[i+1] == '/' {
				blockComment = false
				out.WriteString("  ")
				i++
				continue
			}
			if ch == '\n' || ch == '\r' || ch == '\t' {
				out.WriteByte(ch)
			} else {
				out.WriteByte(' ')
			}
			continue
		}

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(content) {
			next := content[i+1]
			if next == '/' {
				lineComment = true
				out.WriteString("  ")
				i++
				continue
			}
			if next == '*' {
				blockComment = true
				out.WriteString("  ")
				i++
				continue
			}
		}

		out.WriteByte(ch)
	}

	if blockComment {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return out.String(), nil
}

func stripJSONCTrailingCommas(content string) string {
	var out strings.Builder
	out.Grow(len(content))

	inString := false
	escape := false

	for i := 0; i < len(content); i++ {
		ch := content[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == ',' {
			j := i + 1
			for j < len(content) && isJSONWhitespace(content[j]) {
				j++
			}
			if j < len(content) && (content[j] == '}' || content[j] == ']') {
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

func isJSONWhitespace(ch byte) bool {
	switch ch {
	case ' ', '\n', '\r', '\t':
		return true
	default:
		return false
	}
}

func ensureSingleJSONValue(decoder *json.Decoder) error {
	var extra struct{}
	err := decoder.Decode(&extra)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err == nil {
		return fmt.Errorf("multiple JSON values are not allowed")
	}
	return err
}

func wrapJSONDecodeError(content string, err error) error {
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		line, col := offsetToLineCol(content, syntaxErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		line, col := offsetToLineCol(content, typeErr.Offset)
		return fmt.Errorf("line %d column %d: %w", line, col, err)
	}

	return err
}

func offsetToLineCol(content string, offset int64) (int, int) {
	if offset <= 0 {
		return 1, 1
	}

	limit := int(offset)
	if limit > len(content) {
		limit = len(content)
	}

	line := 1
	col := 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
