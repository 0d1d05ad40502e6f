// Package config resolves, parses, validates, and defaults resq configuration.
package config

// Config is the fully materialized runtime configuration used by resq.
type Config struct {
	Assistant AssistantConfig
	Capture   CaptureConfig
	STT       STTConfig
	Reveal    RevealConfig
	Playback  PlaybackConfig
	Location  LocationConfig
	Session   SessionConfig
	Indicator IndicatorConfig
	LiveView  LiveViewConfig
	Log       LogConfig
	Vocab     VocabConfig
	Debug     DebugConfig
}

// AssistantConfig points at the remote assistant backend.
type AssistantConfig struct {
	Endpoint   string
	Path       string
	HealthPath string
	TimeoutMS  int
}

// CaptureConfig controls microphone selection and utterance bounds.
type CaptureConfig struct {
	Input           string
	Fallback        string
	Language        string
	ListenTimeoutMS int
	PhraseLimitMS   int
}

// STTConfig controls the streaming speech-to-text recognizer.
type STTConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	SmartFormat   bool
	EndpointingMS int
}

// RevealConfig sets minimum pacing between staged artifacts.
type RevealConfig struct {
	LocationsDelayMS int
	SummaryDelayMS   int
}

// PlaybackConfig controls reply audio rendering.
type PlaybackConfig struct {
	Enable bool
}

// LocationConfig is the consent gate for location extraction.
type LocationConfig struct {
	Consent bool
}

// SessionConfig controls cycle error handling.
type SessionConfig struct {
	HoldErrors bool
}

// IndicatorConfig controls visual indicator and audio cue behavior.
type IndicatorConfig struct {
	Enable         bool
	Backend        string
	DesktopAppName string
	SoundEnable    bool
	TextListening  string
	TextProcessing string
	TextResponding string
	TextError      string
	ErrorTimeoutMS int
}

// LiveViewConfig controls the optional HTTP/websocket snapshot server.
type LiveViewConfig struct {
	Listen  string
	Metrics bool
}

// LogConfig controls runtime log verbosity.
type LogConfig struct {
	Level string
}

// VocabConfig controls enabled recognizer keyword sets and dedupe limits.
type VocabConfig struct {
	GlobalSets  []string
	Sets        map[string]VocabSet
	MaxKeywords int
}

// VocabSet is one named keyword group with a shared boost value.
type VocabSet struct {
	Name     string
	Boost    float64
	Keywords []string
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	EnableAudioDump bool
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}

// KeywordBoost is the normalized keyword payload sent to the recognizer.
type KeywordBoost struct {
	Keyword string
	Boost   float64
}
