package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Assistant: AssistantConfig{
			Endpoint:   "http://localhost:5000",
			Path:       "/process_text",
			HealthPath: "/",
			TimeoutMS:  20000,
		},
		Capture: CaptureConfig{
			Input:           "default",
			Fallback:        "default",
			Language:        "en-US",
			ListenTimeoutMS: 5000,
			PhraseLimitMS:   8000,
		},
		STT: STTConfig{
			BaseURL:       "https://api.deepgram.com/v1/listen",
			Model:         "nova-2",
			SmartFormat:   true,
			EndpointingMS: 300,
		},
		Reveal:   RevealConfig{},
		Playback: PlaybackConfig{Enable: true},
		Location: LocationConfig{Consent: true},
		Indicator: IndicatorConfig{
			Enable:         false,
			Backend:        "desktop",
			DesktopAppName: "resq",
			SoundEnable:    true,
			ErrorTimeoutMS: 2500,
		},
		LiveView: LiveViewConfig{Metrics: true},
		Log:      LogConfig{Level: "info"},
		Vocab: VocabConfig{
			Sets:        map[string]VocabSet{},
			MaxKeywords: 100,
		},
	}
}
