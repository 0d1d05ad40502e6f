package config

import (
	"errors"
	"fmt"
	"os"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// Environment overrides (including .env files) apply on top of the file.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	if err := loadDotEnv(resolvedPath); err != nil {
		return Loaded{}, err
	}

	base := Default()
	if err := applyEnv(&base); err != nil {
		return Loaded{}, err
	}

	content, err := os.ReadFile(resolvedPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
		}
		warnings, verr := Validate(base)
		if verr != nil {
			return Loaded{}, fmt.Errorf("environment overrides: %w", verr)
		}
		return Loaded{
			Path:   resolvedPath,
			Config: base,
			Warnings: append([]Warning{{
				Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
			}}, warnings...),
			Exists: false,
		}, nil
	}

	cfg, warnings, err := Parse(string(content), base)
	if err != nil {
		return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
	}

	// Environment wins over the file.
	if err := applyEnv(&cfg); err != nil {
		return Loaded{}, err
	}
	if _, err := Validate(cfg); err != nil {
		return Loaded{}, fmt.Errorf("environment overrides: %w", err)
	}

	return Loaded{
		Path:     resolvedPath,
		Config:   cfg,
		Warnings: warnings,
		Exists:   true,
	}, nil
}
