package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// vigilDir is the per-user state directory name under $HOME.
const vigilDir = ".vigil"

// Paths holds all resolved vigil state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	VigilHome     string // ~/.vigil or VIGIL_HOME
	SessionDBPath string // session.db or VIGIL_DB_PATH
	BundlePath    string // observers.yaml or VIGIL_BUNDLE
}

// ResolvePaths returns all vigil paths, respecting env var overrides.
// Environment variables:
//   - VIGIL_HOME: base directory for vigil state (default: ~/.vigil)
//   - VIGIL_DB_PATH: session database (default: $VIGIL_HOME/session.db)
//   - VIGIL_BUNDLE: observer bundle config (default: $VIGIL_HOME/observers.yaml)
func ResolvePaths() (*Paths, error) {
	home, err := resolveVigilHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		VigilHome:     home,
		SessionDBPath: resolvePathWithEnv("VIGIL_DB_PATH", home, "session.db"),
		BundlePath:    resolvePathWithEnv("VIGIL_BUNDLE", home, "observers.yaml"),
	}, nil
}

// EnsureHome creates the vigil home directory if missing.
func (p *Paths) EnsureHome() error {
	if err := os.MkdirAll(p.VigilHome, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", p.VigilHome, err)
	}
	return nil
}

func resolveVigilHome() (string, error) {
	if v := os.Getenv("VIGIL_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, vigilDir), nil
}

// resolvePathWithEnv returns the path from envKey if set, otherwise joins base + suffix.
func resolvePathWithEnv(envKey, base, suffix string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return filepath.Join(base, suffix)
}
