// Package config loads the plugin configuration from the repository.
// Two files under .claude/cat/ participate: cat-config.json and an
// optional cat-config.local.json whose keys override the first.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

var (
	// ErrNotFound indicates the config file does not exist.
	ErrNotFound = errors.New("config file not found")

	// ErrInvalidValue indicates a key holds a value outside its domain.
	ErrInvalidValue = errors.New("invalid config value")
)

// FileName is the primary config file under the plugin directory.
const FileName = "cat-config.json"

// LocalFileName overrides FileName per-checkout and is not committed.
const LocalFileName = "cat-config.local.json"

// Level is a three-step intensity setting.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Verify controls which files tests must cover.
type Verify string

const (
	VerifyNone    Verify = "none"
	VerifyChanged Verify = "changed"
	VerifyAll     Verify = "all"
)

// Severity is the review auto-fix floor.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Config is the merged plugin configuration. Unknown keys survive a
// load/save round-trip via Extra.
type Config struct {
	AutoRemoveWorktrees bool     `json:"autoRemoveWorktrees"`
	Trust               Level    `json:"trust"`
	Verify              Verify   `json:"verify"`
	Curiosity           Level    `json:"curiosity"`
	Effort              Level    `json:"effort"`
	Patience            Level    `json:"patience"`
	CompletionWorkflow  string   `json:"completionWorkflow"`
	ReviewThreshold     Severity `json:"reviewThreshold"`
	LockStaleHours      float64  `json:"lockStaleHours"`
	MaxPlanTokens       int      `json:"maxPlanTokens"`

	Extra map[string]json.RawMessage `json:"-"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		AutoRemoveWorktrees: true,
		Trust:               LevelMedium,
		Verify:              VerifyChanged,
		Curiosity:           LevelMedium,
		Effort:              LevelMedium,
		Patience:            LevelMedium,
		CompletionWorkflow:  "merge",
		ReviewThreshold:     SeverityHigh,
		LockStaleHours:      4,
		MaxPlanTokens:       160000,
	}
}

// StaleThreshold returns the lock staleness age as a duration.
func (c *Config) StaleThreshold() time.Duration {
	return time.Duration(c.LockStaleHours * float64(time.Hour))
}

// Dir returns the plugin directory for a repository root.
func Dir(repoRoot string) string {
	return filepath.Join(repoRoot, ".claude", "cat")
}

// Load reads cat-config.json merged with cat-config.local.json from the
// repository's plugin directory. Missing files fall back to defaults; a
// present but malformed file is an error.
func Load(repoRoot string) (*Config, error) {
	cfg := Default()
	for _, name := range []string{FileName, LocalFileName} {
		path := filepath.Join(Dir(repoRoot), name)
		if err := mergeFile(cfg, path); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is constructed internally
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return fmt.Errorf("reading config: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	// Overlay known keys; stash the rest.
	overlay, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("re-encoding config: %w", err)
	}
	if err := json.Unmarshal(overlay, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	known := knownKeys()
	for key, value := range raw {
		if known[key] {
			continue
		}
		if cfg.Extra == nil {
			cfg.Extra = make(map[string]json.RawMessage)
		}
		cfg.Extra[key] = value
	}
	return nil
}

func knownKeys() map[string]bool {
	return map[string]bool{
		"autoRemoveWorktrees": true,
		"trust":               true,
		"verify":              true,
		"curiosity":           true,
		"effort":              true,
		"patience":            true,
		"completionWorkflow":  true,
		"reviewThreshold":     true,
		"lockStaleHours":      true,
		"maxPlanTokens":       true,
	}
}

func validate(c *Config) error {
	for name, level := range map[string]Level{
		"trust": c.Trust, "curiosity": c.Curiosity, "effort": c.Effort, "patience": c.Patience,
	} {
		switch level {
		case LevelLow, LevelMedium, LevelHigh:
		default:
			return fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, level)
		}
	}
	switch c.Verify {
	case VerifyNone, VerifyChanged, VerifyAll:
	default:
		return fmt.Errorf("%w: verify=%q", ErrInvalidValue, c.Verify)
	}
	switch c.ReviewThreshold {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow:
	default:
		return fmt.Errorf("%w: reviewThreshold=%q", ErrInvalidValue, c.ReviewThreshold)
	}
	if c.LockStaleHours <= 0 {
		return fmt.Errorf("%w: lockStaleHours must be positive", ErrInvalidValue)
	}
	if c.MaxPlanTokens <= 0 {
		return fmt.Errorf("%w: maxPlanTokens must be positive", ErrInvalidValue)
	}
	return nil
}

// Save writes the config to cat-config.json, preserving unknown keys.
func Save(repoRoot string, cfg *Config) error {
	if err := validate(cfg); err != nil {
		return err
	}
	merged := make(map[string]json.RawMessage, len(cfg.Extra)+10)
	for key, value := range cfg.Extra {
		merged[key] = value
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	var known map[string]json.RawMessage
	if err := json.Unmarshal(data, &known); err != nil {
		return fmt.Errorf("re-encoding config: %w", err)
	}
	for key, value := range known {
		merged[key] = value
	}
	out, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	dir := Dir(repoRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), append(out, '\n'), 0o644); err != nil { //nolint:gosec // G306: config files don't contain secrets
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
