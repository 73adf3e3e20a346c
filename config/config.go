// Package config loads the .modloc.yaml configuration file.
//
// A .modloc.yaml file in the working directory supplies defaults for the
// translate command: languages, backend, batching profiles, retry policy,
// glossary and translation memory. Command-line flags override it. A .env
// file next to it is loaded into the environment for API keys.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/modloc/modloc/translate"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the top-level .modloc.yaml structure.
type File struct {
	// SourceLang is the source language code (default "en").
	SourceLang string `yaml:"source_lang,omitempty"`
	// TargetLang is the target language code (default "ko").
	TargetLang string `yaml:"target_lang,omitempty"`
	// Backend is the translation backend ID (default "google").
	Backend string `yaml:"backend,omitempty"`
	Model   string `yaml:"model,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Proxy   string `yaml:"proxy,omitempty"`
	// Timeout is the per-request timeout, e.g. "90s".
	Timeout time.Duration `yaml:"timeout,omitempty"`
	// Prompt overrides the LLM system prompt.
	Prompt      string   `yaml:"prompt,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	// Glossary is the path to a glossary file (YAML or JSON).
	Glossary string `yaml:"glossary,omitempty"`
	// OutputDir is where translated localisation files are written.
	OutputDir string `yaml:"output_dir,omitempty"`

	Retry    Retry                        `yaml:"retry,omitempty"`
	Profiles map[string]translate.Profile `yaml:"profiles,omitempty"`
	Memory   Memory                       `yaml:"memory,omitempty"`

	// path is the file this configuration was read from ("" for defaults).
	path string
}

// Retry configures the per-entry retry policy.
type Retry struct {
	Attempts  int           `yaml:"attempts,omitempty"`
	BaseDelay time.Duration `yaml:"base_delay,omitempty"`
}

// Memory configures the translation memory.
type Memory struct {
	// GamePath is the base game (or any reference mod) directory whose
	// localisation/ folder provides official translations.
	GamePath string `yaml:"game_path,omitempty"`
	// Cache is the SQLite snapshot cache path; empty uses the data dir.
	Cache string `yaml:"cache,omitempty"`
	// Disabled turns the memory off even when GamePath is set.
	Disabled  bool `yaml:"disabled,omitempty"`
	MinLength int  `yaml:"min_length,omitempty"`
}

// Defaults.
const (
	DefaultSourceLang  = "en"
	DefaultTargetLang  = "ko"
	DefaultBackend     = translate.BackendGoogle
	DefaultTemperature = 0.3
)

// FileName is the default config file name.
const FileName = ".modloc.yaml"

// Default returns the configuration used when no file exists.
func Default() *File {
	f := &File{}
	f.applyDefaults()
	return f
}

func (f *File) applyDefaults() {
	if f.SourceLang == "" {
		f.SourceLang = DefaultSourceLang
	}
	if f.TargetLang == "" {
		f.TargetLang = DefaultTargetLang
	}
	if f.Backend == "" {
		f.Backend = DefaultBackend
	}
	if f.Retry.Attempts == 0 {
		f.Retry.Attempts = 3
	}
	if f.Retry.BaseDelay == 0 {
		f.Retry.BaseDelay = time.Second
	}
	if f.Memory.MinLength == 0 {
		f.Memory.MinLength = 2
	}
}

// Path returns the file the configuration was loaded from, or "".
func (f *File) Path() string {
	return f.path
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// LoadFile loads and validates .modloc.yaml from dir. A missing file yields
// the defaults. Relative paths in the file are resolved against dir.
func LoadFile(dir string) (*File, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.path = path
	f.applyDefaults()

	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	f.Glossary = resolvePath(dir, f.Glossary)
	f.OutputDir = resolvePath(dir, f.OutputDir)
	f.Memory.GamePath = resolvePath(dir, f.Memory.GamePath)
	f.Memory.Cache = resolvePath(dir, f.Memory.Cache)
	return &f, nil
}

func (f *File) validate() error {
	if f.Retry.Attempts < 0 {
		return fmt.Errorf("retry.attempts must not be negative (got %d)", f.Retry.Attempts)
	}
	if f.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative (got %s)", f.Retry.BaseDelay)
	}
	if f.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative (got %s)", f.Timeout)
	}
	if f.Temperature != nil && (*f.Temperature < 0 || *f.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2 (got %v)", *f.Temperature)
	}
	if strings.EqualFold(f.SourceLang, f.TargetLang) {
		return fmt.Errorf("source_lang and target_lang are both %q", f.SourceLang)
	}
	for name, p := range f.Profiles {
		if p.BatchSize < 0 || p.MaxConcurrentBatches < 0 {
			return fmt.Errorf("profiles.%s: values must not be negative", name)
		}
	}
	return nil
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	if strings.HasPrefix(p, "~"+string(filepath.Separator)) || p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return filepath.Join(dir, p)
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// EnvAPIKey is the backend-independent API key variable.
const EnvAPIKey = "MODLOC_API_KEY"

// LoadEnv loads dir/.env into the process environment. Variables already
// set are not overridden; a missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides file values with MODLOC_* environment variables.
func (f *File) ApplyEnv() {
	overrides := []struct {
		env string
		dst *string
	}{
		{"MODLOC_BACKEND", &f.Backend},
		{"MODLOC_MODEL", &f.Model},
		{"MODLOC_BASE_URL", &f.BaseURL},
		{"MODLOC_PROXY", &f.Proxy},
		{"MODLOC_SOURCE_LANG", &f.SourceLang},
		{"MODLOC_TARGET_LANG", &f.TargetLang},
		{"MODLOC_GAME_PATH", &f.Memory.GamePath},
	}
	for _, o := range overrides {
		if v := strings.TrimSpace(os.Getenv(o.env)); v != "" {
			*o.dst = v
		}
	}
}

// ResolveAPIKey picks the API key in priority order: the explicit flag,
// MODLOC_API_KEY, the backend's own variable (envKey), then the stored
// credential.
func ResolveAPIKey(flag, envKey string, stored func() string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		return v
	}
	if envKey != "" {
		if v := os.Getenv(envKey); v != "" {
			return v
		}
	}
	if stored != nil {
		return stored()
	}
	return ""
}

// ---------------------------------------------------------------------------
// Derived settings
// ---------------------------------------------------------------------------

// ProfileFor returns base with any configured override for backend applied.
func (f *File) ProfileFor(backend string, base translate.Profile) translate.Profile {
	if p, ok := f.Profiles[backend]; ok {
		base = base.Merge(p)
	}
	return base.Normalize()
}

// RetryPolicy returns the configured retry policy.
func (f *File) RetryPolicy() translate.RetryPolicy {
	return translate.RetryPolicy{Attempts: f.Retry.Attempts, BaseDelay: f.Retry.BaseDelay}
}

// EffectiveTemperature returns the configured temperature or the default.
func (f *File) EffectiveTemperature() float64 {
	if f.Temperature != nil {
		return *f.Temperature
	}
	return DefaultTemperature
}
