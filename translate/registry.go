package translate

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registration describes a backend that can be constructed by ID.
type Registration struct {
	ID   string
	Name string
	// Mode is the glossary mode of every backend built from this entry.
	Mode GlossaryMode
	// Profile is the default batching profile.
	Profile Profile
	// BaseURL and Model are the defaults applied to an empty Config.
	BaseURL string
	Model   string
	Timeout time.Duration
	// RequiresKey rejects a Config without an API key.
	RequiresKey bool
	// EnvKey names the provider's conventional API key variable.
	EnvKey string
	New    func(cfg Config) (Backend, error)
}

// Registry holds named backend registrations.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Registration
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Registration)}
}

// Register adds a registration. IDs must be unique.
func (r *Registry) Register(reg Registration) error {
	if reg.ID == "" || reg.New == nil {
		return fmt.Errorf("invalid registration %q: ID and constructor are required", reg.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.items[reg.ID]; dup {
		return fmt.Errorf("backend %q already registered", reg.ID)
	}
	r.items[reg.ID] = reg
	return nil
}

// Get returns the registration for id.
func (r *Registry) Get(id string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.items[id]
	return reg, ok
}

// IDs returns all registered IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// New builds the backend registered under id. Empty Config fields take the
// registration defaults.
func (r *Registry) New(id string, cfg Config) (Backend, Registration, error) {
	reg, ok := r.Get(id)
	if !ok {
		return nil, Registration{}, fmt.Errorf("%w: %q", ErrUnknownBackend, id)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = reg.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = reg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = reg.Timeout
	}
	if reg.RequiresKey && cfg.APIKey == "" {
		if reg.EnvKey != "" {
			return nil, reg, fmt.Errorf("%w for %s (set %s or run 'modloc auth set %s')", ErrMissingAPIKey, reg.Name, reg.EnvKey, reg.ID)
		}
		return nil, reg, fmt.Errorf("%w for %s", ErrMissingAPIKey, reg.Name)
	}
	if cfg.BaseURL == "" {
		return nil, reg, fmt.Errorf("backend %s requires a base URL", reg.ID)
	}
	b, err := reg.New(cfg)
	if err != nil {
		return nil, reg, fmt.Errorf("creating %s backend: %w", reg.ID, err)
	}
	return b, reg, nil
}

// DefaultRegistry returns a registry with every built-in backend.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	chat := func(id string, format apiFormat, mode GlossaryMode) func(Config) (Backend, error) {
		return func(cfg Config) (Backend, error) {
			return newChatBackend(id, format, mode, cfg), nil
		}
	}

	builtins := []Registration{
		{
			ID: BackendOpenAI, Name: "OpenAI",
			Mode: GlossaryNative, Profile: ProfileCloud,
			BaseURL: "https://api.openai.com/v1", Model: "gpt-4o-mini",
			Timeout: 60 * time.Second, RequiresKey: true, EnvKey: "OPENAI_API_KEY",
			New: chat(BackendOpenAI, formatOpenAIChat, GlossaryNative),
		},
		{
			ID: BackendGroq, Name: "Groq",
			Mode: GlossaryNative, Profile: ProfileCloud,
			BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-versatile",
			Timeout: 60 * time.Second, RequiresKey: true, EnvKey: "GROQ_API_KEY",
			New: chat(BackendGroq, formatOpenAIChat, GlossaryNative),
		},
		{
			ID: BackendCustomOpenAI, Name: "Custom OpenAI-compatible",
			Mode: GlossaryNative, Profile: ProfileCloud,
			Timeout: 120 * time.Second,
			New:     chat(BackendCustomOpenAI, formatOpenAIChat, GlossaryNative),
		},
		{
			ID: BackendOllama, Name: "Ollama",
			Mode: GlossaryNative, Profile: ProfileLocal,
			BaseURL: "http://localhost:11434", Model: "gemma2",
			Timeout: 300 * time.Second,
			New:     chat(BackendOllama, formatOllamaChat, GlossaryNative),
		},
		{
			ID: BackendClaude, Name: "Anthropic Claude",
			Mode: GlossaryPlaceholder, Profile: ProfileCloud,
			BaseURL: "https://api.anthropic.com/v1", Model: "claude-3-5-sonnet-20241022",
			Timeout: 60 * time.Second, RequiresKey: true, EnvKey: "ANTHROPIC_API_KEY",
			New: chat(BackendClaude, formatAnthropic, GlossaryPlaceholder),
		},
		{
			ID: BackendGemini, Name: "Google Gemini",
			Mode: GlossaryPlaceholder, Profile: ProfileCloud,
			BaseURL: "https://generativelanguage.googleapis.com/v1beta", Model: "gemini-1.5-flash",
			Timeout: 60 * time.Second, RequiresKey: true, EnvKey: "GEMINI_API_KEY",
			New: chat(BackendGemini, formatGeminiNative, GlossaryPlaceholder),
		},
		{
			ID: BackendGoogle, Name: "Google Translate (free)",
			Mode: GlossaryPlaceholder, Profile: ProfileRateLimited,
			BaseURL: "https://translate.googleapis.com",
			Timeout: 30 * time.Second,
			New: func(cfg Config) (Backend, error) {
				return newGoogleBackend(cfg), nil
			},
		},
	}
	for _, reg := range builtins {
		if err := r.Register(reg); err != nil {
			panic(err)
		}
	}
	return r
}
