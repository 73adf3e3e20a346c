// Package translate implements the translation capability used by the
// pipeline: the Translator contract, the backends that fulfil it over HTTP
// (OpenAI-compatible chat APIs, Ollama, Anthropic, Gemini and the free
// Google web endpoint), retry with exponential backoff, and markup-safe
// translation through the guard package.
package translate

import (
	"context"
	"errors"
)

// ---------------------------------------------------------------------------
// Backend IDs
// ---------------------------------------------------------------------------

const (
	BackendOpenAI       = "openai"
	BackendGroq         = "groq"
	BackendCustomOpenAI = "custom-openai"
	BackendOllama       = "ollama"
	BackendClaude       = "claude"
	BackendGemini       = "gemini"
	BackendGoogle       = "google"
)

// ---------------------------------------------------------------------------
// Contract
// ---------------------------------------------------------------------------

// Translator performs raw text-to-text translation. Implementations return
// an error on any transient or backend failure; callers retry.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// GlossaryMode says how a backend honours the glossary.
type GlossaryMode int

const (
	// GlossaryPlaceholder: glossary terms are swapped for placeholders bound
	// to the target term before the text reaches the backend.
	GlossaryPlaceholder GlossaryMode = iota
	// GlossaryNative: the glossary is handed to the backend as prompt
	// context and the text is sent with its source terms intact.
	GlossaryNative
)

func (m GlossaryMode) String() string {
	if m == GlossaryNative {
		return "native"
	}
	return "placeholder"
}

// Backend is a Translator that declares its glossary mode. The mode is
// fixed for the lifetime of the backend.
type Backend interface {
	Translator
	GlossaryMode() GlossaryMode
}

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	Models(ctx context.Context) ([]string, error)
}

// Profile bounds how a backend is driven: entries per batch, and how many
// batches may run at once.
type Profile struct {
	BatchSize            int `yaml:"batch_size"`
	MaxConcurrentBatches int `yaml:"max_concurrent"`
}

// Normalize returns the profile with both fields at least 1.
func (p Profile) Normalize() Profile {
	if p.BatchSize < 1 {
		p.BatchSize = 1
	}
	if p.MaxConcurrentBatches < 1 {
		p.MaxConcurrentBatches = 1
	}
	return p
}

// Merge returns p with any positive field of o applied on top.
func (p Profile) Merge(o Profile) Profile {
	if o.BatchSize > 0 {
		p.BatchSize = o.BatchSize
	}
	if o.MaxConcurrentBatches > 0 {
		p.MaxConcurrentBatches = o.MaxConcurrentBatches
	}
	return p
}

// Built-in profiles.
var (
	// ProfileLocal suits a single local model server.
	ProfileLocal = Profile{BatchSize: 1, MaxConcurrentBatches: 1}
	// ProfileRateLimited suits free endpoints that throttle aggressively.
	ProfileRateLimited = Profile{BatchSize: 20, MaxConcurrentBatches: 1}
	// ProfileCloud suits paid cloud LLM APIs.
	ProfileCloud = Profile{BatchSize: 10, MaxConcurrentBatches: 5}
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	// ErrRetriesExhausted wraps the last backend error once every attempt
	// has failed.
	ErrRetriesExhausted = errors.New("translation retries exhausted")
	// ErrUnknownBackend is returned for an unregistered backend ID.
	ErrUnknownBackend = errors.New("unknown translation backend")
	// ErrMissingAPIKey is returned when a backend that needs a key has none.
	ErrMissingAPIKey = errors.New("missing API key")
	// ErrEmptyResponse is returned when a backend answers with no text.
	ErrEmptyResponse = errors.New("empty translation response")
)
