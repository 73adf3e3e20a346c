package translate

import (
	"context"
	"strings"

	"github.com/modloc/modloc/glossary"
	"github.com/modloc/modloc/guard"
)

// Preserver wraps a Backend with retry and markup protection.
type Preserver struct {
	backend  Backend
	guard    *guard.Guard
	glossary *glossary.Glossary
	retry    RetryPolicy
}

// WithRetryAndPreservation composes a backend with a guard, an optional
// glossary and a retry policy. A nil guard uses the default markup
// patterns.
func WithRetryAndPreservation(b Backend, g *guard.Guard, gl *glossary.Glossary, retry RetryPolicy) *Preserver {
	if g == nil {
		g = guard.New()
	}
	return &Preserver{backend: b, guard: g, glossary: gl, retry: retry}
}

// Backend returns the wrapped backend.
func (p *Preserver) Backend() Backend {
	return p.backend
}

// Translate implements Translator.
func (p *Preserver) Translate(ctx context.Context, text, targetLang string) (string, error) {
	return p.TranslateWithPreservation(ctx, text, targetLang)
}

// TranslateWithPreservation translates text with engine markup protected.
//
// Markup is extracted first; glossary terms are extracted only when the
// backend works in placeholder mode. The backend call is retried per the
// retry policy. Glossary placeholders are restored before markup ones.
//
// Empty or whitespace-only text is returned as is without a backend call.
// When every attempt fails the original text is returned together with an
// error wrapping ErrRetriesExhausted, so the caller can both keep the text
// and report the failure.
func (p *Preserver) TranslateWithPreservation(ctx context.Context, text, targetLang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return text, nil
	}

	masked, markup := p.guard.Extract(text)

	var terms []guard.Extraction
	if p.glossary.Len() > 0 && p.backend.GlossaryMode() == GlossaryPlaceholder {
		masked, terms = p.guard.ExtractGlossary(masked, p.glossary)
	}

	translated, err := p.retry.Do(ctx, func(ctx context.Context) (string, error) {
		return p.backend.Translate(ctx, masked, targetLang)
	})
	if err != nil {
		return text, err
	}

	translated = guard.Restore(translated, terms)
	return guard.Restore(translated, markup), nil
}
