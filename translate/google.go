package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"

	"github.com/modloc/modloc/langmeta"
)

// googleBackend uses the free Google Translate web endpoint. It has no
// notion of a glossary, so terms must arrive as placeholders.
type googleBackend struct {
	cfg    Config
	client *resty.Client
	rl     *rateLimitState
}

func newGoogleBackend(cfg Config) *googleBackend {
	return &googleBackend{cfg: cfg, client: newRestyClient(cfg), rl: &rateLimitState{}}
}

func (b *googleBackend) GlossaryMode() GlossaryMode { return GlossaryPlaceholder }

// googleLangCode maps a language code or folder name to the code the web
// endpoint expects.
func googleLangCode(lang string) string {
	switch m := langmeta.Resolve(lang); m.Folder {
	case "braz_por":
		return "pt"
	case "simp_chinese":
		return "zh-CN"
	default:
		if code := langmeta.Code(m.Folder); code != "" {
			return code
		}
		return strings.ToLower(lang)
	}
}

func (b *googleBackend) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if err := b.rl.waitIfPaused(ctx); err != nil {
		return "", err
	}

	source := "auto"
	if b.cfg.SourceLang != "" {
		source = googleLangCode(b.cfg.SourceLang)
	}
	endpoint := strings.TrimRight(b.cfg.BaseURL, "/") + "/translate_a/single"
	if b.cfg.Verbose {
		b.cfg.log("[DEBUG] google: GET %s (%s -> %s)", endpoint, source, targetLang)
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client": "gtx",
			"sl":     source,
			"tl":     googleLangCode(targetLang),
			"dt":     "t",
			"q":      text,
		}).
		Get(endpoint)
	if err != nil {
		return "", fmt.Errorf("google request failed: %w", err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests {
		delay := parseRetryDelay(resp.Header(), resp.Body())
		b.rl.pause(delay)
		b.cfg.log("[WARN] google rate limited, pausing for %v", delay)
		return "", fmt.Errorf("google rate limited")
	}
	if resp.IsError() {
		return "", fmt.Errorf("google returned status %d: %s", resp.StatusCode(), truncate(resp.String(), 300))
	}

	out, err := parseGoogleResponse(resp.Body())
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// parseGoogleResponse joins the translated segments of the nested array
// answer: [[["seg1","src1",...],["seg2","src2",...]],...].
func parseGoogleResponse(body []byte) (string, error) {
	var raw []any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid google response: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("invalid google response: empty array")
	}
	segments, ok := raw[0].([]any)
	if !ok {
		return "", fmt.Errorf("invalid google response: %s", truncate(string(body), 200))
	}
	var b strings.Builder
	for _, s := range segments {
		seg, ok := s.([]any)
		if !ok || len(seg) == 0 {
			continue
		}
		if text, ok := seg[0].(string); ok {
			b.WriteString(text)
		}
	}
	return b.String(), nil
}
