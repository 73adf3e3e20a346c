package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/modloc/modloc/glossary"
	"github.com/modloc/modloc/langmeta"
)

// ---------------------------------------------------------------------------
// Backend configuration
// ---------------------------------------------------------------------------

// Config configures one backend instance.
type Config struct {
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// BaseURL is the API base URL; the registration default is used when empty.
	BaseURL string
	// Model is the model identifier; the registration default is used when empty.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL. HTTP_PROXY/HTTPS_PROXY
	// are honoured when empty.
	Proxy string
	// Timeout is the per-request timeout.
	Timeout time.Duration
	// SourceLang is the source language code (default "en").
	SourceLang string
	// Glossary is passed to backends in native glossary mode as prompt
	// context. Placeholder-mode backends ignore it.
	Glossary *glossary.Glossary
	// SystemPrompt overrides DefaultSystemPrompt. {{sourceLang}} and
	// {{targetLang}} are replaced with language names.
	SystemPrompt string
	// Temperature is the sampling temperature for LLM backends.
	Temperature float64
	// Verbose enables per-request debug logging through OnLog.
	Verbose bool
	// OnLog receives debug and warning messages.
	OnLog func(format string, args ...any)
}

func (c *Config) log(format string, args ...any) {
	if c.OnLog != nil {
		c.OnLog(format, args...)
	}
}

func (c *Config) effectiveTimeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 120 * time.Second
}

// resolvedPrompt returns the system prompt with language names filled in
// and, in native glossary mode, the glossary appended.
func (c *Config) resolvedPrompt(targetLang string, mode GlossaryMode) string {
	prompt := c.SystemPrompt
	if prompt == "" {
		prompt = DefaultSystemPrompt
	}
	source := c.SourceLang
	if source == "" {
		source = "en"
	}
	prompt = strings.ReplaceAll(prompt, "{{sourceLang}}", langmeta.Resolve(source).Name)
	prompt = strings.ReplaceAll(prompt, "{{targetLang}}", langmeta.Resolve(targetLang).Name)

	if mode == GlossaryNative {
		if ctx := c.Glossary.Context(); ctx != "" {
			prompt += "\n\n" + ctx
		}
	}
	return prompt
}

// DefaultSystemPrompt instructs LLM backends to translate one game string.
const DefaultSystemPrompt = `You are a professional video game localizer translating text from a strategy game modification from {{sourceLang}} to {{targetLang}}.

TRANSLATION PRINCIPLES:
- Translate for natural, fluent {{targetLang}} as a native player would expect it, not word-for-word.
- Narrative text (events, descriptions) should read like a historical record: formal and serious.
- Tooltips, modifiers and effects should stay short and use noun phrases.
- Use the established terminology of the official {{targetLang}} release of the game.

STRICT FORMATTING RULES:
- Tokens of the form __VAR0__, __GLS0__ (any number) are placeholders. Copy them exactly, unchanged and untranslated, and keep each one exactly once.
- Preserve any remaining special codes exactly: §Y, §!, $VAR$, [Root.GetName], £icon£, \n.
- If the input looks like an identifier (e.g. political_power_gain), return it unchanged.
- Output ONLY the translated text. No quotes, no explanations, no thinking.`

// ---------------------------------------------------------------------------
// Rate limit state (global pause shared by all workers of one backend)
// ---------------------------------------------------------------------------

type rateLimitState struct {
	mu       sync.Mutex
	paused   int32 // atomic: 1 = paused
	pauseEnd time.Time
}

func (r *rateLimitState) isPaused() bool {
	return atomic.LoadInt32(&r.paused) == 1
}

func (r *rateLimitState) pause(duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseEnd = time.Now().Add(duration)
	atomic.StoreInt32(&r.paused, 1)
}

func (r *rateLimitState) unpause() {
	atomic.StoreInt32(&r.paused, 0)
}

// waitIfPaused blocks until the rate limit pause is over.
func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for r.isPaused() {
		r.mu.Lock()
		remaining := time.Until(r.pauseEnd)
		r.mu.Unlock()
		if remaining <= 0 {
			r.unpause()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(min(remaining, 100*time.Millisecond)):
		}
	}
	return nil
}

// parseRetryDelay extracts the retry delay from a 429 response: the
// Retry-After header first, then Google's RetryInfo detail. Defaults to
// 60s + 5s buffer.
func parseRetryDelay(header http.Header, body []byte) time.Duration {
	const defaultDelay = 65 * time.Second

	if ra := header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(ra)); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}
	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}
	return defaultDelay
}

// ---------------------------------------------------------------------------
// HTTP client
// ---------------------------------------------------------------------------

func newRestyClient(cfg Config) *resty.Client {
	c := resty.New().
		SetTimeout(cfg.effectiveTimeout()).
		SetHeader("Content-Type", "application/json")
	if cfg.Proxy != "" {
		c.SetProxy(cfg.Proxy)
	}
	return c
}

// Ping checks that url answers within timeout. Any HTTP response counts as
// reachable; only transport failures are errors.
func Ping(ctx context.Context, url string, timeout time.Duration, proxy string) error {
	_, err := newRestyClient(Config{Timeout: timeout, Proxy: proxy}).R().
		SetContext(ctx).
		Get(url)
	return err
}

// ---------------------------------------------------------------------------
// API format types
// ---------------------------------------------------------------------------

type apiFormat int

const (
	formatOpenAIChat   apiFormat = iota // OpenAI chat/completions
	formatOllamaChat                    // Ollama /api/chat
	formatAnthropic                     // Anthropic messages
	formatGeminiNative                  // Google Gemini generateContent
)

// ---------------------------------------------------------------------------
// Request builders for each API format
// ---------------------------------------------------------------------------

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	req := struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature"`
		Stream      bool          `json:"stream"`
	}{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}
	return json.Marshal(req)
}

func buildOllamaChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	req := struct {
		Model    string         `json:"model"`
		Messages []chatMessage  `json:"messages"`
		Stream   bool           `json:"stream"`
		Options  map[string]any `json:"options"`
	}{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Options: map[string]any{"temperature": temperature},
	}
	return json.Marshal(req)
}

func buildAnthropicRequest(model, systemPrompt, userPrompt string) ([]byte, error) {
	req := struct {
		Model     string        `json:"model"`
		MaxTokens int           `json:"max_tokens"`
		System    string        `json:"system,omitempty"`
		Messages  []chatMessage `json:"messages"`
	}{
		Model:     model,
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages:  []chatMessage{{Role: "user", Content: userPrompt}},
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents:         []content{{Role: "user", Parts: []part{{Text: userPrompt}}}},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// ---------------------------------------------------------------------------
// Response parsing (multi-format)
// ---------------------------------------------------------------------------

// extractResponseText tries all known response formats and returns the text.
func extractResponseText(body []byte) (string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}

	if errObj, ok := raw["error"]; ok && errObj != nil {
		if errMap, ok := errObj.(map[string]any); ok {
			if msg, ok := errMap["message"].(string); ok {
				return "", fmt.Errorf("API error: %s", msg)
			}
		}
		return "", fmt.Errorf("API error: %v", errObj)
	}

	// 1. OpenAI chat format: choices[0].message.content
	if choices, ok := raw["choices"].([]any); ok && len(choices) > 0 {
		if choice, ok := choices[0].(map[string]any); ok {
			if message, ok := choice["message"].(map[string]any); ok {
				if content, ok := message["content"].(string); ok {
					return content, nil
				}
			}
		}
	}

	// 2. Ollama chat format: message.content
	if message, ok := raw["message"].(map[string]any); ok {
		if content, ok := message["content"].(string); ok {
			return content, nil
		}
	}

	// 3. Gemini format: candidates[0].content.parts[*].text
	if candidates, ok := raw["candidates"].([]any); ok && len(candidates) > 0 {
		if candidate, ok := candidates[0].(map[string]any); ok {
			if content, ok := candidate["content"].(map[string]any); ok {
				if parts, ok := content["parts"].([]any); ok {
					var b strings.Builder
					for _, p := range parts {
						if part, ok := p.(map[string]any); ok {
							if text, ok := part["text"].(string); ok {
								b.WriteString(text)
							}
						}
					}
					if b.Len() > 0 {
						return b.String(), nil
					}
				}
			}
		}
	}

	// 4. Anthropic format: content[].type=="text" -> .text
	if contentArr, ok := raw["content"].([]any); ok {
		for _, c := range contentArr {
			if block, ok := c.(map[string]any); ok && block["type"] == "text" {
				if text, ok := block["text"].(string); ok {
					return text, nil
				}
			}
		}
	}

	// 5. Ollama generate format: response
	if resp, ok := raw["response"].(string); ok {
		return resp, nil
	}

	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

var thinkBlock = regexp.MustCompile(`(?is)<think>.*?</think>`)

// cleanThinking removes <think>...</think> blocks emitted by reasoning
// models and trims the result.
func cleanThinking(text string) string {
	return strings.TrimSpace(thinkBlock.ReplaceAllString(text, ""))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// ---------------------------------------------------------------------------
// LLM chat backend
// ---------------------------------------------------------------------------

// chatBackend talks to one of the chat-style LLM APIs.
type chatBackend struct {
	id     string
	format apiFormat
	mode   GlossaryMode
	cfg    Config
	client *resty.Client
	rl     *rateLimitState
}

func newChatBackend(id string, format apiFormat, mode GlossaryMode, cfg Config) *chatBackend {
	return &chatBackend{
		id:     id,
		format: format,
		mode:   mode,
		cfg:    cfg,
		client: newRestyClient(cfg),
		rl:     &rateLimitState{},
	}
}

func (b *chatBackend) GlossaryMode() GlossaryMode { return b.mode }

func (b *chatBackend) base() string {
	return strings.TrimRight(b.cfg.BaseURL, "/")
}

// buildRequest constructs the endpoint, headers, and body for a call.
func (b *chatBackend) buildRequest(systemPrompt, userPrompt string) (string, map[string]string, []byte, error) {
	headers := map[string]string{}
	var endpoint string
	var body []byte
	var err error

	switch b.format {
	case formatOllamaChat:
		endpoint = b.base() + "/api/chat"
		body, err = buildOllamaChatRequest(b.cfg.Model, systemPrompt, userPrompt, b.cfg.Temperature)
	case formatAnthropic:
		endpoint = b.base() + "/messages"
		headers["x-api-key"] = b.cfg.APIKey
		headers["anthropic-version"] = "2023-06-01"
		body, err = buildAnthropicRequest(b.cfg.Model, systemPrompt, userPrompt)
	case formatGeminiNative:
		endpoint = fmt.Sprintf("%s/models/%s:generateContent", b.base(), b.cfg.Model)
		headers["x-goog-api-key"] = b.cfg.APIKey
		body, err = buildGeminiRequest(systemPrompt, userPrompt, b.cfg.Temperature)
	default:
		endpoint = b.base() + "/chat/completions"
		if b.cfg.APIKey != "" {
			headers["Authorization"] = "Bearer " + b.cfg.APIKey
		}
		body, err = buildOpenAIChatRequest(b.cfg.Model, systemPrompt, userPrompt, b.cfg.Temperature)
	}
	return endpoint, headers, body, err
}

// Translate sends one string to the API. Retrying is the caller's job; a
// 429 pauses every worker sharing this backend for the advertised delay.
func (b *chatBackend) Translate(ctx context.Context, text, targetLang string) (string, error) {
	if err := b.rl.waitIfPaused(ctx); err != nil {
		return "", err
	}

	endpoint, headers, body, err := b.buildRequest(b.cfg.resolvedPrompt(targetLang, b.mode), text)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	if b.cfg.Verbose {
		b.cfg.log("[DEBUG] %s: POST %s", b.id, endpoint)
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(endpoint)
	if err != nil {
		return "", fmt.Errorf("%s request failed: %w", b.id, err)
	}

	if resp.StatusCode() == http.StatusTooManyRequests {
		delay := parseRetryDelay(resp.Header(), resp.Body())
		b.rl.pause(delay)
		b.cfg.log("[WARN] %s rate limited, pausing for %v", b.id, delay)
		return "", fmt.Errorf("%s rate limited: %s", b.id, truncate(resp.String(), 200))
	}
	if resp.IsError() {
		return "", fmt.Errorf("%s returned status %d: %s", b.id, resp.StatusCode(), truncate(resp.String(), 500))
	}

	out, err := extractResponseText(resp.Body())
	if err != nil {
		return "", err
	}
	out = cleanThinking(out)
	if out == "" {
		return "", ErrEmptyResponse
	}
	return out, nil
}

// Models lists the models the API offers.
func (b *chatBackend) Models(ctx context.Context) ([]string, error) {
	req := b.client.R().SetContext(ctx)
	var endpoint string

	switch b.format {
	case formatOllamaChat:
		endpoint = b.base() + "/api/tags"
	case formatAnthropic:
		endpoint = b.base() + "/models"
		req.SetHeader("x-api-key", b.cfg.APIKey).SetHeader("anthropic-version", "2023-06-01")
	case formatGeminiNative:
		endpoint = b.base() + "/models"
		req.SetHeader("x-goog-api-key", b.cfg.APIKey)
	default:
		endpoint = b.base() + "/models"
		if b.cfg.APIKey != "" {
			req.SetHeader("Authorization", "Bearer "+b.cfg.APIKey)
		}
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	resp, err := req.SetResult(&list).Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%s list models: %w", b.id, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%s list models: %s; body: %s", b.id, resp.Status(), truncate(resp.String(), 300))
	}

	var out []string
	for _, d := range list.Data {
		out = append(out, d.ID)
	}
	for _, m := range list.Models {
		out = append(out, strings.TrimPrefix(m.Name, "models/"))
	}
	return out, nil
}
