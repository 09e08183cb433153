// Package openrouter talks to OpenRouter chat completions for advisory scene
// suggestions and per-clip social copy. Every failure it returns is a
// provider error.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/forPelevin/vertclip/internal/failure"
)

const defaultModel = "anthropic/claude-3.5-sonnet"

type Adapter struct {
	key     string
	model   string
	baseURL string
	client  *http.Client
}

func New(apiKey, model, baseURL string) *Adapter {
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	return &Adapter{
		key:     apiKey,
		model:   model,
		baseURL: normalizeBaseURL(baseURL),
		client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (a *Adapter) WithHTTPClient(c *http.Client) *Adapter {
	a.client = c
	return a
}

// complete sends one user prompt with a strict JSON schema and returns the
// JSON object found in the reply. Callers bound the call with ctx.
func (a *Adapter) complete(ctx context.Context, op, prompt string, schema map[string]any) (string, error) {
	payload := map[string]any{
		"model":  a.model,
		"stream": false,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   "vertclip_" + strings.ReplaceAll(op, " ", "_"),
				"schema": schema,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+a.key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", failure.Wrap(failure.ErrProvider, "openrouter "+op, errors.New(redactSecrets(err.Error(), a.key)))
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rb, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if readErr != nil {
			return "", failure.Wrap(failure.ErrProvider, "openrouter "+op,
				fmt.Errorf("status %d and read body failed: %v", resp.StatusCode, readErr))
		}
		return "", failure.Wrap(failure.ErrProvider, "openrouter "+op,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(redactSecrets(string(rb), a.key), 400)))
	}

	var raw struct {
		Choices []struct {
			Message struct {
				Content any `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", failure.Wrap(failure.ErrProvider, "openrouter "+op, fmt.Errorf("decode response: %w", err))
	}
	if len(raw.Choices) == 0 {
		return "", failure.Wrap(failure.ErrProvider, "openrouter "+op, errors.New("no choices"))
	}
	content, err := messageContentToString(raw.Choices[0].Message.Content)
	if err != nil {
		return "", failure.Wrap(failure.ErrProvider, "openrouter "+op, err)
	}
	clean, err := extractJSONObject(content)
	if err != nil {
		return "", failure.Wrap(failure.ErrProvider, "openrouter "+op, err)
	}
	return clean, nil
}

func messageContentToString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []any:
		// Some providers return an array of {type,text} parts.
		var b strings.Builder
		for _, it := range x {
			m, ok := it.(map[string]any)
			if !ok {
				continue
			}
			if t, ok := m["text"].(string); ok {
				b.WriteString(t)
			}
		}
		s := b.String()
		if strings.TrimSpace(s) == "" {
			return "", errors.New("empty content")
		}
		return s, nil
	default:
		return "", fmt.Errorf("unexpected content type %T", v)
	}
}

func extractJSONObject(s string) (string, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return "", errors.New("empty content")
	}

	if strings.HasPrefix(t, "```") {
		if i := strings.Index(t, "\n"); i >= 0 {
			t = t[i+1:]
		}
		if j := strings.LastIndex(t, "```"); j >= 0 {
			t = t[:j]
		}
		t = strings.TrimSpace(t)
	}

	// Best-effort: take the outermost JSON object.
	start := strings.Index(t, "{")
	end := strings.LastIndex(t, "}")
	if start >= 0 && end > start {
		return t[start : end+1], nil
	}
	return "", fmt.Errorf("could not locate JSON object in: %q", truncate(t, 200))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var (
	bearerTokenRE = regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+\b`)
	authHeaderRE  = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*)([^\n\r,;]+)`)
	apiKeyFieldRE = regexp.MustCompile(`(?i)(api[_-]?key\s*[:=]\s*)([^\n\r,;]+)`)
)

func redactSecrets(s, apiKey string) string {
	if s == "" {
		return s
	}
	out := s
	if apiKey != "" {
		out = strings.ReplaceAll(out, apiKey, "[REDACTED]")
	}
	out = bearerTokenRE.ReplaceAllString(out, "Bearer [REDACTED]")
	out = authHeaderRE.ReplaceAllString(out, "${1}[REDACTED]")
	out = apiKeyFieldRE.ReplaceAllString(out, "${1}[REDACTED]")
	return out
}
