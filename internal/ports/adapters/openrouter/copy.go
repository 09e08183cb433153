package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/types"
)

// Platforms that get a dedicated description.
var Platforms = []string{"tiktok", "instagram", "youtube"}

const maxExcerptRunes = 4000

func copySchema() map[string]any {
	desc := map[string]any{}
	for _, p := range Platforms {
		desc[p] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"titles": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"descriptions": map[string]any{
				"type":       "object",
				"properties": desc,
				"required":   Platforms,
			},
			"tags": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []string{"titles", "descriptions", "tags"},
	}
}

// WriteCopy suggests titles (best first), per-platform descriptions and tags
// for a clip excerpt, in the excerpt's language.
func (a *Adapter) WriteCopy(ctx context.Context, excerpt string) (types.Copy, error) {
	excerpt = truncate(strings.TrimSpace(excerpt), maxExcerptRunes)
	if excerpt == "" {
		return types.Copy{}, failure.Wrap(failure.ErrInput, "write copy", fmt.Errorf("empty excerpt"))
	}
	prompt := "Write social media copy for a short vertical video clip. " +
		"Use the language of the excerpt. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
		"titles: up to 5 punchy on-screen titles, best first, each under 60 characters. " +
		"descriptions: one caption per platform (" + strings.Join(Platforms, ", ") + "). " +
		"tags: up to 8 hashtags without the # sign." +
		"\n\nExcerpt:\n" + excerpt

	clean, err := a.complete(ctx, "copy", prompt, copySchema())
	if err != nil {
		return types.Copy{}, err
	}
	return parseCopy(clean)
}

func parseCopy(clean string) (types.Copy, error) {
	var raw struct {
		Titles       []string          `json:"titles"`
		Descriptions map[string]string `json:"descriptions"`
		Tags         []string          `json:"tags"`
	}
	if err := json.Unmarshal([]byte(clean), &raw); err != nil {
		return types.Copy{}, failure.Wrap(failure.ErrProvider, "openrouter copy", fmt.Errorf("decode copy: %w", err))
	}
	out := types.Copy{Descriptions: map[string]string{}}
	for _, t := range raw.Titles {
		if t = strings.TrimSpace(t); t != "" {
			out.Titles = append(out.Titles, t)
		}
	}
	for _, p := range Platforms {
		if d := strings.TrimSpace(raw.Descriptions[p]); d != "" {
			out.Descriptions[p] = d
		}
	}
	seen := map[string]bool{}
	for _, t := range raw.Tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" || seen[strings.ToLower(t)] {
			continue
		}
		seen[strings.ToLower(t)] = true
		out.Tags = append(out.Tags, t)
	}
	return out, nil
}

var _ ports.CopyWriter = (*Adapter)(nil)
