package openrouter

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/transcript"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/types"
)

// maxPromptSegments bounds the transcript sent for scene analysis.
const maxPromptSegments = 600

const distinctGap = 2 * time.Second

var sceneSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"clips": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"start_sec": map[string]any{"type": "number"},
					"end_sec":   map[string]any{"type": "number"},
					"score":     map[string]any{"type": "number"},
					"reason":    map[string]any{"type": "string"},
				},
				"required": []string{"start_sec", "end_sec", "score", "reason"},
			},
		},
	},
	"required": []string{"clips"},
}

type sceneClip struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Score    float64 `json:"score"`
	Reason   string  `json:"reason"`
}

// SuggestClips asks the model for up to clipsN self-contained moments. The
// result is advisory and may be empty.
func (a *Adapter) SuggestClips(
	ctx context.Context,
	tr types.Transcript,
	clipsN int,
	minClip, maxClip time.Duration,
) ([]types.Candidate, error) {
	if clipsN <= 0 || maxClip <= 0 || maxClip < minClip || len(tr.Segments) == 0 {
		return nil, nil
	}
	prompt, err := buildScenePrompt(tr, clipsN, minClip, maxClip)
	if err != nil {
		return nil, err
	}
	clean, err := a.complete(ctx, "scene analysis", prompt, sceneSchema)
	if err != nil {
		return nil, err
	}
	var out struct {
		Clips []sceneClip `json:"clips"`
	}
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, failure.Wrap(failure.ErrProvider, "openrouter scene analysis", fmt.Errorf("decode clips: %w", err))
	}
	return sceneCandidates(transcript.FromTranscript(tr), out.Clips, clipsN, minClip, maxClip), nil
}

func buildScenePrompt(tr types.Transcript, clipsN int, minClip, maxClip time.Duration) (string, error) {
	type line struct {
		StartSec float64 `json:"start_sec"`
		EndSec   float64 `json:"end_sec"`
		Text     string  `json:"text"`
	}
	lines := make([]line, 0, min(len(tr.Segments), maxPromptSegments))
	for _, s := range tr.Segments {
		if len(lines) >= maxPromptSegments {
			break
		}
		txt := strings.TrimSpace(s.Text)
		if txt == "" {
			continue
		}
		lines = append(lines, line{StartSec: s.Start, EndSec: s.End, Text: txt})
	}
	b, err := json.Marshal(map[string]any{
		"maxClips":   clipsN,
		"minSec":     minClip.Seconds(),
		"maxSec":     maxClip.Seconds(),
		"transcript": lines,
	})
	if err != nil {
		return "", fmt.Errorf("marshal prompt: %w", err)
	}
	return "Find the most engaging, self-contained moments in this transcript for short vertical videos. " +
		"Return strictly valid JSON (no markdown, no code fences) matching the provided schema. " +
		"Clips must not overlap and there can be anywhere from 0 to maxClips of them. " +
		"Each clip duration must be between minSec and maxSec. " +
		"Score each clip from 0 to 1. Start cleanly and end on a complete thought." +
		"\n\nTranscript JSON:\n" + string(b), nil
}

// sceneCandidates clamps model output to the duration bounds, moves the end to
// a natural stop and drops suggestions that crowd a better one.
func sceneCandidates(ix *transcript.Index, clips []sceneClip, clipsN int, minClip, maxClip time.Duration) []types.Candidate {
	slices.SortStableFunc(clips, func(a, b sceneClip) int { return cmp.Compare(b.Score, a.Score) })

	out := make([]types.Candidate, 0, min(len(clips), clipsN))
	for _, c := range clips {
		if len(out) >= clipsN {
			break
		}
		if math.IsNaN(c.StartSec) || math.IsNaN(c.EndSec) {
			continue
		}
		st, en, ok := normalizeClipDur(ix, seconds(max(c.StartSec, 0)), seconds(c.EndSec), minClip, maxClip)
		if !ok || !isDistinct(out, st, en, distinctGap) {
			continue
		}
		score := c.Score
		if math.IsNaN(score) {
			score = 0
		}
		out = append(out, types.Candidate{
			Start:     st,
			End:       en,
			Text:      ix.Text(st, en),
			Score:     min(max(score, 0), 1),
			Rationale: strings.TrimSpace(c.Reason),
			Advisory:  true,
		})
	}
	return out
}

func normalizeClipDur(ix *transcript.Index, st, en, minClip, maxClip time.Duration) (time.Duration, time.Duration, bool) {
	if en <= st {
		return 0, 0, false
	}
	maxEnd := st + maxClip
	minEnd := st + minClip
	en = min(en, maxEnd)
	if en < minEnd {
		return 0, 0, false
	}
	en = min(naturalEnd(ix, st, en, minEnd, maxEnd), maxEnd)
	if en < minEnd {
		return 0, 0, false
	}
	return st, en, true
}

func isDistinct(existing []types.Candidate, st, en, minGap time.Duration) bool {
	for _, e := range existing {
		if st < e.End+minGap && en > e.Start-minGap {
			return false
		}
	}
	return true
}

func seconds(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }

var _ ports.SceneAnalyzer = (*Adapter)(nil)
