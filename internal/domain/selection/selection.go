// Package selection turns ranked, possibly overlapping candidates into an
// ordered list of non-overlapping clips.
//
// Selection is greedy by descending score: a candidate is accepted when it
// does not overlap any clip accepted before it. This approximates weighted
// interval scheduling; exact optimisation buys nothing because scores are
// heuristic estimates.
package selection

import (
	"fmt"
	"sort"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/highlights"
	"github.com/forPelevin/vertclip/internal/types"
)

// DefaultMinTolerancePercent is the configured default for how much shorter
// than the minimum duration a candidate may run. Candidates snapped onto
// pauses often lose a second or two at the edges.
const DefaultMinTolerancePercent = 20

type Options struct {
	ClipsN  int
	MinClip time.Duration
	MaxClip time.Duration
	Source  string
	// MinTolerancePercent applies to every candidate. Zero keeps MinClip
	// strict; values are clamped to [0,100].
	MinTolerancePercent int
}

// Select returns at most ClipsN clips ordered by start time. An empty result is
// not an error: the caller decides whether to fall back to the whole video.
func Select(cands []types.Candidate, opts Options) []types.SelectedClip {
	if opts.ClipsN <= 0 || len(cands) == 0 {
		return nil
	}
	ranked := make([]types.Candidate, len(cands))
	copy(ranked, cands)
	highlights.SortRanked(ranked)

	minDur := minDuration(opts)
	accepted := make([]types.Candidate, 0, opts.ClipsN)
	for _, c := range ranked {
		if len(accepted) >= opts.ClipsN {
			break
		}
		if c.Start < 0 || c.End <= c.Start {
			continue
		}
		d := c.End - c.Start
		if opts.MaxClip > 0 && d > opts.MaxClip {
			continue
		}
		if d < minDur {
			continue
		}
		if overlapsAny(accepted, c) {
			continue
		}
		accepted = append(accepted, c)
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	out := make([]types.SelectedClip, 0, len(accepted))
	for i, c := range accepted {
		out = append(out, types.SelectedClip{
			ID:        ClipID(i),
			Start:     c.Start,
			End:       c.End,
			Source:    opts.Source,
			Score:     c.Score,
			Text:      c.Text,
			Rationale: c.Rationale,
		})
	}
	return out
}

// WholeVideo is the no-AI fallback: one clip spanning the entire source.
func WholeVideo(source string, duration time.Duration) []types.SelectedClip {
	if duration <= 0 {
		return nil
	}
	return []types.SelectedClip{{ID: ClipID(0), Start: 0, End: duration, Source: source}}
}

func ClipID(i int) string { return fmt.Sprintf("%03d", i+1) }

// Overlaps reports whether two ranges share any time. Touching ranges do not.
func Overlaps(aStart, aEnd, bStart, bEnd time.Duration) bool {
	return aStart < bEnd && bStart < aEnd
}

func overlapsAny(accepted []types.Candidate, c types.Candidate) bool {
	for _, a := range accepted {
		if Overlaps(a.Start, a.End, c.Start, c.End) {
			return true
		}
	}
	return false
}

func minDuration(opts Options) time.Duration {
	if opts.MinClip <= 0 {
		return 0
	}
	pct := min(max(opts.MinTolerancePercent, 0), 100)
	return opts.MinClip - opts.MinClip*time.Duration(pct)/100
}
