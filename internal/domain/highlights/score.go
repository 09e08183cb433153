package highlights

import (
	"regexp"
	"strings"
	"time"
)

var (
	reNum     = regexp.MustCompile(`\b\d+(?:[\.,]\d+)?\b`)
	reHook    = regexp.MustCompile(`(?i)\b(important|key|secret|mistake|never|always|here\s+is\s+why|remember|crazy|insane|nobody|truth)\b`)
	reHow     = regexp.MustCompile(`(?i)\b(how\s+to|step\s+\d+|first|second|third|do\s+this)\b`)
	reStepNum = regexp.MustCompile(`(?i)\bstep\s+\d+\b`)
)

// Score returns (info, hook) in range [0..10].
func Score(text string) (float64, float64) {
	t := strings.TrimSpace(text)
	if t == "" {
		return 0, 0
	}
	lower := strings.ToLower(t)

	// Lightweight heuristic on purpose: deterministic and cheap enough to run
	// over every window of a long transcript.
	info := float64(len(reNum.FindAllStringIndex(t, -1))) * 0.4
	if reHow.MatchString(lower) {
		info += 1.2
	}
	// small length penalty
	info -= 0.0006 * float64(len([]rune(t)))

	hook := float64(len(reHook.FindAllStringIndex(lower, -1))) * 0.9
	// Procedural step numbers tend to retain attention ("Step 1", "Step 2", ...).
	hook += float64(len(reStepNum.FindAllStringIndex(lower, -1))) * 0.4
	hook += float64(strings.Count(t, "?")) * 0.7
	hook += float64(strings.Count(t, "!")) * 0.3

	return clamp(info, 0, 10), clamp(hook, 0, 10)
}

// Strategy scores one window in [0,1]. Implementations must be pure functions
// of the window so ranking stays restartable.
type Strategy interface {
	Score(w Window) float64
}

type StrategyFunc func(w Window) float64

func (f StrategyFunc) Score(w Window) float64 { return f(w) }

// Heuristic combines keyword density, sentence-boundary alignment and silence
// gaps at both cuts.
type Heuristic struct {
	SilenceThreshold time.Duration

	KeywordWeight  float64
	SentenceWeight float64
	SilenceWeight  float64
}

// DefaultHeuristic weights keywords highest; boundaries decide among windows
// with similar content.
func DefaultHeuristic(silence time.Duration) Heuristic {
	return Heuristic{
		SilenceThreshold: silence,
		KeywordWeight:    0.5,
		SentenceWeight:   0.3,
		SilenceWeight:    0.2,
	}
}

func (h Heuristic) Score(w Window) float64 {
	if len(w.Tokens) == 0 {
		return 0
	}
	info, hook := Score(w.Text())
	// hits per ~20 words, saturating at 1
	density := (info + hook) * 20 / float64(len(w.Tokens)+20)
	keywords := clamp(density/3, 0, 1)

	sentence := 0.0
	if w.Prev == "" || hasTerminalPunctuation(w.Prev) {
		sentence += 0.5
	}
	if hasTerminalPunctuation(w.Tokens[len(w.Tokens)-1].Text) {
		sentence += 0.5
	}

	silence := 0.0
	if w.GapBefore >= h.SilenceThreshold {
		silence += 0.5
	}
	if w.GapAfter >= h.SilenceThreshold {
		silence += 0.5
	}

	total := h.KeywordWeight + h.SentenceWeight + h.SilenceWeight
	if total <= 0 {
		return 0
	}
	s := (h.KeywordWeight*keywords + h.SentenceWeight*sentence + h.SilenceWeight*silence) / total
	return clamp(s, 0, 1)
}

func hasTerminalPunctuation(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), `"'`+"`"+")]}")
	if s == "" {
		return false
	}
	last := s[len(s)-1]
	return last == '.' || last == '!' || last == '?'
}

func clamp(x, a, b float64) float64 {
	if x != x { // NaN
		return a
	}
	if x < a {
		return a
	}
	if x > b {
		return b
	}
	return x
}
