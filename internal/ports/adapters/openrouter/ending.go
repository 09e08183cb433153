package openrouter

import (
	"strings"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/transcript"
)

const (
	endExtension   = 2 * time.Second
	pauseThreshold = 350 * time.Millisecond
	pauseLookback  = 8 * time.Second
)

// naturalEnd moves requestedEnd to the most complete sentence ending nearby,
// then to the longest pause, then to the last word end inside the bounds.
func naturalEnd(ix *transcript.Index, start, requestedEnd, minEnd, maxEnd time.Duration) time.Duration {
	requestedEnd = min(max(requestedEnd, minEnd), maxEnd)
	searchEnd := min(requestedEnd+endExtension, maxEnd)

	if end, ok := bestSentenceEnd(ix, start, requestedEnd, minEnd, searchEnd); ok {
		return end
	}

	pauseStart := max(searchEnd-pauseLookback, minEnd)
	var bestPause, bestPauseEnd time.Duration
	for i := 0; i+1 < ix.Len(); i++ {
		cur := ix.At(i)
		if cur.End < pauseStart || cur.End > searchEnd {
			continue
		}
		if gap := ix.GapAfter(i); gap >= pauseThreshold && gap > bestPause {
			bestPause = gap
			bestPauseEnd = cur.End
		}
	}
	if bestPauseEnd >= minEnd {
		return bestPauseEnd
	}

	if i, ok := ix.SnapEnd(searchEnd); ok {
		if e := ix.At(i).End; e >= minEnd && e <= searchEnd {
			return e
		}
	}
	return requestedEnd
}

type sentenceEnd struct {
	End        time.Duration
	Words      int
	LastWord   string
	Sentence   string
	NextWord   string
	PauseAfter time.Duration
}

func bestSentenceEnd(ix *transcript.Index, clipStart, requestedEnd, minEnd, searchEnd time.Duration) (time.Duration, bool) {
	var (
		best      time.Duration
		bestScore = -1e9
		found     bool
	)
	for _, c := range sentenceEnds(ix, clipStart, minEnd, searchEnd) {
		score := c.score(requestedEnd)
		if !found || score > bestScore || (score == bestScore && c.End > best) {
			best, bestScore, found = c.End, score, true
		}
	}
	return best, found
}

func sentenceEnds(ix *transcript.Index, clipStart, minEnd, searchEnd time.Duration) []sentenceEnd {
	var out []sentenceEnd
	for i := 0; i < ix.Len(); i++ {
		w := ix.At(i)
		if w.End < minEnd || w.End > searchEnd || !hasTerminalPunctuation(w.Text) {
			continue
		}

		first := i
		for first > 0 {
			prev := ix.At(first - 1)
			if prev.End <= clipStart || hasTerminalPunctuation(prev.Text) {
				break
			}
			first--
		}

		c := sentenceEnd{End: w.End}
		parts := make([]string, 0, i-first+1)
		for k := first; k <= i; k++ {
			txt := ix.At(k).Text
			parts = append(parts, txt)
			if norm := normalizeWord(txt); norm != "" {
				c.Words++
				c.LastWord = norm
			}
		}
		c.Sentence = strings.ToLower(strings.Join(parts, " "))
		if i+1 < ix.Len() {
			c.PauseAfter = max(ix.GapAfter(i), 0)
			c.NextWord = normalizeWord(ix.At(i + 1).Text)
		}
		out = append(out, c)
	}
	return out
}

// score prefers long sentences followed by a pause and close to the
// requested end. Dangling tails and unanswered questions are penalised.
func (c sentenceEnd) score(requestedEnd time.Duration) float64 {
	d := c.End - requestedEnd
	if d < 0 {
		d = -d
	}
	score := -0.30 * d.Seconds()
	closure := hasClosureCue(c.Sentence)

	switch {
	case c.Words >= 8:
		score += 1.1
	case c.Words >= 5:
		score += 0.5
	case c.Words < 4:
		score -= 0.8
	}

	switch {
	case c.PauseAfter >= 450*time.Millisecond:
		score += 1.0
	case c.PauseAfter >= 250*time.Millisecond:
		score += 0.4
	case c.PauseAfter < 120*time.Millisecond:
		score -= 0.35
	}

	if closure {
		score += 1.1
	}
	if isDanglingTail(c.LastWord) {
		score -= 2.0
	}
	if strings.HasSuffix(c.Sentence, "?") && c.PauseAfter < 450*time.Millisecond {
		score -= 2.4
	}
	if isContinuationStart(c.NextWord) && c.PauseAfter < 350*time.Millisecond {
		score -= 0.8
	}
	if c.Words < 5 && !closure && c.PauseAfter < 200*time.Millisecond {
		score -= 0.9
	}
	return score
}

var closureCues = []string{
	"that's it", "that's why", "that's how", "there you go",
	"goodbye", "finally", "done", "finished", "we did it",
}

func hasClosureCue(s string) bool {
	for _, cue := range closureCues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

func isDanglingTail(lastWord string) bool {
	switch lastWord {
	case "", "and", "but", "or", "so", "because", "if", "when", "then",
		"to", "of", "for", "with", "from", "into",
		"the", "a", "an", "this", "that", "these", "those",
		"my", "your", "our", "their", "his", "her", "its":
		return true
	}
	return false
}

func isContinuationStart(word string) bool {
	switch word {
	case "and", "but", "or", "so", "because", "then", "if", "when", "while", "that":
		return true
	}
	return false
}

func normalizeWord(s string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(s)), `"'`+"`"+"[](){}.,!?;:")
}

func hasTerminalPunctuation(s string) bool {
	s = strings.TrimRight(strings.TrimSpace(s), `"'`+"`"+")]}")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '!', '?':
		return true
	}
	return false
}
