// Package subtitles aligns transcript tokens to a clip timeline, groups them
// into caption lines and renders them as ASS for burn-in.
package subtitles

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/forPelevin/vertclip/internal/types"
)

type Policy struct {
	MaxChars        int
	MaxWords        int
	MaxLineDuration time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxChars: 20, MaxWords: 9, MaxLineDuration: 2 * time.Second}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MaxChars <= 0 {
		p.MaxChars = d.MaxChars
	}
	if p.MaxWords <= 0 {
		p.MaxWords = d.MaxWords
	}
	if p.MaxLineDuration <= 0 {
		p.MaxLineDuration = d.MaxLineDuration
	}
	return p
}

// Line is one caption event on the clip timeline.
type Line struct {
	Start  time.Duration
	End    time.Duration
	Tokens []types.Token
}

func (l Line) Text() string {
	parts := make([]string, 0, len(l.Tokens))
	for _, t := range l.Tokens {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// Rebase keeps the tokens overlapping [clipStart, clipEnd), clamps them to the
// clip and shifts them to clip-relative time.
func Rebase(tokens []types.Token, clipStart, clipEnd time.Duration) []types.Token {
	var out []types.Token
	for _, t := range tokens {
		if t.End <= clipStart || t.Start >= clipEnd {
			continue
		}
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		s, e := max(t.Start, clipStart), min(t.End, clipEnd)
		out = append(out, types.Token{Text: text, Start: s - clipStart, End: e - clipStart})
	}
	return out
}

// GroupLines packs tokens into lines bounded by characters, words and
// duration. A token that starts before the current line ends always joins
// that line, so no token straddles two lines and lines never overlap. A
// single long token may exceed the budgets.
func GroupLines(tokens []types.Token, p Policy) []Line {
	p = p.withDefaults()
	tokens = append([]types.Token(nil), tokens...)
	sort.SliceStable(tokens, func(i, j int) bool { return tokens[i].Start < tokens[j].Start })
	var out []Line
	var cur Line
	curLen := 0
	for _, t := range tokens {
		wl := utf8.RuneCountInString(t.Text)
		if len(cur.Tokens) > 0 && t.Start >= cur.End {
			over := curLen+1+wl > p.MaxChars ||
				len(cur.Tokens) >= p.MaxWords ||
				max(t.End, cur.End)-cur.Start > p.MaxLineDuration
			if over {
				out = append(out, cur)
				cur, curLen = Line{}, 0
			}
		}
		if len(cur.Tokens) == 0 {
			cur.Start, cur.End = t.Start, t.End
		} else {
			curLen++
		}
		cur.Tokens = append(cur.Tokens, t)
		cur.End = max(cur.End, t.End)
		curLen += wl
	}
	if len(cur.Tokens) > 0 {
		out = append(out, cur)
	}
	return out
}
