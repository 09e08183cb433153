// Package transcript normalizes speech-to-text output into an ordered,
// non-overlapping token stream that the rest of the pipeline indexes by time.
package transcript

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/forPelevin/vertclip/internal/types"
)

// Index is an immutable, time-ordered token stream. Token start times are
// strictly increasing and no two tokens overlap.
type Index struct {
	tokens []types.Token
}

// New normalizes tokens: empty text and empty ranges are dropped, tokens are
// sorted by start time, a token starting inside its predecessor is pushed to
// the predecessor's end, and a token fully covered by its predecessor is
// merged into it.
func New(tokens []types.Token) *Index {
	in := make([]types.Token, 0, len(tokens))
	for _, t := range tokens {
		t.Text = strings.TrimSpace(t.Text)
		if t.Text == "" || t.End <= t.Start {
			continue
		}
		if t.Start < 0 {
			t.Start = 0
		}
		in = append(in, t)
	}
	sort.SliceStable(in, func(i, j int) bool {
		if in[i].Start == in[j].Start {
			return in[i].End < in[j].End
		}
		return in[i].Start < in[j].Start
	})

	out := make([]types.Token, 0, len(in))
	for _, t := range in {
		if n := len(out); n > 0 {
			prev := &out[n-1]
			if t.Start < prev.End {
				if t.End <= prev.End {
					prev.Text += " " + t.Text
					continue
				}
				t.Start = prev.End
			}
		}
		out = append(out, t)
	}
	return &Index{tokens: out}
}

// FromTranscript builds an index from word timestamps. Segments without usable
// words are split into words spread across the segment proportionally to
// their length, so every token still starts and ends inside its segment.
func FromTranscript(tr types.Transcript) *Index {
	var tokens []types.Token
	for _, s := range tr.Segments {
		words := make([]types.Token, 0, len(s.Words))
		for _, w := range s.Words {
			ws, we := dur(w.Start), dur(w.End)
			if we <= ws || strings.TrimSpace(w.Word) == "" {
				continue
			}
			words = append(words, types.Token{Text: w.Word, Start: ws, End: we})
		}
		if len(words) == 0 {
			words = spreadSegment(s)
		}
		tokens = append(tokens, words...)
	}
	return New(tokens)
}

func spreadSegment(s types.Segment) []types.Token {
	start, end := dur(s.Start), dur(s.End)
	fields := strings.Fields(s.Text)
	if len(fields) == 0 || end <= start {
		return nil
	}
	total := 0
	for _, f := range fields {
		total += utf8.RuneCountInString(f)
	}
	span := end - start
	out := make([]types.Token, 0, len(fields))
	cursor := start
	acc := 0
	for i, f := range fields {
		acc += utf8.RuneCountInString(f)
		next := start + time.Duration(int64(span)*int64(acc)/int64(total))
		if i == len(fields)-1 {
			next = end
		}
		if next > cursor {
			out = append(out, types.Token{Text: f, Start: cursor, End: next})
		}
		cursor = next
	}
	return out
}

func (ix *Index) Len() int { return len(ix.tokens) }

func (ix *Index) At(i int) types.Token { return ix.tokens[i] }

// Tokens returns a copy of the whole stream.
func (ix *Index) Tokens() []types.Token {
	out := make([]types.Token, len(ix.tokens))
	copy(out, ix.tokens)
	return out
}

// Span returns the start of the first token and the end of the last one.
func (ix *Index) Span() (time.Duration, time.Duration) {
	if len(ix.tokens) == 0 {
		return 0, 0
	}
	return ix.tokens[0].Start, ix.tokens[len(ix.tokens)-1].End
}

// Range returns the tokens overlapping [start, end).
func (ix *Index) Range(start, end time.Duration) []types.Token {
	if end <= start {
		return nil
	}
	i := sort.Search(len(ix.tokens), func(i int) bool { return ix.tokens[i].End > start })
	var out []types.Token
	for ; i < len(ix.tokens) && ix.tokens[i].Start < end; i++ {
		out = append(out, ix.tokens[i])
	}
	return out
}

// Text joins the text of tokens overlapping [start, end).
func (ix *Index) Text(start, end time.Duration) string {
	toks := ix.Range(start, end)
	parts := make([]string, 0, len(toks))
	for _, t := range toks {
		parts = append(parts, t.Text)
	}
	return strings.Join(parts, " ")
}

// GapBefore is the silence between token i-1 and token i. The first token's
// gap is measured from the start of the timeline.
func (ix *Index) GapBefore(i int) time.Duration {
	if i <= 0 {
		return ix.tokens[0].Start
	}
	return ix.tokens[i].Start - ix.tokens[i-1].End
}

// GapAfter is the silence between token i and token i+1. The last token is
// treated as followed by unbounded silence.
func (ix *Index) GapAfter(i int) time.Duration {
	if i >= len(ix.tokens)-1 {
		return time.Duration(1<<63 - 1)
	}
	return ix.tokens[i+1].Start - ix.tokens[i].End
}

// SnapStart returns the index of the first token ending after t, so a range
// starting there never cuts a word in half.
func (ix *Index) SnapStart(t time.Duration) (int, bool) {
	i := sort.Search(len(ix.tokens), func(i int) bool { return ix.tokens[i].End > t })
	return i, i < len(ix.tokens)
}

// SnapEnd returns the index of the last token starting before t.
func (ix *Index) SnapEnd(t time.Duration) (int, bool) {
	i := sort.Search(len(ix.tokens), func(i int) bool { return ix.tokens[i].Start >= t }) - 1
	return i, i >= 0
}

func dur(sec float64) time.Duration { return time.Duration(sec * float64(time.Second)) }
