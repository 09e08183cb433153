package highlights

import (
	"fmt"
	"iter"
	"sort"
	"strings"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/transcript"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/types"
)

// DefaultSilenceThreshold is the shortest gap treated as a natural cut.
const DefaultSilenceThreshold = 300 * time.Millisecond

// InsufficientTranscriptError reports a transcript too short to hold even one
// clip of the minimum duration.
type InsufficientTranscriptError struct {
	Tokens  int
	Span    time.Duration
	MinClip time.Duration
}

func (e *InsufficientTranscriptError) Error() string {
	return fmt.Sprintf("insufficient transcript: %d tokens spanning %s, need at least %s", e.Tokens, e.Span, e.MinClip)
}

func (e *InsufficientTranscriptError) Is(target error) bool { return target == failure.ErrInput }

// Window is a contiguous token range considered as a clip.
type Window struct {
	Tokens    []types.Token
	Start     time.Duration
	End       time.Duration
	Prev      string
	GapBefore time.Duration
	GapAfter  time.Duration
}

func (w Window) Text() string {
	parts := make([]string, 0, len(w.Tokens))
	for _, t := range w.Tokens {
		parts = append(parts, t.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

type Options struct {
	MinClip          time.Duration
	MaxClip          time.Duration
	SilenceThreshold time.Duration
	Strategy         Strategy
	// AdvisoryWeight is the share of an advisory candidate's score taken from
	// the provider; the rest comes from the local strategy.
	AdvisoryWeight float64
}

type Scorer struct {
	opts Options
}

func New(opts Options) *Scorer {
	if opts.SilenceThreshold <= 0 {
		opts.SilenceThreshold = DefaultSilenceThreshold
	}
	if opts.Strategy == nil {
		opts.Strategy = DefaultHeuristic(opts.SilenceThreshold)
	}
	if opts.AdvisoryWeight <= 0 || opts.AdvisoryWeight > 1 {
		opts.AdvisoryWeight = 0.5
	}
	return &Scorer{opts: opts}
}

// Candidates enumerates duration-bounded windows that start and end on token
// boundaries. The sequence is finite and can be ranged over repeatedly.
func (s *Scorer) Candidates(ix *transcript.Index) (iter.Seq[types.Candidate], error) {
	if err := s.check(ix); err != nil {
		return nil, err
	}
	return func(yield func(types.Candidate) bool) {
		s.walk(ix, yield)
	}, nil
}

// Rank scores every window, folds in advisory suggestions and returns the
// candidates best first.
func (s *Scorer) Rank(ix *transcript.Index, advisory []types.Candidate) ([]types.Candidate, error) {
	seq, err := s.Candidates(ix)
	if err != nil {
		return nil, err
	}
	var out []types.Candidate
	for c := range seq {
		out = append(out, c)
	}
	for _, a := range advisory {
		if c, ok := s.fromAdvisory(ix, a); ok {
			out = append(out, c)
		}
	}
	SortRanked(out)
	return out, nil
}

// SortRanked orders candidates by score, then pause alignment, then timeline.
func SortRanked(cands []types.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i], cands[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.PauseAligned != b.PauseAligned {
			return a.PauseAligned
		}
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		return a.End < b.End
	})
}

func (s *Scorer) check(ix *transcript.Index) error {
	if s.opts.MaxClip <= 0 || s.opts.MinClip > s.opts.MaxClip {
		return failure.Wrap(failure.ErrInput, fmt.Sprintf("invalid clip bounds min=%s max=%s", s.opts.MinClip, s.opts.MaxClip), nil)
	}
	if ix == nil || ix.Len() == 0 {
		return &InsufficientTranscriptError{MinClip: s.opts.MinClip}
	}
	start, end := ix.Span()
	if end-start < s.opts.MinClip {
		return &InsufficientTranscriptError{Tokens: ix.Len(), Span: end - start, MinClip: s.opts.MinClip}
	}
	return nil
}

func (s *Scorer) walk(ix *transcript.Index, yield func(types.Candidate) bool) {
	// Strides keep runtime predictable on long transcripts without fully
	// sacrificing timeline coverage.
	const (
		maxWordsInWin = 240
		maxStartCount = 140
	)
	n := ix.Len()
	stride := 1
	if n > maxStartCount {
		stride = (n + maxStartCount - 1) / maxStartCount
	}
	starts := make([]int, 0, n/stride+1)
	for i := 0; i < n; i += stride {
		starts = append(starts, i)
	}
	// Always include a near-tail start so late parts of the transcript still
	// contribute candidates when start indices are downsampled.
	if last := n - 1; starts[len(starts)-1] != last {
		starts = append(starts, last)
	}

	for _, i := range starts {
		start := ix.At(i).Start
		for j := i; j < n && j-i <= maxWordsInWin; j++ {
			if (j-i)%stride != 0 && j != n-1 {
				continue
			}
			end := ix.At(j).End
			win := end - start
			if win > s.opts.MaxClip {
				break
			}
			if win < s.opts.MinClip {
				continue
			}
			if !yield(s.candidate(ix, i, j)) {
				return
			}
		}
	}
}

func (s *Scorer) window(ix *transcript.Index, i, j int) Window {
	toks := make([]types.Token, 0, j-i+1)
	for k := i; k <= j; k++ {
		toks = append(toks, ix.At(k))
	}
	w := Window{
		Tokens:    toks,
		Start:     ix.At(i).Start,
		End:       ix.At(j).End,
		GapBefore: ix.GapBefore(i),
		GapAfter:  ix.GapAfter(j),
	}
	if i > 0 {
		w.Prev = ix.At(i - 1).Text
	}
	return w
}

func (s *Scorer) candidate(ix *transcript.Index, i, j int) types.Candidate {
	w := s.window(ix, i, j)
	return types.Candidate{
		Start:        w.Start,
		End:          w.End,
		Text:         w.Text(),
		Score:        clamp(s.opts.Strategy.Score(w), 0, 1),
		PauseAligned: w.GapBefore >= s.opts.SilenceThreshold && w.GapAfter >= s.opts.SilenceThreshold,
	}
}

// fromAdvisory snaps a provider suggestion onto token boundaries and trims it
// into the duration bounds. Suggestions that cannot be made valid are dropped.
func (s *Scorer) fromAdvisory(ix *transcript.Index, a types.Candidate) (types.Candidate, bool) {
	if a.End <= a.Start {
		return types.Candidate{}, false
	}
	i, ok := ix.SnapStart(a.Start)
	if !ok {
		return types.Candidate{}, false
	}
	j, ok := ix.SnapEnd(a.End)
	if !ok || j < i {
		return types.Candidate{}, false
	}
	for j > i && ix.At(j).End-ix.At(i).Start > s.opts.MaxClip {
		j--
	}
	if d := ix.At(j).End - ix.At(i).Start; d > s.opts.MaxClip || d < s.opts.MinClip {
		return types.Candidate{}, false
	}
	c := s.candidate(ix, i, j)
	w := s.opts.AdvisoryWeight
	c.Score = clamp((1-w)*c.Score+w*clamp(a.Score, 0, 1), 0, 1)
	c.Rationale = strings.TrimSpace(a.Rationale)
	c.Advisory = true
	return c, true
}
