package selection

import (
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/highlights"
	"github.com/forPelevin/vertclip/internal/domain/transcript"
	"github.com/forPelevin/vertclip/internal/types"
)

func sec(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func TestSelect_NonOverlappingProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 300; round++ {
		var cands []types.Candidate
		for i := 0; i < 50; i++ {
			start := sec(float64(rng.Intn(600)) / 10)
			cands = append(cands, types.Candidate{
				Start: start,
				End:   start + sec(float64(10+rng.Intn(100))/10),
				Score: rng.Float64(),
			})
		}
		clips := Select(cands, Options{ClipsN: 1 + rng.Intn(8), MaxClip: sec(20)})
		for i := range clips {
			for j := range clips {
				if i != j && Overlaps(clips[i].Start, clips[i].End, clips[j].Start, clips[j].End) {
					t.Fatalf("round %d: overlap between %+v and %+v", round, clips[i], clips[j])
				}
			}
			if i > 0 && clips[i-1].Start > clips[i].Start {
				t.Fatalf("round %d: clips not ordered by start", round)
			}
		}
	}
}

func TestSelect_Idempotent(t *testing.T) {
	cands := []types.Candidate{
		{Start: sec(0), End: sec(12), Score: 0.7},
		{Start: sec(5), End: sec(17), Score: 0.7},
		{Start: sec(20), End: sec(31), Score: 0.9},
		{Start: sec(25), End: sec(36), Score: 0.4},
	}
	opts := Options{ClipsN: 3, MinClip: sec(10), MaxClip: sec(20), Source: "in.mp4"}
	first := Select(cands, opts)
	second := Select(cands, opts)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("selection not idempotent:\n%v\n%v", first, second)
	}
	if len(first) != 2 || first[0].Start != 0 || first[1].Start != sec(20) {
		t.Fatalf("unexpected selection: %+v", first)
	}
	if cands[0].Start != 0 || cands[2].Score != 0.9 {
		t.Fatalf("input slice must not be reordered")
	}
}

func TestSelect_EmptyIsNotAnError(t *testing.T) {
	if got := Select(nil, Options{ClipsN: 3}); len(got) != 0 {
		t.Fatalf("expected empty selection, got %v", got)
	}
	tooLong := []types.Candidate{{Start: 0, End: sec(90), Score: 1}}
	if got := Select(tooLong, Options{ClipsN: 3, MaxClip: sec(60)}); len(got) != 0 {
		t.Fatalf("expected candidate over max to be rejected, got %v", got)
	}
}

func TestSelect_MinTolerance(t *testing.T) {
	cands := []types.Candidate{
		{Start: 0, End: sec(7.9), Score: 1},
		{Start: sec(10), End: sec(18), Score: 1},
	}
	tests := []struct {
		name      string
		tolerance int
		want      []time.Duration
	}{
		{"default tolerance keeps 8s", DefaultMinTolerancePercent, []time.Duration{sec(10)}},
		{"zero is strict", 0, nil},
		{"negative is strict", -5, nil},
		{"full tolerance", 100, []time.Duration{0, sec(10)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(cands, Options{ClipsN: 2, MinClip: sec(10), MaxClip: sec(20), MinTolerancePercent: tt.tolerance})
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d clips, got %+v", len(tt.want), got)
			}
			for i, start := range tt.want {
				if got[i].Start != start {
					t.Fatalf("clip %d starts at %v, want %v", i, got[i].Start, start)
				}
			}
		})
	}
}

// 120 tokens over 0-60s with three high-score windows; the selector must
// return exactly those windows in timeline order.
func TestSelect_EndToEndThreeWindows(t *testing.T) {
	toks := make([]types.Token, 0, 120)
	for i := 0; i < 120; i++ {
		toks = append(toks, types.Token{Text: "w", Start: sec(float64(i) * 0.5), End: sec(float64(i+1) * 0.5)})
	}
	ix := transcript.New(toks)

	type span struct{ start, end time.Duration }
	hot := map[span]bool{
		{sec(5), sec(15)}:  true,
		{sec(30), sec(45)}: true,
		{sec(50), sec(58)}: true,
	}
	strategy := highlights.StrategyFunc(func(w highlights.Window) float64 {
		if hot[span{w.Start, w.End}] {
			return 0.95
		}
		return 0.1
	})
	scorer := highlights.New(highlights.Options{MinClip: sec(8), MaxClip: sec(20), Strategy: strategy})
	ranked, err := scorer.Rank(ix, nil)
	if err != nil {
		t.Fatal(err)
	}

	clips := Select(ranked, Options{
		ClipsN:              3,
		MinClip:             sec(10),
		MaxClip:             sec(20),
		Source:              "in.mp4",
		MinTolerancePercent: DefaultMinTolerancePercent,
	})
	want := []span{{sec(5), sec(15)}, {sec(30), sec(45)}, {sec(50), sec(58)}}
	if len(clips) != len(want) {
		t.Fatalf("expected %d clips, got %+v", len(want), clips)
	}
	for i, w := range want {
		if clips[i].Start != w.start || clips[i].End != w.end {
			t.Fatalf("clip %d = %v-%v, want %v-%v", i, clips[i].Start, clips[i].End, w.start, w.end)
		}
		if clips[i].ID != ClipID(i) || clips[i].Source != "in.mp4" {
			t.Fatalf("unexpected clip metadata: %+v", clips[i])
		}
	}
}

func TestWholeVideo(t *testing.T) {
	clips := WholeVideo("in.mp4", sec(95))
	if len(clips) != 1 || clips[0].End != sec(95) || clips[0].ID != "001" {
		t.Fatalf("unexpected fallback clip: %+v", clips)
	}
	if WholeVideo("in.mp4", 0) != nil {
		t.Fatalf("expected no clip for zero duration")
	}
}
