package ffmpeg

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/audiomix"
	"github.com/forPelevin/vertclip/internal/domain/reframe"
	"github.com/forPelevin/vertclip/internal/ports"
)

func TestParseProbe(t *testing.T) {
	raw := `{"streams":[
		{"codec_type":"video","width":1920,"height":1080},
		{"codec_type":"audio"}
	],"format":{"duration":"61.500000"}}`
	info, err := parseProbe([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 1920 || info.Height != 1080 || !info.HasAudio || info.Duration != 61500*time.Millisecond {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestParseProbe_Rotation(t *testing.T) {
	raw := `{"streams":[{"codec_type":"video","width":1920,"height":1080,"side_data_list":[{"rotation":-90}]}],"format":{}}`
	info, err := parseProbe([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if info.Width != 1080 || info.Height != 1920 || info.HasAudio {
		t.Fatalf("expected rotated portrait geometry, got %+v", info)
	}
	if _, err := parseProbe([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`)); err == nil {
		t.Fatal("expected error without a video stream")
	}
}

func TestReframeArgs(t *testing.T) {
	plan, err := reframe.Compute(reframe.Size{W: 1920, H: 1080}, &reframe.Size{W: 1280, H: 720}, reframe.LayoutSplit, reframe.Options{})
	if err != nil {
		t.Fatal(err)
	}
	args := reframeArgs(ports.ReframeRequest{
		Source:    "in.mp4",
		Secondary: "game.mp4",
		Start:     5 * time.Second,
		End:       15 * time.Second,
		Plan:      plan,
		Out:       "out.mp4",
	})
	joined := strings.Join(args, " ")
	for _, want := range []string{
		"-ss 5.000 -to 15.000 -i in.mp4",
		"-stream_loop -1 -i game.mp4",
		"-map [vout] -map 0:a?",
		"-t 10.000",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %s", want, joined)
		}
	}
	if args[len(args)-1] != "out.mp4" {
		t.Fatalf("output must be last: %v", args)
	}
}

func TestMixArgs(t *testing.T) {
	args := mixArgs("clip.mp4", audiomix.Params{Track: "m.mp3", Gain: 0.3, Loop: true, Duration: 12 * time.Second, SourceHasAudio: true}, "out.mp4")
	if !slices.Contains(args, "[aout]") || !slices.Contains(args, "-stream_loop") {
		t.Fatalf("unexpected mix args %v", args)
	}
	if i := slices.Index(args, "-t"); i < 0 || args[i+1] != "12.000" {
		t.Fatalf("expected duration bound, got %v", args)
	}
}

func TestEscapeFilterPath(t *testing.T) {
	if got := escapeFilterPath(`C:\subs\it's.ass`); got != `C\:\\subs\\it\'s.ass` {
		t.Fatalf("unexpected escape %q", got)
	}
}
