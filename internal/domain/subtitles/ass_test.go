package subtitles

import (
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/vertclip/internal/types"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func TestRenderASS_KaraokeHasKTags(t *testing.T) {
	lines := GroupLines([]types.Token{
		{Text: "Hello", Start: 0, End: ms(300)},
		{Text: "world", Start: ms(300), End: ms(800)},
	}, Policy{})
	ass := RenderASS(lines, Style{Karaoke: true})
	if !strings.Contains(ass, "{\\k30}Hello {\\k50}world") {
		t.Fatalf("expected karaoke tags in ASS, got:\n%s", ass)
	}
}

func TestRenderASS_Position(t *testing.T) {
	tests := []struct {
		pos  Position
		want string
	}{
		{PositionBottom, "0,0,1,6,2,2, 80,80,300,1"},
		{PositionMiddle, "0,0,1,6,2,5, 80,80,0,1"},
		{PositionTop, "0,0,1,6,2,8, 80,80,300,1"},
	}
	for _, tt := range tests {
		ass := RenderASS(nil, Style{Position: tt.pos})
		if !strings.Contains(ass, tt.want) {
			t.Fatalf("%s: style line missing %q:\n%s", tt.pos, tt.want, ass)
		}
		if !strings.Contains(ass, "PlayResX: 1080") || !strings.Contains(ass, "PlayResY: 1920") {
			t.Fatalf("%s: expected vertical play resolution", tt.pos)
		}
	}
}

func TestRenderASS_SanitizesOverrideBlocks(t *testing.T) {
	ass := RenderASS([]Line{{Start: 0, End: time.Second, Tokens: []types.Token{{Text: `{\b1}bold`}}}}, Style{})
	if strings.Contains(ass, `{\b1}`) || !strings.Contains(ass, `(\\b1)bold`) {
		t.Fatalf("expected override block neutralised:\n%s", ass)
	}
}

func TestAssTime_Format(t *testing.T) {
	got := assTime(61*time.Second + 234*time.Millisecond)
	if got != "0:01:01.23" {
		t.Fatalf("unexpected assTime: %s", got)
	}
}

func TestParsePosition(t *testing.T) {
	if p, err := ParsePosition(""); err != nil || p != PositionBottom {
		t.Fatalf("empty position should default to bottom: %v %v", p, err)
	}
	if _, err := ParsePosition("left"); err == nil {
		t.Fatalf("expected error for unknown position")
	}
}
