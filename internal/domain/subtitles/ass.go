package subtitles

import (
	"fmt"
	"strings"
	"time"
)

type Position string

const (
	PositionTop    Position = "top"
	PositionMiddle Position = "middle"
	PositionBottom Position = "bottom"
)

func ParsePosition(s string) (Position, error) {
	switch p := Position(strings.ToLower(strings.TrimSpace(s))); p {
	case PositionTop, PositionMiddle, PositionBottom:
		return p, nil
	case "":
		return PositionBottom, nil
	default:
		return "", fmt.Errorf("unknown subtitle position %q (want top, middle or bottom)", s)
	}
}

// alignment maps a position to the ASS numpad alignment, horizontally centred.
func (p Position) alignment() int {
	switch p {
	case PositionTop:
		return 8
	case PositionMiddle:
		return 5
	default:
		return 2
	}
}

// DefaultSafeMargin keeps captions clear of the platform UI drawn over the
// top and bottom of vertical video.
const DefaultSafeMargin = 300

type Style struct {
	Position Position
	Width    int
	Height   int
	FontSize int
	// MarginV is ignored for the middle position.
	MarginV int
	Karaoke bool
}

func (s Style) withDefaults() Style {
	if s.Position == "" {
		s.Position = PositionBottom
	}
	if s.Width <= 0 || s.Height <= 0 {
		s.Width, s.Height = 1080, 1920
	}
	if s.FontSize <= 0 {
		s.FontSize = 78
	}
	if s.MarginV <= 0 {
		s.MarginV = DefaultSafeMargin
	}
	if s.Position == PositionMiddle {
		s.MarginV = 0
	}
	return s
}

// RenderASS writes lines as an ASS script sized for the vertical frame.
// Karaoke mode highlights each token for its own duration with \k tags.
func RenderASS(lines []Line, style Style) string {
	style = style.withDefaults()
	var b strings.Builder
	b.WriteString(assHeader(style))
	b.WriteString("\n\n[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, ln := range lines {
		b.WriteString("Dialogue: 0,")
		b.WriteString(assTime(ln.Start))
		b.WriteString(",")
		b.WriteString(assTime(ln.End))
		b.WriteString(",Caption,,0,0,0,,")
		if style.Karaoke {
			for _, w := range ln.Tokens {
				durCS := int((w.End - w.Start) / (10 * time.Millisecond))
				if durCS < 1 {
					durCS = 1
				}
				fmt.Fprintf(&b, "{\\k%d}%s ", durCS, sanitizeASS(w.Text))
			}
		} else {
			b.WriteString(sanitizeASS(ln.Text()))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func assHeader(s Style) string {
	return fmt.Sprintf(strings.TrimSpace(`
[Script Info]
ScriptType: v4.00+
PlayResX: %d
PlayResY: %d
ScaledBorderAndShadow: yes
WrapStyle: 0

[V4+ Styles]
Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding
Style: Caption, Inter, %d, &H00FFFFFF, &H00FFD200, &H00000000, &H64000000, 1,0,0,0,100,100,0,0,1,6,2,%d, 80,80,%d,1
`), s.Width, s.Height, s.FontSize, s.Position.alignment(), s.MarginV)
}

func assTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hs := int(d / time.Hour)
	d -= time.Duration(hs) * time.Hour
	ms := int(d / time.Minute)
	d -= time.Duration(ms) * time.Minute
	s := int(d / time.Second)
	d -= time.Duration(s) * time.Second
	cs := int(d / (10 * time.Millisecond))
	return fmt.Sprintf("%d:%02d:%02d.%02d", hs, ms, s, cs)
}

func sanitizeASS(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}
