// Package overlay validates the clip title and builds the title and entrance
// effect filters drawn over a reframed clip.
package overlay

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/forPelevin/vertclip/internal/failure"
)

type TitleSource string

const (
	TitleAI     TitleSource = "ai"
	TitleManual TitleSource = "manual"
	TitleNone   TitleSource = "none"
)

func ParseTitleSource(s string) (TitleSource, error) {
	switch ts := TitleSource(strings.ToLower(strings.TrimSpace(s))); ts {
	case TitleAI, TitleManual, TitleNone:
		return ts, nil
	case "":
		return TitleNone, nil
	default:
		return "", failure.Wrap(failure.ErrInput, fmt.Sprintf("unknown title source %q (want ai, manual or none)", s), nil)
	}
}

type Effect string

const (
	EffectNone  Effect = "none"
	EffectZoom  Effect = "zoom"
	EffectFlash Effect = "flash"
)

func ParseEffect(s string) (Effect, error) {
	switch e := Effect(strings.ToLower(strings.TrimSpace(s))); e {
	case EffectNone, EffectZoom, EffectFlash:
		return e, nil
	case "":
		return EffectNone, nil
	default:
		return "", failure.Wrap(failure.ErrInput, fmt.Sprintf("unknown effect %q (want none, zoom or flash)", s), nil)
	}
}

// ErrNoTitleSelected means the title source is ai but nobody picked one of the
// suggestions.
var ErrNoTitleSelected = fmt.Errorf("%w: no title selected", failure.ErrInput)

// MaxTitleRunes bounds what is burned into the frame.
const MaxTitleRunes = 100

type Title struct {
	Source TitleSource `json:"source"`
	Text   string      `json:"text,omitempty"`
	// Candidates are provider suggestions kept for the manifest.
	Candidates []string `json:"candidates,omitempty"`
}

// Validate checks the title is renderable. It never calls a provider.
func (t Title) Validate() error {
	switch t.Source {
	case TitleAI:
		if strings.TrimSpace(t.Text) == "" {
			return ErrNoTitleSelected
		}
	case TitleManual:
		if strings.TrimSpace(t.Text) == "" {
			return failure.Wrap(failure.ErrInput, "manual title source needs title text", nil)
		}
	case TitleNone, "":
	default:
		return failure.Wrap(failure.ErrInput, fmt.Sprintf("unknown title source %q", t.Source), nil)
	}
	return nil
}

// Enabled reports whether a title is drawn.
func (t Title) Enabled() bool {
	return t.Source != TitleNone && t.Source != "" && strings.TrimSpace(t.Text) != ""
}

// NormalizeTitle composes the text to NFC, collapses whitespace, optionally
// upper-cases it for the given language and caps its length.
func NormalizeTitle(s string, upper bool, lang language.Tag) string {
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	if upper {
		s = cases.Upper(lang).String(s)
	}
	if utf8.RuneCountInString(s) > MaxTitleRunes {
		r := []rune(s)
		s = strings.TrimSpace(string(r[:MaxTitleRunes-1])) + "…"
	}
	return s
}

type Params struct {
	Title  Title
	Effect Effect

	Width  int
	Height int
	// ZoomFactor is the scale reached at the end of the zoom window, > 1.
	ZoomFactor float64
	// EffectWindow is how long the entrance effect lasts from clip start.
	EffectWindow time.Duration
	// TitleDuration limits how long the title stays on screen. Zero keeps it
	// for the whole clip.
	TitleDuration time.Duration
	TitleY        int
	FontSize      int
	FontFile      string
}

const (
	DefaultZoomFactor  = 1.12
	DefaultZoomWindow  = 200 * time.Millisecond
	DefaultFlashWindow = 150 * time.Millisecond
	defaultTitleY      = 180
	defaultFontSize    = 80
)

func (p Params) withDefaults() Params {
	if p.Width <= 0 || p.Height <= 0 {
		p.Width, p.Height = 1080, 1920
	}
	if p.ZoomFactor <= 1 {
		p.ZoomFactor = DefaultZoomFactor
	}
	if p.EffectWindow <= 0 {
		p.EffectWindow = DefaultZoomWindow
		if p.Effect == EffectFlash {
			p.EffectWindow = DefaultFlashWindow
		}
	}
	if p.TitleY <= 0 {
		p.TitleY = defaultTitleY
	}
	if p.FontSize <= 0 {
		p.FontSize = defaultFontSize
	}
	return p
}

// Validate rejects parameters that would produce an invalid filter.
func (p Params) Validate() error {
	if err := p.Title.Validate(); err != nil {
		return err
	}
	switch p.Effect {
	case EffectNone, EffectZoom, EffectFlash, "":
	default:
		return failure.Wrap(failure.ErrInput, fmt.Sprintf("unknown effect %q", p.Effect), nil)
	}
	if p.TitleDuration < 0 || p.EffectWindow < 0 {
		return failure.Wrap(failure.ErrInput, "negative overlay durations", nil)
	}
	return nil
}

// NoOp reports whether the stage would leave the clip unchanged.
func (p Params) NoOp() bool {
	return !p.Title.Enabled() && (p.Effect == EffectNone || p.Effect == "")
}

var errNoTextFile = errors.New("title text file is required when a title is drawn")

// FilterGraph returns the -vf chain for the overlay. textFile holds the title
// text so it never needs escaping inside the filter. The result depends only
// on its inputs, so re-running the stage on the same clip yields the same
// frames.
func (p Params) FilterGraph(textFile string) (string, error) {
	p = p.withDefaults()
	var parts []string
	switch p.Effect {
	case EffectZoom:
		parts = append(parts, zoomFilter(p))
	case EffectFlash:
		parts = append(parts, flashFilter(p))
	}
	if p.Title.Enabled() {
		if strings.TrimSpace(textFile) == "" {
			return "", errNoTextFile
		}
		parts = append(parts, drawTitle(p, textFile))
	}
	if len(parts) == 0 {
		return "null", nil
	}
	return strings.Join(parts, ","), nil
}

// zoomFilter ramps the scale linearly from 1 to ZoomFactor over the window,
// then holds 1 again, cropping back to the frame size around the centre.
func zoomFilter(p Params) string {
	d := seconds(p.EffectWindow)
	z := fmt.Sprintf("if(lt(t\\,%s)\\,1+%s*t/%s\\,1)", d, num(p.ZoomFactor-1), d)
	return fmt.Sprintf("scale=w='trunc(iw*%s/2)*2':h='trunc(ih*%s/2)*2':eval=frame,crop=%d:%d", z, z, p.Width, p.Height)
}

// flashFilter brightens the first frames and fades back to normal.
func flashFilter(p Params) string {
	d := seconds(p.EffectWindow)
	return fmt.Sprintf("eq=brightness='if(lt(t\\,%s)\\,0.6*(1-t/%s)\\,0)':eval=frame", d, d)
}

func drawTitle(p Params, textFile string) string {
	var b strings.Builder
	b.WriteString("drawtext=")
	if p.FontFile != "" {
		fmt.Fprintf(&b, "fontfile='%s':", escapeFilterValue(p.FontFile))
	}
	fmt.Fprintf(&b, "textfile='%s':fontsize=%d:fontcolor=white:borderw=5:bordercolor=black:x=(w-text_w)/2:y=%d",
		escapeFilterValue(textFile), p.FontSize, p.TitleY)
	if p.TitleDuration > 0 {
		fmt.Fprintf(&b, ":enable='lt(t\\,%s)'", seconds(p.TitleDuration))
	}
	return b.String()
}

func seconds(d time.Duration) string { return num(d.Seconds()) }

func num(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

func escapeFilterValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ":", "\\:")
	s = strings.ReplaceAll(s, "'", "\\'")
	return s
}
