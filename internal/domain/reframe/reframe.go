// Package reframe computes the geometry that turns a landscape source into a
// vertical frame. It never touches media: the ffmpeg adapter consumes the Plan
// through FilterGraph.
package reframe

import (
	"fmt"
	"math"
	"strings"

	"github.com/forPelevin/vertclip/internal/failure"
)

type Layout string

const (
	LayoutSplit Layout = "split"
	LayoutBlur  Layout = "blur"
)

func ParseLayout(s string) (Layout, error) {
	switch l := Layout(strings.ToLower(strings.TrimSpace(s))); l {
	case LayoutSplit, LayoutBlur:
		return l, nil
	case "":
		return LayoutBlur, nil
	default:
		return "", failure.Wrap(failure.ErrInput, fmt.Sprintf("unknown layout %q (want split or blur)", s), nil)
	}
}

const (
	DefaultWidth     = 1080
	DefaultHeight    = 1920
	DefaultBlurSigma = 35
)

type Size struct {
	W int `json:"w"`
	H int `json:"h"`
}

type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// UnsupportedSourceGeometryError is returned when the source is already as
// narrow as, or narrower than, the target frame.
type UnsupportedSourceGeometryError struct {
	Source Size
	Target Size
}

func (e *UnsupportedSourceGeometryError) Error() string {
	return fmt.Sprintf("unsupported source geometry %dx%d: not wider than target %dx%d", e.Source.W, e.Source.H, e.Target.W, e.Target.H)
}

func (e *UnsupportedSourceGeometryError) Is(target error) bool { return target == failure.ErrInput }

type Options struct {
	Target    Size
	BlurSigma float64
	// ForegroundRatio is the share of the target width the sharp foreground
	// covers in the blur layout, in (0,1].
	ForegroundRatio float64
}

// Region is one source input cropped, scaled and placed into the target.
type Region struct {
	Input int  `json:"input"`
	Crop  Rect `json:"crop"`
	Place Rect `json:"place"`
	Blur  bool `json:"blur,omitempty"`
}

type Plan struct {
	Layout    Layout   `json:"layout"`
	Target    Size     `json:"target"`
	BlurSigma float64  `json:"blur_sigma,omitempty"`
	Regions   []Region `json:"regions"`
}

// Compute returns the reframe plan for a primary source and an optional
// secondary one. The secondary source is only used by the split layout; when
// it is nil the primary source fills both halves.
func Compute(primary Size, secondary *Size, layout Layout, opts Options) (Plan, error) {
	opts = withDefaults(opts)
	if primary.W <= 0 || primary.H <= 0 {
		return Plan{}, failure.Wrap(failure.ErrInput, fmt.Sprintf("invalid source size %dx%d", primary.W, primary.H), nil)
	}
	// source narrower than or equal to target: w/h < tw/th
	if primary.W*opts.Target.H < opts.Target.W*primary.H {
		return Plan{}, &UnsupportedSourceGeometryError{Source: primary, Target: opts.Target}
	}

	switch layout {
	case LayoutSplit:
		return split(primary, secondary, opts)
	case LayoutBlur:
		return blur(primary, opts), nil
	default:
		return Plan{}, failure.Wrap(failure.ErrInput, fmt.Sprintf("unknown layout %q", layout), nil)
	}
}

func withDefaults(o Options) Options {
	if o.Target.W <= 0 || o.Target.H <= 0 {
		o.Target = Size{W: DefaultWidth, H: DefaultHeight}
	}
	o.Target.W, o.Target.H = even(o.Target.W), even(o.Target.H)
	if o.BlurSigma <= 0 {
		o.BlurSigma = DefaultBlurSigma
	}
	if o.ForegroundRatio <= 0 || o.ForegroundRatio > 1 || math.IsNaN(o.ForegroundRatio) {
		o.ForegroundRatio = 1
	}
	return o
}

func split(primary Size, secondary *Size, opts Options) (Plan, error) {
	half := Size{W: opts.Target.W, H: even(opts.Target.H / 2)}
	bottomSrc, bottomInput := primary, 0
	if secondary != nil {
		if secondary.W <= 0 || secondary.H <= 0 {
			return Plan{}, failure.Wrap(failure.ErrInput, fmt.Sprintf("invalid secondary size %dx%d", secondary.W, secondary.H), nil)
		}
		bottomSrc, bottomInput = *secondary, 1
	}
	return Plan{
		Layout: LayoutSplit,
		Target: opts.Target,
		Regions: []Region{
			{Input: 0, Crop: coverCrop(primary, half), Place: Rect{X: 0, Y: 0, W: half.W, H: half.H}},
			{Input: bottomInput, Crop: coverCrop(bottomSrc, half), Place: Rect{X: 0, Y: half.H, W: half.W, H: half.H}},
		},
	}, nil
}

func blur(src Size, opts Options) Plan {
	t := opts.Target
	fw := even(int(math.Round(float64(t.W) * opts.ForegroundRatio)))
	fh := even(src.H * fw / src.W)
	if fh > t.H {
		fh = t.H
	}
	return Plan{
		Layout:    LayoutBlur,
		Target:    t,
		BlurSigma: opts.BlurSigma,
		Regions: []Region{
			{Input: 0, Crop: coverCrop(src, t), Place: Rect{X: 0, Y: 0, W: t.W, H: t.H}, Blur: true},
			{Input: 0, Crop: Rect{X: 0, Y: 0, W: src.W, H: src.H}, Place: Rect{X: (t.W - fw) / 2, Y: (t.H - fh) / 2, W: fw, H: fh}},
		},
	}
}

// coverCrop returns the centred source rectangle with the aspect ratio of dst,
// so scaling it to dst fills dst with no bars.
func coverCrop(src, dst Size) Rect {
	var cw, ch int
	if src.W*dst.H > src.H*dst.W {
		ch = even(src.H)
		cw = even(src.H * dst.W / dst.H)
	} else {
		cw = even(src.W)
		ch = even(src.W * dst.H / dst.W)
	}
	return Rect{X: even((src.W - cw) / 2), Y: even((src.H - ch) / 2), W: cw, H: ch}
}

func even(v int) int {
	if v < 2 {
		return v
	}
	return v &^ 1
}

// OutputLabel is the filter graph pad carrying the reframed video.
const OutputLabel = "vout"

// FilterGraph renders the plan as an ffmpeg filter_complex. Input 0 is the
// primary source, input 1 the optional secondary.
func (p Plan) FilterGraph() string {
	var b strings.Builder
	labels := make([]string, len(p.Regions))

	uses := map[int][]int{}
	for i, r := range p.Regions {
		uses[r.Input] = append(uses[r.Input], i)
	}
	src := make([]string, len(p.Regions))
	for _, input := range []int{0, 1} {
		idx := uses[input]
		switch len(idx) {
		case 0:
		case 1:
			src[idx[0]] = fmt.Sprintf("[%d:v]", input)
		default:
			fmt.Fprintf(&b, "[%d:v]split=%d", input, len(idx))
			for _, i := range idx {
				src[i] = fmt.Sprintf("[in%d_%d]", input, i)
				b.WriteString(src[i])
			}
			b.WriteString(";")
		}
	}

	for i, r := range p.Regions {
		labels[i] = fmt.Sprintf("[r%d]", i)
		fmt.Fprintf(&b, "%scrop=%d:%d:%d:%d,scale=%d:%d,setsar=1", src[i], r.Crop.W, r.Crop.H, r.Crop.X, r.Crop.Y, r.Place.W, r.Place.H)
		if r.Blur {
			fmt.Fprintf(&b, ",gblur=sigma=%s", trimFloat(p.BlurSigma))
		}
		b.WriteString(labels[i])
		b.WriteString(";")
	}

	switch p.Layout {
	case LayoutSplit:
		fmt.Fprintf(&b, "%s%svstack=inputs=2[%s]", labels[0], labels[1], OutputLabel)
	default:
		fmt.Fprintf(&b, "%s%soverlay=%d:%d[%s]", labels[0], labels[1], p.Regions[1].Place.X, p.Regions[1].Place.Y, OutputLabel)
	}
	return b.String()
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
