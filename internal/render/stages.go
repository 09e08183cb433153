package render

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/text/language"

	"github.com/forPelevin/vertclip/internal/domain/audiomix"
	"github.com/forPelevin/vertclip/internal/domain/overlay"
	"github.com/forPelevin/vertclip/internal/domain/reframe"
	"github.com/forPelevin/vertclip/internal/domain/subtitles"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/types"
)

// DefaultStages wires the four media stages onto one engine.
func DefaultStages(engine ports.MediaEngine, tokens TokenSource, cfg StageConfig) []Stage {
	return []Stage{
		&ReframeStage{Engine: engine, Options: cfg.Reframe, Secondary: cfg.Secondary},
		&SubtitleStage{Engine: engine, Tokens: tokens, Policy: cfg.Policy, Style: cfg.Style},
		&OverlayStage{Engine: engine, Params: cfg.Overlay, Uppercase: cfg.UppercaseTitle, Language: cfg.Language},
		&AudioStage{Engine: engine},
	}
}

type StageConfig struct {
	Reframe        reframe.Options
	Secondary      string
	Policy         subtitles.Policy
	Style          subtitles.Style
	Overlay        overlay.Params
	UppercaseTitle bool
	Language       language.Tag
}

type ReframeStage struct {
	Engine  ports.MediaEngine
	Options reframe.Options
	// Secondary feeds the bottom half of the split layout. Empty reuses the
	// source.
	Secondary string
}

func (s *ReframeStage) Name() StageName { return StageReframe }

func (s *ReframeStage) Run(ctx context.Context, job *Job, in Artifact) (Artifact, error) {
	src, err := s.Engine.Probe(ctx, in.Path)
	if err != nil {
		return Artifact{}, transformErr("probe source", err)
	}
	var second *reframe.Size
	secondary := ""
	if job.Config.Layout == reframe.LayoutSplit && s.Secondary != "" {
		info, err := s.Engine.Probe(ctx, s.Secondary)
		if err != nil {
			return Artifact{}, transformErr("probe secondary", err)
		}
		second = &reframe.Size{W: info.Width, H: info.Height}
		secondary = s.Secondary
	}
	plan, err := reframe.Compute(reframe.Size{W: src.Width, H: src.Height}, second, job.Config.Layout, s.Options)
	if err != nil {
		return Artifact{}, err
	}
	out := job.ArtifactPath(StageReframe, ".mp4")
	err = s.Engine.Reframe(ctx, ports.ReframeRequest{
		Source:    in.Path,
		Secondary: secondary,
		Start:     job.Clip.Start,
		End:       job.Clip.End,
		Plan:      plan,
		Out:       out,
	})
	if err != nil {
		return Artifact{}, transformErr("reframe", err)
	}
	return Artifact{Stage: StageReframe, Path: out}, nil
}

// TokenSource yields transcript tokens on the source timeline.
// *transcript.Index implements it.
type TokenSource interface {
	Range(start, end time.Duration) []types.Token
}

type SubtitleStage struct {
	Engine ports.MediaEngine
	Tokens TokenSource
	Policy subtitles.Policy
	Style  subtitles.Style
}

func (s *SubtitleStage) Name() StageName { return StageSubtitle }

func (s *SubtitleStage) Run(ctx context.Context, job *Job, in Artifact) (Artifact, error) {
	if !job.Config.Subtitles.Enabled {
		return passThrough(StageSubtitle, in), nil
	}
	if s.Tokens == nil {
		return Artifact{}, failure.Wrap(failure.ErrInput, "subtitles enabled without a transcript", nil)
	}
	clip := job.Clip
	toks := subtitles.Rebase(s.Tokens.Range(clip.Start, clip.End), clip.Start, clip.End)
	lines := subtitles.GroupLines(toks, s.Policy)
	if len(lines) == 0 {
		return passThrough(StageSubtitle, in), nil
	}
	style := s.Style
	style.Position = job.Config.Subtitles.Position

	assPath := job.ArtifactPath(StageSubtitle, ".ass")
	if err := os.WriteFile(assPath, []byte(subtitles.RenderASS(lines, style)), 0o644); err != nil {
		return Artifact{}, transformErr("write subtitles", err)
	}
	out := job.ArtifactPath(StageSubtitle, ".mp4")
	if err := s.Engine.BurnSubtitles(ctx, in.Path, assPath, out); err != nil {
		return Artifact{}, transformErr("burn subtitles", err)
	}
	return Artifact{Stage: StageSubtitle, Path: out}, nil
}

type OverlayStage struct {
	Engine ports.MediaEngine
	// Params carries frame size, effect tuning and font; title and effect
	// come from the job.
	Params    overlay.Params
	Uppercase bool
	Language  language.Tag
}

func (s *OverlayStage) Name() StageName { return StageOverlay }

func (s *OverlayStage) Run(ctx context.Context, job *Job, in Artifact) (Artifact, error) {
	p := s.Params
	p.Title = job.Config.Title
	p.Effect = job.Config.Effect
	if err := p.Validate(); err != nil {
		return Artifact{}, err
	}
	if p.NoOp() {
		return passThrough(StageOverlay, in), nil
	}
	textFile := ""
	if p.Title.Enabled() {
		textFile = job.ArtifactPath(StageOverlay, ".txt")
		text := overlay.NormalizeTitle(p.Title.Text, s.Uppercase, s.Language)
		if err := os.WriteFile(textFile, []byte(text), 0o644); err != nil {
			return Artifact{}, transformErr("write title", err)
		}
	}
	filter, err := p.FilterGraph(textFile)
	if err != nil {
		return Artifact{}, failure.Wrap(failure.ErrInput, "overlay filter", err)
	}
	out := job.ArtifactPath(StageOverlay, ".mp4")
	if err := s.Engine.Overlay(ctx, in.Path, filter, out); err != nil {
		return Artifact{}, transformErr("overlay", err)
	}
	return Artifact{Stage: StageOverlay, Path: out}, nil
}

type AudioStage struct {
	Engine ports.MediaEngine
}

func (s *AudioStage) Name() StageName { return StageAudio }

func (s *AudioStage) Run(ctx context.Context, job *Job, in Artifact) (Artifact, error) {
	m := job.Config.Music
	if m == nil || m.Track == "" {
		return passThrough(StageAudio, in), nil
	}
	if err := audiomix.ValidateGain(m.Gain); err != nil {
		return Artifact{}, err
	}
	info, err := s.Engine.Probe(ctx, in.Path)
	if err != nil {
		return Artifact{}, transformErr("probe clip", err)
	}
	dur := info.Duration
	if dur <= 0 {
		dur = job.Clip.Duration()
	}
	params := audiomix.Params{
		Track:          m.Track,
		Gain:           m.Gain,
		Loop:           m.Loop,
		Duration:       dur,
		SourceHasAudio: info.HasAudio,
	}
	if err := params.Validate(); err != nil {
		return Artifact{}, err
	}
	out := job.ArtifactPath(StageAudio, ".mp4")
	if err := s.Engine.MixAudio(ctx, in.Path, params, out); err != nil {
		return Artifact{}, transformErr("mix audio", err)
	}
	return Artifact{Stage: StageAudio, Path: out}, nil
}

// transformErr marks engine failures as transform errors unless they already
// carry a class.
func transformErr(op string, err error) error {
	if failure.Classify(err) != failure.KindUnknown {
		return fmt.Errorf("%s: %w", op, err)
	}
	return failure.Wrap(failure.ErrTransform, op, err)
}
