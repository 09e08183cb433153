// Package usecase wires the clip pipeline: transcribe, score, select, render
// every clip through the stage orchestrator, then cover and describe the
// results.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/vertclip/internal/cover"
	"github.com/forPelevin/vertclip/internal/domain/highlights"
	"github.com/forPelevin/vertclip/internal/domain/selection"
	"github.com/forPelevin/vertclip/internal/domain/transcript"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/logging"
	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/render"
	"github.com/forPelevin/vertclip/internal/retry"
	"github.com/forPelevin/vertclip/internal/types"
)

// Output layout inside a run directory.
const (
	ClipsDir  = "clips"
	CoversDir = "covers"
	WorkDir   = "work"
)

type Deps struct {
	Media ports.MediaEngine
	ASR   ports.ASR
	// Scenes is optional. Its suggestions are advisory and its failures are
	// logged, not returned.
	Scenes ports.SceneAnalyzer
	Logger *slog.Logger
	// Observer counts provider retries outside the render stages.
	Observer render.Observer
}

type Usecase struct {
	d   Deps
	log *slog.Logger
}

func New(d Deps) Usecase {
	return Usecase{d: d, log: logging.NewComponentLogger(d.Logger, "usecase")}
}

// Input describes one run. Stages and Render configure the orchestrator that
// is built once the transcript is known.
type Input struct {
	InputMP4 string
	CacheDir string
	RunDir   string
	RunID    string

	ClipsN              int
	MinClip             time.Duration
	MaxClip             time.Duration
	SilenceThreshold    time.Duration
	MinTolerancePercent int
	FallbackWholeVideo  bool

	Job    render.JobConfig
	Stages render.StageConfig
	Render render.Options
	Cover  cover.Options

	// Retry and ProviderTimeout apply to transcription and scene analysis.
	Retry           retry.Policy
	ProviderTimeout time.Duration
}

type Result struct {
	Transcript types.Transcript
	Outcomes   []render.Outcome
	Manifest   types.Manifest
}

func (u Usecase) Run(ctx context.Context, in Input) (Result, error) {
	info, err := u.d.Media.Probe(ctx, in.InputMP4)
	if err != nil {
		return Result{}, fmt.Errorf("probe input: %w", err)
	}
	if info.Duration <= 0 {
		return Result{}, failure.Wrap(failure.ErrInput, "probe input", fmt.Errorf("%s has no duration", in.InputMP4))
	}
	u.log.Info("input probed",
		logging.Int("width", info.Width),
		logging.Int("height", info.Height),
		logging.Duration("duration", info.Duration),
	)

	if err := os.MkdirAll(in.CacheDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create cache dir: %w", err)
	}
	wav := filepath.Join(in.CacheDir, "audio.wav")
	if newerThan(wav, in.InputMP4) {
		u.log.Info("reusing extracted audio", logging.String("path", wav))
	} else if err := u.d.Media.ExtractAudioMono16k(ctx, in.InputMP4, wav); err != nil {
		return Result{}, fmt.Errorf("extract audio: %w", err)
	}

	tr, err := u.transcribe(ctx, wav, in)
	if err != nil {
		return Result{}, err
	}
	ix := transcript.FromTranscript(tr)
	u.log.Info("transcript indexed", logging.Int("tokens", ix.Len()))

	clips, err := u.selectClips(ctx, tr, ix, info, in)
	if err != nil {
		return Result{Transcript: tr}, err
	}

	jobs := make([]*render.Job, 0, len(clips))
	for _, c := range clips {
		jobs = append(jobs, render.NewJob(c, in.Job, filepath.Join(in.RunDir, WorkDir), clipOutput(in.RunDir, c.ID)))
	}
	outcomes, err := u.render(ctx, ix, jobs, in)
	if err != nil {
		return Result{Transcript: tr}, err
	}
	return Result{
		Transcript: tr,
		Outcomes:   outcomes,
		Manifest:   u.finish(ctx, in, outcomes),
	}, nil
}

// Resume continues the latest attempt of every job in a run. Failed jobs get
// a new attempt that starts at the failed stage; completed jobs are reported
// as they are.
func (u Usecase) Resume(ctx context.Context, tr types.Transcript, latest []*render.Job, in Input) (Result, error) {
	var (
		pending []*render.Job
		slots   []int
	)
	outcomes := make([]render.Outcome, len(latest))
	for i, job := range latest {
		switch {
		case job.Done():
			outcomes[i] = render.Outcome{Job: job}
			continue
		case job.Failed():
			next, err := job.Retry()
			if err != nil {
				return Result{}, err
			}
			u.log.Info("retrying job",
				logging.String(logging.FieldJobID, job.ID),
				logging.String(logging.FieldStage, string(job.FailedStage)),
				logging.Int(logging.FieldAttempt, next.Attempt),
			)
			job = next
		}
		pending = append(pending, job)
		slots = append(slots, i)
	}

	ran, err := u.render(ctx, transcript.FromTranscript(tr), pending, in)
	if err != nil {
		return Result{Transcript: tr}, err
	}
	for k, o := range ran {
		outcomes[slots[k]] = o
	}
	return Result{
		Transcript: tr,
		Outcomes:   outcomes,
		Manifest:   u.finish(ctx, in, outcomes),
	}, nil
}

func (u Usecase) transcribe(ctx context.Context, wav string, in Input) (types.Transcript, error) {
	policy := in.Retry
	policy.OnRetry = u.onRetry("transcribe")
	var tr types.Transcript
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		tr, err = u.d.ASR.Transcribe(ctx, wav, in.CacheDir)
		return err
	})
	if err != nil {
		return types.Transcript{}, fmt.Errorf("transcribe: %w", err)
	}
	return tr, nil
}

// selectClips ranks local candidates, blended with advisory scene suggestions
// when available, and picks non-overlapping clips. With nothing selectable it
// falls back to the whole video when allowed.
func (u Usecase) selectClips(ctx context.Context, tr types.Transcript, ix *transcript.Index, info types.MediaInfo, in Input) ([]types.SelectedClip, error) {
	advisory := u.suggest(ctx, tr, in)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	scorer := highlights.New(highlights.Options{
		MinClip:          in.MinClip,
		MaxClip:          in.MaxClip,
		SilenceThreshold: in.SilenceThreshold,
	})
	ranked, err := scorer.Rank(ix, advisory)
	var insufficient *highlights.InsufficientTranscriptError
	switch {
	case errors.As(err, &insufficient) && in.FallbackWholeVideo:
		u.log.Warn("transcript too short for clip selection", logging.Error(err))
	case err != nil:
		return nil, err
	}

	clips := selection.Select(ranked, selection.Options{
		ClipsN:              in.ClipsN,
		MinClip:             in.MinClip,
		MaxClip:             in.MaxClip,
		Source:              in.InputMP4,
		MinTolerancePercent: in.MinTolerancePercent,
	})
	if len(clips) == 0 && in.FallbackWholeVideo {
		u.log.Info("no clip selected, rendering the whole video")
		clips = selection.WholeVideo(in.InputMP4, info.Duration)
		clips[0].Text = ix.Text(0, info.Duration)
	}
	if len(clips) == 0 {
		return nil, failure.Wrap(failure.ErrInput, "select clips", errors.New("no clip fits the duration bounds"))
	}
	u.log.Info("clips selected", logging.Int("clips", len(clips)), logging.Int("candidates", len(ranked)))
	for _, c := range clips {
		u.log.Debug("clip selected",
			logging.String(logging.FieldClipID, c.ID),
			logging.Duration("start", c.Start),
			logging.Duration("end", c.End),
			logging.Float64("score", c.Score),
		)
	}
	return clips, nil
}

func (u Usecase) suggest(ctx context.Context, tr types.Transcript, in Input) []types.Candidate {
	if u.d.Scenes == nil {
		return nil
	}
	policy := in.Retry
	policy.Timeout = in.ProviderTimeout
	policy.OnRetry = u.onRetry("scene_analysis")
	var out []types.Candidate
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var err error
		out, err = u.d.Scenes.SuggestClips(ctx, tr, in.ClipsN, in.MinClip, in.MaxClip)
		return err
	})
	if err != nil {
		u.log.Warn("scene analysis unavailable, using local scoring only",
			logging.String(logging.FieldKind, string(failure.Classify(err))),
			logging.Error(err),
		)
		return nil
	}
	u.log.Info("scene analysis suggested clips", logging.Int("suggestions", len(out)))
	return out
}

func (u Usecase) render(ctx context.Context, ix *transcript.Index, jobs []*render.Job, in Input) ([]render.Outcome, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	orch, err := render.New(render.DefaultStages(u.d.Media, ix, in.Stages), in.Render)
	if err != nil {
		return nil, err
	}
	return orch.RunAll(ctx, jobs), nil
}

// finish writes covers for completed clips and builds the manifest. A cover
// failure only costs the cover.
func (u Usecase) finish(ctx context.Context, in Input, outcomes []render.Outcome) types.Manifest {
	covers := make(map[string]string, len(outcomes))
	for _, o := range outcomes {
		if !o.Done() || ctx.Err() != nil {
			continue
		}
		out := filepath.Join(in.RunDir, CoversDir, o.Job.Clip.ID+".jpg")
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			u.log.Warn("create covers dir failed", logging.Error(err))
			break
		}
		if err := cover.Generate(ctx, u.d.Media, o.Job.Output, o.Job.Clip.Duration(), out, in.Cover); err != nil {
			u.log.Warn("cover failed", logging.String(logging.FieldClipID, o.Job.Clip.ID), logging.Error(err))
			continue
		}
		covers[o.Job.Clip.ID] = out
	}
	return BuildManifest(in.InputMP4, in.RunID, string(in.Job.Layout), in.RunDir, outcomes, covers)
}

func (u Usecase) onRetry(op string) func(int, error, time.Duration) {
	return func(attempt int, err error, wait time.Duration) {
		if u.d.Observer != nil {
			u.d.Observer.ProviderRetry(op)
		}
		u.log.Warn("provider call failed, retrying",
			logging.String("op", op),
			logging.Int("provider_attempt", attempt),
			logging.Duration("wait", wait),
			logging.Error(err),
		)
	}
}

// newerThan reports whether path exists, is non-empty and was modified after
// ref.
func newerThan(path, ref string) bool {
	st, err := os.Stat(path)
	if err != nil || st.Size() == 0 {
		return false
	}
	rs, err := os.Stat(ref)
	if err != nil {
		return false
	}
	return st.ModTime().After(rs.ModTime())
}

func clipOutput(runDir, id string) string {
	return filepath.Join(runDir, ClipsDir, id+".mp4")
}
