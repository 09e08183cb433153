// Package pipeline owns a run directory: it locks it, persists job state and
// the transcript, and drives the usecase for fresh runs and resumes.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/forPelevin/vertclip/internal/config"
	"github.com/forPelevin/vertclip/internal/cover"
	"github.com/forPelevin/vertclip/internal/domain/overlay"
	"github.com/forPelevin/vertclip/internal/domain/reframe"
	"github.com/forPelevin/vertclip/internal/domain/subtitles"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/jobstore"
	"github.com/forPelevin/vertclip/internal/logging"
	"github.com/forPelevin/vertclip/internal/metrics"
	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/vertclip/internal/ports/adapters/openrouter"
	"github.com/forPelevin/vertclip/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/vertclip/internal/render"
	"github.com/forPelevin/vertclip/internal/retry"
	"github.com/forPelevin/vertclip/internal/types"
	"github.com/forPelevin/vertclip/internal/usecase"
)

// Files inside a run directory.
const (
	TranscriptFile = "transcript.json"
	ManifestFile   = "manifest.json"
	lockFile       = ".lock"
)

// ErrRunLocked means another process owns the run directory.
var ErrRunLocked = errors.New("run directory is locked by another vertclip process")

// Deps are the provider adapters. Scenes and Copy are nil when AI is off.
type Deps struct {
	Media  ports.MediaEngine
	ASR    ports.ASR
	Scenes ports.SceneAnalyzer
	Copy   ports.CopyWriter
}

// DefaultDeps builds the ffmpeg, whisper.cpp and OpenRouter adapters.
func DefaultDeps(cfg *config.Config) Deps {
	d := Deps{
		Media: ffmpeg.New(cfg.Tools.FFmpeg, cfg.Tools.FFprobe),
		ASR:   whispercpp.New(cfg.Tools.WhisperBin, cfg.Tools.WhisperModel, cfg.Tools.Language),
	}
	if cfg.AIEnabled() {
		llm := openrouter.New(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
		if cfg.Selection.UseAI {
			d.Scenes = llm
		}
		d.Copy = llm
	}
	return d
}

// checker is implemented by adapters that can verify their tools before a
// run starts.
type checker interface {
	Check() error
}

// Check runs the preflight checks of every adapter that has one.
func (d Deps) Check() error {
	for _, dep := range []any{d.Media, d.ASR, d.Scenes, d.Copy} {
		c, ok := dep.(checker)
		if !ok {
			continue
		}
		if err := c.Check(); err != nil {
			return failure.Wrap(failure.ErrInput, "preflight", err)
		}
	}
	return nil
}

type Pipeline struct {
	cfg  *config.Config
	deps Deps
	log  *slog.Logger
	now  func() time.Time
}

func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  logging.NewComponentLogger(logger, "pipeline"),
		now:  time.Now,
	}
}

// Summary is what a run or resume leaves behind.
type Summary struct {
	RunDir   string
	RunID    string
	Manifest types.Manifest
	Outcomes []render.Outcome
}

// Failed counts jobs that did not complete.
func (s Summary) Failed() int {
	n := 0
	for _, o := range s.Outcomes {
		if !o.Done() {
			n++
		}
	}
	return n
}

// Run processes inputMP4 into a fresh run directory under paths.out_dir.
func (p *Pipeline) Run(ctx context.Context, inputMP4 string) (Summary, error) {
	absIn, err := filepath.Abs(inputMP4)
	if err != nil {
		return Summary{}, err
	}
	if _, err := os.Stat(absIn); err != nil {
		return Summary{}, failure.Wrap(failure.ErrInput, "stat input", err)
	}
	if err := p.deps.Check(); err != nil {
		return Summary{}, err
	}

	runDir := buildRunOutDir(p.cfg.Paths.OutDir, absIn, p.now().UTC())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create run dir: %w", err)
	}
	unlock, err := lockRun(runDir)
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	store, err := jobstore.Open(ctx, runDir)
	if err != nil {
		return Summary{}, err
	}
	defer store.Close()

	runID := uuid.NewString()
	snapshot, err := configSnapshot(p.cfg)
	if err != nil {
		return Summary{}, err
	}
	if err := store.SaveRun(ctx, jobstore.RunInfo{
		RunID:      runID,
		Input:      absIn,
		Transcript: TranscriptFile,
		Config:     snapshot,
		CreatedAt:  p.now().UTC(),
	}); err != nil {
		return Summary{}, err
	}
	log := p.log.With(logging.String(logging.FieldRunID, runID))
	log.Info("run started", logging.String("input", absIn), logging.String("run_dir", runDir))

	collector := metrics.New()
	in := p.input(absIn, runDir, runID, store, collector, log)
	res, runErr := usecase.New(p.usecaseDeps(collector, log)).Run(ctx, in)
	if len(res.Transcript.Segments) > 0 {
		if err := writeJSON(filepath.Join(runDir, TranscriptFile), res.Transcript); err != nil {
			log.Warn("write transcript failed", logging.Error(err))
		}
	}
	if runErr != nil {
		return Summary{RunDir: runDir, RunID: runID}, runErr
	}
	return p.finish(runDir, runID, res, collector, log)
}

// Resume continues an earlier run from its job store: failed jobs restart at
// their failed stage with a new attempt.
func (p *Pipeline) Resume(ctx context.Context, runDir string) (Summary, error) {
	unlock, err := lockRun(runDir)
	if err != nil {
		return Summary{}, err
	}
	defer unlock()

	store, err := openExisting(ctx, runDir)
	if err != nil {
		return Summary{}, err
	}
	defer store.Close()

	info, err := store.Run(ctx)
	if err != nil {
		return Summary{}, err
	}
	var tr types.Transcript
	if err := readJSON(filepath.Join(runDir, info.Transcript), &tr); err != nil {
		return Summary{}, fmt.Errorf("load transcript: %w", err)
	}
	latest, err := store.Latest(ctx)
	if err != nil {
		return Summary{}, err
	}
	if len(latest) == 0 {
		return Summary{}, failure.Wrap(failure.ErrInput, "resume", fmt.Errorf("run %s has no jobs", runDir))
	}

	cfg, err := config.Restore(info.Config, p.cfg)
	if err != nil {
		return Summary{}, err
	}
	rp := *p
	rp.cfg = cfg

	log := p.log.With(logging.String(logging.FieldRunID, info.RunID))
	log.Info("resuming run", logging.String("run_dir", runDir), logging.Int("jobs", len(latest)))

	collector := metrics.New()
	in := rp.input(info.Input, runDir, info.RunID, store, collector, log)
	if in.Render.Copy == nil && wantsAITitles(latest) {
		in.Render.Copy = p.deps.Copy
		in.Render.Chooser = render.PickTitle{}
	}
	res, err := usecase.New(rp.usecaseDeps(collector, log)).Resume(ctx, tr, latest, in)
	if err != nil {
		return Summary{RunDir: runDir, RunID: info.RunID}, err
	}
	return p.finish(runDir, info.RunID, res, collector, log)
}

// ResumeConfig is the configuration a resume of runDir runs with: the stored
// run configuration restored over current.
func ResumeConfig(ctx context.Context, runDir string, current *config.Config) (*config.Config, error) {
	store, err := openExisting(ctx, runDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	info, err := store.Run(ctx)
	if err != nil {
		return nil, err
	}
	return config.Restore(info.Config, current)
}

// wantsAITitles reports whether an unfinished job still needs the copy
// provider.
func wantsAITitles(jobs []*render.Job) bool {
	for _, j := range jobs {
		if !j.Done() && j.Config.Title.Source == overlay.TitleAI && len(j.Config.Title.Candidates) == 0 {
			return true
		}
	}
	return false
}

// Status reads the latest attempt of every job without taking the run lock.
func Status(ctx context.Context, runDir string) (jobstore.RunInfo, []*render.Job, error) {
	store, err := openExisting(ctx, runDir)
	if err != nil {
		return jobstore.RunInfo{}, nil, err
	}
	defer store.Close()
	info, err := store.Run(ctx)
	if err != nil {
		return jobstore.RunInfo{}, nil, err
	}
	jobs, err := store.Latest(ctx)
	if err != nil {
		return jobstore.RunInfo{}, nil, err
	}
	return info, jobs, nil
}

// History reads every attempt of every job in runDir, grouped per job in clip
// order and oldest attempt first.
func History(ctx context.Context, runDir string) ([][]*render.Job, error) {
	store, err := openExisting(ctx, runDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	latest, err := store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]*render.Job, 0, len(latest))
	for _, j := range latest {
		attempts, err := store.Attempts(ctx, j.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, attempts)
	}
	return out, nil
}

func (p *Pipeline) finish(runDir, runID string, res usecase.Result, collector *metrics.Collector, log *slog.Logger) (Summary, error) {
	manifestPath := filepath.Join(runDir, ManifestFile)
	if err := writeJSON(manifestPath, res.Manifest); err != nil {
		return Summary{}, fmt.Errorf("write manifest: %w", err)
	}
	if err := collector.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
		log.Warn("write metrics textfile failed", logging.Error(err))
	}
	s := Summary{RunDir: runDir, RunID: runID, Manifest: res.Manifest, Outcomes: res.Outcomes}
	log.Info("run finished",
		logging.Int("clips", len(res.Outcomes)),
		logging.Int("failed", s.Failed()),
		logging.String("manifest", manifestPath),
	)
	return s, nil
}

func (p *Pipeline) usecaseDeps(collector *metrics.Collector, log *slog.Logger) usecase.Deps {
	return usecase.Deps{
		Media:    p.deps.Media,
		ASR:      p.deps.ASR,
		Scenes:   p.deps.Scenes,
		Logger:   log,
		Observer: collector,
	}
}

// input maps configuration onto one usecase run.
func (p *Pipeline) input(inputMP4, runDir, runID string, rec render.Recorder, collector *metrics.Collector, log *slog.Logger) usecase.Input {
	c := p.cfg
	layout, _ := reframe.ParseLayout(c.Render.Layout)
	position, _ := subtitles.ParsePosition(c.Subtitles.Position)
	titleSource, _ := overlay.ParseTitleSource(c.Overlay.TitleSource)
	effect, _ := overlay.ParseEffect(c.Overlay.Effect)

	job := render.JobConfig{
		Layout:    layout,
		Subtitles: render.SubtitleConfig{Enabled: c.Subtitles.Enabled, Position: position},
		Title:     overlay.Title{Source: titleSource, Text: c.Overlay.Title},
		Effect:    effect,
	}
	if c.Music.Track != "" {
		job.Music = &render.Music{Track: c.Music.Track, Gain: c.Music.Gain, Loop: c.Music.Loop}
	}

	lang := language.Und
	if c.Tools.Language != "" {
		if tag, err := language.Parse(c.Tools.Language); err == nil {
			lang = tag
		}
	}
	target := reframe.Size{W: c.Render.Width, H: c.Render.Height}
	stages := render.StageConfig{
		Reframe:   reframe.Options{Target: target, BlurSigma: c.Render.BlurSigma},
		Secondary: c.Render.SplitSecondary,
		Policy: subtitles.Policy{
			MaxChars:        c.Subtitles.MaxChars,
			MaxWords:        c.Subtitles.MaxWords,
			MaxLineDuration: time.Duration(c.Subtitles.MaxLineSeconds * float64(time.Second)),
		},
		Style: subtitles.Style{
			Width:    target.W,
			Height:   target.H,
			FontSize: c.Subtitles.FontSize,
			Karaoke:  c.Subtitles.Karaoke,
		},
		Overlay: overlay.Params{
			Width:         target.W,
			Height:        target.H,
			ZoomFactor:    c.Overlay.ZoomFactor,
			EffectWindow:  time.Duration(c.Overlay.EffectMS) * time.Millisecond,
			TitleDuration: time.Duration(c.Overlay.TitleSeconds * float64(time.Second)),
			FontFile:      c.Overlay.FontFile,
		},
		UppercaseTitle: c.Overlay.Uppercase,
		Language:       lang,
	}

	policy := retry.Policy{
		Attempts: c.Retry.Attempts,
		Backoff:  time.Duration(c.Retry.BackoffMS) * time.Millisecond,
	}
	opts := render.Options{
		Logger:            log,
		Recorder:          rec,
		Observer:          collector,
		Retry:             policy,
		ProviderTimeout:   c.ProviderTimeout(),
		Workers:           c.Render.Workers,
		KeepIntermediates: c.Render.KeepIntermediates,
	}
	if titleSource == overlay.TitleAI {
		opts.Copy = p.deps.Copy
		opts.Chooser = render.PickTitle{}
	}

	return usecase.Input{
		InputMP4:            inputMP4,
		CacheDir:            filepath.Join(c.Paths.CacheDir, "runs", hash(inputMP4)),
		RunDir:              runDir,
		RunID:               runID,
		ClipsN:              c.Selection.Clips,
		MinClip:             c.MinClip(),
		MaxClip:             c.MaxClip(),
		SilenceThreshold:    time.Duration(c.Selection.SilenceThresholdMS) * time.Millisecond,
		MinTolerancePercent: c.Selection.MinTolerancePercent,
		FallbackWholeVideo:  c.Selection.FallbackWholeVideo,
		Job:                 job,
		Stages:              stages,
		Render:              opts,
		Cover:               cover.Options{},
		Retry:               policy,
		ProviderTimeout:     c.ProviderTimeout(),
	}
}

func lockRun(runDir string) (func(), error) {
	lock := flock.New(filepath.Join(runDir, lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunLocked, runDir)
	}
	return func() { _ = lock.Unlock() }, nil
}

func openExisting(ctx context.Context, runDir string) (*jobstore.Store, error) {
	if _, err := os.Stat(filepath.Join(runDir, jobstore.FileName)); err != nil {
		return nil, failure.Wrap(failure.ErrInput, "open run", fmt.Errorf("%s is not a vertclip run directory: %w", runDir, err))
	}
	return jobstore.Open(ctx, runDir)
}

// configSnapshot records the effective configuration without secrets.
func configSnapshot(cfg *config.Config) (json.RawMessage, error) {
	c := *cfg
	c.LLM.APIKey = ""
	b, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return b, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func buildRunOutDir(outRoot, inputMP4 string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(inputMP4), filepath.Ext(inputMP4))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	suffix := hash(fmt.Sprintf("%s|%d", inputMP4, now.UTC().UnixNano()))[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

var (
	_ ports.MediaEngine   = (*ffmpeg.Adapter)(nil)
	_ ports.ASR           = (*whispercpp.Adapter)(nil)
	_ ports.SceneAnalyzer = (*openrouter.Adapter)(nil)
	_ ports.CopyWriter    = (*openrouter.Adapter)(nil)
	_ render.Recorder     = (*jobstore.Store)(nil)
	_ render.Observer     = (*metrics.Collector)(nil)
)
