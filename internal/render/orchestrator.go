package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/vertclip/internal/domain/overlay"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/logging"
	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/retry"
	"github.com/forPelevin/vertclip/internal/types"
)

// Recorder persists a job after every status transition.
type Recorder interface {
	Save(ctx context.Context, job *Job) error
}

// Observer receives counters for metrics.
type Observer interface {
	StageFinished(stage, result string, d time.Duration)
	JobFinished(status string)
	ProviderRetry(op string)
}

type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
	Observer Observer

	// Copy and Chooser resolve ai titles right before the overlay stage.
	Copy    ports.CopyWriter
	Chooser ports.TitleChooser
	Retry   retry.Policy
	// ProviderTimeout bounds each provider attempt. Required with Copy.
	ProviderTimeout time.Duration

	Workers           int
	KeepIntermediates bool
}

type Orchestrator struct {
	stages map[StageName]Stage
	opts   Options
	log    *slog.Logger
}

func New(stages []Stage, opts Options) (*Orchestrator, error) {
	byName := make(map[StageName]Stage, len(stages))
	for _, s := range stages {
		if indexOf(s.Name()) < 0 {
			return nil, fmt.Errorf("unknown stage %q", s.Name())
		}
		if _, dup := byName[s.Name()]; dup {
			return nil, fmt.Errorf("duplicate stage %q", s.Name())
		}
		byName[s.Name()] = s
	}
	for _, name := range Order {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("missing stage %q", name)
		}
	}
	if opts.Copy != nil && opts.ProviderTimeout <= 0 {
		return nil, failure.Wrap(failure.ErrInput, "provider timeout must be set when a copy provider is used", nil)
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	return &Orchestrator{
		stages: byName,
		opts:   opts,
		log:    logging.NewComponentLogger(opts.Logger, "render"),
	}, nil
}

// Outcome is the per-job result of a run. Err is nil only for a completed job.
type Outcome struct {
	Job *Job
	Err error
}

func (o Outcome) Done() bool { return o.Err == nil && o.Job != nil && o.Job.Done() }

// RunAll renders jobs in parallel, bounded by Options.Workers. A failing job
// never stops its siblings.
func (o *Orchestrator) RunAll(ctx context.Context, jobs []*Job) []Outcome {
	out := make([]Outcome, len(jobs))
	var g errgroup.Group
	g.SetLimit(o.opts.Workers)
	for i, job := range jobs {
		g.Go(func() error {
			out[i] = o.Run(ctx, job)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Run executes the job's pending stages in order and stops at the first
// failure. A job that already failed must be retried with Job.Retry first.
func (o *Orchestrator) Run(ctx context.Context, job *Job) Outcome {
	log := o.log.With(
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldClipID, job.Clip.ID),
		logging.Int(logging.FieldAttempt, job.Attempt),
	)
	if job.Failed() {
		return Outcome{Job: job, Err: fmt.Errorf("job %s attempt %d failed at %s: retry it before running", job.ID, job.Attempt, job.FailedStage)}
	}
	if err := os.MkdirAll(job.WorkDir, 0o755); err != nil {
		return Outcome{Job: job, Err: fmt.Errorf("create work dir: %w", err)}
	}

	for {
		name, ok := job.Next()
		if !ok {
			break
		}
		if err := o.runStage(ctx, job, name, log); err != nil {
			o.jobFinished(string(StatusFailed))
			return Outcome{Job: job, Err: err}
		}
	}

	if err := o.finalize(ctx, job, log); err != nil {
		log.Error("finalize failed", logging.Error(err))
		o.jobFinished(string(StatusFailed))
		return Outcome{Job: job, Err: err}
	}
	o.jobFinished(string(StatusDone))
	log.Info("job completed", logging.String("output", job.Output))
	return Outcome{Job: job}
}

func (o *Orchestrator) runStage(ctx context.Context, job *Job, name StageName, log *slog.Logger) error {
	log = log.With(logging.String(logging.FieldStage, string(name)))
	in := job.Input(name)
	start := time.Now()
	log.Debug("stage started", logging.String("input", in.Path))

	art, err := o.execute(ctx, job, name, in, log)
	elapsed := time.Since(start)
	if err != nil {
		reason := string(failure.Classify(err))
		if ctx.Err() != nil {
			reason = ReasonCancelled
			if !errors.Is(err, failure.ErrCancelled) {
				err = failure.Wrap(failure.ErrCancelled, string(name), err)
			}
		}
		serr := &StageError{Stage: name, Artifact: in, Err: err}
		if merr := job.markFailed(name, reason, serr); merr != nil {
			return merr
		}
		o.save(ctx, job, log)
		o.stageFinished(name, StatusFailed, elapsed)
		log.Error("stage failed",
			logging.String(logging.FieldKind, reason),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		)
		return serr
	}

	if err := job.markDone(name, art); err != nil {
		return err
	}
	o.save(ctx, job, log)
	o.stageFinished(name, StatusDone, elapsed)
	log.Info("stage completed", logging.String("artifact", art.Path), logging.Duration("elapsed", elapsed))
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, job *Job, name StageName, in Artifact, log *slog.Logger) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	if name == StageOverlay {
		if err := o.resolveTitle(ctx, job, log); err != nil {
			return Artifact{}, err
		}
	}
	return o.stages[name].Run(ctx, job, in)
}

// resolveTitle is the decision point for ai titles: suggestions come from the
// copy provider and the chooser picks one. Suggestions are kept on the job so
// a resumed attempt does not ask the provider again.
func (o *Orchestrator) resolveTitle(ctx context.Context, job *Job, log *slog.Logger) error {
	t := job.Config.Title
	if t.Source != overlay.TitleAI || strings.TrimSpace(t.Text) != "" {
		return nil
	}
	if len(t.Candidates) == 0 {
		if o.opts.Copy == nil {
			return failure.Wrap(failure.ErrInput, "ai title requested without a copy provider", nil)
		}
		policy := o.opts.Retry
		policy.Timeout = o.opts.ProviderTimeout
		policy.OnRetry = func(attempt int, err error, wait time.Duration) {
			if o.opts.Observer != nil {
				o.opts.Observer.ProviderRetry("titles")
			}
			log.Warn("title provider failed, retrying",
				logging.Int("provider_attempt", attempt),
				logging.Duration("wait", wait),
				logging.Error(err),
			)
		}
		var cp types.Copy
		err := retry.Do(ctx, policy, func(ctx context.Context) error {
			var err error
			cp, err = o.opts.Copy.WriteCopy(ctx, job.Clip.Text)
			if err != nil {
				return err
			}
			cp.Titles = cleanTitles(cp.Titles)
			if len(cp.Titles) == 0 {
				return failure.Wrap(failure.ErrProvider, "no title suggestions", nil)
			}
			return nil
		})
		if err != nil {
			return err
		}
		job.Copy = cp
		t.Candidates = cp.Titles
	}

	chosen := ""
	if o.opts.Chooser != nil {
		var err error
		chosen, err = o.opts.Chooser.ChooseTitle(ctx, job.Clip, t.Candidates)
		if err != nil {
			return err
		}
	}
	t.Text = strings.TrimSpace(chosen)
	job.Config.Title = t
	log.Info("title resolved", logging.String("title", t.Text), logging.Int("suggestions", len(t.Candidates)))
	return nil
}

func cleanTitles(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// finalize moves the last artifact to the job output and, unless
// intermediates are kept, removes the earlier media artifacts.
func (o *Orchestrator) finalize(ctx context.Context, job *Job, log *slog.Logger) error {
	final, ok := job.Final()
	if !ok {
		return nil
	}
	if job.Output != "" && final.Path != job.Output {
		if err := os.MkdirAll(filepath.Dir(job.Output), 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
		if err := os.Rename(final.Path, job.Output); err != nil {
			return fmt.Errorf("move final artifact: %w", err)
		}
	}
	if !o.opts.KeepIntermediates {
		o.reclaim(job, final, log)
	}
	o.save(ctx, job, log)
	return nil
}

// sidecars are the non-media files stages write next to their artifacts.
var sidecars = []string{".ass", ".txt"}

// reclaim deletes intermediate media and sidecars owned by the job. The source
// and files outside the work dir are never touched.
func (o *Orchestrator) reclaim(job *Job, final Artifact, log *slog.Logger) {
	removed := map[string]bool{final.Path: true, job.Clip.Source: true, job.Output: true}
	for _, s := range Order {
		paths := []string{job.Artifacts[s].Path}
		for _, ext := range sidecars {
			paths = append(paths, job.ArtifactPath(s, ext))
		}
		for _, p := range paths {
			if p == "" || removed[p] || !within(job.WorkDir, p) {
				continue
			}
			removed[p] = true
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				log.Warn("reclaim artifact failed", logging.String("path", p), logging.Error(err))
			}
		}
	}
	job.Reclaimed = true
}

func within(dir, path string) bool {
	if dir == "" {
		return false
	}
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

func (o *Orchestrator) save(ctx context.Context, job *Job, log *slog.Logger) {
	if o.opts.Recorder == nil {
		return
	}
	// Transitions are persisted even when the run is being cancelled.
	if err := o.opts.Recorder.Save(context.WithoutCancel(ctx), job); err != nil {
		log.Warn("persist job failed", logging.Error(err))
	}
}

func (o *Orchestrator) stageFinished(name StageName, st Status, d time.Duration) {
	if o.opts.Observer != nil {
		o.opts.Observer.StageFinished(string(name), string(st), d)
	}
}

func (o *Orchestrator) jobFinished(status string) {
	if o.opts.Observer != nil {
		o.opts.Observer.JobFinished(status)
	}
}
