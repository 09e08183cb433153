// Package render drives selected clips through the ordered rendering stages
// (reframe, subtitle, overlay, audio) and tracks per-stage state so a failed
// job can resume from the stage that failed.
package render

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/vertclip/internal/domain/overlay"
	"github.com/forPelevin/vertclip/internal/domain/reframe"
	"github.com/forPelevin/vertclip/internal/domain/subtitles"
	"github.com/forPelevin/vertclip/internal/types"
)

type StageName string

const (
	StageReframe  StageName = "reframe"
	StageSubtitle StageName = "subtitle"
	StageOverlay  StageName = "overlay"
	StageAudio    StageName = "audio"
)

// Order is the only execution order of stages within a job.
var Order = []StageName{StageReframe, StageSubtitle, StageOverlay, StageAudio}

type Status string

const (
	StatusPending Status = "pending"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// ReasonCancelled is recorded on the stage that was running when the job's
// context was cancelled.
const ReasonCancelled = "Cancelled"

// Artifact is the media output of one stage. A stage that has nothing to do
// passes its input through, so two stages may reference the same path.
type Artifact struct {
	Stage StageName `json:"stage"`
	Path  string    `json:"path"`
}

type SubtitleConfig struct {
	Enabled  bool               `json:"enabled"`
	Position subtitles.Position `json:"position"`
}

type Music struct {
	Track string  `json:"track"`
	Gain  float64 `json:"gain"`
	Loop  bool    `json:"loop"`
}

// JobConfig is what the user chose for a clip.
type JobConfig struct {
	Layout    reframe.Layout `json:"layout"`
	Subtitles SubtitleConfig `json:"subtitles"`
	Title     overlay.Title  `json:"title"`
	Effect    overlay.Effect `json:"effect"`
	Music     *Music         `json:"music,omitempty"`
}

// Job is one clip's trip through the stages. Stage status only moves forward
// from pending; a retry is a new attempt built by Retry.
type Job struct {
	ID      string             `json:"id"`
	Attempt int                `json:"attempt"`
	Clip    types.SelectedClip `json:"clip"`
	Config  JobConfig          `json:"config"`
	// Copy holds the provider's social copy once the title was resolved.
	Copy types.Copy `json:"copy"`

	WorkDir string `json:"work_dir"`
	// Output is where the final artifact is moved once every stage is done.
	Output string `json:"output,omitempty"`

	Status    map[StageName]Status   `json:"status"`
	Artifacts map[StageName]Artifact `json:"artifacts"`

	FailedStage StageName `json:"failed_stage,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Error       string    `json:"error,omitempty"`
	Reclaimed   bool      `json:"reclaimed,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

func NewJob(clip types.SelectedClip, cfg JobConfig, workDir, output string) *Job {
	j := &Job{
		ID:        uuid.NewString(),
		Attempt:   1,
		Clip:      clip,
		Config:    cfg,
		WorkDir:   workDir,
		Output:    output,
		Status:    make(map[StageName]Status, len(Order)),
		Artifacts: make(map[StageName]Artifact, len(Order)),
		UpdatedAt: time.Now().UTC(),
	}
	for _, s := range Order {
		j.Status[s] = StatusPending
	}
	return j
}

func (j *Job) StageStatus(s StageName) Status {
	if st, ok := j.Status[s]; ok {
		return st
	}
	return StatusPending
}

func (j *Job) Failed() bool { return j.FailedStage != "" }

// Done reports whether every stage completed.
func (j *Job) Done() bool {
	for _, s := range Order {
		if j.StageStatus(s) != StatusDone {
			return false
		}
	}
	return true
}

func (j *Job) Terminal() bool { return j.Done() || j.Failed() }

// Next returns the first pending stage, provided every earlier stage is done
// and nothing failed.
func (j *Job) Next() (StageName, bool) {
	if j.Failed() {
		return "", false
	}
	for _, s := range Order {
		switch j.StageStatus(s) {
		case StatusDone:
			continue
		case StatusPending:
			return s, true
		default:
			return "", false
		}
	}
	return "", false
}

// Input is the artifact a stage consumes: the previous stage's output, or the
// source video for the first stage.
func (j *Job) Input(s StageName) Artifact {
	i := indexOf(s)
	if i <= 0 {
		return Artifact{Stage: "source", Path: j.Clip.Source}
	}
	return j.Artifacts[Order[i-1]]
}

// Final is the last stage's artifact; ok is false until the job is done.
func (j *Job) Final() (Artifact, bool) {
	if !j.Done() {
		return Artifact{}, false
	}
	return j.Artifacts[Order[len(Order)-1]], true
}

// ArtifactPath is where stage s writes its output for this clip.
func (j *Job) ArtifactPath(s StageName, ext string) string {
	return filepath.Join(j.WorkDir, fmt.Sprintf("%s_%d_%s%s", j.Clip.ID, indexOf(s)+1, s, ext))
}

func (j *Job) markDone(s StageName, a Artifact) error {
	if err := j.transition(s); err != nil {
		return err
	}
	j.Status[s] = StatusDone
	j.Artifacts[s] = a
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (j *Job) markFailed(s StageName, reason string, err error) error {
	if terr := j.transition(s); terr != nil {
		return terr
	}
	j.Status[s] = StatusFailed
	j.FailedStage = s
	j.Reason = reason
	if err != nil {
		j.Error = err.Error()
	}
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (j *Job) transition(s StageName) error {
	if indexOf(s) < 0 {
		return fmt.Errorf("unknown stage %q", s)
	}
	if st := j.StageStatus(s); st != StatusPending {
		return fmt.Errorf("stage %s is %s, not pending", s, st)
	}
	if next, ok := j.Next(); !ok || next != s {
		return fmt.Errorf("stage %s is not the next stage", s)
	}
	return nil
}

// Retry returns the next attempt of a failed job. Completed stages and their
// artifacts carry over; the failed stage and everything after it are pending.
// The failed attempt itself is left untouched.
func (j *Job) Retry() (*Job, error) {
	if !j.Failed() {
		return nil, fmt.Errorf("job %s attempt %d has not failed", j.ID, j.Attempt)
	}
	n := *j
	n.Attempt = j.Attempt + 1
	n.Status = make(map[StageName]Status, len(Order))
	n.Artifacts = make(map[StageName]Artifact, len(Order))
	for _, s := range Order {
		if j.StageStatus(s) == StatusDone {
			n.Status[s] = StatusDone
			n.Artifacts[s] = j.Artifacts[s]
			continue
		}
		n.Status[s] = StatusPending
	}
	n.Config.Title.Candidates = slices.Clone(j.Config.Title.Candidates)
	if j.Config.Music != nil {
		m := *j.Config.Music
		n.Config.Music = &m
	}
	n.Copy.Titles = slices.Clone(j.Copy.Titles)
	n.Copy.Tags = slices.Clone(j.Copy.Tags)
	n.Copy.Descriptions = maps.Clone(j.Copy.Descriptions)
	n.FailedStage, n.Reason, n.Error = "", "", ""
	n.UpdatedAt = time.Now().UTC()
	return &n, nil
}

func indexOf(s StageName) int {
	for i, o := range Order {
		if o == s {
			return i
		}
	}
	return -1
}
