package render

import (
	"testing"

	"github.com/forPelevin/vertclip/internal/domain/overlay"
	"github.com/forPelevin/vertclip/internal/types"
)

func TestJob_TransitionsAreMonotonic(t *testing.T) {
	j := NewJob(types.SelectedClip{ID: "001", Source: "in.mp4"}, JobConfig{}, "/tmp/w", "")

	if err := j.markDone(StageSubtitle, Artifact{}); err == nil {
		t.Fatal("a stage must not complete before its predecessor")
	}
	if err := j.markDone(StageReframe, Artifact{Stage: StageReframe, Path: "r.mp4"}); err != nil {
		t.Fatal(err)
	}
	if err := j.markFailed(StageReframe, "x", nil); err == nil {
		t.Fatal("done must never become failed")
	}
	if err := j.markFailed(StageSubtitle, "transform", nil); err != nil {
		t.Fatal(err)
	}
	if err := j.markDone(StageSubtitle, Artifact{}); err == nil {
		t.Fatal("failed must never become done")
	}
	if _, ok := j.Next(); ok {
		t.Fatal("a failed job has no next stage")
	}
	if !j.Terminal() {
		t.Fatal("failed job is terminal")
	}
}

func TestJob_InputChain(t *testing.T) {
	j := NewJob(types.SelectedClip{ID: "001", Source: "in.mp4"}, JobConfig{}, "/tmp/w", "")
	if in := j.Input(StageReframe); in.Path != "in.mp4" {
		t.Fatalf("reframe should read the source, got %+v", in)
	}
	_ = j.markDone(StageReframe, Artifact{Stage: StageReframe, Path: "r.mp4"})
	if in := j.Input(StageSubtitle); in.Path != "r.mp4" {
		t.Fatalf("subtitle should read the reframe artifact, got %+v", in)
	}
	if got := j.ArtifactPath(StageOverlay, ".mp4"); got != "/tmp/w/001_3_overlay.mp4" {
		t.Fatalf("unexpected artifact path %s", got)
	}
}

func TestJob_RetryRequiresFailure(t *testing.T) {
	j := NewJob(types.SelectedClip{ID: "001"}, JobConfig{}, "", "")
	if _, err := j.Retry(); err == nil {
		t.Fatal("retrying a healthy job must fail")
	}
}

func TestJob_RetryDoesNotShareState(t *testing.T) {
	cfg := JobConfig{
		Title: overlay.Title{Source: overlay.TitleAI, Candidates: []string{"a", "b"}},
		Music: &Music{Track: "bed.mp3", Gain: 0.2},
	}
	j := NewJob(types.SelectedClip{ID: "001", Source: "in.mp4"}, cfg, "/tmp/w", "")
	j.Copy = types.Copy{
		Titles:       []string{"a", "b"},
		Tags:         []string{"go"},
		Descriptions: map[string]string{"youtube": "d"},
	}
	_ = j.markDone(StageReframe, Artifact{Stage: StageReframe, Path: "r.mp4"})
	_ = j.markFailed(StageSubtitle, "transform", nil)

	n, err := j.Retry()
	if err != nil {
		t.Fatal(err)
	}
	n.Config.Title.Candidates[0] = "changed"
	n.Config.Music.Gain = 0.9
	n.Copy.Titles[0] = "changed"
	n.Copy.Tags[0] = "changed"
	n.Copy.Descriptions["youtube"] = "changed"

	if j.Config.Title.Candidates[0] != "a" || j.Copy.Titles[0] != "a" || j.Copy.Tags[0] != "go" {
		t.Fatalf("retry shares slices with the failed attempt: %+v %+v", j.Config.Title, j.Copy)
	}
	if j.Config.Music.Gain != 0.2 || j.Copy.Descriptions["youtube"] != "d" {
		t.Fatal("retry shares music or descriptions with the failed attempt")
	}
	if n.Attempt != 2 || n.StageStatus(StageReframe) != StatusDone || n.StageStatus(StageSubtitle) != StatusPending {
		t.Fatalf("unexpected retry state: attempt=%d %v", n.Attempt, n.Status)
	}
}
