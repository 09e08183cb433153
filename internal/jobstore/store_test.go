package jobstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/forPelevin/vertclip/internal/render"
	"github.com/forPelevin/vertclip/internal/types"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

func TestSaveAndLatest(t *testing.T) {
	ctx := context.Background()
	s, dir := openTestStore(t)

	first := render.NewJob(types.SelectedClip{ID: "002", Start: 30 * time.Second, End: 45 * time.Second, Source: "in.mp4"}, render.JobConfig{}, dir, "")
	second := render.NewJob(types.SelectedClip{ID: "001", Start: 5 * time.Second, End: 15 * time.Second, Source: "in.mp4"}, render.JobConfig{}, dir, "")
	for _, j := range []*render.Job{first, second} {
		if err := s.Save(ctx, j); err != nil {
			t.Fatal(err)
		}
	}

	// Failed attempt 1, then attempt 2 of the same job.
	first.Status[render.StageReframe] = render.StatusFailed
	first.FailedStage = render.StageReframe
	first.Reason = "transform"
	if err := s.Save(ctx, first); err != nil {
		t.Fatal(err)
	}
	retry, err := first.Retry()
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(ctx, retry); err != nil {
		t.Fatal(err)
	}

	jobs, err := s.Latest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Clip.ID != "001" || jobs[1].Clip.ID != "002" {
		t.Fatalf("jobs not ordered by clip start: %s %s", jobs[0].Clip.ID, jobs[1].Clip.ID)
	}
	if jobs[1].Attempt != 2 || jobs[1].Failed() {
		t.Fatalf("expected latest attempt to be the pending retry, got %+v", jobs[1])
	}

	attempts, err := s.Attempts(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(attempts) != 2 || attempts[0].StageStatus(render.StageReframe) != render.StatusFailed {
		t.Fatalf("failed attempt must be kept as is: %+v", attempts)
	}
	if _, err := s.Attempts(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRunInfoRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, dir := openTestStore(t)

	if _, err := s.Run(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before save, got %v", err)
	}
	info := RunInfo{RunID: "r1", Input: "in.mp4", Transcript: "transcript.json", Config: []byte(`{"clips":3}`)}
	if err := s.SaveRun(ctx, info); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	reopened, err := Open(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != "r1" || string(got.Config) != `{"clips":3}` {
		t.Fatalf("unexpected run info %+v", got)
	}
}
