package pipeline

import (
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"github.com/forPelevin/vertclip/internal/config"
	"github.com/forPelevin/vertclip/internal/domain/audiomix"
	"github.com/forPelevin/vertclip/internal/domain/overlay"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/jobstore"
	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/types"
)

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 1234, time.UTC)
	got := buildRunOutDir("out", "/tmp/My Cool.Video.mp4", now)
	base := filepath.Base(got)
	if filepath.Dir(got) != "out" {
		t.Fatalf("unexpected parent dir: %s", got)
	}
	if !strings.HasPrefix(base, "my-cool-video-20260212-103045Z-") {
		t.Fatalf("unexpected run dir format: %s", base)
	}
	if len(base) != len("my-cool-video-20260212-103045Z-")+6 {
		t.Fatalf("unexpected run dir suffix length: %s", base)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ": "my-cool-video",
		"___":               "",
		"abc123":            "abc123",
		"Name (v2)!":        "name-v2",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

type fakeMedia struct {
	mu           sync.Mutex
	failBurnOnce bool
}

func (f *fakeMedia) Probe(context.Context, string) (types.MediaInfo, error) {
	return types.MediaInfo{Width: 1920, Height: 1080, Duration: time.Minute, HasAudio: true}, nil
}

func (f *fakeMedia) ExtractAudioMono16k(_ context.Context, _, out string) error {
	return os.WriteFile(out, nil, 0o644)
}

func (f *fakeMedia) Reframe(_ context.Context, req ports.ReframeRequest) error {
	return os.WriteFile(req.Out, []byte("v"), 0o644)
}

func (f *fakeMedia) BurnSubtitles(_ context.Context, _, _, out string) error {
	f.mu.Lock()
	fail := f.failBurnOnce
	f.failBurnOnce = false
	f.mu.Unlock()
	if fail {
		return errors.New("exit status 1")
	}
	return os.WriteFile(out, []byte("v"), 0o644)
}

func (f *fakeMedia) Overlay(_ context.Context, _, _, out string) error {
	return os.WriteFile(out, []byte("v"), 0o644)
}

func (f *fakeMedia) MixAudio(_ context.Context, _ string, _ audiomix.Params, out string) error {
	return os.WriteFile(out, []byte("v"), 0o644)
}

func (f *fakeMedia) Snapshot(_ context.Context, _ string, _ time.Duration, out string) error {
	fh, err := os.Create(out)
	if err != nil {
		return err
	}
	defer fh.Close()
	return png.Encode(fh, image.NewGray(image.Rect(0, 0, 54, 96)))
}

type fakeASR struct{}

func (fakeASR) Transcribe(context.Context, string, string) (types.Transcript, error) {
	var tr types.Transcript
	at := 0.0
	for s := 0; s < 10; s++ {
		seg := types.Segment{Start: at, Text: "one two three four five six."}
		for _, w := range strings.Fields(seg.Text) {
			seg.Words = append(seg.Words, types.Word{Start: at, End: at + 0.5, Word: w})
			at += 0.6
		}
		seg.End = at
		at += 0.7
		tr.Segments = append(tr.Segments, seg)
	}
	return tr, nil
}

type missingModelASR struct{ fakeASR }

func (missingModelASR) Check() error { return errors.New("whisper model not found") }

type fakeCopy struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *fakeCopy) WriteCopy(context.Context, string) (types.Copy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return types.Copy{}, f.err
	}
	return types.Copy{Titles: []string{"Big idea"}, Tags: []string{"talk"}}, nil
}

func testConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	tmp := t.TempDir()
	cfg := config.Default()
	cfg.Paths.OutDir = filepath.Join(tmp, "out")
	cfg.Paths.CacheDir = filepath.Join(tmp, "cache")
	cfg.Selection.UseAI = false
	cfg.Selection.MinSeconds = 4
	cfg.Selection.MaxSeconds = 8
	cfg.Selection.Clips = 3
	cfg.Render.Workers = 1
	cfg.Retry.BackoffMS = 1
	cfg.Metrics.Textfile = filepath.Join(tmp, "vertclip.prom")

	input := filepath.Join(tmp, "talk.mp4")
	if err := os.WriteFile(input, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &cfg, input
}

func TestRun_WritesRunDirectory(t *testing.T) {
	cfg, input := testConfig(t)
	p := New(cfg, Deps{Media: &fakeMedia{}, ASR: fakeASR{}}, nil)

	s, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(s.Outcomes) == 0 || s.Failed() != 0 {
		t.Fatalf("expected completed clips, got %d outcomes, %d failed", len(s.Outcomes), s.Failed())
	}
	for _, name := range []string{ManifestFile, TranscriptFile, jobstore.FileName} {
		if _, err := os.Stat(filepath.Join(s.RunDir, name)); err != nil {
			t.Fatalf("expected %s in run dir: %v", name, err)
		}
	}
	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(prom), "vertclip_jobs_total") {
		t.Fatalf("metrics textfile misses job counter:\n%s", prom)
	}

	info, jobs, err := Status(context.Background(), s.RunDir)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if info.RunID != s.RunID || info.Input != input {
		t.Fatalf("unexpected run info %+v", info)
	}
	if len(jobs) != len(s.Outcomes) {
		t.Fatalf("expected %d stored jobs, got %d", len(s.Outcomes), len(jobs))
	}
	for _, j := range jobs {
		if !j.Done() {
			t.Fatalf("stored job not done: %+v", j)
		}
	}
}

func TestRun_PreflightFailsBeforeRunDir(t *testing.T) {
	cfg, input := testConfig(t)
	p := New(cfg, Deps{Media: &fakeMedia{}, ASR: missingModelASR{}}, nil)

	_, err := p.Run(context.Background(), input)
	if !errors.Is(err, failure.ErrInput) || !strings.Contains(err.Error(), "whisper model not found") {
		t.Fatalf("expected preflight input error, got %v", err)
	}
	if _, err := os.Stat(cfg.Paths.OutDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no run dir should be created on preflight failure: %v", err)
	}
}

func TestResume_FinishesFailedJobs(t *testing.T) {
	cfg, input := testConfig(t)
	media := &fakeMedia{failBurnOnce: true}
	p := New(cfg, Deps{Media: media, ASR: fakeASR{}}, nil)

	s, err := p.Run(context.Background(), input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if s.Failed() != 1 {
		t.Fatalf("expected one failed clip, got %d", s.Failed())
	}

	resumed, err := p.Resume(context.Background(), s.RunDir)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Failed() != 0 || resumed.RunID != s.RunID {
		t.Fatalf("expected resumed run to finish, got %d failed", resumed.Failed())
	}
	_, jobs, err := Status(context.Background(), s.RunDir)
	if err != nil {
		t.Fatal(err)
	}
	if jobs[0].Attempt != 2 {
		t.Fatalf("expected a second attempt for the failed clip, got %d", jobs[0].Attempt)
	}

	history, err := History(context.Background(), s.RunDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != len(jobs) || len(history[0]) != 2 || !history[0][0].Failed() || !history[0][1].Done() {
		t.Fatalf("unexpected attempt history for the retried clip: %+v", history[0])
	}
}

func TestResume_UsesStoredRunConfig(t *testing.T) {
	ctx := context.Background()
	cfg, input := testConfig(t)
	cfg.Overlay.TitleSource = "ai"
	down := &fakeCopy{err: failure.Wrap(failure.ErrProvider, "write copy", errors.New("503 service unavailable"))}

	s, err := New(cfg, Deps{Media: &fakeMedia{}, ASR: fakeASR{}, Copy: down}, nil).Run(ctx, input)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(s.Outcomes) == 0 || s.Failed() != len(s.Outcomes) {
		t.Fatalf("expected every clip to fail on titles, got %d of %d", s.Failed(), len(s.Outcomes))
	}

	// The current config no longer asks for ai titles.
	current, _ := testConfig(t)
	up := &fakeCopy{}
	resumed, err := New(current, Deps{Media: &fakeMedia{}, ASR: fakeASR{}, Copy: up}, nil).Resume(ctx, s.RunDir)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.Failed() != 0 {
		t.Fatalf("expected resumed run to finish, got %d failed", resumed.Failed())
	}
	if up.calls != len(s.Outcomes) {
		t.Fatalf("expected one copy request per clip, got %d", up.calls)
	}
	_, jobs, err := Status(ctx, s.RunDir)
	if err != nil {
		t.Fatal(err)
	}
	for _, j := range jobs {
		if j.Config.Title.Source != overlay.TitleAI || j.Config.Title.Text != "Big idea" {
			t.Fatalf("unexpected title on resumed job: %+v", j.Config.Title)
		}
	}

	restored, err := ResumeConfig(ctx, s.RunDir, current)
	if err != nil {
		t.Fatal(err)
	}
	if restored.Overlay.TitleSource != "ai" {
		t.Fatalf("expected stored title source, got %q", restored.Overlay.TitleSource)
	}
	if restored.Paths.CacheDir != current.Paths.CacheDir {
		t.Fatalf("paths must follow the current config, got %q", restored.Paths.CacheDir)
	}
}

func TestResume_RefusesLockedRun(t *testing.T) {
	cfg, _ := testConfig(t)
	runDir := t.TempDir()
	held := flock.New(filepath.Join(runDir, lockFile))
	if ok, err := held.TryLock(); err != nil || !ok {
		t.Fatalf("take lock: %v %v", ok, err)
	}
	defer held.Unlock()

	_, err := New(cfg, Deps{}, nil).Resume(context.Background(), runDir)
	if !errors.Is(err, ErrRunLocked) {
		t.Fatalf("expected ErrRunLocked, got %v", err)
	}
}

func TestStatus_RejectsNonRunDirectory(t *testing.T) {
	if _, _, err := Status(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for a directory without a job store")
	}
}
