package config_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/forPelevin/vertclip/internal/config"
	"github.com/forPelevin/vertclip/internal/domain/highlights"
	"github.com/forPelevin/vertclip/internal/domain/selection"
	"github.com/forPelevin/vertclip/internal/failure"
)

func TestDefaultsMatchDomainDefaults(t *testing.T) {
	sel := config.Default().Selection
	if got := time.Duration(sel.SilenceThresholdMS) * time.Millisecond; got != highlights.DefaultSilenceThreshold {
		t.Fatalf("silence threshold default %v, scorer default %v", got, highlights.DefaultSilenceThreshold)
	}
	if sel.MinTolerancePercent != selection.DefaultMinTolerancePercent {
		t.Fatalf("tolerance default %d, selector default %d", sel.MinTolerancePercent, selection.DefaultMinTolerancePercent)
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("OPENROUTER_API_KEY", "test-key")
	t.Setenv("OPENROUTER_MODEL", "")
	t.Setenv("OPENROUTER_BASE_URL", "")
	t.Setenv("OPENROUTER_ALLOWED_HOSTS", "")

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if exists {
		t.Fatal("expected no config file in temp dir")
	}
	if filepath.Base(resolved) != "vertclip.toml" {
		t.Fatalf("unexpected resolved path %q", resolved)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if cfg.LLM.APIKey != "test-key" {
		t.Fatalf("expected key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Render.Layout != "blur" || cfg.Subtitles.Position != "bottom" || cfg.Music.Gain != 0.3 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !filepath.IsAbs(cfg.Paths.OutDir) {
		t.Fatalf("expected absolute out dir, got %q", cfg.Paths.OutDir)
	}
	if cfg.Tools.FFmpeg != "ffmpeg" {
		t.Fatalf("bare binary names must stay bare, got %q", cfg.Tools.FFmpeg)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("OPENROUTER_API_KEY", "")
	path := filepath.Join(dir, "custom.toml")
	body := `
[selection]
clips = 3
use_ai = false

[render]
layout = "SPLIT"

[overlay]
title_source = "manual"
title = "  Hello  "
effect = "zoom"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected file to be read")
	}
	if cfg.Selection.Clips != 3 || cfg.Render.Layout != "split" || cfg.Overlay.Title != "Hello" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Selection.MaxSeconds != 60 {
		t.Fatalf("unset values keep defaults, got %d", cfg.Selection.MaxSeconds)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("AI disabled config should not need a key: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(path, []byte("[render]\nlayuot = \"blur\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := config.Load(path)
	if !errors.Is(err, failure.ErrInput) {
		t.Fatalf("expected input error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantSub string
	}{
		{"zero gain", func(c *config.Config) { c.Music.Track = os.Args[0]; c.Music.Gain = 0 }, "gain"},
		{"gain above one", func(c *config.Config) { c.Music.Track = os.Args[0]; c.Music.Gain = 1.5 }, "gain"},
		{"no timeout", func(c *config.Config) { c.LLM.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"missing key", func(c *config.Config) { c.LLM.APIKey = "" }, "OPENROUTER_API_KEY"},
		{"http base url", func(c *config.Config) { c.LLM.BaseURL = "http://openrouter.ai" }, "https"},
		{"manual without title", func(c *config.Config) { c.Overlay.TitleSource = "manual" }, "title"},
		{"unknown layout", func(c *config.Config) { c.Render.Layout = "tiles" }, "layout"},
		{"unknown position", func(c *config.Config) { c.Subtitles.Position = "left" }, "position"},
		{"unknown effect", func(c *config.Config) { c.Overlay.Effect = "spin" }, "effect"},
		{"odd width", func(c *config.Config) { c.Render.Width = 1081 }, "even"},
		{"min above max", func(c *config.Config) { c.Selection.MinSeconds = 90 }, "max_seconds"},
		{"bad level", func(c *config.Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"negative tolerance", func(c *config.Config) { c.Selection.MinTolerancePercent = -1 }, "min_tolerance_percent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.LLM.APIKey = "key"
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, failure.ErrInput) {
				t.Fatalf("expected input error, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("expected %q in %q", tt.wantSub, err.Error())
			}
		})
	}
}

func TestSampleConfigDecodesAndValidates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vertclip.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var decoded config.Config
	if err := toml.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("sample is not valid TOML: %v", err)
	}
	if decoded.Selection != config.Default().Selection || decoded.Overlay != config.Default().Overlay {
		t.Fatalf("sample drifted from defaults:\n%+v\n%+v", decoded.Selection, config.Default().Selection)
	}

	t.Setenv("OPENROUTER_API_KEY", "key")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("sample must validate: %v", err)
	}
}

func TestRestore(t *testing.T) {
	stored := config.Default()
	stored.Overlay.TitleSource = "ai"
	stored.Subtitles.Karaoke = true
	stored.Render.Layout = "split"
	stored.Render.Workers = 8
	stored.Paths.CacheDir = "/old/cache"
	snapshot, err := json.Marshal(stored)
	if err != nil {
		t.Fatal(err)
	}

	current := config.Default()
	current.Paths.CacheDir = "/new/cache"
	current.LLM.APIKey = "fresh"
	current.Render.Workers = 1

	got, err := config.Restore(snapshot, &current)
	if err != nil {
		t.Fatal(err)
	}
	if got.Overlay.TitleSource != "ai" || !got.Subtitles.Karaoke || got.Render.Layout != "split" {
		t.Fatalf("clip settings not restored: %+v %+v %+v", got.Overlay, got.Subtitles, got.Render)
	}
	if got.Paths.CacheDir != "/new/cache" || got.LLM.APIKey != "fresh" || got.Render.Workers != 1 {
		t.Fatalf("operational settings must follow the current config: %+v %+v workers=%d", got.Paths, got.LLM, got.Render.Workers)
	}

	same, err := config.Restore(nil, &current)
	if err != nil {
		t.Fatal(err)
	}
	if same == &current || same.Overlay != current.Overlay {
		t.Fatalf("empty snapshot should copy the current config")
	}
	if _, err := config.Restore([]byte("{"), &current); err == nil {
		t.Fatal("expected error for a corrupt snapshot")
	}
}
