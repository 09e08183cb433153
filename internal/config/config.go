package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/forPelevin/vertclip/internal/failure"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains output and cache directories.
type Paths struct {
	OutDir   string `toml:"out_dir"`
	CacheDir string `toml:"cache_dir"`
}

// Tools locates the external binaries.
type Tools struct {
	FFmpeg       string `toml:"ffmpeg"`
	FFprobe      string `toml:"ffprobe"`
	WhisperBin   string `toml:"whisper_bin"`
	WhisperModel string `toml:"whisper_model"`
	// Language is passed to whisper.cpp and used for title casing. Empty
	// means auto-detect.
	Language string `toml:"language"`
}

// LLM contains OpenRouter connection settings.
type LLM struct {
	APIKey         string   `toml:"api_key"`
	Model          string   `toml:"model"`
	BaseURL        string   `toml:"base_url"`
	AllowedHosts   []string `toml:"allowed_hosts"`
	TimeoutSeconds int      `toml:"timeout_seconds"`
}

// Selection controls how clips are scored and picked.
type Selection struct {
	Clips               int  `toml:"clips"`
	MinSeconds          int  `toml:"min_seconds"`
	MaxSeconds          int  `toml:"max_seconds"`
	SilenceThresholdMS  int  `toml:"silence_threshold_ms"`
	MinTolerancePercent int  `toml:"min_tolerance_percent"`
	UseAI               bool `toml:"use_ai"`
	FallbackWholeVideo  bool `toml:"fallback_whole_video"`
}

// Render controls the reframe geometry and the job pool.
type Render struct {
	Layout            string  `toml:"layout"`
	SplitSecondary    string  `toml:"split_secondary"`
	Width             int     `toml:"width"`
	Height            int     `toml:"height"`
	BlurSigma         float64 `toml:"blur_sigma"`
	Workers           int     `toml:"workers"`
	KeepIntermediates bool    `toml:"keep_intermediates"`
}

type Subtitles struct {
	Enabled        bool    `toml:"enabled"`
	Position       string  `toml:"position"`
	MaxChars       int     `toml:"max_chars"`
	MaxWords       int     `toml:"max_words"`
	MaxLineSeconds float64 `toml:"max_line_seconds"`
	FontSize       int     `toml:"font_size"`
	Karaoke        bool    `toml:"karaoke"`
}

type Overlay struct {
	TitleSource string  `toml:"title_source"`
	Title       string  `toml:"title"`
	Effect      string  `toml:"effect"`
	ZoomFactor  float64 `toml:"zoom_factor"`
	// EffectMS overrides the effect window. Zero keeps the per-effect default.
	EffectMS int `toml:"effect_ms"`
	// TitleSeconds limits how long the title stays on screen. Zero keeps it
	// for the whole clip.
	TitleSeconds float64 `toml:"title_seconds"`
	Uppercase    bool    `toml:"uppercase"`
	FontFile     string  `toml:"font_file"`
}

type Music struct {
	Track string  `toml:"track"`
	Gain  float64 `toml:"gain"`
	Loop  bool    `toml:"loop"`
}

// Retry applies to provider calls only.
type Retry struct {
	Attempts  int `toml:"attempts"`
	BackoffMS int `toml:"backoff_ms"`
}

type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
	// File also receives every log line. Empty logs to stderr only.
	File string `toml:"file"`
}

type Metrics struct {
	// Textfile receives a Prometheus text exposition at the end of a run.
	Textfile string `toml:"textfile"`
}

// Config encapsulates every vertclip setting.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Tools     Tools     `toml:"tools"`
	LLM       LLM       `toml:"llm"`
	Selection Selection `toml:"selection"`
	Render    Render    `toml:"render"`
	Subtitles Subtitles `toml:"subtitles"`
	Overlay   Overlay   `toml:"overlay"`
	Music     Music     `toml:"music"`
	Retry     Retry     `toml:"retry"`
	Logging   Logging   `toml:"logging"`
	Metrics   Metrics   `toml:"metrics"`
}

// DefaultConfigPath is the project-local config file.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultProjectConfig)
}

// Load reads path (or ./vertclip.toml when path is empty) over the defaults
// and normalizes the result. It does not validate, so callers can apply flag
// overrides first. The bool reports whether a file was read.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, failure.Wrap(failure.ErrInput, "parse config", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = defaultProjectConfig
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	info, err := os.Stat(expanded)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	if info.IsDir() {
		return "", false, failure.Wrap(failure.ErrInput, "config", fmt.Errorf("%s is a directory", expanded))
	}
	return expanded, true, nil
}

// CreateSample writes the commented sample configuration to path.
func CreateSample(path string) error {
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}

// AIEnabled reports whether any feature needs the OpenRouter provider.
func (c *Config) AIEnabled() bool {
	return c.Selection.UseAI || strings.EqualFold(c.Overlay.TitleSource, "ai")
}

func (c *Config) MinClip() time.Duration {
	return time.Duration(c.Selection.MinSeconds) * time.Second
}

func (c *Config) MaxClip() time.Duration {
	return time.Duration(c.Selection.MaxSeconds) * time.Second
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.LLM.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules to the CLI.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
