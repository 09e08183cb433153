package config

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/forPelevin/vertclip/internal/domain/audiomix"
	"github.com/forPelevin/vertclip/internal/domain/overlay"
	"github.com/forPelevin/vertclip/internal/domain/reframe"
	"github.com/forPelevin/vertclip/internal/domain/subtitles"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/ports/adapters/openrouter"
)

// Validate ensures the configuration is usable. Every failure is an input
// error.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateSelection,
		c.validateRender,
		c.validateSubtitles,
		c.validateOverlay,
		c.validateMusic,
		c.validateLLM,
		c.validateRetry,
		c.validateLogging,
	} {
		err := check()
		switch {
		case err == nil:
			continue
		case errors.Is(err, failure.ErrInput):
			return fmt.Errorf("config: %w", err)
		default:
			return failure.Wrap(failure.ErrInput, "config", err)
		}
	}
	return nil
}

func (c *Config) validateSelection() error {
	s := c.Selection
	if s.Clips <= 0 {
		return errors.New("selection.clips must be > 0")
	}
	if s.MinSeconds <= 0 {
		return errors.New("selection.min_seconds must be > 0")
	}
	if s.MaxSeconds < s.MinSeconds {
		return errors.New("selection.max_seconds must be >= selection.min_seconds")
	}
	if s.SilenceThresholdMS < 0 {
		return errors.New("selection.silence_threshold_ms must be >= 0")
	}
	if s.MinTolerancePercent < 0 || s.MinTolerancePercent > 100 {
		return errors.New("selection.min_tolerance_percent must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateRender() error {
	r := c.Render
	layout, err := reframe.ParseLayout(r.Layout)
	if err != nil {
		return err
	}
	if r.Width <= 0 || r.Height <= 0 || r.Width%2 != 0 || r.Height%2 != 0 {
		return fmt.Errorf("render.width and render.height must be positive even numbers, got %dx%d", r.Width, r.Height)
	}
	if r.BlurSigma < 0 {
		return errors.New("render.blur_sigma must be >= 0")
	}
	if r.Workers <= 0 {
		return errors.New("render.workers must be > 0")
	}
	if layout == reframe.LayoutSplit && r.SplitSecondary != "" {
		if _, err := os.Stat(r.SplitSecondary); err != nil {
			return fmt.Errorf("render.split_secondary: %w", err)
		}
	}
	return nil
}

func (c *Config) validateSubtitles() error {
	s := c.Subtitles
	if _, err := subtitles.ParsePosition(s.Position); err != nil {
		return err
	}
	if s.MaxChars <= 0 || s.MaxWords <= 0 {
		return errors.New("subtitles.max_chars and subtitles.max_words must be > 0")
	}
	if s.MaxLineSeconds <= 0 {
		return errors.New("subtitles.max_line_seconds must be > 0")
	}
	if s.FontSize <= 0 {
		return errors.New("subtitles.font_size must be > 0")
	}
	return nil
}

func (c *Config) validateOverlay() error {
	o := c.Overlay
	source, err := overlay.ParseTitleSource(o.TitleSource)
	if err != nil {
		return err
	}
	// AI titles are resolved per clip at render time.
	if source == overlay.TitleManual {
		if err := (overlay.Title{Source: source, Text: o.Title}).Validate(); err != nil {
			return err
		}
	}
	if _, err := overlay.ParseEffect(o.Effect); err != nil {
		return err
	}
	if o.ZoomFactor < 0 || math.IsNaN(o.ZoomFactor) {
		return errors.New("overlay.zoom_factor must be >= 0")
	}
	if o.EffectMS < 0 || o.TitleSeconds < 0 {
		return errors.New("overlay.effect_ms and overlay.title_seconds must be >= 0")
	}
	if o.FontFile != "" {
		if _, err := os.Stat(o.FontFile); err != nil {
			return fmt.Errorf("overlay.font_file: %w", err)
		}
	}
	return nil
}

func (c *Config) validateMusic() error {
	if c.Music.Track == "" {
		return nil
	}
	if _, err := os.Stat(c.Music.Track); err != nil {
		return fmt.Errorf("music.track: %w", err)
	}
	return audiomix.ValidateGain(c.Music.Gain)
}

func (c *Config) validateLLM() error {
	if !c.AIEnabled() {
		return nil
	}
	if c.LLM.TimeoutSeconds <= 0 {
		return errors.New("llm.timeout_seconds must be > 0")
	}
	if c.LLM.APIKey == "" {
		return errors.New("OPENROUTER_API_KEY is required when AI selection or AI titles are enabled (set it in .env or disable selection.use_ai)")
	}
	return openrouter.ValidateBaseURL(c.LLM.BaseURL, c.LLM.AllowedHosts)
}

func (c *Config) validateRetry() error {
	if c.Retry.Attempts <= 0 {
		return errors.New("retry.attempts must be > 0")
	}
	if c.Retry.BackoffMS < 0 {
		return errors.New("retry.backoff_ms must be >= 0")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	return nil
}
