package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLLM()
	c.normalizeEnums()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	for _, p := range []struct {
		name string
		v    *string
	}{
		{"paths.out_dir", &c.Paths.OutDir},
		{"paths.cache_dir", &c.Paths.CacheDir},
		{"tools.whisper_model", &c.Tools.WhisperModel},
		{"render.split_secondary", &c.Render.SplitSecondary},
		{"music.track", &c.Music.Track},
		{"overlay.font_file", &c.Overlay.FontFile},
		{"metrics.textfile", &c.Metrics.Textfile},
		{"logging.file", &c.Logging.File},
	} {
		*p.v = strings.TrimSpace(*p.v)
		if *p.v, err = expandPath(*p.v); err != nil {
			return fmt.Errorf("%s: %w", p.name, err)
		}
	}
	// Binaries may be bare names resolved through PATH.
	if strings.ContainsRune(c.Tools.WhisperBin, os.PathSeparator) {
		if c.Tools.WhisperBin, err = expandPath(c.Tools.WhisperBin); err != nil {
			return fmt.Errorf("tools.whisper_bin: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLLM() {
	if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok && c.LLM.APIKey == "" {
		c.LLM.APIKey = strings.TrimSpace(value)
	}
	if value := strings.TrimSpace(os.Getenv("OPENROUTER_MODEL")); value != "" {
		c.LLM.Model = value
	}
	if value := strings.TrimSpace(os.Getenv("OPENROUTER_BASE_URL")); value != "" {
		c.LLM.BaseURL = value
	}
	if value := strings.TrimSpace(os.Getenv("OPENROUTER_ALLOWED_HOSTS")); value != "" {
		c.LLM.AllowedHosts = strings.Split(value, ",")
	}
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
}

func (c *Config) normalizeEnums() {
	lower := func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	c.Render.Layout = lower(c.Render.Layout)
	c.Subtitles.Position = lower(c.Subtitles.Position)
	c.Overlay.TitleSource = lower(c.Overlay.TitleSource)
	c.Overlay.Effect = lower(c.Overlay.Effect)
	c.Overlay.Title = strings.TrimSpace(c.Overlay.Title)
	c.Logging.Format = lower(c.Logging.Format)
	c.Logging.Level = lower(c.Logging.Level)
	c.Tools.Language = lower(c.Tools.Language)
}
