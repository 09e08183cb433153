package config

const (
	defaultOutDir             = "out"
	defaultCacheDir           = ".cache"
	defaultFFmpeg             = "ffmpeg"
	defaultFFprobe            = "ffprobe"
	defaultWhisperBin         = ".cache/bin/whisper.cpp"
	defaultWhisperModel       = ".cache/models/ggml-base.bin"
	defaultLLMModel           = "z-ai/glm-4.5-air:free"
	defaultLLMBaseURL         = "https://openrouter.ai"
	defaultLLMTimeoutSeconds  = 90
	defaultClips              = 12
	defaultMinSeconds         = 15
	defaultMaxSeconds         = 60
	defaultSilenceThresholdMS = 300
	defaultMinTolerance       = 20
	defaultLayout             = "blur"
	defaultWidth              = 1080
	defaultHeight             = 1920
	defaultBlurSigma          = 35
	defaultWorkers            = 2
	defaultSubtitlePosition   = "bottom"
	defaultMaxChars           = 20
	defaultMaxWords           = 9
	defaultMaxLineSeconds     = 2.0
	defaultFontSize           = 78
	defaultTitleSource        = "none"
	defaultEffect             = "none"
	defaultZoomFactor         = 1.12
	defaultMusicGain          = 0.3
	defaultRetryAttempts      = 3
	defaultRetryBackoffMS     = 1000
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultProjectConfig      = "vertclip.toml"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{OutDir: defaultOutDir, CacheDir: defaultCacheDir},
		Tools: Tools{
			FFmpeg:       defaultFFmpeg,
			FFprobe:      defaultFFprobe,
			WhisperBin:   defaultWhisperBin,
			WhisperModel: defaultWhisperModel,
		},
		LLM: LLM{
			Model:          defaultLLMModel,
			BaseURL:        defaultLLMBaseURL,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		Selection: Selection{
			Clips:               defaultClips,
			MinSeconds:          defaultMinSeconds,
			MaxSeconds:          defaultMaxSeconds,
			SilenceThresholdMS:  defaultSilenceThresholdMS,
			MinTolerancePercent: defaultMinTolerance,
			UseAI:               true,
			FallbackWholeVideo:  true,
		},
		Render: Render{
			Layout:    defaultLayout,
			Width:     defaultWidth,
			Height:    defaultHeight,
			BlurSigma: defaultBlurSigma,
			Workers:   defaultWorkers,
		},
		Subtitles: Subtitles{
			Enabled:        true,
			Position:       defaultSubtitlePosition,
			MaxChars:       defaultMaxChars,
			MaxWords:       defaultMaxWords,
			MaxLineSeconds: defaultMaxLineSeconds,
			FontSize:       defaultFontSize,
		},
		Overlay: Overlay{
			TitleSource: defaultTitleSource,
			Effect:      defaultEffect,
			ZoomFactor:  defaultZoomFactor,
		},
		Music: Music{Gain: defaultMusicGain, Loop: true},
		Retry: Retry{Attempts: defaultRetryAttempts, BackoffMS: defaultRetryBackoffMS},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
