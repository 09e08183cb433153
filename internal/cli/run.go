package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forPelevin/vertclip/internal/config"
	"github.com/forPelevin/vertclip/internal/pipeline"
)

// runFlags override config values for a single run. Only flags that were set
// on the command line are applied.
type runFlags struct {
	outDir      string
	clips       int
	minSeconds  int
	maxSeconds  int
	layout      string
	secondary   string
	title       string
	titleSource string
	effect      string
	music       string
	musicGain   float64
	workers     int
	noSubtitles bool
	noAI        bool
	karaoke     bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.outDir, "out", "", "Output directory")
	fl.IntVar(&f.clips, "clips", 0, "Number of clips")
	fl.IntVar(&f.minSeconds, "min", 0, "Min clip duration seconds")
	fl.IntVar(&f.maxSeconds, "max", 0, "Max clip duration seconds")
	fl.StringVar(&f.layout, "layout", "", "Layout: blur or split")
	fl.StringVar(&f.secondary, "secondary", "", "Secondary video for the split layout")
	fl.StringVar(&f.title, "title", "", "Manual title text (implies --title-source manual)")
	fl.StringVar(&f.titleSource, "title-source", "", "Title source: none, manual or ai")
	fl.StringVar(&f.effect, "effect", "", "Title effect: none, zoom or flash")
	fl.StringVar(&f.music, "music", "", "Background music track")
	fl.Float64Var(&f.musicGain, "music-gain", 0, "Background music gain (0,1]")
	fl.IntVar(&f.workers, "workers", 0, "Parallel render workers")
	fl.BoolVar(&f.noSubtitles, "no-subtitles", false, "Disable burned-in subtitles")
	fl.BoolVar(&f.noAI, "no-ai", false, "Skip AI scene analysis")
	fl.BoolVar(&f.karaoke, "karaoke", false, "Highlight subtitle words as they are spoken")

	// Hidden tuning flags.
	fl.Int("silence-ms", 0, "Silence threshold in milliseconds")
	_ = fl.MarkHidden("silence-ms")
}

func (f *runFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	changed := fl.Changed
	if changed("out") {
		p, err := config.ExpandPath(f.outDir)
		if err != nil {
			return err
		}
		cfg.Paths.OutDir = p
	}
	if changed("clips") {
		cfg.Selection.Clips = f.clips
	}
	if changed("min") {
		cfg.Selection.MinSeconds = f.minSeconds
	}
	if changed("max") {
		cfg.Selection.MaxSeconds = f.maxSeconds
	}
	if changed("layout") {
		cfg.Render.Layout = strings.ToLower(f.layout)
	}
	if changed("secondary") {
		p, err := config.ExpandPath(f.secondary)
		if err != nil {
			return err
		}
		cfg.Render.SplitSecondary = p
	}
	if changed("title") {
		cfg.Overlay.Title = f.title
		cfg.Overlay.TitleSource = "manual"
	}
	if changed("title-source") {
		cfg.Overlay.TitleSource = strings.ToLower(f.titleSource)
	}
	if changed("effect") {
		cfg.Overlay.Effect = strings.ToLower(f.effect)
	}
	if changed("music") {
		p, err := config.ExpandPath(f.music)
		if err != nil {
			return err
		}
		cfg.Music.Track = p
	}
	if changed("music-gain") {
		cfg.Music.Gain = f.musicGain
	}
	if changed("workers") {
		cfg.Render.Workers = f.workers
	}
	if f.noSubtitles {
		cfg.Subtitles.Enabled = false
	}
	if f.noAI {
		cfg.Selection.UseAI = false
	}
	if f.karaoke {
		cfg.Subtitles.Karaoke = true
	}
	if changed("silence-ms") {
		ms, _ := fl.GetInt("silence-ms")
		cfg.Selection.SilenceThresholdMS = ms
	}
	return nil
}

func runVideo(cmd *cobra.Command, cc *commandContext, f *runFlags, input string) error {
	cfg, err := cc.loadConfig()
	if err != nil {
		return err
	}
	if err := f.apply(cmd, cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := cc.logger(cmd, cfg)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, pipeline.DefaultDeps(cfg), logger)
	s, err := p.Run(cmd.Context(), input)
	if err != nil {
		return err
	}
	return report(cmd.OutOrStdout(), s)
}

func newResumeCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <run-dir>",
		Short: "Retry the failed clips of an earlier run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			current, err := cc.loadConfig()
			if err != nil {
				return err
			}
			cfg, err := pipeline.ResumeConfig(cmd.Context(), args[0], current)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger, err := cc.logger(cmd, cfg)
			if err != nil {
				return err
			}
			p := pipeline.New(cfg, pipeline.DefaultDeps(cfg), logger)
			s, err := p.Resume(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return report(cmd.OutOrStdout(), s)
		},
	}
}

// failedClipsError reports a run that finished with some clips not rendered.
type failedClipsError struct {
	failed, total int
	runDir        string
}

func (e *failedClipsError) Error() string {
	return fmt.Sprintf("%d of %d clips failed; retry with: vertclip resume %s", e.failed, e.total, e.runDir)
}

func report(w io.Writer, s pipeline.Summary) error {
	fmt.Fprintln(w, renderOutcomes(w, s.Outcomes))
	fmt.Fprintf(w, "Run %s written to %s\n", s.RunID, s.RunDir)
	if n := s.Failed(); n > 0 {
		return &failedClipsError{failed: n, total: len(s.Outcomes), runDir: s.RunDir}
	}
	return nil
}
