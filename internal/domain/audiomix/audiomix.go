// Package audiomix validates background music parameters and builds the
// filter that lays the track under a clip's original audio.
package audiomix

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/forPelevin/vertclip/internal/failure"
)

const DefaultGain = 0.3

// InvalidGainError is returned for a gain outside (0,1].
type InvalidGainError struct {
	Gain float64
}

func (e *InvalidGainError) Error() string {
	return fmt.Sprintf("invalid music gain %v: must be in (0,1]", e.Gain)
}

func (e *InvalidGainError) Is(target error) bool { return target == failure.ErrInput }

func ValidateGain(g float64) error {
	if math.IsNaN(g) || g <= 0 || g > 1 {
		return &InvalidGainError{Gain: g}
	}
	return nil
}

type Params struct {
	// Track is the background music file. Empty means no mixing.
	Track string
	Gain  float64
	// Loop repeats a track shorter than the clip; otherwise the music ends
	// early and the clip continues with its own audio.
	Loop bool
	// Duration is the clip length the music is trimmed to.
	Duration time.Duration
	// SourceHasAudio is false for silent sources: the music becomes the only
	// audio track.
	SourceHasAudio bool
}

func (p Params) Enabled() bool { return strings.TrimSpace(p.Track) != "" }

func (p Params) Validate() error {
	if !p.Enabled() {
		return nil
	}
	if err := ValidateGain(p.Gain); err != nil {
		return err
	}
	if p.Duration <= 0 {
		return failure.Wrap(failure.ErrInput, "music mix needs a positive clip duration", nil)
	}
	return nil
}

// OutputLabel is the filter graph pad carrying the mixed audio.
const OutputLabel = "aout"

// FilterGraph returns the filter_complex for inputs [0] clip and [1] music.
// Looping is done on the input side with -stream_loop, see InputArgs.
func (p Params) FilterGraph() string {
	music := fmt.Sprintf("[1:a]volume=%s,atrim=0:%s,asetpts=PTS-STARTPTS", num(p.Gain), num(p.Duration.Seconds()))
	if !p.SourceHasAudio {
		return music + fmt.Sprintf(",apad=whole_dur=%s[%s]", num(p.Duration.Seconds()), OutputLabel)
	}
	return music + fmt.Sprintf("[bg];[0:a][bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[%s]", OutputLabel)
}

// InputArgs are the ffmpeg arguments that open the music input.
func (p Params) InputArgs() []string {
	if p.Loop {
		return []string{"-stream_loop", "-1", "-i", p.Track}
	}
	return []string{"-i", p.Track}
}

func num(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
