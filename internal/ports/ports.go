package ports

import (
	"context"
	"fmt"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/audiomix"
	"github.com/forPelevin/vertclip/internal/domain/reframe"
	"github.com/forPelevin/vertclip/internal/failure"
	"github.com/forPelevin/vertclip/internal/types"
)

// MediaEngine performs stateless media transforms. Every call reads explicit
// inputs and writes a new output file.
type MediaEngine interface {
	Probe(ctx context.Context, path string) (types.MediaInfo, error)
	ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error
	Reframe(ctx context.Context, req ReframeRequest) error
	BurnSubtitles(ctx context.Context, inMP4, assPath, outMP4 string) error
	Overlay(ctx context.Context, inMP4, filter, outMP4 string) error
	MixAudio(ctx context.Context, inMP4 string, mix audiomix.Params, outMP4 string) error
	Snapshot(ctx context.Context, inMP4 string, at time.Duration, outPNG string) error
}

// ReframeRequest cuts [Start, End) out of Source and lays it out per Plan.
type ReframeRequest struct {
	Source string
	// Secondary feeds the bottom half of a split plan. It is looped when
	// shorter than the clip.
	Secondary string
	Start     time.Duration
	End       time.Duration
	Plan      reframe.Plan
	Out       string
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

// SceneAnalyzer suggests clip ranges. Suggestions are advisory only.
type SceneAnalyzer interface {
	SuggestClips(ctx context.Context, tr types.Transcript, clipsN int, minClip, maxClip time.Duration) ([]types.Candidate, error)
}

// CopyWriter suggests titles and social copy for a clip excerpt. Titles are
// ranked best first; their count and language are not fixed.
type CopyWriter interface {
	WriteCopy(ctx context.Context, excerpt string) (types.Copy, error)
}

// TitleChooser resolves which suggested title is used. It returns "" when no
// title was picked.
type TitleChooser interface {
	ChooseTitle(ctx context.Context, clip types.SelectedClip, titles []string) (string, error)
}

// TranscriptionUnavailableError reports that speech-to-text produced nothing
// usable or could not run.
type TranscriptionUnavailableError struct {
	Reason string
	Err    error
}

func (e *TranscriptionUnavailableError) Error() string {
	if e.Err == nil {
		return "transcription unavailable: " + e.Reason
	}
	return fmt.Sprintf("transcription unavailable: %s: %v", e.Reason, e.Err)
}

func (e *TranscriptionUnavailableError) Unwrap() error { return e.Err }

func (e *TranscriptionUnavailableError) Is(target error) bool { return target == failure.ErrProvider }
