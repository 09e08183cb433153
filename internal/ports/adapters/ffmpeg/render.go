package ffmpeg

import (
	"context"
	"time"

	"github.com/forPelevin/vertclip/internal/domain/audiomix"
	"github.com/forPelevin/vertclip/internal/domain/reframe"
	"github.com/forPelevin/vertclip/internal/ports"
)

var (
	videoCodec = []string{"-c:v", "libx264", "-preset", "veryfast", "-crf", "18", "-pix_fmt", "yuv420p"}
	audioCodec = []string{"-c:a", "aac", "-b:a", "192k"}
)

func (a *Adapter) Reframe(ctx context.Context, req ports.ReframeRequest) error {
	return a.run(ctx, "reframe", reframeArgs(req)...)
}

func reframeArgs(req ports.ReframeRequest) []string {
	args := []string{
		"-y",
		"-ss", fmtSeconds(req.Start),
		"-to", fmtSeconds(req.End),
		"-i", req.Source,
	}
	if req.Secondary != "" {
		args = append(args, "-stream_loop", "-1", "-i", req.Secondary)
	}
	args = append(args,
		"-filter_complex", req.Plan.FilterGraph(),
		"-map", "["+reframe.OutputLabel+"]",
		"-map", "0:a?",
		"-t", fmtSeconds(req.End-req.Start),
	)
	args = append(args, videoCodec...)
	args = append(args, audioCodec...)
	return append(args, req.Out)
}

func (a *Adapter) BurnSubtitles(ctx context.Context, inMP4, assPath, outMP4 string) error {
	args := []string{"-y", "-i", inMP4, "-vf", "subtitles=" + escapeFilterPath(assPath)}
	args = append(args, videoCodec...)
	args = append(args, "-c:a", "copy", outMP4)
	return a.run(ctx, "burn subtitles", args...)
}

func (a *Adapter) Overlay(ctx context.Context, inMP4, filter, outMP4 string) error {
	args := []string{"-y", "-i", inMP4, "-vf", filter}
	args = append(args, videoCodec...)
	args = append(args, "-c:a", "copy", outMP4)
	return a.run(ctx, "overlay", args...)
}

func (a *Adapter) MixAudio(ctx context.Context, inMP4 string, mix audiomix.Params, outMP4 string) error {
	return a.run(ctx, "mix audio", mixArgs(inMP4, mix, outMP4)...)
}

func mixArgs(inMP4 string, mix audiomix.Params, outMP4 string) []string {
	args := []string{"-y", "-i", inMP4}
	args = append(args, mix.InputArgs()...)
	args = append(args,
		"-filter_complex", mix.FilterGraph(),
		"-map", "0:v",
		"-map", "["+audiomix.OutputLabel+"]",
		"-c:v", "copy",
	)
	args = append(args, audioCodec...)
	return append(args, "-t", fmtSeconds(mix.Duration), outMP4)
}

func (a *Adapter) Snapshot(ctx context.Context, inMP4 string, at time.Duration, outPNG string) error {
	return a.run(ctx, "snapshot",
		"-y",
		"-ss", fmtSeconds(at),
		"-i", inMP4,
		"-frames:v", "1",
		outPNG,
	)
}
