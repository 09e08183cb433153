package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/forPelevin/vertclip/internal/types"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inMP4, outWav string) error {
	return a.run(ctx, "extract audio",
		"-y",
		"-i", inMP4,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
}

type sideData struct {
	Rotation float64 `json:"rotation"`
}

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Tags      struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideData []sideData `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (a *Adapter) Probe(ctx context.Context, path string) (types.MediaInfo, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-show_format",
		"-show_streams",
		"-of", "json",
		"--", path,
	)
	b, err := cmd.Output()
	if err != nil {
		return types.MediaInfo{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(b)
}

func parseProbe(b []byte) (types.MediaInfo, error) {
	var pr probeResult
	if err := json.Unmarshal(b, &pr); err != nil {
		return types.MediaInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var info types.MediaInfo
	for _, s := range pr.Streams {
		switch s.CodecType {
		case "video":
			if info.Width != 0 {
				continue
			}
			info.Width, info.Height = s.Width, s.Height
			// Phone footage is often stored landscape with a rotation flag.
			if rotated(s.Tags.Rotate, s.SideData) {
				info.Width, info.Height = info.Height, info.Width
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if info.Width == 0 || info.Height == 0 {
		return types.MediaInfo{}, fmt.Errorf("no video stream")
	}
	if d := strings.TrimSpace(pr.Format.Duration); d != "" {
		sec, err := strconv.ParseFloat(d, 64)
		if err != nil {
			return types.MediaInfo{}, fmt.Errorf("parse duration %q: %w", d, err)
		}
		info.Duration = time.Duration(sec * float64(time.Second))
	}
	return info, nil
}

func rotated(tag string, side []sideData) bool {
	deg, _ := strconv.Atoi(strings.TrimSpace(tag))
	for _, sd := range side {
		if sd.Rotation != 0 {
			deg = int(sd.Rotation)
		}
	}
	deg = ((deg % 360) + 360) % 360
	return deg == 90 || deg == 270
}

func (a *Adapter) run(ctx context.Context, op string, args ...string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg, append([]string{"-hide_banner", "-nostdin"}, args...)...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg %s: %w\n%s", op, err, tail(b, 2000))
	}
	return nil
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

func escapeFilterPath(p string) string {
	p = strings.ReplaceAll(p, "\\", "\\\\")
	p = strings.ReplaceAll(p, ":", "\\:")
	p = strings.ReplaceAll(p, "'", "\\'")
	return p
}
