//go:build integration

package itest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

func findRepoRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.New("could not locate go.mod")
		}
		dir = parent
	}
}

// clipInfo is what the tests check on a rendered clip.
type clipInfo struct {
	Width    int
	Height   int
	Duration float64
	HasAudio bool
}

func probeClip(mp4Path string) (clipInfo, error) {
	b, err := exec.Command("ffprobe",
		"-v", "error",
		"-show_entries", "stream=codec_type,width,height:format=duration",
		"-of", "json",
		mp4Path,
	).Output()
	if err != nil {
		return clipInfo{}, fmt.Errorf("ffprobe %s: %w", mp4Path, err)
	}
	var out struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
			Width     int    `json:"width"`
			Height    int    `json:"height"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return clipInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var info clipInfo
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			info.Width, info.Height = s.Width, s.Height
		case "audio":
			info.HasAudio = true
		}
	}
	info.Duration, err = strconv.ParseFloat(out.Format.Duration, 64)
	if err != nil {
		return clipInfo{}, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
	}
	return info, nil
}
