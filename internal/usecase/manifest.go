package usecase

import (
	"os"
	"path/filepath"

	"github.com/forPelevin/vertclip/internal/render"
	"github.com/forPelevin/vertclip/internal/types"
)

// BuildManifest describes every job outcome. Paths are relative to runDir.
func BuildManifest(input, runID, layout, runDir string, outcomes []render.Outcome, covers map[string]string) types.Manifest {
	m := types.Manifest{Input: input, RunID: runID, Layout: layout, Clips: make([]types.ManifestClip, 0, len(outcomes))}
	for _, o := range outcomes {
		if o.Job == nil {
			continue
		}
		j := o.Job
		mc := types.ManifestClip{
			ID:           j.Clip.ID,
			JobID:        j.ID,
			Attempt:      j.Attempt,
			StartSec:     j.Clip.Start.Seconds(),
			EndSec:       j.Clip.End.Seconds(),
			Score:        j.Clip.Score,
			Text:         j.Clip.Text,
			Status:       jobStatus(o),
			Stages:       make(map[string]string, len(render.Order)),
			FailedStage:  string(j.FailedStage),
			Error:        j.Error,
			Title:        j.Config.Title.Text,
			Descriptions: j.Copy.Descriptions,
			Tags:         j.Copy.Tags,
		}
		for _, s := range render.Order {
			mc.Stages[string(s)] = string(j.StageStatus(s))
		}
		if o.Err != nil && mc.Error == "" {
			mc.Error = o.Err.Error()
		}
		if o.Done() {
			mc.File = rel(runDir, j.Output)
		}
		if p, ok := covers[j.Clip.ID]; ok {
			mc.Cover = rel(runDir, p)
		}
		if ass := j.ArtifactPath(render.StageSubtitle, ".ass"); fileExists(ass) {
			mc.Subtitles = rel(runDir, ass)
		}
		m.Clips = append(m.Clips, mc)
	}
	return m
}

func jobStatus(o render.Outcome) string {
	switch {
	case o.Done():
		return string(render.StatusDone)
	case o.Job.Failed() || o.Err != nil:
		return string(render.StatusFailed)
	default:
		return string(render.StatusPending)
	}
}

func rel(base, path string) string {
	if path == "" {
		return ""
	}
	r, err := filepath.Rel(base, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(r)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
