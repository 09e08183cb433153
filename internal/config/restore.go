package config

import (
	"encoding/json"
	"fmt"
)

// Restore rebuilds the configuration a run was started with from its stored
// snapshot. Sections that shape the clips come from the snapshot; tool
// locations, provider credentials, retry, logging and metrics come from
// current so a resume can pick up a fixed binary path or a new API key.
// An empty snapshot returns a copy of current.
func Restore(snapshot []byte, current *Config) (*Config, error) {
	out := *current
	out.LLM.AllowedHosts = append([]string(nil), current.LLM.AllowedHosts...)
	if len(snapshot) == 0 {
		return &out, nil
	}
	stored := Default()
	if err := json.Unmarshal(snapshot, &stored); err != nil {
		return nil, fmt.Errorf("decode stored config: %w", err)
	}
	out.Selection = stored.Selection
	out.Subtitles = stored.Subtitles
	out.Overlay = stored.Overlay
	out.Music = stored.Music
	workers := out.Render.Workers
	out.Render = stored.Render
	out.Render.Workers = workers
	out.Tools.Language = stored.Tools.Language
	return &out, nil
}
