package types

import "time"

// Transcript mirrors the whisper.cpp JSON output (segments with optional
// word timestamps, in seconds).
type Transcript struct {
	Segments []Segment `json:"segments"`
	Language string    `json:"language,omitempty"`
}

type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Token is one time-aligned unit of speech on the source timeline.
type Token struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// Candidate is a scored window of the source. Candidates may overlap.
type Candidate struct {
	Start time.Duration
	End   time.Duration
	Text  string

	// Score is in [0,1]; higher is more viral-worthy.
	Score float64
	// PauseAligned reports that both boundaries sit on silence gaps.
	PauseAligned bool
	Rationale    string
	Advisory     bool
}

func (c Candidate) Duration() time.Duration { return c.End - c.Start }

// SelectedClip is a non-overlapping range chosen for rendering.
type SelectedClip struct {
	ID     string        `json:"id"`
	Start  time.Duration `json:"start"`
	End    time.Duration `json:"end"`
	Source string        `json:"source"`

	Score     float64 `json:"score"`
	Text      string  `json:"text,omitempty"`
	Rationale string  `json:"rationale,omitempty"`
}

func (c SelectedClip) Duration() time.Duration { return c.End - c.Start }

// MediaInfo is the subset of probe output the pipeline needs.
type MediaInfo struct {
	Width    int
	Height   int
	Duration time.Duration
	HasAudio bool
}

// Copy is AI-suggested social text for one clip.
type Copy struct {
	Titles       []string          `json:"titles"`
	Descriptions map[string]string `json:"descriptions,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}

type Manifest struct {
	Input  string         `json:"input"`
	RunID  string         `json:"run_id"`
	Layout string         `json:"layout"`
	Clips  []ManifestClip `json:"clips"`
}

type ManifestClip struct {
	ID           string            `json:"id"`
	JobID        string            `json:"job_id"`
	Attempt      int               `json:"attempt"`
	StartSec     float64           `json:"start_sec"`
	EndSec       float64           `json:"end_sec"`
	Score        float64           `json:"score"`
	Text         string            `json:"text"`
	Status       string            `json:"status"`
	Stages       map[string]string `json:"stages"`
	FailedStage  string            `json:"failed_stage,omitempty"`
	Error        string            `json:"error,omitempty"`
	File         string            `json:"file,omitempty"`
	Cover        string            `json:"cover,omitempty"`
	Subtitles    string            `json:"subtitles,omitempty"`
	Title        string            `json:"title"`
	Descriptions map[string]string `json:"descriptions,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
}
