package render

import (
	"context"
	"fmt"
)

// Stage transforms the previous stage's artifact into a new one. Stages read
// the job but never modify it: the orchestrator records the returned
// artifact and the stage status.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, job *Job, in Artifact) (Artifact, error)
}

// StageError identifies the failing stage and the input it was given, so the
// artifact can be inspected before a resume.
type StageError struct {
	Stage    StageName
	Artifact Artifact
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed on %s: %v", e.Stage, e.Artifact.Path, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func passThrough(s StageName, in Artifact) Artifact {
	return Artifact{Stage: s, Path: in.Path}
}
