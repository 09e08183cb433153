// Package failure classifies pipeline errors so callers can decide whether to
// retry, surface immediately or keep artifacts for a later resume.
package failure

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInput marks bad transcripts and bad configuration values. Never retried.
	ErrInput = errors.New("input error")
	// ErrProvider marks AI and transcription provider failures, timeouts included.
	ErrProvider = errors.New("provider error")
	// ErrTransform marks media engine failures for a specific stage.
	ErrTransform = errors.New("transform error")
	// ErrCancelled marks work stopped by context cancellation.
	ErrCancelled = errors.New("cancelled")
)

type Kind string

const (
	KindUnknown   Kind = "unknown"
	KindInput     Kind = "input"
	KindProvider  Kind = "provider"
	KindTransform Kind = "transform"
	KindCancelled Kind = "cancelled"
)

// Wrap tags err with marker and an operation label. The marker must be one of
// the sentinels above; nil defaults to ErrTransform.
func Wrap(marker error, op string, err error) error {
	if marker == nil {
		marker = ErrTransform
	}
	op = strings.TrimSpace(op)
	switch {
	case err == nil && op == "":
		return marker
	case err == nil:
		return fmt.Errorf("%w: %s", marker, op)
	case op == "":
		return fmt.Errorf("%w: %w", marker, err)
	default:
		return fmt.Errorf("%w: %s: %w", marker, op, err)
	}
}

// Classify reports the class of err. Context cancellation wins over any other
// marker because a cancelled job is never retried automatically.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrInput):
		return KindInput
	case errors.Is(err, ErrProvider), errors.Is(err, context.DeadlineExceeded):
		return KindProvider
	case errors.Is(err, ErrTransform):
		return KindTransform
	default:
		return KindUnknown
	}
}

// Retryable reports whether err may succeed on a later attempt.
func Retryable(err error) bool {
	return Classify(err) == KindProvider
}
