package failure

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"input", Wrap(ErrInput, "config", errors.New("bad gain")), KindInput},
		{"provider", Wrap(ErrProvider, "openrouter", nil), KindProvider},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindProvider},
		{"transform", Wrap(nil, "ffmpeg", errors.New("exit 1")), KindTransform},
		{"cancelled", fmt.Errorf("stage: %w", context.Canceled), KindCancelled},
		{"cancel beats provider", Wrap(ErrProvider, "x", context.Canceled), KindCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Fatalf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(ErrTransform, "reframe", cause)
	if !errors.Is(err, cause) || !errors.Is(err, ErrTransform) {
		t.Fatalf("expected both marker and cause in chain: %v", err)
	}
	if err.Error() != "transform error: reframe: exit status 1" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(Wrap(ErrProvider, "titles", nil)) {
		t.Fatalf("provider errors must be retryable")
	}
	if Retryable(Wrap(ErrInput, "gain", nil)) || Retryable(Wrap(ErrTransform, "", nil)) {
		t.Fatalf("input and transform errors must not be retried")
	}
}
