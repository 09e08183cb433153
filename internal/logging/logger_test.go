package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/vertclip/internal/logging"
)

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger = logging.NewComponentLogger(logger, "render")
	logger.Info("stage done", logging.String(logging.FieldStage, "reframe"), logging.String("path", "a b.mp4"))
	logger.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, " INFO render: stage done stage=reframe path=\"a b.mp4\"") {
		t.Fatalf("unexpected console line: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line printed at info level: %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("buffers must not be colourised: %q", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", Writer: &buf})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("retrying", logging.Int(logging.FieldAttempt, 2), logging.Error(errors.New("503")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("invalid json %q: %v", buf.String(), err)
	}
	if rec["level"] != "warn" || rec["attempt"] != float64(2) || rec["ts"] == nil {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "vertclip.log")
	logger, err := logging.New(logging.Options{OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Error("boom")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(b), "ERROR boom") {
		t.Fatalf("unexpected file content %q", b)
	}
}

func TestWriterAndFileOutput(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "vertclip.log")
	logger, err := logging.New(logging.Options{Writer: &buf, OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("disk low", logging.Float64("free_ratio", 0.05))
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, got := range []string{buf.String(), string(b)} {
		if !strings.Contains(got, "WARN disk low") || !strings.Contains(got, "free_ratio=0.05") {
			t.Fatalf("expected the record in both outputs, got %q", got)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestNewNop(t *testing.T) {
	logging.NewNop().Error("discarded")
	logging.NewComponentLogger(nil, "x").Info("discarded")
}
