package whispercpp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/vertclip/internal/ports"
	"github.com/forPelevin/vertclip/internal/types"
)

type Adapter struct {
	bin      string
	model    string
	language string
}

func New(binPath, modelPath, language string) *Adapter {
	if binPath == "" {
		binPath = "whisper-cli"
	}
	return &Adapter{bin: binPath, model: modelPath, language: strings.TrimSpace(language)}
}

// Transcribe runs whisper.cpp with full JSON output. A result already in
// cacheDir that is newer than the audio is reused.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(cacheDir, "whisper")
	jsonPath := outPrefix + ".json"

	if !fresh(jsonPath, wavPath) {
		args := []string{
			"-m", a.model,
			"-f", wavPath,
			"-oj",
			"-ojf",
			"-of", outPrefix,
		}
		if a.language != "" {
			args = append(args, "-l", a.language)
		}
		cmd := exec.CommandContext(ctx, a.bin, args...)
		b, err := cmd.CombinedOutput()
		if err != nil {
			return types.Transcript{}, &ports.TranscriptionUnavailableError{
				Reason: "whisper.cpp failed",
				Err:    fmt.Errorf("%w\n%s", err, strings.TrimSpace(string(b))),
			}
		}
	}

	jb, err := os.ReadFile(jsonPath)
	if err != nil {
		return types.Transcript{}, &ports.TranscriptionUnavailableError{Reason: "read whisper output", Err: err}
	}
	tr, err := parse(jb)
	if err != nil {
		return types.Transcript{}, &ports.TranscriptionUnavailableError{Reason: "parse whisper output", Err: err}
	}
	if len(tr.Segments) == 0 {
		return types.Transcript{}, &ports.TranscriptionUnavailableError{Reason: "no speech recognised"}
	}
	return tr, nil
}

func fresh(out, in string) bool {
	o, err := os.Stat(out)
	if err != nil {
		return false
	}
	i, err := os.Stat(in)
	if err != nil {
		return false
	}
	return !o.ModTime().Before(i.ModTime())
}

type offsets struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type cppOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets offsets `json:"offsets"`
		Text    string  `json:"text"`
		Tokens  []struct {
			Text    string  `json:"text"`
			Offsets offsets `json:"offsets"`
		} `json:"tokens"`
	} `json:"transcription"`
}

// parse accepts whisper.cpp's native JSON (millisecond offsets, sub-word
// tokens) and the plain segments layout with word timestamps in seconds.
func parse(b []byte) (types.Transcript, error) {
	var native cppOutput
	if err := json.Unmarshal(b, &native); err != nil {
		return types.Transcript{}, err
	}
	if len(native.Transcription) == 0 {
		var tr types.Transcript
		if err := json.Unmarshal(b, &tr); err != nil {
			return types.Transcript{}, err
		}
		return trimTranscript(tr), nil
	}

	tr := types.Transcript{Language: native.Result.Language}
	for _, seg := range native.Transcription {
		s := types.Segment{
			Start: float64(seg.Offsets.From) / 1000,
			End:   float64(seg.Offsets.To) / 1000,
			Text:  seg.Text,
		}
		for _, tok := range seg.Tokens {
			text := tok.Text
			if strings.HasPrefix(strings.TrimSpace(text), "[_") {
				continue
			}
			start, end := float64(tok.Offsets.From)/1000, float64(tok.Offsets.To)/1000
			// A leading space starts a new word; anything else continues it.
			if n := len(s.Words); n > 0 && !strings.HasPrefix(text, " ") {
				s.Words[n-1].Word += text
				s.Words[n-1].End = end
				continue
			}
			s.Words = append(s.Words, types.Word{Start: start, End: end, Word: text})
		}
		tr.Segments = append(tr.Segments, s)
	}
	return trimTranscript(tr), nil
}

func trimTranscript(tr types.Transcript) types.Transcript {
	out := tr.Segments[:0]
	for _, s := range tr.Segments {
		s.Text = strings.TrimSpace(s.Text)
		words := s.Words[:0]
		for _, w := range s.Words {
			w.Word = strings.TrimSpace(w.Word)
			if w.Word != "" {
				words = append(words, w)
			}
		}
		s.Words = words
		if s.Text == "" && len(s.Words) == 0 {
			continue
		}
		out = append(out, s)
	}
	tr.Segments = out
	return tr
}

var _ ports.ASR = (*Adapter)(nil)

// errNoModel is returned by Check when the model path is unusable.
var errNoModel = errors.New("whisper model not found")

// Check verifies the binary and model exist before a long run starts.
func (a *Adapter) Check() error {
	if _, err := exec.LookPath(a.bin); err != nil {
		return fmt.Errorf("whisper.cpp binary %q: %w", a.bin, err)
	}
	if _, err := os.Stat(a.model); err != nil {
		return fmt.Errorf("%w: %s", errNoModel, a.model)
	}
	return nil
}
