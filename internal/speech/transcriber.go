package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// RawSegment is one utterance as produced by the transcription model,
// before confidence normalization.
type RawSegment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	AvgLogProb float64 `json:"avg_logprob"`
}

// Transcriber converts a whole audio file into an ordered list of timed
// segments. Implementations are not assumed to be safe for concurrent use;
// callers go through the ModelCache which serializes invocations.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) ([]RawSegment, error)
}

// WhisperCommand drives the whisper CLI, reading its JSON output. The model
// load cost is paid by the first invocation of the external binary; the
// expensive part we cache here is the resolved handle and its working
// directory.
type WhisperCommand struct {
	binPath string
	model   string
	workDir string
	log     *logrus.Logger
}

type whisperOutput struct {
	Segments []RawSegment `json:"segments"`
}

func NewWhisperCommand(model string, log *logrus.Logger) (*WhisperCommand, error) {
	binPath, err := exec.LookPath("whisper")
	if err != nil {
		return nil, fmt.Errorf("whisper not found in PATH: %w", err)
	}
	workDir := filepath.Join(os.TempDir(), "voxsight-whisper")
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create whisper work directory: %w", err)
	}
	if model == "" {
		model = "base"
	}
	return &WhisperCommand{binPath: binPath, model: model, workDir: workDir, log: log}, nil
}

func (w *WhisperCommand) Transcribe(ctx context.Context, audioPath string) ([]RawSegment, error) {
	cmd := exec.CommandContext(ctx, w.binPath,
		audioPath,
		"--model", w.model,
		"--output_format", "json",
		"--output_dir", w.workDir,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		w.log.WithField("stderr", stderr.String()).Error("whisper invocation failed")
		return nil, fmt.Errorf("transcription failed: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	outPath := filepath.Join(w.workDir, base+".json")
	defer os.Remove(outPath)

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcription output: %w", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse transcription output: %w", err)
	}

	segments := out.Segments
	for i := range segments {
		segments[i].Text = strings.TrimSpace(segments[i].Text)
	}
	return segments, nil
}
