// internal/media/transcriber.go
package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/pipeline"
)

// Transcriber produces an SRT subtitle file from a media file by shelling out
// to whisper.
type Transcriber struct {
	whisper string
	model   string
}

func NewTranscriber(cfg config.PipelineConfig) *Transcriber {
	return &Transcriber{whisper: cfg.WhisperPath, model: cfg.WhisperModel}
}

func (t *Transcriber) Transcribe(ctx context.Context, mediaPath string, progress pipeline.ProgressFunc) (string, error) {
	outDir := filepath.Dir(mediaPath)
	base := strings.TrimSuffix(filepath.Base(mediaPath), filepath.Ext(mediaPath))
	srtPath := filepath.Join(outDir, base+".srt")

	// A prior run may have finished transcription without checkpointing.
	if _, err := os.Stat(srtPath); err == nil {
		return srtPath, nil
	}

	_, err := runCommand(ctx, t.whisper,
		"--model", t.model,
		"--output_format", "srt",
		"--output_dir", outDir,
		mediaPath,
	)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(srtPath); err != nil {
		return "", pipeline.Transient(fmt.Errorf("transcription produced no subtitle file at %s", srtPath))
	}
	return srtPath, nil
}
