// internal/media/embedder.go
package media

import (
	"context"
	"path/filepath"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/pipeline"
)

// Embedder muxes a subtitle track into the media container with ffmpeg.
type Embedder struct {
	ffmpeg string
}

func NewEmbedder(cfg config.PipelineConfig) *Embedder {
	return &Embedder{ffmpeg: cfg.FFmpegPath}
}

func (e *Embedder) Embed(ctx context.Context, mediaPath, subtitlePath string, progress pipeline.ProgressFunc) (string, error) {
	outPath := filepath.Join(filepath.Dir(mediaPath), "output.mp4")

	_, err := runCommand(ctx, e.ffmpeg,
		"-y",
		"-i", mediaPath,
		"-i", subtitlePath,
		"-c:v", "copy",
		"-c:a", "copy",
		"-c:s", "mov_text",
		"-metadata:s:s:0", "language=und",
		outPath,
	)
	if err != nil {
		return "", err
	}
	return outPath, nil
}
