// internal/media/fetcher.go
package media

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/pipeline"
)

var downloadPercentRe = regexp.MustCompile(`\[download\]\s+(\d+(?:\.\d+)?)%`)

// Fetcher downloads the media for one item via yt-dlp. Downloads resume from
// partial files, so re-running the stage with the same work dir is safe.
type Fetcher struct {
	ytdlp string
}

func NewFetcher(cfg config.PipelineConfig) *Fetcher {
	return &Fetcher{ytdlp: cfg.YTDLPPath}
}

func (f *Fetcher) Fetch(ctx context.Context, url, workDir string, progress pipeline.ProgressFunc) (string, error) {
	template := filepath.Join(workDir, "source.%(ext)s")
	cmd := exec.CommandContext(ctx, f.ytdlp,
		"--no-playlist",
		"--newline",
		"--continue",
		"-f", "bv*+ba/b",
		"-o", template,
		url,
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", pipeline.Transient(err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", pipeline.Transient(err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if m := downloadPercentRe.FindStringSubmatch(scanner.Text()); m != nil {
			if pct, err := strconv.ParseFloat(m[1], 64); err == nil && progress != nil {
				progress(pct / 100)
			}
		}
	}

	if err := cmd.Wait(); err != nil {
		return "", classify(f.ytdlp, err, stderr.String())
	}

	matches, err := filepath.Glob(filepath.Join(workDir, "source.*"))
	if err != nil || len(matches) == 0 {
		return "", pipeline.Transient(fmt.Errorf("download produced no output file in %s", workDir))
	}
	return matches[0], nil
}
