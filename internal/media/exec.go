// internal/media/exec.go
package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sublate/sublate/internal/pipeline"
)

// fatalMarkers are stderr fragments that indicate a permanently failing item.
// Anything else is assumed to be a transient condition worth retrying.
var fatalMarkers = []string{
	"video unavailable",
	"private video",
	"this video is not available",
	"account terminated",
	"unsupported url",
	"unsupported format",
	"no video formats",
}

// runCommand executes a collaborator binary and returns its stdout. Failures
// are classified into the pipeline error taxonomy based on stderr content.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", classify(name, err, stderr.String())
	}
	return stdout.String(), nil
}

func classify(name string, err error, stderr string) error {
	detail := strings.TrimSpace(stderr)
	if detail == "" {
		detail = err.Error()
	}
	if len(detail) > 500 {
		detail = detail[:500]
	}

	wrapped := fmt.Errorf("%s: %s", name, detail)
	lower := strings.ToLower(detail)
	for _, marker := range fatalMarkers {
		if strings.Contains(lower, marker) {
			return pipeline.Fatal(wrapped)
		}
	}
	return pipeline.Transient(wrapped)
}
