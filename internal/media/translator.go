// internal/media/translator.go
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

// Translator produces a translated subtitle file by shelling out to the
// configured translation command. The command contract is:
//
//	<translator> --target <lang> --input <in.srt> --output <out.srt>
type Translator struct {
	binary string
}

func NewTranslator(cfg config.PipelineConfig) *Translator {
	return &Translator{binary: cfg.TranslatorPath}
}

func (t *Translator) Translate(ctx context.Context, subtitlePath, targetLanguage string, progress pipeline.ProgressFunc) (string, error) {
	base := strings.TrimSuffix(subtitlePath, filepath.Ext(subtitlePath))
	outPath := fmt.Sprintf("%s.%s.srt", base, targetLanguage)

	// A prior run may have finished translating without checkpointing.
	if _, err := os.Stat(outPath); err == nil {
		return outPath, nil
	}

	_, err := runCommand(ctx, t.binary,
		"--target", targetLanguage,
		"--input", subtitlePath,
		"--output", outPath,
	)
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(outPath); err != nil {
		return "", pipeline.Transient(fmt.Errorf("translation produced no subtitle file at %s", outPath))
	}
	return outPath, nil
}
