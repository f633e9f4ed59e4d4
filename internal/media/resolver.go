// internal/media/resolver.go
package media

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/pipeline"
)

// Resolver classifies and resolves source URLs using yt-dlp's JSON output.
type Resolver struct {
	ytdlp string
}

func NewResolver(cfg config.PipelineConfig) *Resolver {
	return &Resolver{ytdlp: cfg.YTDLPPath}
}

type ytdlpInfo struct {
	Type     string       `json:"_type"`
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Uploader string       `json:"uploader"`
	Duration float64      `json:"duration"`
	Entries  []ytdlpEntry `json:"entries"`
}

type ytdlpEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Uploader string  `json:"uploader"`
	Duration float64 `json:"duration"`
}

// ResolveCollection resolves a collection URL into its ordered item list.
// It fails with a ResolutionError when the URL is not a collection or is
// inaccessible.
func (r *Resolver) ResolveCollection(ctx context.Context, url string) (*pipeline.Collection, error) {
	out, err := runCommand(ctx, r.ytdlp, "--flat-playlist", "--dump-single-json", "--no-warnings", url)
	if err != nil {
		return nil, &pipeline.ResolutionError{URL: url, Detail: err.Error()}
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, &pipeline.ResolutionError{URL: url, Detail: fmt.Sprintf("unparseable metadata: %v", err)}
	}
	if info.Type != "playlist" {
		return nil, fmt.Errorf("%s: %w", url, pipeline.ErrNotCollection)
	}

	col := &pipeline.Collection{
		ID:       info.ID,
		Title:    info.Title,
		Uploader: info.Uploader,
	}
	for i, entry := range info.Entries {
		itemURL := entry.URL
		if itemURL == "" {
			itemURL = fmt.Sprintf("https://www.youtube.com/watch?v=%s", entry.ID)
		}
		col.Items = append(col.Items, pipeline.Item{
			ID:       entry.ID,
			Index:    i + 1,
			Title:    entry.Title,
			URL:      itemURL,
			Uploader: entry.Uploader,
			Duration: int(entry.Duration),
		})
	}
	return col, nil
}

// ResolveItem resolves a single item's metadata.
func (r *Resolver) ResolveItem(ctx context.Context, url string) (*pipeline.Item, error) {
	out, err := runCommand(ctx, r.ytdlp, "--dump-single-json", "--no-playlist", "--no-warnings", url)
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		return nil, pipeline.Fatal(fmt.Errorf("unparseable item metadata: %w", err))
	}

	return &pipeline.Item{
		ID:       info.ID,
		Title:    info.Title,
		URL:      url,
		Uploader: info.Uploader,
		Duration: int(info.Duration),
	}, nil
}
