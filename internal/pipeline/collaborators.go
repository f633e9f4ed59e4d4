// internal/pipeline/collaborators.go
package pipeline

import (
	"context"
)

// Item describes one entry of a resolved collection, or a single resolved
// media item.
type Item struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Uploader string `json:"uploader,omitempty"`
	Duration int    `json:"duration,omitempty"`
}

// Collection is the ordered result of resolving a collection URL.
type Collection struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Uploader string `json:"uploader,omitempty"`
	Items    []Item `json:"items"`
}

// ProgressFunc reports fractional sub-progress (0..1) within a stage. The
// stage executor maps it linearly into the stage's weight band.
type ProgressFunc func(fraction float64)

// Resolver turns a source URL into collection or item metadata.
// ResolveCollection fails with a ResolutionError when the URL is not a
// collection or is inaccessible.
type Resolver interface {
	ResolveCollection(ctx context.Context, url string) (*Collection, error)
	ResolveItem(ctx context.Context, url string) (*Item, error)
}

// Fetcher downloads the media for one item into workDir and returns the path
// of the downloaded file. It must be idempotent with respect to a prior
// partial download of the same item.
type Fetcher interface {
	Fetch(ctx context.Context, url, workDir string, progress ProgressFunc) (string, error)
}

// Transcriber produces a subtitle file from a media file.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string, progress ProgressFunc) (string, error)
}

// Translator produces a subtitle file translated into targetLanguage.
type Translator interface {
	Translate(ctx context.Context, subtitlePath, targetLanguage string, progress ProgressFunc) (string, error)
}

// Embedder muxes the translated subtitles into the media container and
// returns the output path.
type Embedder interface {
	Embed(ctx context.Context, mediaPath, subtitlePath string, progress ProgressFunc) (string, error)
}

// Collaborators bundles every external component the stage executor invokes.
type Collaborators struct {
	Resolver    Resolver
	Fetcher     Fetcher
	Transcriber Transcriber
	Translator  Translator
	Embedder    Embedder
}
