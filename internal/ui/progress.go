package ui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Stage is an ingest pipeline stage.
type Stage int

const (
	// StageLoading reads and validates the input files.
	StageLoading Stage = iota
	// StageEmbedding generates chunk embeddings.
	StageEmbedding
	// StageIndexing writes the lexical and vector indices.
	StageIndexing
	// StageComplete marks a finished ingest.
	StageComplete
)

func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "Loading"
	case StageEmbedding:
		return "Embedding"
	case StageIndexing:
		return "Indexing"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage tag for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageLoading:
		return "LOAD"
	case StageEmbedding:
		return "EMBED"
	case StageIndexing:
		return "INDEX"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent is a progress update from the ingest pipeline.
type ProgressEvent struct {
	Stage   Stage
	Current int
	Total   int
	Message string
}

// CompletionStats summarizes a finished ingest.
type CompletionStats struct {
	Chunks       int
	Publications int
	Staff        int
	Duration     time.Duration
	Errors       int
	EmbedModel   string
	Dimensions   int
}

// ProgressRenderer prints ingest progress as plain lines. It stays
// readable in pipes and CI logs where cursor control would garble output.
type ProgressRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	styles Styles
}

// NewProgressRenderer creates a progress renderer.
func NewProgressRenderer(out io.Writer, styles Styles) *ProgressRenderer {
	return &ProgressRenderer{out: out, styles: styles}
}

// Update prints one progress line.
func (r *ProgressRenderer) Update(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tag := r.styles.Label.Render("[" + event.Stage.Icon() + "]")
	switch {
	case event.Total > 0:
		fmt.Fprintf(r.out, "%s %d/%d %s\n", tag, event.Current, event.Total, event.Message)
	case event.Message != "":
		fmt.Fprintf(r.out, "%s %s\n", tag, event.Message)
	}
}

// Error prints an ingest error without stopping the run.
func (r *ProgressRenderer) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintf(r.out, "%s %v\n", r.styles.Error.Render("ERROR:"), err)
}

// Complete prints the final summary.
func (r *ProgressRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("Indexed %d chunks (%d publications, %d staff) in %s",
		stats.Chunks, stats.Publications, stats.Staff, stats.Duration.Round(100*time.Millisecond))
	if stats.Errors > 0 {
		line += fmt.Sprintf(" (%d errors)", stats.Errors)
	}
	fmt.Fprintln(r.out, r.styles.Header.Render(line))

	if stats.EmbedModel != "" {
		fmt.Fprintf(r.out, "%s %s (%d dims)\n",
			r.styles.Label.Render("Embedder:"), stats.EmbedModel, stats.Dimensions)
	}
}
