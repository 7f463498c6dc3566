package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/citeseek/citeseek/internal/search"
)

// ResultWriter renders search responses.
type ResultWriter struct {
	out    io.Writer
	styles Styles
}

// NewResultWriter creates a renderer writing to out with the given styles.
func NewResultWriter(out io.Writer, styles Styles) *ResultWriter {
	return &ResultWriter{out: out, styles: styles}
}

// WriteResponse renders a full search response: header, degradation
// notices, then one block per result.
func (w *ResultWriter) WriteResponse(resp *search.Response) {
	s := w.styles

	if len(resp.Results) == 0 {
		fmt.Fprintln(w.out, s.Dim.Render("No results."))
		return
	}

	fmt.Fprintln(w.out, s.Header.Render(fmt.Sprintf("%d results for %q (%s)",
		len(resp.Results), resp.Query, resp.Elapsed.Round(time.Millisecond))))

	for _, notice := range degradationNotices(resp) {
		fmt.Fprintln(w.out, s.Warning.Render("warning: "+notice))
	}
	fmt.Fprintln(w.out)

	for i, r := range resp.Results {
		w.writeResult(i+1, r)
	}
}

func (w *ResultWriter) writeResult(rank int, r *search.Result) {
	s := w.styles

	fmt.Fprintf(w.out, "%s %s %s\n",
		s.Rank.Render(fmt.Sprintf("%2d.", rank)),
		s.Title.Render(resultTitle(r)),
		s.Score.Render(fmt.Sprintf("[%.4f]", r.FinalScore)))

	var meta []string
	meta = append(meta, string(r.Chunk.Type))
	if r.InBothLists {
		meta = append(meta, "both branches")
	}
	if len(r.MatchedTerms) > 0 {
		meta = append(meta, "matched: "+strings.Join(r.MatchedTerms, ", "))
	}
	fmt.Fprintf(w.out, "    %s\n", s.Label.Render(strings.Join(meta, " | ")))

	if snippet := snippetOf(r.Chunk.Content, 160); snippet != "" {
		fmt.Fprintf(w.out, "    %s\n", snippet)
	}
	if r.Citation != "" {
		fmt.Fprintf(w.out, "    %s\n", s.Citation.Render(r.Citation))
	}
	fmt.Fprintln(w.out)
}

// WriteStats renders engine statistics.
func (w *ResultWriter) WriteStats(stats *search.EngineStats) {
	s := w.styles

	fmt.Fprintln(w.out, s.Header.Render("Index statistics"))
	fmt.Fprintf(w.out, "  %s %d\n", s.Label.Render("Chunks:   "), stats.ChunkCount)
	fmt.Fprintf(w.out, "  %s %d\n", s.Label.Render("Documents:"), stats.DocumentCount)
	fmt.Fprintf(w.out, "  %s %d\n", s.Label.Render("Vectors:  "), stats.VectorCount)

	reranker := "unavailable"
	if stats.RerankerUp {
		reranker = "up"
	}
	fmt.Fprintf(w.out, "  %s %s\n", s.Label.Render("Reranker: "), reranker)
}

// resultTitle picks a display title: publication title, person name, or
// the chunk ID as last resort.
func resultTitle(r *search.Result) string {
	if r.Chunk == nil {
		return r.ChunkID
	}
	if r.Chunk.Publication != nil && r.Chunk.Publication.Title != "" {
		return r.Chunk.Publication.Title
	}
	if r.Chunk.Person != nil && r.Chunk.Person.Name != "" {
		return r.Chunk.Person.Name
	}
	return r.ChunkID
}

// snippetOf truncates content to maxLen runes on a rune boundary.
func snippetOf(content string, maxLen int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	return string(runes[:maxLen]) + "..."
}

func degradationNotices(resp *search.Response) []string {
	var notices []string
	if resp.VectorFallback {
		notices = append(notices, "vector index unavailable, exhaustive scan used")
	}
	if resp.RerankSkipped {
		notices = append(notices, "reranker unavailable, results in fused order")
	}
	if resp.LexicalFailed {
		notices = append(notices, "lexical search failed, vector results only")
	}
	if resp.VectorFailed {
		notices = append(notices, "vector search failed, lexical results only")
	}
	return notices
}
