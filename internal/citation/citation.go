// Package citation renders citation strings for search results: bibliographic
// citations for publication chunks and profile lines for researcher chunks.
// Formatting is best effort: missing metadata narrows the citation rather
// than failing it, so a record with only a title still cites.
package citation

import (
	"fmt"
	"strings"

	cserrors "github.com/citeseek/citeseek/internal/errors"
	"github.com/citeseek/citeseek/internal/store"
)

// Style selects a citation format.
type Style string

const (
	StyleAPA  Style = "apa"
	StyleIEEE Style = "ieee"
	StyleMLA  Style = "mla"
)

// Formatter renders citations in a fixed style.
type Formatter struct {
	style      Style
	includeDOI bool
}

// NewFormatter creates a formatter. Unrecognized styles fall back to a
// minimal "Title (Year)" rendering at format time.
func NewFormatter(style Style, includeDOI bool) *Formatter {
	return &Formatter{style: style, includeDOI: includeDOI}
}

// Format renders a citation for a chunk, dispatching on its type.
// Publication chunks cite in the configured style with authors in
// publication order; an empty author list drops the author segment.
// Person chunks render a style-independent profile line carrying the
// researcher's publication count; pubCount is ignored for publication
// chunks.
func (f *Formatter) Format(chunk *store.Chunk, authors []*store.AuthorRef, pubCount int) (string, error) {
	if chunk == nil {
		return "", cserrors.New(cserrors.ErrCodeCitationEnrichment, "chunk is nil", nil)
	}
	if chunk.Type.IsPerson() {
		return formatPerson(chunk, pubCount)
	}
	meta := chunk.Publication
	if meta == nil || meta.Title == "" {
		return "", cserrors.New(cserrors.ErrCodeCitationEnrichment,
			fmt.Sprintf("chunk %s has no publication metadata", chunk.ID), nil)
	}

	names := authorList(authors)

	switch f.style {
	case StyleAPA:
		return f.formatAPA(meta, names), nil
	case StyleIEEE:
		return f.formatIEEE(meta, names), nil
	case StyleMLA:
		return f.formatMLA(meta, names), nil
	default:
		return minimalCitation(meta), nil
	}
}

// authorList collapses the author slice into a display string: one author
// verbatim, two joined with an ampersand, three or more truncated to the
// first author plus "et al.".
func authorList(authors []*store.AuthorRef) string {
	names := make([]string, 0, len(authors))
	for _, a := range authors {
		if a != nil && a.Name != "" {
			names = append(names, a.Name)
		}
	}

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " & " + names[1]
	default:
		return names[0] + " et al."
	}
}

// formatAPA renders "Author (Year). Title. Venue. https://doi.org/x".
func (f *Formatter) formatAPA(meta *store.PublicationMeta, authors string) string {
	var b strings.Builder

	if authors != "" {
		b.WriteString(authors)
		if meta.Year > 0 {
			fmt.Fprintf(&b, " (%d)", meta.Year)
		}
		b.WriteString(". ")
		b.WriteString(meta.Title)
		b.WriteString(".")
	} else {
		b.WriteString(meta.Title)
		if meta.Year > 0 {
			fmt.Fprintf(&b, " (%d)", meta.Year)
		}
		b.WriteString(".")
	}

	if meta.Venue != "" {
		b.WriteString(" ")
		b.WriteString(meta.Venue)
		b.WriteString(".")
	}
	if f.includeDOI && meta.DOI != "" {
		b.WriteString(" https://doi.org/")
		b.WriteString(meta.DOI)
	}
	return b.String()
}

// formatIEEE renders `Author, "Title," Venue, Year. doi: x.`
func (f *Formatter) formatIEEE(meta *store.PublicationMeta, authors string) string {
	tail := make([]string, 0, 2)
	if meta.Venue != "" {
		tail = append(tail, meta.Venue)
	}
	if meta.Year > 0 {
		tail = append(tail, fmt.Sprintf("%d", meta.Year))
	}

	var b strings.Builder
	if authors != "" {
		b.WriteString(authors)
		b.WriteString(", ")
	}
	// The separator before the tail sits inside the title quotes.
	if len(tail) > 0 {
		fmt.Fprintf(&b, "%q ", meta.Title+",")
		b.WriteString(strings.Join(tail, ", "))
		b.WriteString(".")
	} else {
		fmt.Fprintf(&b, "%q", meta.Title+".")
	}

	if f.includeDOI && meta.DOI != "" {
		b.WriteString(" doi: ")
		b.WriteString(meta.DOI)
		b.WriteString(".")
	}
	return b.String()
}

// formatMLA renders `Author. "Title." Venue, Year.`
func (f *Formatter) formatMLA(meta *store.PublicationMeta, authors string) string {
	var b strings.Builder

	if authors != "" {
		b.WriteString(authors)
		b.WriteString(". ")
	}
	fmt.Fprintf(&b, "%q", meta.Title+".")

	tail := make([]string, 0, 2)
	if meta.Venue != "" {
		tail = append(tail, meta.Venue)
	}
	if meta.Year > 0 {
		tail = append(tail, fmt.Sprintf("%d", meta.Year))
	}
	if len(tail) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(tail, ", "))
		b.WriteString(".")
	}
	return b.String()
}

// formatPerson renders "Name. Role, School. N publications. URL" for a
// researcher chunk. Person citations do not vary by style; a zero
// publication count drops that segment.
func formatPerson(chunk *store.Chunk, pubCount int) (string, error) {
	meta := chunk.Person
	if meta == nil || meta.Name == "" {
		return "", cserrors.New(cserrors.ErrCodeCitationEnrichment,
			fmt.Sprintf("chunk %s has no person metadata", chunk.ID), nil)
	}

	var b strings.Builder
	b.WriteString(meta.Name)
	b.WriteString(".")

	affiliation := make([]string, 0, 2)
	if meta.Role != "" {
		affiliation = append(affiliation, meta.Role)
	}
	switch {
	case meta.School != "":
		affiliation = append(affiliation, meta.School)
	case meta.Faculty != "":
		affiliation = append(affiliation, meta.Faculty)
	}
	if len(affiliation) > 0 {
		b.WriteString(" ")
		b.WriteString(strings.Join(affiliation, ", "))
		b.WriteString(".")
	}
	if pubCount > 0 {
		noun := "publications"
		if pubCount == 1 {
			noun = "publication"
		}
		fmt.Fprintf(&b, " %d %s.", pubCount, noun)
	}
	if meta.ProfileURL != "" {
		b.WriteString(" ")
		b.WriteString(meta.ProfileURL)
	}
	return b.String(), nil
}

// minimalCitation is the fallback for unknown styles.
func minimalCitation(meta *store.PublicationMeta) string {
	if meta.Year > 0 {
		return fmt.Sprintf("%s (%d)", meta.Title, meta.Year)
	}
	return meta.Title
}
