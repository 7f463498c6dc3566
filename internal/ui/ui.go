// Package ui renders search results and ingest progress to the terminal.
// Output degrades to plain text for pipes, CI, and NO_COLOR.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY reports whether the writer is an interactive terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// DetectNoColor reports whether NO_COLOR is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI reports whether we are running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// StylesFor picks the style set for a writer: colored only when writing to
// an interactive terminal with color allowed.
func StylesFor(w io.Writer, noColor bool) Styles {
	if noColor || DetectNoColor() || !IsTTY(w) || DetectCI() {
		return NoColorStyles()
	}
	return DefaultStyles()
}
