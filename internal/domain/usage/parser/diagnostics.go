package parser

import (
	"fmt"
	"strings"

	"github.com/cloudflare/ahocorasick"
)

// spanPreview bounds how much of an unmatched line is echoed back.
const spanPreview = 80

var labelMatcher = newLabelMatcher()

func newLabelMatcher() *ahocorasick.Matcher {
	patterns := make([]string, len(Categories))
	for i, label := range Categories {
		patterns[i] = strings.ToLower(label)
	}
	return ahocorasick.NewStringMatcher(patterns)
}

// missingHeaderDiagnostics reports every category without a header. When the label
// occurs somewhere in the text the header was probably mangled by extraction, and the
// message says so.
func missingHeaderDiagnostics(text string, found map[string]bool) []Diagnostic {
	if len(found) == len(Categories) {
		return nil
	}

	present := make(map[int]bool)
	for _, idx := range labelMatcher.Match([]byte(strings.ToLower(text))) {
		present[idx] = true
	}

	var out []Diagnostic
	for i, label := range Categories {
		if found[label] {
			continue
		}
		message := fmt.Sprintf("no %q section header found", label)
		if present[i] {
			message = fmt.Sprintf("label %q occurs in the text but not as a section header", label)
		}
		out = append(out, Diagnostic{
			Kind:     DiagnosticMissingHeader,
			Category: label,
			Offset:   len(text),
			Message:  message,
		})
	}
	return out
}

// unmatchedSpans returns a diagnostic for each product number token outside every
// recovered record.
func unmatchedSpans(text string, matches [][]int, starts map[int]bool) []Diagnostic {
	var out []Diagnostic
	for _, loc := range productTokenPattern.FindAllStringIndex(text, -1) {
		if starts[loc[0]] || insideMatch(loc[0], matches) {
			continue
		}
		out = append(out, Diagnostic{
			Kind:    DiagnosticUnmatchedSpan,
			Offset:  loc[0],
			Message: fmt.Sprintf("product line not recognised: %q", preview(text[loc[0]:])),
		})
	}
	return out
}

func insideMatch(offset int, matches [][]int) bool {
	for _, m := range matches {
		if offset >= m[0] && offset < m[1] {
			return true
		}
	}
	return false
}

func preview(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > spanPreview {
		s = s[:spanPreview]
	}
	return strings.TrimSpace(s)
}
