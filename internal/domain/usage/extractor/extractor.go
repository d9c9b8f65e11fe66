// Package extractor turns the bytes of an uploaded PDF report into one flat text stream.
package extractor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrExtraction means the upload is not a readable PDF. No partial text is returned.
var ErrExtraction = errors.New("could not read file")

const (
	// baselineTolerance is how far apart two glyph baselines may be and still share a line.
	baselineTolerance = 2.0
	// wordGapRatio is the horizontal gap, relative to font size, that starts a new token.
	wordGapRatio = 0.25
)

// Extractor reads PDF text in page order.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract returns the text of every page in order, tokens within a page joined by single
// spaces and pages joined by a newline.
func (e *Extractor) Extract(ctx context.Context, content []byte) (text string, err error) {
	if len(content) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrExtraction)
	}

	// The PDF reader panics on some malformed streams.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("PDF decoder panicked", slog.Any("panic", r))
			text, err = "", fmt.Errorf("%w: malformed document", ErrExtraction)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			e.logger.Debug("skipping empty PDF page", slog.Int("page", i))
			continue
		}

		tokens := JoinGlyphs(page.Content().Text)
		pages = append(pages, strings.Join(tokens, " "))
	}

	e.logger.Debug("extracted PDF text",
		slog.Int("pages", numPages),
		slog.Int("bytes", len(content)),
	)

	return strings.Join(pages, "\n"), nil
}

// JoinGlyphs merges the positioned glyph runs of one page into whitespace-free tokens,
// keeping the reader's content order. A run starts a new token when it is whitespace,
// sits on another baseline, or is separated from the previous run by a visible gap.
func JoinGlyphs(texts []pdf.Text) []string {
	var tokens []string
	var current strings.Builder
	var prev *pdf.Text

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for i := range texts {
		t := &texts[i]
		if strings.TrimSpace(t.S) == "" {
			flush()
			prev = nil
			continue
		}

		if prev != nil && (!adjacent(prev, t) || t.S != strings.TrimLeft(t.S, " \t\r\n")) {
			flush()
		}

		// A run can itself contain spaces when the producer emits whole words.
		parts := strings.Fields(t.S)
		for j, part := range parts {
			if j > 0 {
				flush()
			}
			current.WriteString(part)
		}
		if hasTrailingSpace(t.S) {
			flush()
			prev = nil
			continue
		}
		prev = t
	}
	flush()

	return tokens
}

func adjacent(prev, next *pdf.Text) bool {
	if math.Abs(prev.Y-next.Y) >= baselineTolerance {
		return false
	}
	gap := next.X - (prev.X + prev.W)
	size := math.Max(prev.FontSize, next.FontSize)
	if size <= 0 {
		size = 1
	}
	return gap < size*wordGapRatio
}

func hasTrailingSpace(s string) bool {
	return s != strings.TrimRight(s, " \t\r\n")
}
