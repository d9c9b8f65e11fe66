// Package parser recovers structured usage data from the flat text of a usage report.
//
// Report layout: each category's product lines are printed first, followed by a
// "Store <n> <Label> Inventory Usage per $1000" header that closes the section. Products
// are therefore assigned to the header that follows them, never the one that precedes them.
//
// Everything in this package is a pure function of its input and safe for concurrent use.
package parser

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	storeNumberPattern = regexp.MustCompile(`(?i)Store\s+(\d+)`)

	// P-number, name without another P-number, unit, four weeks and the average.
	productPattern = regexp.MustCompile(
		`(P\d+)\s+([A-Za-z](?:[^P]|P\D)*?)\s+(` + strings.Join(Units, "|") + `)` +
			strings.Repeat(`\s+([\d(),.-]+)`, 5),
	)

	productTokenPattern = regexp.MustCompile(`\bP\d+\b`)
	catalogSuffix       = regexp.MustCompile(`\s+K-\s*$`)

	headerPatterns = buildHeaderPatterns()
)

func buildHeaderPatterns() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp, len(Categories))
	for _, label := range Categories {
		words := strings.Fields(label)
		for i, w := range words {
			words[i] = regexp.QuoteMeta(w)
		}
		out[label] = regexp.MustCompile(
			`(?i)Store\s+\d+\s+` + strings.Join(words, `\s+`) + `\s+Inventory\s+Usage\s+per\s+\$1000`,
		)
	}
	return out
}

// Parse extracts the store number, locates category headers, recovers product records
// and assigns each record to the category whose header follows it.
//
// Found categories come first in header order, then the categories without a header
// (declaration order, no products). Gaps are reported as diagnostics.
func Parse(text string) Result {
	headers := LocateHeaders(text)
	records, diagnostics := RecoverRecords(text)

	report := Report{
		StoreNumber: StoreNumber(text),
		Categories:  make([]Category, 0, len(Categories)),
	}

	start := 0
	assigned := 0
	found := make(map[string]bool, len(headers))
	for _, h := range headers {
		found[h.Category] = true
		products := make([]Product, 0)
		for _, r := range records {
			if r.Offset >= start && r.Offset < h.Offset {
				products = append(products, r.Product)
			}
		}
		assigned += len(products)
		report.Categories = append(report.Categories, Category{Name: h.Category, Products: products})
		start = h.Offset
	}

	for _, label := range Categories {
		if found[label] {
			continue
		}
		report.Categories = append(report.Categories, Category{Name: label, Products: make([]Product, 0)})
	}

	diagnostics = append(diagnostics, missingHeaderDiagnostics(text, found)...)

	if trailing := len(records) - assigned; trailing > 0 {
		first := records[assigned]
		message := fmt.Sprintf("%d product(s) appear after the last category header", trailing)
		if len(headers) == 0 {
			message = fmt.Sprintf("%d product(s) found but no category header was located", trailing)
		}
		diagnostics = append(diagnostics, Diagnostic{
			Kind:    DiagnosticTrailingProducts,
			Offset:  first.Offset,
			Count:   trailing,
			Message: message,
		})
	}

	sort.SliceStable(diagnostics, func(i, j int) bool {
		return diagnostics[i].Offset < diagnostics[j].Offset
	})

	return Result{
		Report:      report,
		Records:     records,
		Headers:     headers,
		Diagnostics: diagnostics,
	}
}

// StoreNumber returns the digits of the first "Store <digits>" marker, or "".
func StoreNumber(text string) string {
	m := storeNumberPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// LocateHeaders finds the first header of every fixed category and returns them
// sorted by ascending offset.
func LocateHeaders(text string) []Header {
	headers := make([]Header, 0, len(Categories))
	for _, label := range Categories {
		loc := headerPatterns[label].FindStringIndex(text)
		if loc == nil {
			continue
		}
		headers = append(headers, Header{Category: label, Offset: loc[0]})
	}
	sort.SliceStable(headers, func(i, j int) bool {
		return headers[i].Offset < headers[j].Offset
	})
	return headers
}

// RecoverRecords scans the whole text for product lines. Every product number token
// that does not start a record is returned as an unmatched span diagnostic.
func RecoverRecords(text string) ([]Record, []Diagnostic) {
	matches := productPattern.FindAllStringSubmatchIndex(text, -1)
	records := make([]Record, 0, len(matches))
	starts := make(map[int]bool, len(matches))

	for _, m := range matches {
		group := func(i int) string {
			return strings.TrimSpace(text[m[2*i]:m[2*i+1]])
		}

		records = append(records, Record{
			Product: Product{
				ProductNumber: group(1),
				Product:       cleanName(group(2)),
				Unit:          group(3),
				Weeks: Weeks{
					W1: cleanNumber(group(4)),
					W2: cleanNumber(group(5)),
					W3: cleanNumber(group(6)),
					W4: cleanNumber(group(7)),
				},
				Average: cleanNumber(group(8)),
			},
			Offset: m[0],
		})
		starts[m[0]] = true
	}

	return records, unmatchedSpans(text, matches, starts)
}

func cleanName(name string) string {
	return strings.TrimSpace(catalogSuffix.ReplaceAllString(strings.TrimSpace(name), ""))
}

// cleanNumber drops parentheses around a figure without reading them as a sign.
func cleanNumber(s string) string {
	return strings.TrimSpace(strings.NewReplacer("(", "", ")", "").Replace(s))
}
