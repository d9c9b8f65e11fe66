// Package metrics provides the numeric rules of the usage table: null-safe decimal parsing
// of report values, the 4-week average, per-$1000 case usage, volume projections and
// week-over-week variance classification.
package metrics

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

// StorageScale is the number of fractional digits kept by the numeric(10,2) columns.
const StorageScale = 2

// mojibakeDash is an em-dash whose UTF-8 bytes were decoded as Windows-1252 ("â€”").
// Spreadsheets exported from the report tool emit it for empty weeks.
var mojibakeDash = mustDecode1252("—")

func mustDecode1252(s string) string {
	out, err := charmap.Windows1252.NewDecoder().String(s)
	if err != nil {
		panic(err)
	}
	return out
}

// IsPlaceholder reports whether a value stands for "no data".
func IsPlaceholder(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "-", "—", mojibakeDash:
		return true
	}
	return false
}

// ParseDecimal converts a report value into a nullable decimal.
// Blank, dash and mis-encoded dash placeholders are null, thousands separators are
// dropped, and anything that still is not a finite number is null rather than an error.
func ParseDecimal(s string) decimal.NullDecimal {
	s = strings.TrimSpace(s)
	if IsPlaceholder(s) {
		return decimal.NullDecimal{}
	}

	cleaned := strings.ReplaceAll(s, ",", "")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// ParseDecimalPtr is ParseDecimal for optional payload fields.
func ParseDecimalPtr(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	return ParseDecimal(*s)
}

// Mean returns the arithmetic mean of the non-null values, rounded to StorageScale.
// It is null when every value is null.
func Mean(values ...decimal.NullDecimal) decimal.NullDecimal {
	sum := decimal.Zero
	n := 0
	for _, v := range values {
		if !v.Valid {
			continue
		}
		sum = sum.Add(v.Decimal)
		n++
	}
	if n == 0 {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(sum.Div(decimal.NewFromInt(int64(n))).Round(StorageScale))
}

// StringOrEmpty renders a nullable decimal the way the usage table prints it.
func StringOrEmpty(d decimal.NullDecimal, places int32) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(places)
}
