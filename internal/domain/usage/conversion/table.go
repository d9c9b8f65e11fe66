// Package conversion holds the product conversion catalog: how many units make up a case
// for each known product number, and the business groups products are shown under.
// A Table is built once at process start and never mutated afterwards.
package conversion

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

// OtherGroup is the group of every product not listed in a business group.
const OtherGroup = "OTHERS"

//go:embed catalog.toml
var embeddedCatalog []byte

// Table maps product numbers to conversion factors and business groups.
type Table struct {
	factors    map[string]decimal.Decimal
	sections   map[string]string
	groups     map[string]string
	groupOrder []string
	fallback   decimal.Decimal
}

type catalogFile struct {
	Default  any `toml:"default"`
	Sections []struct {
		Name        string         `toml:"name"`
		Conversions map[string]any `toml:"conversions"`
	} `toml:"section"`
	Groups []struct {
		Name     string   `toml:"name"`
		Products []string `toml:"products"`
	} `toml:"group"`
}

// Default returns the catalog compiled into the binary.
func Default() *Table {
	t, err := Load(bytes.NewReader(embeddedCatalog))
	if err != nil {
		panic(fmt.Sprintf("conversion: embedded catalog is invalid: %v", err))
	}
	return t
}

// LoadFile reads a catalog from a TOML file.
func LoadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open conversion catalog: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a TOML catalog. Every factor, including the default, must be positive.
func Load(r io.Reader) (*Table, error) {
	var file catalogFile
	if err := toml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to decode conversion catalog: %w", err)
	}

	t := &Table{
		factors:  make(map[string]decimal.Decimal),
		sections: make(map[string]string),
		groups:   make(map[string]string),
		fallback: decimal.NewFromInt(1),
	}

	if file.Default != nil {
		d, err := toDecimal(file.Default)
		if err != nil {
			return nil, fmt.Errorf("default: %w", err)
		}
		t.fallback = d
	}

	for _, section := range file.Sections {
		for productNumber, raw := range section.Conversions {
			d, err := toDecimal(raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", productNumber, err)
			}
			if _, dup := t.factors[productNumber]; dup {
				return nil, fmt.Errorf("%s: listed more than once", productNumber)
			}
			t.factors[productNumber] = d
			t.sections[productNumber] = section.Name
		}
	}

	for _, group := range file.Groups {
		if group.Name == "" {
			return nil, errors.New("group without a name")
		}
		t.groupOrder = append(t.groupOrder, group.Name)
		for _, productNumber := range group.Products {
			t.groups[productNumber] = group.Name
		}
	}

	return t, nil
}

// New builds a table from explicit factors, without groups.
func New(factors map[string]decimal.Decimal) *Table {
	t := &Table{
		factors:  make(map[string]decimal.Decimal, len(factors)),
		sections: make(map[string]string),
		groups:   make(map[string]string),
		fallback: decimal.NewFromInt(1),
	}
	for k, v := range factors {
		t.factors[k] = v
	}
	return t
}

func toDecimal(v any) (decimal.Decimal, error) {
	var d decimal.Decimal
	switch n := v.(type) {
	case int64:
		d = decimal.NewFromInt(n)
	case float64:
		d = decimal.NewFromFloat(n)
	case string:
		parsed, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid conversion %q", n)
		}
		d = parsed
	default:
		return decimal.Zero, fmt.Errorf("invalid conversion of type %T", v)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("conversion must be positive, got %s", d)
	}
	return d, nil
}

// Lookup returns the conversion factor for a product number, or the default for
// products outside the catalog.
func (t *Table) Lookup(productNumber string) decimal.Decimal {
	if d, ok := t.factors[productNumber]; ok {
		return d
	}
	return t.fallback
}

// Known reports whether the product number has its own factor.
func (t *Table) Known(productNumber string) bool {
	_, ok := t.factors[productNumber]
	return ok
}

// Section returns the report section a product is catalogued under, if any.
func (t *Table) Section(productNumber string) string {
	return t.sections[productNumber]
}

// Group returns the business group of a product, OtherGroup when unlisted.
func (t *Table) Group(productNumber string) string {
	if g, ok := t.groups[productNumber]; ok {
		return g
	}
	return OtherGroup
}

// Groups lists business groups in catalog order, followed by OtherGroup.
func (t *Table) Groups() []string {
	out := make([]string, 0, len(t.groupOrder)+1)
	out = append(out, t.groupOrder...)
	return append(out, OtherGroup)
}

// Len is the number of catalogued products.
func (t *Table) Len() int {
	return len(t.factors)
}
