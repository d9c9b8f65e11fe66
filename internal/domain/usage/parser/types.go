package parser

// Fixed category labels recognised in report section headers, in declaration order.
const (
	CategoryMeat       = "Meat"
	CategorySeafood    = "Seafood"
	CategoryProduce    = "Produce"
	CategoryGrocery    = "Grocery"
	CategoryPaper      = "Paper"
	CategoryCondiments = "Condiments"
	CategoryOtherCogs  = "Other Cogs"
)

// Categories lists the fixed labels in declaration order.
var Categories = []string{
	CategoryMeat,
	CategorySeafood,
	CategoryProduce,
	CategoryGrocery,
	CategoryPaper,
	CategoryCondiments,
	CategoryOtherCogs,
}

// Units are the unit tokens a product record may carry.
var Units = []string{"LB", "CT", "GAL", "PX", "BOTL"}

// Report is a parsed usage report, not yet persisted.
type Report struct {
	StoreNumber string     `json:"storeNumber"`
	Categories  []Category `json:"categories"`
}

// Category is one report section and the products printed above its header.
type Category struct {
	Name     string    `json:"name"`
	Products []Product `json:"products"`
}

// Product is one recovered product line. Numeric fields stay as trimmed strings so
// callers can tell a placeholder from a zero.
type Product struct {
	ProductNumber string `json:"productNumber"`
	Product       string `json:"product"`
	Unit          string `json:"unit"`
	Weeks         Weeks  `json:"weeks"`
	Average       string `json:"average"`
}

// Weeks holds the four weekly quantities of a product line.
type Weeks struct {
	W1 string `json:"w1"`
	W2 string `json:"w2"`
	W3 string `json:"w3"`
	W4 string `json:"w4"`
}

// Values returns the weeks in order.
func (w Weeks) Values() [4]string {
	return [4]string{w.W1, w.W2, w.W3, w.W4}
}

// Record is a recovered product together with its character offset in the source text.
type Record struct {
	Product
	Offset int `json:"offset"`
}

// Header is a located category section header.
type Header struct {
	Category string `json:"category"`
	Offset   int    `json:"offset"`
}

// DiagnosticKind names a recovery gap found while parsing.
type DiagnosticKind string

const (
	// DiagnosticMissingHeader: a fixed category has no header in the text.
	DiagnosticMissingHeader DiagnosticKind = "missing_header"
	// DiagnosticUnmatchedSpan: a product number token that does not start a record.
	DiagnosticUnmatchedSpan DiagnosticKind = "unmatched_span"
	// DiagnosticTrailingProducts: records after the last header, assigned to no category.
	DiagnosticTrailingProducts DiagnosticKind = "trailing_products"
)

// Diagnostic describes a part of the text that contributed nothing to the report.
// Diagnostics are informational and never fail a parse.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Category string         `json:"category,omitempty"`
	Offset   int            `json:"offset"`
	Count    int            `json:"count,omitempty"`
	Message  string         `json:"message"`
}

// Result is the outcome of Parse.
type Result struct {
	Report      Report       `json:"report"`
	Records     []Record     `json:"-"`
	Headers     []Header     `json:"-"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// ProductCount is the number of products assigned to a category.
func (r Report) ProductCount() int {
	n := 0
	for _, c := range r.Categories {
		n += len(c.Products)
	}
	return n
}
