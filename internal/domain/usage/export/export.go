// Package export renders a store's usage table as CSV or XLSX, one row per product.
package export

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/service"
)

var ErrUnsupportedFormat = errors.New("unsupported export format")

type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// SheetName is the worksheet the XLSX export writes to.
const SheetName = "Usage"

// ParseFormat accepts "csv" and "xlsx". An empty value means CSV.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

// Filename names the download after the store and the upload date of its entry.
func Filename(view *service.UsageView, f Format) string {
	date := "empty"
	if view.UploadedAt != nil {
		date = view.UploadedAt.UTC().Format("20060102")
	}
	return fmt.Sprintf("usage-%s-%s-%dk.%s", view.StoreNumber, date, view.Multiplier, f)
}

// Row is one exported product line. Blank cells stand for null values.
type Row struct {
	Category         string `csv:"category"`
	Group            string `csv:"group"`
	ProductNumber    string `csv:"product_number"`
	Product          string `csv:"product"`
	Unit             string `csv:"unit"`
	W1               string `csv:"w1"`
	W2               string `csv:"w2"`
	W3               string `csv:"w3"`
	W4               string `csv:"w4"`
	Average          string `csv:"average"`
	Conversion       string `csv:"conversion"`
	CsPer1k          string `csv:"cs_per_1k"`
	VolumeMultiplier string `csv:"volume_multiplier"`
	Variance         string `csv:"variance"`
	AverageDrift     bool   `csv:"average_drift"`
}

var header = []string{
	"category", "group", "product_number", "product", "unit",
	"w1", "w2", "w3", "w4", "average", "conversion",
	"cs_per_1k", "volume_multiplier", "variance", "average_drift",
}

// numericColumns are the zero-based columns written as numbers in XLSX.
var numericColumns = map[int]bool{5: true, 6: true, 7: true, 8: true, 9: true, 10: true, 11: true, 12: true}

// Rows flattens the view in category and product order.
func Rows(view *service.UsageView) []Row {
	var rows []Row
	for _, c := range view.Categories {
		for _, p := range c.Products {
			rows = append(rows, Row{
				Category:         c.Name,
				Group:            p.Group,
				ProductNumber:    p.ProductNumber,
				Product:          p.Product,
				Unit:             p.Unit,
				W1:               deref(p.Weeks.W1),
				W2:               deref(p.Weeks.W2),
				W3:               deref(p.Weeks.W3),
				W4:               deref(p.Weeks.W4),
				Average:          deref(p.Average),
				Conversion:       deref(p.Conversion),
				CsPer1k:          deref(p.CsPer1k),
				VolumeMultiplier: deref(p.VolumeMultiplier),
				Variance:         string(p.Variance),
				AverageDrift:     p.AverageDrift,
			})
		}
	}
	return rows
}

func (r Row) cells() []string {
	return []string{
		r.Category, r.Group, r.ProductNumber, r.Product, r.Unit,
		r.W1, r.W2, r.W3, r.W4, r.Average, r.Conversion,
		r.CsPer1k, r.VolumeMultiplier, r.Variance, strconv.FormatBool(r.AverageDrift),
	}
}

// Write renders the view in the given format.
func Write(w io.Writer, f Format, view *service.UsageView) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, Rows(view))
	case FormatXLSX:
		return WriteXLSX(w, Rows(view))
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// WriteCSV writes a header line followed by the rows. An empty table still gets its header.
func WriteCSV(w io.Writer, rows []Row) error {
	if rows == nil {
		rows = []Row{}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("failed to write csv: %w", err)
	}
	return nil
}

// WriteXLSX writes a single worksheet with a bold, frozen header row.
func WriteXLSX(w io.Writer, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &headerRow); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := f.SetRowStyle(SheetName, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := xlsxValues(r.cells())
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SheetName, "D", "D", 40); err != nil {
		return fmt.Errorf("failed to size product column: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx: %w", err)
	}
	return nil
}

// xlsxValues turns numeric columns into numbers so spreadsheets can sum them.
// Null values stay empty cells.
func xlsxValues(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = c
		if !numericColumns[i] {
			continue
		}
		if c == "" {
			out[i] = nil
			continue
		}
		if d, err := decimal.NewFromString(c); err == nil {
			out[i] = d.InexactFloat64()
		}
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
