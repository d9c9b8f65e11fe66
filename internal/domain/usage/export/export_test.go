package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/metrics"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/service"
)

func ptr(s string) *string { return &s }

func sampleView() *service.UsageView {
	uploaded := time.Date(2026, 3, 9, 15, 4, 0, 0, time.UTC)
	entryID := uuid.New()
	return &service.UsageView{
		StoreID:     uuid.New(),
		StoreNumber: "1020",
		EntryID:     &entryID,
		UploadedAt:  &uploaded,
		Multiplier:  12,
		Categories: []service.CategoryView{
			{Name: "Meat", Products: []service.ProductView{{
				ProductNumber: "P10002",
				Product:       "Chicken, Orange Dark Battered",
				Unit:          "LB",
				Group:         "WIC",
				Weeks: service.WeeksView{
					W1: ptr("18.00"), W2: ptr("21.50"), W3: ptr("19.00"), W4: ptr("19.50"),
				},
				Average:          ptr("19.50"),
				Conversion:       ptr("40.00"),
				CsPer1k:          ptr("0.4875"),
				VolumeMultiplier: ptr("5.85"),
				Variance:         metrics.VarianceHigh,
			}}},
			{Name: "Seafood", Products: []service.ProductView{}},
			{Name: "Produce", Products: []service.ProductView{{
				ProductNumber: "P19013",
				Product:       "Broccoli",
				Unit:          "CT",
				Group:         "OTHERS",
				Weeks:         service.WeeksView{W1: ptr("2.00")},
				Average:       ptr("9.00"),
				Conversion:    ptr("0.00"),
				Variance:      metrics.VarianceNormal,
				AverageDrift:  true,
			}}},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	f, err = ParseFormat("xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFilename(t *testing.T) {
	view := sampleView()
	assert.Equal(t, "usage-1020-20260309-12k.xlsx", Filename(view, FormatXLSX))

	view.UploadedAt = nil
	assert.Equal(t, "usage-1020-empty-12k.csv", Filename(view, FormatCSV))
}

func TestRows(t *testing.T) {
	rows := Rows(sampleView())
	require.Len(t, rows, 2, "empty categories produce no rows")

	assert.Equal(t, "Meat", rows[0].Category)
	assert.Equal(t, "0.4875", rows[0].CsPer1k)
	assert.Equal(t, "Produce", rows[1].Category)
	assert.Equal(t, "", rows[1].W2)
	assert.Equal(t, "", rows[1].CsPer1k)
	assert.True(t, rows[1].AverageDrift)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleView()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, header, records[0])
	assert.Equal(t, []string{
		"Meat", "WIC", "P10002", "Chicken, Orange Dark Battered", "LB",
		"18.00", "21.50", "19.00", "19.50", "19.50", "40.00",
		"0.4875", "5.85", "high", "false",
	}, records[1])
	assert.Equal(t, "true", records[2][14])
}

func TestWriteCSV_EmptyTableKeepsHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, header, records[0])
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleView()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, header, rows[0])
	assert.Equal(t, "Chicken, Orange Dark Battered", rows[1][3])
	assert.Equal(t, "0.4875", rows[1][11])

	avg, err := f.GetCellValue(SheetName, "J2")
	require.NoError(t, err)
	assert.Equal(t, "19.5", avg, "numbers are stored as numbers")

	w2, err := f.GetCellValue(SheetName, "G3")
	require.NoError(t, err)
	assert.Empty(t, w2)
}

func TestWriteUnsupported(t *testing.T) {
	err := Write(&bytes.Buffer{}, Format("pdf"), sampleView())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
