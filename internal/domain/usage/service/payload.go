package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/parser"
)

// SubmitRequest is the reviewed report a user submits to replace a store's usage data.
// It has the shape of parser.Report, with optional numeric fields.
type SubmitRequest struct {
	StoreNumber string           `json:"storeNumber" validate:"omitempty,number,max=20"`
	Categories  []SubmitCategory `json:"categories" validate:"required,dive"`
}

type SubmitCategory struct {
	Name     string          `json:"name" validate:"required,max=255"`
	Products []SubmitProduct `json:"products" validate:"required,dive"`
}

type SubmitProduct struct {
	ProductNumber string      `json:"productNumber" validate:"required,max=50"`
	Product       string      `json:"product" validate:"required,max=255"`
	Unit          string      `json:"unit" validate:"required,max=20"`
	Weeks         SubmitWeeks `json:"weeks"`
	Average       *string     `json:"average" validate:"omitempty,max=32"`
}

type SubmitWeeks struct {
	W1 *string `json:"w1" validate:"omitempty,max=32"`
	W2 *string `json:"w2" validate:"omitempty,max=32"`
	W3 *string `json:"w3" validate:"omitempty,max=32"`
	W4 *string `json:"w4" validate:"omitempty,max=32"`
}

// Values returns the weeks in order.
func (w SubmitWeeks) Values() [4]*string {
	return [4]*string{w.W1, w.W2, w.W3, w.W4}
}

// RequestFromReport turns a parsed preview into a submission as-is.
func RequestFromReport(report parser.Report) SubmitRequest {
	req := SubmitRequest{
		StoreNumber: report.StoreNumber,
		Categories:  make([]SubmitCategory, 0, len(report.Categories)),
	}
	for _, c := range report.Categories {
		category := SubmitCategory{Name: c.Name, Products: make([]SubmitProduct, 0, len(c.Products))}
		for _, p := range c.Products {
			category.Products = append(category.Products, SubmitProduct{
				ProductNumber: p.ProductNumber,
				Product:       p.Product,
				Unit:          p.Unit,
				Weeks: SubmitWeeks{
					W1: stringPtr(p.Weeks.W1),
					W2: stringPtr(p.Weeks.W2),
					W3: stringPtr(p.Weeks.W3),
					W4: stringPtr(p.Weeks.W4),
				},
				Average: stringPtr(p.Average),
			})
		}
		req.Categories = append(req.Categories, category)
	}
	return req
}

func stringPtr(s string) *string {
	return &s
}

// maxStoredMagnitude is the first value a numeric(10,2) column cannot hold.
var maxStoredMagnitude = decimal.New(1, 8)

func fitsStorage(d decimal.NullDecimal) bool {
	return !d.Valid || d.Decimal.Abs().Round(2).LessThan(maxStoredMagnitude)
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationFields converts validator errors to messages keyed by JSON path
// (e.g. "categories[0].products[2].productNumber").
func validationFields(err error) map[string]string {
	fields := make(map[string]string)

	var errs validator.ValidationErrors
	if !errors.As(err, &errs) {
		fields["payload"] = err.Error()
		return fields
	}

	for _, fe := range errs {
		path := fe.Namespace()
		if i := strings.IndexByte(path, '.'); i >= 0 {
			path = path[i+1:]
		}
		fields[path] = fieldMessage(fe)
	}
	return fields
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "number":
		return "must contain only digits"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
