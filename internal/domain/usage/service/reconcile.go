package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/metrics"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
)

// ReplaceUsage validates a submission and atomically replaces the store's usage data with it.
// Week values and the printed average are stored as submitted; conversions come from the
// conversion table.
func (s *Service) ReplaceUsage(ctx context.Context, storeID uuid.UUID, req SubmitRequest) (*repository.Entry, error) {
	ctx, span := s.tracer.Start(ctx, "usage.ReplaceUsage", trace.WithAttributes(
		attribute.String("store_id", storeID.String()),
		attribute.Int("categories", len(req.Categories)),
	))
	defer span.End()

	if err := s.validate.StructCtx(ctx, req); err != nil {
		s.metrics.Replacements.WithLabelValues("invalid").Inc()
		return nil, &ValidationError{Fields: validationFields(err)}
	}

	if _, err := s.repo.GetStore(ctx, storeID); err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	entry, err := s.BuildEntry(storeID, req)
	if err != nil {
		s.metrics.Replacements.WithLabelValues("invalid").Inc()
		return nil, err
	}

	if err := s.repo.ReplaceEntry(ctx, entry); err != nil {
		s.metrics.Replacements.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "replace failed")
		s.logger.ErrorContext(ctx, "usage replacement rolled back",
			slog.String("store_id", storeID.String()),
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("%w: %w", ErrTransaction, err)
	}

	s.metrics.Replacements.WithLabelValues("committed").Inc()
	s.logger.InfoContext(ctx, "usage data replaced",
		slog.String("store_id", storeID.String()),
		slog.String("entry_id", entry.ID.String()),
		slog.Int("categories", len(entry.Categories)),
		slog.Int("products", entry.ProductCount()),
	)
	return entry, nil
}

// BuildEntry converts a submission into the entry tree to persist. Placeholder and
// unparseable values become null; values a numeric(10,2) column cannot hold are rejected.
// Values are rounded to StorageScale so the returned entry matches what is saved.
func (s *Service) BuildEntry(storeID uuid.UUID, req SubmitRequest) (*repository.Entry, error) {
	entry := &repository.Entry{
		StoreID:    storeID,
		Categories: make([]repository.Category, 0, len(req.Categories)),
	}
	invalid := make(map[string]string)

	for i, c := range req.Categories {
		category := repository.Category{
			Name:     c.Name,
			Position: i,
			Products: make([]repository.Product, 0, len(c.Products)),
		}

		for j, p := range c.Products {
			path := fmt.Sprintf("categories[%d].products[%d]", i, j)
			product := repository.Product{
				Position:      j,
				ProductNumber: p.ProductNumber,
				ProductName:   p.Product,
				Unit:          p.Unit,
				Average:       toStorage(metrics.ParseDecimalPtr(p.Average)),
				Conversion:    decimal.NewNullDecimal(s.conversions.Lookup(p.ProductNumber)),
			}
			for w, raw := range p.Weeks.Values() {
				product.Weeks[w] = toStorage(metrics.ParseDecimalPtr(raw))
				if !fitsStorage(product.Weeks[w]) {
					invalid[fmt.Sprintf("%s.weeks.w%d", path, w+1)] = "is too large"
				}
			}
			if !fitsStorage(product.Average) {
				invalid[path+".average"] = "is too large"
			}
			category.Products = append(category.Products, product)
		}
		entry.Categories = append(entry.Categories, category)
	}

	if len(invalid) > 0 {
		return nil, &ValidationError{Fields: invalid}
	}
	return entry, nil
}

// UpdateProductWeek sets one week of one product and recomputes its average from the
// four weeks after the edit. The product row stays locked for the whole read-modify-write.
// A nil or placeholder value clears the week.
func (s *Service) UpdateProductWeek(ctx context.Context, storeID, productID uuid.UUID, week string, value *string) (*repository.Product, error) {
	ctx, span := s.tracer.Start(ctx, "usage.UpdateProductWeek", trace.WithAttributes(
		attribute.String("store_id", storeID.String()),
		attribute.String("product_id", productID.String()),
		attribute.String("week", week),
	))
	defer span.End()

	w, err := repository.ParseWeek(week)
	if err != nil {
		s.metrics.WeekEdits.WithLabelValues("invalid").Inc()
		return nil, newValidationError("week", "must be one of w1, w2, w3, w4")
	}

	parsed, err := parseEditValue(value)
	if err != nil {
		s.metrics.WeekEdits.WithLabelValues("invalid").Inc()
		return nil, err
	}

	product, err := s.repo.UpdateProduct(ctx, storeID, productID, func(p *repository.Product) error {
		p.SetWeek(w, parsed)
		p.Average = metrics.Mean(p.Weeks[:]...)
		return nil
	})
	if err != nil {
		outcome := "failed"
		if errors.Is(err, repository.ErrNotFound) {
			outcome = "not_found"
		}
		s.metrics.WeekEdits.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to update product week: %w", err)
	}

	s.metrics.WeekEdits.WithLabelValues("updated").Inc()
	s.logger.InfoContext(ctx, "product week updated",
		slog.String("store_id", storeID.String()),
		slog.String("product_id", productID.String()),
		slog.String("week", w.String()),
		slog.String("average", metrics.StringOrEmpty(product.Average, metrics.StorageScale)),
	)
	return product, nil
}

// parseEditValue rejects typed values that are not numbers instead of silently clearing
// the week.
func parseEditValue(value *string) (decimal.NullDecimal, error) {
	parsed := metrics.ParseDecimalPtr(value)
	if !parsed.Valid && value != nil && !metrics.IsPlaceholder(*value) {
		return parsed, newValidationError("value", "must be a number")
	}
	if !fitsStorage(parsed) {
		return parsed, newValidationError("value", "is too large")
	}
	// The average is recomputed from this value, so it must already be what the column keeps.
	return toStorage(parsed), nil
}

// toStorage rounds a value the way a numeric(10,2) column does on write.
func toStorage(d decimal.NullDecimal) decimal.NullDecimal {
	if !d.Valid {
		return d
	}
	return decimal.NewNullDecimal(d.Decimal.Round(metrics.StorageScale))
}
