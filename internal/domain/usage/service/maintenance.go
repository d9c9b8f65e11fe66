package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/metrics"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
)

// BackfillResult summarises a conversion backfill.
type BackfillResult struct {
	Updated int   `json:"updated"`
	Skipped int   `json:"skipped"`
	Rows    int64 `json:"rows"`
}

// BackfillConversions rewrites the stored conversion of every product number found in
// the conversion table. Unknown product numbers keep their stored value.
func (s *Service) BackfillConversions(ctx context.Context) (*BackfillResult, error) {
	ctx, span := s.tracer.Start(ctx, "usage.BackfillConversions")
	defer span.End()

	numbers, err := s.repo.ListProductNumbers(ctx)
	if err != nil {
		return nil, err
	}

	result := &BackfillResult{}
	for _, n := range numbers {
		if !s.conversions.Known(n) {
			result.Skipped++
			s.logger.DebugContext(ctx, "no conversion for product", slog.String("product_number", n))
			continue
		}

		rows, err := s.repo.UpdateConversion(ctx, n, s.conversions.Lookup(n))
		if err != nil {
			return result, err
		}
		result.Updated++
		result.Rows += rows
	}

	s.metrics.Backfilled.Add(float64(result.Rows))
	s.logger.InfoContext(ctx, "conversion backfill finished",
		slog.Int("updated", result.Updated),
		slog.Int("skipped", result.Skipped),
		slog.Int64("rows", result.Rows),
	)
	return result, nil
}

// ProductCheck compares a stored product with the values derived from its weeks.
type ProductCheck struct {
	StoreNumber       string      `json:"storeNumber"`
	Category          string      `json:"category"`
	Product           ProductView `json:"product"`
	ComputedAverage   *string     `json:"computedAverage"`
	CatalogConversion string      `json:"catalogConversion"`
	InCatalog         bool        `json:"inCatalog"`
}

// CheckProduct finds a product in a store's current entry by store and product number.
func (s *Service) CheckProduct(ctx context.Context, storeNumber, productNumber string, multiplier int64) (*ProductCheck, error) {
	m, err := metrics.ParseMultiplier(multiplier)
	if err != nil {
		return nil, newValidationError("multiplier", err.Error())
	}

	store, err := s.repo.GetStoreByNumber(ctx, storeNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load store %s: %w", storeNumber, err)
	}

	entry, err := s.repo.GetLatestEntry(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage for store %s: %w", storeNumber, err)
	}

	for _, c := range entry.Categories {
		for i := range c.Products {
			p := &c.Products[i]
			if p.ProductNumber != productNumber {
				continue
			}
			return &ProductCheck{
				StoreNumber:       store.Number,
				Category:          c.Name,
				Product:           s.NewProductView(p, m),
				ComputedAverage:   fixed(metrics.Mean(p.Weeks[:]...), metrics.StorageScale),
				CatalogConversion: s.conversions.Lookup(productNumber).String(),
				InCatalog:         s.conversions.Known(productNumber),
			}, nil
		}
	}

	return nil, fmt.Errorf("product %s in store %s: %w", productNumber, storeNumber, repository.ErrNotFound)
}

// CategorySummary counts the products of one stored category.
type CategorySummary struct {
	Name     string `json:"name"`
	Products int    `json:"products"`
}

// StoreSummary describes a store's current usage entry.
type StoreSummary struct {
	StoreNumber string            `json:"storeNumber"`
	StoreName   string            `json:"storeName"`
	UploadedAt  time.Time         `json:"uploadedAt"`
	Categories  []CategorySummary `json:"categories"`
	Products    int               `json:"products"`
	Drifted     int               `json:"drifted"`
}

// CheckStore summarises a store's current entry by store number.
func (s *Service) CheckStore(ctx context.Context, storeNumber string) (*StoreSummary, error) {
	store, err := s.repo.GetStoreByNumber(ctx, storeNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to load store %s: %w", storeNumber, err)
	}

	entry, err := s.repo.GetLatestEntry(ctx, store.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage for store %s: %w", storeNumber, err)
	}

	summary := &StoreSummary{
		StoreNumber: store.Number,
		StoreName:   store.Name,
		UploadedAt:  entry.UploadedAt,
		Categories:  make([]CategorySummary, 0, len(entry.Categories)),
		Products:    entry.ProductCount(),
	}
	for _, c := range entry.Categories {
		summary.Categories = append(summary.Categories, CategorySummary{Name: c.Name, Products: len(c.Products)})
		for _, p := range c.Products {
			if metrics.AverageDrifted(p.Average, p.Weeks[:]...) {
				summary.Drifted++
			}
		}
	}
	return summary, nil
}
