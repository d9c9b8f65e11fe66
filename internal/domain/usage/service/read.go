package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/metrics"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
)

// csPer1kScale is the precision csPer1k is displayed with.
const csPer1kScale = 4

// UsageView is the usage table of a store with derived metrics. EntryID and UploadedAt
// are nil when the store has no usage data yet.
type UsageView struct {
	StoreID     uuid.UUID      `json:"storeId"`
	StoreNumber string         `json:"storeNumber"`
	StoreName   string         `json:"storeName"`
	EntryID     *uuid.UUID     `json:"entryId"`
	UploadedAt  *time.Time     `json:"uploadedAt"`
	Multiplier  int64          `json:"multiplier"`
	Categories  []CategoryView `json:"categories"`
}

type CategoryView struct {
	ID       uuid.UUID     `json:"id"`
	Name     string        `json:"name"`
	Products []ProductView `json:"products"`
}

type WeeksView struct {
	W1 *string `json:"w1"`
	W2 *string `json:"w2"`
	W3 *string `json:"w3"`
	W4 *string `json:"w4"`
}

// ProductView is a stored product with the metrics computed on read.
type ProductView struct {
	ID               uuid.UUID        `json:"id"`
	ProductNumber    string           `json:"productNumber"`
	Product          string           `json:"product"`
	Unit             string           `json:"unit"`
	Group            string           `json:"group"`
	Weeks            WeeksView        `json:"weeks"`
	Average          *string          `json:"average"`
	Conversion       *string          `json:"conversion"`
	CsPer1k          *string          `json:"csPer1k"`
	VolumeMultiplier *string          `json:"volumeMultiplier"`
	Variance         metrics.Variance `json:"variance"`
	AverageDrift     bool             `json:"averageDrift"`
}

// GetUsage returns the store's current usage table projected onto a sales volume multiplier
// (in thousands). A non-empty filter keeps products whose name fuzzily matches it or whose
// number contains it, and drops categories left empty.
func (s *Service) GetUsage(ctx context.Context, storeID uuid.UUID, multiplier int64, filter string) (*UsageView, error) {
	ctx, span := s.tracer.Start(ctx, "usage.GetUsage", trace.WithAttributes(
		attribute.String("store_id", storeID.String()),
		attribute.Int64("multiplier", multiplier),
	))
	defer span.End()

	m, err := metrics.ParseMultiplier(multiplier)
	if err != nil {
		return nil, newValidationError("multiplier", err.Error())
	}

	store, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	view := &UsageView{
		StoreID:     store.ID,
		StoreNumber: store.Number,
		StoreName:   store.Name,
		Multiplier:  multiplier,
		Categories:  []CategoryView{},
	}

	entry, err := s.repo.GetLatestEntry(ctx, storeID)
	if errors.Is(err, repository.ErrNotFound) {
		return view, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load usage entry: %w", err)
	}

	view.EntryID = &entry.ID
	view.UploadedAt = &entry.UploadedAt

	filter = strings.TrimSpace(filter)
	for _, c := range entry.Categories {
		cv := CategoryView{ID: c.ID, Name: c.Name, Products: make([]ProductView, 0, len(c.Products))}
		for i := range c.Products {
			p := &c.Products[i]
			if filter != "" && !matchesFilter(p, filter) {
				continue
			}
			cv.Products = append(cv.Products, s.NewProductView(p, m))
		}
		if filter != "" && len(cv.Products) == 0 {
			continue
		}
		view.Categories = append(view.Categories, cv)
	}

	return view, nil
}

// NewProductView computes the derived metrics of a stored product.
func (s *Service) NewProductView(p *repository.Product, multiplier decimal.Decimal) ProductView {
	cs := metrics.CsPer1k(p.Average, p.Conversion)
	return ProductView{
		ID:            p.ID,
		ProductNumber: p.ProductNumber,
		Product:       p.ProductName,
		Unit:          p.Unit,
		Group:         s.conversions.Group(p.ProductNumber),
		Weeks: WeeksView{
			W1: fixed(p.Weeks[0], metrics.StorageScale),
			W2: fixed(p.Weeks[1], metrics.StorageScale),
			W3: fixed(p.Weeks[2], metrics.StorageScale),
			W4: fixed(p.Weeks[3], metrics.StorageScale),
		},
		Average:          fixed(p.Average, metrics.StorageScale),
		Conversion:       fixed(p.Conversion, metrics.StorageScale),
		CsPer1k:          fixed(cs, csPer1kScale),
		VolumeMultiplier: fixed(metrics.VolumeMultiplier(cs, multiplier), metrics.StorageScale),
		Variance:         metrics.ClassifyVariance(p.Weeks[:]...),
		AverageDrift:     metrics.AverageDrifted(p.Average, p.Weeks[:]...),
	}
}

func matchesFilter(p *repository.Product, filter string) bool {
	if fuzzy.MatchNormalizedFold(filter, p.ProductName) {
		return true
	}
	return strings.Contains(strings.ToUpper(p.ProductNumber), strings.ToUpper(filter))
}

func fixed(d decimal.NullDecimal, places int32) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(places)
	return &s
}
