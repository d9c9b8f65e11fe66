// Package service implements usage report ingestion and reconciliation: previewing an
// uploaded report, replacing a store's usage data, editing single weeks, and the read model
// with derived metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/conversion"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/extractor"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/parser"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
	"github.com/FACorreiaa/store-usage/pkg/observability"
)

// TextExtractor turns uploaded file bytes into report text.
type TextExtractor interface {
	Extract(ctx context.Context, content []byte) (string, error)
}

// Service orchestrates the usage pipeline.
type Service struct {
	repo        repository.UsageRepository
	extractor   TextExtractor
	conversions *conversion.Table
	validate    *validator.Validate
	metrics     *observability.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewService creates a new usage service
func NewService(
	repo repository.UsageRepository,
	textExtractor TextExtractor,
	conversions *conversion.Table,
	metrics *observability.Metrics,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:        repo,
		extractor:   textExtractor,
		conversions: conversions,
		validate:    newValidator(),
		metrics:     metrics,
		tracer:      tracer,
		logger:      logger,
	}
}

// StoreMismatch warns that the report was printed for another store.
type StoreMismatch struct {
	Expected string `json:"expected"`
	Found    string `json:"found"`
}

// Preview is a parsed upload awaiting the user's review. Nothing is persisted.
type Preview struct {
	StoreID       uuid.UUID           `json:"storeId"`
	Report        parser.Report       `json:"report"`
	Diagnostics   []parser.Diagnostic `json:"diagnostics"`
	StoreMismatch *StoreMismatch      `json:"storeMismatch,omitempty"`
}

// Preview extracts and parses an uploaded PDF for a store.
func (s *Service) Preview(ctx context.Context, storeID uuid.UUID, content []byte) (*Preview, error) {
	ctx, span := s.tracer.Start(ctx, "usage.Preview", trace.WithAttributes(
		attribute.String("store_id", storeID.String()),
		attribute.Int("upload_bytes", len(content)),
	))
	defer span.End()

	store, err := s.repo.GetStore(ctx, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	start := time.Now()
	text, err := s.extractor.Extract(ctx, content)
	if err != nil {
		outcome := "error"
		if errors.Is(err, extractor.ErrExtraction) {
			outcome = "extraction_error"
		}
		s.metrics.ReportsParsed.WithLabelValues(outcome).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "extraction failed")
		s.logger.WarnContext(ctx, "could not extract usage report",
			slog.String("store_id", storeID.String()),
			slog.Any("error", err),
		)
		return nil, err
	}

	result := parser.Parse(text)
	s.metrics.ParseDuration.Observe(time.Since(start).Seconds())
	s.metrics.ReportsParsed.WithLabelValues("ok").Inc()

	for _, d := range result.Diagnostics {
		s.metrics.ParseDiagnostics.WithLabelValues(string(d.Kind)).Inc()
		s.logger.DebugContext(ctx, "usage report recovery gap",
			slog.String("store_id", storeID.String()),
			slog.String("kind", string(d.Kind)),
			slog.String("category", d.Category),
			slog.Int("offset", d.Offset),
			slog.String("message", d.Message),
		)
	}

	preview := &Preview{
		StoreID:     storeID,
		Report:      result.Report,
		Diagnostics: result.Diagnostics,
	}
	if preview.Diagnostics == nil {
		preview.Diagnostics = []parser.Diagnostic{}
	}
	if found := result.Report.StoreNumber; found != "" && found != store.Number {
		preview.StoreMismatch = &StoreMismatch{Expected: store.Number, Found: found}
		s.logger.InfoContext(ctx, "usage report printed for another store",
			slog.String("store_id", storeID.String()),
			slog.String("expected", store.Number),
			slog.String("found", found),
		)
	}

	span.SetAttributes(
		attribute.Int("products", result.Report.ProductCount()),
		attribute.Int("diagnostics", len(result.Diagnostics)),
	)
	return preview, nil
}
