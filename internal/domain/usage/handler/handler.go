// Package handler exposes the usage pipeline over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/FACorreiaa/store-usage/internal/domain/access"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/export"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/extractor"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/metrics"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/service"
	"github.com/FACorreiaa/store-usage/pkg/interceptors"
)

const (
	defaultMaxUploadBytes = 10 << 20
	maxJSONBytes          = 5 << 20
	pdfContentType        = "application/pdf"
)

// UsageService is the part of service.Service the handler calls.
type UsageService interface {
	Preview(ctx context.Context, storeID uuid.UUID, content []byte) (*service.Preview, error)
	ReplaceUsage(ctx context.Context, storeID uuid.UUID, req service.SubmitRequest) (*repository.Entry, error)
	UpdateProductWeek(ctx context.Context, storeID, productID uuid.UUID, week string, value *string) (*repository.Product, error)
	GetUsage(ctx context.Context, storeID uuid.UUID, multiplier int64, filter string) (*service.UsageView, error)
}

// AccessChecker decides whether a user may act on a store.
type AccessChecker interface {
	Authorize(ctx context.Context, userID, storeID uuid.UUID) error
}

// UsageHandler serves the store usage routes.
type UsageHandler struct {
	svc            UsageService
	access         AccessChecker
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewUsageHandler creates a new usage handler. A non-positive maxUploadBytes uses 10 MiB.
func NewUsageHandler(svc UsageService, checker AccessChecker, maxUploadBytes int64, logger *slog.Logger) *UsageHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &UsageHandler{
		svc:            svc,
		access:         checker,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
}

// Routes mounts the usage endpoints. Callers put the authenticator in front.
func (h *UsageHandler) Routes(r chi.Router) {
	r.Get("/usage/multipliers", h.ListMultipliers)

	r.Route("/stores/{storeID}/usage", func(r chi.Router) {
		r.Use(h.authorizeStore)
		r.Get("/", h.GetUsage)
		r.Post("/", h.SubmitUsage)
		r.Post("/preview", h.PreviewUpload)
		r.Get("/export", h.ExportUsage)
		r.Patch("/products/{productID}", h.UpdateProductWeek)
	})
}

type storeIDKey struct{}

// authorizeStore resolves the store in the path and checks the caller may use it.
func (h *UsageHandler) authorizeStore(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userIDStr, ok := interceptors.GetUserIDFromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}

		storeID, err := uuid.Parse(chi.URLParam(r, "storeID"))
		if err != nil {
			writeError(w, http.StatusNotFound, "store not found")
			return
		}

		if err := h.access.Authorize(r.Context(), userID, storeID); err != nil {
			h.writeServiceError(w, r, err)
			return
		}

		ctx := context.WithValue(r.Context(), storeIDKey{}, storeID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func storeIDFrom(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(storeIDKey{}).(uuid.UUID)
	return id
}

// PreviewUpload extracts and parses an uploaded report without saving it.
func (h *UsageHandler) PreviewUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeValidation(w, map[string]string{"file": "is required"})
		return
	}
	defer r.MultipartForm.RemoveAll()

	files := r.MultipartForm.File["file"]
	if len(files) != 1 {
		writeValidation(w, map[string]string{"file": "exactly one file is required"})
		return
	}
	fh := files[0]
	if fh.Size > h.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if ct := fh.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, pdfContentType) {
		writeValidation(w, map[string]string{"file": "must be a PDF"})
		return
	}

	f, err := fh.Open()
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("failed to open upload: %w", err))
		return
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		h.writeServiceError(w, r, fmt.Errorf("failed to read upload: %w", err))
		return
	}

	preview, err := h.svc.Preview(r.Context(), storeIDFrom(r), content)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

// SubmitUsage replaces the store's usage data with the reviewed report.
func (h *UsageHandler) SubmitUsage(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.svc.ReplaceUsage(r.Context(), storeIDFrom(r), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"entryId":    entry.ID,
		"uploadedAt": entry.UploadedAt,
		"categories": len(entry.Categories),
		"products":   entry.ProductCount(),
	})
}

// GetUsage returns the current usage table with derived metrics.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	multiplier, ok := parseMultiplier(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetUsage(r.Context(), storeIDFrom(r), multiplier, r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type weekEditRequest struct {
	Week  string  `json:"week"`
	Value *string `json:"value"`
}

// UpdateProductWeek edits one week of one product.
func (h *UsageHandler) UpdateProductWeek(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}

	var req weekEditRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	product, err := h.svc.UpdateProductWeek(r.Context(), storeIDFrom(r), productID, req.Week, req.Value)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id": product.ID,
		"weeks": service.WeeksView{
			W1: metricString(product, repository.Week1),
			W2: metricString(product, repository.Week2),
			W3: metricString(product, repository.Week3),
			W4: metricString(product, repository.Week4),
		},
		"average": nullableFixed(metrics.StringOrEmpty(product.Average, metrics.StorageScale)),
	})
}

// ExportUsage downloads the usage table as CSV or XLSX.
func (h *UsageHandler) ExportUsage(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeValidation(w, map[string]string{"format": "must be csv or xlsx"})
		return
	}
	multiplier, ok := parseMultiplier(w, r)
	if !ok {
		return
	}

	view, err := h.svc.GetUsage(r.Context(), storeIDFrom(r), multiplier, r.URL.Query().Get("q"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(view, format)))
	if err := export.Write(w, format, view); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write export", slog.Any("error", err))
	}
}

// ListMultipliers returns the supported sales volume presets.
func (h *UsageHandler) ListMultipliers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default": metrics.DefaultMultiplier,
		"presets": metrics.Presets(),
	})
}

func parseMultiplier(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.URL.Query().Get("multiplier")
	if raw == "" {
		return metrics.DefaultMultiplier, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeValidation(w, map[string]string{"multiplier": "must be a whole number"})
		return 0, false
	}
	return v, true
}

func metricString(p *repository.Product, week repository.Week) *string {
	return nullableFixed(metrics.StringOrEmpty(p.Week(week), metrics.StorageScale))
}

func nullableFixed(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeServiceError maps domain errors onto status codes. Unexpected errors are logged
// and hidden from the client.
func (h *UsageHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeValidation(w, verr.Fields)
	case errors.Is(err, extractor.ErrExtraction):
		writeError(w, http.StatusUnprocessableEntity, "could not read file")
	case errors.Is(err, access.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrTransaction):
		h.logger.ErrorContext(r.Context(), "usage replacement failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, service.ErrTransaction.Error())
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeValidation(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"errors": fields})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
