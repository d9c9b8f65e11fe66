package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/store-usage/internal/domain/access"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/extractor"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/parser"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/service"
	"github.com/FACorreiaa/store-usage/pkg/interceptors"
)

type MockUsageService struct {
	preview    *service.Preview
	entry      *repository.Entry
	product    *repository.Product
	view       *service.UsageView
	err        error
	gotContent []byte
	gotReq     service.SubmitRequest
	gotWeek    string
	gotValue   *string
	gotMult    int64
	gotFilter  string
}

func (m *MockUsageService) Preview(ctx context.Context, storeID uuid.UUID, content []byte) (*service.Preview, error) {
	m.gotContent = content
	return m.preview, m.err
}

func (m *MockUsageService) ReplaceUsage(ctx context.Context, storeID uuid.UUID, req service.SubmitRequest) (*repository.Entry, error) {
	m.gotReq = req
	return m.entry, m.err
}

func (m *MockUsageService) UpdateProductWeek(ctx context.Context, storeID, productID uuid.UUID, week string, value *string) (*repository.Product, error) {
	m.gotWeek, m.gotValue = week, value
	return m.product, m.err
}

func (m *MockUsageService) GetUsage(ctx context.Context, storeID uuid.UUID, multiplier int64, filter string) (*service.UsageView, error) {
	m.gotMult, m.gotFilter = multiplier, filter
	return m.view, m.err
}

type MockChecker struct {
	err error
}

func (m *MockChecker) Authorize(ctx context.Context, userID, storeID uuid.UUID) error {
	return m.err
}

var (
	userID  = uuid.New()
	storeID = uuid.New()
)

func newRouter(svc UsageService, checker AccessChecker, maxUpload int64, authenticated bool) http.Handler {
	h := NewUsageHandler(svc, checker, maxUpload, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	if authenticated {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := interceptors.WithIdentity(r.Context(), userID.String(), "user")
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
	}
	h.Routes(r)
	return r
}

func usagePath(suffix string) string {
	return "/stores/" + storeID.String() + "/usage" + suffix
}

func multipartBody(t *testing.T, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="report.pdf"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func do(t *testing.T, h http.Handler, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestPreviewUpload(t *testing.T) {
	svc := &MockUsageService{preview: &service.Preview{
		StoreID:     storeID,
		Report:      parser.Report{StoreNumber: "1020", Categories: []parser.Category{}},
		Diagnostics: []parser.Diagnostic{},
	}}
	h := newRouter(svc, &MockChecker{}, 0, true)

	body, ct := multipartBody(t, "application/pdf", []byte("%PDF-1.4"))
	rec := do(t, h, http.MethodPost, usagePath("/preview"), body, ct)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []byte("%PDF-1.4"), svc.gotContent)
	got := decodeBody(t, rec)
	assert.Equal(t, "1020", got["report"].(map[string]any)["storeNumber"])
}

func TestPreviewUpload_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		content     []byte
		maxUpload   int64
		svcErr      error
		wantStatus  int
		wantBody    string
	}{
		{
			name:        "unreadable pdf",
			contentType: "application/pdf",
			content:     []byte("garbage"),
			svcErr:      fmt.Errorf("%w: malformed", extractor.ErrExtraction),
			wantStatus:  http.StatusUnprocessableEntity,
			wantBody:    `{"error":"could not read file"}`,
		},
		{
			name:        "not a pdf",
			contentType: "image/png",
			content:     []byte("png"),
			wantStatus:  http.StatusUnprocessableEntity,
			wantBody:    `{"errors":{"file":"must be a PDF"}}`,
		},
		{
			name:        "too large",
			contentType: "application/pdf",
			content:     bytes.Repeat([]byte("x"), 2048),
			maxUpload:   1024,
			wantStatus:  http.StatusRequestEntityTooLarge,
			wantBody:    `{"error":"file too large"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&MockUsageService{err: tt.svcErr}, &MockChecker{}, tt.maxUpload, true)
			body, ct := multipartBody(t, tt.contentType, tt.content)
			rec := do(t, h, http.MethodPost, usagePath("/preview"), body, ct)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}

	t.Run("missing file", func(t *testing.T) {
		h := newRouter(&MockUsageService{}, &MockChecker{}, 0, true)
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		require.NoError(t, mw.WriteField("other", "x"))
		require.NoError(t, mw.Close())

		rec := do(t, h, http.MethodPost, usagePath("/preview"), body, mw.FormDataContentType())
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.JSONEq(t, `{"errors":{"file":"exactly one file is required"}}`, rec.Body.String())
	})
}

func TestStoreAuthorization(t *testing.T) {
	view := &service.UsageView{Categories: []service.CategoryView{}}

	t.Run("forbidden", func(t *testing.T) {
		h := newRouter(&MockUsageService{view: view}, &MockChecker{err: access.ErrForbidden}, 0, true)
		rec := do(t, h, http.MethodGet, usagePath(""), nil, "")
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h := newRouter(&MockUsageService{view: view}, &MockChecker{}, 0, false)
		rec := do(t, h, http.MethodGet, usagePath(""), nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("malformed store id", func(t *testing.T) {
		h := newRouter(&MockUsageService{view: view}, &MockChecker{}, 0, true)
		rec := do(t, h, http.MethodGet, "/stores/not-a-uuid/usage", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("checker failure is internal", func(t *testing.T) {
		h := newRouter(&MockUsageService{view: view}, &MockChecker{err: errors.New("db down")}, 0, true)
		rec := do(t, h, http.MethodGet, usagePath(""), nil, "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "db down")
	})
}

func TestSubmitUsage(t *testing.T) {
	entry := &repository.Entry{
		ID:         uuid.New(),
		UploadedAt: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Categories: []repository.Category{{Name: "Meat", Products: []repository.Product{{ProductNumber: "P10002"}}}},
	}
	svc := &MockUsageService{entry: entry}
	h := newRouter(svc, &MockChecker{}, 0, true)

	payload := `{"storeNumber":"1020","categories":[{"name":"Meat","products":[
		{"productNumber":"P10002","product":"Chicken","unit":"LB","weeks":{"w1":"19.26","w2":"-"},"average":"19.90"}]}]}`
	rec := do(t, h, http.MethodPost, usagePath(""), strings.NewReader(payload), "application/json")

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	got := decodeBody(t, rec)
	assert.Equal(t, entry.ID.String(), got["entryId"])
	assert.Equal(t, float64(1), got["products"])

	require.Len(t, svc.gotReq.Categories, 1)
	p := svc.gotReq.Categories[0].Products[0]
	assert.Equal(t, "19.26", *p.Weeks.W1)
	assert.Equal(t, "-", *p.Weeks.W2)
	assert.Nil(t, p.Weeks.W3)
}

func TestSubmitUsage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "malformed json",
			body:       `{"categories":`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid request body"}`,
		},
		{
			name:       "unknown field",
			body:       `{"categories":[],"extra":1}`,
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"invalid request body"}`,
		},
		{
			name: "validation",
			body: `{"categories":[]}`,
			err: &service.ValidationError{Fields: map[string]string{
				"categories[0].products[0].productNumber": "is required",
			}},
			wantStatus: http.StatusUnprocessableEntity,
			wantBody:   `{"errors":{"categories[0].products[0].productNumber":"is required"}}`,
		},
		{
			name:       "rolled back",
			body:       `{"categories":[]}`,
			err:        fmt.Errorf("%w: %w", service.ErrTransaction, errors.New("deadlock detected")),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"failed to save usage data"}`,
		},
		{
			name:       "unknown store",
			body:       `{"categories":[]}`,
			err:        fmt.Errorf("failed to load store: %w", repository.ErrNotFound),
			wantStatus: http.StatusNotFound,
			wantBody:   `{"error":"not found"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newRouter(&MockUsageService{err: tt.err}, &MockChecker{}, 0, true)
			rec := do(t, h, http.MethodPost, usagePath(""), strings.NewReader(tt.body), "application/json")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestGetUsage(t *testing.T) {
	svc := &MockUsageService{view: &service.UsageView{StoreNumber: "1020", Multiplier: 12, Categories: []service.CategoryView{}}}
	h := newRouter(svc, &MockChecker{}, 0, true)

	rec := do(t, h, http.MethodGet, usagePath(""), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(12), svc.gotMult, "defaults to 12k")

	rec = do(t, h, http.MethodGet, usagePath("?multiplier=70&q=chicken"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(70), svc.gotMult)
	assert.Equal(t, "chicken", svc.gotFilter)

	rec = do(t, h, http.MethodGet, usagePath("?multiplier=lots"), nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.JSONEq(t, `{"errors":{"multiplier":"must be a whole number"}}`, rec.Body.String())
}

func TestUpdateProductWeek(t *testing.T) {
	productID := uuid.New()
	product := &repository.Product{
		ID: productID,
		Weeks: [4]decimal.NullDecimal{
			decimal.NewNullDecimal(decimal.NewFromInt(10)),
			decimal.NewNullDecimal(decimal.NewFromInt(20)),
			decimal.NewNullDecimal(decimal.NewFromInt(40)),
			decimal.NewNullDecimal(decimal.NewFromInt(30)),
		},
		Average: decimal.NewNullDecimal(decimal.NewFromInt(25)),
	}
	svc := &MockUsageService{product: product}
	h := newRouter(svc, &MockChecker{}, 0, true)

	rec := do(t, h, http.MethodPatch, usagePath("/products/"+productID.String()),
		strings.NewReader(`{"week":"w3","value":"40"}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, fmt.Sprintf(
		`{"id":%q,"weeks":{"w1":"10.00","w2":"20.00","w3":"40.00","w4":"30.00"},"average":"25.00"}`, productID),
		rec.Body.String())
	assert.Equal(t, "w3", svc.gotWeek)
	assert.Equal(t, "40", *svc.gotValue)

	rec = do(t, h, http.MethodPatch, usagePath("/products/"+productID.String()),
		strings.NewReader(`{"week":"w1","value":null}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, svc.gotValue)
}

func TestUpdateProductWeek_Errors(t *testing.T) {
	t.Run("unknown product", func(t *testing.T) {
		svc := &MockUsageService{err: fmt.Errorf("failed to update product week: %w", repository.ErrNotFound)}
		h := newRouter(svc, &MockChecker{}, 0, true)
		rec := do(t, h, http.MethodPatch, usagePath("/products/"+uuid.NewString()),
			strings.NewReader(`{"week":"w1","value":"1"}`), "application/json")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("malformed product id", func(t *testing.T) {
		h := newRouter(&MockUsageService{}, &MockChecker{}, 0, true)
		rec := do(t, h, http.MethodPatch, usagePath("/products/42"),
			strings.NewReader(`{"week":"w1","value":"1"}`), "application/json")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad week", func(t *testing.T) {
		svc := &MockUsageService{err: &service.ValidationError{Fields: map[string]string{"week": "must be one of w1, w2, w3, w4"}}}
		h := newRouter(svc, &MockChecker{}, 0, true)
		rec := do(t, h, http.MethodPatch, usagePath("/products/"+uuid.NewString()),
			strings.NewReader(`{"week":"w9","value":"1"}`), "application/json")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		assert.Contains(t, rec.Body.String(), `"week"`)
	})
}

func TestExportUsage(t *testing.T) {
	uploaded := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	svc := &MockUsageService{view: &service.UsageView{
		StoreNumber: "1020",
		UploadedAt:  &uploaded,
		Multiplier:  12,
		Categories:  []service.CategoryView{},
	}}
	h := newRouter(svc, &MockChecker{}, 0, true)

	rec := do(t, h, http.MethodGet, usagePath("/export?format=csv"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="usage-1020-20260309-12k.csv"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "category,group,product_number"))

	rec = do(t, h, http.MethodGet, usagePath("/export?format=xlsx"), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")

	rec = do(t, h, http.MethodGet, usagePath("/export?format=pdf"), nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListMultipliers(t *testing.T) {
	h := newRouter(&MockUsageService{}, &MockChecker{}, 0, true)
	rec := do(t, h, http.MethodGet, "/usage/multipliers", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	got := decodeBody(t, rec)
	assert.Equal(t, float64(12), got["default"])
	presets := got["presets"].([]any)
	require.Len(t, presets, 5)
	assert.Equal(t, "$5,000.00", presets[0].(map[string]any)["salesVolume"])
}
