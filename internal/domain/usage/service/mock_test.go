package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/store-usage/internal/domain/usage/conversion"
	"github.com/FACorreiaa/store-usage/internal/domain/usage/repository"
	"github.com/FACorreiaa/store-usage/pkg/observability"
)

// MockUsageRepository is an in-memory UsageRepository. ReplaceEntry and UpdateProduct
// are all-or-nothing like their PostgreSQL counterparts.
type MockUsageRepository struct {
	mu      sync.Mutex
	stores  map[uuid.UUID]repository.Store
	entries map[uuid.UUID][]repository.Entry

	// failAtCategory makes ReplaceEntry fail while inserting that category index.
	failAtCategory int
}

func NewMockUsageRepository(stores ...repository.Store) *MockUsageRepository {
	m := &MockUsageRepository{
		stores:         make(map[uuid.UUID]repository.Store),
		entries:        make(map[uuid.UUID][]repository.Entry),
		failAtCategory: -1,
	}
	for _, s := range stores {
		m.stores[s.ID] = s
	}
	return m
}

func (m *MockUsageRepository) GetStore(ctx context.Context, storeID uuid.UUID) (*repository.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stores[storeID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &s, nil
}

func (m *MockUsageRepository) GetStoreByNumber(ctx context.Context, number string) (*repository.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stores {
		if s.Number == number {
			return &s, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUsageRepository) ReplaceEntry(ctx context.Context, entry *repository.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAtCategory >= 0 && m.failAtCategory < len(entry.Categories) {
		return errors.New("insert usage category: connection reset")
	}

	entry.ID = uuid.New()
	if entry.UploadedAt.IsZero() {
		entry.UploadedAt = time.Now().UTC()
	}
	for i := range entry.Categories {
		c := &entry.Categories[i]
		c.ID = uuid.New()
		c.EntryID = entry.ID
		for j := range c.Products {
			c.Products[j].ID = uuid.New()
			c.Products[j].CategoryID = c.ID
		}
	}

	m.entries[entry.StoreID] = []repository.Entry{copyEntry(*entry)}
	return nil
}

func (m *MockUsageRepository) GetLatestEntry(ctx context.Context, storeID uuid.UUID) (*repository.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entries := m.entries[storeID]
	if len(entries) == 0 {
		return nil, repository.ErrNotFound
	}
	e := copyEntry(entries[len(entries)-1])
	return &e, nil
}

func (m *MockUsageRepository) UpdateProduct(ctx context.Context, storeID, productID uuid.UUID, fn func(*repository.Product) error) (*repository.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ei := range m.entries[storeID] {
		entry := &m.entries[storeID][ei]
		for ci := range entry.Categories {
			for pi := range entry.Categories[ci].Products {
				stored := &entry.Categories[ci].Products[pi]
				if stored.ID != productID {
					continue
				}
				working := *stored
				if err := fn(&working); err != nil {
					return nil, err
				}
				*stored = working
				return &working, nil
			}
		}
	}
	return nil, repository.ErrNotFound
}

func (m *MockUsageRepository) ListProductNumbers(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for _, entries := range m.entries {
		for _, e := range entries {
			for _, c := range e.Categories {
				for _, p := range c.Products {
					seen[p.ProductNumber] = true
				}
			}
		}
	}
	numbers := make([]string, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Strings(numbers)
	return numbers, nil
}

func (m *MockUsageRepository) UpdateConversion(ctx context.Context, productNumber string, conv decimal.Decimal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var rows int64
	for storeID := range m.entries {
		for ei := range m.entries[storeID] {
			entry := &m.entries[storeID][ei]
			for ci := range entry.Categories {
				for pi := range entry.Categories[ci].Products {
					p := &entry.Categories[ci].Products[pi]
					if p.ProductNumber == productNumber {
						p.Conversion = decimal.NewNullDecimal(conv)
						rows++
					}
				}
			}
		}
	}
	return rows, nil
}

// seed stores an entry directly, bypassing the service.
func (m *MockUsageRepository) seed(entry repository.Entry) {
	_ = m.ReplaceEntry(context.Background(), &entry)
}

func (m *MockUsageRepository) entryCount(storeID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries[storeID])
}

func copyEntry(e repository.Entry) repository.Entry {
	out := e
	out.Categories = make([]repository.Category, len(e.Categories))
	for i, c := range e.Categories {
		out.Categories[i] = c
		out.Categories[i].Products = append([]repository.Product{}, c.Products...)
	}
	return out
}

type MockExtractor struct {
	text string
	err  error
}

func (m *MockExtractor) Extract(ctx context.Context, content []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}

func newTestService(repo repository.UsageRepository, ext TextExtractor) (*Service, *observability.Metrics) {
	m := observability.NewMetrics(prometheus.NewRegistry())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(repo, ext, conversion.Default(), m, observability.NewTracer(false), logger), m
}
