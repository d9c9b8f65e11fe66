// Package repository provides persistence for stores and their current usage entry.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a store, entry or product does not exist.
var ErrNotFound = errors.New("not found")

// DBTX is the subset of pgxpool.Pool used by the repositories.
type DBTX interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Week identifies one of the four weekly quantity columns.
type Week int

const (
	Week1 Week = iota + 1
	Week2
	Week3
	Week4
)

// ParseWeek accepts "w1" through "w4".
func ParseWeek(s string) (Week, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "w1":
		return Week1, nil
	case "w2":
		return Week2, nil
	case "w3":
		return Week3, nil
	case "w4":
		return Week4, nil
	}
	return 0, fmt.Errorf("invalid week %q: must be one of w1, w2, w3, w4", s)
}

func (w Week) String() string {
	return fmt.Sprintf("w%d", int(w))
}

// Index is the position of the week in Product.Weeks.
func (w Week) Index() int {
	return int(w) - 1
}

// Store is a retail location.
type Store struct {
	ID     uuid.UUID
	Number string
	Name   string
}

// Entry is the latest uploaded usage report of a store.
type Entry struct {
	ID         uuid.UUID
	StoreID    uuid.UUID
	UploadedAt time.Time
	Categories []Category
}

// Category is one section of a stored entry. Name is free text.
type Category struct {
	ID       uuid.UUID
	EntryID  uuid.UUID
	Name     string
	Position int
	Products []Product
}

// Product is one stored product line.
type Product struct {
	ID            uuid.UUID
	CategoryID    uuid.UUID
	Position      int
	ProductNumber string
	ProductName   string
	Unit          string
	Weeks         [4]decimal.NullDecimal
	Average       decimal.NullDecimal
	Conversion    decimal.NullDecimal
}

// Week returns the value of one week column.
func (p *Product) Week(w Week) decimal.NullDecimal {
	return p.Weeks[w.Index()]
}

// SetWeek replaces the value of one week column.
func (p *Product) SetWeek(w Week, v decimal.NullDecimal) {
	p.Weeks[w.Index()] = v
}

// ProductCount is the number of products across all categories.
func (e *Entry) ProductCount() int {
	n := 0
	for _, c := range e.Categories {
		n += len(c.Products)
	}
	return n
}

// UsageRepository is the persistence collaborator of the usage reconciler.
type UsageRepository interface {
	GetStore(ctx context.Context, storeID uuid.UUID) (*Store, error)
	GetStoreByNumber(ctx context.Context, number string) (*Store, error)

	// ReplaceEntry deletes every entry of entry.StoreID and inserts entry with its full
	// category and product tree in one transaction. IDs and UploadedAt are assigned.
	ReplaceEntry(ctx context.Context, entry *Entry) error

	// GetLatestEntry returns the current entry of a store, ErrNotFound when it has none.
	GetLatestEntry(ctx context.Context, storeID uuid.UUID) (*Entry, error)

	// UpdateProduct locks one product of a store, passes it to fn and writes back its
	// weeks and average when fn returns nil.
	UpdateProduct(ctx context.Context, storeID, productID uuid.UUID, fn func(*Product) error) (*Product, error)

	ListProductNumbers(ctx context.Context) ([]string, error)
	UpdateConversion(ctx context.Context, productNumber string, conversion decimal.Decimal) (int64, error)
}
