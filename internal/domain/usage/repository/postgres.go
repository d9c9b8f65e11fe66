package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PostgresUsageRepository implements UsageRepository using PostgreSQL
type PostgresUsageRepository struct {
	db DBTX
}

// NewPostgresUsageRepository creates a new PostgreSQL usage repository
func NewPostgresUsageRepository(db DBTX) *PostgresUsageRepository {
	return &PostgresUsageRepository{db: db}
}

const productColumns = `
	p.id, p.usage_category_id, p.position, p.product_number, p.product_name, p.unit,
	p.w1::text, p.w2::text, p.w3::text, p.w4::text, p.average::text, p.conversion::text`

// GetStore retrieves a store by ID
func (r *PostgresUsageRepository) GetStore(ctx context.Context, storeID uuid.UUID) (*Store, error) {
	query := `SELECT id, number, name FROM stores WHERE id = $1`

	store := &Store{}
	err := r.db.QueryRow(ctx, query, storeID).Scan(&store.ID, &store.Number, &store.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store: %w", err)
	}
	return store, nil
}

// GetStoreByNumber retrieves a store by its printed store number
func (r *PostgresUsageRepository) GetStoreByNumber(ctx context.Context, number string) (*Store, error) {
	query := `SELECT id, number, name FROM stores WHERE number = $1`

	store := &Store{}
	err := r.db.QueryRow(ctx, query, number).Scan(&store.ID, &store.Number, &store.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get store by number: %w", err)
	}
	return store, nil
}

// ReplaceEntry swaps the store's entry for a new one atomically. Concurrent replacements
// of the same store are serialized by a transaction-scoped advisory lock, so the last
// commit wins and readers never see two entries.
func (r *PostgresUsageRepository) ReplaceEntry(ctx context.Context, entry *Entry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('usage:' || $1::text, 0))`,
		entry.StoreID,
	); err != nil {
		return fmt.Errorf("failed to lock store usage: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM usage_entries WHERE store_id = $1`, entry.StoreID); err != nil {
		return fmt.Errorf("failed to delete previous usage entries: %w", err)
	}

	entry.ID = uuid.New()
	if entry.UploadedAt.IsZero() {
		entry.UploadedAt = time.Now().UTC()
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO usage_entries (id, store_id, uploaded_at) VALUES ($1, $2, $3)`,
		entry.ID, entry.StoreID, entry.UploadedAt,
	); err != nil {
		return fmt.Errorf("failed to insert usage entry: %w", err)
	}

	for i := range entry.Categories {
		category := &entry.Categories[i]
		category.ID = uuid.New()
		category.EntryID = entry.ID
		category.Position = i

		if _, err := tx.Exec(ctx,
			`INSERT INTO usage_categories (id, usage_entry_id, name, position) VALUES ($1, $2, $3, $4)`,
			category.ID, category.EntryID, category.Name, category.Position,
		); err != nil {
			return fmt.Errorf("failed to insert usage category %q: %w", category.Name, err)
		}

		for j := range category.Products {
			product := &category.Products[j]
			product.ID = uuid.New()
			product.CategoryID = category.ID
			product.Position = j

			if _, err := tx.Exec(ctx, `
				INSERT INTO usage_products (
					id, usage_category_id, position, product_number, product_name, unit,
					w1, w2, w3, w4, average, conversion
				) VALUES (
					$1, $2, $3, $4, $5, $6,
					$7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric, $12::numeric
				)`,
				product.ID, product.CategoryID, product.Position,
				product.ProductNumber, product.ProductName, product.Unit,
				NumericArg(product.Weeks[0]), NumericArg(product.Weeks[1]),
				NumericArg(product.Weeks[2]), NumericArg(product.Weeks[3]),
				NumericArg(product.Average), NumericArg(product.Conversion),
			); err != nil {
				return fmt.Errorf("failed to insert usage product %s: %w", product.ProductNumber, err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit usage entry: %w", err)
	}
	return nil
}

// GetLatestEntry loads the store's entry with its categories and products from one snapshot
func (r *PostgresUsageRepository) GetLatestEntry(ctx context.Context, storeID uuid.UUID) (*Entry, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry := &Entry{}
	err = tx.QueryRow(ctx, `
		SELECT id, store_id, uploaded_at
		FROM usage_entries
		WHERE store_id = $1
		ORDER BY uploaded_at DESC
		LIMIT 1`, storeID).Scan(&entry.ID, &entry.StoreID, &entry.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get usage entry: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, name, position
		FROM usage_categories
		WHERE usage_entry_id = $1
		ORDER BY position`, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage categories: %w", err)
	}

	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		c := Category{EntryID: entry.ID}
		if err := rows.Scan(&c.ID, &c.Name, &c.Position); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan usage category: %w", err)
		}
		c.Products = []Product{}
		byID[c.ID] = len(entry.Categories)
		entry.Categories = append(entry.Categories, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage categories: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT`+productColumns+`
		FROM usage_products p
		JOIN usage_categories c ON c.id = p.usage_category_id
		WHERE c.usage_entry_id = $1
		ORDER BY c.position, p.position`, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage products: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		idx, ok := byID[p.CategoryID]
		if !ok {
			continue
		}
		entry.Categories[idx].Products = append(entry.Categories[idx].Products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage products: %w", err)
	}

	return entry, nil
}

// UpdateProduct runs a read-modify-write of one product under a row lock, so concurrent
// edits of different weeks of the same product apply one after the other.
func (r *PostgresUsageRepository) UpdateProduct(ctx context.Context, storeID, productID uuid.UUID, fn func(*Product) error) (*Product, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		SELECT`+productColumns+`
		FROM usage_products p
		JOIN usage_categories c ON c.id = p.usage_category_id
		JOIN usage_entries e ON e.id = c.usage_entry_id
		WHERE p.id = $1 AND e.store_id = $2
		FOR UPDATE OF p`, productID, storeID)

	product, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := fn(product); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE usage_products
		SET w1 = $2::numeric, w2 = $3::numeric, w3 = $4::numeric, w4 = $5::numeric, average = $6::numeric
		WHERE id = $1`,
		product.ID,
		NumericArg(product.Weeks[0]), NumericArg(product.Weeks[1]),
		NumericArg(product.Weeks[2]), NumericArg(product.Weeks[3]),
		NumericArg(product.Average),
	); err != nil {
		return nil, fmt.Errorf("failed to update usage product: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit usage product: %w", err)
	}
	return product, nil
}

// ListProductNumbers returns every distinct stored product number
func (r *PostgresUsageRepository) ListProductNumbers(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT product_number FROM usage_products ORDER BY product_number`)
	if err != nil {
		return nil, fmt.Errorf("failed to list product numbers: %w", err)
	}
	defer rows.Close()

	var numbers []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to scan product number: %w", err)
		}
		numbers = append(numbers, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate product numbers: %w", err)
	}
	return numbers, nil
}

// UpdateConversion sets the conversion factor on every stored row of a product number
func (r *PostgresUsageRepository) UpdateConversion(ctx context.Context, productNumber string, conversion decimal.Decimal) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE usage_products SET conversion = $2::numeric WHERE product_number = $1`,
		productNumber, conversion.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update conversion for %s: %w", productNumber, err)
	}
	return tag.RowsAffected(), nil
}

func scanProduct(row pgx.Row) (*Product, error) {
	p := &Product{}
	var weeks [4]*string
	var average, conversion *string

	err := row.Scan(
		&p.ID, &p.CategoryID, &p.Position, &p.ProductNumber, &p.ProductName, &p.Unit,
		&weeks[0], &weeks[1], &weeks[2], &weeks[3], &average, &conversion,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan usage product: %w", err)
	}

	for i, w := range weeks {
		if p.Weeks[i], err = FromNumeric(w); err != nil {
			return nil, err
		}
	}
	if p.Average, err = FromNumeric(average); err != nil {
		return nil, err
	}
	if p.Conversion, err = FromNumeric(conversion); err != nil {
		return nil, err
	}
	return p, nil
}

// NumericArg renders a nullable decimal as a query argument for a ::numeric cast.
func NumericArg(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

// FromNumeric parses a numeric column selected as text.
func FromNumeric(s *string) (decimal.NullDecimal, error) {
	if s == nil {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid numeric value %q: %w", *s, err)
	}
	return decimal.NewNullDecimal(d), nil
}
