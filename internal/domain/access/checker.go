// Package access answers whether a user may view or edit a store's usage data.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrForbidden is returned when a user is neither an admin nor assigned to the store.
var ErrForbidden = errors.New("access to store denied")

// Role of a user account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Querier is the part of pgxpool.Pool the checker needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Checker resolves store access from the users and user_stores tables.
type Checker struct {
	db Querier
}

// NewChecker creates a new access checker
func NewChecker(db Querier) *Checker {
	return &Checker{db: db}
}

// CanAccessStore is true for admins and for users assigned to the store.
func (c *Checker) CanAccessStore(ctx context.Context, userID, storeID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM users u
			WHERE u.id = $1
			  AND (
				u.role = 'admin'
				OR EXISTS (SELECT 1 FROM user_stores us WHERE us.user_id = u.id AND us.store_id = $2)
			  )
		)`

	var allowed bool
	if err := c.db.QueryRow(ctx, query, userID, storeID).Scan(&allowed); err != nil {
		return false, fmt.Errorf("failed to check store access: %w", err)
	}
	return allowed, nil
}

// Authorize returns ErrForbidden unless the user may access the store.
func (c *Checker) Authorize(ctx context.Context, userID, storeID uuid.UUID) error {
	allowed, err := c.CanAccessStore(ctx, userID, storeID)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrForbidden
	}
	return nil
}
