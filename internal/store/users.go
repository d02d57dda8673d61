package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/najdeno/internal/model"
)

const userColumns = `id, email, name, credits, blocked, created_at`

// CreateUser creates a new reporter.
func CreateUser(ctx context.Context, db *sql.DB, email, name string) (*model.User, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO users (email, name) VALUES (?, ?)`,
		email, name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, q Querier, id int64) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// IsUserBlocked reports whether the user's account has been flagged.
// Unknown users are reported as blocked.
func IsUserBlocked(ctx context.Context, db *sql.DB, id int64) (bool, error) {
	var blocked bool
	err := db.QueryRowContext(ctx,
		`SELECT blocked FROM users WHERE id = ?`, id,
	).Scan(&blocked)
	if err == sql.ErrNoRows {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking user block: %w", err)
	}
	return blocked, nil
}

// BlockUser flags a user's account.
func BlockUser(ctx context.Context, q Querier, id int64) error {
	_, err := q.ExecContext(ctx, `UPDATE users SET blocked = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("blocking user: %w", err)
	}
	return nil
}

func scanUser(s scanner) (*model.User, error) {
	u := &model.User{}
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &u.Credits, &u.Blocked, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}
