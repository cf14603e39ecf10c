package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/TheOliver413/taskmanager-back/internal/domain/user"
)

// FindUsers returns the users among ids that exist, in id order.
func (s *Store) FindUsers(ctx context.Context, ids []int64) ([]user.Summary, error) {
	if len(ids) == 0 {
		return []user.Summary{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, email FROM users WHERE id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	return scanSummaries(rows)
}

// CreateUser inserts a local user. Used by operator tooling only; accounts
// are otherwise owned by the auth service.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (name, email, password, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		u.Name, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("create user %s: %w", u.Email, err)
	}
	return nil
}

// DeleteUser removes a user. Their history entries survive with a null
// actor and their assignments are dropped.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete user %d", id)
}
