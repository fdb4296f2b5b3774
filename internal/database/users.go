package database

import (
	"context"
	"time"
)

// CreateUser inserts a new account. Duplicate email surfaces as Conflict.
func (s *Store) CreateUser(ctx context.Context, email, passwordHash, name, role string, department *string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		INSERT INTO users (email, password_hash, name, role, department)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, email, password_hash, name, role, department, created_at, updated_at`,
		email, passwordHash, name, role, department)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// FindUserByEmail returns NotFound when no account matches.
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, email, password_hash, name, role, department, created_at, updated_at
		FROM users WHERE email = $1`, email)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// FindUserByID returns NotFound when the id is unknown.
func (s *Store) FindUserByID(ctx context.Context, id int64) (*User, error) {
	var u User
	err := s.db.GetContext(ctx, &u, `
		SELECT id, email, password_hash, name, role, department, created_at, updated_at
		FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

// ListUsers returns accounts, optionally restricted to one role.
func (s *Store) ListUsers(ctx context.Context, role string) ([]User, error) {
	var users []User
	var err error
	if role == "" {
		err = s.db.SelectContext(ctx, &users, `
			SELECT id, email, password_hash, name, role, department, created_at, updated_at
			FROM users ORDER BY id`)
	} else {
		err = s.db.SelectContext(ctx, &users, `
			SELECT id, email, password_hash, name, role, department, created_at, updated_at
			FROM users WHERE role = $1 ORDER BY id`, role)
	}
	if err != nil {
		return nil, mapError(err)
	}
	return users, nil
}

// UpdateUserPassword replaces the stored digest.
func (s *Store) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(res)
}

// DeleteUser removes the account; devices, vitals, alerts and attendance
// cascade at the schema level.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	return requireRowAffected(res)
}
