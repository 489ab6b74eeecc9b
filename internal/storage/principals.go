package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/gestio-app/gestio/internal/model"
)

// GetPrincipalByEmail retrieves a principal by email address.
func (db *DB) GetPrincipalByEmail(ctx context.Context, email string) (model.Principal, error) {
	var p model.Principal
	var role string
	err := db.pool.QueryRow(ctx,
		`SELECT id, email, role, password_hash, created_at, updated_at
		 FROM principals WHERE email = $1`, email,
	).Scan(&p.ID, &p.Email, &role, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Principal{}, ErrNotFound
		}
		return model.Principal{}, fmt.Errorf("storage: get principal: %w", err)
	}
	p.Role = model.Role(role)
	return p, nil
}

// SeedPrincipal inserts a principal if no row with the given email exists.
// Used to bootstrap the initial MASTER account; an existing row is left
// untouched so restarts never rotate credentials.
func (db *DB) SeedPrincipal(ctx context.Context, email string, role model.Role, passwordHash string) (bool, error) {
	now := time.Now().UTC()
	tag, err := db.pool.Exec(ctx,
		`INSERT INTO principals (id, email, role, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)
		 ON CONFLICT (email) DO NOTHING`,
		uuid.New(), email, string(role), passwordHash, now,
	)
	if err != nil {
		return false, fmt.Errorf("storage: seed principal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
