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

const snippetColumns = `id, title, kind, code, version, created_by, created_at, updated_at`

// CreateSnippet inserts a new snippet at version 1 and returns it.
// The input is assumed validated (see model.SnippetInput.Validate).
func (db *DB) CreateSnippet(ctx context.Context, createdBy uuid.UUID, in model.SnippetInput) (model.Snippet, error) {
	now := time.Now().UTC()
	s := model.Snippet{
		ID:        uuid.New(),
		Title:     in.Title,
		Kind:      in.Kind,
		Code:      in.Code,
		Version:   1,
		CreatedBy: createdBy,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO snippets (id, title, kind, code, version, created_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Title, string(s.Kind), s.Code, s.Version, s.CreatedBy, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return model.Snippet{}, fmt.Errorf("storage: create snippet: %w", err)
	}
	return s, nil
}

// GetSnippet retrieves a snippet by ID.
func (db *DB) GetSnippet(ctx context.Context, id uuid.UUID) (model.Snippet, error) {
	row := db.pool.QueryRow(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = $1`, id)
	s, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snippet{}, ErrNotFound
		}
		return model.Snippet{}, fmt.Errorf("storage: get snippet: %w", err)
	}
	return s, nil
}

// ListSnippets returns all snippets ordered by last update, newest first.
func (db *DB) ListSnippets(ctx context.Context) ([]model.Snippet, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+snippetColumns+` FROM snippets ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan snippet: %w", err)
		}
		snippets = append(snippets, s)
	}
	return snippets, rows.Err()
}

// UpdateSnippet replaces a snippet's content and bumps its version by one.
// The increment happens inside the UPDATE statement so concurrent updates
// cannot produce duplicate versions.
func (db *DB) UpdateSnippet(ctx context.Context, id uuid.UUID, in model.SnippetInput) (model.Snippet, error) {
	row := db.pool.QueryRow(ctx,
		`UPDATE snippets
		 SET title = $1, kind = $2, code = $3, version = version + 1, updated_at = $4
		 WHERE id = $5
		 RETURNING `+snippetColumns,
		in.Title, string(in.Kind), in.Code, time.Now().UTC(), id,
	)
	s, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snippet{}, ErrNotFound
		}
		return model.Snippet{}, fmt.Errorf("storage: update snippet: %w", err)
	}
	return s, nil
}

// DeleteSnippet removes a snippet and returns its last state.
// Deletion is hard; audit entries referencing the id are left dangling on purpose.
func (db *DB) DeleteSnippet(ctx context.Context, id uuid.UUID) (model.Snippet, error) {
	row := db.pool.QueryRow(ctx,
		`DELETE FROM snippets WHERE id = $1 RETURNING `+snippetColumns, id)
	s, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Snippet{}, ErrNotFound
		}
		return model.Snippet{}, fmt.Errorf("storage: delete snippet: %w", err)
	}
	return s, nil
}

func scanSnippet(row pgx.Row) (model.Snippet, error) {
	var s model.Snippet
	var kind string
	err := row.Scan(&s.ID, &s.Title, &kind, &s.Code, &s.Version, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return model.Snippet{}, err
	}
	s.Kind = model.SnippetKind(kind)
	return s, nil
}
