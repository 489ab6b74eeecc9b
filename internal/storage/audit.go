package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gestio-app/gestio/internal/model"
)

// InsertAuditLog appends an audit entry. The target table is append-only:
// nothing in the core updates or deletes rows in it.
func (db *DB) InsertAuditLog(ctx context.Context, e model.AuditLogEntry) error {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, user_id, action, snippet_id, execution_time, result, error, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, e.UserID, e.Action, e.SnippetID, e.ExecutionTime, e.Result, e.Error, createdAt,
	)
	if err != nil {
		return fmt.Errorf("storage: insert audit log: %w", err)
	}
	return nil
}

// buildAuditWhereClause assembles the WHERE clause and arguments for an
// audit-log listing. startIdx is the first positional placeholder to use.
func buildAuditWhereClause(f model.AuditLogFilter, startIdx int) (string, []any) {
	var conds []string
	var args []any
	idx := startIdx

	if f.Action != "" {
		conds = append(conds, "action = $"+strconv.Itoa(idx))
		args = append(args, f.Action)
		idx++
	}
	if f.SnippetID != nil {
		conds = append(conds, "snippet_id = $"+strconv.Itoa(idx))
		args = append(args, *f.SnippetID)
		idx++
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListAuditLogs returns one page of audit entries, newest first, plus the
// total row count matching the filter.
func (db *DB) ListAuditLogs(ctx context.Context, f model.AuditLogFilter, page, limit int) ([]model.AuditLogEntry, int, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 50
	}
	offset := (page - 1) * limit

	where, args := buildAuditWhereClause(f, 1)

	var total int
	if err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_logs`+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("storage: count audit logs: %w", err)
	}

	limitIdx := len(args) + 1
	query := `SELECT id, user_id, action, snippet_id, execution_time, result, error, created_at
		 FROM audit_logs` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(limitIdx) +
		` OFFSET $` + strconv.Itoa(limitIdx+1)
	args = append(args, limit, offset)

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("storage: list audit logs: %w", err)
	}
	defer rows.Close()

	logs := make([]model.AuditLogEntry, 0, limit)
	for rows.Next() {
		var e model.AuditLogEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.SnippetID,
			&e.ExecutionTime, &e.Result, &e.Error, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("storage: scan audit log: %w", err)
		}
		logs = append(logs, e)
	}
	return logs, total, rows.Err()
}
