package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryDenylist is the fixed set of mutating/DDL keywords rejected anywhere
// in a report query. Substring matching is a coarse safety net, not a parser:
// keywords inside string literals or identifiers produce false positives, and
// it is bypassable in ways a parser would catch. It is defense-in-depth only —
// the read-only transaction below is what actually prevents writes.
var queryDenylist = []string{
	"insert", "update", "delete", "drop", "create", "alter",
	"truncate", "grant", "revoke", "exec", "execute",
}

// QueryExecutor runs report-sql snippets against the database.
//
// Every query executes inside a transaction opened with AccessMode ReadOnly,
// so the database itself rejects writes regardless of what the text filter
// missed. The configured deadline bounds execution time.
type QueryExecutor struct {
	pool    *pgxpool.Pool
	timeout time.Duration
	logger  *slog.Logger
}

// NewQueryExecutor creates a query executor backed by the given pool.
func NewQueryExecutor(pool *pgxpool.Pool, timeout time.Duration, logger *slog.Logger) *QueryExecutor {
	return &QueryExecutor{pool: pool, timeout: timeout, logger: logger}
}

// Execute validates the query text, then runs it read-only and returns the
// row set as a slice of column-name keyed maps.
func (e *QueryExecutor) Execute(ctx context.Context, code string) ExecutionResult {
	start := time.Now()

	if err := ValidateQuery(code); err != nil {
		return failure(err.Error(), time.Since(start).Milliseconds())
	}

	queryCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tx, err := e.pool.BeginTx(queryCtx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		e.logger.Error("report query: begin read-only tx", "error", err)
		return failure("failed to start read-only transaction", time.Since(start).Milliseconds())
	}
	defer func() { _ = tx.Rollback(queryCtx) }()

	rows, err := tx.Query(queryCtx, code)
	if err != nil {
		return failure(err.Error(), time.Since(start).Milliseconds())
	}

	result, err := collectRows(rows)
	if err != nil {
		return failure(err.Error(), time.Since(start).Milliseconds())
	}

	if err := tx.Commit(queryCtx); err != nil {
		return failure(err.Error(), time.Since(start).Milliseconds())
	}

	return ExecutionResult{Success: true, Result: result, ExecutionTime: time.Since(start).Milliseconds()}
}

// ValidateQuery enforces the textual pre-check: the trimmed, lower-cased
// input must start with "select" and must not contain any denylisted keyword.
func ValidateQuery(code string) error {
	lowered := strings.ToLower(strings.TrimSpace(code))
	if !strings.HasPrefix(lowered, "select") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	for _, kw := range queryDenylist {
		if strings.Contains(lowered, kw) {
			return fmt.Errorf("keyword %q is not allowed", kw)
		}
	}
	return nil
}

// collectRows materializes a row set as column-name keyed maps, preserving
// result order.
func collectRows(rows pgx.Rows) ([]map[string]any, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	out := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f.Name] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
