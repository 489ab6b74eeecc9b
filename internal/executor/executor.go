// Package executor implements the kind-specific execution strategies of the
// admin console: a restricted JavaScript runner, a read-only SQL runner and
// a structured-document validator.
//
// Executors are pure apart from their declared external effect (the SQL
// runner reads the database). Each measures wall-clock time around its own
// logic only; authorization and rate limiting happen before dispatch and are
// not included.
package executor

import (
	"context"

	"github.com/gestio-app/gestio/internal/model"
)

// ExecutionResult is the outcome of one execution. It is transient: only its
// audit projection is persisted. Executor-level failures set Success=false
// with a human-readable Error; they are data, not transport errors.
type ExecutionResult struct {
	Success       bool   `json:"success"`
	Result        any    `json:"result,omitempty"`
	Error         string `json:"error,omitempty"`
	ExecutionTime int64  `json:"execution_time"` // milliseconds
}

// Executor validates and/or runs a snippet's code.
type Executor interface {
	Execute(ctx context.Context, code string) ExecutionResult
}

// Registry maps snippet kinds to their executors.
type Registry map[model.SnippetKind]Executor

// For returns the executor registered for kind.
func (r Registry) For(kind model.SnippetKind) (Executor, bool) {
	e, ok := r[kind]
	return e, ok
}

func failure(err string, elapsedMS int64) ExecutionResult {
	return ExecutionResult{Success: false, Error: err, ExecutionTime: elapsedMS}
}
