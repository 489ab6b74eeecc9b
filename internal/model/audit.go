package model

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded by the console core.
const (
	ActionCreateSnippet     = "create_snippet"
	ActionUpdateSnippet     = "update_snippet"
	ActionDeleteSnippet     = "delete_snippet"
	ActionRateLimitExceeded = "rate_limit_exceeded"
)

// ExecuteAction returns the audit action tag for an execution of the given kind.
func ExecuteAction(kind SnippetKind) string {
	return "execute_" + string(kind)
}

// AuditLogEntry is an immutable record of one execution or mutation.
// The table it lives in is append-only: the core never updates or deletes
// entries. SnippetID intentionally carries no foreign key so entries survive
// snippet deletion as dangling references.
type AuditLogEntry struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Action        string     `json:"action"`
	SnippetID     *uuid.UUID `json:"snippet_id,omitempty"`
	ExecutionTime *int64     `json:"execution_time,omitempty"` // milliseconds
	Result        *string    `json:"result,omitempty"`         // serialized JSON
	Error         *string    `json:"error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// AuditLogFilter narrows an audit-log listing.
type AuditLogFilter struct {
	Action    string
	SnippetID *uuid.UUID
}

// Pagination is the page metadata attached to audit-log listings.
type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// NewPagination computes page metadata from a total row count.
func NewPagination(page, limit, total int) Pagination {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}
