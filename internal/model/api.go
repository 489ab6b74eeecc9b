package model

import "time"

// Error codes used in API error responses.
const (
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeForbidden    = "forbidden"
	ErrCodeValidation   = "validation_error"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"
)

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ErrorDetail carries a machine-readable code and a human-readable message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponseMeta carries per-request metadata on every error response.
type ResponseMeta struct {
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecRequest is the body of POST /admin/exec.
type ExecRequest struct {
	Code      string      `json:"code"`
	Kind      SnippetKind `json:"kind"`
	SnippetID *string     `json:"snippetId,omitempty"`
}

// AuthTokenRequest is the body of POST /auth/token.
type AuthTokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthTokenResponse is the success body of POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"principal"`
}

// AuditLogsResponse is the body of GET /admin/audit-logs.
type AuditLogsResponse struct {
	Logs       []AuditLogEntry `json:"logs"`
	Pagination Pagination      `json:"pagination"`
}

// SnippetsResponse is the body of GET /admin/snippets.
type SnippetsResponse struct {
	Snippets []Snippet `json:"snippets"`
}

// SnippetResponse wraps a single snippet.
type SnippetResponse struct {
	Snippet Snippet `json:"snippet"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Postgres      string `json:"postgres"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}
