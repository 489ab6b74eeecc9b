// Package console orchestrates the admin code-execution console: rate
// limiting, request validation, dispatch to the kind-specific executor, and
// the audit trail for executions and snippet mutations.
package console

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gestio-app/gestio/internal/executor"
	"github.com/gestio-app/gestio/internal/model"
	"github.com/gestio-app/gestio/internal/ratelimit"
)

// ErrRateLimited is returned when a principal exceeds its execution budget.
var ErrRateLimited = errors.New("console: rate limit exceeded")

// ErrForbidden is returned when a non-MASTER principal reaches the service.
// The HTTP layer gates on role already; the service fails closed regardless.
var ErrForbidden = errors.New("console: master role required")

// ValidationError reports a malformed request. Surfaced verbatim to callers.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// AuditSink appends audit entries. Satisfied by *storage.DB.
type AuditSink interface {
	InsertAuditLog(ctx context.Context, e model.AuditLogEntry) error
}

// SnippetStore is the persistence surface the console needs for snippets.
// Satisfied by *storage.DB.
type SnippetStore interface {
	ListSnippets(ctx context.Context) ([]model.Snippet, error)
	GetSnippet(ctx context.Context, id uuid.UUID) (model.Snippet, error)
	CreateSnippet(ctx context.Context, createdBy uuid.UUID, in model.SnippetInput) (model.Snippet, error)
	UpdateSnippet(ctx context.Context, id uuid.UUID, in model.SnippetInput) (model.Snippet, error)
	DeleteSnippet(ctx context.Context, id uuid.UUID) (model.Snippet, error)
}

// Service is the console orchestrator. Construct one per process and share
// it by reference across request handlers; it holds no per-request state.
type Service struct {
	snippets  SnippetStore
	audit     AuditSink
	limiter   ratelimit.Limiter
	executors executor.Registry
	queue     *auditQueue
	logger    *slog.Logger
}

// Config holds the Service dependencies.
type Config struct {
	Snippets  SnippetStore
	Audit     AuditSink
	Limiter   ratelimit.Limiter
	Executors executor.Registry
	Logger    *slog.Logger

	// Audit retry queue tuning. Zero values pick defaults.
	QueueSize  int
	RetryDelay time.Duration
}

// New creates a console Service. Call Start to run the audit retry worker
// and Close on shutdown.
func New(cfg Config) *Service {
	return &Service{
		snippets:  cfg.Snippets,
		audit:     cfg.Audit,
		limiter:   cfg.Limiter,
		executors: cfg.Executors,
		queue:     newAuditQueue(cfg.Audit, cfg.Logger, cfg.QueueSize, cfg.RetryDelay),
		logger:    cfg.Logger,
	}
}

// Start launches the audit retry worker.
func (s *Service) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Close stops the audit retry worker after draining pending entries.
func (s *Service) Close() {
	s.queue.Close()
}

// Execute runs one console request for an authenticated principal.
//
// Gate order: role → rate limit → shape validation → dispatch → audit.
// A gate failure short-circuits with a typed error; executor-level failure is
// not an error — it comes back inside the ExecutionResult and is audited the
// same as success.
func (s *Service) Execute(ctx context.Context, principal model.Principal, req model.ExecRequest) (executor.ExecutionResult, error) {
	if !model.RoleAtLeast(principal.Role, model.RoleMaster) {
		return executor.ExecutionResult{}, ErrForbidden
	}

	snippetID, err := parseSnippetID(req.SnippetID)
	if err != nil {
		return executor.ExecutionResult{}, err
	}

	res, err := s.limiter.Allow(ctx, "exec:"+principal.ID.String())
	if err != nil {
		// Limiter malfunction: fail open rather than blocking the console.
		s.logger.Warn("rate limiter error, failing open", "principal", principal.ID, "error", err)
	} else if !res.Allowed {
		s.record(ctx, model.AuditLogEntry{
			UserID:    principal.ID,
			Action:    model.ActionRateLimitExceeded,
			SnippetID: snippetID,
		})
		return executor.ExecutionResult{}, ErrRateLimited
	}

	if strings.TrimSpace(req.Code) == "" {
		return executor.ExecutionResult{}, validationErrorf("code is required")
	}
	if req.Kind == "" {
		return executor.ExecutionResult{}, validationErrorf("kind is required")
	}
	if !model.ValidKind(req.Kind) {
		return executor.ExecutionResult{}, validationErrorf("invalid snippet kind %q", req.Kind)
	}

	exec, ok := s.executors.For(req.Kind)
	if !ok {
		return executor.ExecutionResult{}, validationErrorf("no executor for kind %q", req.Kind)
	}

	result := exec.Execute(ctx, req.Code)

	entry := model.AuditLogEntry{
		UserID:        principal.ID,
		Action:        model.ExecuteAction(req.Kind),
		SnippetID:     snippetID,
		ExecutionTime: &result.ExecutionTime,
	}
	if result.Success {
		if serialized, err := json.Marshal(result.Result); err == nil {
			out := string(serialized)
			entry.Result = &out
		} else {
			s.logger.Warn("audit: serialize execution result", "error", err)
		}
	} else {
		msg := result.Error
		entry.Error = &msg
	}
	s.record(ctx, entry)

	return result, nil
}

// ListSnippets returns all snippets, newest update first.
func (s *Service) ListSnippets(ctx context.Context) ([]model.Snippet, error) {
	return s.snippets.ListSnippets(ctx)
}

// GetSnippet returns one snippet by id.
func (s *Service) GetSnippet(ctx context.Context, id uuid.UUID) (model.Snippet, error) {
	return s.snippets.GetSnippet(ctx, id)
}

// CreateSnippet validates the input, stores the snippet at version 1 and
// audits the creation.
func (s *Service) CreateSnippet(ctx context.Context, principal model.Principal, in model.SnippetInput) (model.Snippet, error) {
	in, err := in.Validate()
	if err != nil {
		return model.Snippet{}, &ValidationError{msg: err.Error()}
	}

	snip, err := s.snippets.CreateSnippet(ctx, principal.ID, in)
	if err != nil {
		return model.Snippet{}, err
	}

	s.recordSnippetMutation(ctx, principal.ID, model.ActionCreateSnippet, snip)
	return snip, nil
}

// UpdateSnippet validates the input, bumps the stored version and audits the
// update.
func (s *Service) UpdateSnippet(ctx context.Context, principal model.Principal, id uuid.UUID, in model.SnippetInput) (model.Snippet, error) {
	in, err := in.Validate()
	if err != nil {
		return model.Snippet{}, &ValidationError{msg: err.Error()}
	}

	snip, err := s.snippets.UpdateSnippet(ctx, id, in)
	if err != nil {
		return model.Snippet{}, err
	}

	s.recordSnippetMutation(ctx, principal.ID, model.ActionUpdateSnippet, snip)
	return snip, nil
}

// DeleteSnippet removes a snippet and audits the deletion. Existing audit
// entries referencing the id keep it as a dangling reference.
func (s *Service) DeleteSnippet(ctx context.Context, principal model.Principal, id uuid.UUID) error {
	snip, err := s.snippets.DeleteSnippet(ctx, id)
	if err != nil {
		return err
	}

	s.recordSnippetMutation(ctx, principal.ID, model.ActionDeleteSnippet, snip)
	return nil
}

// snippetProjection is the audit payload for snippet mutations.
type snippetProjection struct {
	Title   string            `json:"title"`
	Kind    model.SnippetKind `json:"kind"`
	Version int               `json:"version"`
}

func (s *Service) recordSnippetMutation(ctx context.Context, userID uuid.UUID, action string, snip model.Snippet) {
	entry := model.AuditLogEntry{
		UserID:    userID,
		Action:    action,
		SnippetID: &snip.ID,
	}
	serialized, err := json.Marshal(snippetProjection{Title: snip.Title, Kind: snip.Kind, Version: snip.Version})
	if err == nil {
		out := string(serialized)
		entry.Result = &out
	}
	s.record(ctx, entry)
}

func parseSnippetID(raw *string) (*uuid.UUID, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil, validationErrorf("invalid snippetId %q", *raw)
	}
	return &id, nil
}
