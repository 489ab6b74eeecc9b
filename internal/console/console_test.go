package console

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/executor"
	"github.com/gestio-app/gestio/internal/model"
	"github.com/gestio-app/gestio/internal/ratelimit"
	"github.com/gestio-app/gestio/internal/storage"
)

// fakeSink records audit entries and can be told to fail the first n writes.
type fakeSink struct {
	mu       sync.Mutex
	entries  []model.AuditLogEntry
	failures int
}

func (f *fakeSink) InsertAuditLog(_ context.Context, e model.AuditLogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("store unavailable")
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeSink) all() []model.AuditLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AuditLogEntry(nil), f.entries...)
}

// fakeLimiter rejects after a fixed number of allowed calls.
type fakeLimiter struct {
	mu      sync.Mutex
	allowed int
}

func (f *fakeLimiter) Allow(context.Context, string) (ratelimit.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowed <= 0 {
		return ratelimit.Result{Allowed: false}, nil
	}
	f.allowed--
	return ratelimit.Result{Allowed: true}, nil
}

func (f *fakeLimiter) Close() error { return nil }

// fakeStore is an in-memory SnippetStore.
type fakeStore struct {
	mu       sync.Mutex
	snippets map[uuid.UUID]model.Snippet
}

func newFakeStore() *fakeStore {
	return &fakeStore{snippets: make(map[uuid.UUID]model.Snippet)}
}

func (f *fakeStore) ListSnippets(context.Context) ([]model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Snippet, 0, len(f.snippets))
	for _, s := range f.snippets {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) GetSnippet(_ context.Context, id uuid.UUID) (model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return model.Snippet{}, storage.ErrNotFound
	}
	return s, nil
}

func (f *fakeStore) CreateSnippet(_ context.Context, createdBy uuid.UUID, in model.SnippetInput) (model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := model.Snippet{
		ID: uuid.New(), Title: in.Title, Kind: in.Kind, Code: in.Code,
		Version: 1, CreatedBy: createdBy,
		CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC(),
	}
	f.snippets[s.ID] = s
	return s, nil
}

func (f *fakeStore) UpdateSnippet(_ context.Context, id uuid.UUID, in model.SnippetInput) (model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return model.Snippet{}, storage.ErrNotFound
	}
	s.Title, s.Kind, s.Code = in.Title, in.Kind, in.Code
	s.Version++
	s.UpdatedAt = time.Now().UTC()
	f.snippets[id] = s
	return s, nil
}

func (f *fakeStore) DeleteSnippet(_ context.Context, id uuid.UUID) (model.Snippet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snippets[id]
	if !ok {
		return model.Snippet{}, storage.ErrNotFound
	}
	delete(f.snippets, id)
	return s, nil
}

// stubExecutor returns a canned result.
type stubExecutor struct {
	result executor.ExecutionResult
}

func (s stubExecutor) Execute(context.Context, string) executor.ExecutionResult {
	return s.result
}

func newTestService(t *testing.T, sink *fakeSink, limiter ratelimit.Limiter, execs executor.Registry) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc := New(Config{
		Snippets:   store,
		Audit:      sink,
		Limiter:    limiter,
		Executors:  execs,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		RetryDelay: time.Millisecond,
	})
	svc.Start(context.Background())
	t.Cleanup(svc.Close)
	return svc, store
}

func master() model.Principal {
	return model.Principal{ID: uuid.New(), Email: "master@example.com", Role: model.RoleMaster}
}

func TestExecuteSuccessAuditsExactlyOnce(t *testing.T) {
	sink := &fakeSink{}
	execs := executor.Registry{
		model.KindTaskJS: stubExecutor{result: executor.ExecutionResult{Success: true, Result: float64(3), ExecutionTime: 7}},
	}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, execs)

	p := master()
	res, err := svc.Execute(context.Background(), p, model.ExecRequest{Code: "1+2", Kind: model.KindTaskJS})
	require.NoError(t, err)
	assert.True(t, res.Success)

	entries := sink.all()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "execute_task-js", e.Action)
	assert.Equal(t, p.ID, e.UserID)
	require.NotNil(t, e.ExecutionTime)
	assert.GreaterOrEqual(t, *e.ExecutionTime, int64(0))
	require.NotNil(t, e.Result)
	assert.Nil(t, e.Error)

	var decoded float64
	require.NoError(t, json.Unmarshal([]byte(*e.Result), &decoded))
	assert.Equal(t, float64(3), decoded)
}

func TestExecuteFailureStillAudited(t *testing.T) {
	sink := &fakeSink{}
	execs := executor.Registry{
		model.KindTaskJS: stubExecutor{result: executor.ExecutionResult{Success: false, Error: `use of "process" is not allowed`, ExecutionTime: 1}},
	}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, execs)

	res, err := svc.Execute(context.Background(), master(), model.ExecRequest{Code: "process.exit()", Kind: model.KindTaskJS})
	require.NoError(t, err, "executor failure is data, not a transport error")
	assert.False(t, res.Success)

	entries := sink.all()
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Result)
	require.NotNil(t, entries[0].Error)
	assert.Contains(t, *entries[0].Error, "process")
}

func TestExecuteRateLimited(t *testing.T) {
	sink := &fakeSink{}
	execs := executor.Registry{
		model.KindUIMDX: stubExecutor{result: executor.ExecutionResult{Success: true}},
	}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 2}, execs)

	p := master()
	req := model.ExecRequest{Code: "# ok", Kind: model.KindUIMDX}
	for i := 0; i < 2; i++ {
		_, err := svc.Execute(context.Background(), p, req)
		require.NoError(t, err)
	}

	_, err := svc.Execute(context.Background(), p, req)
	require.ErrorIs(t, err, ErrRateLimited)

	entries := sink.all()
	require.Len(t, entries, 3)
	assert.Equal(t, model.ActionRateLimitExceeded, entries[2].Action)
	assert.Nil(t, entries[2].ExecutionTime)
}

func TestExecuteValidation(t *testing.T) {
	sink := &fakeSink{}
	execs := executor.Registry{
		model.KindTaskJS: stubExecutor{result: executor.ExecutionResult{Success: true}},
	}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, execs)
	p := master()

	var verr *ValidationError

	_, err := svc.Execute(context.Background(), p, model.ExecRequest{Kind: model.KindTaskJS})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Execute(context.Background(), p, model.ExecRequest{Code: "1"})
	require.ErrorAs(t, err, &verr)

	_, err = svc.Execute(context.Background(), p, model.ExecRequest{Code: "1", Kind: "task-py"})
	require.ErrorAs(t, err, &verr)

	bad := "not-a-uuid"
	_, err = svc.Execute(context.Background(), p, model.ExecRequest{Code: "1", Kind: model.KindTaskJS, SnippetID: &bad})
	require.ErrorAs(t, err, &verr)
}

func TestExecuteForbiddenForUserRole(t *testing.T) {
	sink := &fakeSink{}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, executor.Registry{})

	p := model.Principal{ID: uuid.New(), Email: "user@example.com", Role: model.RoleUser}
	_, err := svc.Execute(context.Background(), p, model.ExecRequest{Code: "1", Kind: model.KindTaskJS})
	require.ErrorIs(t, err, ErrForbidden)
	assert.Empty(t, sink.all(), "denied requests must not mutate state")
}

func TestExecuteAuditWriteFailureDoesNotFailRequest(t *testing.T) {
	sink := &fakeSink{failures: 4} // exhausts inline retries, succeeds in queue
	execs := executor.Registry{
		model.KindUIMDX: stubExecutor{result: executor.ExecutionResult{Success: true, Result: "ok"}},
	}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, execs)

	res, err := svc.Execute(context.Background(), master(), model.ExecRequest{Code: "# t", Kind: model.KindUIMDX})
	require.NoError(t, err)
	assert.True(t, res.Success)

	// The background queue eventually lands the entry.
	require.Eventually(t, func() bool {
		return len(sink.all()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSnippetLifecycleAudited(t *testing.T) {
	sink := &fakeSink{}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, executor.Registry{})
	p := master()
	ctx := context.Background()

	snip, err := svc.CreateSnippet(ctx, p, model.SnippetInput{Title: "Orders report", Kind: model.KindReportSQL, Code: "SELECT 1"})
	require.NoError(t, err)
	assert.Equal(t, 1, snip.Version)

	updated, err := svc.UpdateSnippet(ctx, p, snip.ID, model.SnippetInput{Title: "Orders report v2", Kind: model.KindReportSQL, Code: "SELECT 2"})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	require.NoError(t, svc.DeleteSnippet(ctx, p, snip.ID))

	entries := sink.all()
	require.Len(t, entries, 3)
	assert.Equal(t, model.ActionCreateSnippet, entries[0].Action)
	assert.Equal(t, model.ActionUpdateSnippet, entries[1].Action)
	assert.Equal(t, model.ActionDeleteSnippet, entries[2].Action)

	var proj struct {
		Title   string `json:"title"`
		Kind    string `json:"kind"`
		Version int    `json:"version"`
	}
	require.NotNil(t, entries[1].Result)
	require.NoError(t, json.Unmarshal([]byte(*entries[1].Result), &proj))
	assert.Equal(t, "Orders report v2", proj.Title)
	assert.Equal(t, "report-sql", proj.Kind)
	assert.Equal(t, 2, proj.Version)

	// Delete projection reflects the removed snippet's last state.
	require.NotNil(t, entries[2].Result)
}

func TestSnippetValidationRejected(t *testing.T) {
	sink := &fakeSink{}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, executor.Registry{})
	p := master()

	var verr *ValidationError
	_, err := svc.CreateSnippet(context.Background(), p, model.SnippetInput{Title: "ab", Kind: model.KindTaskJS, Code: "1"})
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, sink.all(), "rejected input must not be audited")
}

func TestSnippetNotFoundPassthrough(t *testing.T) {
	sink := &fakeSink{}
	svc, _ := newTestService(t, sink, &fakeLimiter{allowed: 100}, executor.Registry{})
	p := master()

	_, err := svc.UpdateSnippet(context.Background(), p, uuid.New(), model.SnippetInput{Title: "abc", Kind: model.KindTaskJS, Code: "1"})
	require.ErrorIs(t, err, storage.ErrNotFound)

	err = svc.DeleteSnippet(context.Background(), p, uuid.New())
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.Empty(t, sink.all())
}
