package storage_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/auth"
	"github.com/gestio-app/gestio/internal/model"
	"github.com/gestio-app/gestio/internal/storage"
	"github.com/gestio-app/gestio/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	code := m.Run()
	testDB.Close()
	tc.Terminate()
	os.Exit(code)
}

// seedTestPrincipal creates (or reuses) a MASTER principal and returns it.
func seedTestPrincipal(t *testing.T, email string) model.Principal {
	t.Helper()
	ctx := context.Background()

	hash, err := auth.HashPassword("correct horse battery staple")
	require.NoError(t, err)

	_, err = testDB.SeedPrincipal(ctx, email, model.RoleMaster, hash)
	require.NoError(t, err)

	p, err := testDB.GetPrincipalByEmail(ctx, email)
	require.NoError(t, err)
	return p
}

func TestSeedPrincipalIdempotent(t *testing.T) {
	ctx := context.Background()

	hash, err := auth.HashPassword("first password")
	require.NoError(t, err)

	created, err := testDB.SeedPrincipal(ctx, "idempotent@example.com", model.RoleMaster, hash)
	require.NoError(t, err)
	assert.True(t, created)

	// Second seed with different credentials is a no-op.
	otherHash, err := auth.HashPassword("second password")
	require.NoError(t, err)
	created, err = testDB.SeedPrincipal(ctx, "idempotent@example.com", model.RoleMaster, otherHash)
	require.NoError(t, err)
	assert.False(t, created)

	p, err := testDB.GetPrincipalByEmail(ctx, "idempotent@example.com")
	require.NoError(t, err)
	assert.Equal(t, hash, p.PasswordHash, "existing principal wins")
}

func TestGetPrincipalByEmailNotFound(t *testing.T) {
	_, err := testDB.GetPrincipalByEmail(context.Background(), "nobody@example.com")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSnippetLifecycle(t *testing.T) {
	ctx := context.Background()
	p := seedTestPrincipal(t, "snippets@example.com")

	created, err := testDB.CreateSnippet(ctx, p.ID, model.SnippetInput{
		Title: "Daily totals",
		Kind:  model.KindReportSQL,
		Code:  "SELECT count(*) FROM audit_logs",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, 1, created.Version)
	assert.Equal(t, p.ID, created.CreatedBy)

	got, err := testDB.GetSnippet(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "Daily totals", got.Title)

	// Each update increments the version by exactly one.
	for want := 2; want <= 3; want++ {
		updated, err := testDB.UpdateSnippet(ctx, created.ID, model.SnippetInput{
			Title: "Daily totals",
			Kind:  model.KindReportSQL,
			Code:  "SELECT count(*) FROM snippets",
		})
		require.NoError(t, err)
		assert.Equal(t, want, updated.Version)
	}

	list, err := testDB.ListSnippets(ctx)
	require.NoError(t, err)
	var found bool
	for _, s := range list {
		if s.ID == created.ID {
			found = true
			assert.Equal(t, 3, s.Version)
		}
	}
	assert.True(t, found)

	deleted, err := testDB.DeleteSnippet(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted.Version, "delete returns the snippet's last state")

	_, err = testDB.GetSnippet(ctx, created.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)

	_, err = testDB.UpdateSnippet(ctx, created.ID, model.SnippetInput{
		Title: "gone", Kind: model.KindReportSQL, Code: "SELECT 1",
	})
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAuditLogDanglingSnippetID(t *testing.T) {
	ctx := context.Background()
	p := seedTestPrincipal(t, "dangling@example.com")

	snip, err := testDB.CreateSnippet(ctx, p.ID, model.SnippetInput{
		Title: "Ephemeral", Kind: model.KindTaskJS, Code: "1 + 1",
	})
	require.NoError(t, err)

	execTime := int64(12)
	result := `{"value":2}`
	require.NoError(t, testDB.InsertAuditLog(ctx, model.AuditLogEntry{
		UserID:        p.ID,
		Action:        model.ExecuteAction(model.KindTaskJS),
		SnippetID:     &snip.ID,
		ExecutionTime: &execTime,
		Result:        &result,
	}))

	_, err = testDB.DeleteSnippet(ctx, snip.ID)
	require.NoError(t, err)

	// The audit entry survives with its snippet_id intact.
	logs, total, err := testDB.ListAuditLogs(ctx, model.AuditLogFilter{SnippetID: &snip.ID}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, logs, 1)
	require.NotNil(t, logs[0].SnippetID)
	assert.Equal(t, snip.ID, *logs[0].SnippetID)
}

func TestListAuditLogsFilterAndPagination(t *testing.T) {
	ctx := context.Background()
	p := seedTestPrincipal(t, "audit@example.com")

	action := "execute_task-js"
	snippetID := uuid.New()
	for i := 0; i < 5; i++ {
		entry := model.AuditLogEntry{UserID: p.ID, Action: action, SnippetID: &snippetID}
		if i%2 == 0 {
			msg := "script timeout"
			entry.Error = &msg
		}
		require.NoError(t, testDB.InsertAuditLog(ctx, entry))
	}
	// Noise under a different action.
	require.NoError(t, testDB.InsertAuditLog(ctx, model.AuditLogEntry{
		UserID: p.ID, Action: model.ActionRateLimitExceeded,
	}))

	logs, total, err := testDB.ListAuditLogs(ctx, model.AuditLogFilter{
		Action:    action,
		SnippetID: &snippetID,
	}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, logs, 2)

	// Newest first.
	assert.False(t, logs[0].CreatedAt.Before(logs[1].CreatedAt))

	// Last page holds the remainder.
	logs, total, err = testDB.ListAuditLogs(ctx, model.AuditLogFilter{
		Action:    action,
		SnippetID: &snippetID,
	}, 3, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, logs, 1)

	// Unfiltered listing includes the noise entry.
	_, unfilteredTotal, err := testDB.ListAuditLogs(ctx, model.AuditLogFilter{}, 1, 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, unfilteredTotal, 6)
}
