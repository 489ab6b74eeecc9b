package storage

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestio-app/gestio/internal/model"
)

func TestBuildAuditWhereClause_Empty(t *testing.T) {
	where, args := buildAuditWhereClause(model.AuditLogFilter{}, 1)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestBuildAuditWhereClause_ActionOnly(t *testing.T) {
	where, args := buildAuditWhereClause(model.AuditLogFilter{Action: "execute_task-js"}, 1)
	assert.Equal(t, " WHERE action = $1", where)
	require.Len(t, args, 1)
	assert.Equal(t, "execute_task-js", args[0])
}

func TestBuildAuditWhereClause_SnippetOnly(t *testing.T) {
	id := uuid.New()
	where, args := buildAuditWhereClause(model.AuditLogFilter{SnippetID: &id}, 1)
	assert.Equal(t, " WHERE snippet_id = $1", where)
	require.Len(t, args, 1)
	assert.Equal(t, id, args[0])
}

func TestBuildAuditWhereClause_Both(t *testing.T) {
	id := uuid.New()
	where, args := buildAuditWhereClause(model.AuditLogFilter{Action: "delete_snippet", SnippetID: &id}, 1)
	assert.Equal(t, " WHERE action = $1 AND snippet_id = $2", where)
	require.Len(t, args, 2)
	assert.Equal(t, "delete_snippet", args[0])
	assert.Equal(t, id, args[1])
}
