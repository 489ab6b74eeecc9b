package server

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/gestio-app/gestio/internal/model"
)

const (
	defaultAuditPageSize = 20
	maxAuditPageSize     = 100
)

// HandleListAuditLogs handles GET /admin/audit-logs.
// Query params: page (1-based), limit, action, snippet_id.
func (h *Handlers) HandleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page := 1
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "page must be a positive integer")
			return
		}
		page = n
	}

	limit := defaultAuditPageSize
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "limit must be a positive integer")
			return
		}
		if n > maxAuditPageSize {
			n = maxAuditPageSize
		}
		limit = n
	}

	filter := model.AuditLogFilter{Action: q.Get("action")}
	if raw := q.Get("snippet_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "invalid snippet_id filter")
			return
		}
		filter.SnippetID = &id
	}

	logs, total, err := h.db.ListAuditLogs(r.Context(), filter, page, limit)
	if err != nil {
		h.logger.Error("list audit logs", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list audit logs")
		return
	}
	if logs == nil {
		logs = []model.AuditLogEntry{}
	}

	writeJSON(w, r, http.StatusOK, model.AuditLogsResponse{
		Logs:       logs,
		Pagination: model.NewPagination(page, limit, total),
	})
}
