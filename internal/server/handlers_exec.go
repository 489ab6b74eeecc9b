package server

import (
	"errors"
	"net/http"

	"github.com/gestio-app/gestio/internal/console"
	"github.com/gestio-app/gestio/internal/model"
)

// HandleExec handles POST /admin/exec. Executor outcomes — including failed
// scripts — are reported as a 200 with success:false; non-200 statuses are
// reserved for request-level failures (auth, validation, rate limit).
func (h *Handlers) HandleExec(w http.ResponseWriter, r *http.Request) {
	var req model.ExecRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	result, err := h.console.Execute(r.Context(), h.principal(r), req)
	if err != nil {
		var verr *console.ValidationError
		switch {
		case errors.As(err, &verr):
			writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, verr.Error())
		case errors.Is(err, console.ErrForbidden):
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "insufficient permissions")
		case errors.Is(err, console.ErrRateLimited):
			writeError(w, r, http.StatusTooManyRequests, model.ErrCodeRateLimited, "execution rate limit exceeded")
		default:
			h.logger.Error("execute failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
			writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "execution failed")
		}
		return
	}

	writeJSON(w, r, http.StatusOK, result)
}
