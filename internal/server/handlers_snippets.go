package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/gestio-app/gestio/internal/console"
	"github.com/gestio-app/gestio/internal/model"
	"github.com/gestio-app/gestio/internal/storage"
)

// HandleListSnippets handles GET /admin/snippets.
func (h *Handlers) HandleListSnippets(w http.ResponseWriter, r *http.Request) {
	snippets, err := h.console.ListSnippets(r.Context())
	if err != nil {
		h.logger.Error("list snippets", "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, "failed to list snippets")
		return
	}
	if snippets == nil {
		snippets = []model.Snippet{}
	}
	writeJSON(w, r, http.StatusOK, model.SnippetsResponse{Snippets: snippets})
}

// HandleGetSnippet handles GET /admin/snippets/{id}.
func (h *Handlers) HandleGetSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.snippetID(w, r)
	if !ok {
		return
	}

	snip, err := h.console.GetSnippet(r.Context(), id)
	if err != nil {
		h.writeSnippetError(w, r, err, "failed to load snippet")
		return
	}
	writeJSON(w, r, http.StatusOK, model.SnippetResponse{Snippet: snip})
}

// HandleCreateSnippet handles POST /admin/snippets.
func (h *Handlers) HandleCreateSnippet(w http.ResponseWriter, r *http.Request) {
	var in model.SnippetInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	snip, err := h.console.CreateSnippet(r.Context(), h.principal(r), in)
	if err != nil {
		h.writeSnippetError(w, r, err, "failed to create snippet")
		return
	}
	writeJSON(w, r, http.StatusCreated, model.SnippetResponse{Snippet: snip})
}

// HandleUpdateSnippet handles PUT /admin/snippets/{id}.
func (h *Handlers) HandleUpdateSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.snippetID(w, r)
	if !ok {
		return
	}

	var in model.SnippetInput
	if err := decodeJSON(w, r, &in, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}

	snip, err := h.console.UpdateSnippet(r.Context(), h.principal(r), id, in)
	if err != nil {
		h.writeSnippetError(w, r, err, "failed to update snippet")
		return
	}
	writeJSON(w, r, http.StatusOK, model.SnippetResponse{Snippet: snip})
}

// HandleDeleteSnippet handles DELETE /admin/snippets/{id}.
func (h *Handlers) HandleDeleteSnippet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.snippetID(w, r)
	if !ok {
		return
	}

	if err := h.console.DeleteSnippet(r.Context(), h.principal(r), id); err != nil {
		h.writeSnippetError(w, r, err, "failed to delete snippet")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// snippetID parses the {id} path segment, writing a 400 on failure.
func (h *Handlers) snippetID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, "invalid snippet id")
		return uuid.Nil, false
	}
	return id, true
}

// principal reconstructs the acting principal from validated JWT claims.
func (h *Handlers) principal(r *http.Request) model.Principal {
	claims := ClaimsFromContext(r.Context())
	if claims == nil {
		return model.Principal{}
	}
	return model.Principal{ID: claims.PrincipalID, Email: claims.Email, Role: claims.Role}
}

// writeSnippetError maps console and storage errors to API responses.
func (h *Handlers) writeSnippetError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *console.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, model.ErrCodeValidation, verr.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "snippet not found")
	case errors.Is(err, console.ErrForbidden):
		writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "insufficient permissions")
	default:
		h.logger.Error("snippet operation failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternal, fallback)
	}
}
