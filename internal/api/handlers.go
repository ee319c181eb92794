package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vbsb/internal/apperr"
)

// Handler holds API route handlers.
type Handler struct {
	svc *Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Status handles GET /api/status.
//
//	@Summary		Tracked units and the last build cycle
//	@Tags			status
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

// ListBuilds handles GET /api/builds.
//
//	@Summary		Recorded builds, newest first
//	@Tags			builds
//	@Produce		json
//	@Param			limit	query		int	false	"Max results"
//	@Success		200		{object}	BuildListResponse
//	@Security		BearerAuth
//	@Router			/builds [get]
func (h *Handler) ListBuilds(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	builds, err := h.svc.Builds(r.Context(), limit)
	if err != nil {
		writeInternal(w, "list builds failed", err)
		return
	}
	writeJSON(w, http.StatusOK, BuildListResponse{Builds: builds})
}

// BuildFailures handles GET /api/builds/{id}/failures.
//
//	@Summary		Failures reported by one build
//	@Tags			builds
//	@Produce		json
//	@Param			id	path		int	true	"Build id"
//	@Success		200	{object}	FailureListResponse
//	@Failure		400	{object}	errResponse
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/builds/{id}/failures [get]
func (h *Handler) BuildFailures(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid build id"))
		return
	}
	failures, err := h.svc.Failures(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound), errors.Is(err, ErrHistoryDisabled):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		default:
			writeInternal(w, "build failures failed", err, slog.Int64("id", id))
		}
		return
	}
	writeJSON(w, http.StatusOK, FailureListResponse{BuildID: id, Failures: failures})
}
