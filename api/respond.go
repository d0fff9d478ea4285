package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/garnizeh/contentcrm/internal/schema"
	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/repository"
)

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response", slog.Any("err", err))
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workflow.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrIneligibleAssignee), errors.Is(err, workflow.ErrInvalidPayload),
		errors.Is(err, users.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, workflow.ErrInvalidTransition), errors.Is(err, workflow.ErrDuplicateCode),
		errors.Is(err, repository.ErrConflict), errors.Is(err, users.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrNotFound), errors.Is(err, users.ErrNotFound), errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, users.ErrInvalidCredentials), errors.Is(err, users.ErrNotApproved):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as JSON. Internal failures are logged and hidden.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
		writeJSON(w, errorResponse{Error: "internal error"}, status)
		return
	}
	writeJSON(w, errorResponse{Error: err.Error()}, status)
}

// writeValidation answers 422 with the schema problems, or 400 for bodies
// that are not JSON.
func writeValidation(w http.ResponseWriter, err error) {
	var ve *schema.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, errorResponse{Error: "invalid request", Problems: ve.Problems}, http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, errorResponse{Error: "invalid request"}, http.StatusBadRequest)
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	return id, err == nil && id > 0
}

// pagination reads limit and offset, clamping limit to (0, 500].
func pagination(r *http.Request, def int) (limit, offset int) {
	q := r.URL.Query()
	limit = def
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	if o := q.Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
