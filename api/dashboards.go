package api

import (
	"net/http"
	"time"

	"github.com/garnizeh/contentcrm/internal/dashboard"
)

type DashboardHandler struct {
	agg *dashboard.Aggregator
	now func() time.Time
}

func NewDashboardHandler(agg *dashboard.Aggregator) *DashboardHandler {
	return &DashboardHandler{agg: agg, now: func() time.Time { return time.Now().UTC() }}
}

// respond writes v or the error from the aggregator.
func respond[T any](w http.ResponseWriter, r *http.Request, v T, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, v, http.StatusOK)
}

func (h *DashboardHandler) Allocater(w http.ResponseWriter, r *http.Request) {
	b, err := h.agg.AllocaterBoard(r.Context())
	respond(w, r, b, err)
}

func (h *DashboardHandler) InProgress(w http.ResponseWriter, r *http.Request) {
	v, err := h.agg.InProgress(r.Context())
	respond(w, r, v, err)
}

func (h *DashboardHandler) Assigned(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.agg.Assigned(r.Context())
	respond(w, r, nonNil(jobs), err)
}

func (h *DashboardHandler) Completed(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.agg.Completed(r.Context())
	respond(w, r, nonNil(jobs), err)
}

func (h *DashboardHandler) AllJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r, 50)
	jobs, total, err := h.agg.AllJobs(r.Context(), limit, offset)
	respond(w, r, map[string]any{"total": total, "limit": limit, "offset": offset, "items": nonNil(jobs)}, err)
}

func (h *DashboardHandler) Writer(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	v, err := h.agg.WriterHome(r.Context(), actor.UserID, h.now())
	respond(w, r, v, err)
}

func (h *DashboardHandler) Process(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	v, err := h.agg.ProcessBoard(r.Context(), actor.UserID, h.now())
	respond(w, r, v, err)
}

func (h *DashboardHandler) Marketing(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	v, err := h.agg.Marketing(r.Context(), actor.UserID)
	respond(w, r, v, err)
}

func (h *DashboardHandler) Accounts(w http.ResponseWriter, r *http.Request) {
	v, err := h.agg.Accounts(r.Context())
	respond(w, r, v, err)
}

func (h *DashboardHandler) SuperAdmin(w http.ResponseWriter, r *http.Request) {
	v, err := h.agg.SuperAdmin(r.Context())
	respond(w, r, v, err)
}

func (h *DashboardHandler) Anomalies(w http.ResponseWriter, r *http.Request) {
	v, err := h.agg.Anomalies(r.Context())
	respond(w, r, nonNil(v), err)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

