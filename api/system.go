package api

import (
	"context"
	"net/http"
)

const serviceName = "contentcrm"

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type SystemHandler struct {
	db Pinger
}

func NewSystemHandler(db Pinger) *SystemHandler {
	return &SystemHandler{db: db}
}

// HealthHandler answers 503 while the store is unreachable.
func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			logger.Error("health: store unreachable", "err", err)
			writeJSON(w, map[string]string{"status": "degraded", "service": serviceName}, http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, map[string]string{"status": "ok", "service": serviceName}, http.StatusOK)
}

func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"version": version, "buildTime": buildTime, "service": serviceName}, http.StatusOK)
	}
}
