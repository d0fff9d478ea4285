package api

import (
	"net/http"

	"github.com/garnizeh/contentcrm/internal/workflow"
	"github.com/garnizeh/contentcrm/pkg/models"
)

type NotificationsHandler struct {
	engine *workflow.Engine
}

func NewNotificationsHandler(engine *workflow.Engine) *NotificationsHandler {
	return &NotificationsHandler{engine: engine}
}

func (h *NotificationsHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	limit, _ := pagination(r, 50)
	list, err := h.engine.Notifications(r.Context(), actor.UserID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.Notification{}
	}
	unread, err := h.engine.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"unread": unread, "items": list}, http.StatusOK)
}

func (h *NotificationsHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	n, err := h.engine.UnreadCount(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]int64{"unread": n}, http.StatusOK)
}

func (h *NotificationsHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}
	if err := h.engine.MarkRead(r.Context(), actor.UserID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *NotificationsHandler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	n, err := h.engine.MarkAllRead(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, map[string]int64{"marked": n}, http.StatusOK)
}
