package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/pkg/models"
)

// UsersHandler serves the admin account endpoints.
type UsersHandler struct {
	users *users.Service
}

func NewUsersHandler(s *users.Service) *UsersHandler {
	return &UsersHandler{users: s}
}

type createUserRequest struct {
	Name     string      `json:"name"`
	Email    string      `json:"email"`
	Phone    string      `json:"phone"`
	Password string      `json:"password"`
	Role     models.Role `json:"role"`
	Approved bool        `json:"approved"`
}

type setRoleRequest struct {
	Role models.Role `json:"role"`
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		list []models.User
		err  error
	)
	if role := r.URL.Query().Get("role"); role != "" {
		list, err = h.users.ApprovedByRole(r.Context(), models.Role(role))
	} else {
		list, err = h.users.List(r.Context())
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.User{}
	}
	writeJSON(w, list, http.StatusOK)
}

func (h *UsersHandler) Pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.users.Pending(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []models.User{}
	}
	writeJSON(w, list, http.StatusOK)
}

func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	u, err := h.users.Create(r.Context(), users.NewUser{
		Name: req.Name, Email: req.Email, Phone: req.Phone, Password: req.Password, Role: req.Role, Approved: req.Approved,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, u, http.StatusCreated)
}

func (h *UsersHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if err := h.users.Approve(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("user approved", slog.Int64("user_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *UsersHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if err := h.users.SetRole(r.Context(), id, req.Role); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete rejects a pending sign-up or removes an account.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}
	if actor, _ := ActorFromContext(r.Context()); actor.UserID == id {
		writeJSON(w, errorResponse{Error: "cannot delete your own account"}, http.StatusConflict)
		return
	}
	if err := h.users.Reject(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
