package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/garnizeh/contentcrm/internal/users"
	"github.com/garnizeh/contentcrm/pkg/models"
)

type AuthHandler struct {
	users         *users.Service
	jwtSecret     string
	tokenDuration time.Duration
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(s *users.Service, jwtSecret string, tokenDuration time.Duration) *AuthHandler {
	return &AuthHandler{users: s, jwtSecret: jwtSecret, tokenDuration: tokenDuration}
}

type signupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type signinRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type signupResponse struct {
	User    *models.User `json:"user"`
	Message string       `json:"message"`
}

// Signup registers an unapproved marketing account. No token is issued until
// an admin approves it.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request body"}, http.StatusBadRequest)
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, errorResponse{Error: "missing fields"}, http.StatusBadRequest)
		return
	}

	u, err := h.users.Register(r.Context(), users.NewUser{Name: req.Name, Email: req.Email, Phone: req.Phone, Password: req.Password})
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.Info("user registered", slog.Int64("user_id", u.ID))

	writeJSON(w, signupResponse{User: u, Message: "registration received; wait for approval"}, http.StatusCreated)
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, errorResponse{Error: "invalid request body"}, http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeJSON(w, errorResponse{Error: "missing fields"}, http.StatusBadRequest)
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	tokenStr, err := h.issueToken(u)
	if err != nil {
		logger.Error("sign token", slog.Int64("user_id", u.ID), slog.Any("err", err))
		writeJSON(w, errorResponse{Error: "internal error"}, http.StatusInternalServerError)
		return
	}

	writeJSON(w, authResponse{Token: tokenStr, User: u}, http.StatusOK)
}

// Signout only acknowledges; tokens are stateless and expire on their own.
func (h *AuthHandler) Signout(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"message": "signed out"}, http.StatusOK)
}

// Me returns the signed-in account.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	u, err := h.users.Get(r.Context(), actor.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, u, http.StatusOK)
}

func (h *AuthHandler) issueToken(u *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": u.ID,
		"role":    string(u.Role),
		"email":   u.Email,
		"exp":     time.Now().Add(h.tokenDuration).Unix(),
	})
	return token.SignedString([]byte(h.jwtSecret))
}
