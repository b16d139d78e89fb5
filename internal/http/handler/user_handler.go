package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"social-login-service/internal/domain"
	"social-login-service/internal/http/middleware"
	"social-login-service/internal/http/response"
	"social-login-service/internal/service"
)

type UserHandler struct {
	users    *service.UserService
	sessions *service.SessionService
}

func NewUserHandler(users *service.UserService, sessions *service.SessionService) *UserHandler {
	return &UserHandler{users: users, sessions: sessions}
}

type UserView struct {
	ID              uint      `json:"id"`
	Provider        string    `json:"provider"`
	Nickname        string    `json:"nickname"`
	ProfileImageURL string    `json:"profile_image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func userView(u *domain.User) UserView {
	return UserView{
		ID:              u.ID,
		Provider:        u.Provider,
		Nickname:        u.Nickname,
		ProfileImageURL: u.ProfileImageURL,
		CreatedAt:       u.CreatedAt,
	}
}

func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
		return
	}
	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "USER_NOT_FOUND", "user no longer exists", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not load user", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, userView(user))
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
		return
	}
	views, err := h.sessions.List(r.Context(), userID, claims.ID)
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not list sessions", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"sessions": views})
}

// RevokeSession deletes one of the caller's sessions by ID.
func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
		return
	}
	sessionID, err := strconv.ParseUint(chi.URLParam(r, "session_id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid session id", nil)
		return
	}
	if err := h.sessions.Revoke(r.Context(), uint(sessionID), userID); err != nil {
		if errors.Is(err, service.ErrSessionNotFound) {
			response.Error(w, r, http.StatusNotFound, "SESSION_NOT_FOUND", "session does not exist", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not revoke session", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": true})
}
