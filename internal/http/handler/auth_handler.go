package handler

import (
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"social-login-service/internal/http/middleware"
	"social-login-service/internal/http/response"
	"social-login-service/internal/observability"
	"social-login-service/internal/provider"
	"social-login-service/internal/security"
	"social-login-service/internal/service"
)

const (
	accessCookie  = "access_token"
	refreshCookie = "refresh_token"
)

// AuthHandler drives the browser-facing login flow and the token lifecycle
// endpoints.
type AuthHandler struct {
	logins       *service.LoginService
	cookieDomain string
	cookieSecure bool
	redirectURL  string
	logger       *slog.Logger
}

func NewAuthHandler(logins *service.LoginService, cookieDomain string, cookieSecure bool, redirectURL string, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		logins:       logins,
		cookieDomain: cookieDomain,
		cookieSecure: cookieSecure,
		redirectURL:  redirectURL,
		logger:       logger,
	}
}

// Login redirects the browser to the provider's authorization page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	providerName := providerParam(r)
	url, err := h.logins.LoginURL(r.Context(), providerName)
	if err != nil {
		if errors.Is(err, service.ErrUnknownProvider) {
			response.Error(w, r, http.StatusNotFound, "UNKNOWN_PROVIDER", "unsupported login provider", nil)
			return
		}
		h.logger.ErrorContext(r.Context(), "issue login url", "provider", providerName, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "could not start login", nil)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Callback completes the provider round trip. A provider error parameter
// short-circuits before any state or code handling.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	providerName := providerParam(r)
	q := r.URL.Query()

	if e := q.Get("error"); e != "" {
		observability.RecordAuthLogin(providerName, "denied")
		response.Error(w, r, http.StatusForbidden, "PROVIDER_REJECTED", "provider reported an authorization error", map[string]string{"error": e})
		return
	}

	res, err := h.logins.HandleCallback(r.Context(), providerName, q.Get("state"), q.Get("code"), r.UserAgent(), clientIP(r))
	if err != nil {
		h.writeCallbackError(w, r, providerName, err)
		return
	}

	security.SetTokenCookie(w, accessCookie, res.Tokens.AccessToken, res.Tokens.AccessExpiresAt, h.cookieDomain, h.cookieSecure)
	security.SetTokenCookie(w, refreshCookie, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt, h.cookieDomain, h.cookieSecure)
	observability.Audit(r, "auth.login", "provider", providerName, "user_id", res.User.ID)

	if h.redirectURL != "" {
		http.Redirect(w, r, h.redirectURL, http.StatusFound)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":               userView(res.User),
		"access_expires_at":  res.Tokens.AccessExpiresAt,
		"refresh_expires_at": res.Tokens.RefreshExpiresAt,
	})
}

func (h *AuthHandler) writeCallbackError(w http.ResponseWriter, r *http.Request, providerName string, err error) {
	switch {
	case errors.Is(err, service.ErrUnknownProvider):
		response.Error(w, r, http.StatusNotFound, "UNKNOWN_PROVIDER", "unsupported login provider", nil)
	case errors.Is(err, service.ErrInvalidState):
		response.Error(w, r, http.StatusForbidden, "INVALID_STATE", "login state is missing, expired, or already used", nil)
	case errors.Is(err, provider.ErrProviderRejected):
		response.Error(w, r, http.StatusForbidden, "PROVIDER_REJECTED", "provider rejected the authorization code", nil)
	case errors.Is(err, provider.ErrUpstreamUnavailable):
		response.Error(w, r, http.StatusBadGateway, "PROVIDER_UNAVAILABLE", "provider is unreachable", nil)
	case errors.Is(err, provider.ErrInvalidResponse):
		response.Error(w, r, http.StatusBadGateway, "PROVIDER_BAD_RESPONSE", "provider returned an unusable response", nil)
	default:
		h.logger.ErrorContext(r.Context(), "login callback failed", "provider", providerName, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "login failed", nil)
	}
}

// Refresh rotates the refresh token from the cookie into a fresh pair.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	raw := security.GetCookie(r, refreshCookie)
	if raw == "" {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing refresh token", nil)
		return
	}

	pair, err := h.logins.Refresh(r.Context(), raw)
	if err != nil {
		h.clearTokenCookies(w)
		switch {
		case errors.Is(err, security.ErrTokenExpired):
			response.Error(w, r, http.StatusUnauthorized, "TOKEN_EXPIRED", "refresh token expired", nil)
		case errors.Is(err, security.ErrInvalidToken):
			response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid refresh token", nil)
		case errors.Is(err, service.ErrSessionNotFound):
			response.Error(w, r, http.StatusUnauthorized, "SESSION_REVOKED", "session is no longer active", nil)
		default:
			h.logger.ErrorContext(r.Context(), "refresh failed", "error", err)
			response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "refresh failed", nil)
		}
		return
	}

	security.SetTokenCookie(w, accessCookie, pair.AccessToken, pair.AccessExpiresAt, h.cookieDomain, h.cookieSecure)
	security.SetTokenCookie(w, refreshCookie, pair.RefreshToken, pair.RefreshExpiresAt, h.cookieDomain, h.cookieSecure)
	observability.Audit(r, "auth.refresh", "user_id", pair.UserID)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"access_expires_at":  pair.AccessExpiresAt,
		"refresh_expires_at": pair.RefreshExpiresAt,
	})
}

// Logout revokes all of the caller's sessions and clears the cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
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
	if err := h.logins.Logout(r.Context(), userID); err != nil {
		h.logger.ErrorContext(r.Context(), "logout failed", "user_id", userID, "error", err)
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "logout failed", nil)
		return
	}
	h.clearTokenCookies(w)
	observability.Audit(r, "auth.logout", "user_id", userID)
	response.JSON(w, r, http.StatusOK, map[string]any{"logged_out": true})
}

func (h *AuthHandler) clearTokenCookies(w http.ResponseWriter) {
	security.ClearCookie(w, accessCookie, h.cookieDomain, h.cookieSecure)
	security.ClearCookie(w, refreshCookie, h.cookieDomain, h.cookieSecure)
}

func providerParam(r *http.Request) string {
	return chi.URLParam(r, "provider")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
