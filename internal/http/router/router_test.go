package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"social-login-service/internal/domain"
	"social-login-service/internal/http/handler"
	"social-login-service/internal/provider"
	"social-login-service/internal/repository"
	"social-login-service/internal/security"
	"social-login-service/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type stubProvider struct{}

func (stubProvider) Name() string { return "kakao" }

func (stubProvider) AuthCodeURL(state string) string {
	return "https://kauth.kakao.test/authorize?state=" + url.QueryEscape(state)
}

func (stubProvider) Exchange(_ context.Context, code, _ string) (*oauth2.Token, error) {
	if code != "good-code" {
		return nil, provider.ErrProviderRejected
	}
	return &oauth2.Token{AccessToken: "upstream"}, nil
}

func (stubProvider) FetchProfile(context.Context, *oauth2.Token) (*provider.Profile, error) {
	return &provider.Profile{ExternalID: "kakao-42", Nickname: "Alice", ProfileImageURL: "http://img.test/a.png"}, nil
}

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&domain.User{}, &domain.Session{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	jwtMgr := security.NewJWTManager("iss", "aud",
		"abcdefghijklmnopqrstuvwxyz123456",
		"abcdefghijklmnopqrstuvwxyz654321")
	users := service.NewUserService(repository.NewUserRepository(db))
	tokens := service.NewTokenService(jwtMgr, repository.NewSessionRepository(db), "pepper", 15*time.Minute, 720*time.Hour)
	sessions := service.NewSessionService(repository.NewSessionRepository(db))
	states := service.NewRedisStateStore(rdb, 10*time.Minute)
	logins := service.NewLoginService([]provider.Provider{stubProvider{}}, users, tokens, states, nil, nil)

	return NewRouter(Dependencies{
		AuthHandler: handler.NewAuthHandler(logins, "", false, "", nil),
		UserHandler: handler.NewUserHandler(users, sessions),
		JWTManager:  jwtMgr,
		CORSOrigins: []string{"http://localhost:3000"},
	})
}

func perform(r http.Handler, method, target string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "203.0.113.9:4321"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func cookieByName(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// loginAndGetCookies walks the full redirect/callback flow against the stub
// provider and returns the issued credential cookies.
func loginAndGetCookies(t *testing.T, r http.Handler) []*http.Cookie {
	t.Helper()
	rr := perform(r, http.MethodGet, "/auth/kakao/login", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("login expected 302, got %d", rr.Code)
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse redirect: %v", err)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("authorization redirect must carry a state")
	}

	rr = perform(r, http.MethodGet, "/auth/kakao/callback?state="+url.QueryEscape(state)+"&code=good-code", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("callback expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	access := cookieByName(rr, "access_token")
	refresh := cookieByName(rr, "refresh_token")
	if access == nil || refresh == nil {
		t.Fatal("callback must set both token cookies")
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatal("token cookies must be http-only")
	}
	return []*http.Cookie{access, refresh}
}

func TestRouterHealthEndpoints(t *testing.T) {
	r := newTestHandler(t)

	rr := perform(r, http.MethodGet, "/health/live", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ok"`) {
		t.Fatalf("live probe failed: %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(r, http.MethodGet, "/health/ready", nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"status":"ready"`) {
		t.Fatalf("ready probe failed: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRouterUnknownProvider(t *testing.T) {
	r := newTestHandler(t)

	rr := perform(r, http.MethodGet, "/auth/github/login", nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown provider, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"UNKNOWN_PROVIDER"`) {
		t.Fatalf("expected UNKNOWN_PROVIDER envelope, got %s", rr.Body.String())
	}
}

func TestRouterCallbackWithForgedState(t *testing.T) {
	r := newTestHandler(t)

	rr := perform(r, http.MethodGet, "/auth/kakao/callback?state=forged&code=good-code", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for forged state, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"INVALID_STATE"`) {
		t.Fatalf("expected INVALID_STATE envelope, got %s", rr.Body.String())
	}
}

func TestRouterCallbackProviderErrorParam(t *testing.T) {
	r := newTestHandler(t)

	rr := perform(r, http.MethodGet, "/auth/kakao/callback?error=access_denied", nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for provider error param, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"PROVIDER_REJECTED"`) {
		t.Fatalf("expected PROVIDER_REJECTED envelope, got %s", rr.Body.String())
	}
}

func TestRouterFullLoginFlow(t *testing.T) {
	r := newTestHandler(t)
	cookies := loginAndGetCookies(t, r)

	rr := perform(r, http.MethodGet, "/me", cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("/me expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"nickname":"Alice"`) {
		t.Fatalf("expected user payload, got %s", rr.Body.String())
	}

	rr = perform(r, http.MethodGet, "/me/sessions", cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("/me/sessions expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"current":true`) {
		t.Fatalf("expected the current session to be flagged, got %s", rr.Body.String())
	}
}

func TestRouterMeRequiresAuth(t *testing.T) {
	r := newTestHandler(t)

	rr := perform(r, http.MethodGet, "/me", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", rr.Code)
	}
}

func TestRouterRefreshRotatesAndInvalidatesOldToken(t *testing.T) {
	r := newTestHandler(t)
	cookies := loginAndGetCookies(t, r)

	rr := perform(r, http.MethodPost, "/auth/refresh", cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rotated := cookieByName(rr, "refresh_token")
	if rotated == nil || rotated.Value == cookies[1].Value {
		t.Fatal("refresh must rotate the refresh token cookie")
	}

	// the pre-rotation cookie is now dead
	rr = perform(r, http.MethodPost, "/auth/refresh", cookies)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh token expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"code":"SESSION_REVOKED"`) {
		t.Fatalf("expected SESSION_REVOKED envelope, got %s", rr.Body.String())
	}
}

func TestRouterLogoutRevokesSessions(t *testing.T) {
	r := newTestHandler(t)
	cookies := loginAndGetCookies(t, r)

	rr := perform(r, http.MethodPost, "/auth/logout", cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if c := cookieByName(rr, "access_token"); c == nil || c.MaxAge != -1 {
		t.Fatal("logout must clear the access token cookie")
	}

	rr = perform(r, http.MethodPost, "/auth/refresh", cookies)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout expected 401, got %d", rr.Code)
	}
}

func TestRouterRevokeSingleSession(t *testing.T) {
	r := newTestHandler(t)
	cookies := loginAndGetCookies(t, r)

	rr := perform(r, http.MethodGet, "/me/sessions", cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("/me/sessions expected 200, got %d", rr.Code)
	}
	var env struct {
		Data struct {
			Sessions []struct {
				ID uint `json:"id"`
			} `json:"sessions"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode sessions: %v", err)
	}
	if len(env.Data.Sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(env.Data.Sessions))
	}

	rr = perform(r, http.MethodDelete, fmt.Sprintf("/me/sessions/%d", env.Data.Sessions[0].ID), cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("revoke expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}

	// the revoked session's refresh token no longer rotates
	rr = perform(r, http.MethodPost, "/auth/refresh", cookies)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after revoke expected 401, got %d", rr.Code)
	}
}

func TestRouterSecurityHeaders(t *testing.T) {
	r := newTestHandler(t)

	rr := perform(r, http.MethodGet, "/health/live", nil)
	if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("expected nosniff header")
	}
	if rr.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatal("expected frame deny header")
	}
}
