// Package integration exercises the whole login flow end to end: real Kakao
// adapter against fake provider endpoints, Redis-backed state store, sqlite
// persistence, and the full HTTP router.
package integration

import (
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
	"social-login-service/internal/http/router"
	"social-login-service/internal/provider"
	"social-login-service/internal/repository"
	"social-login-service/internal/security"
	"social-login-service/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fixture struct {
	handler    http.Handler
	tokenSrv   *httptest.Server
	profileSrv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse token form: %v", err)
		}
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"provider-access","token_type":"bearer","expires_in":21599}`))
	}))
	t.Cleanup(tokenSrv.Close)

	profileSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer provider-access" {
			t.Errorf("unexpected authorization header %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id": 4242, "properties": {"nickname": "Alice", "profile_image": "http://img.test/a.png"}}`))
	}))
	t.Cleanup(profileSrv.Close)

	kakao := provider.NewKakao(provider.Options{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost/auth/kakao/callback",
		TokenURL:     tokenSrv.URL,
		ProfileURL:   profileSrv.URL,
	})

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

	jwtMgr := security.NewJWTManager("social-login-service", "social-login-clients",
		"access-secret-0123456789abcdef0123456789abcdef",
		"refresh-secret-0123456789abcdef0123456789abcdef")
	users := service.NewUserService(repository.NewUserRepository(db))
	tokens := service.NewTokenService(jwtMgr, repository.NewSessionRepository(db), "pepper", 15*time.Minute, 720*time.Hour)
	sessions := service.NewSessionService(repository.NewSessionRepository(db))
	states := service.NewRedisStateStore(rdb, 10*time.Minute)
	logins := service.NewLoginService([]provider.Provider{kakao}, users, tokens, states, nil, nil)

	h := router.NewRouter(router.Dependencies{
		AuthHandler: handler.NewAuthHandler(logins, "", false, "", nil),
		UserHandler: handler.NewUserHandler(users, sessions),
		JWTManager:  jwtMgr,
	})
	return &fixture{handler: h, tokenSrv: tokenSrv, profileSrv: profileSrv}
}

func (f *fixture) do(method, target string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "203.0.113.9:4321"
	req.Header.Set("User-Agent", "integration-test")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) login(t *testing.T, code string) *httptest.ResponseRecorder {
	t.Helper()
	rr := f.do(http.MethodGet, "/auth/kakao/login", nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("login redirect expected 302, got %d", rr.Code)
	}
	loc, err := url.Parse(rr.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse authorize url: %v", err)
	}
	if !strings.Contains(loc.Host, "kauth.kakao.com") {
		t.Fatalf("expected redirect to kakao, got %s", loc.Host)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("authorize url must carry state")
	}
	return f.do(http.MethodGet, "/auth/kakao/callback?state="+url.QueryEscape(state)+"&code="+code, nil)
}

func tokenCookies(t *testing.T, rr *httptest.ResponseRecorder) []*http.Cookie {
	t.Helper()
	var out []*http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "access_token" || c.Name == "refresh_token" {
			out = append(out, c)
		}
	}
	if len(out) != 2 {
		t.Fatalf("expected both token cookies, got %d", len(out))
	}
	return out
}

func TestLoginFlowEndToEnd(t *testing.T) {
	f := newFixture(t)

	rr := f.login(t, "good-code")
	if rr.Code != http.StatusOK {
		t.Fatalf("callback expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	cookies := tokenCookies(t, rr)

	var env struct {
		Data struct {
			User struct {
				ID       uint   `json:"id"`
				Provider string `json:"provider"`
				Nickname string `json:"nickname"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&env); err != nil {
		t.Fatalf("decode callback body: %v", err)
	}
	if env.Data.User.Provider != "kakao" || env.Data.User.Nickname != "Alice" {
		t.Fatalf("unexpected user in callback payload: %+v", env.Data.User)
	}

	rr = f.do(http.MethodGet, "/me", cookies)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"nickname":"Alice"`) {
		t.Fatalf("/me failed: %d %s", rr.Code, rr.Body.String())
	}

	rr = f.do(http.MethodGet, "/me/sessions", cookies)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"current":true`) {
		t.Fatalf("/me/sessions failed: %d %s", rr.Code, rr.Body.String())
	}
}

func TestLoginFlowSecondLoginReusesAccount(t *testing.T) {
	f := newFixture(t)

	first := f.login(t, "good-code")
	if first.Code != http.StatusOK {
		t.Fatalf("first login: %d", first.Code)
	}
	second := f.login(t, "good-code")
	if second.Code != http.StatusOK {
		t.Fatalf("second login: %d", second.Code)
	}

	var firstEnv, secondEnv struct {
		Data struct {
			User struct {
				ID uint `json:"id"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(first.Body).Decode(&firstEnv); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.NewDecoder(second.Body).Decode(&secondEnv); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if firstEnv.Data.User.ID != secondEnv.Data.User.ID {
		t.Fatalf("same kakao identity must reuse the account, got %d and %d", firstEnv.Data.User.ID, secondEnv.Data.User.ID)
	}
}

func TestLoginFlowRejectedCode(t *testing.T) {
	f := newFixture(t)

	rr := f.login(t, "bad-code")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for rejected code, got %d body=%s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"code":"PROVIDER_REJECTED"`) {
		t.Fatalf("expected PROVIDER_REJECTED envelope, got %s", rr.Body.String())
	}
}

func TestLoginFlowRefreshRotation(t *testing.T) {
	f := newFixture(t)

	rr := f.login(t, "good-code")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d", rr.Code)
	}
	cookies := tokenCookies(t, rr)

	rr = f.do(http.MethodPost, "/auth/refresh", cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rotated := tokenCookies(t, rr)

	// old refresh token is dead, rotated one works
	rr = f.do(http.MethodPost, "/auth/refresh", cookies)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh expected 401, got %d", rr.Code)
	}
	rr = f.do(http.MethodPost, "/auth/refresh", rotated)
	if rr.Code != http.StatusOK {
		t.Fatalf("rotated refresh expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestLoginFlowLogout(t *testing.T) {
	f := newFixture(t)

	rr := f.login(t, "good-code")
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d", rr.Code)
	}
	cookies := tokenCookies(t, rr)

	rr = f.do(http.MethodPost, "/auth/logout", cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	rr = f.do(http.MethodPost, "/auth/refresh", cookies)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout expected 401, got %d", rr.Code)
	}
}
