package router

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"social-login-service/internal/health"
	"social-login-service/internal/http/handler"
	"social-login-service/internal/http/middleware"
	"social-login-service/internal/http/response"
	"social-login-service/internal/security"
)

type Dependencies struct {
	AuthHandler    *handler.AuthHandler
	UserHandler    *handler.UserHandler
	JWTManager     *security.JWTManager
	CORSOrigins    []string
	Readiness      *health.ProbeRunner
	Logger         *slog.Logger
	EnableOTelHTTP bool
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.StructuredRequestLogger(dep.Logger))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(dep.CORSOrigins))
	r.Use(middleware.BodyLimit(1 << 20))

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if dep.Readiness == nil {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": []any{}})
			return
		}
		ready, results := dep.Readiness.Ready(r.Context())
		if ready {
			response.JSON(w, r, http.StatusOK, map[string]any{"status": "ready", "checks": results})
			return
		}
		response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "dependencies are not ready", map[string]any{"checks": results})
	})

	r.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/login", dep.AuthHandler.Login)
		r.Get("/{provider}/callback", dep.AuthHandler.Callback)
		r.Post("/refresh", dep.AuthHandler.Refresh)
		r.With(middleware.AuthMiddleware(dep.JWTManager)).Post("/logout", dep.AuthHandler.Logout)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(dep.JWTManager))
		r.Get("/me", dep.UserHandler.Me)
		r.Get("/me/sessions", dep.UserHandler.Sessions)
		r.Delete("/me/sessions/{session_id}", dep.UserHandler.RevokeSession)
	})

	var h http.Handler = r
	if dep.EnableOTelHTTP {
		h = otelhttp.NewHandler(r, "http.server")
	}
	return h
}
