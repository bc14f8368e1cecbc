package api

import (
	"net/http"

	"github.com/taskscope/scheduler/internal/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

// NewRouter wires the admin HTTP surface: public auth/health routes, and
// the tenant-scoped settings/state/command routes behind AuthMiddleware.
func NewRouter(h *Handler, auth *middleware.AuthMiddleware) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	mux.Handle("GET /api/v1/tenants/{tenant}/tasks", auth.Authenticate(http.HandlerFunc(h.GetStates)))
	mux.Handle("GET /api/v1/tenants/{tenant}/tasks/{task}/settings", auth.Authenticate(http.HandlerFunc(h.GetSettings)))
	mux.Handle("PUT /api/v1/tenants/{tenant}/tasks/{task}/settings", auth.Authenticate(auth.RequireAdmin(http.HandlerFunc(h.PutSettings))))
	mux.Handle("GET /api/v1/tenants/{tenant}/tasks/{task}/state", auth.Authenticate(http.HandlerFunc(h.GetState)))
	mux.Handle("GET /api/v1/tenants/{tenant}/tasks/{task}/history", auth.Authenticate(http.HandlerFunc(h.GetHistory)))
	mux.Handle("POST /api/v1/tenants/{tenant}/tasks/{task}/command", auth.Authenticate(auth.RequireAdmin(http.HandlerFunc(h.PostCommand))))

	return middleware.CORS(middleware.JSON(middleware.Logger(mux)))
}
