package httpapi

import (
	"crypto/rsa"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"

	"github.com/smartfactory/agent-service/internal/config"
	"github.com/smartfactory/agent-service/internal/observability"
)

// NewRouter creates the HTTP router
func NewRouter(h *Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)

	// Public endpoints
	r.Get("/health", h.Health)
	r.Handle("/metrics", observability.Handler())

	pubKey, err := loadRSAPublicKey(cfg.JWTPublicKeyPath)
	if err != nil {
		// Routes stay open when no key is configured, which is the local
		// development setup. Production deployments mount the key.
		slog.Warn("JWT public key not loaded, requests are unauthenticated", "path", cfg.JWTPublicKeyPath, "error", err)
		pubKey = nil
	}

	// Protected routes
	r.Group(func(r chi.Router) {
		if pubKey != nil {
			r.Use(JWTAuthMiddleware(pubKey))
		}

		r.Get("/api/agent/conversations", h.ListConversations)
		r.Post("/api/agent/conversations", h.CreateConversation)
		r.Get("/api/agent/conversations/{id}", h.GetConversation)
		r.Put("/api/agent/conversations/{id}", h.UpdateConversation)
		r.Delete("/api/agent/conversations/{id}", h.DeleteConversation)
		r.Get("/api/agent/devices", h.ListDevices)
		r.Get("/api/agent/tools", h.ListTools)

		// WebSocket endpoint
		r.Get("/ws/agent", h.HandleWebSocket)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		if pubKey != nil {
			r.Use(JWTAuthMiddleware(pubKey))
			r.Use(RequireRoleMiddleware("admin"))
		}

		r.Get("/api/agent/admin/status", h.AdminStatus)
	})

	return r
}

func loadRSAPublicKey(path string) (*rsa.PublicKey, error) {
	keyData, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return jwt.ParseRSAPublicKeyFromPEM(keyData)
}

// CORSMiddleware handles CORS
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
