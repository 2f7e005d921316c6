package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/blockpass/accounts-api/internal/auth"
	"github.com/blockpass/accounts-api/internal/config"
	"github.com/blockpass/accounts-api/internal/http/handlers"
	"github.com/blockpass/accounts-api/internal/middleware"
	"github.com/blockpass/accounts-api/internal/models"
	"github.com/blockpass/accounts-api/internal/storage"
)

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wires up middleware, routes, and returns a ready server. It fails if
// the token manager cannot be constructed (missing signing secret).
func New(cfg config.Config, store storage.AccountStore, log *slog.Logger) (*Server, error) {
	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		return nil, err
	}

	router := NewRouter(cfg, store, tokens, log)
	handler := middleware.CORS(cfg.CORSOrigins, middleware.Logging(log, router))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer}, nil
}

// NewRouter builds the route table. Split out from New so tests can exercise
// the full routing and middleware chain without a listening socket.
func NewRouter(cfg config.Config, store storage.AccountStore, tokens *auth.TokenManager, log *slog.Logger) *mux.Router {
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	accounts := handlers.NewAccountHandler(store, hasher, tokens, log)
	health := handlers.NewHealthHandler(time.Now())
	authn := middleware.NewAuthenticator(tokens, store, log)

	adminOnly := middleware.RequireRole(models.RoleAdmin)
	anyRole := middleware.RequireRole(models.Roles...)

	router := mux.NewRouter()
	router.HandleFunc("/health", health.Handle).Methods(http.MethodGet)

	api := router.PathPrefix("/api/accounts").Subrouter()
	api.HandleFunc("", accounts.Create).Methods(http.MethodPost)
	api.HandleFunc("/login", accounts.Login).Methods(http.MethodPost)
	api.Handle("", authn.Authenticate(adminOnly(http.HandlerFunc(accounts.List)))).Methods(http.MethodGet)
	api.Handle("/{id}", authn.Authenticate(anyRole(http.HandlerFunc(accounts.Get)))).Methods(http.MethodGet)
	api.Handle("/{id}", authn.Authenticate(adminOnly(http.HandlerFunc(accounts.Update)))).Methods(http.MethodPut)
	api.Handle("/{id}", authn.Authenticate(adminOnly(http.HandlerFunc(accounts.Delete)))).Methods(http.MethodDelete)

	return router
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
