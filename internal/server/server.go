package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hongminglow/rdbs-admin-be/internal/auth"
	"github.com/hongminglow/rdbs-admin-be/internal/backend"
	"github.com/hongminglow/rdbs-admin-be/internal/config"
	"github.com/hongminglow/rdbs-admin-be/internal/http/handlers"
	"github.com/hongminglow/rdbs-admin-be/internal/metrics"
	"github.com/hongminglow/rdbs-admin-be/internal/middleware"
	"github.com/hongminglow/rdbs-admin-be/internal/session"
	"github.com/hongminglow/rdbs-admin-be/internal/storage"
)

// ProxyPrefix is where backend resource calls are mounted.
const ProxyPrefix = "/api/proxy"

// Server wraps an http.Server with configured routes.
type Server struct {
	inner   *http.Server
	handler http.Handler
}

// New wires up middleware, routes, and returns a ready server.
func New(cfg config.Config, store storage.Store, log *zap.Logger) (*Server, error) {
	if log == nil {
		log = zap.NewNop()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	client := backend.NewClient(cfg.APIBaseURL, cfg.Channel, cfg.BackendTimeout, log)
	tokens := auth.NewTokenManager(cfg.SessionSecret, cfg.SessionIssuer, cfg.SessionTTL, cfg.SessionRefreshAge)
	sessions := session.NewManager(tokens, session.CookieConfig{
		Name:   cfg.CookieName,
		Path:   "/",
		Secure: cfg.CookieSecure,
	}, session.Options{
		Authenticator: client,
		Refresher:     client,
		Permissions:   client,
		Logger:        log,
		LoginPath:     cfg.LoginPath,
	})

	app := mux.NewRouter()
	handlers.NewAuthHandler(store, cfg.LoginPath, log).Register(app, cfg.AuthBasePath)
	handlers.NewLoginPageHandler(cfg.LoginPath, cfg.AuthBasePath+"/login", log).Register(app)
	proxy, err := handlers.NewProxyHandler(cfg.APIBaseURL, cfg.Channel, cfg.LoginPath, store, log)
	if err != nil {
		return nil, err
	}
	proxy.Register(app, ProxyPrefix)

	root := mux.NewRouter()
	handlers.NewHealthHandler(time.Now(), cfg.AppEnv).Register(root)
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})).Methods(http.MethodGet)
	root.PathPrefix("/").Handler(middleware.Session(sessions, log, app))

	handler := middleware.CORS(cfg.CORSOrigins, middleware.Logging(log, root))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddress(),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.BackendTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{inner: httpServer, handler: handler}, nil
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP traffic.
func (s *Server) Start() error {
	return s.inner.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
