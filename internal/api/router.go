package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"aither-flow/internal/conductor"
	"aither-flow/internal/config"
	"aither-flow/internal/eventbus"
	"aither-flow/internal/projects"
)

// Server holds all dependencies for the HTTP server.
type Server struct {
	config    *config.Config
	conductor *conductor.Conductor
	bus       *eventbus.Bus
	projects  *projects.Store
	logger    *slog.Logger
}

// NewServer creates a new server. The caller owns every dependency and is
// responsible for shutting them down.
func NewServer(cfg *config.Config, cond *conductor.Conductor, bus *eventbus.Bus, store *projects.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		config:    cfg,
		conductor: cond,
		bus:       bus,
		projects:  store,
		logger:    logger,
	}
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(srv *Server) http.Handler {
	r := chi.NewRouter()

	origins := srv.config.Settings.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware stack
	r.Use(RecovererMiddleware(srv.logger))
	r.Use(LoggingMiddleware(srv.logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(AuthMiddleware(srv.config.Token))

	// Conductor routes
	r.Post("/api/conductor/start", srv.handleConductorStart)
	r.Post("/api/conductor/send", srv.handleConductorSend)
	r.Post("/api/conductor/stop", srv.handleConductorStop)
	r.Get("/api/conductor/active", srv.handleConductorActive)
	r.Get("/api/conductor/sessions", srv.handleConductorSessions)

	// Event stream
	r.Get("/api/events", srv.handleEvents)

	// Project routes
	r.Get("/api/projects", srv.handleListProjects)
	r.Put("/api/projects", srv.handleSaveProjects)
	r.Post("/api/projects", srv.handleAddProject)
	r.Delete("/api/projects/{id}", srv.handleRemoveProject)

	// Workspace routes
	r.Post("/api/workspace/default", srv.handleEnsureWorkspace)

	return r
}
