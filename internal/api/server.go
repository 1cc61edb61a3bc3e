// Package api contains the HTTP handlers for the carebear service.
package api

import (
	"context"

	"github.com/labstack/echo/v4"

	"carebear/internal/auth"
	"carebear/internal/interaction"
	"carebear/internal/logging"
	"carebear/internal/services"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the API server.
type Server struct {
	Issues  *services.IssueService
	Router  *interaction.Router
	Auth    *auth.Auth
	Store   Pinger
	Logger  *logging.Logger
	Version string
}

// NewServer creates a new Server. store may be nil, in which case the
// health check reports only the process itself.
func NewServer(
	issues *services.IssueService,
	router *interaction.Router,
	verifier *auth.Auth,
	store Pinger,
	logger *logging.Logger,
	version string,
) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		Issues:  issues,
		Router:  router,
		Auth:    verifier,
		Store:   store,
		Logger:  logger,
		Version: version,
	}
}

// RegisterRoutes mounts every route on e and installs the problem details
// error handler.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.HTTPErrorHandler = s.HTTPErrorHandler

	e.GET("/", s.HandleHealth)
	e.POST("/create", s.HandleInteraction)

	requireToken := echo.WrapMiddleware(s.Auth.RequireToken)
	e.GET("/issues", s.ListIssues, requireToken)
	e.GET("/issues/:id", s.GetIssue, requireToken)
	e.POST("/update", s.UpdateIssue, requireToken)
	e.POST("/delete", s.DeleteIssue, requireToken)

	e.GET("/openapi.yaml", echo.WrapHandler(SpecHandler()))
	e.GET("/docs", echo.WrapHandler(SwaggerHandler()))
	e.GET("/docs/", echo.WrapHandler(SwaggerHandler()))
}
