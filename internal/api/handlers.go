package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel/trace"

	"carebear/internal/repository"
	"carebear/internal/services"
	"carebear/pkg/models"
)

const problemContentType = "application/problem+json"

// HandleHealth returns basic health status (always returns 200 OK). A
// failing issue store is reported in Checks rather than the status code so
// the process is not restarted for a database outage.
func (s *Server) HandleHealth(c echo.Context) error {
	status := models.HealthStatus{
		Status:    "ok",
		Service:   "carebear",
		Version:   s.Version,
		Timestamp: time.Now().UTC(),
	}
	if s.Store != nil {
		status.Checks = map[string]string{"issue_store": "ok"}
		if err := s.Store.Ping(c.Request().Context()); err != nil {
			status.Status = "degraded"
			status.Checks["issue_store"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, status)
}

// HTTPErrorHandler writes every handler error as an RFC 7807 Problem Details
// response.
func (s *Server) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, detail := classify(err)
	req := c.Request()
	if status >= http.StatusInternalServerError {
		s.Logger.Error("Request failed", "method", req.Method, "path", req.URL.Path, "error", err)
	}

	problem := models.ProblemDetails{
		Type:     "about:blank",
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: req.URL.Path,
	}
	if sc := trace.SpanContextFromContext(req.Context()); sc.HasTraceID() {
		problem.TraceID = sc.TraceID().String()
	}

	c.Response().Header().Set(echo.HeaderContentType, problemContentType)
	if req.Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, problem)
	}
	if err != nil {
		s.Logger.Warn("Failed to write error response", "error", err)
	}
}

// classify maps an error to a status code and a client-safe detail.
func classify(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if inner, ok := he.Internal.(*echo.HTTPError); ok {
			he = inner
		}
		return he.Code, fmt.Sprint(he.Message)
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, services.ErrInvalidPatch):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, repository.ErrConflict):
		return http.StatusConflict, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
