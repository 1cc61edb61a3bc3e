package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"carebear/internal/interaction"
)

// HandleInteraction is the chat platform's interactivity endpoint
// (POST /create). The callback is applied to the correlation store before
// the response is written, but the response never waits on the platform or
// the issue store and never reports a workflow failure: once authenticated
// the platform always gets an empty 200.
func (s *Server) HandleInteraction(c echo.Context) error {
	raw := c.FormValue("payload")
	if raw == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing payload")
	}

	cb, parseErr := interaction.Parse([]byte(raw))
	if parseErr != nil && cb.Type == "" {
		s.Logger.Warn("Undecodable interaction payload", "error", parseErr)
		return echo.NewHTTPError(http.StatusBadRequest, "malformed payload")
	}

	if err := s.Auth.Verify(cb.Token); err != nil {
		s.Logger.Warn("Rejected interaction callback", "type", cb.Type, "remote", c.RealIP(), "error", err)
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	if parseErr != nil {
		s.Logger.Warn("Dropping malformed interaction callback", "type", cb.Type, "error", parseErr)
		return c.NoContent(http.StatusOK)
	}

	s.Logger.Debug("Received interaction callback", "type", cb.Type)
	// Errors are logged by the router; the acknowledgment is unconditional.
	_ = s.Router.Dispatch(c.Request().Context(), cb.Event)
	return c.NoContent(http.StatusOK)
}
