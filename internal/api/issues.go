package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"carebear/pkg/models"
)

// UpdateRequest is the body of POST /update.
type UpdateRequest struct {
	UpdatedIssue *models.IssuePatch `json:"updatedIssue"`
}

// DeleteRequest is the body of POST /delete.
type DeleteRequest struct {
	ID string `json:"id"`
}

// ListIssues returns every stored issue, newest first
// (GET /issues)
func (s *Server) ListIssues(c echo.Context) error {
	issues, err := s.Issues.List(c.Request().Context())
	if err != nil {
		return err
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return c.JSON(http.StatusOK, issues)
}

// GetIssue returns one issue
// (GET /issues/:id)
func (s *Server) GetIssue(c echo.Context) error {
	issue, err := s.Issues.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, issue)
}

// UpdateIssue applies a partial update
// (POST /update)
func (s *Server) UpdateIssue(c echo.Context) error {
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.UpdatedIssue == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "updatedIssue is required")
	}

	issue, err := s.Issues.Update(c.Request().Context(), *req.UpdatedIssue)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, issue)
}

// DeleteIssue removes an issue
// (POST /delete)
func (s *Server) DeleteIssue(c echo.Context) error {
	var req DeleteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.Issues.Delete(c.Request().Context(), req.ID); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
