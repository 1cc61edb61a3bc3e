// Package mcp exposes the stored issues to agents as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"carebear/internal/repository"
	"carebear/internal/services"
	"carebear/pkg/models"
)

// Tool names.
const (
	ToolListIssues  = "list_issues"
	ToolGetIssue    = "get_issue"
	ToolUpdateIssue = "update_issue"
	ToolDeleteIssue = "delete_issue"
)

type Server struct {
	mcpServer *server.MCPServer
	issues    *services.IssueService
}

func NewServer(issues *services.IssueService, version string) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"carebear",
			version,
			server.WithToolCapabilities(true),
		),
		issues: issues,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolListIssues,
			mcp.WithDescription("List every flagged issue, newest first"),
			mcp.WithReadOnlyHintAnnotation(true),
		),
		s.handleListIssues,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolGetIssue,
			mcp.WithDescription("Get one issue by id"),
			mcp.WithReadOnlyHintAnnotation(true),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the issue")),
		),
		s.handleGetIssue,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolUpdateIssue,
			mcp.WithDescription("Change the rank or status of an issue. A status change is announced in the message thread."),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the issue")),
			mcp.WithString("rank", mcp.Description("The new rank"), mcp.Enum(rankValues()...)),
			mcp.WithString("status", mcp.Description("The new status"), mcp.Enum(statusValues()...)),
		),
		s.handleUpdateIssue,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			ToolDeleteIssue,
			mcp.WithDescription("Delete an issue"),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("id", mcp.Required(), mcp.Description("The ID of the issue")),
		),
		s.handleDeleteIssue,
	)
}

func (s *Server) handleListIssues(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	issues, err := s.issues.List(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list issues: %v", err)), nil
	}
	if issues == nil {
		issues = []*models.Issue{}
	}
	return jsonResult(issues)
}

func (s *Server) handleGetIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	issue, err := s.issues.Get(ctx, id)
	if err != nil {
		return toolError("get", id, err), nil
	}
	return jsonResult(issue)
}

func (s *Server) handleUpdateIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	patch := models.IssuePatch{ID: id}
	if v := request.GetString("rank", ""); v != "" {
		rank := models.Rank(v)
		patch.Rank = &rank
	}
	if v := request.GetString("status", ""); v != "" {
		status := models.Status(v)
		patch.Status = &status
	}
	if patch.Rank == nil && patch.Status == nil {
		return mcp.NewToolResultError("Nothing to update: pass rank or status"), nil
	}

	issue, err := s.issues.Update(ctx, patch)
	if err != nil {
		return toolError("update", id, err), nil
	}
	return jsonResult(issue)
}

func (s *Server) handleDeleteIssue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("Missing required parameter: id"), nil
	}

	if err := s.issues.Delete(ctx, id); err != nil {
		return toolError("delete", id, err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Issue %s deleted", id)), nil
}

func toolError(verb, id string, err error) *mcp.CallToolResult {
	if errors.Is(err, repository.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("Issue %s not found", id))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s issue: %v", verb, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func rankValues() []string {
	out := make([]string, 0, len(models.Ranks))
	for _, r := range models.Ranks {
		out = append(out, string(r))
	}
	return out
}

func statusValues() []string {
	out := make([]string, 0, len(models.Statuses))
	for _, st := range models.Statuses {
		out = append(out, string(st))
	}
	return out
}

// MountHTTPHandlers serves mcpServer over SSE at /mcp/sse and /mcp/message.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})

	mux.HandleFunc("/mcp/sse", sseServer.ServeHTTP)
	mux.HandleFunc("/mcp/message", sseServer.ServeHTTP)
}
