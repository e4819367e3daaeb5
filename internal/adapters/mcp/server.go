// Package mcpadapter exposes the knowledge query service as an MCP tool.
package mcpadapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/ports"
	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/usecase"
)

const ToolName = "query_knowledge_base"

type Server struct {
	query  ports.KnowledgeQueryService
	logger *slog.Logger
	mcp    *server.MCPServer
}

func New(query ports.KnowledgeQueryService, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s := &Server{query: query, logger: logger}

	s.mcp = server.NewMCPServer(
		"compliance-knowledge",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(mcp.NewTool(ToolName,
		mcp.WithDescription("Search the indexed compliance policies and return the most relevant passages with their source files."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question or keywords to look up.")),
		mcp.WithNumber("k", mcp.Description("Number of passages to return. Defaults to the server setting.")),
	), s.handleQuery)
	return s
}

// MCPServer returns the underlying server for transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ServeStdio blocks serving the protocol over stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		msg := usecase.FormatError(domain.WrapError(domain.ErrInvalidInput, "query knowledge base", errors.New("query is required")))
		return mcp.NewToolResultError(msg), nil
	}
	k := req.GetInt("k", 0)

	out := s.query.Query(ctx, query, k)
	s.logger.Debug("mcp_tool_called", "tool", ToolName, "k", k, "error", strings.HasPrefix(out, usecase.ErrorPrefix))
	if strings.HasPrefix(out, usecase.ErrorPrefix) {
		return mcp.NewToolResultError(out), nil
	}
	return mcp.NewToolResultText(out), nil
}
