// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes vbsb build tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/vbsb/internal/history"
	"github.com/starford/vbsb/internal/models"
	"github.com/starford/vbsb/internal/storage"
)

// Builder is the pipeline surface the tools drive.
type Builder interface {
	Sync() (added, removed int, err error)
	Units() []models.Unit
	Cycle(ctx context.Context) (*models.CycleResult, error)
	Check(ctx context.Context) (*models.CycleResult, error)
	ValidateUnit(ctx context.Context, path string) (models.ValidationResult, error)
}

// Server wraps the MCP server with vbsb tools.
type Server struct {
	mcp     *server.MCPServer
	builder Builder
	src     storage.Provider
	history history.Store
}

// New creates a new MCP server with all tools registered. Unit paths given
// to the tools are resolved inside src; store may be nil.
func New(builder Builder, src storage.Provider, store history.Store) *Server {
	s := &Server{builder: builder, src: src, history: store}

	s.mcp = server.NewMCPServer(
		"vbsb",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_units",
		mcp.WithDescription("Rescan the entry directory and list every tracked unit with its category."),
	), s.listUnits)

	s.mcp.AddTool(mcp.NewTool("validate_unit",
		mcp.WithDescription("Run one unit through the interpreter and return its diagnostic, if any."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Unit path inside the entry directory, absolute or relative to it")),
	), s.validateUnit)

	s.mcp.AddTool(mcp.NewTool("build",
		mcp.WithDescription("Rescan the entry directory, validate every unit and, when all pass, write the bundle. "+
			"Read the conventions first via get_conventions or the "+ConventionsURI+" resource."),
		mcp.WithBoolean("write", mcp.Description("Write the bundle when validation passes (default true)")),
	), s.build)

	s.mcp.AddTool(mcp.NewTool("build_history",
		mcp.WithDescription("List recorded builds, newest first."),
		mcp.WithNumber("limit", mcp.Description("Max builds to return (default 10)")),
	), s.buildHistory)

	s.mcp.AddTool(mcp.NewTool("get_conventions",
		mcp.WithDescription("Returns the file naming conventions that decide bundle order."),
	), s.getConventions)

	s.mcp.AddResource(
		mcp.NewResource(ConventionsURI, "Unit Conventions",
			mcp.WithResourceDescription("How file names map to header, standard, footer and test units."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventionsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

type unitEntry struct {
	Path     string `json:"path"`
	Category string `json:"category"`
	Test     bool   `json:"test,omitempty"`
}

func category(u models.Unit) string {
	switch {
	case u.IsHeader:
		return "header"
	case u.IsFooter:
		return "footer"
	default:
		return "standard"
	}
}

func (s *Server) listUnits(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, _, err := s.builder.Sync(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	units := s.builder.Units()
	out := make([]unitEntry, 0, len(units))
	for _, u := range units {
		out = append(out, unitEntry{Path: s.rel(u.Path), Category: category(u), Test: u.IsTest})
	}
	return jsonResult(out)
}

func (s *Server) validateUnit(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if path == "" {
		return mcp.NewToolResultError("path must not be empty"), nil
	}
	path, err = s.src.Resolve(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.builder.ValidateUnit(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !res.IsError {
		return mcp.NewToolResultText(fmt.Sprintf("ok: %s", s.rel(path))), nil
	}
	return jsonResult(res)
}

func (s *Server) build(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, _, err := s.builder.Sync(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	run := s.builder.Cycle
	if !req.GetBool("write", true) {
		run = s.builder.Check
	}
	res, err := run(ctx)
	if err != nil && res == nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) buildHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.history == nil {
		return mcp.NewToolResultError("build history is disabled"), nil
	}
	builds, err := s.history.Recent(ctx, req.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(builds)
}

func (s *Server) getConventions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(Conventions), nil
}

func (s *Server) readConventionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ConventionsURI,
			MIMEType: "text/markdown",
			Text:     Conventions,
		},
	}, nil
}

func (s *Server) rel(path string) string {
	if r, err := filepath.Rel(s.src.Root(), path); err == nil {
		return filepath.ToSlash(r)
	}
	return path
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
