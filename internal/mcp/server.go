// Package mcp exposes the retrieval pipeline as MCP tools so coding
// and support agents can search the manuals directly.
package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/mkoblar/machdoc/internal/metastore"
	"github.com/mkoblar/machdoc/internal/query"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Server wraps an MCP server that exposes documentation search tools.
type Server struct {
	store        *metastore.Store
	orchestrator *query.Orchestrator
	imageDir     string
	mcp          *server.MCPServer
}

// NewServer creates a new MCP server with the given dependencies.
func NewServer(store *metastore.Store, orchestrator *query.Orchestrator, imageDir string) *Server {
	s := &Server{
		store:        store,
		orchestrator: orchestrator,
		imageDir:     imageDir,
	}

	s.mcp = server.NewMCPServer(
		"machdoc",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchContentUnitsTool, s.handleSearchContentUnits)
	s.mcp.AddTool(getPDFSectionTool, s.handleGetPDFSection)
	s.mcp.AddTool(getImageTool, s.handleGetImage)
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
