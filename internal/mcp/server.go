// Package mcp exposes knowledge ingestion and pipeline runs as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp)
// and calls the knowledge service and the pipeline runner directly. It is
// normally served over stdio, so nothing in this package writes to stdout.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
	"github.com/fyrsmithlabs/adminrag/internal/logging"
	"github.com/fyrsmithlabs/adminrag/internal/orchestrator"
)

// KnowledgeIngester rebuilds the knowledge index.
type KnowledgeIngester interface {
	Ingest(ctx context.Context) (knowledge.IngestStats, error)
	Reset(ctx context.Context) error
}

// PipelineRunner executes one pipeline run.
type PipelineRunner interface {
	Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResponse, error)
}

// Server is an MCP server backed by the pipeline services.
type Server struct {
	mcp       *mcp.Server
	knowledge KnowledgeIngester
	runner    PipelineRunner
	metrics   *Metrics
	logger    *logging.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "adminrag")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *logging.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "adminrag",
		Version: "dev",
		Logger:  logging.Nop(),
	}
}

// NewServer creates a new MCP server with both tools registered.
func NewServer(cfg *Config, ingester KnowledgeIngester, runner PipelineRunner) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if ingester == nil {
		return nil, fmt.Errorf("knowledge ingester is required")
	}
	if runner == nil {
		return nil, fmt.Errorf("pipeline runner is required")
	}

	s := &Server{
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		knowledge: ingester,
		runner:    runner,
		metrics:   NewMetrics(cfg.Logger),
		logger:    cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP on the stdio transport until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info(ctx, "starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves a single session on t. Used with in-memory transports.
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, t, nil)
}
