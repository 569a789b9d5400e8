package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
	"github.com/fyrsmithlabs/adminrag/internal/orchestrator"
)

// Tool names.
const (
	ToolIngestKnowledge = "ingest_knowledge"
	ToolRunPipeline     = "run_pipeline"
)

type ingestKnowledgeInput struct {
	Reset bool `json:"reset,omitempty" jsonschema:"drop every indexed chunk before ingesting"`
}

type runPipelineInput struct {
	InboxDir string `json:"inbox_dir,omitempty" jsonschema:"directory holding the documents to process (default: inbox)"`
	Goal     string `json:"goal,omitempty" jsonschema:"goal handed to the planner"`
	DryRun   *bool  `json:"dry_run,omitempty" jsonschema:"plan and record without writing outputs (default: true)"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIngestKnowledge,
		Description: "Chunk and index the knowledge directory used as extraction context. Returns the number of source files and chunks indexed.",
	}, instrument(s, ToolIngestKnowledge, s.ingestKnowledge))

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolRunPipeline,
		Description: "Extract payment-slip records from the inbox, plan and execute the follow-up actions, and write the audit entry. Dry run by default.",
	}, instrument(s, ToolRunPipeline, s.runPipeline))
}

// instrument wraps a tool handler with metrics and logging.
func instrument[In, Out any](s *Server, name string, h mcp.ToolHandlerFor[In, Out]) mcp.ToolHandlerFor[In, Out] {
	return func(ctx context.Context, req *mcp.CallToolRequest, in In) (*mcp.CallToolResult, Out, error) {
		start := time.Now()
		s.metrics.IncrementActive(ctx, name)
		defer s.metrics.DecrementActive(ctx, name)

		res, out, err := h(ctx, req, in)
		s.metrics.RecordInvocation(ctx, name, time.Since(start), err)
		if err != nil {
			s.logger.Warn(ctx, "mcp tool failed", zap.String("tool", name), zap.Error(err))
		}
		return res, out, err
	}
}

func (s *Server) ingestKnowledge(ctx context.Context, _ *mcp.CallToolRequest, in ingestKnowledgeInput) (*mcp.CallToolResult, knowledge.IngestStats, error) {
	if in.Reset {
		if err := s.knowledge.Reset(ctx); err != nil {
			return nil, knowledge.IngestStats{}, fmt.Errorf("reset knowledge: %w", err)
		}
	}
	stats, err := s.knowledge.Ingest(ctx)
	if err != nil {
		return nil, knowledge.IngestStats{}, fmt.Errorf("ingest knowledge: %w", err)
	}
	return nil, stats, nil
}

func (s *Server) runPipeline(ctx context.Context, _ *mcp.CallToolRequest, in runPipelineInput) (*mcp.CallToolResult, orchestrator.RunResponse, error) {
	dryRun := true
	if in.DryRun != nil {
		dryRun = *in.DryRun
	}

	resp, err := s.runner.Run(ctx, orchestrator.RunRequest{
		InboxDir: in.InboxDir,
		Goal:     in.Goal,
		DryRun:   dryRun,
	})
	if err != nil {
		if resp != nil && resp.Audit.Audit != "" {
			return nil, orchestrator.RunResponse{}, fmt.Errorf("run %s failed (audit %s): %w", resp.RunID, resp.Audit.Audit, err)
		}
		return nil, orchestrator.RunResponse{}, fmt.Errorf("run failed: %w", err)
	}
	return nil, *resp, nil
}
