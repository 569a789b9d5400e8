package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/adminrag/internal/actions"
	"github.com/fyrsmithlabs/adminrag/internal/audit"
	"github.com/fyrsmithlabs/adminrag/internal/extraction"
	"github.com/fyrsmithlabs/adminrag/internal/knowledge"
	"github.com/fyrsmithlabs/adminrag/internal/orchestrator"
)

// MockIngester is a mock implementation of KnowledgeIngester.
type MockIngester struct {
	mock.Mock
}

func (m *MockIngester) Ingest(ctx context.Context) (knowledge.IngestStats, error) {
	args := m.Called(ctx)
	return args.Get(0).(knowledge.IngestStats), args.Error(1)
}

func (m *MockIngester) Reset(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// MockRunner is a mock implementation of PipelineRunner.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, req orchestrator.RunRequest) (*orchestrator.RunResponse, error) {
	args := m.Called(ctx, req)
	if resp := args.Get(0); resp != nil {
		return resp.(*orchestrator.RunResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

// connect starts srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverT, clientT := mcp.NewInMemoryTransports()

	ss, err := srv.Connect(ctx, serverT)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

// callTool invokes name and returns the structured result decoded into out,
// or the tool error text.
func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) error {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return err
	}
	if res.IsError {
		var parts []string
		for _, c := range res.Content {
			if tc, ok := c.(*mcp.TextContent); ok {
				parts = append(parts, tc.Text)
			}
		}
		return errors.New(strings.Join(parts, "\n"))
	}
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, out))
	return nil
}

func newTestServer(t *testing.T) (*Server, *MockIngester, *MockRunner) {
	t.Helper()
	ing, run := new(MockIngester), new(MockRunner)
	srv, err := NewServer(nil, ing, run)
	require.NoError(t, err)
	return srv, ing, run
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, nil, new(MockRunner))
	assert.ErrorContains(t, err, "knowledge ingester is required")

	_, err = NewServer(nil, new(MockIngester), nil)
	assert.ErrorContains(t, err, "pipeline runner is required")
}

func TestListTools(t *testing.T) {
	srv, _, _ := newTestServer(t)
	cs := connect(t, srv)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolIngestKnowledge, ToolRunPipeline}, names)
}

func TestIngestKnowledge(t *testing.T) {
	tests := []struct {
		name  string
		args  map[string]any
		reset bool
	}{
		{"plain", map[string]any{}, false},
		{"with reset", map[string]any{"reset": true}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, ing, _ := newTestServer(t)
			if tt.reset {
				ing.On("Reset", mock.Anything).Return(nil).Once()
			}
			ing.On("Ingest", mock.Anything).Return(knowledge.IngestStats{KnowledgeSources: 3, KnowledgeChunks: 12}, nil)
			cs := connect(t, srv)

			var stats knowledge.IngestStats
			require.NoError(t, callTool(t, cs, ToolIngestKnowledge, tt.args, &stats))
			assert.Equal(t, knowledge.IngestStats{KnowledgeSources: 3, KnowledgeChunks: 12}, stats)
			ing.AssertExpectations(t)
			if !tt.reset {
				ing.AssertNotCalled(t, "Reset", mock.Anything)
			}
		})
	}
}

func TestIngestKnowledge_Error(t *testing.T) {
	srv, ing, _ := newTestServer(t)
	ing.On("Ingest", mock.Anything).Return(knowledge.IngestStats{}, errors.New("store closed"))
	cs := connect(t, srv)

	err := callTool(t, cs, ToolIngestKnowledge, map[string]any{}, &knowledge.IngestStats{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store closed")
}

func TestRunPipeline(t *testing.T) {
	srv, _, run := newTestServer(t)
	run.On("Run", mock.Anything, orchestrator.RunRequest{InboxDir: "in", DryRun: true}).Return(&orchestrator.RunResponse{
		RunID:   "0a1b2c3d",
		Records: []extraction.DocumentRecord{{FileName: "a.pdf", DocType: extraction.DocType}},
		Issues:  []string{"a.pdf: extraction:llm"},
		Summary: "Processed 1 files from the inbox. Dry-run=true",
		Plan:    actions.DefaultPlan(),
		Actions: []actions.Result{{Tool: actions.ToolExportXLSX, Args: actions.Args{}, Status: actions.StatusDryRun}},
		Audit:   audit.Ref{OK: true, Audit: "audit/0a1b2c3d.json"},
	}, nil)
	cs := connect(t, srv)

	var resp orchestrator.RunResponse
	require.NoError(t, callTool(t, cs, ToolRunPipeline, map[string]any{"inbox_dir": "in"}, &resp))

	assert.Equal(t, "0a1b2c3d", resp.RunID)
	assert.Equal(t, "audit/0a1b2c3d.json", resp.Audit.Audit)
	require.Len(t, resp.Actions, 1)
	assert.Equal(t, actions.StatusDryRun, resp.Actions[0].Status)
	run.AssertExpectations(t)
}

func TestRunPipeline_ExplicitWrite(t *testing.T) {
	srv, _, run := newTestServer(t)
	run.On("Run", mock.Anything, orchestrator.RunRequest{Goal: "export", DryRun: false}).
		Return(&orchestrator.RunResponse{
			RunID:   "deadbeef",
			Records: []extraction.DocumentRecord{},
			Issues:  []string{},
			Plan:    actions.DefaultPlan(),
			Actions: []actions.Result{},
		}, nil)
	cs := connect(t, srv)

	var resp orchestrator.RunResponse
	require.NoError(t, callTool(t, cs, ToolRunPipeline, map[string]any{"goal": "export", "dry_run": false}, &resp))
	assert.Equal(t, "deadbeef", resp.RunID)
	run.AssertExpectations(t)
}

func TestRunPipeline_Failure(t *testing.T) {
	srv, _, run := newTestServer(t)
	runErr := fmt.Errorf("executing plan: %w", &actions.UnknownToolError{Index: 1, Tool: "shell"})
	run.On("Run", mock.Anything, mock.Anything).Return(&orchestrator.RunResponse{
		RunID: "cafe0001",
		Audit: audit.Ref{OK: true, Audit: "audit/cafe0001.json"},
	}, runErr)
	cs := connect(t, srv)

	err := callTool(t, cs, ToolRunPipeline, map[string]any{}, &orchestrator.RunResponse{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit/cafe0001.json")
	assert.Contains(t, err.Error(), `"shell"`)
}
