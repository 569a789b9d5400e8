package actions

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/adminrag/internal/extraction"
	"github.com/fyrsmithlabs/adminrag/internal/llm"
)

// MockLLMClient is a mock implementation of llm.Client
type MockLLMClient struct {
	mock.Mock
}

func (m *MockLLMClient) Provider() string { return "mock" }

func (m *MockLLMClient) GenerateJSON(ctx context.Context, system, user string) (map[string]any, error) {
	args := m.Called(ctx, system, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]any), args.Error(1)
}

func TestPlanner_DisabledUsesDefault(t *testing.T) {
	plan, err := NewPlanner(nil, nil).Plan(context.Background(), "goal", PlanContext{})
	require.NoError(t, err)
	assert.Equal(t, DefaultPlan(), plan)
	assert.Equal(t, SourceDefault, plan.Source)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, ToolExportXLSX, plan.Actions[0].Tool)
	assert.Equal(t, ToolWriteReportMD, plan.Actions[1].Tool)
}

func TestPlanner_LLMPlan(t *testing.T) {
	client := new(MockLLMClient)
	client.On("GenerateJSON", mock.Anything, plannerSystemPrompt, mock.MatchedBy(func(user string) bool {
		return assert.Contains(t, user, "User goal: export everything") &&
			assert.Contains(t, user, `"count":2`)
	})).Return(map[string]any{
		"actions": []any{
			map[string]any{"tool": "write_report_md", "args": map[string]any{"title": "T"}},
			map[string]any{"tool": "invented_tool"},
		},
	}, nil)

	records := []extraction.DocumentRecord{{FileName: "a.pdf"}, {FileName: "b.pdf"}}
	plan, err := NewPlanner(client, nil).Plan(context.Background(), "export everything", NewPlanContext(records, nil))
	require.NoError(t, err)

	assert.Equal(t, SourceLLM, plan.Source)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, Args{"title": "T"}, plan.Actions[0].Args)
	assert.Equal(t, "invented_tool", plan.Actions[1].Tool, "planner does not filter tool names")
	assert.Equal(t, Args{}, plan.Actions[1].Args)
	client.AssertExpectations(t)
}

func TestPlanner_FallbackOnFailure(t *testing.T) {
	tests := []struct {
		name string
		out  map[string]any
		err  error
	}{
		{name: "transport error", err: &llm.Error{Kind: llm.KindTransport, Err: errors.New("boom")}},
		{name: "no actions key", out: map[string]any{"plan": "x"}},
		{name: "actions wrong type", out: map[string]any{"actions": "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockLLMClient)
			client.On("GenerateJSON", mock.Anything, mock.Anything, mock.Anything).Return(tt.out, tt.err)

			plan, err := NewPlanner(client, nil).Plan(context.Background(), "goal", PlanContext{})
			require.NoError(t, err)
			assert.Equal(t, SourceLLMFallback, plan.Source)
			assert.Equal(t, DefaultPlan().Actions, plan.Actions)
			assert.NotEmpty(t, plan.FallbackReason)
		})
	}
}

func TestPlanner_FallbackReasonNamesKind(t *testing.T) {
	client := new(MockLLMClient)
	client.On("GenerateJSON", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, &llm.Error{Kind: llm.KindTimeout, Provider: "mock", Err: errors.New("deadline")})

	plan, err := NewPlanner(client, nil).Plan(context.Background(), "goal", PlanContext{})
	require.NoError(t, err)
	assert.Equal(t, SourceLLMFallback, plan.Source)
	assert.Contains(t, plan.FallbackReason, string(llm.KindTimeout))
	assert.Contains(t, plan.FallbackReason, "deadline")
}

func TestPlanner_FatalModelErrors(t *testing.T) {
	tests := []struct {
		name string
		kind llm.Kind
	}{
		{name: "authentication", kind: llm.KindAuthentication},
		{name: "configuration", kind: llm.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := new(MockLLMClient)
			client.On("GenerateJSON", mock.Anything, mock.Anything, mock.Anything).
				Return(nil, &llm.Error{Kind: tt.kind, Provider: "mock", Err: errors.New("rejected")})

			plan, err := NewPlanner(client, nil).Plan(context.Background(), "goal", PlanContext{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, llm.KindOf(err))
			assert.Empty(t, plan.Actions)
			assert.Empty(t, plan.Source)
		})
	}
}

func TestNewPlanContext(t *testing.T) {
	records := []extraction.DocumentRecord{{FileName: "a"}, {FileName: "b"}}
	issues := []string{"1", "2", "3", "4"}

	pc := NewPlanContext(records, issues)
	assert.Equal(t, 2, pc.Count)
	assert.Equal(t, records[:1], pc.Examples)
	assert.Equal(t, []string{"1", "2", "3"}, pc.IssuesSample)

	empty := NewPlanContext(nil, nil)
	assert.Equal(t, 0, empty.Count)
	assert.Empty(t, empty.Examples)
	assert.Empty(t, empty.IssuesSample)
}

func TestParsePlan(t *testing.T) {
	yamlPlan := `
actions:
  - tool: export_xlsx
    args:
      out_path: out/docs.xlsx
  - tool: write_report_md
`
	tomlPlan := `
[[actions]]
tool = "export_xlsx"

[actions.args]
out_path = "out/docs.xlsx"

[[actions]]
tool = "write_report_md"
`
	jsonPlan := `{"actions":[{"tool":"export_xlsx","args":{"out_path":"out/docs.xlsx"}},{"tool":"write_report_md"}]}`

	for ext, data := range map[string]string{".yaml": yamlPlan, ".toml": tomlPlan, ".json": jsonPlan} {
		t.Run(ext, func(t *testing.T) {
			plan, err := ParsePlan([]byte(data), ext)
			require.NoError(t, err)
			assert.Equal(t, SourceFile, plan.Source)
			require.Len(t, plan.Actions, 2)
			assert.Equal(t, ToolExportXLSX, plan.Actions[0].Tool)
			assert.Equal(t, "out/docs.xlsx", plan.Actions[0].Args["out_path"])
			assert.Equal(t, Args{}, plan.Actions[1].Args)
		})
	}

	_, err := ParsePlan([]byte("actions: []"), ".ini")
	assert.Error(t, err)

	_, err = ParsePlan([]byte(`{"actions":[{"args":{}}]}`), ".json")
	assert.Error(t, err)
}

func TestLoadPlanFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yml")
	require.NoError(t, os.WriteFile(path, []byte("actions:\n  - tool: write_report_md\n"), 0o600))

	plan, err := LoadPlanFile(path)
	require.NoError(t, err)
	require.Len(t, plan.Actions, 1)

	_, err = LoadPlanFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
