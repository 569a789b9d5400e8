package actions

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/extraction"
	"github.com/fyrsmithlabs/adminrag/internal/llm"
)

// Default plan values.
const (
	DefaultXLSXPath    = "saida.xlsx"
	DefaultReportPath  = "report.md"
	DefaultReportTitle = "AdminRAG Report"
)

const plannerSystemPrompt = `You plan administrative automations.
Return ONLY valid JSON.
Goal: build an action plan using the allowed tools.
Allowed tools:
- export_xlsx(records, out_path)
- write_report_md(title, summary, issues, out_path)
The plan must be: {"actions": [{"tool": "...", "args": {...}}, ...]}
Never invent tools outside this list.
Output paths are relative to the workspace directory.`

// PlanContext summarizes the run for the planner.
type PlanContext struct {
	Count        int                         `json:"count"`
	Examples     []extraction.DocumentRecord `json:"examples"`
	IssuesSample []string                    `json:"issues_sample"`
}

// NewPlanContext builds the planner context from the run's records and
// issues: the record count, the first record and the first three issues.
func NewPlanContext(records []extraction.DocumentRecord, issues []string) PlanContext {
	return PlanContext{
		Count:        len(records),
		Examples:     records[:min(1, len(records))],
		IssuesSample: issues[:min(3, len(issues))],
	}
}

// DefaultPlan exports the spreadsheet and writes the report.
func DefaultPlan() Plan {
	return Plan{
		Source: SourceDefault,
		Actions: []Step{
			{Tool: ToolExportXLSX, Args: Args{"out_path": DefaultXLSXPath}},
			{Tool: ToolWriteReportMD, Args: Args{"title": DefaultReportTitle, "out_path": DefaultReportPath}},
		},
	}
}

// Planner produces the action plan for a run.
type Planner struct {
	client llm.Client
	logger *zap.Logger
}

// NewPlanner creates a planner. A nil client always yields DefaultPlan.
func NewPlanner(client llm.Client, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{client: client, logger: logger}
}

// Plan returns the plan for goal. Tool names proposed by the model are not
// checked here; the executor rejects unknown tools. Configuration and
// authentication failures are returned as errors. Any other model failure
// yields the default plan with Source set to SourceLLMFallback and the error
// in FallbackReason.
func (p *Planner) Plan(ctx context.Context, goal string, pc PlanContext) (Plan, error) {
	if p.client == nil {
		return DefaultPlan(), nil
	}

	ctxJSON, err := json.Marshal(pc)
	if err != nil {
		return Plan{}, fmt.Errorf("encoding plan context: %w", err)
	}
	user := fmt.Sprintf("User goal: %s\n\nAvailable context (summary):\n%s\n\nGenerate a plan using only the allowed tools.", goal, ctxJSON)

	obj, err := p.client.GenerateJSON(ctx, plannerSystemPrompt, user)
	if err == nil {
		var plan Plan
		plan, err = planFromObject(obj)
		if err == nil {
			plan.Source = SourceLLM
			return plan, nil
		}
		err = &llm.Error{Kind: llm.KindParse, Provider: p.client.Provider(), Err: err}
	}

	switch llm.KindOf(err) {
	case llm.KindConfiguration, llm.KindAuthentication:
		return Plan{}, fmt.Errorf("calling planner model: %w", err)
	}

	p.logger.Warn("planner falling back to default plan",
		zap.String("kind", string(llm.KindOf(err))),
		zap.Error(err))
	plan := DefaultPlan()
	plan.Source = SourceLLMFallback
	plan.FallbackReason = err.Error()
	return plan, nil
}

func planFromObject(obj map[string]any) (Plan, error) {
	raw, ok := obj["actions"]
	if !ok {
		return Plan{}, fmt.Errorf("response has no actions")
	}
	data, err := json.Marshal(map[string]any{"actions": raw})
	if err != nil {
		return Plan{}, err
	}
	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return Plan{}, fmt.Errorf("decoding actions: %w", err)
	}
	for i := range plan.Actions {
		if plan.Actions[i].Args == nil {
			plan.Actions[i].Args = Args{}
		}
	}
	return plan, nil
}
