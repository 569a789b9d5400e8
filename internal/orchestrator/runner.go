package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/adminrag/internal/actions"
	"github.com/fyrsmithlabs/adminrag/internal/audit"
	"github.com/fyrsmithlabs/adminrag/internal/config"
	"github.com/fyrsmithlabs/adminrag/internal/extraction"
	"github.com/fyrsmithlabs/adminrag/internal/logging"
)

// DefaultInboxDir is the inbox used when a request names none.
const DefaultInboxDir = "inbox"

// Extractor turns an inbox into per-document results.
type Extractor interface {
	ProcessInbox(ctx context.Context, dir string) ([]extraction.Result, error)
}

// Planner produces the action plan for a run.
type Planner interface {
	Plan(ctx context.Context, goal string, pc actions.PlanContext) (actions.Plan, error)
}

// PlanExecutor runs a plan.
type PlanExecutor interface {
	Execute(ctx context.Context, plan actions.Plan, rc actions.RuntimeContext, dryRun bool) ([]actions.Result, error)
}

var (
	_ Extractor    = (*Orchestrator)(nil)
	_ Planner      = (*actions.Planner)(nil)
	_ PlanExecutor = (*actions.Executor)(nil)
)

// RunRequest describes one pipeline run.
type RunRequest struct {
	InboxDir string `json:"inbox_dir"`
	Goal     string `json:"goal"`
	DryRun   bool   `json:"dry_run"`

	// PlanFile, when set, replaces the planner. Local callers only.
	PlanFile string `json:"-"`
}

// RunResponse is the outcome of a run.
type RunResponse struct {
	RunID   string                      `json:"run_id"`
	Records []extraction.DocumentRecord `json:"records"`
	Issues  []string                    `json:"issues"`
	Summary string                      `json:"summary"`
	Plan    actions.Plan                `json:"plan"`
	Actions []actions.Result            `json:"actions"`
	Audit   audit.Ref                   `json:"audit"`
}

// Runner wires extraction, planning, execution and auditing into a run.
type Runner struct {
	extractor Extractor
	planner   Planner
	executor  PlanExecutor
	recorder  audit.Recorder
	goal      string
	newRunID  func() string
	logger    *logging.Logger
}

// NewRunner creates a Runner. defaultGoal is used for requests without one.
func NewRunner(extractor Extractor, planner Planner, executor PlanExecutor, recorder audit.Recorder, defaultGoal string, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Nop()
	}
	if defaultGoal == "" {
		defaultGoal = config.DefaultGoal
	}
	return &Runner{
		extractor: extractor,
		planner:   planner,
		executor:  executor,
		recorder:  recorder,
		goal:      defaultGoal,
		newRunID:  NewRunID,
		logger:    logger,
	}
}

// NewRunID returns the first eight hex characters of a random UUID.
func NewRunID() string {
	return uuid.NewString()[:8]
}

// FormatIssues renders one "<file>: <issue>; <issue>" line per result.
func FormatIssues(results []extraction.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.FileName + ": " + strings.Join(r.Issues, "; ")
	}
	return out
}

// Summary describes a run for the report.
func Summary(count int, dryRun bool) string {
	return fmt.Sprintf("Processed %d files from the inbox. Dry-run=%s", count, strconv.FormatBool(dryRun))
}

// Run executes the pipeline. The audit entry is written whether or not the
// run succeeds; on failure the partial response is returned with the error.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if req.InboxDir == "" {
		req.InboxDir = DefaultInboxDir
	}
	if strings.TrimSpace(req.Goal) == "" {
		req.Goal = r.goal
	}

	resp := &RunResponse{
		RunID:   r.newRunID(),
		Records: []extraction.DocumentRecord{},
		Issues:  []string{},
		Actions: []actions.Result{},
	}
	ctx = logging.WithRunID(ctx, resp.RunID)
	ctx, span := tracer.Start(ctx, "Runner.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("run.id", resp.RunID),
		attribute.Bool("run.dry_run", req.DryRun),
	)
	r.logger.Info(ctx, "run started", zap.String("inbox", req.InboxDir), zap.Bool("dry_run", req.DryRun))

	runErr := r.run(ctx, req, resp)

	entry := audit.Entry{
		RunID:        resp.RunID,
		Goal:         req.Goal,
		DryRun:       req.DryRun,
		RecordsCount: len(resp.Records),
		Plan:         resp.Plan,
		Actions:      resp.Actions,
		IssuesSample: audit.SampleIssues(resp.Issues),
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	ref, auditErr := r.recorder.Record(ctx, entry)
	if auditErr != nil {
		r.logger.Error(ctx, "writing audit entry failed", zap.Error(auditErr))
		auditErr = fmt.Errorf("recording audit: %w", auditErr)
	}
	resp.Audit = ref

	err := errors.Join(runErr, auditErr)
	RunsTotal.WithLabelValues(resultLabel(err), strconv.FormatBool(req.DryRun)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Error(ctx, "run failed", zap.Error(err))
		return resp, err
	}

	span.SetStatus(codes.Ok, "")
	r.logger.Info(ctx, "run finished",
		zap.Int("records", len(resp.Records)),
		zap.Int("actions", len(resp.Actions)),
		zap.String("audit", ref.Audit))
	return resp, nil
}

func (r *Runner) run(ctx context.Context, req RunRequest, resp *RunResponse) error {
	results, err := r.extractor.ProcessInbox(ctx, req.InboxDir)
	if err != nil {
		return fmt.Errorf("processing inbox: %w", err)
	}
	for _, res := range results {
		resp.Records = append(resp.Records, res.Record)
	}
	resp.Issues = FormatIssues(results)
	resp.Summary = Summary(len(resp.Records), req.DryRun)

	if req.PlanFile != "" {
		resp.Plan, err = actions.LoadPlanFile(req.PlanFile)
	} else {
		resp.Plan, err = r.planner.Plan(ctx, req.Goal, actions.NewPlanContext(resp.Records, resp.Issues))
	}
	if err != nil {
		return fmt.Errorf("planning: %w", err)
	}
	r.logger.Info(ctx, "plan ready",
		zap.String("source", resp.Plan.Source),
		zap.Int("steps", len(resp.Plan.Actions)))

	rc := actions.RuntimeContext{Records: resp.Records, Summary: resp.Summary, Issues: resp.Issues}
	executed, err := r.executor.Execute(ctx, resp.Plan, rc, req.DryRun)
	if executed != nil {
		resp.Actions = executed
	}
	for _, res := range executed {
		StepsTotal.WithLabelValues(res.Tool, string(res.Status)).Inc()
	}
	if err != nil {
		return fmt.Errorf("executing plan: %w", err)
	}
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
