package actions

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("adminrag.actions")

// Outcome is the result of evaluating one step. A non-nil Err means the
// step aborted the plan.
type Outcome struct {
	Result Result
	Err    error
}

// Aborted reports whether execution must stop after this step.
func (o Outcome) Aborted() bool { return o.Err != nil }

// Executor runs plans against a registry.
type Executor struct {
	registry *Registry
	logger   *zap.Logger
}

// NewExecutor creates an executor over registry.
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// Execute evaluates the plan's steps in order. In dry-run mode no tool is
// invoked. The first aborting step stops execution; the results gathered
// before it are returned together with its error, which is an
// *UnknownToolError or a *StepError.
func (e *Executor) Execute(ctx context.Context, plan Plan, rc RuntimeContext, dryRun bool) ([]Result, error) {
	ctx, span := tracer.Start(ctx, "Executor.Execute")
	defer span.End()
	span.SetAttributes(
		attribute.Int("plan.steps", len(plan.Actions)),
		attribute.Bool("plan.dry_run", dryRun),
	)

	results := make([]Result, 0, len(plan.Actions))
	for i, step := range plan.Actions {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return results, err
		}

		outcome := e.step(ctx, i, step, rc, dryRun)
		if outcome.Aborted() {
			e.logger.Error("plan step aborted",
				zap.Int("step", i),
				zap.String("tool", step.Tool),
				zap.Error(outcome.Err))
			span.RecordError(outcome.Err)
			span.SetStatus(codes.Error, "step aborted")
			return results, outcome.Err
		}

		e.logger.Debug("plan step finished",
			zap.Int("step", i),
			zap.String("tool", step.Tool),
			zap.String("status", string(outcome.Result.Status)))
		results = append(results, outcome.Result)
	}

	span.SetStatus(codes.Ok, "")
	return results, nil
}

func (e *Executor) step(ctx context.Context, index int, step Step, rc RuntimeContext, dryRun bool) Outcome {
	tool, ok := e.registry.Lookup(step.Tool)
	if !ok {
		return Outcome{Err: &UnknownToolError{Index: index, Tool: step.Tool}}
	}

	args := MergeArgs(step.Args, tool.Defaults(rc))
	if dryRun {
		return Outcome{Result: Result{Tool: step.Tool, Args: args, Status: StatusDryRun}}
	}

	out, err := tool.Invoke(ctx, args)
	if err != nil {
		return Outcome{Err: &StepError{Index: index, Tool: step.Tool, Err: err}}
	}
	return Outcome{Result: Result{Tool: step.Tool, Args: args, Status: StatusOK, Output: out}}
}
