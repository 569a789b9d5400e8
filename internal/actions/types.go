// Package actions plans and executes the follow-up steps of a run against a
// closed registry of tools.
package actions

import (
	"fmt"

	"github.com/fyrsmithlabs/adminrag/internal/extraction"
)

// Tool names in the fixed vocabulary.
const (
	ToolExportXLSX    = "export_xlsx"
	ToolWriteReportMD = "write_report_md"
)

// Plan sources.
const (
	SourceDefault     = "default"
	SourceLLM         = "llm"
	SourceLLMFallback = "llm_fallback"
	SourceFile        = "file"
)

// Args holds a step's named arguments.
type Args map[string]any

// Step is one tool invocation in a plan.
type Step struct {
	Tool string `json:"tool" yaml:"tool" toml:"tool"`
	Args Args   `json:"args" yaml:"args" toml:"args"`
}

// Plan is an ordered list of steps.
type Plan struct {
	Actions []Step `json:"actions" yaml:"actions" toml:"actions"`
	Source  string `json:"source,omitempty" yaml:"-" toml:"-"`

	// FallbackReason carries the model error behind an llm_fallback plan.
	FallbackReason string `json:"fallback_reason,omitempty" yaml:"-" toml:"-"`
}

// Status is the outcome recorded for an executed step.
type Status string

// Step statuses.
const (
	StatusOK     Status = "ok"
	StatusDryRun Status = "dry_run"
)

// Result records what happened to one step.
type Result struct {
	Tool   string `json:"tool"`
	Args   Args   `json:"args"`
	Status Status `json:"status"`
	Output any    `json:"output,omitempty"`
}

// RuntimeContext is the run state tools draw their defaults from.
type RuntimeContext struct {
	Records []extraction.DocumentRecord
	Summary string
	Issues  []string
}

// UnknownToolError aborts execution when a step names a tool that is not
// registered.
type UnknownToolError struct {
	Index int
	Tool  string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("step %d: tool not allowed: %q", e.Index, e.Tool)
}

// StepError aborts execution when a registered tool fails.
type StepError struct {
	Index int
	Tool  string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Tool, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
