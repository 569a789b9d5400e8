// Package tools implements the side-effecting tools a plan may invoke. All
// output paths are resolved through a workspace sandbox.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fyrsmithlabs/adminrag/internal/actions"
	"github.com/fyrsmithlabs/adminrag/internal/sandbox"
)

// Clock returns the current time.
type Clock func() time.Time

// Toolset builds the tools bound to one workspace.
type Toolset struct {
	sandbox *sandbox.Sandbox
	now     Clock
}

// New creates a toolset writing under sb. A nil clock uses time.Now.
func New(sb *sandbox.Sandbox, now Clock) *Toolset {
	if now == nil {
		now = time.Now
	}
	return &Toolset{sandbox: sb, now: now}
}

// Registry returns the registry holding export_xlsx and write_report_md.
func (t *Toolset) Registry() *actions.Registry {
	return actions.NewRegistry(
		actions.NewTool(actions.ToolExportXLSX, exportDefaults, t.ExportXLSX),
		actions.NewTool(actions.ToolWriteReportMD, reportDefaults, t.WriteReportMD),
	)
}

// prepare resolves rel inside the sandbox and creates its parent directory.
func (t *Toolset) prepare(rel string) (string, error) {
	path, err := t.sandbox.Resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return path, nil
}

func exportDefaults(rc actions.RuntimeContext) actions.Args {
	return actions.Args{
		"records":  rc.Records,
		"out_path": actions.DefaultXLSXPath,
	}
}

func reportDefaults(rc actions.RuntimeContext) actions.Args {
	return actions.Args{
		"title":    actions.DefaultReportTitle,
		"summary":  rc.Summary,
		"issues":   rc.Issues,
		"out_path": actions.DefaultReportPath,
	}
}
