package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// ReportArgs are the arguments of write_report_md.
type ReportArgs struct {
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Issues  []string `json:"issues"`
	OutPath string   `json:"out_path"`
}

// ReportOutput is returned by write_report_md.
type ReportOutput struct {
	OK     bool   `json:"ok"`
	Report string `json:"report"`
}

// WriteReportMD writes a Markdown report with a generation timestamp, the
// summary and one bullet per issue.
func (t *Toolset) WriteReportMD(_ context.Context, in ReportArgs) (any, error) {
	path, err := t.prepare(in.OutPath)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(t.renderReport(in)), 0o644); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}
	return ReportOutput{OK: true, Report: in.OutPath}, nil
}

func (t *Toolset) renderReport(in ReportArgs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", in.Title)
	fmt.Fprintf(&b, "Generated at: %s UTC\n\n", t.now().UTC().Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, "## Summary\n%s\n\n", in.Summary)
	b.WriteString("## Issues\n")
	if len(in.Issues) == 0 {
		b.WriteString("- (none)\n")
	}
	for _, issue := range in.Issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	return b.String()
}
