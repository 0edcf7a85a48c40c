package builtin

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/harrison/codescope/internal/models"
	"github.com/harrison/codescope/internal/workflow"
)

var severityOrder = []string{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityInfo,
}

func synthesize(_ context.Context, req workflow.SynthesizeRequest) (workflow.SynthesizeResponse, error) {
	tc := req.TaskContext

	var sb strings.Builder
	switch tc.TaskType {
	case models.TaskReviewPR:
		fmt.Fprintf(&sb, "# Review of %s#%s\n\n", tc.RepositoryLocator, tc.PRIdentifier)
	default:
		fmt.Fprintf(&sb, "# Scan of %s\n\n", tc.RepositoryLocator)
	}

	fmt.Fprintf(&sb, "Execution `%s`", tc.ExecutionID)
	if len(tc.Languages) > 0 {
		fmt.Fprintf(&sb, " covered %s", strings.Join(tc.Languages, ", "))
	}
	if tc.NodeCount > 0 {
		fmt.Fprintf(&sb, " across %d source files", tc.NodeCount)
	}
	sb.WriteString(".\n\n")

	if len(req.Findings) == 0 {
		sb.WriteString("No findings.\n")
		return workflow.SynthesizeResponse{ReportText: sb.String()}, nil
	}

	counts := models.CountBySeverity(req.Findings)
	sb.WriteString("## Summary\n\n| Severity | Count |\n|---|---|\n")
	for _, sev := range severities(counts) {
		fmt.Fprintf(&sb, "| %s | %d |\n", sev, counts[sev])
	}

	for _, sev := range severities(counts) {
		fmt.Fprintf(&sb, "\n## %s\n\n", strings.ToUpper(sev[:1])+sev[1:])
		for _, f := range req.Findings {
			if f.Severity != sev {
				continue
			}
			sb.WriteString("- ")
			if f.Category != "" {
				fmt.Fprintf(&sb, "**%s** ", f.Category)
			}
			sb.WriteString(f.Message)
			if f.Location != nil {
				if f.Location.Line > 0 {
					fmt.Fprintf(&sb, " (`%s:%d`)", f.Location.Path, f.Location.Line)
				} else {
					fmt.Fprintf(&sb, " (`%s`)", f.Location.Path)
				}
			}
			sb.WriteString("\n")
		}
	}
	return workflow.SynthesizeResponse{ReportText: sb.String()}, nil
}

// severities lists the severities present in counts, most serious first,
// followed by any unrecognized ones in the order they sort.
func severities(counts map[string]int) []string {
	var out []string
	known := make(map[string]bool, len(severityOrder))
	for _, sev := range severityOrder {
		known[sev] = true
		if counts[sev] > 0 {
			out = append(out, sev)
		}
	}
	var extra []string
	for sev := range counts {
		if !known[sev] && sev != "" {
			extra = append(extra, sev)
		}
	}
	sort.Strings(extra)
	return append(out, extra...)
}
