package models

import "fmt"

// Severity levels reported by analysis collaborators
const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
	SeverityInfo     = "info"
)

// SourceLocation points at the code a finding refers to.
type SourceLocation struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// Finding is one discrete analysis result. Findings are values and are
// appended to an execution exactly once.
type Finding struct {
	Severity string          `json:"severity"`
	Category string          `json:"category"`
	Message  string          `json:"message"`
	Location *SourceLocation `json:"source_location,omitempty"`
}

// String formats a finding for console output.
func (f Finding) String() string {
	if f.Location != nil {
		if f.Location.Line > 0 {
			return fmt.Sprintf("[%s] %s: %s (%s:%d)", f.Severity, f.Category, f.Message, f.Location.Path, f.Location.Line)
		}
		return fmt.Sprintf("[%s] %s: %s (%s)", f.Severity, f.Category, f.Message, f.Location.Path)
	}
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Category, f.Message)
}

// CountBySeverity tallies findings per severity level.
func CountBySeverity(findings []Finding) map[string]int {
	counts := make(map[string]int)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
