package logger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/harrison/codescope/internal/models"
)

// colorScheme defines consistent colors for summaries.
// Green: success, Red: failure, Yellow: warnings, Cyan: labels
type colorScheme struct {
	header  *color.Color
	success *color.Color
	fail    *color.Color
	warn    *color.Color
	label   *color.Color
}

// newColorScheme creates the standard color scheme.
// With enabled false every color prints plain text.
func newColorScheme(enabled bool) *colorScheme {
	s := &colorScheme{
		header:  color.New(color.Bold),
		success: color.New(color.FgGreen),
		fail:    color.New(color.FgRed),
		warn:    color.New(color.FgYellow),
		label:   color.New(color.FgCyan),
	}
	if !enabled {
		for _, c := range []*color.Color{s.header, s.success, s.fail, s.warn, s.label} {
			c.DisableColor()
		}
	}
	return s
}

// stage returns the color for a terminal stage.
func (s *colorScheme) stage(stage models.Stage) *color.Color {
	switch {
	case stage == models.StageCompleted:
		return s.success
	case stage == models.StageCancelled:
		return s.warn
	case stage.IsFailure():
		return s.fail
	default:
		return s.label
	}
}

// levelColor returns the color of a log level label.
func levelColor(level string) *color.Color {
	switch strings.ToUpper(level) {
	case "TRACE":
		return color.New(color.FgHiBlack)
	case "DEBUG":
		return color.New(color.FgCyan)
	case "INFO":
		return color.New(color.FgBlue)
	case "WARN":
		return color.New(color.FgYellow)
	case "ERROR":
		return color.New(color.FgRed)
	default:
		return color.New(color.Reset)
	}
}

// severityOrder lists severities from most to least serious.
var severityOrder = []string{
	models.SeverityCritical,
	models.SeverityHigh,
	models.SeverityMedium,
	models.SeverityLow,
	models.SeverityInfo,
}

// formatSeverityCounts formats finding counts per severity with color coding.
// Returns empty string when there are no findings.
// Format: "(critical: N, high: N, ...)"
func formatSeverityCounts(counts map[string]int, scheme *colorScheme) string {
	if len(counts) == 0 {
		return ""
	}

	var parts []string
	seen := make(map[string]bool, len(severityOrder))
	for _, sev := range severityOrder {
		seen[sev] = true
		n := counts[sev]
		if n == 0 {
			continue
		}
		var c *color.Color
		switch sev {
		case models.SeverityCritical, models.SeverityHigh:
			c = scheme.fail
		case models.SeverityMedium:
			c = scheme.warn
		default:
			c = scheme.label
		}
		parts = append(parts, fmt.Sprintf("%s: %d", c.Sprint(sev), n))
	}
	// Unknown severities reported by collaborators are listed last.
	var other []string
	for sev, n := range counts {
		if !seen[sev] && n > 0 {
			other = append(other, fmt.Sprintf("%s: %d", sev, n))
		}
	}
	if len(other) > 0 {
		sort.Strings(other)
		parts = append(parts, other...)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
