package builtin

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/models"
	"github.com/harrison/codescope/internal/workflow"
)

// markerPattern matches a work marker, with an optional "(owner)", inside a comment-like context.
var markerPattern = regexp.MustCompile(`(?:^|[\s/#*])(TODO|FIXME|HACK|XXX)\b(?:\([^)]*\))?:?\s*(.*)`)

var markerSeverity = map[string]string{
	"FIXME": models.SeverityMedium,
	"HACK":  models.SeverityMedium,
	"XXX":   models.SeverityLow,
	"TODO":  models.SeverityInfo,
}

// maxLineBytes bounds a single scanned line; longer lines are skipped.
const maxLineBytes = 1 << 20

func analyzeMarkers(ctx context.Context, req workflow.AnalyzeRequest) (workflow.AnalyzeResponse, error) {
	root, ok := strings.CutPrefix(req.ModelHandle, modelPrefix)
	if !ok {
		return workflow.AnalyzeResponse{}, &agent.RemoteError{Code: "unknown_model", Message: fmt.Sprintf("model %q was not built by %s", req.ModelHandle, InventoryName)}
	}
	lang := strings.ToLower(strings.TrimSpace(req.Language))

	findings := []models.Finding{}
	err := walkSources(ctx, root, func(path, fileLang string) error {
		if lang != "" && fileLang != lang {
			return nil
		}
		found, err := scanMarkers(root, path)
		if err != nil {
			return err
		}
		findings = append(findings, found...)
		return nil
	})
	if err != nil {
		return workflow.AnalyzeResponse{}, err
	}
	return workflow.AnalyzeResponse{Findings: findings}, nil
}

func scanMarkers(root, path string) ([]models.Finding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}

	var findings []models.Finding
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	line := 0
	for scanner.Scan() {
		line++
		m := markerPattern.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		msg := strings.TrimSpace(m[2])
		if msg == "" {
			msg = "unresolved " + strings.ToLower(m[1]) + " marker"
		}
		findings = append(findings, models.Finding{
			Severity: markerSeverity[m[1]],
			Category: "maintainability",
			Message:  m[1] + ": " + msg,
			Location: &models.SourceLocation{Path: filepath.ToSlash(rel), Line: line},
		})
	}
	if err := scanner.Err(); err != nil && err != bufio.ErrTooLong {
		return nil, fmt.Errorf("scan %s: %w", rel, err)
	}
	return findings, nil
}
