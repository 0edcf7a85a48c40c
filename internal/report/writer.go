// Package report writes synthesized execution reports to disk.
//
// Each completed execution with report text produces <execution-id>.md and a
// rendered <execution-id>.html. An index.md lists every report, newest first.
// Writes are atomic and the index is updated under a file lock so several
// codescope processes can share one report directory.
package report

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/harrison/codescope/internal/models"
)

const indexFile = "index.md"

// Writer stores reports under Dir.
type Writer struct {
	Dir string
}

// NewWriter creates a Writer for dir.
func NewWriter(dir string) *Writer {
	return &Writer{Dir: dir}
}

// Paths returns the markdown and HTML paths of an execution's report.
func (w *Writer) Paths(executionID string) (md, htmlPath string) {
	return filepath.Join(w.Dir, executionID+".md"), filepath.Join(w.Dir, executionID+".html")
}

// Record writes the report of a finished execution. Results without report
// text (failed or cancelled executions) are skipped.
func (w *Writer) Record(ctx context.Context, result *models.ExecutionResult) error {
	if result == nil || strings.TrimSpace(result.ReportText) == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	source := []byte(result.ReportText)
	title := Title(source)
	if title == "" {
		title = fmt.Sprintf("%s %s", result.TaskType, result.Repository)
	}

	page, err := RenderHTML(title, source)
	if err != nil {
		return err
	}

	mdPath, htmlPath := w.Paths(result.ExecutionID)
	if err := atomicWrite(mdPath, source); err != nil {
		return err
	}
	if err := atomicWrite(htmlPath, page); err != nil {
		return err
	}

	entry := indexEntry(result, title)
	indexPath := filepath.Join(w.Dir, indexFile)
	return withFileLock(indexPath, func() error {
		return prependIndexEntry(indexPath, result.ExecutionID, entry)
	})
}

// indexEntry formats one index line: "- [title](id.md) repo#pr, 3 findings, 2026-01-02 15:04"
func indexEntry(result *models.ExecutionResult, title string) string {
	target := result.Repository
	if result.PRID != "" {
		target += "#" + result.PRID
	}
	completed := result.CompletedAt
	if completed.IsZero() {
		completed = time.Now()
	}
	noun := "findings"
	if len(result.Findings) == 1 {
		noun = "finding"
	}
	return fmt.Sprintf("- [%s](%s.md) %s, %d %s, %s",
		title, result.ExecutionID, target, len(result.Findings), noun, completed.UTC().Format("2006-01-02 15:04"))
}

// prependIndexEntry puts entry at the top of the index, dropping any earlier
// entry for the same execution.
func prependIndexEntry(path, executionID, entry string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("read report index: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# Reports\n\n")
	buf.WriteString(entry + "\n")

	link := "](" + executionID + ".md)"
	scanner := bufio.NewScanner(bytes.NewReader(existing))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "- [") || strings.Contains(line, link) {
			continue
		}
		buf.WriteString(line + "\n")
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan report index: %w", err)
	}

	return atomicWrite(path, buf.Bytes())
}
