package builtin

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/models"
	"github.com/harrison/codescope/internal/workflow"
)

// writeTree creates files (relative path -> content) under a temp dir.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func sampleRepo(t *testing.T) string {
	return writeTree(t, map[string]string{
		"main.go":                  "package main\n\n// TODO: handle flags\nfunc main() {}\n",
		"internal/db/db.go":        "package db\n\n// FIXME(alice): close rows\n",
		"scripts/tool.py":          "# HACK work around encoding\nprint('x')\n",
		"README.md":                "TODO: not a source file\n",
		".git/hooks/pre-commit.sh": "# TODO hidden\n",
		"vendor/lib/lib.go":        "// TODO vendored\n",
	})
}

func TestAcquire(t *testing.T) {
	root := sampleRepo(t)

	t.Run("absolute path", func(t *testing.T) {
		resp, err := acquire(context.Background(), workflow.AcquireRequest{RepositoryLocator: root})
		require.NoError(t, err)
		assert.Equal(t, filepath.Clean(root), resp.LocalWorkspacePath)
		assert.Equal(t, []string{"go", "python"}, resp.DetectedLanguages)
	})

	t.Run("file URL", func(t *testing.T) {
		resp, err := acquire(context.Background(), workflow.AcquireRequest{RepositoryLocator: "file://" + root})
		require.NoError(t, err)
		assert.Equal(t, filepath.Clean(root), resp.LocalWorkspacePath)
	})

	t.Run("remote locator is an agent error", func(t *testing.T) {
		_, err := acquire(context.Background(), workflow.AcquireRequest{RepositoryLocator: "https://example.com/org/repo.git"})
		var remote *agent.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "unsupported_locator", remote.Code)
	})

	t.Run("missing directory", func(t *testing.T) {
		_, err := acquire(context.Background(), workflow.AcquireRequest{RepositoryLocator: filepath.Join(root, "nope")})
		var remote *agent.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "not_found", remote.Code)
	})
}

func TestBuildModel(t *testing.T) {
	root := sampleRepo(t)
	resp, err := buildModel(context.Background(), workflow.BuildModelRequest{
		LocalWorkspacePath: root,
		Scope:              workflow.ModelScope{Kind: workflow.ScopeFull},
	})
	require.NoError(t, err)
	assert.Equal(t, modelPrefix+filepath.Clean(root), resp.ModelHandle)
	assert.Equal(t, 3, resp.NodeCount)
}

func TestAnalyzeMarkers(t *testing.T) {
	root := sampleRepo(t)
	handle := modelPrefix + filepath.Clean(root)

	t.Run("single language", func(t *testing.T) {
		resp, err := analyzeMarkers(context.Background(), workflow.AnalyzeRequest{ModelHandle: handle, Language: "go"})
		require.NoError(t, err)
		require.Len(t, resp.Findings, 2)

		byPath := map[string]models.Finding{}
		for _, f := range resp.Findings {
			byPath[f.Location.Path] = f
		}
		todo := byPath["main.go"]
		assert.Equal(t, models.SeverityInfo, todo.Severity)
		assert.Equal(t, "TODO: handle flags", todo.Message)
		assert.Equal(t, 3, todo.Location.Line)

		fixme := byPath["internal/db/db.go"]
		assert.Equal(t, models.SeverityMedium, fixme.Severity)
		assert.Equal(t, "FIXME: close rows", fixme.Message)
	})

	t.Run("every language", func(t *testing.T) {
		resp, err := analyzeMarkers(context.Background(), workflow.AnalyzeRequest{ModelHandle: handle})
		require.NoError(t, err)
		assert.Len(t, resp.Findings, 3)
	})

	t.Run("foreign model", func(t *testing.T) {
		_, err := analyzeMarkers(context.Background(), workflow.AnalyzeRequest{ModelHandle: "graph-42", Language: "go"})
		var remote *agent.RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, "unknown_model", remote.Code)
	})
}

func TestSynthesize(t *testing.T) {
	t.Run("no findings", func(t *testing.T) {
		resp, err := synthesize(context.Background(), workflow.SynthesizeRequest{
			Findings:    []models.Finding{},
			TaskContext: workflow.TaskContext{ExecutionID: "e1", TaskType: models.TaskScanProject, RepositoryLocator: "/srv/repo"},
		})
		require.NoError(t, err)
		assert.Equal(t, "# Scan of /srv/repo\n\nExecution `e1`.\n\nNo findings.\n", resp.ReportText)
	})

	t.Run("grouped by severity", func(t *testing.T) {
		resp, err := synthesize(context.Background(), workflow.SynthesizeRequest{
			Findings: []models.Finding{
				{Severity: models.SeverityLow, Message: "minor"},
				{Severity: models.SeverityCritical, Category: "security", Message: "secret in code", Location: &models.SourceLocation{Path: "a.go", Line: 3}},
			},
			TaskContext: workflow.TaskContext{
				ExecutionID:       "e2",
				TaskType:          models.TaskReviewPR,
				RepositoryLocator: "/srv/repo",
				PRIdentifier:      "12",
				Languages:         []string{"go"},
				NodeCount:         4,
			},
		})
		require.NoError(t, err)
		text := resp.ReportText
		assert.Contains(t, text, "# Review of /srv/repo#12\n")
		assert.Contains(t, text, "Execution `e2` covered go across 4 source files.")
		assert.Contains(t, text, "| critical | 1 |\n| low | 1 |\n")
		assert.Contains(t, text, "## Critical\n\n- **security** secret in code (`a.go:3`)\n")
		assert.Less(t, strings.Index(text, "## Critical"), strings.Index(text, "## Low"))
	})
}

func TestRegisterRunsEndToEnd(t *testing.T) {
	root := sampleRepo(t)

	registry := agent.NewRegistry("")
	inproc := agent.NewInProcessTransport()
	require.NoError(t, Register(registry, inproc))
	for _, name := range Names() {
		desc, ok := registry.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, models.TransportInProcess, desc.Transport)
	}

	manager := agent.NewManager(registry, agent.DefaultManagerConfig(), agent.WithTransport(models.TransportInProcess, inproc))
	engine := workflow.NewEngine(manager, workflow.Config{
		ExecutionTimeout: 10 * time.Second,
		CallTimeout:      5 * time.Second,
		MaxStageRetries:  1,
		MaxFanout:        2,
	}, nil)

	task, err := models.NewTaskDefinition(models.TaskScanProject, root, "")
	require.NoError(t, err)

	result := engine.Run(context.Background(), task)
	require.True(t, result.Success, "error: %v", result.Error)
	assert.Equal(t, models.StageCompleted, result.FinalStage)
	assert.Len(t, result.Findings, 3)
	assert.Contains(t, result.ReportText, "# Scan of "+root)
}
