package logger

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrison/codescope/internal/models"
)

func TestNewConsoleLogger(t *testing.T) {
	t.Run("with valid writer", func(t *testing.T) {
		buf := &bytes.Buffer{}
		logger := NewConsoleLogger(buf, "DEBUG")
		if logger.writer != buf {
			t.Error("writer not set correctly")
		}
		if logger.logLevel != "debug" {
			t.Errorf("expected log level %q, got %q", "debug", logger.logLevel)
		}
		if logger.colorOutput {
			t.Error("expected colors disabled for a non-terminal writer")
		}
	})

	t.Run("with nil writer", func(t *testing.T) {
		logger := NewConsoleLogger(nil, "")
		logger.Infof("dropped")
		logger.LogExecutionComplete(&models.ExecutionResult{})
		if logger.logLevel != "info" {
			t.Errorf("expected default level info, got %q", logger.logLevel)
		}
	})
}

func TestConsoleLevelFiltering(t *testing.T) {
	tests := []struct {
		level   string
		visible []string
		hidden  []string
	}{
		{level: "trace", visible: []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", visible: []string{"INFO", "WARN", "ERROR"}, hidden: []string{"TRACE", "DEBUG"}},
		{level: "error", visible: []string{"ERROR"}, hidden: []string{"TRACE", "DEBUG", "INFO", "WARN"}},
		{level: "bogus", visible: []string{"INFO"}, hidden: []string{"DEBUG"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			logger := NewConsoleLogger(buf, tt.level)
			logger.Tracef("msg %d", 1)
			logger.Debugf("msg %d", 2)
			logger.Infof("msg %d", 3)
			logger.Warnf("msg %d", 4)
			logger.Errorf("msg %d", 5)

			out := buf.String()
			for _, lvl := range tt.visible {
				if !strings.Contains(out, "["+lvl+"]") {
					t.Errorf("expected %s in output:\n%s", lvl, out)
				}
			}
			for _, lvl := range tt.hidden {
				if strings.Contains(out, "["+lvl+"]") {
					t.Errorf("did not expect %s in output:\n%s", lvl, out)
				}
			}
		})
	}
}

func TestConsoleLineFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, "info")
	logger.Warnf("agent %s slow", "graph")

	line := strings.TrimSpace(buf.String())
	// [HH:MM:SS] [WARN] agent graph slow
	if len(line) < 11 || line[0] != '[' || line[9] != ']' {
		t.Fatalf("expected timestamp prefix, got %q", line)
	}
	if !strings.HasSuffix(line, "[WARN] agent graph slow") {
		t.Errorf("unexpected line %q", line)
	}
}

func TestConsoleLogExecutionStart(t *testing.T) {
	tests := []struct {
		name     string
		snap     models.Snapshot
		expected string
	}{
		{
			name: "scan",
			snap: models.Snapshot{
				ExecutionID: "1a2b3c4d-0000-0000-0000-000000000000",
				TaskType:    models.TaskScanProject,
				Repository:  "https://git.example.com/org/repo.git",
			},
			expected: "Starting SCAN_PROJECT https://git.example.com/org/repo.git (1a2b3c4d)",
		},
		{
			name: "review",
			snap: models.Snapshot{
				ExecutionID: "ffff",
				TaskType:    models.TaskReviewPR,
				Repository:  "/srv/repo",
				PRID:        "42",
			},
			expected: "Starting REVIEW_PR /srv/repo#42 (ffff)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			NewConsoleLogger(buf, "info").LogExecutionStart(tt.snap)
			if !strings.Contains(buf.String(), tt.expected) {
				t.Errorf("expected %q in %q", tt.expected, buf.String())
			}
		})
	}
}

func TestConsoleStageEvents(t *testing.T) {
	t.Run("stage start is debug only", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "info").LogStageStart("exec", models.StageAnalyzing)
		if buf.Len() != 0 {
			t.Errorf("expected no output at info, got %q", buf.String())
		}

		buf.Reset()
		NewConsoleLogger(buf, "debug").LogStageStart("exec", models.StageAnalyzing)
		if !strings.Contains(buf.String(), "[exec] ANALYZING started") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("stage complete shows progress", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "info").LogStageComplete("exec", models.StageBuildingModel, 1500*time.Millisecond)
		out := buf.String()
		if !strings.Contains(out, "BUILDING_MODEL complete (1s)") {
			t.Errorf("missing stage completion in %q", out)
		}
		if !strings.Contains(out, "[====      ] 2/5 (40%)") {
			t.Errorf("missing progress bar in %q", out)
		}
	})

	t.Run("retry at warn", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "warn").LogStageRetry("exec", models.StageAcquiringData, 2, 3, errors.New("agent down"))
		if !strings.Contains(buf.String(), "ACQUIRING_DATA retry 2/3: agent down") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("optional agent failure", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "info").LogAgentFailure("exec", models.AgentOutcome{
			Agent: "py-analyzer",
			Skill: "analyze",
			Error: "timeout",
		})
		if !strings.Contains(buf.String(), "[WARN] [exec] optional analyze call to py-analyzer failed: timeout") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})
}

func TestConsoleLogExecutionComplete(t *testing.T) {
	t.Run("completed with findings", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "info").LogExecutionComplete(&models.ExecutionResult{
			ExecutionID: "exec-1",
			Success:     true,
			FinalStage:  models.StageCompleted,
			Findings: []models.Finding{
				{Severity: models.SeverityHigh, Category: "security", Message: "a"},
				{Severity: models.SeverityHigh, Category: "security", Message: "b"},
				{Severity: models.SeverityLow, Category: "style", Message: "c"},
			},
			RetryCounts: map[string]int{"graph": 2},
			Duration:    90 * time.Second,
		})

		out := buf.String()
		for _, want := range []string{
			"=== Execution Summary ===",
			"Execution: exec-1",
			"Final stage: COMPLETED",
			"Findings: 3 (high: 2, low: 1)",
			"Stage retries: 2",
			"Duration: 1m30s",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("expected %q in output:\n%s", want, out)
			}
		}
		if strings.Contains(out, "Error:") {
			t.Errorf("did not expect an error line:\n%s", out)
		}
	})

	t.Run("failed", func(t *testing.T) {
		buf := &bytes.Buffer{}
		NewConsoleLogger(buf, "info").LogExecutionComplete(&models.ExecutionResult{
			ExecutionID: "exec-2",
			FinalStage:  models.StageFailed,
			Findings:    []models.Finding{},
			Error: &models.ErrorDetail{
				Kind:    models.ErrorKindAgentError,
				Message: "bad graph",
				Agent:   "graph",
				Stage:   models.StageBuildingModel,
			},
		})
		out := buf.String()
		if !strings.Contains(out, "Final stage: FAILED") {
			t.Errorf("missing final stage:\n%s", out)
		}
		if !strings.Contains(out, "Error: AgentError in BUILDING_MODEL (agent graph, 0 retries): bad graph") {
			t.Errorf("missing error line:\n%s", out)
		}
	})
}

func TestConsoleLoggerConcurrentWrites(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewConsoleLogger(buf, "info")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.Infof("line %d", n)
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if !strings.Contains(line, "[INFO] line ") {
			t.Errorf("interleaved line %q", line)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{2 * time.Minute, "2m"},
		{2*time.Hour + 15*time.Minute, "2h15m"},
		{time.Hour + 30*time.Second, "1h0m30s"},
		{3 * time.Hour, "3h"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSeverityCounts(t *testing.T) {
	scheme := newColorScheme(false)
	if got := formatSeverityCounts(nil, scheme); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
	got := formatSeverityCounts(map[string]int{
		models.SeverityInfo:     1,
		models.SeverityCritical: 2,
		"custom":                3,
	}, scheme)
	if want := "(critical: 2, info: 1, custom: 3)"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("1a2b3c4d-aaaa-bbbb"); got != "1a2b3c4d" {
		t.Errorf("got %q", got)
	}
	if got := shortID("plain"); got != "plain" {
		t.Errorf("got %q", got)
	}
}
