package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harrison/codescope/internal/models"
)

// FileLogger logs execution events to files in the .codescope/logs/ directory.
// It creates a timestamped run log, one detailed log per execution,
// and maintains a latest.log symlink pointing to the most recent run.
// It is thread-safe and supports log level filtering.
type FileLogger struct {
	logDir        string
	runLog        *os.File
	runFile       string
	executionsDir string
	logLevel      string
	mu            sync.Mutex
}

// NewFileLogger creates a FileLogger that writes to .codescope/logs/ with level "info".
func NewFileLogger() (*FileLogger, error) {
	return NewFileLoggerWithDirAndLevel(filepath.Join(".codescope", "logs"), "info")
}

// NewFileLoggerWithDirAndLevel creates a FileLogger with a custom log directory and log level.
// It creates the directory if needed, opens a run-YYYYMMDD-HHMMSS.log file
// and points latest.log at it.
func NewFileLoggerWithDirAndLevel(logDir string, logLevel string) (*FileLogger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	executionsDir := filepath.Join(logDir, "executions")
	if err := os.MkdirAll(executionsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create executions directory: %w", err)
	}

	runFile := filepath.Join(logDir, fmt.Sprintf("run-%s.log", time.Now().Format("20060102-150405")))
	file, err := os.OpenFile(runFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create run log file: %w", err)
	}

	symlinkPath := filepath.Join(logDir, "latest.log")
	if _, err := os.Lstat(symlinkPath); err == nil {
		if err := os.Remove(symlinkPath); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to remove old symlink: %w", err)
		}
	}
	if err := os.Symlink(filepath.Base(runFile), symlinkPath); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to create symlink: %w", err)
	}

	fl := &FileLogger{
		logDir:        logDir,
		runLog:        file,
		runFile:       runFile,
		executionsDir: executionsDir,
		logLevel:      normalizeLogLevel(logLevel),
	}

	fl.writeRunLog("=== Codescope Run Log ===\n")
	fl.writeRunLog(fmt.Sprintf("Started at: %s\n\n", time.Now().Format(time.RFC3339)))

	return fl, nil
}

// RunFile returns the path of the current run log.
func (fl *FileLogger) RunFile() string {
	return fl.runFile
}

// shouldLog returns true if messageLevel >= configured logLevel.
func (fl *FileLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(fl.logLevel)
}

func (fl *FileLogger) Tracef(format string, args ...any) {
	fl.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Debugf(format string, args ...any) {
	fl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Infof(format string, args ...any) {
	fl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Warnf(format string, args ...any) {
	fl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) Errorf(format string, args ...any) {
	fl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

func (fl *FileLogger) logWithLevel(level string, message string) {
	if !fl.shouldLog(strings.ToLower(level)) {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), level, message))
}

// LogExecutionStart records a new execution at INFO level.
func (fl *FileLogger) LogExecutionStart(snap models.Snapshot) {
	if !fl.shouldLog("info") {
		return
	}
	target := snap.Repository
	if snap.PRID != "" {
		target += "#" + snap.PRID
	}
	fl.writeRunLog(fmt.Sprintf("[%s] Starting %s %s (%s)\n", timestamp(), snap.TaskType, target, snap.ExecutionID))
}

// LogStageStart records the start of a stage at DEBUG level.
func (fl *FileLogger) LogStageStart(executionID string, stage models.Stage) {
	if !fl.shouldLog("debug") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s started\n", timestamp(), executionID, stage))
}

// LogStageComplete records a finished stage at INFO level.
func (fl *FileLogger) LogStageComplete(executionID string, stage models.Stage, duration time.Duration) {
	if !fl.shouldLog("info") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s complete: duration %.1fs\n", timestamp(), executionID, stage, duration.Seconds()))
}

// LogStageRetry records a stage re-attempt at WARN level.
func (fl *FileLogger) LogStageRetry(executionID string, stage models.Stage, retry, maxRetries int, err error) {
	if !fl.shouldLog("warn") {
		return
	}
	fl.writeRunLog(fmt.Sprintf("[%s] [%s] %s retry %d/%d: %v\n", timestamp(), executionID, stage, retry, maxRetries, err))
}

// LogAgentFailure records a tolerated optional agent failure at WARN level.
func (fl *FileLogger) LogAgentFailure(executionID string, outcome models.AgentOutcome) {
	fl.Warnf("[%s] optional %s call to %s failed: %s", executionID, outcome.Skill, outcome.Agent, outcome.Error)
}

// LogExecutionComplete writes the summary to the run log and the full result
// to executions/<execution-id>.log.
func (fl *FileLogger) LogExecutionComplete(result *models.ExecutionResult) {
	if result == nil {
		return
	}
	if fl.shouldLog("info") {
		ts := timestamp()
		status := "SUCCESS"
		if !result.Success {
			status = result.FinalStage.String()
		}
		fl.writeRunLog(fmt.Sprintf(
			"\n[%s] === EXECUTION SUMMARY ===\n"+
				"[%s] Execution:   %s\n"+
				"[%s] Status:      %s\n"+
				"[%s] Findings:    %d\n"+
				"[%s] Total time:  %.1fs\n",
			ts,
			ts, result.ExecutionID,
			ts, status,
			ts, len(result.Findings),
			ts, result.Duration.Seconds(),
		))
	}
	if err := fl.writeExecutionLog(result); err != nil {
		fl.Errorf("%v", err)
	}
}

// writeExecutionLog writes the detailed result of one execution to its own file.
func (fl *FileLogger) writeExecutionLog(result *models.ExecutionResult) error {
	path := filepath.Join(fl.executionsDir, fmt.Sprintf("execution-%s.log", result.ExecutionID))

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("=== Execution %s ===\n", result.ExecutionID))
	sb.WriteString(fmt.Sprintf("Task: %s %s", result.TaskType, result.Repository))
	if result.PRID != "" {
		sb.WriteString("#" + result.PRID)
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Final stage: %s\n", result.FinalStage))
	sb.WriteString(fmt.Sprintf("Duration: %.1fs\n", result.Duration.Seconds()))
	sb.WriteString(fmt.Sprintf("Agent errors: %d\n", result.ErrorCount))
	for agentName, n := range result.RetryCounts {
		sb.WriteString(fmt.Sprintf("Retries (%s): %d\n", agentName, n))
	}
	sb.WriteString("\n")

	if len(result.Findings) > 0 {
		sb.WriteString("=== Findings ===\n")
		for _, f := range result.Findings {
			sb.WriteString(f.String() + "\n")
		}
		sb.WriteString("\n")
	}
	if result.ReportText != "" {
		sb.WriteString(fmt.Sprintf("Report:\n%s\n\n", result.ReportText))
	}
	if result.Error != nil {
		sb.WriteString(fmt.Sprintf("Error:\n%v\n\n", result.Error))
	}
	sb.WriteString(fmt.Sprintf("Completed at: %s\n", result.CompletedAt.Format(time.RFC3339)))

	fl.mu.Lock()
	defer fl.mu.Unlock()
	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write execution log: %w", err)
	}
	return nil
}

// Close flushes and closes the run log file.
func (fl *FileLogger) Close() error {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		if err := fl.runLog.Sync(); err != nil {
			return fmt.Errorf("failed to sync run log: %w", err)
		}
		if err := fl.runLog.Close(); err != nil {
			return fmt.Errorf("failed to close run log: %w", err)
		}
		fl.runLog = nil
	}
	return nil
}

// writeRunLog is a thread-safe helper to write to the run log file.
func (fl *FileLogger) writeRunLog(message string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	if fl.runLog != nil {
		fl.runLog.WriteString(message)
		fl.runLog.Sync()
	}
}
