// Package logger provides logging implementations for codescope executions.
//
// Loggers report execution progress at the stage and summary levels and carry
// the leveled messages of the agent and orchestrator layers. Implementations
// are thread-safe and support console and file destinations.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/harrison/codescope/internal/models"
)

// Log level constants for filtering
const (
	levelTrace int = 0
	levelDebug int = 1
	levelInfo  int = 2
	levelWarn  int = 3
	levelError int = 4
)

// workingStages is how many stages a successful execution passes through after INITIATED
const workingStages = 5

// ConsoleLogger logs execution progress to a writer with timestamps and thread safety.
// All output is prefixed with [HH:MM:SS] timestamps for tracking execution flow.
// It supports log level filtering to control message verbosity.
// Color output is automatically enabled when the writer is a terminal.
type ConsoleLogger struct {
	writer      io.Writer
	logLevel    string
	mutex       sync.Mutex
	colorOutput bool
}

// NewConsoleLogger creates a ConsoleLogger that writes to the provided io.Writer.
// If writer is nil, messages are silently discarded.
// Valid levels: trace, debug, info, warn, error (case-insensitive).
// If logLevel is empty or invalid, defaults to "info".
func NewConsoleLogger(writer io.Writer, logLevel string) *ConsoleLogger {
	return &ConsoleLogger{
		writer:      writer,
		logLevel:    normalizeLogLevel(logLevel),
		colorOutput: isTerminal(writer),
	}
}

// isTerminal checks if the writer is a terminal that supports colors.
// NO_COLOR (via color.NoColor) always wins.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil || color.NoColor {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// normalizeLogLevel converts a log level string to lowercase and validates it.
// Returns "info" as default for empty or invalid levels.
func normalizeLogLevel(level string) string {
	normalized := strings.ToLower(strings.TrimSpace(level))
	switch normalized {
	case "trace", "debug", "info", "warn", "error":
		return normalized
	}
	return "info"
}

// logLevelToInt converts a log level string to its numeric value.
func logLevelToInt(level string) int {
	switch level {
	case "trace":
		return levelTrace
	case "debug":
		return levelDebug
	case "info":
		return levelInfo
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// shouldLog checks if a message at the given level should be logged.
func (cl *ConsoleLogger) shouldLog(messageLevel string) bool {
	return logLevelToInt(messageLevel) >= logLevelToInt(cl.logLevel)
}

// Tracef logs a trace-level message (most verbose).
func (cl *ConsoleLogger) Tracef(format string, args ...any) {
	cl.logWithLevel("TRACE", fmt.Sprintf(format, args...))
}

// Debugf logs a debug-level message.
func (cl *ConsoleLogger) Debugf(format string, args ...any) {
	cl.logWithLevel("DEBUG", fmt.Sprintf(format, args...))
}

// Infof logs an info-level message.
func (cl *ConsoleLogger) Infof(format string, args ...any) {
	cl.logWithLevel("INFO", fmt.Sprintf(format, args...))
}

// Warnf logs a warning-level message.
func (cl *ConsoleLogger) Warnf(format string, args ...any) {
	cl.logWithLevel("WARN", fmt.Sprintf(format, args...))
}

// Errorf logs an error-level message.
func (cl *ConsoleLogger) Errorf(format string, args ...any) {
	cl.logWithLevel("ERROR", fmt.Sprintf(format, args...))
}

// logWithLevel logs a message at the specified level if filtering allows it.
// Format: "[HH:MM:SS] [LEVEL] <message>"
func (cl *ConsoleLogger) logWithLevel(level string, message string) {
	if cl.writer == nil || !cl.shouldLog(strings.ToLower(level)) {
		return
	}
	label := level
	if cl.colorOutput {
		label = levelColor(level).Sprint(level)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), label, message))
}

// LogExecutionStart logs a newly started execution at INFO level.
// Format: "[HH:MM:SS] Starting <type> <repo>[#pr] (<id>)"
func (cl *ConsoleLogger) LogExecutionStart(snap models.Snapshot) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}
	target := snap.Repository
	if snap.PRID != "" {
		target += "#" + snap.PRID
	}
	kind := string(snap.TaskType)
	if cl.colorOutput {
		kind = color.New(color.Bold).Sprint(kind)
	}
	cl.write(fmt.Sprintf("[%s] Starting %s %s (%s)\n", timestamp(), kind, target, shortID(snap.ExecutionID)))
}

// LogStageStart logs the start of a stage at DEBUG level.
func (cl *ConsoleLogger) LogStageStart(executionID string, stage models.Stage) {
	if cl.writer == nil || !cl.shouldLog("debug") {
		return
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s started\n", timestamp(), shortID(executionID), cl.stageName(stage)))
}

// LogStageComplete logs a finished stage with overall stage progress at INFO level.
// Format: "[HH:MM:SS] [id] <STAGE> complete (<duration>) [===   ] 2/5 (40%)"
func (cl *ConsoleLogger) LogStageComplete(executionID string, stage models.Stage, duration time.Duration) {
	if cl.writer == nil || !cl.shouldLog("info") {
		return
	}
	pb := NewProgressBar(workingStages, 10, cl.colorOutput)
	pb.Update(int(stage))
	complete := "complete"
	if cl.colorOutput {
		complete = color.New(color.FgGreen).Sprint(complete)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s %s (%s) %s\n",
		timestamp(), shortID(executionID), cl.stageName(stage), complete, formatDuration(duration), pb.Render()))
}

// LogStageRetry logs a stage re-attempt after a transient failure at WARN level.
func (cl *ConsoleLogger) LogStageRetry(executionID string, stage models.Stage, retry, maxRetries int, err error) {
	if cl.writer == nil || !cl.shouldLog("warn") {
		return
	}
	msg := fmt.Sprintf("%s retry %d/%d: %v", stage, retry, maxRetries, err)
	if cl.colorOutput {
		msg = color.New(color.FgYellow).Sprint(msg)
	}
	cl.write(fmt.Sprintf("[%s] [%s] %s\n", timestamp(), shortID(executionID), msg))
}

// LogAgentFailure logs an optional agent call that failed without failing its stage.
func (cl *ConsoleLogger) LogAgentFailure(executionID string, outcome models.AgentOutcome) {
	cl.Warnf("[%s] optional %s call to %s failed: %s", shortID(executionID), outcome.Skill, outcome.Agent, outcome.Error)
}

// LogExecutionComplete logs the execution summary at INFO level.
func (cl *ConsoleLogger) LogExecutionComplete(result *models.ExecutionResult) {
	if cl.writer == nil || result == nil || !cl.shouldLog("info") {
		return
	}
	ts := timestamp()
	scheme := newColorScheme(cl.colorOutput)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s\n", ts, scheme.header.Sprint("=== Execution Summary ===")))
	sb.WriteString(fmt.Sprintf("[%s] Execution: %s\n", ts, result.ExecutionID))
	sb.WriteString(fmt.Sprintf("[%s] Final stage: %s\n", ts, scheme.stage(result.FinalStage).Sprint(result.FinalStage)))
	sb.WriteString(fmt.Sprintf("[%s] Findings: %d %s\n", ts, len(result.Findings), formatSeverityCounts(models.CountBySeverity(result.Findings), scheme)))
	if retries := totalRetries(result.RetryCounts); retries > 0 {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", ts, scheme.warn.Sprintf("Stage retries: %d", retries)))
	}
	sb.WriteString(fmt.Sprintf("[%s] Duration: %s\n", ts, formatDuration(result.Duration)))
	if result.Error != nil {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", ts, scheme.fail.Sprintf("Error: %s", result.Error.Error())))
	}
	cl.write(sb.String())
}

func (cl *ConsoleLogger) stageName(stage models.Stage) string {
	if cl.colorOutput {
		return color.New(color.Bold).Sprint(stage.String())
	}
	return stage.String()
}

func (cl *ConsoleLogger) write(s string) {
	cl.mutex.Lock()
	defer cl.mutex.Unlock()
	cl.writer.Write([]byte(s))
}

// timestamp returns the current time formatted as "15:04:05" (HH:MM:SS).
func timestamp() string {
	return time.Now().Format("15:04:05")
}

// shortID trims an execution UUID to its first block for compact log lines.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func totalRetries(counts map[string]int) int {
	total := 0
	for _, n := range counts {
		total += n
	}
	return total
}

// formatDuration converts a time.Duration to a human-readable string.
// Examples: "5s", "1m30s", "2h15m"
func formatDuration(d time.Duration) string {
	switch {
	case d >= time.Hour:
		hours := d / time.Hour
		remainder := d % time.Hour
		if remainder == 0 {
			return fmt.Sprintf("%dh", hours)
		}
		minutes := remainder / time.Minute
		remainder = remainder % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dh%dm", hours, minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
	case d >= time.Minute:
		minutes := d / time.Minute
		remainder := d % time.Minute
		if remainder == 0 {
			return fmt.Sprintf("%dm", minutes)
		}
		seconds := remainder / time.Second
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	case d >= time.Second:
		return fmt.Sprintf("%ds", int64(d.Seconds()))
	default:
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
}
