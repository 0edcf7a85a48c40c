package logger

import (
	"time"

	"github.com/harrison/codescope/internal/models"
)

// Logger is the full surface shared by console and file loggers.
// It covers the workflow engine, the agent manager and the orchestrator.
type Logger interface {
	Tracef(format string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	LogExecutionStart(snap models.Snapshot)
	LogStageStart(executionID string, stage models.Stage)
	LogStageComplete(executionID string, stage models.Stage, duration time.Duration)
	LogStageRetry(executionID string, stage models.Stage, retry, maxRetries int, err error)
	LogAgentFailure(executionID string, outcome models.AgentOutcome)
	LogExecutionComplete(result *models.ExecutionResult)
}

var (
	_ Logger = (*ConsoleLogger)(nil)
	_ Logger = (*FileLogger)(nil)
	_ Logger = (*MultiLogger)(nil)
	_ Logger = NoOpLogger{}
)

// MultiLogger fans every call out to several loggers in order.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger combines loggers, skipping nil entries.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	ml := &MultiLogger{}
	for _, l := range loggers {
		if l != nil {
			ml.loggers = append(ml.loggers, l)
		}
	}
	return ml
}

func (m *MultiLogger) Tracef(format string, args ...any) {
	for _, l := range m.loggers {
		l.Tracef(format, args...)
	}
}

func (m *MultiLogger) Debugf(format string, args ...any) {
	for _, l := range m.loggers {
		l.Debugf(format, args...)
	}
}

func (m *MultiLogger) Infof(format string, args ...any) {
	for _, l := range m.loggers {
		l.Infof(format, args...)
	}
}

func (m *MultiLogger) Warnf(format string, args ...any) {
	for _, l := range m.loggers {
		l.Warnf(format, args...)
	}
}

func (m *MultiLogger) Errorf(format string, args ...any) {
	for _, l := range m.loggers {
		l.Errorf(format, args...)
	}
}

func (m *MultiLogger) LogExecutionStart(snap models.Snapshot) {
	for _, l := range m.loggers {
		l.LogExecutionStart(snap)
	}
}

func (m *MultiLogger) LogStageStart(executionID string, stage models.Stage) {
	for _, l := range m.loggers {
		l.LogStageStart(executionID, stage)
	}
}

func (m *MultiLogger) LogStageComplete(executionID string, stage models.Stage, duration time.Duration) {
	for _, l := range m.loggers {
		l.LogStageComplete(executionID, stage, duration)
	}
}

func (m *MultiLogger) LogStageRetry(executionID string, stage models.Stage, retry, maxRetries int, err error) {
	for _, l := range m.loggers {
		l.LogStageRetry(executionID, stage, retry, maxRetries, err)
	}
}

func (m *MultiLogger) LogAgentFailure(executionID string, outcome models.AgentOutcome) {
	for _, l := range m.loggers {
		l.LogAgentFailure(executionID, outcome)
	}
}

func (m *MultiLogger) LogExecutionComplete(result *models.ExecutionResult) {
	for _, l := range m.loggers {
		l.LogExecutionComplete(result)
	}
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Tracef(string, ...any)                                {}
func (NoOpLogger) Debugf(string, ...any)                                {}
func (NoOpLogger) Infof(string, ...any)                                 {}
func (NoOpLogger) Warnf(string, ...any)                                 {}
func (NoOpLogger) Errorf(string, ...any)                                {}
func (NoOpLogger) LogExecutionStart(models.Snapshot)                    {}
func (NoOpLogger) LogStageStart(string, models.Stage)                   {}
func (NoOpLogger) LogStageComplete(string, models.Stage, time.Duration) {}
func (NoOpLogger) LogStageRetry(string, models.Stage, int, int, error)  {}
func (NoOpLogger) LogAgentFailure(string, models.AgentOutcome)          {}
func (NoOpLogger) LogExecutionComplete(*models.ExecutionResult)         {}
