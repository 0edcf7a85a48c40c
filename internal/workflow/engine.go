package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/codescope/internal/models"
)

// Logger receives workflow progress events. A nil Logger disables logging.
type Logger interface {
	LogExecutionStart(snap models.Snapshot)
	LogStageStart(executionID string, stage models.Stage)
	LogStageComplete(executionID string, stage models.Stage, duration time.Duration)
	LogStageRetry(executionID string, stage models.Stage, retry, maxRetries int, err error)
	LogAgentFailure(executionID string, outcome models.AgentOutcome)
	LogExecutionComplete(result *models.ExecutionResult)
}

// Engine drives executions through the stage state machine.
// Run and Start share the same core; Start only moves it to a goroutine.
type Engine struct {
	comm     Communicator
	cfg      Config
	logger   Logger
	handlers map[models.Stage]StageHandler
	sleep    func(ctx context.Context, d time.Duration) error

	mu   sync.Mutex
	jobs map[string]*Job
}

// NewEngine creates an engine that reaches agents through comm.
// The logger parameter is optional and can be nil.
func NewEngine(comm Communicator, cfg Config, logger Logger) *Engine {
	if comm == nil {
		panic("communicator cannot be nil")
	}
	if cfg.MaxStageRetries < 0 {
		cfg.MaxStageRetries = 0
	}
	return &Engine{
		comm:     comm,
		cfg:      cfg,
		logger:   logger,
		handlers: DefaultHandlers(cfg),
		sleep:    sleepContext,
		jobs:     make(map[string]*Job),
	}
}

// SetHandler replaces the handler for one working stage.
func (e *Engine) SetHandler(stage models.Stage, h StageHandler) {
	e.handlers[stage] = h
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Job is a handle to one execution. It is created before the execution starts
// so it can be observed and cancelled while queued.
type Job struct {
	engine *Engine
	state  *models.ExecutionState
	ctx    context.Context
	cancel context.CancelCauseFunc

	once   sync.Once
	done   chan struct{}
	result *models.ExecutionResult
}

// Prepare registers an execution for task without running it.
// Call Run on the returned job to execute it.
func (e *Engine) Prepare(ctx context.Context, task *models.TaskDefinition) *Job {
	jobCtx, cancel := context.WithCancelCause(ctx)
	j := &Job{
		engine: e,
		state:  models.NewExecutionState(uuid.NewString(), task),
		ctx:    jobCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	e.mu.Lock()
	e.jobs[j.ID()] = j
	e.mu.Unlock()
	return j
}

// Run executes task to a terminal stage and returns its result.
func (e *Engine) Run(ctx context.Context, task *models.TaskDefinition) *models.ExecutionResult {
	return e.Prepare(ctx, task).Run()
}

// Start executes task in the background and returns immediately.
func (e *Engine) Start(ctx context.Context, task *models.TaskDefinition) *Job {
	j := e.Prepare(ctx, task)
	go j.Run()
	return j
}

// Cancel requests cancellation of a prepared or running execution.
func (e *Engine) Cancel(executionID string) error {
	j, ok := e.lookup(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownExecution, executionID)
	}
	j.Cancel()
	return nil
}

// Status returns a snapshot of a prepared or running execution.
func (e *Engine) Status(executionID string) (models.Snapshot, error) {
	j, ok := e.lookup(executionID)
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", ErrUnknownExecution, executionID)
	}
	return j.Status(), nil
}

func (e *Engine) lookup(id string) (*Job, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	return j, ok
}

func (e *Engine) forget(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.jobs, id)
}

// ID returns the execution ID.
func (j *Job) ID() string { return j.state.ExecutionID() }

// Task returns the task being executed.
func (j *Job) Task() *models.TaskDefinition { return j.state.Task() }

// Context returns the job's context. It is done once the job is cancelled.
func (j *Job) Context() context.Context { return j.ctx }

// Done is closed when the execution reaches a terminal stage.
func (j *Job) Done() <-chan struct{} { return j.done }

// Status returns a snapshot of the execution without blocking on agent I/O.
func (j *Job) Status() models.Snapshot { return j.state.Snapshot() }

// Cancel requests cancellation. In-flight agent calls are interrupted and no
// further stage is started. Cancelling a finished job has no effect.
func (j *Job) Cancel() { j.cancel(ErrCancellationRequested) }

// Result returns the final result, or nil while the execution is still running.
func (j *Job) Result() *models.ExecutionResult {
	select {
	case <-j.done:
		return j.result
	default:
		return nil
	}
}

// Wait blocks until the execution finishes or ctx ends.
func (j *Job) Wait(ctx context.Context) (*models.ExecutionResult, error) {
	select {
	case <-j.done:
		return j.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run executes the job in the calling goroutine. Only the first call runs the
// workflow; later calls wait for and return the same result.
func (j *Job) Run() *models.ExecutionResult {
	j.once.Do(func() {
		defer close(j.done)
		defer j.engine.forget(j.ID())
		j.result = j.engine.execute(j)
		j.cancel(nil)
	})
	<-j.done
	return j.result
}

// execute is the state machine core.
func (e *Engine) execute(j *Job) *models.ExecutionResult {
	ctx := j.ctx
	if e.cfg.ExecutionTimeout > 0 {
		var stop context.CancelFunc
		ctx, stop = context.WithTimeoutCause(ctx, e.cfg.ExecutionTimeout, ErrExecutionTimeout)
		defer stop()
	}

	state := j.state
	if e.logger != nil {
		e.logger.LogExecutionStart(state.Snapshot())
	}

	for stage := state.Stage(); !stage.IsTerminal(); stage = state.Stage() {
		if ctx.Err() != nil {
			e.interrupt(ctx, state, stage)
			break
		}

		outcome, failure := e.runStage(ctx, state, stage)
		if outcome == Cancelled || outcome == DeadlineExceeded {
			e.interrupt(ctx, state, stage)
			break
		}

		next, err := Next(stage, outcome)
		if err != nil {
			state.SetError(&models.ErrorDetail{Kind: models.ErrorKindAgentError, Message: err.Error(), Stage: stage})
			_ = state.Advance(models.StageFailed)
			break
		}

		switch outcome {
		case Transient:
			retry := state.RecordRetry(blame(failure))
			if e.logger != nil {
				e.logger.LogStageRetry(state.ExecutionID(), stage, retry, e.cfg.MaxStageRetries, failure)
			}
			// An interrupted wait is handled at the top of the loop.
			_ = e.sleep(ctx, e.cfg.StageRetryBackoff.Delay(retry))
			continue
		case Exhausted, Failed:
			state.SetError(&models.ErrorDetail{
				Kind:    kindOf(failure),
				Message: failure.Error(),
				Agent:   blame(failure),
				Stage:   stage,
				Retries: state.StageRetries(),
			})
		}
		_ = state.Advance(next)
	}

	result := models.NewExecutionResult(state.Snapshot())
	if e.logger != nil {
		e.logger.LogExecutionComplete(result)
	}
	return result
}

// runStage runs the handler for stage and applies its delta. It returns the
// classified outcome and, for failures, the stage error.
func (e *Engine) runStage(ctx context.Context, state *models.ExecutionState, stage models.Stage) (Outcome, error) {
	if stage == models.StageInitiated {
		return Succeeded, nil
	}
	handler, ok := e.handlers[stage]
	if !ok {
		return Failed, &StageError{Stage: stage, Kind: models.ErrorKindAgentError, Message: "no handler for stage"}
	}

	if e.logger != nil {
		e.logger.LogStageStart(state.ExecutionID(), stage)
	}
	start := time.Now()
	out := handler(ctx, state.Snapshot(), e.comm)

	if ctx.Err() != nil {
		// Results that arrive after cancellation or the deadline are discarded.
		return interruptOutcome(ctx), ctx.Err()
	}

	for _, o := range out.Delta.Outcomes {
		state.RecordOutcome(o)
		if o.Failed() && !o.Required && e.logger != nil {
			e.logger.LogAgentFailure(state.ExecutionID(), o)
		}
	}

	if out.Err == nil {
		state.MergeArtifacts(out.Delta.Artifacts)
		state.AppendFindings(out.Delta.Findings...)
		if e.logger != nil {
			e.logger.LogStageComplete(state.ExecutionID(), stage, time.Since(start))
		}
		return Succeeded, nil
	}

	if !kindOf(out.Err).IsTransient() {
		return Failed, out.Err
	}
	if state.StageRetries() < e.cfg.MaxStageRetries {
		return Transient, out.Err
	}
	return Exhausted, out.Err
}

// interrupt moves an execution whose context ended to its terminal stage.
func (e *Engine) interrupt(ctx context.Context, state *models.ExecutionState, stage models.Stage) {
	outcome := interruptOutcome(ctx)
	kind := models.ErrorKindCancellationRequested
	if outcome == DeadlineExceeded {
		kind = models.ErrorKindWorkflowTimeout
	}
	next, err := Next(stage, outcome)
	if err != nil {
		return
	}
	state.SetError(&models.ErrorDetail{
		Kind:    kind,
		Message: context.Cause(ctx).Error(),
		Stage:   stage,
		Retries: state.StageRetries(),
	})
	_ = state.Advance(next)
}

// interruptOutcome distinguishes a passed deadline from a cancellation.
func interruptOutcome(ctx context.Context) Outcome {
	cause := context.Cause(ctx)
	if errors.Is(cause, ErrExecutionTimeout) || errors.Is(cause, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return Cancelled
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
