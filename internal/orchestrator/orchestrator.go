package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/harrison/codescope/internal/models"
	"github.com/harrison/codescope/internal/workflow"
)

// maxRetained bounds how many finished executions stay queryable through Status.
const maxRetained = 1000

// Recorder receives every finished execution (history store, report writer).
type Recorder interface {
	Record(ctx context.Context, result *models.ExecutionResult) error
}

// Logger is the logging surface the orchestrator needs.
type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Orchestrator is the entry point for callers. It validates requests, bounds
// how many executions run at once and keeps executions queryable by ID.
type Orchestrator struct {
	engine    *workflow.Engine
	slots     chan struct{}
	recorders []Recorder
	logger    Logger

	mu         sync.RWMutex
	executions map[string]*workflow.Job
	finished   []string // finished execution IDs, oldest first

	wg sync.WaitGroup
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithRecorder adds a recorder that is handed every finished execution.
func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorders = append(o.recorders, r)
		}
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New creates an Orchestrator running at most maxConcurrency executions at a
// time. Further submissions wait in a queue.
func New(engine *workflow.Engine, maxConcurrency int, opts ...Option) *Orchestrator {
	if engine == nil {
		panic("workflow engine cannot be nil")
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	o := &Orchestrator{
		engine:     engine,
		slots:      make(chan struct{}, maxConcurrency),
		executions: make(map[string]*workflow.Job),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// SubmitScan runs a full-project scan and blocks until it finishes.
// Only a *models.ValidationError is returned as an error; every other failure
// is reported in the result.
func (o *Orchestrator) SubmitScan(ctx context.Context, repositoryLocator string) (*models.ExecutionResult, error) {
	job, err := o.prepare(ctx, models.TaskScanProject, repositoryLocator, "")
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, job), nil
}

// SubmitPRReview runs a pull-request review and blocks until it finishes.
func (o *Orchestrator) SubmitPRReview(ctx context.Context, repositoryLocator, prIdentifier string) (*models.ExecutionResult, error) {
	job, err := o.prepare(ctx, models.TaskReviewPR, repositoryLocator, prIdentifier)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, job), nil
}

// StartScan queues a full-project scan and returns its job immediately.
func (o *Orchestrator) StartScan(ctx context.Context, repositoryLocator string) (*workflow.Job, error) {
	return o.start(ctx, models.TaskScanProject, repositoryLocator, "")
}

// StartPRReview queues a pull-request review and returns its job immediately.
func (o *Orchestrator) StartPRReview(ctx context.Context, repositoryLocator, prIdentifier string) (*workflow.Job, error) {
	return o.start(ctx, models.TaskReviewPR, repositoryLocator, prIdentifier)
}

// Status returns a snapshot of a queued, running or recently finished execution.
// It never blocks on agent I/O.
func (o *Orchestrator) Status(executionID string) (models.Snapshot, error) {
	job, ok := o.lookup(executionID)
	if !ok {
		return models.Snapshot{}, fmt.Errorf("%w: %s", workflow.ErrUnknownExecution, executionID)
	}
	return job.Status(), nil
}

// Cancel requests cancellation of a queued or running execution.
// Cancelling a finished execution is a no-op.
func (o *Orchestrator) Cancel(executionID string) error {
	job, ok := o.lookup(executionID)
	if !ok {
		return fmt.Errorf("%w: %s", workflow.ErrUnknownExecution, executionID)
	}
	job.Cancel()
	return nil
}

// Wait blocks until every execution started through StartScan or StartPRReview
// has finished and been recorded.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) start(ctx context.Context, taskType models.TaskType, locator, pr string) (*workflow.Job, error) {
	job, err := o.prepare(ctx, taskType, locator, pr)
	if err != nil {
		return nil, err
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.execute(ctx, job)
	}()
	return job, nil
}

// prepare validates the request and registers a queued execution.
func (o *Orchestrator) prepare(ctx context.Context, taskType models.TaskType, locator, pr string) (*workflow.Job, error) {
	task, err := models.NewTaskDefinition(taskType, locator, pr)
	if err != nil {
		return nil, err
	}
	job := o.engine.Prepare(ctx, task)

	o.mu.Lock()
	o.executions[job.ID()] = job
	o.mu.Unlock()

	o.infof("queued execution %s: %s", job.ID(), task)
	return job, nil
}

// execute waits for a free slot, runs the job and hands the result to recorders.
// A job cancelled while queued still runs through the engine, which finishes it
// as CANCELLED without contacting any agent.
func (o *Orchestrator) execute(ctx context.Context, job *workflow.Job) *models.ExecutionResult {
	acquired := false
	select {
	case o.slots <- struct{}{}:
		acquired = true
	case <-job.Context().Done():
	}

	result := job.Run()
	if acquired {
		<-o.slots
	}

	o.record(context.WithoutCancel(ctx), result)
	o.retire(job.ID())
	return result
}

func (o *Orchestrator) record(ctx context.Context, result *models.ExecutionResult) {
	for _, r := range o.recorders {
		if err := r.Record(ctx, result); err != nil {
			o.warnf("failed to record execution %s: %v", result.ExecutionID, err)
		}
	}
}

// retire marks an execution finished and evicts the oldest finished ones
// beyond maxRetained.
func (o *Orchestrator) retire(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, id)
	for len(o.finished) > maxRetained {
		delete(o.executions, o.finished[0])
		o.finished = o.finished[1:]
	}
}

func (o *Orchestrator) lookup(id string) (*workflow.Job, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	job, ok := o.executions[id]
	return job, ok
}

func (o *Orchestrator) infof(format string, args ...any) {
	if o.logger != nil {
		o.logger.Infof(format, args...)
	}
}

func (o *Orchestrator) warnf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Warnf(format, args...)
	}
}
