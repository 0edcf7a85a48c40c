package workflow

import (
	"fmt"

	"github.com/harrison/codescope/internal/models"
)

// Outcome is the classified result of running one stage.
type Outcome int

const (
	// Succeeded means the stage produced its output.
	Succeeded Outcome = iota
	// Transient means a retryable failure with stage retries left.
	Transient
	// Exhausted means a retryable failure with no stage retries left.
	Exhausted
	// Failed means a non-retryable failure (AgentError).
	Failed
	// Cancelled means a caller cancelled the execution.
	Cancelled
	// DeadlineExceeded means the overall execution deadline passed.
	DeadlineExceeded
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Transient:
		return "transient"
	case Exhausted:
		return "exhausted"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	case DeadlineExceeded:
		return "deadline_exceeded"
	default:
		return "unknown"
	}
}

// forward lists the stage each non-terminal stage advances to on success.
var forward = map[models.Stage]models.Stage{
	models.StageInitiated:     models.StageAcquiringData,
	models.StageAcquiringData: models.StageBuildingModel,
	models.StageBuildingModel: models.StageAnalyzing,
	models.StageAnalyzing:     models.StageSynthesizing,
	models.StageSynthesizing:  models.StageCompleted,
}

// transitions is the complete (stage, outcome) -> next stage table.
// Terminal stages have no entries.
var transitions = buildTransitions()

func buildTransitions() map[models.Stage]map[Outcome]models.Stage {
	table := make(map[models.Stage]map[Outcome]models.Stage, len(forward))
	for stage, next := range forward {
		table[stage] = map[Outcome]models.Stage{
			Succeeded:        next,
			Transient:        stage,
			Exhausted:        models.StageFailed,
			Failed:           models.StageFailed,
			Cancelled:        models.StageCancelled,
			DeadlineExceeded: models.StageFailed,
		}
	}
	return table
}

// Next returns the stage that follows stage given outcome.
func Next(stage models.Stage, outcome Outcome) (models.Stage, error) {
	row, ok := transitions[stage]
	if !ok {
		return stage, fmt.Errorf("no transitions out of %s", stage)
	}
	next, ok := row[outcome]
	if !ok {
		return stage, fmt.Errorf("invalid outcome %s for stage %s", outcome, stage)
	}
	return next, nil
}
