package workflow

import (
	"testing"

	"github.com/harrison/codescope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextForwardPath(t *testing.T) {
	path := []models.Stage{
		models.StageInitiated,
		models.StageAcquiringData,
		models.StageBuildingModel,
		models.StageAnalyzing,
		models.StageSynthesizing,
		models.StageCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		next, err := Next(path[i], Succeeded)
		require.NoError(t, err)
		assert.Equal(t, path[i+1], next, "after %s", path[i])
	}
}

func TestNextFailureOutcomes(t *testing.T) {
	working := []models.Stage{
		models.StageInitiated,
		models.StageAcquiringData,
		models.StageBuildingModel,
		models.StageAnalyzing,
		models.StageSynthesizing,
	}
	tests := []struct {
		outcome Outcome
		want    func(models.Stage) models.Stage
	}{
		{Transient, func(s models.Stage) models.Stage { return s }},
		{Exhausted, func(models.Stage) models.Stage { return models.StageFailed }},
		{Failed, func(models.Stage) models.Stage { return models.StageFailed }},
		{Cancelled, func(models.Stage) models.Stage { return models.StageCancelled }},
		{DeadlineExceeded, func(models.Stage) models.Stage { return models.StageFailed }},
	}
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			for _, stage := range working {
				next, err := Next(stage, tt.outcome)
				require.NoError(t, err)
				assert.Equal(t, tt.want(stage), next, "from %s", stage)
			}
		})
	}
}

func TestNextFromTerminalStage(t *testing.T) {
	for _, stage := range []models.Stage{models.StageCompleted, models.StageFailed, models.StageCancelled} {
		next, err := Next(stage, Succeeded)
		assert.Error(t, err)
		assert.Equal(t, stage, next)
	}
}

func TestNextUnknownOutcome(t *testing.T) {
	_, err := Next(models.StageAnalyzing, Outcome(99))
	assert.Error(t, err)
	assert.Equal(t, "unknown", Outcome(99).String())
}
