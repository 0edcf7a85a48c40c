package models

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *ExecutionState {
	t.Helper()
	task, err := NewTaskDefinition(TaskScanProject, "https://example.com/org/repo.git", "")
	require.NoError(t, err)
	return NewExecutionState("exec-1", task)
}

func TestExecutionStateAdvance(t *testing.T) {
	state := newTestState(t)
	assert.Equal(t, StageInitiated, state.Stage())

	require.NoError(t, state.Advance(StageAcquiringData))
	require.NoError(t, state.Advance(StageBuildingModel))

	t.Run("rejects moving backwards", func(t *testing.T) {
		err := state.Advance(StageAcquiringData)
		require.Error(t, err)
		assert.Equal(t, StageBuildingModel, state.Stage())
	})

	t.Run("same stage keeps retry counter", func(t *testing.T) {
		state.RecordRetry("graph")
		require.NoError(t, state.Advance(StageBuildingModel))
		assert.Equal(t, 1, state.StageRetries())
	})

	t.Run("new stage resets retry counter", func(t *testing.T) {
		require.NoError(t, state.Advance(StageAnalyzing))
		assert.Equal(t, 0, state.StageRetries())
	})

	t.Run("terminal stage is absorbing", func(t *testing.T) {
		require.NoError(t, state.Advance(StageFailed))
		assert.Error(t, state.Advance(StageCancelled))
		assert.Equal(t, StageFailed, state.Stage())
		assert.False(t, state.Snapshot().CompletedAt.IsZero())
	})
}

func TestExecutionStateRetriesAndOutcomes(t *testing.T) {
	state := newTestState(t)
	require.NoError(t, state.Advance(StageAcquiringData))

	assert.Equal(t, 1, state.RecordRetry("acquirer"))
	assert.Equal(t, 2, state.RecordRetry("acquirer"))

	state.RecordOutcome(AgentOutcome{Agent: "acquirer", Skill: "acquire", Error: "timeout", ErrorKind: ErrorKindAgentTimeout})
	state.RecordOutcome(AgentOutcome{Agent: "acquirer", Skill: "acquire", Result: json.RawMessage(`{}`)})

	snap := state.Snapshot()
	assert.Equal(t, 2, snap.RetryCounts["acquirer"])
	assert.Equal(t, 1, snap.ErrorCount)
	assert.False(t, snap.AgentOutcomes["acquirer"].Failed())
	assert.False(t, snap.AgentOutcomes["acquirer"].At.IsZero())
}

func TestExecutionStateSnapshotIsACopy(t *testing.T) {
	state := newTestState(t)
	state.AppendFindings(Finding{Severity: SeverityHigh, Category: "security", Message: "one"})
	state.MergeArtifacts(Artifacts{Languages: []string{"go"}})

	snap := state.Snapshot()
	snap.Findings[0].Message = "mutated"
	snap.Artifacts.Languages[0] = "rust"
	snap.RetryCounts["x"] = 9

	again := state.Snapshot()
	assert.Equal(t, "one", again.Findings[0].Message)
	assert.Equal(t, []string{"go"}, again.Artifacts.Languages)
	assert.NotContains(t, again.RetryCounts, "x")
	assert.Equal(t, "https://example.com/org/repo.git", again.Repository)
}

func TestExecutionStateFindingsAppendOnly(t *testing.T) {
	state := newTestState(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			state.AppendFindings(Finding{Severity: SeverityLow, Category: "style", Message: "m"})
		}()
	}
	wg.Wait()

	assert.Len(t, state.Snapshot().Findings, 20)
}

func TestMergeArtifactsKeepsEarlierFields(t *testing.T) {
	state := newTestState(t)
	state.MergeArtifacts(Artifacts{WorkspacePath: "/tmp/ws", Languages: []string{"go", "python"}})
	state.MergeArtifacts(Artifacts{ModelHandle: "model-1", NodeCount: 12})

	a := state.Artifacts()
	assert.Equal(t, "/tmp/ws", a.WorkspacePath)
	assert.Equal(t, []string{"go", "python"}, a.Languages)
	assert.Equal(t, "model-1", a.ModelHandle)
	assert.Equal(t, 12, a.NodeCount)
}

func TestNewExecutionResult(t *testing.T) {
	state := newTestState(t)
	state.AppendFindings(Finding{Severity: SeverityMedium, Category: "bug", Message: "nil deref"})
	state.MergeArtifacts(Artifacts{ReportText: "# Report"})
	for _, stage := range []Stage{StageAcquiringData, StageBuildingModel, StageAnalyzing, StageSynthesizing, StageCompleted} {
		require.NoError(t, state.Advance(stage))
	}

	result := NewExecutionResult(state.Snapshot())
	assert.True(t, result.Success)
	assert.Equal(t, StageCompleted, result.FinalStage)
	assert.Len(t, result.Findings, 1)
	assert.Equal(t, "# Report", result.ReportText)
	assert.Nil(t, result.Error)
	assert.False(t, result.Cancelled())
}

func TestStageNames(t *testing.T) {
	for stage, name := range stageNames {
		parsed, err := ParseStage(name)
		require.NoError(t, err)
		assert.Equal(t, stage, parsed)
	}
	_, err := ParseStage("bogus")
	assert.Error(t, err)

	data, err := json.Marshal(StageAnalyzing)
	require.NoError(t, err)
	assert.Equal(t, `"ANALYZING"`, string(data))

	assert.True(t, StageCancelled.IsFailure())
	assert.True(t, StageCancelled.IsTerminal())
	assert.False(t, StageSynthesizing.IsTerminal())
}
