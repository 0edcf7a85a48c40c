package workflow

import (
	"context"
	"testing"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireStageNormalizesLanguages(t *testing.T) {
	comm := newFakeCommunicator(descriptor("cloner", CapabilityAcquire)).
		on(SkillAcquire, reply(AcquireResponse{LocalWorkspacePath: "/ws", DetectedLanguages: []string{"Go", " go", "TypeScript", ""}}))

	out := AcquireStage(testConfig())(context.Background(), models.Snapshot{Repository: "/srv/repo"}, comm)

	require.NoError(t, out.Err)
	assert.Equal(t, "/ws", out.Delta.Artifacts.WorkspacePath)
	assert.Equal(t, []string{"go", "typescript"}, out.Delta.Artifacts.Languages)
	require.Len(t, out.Delta.Outcomes, 1)
	assert.Equal(t, "cloner", out.Delta.Outcomes[0].Agent)
	assert.False(t, out.Delta.Outcomes[0].Failed())
}

func TestAcquireStageRequiresWorkspace(t *testing.T) {
	comm := newFakeCommunicator(descriptor("cloner", CapabilityAcquire)).
		on(SkillAcquire, reply(AcquireResponse{}))

	out := AcquireStage(testConfig())(context.Background(), models.Snapshot{Repository: "/srv/repo"}, comm)

	require.Error(t, out.Err)
	assert.Equal(t, models.ErrorKindAgentError, kindOf(out.Err))
	assert.Equal(t, "cloner", blame(out.Err))
}

func TestBuildModelStageWithoutWorkspace(t *testing.T) {
	comm := newFakeCommunicator(descriptor("graph", CapabilityGraphModel))

	out := BuildModelStage(testConfig())(context.Background(), models.Snapshot{}, comm)

	require.Error(t, out.Err)
	assert.True(t, IsStageError(out.Err))
	assert.Equal(t, 0, comm.callCount(SkillBuildModel))
}

func TestSynthesizeStageSendsTaskContext(t *testing.T) {
	var got SynthesizeRequest
	comm := newFakeCommunicator(descriptor("writer", CapabilitySynthesize)).
		on(SkillSynthesize, func(_ context.Context, _ string, payload any, _ int) (agent.Response, error) {
			got = payload.(SynthesizeRequest)
			return respond(SynthesizeResponse{ReportText: "done"}), nil
		})
	snap := models.Snapshot{
		ExecutionID: "exec-1",
		TaskType:    models.TaskReviewPR,
		Repository:  "git@example.com:org/repo.git",
		PRID:        "7",
		Findings:    findingsFor("go", 1),
		Artifacts:   models.Artifacts{Languages: []string{"go"}, NodeCount: 9},
	}

	out := SynthesizeStage(testConfig())(context.Background(), snap, comm)

	require.NoError(t, out.Err)
	assert.Equal(t, "done", out.Delta.Artifacts.ReportText)
	assert.Len(t, got.Findings, 1)
	assert.Equal(t, TaskContext{
		ExecutionID:       "exec-1",
		TaskType:          models.TaskReviewPR,
		RepositoryLocator: "git@example.com:org/repo.git",
		PRIdentifier:      "7",
		Languages:         []string{"go"},
		NodeCount:         9,
	}, got.TaskContext)
}

func TestCallAnyStopsOnAgentError(t *testing.T) {
	comm := newFakeCommunicator(descriptor("a", CapabilityAcquire), descriptor("b", CapabilityAcquire)).
		on(SkillAcquire, fail(models.ErrorKindAgentError))

	name, _, outcomes, err := callAny(context.Background(), comm, testConfig(), models.StageAcquiringData,
		CapabilityAcquire, []string{CapabilityAcquire}, SkillAcquire, nil, true)

	require.Error(t, err)
	assert.Equal(t, "a", name)
	assert.Len(t, outcomes, 1)
	assert.Equal(t, []string{"a/acquire"}, comm.callLog())
}

func TestCallAnyRequiresCapability(t *testing.T) {
	// Tagged for go but not an analyzer.
	comm := newFakeCommunicator(descriptor("linter", "lang:go"))

	_, _, _, err := callAny(context.Background(), comm, testConfig(), models.StageAnalyzing,
		CapabilityAnalyze, []string{"lang:go"}, SkillAnalyze, nil, true)

	assert.True(t, agent.IsUnavailable(err))
}

func TestConfigOptionalLanguages(t *testing.T) {
	cfg := Config{OptionalLanguages: []string{" Python ", "rust"}}
	assert.True(t, cfg.IsOptionalLanguage("python"))
	assert.True(t, cfg.IsOptionalLanguage("RUST"))
	assert.False(t, cfg.IsOptionalLanguage("go"))
	assert.False(t, DefaultConfig().IsOptionalLanguage("go"))
}
