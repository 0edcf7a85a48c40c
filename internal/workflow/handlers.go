package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/models"
)

// Communicator is the slice of agent.Manager the workflow depends on.
type Communicator interface {
	Discover(tags []string) []models.AgentDescriptor
	Call(ctx context.Context, agentName, skill string, payload any, timeout time.Duration) (agent.Response, error)
}

// Delta is the change a stage wants applied to the execution state.
// Artifacts and Findings are only applied when the stage succeeds;
// Outcomes are always recorded.
type Delta struct {
	Artifacts models.Artifacts
	Findings  []models.Finding
	Outcomes  []models.AgentOutcome
}

// StageOutcome is what a stage handler returns. A nil Err means success.
type StageOutcome struct {
	Delta Delta
	Err   error
}

// StageHandler runs one stage against a read-only snapshot of the execution.
// Handlers never touch ExecutionState directly.
type StageHandler func(ctx context.Context, snap models.Snapshot, comm Communicator) StageOutcome

// DefaultHandlers returns the handler for every non-terminal working stage.
func DefaultHandlers(cfg Config) map[models.Stage]StageHandler {
	return map[models.Stage]StageHandler{
		models.StageAcquiringData: AcquireStage(cfg),
		models.StageBuildingModel: BuildModelStage(cfg),
		models.StageAnalyzing:     AnalyzeStage(cfg),
		models.StageSynthesizing:  SynthesizeStage(cfg),
	}
}

// AcquireStage clones or locates the repository and detects its languages.
func AcquireStage(cfg Config) StageHandler {
	return func(ctx context.Context, snap models.Snapshot, comm Communicator) StageOutcome {
		const stage = models.StageAcquiringData
		req := AcquireRequest{RepositoryLocator: snap.Repository}

		name, resp, outcomes, err := callAny(ctx, comm, cfg, stage, CapabilityAcquire, []string{CapabilityAcquire}, SkillAcquire, req, true)
		out := StageOutcome{Delta: Delta{Outcomes: outcomes}}
		if err != nil {
			out.Err = NewStageError(stage, name, "acquire repository", err)
			return out
		}

		var ar AcquireResponse
		if err := resp.Decode(&ar); err != nil {
			out.Err = NewStageError(stage, name, "malformed acquire response", err)
			return out
		}
		if ar.LocalWorkspacePath == "" {
			out.Err = NewStageError(stage, name, "acquire response has no local_workspace_path", nil)
			return out
		}
		out.Delta.Artifacts = models.Artifacts{
			WorkspacePath: ar.LocalWorkspacePath,
			Languages:     normalizeLanguages(ar.DetectedLanguages),
		}
		return out
	}
}

// BuildModelStage builds the code model, over the whole repository for scans
// and over the PR diff for reviews.
func BuildModelStage(cfg Config) StageHandler {
	return func(ctx context.Context, snap models.Snapshot, comm Communicator) StageOutcome {
		const stage = models.StageBuildingModel
		if snap.Artifacts.WorkspacePath == "" {
			return StageOutcome{Err: NewStageError(stage, "", "no workspace acquired", nil)}
		}
		req := BuildModelRequest{
			LocalWorkspacePath: snap.Artifacts.WorkspacePath,
			Scope:              scopeFor(snap),
		}

		name, resp, outcomes, err := callAny(ctx, comm, cfg, stage, CapabilityGraphModel, []string{CapabilityGraphModel}, SkillBuildModel, req, true)
		out := StageOutcome{Delta: Delta{Outcomes: outcomes}}
		if err != nil {
			out.Err = NewStageError(stage, name, "build model", err)
			return out
		}

		var br BuildModelResponse
		if err := resp.Decode(&br); err != nil {
			out.Err = NewStageError(stage, name, "malformed build_model response", err)
			return out
		}
		if br.ModelHandle == "" {
			out.Err = NewStageError(stage, name, "build_model response has no model_handle", nil)
			return out
		}
		out.Delta.Artifacts = models.Artifacts{ModelHandle: br.ModelHandle, NodeCount: br.NodeCount}
		return out
	}
}

// AnalyzeStage fans out one analyze call per detected language. See fanout.go.
func AnalyzeStage(cfg Config) StageHandler {
	return func(ctx context.Context, snap models.Snapshot, comm Communicator) StageOutcome {
		if snap.Artifacts.ModelHandle == "" {
			return StageOutcome{Err: NewStageError(models.StageAnalyzing, "", "no code model built", nil)}
		}
		return analyzeLanguages(ctx, snap, comm, cfg)
	}
}

// SynthesizeStage turns the accumulated findings into report text.
func SynthesizeStage(cfg Config) StageHandler {
	return func(ctx context.Context, snap models.Snapshot, comm Communicator) StageOutcome {
		const stage = models.StageSynthesizing
		findings := snap.Findings
		if findings == nil {
			findings = []models.Finding{}
		}
		req := SynthesizeRequest{
			Findings: findings,
			TaskContext: TaskContext{
				ExecutionID:       snap.ExecutionID,
				TaskType:          snap.TaskType,
				RepositoryLocator: snap.Repository,
				PRIdentifier:      snap.PRID,
				Languages:         snap.Artifacts.Languages,
				NodeCount:         snap.Artifacts.NodeCount,
			},
		}

		name, resp, outcomes, err := callAny(ctx, comm, cfg, stage, CapabilitySynthesize, []string{CapabilitySynthesize}, SkillSynthesize, req, true)
		out := StageOutcome{Delta: Delta{Outcomes: outcomes}}
		if err != nil {
			out.Err = NewStageError(stage, name, "synthesize report", err)
			return out
		}

		var sr SynthesizeResponse
		if err := resp.Decode(&sr); err != nil {
			out.Err = NewStageError(stage, name, "malformed synthesize response", err)
			return out
		}
		out.Delta.Artifacts = models.Artifacts{ReportText: sr.ReportText}
		return out
	}
}

// callAny calls skill on the first discovered agent that answers. Candidates
// must carry capability and at least one of anyOf. An unavailable candidate is
// skipped in favour of the next; any other failure stops the search.
// The returned name is the agent that answered or the last one tried.
func callAny(ctx context.Context, comm Communicator, cfg Config, stage models.Stage, capability string, anyOf []string, skill string, payload any, required bool) (string, agent.Response, []models.AgentOutcome, error) {
	var candidates []models.AgentDescriptor
	for _, desc := range comm.Discover(anyOf) {
		if desc.HasCapability(capability) {
			candidates = append(candidates, desc)
		}
	}
	if len(candidates) == 0 {
		return "", nil, nil, &agent.CallError{
			Kind:    models.ErrorKindAgentUnavailable,
			Skill:   skill,
			Message: fmt.Sprintf("no agent offers %s", strings.Join(anyOf, " or ")),
		}
	}

	var (
		outcomes []models.AgentOutcome
		lastName string
		lastErr  error
	)
	for _, desc := range candidates {
		lastName = desc.Name
		resp, err := comm.Call(ctx, desc.Name, skill, payload, cfg.CallTimeout)
		if err == nil {
			outcomes = append(outcomes, models.AgentOutcome{
				Agent: desc.Name, Skill: skill, Stage: stage, Result: []byte(resp), Required: required, At: time.Now().UTC(),
			})
			return desc.Name, resp, outcomes, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, models.AgentOutcome{
			Agent: desc.Name, Skill: skill, Stage: stage, Error: err.Error(), ErrorKind: kindOf(err), Required: required, At: time.Now().UTC(),
		})
		if !agent.IsUnavailable(err) {
			break
		}
	}
	return lastName, nil, outcomes, lastErr
}

// normalizeLanguages lower-cases and de-duplicates language names, keeping order.
func normalizeLanguages(langs []string) []string {
	seen := make(map[string]bool, len(langs))
	var out []string
	for _, lang := range langs {
		lang = strings.ToLower(strings.TrimSpace(lang))
		if lang == "" || seen[lang] {
			continue
		}
		seen[lang] = true
		out = append(out, lang)
	}
	return out
}
