package workflow

import (
	"strings"

	"github.com/harrison/codescope/internal/models"
)

// Skill ids understood by collaborators.
const (
	SkillAcquire    = "acquire"
	SkillBuildModel = "build_model"
	SkillAnalyze    = "analyze"
	SkillSynthesize = "synthesize"
)

// Capability tags used to discover collaborators for each stage.
const (
	CapabilityAcquire    = "acquire"
	CapabilityGraphModel = "graph-model"
	CapabilityAnalyze    = "analyze"
	CapabilitySynthesize = "synthesize"

	// CapabilityAnyLanguage marks an analyzer that accepts every language.
	CapabilityAnyLanguage = "lang:any"
)

// LanguageCapability returns the capability tag for analyzers of lang.
func LanguageCapability(lang string) string {
	return "lang:" + strings.ToLower(strings.TrimSpace(lang))
}

// AcquireRequest is the payload of the acquire skill.
type AcquireRequest struct {
	RepositoryLocator string `json:"repository_locator"`
}

// AcquireResponse is the result of the acquire skill.
type AcquireResponse struct {
	LocalWorkspacePath string   `json:"local_workspace_path"`
	DetectedLanguages  []string `json:"detected_languages"`
}

// ScopeKind selects whether a model covers the whole repository or a PR diff.
type ScopeKind string

const (
	ScopeFull ScopeKind = "FULL"
	ScopeDiff ScopeKind = "DIFF"
)

// ModelScope is the scope argument of build_model.
type ModelScope struct {
	Kind         ScopeKind `json:"kind"`
	PRIdentifier string    `json:"pr_identifier,omitempty"`
}

// BuildModelRequest is the payload of the build_model skill.
type BuildModelRequest struct {
	LocalWorkspacePath string     `json:"local_workspace_path"`
	Scope              ModelScope `json:"scope"`
}

// BuildModelResponse is the result of the build_model skill.
type BuildModelResponse struct {
	ModelHandle string `json:"model_handle"`
	NodeCount   int    `json:"node_count"`
}

// AnalyzeRequest is the payload of the analyze skill.
type AnalyzeRequest struct {
	ModelHandle string `json:"model_handle"`
	Language    string `json:"language"`
}

// AnalyzeResponse is the result of the analyze skill.
type AnalyzeResponse struct {
	Findings []models.Finding `json:"findings"`
}

// TaskContext tells the synthesizer what was analyzed.
type TaskContext struct {
	ExecutionID       string          `json:"execution_id"`
	TaskType          models.TaskType `json:"task_type"`
	RepositoryLocator string          `json:"repository_locator"`
	PRIdentifier      string          `json:"pr_identifier,omitempty"`
	Languages         []string        `json:"languages,omitempty"`
	NodeCount         int             `json:"node_count,omitempty"`
}

// SynthesizeRequest is the payload of the synthesize skill.
type SynthesizeRequest struct {
	Findings    []models.Finding `json:"findings"`
	TaskContext TaskContext      `json:"task_context"`
}

// SynthesizeResponse is the result of the synthesize skill.
type SynthesizeResponse struct {
	ReportText string `json:"report_text"`
}

// scopeFor returns the model scope for the snapshot's task type.
func scopeFor(snap models.Snapshot) ModelScope {
	if snap.TaskType == models.TaskReviewPR {
		return ModelScope{Kind: ScopeDiff, PRIdentifier: snap.PRID}
	}
	return ModelScope{Kind: ScopeFull}
}
