package workflow

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/codescope/internal/models"
)

// analysisResult is the outcome of analyzing one language.
type analysisResult struct {
	language string
	required bool
	findings []models.Finding
	outcomes []models.AgentOutcome
	err      error
}

// analyzeLanguages runs one analyze call per detected language with at most
// cfg.MaxFanout in flight. The stage fails on the first required failure, which
// also cancels the sibling calls. Optional failures are only recorded.
// Findings are combined in language order regardless of completion order.
func analyzeLanguages(ctx context.Context, snap models.Snapshot, comm Communicator, cfg Config) StageOutcome {
	const stage = models.StageAnalyzing

	languages := snap.Artifacts.Languages
	if len(languages) == 0 {
		// Nothing detected: one generic analysis pass.
		languages = []string{""}
	}

	results := make([]analysisResult, len(languages))
	g, gctx := errgroup.WithContext(ctx)
	if cfg.MaxFanout > 0 {
		g.SetLimit(cfg.MaxFanout)
	}

	for i, lang := range languages {
		required := !cfg.IsOptionalLanguage(lang)
		g.Go(func() error {
			results[i] = analyzeLanguage(gctx, comm, cfg, snap.Artifacts.ModelHandle, lang, required)
			if results[i].err != nil && required {
				return results[i].err
			}
			return nil
		})
	}
	firstErr := g.Wait()

	var out StageOutcome
	for _, r := range results {
		if r.err != nil && r.err != firstErr && ctx.Err() == nil && errors.Is(r.err, context.Canceled) {
			// Sibling interrupted by a required failure; not its agent's fault.
			continue
		}
		out.Delta.Outcomes = append(out.Delta.Outcomes, r.outcomes...)
		if r.err == nil {
			out.Delta.Findings = append(out.Delta.Findings, r.findings...)
		}
	}
	if firstErr != nil {
		out.Err = NewStageError(stage, "", "analysis failed", firstErr)
	}
	return out
}

// analyzeLanguage analyzes one language. An empty language means any analyzer.
func analyzeLanguage(ctx context.Context, comm Communicator, cfg Config, modelHandle, lang string, required bool) analysisResult {
	const stage = models.StageAnalyzing
	result := analysisResult{language: lang, required: required}

	tags := []string{LanguageCapability(lang), CapabilityAnyLanguage}
	if lang == "" {
		tags = []string{CapabilityAnalyze}
	}
	req := AnalyzeRequest{ModelHandle: modelHandle, Language: lang}

	name, resp, outcomes, err := callAny(ctx, comm, cfg, stage, CapabilityAnalyze, tags, SkillAnalyze, req, required)
	result.outcomes = outcomes
	if err != nil {
		if len(outcomes) == 0 && ctx.Err() == nil {
			// No analyzer was found; record the gap under the language tag.
			result.outcomes = []models.AgentOutcome{{
				Agent: tags[0], Skill: SkillAnalyze, Stage: stage, Error: err.Error(),
				ErrorKind: kindOf(err), Required: required, At: time.Now().UTC(),
			}}
		}
		result.err = NewStageError(stage, name, "analyze "+displayLanguage(lang), err)
		return result
	}

	var ar AnalyzeResponse
	if err := resp.Decode(&ar); err != nil {
		result.err = NewStageError(stage, name, "malformed analyze response", err)
		return result
	}
	result.findings = ar.Findings
	return result
}

func displayLanguage(lang string) string {
	if lang == "" {
		return "repository"
	}
	return lang
}
