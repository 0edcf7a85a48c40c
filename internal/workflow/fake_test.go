package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/models"
)

// skillFunc answers one call. n is the 1-based count of calls to that skill.
type skillFunc func(ctx context.Context, agentName string, payload any, n int) (agent.Response, error)

// fakeCommunicator is a scripted Communicator that records every call.
type fakeCommunicator struct {
	mu     sync.Mutex
	agents []models.AgentDescriptor
	skills map[string]skillFunc
	calls  map[string]int
	log    []string
}

func newFakeCommunicator(agents ...models.AgentDescriptor) *fakeCommunicator {
	return &fakeCommunicator{
		agents: agents,
		skills: make(map[string]skillFunc),
		calls:  make(map[string]int),
	}
}

func (f *fakeCommunicator) on(skill string, fn skillFunc) *fakeCommunicator {
	f.skills[skill] = fn
	return f
}

func (f *fakeCommunicator) Discover(tags []string) []models.AgentDescriptor {
	var out []models.AgentDescriptor
	for _, a := range f.agents {
		if a.HasAnyCapability(tags) {
			out = append(out, a)
		}
	}
	return out
}

func (f *fakeCommunicator) Call(ctx context.Context, agentName, skill string, payload any, timeout time.Duration) (agent.Response, error) {
	f.mu.Lock()
	f.calls[skill]++
	n := f.calls[skill]
	f.log = append(f.log, agentName+"/"+skill)
	fn := f.skills[skill]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, callErr(models.ErrorKindAgentError, agentName, skill)
	}
	return fn(ctx, agentName, payload, n)
}

func (f *fakeCommunicator) callCount(skill string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[skill]
}

func (f *fakeCommunicator) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.log...)
}

func callErr(kind models.ErrorKind, agentName, skill string) error {
	return &agent.CallError{Kind: kind, Agent: agentName, Skill: skill, Message: string(kind)}
}

func respond(v any) agent.Response {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return agent.Response(data)
}

func reply(v any) skillFunc {
	return func(context.Context, string, any, int) (agent.Response, error) {
		return respond(v), nil
	}
}

func fail(kind models.ErrorKind) skillFunc {
	return func(_ context.Context, agentName string, _ any, _ int) (agent.Response, error) {
		return nil, callErr(kind, agentName, "")
	}
}

// failTimes fails the first n calls with kind and then delegates to then.
func failTimes(n int, kind models.ErrorKind, then skillFunc) skillFunc {
	return func(ctx context.Context, agentName string, payload any, call int) (agent.Response, error) {
		if call <= n {
			return nil, callErr(kind, agentName, "")
		}
		return then(ctx, agentName, payload, call)
	}
}

func descriptor(name string, caps ...string) models.AgentDescriptor {
	return models.AgentDescriptor{Name: name, Capabilities: caps, Transport: models.TransportInProcess, Health: models.HealthUnknown}
}

// standardAgents is one agent per stage with a Go and a Python analyzer.
func standardAgents() []models.AgentDescriptor {
	return []models.AgentDescriptor{
		descriptor("cloner", CapabilityAcquire),
		descriptor("graph", CapabilityGraphModel),
		descriptor("go-analyzer", CapabilityAnalyze, "lang:go"),
		descriptor("py-analyzer", CapabilityAnalyze, "lang:python"),
		descriptor("writer", CapabilitySynthesize),
	}
}

func findingsFor(lang string, n int) []models.Finding {
	out := make([]models.Finding, n)
	for i := range out {
		out[i] = models.Finding{Severity: models.SeverityMedium, Category: lang, Message: lang + " finding"}
	}
	return out
}

// happyPath scripts every skill to succeed: go yields 2 findings, python 3.
func happyPath(f *fakeCommunicator) *fakeCommunicator {
	return f.
		on(SkillAcquire, reply(AcquireResponse{LocalWorkspacePath: "/tmp/ws", DetectedLanguages: []string{"Go", "python"}})).
		on(SkillBuildModel, reply(BuildModelResponse{ModelHandle: "model-1", NodeCount: 42})).
		on(SkillAnalyze, func(_ context.Context, agentName string, payload any, _ int) (agent.Response, error) {
			req := payload.(AnalyzeRequest)
			switch req.Language {
			case "go":
				return respond(AnalyzeResponse{Findings: findingsFor("go", 2)}), nil
			case "python":
				return respond(AnalyzeResponse{Findings: findingsFor("python", 3)}), nil
			}
			return respond(AnalyzeResponse{}), nil
		}).
		on(SkillSynthesize, func(_ context.Context, _ string, payload any, _ int) (agent.Response, error) {
			req := payload.(SynthesizeRequest)
			return respond(SynthesizeResponse{ReportText: fmt.Sprintf("# Report\n\n%d findings", len(req.Findings))}), nil
		})
}

func testConfig() Config {
	return Config{
		ExecutionTimeout: 10 * time.Second,
		CallTimeout:      time.Second,
		MaxStageRetries:  3,
		MaxFanout:        4,
	}
}
