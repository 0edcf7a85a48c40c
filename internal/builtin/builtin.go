// Package builtin provides in-process agents that let codescope analyze a
// local checkout without any external collaborators.
//
// The set covers every stage: a local-path acquirer, a file inventory model
// builder, a marker analyzer for any language and a markdown synthesizer.
// External agents registered with the same capabilities are discovered
// alongside them.
package builtin

import (
	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/models"
	"github.com/harrison/codescope/internal/workflow"
)

// Agent names of the built-in collaborators.
const (
	AcquirerName    = "local-acquirer"
	InventoryName   = "file-inventory"
	MarkerName      = "marker-analyzer"
	SynthesizerName = "markdown-synthesizer"
)

type builtinAgent struct {
	desc    models.AgentDescriptor
	handler agent.Handler
}

func agents() []builtinAgent {
	return []builtinAgent{
		{
			desc: models.AgentDescriptor{
				Name:         AcquirerName,
				Description:  "Uses a local directory or file:// repository in place",
				Capabilities: []string{workflow.CapabilityAcquire},
			},
			handler: agent.HandlerFunc(workflow.SkillAcquire, acquire),
		},
		{
			desc: models.AgentDescriptor{
				Name:         InventoryName,
				Description:  "Builds a file inventory model of a local workspace",
				Capabilities: []string{workflow.CapabilityGraphModel},
			},
			handler: agent.HandlerFunc(workflow.SkillBuildModel, buildModel),
		},
		{
			desc: models.AgentDescriptor{
				Name:         MarkerName,
				Description:  "Reports TODO, FIXME, HACK and XXX markers in source files",
				Capabilities: []string{workflow.CapabilityAnalyze, workflow.CapabilityAnyLanguage},
			},
			handler: agent.HandlerFunc(workflow.SkillAnalyze, analyzeMarkers),
		},
		{
			desc: models.AgentDescriptor{
				Name:         SynthesizerName,
				Description:  "Writes a markdown report grouped by severity",
				Capabilities: []string{workflow.CapabilitySynthesize},
			},
			handler: agent.HandlerFunc(workflow.SkillSynthesize, synthesize),
		},
	}
}

// Register adds the built-in agents to registry and their handlers to transport.
func Register(registry *agent.Registry, transport *agent.InProcessTransport) error {
	for _, a := range agents() {
		a.desc.Transport = models.TransportInProcess
		if err := registry.Register(a.desc); err != nil {
			return err
		}
		transport.Handle(a.desc.Name, a.handler)
	}
	return nil
}

// Names returns the built-in agent names.
func Names() []string {
	list := agents()
	names := make([]string, len(list))
	for i, a := range list {
		names[i] = a.desc.Name
	}
	return names
}
