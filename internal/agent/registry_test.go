package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/harrison/codescope/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAgentFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRegistryLoad(t *testing.T) {
	tmpDir := t.TempDir()

	writeAgentFile(t, tmpDir, "acquirer.md", `---
name: acquirer
description: Clones repositories and detects languages
capabilities: acquire
transport: command
endpoint: /usr/local/bin/acquirer
---

# Acquirer
`)
	writeAgentFile(t, tmpDir, "go-analyzer.md", `---
name: go-analyzer
capabilities:
  - analyze
  - lang:go
transport: http
endpoint: http://localhost:9001
---
`)
	writeAgentFile(t, filepath.Join(tmpDir, "graph"), "graph.md", `---
name: graph
capabilities: "graph-model, Graph-Model"
endpoint: graph-builder --serve
---
`)
	writeAgentFile(t, tmpDir, "README.md", "# Agents\n")
	writeAgentFile(t, tmpDir, "notes.txt", "not an agent")
	writeAgentFile(t, filepath.Join(tmpDir, ".hidden"), "secret.md", "---\nname: secret\ncapabilities: acquire\nendpoint: x\n---\n")

	registry := NewRegistry(tmpDir)
	count, err := registry.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	acquirer, ok := registry.Get("acquirer")
	require.True(t, ok)
	assert.Equal(t, []string{"acquire"}, acquirer.Capabilities)
	assert.Equal(t, models.TransportCommand, acquirer.Transport)
	assert.Equal(t, models.HealthUnknown, acquirer.Health)

	analyzer, ok := registry.Get("go-analyzer")
	require.True(t, ok)
	assert.Equal(t, []string{"analyze", "lang:go"}, analyzer.Capabilities)
	assert.Equal(t, models.TransportHTTP, analyzer.Transport)

	graph, ok := registry.Get("graph")
	require.True(t, ok)
	assert.Equal(t, []string{"graph-model"}, graph.Capabilities, "tags are normalized and de-duplicated")
	assert.Equal(t, models.TransportCommand, graph.Transport, "command is the default transport")

	assert.False(t, registry.Exists("secret"))
}

func TestRegistryLoadSkipsInvalidFiles(t *testing.T) {
	tmpDir := t.TempDir()
	writeAgentFile(t, tmpDir, "no-frontmatter.md", "# just docs\n")
	writeAgentFile(t, tmpDir, "no-name.md", "---\ncapabilities: acquire\nendpoint: x\n---\n")
	writeAgentFile(t, tmpDir, "no-caps.md", "---\nname: nocaps\nendpoint: x\n---\n")
	writeAgentFile(t, tmpDir, "bad-transport.md", "---\nname: bad\ncapabilities: acquire\ntransport: carrier-pigeon\nendpoint: x\n---\n")
	writeAgentFile(t, tmpDir, "no-endpoint.md", "---\nname: noendpoint\ncapabilities: acquire\ntransport: http\n---\n")
	writeAgentFile(t, tmpDir, "good.md", "---\nname: good\ncapabilities: acquire\nendpoint: ./good\n---\n")

	var warnings []string
	registry := NewRegistry(tmpDir)
	count, err := registry.Load(func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Len(t, warnings, 5)
	assert.True(t, registry.Exists("good"))
}

func TestRegistryLoadMissingDirectory(t *testing.T) {
	registry := NewRegistry(filepath.Join(t.TempDir(), "does-not-exist"))
	count, err := registry.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Empty(t, registry.List())
}

func TestRegistryReloadKeepsProgrammaticAgents(t *testing.T) {
	tmpDir := t.TempDir()
	writeAgentFile(t, tmpDir, "one.md", "---\nname: one\ncapabilities: acquire\nendpoint: ./one\n---\n")

	registry := NewRegistry(tmpDir)
	require.NoError(t, registry.Register(models.AgentDescriptor{
		Name: "builtin", Capabilities: []string{"synthesize"}, Transport: models.TransportInProcess,
	}))
	_, err := registry.Load(nil)
	require.NoError(t, err)
	assert.True(t, registry.Exists("one"))

	require.NoError(t, os.Remove(filepath.Join(tmpDir, "one.md")))
	writeAgentFile(t, tmpDir, "two.md", "---\nname: two\ncapabilities: acquire\nendpoint: ./two\n---\n")
	_, err = registry.Load(nil)
	require.NoError(t, err)

	assert.False(t, registry.Exists("one"))
	assert.True(t, registry.Exists("two"))
	assert.True(t, registry.Exists("builtin"))

	names := []string{}
	for _, d := range registry.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"builtin", "two"}, names)
}

func TestRegistryRegisterValidation(t *testing.T) {
	registry := NewRegistry("")

	tests := []struct {
		name string
		desc models.AgentDescriptor
	}{
		{"missing name", models.AgentDescriptor{Capabilities: []string{"acquire"}, Transport: models.TransportInProcess}},
		{"unknown transport", models.AgentDescriptor{Name: "a", Capabilities: []string{"acquire"}, Transport: "smoke"}},
		{"missing endpoint", models.AgentDescriptor{Name: "a", Capabilities: []string{"acquire"}, Transport: models.TransportHTTP}},
		{"no capabilities", models.AgentDescriptor{Name: "a", Transport: models.TransportInProcess}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, registry.Register(tt.desc))
		})
	}

	require.NoError(t, registry.Register(models.AgentDescriptor{
		Name: "a", Capabilities: []string{" Acquire "}, Transport: models.TransportInProcess,
	}))
	a, _ := registry.Get("a")
	assert.Equal(t, []string{"acquire"}, a.Capabilities)

	registry.Remove("a")
	assert.False(t, registry.Exists("a"))
}

func TestExtractFrontmatter(t *testing.T) {
	fm, body := extractFrontmatter([]byte("---\nname: x\n---\nbody text"))
	assert.Equal(t, "name: x", string(fm))
	assert.Equal(t, "body text", string(body))

	fm, _ = extractFrontmatter([]byte("---\r\nname: x\r\n---\r\n"))
	assert.Equal(t, "name: x", string(fm))

	fm, body = extractFrontmatter([]byte("no frontmatter"))
	assert.Nil(t, fm)
	assert.Equal(t, "no frontmatter", string(body))

	fm, _ = extractFrontmatter([]byte("---\nname: x\nunterminated"))
	assert.Nil(t, fm)
}
