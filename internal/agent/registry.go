package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/harrison/codescope/internal/models"
	"gopkg.in/yaml.v3"
)

// TagList is a custom type that handles both comma-separated strings
// and YAML arrays for the capabilities field in agent frontmatter
type TagList []string

// UnmarshalYAML implements custom unmarshaling for TagList
// Accepts both formats:
// - Comma-separated string: "analyze, lang:go"
// - YAML array: [analyze, lang:go]
func (t *TagList) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err == nil {
		parts := strings.Split(str, ",")
		*t = make(TagList, 0, len(parts))
		for _, part := range parts {
			tag := strings.TrimSpace(part)
			if tag != "" {
				*t = append(*t, tag)
			}
		}
		return nil
	}

	var arr []string
	if err := value.Decode(&arr); err == nil {
		*t = TagList(arr)
		return nil
	}

	return fmt.Errorf("capabilities must be either a comma-separated string or an array")
}

// agentDefinition is the YAML frontmatter of an agent definition file
type agentDefinition struct {
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	Capabilities TagList `yaml:"capabilities"`
	Transport    string  `yaml:"transport"`
	Endpoint     string  `yaml:"endpoint"`
}

// Registry holds the known agents. Membership changes only on Register, Remove
// or Load; health is not stored here but tracked per agent by the Manager.
type Registry struct {
	AgentsDir string

	mu       sync.RWMutex
	agents   map[string]models.AgentDescriptor
	fromFile map[string]bool // agent names that came from AgentsDir
}

// NewRegistry creates a new agent registry.
// AgentsDir may be empty, in which case only programmatic registrations are used.
func NewRegistry(agentsDir string) *Registry {
	return &Registry{
		AgentsDir: agentsDir,
		agents:    make(map[string]models.AgentDescriptor),
		fromFile:  make(map[string]bool),
	}
}

// Register adds or replaces an agent.
func (r *Registry) Register(desc models.AgentDescriptor) error {
	if err := validateDescriptor(desc); err != nil {
		return err
	}
	desc.Capabilities = normalizeTags(desc.Capabilities)
	if desc.Health == "" {
		desc.Health = models.HealthUnknown
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[desc.Name] = desc
	delete(r.fromFile, desc.Name)
	return nil
}

// Remove deletes an agent from the registry.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, name)
	delete(r.fromFile, name)
}

// Get retrieves an agent by name
// Returns the agent and true if found, zero value and false otherwise
func (r *Registry) Get(name string) (models.AgentDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.agents[name]
	return desc, ok
}

// Exists checks if an agent with the given name exists in the registry
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// List returns all agents sorted by name.
func (r *Registry) List() []models.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]models.AgentDescriptor, 0, len(r.agents))
	for _, desc := range r.agents {
		list = append(list, desc)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// Load scans AgentsDir for agent definition files and replaces every agent that
// previously came from disk. Programmatic registrations are kept.
// A missing directory is not an error. Files that fail to parse are reported
// through warn and skipped.
//
// Strategy:
// - Scans .md files anywhere below AgentsDir
// - Skips README.md files (documentation, not agent definitions)
// - Skips hidden directories
func (r *Registry) Load(warn func(format string, args ...any)) (int, error) {
	if r.AgentsDir == "" {
		return 0, nil
	}
	if _, err := os.Stat(r.AgentsDir); os.IsNotExist(err) {
		return 0, nil
	}

	loaded := make(map[string]models.AgentDescriptor)
	err := filepath.Walk(r.AgentsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != r.AgentsDir && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".md") || filepath.Base(path) == "README.md" {
			return nil
		}

		desc, err := parseAgentFile(path)
		if err != nil {
			if warn != nil {
				warn("failed to parse agent definition %s: %v", path, err)
			}
			return nil
		}
		if _, dup := loaded[desc.Name]; dup && warn != nil {
			warn("duplicate agent %q in %s overrides an earlier definition", desc.Name, path)
		}
		loaded[desc.Name] = desc
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan agents directory %s: %w", r.AgentsDir, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.fromFile {
		delete(r.agents, name)
	}
	r.fromFile = make(map[string]bool, len(loaded))
	for name, desc := range loaded {
		r.agents[name] = desc
		r.fromFile[name] = true
	}
	return len(loaded), nil
}

// parseAgentFile parses a single agent definition file
func parseAgentFile(path string) (models.AgentDescriptor, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.AgentDescriptor{}, err
	}

	frontmatter, _ := extractFrontmatter(content)
	if frontmatter == nil {
		return models.AgentDescriptor{}, fmt.Errorf("no frontmatter found in %s", path)
	}

	var def agentDefinition
	if err := yaml.Unmarshal(frontmatter, &def); err != nil {
		return models.AgentDescriptor{}, fmt.Errorf("failed to parse frontmatter: %w", err)
	}

	desc := models.AgentDescriptor{
		Name:         strings.TrimSpace(def.Name),
		Description:  def.Description,
		Capabilities: normalizeTags(def.Capabilities),
		Transport:    models.TransportKind(strings.ToLower(strings.TrimSpace(def.Transport))),
		Endpoint:     strings.TrimSpace(def.Endpoint),
		Health:       models.HealthUnknown,
	}
	if desc.Transport == "" {
		desc.Transport = models.TransportCommand
	}
	if err := validateDescriptor(desc); err != nil {
		return models.AgentDescriptor{}, err
	}
	return desc, nil
}

func validateDescriptor(desc models.AgentDescriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("agent name is required")
	}
	if !desc.Transport.IsValid() {
		return fmt.Errorf("agent %s: unknown transport %q", desc.Name, desc.Transport)
	}
	if desc.Transport != models.TransportInProcess && desc.Endpoint == "" {
		return fmt.Errorf("agent %s: endpoint is required for %s transport", desc.Name, desc.Transport)
	}
	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("agent %s: at least one capability is required", desc.Name)
	}
	return nil
}

// normalizeTags lower-cases, trims and de-duplicates capability tags, keeping order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

// extractFrontmatter extracts YAML frontmatter from markdown content
// Returns the frontmatter and the remaining body
func extractFrontmatter(content []byte) ([]byte, []byte) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if len(lines) < 3 || lines[0] != "---" {
		return nil, content
	}

	for i := 1; i < len(lines); i++ {
		if lines[i] == "---" {
			frontmatter := []byte(strings.Join(lines[1:i], "\n"))
			body := []byte(strings.Join(lines[i+1:], "\n"))
			return frontmatter, body
		}
	}

	return nil, content
}
