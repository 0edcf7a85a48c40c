package models

import (
	"slices"
	"time"
)

// HealthStatus is the last known health of an agent.
type HealthStatus string

const (
	HealthUp      HealthStatus = "UP"
	HealthDown    HealthStatus = "DOWN"
	HealthUnknown HealthStatus = "UNKNOWN"
)

// TransportKind names how an agent is reached. The set is closed; call sites never
// depend on which one is used.
type TransportKind string

const (
	TransportInProcess TransportKind = "inprocess"
	TransportCommand   TransportKind = "command"
	TransportHTTP      TransportKind = "http"
)

// IsValid reports whether k is a supported transport.
func (k TransportKind) IsValid() bool {
	return k == TransportInProcess || k == TransportCommand || k == TransportHTTP
}

// AgentDescriptor describes one independently reachable worker component.
type AgentDescriptor struct {
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	Capabilities  []string      `json:"capabilities"`
	Transport     TransportKind `json:"transport"`
	Endpoint      string        `json:"endpoint,omitempty"`
	Health        HealthStatus  `json:"health"`
	LastHealthyAt time.Time     `json:"last_healthy_at,omitzero"`
}

// HasCapability reports whether the agent advertises tag.
func (d AgentDescriptor) HasCapability(tag string) bool {
	return slices.Contains(d.Capabilities, tag)
}

// HasAnyCapability reports whether the agent's tags intersect tags.
func (d AgentDescriptor) HasAnyCapability(tags []string) bool {
	for _, tag := range tags {
		if d.HasCapability(tag) {
			return true
		}
	}
	return false
}
