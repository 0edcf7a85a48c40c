package workflow

import (
	"strings"
	"time"

	"github.com/harrison/codescope/internal/agent"
)

// Config tunes the workflow engine.
type Config struct {
	ExecutionTimeout  time.Duration // Overall deadline per execution; 0 disables it
	CallTimeout       time.Duration // Per-attempt timeout passed to every agent call
	MaxStageRetries   int           // Stage re-attempts after a transient failure
	MaxFanout         int           // Concurrent analyze calls per execution; 0 means unbounded
	OptionalLanguages []string      // Languages whose analysis may fail without failing the stage

	// StageRetryBackoff spaces stage re-attempts so an agent whose circuit
	// opened can reach its cooldown. The zero value retries immediately.
	StageRetryBackoff agent.Backoff
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		ExecutionTimeout: 30 * time.Minute,
		CallTimeout:      2 * time.Minute,
		MaxStageRetries:  3,
		MaxFanout:        4,
		StageRetryBackoff: agent.Backoff{
			Base:       10 * time.Second,
			Multiplier: 2,
			Max:        30 * time.Second,
		},
	}
}

// IsOptionalLanguage reports whether analysis of lang is optional.
func (c Config) IsOptionalLanguage(lang string) bool {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, optional := range c.OptionalLanguages {
		if strings.ToLower(strings.TrimSpace(optional)) == lang {
			return true
		}
	}
	return false
}
