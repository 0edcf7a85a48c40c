package models

import (
	"fmt"
	"strings"
)

// Stage is one named step of the analysis workflow.
// Values are ordered; the workflow only moves forward through them.
type Stage int

const (
	StageInitiated Stage = iota
	StageAcquiringData
	StageBuildingModel
	StageAnalyzing
	StageSynthesizing
	StageCompleted
	StageFailed
	// StageCancelled is the caller-initiated variant of StageFailed.
	StageCancelled
)

var stageNames = map[Stage]string{
	StageInitiated:     "INITIATED",
	StageAcquiringData: "ACQUIRING_DATA",
	StageBuildingModel: "BUILDING_MODEL",
	StageAnalyzing:     "ANALYZING",
	StageSynthesizing:  "SYNTHESIZING",
	StageCompleted:     "COMPLETED",
	StageFailed:        "FAILED",
	StageCancelled:     "CANCELLED",
}

// String returns the canonical upper-case stage name.
func (s Stage) String() string {
	if name, ok := stageNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ParseStage converts a stage name back into a Stage. Matching is case-insensitive.
func ParseStage(name string) (Stage, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for stage, stageName := range stageNames {
		if stageName == normalized {
			return stage, nil
		}
	}
	return StageInitiated, fmt.Errorf("unknown stage %q", name)
}

// IsTerminal reports whether no further transitions can leave s.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed || s == StageCancelled
}

// IsFailure reports whether s is a failed terminal stage (FAILED or CANCELLED).
func (s Stage) IsFailure() bool {
	return s == StageFailed || s == StageCancelled
}

// MarshalText lets stages appear by name in JSON and YAML output.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a stage name.
func (s *Stage) UnmarshalText(text []byte) error {
	parsed, err := ParseStage(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
