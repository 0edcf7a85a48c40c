package models

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TaskType identifies which entry workflow a task requests.
type TaskType string

const (
	TaskScanProject TaskType = "SCAN_PROJECT"
	TaskReviewPR    TaskType = "REVIEW_PR"
)

// IsValid reports whether t is one of the known task types.
func (t TaskType) IsValid() bool {
	return t == TaskScanProject || t == TaskReviewPR
}

// ValidationError reports bad caller input at submission time.
// It is never retried.
type ValidationError struct {
	Field   string // Offending input field
	Message string // Human-readable reason
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// TaskDefinition is an immutable description of one requested unit of work.
// Fields are unexported so a definition cannot change after NewTaskDefinition.
type TaskDefinition struct {
	id                string
	taskType          TaskType
	repositoryLocator string
	prIdentifier      string
	createdAt         time.Time
}

// NewTaskDefinition validates its input and builds a TaskDefinition.
// An empty prIdentifier means "absent". REVIEW_PR requires one, SCAN_PROJECT forbids one.
func NewTaskDefinition(taskType TaskType, repositoryLocator, prIdentifier string) (*TaskDefinition, error) {
	if !taskType.IsValid() {
		return nil, &ValidationError{Field: "task_type", Message: fmt.Sprintf("unknown task type %q", taskType)}
	}

	locator := strings.TrimSpace(repositoryLocator)
	if err := ValidateRepositoryLocator(locator); err != nil {
		return nil, err
	}

	switch taskType {
	case TaskReviewPR:
		if prIdentifier == "" {
			return nil, &ValidationError{Field: "pr_identifier", Message: "required for REVIEW_PR tasks"}
		}
		if strings.ContainsAny(prIdentifier, " \t\r\n") {
			return nil, &ValidationError{Field: "pr_identifier", Message: "must not contain whitespace"}
		}
	case TaskScanProject:
		if prIdentifier != "" {
			return nil, &ValidationError{Field: "pr_identifier", Message: "not allowed for SCAN_PROJECT tasks"}
		}
	}

	return &TaskDefinition{
		id:                uuid.NewString(),
		taskType:          taskType,
		repositoryLocator: locator,
		prIdentifier:      prIdentifier,
		createdAt:         time.Now().UTC(),
	}, nil
}

func (t *TaskDefinition) ID() string                { return t.id }
func (t *TaskDefinition) Type() TaskType            { return t.taskType }
func (t *TaskDefinition) RepositoryLocator() string { return t.repositoryLocator }
func (t *TaskDefinition) CreatedAt() time.Time      { return t.createdAt }

// PRIdentifier returns the pull request identifier and whether one is present.
func (t *TaskDefinition) PRIdentifier() (string, bool) {
	return t.prIdentifier, t.prIdentifier != ""
}

// String returns a short description used in logs.
func (t *TaskDefinition) String() string {
	if t.prIdentifier != "" {
		return fmt.Sprintf("%s %s#%s", t.taskType, t.repositoryLocator, t.prIdentifier)
	}
	return fmt.Sprintf("%s %s", t.taskType, t.repositoryLocator)
}

// scpLike matches git's scp-style syntax: user@host:org/repo.git
var scpLike = regexp.MustCompile(`^[A-Za-z0-9._-]+@[A-Za-z0-9.-]+:[^\s:][^\s]*$`)

var locatorSchemes = map[string]bool{
	"http":  true,
	"https": true,
	"ssh":   true,
	"git":   true,
	"file":  true,
}

// ValidateRepositoryLocator checks that locator is a syntactically valid repository reference.
// Accepted forms: http(s)/ssh/git URLs with a host and path, file URLs, scp-style
// user@host:path, and absolute filesystem paths.
func ValidateRepositoryLocator(locator string) error {
	if locator == "" {
		return &ValidationError{Field: "repository_locator", Message: "must not be empty"}
	}
	if strings.ContainsAny(locator, " \t\r\n") {
		return &ValidationError{Field: "repository_locator", Message: "must not contain whitespace"}
	}

	if scpLike.MatchString(locator) {
		return nil
	}

	if strings.Contains(locator, "://") {
		u, err := url.Parse(locator)
		if err != nil {
			return &ValidationError{Field: "repository_locator", Message: fmt.Sprintf("malformed URL: %v", err)}
		}
		if !locatorSchemes[strings.ToLower(u.Scheme)] {
			return &ValidationError{Field: "repository_locator", Message: fmt.Sprintf("unsupported scheme %q", u.Scheme)}
		}
		if strings.ToLower(u.Scheme) != "file" && u.Host == "" {
			return &ValidationError{Field: "repository_locator", Message: "URL has no host"}
		}
		if strings.Trim(u.Path, "/") == "" {
			return &ValidationError{Field: "repository_locator", Message: "URL has no repository path"}
		}
		return nil
	}

	if filepath.IsAbs(locator) && filepath.Clean(locator) != string(filepath.Separator) {
		return nil
	}

	return &ValidationError{Field: "repository_locator", Message: fmt.Sprintf("%q is not a URL, scp-style reference, or absolute path", locator)}
}
