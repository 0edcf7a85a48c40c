package builtin

import (
	"context"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/harrison/codescope/internal/agent"
	"github.com/harrison/codescope/internal/workflow"
)

// languageByExt maps source file extensions to language names.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rb":    "ruby",
	".java":  "java",
	".kt":    "kotlin",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".php":   "php",
	".swift": "swift",
	".sh":    "shell",
}

// skippedDirs are never walked.
var skippedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"target":       true,
	"dist":         true,
	"build":        true,
}

// modelPrefix marks model handles produced by the file inventory.
const modelPrefix = "inventory:"

// languageOf returns the language of a source file, or "".
func languageOf(path string) string {
	return languageByExt[strings.ToLower(filepath.Ext(path))]
}

// localPath resolves a repository locator to a local directory.
func localPath(locator string) (string, error) {
	path := locator
	if strings.HasPrefix(locator, "file://") {
		u, err := url.Parse(locator)
		if err != nil {
			return "", err
		}
		path = u.Path
	}
	if !filepath.IsAbs(path) {
		return "", &agent.RemoteError{Code: "unsupported_locator", Message: fmt.Sprintf("%s is not a local repository", locator)}
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", &agent.RemoteError{Code: "not_found", Message: err.Error()}
	}
	if !info.IsDir() {
		return "", &agent.RemoteError{Code: "not_a_directory", Message: path + " is not a directory"}
	}
	return filepath.Clean(path), nil
}

// walkSources calls fn for every source file below root, skipping hidden and
// dependency directories. The walk stops early when ctx ends.
func walkSources(ctx context.Context, root string, fn func(path, lang string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && (strings.HasPrefix(d.Name(), ".") || skippedDirs[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		if lang := languageOf(path); lang != "" {
			return fn(path, lang)
		}
		return nil
	})
}

func acquire(ctx context.Context, req workflow.AcquireRequest) (workflow.AcquireResponse, error) {
	root, err := localPath(req.RepositoryLocator)
	if err != nil {
		return workflow.AcquireResponse{}, err
	}

	seen := make(map[string]bool)
	err = walkSources(ctx, root, func(_, lang string) error {
		seen[lang] = true
		return nil
	})
	if err != nil {
		return workflow.AcquireResponse{}, err
	}

	langs := make([]string, 0, len(seen))
	for lang := range seen {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return workflow.AcquireResponse{LocalWorkspacePath: root, DetectedLanguages: langs}, nil
}

func buildModel(ctx context.Context, req workflow.BuildModelRequest) (workflow.BuildModelResponse, error) {
	root, err := localPath(req.LocalWorkspacePath)
	if err != nil {
		return workflow.BuildModelResponse{}, err
	}

	count := 0
	if err := walkSources(ctx, root, func(string, string) error {
		count++
		return nil
	}); err != nil {
		return workflow.BuildModelResponse{}, err
	}
	return workflow.BuildModelResponse{ModelHandle: modelPrefix + root, NodeCount: count}, nil
}
