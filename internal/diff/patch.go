// Package diff turns unified commit patches into the files they touch.
package diff

import (
	"fmt"
	"path/filepath"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"
)

// FileChange is one file touched by a patch.
type FileChange struct {
	OldPath  string `json:"oldPath,omitempty"`
	NewPath  string `json:"newPath,omitempty"`
	IsNew    bool   `json:"isNew,omitempty"`
	Deleted  bool   `json:"deleted,omitempty"`
	Renamed  bool   `json:"renamed,omitempty"`
	Added    int    `json:"added"`
	Removed  int    `json:"removed"`
	Language string `json:"language,omitempty"`
}

// Path returns the path the change should be attributed to.
func (f FileChange) Path() string {
	if f.Deleted {
		return f.OldPath
	}
	return f.NewPath
}

// Churn is the number of added plus removed lines.
func (f FileChange) Churn() int {
	return f.Added + f.Removed
}

// ParsePatch parses a unified (git) diff. An empty patch yields no changes.
func ParsePatch(patch string) ([]FileChange, error) {
	if strings.TrimSpace(patch) == "" {
		return nil, nil
	}

	fileDiffs, err := godiff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	changes := make([]FileChange, 0, len(fileDiffs))
	for _, fd := range fileDiffs {
		changes = append(changes, fileChange(fd))
	}
	return changes, nil
}

func fileChange(fd *godiff.FileDiff) FileChange {
	fc := FileChange{
		OldPath: cleanPath(fd.OrigName),
		NewPath: cleanPath(fd.NewName),
	}
	if fd.OrigName == "/dev/null" || fd.OrigName == "" {
		fc.IsNew = true
		fc.OldPath = ""
	}
	if fd.NewName == "/dev/null" || fd.NewName == "" {
		fc.Deleted = true
		fc.NewPath = ""
	}
	fc.Renamed = fc.OldPath != "" && fc.NewPath != "" && fc.OldPath != fc.NewPath

	for _, h := range fd.Hunks {
		for _, line := range strings.Split(string(h.Body), "\n") {
			if line == "" {
				continue
			}
			switch line[0] {
			case '+':
				fc.Added++
			case '-':
				fc.Removed++
			}
		}
	}
	fc.Language = Language(fc.Path())
	return fc
}

// cleanPath removes the a/ or b/ prefix from git diff paths
func cleanPath(path string) string {
	if path == "" || path == "/dev/null" {
		return path
	}
	if strings.HasPrefix(path, "a/") || strings.HasPrefix(path, "b/") {
		return path[2:]
	}
	return path
}

var languages = map[string]string{
	".go":    "go",
	".py":    "python",
	".ts":    "typescript",
	".tsx":   "typescript",
	".js":    "javascript",
	".jsx":   "javascript",
	".java":  "java",
	".kt":    "kotlin",
	".rb":    "ruby",
	".rs":    "rust",
	".cs":    "csharp",
	".php":   "php",
	".swift": "swift",
	".md":    "markdown",
	".yaml":  "yaml",
	".yml":   "yaml",
	".json":  "json",
	".proto": "protobuf",
	".sql":   "sql",
}

// Language guesses a file's language from its extension.
func Language(path string) string {
	return languages[strings.ToLower(filepath.Ext(path))]
}

// IsSourceFile reports whether path is hand-written source rather than
// vendored, generated or lock files.
func IsSourceFile(path string) bool {
	for _, prefix := range []string{"vendor/", "node_modules/", ".git/", "testdata/"} {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	for _, suffix := range []string{".sum", ".lock", ".min.js", ".min.css", ".map", ".pb.go", "_generated.go", "-lock.json"} {
		if strings.HasSuffix(path, suffix) {
			return false
		}
	}
	return true
}
