// Package paths locates the per-project .issuetree directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// DirName is the per-project directory holding config and local databases.
const DirName = ".issuetree"

// ConfigFileName is the config file inside DirName.
const ConfigFileName = "config.yaml"

// ResolveProjectDir returns the .issuetree directory for path.
//
//   - "/repo/.issuetree" -> "/repo/.issuetree"
//   - "/repo/sub" with /repo/.issuetree present -> "/repo/.issuetree"
//   - "/fresh" with no .issuetree above it -> "/fresh/.issuetree"
//   - "" -> resolved from the current directory
//
// If the directory contains a redirect file, its content (relative to the
// directory) is followed once. Git worktrees use this to share the main
// checkout's local databases.
func ResolveProjectDir(path string) string {
	if path == "" {
		path = "."
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	path = filepath.Clean(path)

	if filepath.Base(path) == DirName {
		return followRedirect(path)
	}

	for dir := path; ; {
		candidate := filepath.Join(dir, DirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return followRedirect(candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return filepath.Join(path, DirName)
}

// ProjectConfigFile returns the project config path for path, whether or
// not it exists.
func ProjectConfigFile(path string) string {
	return filepath.Join(ResolveProjectDir(path), ConfigFileName)
}

func followRedirect(dir string) string {
	content, err := os.ReadFile(filepath.Join(dir, "redirect")) //nolint:gosec // redirect path is within the project dir
	if err != nil {
		return dir
	}
	target := strings.TrimSpace(string(content))
	if target == "" {
		return dir
	}
	if filepath.IsAbs(target) {
		return filepath.Clean(target)
	}
	return filepath.Clean(filepath.Join(dir, target))
}
