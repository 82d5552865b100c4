// Package workspace scaffolds the default working directory used when a
// session is started without a project.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the workspace directory inside the config directory.
const DirName = "workspace"

const defaultClaudeMD = `# Workspace

This is the default workspace for Aither Flow.
`

// EnsureDefault creates <configDir>/workspace with a CLAUDE.md if missing and
// returns the workspace path. An existing CLAUDE.md is left untouched.
func EnsureDefault(configDir string) (string, error) {
	if configDir == "" {
		return "", errors.New("config dir is required")
	}
	dir := filepath.Join(configDir, DirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create workspace directory: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "CLAUDE.md"), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if errors.Is(err, os.ErrExist) {
		return dir, nil
	}
	if err != nil {
		return "", fmt.Errorf("write CLAUDE.md: %w", err)
	}
	if _, err := f.WriteString(defaultClaudeMD); err != nil {
		f.Close()
		return "", fmt.Errorf("write CLAUDE.md: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("write CLAUDE.md: %w", err)
	}
	return dir, nil
}
