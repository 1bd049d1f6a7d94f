// Package workspace locates the artifacts an extension workspace must
// carry: the manifest, the activation config, run logs, and the session
// token file.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	manifestFileName   = "extension.yaml"
	activationRelPath  = "config/simulator.json"
	pythonActivation   = "config/activation.json"
	logsDirName        = "logs"
	tokenFileRelPath   = "config/idToken.txt"
)

// Workspace is a rooted extension workspace. All lookups are fallible;
// callers treat missing artifacts as readiness failures, not panics.
type Workspace struct {
	root string
}

// New returns a workspace rooted at dir.
func New(dir string) *Workspace {
	return &Workspace{root: dir}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string {
	return w.root
}

// Name returns the workspace's display name.
func (w *Workspace) Name() string {
	return filepath.Base(w.root)
}

// FindManifest searches the workspace root and one level of
// subdirectories for the extension manifest.
func (w *Workspace) FindManifest() (string, error) {
	candidate := filepath.Join(w.root, manifestFileName)
	if fileExists(candidate) {
		return candidate, nil
	}

	entries, err := os.ReadDir(w.root)
	if err != nil {
		return "", fmt.Errorf("failed to read workspace root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(w.root, entry.Name(), manifestFileName)
		if fileExists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no %s found in %s or its immediate subdirectories", manifestFileName, w.root)
}

// ActivationFile returns the path of the simulation activation config.
// SDK-kind datasources may fall back to config/activation.json.
func (w *Workspace) ActivationFile(allowPythonFallback bool) (string, error) {
	primary := filepath.Join(w.root, filepath.FromSlash(activationRelPath))
	if fileExists(primary) {
		return primary, nil
	}
	if allowPythonFallback {
		fallback := filepath.Join(w.root, filepath.FromSlash(pythonActivation))
		if fileExists(fallback) {
			return fallback, nil
		}
	}
	return "", fmt.Errorf("no activation file at %s", primary)
}

// LogsDir ensures and returns the workspace's log directory.
func (w *Workspace) LogsDir() (string, error) {
	dir := filepath.Join(w.root, logsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create logs directory: %w", err)
	}
	return dir, nil
}

// TokenFile ensures a session token file exists and returns its path.
// The token content is an opaque per-workspace secret.
func (w *Workspace) TokenFile() (string, error) {
	path := filepath.Join(w.root, filepath.FromSlash(tokenFileRelPath))
	if fileExists(path) {
		return path, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(uuid.New().String()), 0o600); err != nil {
		return "", fmt.Errorf("failed to write token file: %w", err)
	}
	return path, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
