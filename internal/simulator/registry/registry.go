// Package registry persists the named remote execution targets.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/simulator"
)

const fileName = "targets.json"

// Registry stores remote targets as an ordered JSON array, uniquely keyed
// by name. Every mutation rewrites the whole file before returning. A
// process-local mutex guards the read-modify-write cycle; cross-process
// writers are out of scope for a single-user tool.
type Registry struct {
	path   string
	mu     sync.Mutex
	logger *logger.Logger
}

// New creates a registry persisted under stateDir.
func New(stateDir string, log *logger.Logger) (*Registry, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Registry{
		path:   filepath.Join(stateDir, fileName),
		logger: log.WithFields(zap.String("component", "target-registry")),
	}, nil
}

// List returns all registered targets in persisted insertion order.
func (r *Registry) List() ([]simulator.RemoteTarget, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Register upserts a target by name: an existing entry is overwritten in
// place, a new one is appended.
func (r *Registry) Register(target simulator.RemoteTarget) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets, err := r.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range targets {
		if targets[i].Name == target.Name {
			targets[i] = target
			replaced = true
			break
		}
	}
	if !replaced {
		targets = append(targets, target)
	}

	if err := r.save(targets); err != nil {
		return err
	}
	r.logger.Debug("target registered",
		zap.String("name", target.Name),
		zap.Bool("replaced", replaced))
	return nil
}

// Delete removes the target with the given name. Deleting an absent
// target is a no-op, not an error.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	targets, err := r.load()
	if err != nil {
		return err
	}

	kept := targets[:0]
	for _, t := range targets {
		if t.Name != name {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(targets) {
		return nil
	}

	if err := r.save(kept); err != nil {
		return err
	}
	r.logger.Debug("target deleted", zap.String("name", name))
	return nil
}

// Get looks up a target by name.
func (r *Registry) Get(name string) (*simulator.RemoteTarget, bool, error) {
	targets, err := r.List()
	if err != nil {
		return nil, false, err
	}
	for i := range targets {
		if targets[i].Name == name {
			return &targets[i], true, nil
		}
	}
	return nil, false, nil
}

func (r *Registry) load() ([]simulator.RemoteTarget, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read target registry: %w", err)
	}
	var targets []simulator.RemoteTarget
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, fmt.Errorf("failed to parse target registry: %w", err)
	}
	return targets, nil
}

func (r *Registry) save(targets []simulator.RemoteTarget) error {
	if targets == nil {
		targets = []simulator.RemoteTarget{}
	}
	data, err := json.MarshalIndent(targets, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode target registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write target registry: %w", err)
	}
	return nil
}
