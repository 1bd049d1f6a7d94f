// Package history persists the append-only log of past simulation runs.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/simulator"
)

const fileName = "executions.json"

// ExecutionSummary is the immutable record of one simulation run. The
// Location field tags the variant; Target is set for remote runs only and
// is a weak name reference (the target may since have been deleted).
type ExecutionSummary struct {
	Location  simulator.Location `json:"location"`
	StartTime time.Time          `json:"startTime"`
	Duration  int                `json:"duration"` // seconds
	Success   bool               `json:"success"`
	Workspace string             `json:"workspace"`
	LogPath   string             `json:"logPath"`
	Target    string             `json:"target,omitempty"`
}

// Store persists execution summaries as an ordered JSON array. Appends
// rewrite the whole file; reads rehydrate startTime into time.Time via
// the standard RFC 3339 encoding.
type Store struct {
	path   string
	mu     sync.Mutex
	logger *logger.Logger
}

// New creates a history store persisted under stateDir.
func New(stateDir string, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	return &Store{
		path:   filepath.Join(stateDir, fileName),
		logger: log.WithFields(zap.String("component", "execution-history")),
	}, nil
}

// Append adds a summary to the end of the persisted list.
func (s *Store) Append(summary ExecutionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	summaries, err := s.load()
	if err != nil {
		return err
	}
	summaries = append(summaries, summary)
	return s.save(summaries)
}

// List returns all summaries in persisted order.
func (s *Store) List() ([]ExecutionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Trim enforces the per-workspace retention bound: each workspace keeps
// its maxPerWorkspace most-recent summaries by start time, and the log
// files of evicted entries are removed from disk. A failed log deletion
// is reported but does not abort trimming. A negative bound disables
// trimming entirely.
func (s *Store) Trim(maxPerWorkspace int) error {
	if maxPerWorkspace < 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	summaries, err := s.load()
	if err != nil {
		return err
	}

	byWorkspace := make(map[string][]ExecutionSummary)
	for _, summary := range summaries {
		byWorkspace[summary.Workspace] = append(byWorkspace[summary.Workspace], summary)
	}

	evicted := make(map[string]bool)
	for workspace, entries := range byWorkspace {
		if len(entries) <= maxPerWorkspace {
			continue
		}
		sorted := make([]ExecutionSummary, len(entries))
		copy(sorted, entries)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].StartTime.After(sorted[j].StartTime)
		})
		for _, summary := range sorted[maxPerWorkspace:] {
			evicted[evictionKey(summary)] = true
			if err := os.Remove(summary.LogPath); err != nil && !os.IsNotExist(err) {
				s.logger.Warn("failed to delete run log",
					zap.String("workspace", workspace),
					zap.String("log_path", summary.LogPath),
					zap.Error(err))
			}
		}
	}
	if len(evicted) == 0 {
		return nil
	}

	kept := summaries[:0]
	for _, summary := range summaries {
		if !evicted[evictionKey(summary)] {
			kept = append(kept, summary)
		}
	}

	s.logger.Debug("trimmed execution history",
		zap.Int("removed", len(summaries)-len(kept)),
		zap.Int("max_per_workspace", maxPerWorkspace))
	return s.save(kept)
}

func evictionKey(summary ExecutionSummary) string {
	return summary.Workspace + "|" + summary.StartTime.Format(time.RFC3339Nano) + "|" + summary.LogPath
}

func (s *Store) load() ([]ExecutionSummary, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read execution history: %w", err)
	}
	var summaries []ExecutionSummary
	if err := json.Unmarshal(data, &summaries); err != nil {
		return nil, fmt.Errorf("failed to parse execution history: %w", err)
	}
	return summaries, nil
}

func (s *Store) save(summaries []ExecutionSummary) error {
	if summaries == nil {
		summaries = []ExecutionSummary{}
	}
	data, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode execution history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write execution history: %w", err)
	}
	return nil
}
