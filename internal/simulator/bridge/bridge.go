// Package bridge owns the simulator state machine. It is the only writer
// of the simulator status; every other surface observes it through
// snapshots pushed on the event bus or pulled via Snapshot.
package bridge

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/events"
	"github.com/extsim/extsim/internal/events/bus"
	"github.com/extsim/extsim/internal/simulator"
	"github.com/extsim/extsim/internal/simulator/history"
	"github.com/extsim/extsim/internal/simulator/process"
	"github.com/extsim/extsim/internal/simulator/registry"
	"github.com/extsim/extsim/internal/workspace"
)

// StateSnapshot is the full simulator state pushed to observers on every
// transition. Observers re-render from the whole snapshot instead of
// patching deltas.
type StateSnapshot struct {
	Status       simulator.Status            `json:"status"`
	Message      string                      `json:"message,omitempty"`
	FailedChecks []string                    `json:"failedChecks,omitempty"`
	Config       *simulator.SimulationConfig `json:"config,omitempty"`
	Specs        *simulator.SimulationSpecs  `json:"specs,omitempty"`
	Targets      []simulator.RemoteTarget    `json:"targets"`
	History      []history.ExecutionSummary  `json:"history"`
}

// Options carries the per-workspace settings the bridge needs.
type Options struct {
	// MaximumLogFiles bounds retained executions per workspace after
	// every run. Negative disables trimming.
	MaximumLogFiles int
	// PythonCommand is the interpreter used for SDK-based extensions.
	PythonCommand string
}

// Bridge coordinates readiness checks, run lifecycle, target registry and
// execution history behind a single mutex.
type Bridge struct {
	ws       *workspace.Workspace
	checker  *simulator.Checker
	orch     *process.Orchestrator
	registry *registry.Registry
	history  *history.Store
	bus      bus.EventBus
	logger   *logger.Logger
	opts     Options

	mu           sync.Mutex
	status       simulator.Status
	message      string
	failedChecks []string
	config       *simulator.SimulationConfig
}

// New builds a Bridge in the Unknown state.
func New(ws *workspace.Workspace, checker *simulator.Checker, orch *process.Orchestrator,
	reg *registry.Registry, hist *history.Store, eventBus bus.EventBus,
	opts Options, log *logger.Logger) *Bridge {
	b := &Bridge{
		ws:       ws,
		checker:  checker,
		orch:     orch,
		registry: reg,
		history:  hist,
		bus:      eventBus,
		logger:   log.WithFields(zap.String("component", "bridge")).WithWorkspace(ws.Name()),
		opts:     opts,
		status:   simulator.StatusUnknown,
	}
	return b
}

// Status returns the current state machine value.
func (b *Bridge) Status() simulator.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Snapshot assembles the full observable state.
func (b *Bridge) Snapshot() StateSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked()
}

func (b *Bridge) snapshotLocked() StateSnapshot {
	targets, err := b.registry.List()
	if err != nil {
		b.logger.WithError(err).Warn("failed to load targets for snapshot")
	}
	executions, err := b.history.List()
	if err != nil {
		b.logger.WithError(err).Warn("failed to load history for snapshot")
	}
	return StateSnapshot{
		Status:       b.status,
		Message:      b.message,
		FailedChecks: b.failedChecks,
		Config:       b.config,
		Specs:        b.checker.Specs(),
		Targets:      targets,
		History:      executions,
	}
}

// setLocked records a transition and pushes the snapshot. Re-entering the
// current status with the same message is not a transition and stays
// silent.
func (b *Bridge) setLocked(status simulator.Status, message string, failed []string) {
	if b.status == status && b.message == message {
		return
	}
	b.status = status
	b.message = message
	b.failedChecks = failed
	b.logger.Info("simulator state changed",
		zap.String("status", string(status)), zap.String("message", message))
	b.publishLocked()
}

func (b *Bridge) publishLocked() {
	snapshot := b.snapshotLocked()
	event := bus.NewEvent(events.SimulatorStateUpdated, "simulator", map[string]interface{}{
		"snapshot": snapshot,
	})
	if err := b.bus.Publish(context.Background(), events.SimulatorStateUpdated, event); err != nil {
		b.logger.WithError(err).Warn("failed to publish state snapshot")
	}
}

// CheckReady runs the readiness checks. The state moves to Checking
// synchronously before any validation, so observers see progress at once.
// A nil config stops after the mandatory phase.
func (b *Bridge) CheckReady(ctx context.Context, cfg *simulator.SimulationConfig) StateSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == simulator.StatusRunning {
		return b.snapshotLocked()
	}

	b.setLocked(simulator.StatusChecking, "", nil)

	ok, failed := b.checker.CheckMandatory()
	if !ok {
		b.setLocked(simulator.StatusUnsupported, "workspace does not meet the simulation requirements", failed)
		return b.snapshotLocked()
	}

	if cfg == nil {
		b.config = nil
		b.setLocked(simulator.StatusReady, "", nil)
		return b.snapshotLocked()
	}

	result := b.checker.CheckConfig(ctx, cfg)
	b.config = cfg
	b.setLocked(result.Status, result.Message, nil)
	return b.snapshotLocked()
}

// Start launches a simulation run for cfg. The checks are re-run first;
// Running is entered only after the process has actually spawned. A
// launch failure after the checks passed restores the status that was
// current before Start and surfaces the error instead.
func (b *Bridge) Start(ctx context.Context, cfg *simulator.SimulationConfig) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == simulator.StatusRunning {
		return "", simulator.ErrSimulationRunning
	}
	prevStatus, prevMessage, prevFailed := b.status, b.message, b.failedChecks

	b.setLocked(simulator.StatusChecking, "", nil)
	ok, failed := b.checker.CheckMandatory()
	if !ok {
		b.setLocked(simulator.StatusUnsupported, "workspace does not meet the simulation requirements", failed)
		return "", fmt.Errorf("%w: failed checks %v", simulator.ErrNotReady, failed)
	}
	result := b.checker.CheckConfig(ctx, cfg)
	b.config = cfg
	if result.Status != simulator.StatusReady {
		b.setLocked(result.Status, result.Message, nil)
		return "", fmt.Errorf("%w: %s", simulator.ErrNotReady, result.Message)
	}

	req, err := b.buildRequest(cfg)
	if err != nil {
		b.setLocked(prevStatus, prevMessage, prevFailed)
		return "", err
	}

	runID, err := b.orch.Start(ctx, req, b.onRunClosed)
	if err != nil {
		b.setLocked(prevStatus, prevMessage, prevFailed)
		return "", err
	}

	b.setLocked(simulator.StatusRunning, "", nil)
	event := bus.NewEvent(events.SimulatorRunStarted, "simulator", map[string]interface{}{
		"run_id":    runID,
		"workspace": b.ws.Name(),
		"location":  string(cfg.Location),
	})
	if err := b.bus.Publish(context.Background(), events.SimulatorRunStarted, event); err != nil {
		b.logger.WithError(err).Warn("failed to publish run start")
	}
	return runID, nil
}

// Stop terminates the live run. It is a no-op when nothing runs, and the
// state is back at Ready when it returns regardless of how the
// termination went.
func (b *Bridge) Stop(ctx context.Context) error {
	defer func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.setLocked(simulator.StatusReady, "", nil)
	}()
	if b.Status() != simulator.StatusRunning {
		return nil
	}
	return b.orch.Stop(ctx)
}

// LogPath exposes the current or last run's log file.
func (b *Bridge) LogPath() string {
	return b.orch.LogPath()
}

// onRunClosed is the single close handler for every run: it records the
// execution exactly once, trims old history, and returns the state
// machine to Ready.
func (b *Bridge) onRunClosed(summary history.ExecutionSummary) {
	log := b.logger.WithFields(zap.String("log_path", summary.LogPath))
	if err := b.history.Append(summary); err != nil {
		log.WithError(err).Error("failed to record execution")
	}
	if err := b.history.Trim(b.opts.MaximumLogFiles); err != nil {
		log.WithError(err).Warn("failed to trim execution history")
	}

	event := bus.NewEvent(events.SimulatorRunFinished, "simulator", map[string]interface{}{
		"workspace": summary.Workspace,
		"success":   summary.Success,
		"duration":  summary.Duration,
		"log_path":  summary.LogPath,
	})
	if err := b.bus.Publish(context.Background(), events.SimulatorRunFinished, event); err != nil {
		log.WithError(err).Warn("failed to publish run finish")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.setLocked(simulator.StatusReady, "", nil)
}

// RegisterTarget upserts a remote target and pushes the new snapshot.
func (b *Bridge) RegisterTarget(target simulator.RemoteTarget) error {
	if err := b.registry.Register(target); err != nil {
		return err
	}
	event := bus.NewEvent(events.TargetRegistered, "simulator", map[string]interface{}{
		"name": target.Name,
	})
	if err := b.bus.Publish(context.Background(), events.TargetRegistered, event); err != nil {
		b.logger.WithError(err).Warn("failed to publish target registration")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked()
	return nil
}

// DeleteTarget removes a target by name and pushes the new snapshot.
// Deleting an unknown name is a no-op.
func (b *Bridge) DeleteTarget(name string) error {
	if err := b.registry.Delete(name); err != nil {
		return err
	}
	event := bus.NewEvent(events.TargetDeleted, "simulator", map[string]interface{}{
		"name": name,
	})
	if err := b.bus.Publish(context.Background(), events.TargetDeleted, event); err != nil {
		b.logger.WithError(err).Warn("failed to publish target deletion")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.publishLocked()
	return nil
}

// Targets lists the registered remote targets.
func (b *Bridge) Targets() ([]simulator.RemoteTarget, error) {
	return b.registry.List()
}

// Target looks a registered target up by name.
func (b *Bridge) Target(name string) (*simulator.RemoteTarget, bool, error) {
	return b.registry.Get(name)
}

// History lists the recorded executions.
func (b *Bridge) History() ([]history.ExecutionSummary, error) {
	return b.history.List()
}

func (b *Bridge) buildRequest(cfg *simulator.SimulationConfig) (process.StartRequest, error) {
	manifestPath, err := b.ws.FindManifest()
	if err != nil {
		return process.StartRequest{}, err
	}
	specs := b.checker.Specs()
	activation, err := b.ws.ActivationFile(specs.IsPython)
	if err != nil {
		return process.StartRequest{}, err
	}
	token, err := b.ws.TokenFile()
	if err != nil {
		return process.StartRequest{}, err
	}
	logDir, err := b.ws.LogsDir()
	if err != nil {
		return process.StartRequest{}, err
	}

	req := process.StartRequest{
		Workspace: b.ws.Name(),
		LogDir:    logDir,
		Location:  cfg.Location,
		Target:    cfg.Target,
	}

	switch {
	case specs.IsPython:
		req.Command = process.PythonCommand(b.opts.PythonCommand, activation, cfg.SendMetrics)
		req.WorkingDir = filepath.Dir(b.ws.Root())
	case cfg.Location == simulator.LocationRemote:
		resolved := b.checker.Resolved()
		if resolved == nil {
			return process.StartRequest{}, simulator.ErrNotReady
		}
		req.Command = process.RemoteCommand(*resolved, cfg.Target.OsType, manifestPath, activation, token)
		req.CopyFiles = []string{manifestPath, activation, token}
	default:
		resolved := b.checker.Resolved()
		if resolved == nil {
			return process.StartRequest{}, simulator.ErrNotReady
		}
		req.Command = process.DatasourceCommand(*resolved, manifestPath, activation, token)
		req.WorkingDir = resolved.Dir
	}
	return req, nil
}
