//go:build !windows

package bridge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/events"
	"github.com/extsim/extsim/internal/events/bus"
	"github.com/extsim/extsim/internal/simulator"
	"github.com/extsim/extsim/internal/simulator/history"
	"github.com/extsim/extsim/internal/simulator/process"
	"github.com/extsim/extsim/internal/simulator/registry"
	"github.com/extsim/extsim/internal/workspace"
)

type okProber struct{}

func (okProber) IsToolchainAvailable(context.Context) bool { return true }

type bridgeFixture struct {
	bridge       *Bridge
	bus          *bus.MemoryEventBus
	history      *history.Store
	registry     *registry.Registry
	workspaceDir string
}

type fixtureOptions struct {
	manifest      string // empty skips writing a manifest
	activation    string
	pythonCommand string
}

const pythonManifest = "name: custom:py.ext\nversion: \"1.0.0\"\npython:\n  runtime: {}\n"

func newFixture(t *testing.T, opts fixtureOptions) *bridgeFixture {
	t.Helper()
	log := logger.Default()

	wsDir := t.TempDir()
	if opts.manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(wsDir, "extension.yaml"), []byte(opts.manifest), 0o644))
	}
	if opts.activation != "" {
		path := filepath.Join(wsDir, filepath.FromSlash(opts.activation))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	}
	ws := workspace.New(wsDir)

	eventBus := bus.NewMemoryEventBus(log)
	t.Cleanup(eventBus.Close)

	stateDir := t.TempDir()
	reg, err := registry.New(stateDir, log)
	require.NoError(t, err)
	hist, err := history.New(stateDir, log)
	require.NoError(t, err)

	checker := simulator.NewChecker(ws, okProber{}, log)
	orch := process.NewOrchestrator(eventBus, process.NewSystemProcessTree(), log)
	b := New(ws, checker, orch, reg, hist, eventBus, Options{
		MaximumLogFiles: 10,
		PythonCommand:   opts.pythonCommand,
	}, log)

	return &bridgeFixture{bridge: b, bus: eventBus, history: hist, registry: reg, workspaceDir: wsDir}
}

// captureStatuses records the status of every snapshot pushed on the bus.
func captureStatuses(t *testing.T, eventBus *bus.MemoryEventBus) func() []simulator.Status {
	t.Helper()
	var mu sync.Mutex
	var statuses []simulator.Status
	_, err := eventBus.Subscribe(events.SimulatorStateUpdated, func(ctx context.Context, event *bus.Event) error {
		snapshot, ok := event.Data["snapshot"].(StateSnapshot)
		if !ok {
			return nil
		}
		mu.Lock()
		statuses = append(statuses, snapshot.Status)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return func() []simulator.Status {
		mu.Lock()
		defer mu.Unlock()
		return append([]simulator.Status(nil), statuses...)
	}
}

func TestCheckReadyMissingManifest(t *testing.T) {
	fx := newFixture(t, fixtureOptions{activation: "config/simulator.json"})

	snapshot := fx.bridge.CheckReady(context.Background(), nil)
	assert.Equal(t, simulator.StatusUnsupported, snapshot.Status)
	assert.Equal(t, []string{"Manifest"}, snapshot.FailedChecks)
}

func TestCheckReadyValidWorkspaceNoConfig(t *testing.T) {
	fx := newFixture(t, fixtureOptions{
		manifest:   pythonManifest,
		activation: "config/activation.json",
	})
	statuses := captureStatuses(t, fx.bus)

	snapshot := fx.bridge.CheckReady(context.Background(), nil)
	assert.Equal(t, simulator.StatusReady, snapshot.Status)
	assert.Empty(t, snapshot.FailedChecks)
	require.NotNil(t, snapshot.Specs)
	assert.True(t, snapshot.Specs.IsPython)

	// Observers saw the Checking phase before the outcome.
	require.Eventually(t, func() bool {
		return len(statuses()) >= 2
	}, 5*time.Second, 20*time.Millisecond)
	seen := statuses()
	assert.Equal(t, simulator.StatusChecking, seen[0])
	assert.Equal(t, simulator.StatusReady, seen[1])
}

func TestCheckReadyWithConfig(t *testing.T) {
	fx := newFixture(t, fixtureOptions{
		manifest:   pythonManifest,
		activation: "config/activation.json",
	})

	cfg, err := simulator.NewSimulationConfig(simulator.LocationLocal, simulator.EecOneAgent, nil, false)
	require.NoError(t, err)

	snapshot := fx.bridge.CheckReady(context.Background(), cfg)
	assert.Equal(t, simulator.StatusReady, snapshot.Status)
	require.NotNil(t, snapshot.Config)
	assert.Equal(t, simulator.LocationLocal, snapshot.Config.Location)
}

func TestStartStopLifecycle(t *testing.T) {
	fx := newFixture(t, fixtureOptions{
		manifest:      pythonManifest,
		activation:    "config/activation.json",
		pythonCommand: "sleep 30 #",
	})

	cfg, err := simulator.NewSimulationConfig(simulator.LocationLocal, simulator.EecOneAgent, nil, false)
	require.NoError(t, err)

	runID, err := fx.bridge.Start(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	assert.Equal(t, simulator.StatusRunning, fx.bridge.Status())

	// A second start while running is rejected outright.
	_, err = fx.bridge.Start(context.Background(), cfg)
	assert.ErrorIs(t, err, simulator.ErrSimulationRunning)

	require.NoError(t, fx.bridge.Stop(context.Background()))
	assert.Equal(t, simulator.StatusReady, fx.bridge.Status())

	require.Eventually(t, func() bool {
		summaries, err := fx.history.List()
		return err == nil && len(summaries) == 1
	}, 5*time.Second, 50*time.Millisecond)

	summaries, err := fx.history.List()
	require.NoError(t, err)
	assert.Equal(t, simulator.LocationLocal, summaries[0].Location)
	assert.NotEmpty(t, summaries[0].LogPath)
}

func TestRunClosureReturnsToReady(t *testing.T) {
	fx := newFixture(t, fixtureOptions{
		manifest:      pythonManifest,
		activation:    "config/activation.json",
		pythonCommand: "echo simulated #",
	})

	cfg, err := simulator.NewSimulationConfig(simulator.LocationLocal, simulator.EecOneAgent, nil, false)
	require.NoError(t, err)

	_, err = fx.bridge.Start(context.Background(), cfg)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return fx.bridge.Status() == simulator.StatusReady
	}, 10*time.Second, 50*time.Millisecond)

	// Exactly one execution was recorded for the run.
	summaries, err := fx.history.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.True(t, summaries[0].Success)

	content, err := os.ReadFile(summaries[0].LogPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "simulated")
}

func TestFailedLaunchKeepsPriorStatus(t *testing.T) {
	fx := newFixture(t, fixtureOptions{
		manifest:      pythonManifest,
		activation:    "config/activation.json",
		pythonCommand: "sleep 30 #",
	})

	snapshot := fx.bridge.CheckReady(context.Background(), nil)
	require.Equal(t, simulator.StatusReady, snapshot.Status)

	// A regular file where the run-log directory goes makes the launch
	// itself fail after the checks have passed.
	require.NoError(t, os.WriteFile(filepath.Join(fx.workspaceDir, "logs"), []byte("x"), 0o644))

	cfg, err := simulator.NewSimulationConfig(simulator.LocationLocal, simulator.EecOneAgent, nil, false)
	require.NoError(t, err)

	_, err = fx.bridge.Start(context.Background(), cfg)
	require.Error(t, err)
	assert.Equal(t, simulator.StatusReady, fx.bridge.Status())
}

func TestStartOnUnsupportedWorkspaceFails(t *testing.T) {
	fx := newFixture(t, fixtureOptions{activation: "config/simulator.json"})

	cfg, err := simulator.NewSimulationConfig(simulator.LocationLocal, simulator.EecOneAgent, nil, false)
	require.NoError(t, err)

	_, err = fx.bridge.Start(context.Background(), cfg)
	assert.ErrorIs(t, err, simulator.ErrNotReady)
	assert.Equal(t, simulator.StatusUnsupported, fx.bridge.Status())
}

func TestStopWithoutRunEndsReady(t *testing.T) {
	fx := newFixture(t, fixtureOptions{
		manifest:   pythonManifest,
		activation: "config/activation.json",
	})

	require.NoError(t, fx.bridge.Stop(context.Background()))
	assert.Equal(t, simulator.StatusReady, fx.bridge.Status())
}

func TestTargetManagementUpdatesSnapshot(t *testing.T) {
	fx := newFixture(t, fixtureOptions{
		manifest:   pythonManifest,
		activation: "config/activation.json",
	})

	target := simulator.RemoteTarget{
		Name:       "lab-box",
		Address:    "10.0.0.9",
		Username:   "eec",
		PrivateKey: "/home/eec/.ssh/id_ed25519",
		EecType:    simulator.EecActiveGate,
		OsType:     simulator.OsLinux,
	}
	require.NoError(t, fx.bridge.RegisterTarget(target))

	snapshot := fx.bridge.Snapshot()
	require.Len(t, snapshot.Targets, 1)
	assert.Equal(t, "lab-box", snapshot.Targets[0].Name)

	found, ok, err := fx.bridge.Target("lab-box")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.9", found.Address)

	require.NoError(t, fx.bridge.DeleteTarget("lab-box"))
	assert.Empty(t, fx.bridge.Snapshot().Targets)
}
