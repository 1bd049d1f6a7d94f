package process

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/events"
	"github.com/extsim/extsim/internal/events/bus"
	"github.com/extsim/extsim/internal/simulator"
	"github.com/extsim/extsim/internal/simulator/history"
)

const stopGracePeriod = 5 * time.Second

// StartRequest carries everything the orchestrator needs to launch one
// simulation run.
type StartRequest struct {
	Workspace  string
	Command    string
	WorkingDir string
	LogDir     string
	Location   simulator.Location
	Target     *simulator.RemoteTarget
	// CopyFiles are local inputs copied to the target's scratch
	// directory before a remote launch.
	CopyFiles []string
}

// CloseFunc receives the summary of a finished run. It is invoked exactly
// once per run, from the goroutine that observed the process close.
type CloseFunc func(summary history.ExecutionSummary)

// Orchestrator launches simulation processes and tracks the single live
// run. A second start while a run is live is rejected.
type Orchestrator struct {
	logger *logger.Logger
	bus    bus.EventBus
	tree   ProcessTree

	mu      sync.Mutex
	current *run
	lastLog string
}

type run struct {
	id        string
	workspace string
	location  simulator.Location
	target    string
	logPath   string
	started   time.Time

	logMu   sync.Mutex
	logFile *os.File

	success   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}

	terminate func(log *logger.Logger)
}

// NewOrchestrator builds an Orchestrator publishing run output to eventBus.
func NewOrchestrator(eventBus bus.EventBus, tree ProcessTree, log *logger.Logger) *Orchestrator {
	return &Orchestrator{
		logger: log.WithFields(zap.String("component", "orchestrator")),
		bus:    eventBus,
		tree:   tree,
	}
}

// Running reports whether a simulation process is currently tracked.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil
}

// LogPath returns the log file of the live run, or of the most recently
// finished one when nothing is running.
func (o *Orchestrator) LogPath() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		return o.current.logPath
	}
	return o.lastLog
}

// Start launches the requested run and returns its id. onClose fires once
// the process closes, whatever the reason.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest, onClose CloseFunc) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		return "", simulator.ErrSimulationRunning
	}

	r := &run{
		id:        uuid.New().String(),
		workspace: req.Workspace,
		location:  req.Location,
		started:   time.Now(),
		done:      make(chan struct{}),
	}
	if req.Target != nil {
		r.target = req.Target.Name
	}
	r.success.Store(true)

	logFile, logPath, err := openRunLog(req.LogDir, r.started)
	if err != nil {
		return "", fmt.Errorf("failed to open simulation log: %w", err)
	}
	r.logFile = logFile
	r.logPath = logPath

	if req.Location == simulator.LocationRemote {
		err = o.startRemote(ctx, req, r, onClose)
	} else {
		err = o.startLocal(req, r, onClose)
	}
	if err != nil {
		logFile.Close()
		os.Remove(logPath)
		return "", err
	}

	o.current = r
	o.logger.WithRunID(r.id).WithWorkspace(r.workspace).
		Info("simulation started",
			zap.String("location", string(r.location)), zap.String("log_path", r.logPath))
	return r.id, nil
}

// Stop terminates the live run and waits briefly for its close event.
// Stopping when nothing runs is a no-op.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return nil
	}

	o.logger.WithRunID(r.id).Info("stopping simulation")
	r.terminate(o.logger.WithRunID(r.id))

	select {
	case <-r.done:
		return nil
	case <-time.After(stopGracePeriod):
		return fmt.Errorf("simulation process did not close within %s", stopGracePeriod)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) startLocal(req StartRequest, r *run, onClose CloseFunc) error {
	// The run outlives the request that started it, so the command is
	// not bound to the caller's context.
	cmd := shellCommand(context.Background(), req.Command, req.WorkingDir)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to attach stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to spawn simulation process: %w", err)
	}
	pid := cmd.Process.Pid

	r.terminate = func(log *logger.Logger) {
		descendants, err := o.tree.ListDescendants(pid)
		if err != nil {
			log.WithError(err).Warn("failed to list process descendants", zap.Int("pid", pid))
		}
		for _, child := range descendants {
			if err := o.tree.Signal(child, syscall.SIGKILL); err != nil {
				log.WithError(err).Warn("failed to kill child process", zap.Int("pid", child))
			}
		}
		if err := o.tree.Signal(pid, syscall.SIGKILL); err != nil {
			log.WithError(err).Warn("failed to kill simulation process", zap.Int("pid", pid))
			// The process group catches anything the tree walk missed.
			_ = signalGroup(pid, syscall.SIGKILL)
		}
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go o.consume(r, stdout, "stdout", &readers)
	go o.consume(r, stderr, "stderr", &readers)

	go func() {
		readers.Wait()
		err := cmd.Wait()
		log := o.logger.WithRunID(r.id).WithWorkspace(r.workspace)
		switch {
		case err == nil:
			log.Info("simulation process closed", zap.Int("exit_code", 0))
		case cmd.ProcessState != nil:
			if sig := exitSignalName(cmd); sig != "" {
				log.Info("simulation process closed", zap.String("signal", sig))
			} else {
				log.Info("simulation process closed", zap.Int("exit_code", cmd.ProcessState.ExitCode()))
			}
			r.success.Store(false)
		default:
			log.WithError(err).Error("simulation process failed")
			r.success.Store(false)
		}
		o.finish(r, onClose)
	}()
	return nil
}

func (o *Orchestrator) consume(r *run, src io.Reader, stream string, readers *sync.WaitGroup) {
	defer readers.Done()
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		o.emitLine(r, stream, scanner.Text())
	}
}

func (o *Orchestrator) emitLine(r *run, stream, line string) {
	if stream == "stderr" {
		r.success.Store(false)
	}
	r.logMu.Lock()
	fmt.Fprintln(r.logFile, line)
	r.logMu.Unlock()

	event := bus.NewEvent(events.SimulatorLogLine, "simulator", map[string]interface{}{
		"run_id":    r.id,
		"workspace": r.workspace,
		"stream":    stream,
		"line":      line,
	})
	if err := o.bus.Publish(context.Background(), events.SimulatorLogLine, event); err != nil {
		o.logger.WithError(err).Warn("failed to publish log line")
	}
}

func (o *Orchestrator) finish(r *run, onClose CloseFunc) {
	r.closeOnce.Do(func() {
		r.logMu.Lock()
		r.logFile.Close()
		r.logMu.Unlock()

		summary := history.ExecutionSummary{
			Location:  r.location,
			StartTime: r.started,
			Duration:  int(time.Since(r.started).Round(time.Second) / time.Second),
			Success:   r.success.Load(),
			Workspace: r.workspace,
			LogPath:   r.logPath,
			Target:    r.target,
		}

		o.mu.Lock()
		if o.current == r {
			o.current = nil
		}
		o.lastLog = r.logPath
		o.mu.Unlock()

		close(r.done)
		if onClose != nil {
			onClose(summary)
		}
	})
}

func openRunLog(dir string, started time.Time) (*os.File, string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}
	logPath := filepath.Join(dir, fmt.Sprintf("extsim-%s.log", started.Format("20060102-150405")))
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", err
	}
	return f, logPath, nil
}
