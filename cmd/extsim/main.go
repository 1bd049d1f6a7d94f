// Command extsim runs the extension simulator: a server exposing the
// command surface and UI stream, plus one-shot subcommands for readiness
// checks and target management.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/api"
	"github.com/extsim/extsim/internal/codelens"
	"github.com/extsim/extsim/internal/common/config"
	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/common/tracing"
	"github.com/extsim/extsim/internal/events"
	"github.com/extsim/extsim/internal/simulator"
	"github.com/extsim/extsim/internal/simulator/bridge"
	"github.com/extsim/extsim/internal/simulator/history"
	"github.com/extsim/extsim/internal/simulator/process"
	"github.com/extsim/extsim/internal/simulator/registry"
	"github.com/extsim/extsim/internal/uistream"
	"github.com/extsim/extsim/internal/workspace"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return err
	}
	logger.SetDefault(log)
	defer log.Sync()

	command := "serve"
	if len(args) > 0 {
		command = args[0]
		args = args[1:]
	}

	switch command {
	case "serve":
		return runServe(cfg, log, args)
	case "check":
		return runCheck(cfg, log, args)
	case "targets":
		return runTargets(cfg, log, args)
	case "history":
		return runHistory(cfg, log)
	case "help", "-h", "--help":
		usage()
		return nil
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: extsim <command> [flags]

commands:
  serve     run the simulator server for a workspace (default)
  check     run the readiness checks once and print the result
  targets   list, add or remove remote simulation targets
  history   print the recorded simulation executions`)
}

type components struct {
	workspace *workspace.Workspace
	bridge    *bridge.Bridge
	lenses    *codelens.Provider
	hub       *uistream.Hub
	cleanup   func()
}

func wire(cfg *config.Config, log *logger.Logger, workspaceDir string) (*components, error) {
	eventBus, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		return nil, err
	}

	ws := workspace.New(workspaceDir)
	reg, err := registry.New(cfg.Simulator.StateDir, log)
	if err != nil {
		closeBus()
		return nil, err
	}
	hist, err := history.New(cfg.Simulator.StateDir, log)
	if err != nil {
		closeBus()
		return nil, err
	}

	checker := simulator.NewChecker(ws, simulator.PythonProber{Command: cfg.Simulator.PythonCommand}, log)
	orch := process.NewOrchestrator(eventBus, process.NewSystemProcessTree(), log)
	b := bridge.New(ws, checker, orch, reg, hist, eventBus, bridge.Options{
		MaximumLogFiles: cfg.Simulator.MaximumLogFiles,
		PythonCommand:   cfg.Simulator.PythonCommand,
	}, log)

	lenses, err := codelens.NewProvider(b, ws, eventBus, log)
	if err != nil {
		closeBus()
		return nil, err
	}

	hub := uistream.NewHub(func() interface{} { return b.Snapshot() }, log)
	if err := hub.Attach(eventBus); err != nil {
		closeBus()
		return nil, err
	}

	return &components{
		workspace: ws,
		bridge:    b,
		lenses:    lenses,
		hub:       hub,
		cleanup:   closeBus,
	}, nil
}

func runServe(cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	workspaceDir := fs.String("workspace", ".", "extension workspace directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	comp, err := wire(cfg, log, *workspaceDir)
	if err != nil {
		return err
	}
	defer comp.cleanup()

	handler := api.NewHandler(comp.bridge, comp.lenses, log)
	router := api.NewRouter(handler, comp.hub, log)

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("extsim server listening",
			zap.String("addr", addr), zap.String("workspace", comp.workspace.Name()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := comp.bridge.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to stop running simulation")
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("failed to flush traces")
	}
	return server.Shutdown(shutdownCtx)
}

func runCheck(cfg *config.Config, log *logger.Logger, args []string) error {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	workspaceDir := fs.String("workspace", ".", "extension workspace directory")
	location := fs.String("location", cfg.Simulator.DefaultLocation, "LOCAL or REMOTE")
	eecType := fs.String("eec", cfg.Simulator.DefaultEecType, "ONEAGENT or ACTIVEGATE")
	targetName := fs.String("target", cfg.Simulator.DefaultTargetName, "registered target name (remote only)")
	sendMetrics := fs.Bool("send-metrics", cfg.Simulator.DefaultSendMetrics, "forward metrics to the configured tenant")
	mandatoryOnly := fs.Bool("mandatory-only", false, "only check the workspace requirements")
	if err := fs.Parse(args); err != nil {
		return err
	}

	comp, err := wire(cfg, log, *workspaceDir)
	if err != nil {
		return err
	}
	defer comp.cleanup()

	var simCfg *simulator.SimulationConfig
	if !*mandatoryOnly {
		loc, err := simulator.ParseLocation(*location)
		if err != nil {
			return err
		}
		eec, err := simulator.ParseEecType(*eecType)
		if err != nil {
			return err
		}
		var target *simulator.RemoteTarget
		if loc == simulator.LocationRemote {
			found, ok, err := comp.bridge.Target(*targetName)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("unknown remote target %q", *targetName)
			}
			target = found
		}
		simCfg, err = simulator.NewSimulationConfig(loc, eec, target, *sendMetrics)
		if err != nil {
			return err
		}
	}

	snapshot := comp.bridge.CheckReady(context.Background(), simCfg)
	return printJSON(snapshot)
}

func runTargets(cfg *config.Config, log *logger.Logger, args []string) error {
	reg, err := registry.New(cfg.Simulator.StateDir, log)
	if err != nil {
		return err
	}

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}
	switch sub {
	case "list":
		targets, err := reg.List()
		if err != nil {
			return err
		}
		return printJSON(targets)
	case "add":
		target, err := promptTarget()
		if err != nil {
			return err
		}
		if err := reg.Register(*target); err != nil {
			return err
		}
		fmt.Printf("registered target %q\n", target.Name)
		return nil
	case "remove":
		if len(args) != 1 {
			return errors.New("usage: extsim targets remove <name>")
		}
		if err := reg.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("removed target %q\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown targets subcommand %q", sub)
	}
}

// promptTarget collects a remote target definition interactively.
func promptTarget() (*simulator.RemoteTarget, error) {
	var (
		name, address, username, keyPath string
		eecType, osType                  string
	)
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Target name").
				Validate(required("name")).
				Value(&name),
			huh.NewInput().
				Title("Address (host or host:port)").
				Validate(required("address")).
				Value(&address),
			huh.NewInput().
				Title("SSH username").
				Validate(required("username")).
				Value(&username),
			huh.NewInput().
				Title("Private key file").
				Validate(required("private key file")).
				Value(&keyPath),
			huh.NewSelect[string]().
				Title("EEC type").
				Options(
					huh.NewOption("OneAgent", string(simulator.EecOneAgent)),
					huh.NewOption("ActiveGate", string(simulator.EecActiveGate)),
				).
				Value(&eecType),
			huh.NewSelect[string]().
				Title("Operating system").
				Options(
					huh.NewOption("Linux", string(simulator.OsLinux)),
					huh.NewOption("Windows", string(simulator.OsWindows)),
				).
				Value(&osType),
		),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	eec, err := simulator.ParseEecType(eecType)
	if err != nil {
		return nil, err
	}
	targetOs, err := simulator.ParseOsType(osType)
	if err != nil {
		return nil, err
	}
	return &simulator.RemoteTarget{
		Name:       name,
		Address:    address,
		Username:   username,
		PrivateKey: keyPath,
		EecType:    eec,
		OsType:     targetOs,
	}, nil
}

func required(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func runHistory(cfg *config.Config, log *logger.Logger) error {
	hist, err := history.New(cfg.Simulator.StateDir, log)
	if err != nil {
		return err
	}
	executions, err := hist.List()
	if err != nil {
		return err
	}
	return printJSON(executions)
}

func printJSON(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
