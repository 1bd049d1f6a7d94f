package simulator

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path"

	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/workspace"
)

// Failure tags reported by the mandatory-requirements check.
const (
	CheckManifest   = "Manifest"
	CheckDatasource = "Datasource"
	CheckActivation = "Activation file"
)

// ToolchainProber checks that the external SDK toolchain is runnable.
// SDK-kind datasources are simulated through it rather than an EEC binary.
type ToolchainProber interface {
	IsToolchainAvailable(ctx context.Context) bool
}

// PythonProber probes the configured Python interpreter for the
// extension SDK module.
type PythonProber struct {
	Command string
}

// IsToolchainAvailable reports whether the SDK module imports cleanly.
func (p PythonProber) IsToolchainAvailable(ctx context.Context) bool {
	command := p.Command
	if command == "" {
		command = "python"
	}
	cmd := exec.CommandContext(ctx, command, "-c", "import dt_sdk")
	return cmd.Run() == nil
}

// CheckResult is the outcome of a configuration-specific readiness check.
type CheckResult struct {
	Status  Status
	Message string
}

// ResolvedExecutable is the datasource binary location cached by a
// successful configuration check, consumed by the orchestrator.
type ResolvedExecutable struct {
	Dir  string
	File string
}

// Checker validates that a workspace can run a simulation: mandatory
// artifacts first, then a chosen configuration against the capability
// matrix, the local filesystem, or the remote target.
type Checker struct {
	ws     *workspace.Workspace
	prober ToolchainProber
	logger *logger.Logger

	manifest *workspace.Manifest
	specs    *SimulationSpecs
	resolved *ResolvedExecutable
}

// NewChecker builds a readiness checker for the workspace.
func NewChecker(ws *workspace.Workspace, prober ToolchainProber, log *logger.Logger) *Checker {
	return &Checker{
		ws:     ws,
		prober: prober,
		logger: log.WithFields(zap.String("component", "readiness-checker")),
	}
}

// CheckMandatory runs the three workspace requirements independently and
// collects every failure: the manifest must be discoverable, its
// datasource must resolve to a supported name, and an activation config
// must exist. On full success the capability matrix and local filesystem
// are probed to compute the simulation specs.
func (c *Checker) CheckMandatory() (bool, []string) {
	var failed []string

	manifestPath, err := c.ws.FindManifest()
	if err != nil {
		failed = append(failed, CheckManifest)
	}

	datasource := ""
	if manifestPath != "" {
		manifest, err := workspace.ReadManifest(manifestPath)
		if err != nil {
			failed = append(failed, CheckDatasource)
		} else {
			c.manifest = manifest
			datasource = manifest.Datasource(KnownDatasources())
			if datasource == "unsupported" {
				failed = append(failed, CheckDatasource)
			}
		}
	}

	if _, err := c.ws.ActivationFile(datasource == DatasourcePython); err != nil {
		failed = append(failed, CheckActivation)
	}

	if len(failed) > 0 {
		c.logger.Debug("mandatory checks failed", zap.Strings("failed", failed))
		c.specs = nil
		return false, failed
	}

	c.specs = c.computeSpecs(datasource)
	return true, nil
}

// CheckConfig validates a simulation configuration. Only meaningful after
// CheckMandatory has passed. Checks run in a fixed order and the first
// failing condition determines the result.
func (c *Checker) CheckConfig(ctx context.Context, cfg *SimulationConfig) CheckResult {
	if c.specs == nil {
		return CheckResult{Status: StatusUnknown, Message: "mandatory requirements have not been checked"}
	}
	datasource := c.specs.Datasource

	if c.specs.IsPython && cfg.Location == LocationLocal {
		if !c.prober.IsToolchainAvailable(ctx) {
			return CheckResult{
				Status:  StatusNotReady,
				Message: "the extension SDK is not available in the active Python environment",
			}
		}
		return CheckResult{Status: StatusReady}
	}

	switch cfg.Location {
	case LocationLocal:
		localOs := LocalOs()
		if !CanSimulate(localOs, cfg.EecType, datasource) {
			return CheckResult{
				Status:  StatusNotReady,
				Message: fmt.Sprintf("datasource %s cannot run under %s on %s", datasource, cfg.EecType, localOs),
			}
		}
		dir, file := DatasourcePath(localOs, cfg.EecType, datasource)
		exePath := path.Join(dir, file)
		if _, err := os.Stat(exePath); err != nil {
			return CheckResult{
				Status:  StatusNotReady,
				Message: fmt.Sprintf("datasource executable not found at %s", exePath),
			}
		}
		c.resolved = &ResolvedExecutable{Dir: dir, File: file}

	case LocationRemote:
		if c.specs.IsPython {
			return CheckResult{
				Status:  StatusNotReady,
				Message: "remote simulation is not supported for SDK-based extensions",
			}
		}
		if cfg.Target == nil {
			return CheckResult{Status: StatusNotReady, Message: "no remote target selected"}
		}
		if !CanSimulate(cfg.Target.OsType, cfg.Target.EecType, datasource) {
			return CheckResult{
				Status: StatusNotReady,
				Message: fmt.Sprintf("datasource %s cannot run under %s on %s (target %s)",
					datasource, cfg.Target.EecType, cfg.Target.OsType, cfg.Target.Name),
			}
		}
		dir, file := DatasourcePath(cfg.Target.OsType, cfg.Target.EecType, datasource)
		c.resolved = &ResolvedExecutable{Dir: dir, File: file}
	}

	return CheckResult{Status: StatusReady}
}

// Specs returns the capability snapshot computed by the last successful
// mandatory check, or nil.
func (c *Checker) Specs() *SimulationSpecs {
	return c.specs
}

// Manifest returns the manifest parsed by the last mandatory check.
func (c *Checker) Manifest() *workspace.Manifest {
	return c.manifest
}

// Resolved returns the executable location cached by the last successful
// configuration check.
func (c *Checker) Resolved() *ResolvedExecutable {
	return c.resolved
}

func (c *Checker) computeSpecs(datasource string) *SimulationSpecs {
	localOs := LocalOs()
	specs := &SimulationSpecs{
		IsPython:   datasource == DatasourcePython,
		Datasource: datasource,
		DsSupportsOneAgentEec: CanSimulate(OsLinux, EecOneAgent, datasource) ||
			CanSimulate(OsWindows, EecOneAgent, datasource),
		DsSupportsActiveGateEec: CanSimulate(OsLinux, EecActiveGate, datasource) ||
			CanSimulate(OsWindows, EecActiveGate, datasource),
	}
	for _, eec := range []EecType{EecOneAgent, EecActiveGate} {
		dir, file := DatasourcePath(localOs, eec, datasource)
		if _, err := os.Stat(path.Join(dir, file)); err == nil {
			if eec == EecOneAgent {
				specs.LocalOneAgentDsExists = true
			} else {
				specs.LocalActiveGateDsExists = true
			}
		}
	}
	return specs
}
