package process

import (
	"fmt"
	"path"
	"strings"

	"github.com/extsim/extsim/internal/simulator"
)

const (
	linuxScratchDir   = "/tmp/extsim"
	windowsScratchDir = "C:/extsim"
)

// RemoteScratchDir is the directory on a remote target that simulation
// inputs are copied into before the datasource is launched there.
func RemoteScratchDir(os simulator.OsType) string {
	if os == simulator.OsWindows {
		return windowsScratchDir
	}
	return linuxScratchDir
}

// DatasourceCommand builds the command line that launches a datasource
// binary against the given manifest, activation and token files.
func DatasourceCommand(exe simulator.ResolvedExecutable, manifest, activation, token string) string {
	return fmt.Sprintf("%s --config %s --activationConfig %s --idtoken %s",
		quote(path.Join(exe.Dir, exe.File)), quote(manifest), quote(activation), quote(token))
}

// PythonCommand builds the command line that runs a Python extension
// through the SDK's bundled simulator.
func PythonCommand(python, activation string, sendMetrics bool) string {
	parts := []string{python, "-m", "dt_sdk.scripts.simulator", "--activation-config", quote(activation)}
	if sendMetrics {
		parts = append(parts, "--send-metrics")
	}
	return strings.Join(parts, " ")
}

// RemoteCommand builds the launch line for a datasource on a remote
// target, with the copied inputs resolved against the scratch directory.
func RemoteCommand(exe simulator.ResolvedExecutable, target simulator.OsType, manifest, activation, token string) string {
	scratch := RemoteScratchDir(target)
	return fmt.Sprintf("%s --config %s --activationConfig %s --idtoken %s",
		quote(path.Join(exe.Dir, exe.File)),
		quote(path.Join(scratch, path.Base(manifest))),
		quote(path.Join(scratch, path.Base(activation))),
		quote(path.Join(scratch, path.Base(token))))
}

func quote(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}
