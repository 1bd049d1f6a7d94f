// Package simulator implements the extension simulator core: capability
// lookup, readiness checking, and the state machine that coordinates
// simulation runs.
package simulator

import (
	"fmt"
	"strings"
)

// Location is where a simulation executes.
type Location string

const (
	LocationLocal  Location = "LOCAL"
	LocationRemote Location = "REMOTE"
)

// EecType is the execution-environment-collector variant hosting a
// datasource process.
type EecType string

const (
	EecOneAgent   EecType = "ONEAGENT"
	EecActiveGate EecType = "ACTIVEGATE"
)

// OsType is the operating system of an execution host.
type OsType string

const (
	OsLinux   OsType = "LINUX"
	OsWindows OsType = "WINDOWS"
)

// Status is the simulator state machine's current value.
type Status string

const (
	StatusReady       Status = "READY"
	StatusRunning     Status = "RUNNING"
	StatusNotReady    Status = "NOTREADY"
	StatusUnsupported Status = "UNSUPPORTED"
	StatusChecking    Status = "CHECKING"
	StatusUnknown     Status = "UNKNOWN"
)

// ParseLocation converts a settings string into a Location.
func ParseLocation(s string) (Location, error) {
	switch Location(strings.ToUpper(s)) {
	case LocationLocal:
		return LocationLocal, nil
	case LocationRemote:
		return LocationRemote, nil
	}
	return "", fmt.Errorf("unknown simulation location %q", s)
}

// ParseEecType converts a settings string into an EecType.
func ParseEecType(s string) (EecType, error) {
	switch EecType(strings.ToUpper(s)) {
	case EecOneAgent:
		return EecOneAgent, nil
	case EecActiveGate:
		return EecActiveGate, nil
	}
	return "", fmt.Errorf("unknown EEC type %q", s)
}

// ParseOsType converts a settings string into an OsType.
func ParseOsType(s string) (OsType, error) {
	switch OsType(strings.ToUpper(s)) {
	case OsLinux:
		return OsLinux, nil
	case OsWindows:
		return OsWindows, nil
	}
	return "", fmt.Errorf("unknown OS type %q", s)
}

// RemoteTarget is a registered remote execution endpoint.
type RemoteTarget struct {
	Name       string  `json:"name"`
	Address    string  `json:"address"`
	Username   string  `json:"username"`
	PrivateKey string  `json:"privateKey"` // path to the key file
	EecType    EecType `json:"eecType"`
	OsType     OsType  `json:"osType"`
}

// SimulationConfig is the user-chosen execution intent for one run.
// It is immutable once built; its lifecycle ends with the run.
type SimulationConfig struct {
	Location    Location      `json:"location"`
	EecType     EecType       `json:"eecType"`
	Target      *RemoteTarget `json:"target,omitempty"`
	SendMetrics bool          `json:"sendMetrics"`
}

// NewSimulationConfig validates the target-iff-remote invariant.
func NewSimulationConfig(location Location, eec EecType, target *RemoteTarget, sendMetrics bool) (*SimulationConfig, error) {
	if location == LocationRemote && target == nil {
		return nil, ErrTargetRequired
	}
	if location == LocationLocal && target != nil {
		return nil, fmt.Errorf("local simulation does not take a remote target")
	}
	return &SimulationConfig{
		Location:    location,
		EecType:     eec,
		Target:      target,
		SendMetrics: sendMetrics,
	}, nil
}

// SimulationSpecs is the derived capability snapshot for the current
// workspace's datasource. Recomputed whenever the mandatory checks pass;
// read-only to all other components.
type SimulationSpecs struct {
	IsPython                bool   `json:"isPython"`
	Datasource              string `json:"dsName"`
	DsSupportsOneAgentEec   bool   `json:"dsSupportsOneAgentEec"`
	DsSupportsActiveGateEec bool   `json:"dsSupportsActiveGateEec"`
	LocalOneAgentDsExists   bool   `json:"localOneAgentDsExists"`
	LocalActiveGateDsExists bool   `json:"localActiveGateDsExists"`
}
