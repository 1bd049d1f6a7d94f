package simulator

import "errors"

// Sentinel errors surfaced by the simulator core.
var (
	// ErrTargetRequired indicates a remote simulation without a target.
	ErrTargetRequired = errors.New("remote simulation requires a target")

	// ErrSimulationRunning rejects a second start while a run is tracked.
	ErrSimulationRunning = errors.New("a simulation is already running")

	// ErrNotReady indicates start was called before readiness was confirmed.
	ErrNotReady = errors.New("simulator is not ready")
)
