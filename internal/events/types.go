// Package events defines the event types published on the extsim event bus.
package events

// Simulator lifecycle events
const (
	SimulatorStateUpdated = "simulator.state_updated"
	SimulatorLogLine      = "simulator.log_line"
	SimulatorRunStarted   = "simulator.run_started"
	SimulatorRunFinished  = "simulator.run_finished"
)

// Target registry events
const (
	TargetRegistered = "target.registered"
	TargetDeleted    = "target.deleted"
)
