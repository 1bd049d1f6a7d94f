package api

import (
	"fmt"

	"github.com/extsim/extsim/internal/simulator"
)

// SimulationRequest is the body of check and start calls. An absent body
// on a check runs the mandatory phase only.
type SimulationRequest struct {
	Location    string `json:"location" binding:"required"`
	EecType     string `json:"eecType" binding:"required"`
	Target      string `json:"target,omitempty"` // registered target name
	SendMetrics bool   `json:"sendMetrics"`
}

// TargetRequest is the body of a target registration.
type TargetRequest struct {
	Name       string `json:"name" binding:"required"`
	Address    string `json:"address" binding:"required"`
	Username   string `json:"username" binding:"required"`
	PrivateKey string `json:"privateKey" binding:"required"`
	EecType    string `json:"eecType" binding:"required"`
	OsType     string `json:"osType" binding:"required"`
}

// StartResponse carries the id of a launched run.
type StartResponse struct {
	RunID string `json:"runId"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

func (r TargetRequest) toTarget() (simulator.RemoteTarget, error) {
	eec, err := simulator.ParseEecType(r.EecType)
	if err != nil {
		return simulator.RemoteTarget{}, err
	}
	osType, err := simulator.ParseOsType(r.OsType)
	if err != nil {
		return simulator.RemoteTarget{}, err
	}
	return simulator.RemoteTarget{
		Name:       r.Name,
		Address:    r.Address,
		Username:   r.Username,
		PrivateKey: r.PrivateKey,
		EecType:    eec,
		OsType:     osType,
	}, nil
}

type targetResolver interface {
	Target(name string) (*simulator.RemoteTarget, bool, error)
}

func (r SimulationRequest) toConfig(targets targetResolver) (*simulator.SimulationConfig, error) {
	location, err := simulator.ParseLocation(r.Location)
	if err != nil {
		return nil, err
	}
	eec, err := simulator.ParseEecType(r.EecType)
	if err != nil {
		return nil, err
	}

	var target *simulator.RemoteTarget
	if location == simulator.LocationRemote {
		if r.Target == "" {
			return nil, simulator.ErrTargetRequired
		}
		found, ok, err := targets.Target(r.Target)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("unknown remote target %q", r.Target)
		}
		target = found
	}
	return simulator.NewSimulationConfig(location, eec, target, r.SendMetrics)
}
