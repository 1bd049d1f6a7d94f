// Package codelens computes the editor affordances shown next to the
// datasource section of an extension manifest.
package codelens

import (
	"bufio"
	"context"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/events"
	"github.com/extsim/extsim/internal/events/bus"
	"github.com/extsim/extsim/internal/simulator"
	"github.com/extsim/extsim/internal/simulator/bridge"
	"github.com/extsim/extsim/internal/workspace"
)

// Lens is one actionable annotation at a manifest line.
type Lens struct {
	Line    int    `json:"line"` // zero-based line in the manifest file
	Command string `json:"command"`
	Title   string `json:"title"`
}

// Commands a lens can trigger on the simulator.
const (
	CommandStart      = "extsim.start"
	CommandStop       = "extsim.stop"
	CommandCheckAgain = "extsim.check"
)

// Provider renders lenses from the cached simulator status. The checks
// only re-run when the status is Unknown; afterwards the cache follows
// the state snapshots on the event bus.
type Provider struct {
	bridge *bridge.Bridge
	ws     *workspace.Workspace
	logger *logger.Logger

	mu     sync.Mutex
	status simulator.Status
}

// NewProvider builds a Provider and keeps its status cache subscribed to
// simulator state updates.
func NewProvider(b *bridge.Bridge, ws *workspace.Workspace, eventBus bus.EventBus, log *logger.Logger) (*Provider, error) {
	p := &Provider{
		bridge: b,
		ws:     ws,
		logger: log.WithFields(zap.String("component", "codelens")),
		status: simulator.StatusUnknown,
	}
	_, err := eventBus.Subscribe(events.SimulatorStateUpdated, func(ctx context.Context, event *bus.Event) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.status = b.Status()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Lenses computes the current annotations for the workspace manifest.
// A manifest without a recognizable datasource section yields none.
func (p *Provider) Lenses(ctx context.Context) ([]Lens, error) {
	p.mu.Lock()
	status := p.status
	p.mu.Unlock()

	if status == simulator.StatusUnknown {
		snapshot := p.bridge.CheckReady(ctx, nil)
		status = snapshot.Status
		p.mu.Lock()
		p.status = status
		p.mu.Unlock()
	}

	manifestPath, err := p.ws.FindManifest()
	if err != nil {
		return nil, err
	}
	line, found, err := datasourceLine(manifestPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	switch status {
	case simulator.StatusReady:
		return []Lens{{Line: line, Command: CommandStart, Title: "▶ Simulate extension"}}, nil
	case simulator.StatusRunning:
		return []Lens{{Line: line, Command: CommandStop, Title: "⏹ Stop simulation"}}, nil
	default:
		return []Lens{{Line: line, Command: CommandCheckAgain, Title: "↻ Check simulation readiness"}}, nil
	}
}

// datasourceLine finds the first line that opens a known datasource
// section, matched at the start of the line.
func datasourceLine(manifestPath string) (int, bool, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return 0, false, err
	}
	defer f.Close()

	headers := make([]string, 0, len(simulator.KnownDatasources()))
	for _, ds := range simulator.KnownDatasources() {
		headers = append(headers, ds+":")
	}

	scanner := bufio.NewScanner(f)
	for line := 0; scanner.Scan(); line++ {
		text := scanner.Text()
		for _, header := range headers {
			if strings.HasPrefix(text, header) {
				return line, true, nil
			}
		}
	}
	return 0, false, scanner.Err()
}
