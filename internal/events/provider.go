package events

import (
	"fmt"
	"strings"

	"github.com/extsim/extsim/internal/common/config"
	"github.com/extsim/extsim/internal/common/logger"
	"github.com/extsim/extsim/internal/events/bus"
)

// Provide builds the configured event bus implementation: NATS when a URL
// is configured, the in-memory bus otherwise. The returned cleanup
// function closes the bus.
func Provide(cfg *config.Config, log *logger.Logger) (bus.EventBus, func(), error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		return natsBus, natsBus.Close, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	return memBus, memBus.Close, nil
}
