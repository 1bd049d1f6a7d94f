package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/extsim/extsim/internal/common/logger"
)

func newTestBus(t *testing.T) *MemoryEventBus {
	t.Helper()
	b := NewMemoryEventBus(logger.Default())
	t.Cleanup(b.Close)
	return b
}

func collect(t *testing.T, b *MemoryEventBus, pattern string) func() []string {
	t.Helper()
	var mu sync.Mutex
	var types []string
	_, err := b.Subscribe(pattern, func(ctx context.Context, event *Event) error {
		mu.Lock()
		types = append(types, event.Type)
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), types...)
	}
}

func publish(t *testing.T, b *MemoryEventBus, subject string) {
	t.Helper()
	require.NoError(t, b.Publish(context.Background(), subject, NewEvent(subject, "test", nil)))
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 5*time.Second, 10*time.Millisecond)
}

func TestExactSubjectDelivery(t *testing.T) {
	b := newTestBus(t)
	got := collect(t, b, "simulator.state_updated")

	publish(t, b, "simulator.state_updated")
	publish(t, b, "simulator.log_line")

	eventually(t, func() bool { return len(got()) == 1 })
	assert.Equal(t, []string{"simulator.state_updated"}, got())
}

func TestWildcardDelivery(t *testing.T) {
	b := newTestBus(t)
	star := collect(t, b, "simulator.*")
	all := collect(t, b, "simulator.>")

	publish(t, b, "simulator.state_updated")
	publish(t, b, "simulator.run.started")

	eventually(t, func() bool { return len(all()) == 2 })
	// "*" spans one token, ">" spans the rest.
	eventually(t, func() bool { return len(star()) == 1 })
	assert.Equal(t, []string{"simulator.state_updated"}, star())
}

func TestDeliveryOrderPerSubscriber(t *testing.T) {
	b := newTestBus(t)
	got := collect(t, b, "simulator.log_line")

	const n = 50
	for i := 0; i < n; i++ {
		publish(t, b, "simulator.log_line")
	}
	eventually(t, func() bool { return len(got()) == n })
}

func TestDeliveryOrderIsPublishOrder(t *testing.T) {
	b := newTestBus(t)

	var mu sync.Mutex
	var seen []string
	_, err := b.Subscribe("simulator.>", func(ctx context.Context, event *Event) error {
		mu.Lock()
		seen = append(seen, event.Data["seq"].(string))
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	sequence := []string{"a", "b", "c", "d", "e"}
	for _, seq := range sequence {
		require.NoError(t, b.Publish(context.Background(), "simulator.tick",
			NewEvent("simulator.tick", "test", map[string]interface{}{"seq": seq})))
	}

	eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(sequence)
	})
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, sequence, seen)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus(t)

	var mu sync.Mutex
	count := 0
	sub, err := b.Subscribe("simulator.state_updated", func(ctx context.Context, event *Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	publish(t, b, "simulator.state_updated")
	eventually(t, func() bool { mu.Lock(); defer mu.Unlock(); return count == 1 })

	require.NoError(t, sub.Unsubscribe())
	assert.False(t, sub.IsValid())

	publish(t, b, "simulator.state_updated")
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count)
}

func TestClosedBusRejectsPublish(t *testing.T) {
	b := NewMemoryEventBus(logger.Default())
	b.Close()

	err := b.Publish(context.Background(), "simulator.state_updated", NewEvent("simulator.state_updated", "test", nil))
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.False(t, b.IsConnected())

	_, err = b.Subscribe("simulator.state_updated", func(context.Context, *Event) error { return nil })
	assert.ErrorIs(t, err, ErrBusClosed)
}
