package bus

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/extsim/extsim/internal/common/logger"
)

// MemoryEventBus implements EventBus using in-process dispatch. It is the
// default bus for single-user operation. Each subscription drains its own
// buffered queue on one goroutine, so delivery order per subscriber
// matches publish order and publishers never block on slow consumers.
type MemoryEventBus struct {
	subscriptions map[string][]*memorySubscription
	mu            sync.RWMutex
	logger        *logger.Logger
	closed        bool
}

type memorySubscription struct {
	bus     *MemoryEventBus
	subject string
	pattern *regexp.Regexp // For wildcard matching
	handler EventHandler
	queue   chan *Event
	active  bool
	mu      sync.Mutex
}

const subscriptionQueueSize = 256

// offer enqueues the event unless the subscription is gone or its queue
// is full. Inactive subscriptions swallow events silently.
func (s *memorySubscription) offer(event *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return true
	}
	select {
	case s.queue <- event:
		return true
	default:
		return false
	}
}

func (s *memorySubscription) dispatch() {
	for event := range s.queue {
		if err := s.handler(context.Background(), event); err != nil {
			s.bus.logger.Error("event handler error",
				zap.String("subject", s.subject),
				zap.Error(err))
		}
	}
}

// NewMemoryEventBus creates an in-memory event bus.
func NewMemoryEventBus(log *logger.Logger) *MemoryEventBus {
	return &MemoryEventBus{
		subscriptions: make(map[string][]*memorySubscription),
		logger:        log.WithFields(zap.String("component", "memory-event-bus")),
	}
}

// Publish delivers the event to every active subscription whose subject
// pattern matches.
func (b *MemoryEventBus) Publish(ctx context.Context, subject string, event *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}

	for pattern, subs := range b.subscriptions {
		for _, sub := range subs {
			if !matches(subject, pattern, sub.pattern) {
				continue
			}
			if !sub.offer(event) {
				b.logger.Warn("subscriber queue full, dropping event",
					zap.String("subject", subject),
					zap.String("pattern", sub.subject))
			}
		}
	}

	b.logger.Debug("published event",
		zap.String("subject", subject),
		zap.String("event_type", event.Type))
	return nil
}

// Subscribe creates a subscription to a subject pattern. NATS-style
// wildcards are supported: "*" matches one token, ">" matches the rest.
func (b *MemoryEventBus) Subscribe(subject string, handler EventHandler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}

	sub := &memorySubscription{
		bus:     b,
		subject: subject,
		pattern: compilePattern(subject),
		handler: handler,
		queue:   make(chan *Event, subscriptionQueueSize),
		active:  true,
	}
	b.subscriptions[subject] = append(b.subscriptions[subject], sub)
	go sub.dispatch()

	b.logger.Debug("subscribed to subject", zap.String("subject", subject))
	return sub, nil
}

// Close shuts down the bus and every subscription's dispatch goroutine.
func (b *MemoryEventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subscriptions {
		for _, sub := range subs {
			sub.deactivate()
		}
	}
	b.subscriptions = make(map[string][]*memorySubscription)
}

// IsConnected reports whether the bus accepts publishes.
func (b *MemoryEventBus) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// deactivate marks the subscription dead and stops its dispatcher.
func (s *memorySubscription) deactivate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.active = false
	close(s.queue)
}

// Unsubscribe removes the subscription.
func (s *memorySubscription) Unsubscribe() error {
	s.deactivate()

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs, ok := s.bus.subscriptions[s.subject]; ok {
		for i, sub := range subs {
			if sub == s {
				s.bus.subscriptions[s.subject] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
	}
	return nil
}

// IsValid reports whether the subscription still receives events.
func (s *memorySubscription) IsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// compilePattern converts a NATS-style subject pattern to a regexp, or
// nil for exact-match subjects.
func compilePattern(subject string) *regexp.Regexp {
	if !strings.ContainsAny(subject, "*>") {
		return nil
	}
	escaped := regexp.QuoteMeta(subject)
	escaped = strings.ReplaceAll(escaped, `\*`, `[^.]+`)
	escaped = strings.ReplaceAll(escaped, ">", `.*`)
	return regexp.MustCompile("^" + escaped + "$")
}

func matches(subject, pattern string, re *regexp.Regexp) bool {
	if re == nil {
		return subject == pattern
	}
	return re.MatchString(subject)
}
