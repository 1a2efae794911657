package mqtt

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/flexmarket/core/events"
	"github.com/kilianp07/flexmarket/core/logger"
	coremqtt "github.com/kilianp07/flexmarket/core/mqtt"
	"github.com/kilianp07/flexmarket/internal/eventbus"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// Forward publishes every event of bus until ctx is canceled or the bus is
// closed. The returned channel is closed once forwarding stopped.
func Forward(ctx context.Context, bus *eventbus.TypedBus[events.Event], pub Publisher, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if _, err := pub.Publish(ev); err != nil {
					log.Warnf("progress %s: %v", ev.Kind(), err)
				}
			}
		}
	}()
	return done
}

// MockPublisher records events, used in tests.
type MockPublisher struct {
	mu       sync.Mutex
	Messages []events.Event
	// FailKinds makes Publish fail for the listed kinds.
	FailKinds map[events.Kind]bool
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{FailKinds: map[events.Kind]bool{}}
}

// Publish records the event or returns an error if configured to fail.
func (m *MockPublisher) Publish(ev events.Event) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailKinds[ev.Kind()] {
		return "", fmt.Errorf("%w: %s", coremqtt.ErrPublish, ev.Kind())
	}
	m.Messages = append(m.Messages, ev)
	return fmt.Sprintf("msg-%d", len(m.Messages)), nil
}

// Events returns a copy of the recorded events.
func (m *MockPublisher) Events() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.Messages...)
}

func (m *MockPublisher) Disconnect() {}
