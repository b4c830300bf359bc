package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"

	"github.com/plexuscore/plexus/telemetry"
)

// Notifier fans a gateway-status event out to every interested listener.
// SPEC_FULL.md §4.5's "[SPEC_FULL addition]" note: a single-replica gateway
// runs the in-process Notifier; a multi-replica deployment configures the
// Pulse-backed one so every replica observes the same backend transitions.
type Notifier interface {
	// Publish broadcasts payload under event. The in-process implementation
	// never fails; the Pulse-backed one can fail on a Redis error.
	Publish(ctx context.Context, event string, payload []byte) error
	// Subscribe returns a channel of raw payloads published under event and
	// an unsubscribe function the caller must call when done listening.
	Subscribe(ctx context.Context, event string) (<-chan []byte, func(), error)
}

// inProcessNotifier fans events out to in-memory channel subscribers. This is
// the default Notifier for a single-replica gateway, requiring no Redis.
type inProcessNotifier struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewInProcessNotifier constructs the default, dependency-free Notifier.
func NewInProcessNotifier() Notifier {
	return &inProcessNotifier{subs: make(map[string][]chan []byte)}
}

func (n *inProcessNotifier) Publish(_ context.Context, event string, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, ch := range n.subs[event] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

func (n *inProcessNotifier) Subscribe(_ context.Context, event string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, 16)
	n.mu.Lock()
	n.subs[event] = append(n.subs[event], ch)
	n.mu.Unlock()

	unsubscribe := func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		subs := n.subs[event]
		for i, c := range subs {
			if c == ch {
				n.subs[event] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe, nil
}

// pulseNotifier fans events out across gateway replicas via a Pulse stream
// per event name, mirroring the Sink/Ack idiom
// runtime/toolregistry/provider.Serve uses for tool-call work queues —
// repurposed here for gateway-to-gateway status broadcast
// instead of work distribution, so Ack happens immediately after decode
// rather than after handling completes.
type pulseNotifier struct {
	redis  *redis.Client
	logger telemetry.Logger

	mu      sync.Mutex
	streams map[string]*streaming.Stream
}

// NewPulseNotifier constructs a Notifier backed by Pulse streams over redis.
func NewPulseNotifier(redisClient *redis.Client, logger telemetry.Logger) Notifier {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &pulseNotifier{redis: redisClient, logger: logger, streams: make(map[string]*streaming.Stream)}
}

func (n *pulseNotifier) stream(event string) (*streaming.Stream, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.streams[event]; ok {
		return s, nil
	}
	s, err := streaming.NewStream(streamName(event), n.redis)
	if err != nil {
		return nil, fmt.Errorf("gateway: open pulse stream %q: %w", event, err)
	}
	n.streams[event] = s
	return s, nil
}

func streamName(event string) string {
	return "gateway/" + event
}

func (n *pulseNotifier) Publish(ctx context.Context, event string, payload []byte) error {
	s, err := n.stream(event)
	if err != nil {
		return err
	}
	if _, err := s.Add(ctx, event, payload); err != nil {
		return fmt.Errorf("gateway: publish %q: %w", event, err)
	}
	return nil
}

func (n *pulseNotifier) Subscribe(ctx context.Context, event string) (<-chan []byte, func(), error) {
	s, err := n.stream(event)
	if err != nil {
		return nil, nil, err
	}
	sinkName := fmt.Sprintf("gateway-%s-%p", event, &n)
	sink, err := s.NewSink(ctx, sinkName)
	if err != nil {
		return nil, nil, fmt.Errorf("gateway: open sink for %q: %w", event, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		for ev := range sink.Subscribe() {
			select {
			case out <- ev.Payload:
			case <-ctx.Done():
				return
			}
			if err := sink.Ack(ctx, ev); err != nil {
				n.logger.Warn(ctx, "gateway: failed to ack pulse event", "component", "gateway", "event", event, "err", err)
			}
		}
	}()

	unsubscribe := func() { sink.Close(ctx) }
	return out, unsubscribe, nil
}
