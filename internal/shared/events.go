package shared

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// sessionEventsChannel is the Redis pub/sub channel carrying session
// lifecycle notifications across processes (web and worker).
const sessionEventsChannel = "session:events"

// SessionEventKind enumerates session change notifications.
type SessionEventKind string

const (
	// SessionSignedOut is published when a session is explicitly revoked.
	SessionSignedOut SessionEventKind = "signed_out"
	// SessionExpired is published when the sweep job clears an expired session.
	SessionExpired SessionEventKind = "expired"
)

// SessionEvent is a session change notification.
type SessionEvent struct {
	Kind      SessionEventKind `json:"kind"`
	SessionID string           `json:"session_id"`
	UserID    string           `json:"user_id"`
	At        time.Time        `json:"at"`
}

type subscription struct {
	sessionID string
	ch        chan SessionEvent
}

// Broker fans session events out from a Redis pub/sub channel to local
// subscribers. Each subscriber sees only events for its own session ID
// (or every event when subscribed with an empty ID).
type Broker struct {
	client *redis.Client
	logger *slog.Logger
	pubsub *redis.PubSub

	mu     sync.Mutex
	subs   map[int]subscription
	nextID int
	closed bool
}

// NewBroker subscribes to the session events channel and starts dispatching.
func NewBroker(ctx context.Context, client *redis.Client, logger *slog.Logger) *Broker {
	b := &Broker{
		client: client,
		logger: logger,
		pubsub: client.Subscribe(ctx, sessionEventsChannel),
		subs:   make(map[int]subscription),
	}
	go b.dispatch()
	return b
}

// Publish emits a session event to every process listening on the channel.
func (b *Broker) Publish(ctx context.Context, evt SessionEvent) error {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, sessionEventsChannel, data).Err()
}

// Subscribe registers a listener for events matching sessionID. The returned
// cancel func releases the subscription and must be called on teardown; it is
// safe to call more than once.
func (b *Broker) Subscribe(sessionID string) (<-chan SessionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	// Small buffer so a slow consumer cannot stall dispatch.
	ch := make(chan SessionEvent, 4)
	b.subs[id] = subscription{sessionID: sessionID, ch: ch}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active local subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops the dispatch loop and drops all subscriptions.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.subs = make(map[int]subscription)
	b.mu.Unlock()
	return b.pubsub.Close()
}

func (b *Broker) dispatch() {
	for msg := range b.pubsub.Channel() {
		var evt SessionEvent
		if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
			if b.logger != nil {
				b.logger.Warn("decode session event", slog.Any("error", err))
			}
			continue
		}
		b.mu.Lock()
		for _, sub := range b.subs {
			if sub.sessionID != "" && sub.sessionID != evt.SessionID {
				continue
			}
			select {
			case sub.ch <- evt:
			default:
			}
		}
		b.mu.Unlock()
	}
}
