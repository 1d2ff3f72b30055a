package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codedeck/workbench/logging"
	"github.com/codedeck/workbench/workspace"
)

// Common errors.
var (
	ErrClosed        = errors.New("broadcaster closed")
	ErrInvalidConfig = errors.New("invalid broadcaster configuration")
)

// EventType identifies the kind of live-update event.
type EventType string

const (
	// EventWorkspaceUpdate carries the full array of workspace projections.
	EventWorkspaceUpdate EventType = "workspace_update"

	// EventHeartbeat keeps idle connections alive. Timestamp only.
	EventHeartbeat EventType = "heartbeat"

	// EventError reports a broadcaster-side failure to subscribers.
	EventError EventType = "error"
)

// Event is one message on the live-update stream.
type Event struct {
	Type       EventType            `json:"type"`
	Workspaces []workspace.Snapshot `json:"workspaces,omitempty"`
	Timestamp  time.Time            `json:"timestamp"`
	Message    string               `json:"message,omitempty"`
}

// Source provides the workspace projections pushed on every snapshot tick.
// Implemented by workspace.Registry.
type Source interface {
	Snapshot() []workspace.Snapshot
}

// Config holds broadcaster configuration.
type Config struct {
	// SnapshotInterval between workspace_update events.
	// Default: 2s
	SnapshotInterval time.Duration

	// HeartbeatInterval between heartbeat events on idle connections.
	// Default: 30s
	HeartbeatInterval time.Duration

	// BufferSize for each subscriber channel. A subscriber whose buffer is
	// full misses events rather than blocking the others.
	// Default: 16
	BufferSize int
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SnapshotInterval:  2 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		BufferSize:        16,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.SnapshotInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.HeartbeatInterval <= 0 {
		return ErrInvalidConfig
	}
	if c.BufferSize <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Broadcaster periodically snapshots a Source and fans events out to any
// number of passive subscribers. Delivery to each subscriber is independent
// and non-blocking.
type Broadcaster struct {
	config Config
	source Source
	logger *logging.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed atomic.Bool
}

// New creates a broadcaster over the given source.
func New(source Source, cfg Config, logger *logging.Logger) (*Broadcaster, error) {
	if source == nil {
		return nil, ErrInvalidConfig
	}
	if cfg.SnapshotInterval <= 0 {
		cfg.SnapshotInterval = DefaultConfig().SnapshotInterval
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultConfig().HeartbeatInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &Broadcaster{
		config: cfg,
		source: source,
		logger: logger.WithComponent("broadcast"),
		subs:   make(map[uint64]*Subscription),
	}, nil
}

// Subscribe registers a new subscriber and returns its subscription. The
// caller must drain Events() and call Close when done.
func (b *Broadcaster) Subscribe() (*Subscription, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id: b.nextID,
		ch: make(chan Event, b.config.BufferSize),
		b:  b,
	}
	b.subs[sub.id] = sub
	return sub, nil
}

// SubscriberCount returns the number of open subscriptions.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Run drives the snapshot and heartbeat timers until ctx is canceled, then
// closes every open subscription.
func (b *Broadcaster) Run(ctx context.Context) error {
	snapshot := time.NewTicker(b.config.SnapshotInterval)
	defer snapshot.Stop()
	heartbeat := time.NewTicker(b.config.HeartbeatInterval)
	defer heartbeat.Stop()

	b.logger.Info("broadcaster running", map[string]interface{}{
		"snapshot_interval":  b.config.SnapshotInterval.String(),
		"heartbeat_interval": b.config.HeartbeatInterval.String(),
	})

	for {
		select {
		case <-ctx.Done():
			b.shutdown()
			return ctx.Err()
		case <-snapshot.C:
			b.publishSnapshot()
		case <-heartbeat.C:
			b.publish(Event{Type: EventHeartbeat, Timestamp: time.Now()})
		}
	}
}

// PublishError pushes an error event to all subscribers.
func (b *Broadcaster) PublishError(message string) {
	b.publish(Event{Type: EventError, Message: message, Timestamp: time.Now()})
}

func (b *Broadcaster) publishSnapshot() {
	b.publish(Event{
		Type:       EventWorkspaceUpdate,
		Workspaces: b.source.Snapshot(),
		Timestamp:  time.Now(),
	})
}

// publish delivers an event to every subscriber without blocking. A
// subscriber whose buffer is full misses this event; the rest still get it.
func (b *Broadcaster) publish(evt Event) {
	if b.closed.Load() {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if sub.closed.Load() {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// Subscriber is not keeping up.
		}
	}
}

// shutdown closes every subscription and rejects new ones.
func (b *Broadcaster) shutdown() {
	if b.closed.Swap(true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subs {
		if !sub.closed.Swap(true) {
			close(sub.ch)
		}
		delete(b.subs, id)
	}
	b.logger.Info("broadcaster stopped", nil)
}

// Subscription is one subscriber's handle on the live-update stream.
type Subscription struct {
	id     uint64
	ch     chan Event
	b      *Broadcaster
	closed atomic.Bool
}

// Events returns the subscriber's channel. It is closed when the
// subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Close releases the subscription and stops delivery.
func (s *Subscription) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.b.mu.Lock()
	delete(s.b.subs, s.id)
	s.b.mu.Unlock()

	close(s.ch)
	return nil
}
