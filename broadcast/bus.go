package broadcast

import (
	"errors"
	"sync"
	"sync/atomic"
)

// Bus errors.
var (
	ErrBusClosed      = errors.New("bus closed")
	ErrInvalidSubject = errors.New("invalid subject")
)

// Subject is the bus subject live-update events are relayed on.
const Subject = "workbench.updates"

// BusMessage is a message received from the bus.
type BusMessage struct {
	// Subject the message was published to.
	Subject string

	// Data is the JSON-encoded Event.
	Data []byte
}

// MessageBus carries live-update events to detached consumers. Two
// implementations exist: MemoryBus for single-process use and tests, NATSBus
// for remote dashboards.
type MessageBus interface {
	// Publish sends a message to all subscribers of a subject.
	Publish(subject string, data []byte) error

	// Subscribe creates a subscription to a subject.
	// All subscribers receive all messages.
	Subscribe(subject string) (BusSubscription, error)

	// Close shuts down the bus connection.
	Close() error
}

// BusSubscription is an active bus subscription.
type BusSubscription interface {
	// Messages returns the channel for incoming messages.
	// Channel is closed when subscription ends.
	Messages() <-chan *BusMessage

	// Unsubscribe cancels the subscription.
	Unsubscribe() error
}

// BusConfig holds common bus configuration.
type BusConfig struct {
	// BufferSize for subscription channels.
	// Default: 256
	BufferSize int
}

// DefaultBusConfig returns configuration with sensible defaults.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		BufferSize: 256,
	}
}

// MemoryBus implements MessageBus using in-memory channels.
type MemoryBus struct {
	config BusConfig

	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed atomic.Bool
}

type memorySub struct {
	subject string
	ch      chan *BusMessage
	closed  atomic.Bool
	bus     *MemoryBus
}

// NewMemoryBus creates a new in-memory message bus.
func NewMemoryBus(cfg BusConfig) *MemoryBus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBusConfig().BufferSize
	}

	return &MemoryBus{
		config: cfg,
		subs:   make(map[string][]*memorySub),
	}
}

// Publish sends a message to all subscribers. Slow subscribers miss the
// message rather than blocking publish.
func (b *MemoryBus) Publish(subject string, data []byte) error {
	if subject == "" {
		return ErrInvalidSubject
	}
	if b.closed.Load() {
		return ErrBusClosed
	}

	msg := &BusMessage{Subject: subject, Data: data}

	b.mu.RLock()
	subs := b.subs[subject]
	b.mu.RUnlock()

	for _, sub := range subs {
		if !sub.closed.Load() {
			select {
			case sub.ch <- msg:
			default:
			}
		}
	}
	return nil
}

// Subscribe creates a subscription to a subject.
func (b *MemoryBus) Subscribe(subject string) (BusSubscription, error) {
	if subject == "" {
		return nil, ErrInvalidSubject
	}
	if b.closed.Load() {
		return nil, ErrBusClosed
	}

	sub := &memorySub{
		subject: subject,
		ch:      make(chan *BusMessage, b.config.BufferSize),
		bus:     b,
	}

	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], sub)
	b.mu.Unlock()

	return sub, nil
}

// Close shuts down the bus and all subscriptions.
func (b *MemoryBus) Close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subs {
		for _, sub := range subs {
			if !sub.closed.Swap(true) {
				close(sub.ch)
			}
		}
	}
	b.subs = nil
	return nil
}

// Messages returns the message channel.
func (s *memorySub) Messages() <-chan *BusMessage {
	return s.ch
}

// Unsubscribe cancels the subscription.
func (s *memorySub) Unsubscribe() error {
	if s.closed.Swap(true) {
		return nil
	}

	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	subs := s.bus.subs[s.subject]
	for i, sub := range subs {
		if sub == s {
			s.bus.subs[s.subject] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	close(s.ch)
	return nil
}
