package broadcast

import (
	"context"
	"encoding/json"

	"github.com/codedeck/workbench/logging"
)

// Relay forwards every broadcaster event onto a MessageBus so consumers in
// other processes can follow the live-update stream.
type Relay struct {
	bus    MessageBus
	logger *logging.Logger
}

// NewRelay creates a relay publishing to the given bus.
func NewRelay(bus MessageBus, logger *logging.Logger) *Relay {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Relay{
		bus:    bus,
		logger: logger.WithComponent("relay"),
	}
}

// Run subscribes to the broadcaster and republishes events on the bus under
// Subject until ctx is canceled or the broadcaster shuts down.
func (r *Relay) Run(ctx context.Context, b *Broadcaster) error {
	sub, err := b.Subscribe()
	if err != nil {
		return err
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			r.forward(evt)
		}
	}
}

func (r *Relay) forward(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		r.logger.Error("could not encode event", map[string]interface{}{
			"type":  string(evt.Type),
			"error": err,
		})
		return
	}
	if err := r.bus.Publish(Subject, data); err != nil {
		r.logger.Warn("could not relay event", map[string]interface{}{
			"type":  string(evt.Type),
			"error": err,
		})
	}
}
