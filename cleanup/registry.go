package cleanup

import (
	"sync"
	"sync/atomic"

	"github.com/codedeck/workbench/logging"
)

// Registry is an ordered collection of named shutdown handlers. Handlers are
// kept in descending priority order with ties resolved by registration order,
// and the order never changes once shutdown begins.
type Registry struct {
	mu           sync.Mutex
	handlers     []Handler
	shuttingDown atomic.Bool
	logger       *logging.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{
		logger: logger.WithComponent("cleanup"),
	}
}

// Register inserts a handler in priority order. A handler with the same name
// replaces the existing one. Registration is rejected once shutdown has begun
// so the handler list is never mutated mid-iteration.
func (r *Registry) Register(h Handler) error {
	if h.Name == "" || h.Run == nil {
		return ErrInvalidHandler
	}
	if r.shuttingDown.Load() {
		r.logger.Warn("handler registration rejected, shutdown in progress", map[string]interface{}{
			"handler": h.Name,
		})
		return ErrShutdownInProgress
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexLocked(h.Name); i >= 0 {
		r.logger.Warn("replacing existing cleanup handler", map[string]interface{}{
			"handler": h.Name,
		})
		r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
	}
	r.insertLocked(h)
	return nil
}

// insertLocked places h before the first handler with a strictly lower
// priority, keeping ties in registration order.
func (r *Registry) insertLocked(h Handler) {
	pos := len(r.handlers)
	for i, existing := range r.handlers {
		if existing.Priority < h.Priority {
			pos = i
			break
		}
	}
	r.handlers = append(r.handlers, Handler{})
	copy(r.handlers[pos+1:], r.handlers[pos:])
	r.handlers[pos] = h
}

// indexLocked returns the index of the handler with the given name, or -1.
func (r *Registry) indexLocked(name string) int {
	for i, h := range r.handlers {
		if h.Name == name {
			return i
		}
	}
	return -1
}

// Unregister removes a handler by name and reports whether it was found.
// Rejected once shutdown has begun.
func (r *Registry) Unregister(name string) bool {
	if r.shuttingDown.Load() {
		r.logger.Warn("handler unregistration rejected, shutdown in progress", map[string]interface{}{
			"handler": name,
		})
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexLocked(name)
	if i < 0 {
		return false
	}
	r.handlers = append(r.handlers[:i], r.handlers[i+1:]...)
	return true
}

// List returns a snapshot of the registered handlers in scheduling order.
func (r *Registry) List() []Handler {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Handler, len(r.handlers))
	copy(out, r.handlers)
	return out
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handlers)
}

// IsShuttingDown reports whether shutdown has begun. The flag flips exactly
// once and never resets within the process lifetime.
func (r *Registry) IsShuttingDown() bool {
	return r.shuttingDown.Load()
}

// beginShutdown freezes the registry. Returns false if already frozen.
func (r *Registry) beginShutdown() bool {
	return !r.shuttingDown.Swap(true)
}
