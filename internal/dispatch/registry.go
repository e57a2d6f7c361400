package dispatch

import (
	"sync"

	"github.com/pockpet/social/internal/transport"
	"github.com/pockpet/social/pkg/errors"
	"github.com/pockpet/social/pkg/logger"
)

// Handler processes one wire payload type. Handle reports whether the
// payload was acted on.
type Handler interface {
	Type() string
	Handle(payload *transport.Payload, remoteAddr string) bool
}

// Registry routes accepted payloads to the handler registered for
// their type.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. Each payload type has exactly one handler.
func (r *Registry) Register(h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[h.Type()]; exists {
		return errors.New(errors.ErrCodeAlreadyExists, "handler already registered for type "+h.Type())
	}

	r.handlers[h.Type()] = h
	return nil
}

// Dispatch routes a payload to its handler. Unknown types are logged
// and dropped.
func (r *Registry) Dispatch(payload *transport.Payload, remoteAddr string) bool {
	r.mu.RLock()
	handler, ok := r.handlers[payload.Type]
	r.mu.RUnlock()

	if !ok {
		logger.Warn("No handler for payload type", "type", payload.Type, "from", payload.FromDeviceName)
		return false
	}

	return handler.Handle(payload, remoteAddr)
}

// Bind attaches the registry to a transport so every accepted payload
// is dispatched.
func (r *Registry) Bind(t *transport.Transport) {
	t.OnPayload(func(payload *transport.Payload, remoteAddr string) {
		r.Dispatch(payload, remoteAddr)
	})
}

// Types returns the registered payload types, for diagnostics.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	return types
}
