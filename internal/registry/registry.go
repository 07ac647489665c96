// Package registry maps capability names to the single handler that serves
// each one. The table is built once at startup and read-only afterwards:
// routing is one direct lookup, with no override or feature-flag layer in
// front of it.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/quantfolio/quantfolio/internal/reqctx"
)

// Handler executes one capability. Handlers validate their own args; a
// missing required argument must fail with an error naming the key.
type Handler func(ctx context.Context, rctx reqctx.Ctx, args map[string]any) (any, error)

// Agent groups one or more capability implementations.
type Agent interface {
	Name() string
	Capabilities() map[string]Handler
}

// DuplicateCapabilityError reports a second registration for a name that is
// already bound. This is a startup configuration error, never a runtime
// fallback choice.
type DuplicateCapabilityError struct {
	Capability string
}

func (e *DuplicateCapabilityError) Error() string {
	return fmt.Sprintf("registry: capability %q already registered", e.Capability)
}

// NotFoundError reports a lookup for a capability nothing registered.
// Callers can distinguish "not implemented" from "returned empty".
type NotFoundError struct {
	Capability string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registry: no handler registered for capability %q", e.Capability)
}

// Registry is the capability routing table. Safe for concurrent reads once
// startup registration is complete; Register must not be called after that.
type Registry struct {
	handlers map[string]Handler
	owners   map[string]string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		owners:   make(map[string]string),
	}
}

// Register binds a capability name to its handler. Rebinding an existing name
// fails with DuplicateCapabilityError regardless of handler identity.
func (r *Registry) Register(capability string, h Handler) error {
	return r.register(capability, "", h)
}

// RegisterAgent registers every capability an agent exposes. Capabilities are
// registered in sorted order so duplicate detection is deterministic.
func (r *Registry) RegisterAgent(a Agent) error {
	caps := a.Capabilities()
	names := make([]string, 0, len(caps))
	for name := range caps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := r.register(name, a.Name(), caps[name]); err != nil {
			return err
		}
	}
	log.Debug().Str("agent", a.Name()).Int("capabilities", len(names)).Msg("agent registered")
	return nil
}

func (r *Registry) register(capability, owner string, h Handler) error {
	if capability == "" {
		return fmt.Errorf("registry: capability name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("registry: handler for %q must not be nil", capability)
	}
	if _, exists := r.handlers[capability]; exists {
		return &DuplicateCapabilityError{Capability: capability}
	}
	r.handlers[capability] = h
	r.owners[capability] = owner
	return nil
}

// Resolve returns the handler for a capability, or NotFoundError.
func (r *Registry) Resolve(capability string) (Handler, error) {
	h, ok := r.handlers[capability]
	if !ok {
		return nil, &NotFoundError{Capability: capability}
	}
	return h, nil
}

// Owner returns the agent name that registered a capability, if any.
func (r *Registry) Owner(capability string) string {
	return r.owners[capability]
}

// Capabilities lists every registered capability name in sorted order.
func (r *Registry) Capabilities() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
