package transport

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
)

var (
	// ErrUnknownTransport is returned for a PubSubSystem nothing registered.
	ErrUnknownTransport = errors.New("unknown transport")
	// ErrIncompleteTransport is returned when a builder leaves the publisher
	// or the subscriber nil.
	ErrIncompleteTransport = errors.New("transport builder returned no publisher or subscriber")
)

type entry struct {
	build Builder
	caps  Capabilities
	// described is false for transports registered without capabilities.
	described bool
}

// Registry maps pubsub_system names to transport builders and what each
// transport guarantees. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// DefaultRegistry is filled by the init functions of the transport packages.
var DefaultRegistry = NewRegistry()

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// Register adds or replaces the builder for name without describing it.
// GetCapabilities then reports a zero set, which the Service treats as
// unordered.
func (r *Registry) Register(name string, builder Builder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{build: builder}
}

// RegisterWithCapabilities adds or replaces the builder for name together with
// its capabilities. caps.Name is set to name.
func (r *Registry) RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	caps.Name = name
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = entry{build: builder, caps: caps, described: true}
}

// Lookup returns the capabilities registered for name. ok is false when name
// is unknown or was registered without capabilities.
func (r *Registry) Lookup(name string) (caps Capabilities, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, found := r.entries[name]
	if !found || !e.described {
		return Capabilities{Name: name}, false
	}
	return e.caps, true
}

// GetCapabilities is Lookup without the ok flag.
func (r *Registry) GetCapabilities(name string) Capabilities {
	caps, _ := r.Lookup(name)
	return caps
}

// Build creates the transport named by cfg.GetPubSubSystem().
func (r *Registry) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	t, _, err := r.Open(ctx, cfg, logger)
	return t, err
}

// Open builds the transport named by cfg.GetPubSubSystem() and returns its
// effective capabilities. A publisher that implements CapabilitiesProvider
// overrides the registered set.
func (r *Registry) Open(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, Capabilities, error) {
	if cfg == nil {
		return Transport{}, Capabilities{}, fmt.Errorf("config is required")
	}
	name := cfg.GetPubSubSystem()

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return Transport{}, Capabilities{}, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownTransport, name, r.Names())
	}

	t, err := e.build(ctx, cfg, logger)
	if err != nil {
		return Transport{}, Capabilities{}, err
	}
	if t.Publisher == nil || t.Subscriber == nil {
		if t.Publisher != nil {
			_ = t.Publisher.Close()
		}
		if t.Subscriber != nil {
			_ = t.Subscriber.Close()
		}
		return Transport{}, Capabilities{}, fmt.Errorf("%w: %q", ErrIncompleteTransport, name)
	}

	caps := e.caps
	caps.Name = name
	if p, ok := t.Publisher.(CapabilitiesProvider); ok {
		caps = p.Capabilities()
		caps.Name = name
	}
	return t, caps, nil
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	return r.names(func(entry) bool { return true })
}

// Ordered returns the sorted names of transports that deliver in publish
// order.
func (r *Registry) Ordered() []string {
	return r.names(func(e entry) bool { return e.caps.SupportsOrdering })
}

func (r *Registry) names(keep func(entry) bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name, e := range r.entries {
		if keep(e) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Register adds builder to DefaultRegistry.
func Register(name string, builder Builder) {
	DefaultRegistry.Register(name, builder)
}

// RegisterWithCapabilities adds builder and caps to DefaultRegistry.
func RegisterWithCapabilities(name string, builder Builder, caps Capabilities) {
	DefaultRegistry.RegisterWithCapabilities(name, builder, caps)
}

// Build creates a transport through DefaultRegistry.
func Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Transport, error) {
	return DefaultRegistry.Build(ctx, cfg, logger)
}
