// Package registry maps request message names to handlers. It is read-mostly
// and uses copy-on-write-friendly locking (a single RWMutex guarding a plain
// map) rather than a lock-free structure, since registration is rare and
// lookup contention is the only path that matters under load.
package registry

import (
	"context"
	"sync"

	"github.com/deepaksubu/norbert/errors"
)

// Handler processes a decoded request payload and returns a response payload
// or an error. Handlers run on the request worker pool, never on an I/O
// goroutine, and are expected to be cooperative: they are never forcibly
// interrupted, only raced against a deadline by the caller.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Entry is a registered handler together with the codec descriptors a real
// framework would use to marshal typed request/response payloads. This
// implementation treats both as opaque names, since payload encoding is a
// handler-owned concern (see ChannelPipeline's contract-only payload field).
type Entry struct {
	MessageName    string
	Handler        Handler
	InputCodec     string
	OutputCodec    string
}

// Registry maps message names to their registered Entry.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
	}
}

// Register installs a handler under name. Idempotent: a second call with
// the same name replaces the entry rather than erroring, so a running
// server can hot-swap handler implementations.
func (r *Registry) Register(name string, handler Handler, inputCodec, outputCodec string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = Entry{
		MessageName: name,
		Handler:     handler,
		InputCodec:  inputCodec,
		OutputCodec: outputCodec,
	}
}

// Lookup returns the entry registered for name, if any.
func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Has reports whether name has a registered handler.
func (r *Registry) Has(name string) bool {
	_, ok := r.Lookup(name)
	return ok
}

// Names returns the currently registered message names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	return names
}

// ErrNoHandler is returned by callers that resolve a message name through a
// Registry and find nothing registered.
var ErrNoHandler = errors.New("registry: no handler registered for message")
