// Package transport defines the interface for message delivery backends and
// the registry they are looked up in by name.
package transport

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shineum/mailkit/internal/email"
)

// Transport is the interface that delivery backends must implement.
// Each transport composes the message in the form its service expects and
// hands it over (e.g., debug output, SMTP relay, AWS SES, Microsoft Graph).
type Transport interface {
	// Send delivers the message. It returns the composed headers and body
	// that were handed to the service, or an error if delivery fails.
	Send(ctx context.Context, msg *email.Message) (*Result, error)

	// Name returns the human-readable name of this transport.
	Name() string
}

// Result is what a transport delivered.
type Result struct {
	Headers string
	Message string
}

// NewResult builds a Result from a composed message.
func NewResult(c *email.Composed) *Result {
	return &Result{
		Headers: c.HeaderString(),
		Message: c.BodyString(),
	}
}

// Registry maps configured names to transports. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[string]Transport)}
}

// Register adds t under name, replacing any transport already registered
// with that name.
func (r *Registry) Register(name string, t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transports[name] = t
}

// Get returns the transport registered under name.
func (r *Registry) Get(name string) (Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.transports[name]
	if !ok {
		return nil, &email.Error{Msg: fmt.Sprintf("transport %q not found", name)}
	}
	return t, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transports))
	for name := range r.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
