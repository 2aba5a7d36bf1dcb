// Package provisioning executes confirmed requests against a cloud backend.
//
// Backends speak plain Go errors. Client wraps a backend for the dialogue
// core: it fills defaults, validates, records every request, guards the
// backend with a circuit breaker and converts all failures into a Failed
// response or an empty listing.
package provisioning

import (
	"context"
	"errors"
	"fmt"

	"github.com/bdobrica/Shoukan/internal/shoukan/resource"
)

var (
	// ErrInvalidRequest marks requests the backend refuses as malformed.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrConflict marks requests for a name that is already taken.
	ErrConflict = errors.New("resource already exists")
	// ErrUnsupported marks resource types no backend handles.
	ErrUnsupported = errors.New("resource type not supported")
)

// Backend creates and lists resources.
type Backend interface {
	Provision(ctx context.Context, req *resource.Request) (*resource.Response, error)
	List(ctx context.Context, resourceGroup string) ([]resource.Resource, error)
}

// Mux routes requests to a backend by resource type.
type Mux struct {
	routes   map[resource.Type]Backend
	fallback Backend
}

// NewMux creates a Mux. fallback serves types without a route and may be nil.
func NewMux(fallback Backend) *Mux {
	return &Mux{routes: make(map[resource.Type]Backend), fallback: fallback}
}

// Handle routes requests of type t to b.
func (m *Mux) Handle(t resource.Type, b Backend) {
	m.routes[t] = b
}

func (m *Mux) backendFor(t resource.Type) Backend {
	if b, ok := m.routes[t]; ok {
		return b
	}
	return m.fallback
}

// Provision forwards req to the backend registered for its type.
func (m *Mux) Provision(ctx context.Context, req *resource.Request) (*resource.Response, error) {
	b := m.backendFor(req.Type)
	if b == nil {
		return nil, fmt.Errorf("%w: resource type %s not yet implemented", ErrUnsupported, req.Type)
	}
	return b.Provision(ctx, req)
}

// List merges the listings of every distinct backend. Backends that fail
// are skipped; their errors are joined into the returned error.
func (m *Mux) List(ctx context.Context, resourceGroup string) ([]resource.Resource, error) {
	var (
		out  []resource.Resource
		errs []error
	)
	for _, b := range m.backends() {
		rs, err := b.List(ctx, resourceGroup)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, rs...)
	}
	return out, errors.Join(errs...)
}

// backends returns each registered backend once, fallback first, routes in
// resource.Types order.
func (m *Mux) backends() []Backend {
	var out []Backend
	seen := func(b Backend) bool {
		for _, o := range out {
			if o == b {
				return true
			}
		}
		return false
	}
	if m.fallback != nil {
		out = append(out, m.fallback)
	}
	for _, t := range resource.Types {
		if b, ok := m.routes[t]; ok && !seen(b) {
			out = append(out, b)
		}
	}
	return out
}
