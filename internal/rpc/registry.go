package rpc

import (
	"context"
	"fmt"
	"net/http"
)

// Call is what a handler receives besides its context.
type Call struct {
	Params Params

	// Request and Response are passed through untouched. Handlers that
	// need cookies or headers use them; most ignore them.
	Request  *http.Request
	Response http.ResponseWriter
}

// Handler runs one method. A returned error, or a panic, is a failure.
type Handler func(ctx context.Context, call *Call) (any, error)

// Definition binds methods to handlers.
type Definition map[Method]Handler

// Registry is an immutable method table. It is safe for concurrent use.
type Registry struct {
	handlers [methodCount]Handler
}

// NewRegistry copies def into a fixed table.
func NewRegistry(def Definition) (*Registry, error) {
	r := &Registry{}
	for m, h := range def {
		if !m.Valid() {
			return nil, fmt.Errorf("rpc: unknown method %d", m)
		}
		if h == nil {
			return nil, fmt.Errorf("rpc: nil handler for %s %s", m.Kind(), m)
		}
		r.handlers[m] = h
	}
	return r, nil
}

// Resolve finds the handler for kind and name. The name must match a
// method exactly and the method must be declared under kind.
func (r *Registry) Resolve(kind Kind, name string) (Handler, Method, bool) {
	m, ok := ParseMethod(name)
	if !ok || m.Kind() != kind {
		return nil, methodInvalid, false
	}
	h := r.handlers[m]
	if h == nil {
		return nil, methodInvalid, false
	}
	return h, m, true
}

// Methods lists the registered methods.
func (r *Registry) Methods() []Method {
	var out []Method
	for _, m := range AllMethods() {
		if r.handlers[m] != nil {
			out = append(out, m)
		}
	}
	return out
}
