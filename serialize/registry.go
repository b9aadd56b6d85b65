// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package serialize implements the C4 serializer registry: a
// (scheme, type-name) keyed table of handlers mapping a typed value
// to bytes and back.
package serialize

import (
	"fmt"
	"sync"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/pkg/errors"
)

// ErrHandlerNotFound is returned when no handler is registered for a
// (scheme, type-name) pair.
var ErrHandlerNotFound = errors.New("no serializer registered for scheme/type")

// ErrHandlerExists is returned by Register when a (scheme, type-name)
// pair is already bound.
var ErrHandlerExists = errors.New("serializer already registered for scheme/type")

// Handler maps one Go type to and from bytes under one scheme.
// Serialize and Parse must be deterministic: the same value always
// serializes to the same bytes, so a receiver parsing those bytes
// reconstructs an equal value.
type Handler interface {
	// Serialize encodes v to bytes.
	Serialize(v interface{}) ([]byte, error)
	// Parse decodes bytes produced by Serialize back into a value.
	Parse(data []byte) (interface{}, error)
	// TypeName names the Go type this handler marshals, used as the
	// type-name component of a wire Identifier.
	TypeName() string
}

type key struct {
	scheme   group.Scheme
	typeName string
}

// Registry is a (scheme, type-name) keyed table of Handlers. The zero
// value is not usable; call NewRegistry. A Registry is safe for
// concurrent use: handlers are registered once at startup and read
// concurrently by every publish/subscribe call thereafter.
type Registry struct {
	mu       sync.RWMutex
	handlers map[key]Handler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[key]Handler)}
}

// Register binds h under (scheme, h.TypeName()). Returns
// ErrHandlerExists if that pair is already bound.
func (r *Registry) Register(scheme group.Scheme, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{scheme, h.TypeName()}
	if _, ok := r.handlers[k]; ok {
		return errors.Wrap(ErrHandlerExists, fmt.Errorf("%s/%s", scheme, h.TypeName()))
	}
	r.handlers[k] = h
	return nil
}

// Lookup returns the handler bound to (scheme, typeName).
func (r *Registry) Lookup(scheme group.Scheme, typeName string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[key{scheme, typeName}]
	if !ok {
		return nil, errors.Wrap(ErrHandlerNotFound, fmt.Errorf("%s/%s", scheme, typeName))
	}
	return h, nil
}

// Serialize looks up the handler for (scheme, typeName) and encodes v.
func (r *Registry) Serialize(scheme group.Scheme, typeName string, v interface{}) ([]byte, error) {
	h, err := r.Lookup(scheme, typeName)
	if err != nil {
		return nil, err
	}
	return h.Serialize(v)
}

// Parse looks up the handler for (scheme, typeName) and decodes data.
func (r *Registry) Parse(scheme group.Scheme, typeName string, data []byte) (interface{}, error) {
	h, err := r.Lookup(scheme, typeName)
	if err != nil {
		return nil, err
	}
	return h.Parse(data)
}
