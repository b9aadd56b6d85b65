// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package serialize

import "fmt"

// CXXObjectHandler is the identity scheme: interthread delivery never
// copies or serializes, the value moves by shared ownership. It exists
// only so the registry has something to return for SchemeCXXObject
// lookups; Serialize/Parse are never called on the interthread hot
// path and report an error if misused across a layer boundary.
type CXXObjectHandler struct {
	typeName string
}

// NewCXXObjectHandler returns a handler recording typeName for
// registry bookkeeping; it performs no marshalling.
func NewCXXObjectHandler(typeName string) *CXXObjectHandler {
	return &CXXObjectHandler{typeName: typeName}
}

func (h *CXXObjectHandler) Serialize(v interface{}) ([]byte, error) {
	return nil, fmt.Errorf("cxx_object scheme %q is interthread-only and cannot be serialized", h.typeName)
}

func (h *CXXObjectHandler) Parse(data []byte) (interface{}, error) {
	return nil, fmt.Errorf("cxx_object scheme %q is interthread-only and cannot be parsed", h.typeName)
}

func (h *CXXObjectHandler) TypeName() string { return h.typeName }
