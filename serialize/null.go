// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package serialize

// NullHandler is the no-op scheme: it never produces or consumes
// bytes. It backs control messages that carry no payload, such as a
// bare Unsubscribe record forwarded across a layer boundary.
type NullHandler struct {
	typeName string
}

// NewNullHandler returns a Handler for typeName under the null scheme.
func NewNullHandler(typeName string) *NullHandler {
	return &NullHandler{typeName: typeName}
}

func (h *NullHandler) Serialize(interface{}) ([]byte, error) { return nil, nil }

func (h *NullHandler) Parse([]byte) (interface{}, error) { return nil, nil }

func (h *NullHandler) TypeName() string { return h.typeName }
