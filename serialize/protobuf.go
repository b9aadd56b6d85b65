// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package serialize

import (
	"fmt"

	"github.com/gogo/protobuf/proto"
)

// ProtobufHandler wraps a gogo/protobuf generated message type. New
// must return a fresh zero-value instance for Parse to decode into.
type ProtobufHandler struct {
	typeName string
	New      func() proto.Message
}

// NewProtobufHandler returns a Handler for a protobuf message type
// named typeName. new must allocate a new, empty instance each call.
func NewProtobufHandler(typeName string, new func() proto.Message) *ProtobufHandler {
	return &ProtobufHandler{typeName: typeName, New: new}
}

// Serialize marshals v, which must implement proto.Message.
func (h *ProtobufHandler) Serialize(v interface{}) ([]byte, error) {
	msg, ok := v.(proto.Message)
	if !ok {
		return nil, fmt.Errorf("serialize: %T does not implement proto.Message", v)
	}
	return proto.Marshal(msg)
}

// Parse allocates a fresh instance via New and unmarshals data into it.
func (h *ProtobufHandler) Parse(data []byte) (interface{}, error) {
	msg := h.New()
	if err := proto.Unmarshal(data, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// TypeName returns the protobuf message's type name.
func (h *ProtobufHandler) TypeName() string { return h.typeName }
