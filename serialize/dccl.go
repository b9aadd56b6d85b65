// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package serialize

import "fmt"

// DCCLCodec is implemented by types that know how to pack themselves
// into the compact, length-prefixed framing this module uses in place
// of the real DCCL bit-level codec (out of scope per spec.md §1:
// "marshalling codec implementations ... beyond the abstract
// serialize/parse contract").
type DCCLCodec interface {
	Pack() ([]byte, error)
	Unpack([]byte) error
}

// DCCLHandler adapts a DCCLCodec-implementing type to the Handler
// contract. New must return a fresh zero-value instance for Parse to
// decode into.
type DCCLHandler struct {
	typeName string
	New      func() DCCLCodec
}

// NewDCCLHandler returns a Handler for a DCCL-framed type named
// typeName.
func NewDCCLHandler(typeName string, new func() DCCLCodec) *DCCLHandler {
	return &DCCLHandler{typeName: typeName, New: new}
}

func (h *DCCLHandler) Serialize(v interface{}) ([]byte, error) {
	codec, ok := v.(DCCLCodec)
	if !ok {
		return nil, fmt.Errorf("serialize: %T does not implement DCCLCodec", v)
	}
	return codec.Pack()
}

func (h *DCCLHandler) Parse(data []byte) (interface{}, error) {
	codec := h.New()
	if err := codec.Unpack(data); err != nil {
		return nil, err
	}
	return codec, nil
}

func (h *DCCLHandler) TypeName() string { return h.typeName }
