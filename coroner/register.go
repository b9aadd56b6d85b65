// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import (
	"github.com/gogo/protobuf/proto"
	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/serialize"
)

// RegisterTypes binds every coroner wire message to registry under
// group.SchemeProtobuf. Call it once per process alongside whatever
// domain types the application itself registers.
func RegisterTypes(registry *serialize.Registry) error {
	handlers := []serialize.Handler{
		serialize.NewProtobufHandler(HealthRequestType, func() proto.Message { return &HealthRequest{} }),
		serialize.NewProtobufHandler(ThreadHealthType, func() proto.Message { return &ThreadHealth{} }),
		serialize.NewProtobufHandler(ProcessHealthType, func() proto.Message { return &ProcessHealth{} }),
		serialize.NewProtobufHandler(TerminateRequestType, func() proto.Message { return &TerminateRequest{} }),
		serialize.NewProtobufHandler(TerminateResponseType, func() proto.Message { return &TerminateResponse{} }),
	}
	for _, h := range handlers {
		if err := registry.Register(group.SchemeProtobuf, h); err != nil {
			return err
		}
	}
	return nil
}
