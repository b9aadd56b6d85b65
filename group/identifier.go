// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package group

import (
	"fmt"
	"strconv"
	"strings"
)

// Scheme names a marshalling family understood by the serializer
// registry. It is carried in every Identifier and every
// SerializerTransporterMessage envelope.
type Scheme uint8

const (
	// SchemeUnspecified is the zero value and is never valid on the wire.
	SchemeUnspecified Scheme = iota
	// SchemeCXXObject is the interthread identity scheme: no copy, no
	// serialization, values move by shared ownership.
	SchemeCXXObject
	// SchemeProtobuf marshals via gogo/protobuf.
	SchemeProtobuf
	// SchemeDCCL marshals via the (simplified) DCCL framing used on
	// intervehicle links.
	SchemeDCCL
	// SchemeNull never produces or consumes bytes; used for control
	// messages that carry no payload.
	SchemeNull
)

var schemeNames = map[Scheme]string{
	SchemeUnspecified: "unspecified",
	SchemeCXXObject:   "cxx_object",
	SchemeProtobuf:    "protobuf",
	SchemeDCCL:        "dccl",
	SchemeNull:        "null",
}

func (s Scheme) String() string {
	if name, ok := schemeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scheme(%d)", s)
}

// Identifier is the wire-level routing key:
// "/<group>/<scheme-name>/<type-name>/<pid>/<thread-id>/"
// It doubles as the ZeroMQ-style subscription prefix: a receiver that
// wants messages from any process/thread subscribes with the prefix
// ending at "/<type-name>/".
type Identifier struct {
	Group    string
	Scheme   Scheme
	Type     string
	PID      int
	ThreadID uint64
}

// String renders the full identifier, including process and thread.
func (id Identifier) String() string {
	return fmt.Sprintf("/%s/%s/%s/%d/%x/", id.Group, id.Scheme, id.Type, id.PID, id.ThreadID)
}

// TypePrefix renders the wildcard prefix that matches this identifier's
// group/scheme/type regardless of publishing process or thread.
func (id Identifier) TypePrefix() string {
	return fmt.Sprintf("/%s/%s/%s/", id.Group, id.Scheme, id.Type)
}

// ParseIdentifier splits a wire identifier into its five fields.
func ParseIdentifier(s string) (Identifier, error) {
	trimmed := strings.Trim(s, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) != 5 {
		return Identifier{}, fmt.Errorf("identifier %q: expected 5 fields, got %d", s, len(parts))
	}

	pid, err := strconv.Atoi(parts[3])
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier %q: invalid pid: %w", s, err)
	}
	threadID, err := strconv.ParseUint(parts[4], 16, 64)
	if err != nil {
		return Identifier{}, fmt.Errorf("identifier %q: invalid thread id: %w", s, err)
	}

	var scheme Scheme
	for sc, name := range schemeNames {
		if name == parts[1] {
			scheme = sc
			break
		}
	}

	return Identifier{
		Group:    parts[0],
		Scheme:   scheme,
		Type:     parts[2],
		PID:      pid,
		ThreadID: threadID,
	}, nil
}
