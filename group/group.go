// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package group implements the addressing primitives shared by every
// transporter layer: Group and Identifier.
package group

import "fmt"

const (
	// Broadcast is the numeric tag reserved for broadcast groups.
	Broadcast uint8 = 0
	// NoNumeric marks a Group as carrying no numeric tag.
	NoNumeric uint8 = 255
)

// Group is the addressing label publishers and subscribers use to route
// a publication. The string component is mandatory on interprocess and
// inner layers; the numeric component is mandatory on intervehicle.
type Group struct {
	name    string
	numeric uint8
}

// New returns a Group with only a string component.
func New(name string) Group {
	return Group{name: name, numeric: NoNumeric}
}

// NewNumeric returns a Group with only a numeric component.
func NewNumeric(numeric uint8) Group {
	return Group{numeric: numeric}
}

// NewBoth returns a Group carrying both a string and a numeric component.
func NewBoth(name string, numeric uint8) Group {
	return Group{name: name, numeric: numeric}
}

// Name returns the string component, which may be empty.
func (g Group) Name() string { return g.name }

// Numeric returns the numeric component. NoNumeric means "not set".
func (g Group) Numeric() uint8 { return g.numeric }

// HasNumeric reports whether a numeric tag was set.
func (g Group) HasNumeric() bool { return g.numeric != NoNumeric }

// IsBroadcast reports whether this group's numeric tag is the broadcast tag.
func (g Group) IsBroadcast() bool { return g.numeric == Broadcast }

// Valid reports whether g carries a string component, a numeric
// component, or both — a Group with no name and NoNumeric (e.g.
// New("")) is invalid. The zero Group{} has numeric 0, the Broadcast
// tag, and so is valid.
func (g Group) Valid() bool { return g.name != "" || g.numeric != NoNumeric }

// Equal reports whether two groups address the same channel: both the
// string and numeric components must match.
func (g Group) Equal(o Group) bool {
	return g.name == o.name && g.numeric == o.numeric
}

// String renders the group for logging and as a wire component.
func (g Group) String() string {
	switch {
	case g.name != "" && g.numeric != NoNumeric:
		return fmt.Sprintf("%s::%d", g.name, g.numeric)
	case g.name != "":
		return g.name
	default:
		return fmt.Sprintf("%d", g.numeric)
	}
}
