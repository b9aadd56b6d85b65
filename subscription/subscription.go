// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package subscription implements the C5 subscription table: the
// per-layer record of active subscriptions that a transporter layer
// consults on every dispatch.
package subscription

import (
	"regexp"

	"github.com/goby-project/goby-middleware/group"
)

// Kind distinguishes the subscription handler variants of spec.md §4.5.
type Kind int

const (
	// Typed carries a user callback taking the concrete parsed type.
	Typed Kind = iota
	// Regex carries compiled group/type regexes and a raw-bytes callback.
	Regex
)

// TypedCallback receives a value already parsed by the serializer
// registry for the subscription's scheme.
type TypedCallback func(parsed interface{})

// RegexCallback receives the envelope's raw payload bytes together with
// the group and type-name that matched, since a regex subscription may
// match many distinct types.
type RegexCallback func(grp group.Group, scheme group.Scheme, typeName string, payload []byte)

// Handle identifies one registered subscription so it can be removed.
type Handle uint64

// Subscription is one entry in a Table: (group, scheme, type-name,
// optional destination hint, callback, owning thread).
type Subscription struct {
	Kind Kind

	// Group, Scheme and Type select what a Typed subscription matches
	// exactly, or what a Regex subscription's compiled patterns test.
	Group  group.Group
	Scheme group.Scheme
	Type   string

	// DestinationHint records an optional intervehicle destination; zero
	// means "any". No Table lookup filters on it.
	DestinationHint uint8

	// OwnerThread is the goroutine/thread identity that registered this
	// subscription, used by UnsubscribeAll.
	OwnerThread uint64

	Callback      TypedCallback
	RegexCallback RegexCallback

	groupRx *regexp.Regexp
	typeRx  *regexp.Regexp
}

// NewRegex compiles groupPattern/typePattern and returns a Regex
// subscription. Either pattern may be empty, meaning "match anything".
func NewRegex(groupPattern, typePattern string, owner uint64, cb RegexCallback) (Subscription, error) {
	var (
		groupRx, typeRx *regexp.Regexp
		err             error
	)
	if groupPattern != "" {
		if groupRx, err = regexp.Compile(groupPattern); err != nil {
			return Subscription{}, err
		}
	}
	if typePattern != "" {
		if typeRx, err = regexp.Compile(typePattern); err != nil {
			return Subscription{}, err
		}
	}
	return Subscription{
		Kind:          Regex,
		OwnerThread:   owner,
		RegexCallback: cb,
		groupRx:       groupRx,
		typeRx:        typeRx,
	}, nil
}

// Matches reports whether a Regex subscription's patterns accept the
// given group name and type name. An unset pattern matches anything.
func (s Subscription) Matches(groupName, typeName string) bool {
	if s.groupRx != nil && !s.groupRx.MatchString(groupName) {
		return false
	}
	if s.typeRx != nil && !s.typeRx.MatchString(typeName) {
		return false
	}
	return true
}
