// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package group_test

import (
	"testing"

	"github.com/goby-project/goby-middleware/group"
	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	cases := []struct {
		desc  string
		a, b  group.Group
		equal bool
	}{
		{"same string only", group.New("nav"), group.New("nav"), true},
		{"different string", group.New("nav"), group.New("status"), false},
		{"same string and numeric", group.NewBoth("nav", 3), group.NewBoth("nav", 3), true},
		{"same string, different numeric", group.NewBoth("nav", 3), group.NewBoth("nav", 4), false},
		{"numeric only, same", group.NewNumeric(7), group.NewNumeric(7), true},
	}

	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			assert.Equal(t, c.equal, c.a.Equal(c.b))
		})
	}
}

func TestNumericTagSemantics(t *testing.T) {
	broadcast := group.NewNumeric(group.Broadcast)
	assert.True(t, broadcast.IsBroadcast())

	noNumeric := group.New("nav")
	assert.False(t, noNumeric.HasNumeric())
	assert.Equal(t, group.NoNumeric, noNumeric.Numeric())
}

func TestValid(t *testing.T) {
	assert.False(t, group.New("").Valid())
	assert.True(t, group.New("nav").Valid())
	assert.True(t, group.NewNumeric(1).Valid())
}

func TestIdentifierRoundTrip(t *testing.T) {
	id := group.Identifier{
		Group:    "nav",
		Scheme:   group.SchemeProtobuf,
		Type:     "Position",
		PID:      1234,
		ThreadID: 0xabcd,
	}

	parsed, err := group.ParseIdentifier(id.String())
	assert.Nil(t, err)
	assert.Equal(t, id, parsed)
}

func TestIdentifierTypePrefix(t *testing.T) {
	id := group.Identifier{Group: "nav", Scheme: group.SchemeProtobuf, Type: "Position", PID: 1, ThreadID: 1}
	assert.Equal(t, "/nav/protobuf/Position/", id.TypePrefix())
}

func TestParseIdentifierRejectsMalformed(t *testing.T) {
	_, err := group.ParseIdentifier("/too/few/fields/")
	assert.NotNil(t, err)
}
