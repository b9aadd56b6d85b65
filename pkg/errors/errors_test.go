// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package errors_test

import (
	nerrors "errors"
	"testing"

	"github.com/goby-project/goby-middleware/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var (
	err0 = errors.New("0")
	err1 = errors.New("1")
	nat  = nerrors.New("native error")
)

func TestError(t *testing.T) {
	assert.Equal(t, "0", err0.Error())
	wrapped := errors.Wrap(err1, err0)
	assert.Equal(t, "1: 0", wrapped.Error())
	assert.Equal(t, "1", wrapped.Msg())
}

func TestContains(t *testing.T) {
	cases := []struct {
		desc      string
		container errors.Error
		contained error
		contains  bool
	}{
		{desc: "nil contains nil", container: nil, contained: nil, contains: true},
		{desc: "nil contains non-nil", container: nil, contained: err0, contains: false},
		{desc: "err0 contains err0", container: err0, contained: err0, contains: true},
		{desc: "err0 does not contain err1", container: err0, contained: err1, contains: false},
		{
			desc:      "wrap(err1, err0) contains err0",
			container: errors.Wrap(err1, err0),
			contained: err0,
			contains:  true,
		},
		{
			desc:      "wrap(err1, err0) contains err1",
			container: errors.Wrap(err1, err0),
			contained: err1,
			contains:  true,
		},
	}
	for _, c := range cases {
		t.Run(c.desc, func(t *testing.T) {
			assert.Equal(t, c.contains, errors.Contains(c.container, c.contained))
		})
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, errors.Wrap(nil, err0))
	assert.Nil(t, errors.Wrap(err0, nil))
}

func TestWrapNativeError(t *testing.T) {
	wrapped := errors.Wrap(err0, nat)
	assert.Equal(t, "0: native error", wrapped.Error())
	assert.True(t, errors.Contains(wrapped, nat))
}
