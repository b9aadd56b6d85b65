// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package transport_test

import (
	"testing"
	"time"

	"github.com/goby-project/goby-middleware/group"
	"github.com/goby-project/goby-middleware/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterthreadPublishSubscribe(t *testing.T) {
	it := transport.NewInterthread(transport.NewPoller())

	const subscriber uint64 = 1
	var got interface{}
	_, err := it.Subscribe(subscriber, group.New("nav"), group.SchemeCXXObject, "Position", func(v interface{}) {
		got = v
	})
	require.NoError(t, err)

	err = it.Publish(2, group.New("nav"), group.SchemeCXXObject, "Position", "fix-1", transport.Config{})
	require.NoError(t, err)

	n, err := it.Poll(subscriber, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "fix-1", got)
}

func TestInterthreadPollTimesOutWhenEmpty(t *testing.T) {
	it := transport.NewInterthread(transport.NewPoller())

	start := time.Now()
	n, err := it.Poll(1, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestInterthreadRequiresStringGroup(t *testing.T) {
	it := transport.NewInterthread(transport.NewPoller())
	err := it.Publish(1, group.NewNumeric(3), group.SchemeCXXObject, "T", nil, transport.Config{})
	assert.ErrorIs(t, err, transport.ErrGroupValidation)
}

func TestInterthreadUnsubscribeAllIsIdempotent(t *testing.T) {
	it := transport.NewInterthread(transport.NewPoller())
	const owner uint64 = 9
	_, err := it.Subscribe(owner, group.New("g"), group.SchemeCXXObject, "T", func(interface{}) {})
	require.NoError(t, err)

	it.UnsubscribeAll(owner)
	it.UnsubscribeAll(owner)

	require.NoError(t, it.Publish(1, group.New("g"), group.SchemeCXXObject, "T", 1, transport.Config{}))
	n, err := it.Poll(owner, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestInterthreadPublishWakesBlockedPoller(t *testing.T) {
	it := transport.NewInterthread(transport.NewPoller())
	const owner uint64 = 5

	_, err := it.Subscribe(owner, group.New("g"), group.SchemeCXXObject, "T", func(interface{}) {})
	require.NoError(t, err)

	done := make(chan int, 1)
	go func() {
		n, _ := it.Poll(owner, 2*time.Second)
		done <- n
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, it.Publish(1, group.New("g"), group.SchemeCXXObject, "T", 1, transport.Config{}))

	select {
	case n := <-done:
		assert.Equal(t, 1, n)
	case <-time.After(time.Second):
		t.Fatal("poll did not wake on publish")
	}
}
