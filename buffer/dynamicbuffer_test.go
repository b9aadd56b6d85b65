// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package buffer_test

import (
	"testing"
	"time"

	"github.com/goby-project/goby-middleware/buffer"
	"github.com/goby-project/goby-middleware/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestCreateDuplicateErrors(t *testing.T) {
	now := time.Now()
	db := buffer.NewDynamicBuffer()
	dest := buffer.Destination{Dest: 1, SubID: "a"}

	assert.Nil(t, db.Create(dest, buffer.Config{TTL: time.Second, MaxQueue: 1}, now))

	err := db.Create(dest, buffer.Config{TTL: time.Second, MaxQueue: 1}, now)
	assert.NotNil(t, err)
	errVal, ok := err.(errors.Error)
	assert.True(t, ok)
	assert.True(t, errors.Contains(errVal, buffer.ErrSubBufferExists))
}

func TestPushWithoutCreateOrConfigErrors(t *testing.T) {
	now := time.Now()
	db := buffer.NewDynamicBuffer()
	dest := buffer.Destination{Dest: 1, SubID: "a"}

	_, err := db.Push(dest, "x", now, nil)
	assert.NotNil(t, err)
	errVal, ok := err.(errors.Error)
	assert.True(t, ok)
	assert.True(t, errors.Contains(errVal, buffer.ErrSubBufferNotFound))
}

func TestPushAutoCreatesWithConfig(t *testing.T) {
	now := time.Now()
	db := buffer.NewDynamicBuffer()
	dest := buffer.Destination{Dest: 1, SubID: "a"}
	cfg := buffer.Config{TTL: time.Second, MaxQueue: 10}

	overflow, err := db.Push(dest, "x", now, &cfg)
	assert.Nil(t, err)
	assert.Empty(t, overflow)

	sb, ok := db.Sub(dest)
	assert.True(t, ok)
	assert.Equal(t, 1, sb.Size())
}

func TestTopOnEmptyReturnsErrNoData(t *testing.T) {
	now := time.Now()
	db := buffer.NewDynamicBuffer()

	_, err := db.Top(now)
	errVal, ok := err.(errors.Error)
	assert.True(t, ok)
	assert.True(t, errors.Contains(errVal, buffer.ErrNoData))
}

// TestTwoSubBufferContest exercises spec.md §8 scenario 1: sub-buffer A
// created first (newest_first=true, ttl 10ms, value 10), B created 1ms
// later (newest_first=false, same ttl/value). Pushing A:1, B:1, A:2, B:2
// at B's creation instant and then calling Top once per millisecond
// (erasing the winner each time) must yield A:2, B:1, A:1, B:2 in that
// order.
func TestTwoSubBufferContest(t *testing.T) {
	start := time.Now()
	db := buffer.NewDynamicBuffer()

	destA := buffer.Destination{Dest: 1, SubID: "A"}
	destB := buffer.Destination{Dest: 1, SubID: "B"}

	cfg := buffer.Config{TTL: 10 * time.Millisecond, ValueBase: 10, MaxQueue: 10}

	// A is created first; B one millisecond later, matching spec.md §8
	// scenario 1. All four pushes land at B's creation instant.
	tBCreate := start.Add(time.Millisecond)
	assert.Nil(t, db.Create(destA, buffer.Config{TTL: cfg.TTL, ValueBase: cfg.ValueBase, MaxQueue: cfg.MaxQueue, NewestFirst: true}, start))
	assert.Nil(t, db.Create(destB, buffer.Config{TTL: cfg.TTL, ValueBase: cfg.ValueBase, MaxQueue: cfg.MaxQueue, NewestFirst: false}, tBCreate))

	must := func(err error) {
		t.Helper()
		assert.Nil(t, err)
	}

	_, err := db.Push(destA, "A:1", tBCreate, nil)
	must(err)
	_, err = db.Push(destB, "B:1", tBCreate, nil)
	must(err)
	_, err = db.Push(destA, "A:2", tBCreate, nil)
	must(err)
	_, err = db.Push(destB, "B:2", tBCreate, nil)
	must(err)

	want := []string{"A:2", "B:1", "A:1", "B:2"}
	now := tBCreate
	for _, w := range want {
		now = now.Add(time.Millisecond)
		top, err := db.Top(now)
		assert.Nil(t, err)
		assert.Equal(t, w, top.Entry.Value)
		assert.True(t, db.Erase(top))
	}
}

// TestBlackoutSuppressesHigherPriority exercises spec.md §8 scenario 4.
func TestBlackoutSuppressesHigherPriority(t *testing.T) {
	start := time.Now()
	db := buffer.NewDynamicBuffer()

	destA := buffer.Destination{Dest: 1, SubID: "A"}
	destB := buffer.Destination{Dest: 1, SubID: "B"}

	assert.Nil(t, db.Create(destA, buffer.Config{TTL: time.Second, ValueBase: 100, MaxQueue: 10, BlackoutTime: 10 * time.Millisecond}, start))
	assert.Nil(t, db.Create(destB, buffer.Config{TTL: time.Second, ValueBase: 10, MaxQueue: 10}, start))

	_, err := db.Push(destA, "A", start, nil)
	assert.Nil(t, err)
	_, err = db.Push(destB, "B", start, nil)
	assert.Nil(t, err)

	top, err := db.Top(start.Add(time.Microsecond))
	assert.Nil(t, err)
	assert.Equal(t, destB, top.Destination)

	top, err = db.Top(start.Add(10 * time.Millisecond))
	assert.Nil(t, err)
	assert.Equal(t, destA, top.Destination)
}

func TestExpireDrainsAllSubBuffers(t *testing.T) {
	start := time.Now()
	db := buffer.NewDynamicBuffer()

	destA := buffer.Destination{Dest: 1, SubID: "A"}
	destB := buffer.Destination{Dest: 2, SubID: "B"}

	cfg := buffer.Config{TTL: 10 * time.Millisecond, MaxQueue: 10}
	assert.Nil(t, db.Create(destA, cfg, start))
	assert.Nil(t, db.Create(destB, cfg, start))

	_, err := db.Push(destA, "a", start, nil)
	assert.Nil(t, err)
	_, err = db.Push(destB, "b", start, nil)
	assert.Nil(t, err)

	expired := db.Expire(start.Add(11 * time.Millisecond))
	assert.Len(t, expired, 2)
	assert.True(t, db.Empty())
}

func TestWithDestinationFiltersCandidates(t *testing.T) {
	now := time.Now()
	db := buffer.NewDynamicBuffer()

	destA := buffer.Destination{Dest: 1, SubID: "A"}
	destB := buffer.Destination{Dest: 2, SubID: "B"}

	cfg := buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10}
	assert.Nil(t, db.Create(destA, cfg, now))
	assert.Nil(t, db.Create(destB, cfg, now))

	_, err := db.Push(destA, "a", now, nil)
	assert.Nil(t, err)
	_, err = db.Push(destB, "b", now, nil)
	assert.Nil(t, err)

	top, err := db.Top(now.Add(time.Millisecond), buffer.WithDestination(2))
	assert.Nil(t, err)
	assert.Equal(t, destB, top.Destination)
}

func TestWithMaxBytesExcludesOversizedHead(t *testing.T) {
	now := time.Now()
	db := buffer.NewDynamicBuffer()
	dest := buffer.Destination{Dest: 1, SubID: "A"}

	cfg := buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10}
	assert.Nil(t, db.Create(dest, cfg, now))

	_, err := db.Push(dest, "too-big", now, nil)
	assert.Nil(t, err)

	sizeOf := func(v interface{}) int { return len(v.(string)) }

	_, err = db.Top(now.Add(time.Millisecond), buffer.WithMaxBytes(3, sizeOf))
	errVal, ok := err.(errors.Error)
	assert.True(t, ok)
	assert.True(t, errors.Contains(errVal, buffer.ErrNoData))

	top, err := db.Top(now.Add(time.Millisecond), buffer.WithMaxBytes(100, sizeOf))
	assert.Nil(t, err)
	assert.Equal(t, "too-big", top.Entry.Value)
}

func TestEraseOnAbsentDestinationReturnsFalse(t *testing.T) {
	db := buffer.NewDynamicBuffer()
	ok := db.Erase(buffer.FullEntry{Destination: buffer.Destination{Dest: 9, SubID: "none"}})
	assert.False(t, ok)
}

func TestSizeSumsSubBuffers(t *testing.T) {
	now := time.Now()
	db := buffer.NewDynamicBuffer()
	destA := buffer.Destination{Dest: 1, SubID: "A"}
	destB := buffer.Destination{Dest: 2, SubID: "B"}

	cfg := buffer.Config{TTL: time.Second, MaxQueue: 10}
	assert.Nil(t, db.Create(destA, cfg, now))
	assert.Nil(t, db.Create(destB, cfg, now))

	_, err := db.Push(destA, "a1", now, nil)
	assert.Nil(t, err)
	_, err = db.Push(destA, "a2", now, nil)
	assert.Nil(t, err)
	_, err = db.Push(destB, "b1", now, nil)
	assert.Nil(t, err)

	assert.Equal(t, 3, db.Size())
}
