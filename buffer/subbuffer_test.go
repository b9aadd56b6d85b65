// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package buffer_test

import (
	"math"
	"testing"
	"time"

	"github.com/goby-project/goby-middleware/buffer"
	"github.com/stretchr/testify/assert"
)

func TestEmptyIffTopValueNegInf(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: 10 * time.Millisecond, ValueBase: 1}, now)

	assert.True(t, sb.Empty())
	assert.True(t, math.IsInf(sb.TopValue(now), -1))

	sb.Push("x", now)
	assert.False(t, sb.Empty())
	assert.False(t, math.IsInf(sb.TopValue(now.Add(time.Millisecond)), -1))
}

func TestNewestFirstOrdering(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10, NewestFirst: true}, now)

	sb.Push("x", now)
	sb.Push("y", now)

	assert.Equal(t, "y", sb.Top(now).Value)
}

func TestOldestFirstOrdering(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10, NewestFirst: false}, now)

	sb.Push("x", now)
	sb.Push("y", now)

	assert.Equal(t, "x", sb.Top(now).Value)
}

func TestMaxQueueOverflowNewestFirst(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 2, NewestFirst: true}, now)

	assert.Nil(t, sb.Push("1", now))
	assert.Nil(t, sb.Push("2", now))
	overflow := sb.Push("3", now)

	if assert.NotNil(t, overflow) {
		assert.Equal(t, "1", overflow.Value)
	}
	assert.LessOrEqual(t, sb.Size(), 2)

	assert.Equal(t, "3", sb.Top(now).Value)
	sb.Pop()
	assert.Equal(t, "2", sb.Top(now).Value)
}

func TestMaxQueueOneOldestFirstEvictsJustInserted(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 1, NewestFirst: false}, now)

	assert.Nil(t, sb.Push("1", now))
	overflow := sb.Push("2", now)

	if assert.NotNil(t, overflow) {
		assert.Equal(t, "2", overflow.Value)
	}
	assert.Equal(t, "1", sb.Top(now).Value)
}

func TestTTLExpirySweep(t *testing.T) {
	start := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: 10 * time.Millisecond, ValueBase: 1, MaxQueue: 10}, start)

	sb.Push("first", start)
	sb.Push("second", start.Add(5*time.Millisecond))

	expired := sb.Expire(start.Add(11 * time.Millisecond))
	if assert.Len(t, expired, 1) {
		assert.Equal(t, "first", expired[0].Value)
	}
	assert.Equal(t, 1, sb.Size())

	expired = sb.Expire(start.Add(17 * time.Millisecond))
	if assert.Len(t, expired, 1) {
		assert.Equal(t, "second", expired[0].Value)
	}
	assert.True(t, sb.Empty())
}

func TestExpireNoopWhenEmpty(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10}, now)
	assert.Empty(t, sb.Expire(now.Add(time.Hour)))
}

func TestStrictMonotonicPriorityGrowth(t *testing.T) {
	start := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10}, start)
	sb.Push("x", start)

	v1 := sb.TopValue(start.Add(time.Millisecond))
	v2 := sb.TopValue(start.Add(2 * time.Millisecond))
	assert.Greater(t, v2, v1)
}

func TestBlackoutSuppression(t *testing.T) {
	start := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 100, MaxQueue: 10, BlackoutTime: 10 * time.Millisecond}, start)
	sb.Push("x", start)

	assert.True(t, math.IsInf(sb.TopValue(start.Add(time.Microsecond)), -1))
	assert.False(t, math.IsInf(sb.TopValue(start.Add(10*time.Millisecond)), -1))
}

func TestEraseOnAbsentEntryReturnsFalse(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10}, now)
	sb.Push("x", now)

	ok := sb.Erase(buffer.Entry{PushTime: now.Add(time.Hour), Value: "nope"})
	assert.False(t, ok)
	assert.Equal(t, 1, sb.Size())
}

func TestEraseRemovesMatchingEntry(t *testing.T) {
	now := time.Now()
	sb := buffer.NewSubBuffer(buffer.Config{TTL: time.Second, ValueBase: 1, MaxQueue: 10}, now)
	sb.Push("x", now)
	top := sb.Top(now)

	assert.True(t, sb.Erase(top))
	assert.True(t, sb.Empty())
}
