// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package buffer implements the time-weighted priority buffer that
// queues messages for a slow link: SubBuffer arbitrates within one
// logical stream, DynamicBuffer arbitrates across many of them keyed by
// (destination, sub-buffer id).
package buffer

import "time"

// Config is the per-sub-buffer configuration. Zero value is invalid:
// Normalize must be applied before use (NewSubBuffer does this).
type Config struct {
	// TTL is the maximum age of an entry before expire() removes it.
	TTL time.Duration
	// ValueBase biases this stream's priority relative to others.
	ValueBase float64
	// MaxQueue caps the number of entries; push() evicts on overflow.
	MaxQueue int
	// BlackoutTime is the minimum idle time between successive top()
	// calls that this sub-buffer is eligible to win.
	BlackoutTime time.Duration
	// NewestFirst selects LIFO (true) or FIFO (false) ordering.
	NewestFirst bool
	// AckRequired marks entries in this sub-buffer as needing
	// acknowledgement before they may be removed by a portal.
	AckRequired bool
}

// Normalize applies construction-time invariants: a zero TTL is
// promoted to one time unit (a nanosecond) to avoid division by zero,
// and MaxQueue is floored at 1.
func (c Config) Normalize() Config {
	if c.TTL <= 0 {
		c.TTL = time.Nanosecond
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 1
	}
	return c
}

// Merge combines cfgs under the rules in spec.md §3: ttl and value_base
// are averaged; ack_required and newest_first are logical OR (true
// dominates); blackout_time takes the minimum; max_queue takes the
// maximum. Merging a single config with itself N times is idempotent.
func Merge(cfgs ...Config) Config {
	if len(cfgs) == 0 {
		return Config{}.Normalize()
	}

	var (
		ttlSum               time.Duration
		valueBaseSum         float64
		ttlCount, valueCount int
		out                  Config
	)
	out.BlackoutTime = cfgs[0].BlackoutTime
	out.MaxQueue = cfgs[0].MaxQueue

	for _, c := range cfgs {
		ttlSum += c.TTL
		ttlCount++
		valueBaseSum += c.ValueBase
		valueCount++

		out.AckRequired = out.AckRequired || c.AckRequired
		out.NewestFirst = out.NewestFirst || c.NewestFirst

		if c.BlackoutTime < out.BlackoutTime {
			out.BlackoutTime = c.BlackoutTime
		}
		if c.MaxQueue > out.MaxQueue {
			out.MaxQueue = c.MaxQueue
		}
	}

	if ttlCount > 0 {
		out.TTL = ttlSum / time.Duration(ttlCount)
	}
	if valueCount > 0 {
		out.ValueBase = valueBaseSum / float64(valueCount)
	}

	return out.Normalize()
}
