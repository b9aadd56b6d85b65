// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package buffer

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/goby-project/goby-middleware/pkg/errors"
)

// ErrSubBufferExists is returned by Create when the (destination,
// sub-id) pair already has a sub-buffer.
var ErrSubBufferExists = errors.New("sub-buffer already exists")

// ErrSubBufferNotFound is returned when an operation names a sub-buffer
// that was never created.
var ErrSubBufferNotFound = errors.New("sub-buffer does not exist, must call Create first")

// ErrNoData is the DynamicBuffer "no eligible candidate" signal raised
// by Top. It is ordinary control flow (spec.md §7), not a fault:
// callers must check for it with errors.Contains.
var ErrNoData = errors.New("no eligible candidate in dynamic buffer")

// Destination identifies a sub-buffer within a DynamicBuffer: the
// routing destination (0 means broadcast) plus a caller-defined
// sub-buffer id (e.g. a (dccl-id, group-numeric) pair encoded as a
// string by the intervehicle portal).
type Destination struct {
	Dest  uint8
	SubID string
}

func (d Destination) String() string {
	return fmt.Sprintf("%d/%s", d.Dest, d.SubID)
}

// FullEntry names the sub-buffer an Entry came from or is destined for;
// it is the value exchanged with DynamicBuffer.Top/Push/Erase.
type FullEntry struct {
	Destination Destination
	Entry       Entry
}

// DynamicBuffer multiplexes SubBuffers by (destination, sub-id) and
// arbitrates a winner among them on every call to Top.
type DynamicBuffer struct {
	subs map[Destination]*SubBuffer
	// order preserves first-creation order: Expire sweeps in this order,
	// and SortedDestinations sorts a copy of it for the contest instead
	// of following Go's randomized map iteration.
	order []Destination
}

// NewDynamicBuffer returns an empty DynamicBuffer.
func NewDynamicBuffer() *DynamicBuffer {
	return &DynamicBuffer{subs: make(map[Destination]*SubBuffer)}
}

// Create adds a new sub-buffer under (dest, subID). Returns
// ErrSubBufferExists if one is already present.
func (d *DynamicBuffer) Create(dest Destination, cfg Config, now time.Time) error {
	if _, ok := d.subs[dest]; ok {
		return errors.Wrap(ErrSubBufferExists, fmt.Errorf("%s", dest))
	}
	d.subs[dest] = NewSubBuffer(cfg, now)
	d.order = append(d.order, dest)
	return nil
}

// Replace swaps in a new config for an existing sub-buffer, preserving
// queued entries. Returns ErrSubBufferNotFound if it doesn't exist.
func (d *DynamicBuffer) Replace(dest Destination, cfg Config) error {
	sb, ok := d.subs[dest]
	if !ok {
		return errors.Wrap(ErrSubBufferNotFound, fmt.Errorf("%s", dest))
	}
	sb.Replace(cfg)
	return nil
}

// CreateOrMerge creates the sub-buffer if absent, otherwise merges cfg
// into its existing configuration (used by publishers that supply a
// TransporterConfig on demand rather than pre-creating sub-buffers).
func (d *DynamicBuffer) CreateOrMerge(dest Destination, cfg Config, now time.Time) {
	if sb, ok := d.subs[dest]; ok {
		sb.Replace(Merge(sb.Cfg(), cfg))
		return
	}
	d.subs[dest] = NewSubBuffer(cfg, now)
	d.order = append(d.order, dest)
}

// Push inserts value into the named sub-buffer. If the sub-buffer does
// not exist, it is an error unless cfg is non-nil, in which case it is
// auto-created (or merged, if it already existed by the time of the
// call — a race that can't happen under single-threaded access but is
// handled the same way as CreateOrMerge for symmetry).
func (d *DynamicBuffer) Push(dest Destination, value interface{}, now time.Time, cfg *Config) ([]FullEntry, error) {
	sb, ok := d.subs[dest]
	if !ok {
		if cfg == nil {
			return nil, errors.Wrap(ErrSubBufferNotFound, fmt.Errorf("%s", dest))
		}
		d.CreateOrMerge(dest, *cfg, now)
		sb = d.subs[dest]
	}

	overflow := sb.Push(value, now)
	if overflow == nil {
		return nil, nil
	}
	return []FullEntry{{Destination: dest, Entry: *overflow}}, nil
}

// topConfig holds the contest filters assembled from TopOptions.
type topConfig struct {
	anyDest   bool
	dest      uint8
	maxBytes  int
	sizeOf    func(interface{}) int
	ackWaitOf func(Destination, Entry) time.Duration
	ackTO     time.Duration
}

// TopOption narrows the candidate set considered by Top, per spec.md §4.2.
type TopOption func(*topConfig)

// WithDestination restricts the contest to sub-buffers whose
// destination matches dest, or where either side is the broadcast
// destination (0).
func WithDestination(dest uint8) TopOption {
	return func(c *topConfig) { c.anyDest = false; c.dest = dest }
}

// WithMaxBytes excludes candidates whose head entry, measured by
// sizeOf, exceeds maxBytes.
func WithMaxBytes(maxBytes int, sizeOf func(interface{}) int) TopOption {
	return func(c *topConfig) { c.maxBytes = maxBytes; c.sizeOf = sizeOf }
}

// WithAckFilter excludes a candidate whose head entry is still within
// its ack-pending window: ackWaitOf reports how long the entry has
// waited since it was last offered, and a candidate is skipped unless
// that wait is at least ackTimeout.
func WithAckFilter(ackTimeout time.Duration, ackWaitOf func(Destination, Entry) time.Duration) TopOption {
	return func(c *topConfig) { c.ackTO = ackTimeout; c.ackWaitOf = ackWaitOf }
}

// Top runs the priority contest across eligible sub-buffers and returns
// the winning entry. It does not remove the entry; callers erase it
// explicitly once transmitted/acknowledged. Candidates are visited in
// lexicographic (destination, sub-id) order — the map's iteration
// order in the original (spec.md §4.1) — so ties go to the
// lexicographically smallest candidate. Sub-buffers still in blackout
// (TopValue -Inf) are not candidates. The contest only ever replaces
// the running winner on a strictly greater score, starting from a
// winning value of 0, so an all-non-positive field still produces a
// winner: the first candidate in that order (see SPEC_FULL.md §D.1).
func (d *DynamicBuffer) Top(now time.Time, opts ...TopOption) (FullEntry, error) {
	cfg := topConfig{maxBytes: math.MaxInt, anyDest: true}
	for _, o := range opts {
		o(&cfg)
	}

	var (
		winner      Destination
		winnerValue float64
		found       bool
	)

	for _, dest := range d.SortedDestinations() {
		sb, ok := d.subs[dest]
		if !ok || sb.Empty() {
			continue
		}
		if !cfg.anyDest && dest.Dest != cfg.dest && dest.Dest != 0 && cfg.dest != 0 {
			continue
		}
		if cfg.sizeOf != nil && cfg.sizeOf(sb.entries[0].Value) > cfg.maxBytes {
			continue
		}
		if cfg.ackWaitOf != nil && cfg.ackWaitOf(dest, sb.entries[0]) < cfg.ackTO {
			continue
		}

		value := sb.TopValue(now)
		if math.IsInf(value, -1) {
			continue
		}

		if !found {
			winner, found = dest, true
		}

		if value > winnerValue {
			winnerValue, winner = value, dest
		}
	}

	if !found {
		return FullEntry{}, ErrNoData
	}

	sb := d.subs[winner]
	return FullEntry{Destination: winner, Entry: sb.Top(now)}, nil
}

// Erase removes fe.Entry from its named sub-buffer.
func (d *DynamicBuffer) Erase(fe FullEntry) bool {
	sb, ok := d.subs[fe.Destination]
	if !ok {
		return false
	}
	return sb.Erase(fe.Entry)
}

// Expire sweeps every sub-buffer and returns everything that aged out.
func (d *DynamicBuffer) Expire(now time.Time) []FullEntry {
	var expired []FullEntry
	for _, dest := range d.order {
		sb, ok := d.subs[dest]
		if !ok {
			continue
		}
		for _, e := range sb.Expire(now) {
			expired = append(expired, FullEntry{Destination: dest, Entry: e})
		}
	}
	return expired
}

// Size is the sum of every sub-buffer's size.
func (d *DynamicBuffer) Size() int {
	total := 0
	for _, sb := range d.subs {
		total += sb.Size()
	}
	return total
}

// Empty reports whether every sub-buffer is empty.
func (d *DynamicBuffer) Empty() bool {
	for _, sb := range d.subs {
		if !sb.Empty() {
			return false
		}
	}
	return true
}

// Sub returns the sub-buffer for dest, if any, for inspection (e.g. by
// tests or by a caller that wants Cfg()).
func (d *DynamicBuffer) Sub(dest Destination) (*SubBuffer, bool) {
	sb, ok := d.subs[dest]
	return sb, ok
}

// SortedDestinations returns the known destinations sorted by
// (dest, sub-id); exposed for diagnostics (e.g. the intervehicle
// portal's debug trace of the contest, mirroring the original's
// glog.is_debug1() output).
func (d *DynamicBuffer) SortedDestinations() []Destination {
	out := make([]Destination, len(d.order))
	copy(out, d.order)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Dest != out[j].Dest {
			return out[i].Dest < out[j].Dest
		}
		return out[i].SubID < out[j].SubID
	})
	return out
}
