// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner

import "sync/atomic"

var nextThreadID uint64

// ThreadID mints a fresh, process-unique, non-zero owner identity for
// a goroutine that participates in pub/sub and the coroner protocol,
// standing in for the original's compile-time thread identification
// (each C++ Thread subclass names itself in thread_health()).
func ThreadID() uint64 {
	return atomic.AddUint64(&nextThreadID, 1)
}
