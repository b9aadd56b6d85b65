// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

// Package coroner implements the health-check and terminate protocol
// of spec.md §4.10 (component C10): every long-lived goroutine answers
// a HealthRequest with its name, pid, and a three-valued HealthState; a
// process-wide Monitor aggregates its registered threads' answers by
// taking the worst, within a bounded response window; a Checker polls
// many processes the same way to build a fleet-wide report, mirroring
// `src/apps/zeromq/coroner/coroner.cpp`. A companion terminate protocol
// lets an external caller ask a process to shut down by name or pid.
package coroner

import "github.com/goby-project/goby-middleware/group"

// Reserved group names the coroner protocol runs on, one layer of
// indirection below user traffic, mirroring the teacher's
// ForwardGroup/ReceiveGroup convention (see the root package).
const (
	HealthRequestGroup     = "__goby_health_request__"
	HealthResponseGroup    = "__goby_health_response__"
	TerminateRequestGroup  = "__goby_terminate_request__"
	TerminateResponseGroup = "__goby_terminate_response__"
)

// Type names the protobuf handlers are registered under.
const (
	HealthRequestType     = "goby.HealthRequest"
	ThreadHealthType      = "goby.ThreadHealth"
	ProcessHealthType     = "goby.ProcessHealth"
	TerminateRequestType  = "goby.TerminateRequest"
	TerminateResponseType = "goby.TerminateResponse"
)

func healthGroup(name string) group.Group { return group.New(name) }
