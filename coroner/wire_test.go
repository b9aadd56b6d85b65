// Copyright (c) Mainflux
// SPDX-License-Identifier: Apache-2.0

package coroner_test

import (
	"testing"

	"github.com/goby-project/goby-middleware/coroner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThreadHealthMarshalRoundTrip(t *testing.T) {
	in := coroner.ThreadHealth{Name: "nav-thread", UID: 42, State: coroner.HealthDegraded}

	data, err := in.Marshal()
	require.NoError(t, err)

	var out coroner.ThreadHealth
	require.NoError(t, out.Unmarshal(data))
	assert.Equal(t, in, out)
}

func TestProcessHealthMarshalRoundTrip(t *testing.T) {
	in := coroner.ProcessHealth{
		Name: "gobyd",
		PID:  4242,
		Main: coroner.ThreadHealth{Name: "gobyd", UID: 1, State: coroner.HealthOK},
		Children: []coroner.ThreadHealth{
			{Name: "acomms", UID: 2, State: coroner.HealthOK},
			{Name: "modem", UID: 3, State: coroner.HealthFailed},
		},
	}
	in.Aggregate()
	require.Equal(t, coroner.HealthFailed, in.State)

	data, err := in.Marshal()
	require.NoError(t, err)

	var out coroner.ProcessHealth
	require.NoError(t, out.Unmarshal(data))
	assert.Equal(t, in, out)
}

func TestProcessHealthMarshalRoundTripNoChildren(t *testing.T) {
	in := coroner.ProcessHealth{
		Name:     "modemsim",
		PID:      7,
		Main:     coroner.ThreadHealth{Name: "modemsim", UID: 1, State: coroner.HealthOK},
		Children: []coroner.ThreadHealth{},
	}
	in.Aggregate()

	data, err := in.Marshal()
	require.NoError(t, err)

	var out coroner.ProcessHealth
	require.NoError(t, out.Unmarshal(data))
	assert.Equal(t, in, out)
	assert.Empty(t, out.Children)
}

func TestWorstOfPicksMoreSevere(t *testing.T) {
	assert.Equal(t, coroner.HealthOK, coroner.WorstOf(coroner.HealthOK, coroner.HealthOK))
	assert.Equal(t, coroner.HealthDegraded, coroner.WorstOf(coroner.HealthOK, coroner.HealthDegraded))
	assert.Equal(t, coroner.HealthFailed, coroner.WorstOf(coroner.HealthFailed, coroner.HealthDegraded))
	assert.Equal(t, coroner.HealthFailed, coroner.WorstOf(coroner.HealthDegraded, coroner.HealthFailed))
}

func TestTerminateRequestResponseMarshalRoundTrip(t *testing.T) {
	req := coroner.TerminateRequest{TargetName: "acomms", HasTargetPID: true, TargetPID: 99}
	data, err := req.Marshal()
	require.NoError(t, err)

	var gotReq coroner.TerminateRequest
	require.NoError(t, gotReq.Unmarshal(data))
	assert.Equal(t, req, gotReq)

	resp := coroner.TerminateResponse{TargetName: "acomms", TargetPID: 99}
	data, err = resp.Marshal()
	require.NoError(t, err)

	var gotResp coroner.TerminateResponse
	require.NoError(t, gotResp.Unmarshal(data))
	assert.Equal(t, resp, gotResp)
}

func TestCheckTerminateMatchesByNameFirst(t *testing.T) {
	match, resp := coroner.CheckTerminate(coroner.TerminateRequest{TargetName: "acomms"}, "acomms", 123)
	assert.True(t, match)
	assert.Equal(t, "acomms", resp.TargetName)
	assert.Equal(t, int32(123), resp.TargetPID)
}

func TestCheckTerminateMatchesByPID(t *testing.T) {
	match, _ := coroner.CheckTerminate(coroner.TerminateRequest{HasTargetPID: true, TargetPID: 123}, "acomms", 123)
	assert.True(t, match)
}

func TestCheckTerminateNoMatch(t *testing.T) {
	match, _ := coroner.CheckTerminate(coroner.TerminateRequest{TargetName: "other"}, "acomms", 123)
	assert.False(t, match)

	match, _ = coroner.CheckTerminate(coroner.TerminateRequest{}, "acomms", 123)
	assert.False(t, match)
}
