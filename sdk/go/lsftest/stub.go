// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package lsftest

import (
	"context"
	"fmt"
	"sync"
)

// StubResponse is the canned result of one command line.
type StubResponse struct {
	Output string
	Err    error
}

// StubExecutor is an lsf.Executor that returns canned responses and
// records the command lines it was asked to run.
type StubExecutor struct {
	// Responses, keyed by exact command line. A command line
	// with no entry fails with an "unexpected command" error.
	Responses map[string]StubResponse

	mtx   sync.Mutex
	calls []string
}

func (stub *StubExecutor) Execute(ctx context.Context, command string) ([]byte, error) {
	stub.mtx.Lock()
	stub.calls = append(stub.calls, command)
	resp, ok := stub.Responses[command]
	stub.mtx.Unlock()
	if !ok {
		return nil, fmt.Errorf("stub: unexpected command %q", command)
	}
	if resp.Err != nil {
		return nil, resp.Err
	}
	return []byte(resp.Output), nil
}

// Calls returns the command lines run so far, oldest first.
func (stub *StubExecutor) Calls() []string {
	stub.mtx.Lock()
	defer stub.mtx.Unlock()
	return append([]string(nil), stub.calls...)
}

// LastCall returns the most recent command line, or "" if none.
func (stub *StubExecutor) LastCall() string {
	stub.mtx.Lock()
	defer stub.mtx.Unlock()
	if len(stub.calls) == 0 {
		return ""
	}
	return stub.calls[len(stub.calls)-1]
}

// Set replaces the canned response for a command line.
func (stub *StubExecutor) Set(command string, resp StubResponse) {
	stub.mtx.Lock()
	defer stub.mtx.Unlock()
	if stub.Responses == nil {
		stub.Responses = map[string]StubResponse{}
	}
	stub.Responses[command] = resp
}

// NewClusterStub returns a StubExecutor that answers the default
// bhosts, bjobs, and "bjobs -p" command lines with BhostsOutput,
// BjobsOutput, and BjobsPendingOutput.
func NewClusterStub() *StubExecutor {
	return &StubExecutor{Responses: map[string]StubResponse{
		BhostsCommand:       {Output: BhostsOutput},
		BjobsCommand:        {Output: BjobsOutput},
		BjobsPendingCommand: {Output: BjobsPendingOutput},
	}}
}
