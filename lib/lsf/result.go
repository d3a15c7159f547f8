// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import "fmt"

// QueryStatus tells a caller why a query returned what it did, so
// "no jobs" and "scheduler unreachable" can be told apart.
type QueryStatus int

const (
	// The command ran and its output was decoded.
	StatusOK QueryStatus = iota
	// The command ran but wrote nothing to stdout.
	StatusEmpty
	// The command could not be started, exited non-zero, or
	// was cancelled.
	StatusExecutionFailed
)

func (s QueryStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEmpty:
		return "empty"
	case StatusExecutionFailed:
		return "failed"
	default:
		return fmt.Sprintf("QueryStatus(%d)", int(s))
	}
}

// HostsResult is the outcome of a bhosts query. Report is the zero
// HostsReport unless Status is StatusOK.
type HostsResult struct {
	Status QueryStatus
	Report HostsReport
	// Raw command output, if Status is StatusOK.
	Raw []byte
	// Execution error, if Status is StatusExecutionFailed.
	Err error
}

// JobsResult is the outcome of a bjobs query. Report is the zero
// JobsReport unless Status is StatusOK.
type JobsResult struct {
	Status QueryStatus
	Report JobsReport
	Raw    []byte
	Err    error
}

// ParseError is returned when a command produced output that is not
// the JSON document we asked for.
type ParseError struct {
	// Command line that produced the output.
	Command string
	Output  []byte
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse output of [%s]: %s", e.Command, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
