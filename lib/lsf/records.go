// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// LSF job states (STAT column).
const (
	StatPending = "PEND"
	StatRunning = "RUN"
)

// HostRecord is one entry of "bhosts -json" output. Numeric columns
// are strings because that is how LSF emits them.
type HostRecord struct {
	HostName string `json:"HOST_NAME"`
	Status   string `json:"STATUS"`
	Max      string `json:"MAX"`
	NJobs    string `json:"NJOBS"`
	Run      string `json:"RUN"`
	SSusp    string `json:"SSUSP"`
	USusp    string `json:"USUSP"`
	Rsv      string `json:"RSV"`
	Error    string `json:"ERROR,omitempty"`
}

// Slots returns the MAX column as a number, or 0 if the host reports
// "-" (no limit) or something unparseable.
func (h HostRecord) Slots() int { return lsfInt(h.Max) }

// Running returns the RUN column as a number.
func (h HostRecord) Running() int { return lsfInt(h.Run) }

// Jobs returns the NJOBS column as a number.
func (h HostRecord) Jobs() int { return lsfInt(h.NJobs) }

// HostsReport is the decoded output of "bhosts -json".
//
// The zero HostsReport stands for "bhosts produced no output", and
// encodes as an empty JSON object.
type HostsReport struct {
	Command string       `json:"COMMAND"`
	Hosts   int          `json:"HOSTS"`
	Records []HostRecord `json:"RECORDS"`
}

// Len returns the number of host records.
func (r HostsReport) Len() int { return len(r.Records) }

// IsEmpty returns true for the zero report.
func (r HostsReport) IsEmpty() bool {
	return r.Command == "" && r.Hosts == 0 && r.Records == nil
}

type plainHostsReport HostsReport

func (r HostsReport) MarshalJSON() ([]byte, error) {
	if r.IsEmpty() {
		return []byte("{}"), nil
	}
	return json.Marshal(plainHostsReport(r))
}

// JobRecord is one entry of "bjobs -json" output.
type JobRecord struct {
	JobID   string `json:"JOBID"`
	Queue   string `json:"QUEUE"`
	Stat    string `json:"STAT"`
	JobName string `json:"JOB_NAME"`
	Error   string `json:"ERROR,omitempty"`
}

// IsPending returns true if the job has been submitted but not yet
// dispatched.
func (j JobRecord) IsPending() bool { return j.Stat == StatPending }

// IsRunning returns true if the job is executing.
func (j JobRecord) IsRunning() bool { return j.Stat == StatRunning }

// JobsReport is the decoded output of "bjobs -json".
//
// The zero JobsReport stands for "bjobs produced no output", and
// encodes as an empty JSON array.
type JobsReport struct {
	Command string      `json:"COMMAND"`
	Jobs    int         `json:"JOBS"`
	Records []JobRecord `json:"RECORDS"`
}

// Len returns the number of job records.
func (r JobsReport) Len() int { return len(r.Records) }

// IsEmpty returns true for the zero report.
func (r JobsReport) IsEmpty() bool {
	return r.Command == "" && r.Jobs == 0 && r.Records == nil
}

// Pending returns the number of records in state PEND.
func (r JobsReport) Pending() int {
	n := 0
	for _, j := range r.Records {
		if j.IsPending() {
			n++
		}
	}
	return n
}

// Running returns the number of records in state RUN.
func (r JobsReport) Running() int {
	n := 0
	for _, j := range r.Records {
		if j.IsRunning() {
			n++
		}
	}
	return n
}

type plainJobsReport JobsReport

func (r JobsReport) MarshalJSON() ([]byte, error) {
	if r.IsEmpty() {
		return []byte("[]"), nil
	}
	return json.Marshal(plainJobsReport(r))
}

// UnmarshalJSON accepts the object form as well as the empty array
// written by MarshalJSON.
func (r *JobsReport) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var empty []json.RawMessage
		if err := json.Unmarshal(data, &empty); err != nil {
			return err
		}
		if len(empty) > 0 {
			return errors.New("cannot decode non-empty JSON array as a bjobs report")
		}
		*r = JobsReport{}
		return nil
	}
	return json.Unmarshal(data, (*plainJobsReport)(r))
}

func lsfInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
