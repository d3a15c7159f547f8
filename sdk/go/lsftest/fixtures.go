// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package lsftest provides fixtures and stubs for testing code that
// runs LSF commands.
package lsftest

// Command lines run by an lsf.Client with the default configuration.
const (
	BhostsCommand       = `bhosts -o "HOST_NAME STATUS MAX NJOBS RUN SSUSP USUSP RSV" -json`
	BjobsCommand        = `bjobs -o "JOBID QUEUE STAT JOB_NAME" -json`
	BjobsPendingCommand = `bjobs -p -o "JOBID QUEUE STAT JOB_NAME" -json`
)

// BhostsOutput is "bhosts -json" output for a cluster with one full
// host.
const BhostsOutput = `{
  "COMMAND":"bhosts",
  "HOSTS":1,
  "RECORDS":[
    {
      "HOST_NAME":"ip-10-30-9-105",
      "STATUS":"closed_Full",
      "MAX":"4",
      "NJOBS":"4",
      "RUN":"4",
      "SSUSP":"0",
      "USUSP":"0",
      "RSV":"0"
    }
  ]
}
`

// BjobsOutput is "bjobs -json" output listing four running and two
// pending jobs.
const BjobsOutput = `{
  "COMMAND":"bjobs",
  "JOBS":6,
  "RECORDS":[
    {"JOBID":"217", "QUEUE":"receiver", "STAT":"RUN", "JOB_NAME":"sleep 1h"},
    {"JOBID":"218", "QUEUE":"receiver", "STAT":"RUN", "JOB_NAME":"sleep 1h"},
    {"JOBID":"219", "QUEUE":"receiver", "STAT":"RUN", "JOB_NAME":"sleep 1h"},
    {"JOBID":"220", "QUEUE":"receiver", "STAT":"RUN", "JOB_NAME":"sleep 1h"},
    {"JOBID":"221", "QUEUE":"receiver", "STAT":"PEND", "JOB_NAME":"sleep 1h"},
    {"JOBID":"222", "QUEUE":"receiver", "STAT":"PEND", "JOB_NAME":"sleep 1h"}
  ]
}
`

// BjobsPendingOutput is what "bjobs -p -json" reports for the same
// cluster as BjobsOutput.
const BjobsPendingOutput = `{
  "COMMAND":"bjobs",
  "JOBS":2,
  "RECORDS":[
    {"JOBID":"221", "QUEUE":"receiver", "STAT":"PEND", "JOB_NAME":"sleep 1h"},
    {"JOBID":"222", "QUEUE":"receiver", "STAT":"PEND", "JOB_NAME":"sleep 1h"}
  ]
}
`
