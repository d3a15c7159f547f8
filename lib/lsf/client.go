// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clusteradapters/lsfquery/lib/config"
	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/sirupsen/logrus"
)

const (
	bhostsFields = "HOST_NAME STATUS MAX NJOBS RUN SSUSP USUSP RSV"
	bjobsFields  = "JOBID QUEUE STAT JOB_NAME"

	// JobStatePending, given as JobFilter.JobState, restricts a
	// jobs query to pending jobs ("bjobs -p").
	JobStatePending = "p"
)

// NodeFilter is accepted by the compute node queries. bhosts is always
// run unfiltered: neither field is applied.
type NodeFilter struct {
	Hostname string
	JobState string
}

// JobFilter selects which bjobs listing to run. Only JobState ==
// JobStatePending has an effect; Hostname is not applied.
type JobFilter struct {
	Hostname string
	JobState string
}

// PendingFilter is accepted by the pending jobs queries.
//
// MaxSlots and SkipIfState are not applied to the result: the bjobs
// output we request carries no slot counts, and "bjobs -p" already
// excludes every state but PEND.
type PendingFilter struct {
	// Discard jobs needing more than this many slots (not applied).
	MaxSlots int
	// Discard jobs in this state (not applied).
	SkipIfState string
	// Log each pending job, not just the count.
	LogPendingJobs bool
}

// Client queries LSF for hosts and jobs by running bhosts and bjobs.
// It holds no state between calls.
type Client struct {
	Executor Executor
	Logger   logrus.FieldLogger
	Metrics  *Metrics

	// Program names. Empty means "bjobs" and "bhosts".
	BjobsCommand  string
	BhostsCommand string

	// If non-empty, run programs via "sudo -E -u {SudoUser}".
	SudoUser string
}

// NewClient returns a Client that runs the LSF programs named in cfg
// as child processes.
func NewClient(cfg config.LSF, logger logrus.FieldLogger, metrics *Metrics) *Client {
	return &Client{
		Executor: &ShellExecutor{
			Logger:  logger,
			Timeout: cfg.CommandTimeout.Duration(),
		},
		Logger:        logger,
		Metrics:       metrics,
		BjobsCommand:  cfg.BjobsCommand,
		BhostsCommand: cfg.BhostsCommand,
		SudoUser:      cfg.SudoUser,
	}
}

func (c *Client) logger(ctx context.Context) logrus.FieldLogger {
	if c.Logger != nil {
		return c.Logger
	}
	return ctxlog.FromContext(ctx)
}

func (c *Client) commandLine(prog, args string) string {
	cmdline := prog + " " + args
	if c.SudoUser != "" {
		cmdline = "sudo -E -u " + c.SudoUser + " " + cmdline
	}
	return cmdline
}

// BhostsCommandLine returns the command line used to list hosts.
func (c *Client) BhostsCommandLine() string {
	prog := c.BhostsCommand
	if prog == "" {
		prog = "bhosts"
	}
	return c.commandLine(prog, `-o "`+bhostsFields+`" -json`)
}

// BjobsCommandLine returns the command line used to list jobs, or only
// pending jobs.
func (c *Client) BjobsCommandLine(pending bool) string {
	prog := c.BjobsCommand
	if prog == "" {
		prog = "bjobs"
	}
	args := `-o "` + bjobsFields + `" -json`
	if pending {
		args = "-p " + args
	}
	return c.commandLine(prog, args)
}

// commandResult is the outcome of running one LSF program.
type commandResult struct {
	cmdline string
	out     []byte
	status  QueryStatus
	err     error
	elapsed time.Duration
}

// run executes cmdline and classifies the outcome. The caller records
// metrics once it knows whether the output could be parsed.
func (c *Client) run(ctx context.Context, cmdline string) commandResult {
	t0 := time.Now()
	out, err := c.Executor.Execute(ctx, cmdline)
	cr := commandResult{cmdline: cmdline, elapsed: time.Since(t0)}
	switch {
	case err != nil:
		c.logger(ctx).WithError(err).WithField("Command", cmdline).Warn("LSF command failed")
		cr.status, cr.err = StatusExecutionFailed, err
	case len(bytes.TrimSpace(out)) == 0:
		cr.status = StatusEmpty
	default:
		cr.status, cr.out = StatusOK, out
	}
	return cr
}

func (c *Client) runBhosts(ctx context.Context) commandResult {
	return c.run(ctx, c.BhostsCommandLine())
}

func (c *Client) runBjobs(ctx context.Context, jobStateFilter string) commandResult {
	return c.run(ctx, c.BjobsCommandLine(jobStateFilter == JobStatePending))
}

// decode parses the JSON document written by an LSF program run with
// "-json". The document must be an object, and its COMMAND field (if
// any) must name the program we ran.
func decode(cmdline, program string, out []byte, dst interface{}, command func() string) error {
	trimmed := bytes.TrimSpace(out)
	if trimmed[0] != '{' {
		return &ParseError{Command: cmdline, Output: out, Err: errors.New("output is not a JSON object")}
	}
	if err := json.Unmarshal(trimmed, dst); err != nil {
		return &ParseError{Command: cmdline, Output: out, Err: err}
	}
	if got := command(); got != "" && got != program {
		return &ParseError{Command: cmdline, Output: out, Err: fmt.Errorf("output is from %q, not %q", got, program)}
	}
	return nil
}

// QueryComputeNodes runs bhosts and returns its decoded output along
// with the outcome of running it. The returned error is non-nil only
// if bhosts produced output that could not be decoded, in which case
// it is a *ParseError.
func (c *Client) QueryComputeNodes(ctx context.Context, filter NodeFilter) (HostsResult, error) {
	cr := c.runBhosts(ctx)
	res := HostsResult{Status: cr.status, Err: cr.err}
	if cr.status != StatusOK {
		c.Metrics.observe("bhosts", cr.status.String(), cr.elapsed)
		return res, nil
	}
	var report HostsReport
	err := decode(cr.cmdline, "bhosts", cr.out, (*plainHostsReport)(&report), func() string { return report.Command })
	if err != nil {
		c.Metrics.observe("bhosts", "malformed", cr.elapsed)
		return res, err
	}
	c.Metrics.observe("bhosts", cr.status.String(), cr.elapsed)
	if report.Hosts != len(report.Records) {
		c.logger(ctx).WithFields(logrus.Fields{
			"HOSTS":   report.Hosts,
			"RECORDS": len(report.Records),
		}).Warn("bhosts host count does not match number of records")
	}
	res.Report, res.Raw = report, cr.out
	return res, nil
}

// QueryJobs runs bjobs (or "bjobs -p" if filter.JobState is
// JobStatePending) and returns its decoded output along with the
// outcome of running it. The returned error is non-nil only if bjobs
// produced output that could not be decoded.
func (c *Client) QueryJobs(ctx context.Context, filter JobFilter) (JobsResult, error) {
	cr := c.runBjobs(ctx, filter.JobState)
	res := JobsResult{Status: cr.status, Err: cr.err}
	if cr.status != StatusOK {
		c.Metrics.observe("bjobs", cr.status.String(), cr.elapsed)
		return res, nil
	}
	var report JobsReport
	err := decode(cr.cmdline, "bjobs", cr.out, (*plainJobsReport)(&report), func() string { return report.Command })
	if err != nil {
		c.Metrics.observe("bjobs", "malformed", cr.elapsed)
		return res, err
	}
	c.Metrics.observe("bjobs", cr.status.String(), cr.elapsed)
	if report.Jobs != len(report.Records) {
		c.logger(ctx).WithFields(logrus.Fields{
			"JOBS":    report.Jobs,
			"RECORDS": len(report.Records),
		}).Warn("bjobs job count does not match number of records")
	}
	res.Report, res.Raw = report, cr.out
	return res, nil
}

// QueryPendingJobs runs "bjobs -p" and logs the number of pending jobs
// retrieved.
func (c *Client) QueryPendingJobs(ctx context.Context, filter PendingFilter) (JobsResult, error) {
	logger := c.logger(ctx)
	if filter.MaxSlots != 0 || filter.SkipIfState != "" {
		logger.WithFields(logrus.Fields{
			"MaxSlots":    filter.MaxSlots,
			"SkipIfState": filter.SkipIfState,
		}).Debug("pending job filters are not applied")
	}
	res, err := c.QueryJobs(ctx, JobFilter{JobState: JobStatePending})
	if err != nil {
		return res, err
	}
	logger.Infof("Retrieved %d pending jobs", res.Report.Len())
	if res.Status != StatusExecutionFailed {
		// keep the last known count while bjobs is unavailable
		c.Metrics.setPending(res.Report.Len())
	}
	if filter.LogPendingJobs {
		for _, job := range res.Report.Records {
			logger.WithFields(logrus.Fields{
				"JobID":   job.JobID,
				"Queue":   job.Queue,
				"Stat":    job.Stat,
				"JobName": job.JobName,
			}).Info("pending job")
		}
	}
	return res, nil
}

// GetComputeNodesInfo returns the hosts reported by bhosts. If bhosts
// fails or writes nothing, the result is the empty report.
func (c *Client) GetComputeNodesInfo(ctx context.Context, filter NodeFilter) (HostsReport, error) {
	res, err := c.QueryComputeNodes(ctx, filter)
	return res.Report, err
}

// GetJobsInfo returns the jobs reported by bjobs. If bjobs fails or
// writes nothing, the result is the empty report.
func (c *Client) GetJobsInfo(ctx context.Context, filter JobFilter) (JobsReport, error) {
	res, err := c.QueryJobs(ctx, filter)
	return res.Report, err
}

// GetPendingJobsInfo returns the jobs reported by "bjobs -p",
// unfiltered.
func (c *Client) GetPendingJobsInfo(ctx context.Context, filter PendingFilter) (JobsReport, error) {
	res, err := c.QueryPendingJobs(ctx, filter)
	return res.Report, err
}
