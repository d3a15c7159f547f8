// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/clusteradapters/lsfquery/lib/cmd"
	"github.com/clusteradapters/lsfquery/lib/config"
	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/ghodss/yaml"
)

var (
	NodesCommand   cmd.Handler = &queryCommand{kind: "nodes"}
	JobsCommand    cmd.Handler = &queryCommand{kind: "jobs"}
	PendingCommand cmd.Handler = &queryCommand{kind: "pending"}
)

var errExecutionFailed = errors.New("LSF command failed")

type queryCommand struct {
	kind string

	// (for testing) if non-nil, run commands with executor
	// instead of starting child processes.
	executor Executor
}

type queryOptions struct {
	format  string
	strict  bool
	pending bool
	filter  PendingFilter
}

func (qc *queryCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := ctxlog.New(stderr, "text", "info")
	var err error
	defer func() {
		if err != nil {
			logger.WithError(err).Error(qc.kind + " query failed")
		}
	}()

	var opts queryOptions
	loader := config.NewLoader(stdin, logger)
	flags := flag.NewFlagSet(prog, flag.ContinueOnError)
	loader.SetupFlags(flags)
	flags.StringVar(&opts.format, "format", "json", "Output `format`: json, yaml, or text")
	flags.BoolVar(&opts.strict, "strict", false, "Exit 1 if the LSF command fails, instead of printing an empty result")
	switch qc.kind {
	case "jobs":
		flags.BoolVar(&opts.pending, "pending", false, "List only pending jobs (bjobs -p)")
	case "pending":
		flags.IntVar(&opts.filter.MaxSlots, "max-slots", 0, "Skip jobs needing more than `N` slots (accepted, not applied)")
		flags.StringVar(&opts.filter.SkipIfState, "skip-if-state", "", "Skip jobs in `state` (accepted, not applied)")
		flags.BoolVar(&opts.filter.LogPendingJobs, "log-pending-jobs", false, "Log each pending job")
	}
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	switch opts.format {
	case "json", "yaml", "text":
	default:
		fmt.Fprintf(stderr, "%s: unsupported -format %q (choose json, yaml, or text)\n", prog, opts.format)
		return 2
	}

	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	logger = ctxlog.New(stderr, cfg.SystemLogs.Format, cfg.SystemLogs.LogLevel)
	client := NewClient(cfg.LSF, logger, nil)
	if qc.executor != nil {
		client.Executor = qc.executor
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = ctxlog.Context(ctx, logger)

	var out outputter
	var status QueryStatus
	switch qc.kind {
	case "nodes":
		var res HostsResult
		res, err = client.QueryComputeNodes(ctx, NodeFilter{})
		status, out = res.Status, hostsOutput(res.Report)
	case "jobs":
		var res JobsResult
		filter := JobFilter{}
		if opts.pending {
			filter.JobState = JobStatePending
		}
		res, err = client.QueryJobs(ctx, filter)
		status, out = res.Status, jobsOutput(res.Report)
	case "pending":
		var res JobsResult
		res, err = client.QueryPendingJobs(ctx, opts.filter)
		status, out = res.Status, jobsOutput(res.Report)
	default:
		err = fmt.Errorf("unknown query %q", qc.kind)
	}
	if err != nil {
		return 1
	}
	if status == StatusExecutionFailed && opts.strict {
		// the cause has already been logged
		err = errExecutionFailed
		return 1
	}
	err = out.write(stdout, opts.format)
	if err != nil {
		return 1
	}
	return 0
}

// An outputter writes a query report in one of the supported
// formats.
type outputter interface {
	write(w io.Writer, format string) error
}

type hostsOutput HostsReport

func (r hostsOutput) write(w io.Writer, format string) error {
	if format != "text" {
		return writeEncoded(w, format, HostsReport(r))
	}
	tw := tabwriter.NewWriter(w, 2, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ReplaceAll(bhostsFields, " ", "\t"))
	slots, running := 0, 0
	for _, h := range r.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n", h.HostName, h.Status, h.Max, h.NJobs, h.Run, h.SSusp, h.USusp, h.Rsv)
		slots += h.Slots()
		running += h.Running()
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s, %s slots, %s running\n",
		humanize.Comma(int64(len(r.Records))), english.PluralWord(len(r.Records), "host", ""),
		humanize.Comma(int64(slots)), humanize.Comma(int64(running)))
	return err
}

type jobsOutput JobsReport

func (r jobsOutput) write(w io.Writer, format string) error {
	if format != "text" {
		return writeEncoded(w, format, JobsReport(r))
	}
	tw := tabwriter.NewWriter(w, 2, 8, 2, ' ', 0)
	fmt.Fprintln(tw, strings.ReplaceAll(bjobsFields, " ", "\t"))
	for _, j := range r.Records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.JobID, j.Queue, j.Stat, j.JobName)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%s %s, %s running, %s pending\n",
		humanize.Comma(int64(len(r.Records))), english.PluralWord(len(r.Records), "job", ""),
		humanize.Comma(int64(JobsReport(r).Running())),
		humanize.Comma(int64(JobsReport(r).Pending())))
	return err
}

func writeEncoded(w io.Writer, format string, v interface{}) error {
	var buf []byte
	var err error
	if format == "yaml" {
		buf, err = yaml.Marshal(v)
	} else {
		buf, err = json.MarshalIndent(v, "", "  ")
		buf = append(buf, '\n')
	}
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
