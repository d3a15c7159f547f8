// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"gopkg.in/check.v1"
)

var _ = check.Suite(&executorSuite{})

type executorSuite struct{}

func (s *executorSuite) TestArgvSplit(c *check.C) {
	var gotProg string
	var gotArgs []string
	ex := &ShellExecutor{
		Logger: ctxlog.TestLogger(c),
		stubCommand: func(ctx context.Context, prog string, args ...string) *exec.Cmd {
			gotProg, gotArgs = prog, args
			return exec.CommandContext(ctx, "printf", "%s", `{"COMMAND":"bhosts"}`)
		},
	}
	out, err := ex.Execute(context.Background(), `bhosts -o "HOST_NAME STATUS MAX NJOBS RUN SSUSP USUSP RSV" -json`)
	c.Assert(err, check.IsNil)
	c.Check(string(out), check.Equals, `{"COMMAND":"bhosts"}`)
	c.Check(gotProg, check.Equals, "bhosts")
	c.Check(gotArgs, check.DeepEquals, []string{"-o", "HOST_NAME STATUS MAX NJOBS RUN SSUSP USUSP RSV", "-json"})
}

func (s *executorSuite) TestStderrInError(c *check.C) {
	ex := &ShellExecutor{
		Logger: ctxlog.TestLogger(c),
		stubCommand: func(ctx context.Context, prog string, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sh", "-c", "echo >&2 'LSF is down'; exit 255")
		},
	}
	out, err := ex.Execute(context.Background(), `bjobs -json`)
	c.Check(out, check.IsNil)
	c.Check(err, check.ErrorMatches, `bjobs: exit status 255 \("LSF is down\\n"\)`)
	var exiterr *exec.ExitError
	c.Check(errors.As(err, &exiterr), check.Equals, true)
}

func (s *executorSuite) TestProgramNotFound(c *check.C) {
	ex := &ShellExecutor{Logger: ctxlog.TestLogger(c)}
	_, err := ex.Execute(context.Background(), `/nonexistent/bjobs -json`)
	c.Check(err, check.ErrorMatches, `/nonexistent/bjobs: .*no such file or directory`)
}

func (s *executorSuite) TestTimeout(c *check.C) {
	ex := &ShellExecutor{
		Logger:  ctxlog.TestLogger(c),
		Timeout: 100 * time.Millisecond,
		stubCommand: func(ctx context.Context, prog string, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sleep", "10")
		},
	}
	t0 := time.Now()
	_, err := ex.Execute(context.Background(), `bhosts -json`)
	c.Check(errors.Is(err, context.DeadlineExceeded), check.Equals, true)
	c.Check(time.Since(t0) < 5*time.Second, check.Equals, true)
}

func (s *executorSuite) TestCancel(c *check.C) {
	ex := &ShellExecutor{
		Logger: ctxlog.TestLogger(c),
		stubCommand: func(ctx context.Context, prog string, args ...string) *exec.Cmd {
			return exec.CommandContext(ctx, "sleep", "10")
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := ex.Execute(ctx, `bhosts -json`)
	c.Check(errors.Is(err, context.Canceled), check.Equals, true)
}

func (s *executorSuite) TestBadCommandLine(c *check.C) {
	ex := &ShellExecutor{Logger: ctxlog.TestLogger(c)}
	_, err := ex.Execute(context.Background(), `bjobs -o "JOBID`)
	c.Check(err, check.ErrorMatches, `cannot parse command line .*`)
	_, err = ex.Execute(context.Background(), ``)
	c.Check(err, check.ErrorMatches, `empty command line`)
}
