// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// An Executor runs a command line and returns what it wrote to
// stdout. A non-nil error means the command could not be started,
// exited non-zero, or was cancelled.
type Executor interface {
	Execute(ctx context.Context, command string) ([]byte, error)
}

// ShellExecutor runs commands as child processes. The command line is
// split into words using shell quoting rules, but no shell is
// involved.
type ShellExecutor struct {
	Logger logrus.FieldLogger

	// If non-zero, kill the command if it has not exited after
	// this long.
	Timeout time.Duration

	// (for testing) if non-nil, call stubCommand() instead of
	// exec.CommandContext() when running lsf command line
	// programs.
	stubCommand func(ctx context.Context, prog string, args ...string) *exec.Cmd
}

func (ex *ShellExecutor) command(ctx context.Context, prog string, args ...string) *exec.Cmd {
	if f := ex.stubCommand; f != nil {
		return f(ctx, prog, args...)
	}
	return exec.CommandContext(ctx, prog, args...)
}

// Execute implements Executor.
func (ex *ShellExecutor) Execute(ctx context.Context, command string) ([]byte, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("cannot parse command line %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command line")
	}
	if ex.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ex.Timeout)
		defer cancel()
	}
	logger := ex.Logger
	if logger == nil {
		logger = ctxlog.FromContext(ctx)
	}
	logger.WithField("Command", command).Debug("running")
	t0 := time.Now()
	out, err := ex.command(ctx, argv[0], argv[1:]...).Output()
	logger = logger.WithFields(logrus.Fields{
		"Command": command,
		"Elapsed": time.Since(t0).Seconds(),
	})
	if ctx.Err() != nil {
		logger.WithError(ctx.Err()).Debug("interrupted")
		return nil, fmt.Errorf("%s: %w", argv[0], ctx.Err())
	}
	if err != nil {
		err = errWithStderr(err)
		logger.WithError(err).Debug("failed")
		return nil, fmt.Errorf("%s: %w", argv[0], err)
	}
	logger.WithField("Bytes", len(out)).Debug("finished")
	return out, nil
}

func errWithStderr(err error) error {
	var exiterr *exec.ExitError
	if errors.As(err, &exiterr) && len(exiterr.Stderr) > 0 {
		return fmt.Errorf("%w (%q)", err, exiterr.Stderr)
	}
	return err
}
