// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"bytes"
	"flag"
	"fmt"
	"io"

	"github.com/clusteradapters/lsfquery/lib/cmd"
	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

var DumpCommand dumpCommand

type dumpCommand struct{}

// RunCommand prints the effective configuration (defaults merged
// with the site config file) as YAML.
func (dumpCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()

	loader := NewLoader(stdin, ctxlog.New(stderr, "text", "info"))
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	loader.SetupFlags(flags)
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return 1
	}
	_, err = stdout.Write(out)
	if err != nil {
		return 1
	}
	return 0
}

var CheckCommand checkCommand

type checkCommand struct{}

// RunCommand loads the config file and exits non-zero if it cannot be
// loaded or if loading produced any warnings (e.g., unknown keys).
func (checkCommand) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var logbuf bytes.Buffer
	defer func() {
		io.Copy(stderr, &logbuf)
	}()

	logger := logrus.New()
	logger.Out = &logbuf
	logger.Formatter = cmd.NoPrefixFormatter{}
	loader := NewLoader(stdin, logger)
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	loader.SetupFlags(flags)
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	}
	_, err := loader.Load()
	if err != nil {
		fmt.Fprintln(&logbuf, err)
		return 1
	}
	if logbuf.Len() > 0 {
		return 1
	}
	return 0
}
