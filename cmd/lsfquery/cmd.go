// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package main

import (
	"os"

	"github.com/clusteradapters/lsfquery/lib/cmd"
	"github.com/clusteradapters/lsfquery/lib/config"
	"github.com/clusteradapters/lsfquery/lib/lsf"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"nodes":        lsf.NodesCommand,
		"jobs":         lsf.JobsCommand,
		"pending":      lsf.PendingCommand,
		"serve":        lsf.ServeCommand,
		"config-dump":  config.DumpCommand,
		"config-check": config.CheckCommand,
	})
)

func main() {
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
