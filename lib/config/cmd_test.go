// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"bytes"

	"github.com/clusteradapters/lsfquery/lib/cmdtest"
	check "gopkg.in/check.v1"
)

var _ = check.Suite(&CommandSuite{})

type CommandSuite struct{}

func (s *CommandSuite) TestDump(c *check.C) {
	defer cmdtest.LeakCheck(c)()
	var stdout, stderr bytes.Buffer
	in := `LSF: {SudoUser: lsfadmin}`
	code := DumpCommand.RunCommand("lsfquery config-dump", []string{"-config", "-"}, bytes.NewBufferString(in), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stderr.String(), check.Equals, "")
	c.Check(stdout.String(), check.Matches, `(?ms).*SudoUser: lsfadmin.*`)
	c.Check(stdout.String(), check.Matches, `(?ms).*BhostsCommand: bhosts.*`)
}

func (s *CommandSuite) TestDumpBadConfig(c *check.C) {
	defer cmdtest.LeakCheck(c)()
	var stdout, stderr bytes.Buffer
	code := DumpCommand.RunCommand("lsfquery config-dump", []string{"-config", "-"}, bytes.NewBufferString("SystemLogs: {Format: xml}"), &stdout, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stdout.String(), check.Equals, "")
	c.Check(stderr.String(), check.Matches, `(?ms).*SystemLogs.Format.*`)
}

func (s *CommandSuite) TestCheckOK(c *check.C) {
	defer cmdtest.LeakCheck(c)()
	var stdout, stderr bytes.Buffer
	code := CheckCommand.RunCommand("lsfquery config-check", []string{"-config", "-"}, bytes.NewBufferString("ManagementToken: abc"), &stdout, &stderr)
	c.Check(code, check.Equals, 0)
	c.Check(stderr.String(), check.Equals, "")
}

func (s *CommandSuite) TestCheckUnknownKey(c *check.C) {
	defer cmdtest.LeakCheck(c)()
	var stdout, stderr bytes.Buffer
	code := CheckCommand.RunCommand("lsfquery config-check", []string{"-config", "-"}, bytes.NewBufferString("LSF: {Bogus: 1}"), &stdout, &stderr)
	c.Check(code, check.Equals, 1)
	c.Check(stderr.String(), check.Equals, "unknown config key LSF.Bogus\n")
}
