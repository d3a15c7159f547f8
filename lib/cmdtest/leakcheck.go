// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package cmdtest provides tools for testing command line tools.
package cmdtest

import (
	"io"
	"os"

	check "gopkg.in/check.v1"
)

// LeakCheck tests for output being leaked to os.Stdout and os.Stderr
// that should be sent elsewhere (e.g., the stdout and stderr streams
// passed to a cmd.Handler, or a logger built by ctxlog.New).
//
// It redirects os.Stdout and os.Stderr to unlinked tempfiles, and
// returns a func, which the caller is expected to defer, that restores
// os.* and checks that both tempfiles are empty.
//
// Example:
//
//	func (s *Suite) TestSomething(c *check.C) {
//		defer cmdtest.LeakCheck(c)()
//		// ... do things that shouldn't print to os.Stderr or os.Stdout
//	}
func LeakCheck(c *check.C) func() {
	stdout, stderr := os.Stdout, os.Stderr
	tmpout, tmperr := unlinkedTempFile(c), unlinkedTempFile(c)
	os.Stdout, os.Stderr = tmpout, tmperr
	return func() {
		os.Stdout, os.Stderr = stdout, stderr
		for name, f := range map[string]*os.File{"stdout": tmpout, "stderr": tmperr} {
			_, err := f.Seek(0, io.SeekStart)
			c.Assert(err, check.IsNil)
			leaked, err := io.ReadAll(f)
			c.Assert(err, check.IsNil)
			f.Close()
			c.Check(string(leaked), check.Equals, "", check.Commentf("output leaked to os.%s", name))
		}
	}
}

func unlinkedTempFile(c *check.C) *os.File {
	f, err := os.CreateTemp("", "leakcheck-")
	c.Assert(err, check.IsNil)
	c.Assert(os.Remove(f.Name()), check.IsNil)
	return f
}
