// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"encoding/json"

	"gopkg.in/check.v1"
)

var _ = check.Suite(&recordsSuite{})

type recordsSuite struct{}

func (s *recordsSuite) TestHostNumbers(c *check.C) {
	h := HostRecord{Max: "4", NJobs: "3", Run: " 2 "}
	c.Check(h.Slots(), check.Equals, 4)
	c.Check(h.Jobs(), check.Equals, 3)
	c.Check(h.Running(), check.Equals, 2)
	h = HostRecord{Max: "-", Run: ""}
	c.Check(h.Slots(), check.Equals, 0)
	c.Check(h.Running(), check.Equals, 0)
}

func (s *recordsSuite) TestEmptyShapes(c *check.C) {
	buf, err := json.Marshal(HostsReport{})
	c.Check(err, check.IsNil)
	c.Check(string(buf), check.Equals, `{}`)

	buf, err = json.Marshal(JobsReport{})
	c.Check(err, check.IsNil)
	c.Check(string(buf), check.Equals, `[]`)

	c.Check(HostsReport{}.Len(), check.Equals, 0)
	c.Check(JobsReport{}.Len(), check.Equals, 0)
}

func (s *recordsSuite) TestNonEmptyShapes(c *check.C) {
	buf, err := json.Marshal(JobsReport{Command: "bjobs", Jobs: 0, Records: []JobRecord{}})
	c.Check(err, check.IsNil)
	c.Check(string(buf), check.Equals, `{"COMMAND":"bjobs","JOBS":0,"RECORDS":[]}`)

	buf, err = json.Marshal(HostsReport{Command: "bhosts", Hosts: 1, Records: []HostRecord{{HostName: "h1", Status: "ok"}}})
	c.Check(err, check.IsNil)
	c.Check(string(buf), check.Equals, `{"COMMAND":"bhosts","HOSTS":1,"RECORDS":[{"HOST_NAME":"h1","STATUS":"ok","MAX":"","NJOBS":"","RUN":"","SSUSP":"","USUSP":"","RSV":""}]}`)
}

func (s *recordsSuite) TestJobsReportUnmarshal(c *check.C) {
	var r JobsReport
	c.Check(json.Unmarshal([]byte(` [] `), &r), check.IsNil)
	c.Check(r.IsEmpty(), check.Equals, true)

	c.Check(json.Unmarshal([]byte(`[{"JOBID":"1"}]`), &r), check.ErrorMatches, `cannot decode non-empty JSON array.*`)

	c.Check(json.Unmarshal([]byte(`{"COMMAND":"bjobs","JOBS":1,"RECORDS":[{"JOBID":"7","STAT":"PEND"}]}`), &r), check.IsNil)
	c.Check(r.Len(), check.Equals, 1)
	c.Check(r.Pending(), check.Equals, 1)
	c.Check(r.Running(), check.Equals, 0)
	c.Check(r.Records[0].IsPending(), check.Equals, true)
	c.Check(r.Records[0].IsRunning(), check.Equals, false)
}

func (s *recordsSuite) TestJobCounts(c *check.C) {
	r := JobsReport{Command: "bjobs", Jobs: 4, Records: []JobRecord{
		{JobID: "1", Stat: StatRunning},
		{JobID: "2", Stat: StatRunning},
		{JobID: "3", Stat: StatPending},
		{JobID: "4", Stat: "PSUSP"},
	}}
	c.Check(r.Running(), check.Equals, 2)
	c.Check(r.Pending(), check.Equals, 1)
}

func (s *recordsSuite) TestQueryStatusString(c *check.C) {
	c.Check(StatusOK.String(), check.Equals, "ok")
	c.Check(StatusEmpty.String(), check.Equals, "empty")
	c.Check(StatusExecutionFailed.String(), check.Equals, "failed")
	c.Check(QueryStatus(9).String(), check.Equals, "QueryStatus(9)")
}
