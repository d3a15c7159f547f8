// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/clusteradapters/lsfquery/lib/config"
	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/clusteradapters/lsfquery/sdk/go/lsftest"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/check.v1"
)

var _ = check.Suite(&handlerSuite{})

const managementToken = "secretmanagementtoken"

type handlerSuite struct {
	stub    *lsftest.StubExecutor
	reg     *prometheus.Registry
	handler *Handler
}

func loadConfig(c *check.C, yaml string) *config.Config {
	ldr := config.NewLoader(bytes.NewBufferString(yaml), ctxlog.TestLogger(c))
	ldr.Path = "-"
	cfg, err := ldr.Load()
	c.Assert(err, check.IsNil)
	return cfg
}

func (s *handlerSuite) SetUpTest(c *check.C) {
	s.stub = lsftest.NewClusterStub()
	s.reg = prometheus.NewRegistry()
	s.handler = &Handler{
		Context:  ctxlog.Context(context.Background(), ctxlog.TestLogger(c)),
		Registry: s.reg,
		Metrics:  NewMetrics(s.reg),
		executor: s.stub,
	}
	s.handler.ApplyConfig(loadConfig(c, "ManagementToken: "+managementToken+"\n"))
	c.Assert(s.handler.CheckHealth(), check.IsNil)
}

func (s *handlerSuite) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "http://lsfquery.example"+path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func (s *handlerSuite) TestNodes(c *check.C) {
	resp := s.get("/v1/nodes", "")
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Header().Get(StatusHeader), check.Equals, "ok")
	c.Check(resp.Header().Get("Content-Type"), check.Equals, "application/json")
	var got, want interface{}
	c.Assert(json.Unmarshal(resp.Body.Bytes(), &got), check.IsNil)
	c.Assert(json.Unmarshal([]byte(lsftest.BhostsOutput), &want), check.IsNil)
	c.Check(got, check.DeepEquals, want)
	c.Check(s.stub.LastCall(), check.Equals, lsftest.BhostsCommand)
}

func (s *handlerSuite) TestJobs(c *check.C) {
	resp := s.get("/v1/jobs", "")
	c.Check(resp.Code, check.Equals, http.StatusOK)
	var report JobsReport
	c.Assert(json.Unmarshal(resp.Body.Bytes(), &report), check.IsNil)
	c.Check(report.Jobs, check.Equals, 6)
	c.Check(s.stub.LastCall(), check.Equals, lsftest.BjobsCommand)

	resp = s.get("/v1/jobs?job_state=p", "")
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Assert(json.Unmarshal(resp.Body.Bytes(), &report), check.IsNil)
	c.Check(report.Jobs, check.Equals, 2)
	c.Check(s.stub.LastCall(), check.Equals, lsftest.BjobsPendingCommand)
}

func (s *handlerSuite) TestPendingJobs(c *check.C) {
	resp := s.get("/v1/jobs/pending?max_slots=4&skip_if_state=RUN", "")
	c.Check(resp.Code, check.Equals, http.StatusOK)
	var report JobsReport
	c.Assert(json.Unmarshal(resp.Body.Bytes(), &report), check.IsNil)
	c.Check(report.Jobs, check.Equals, 2)
	c.Check(report.Len(), check.Equals, 2)
	c.Check(s.stub.LastCall(), check.Equals, lsftest.BjobsPendingCommand)
	c.Check(lsftest.GetMetricValue(c, s.reg, "lsfquery_pending_jobs"), check.Equals, 2.0)

	resp = s.get("/v1/jobs/pending?max_slots=lots", "")
	c.Check(resp.Code, check.Equals, http.StatusBadRequest)
	c.Check(resp.Body.String(), check.Equals, `{"error":"invalid max_slots \"lots\""}`+"\n")
}

func (s *handlerSuite) TestEmptyShapes(c *check.C) {
	s.stub.Set(lsftest.BhostsCommand, lsftest.StubResponse{})
	s.stub.Set(lsftest.BjobsCommand, lsftest.StubResponse{Output: "\n"})
	s.stub.Set(lsftest.BjobsPendingCommand, lsftest.StubResponse{Err: errors.New("bjobs: exit status 255")})
	for _, trial := range []struct {
		path   string
		body   string
		status string
	}{
		{"/v1/nodes", "{}\n", "empty"},
		{"/v1/jobs", "[]\n", "empty"},
		{"/v1/jobs/pending", "[]\n", "failed"},
		{"/v1/nodes?strict=true", "{}\n", "empty"},
	} {
		c.Logf("trial %+v", trial)
		resp := s.get(trial.path, "")
		c.Check(resp.Code, check.Equals, http.StatusOK)
		c.Check(resp.Body.String(), check.Equals, trial.body)
		c.Check(resp.Header().Get(StatusHeader), check.Equals, trial.status)
	}
}

func (s *handlerSuite) TestStrict(c *check.C) {
	s.stub.Set(lsftest.BjobsCommand, lsftest.StubResponse{Err: errors.New("bjobs: exit status 255")})
	resp := s.get("/v1/jobs?strict=true", "")
	c.Check(resp.Code, check.Equals, http.StatusServiceUnavailable)
	c.Check(resp.Header().Get(StatusHeader), check.Equals, "failed")
	c.Check(resp.Body.String(), check.Equals, `{"error":"bjobs: exit status 255"}`+"\n")
}

func (s *handlerSuite) TestMalformed(c *check.C) {
	s.stub.Set(lsftest.BhostsCommand, lsftest.StubResponse{Output: "LIM is down; try later\n"})
	resp := s.get("/v1/nodes", "")
	c.Check(resp.Code, check.Equals, http.StatusBadGateway)
	c.Check(resp.Header().Get(StatusHeader), check.Equals, "malformed")
	c.Check(resp.Body.String(), check.Matches, `{"error":"cannot parse output of .*"}\n`)
}

func (s *handlerSuite) TestMetrics(c *check.C) {
	s.get("/v1/nodes", "")
	c.Check(s.get("/metrics", "").Code, check.Equals, http.StatusUnauthorized)
	c.Check(s.get("/metrics", "wrongtoken").Code, check.Equals, http.StatusForbidden)
	resp := s.get("/metrics", managementToken)
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Body.String(), check.Matches, `(?ms).*^lsfquery_commands_total{command="bhosts",status="ok"} 1$.*`)
}

func (s *handlerSuite) TestManagementTokenNeedsBearer(c *check.C) {
	for _, path := range []string{"/metrics", "/_health/ping"} {
		req := httptest.NewRequest("GET", "http://lsfquery.example"+path, nil)
		req.Header.Set("Authorization", managementToken)
		resp := httptest.NewRecorder()
		s.handler.ServeHTTP(resp, req)
		c.Check(resp.Code, check.Equals, http.StatusForbidden, check.Commentf("%s", path))
	}
}

func (s *handlerSuite) TestManagementDisabled(c *check.C) {
	s.handler.ApplyConfig(loadConfig(c, "{}"))
	c.Check(s.get("/metrics", managementToken).Code, check.Equals, http.StatusForbidden)
	c.Check(s.get("/_health/ping", managementToken).Code, check.Equals, http.StatusNotFound)
}

func (s *handlerSuite) TestHealth(c *check.C) {
	resp := s.get("/_health/ping", managementToken)
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Body.String(), check.Equals, `{"health":"OK"}`+"\n")

	resp = s.get("/_health/lsf", managementToken)
	c.Check(resp.Body.String(), check.Equals, `{"health":"OK"}`+"\n")
	c.Check(s.stub.LastCall(), check.Equals, lsftest.BhostsCommand)

	s.stub.Set(lsftest.BhostsCommand, lsftest.StubResponse{Err: errors.New("bhosts: executable file not found in $PATH")})
	resp = s.get("/_health/lsf", managementToken)
	c.Check(resp.Code, check.Equals, http.StatusOK)
	c.Check(resp.Body.String(), check.Matches, `{"error":"bhosts: executable file not found.*","health":"ERROR"}\n`)

	c.Check(s.get("/_health/lsf", "").Code, check.Equals, http.StatusUnauthorized)
	c.Check(s.get("/_health/nonexistent", managementToken).Code, check.Equals, http.StatusNotFound)
}

func (s *handlerSuite) TestApplyConfig(c *check.C) {
	s.handler.ApplyConfig(loadConfig(c, "LSF: {BjobsCommand: /opt/lsf/bin/bjobs, SudoUser: lsfadmin}\n"))
	s.get("/v1/jobs", "")
	c.Check(s.stub.LastCall(), check.Equals, `sudo -E -u lsfadmin /opt/lsf/bin/bjobs -o "JOBID QUEUE STAT JOB_NAME" -json`)
}
