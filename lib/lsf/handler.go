// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package lsf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/clusteradapters/lsfquery/lib/cmd"
	"github.com/clusteradapters/lsfquery/lib/config"
	"github.com/clusteradapters/lsfquery/lib/service"
	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/clusteradapters/lsfquery/sdk/go/health"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// StatusHeader tells HTTP clients how the scheduler query behind a
// response turned out.
const StatusHeader = "X-Lsf-Query-Status"

var ServeCommand cmd.Handler = service.Command(newHandler)

func newHandler(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) service.Handler {
	h := &Handler{
		Context:  ctx,
		Registry: reg,
		Metrics:  NewMetrics(reg),
	}
	h.ApplyConfig(cfg)
	return h
}

// Handler serves scheduler queries over HTTP, along with metrics and
// health checks.
type Handler struct {
	Context  context.Context
	Registry *prometheus.Registry
	Metrics  *Metrics

	// (for testing) if non-nil, run commands with executor
	// instead of starting child processes.
	executor Executor

	mtx    sync.RWMutex
	client *Client
	router http.Handler
}

// ApplyConfig implements service.Handler. Requests already in
// progress finish with the previous configuration.
func (h *Handler) ApplyConfig(cfg *config.Config) {
	logger := ctxlog.FromContext(h.Context)
	client := NewClient(cfg.LSF, logger, h.Metrics)
	if h.executor != nil {
		client.Executor = h.executor
	}

	mux := httprouter.New()
	mux.GET("/v1/nodes", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.serveNodes(client, w, r)
	})
	mux.GET("/v1/jobs", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.serveJobs(client, w, r)
	})
	mux.GET("/v1/jobs/pending", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		h.servePendingJobs(client, w, r)
	})
	metricsH := promhttp.HandlerFor(h.Registry, promhttp.HandlerOpts{
		ErrorLog: logger,
	})
	mux.Handler("GET", "/metrics", requireToken(cfg.ManagementToken, metricsH))
	mux.Handler("GET", "/_health/:check", &health.Handler{
		Token:   cfg.ManagementToken,
		Prefix:  "/_health/",
		Timeout: cfg.LSF.CommandTimeout.Duration(),
		Routes: health.Routes{
			"ping": func(context.Context) error { return h.CheckHealth() },
			"lsf":  client.checkHealth,
		},
		Log: func(r *http.Request, err error) {
			if err != nil {
				ctxlog.FromContext(r.Context()).WithError(err).Debug("health check request rejected")
			}
		},
	})

	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.client = client
	h.router = mux
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mtx.RLock()
	router := h.router
	h.mtx.RUnlock()
	router.ServeHTTP(w, r)
}

// CheckHealth implements service.Handler. It does not contact LSF:
// the service can usefully start (and report "failed" queries) while
// the scheduler is down.
func (h *Handler) CheckHealth() error {
	h.mtx.RLock()
	defer h.mtx.RUnlock()
	if h.router == nil {
		return errors.New("not configured")
	}
	return nil
}

// checkHealth reports whether bhosts can be run and produces
// readable output.
func (c *Client) checkHealth(ctx context.Context) error {
	res, err := c.QueryComputeNodes(ctx, NodeFilter{})
	if err != nil {
		return err
	}
	if res.Status == StatusExecutionFailed {
		return res.Err
	}
	return nil
}

func requireToken(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			http.Error(w, "Management API authentication is not configured", http.StatusForbidden)
			return
		}
		ah := r.Header.Get("Authorization")
		if ah == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		if ah != "Bearer "+token {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) serveNodes(client *Client, w http.ResponseWriter, r *http.Request) {
	filter := NodeFilter{
		Hostname: r.FormValue("hostname"),
		JobState: r.FormValue("job_state"),
	}
	res, err := client.QueryComputeNodes(r.Context(), filter)
	h.respond(w, r, res.Status, res.Err, err, res.Report)
}

func (h *Handler) serveJobs(client *Client, w http.ResponseWriter, r *http.Request) {
	filter := JobFilter{
		Hostname: r.FormValue("hostname"),
		JobState: r.FormValue("job_state"),
	}
	res, err := client.QueryJobs(r.Context(), filter)
	h.respond(w, r, res.Status, res.Err, err, res.Report)
}

func (h *Handler) servePendingJobs(client *Client, w http.ResponseWriter, r *http.Request) {
	var filter PendingFilter
	if s := r.FormValue("max_slots"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid max_slots %q", s))
			return
		}
		filter.MaxSlots = n
	}
	filter.SkipIfState = r.FormValue("skip_if_state")
	filter.LogPendingJobs = isTrue(r.FormValue("log_pending_jobs"))
	res, err := client.QueryPendingJobs(r.Context(), filter)
	h.respond(w, r, res.Status, res.Err, err, res.Report)
}

// respond writes report as JSON, or an error response if the query
// could not produce one (or, with strict=true, if the command
// failed).
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status QueryStatus, execErr, parseErr error, report interface{}) {
	if parseErr != nil {
		ctxlog.FromContext(r.Context()).WithError(parseErr).Warn("unreadable scheduler output")
		w.Header().Set(StatusHeader, "malformed")
		writeError(w, http.StatusBadGateway, parseErr)
		return
	}
	w.Header().Set(StatusHeader, status.String())
	if status == StatusExecutionFailed && isTrue(r.FormValue("strict")) {
		writeError(w, http.StatusServiceUnavailable, execErr)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(report)
	if err != nil {
		ctxlog.FromContext(r.Context()).WithError(err).Warn("error writing response")
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func isTrue(s string) bool {
	ok, _ := strconv.ParseBool(s)
	return ok
}
