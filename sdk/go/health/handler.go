// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package health serves token-protected health check endpoints.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/julienschmidt/httprouter"
)

// Func is a health-check function: it returns nil when healthy, an
// error when not.
type Func func(ctx context.Context) error

// Routes is a map of check name to health-check function.
type Routes map[string]Func

// Handler is an http.Handler that responds to authenticated
// health-check requests with JSON responses like {"health":"OK"} or
// {"health":"ERROR","error":"error text"}.
//
// Fields of a Handler should not be changed after the Handler is
// first used.
type Handler struct {
	setupOnce sync.Once
	router    *httprouter.Router

	// Authentication token. If empty, all requests will return 404.
	Token string

	// Route prefix, typically "/_health/".
	Prefix string

	// Map of check names to health-check Func. The prefix is
	// omitted: Routes["foo"] is the health check invoked by a
	// request to "{Prefix}foo".
	//
	// If "ping" is not listed here, it will be added
	// automatically and will always return a "healthy" response.
	Routes Routes

	// If non-zero, a check that has not returned after this long
	// is reported as unhealthy. The Func's context is cancelled at
	// the same time.
	Timeout time.Duration

	// If non-nil, Log is called after handling each request. The
	// error argument is nil if the request was successfully
	// authenticated and served, even if the health check itself
	// failed.
	Log func(*http.Request, error)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.setupOnce.Do(h.setup)
	h.router.ServeHTTP(w, r)
}

func (h *Handler) setup() {
	h.router = httprouter.New()
	h.router.RedirectTrailingSlash = false
	h.router.RedirectFixedPath = false
	prefix := h.Prefix
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	h.router.Handler(http.MethodGet, prefix+":check", http.HandlerFunc(h.serveCheck))
	h.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.fail(w, r, errNotFound, http.StatusNotFound, "not found")
	})
}

var (
	healthyBody     = []byte(`{"health":"OK"}` + "\n")
	errNotFound     = errors.New(http.StatusText(http.StatusNotFound))
	errUnauthorized = errors.New(http.StatusText(http.StatusUnauthorized))
	errForbidden    = errors.New(http.StatusText(http.StatusForbidden))
	errTimeout      = errors.New("health check timed out")
)

func (h *Handler) lookup(name string) (Func, bool) {
	if fn, ok := h.Routes[name]; ok {
		return fn, true
	}
	if name == "ping" {
		return func(context.Context) error { return nil }, true
	}
	return nil, false
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, code int, msg string) {
	http.Error(w, msg, code)
	if h.Log != nil {
		h.Log(r, err)
	}
}

func (h *Handler) serveCheck(w http.ResponseWriter, r *http.Request) {
	name := httprouter.ParamsFromContext(r.Context()).ByName("check")
	fn, ok := h.lookup(name)
	if !ok {
		h.fail(w, r, errNotFound, http.StatusNotFound, "not found")
		return
	}
	if h.Token == "" {
		h.fail(w, r, errNotFound, http.StatusNotFound, "disabled")
		return
	}
	if ah := r.Header.Get("Authorization"); ah == "" {
		h.fail(w, r, errUnauthorized, http.StatusUnauthorized, "authorization required")
		return
	} else if ah != "Bearer "+h.Token {
		h.fail(w, r, errForbidden, http.StatusForbidden, "authorization error")
		return
	}
	var err error
	defer func() {
		if h.Log != nil {
			h.Log(r, err)
		}
	}()
	w.Header().Set("Content-Type", "application/json")
	if checkErr := h.run(r.Context(), fn); checkErr == nil {
		_, err = w.Write(healthyBody)
	} else {
		err = json.NewEncoder(w).Encode(map[string]string{
			"health": "ERROR",
			"error":  checkErr.Error(),
		})
	}
}

func (h *Handler) run(ctx context.Context, fn Func) error {
	if h.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, h.Timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errTimeout
	}
	return err
}
