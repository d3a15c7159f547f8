// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"net/http"
	"time"

	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/sirupsen/logrus"
)

// LogRequests wraps an http.Handler, logging each request and
// response via logger. The per-request logger is attached to the
// request context, so handlers can retrieve it with
// ctxlog.FromContext.
func LogRequests(logger logrus.FieldLogger, h http.Handler) http.Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return http.HandlerFunc(func(wrapped http.ResponseWriter, req *http.Request) {
		w := &responseTimer{ResponseWriter: wrapped}
		lgr := logger.WithFields(logrus.Fields{
			"RequestID":       req.Header.Get("X-Request-Id"),
			"remoteAddr":      req.RemoteAddr,
			"reqForwardedFor": req.Header.Get("X-Forwarded-For"),
			"reqMethod":       req.Method,
			"reqPath":         req.URL.Path,
			"reqQuery":        req.URL.RawQuery,
		})
		req = req.WithContext(ctxlog.Context(req.Context(), lgr))
		tStart := time.Now()
		lgr.Debug("request")
		defer func() {
			respCode := w.status
			if respCode == 0 {
				respCode = http.StatusOK
			}
			lgr.WithFields(logrus.Fields{
				"timeTotal":      time.Since(tStart).Seconds(),
				"respStatusCode": respCode,
				"respStatus":     http.StatusText(respCode),
				"respBytes":      w.bytes,
			}).Info("response")
		}()
		h.ServeHTTP(w, req)
	})
}

type responseTimer struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rt *responseTimer) WriteHeader(code int) {
	if rt.status == 0 {
		rt.status = code
	}
	rt.ResponseWriter.WriteHeader(code)
}

func (rt *responseTimer) Write(p []byte) (int, error) {
	if rt.status == 0 {
		rt.status = http.StatusOK
	}
	n, err := rt.ResponseWriter.Write(p)
	rt.bytes += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying ResponseWriter
// does.
func (rt *responseTimer) Flush() {
	if f, ok := rt.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
