// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

// Package service provides a cmd.Handler that brings up a system service.
package service

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"io"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"reflect"
	"syscall"

	"github.com/clusteradapters/lsfquery/lib/cmd"
	"github.com/clusteradapters/lsfquery/lib/config"
	"github.com/clusteradapters/lsfquery/sdk/go/ctxlog"
	"github.com/coreos/go-systemd/daemon"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

type Handler interface {
	http.Handler
	CheckHealth() error
	// ApplyConfig is called with the new configuration after
	// the config file changes on disk.
	ApplyConfig(*config.Config)
}

type NewHandlerFunc func(_ context.Context, _ *config.Config, registry *prometheus.Registry) Handler

type command struct {
	newHandler NewHandlerFunc
	ctx        context.Context // enables tests to shutdown service; no public API yet

	// (for testing) called with the listening address once the
	// server is accepting connections.
	ready func(addr string)
}

// Command returns a cmd.Handler that loads site config, calls
// newHandler with the resulting config, and brings up an http server
// with the returned handler.
//
// The handler is wrapped with server middleware that logs each
// request and response.
func Command(newHandler NewHandlerFunc) cmd.Handler {
	return &command{
		newHandler: newHandler,
		ctx:        context.Background(),
	}
}

func (c *command) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	log := ctxlog.New(stderr, "json", "info")

	var err error
	defer func() {
		if err != nil {
			log.WithError(err).Error("exiting")
		}
	}()

	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)

	loader := config.NewLoader(stdin, log)
	loader.SetupFlags(flags)

	versionFlag := flags.Bool("version", false, "Write version information to stdout and exit 0")
	pprofAddr := flags.String("pprof", "", "Serve Go profile data at `[addr]:port`")
	listenAddr := flags.String("listen", "", "Listen at `[addr]:port` instead of the configured Service.Listen address")
	if ok, code := cmd.ParseFlags(flags, prog, args, "", stderr); !ok {
		return code
	} else if *versionFlag {
		return cmd.Version.RunCommand(prog, args, stdin, stdout, stderr)
	}

	if *pprofAddr != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	cfg, err := loader.Load()
	if err != nil {
		return 1
	}
	if *listenAddr != "" {
		cfg.Service.Listen = *listenAddr
	}

	// Now that we've read the config, replace the bootstrap
	// logger with a new one according to the logging config.
	log = ctxlog.New(stderr, cfg.SystemLogs.Format, cfg.SystemLogs.LogLevel)
	logger := log.WithField("PID", os.Getpid())

	ctx, cancel := signal.NotifyContext(c.ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = ctxlog.Context(ctx, logger)

	reg := prometheus.NewRegistry()

	// lsfquery_version_running{version="1.2.3~4"} 1.0
	mVersion := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "lsfquery",
		Name:      "version_running",
		Help:      "Indicated version is running.",
	}, []string{"version"})
	mVersion.WithLabelValues(cmd.Version.String()).Set(1)
	reg.MustRegister(mVersion)

	handler := c.newHandler(ctx, cfg, reg)
	if err = handler.CheckHealth(); err != nil {
		return 1
	}

	ln, err := net.Listen("tcp", cfg.Service.Listen)
	if err != nil {
		return 1
	}
	if n := cfg.Service.MaxConcurrentRequests; n > 0 {
		ln = netutil.LimitListener(ln, n)
	}
	srv := &http.Server{
		Handler:     LogRequests(logger, handler),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	logger.WithFields(logrus.Fields{
		"Listen":  ln.Addr().String(),
		"Version": cmd.Version.String(),
	}).Info("listening")
	if _, err := daemon.SdNotify(false, "READY=1"); err != nil {
		logger.WithError(err).Errorf("error notifying init daemon")
	}
	if loader.Path != "-" {
		go watchConfig(ctx, logger, loader.Path, cfg, func(newcfg *config.Config) {
			if level, err := logrus.ParseLevel(newcfg.SystemLogs.LogLevel); err == nil {
				log.SetLevel(level)
			}
			handler.ApplyConfig(newcfg)
		})
	}

	served := make(chan error, 1)
	go func() {
		served <- srv.Serve(ln)
	}()
	if c.ready != nil {
		c.ready(ln.Addr().String())
	}
	select {
	case err = <-served:
		return 1
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancelShutdown := context.Background(), context.CancelFunc(func() {})
	if d := cfg.Service.ShutdownTimeout.Duration(); d > 0 {
		shutdownCtx, cancelShutdown = context.WithTimeout(shutdownCtx, d)
	}
	defer cancelShutdown()
	err = srv.Shutdown(shutdownCtx)
	if err != nil {
		return 1
	}
	if err = <-served; errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if err != nil {
		return 1
	}
	return 0
}

// watchConfig calls fn with the new configuration each time the file
// at cfgPath changes and still loads successfully. If there is no file
// at cfgPath (running on built-in defaults) there is nothing to watch.
func watchConfig(ctx context.Context, logger logrus.FieldLogger, cfgPath string, prevcfg *config.Config, fn func(*config.Config)) {
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		logger.WithField("Path", cfgPath).Debug("config file does not exist, not watching for changes")
		return
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithError(err).Error("fsnotify setup failed")
		return
	}
	defer watcher.Close()

	err = watcher.Add(cfgPath)
	if err != nil {
		logger.WithError(err).Error("fsnotify watcher failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.WithError(err).Warn("fsnotify watcher reported error")
		case _, ok := <-watcher.Events:
			if !ok {
				return
			}
			for len(watcher.Events) > 0 {
				<-watcher.Events
			}
			loader := config.NewLoader(&bytes.Buffer{}, &logrus.Logger{Out: io.Discard})
			loader.Path = cfgPath
			cfg, err := loader.Load()
			if err != nil {
				logger.WithError(err).Warn("error reloading config file after change detected; ignoring new config for now")
			} else if reflect.DeepEqual(cfg, prevcfg) {
				logger.Debug("config file changed but is still DeepEqual to the existing config")
			} else {
				logger.Info("config changed, applying")
				fn(cfg)
				prevcfg = cfg
			}
		}
	}
}
