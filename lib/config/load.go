// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/sirupsen/logrus"
)

type Loader struct {
	Logger logrus.FieldLogger

	// Path of the site config file, or "-" for stdin.
	Path string

	stdin io.Reader
}

// NewLoader returns a new Loader with Path set to the default config
// file location (or $LSFQUERY_CONFIG if set).
//
// If stdin is nil, a "-" Path is treated as an empty config.
func NewLoader(stdin io.Reader, logger logrus.FieldLogger) *Loader {
	ldr := &Loader{stdin: stdin, Logger: logger}
	if logger == nil {
		ldr.Logger = logrus.New()
	}
	ldr.Path = DefaultConfigFile
	if p := os.Getenv("LSFQUERY_CONFIG"); p != "" {
		ldr.Path = p
	}
	return ldr
}

// SetupFlags configures a flagset so arguments like -config X can be
// used to change the loader's Path.
//
//	ldr := NewLoader(os.Stdin, logger)
//	flagset := flag.NewFlagSet("", flag.ContinueOnError)
//	ldr.SetupFlags(flagset)
//	// ldr.Path == "/etc/lsfquery/config.yml"
//	flagset.Parse([]string{"-config", "/tmp/c.yaml"})
//	// ldr.Path == "/tmp/c.yaml"
func (ldr *Loader) SetupFlags(flagset *flag.FlagSet) {
	flagset.StringVar(&ldr.Path, "config", ldr.Path, "Site configuration `file` (default may be overridden by setting an LSFQUERY_CONFIG environment variable)")
}

func (ldr *Loader) loadBytes(path string) ([]byte, error) {
	if path == "-" {
		if ldr.stdin == nil {
			return nil, nil
		}
		return io.ReadAll(ldr.stdin)
	}
	buf, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && path == DefaultConfigFile {
		ldr.Logger.WithField("Path", path).Debug("site config file not found, using defaults")
		return nil, nil
	}
	return buf, err
}

// Load reads the built-in defaults, then the site config file on top
// of them, and checks the result.
func (ldr *Loader) Load() (*Config, error) {
	buf, err := ldr.loadBytes(ldr.Path)
	if err != nil {
		return nil, err
	}
	return ldr.load(buf)
}

func (ldr *Loader) load(buf []byte) (*Config, error) {
	var cfg Config
	err := yaml.Unmarshal(DefaultYAML, &cfg)
	if err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	if len(buf) > 0 {
		err = yaml.Unmarshal(buf, &cfg)
		if err != nil {
			return nil, fmt.Errorf("loading config %s: %w", ldr.Path, err)
		}
		err = ldr.logExtraKeys(buf)
		if err != nil {
			return nil, err
		}
	}
	err = cfg.check()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", ldr.Path, err)
	}
	return &cfg, nil
}

// logExtraKeys logs a warning for each key in the site config that
// does not correspond to any key in the defaults.
func (ldr *Loader) logExtraKeys(buf []byte) error {
	var expected, supplied map[string]interface{}
	if err := yamlToMap(DefaultYAML, &expected); err != nil {
		return err
	}
	if err := yamlToMap(buf, &supplied); err != nil {
		return err
	}
	for _, key := range extraKeys(expected, supplied, "") {
		ldr.Logger.Warnf("unknown config key %s", key)
	}
	return nil
}

func yamlToMap(buf []byte, dst *map[string]interface{}) error {
	j, err := yaml.YAMLToJSON(buf)
	if err != nil {
		return err
	}
	return json.Unmarshal(j, dst)
}

func extraKeys(expected, supplied map[string]interface{}, prefix string) []string {
	var extra []string
	for k, vsupp := range supplied {
		var vexp interface{}
		found := false
		for ek, ev := range expected {
			if strings.EqualFold(ek, k) {
				vexp, found = ev, true
				break
			}
		}
		if !found {
			extra = append(extra, prefix+k)
			continue
		}
		if msupp, ok := vsupp.(map[string]interface{}); ok {
			if mexp, ok := vexp.(map[string]interface{}); ok {
				extra = append(extra, extraKeys(mexp, msupp, prefix+k+".")...)
			}
		}
	}
	sort.Strings(extra)
	return extra
}

func (cfg *Config) check() error {
	switch cfg.SystemLogs.Format {
	case "text", "json":
	default:
		return fmt.Errorf("SystemLogs.Format %q: must be \"text\" or \"json\"", cfg.SystemLogs.Format)
	}
	if _, err := logrus.ParseLevel(cfg.SystemLogs.LogLevel); err != nil {
		return fmt.Errorf("SystemLogs.LogLevel: %w", err)
	}
	if strings.TrimSpace(cfg.LSF.BjobsCommand) == "" {
		return errors.New("LSF.BjobsCommand must not be empty")
	}
	if strings.TrimSpace(cfg.LSF.BhostsCommand) == "" {
		return errors.New("LSF.BhostsCommand must not be empty")
	}
	if cfg.LSF.CommandTimeout < 0 {
		return errors.New("LSF.CommandTimeout must not be negative")
	}
	if cfg.Service.MaxConcurrentRequests < 0 {
		return errors.New("Service.MaxConcurrentRequests must not be negative")
	}
	return nil
}
