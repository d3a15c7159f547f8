// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultConfigFile is the site configuration file read when neither
// -config nor LSFQUERY_CONFIG says otherwise.
const DefaultConfigFile = "/etc/lsfquery/config.yml"

// DefaultYAML holds the built-in defaults, which are loaded before the
// site configuration file.
//
//go:embed config.default.yml
var DefaultYAML []byte

type Config struct {
	SystemLogs struct {
		Format   string
		LogLevel string
	}
	ManagementToken string
	LSF             LSF
	Service         Service
}

// LSF configures how the LSF command line tools are invoked.
type LSF struct {
	BjobsCommand   string
	BhostsCommand  string
	SudoUser       string
	CommandTimeout Duration
}

// Service configures the HTTP service started by "lsfquery serve".
type Service struct {
	Listen                string
	MaxConcurrentRequests int
	ShutdownTimeout       Duration
}

// Duration is time.Duration but looks like "12s" in JSON and YAML,
// rather than a number of nanoseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		return d.Set(s)
	}
	if string(data) == "0" {
		*d = 0
		return nil
	}
	// Mimic error message returned by ParseDuration for a number
	// without units.
	return fmt.Errorf("missing unit in duration %s", data)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// String returns a format that time.ParseDuration accepts.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// Duration returns a time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Set implements flag.Value.
func (d *Duration) Set(s string) error {
	dur, err := time.ParseDuration(s)
	*d = Duration(dur)
	return err
}
