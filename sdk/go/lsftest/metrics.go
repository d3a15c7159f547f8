// Copyright (C) The Arvados Authors. All rights reserved.
//
// SPDX-License-Identifier: Apache-2.0

package lsftest

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"gopkg.in/check.v1"
)

// GatherMetricsAsString returns everything in reg, in Prometheus text
// exposition format.
func GatherMetricsAsString(reg *prometheus.Registry) string {
	buf := bytes.NewBuffer(nil)
	enc := expfmt.NewEncoder(buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	got, _ := reg.Gather()
	for _, mf := range got {
		enc.Encode(mf)
	}
	return buf.String()
}

// GetMetricValue returns the current value of the indicated metric,
// or 0 if no such metric has been recorded yet. Label names and values
// are given in labels, as in:
//
//	GetMetricValue(c, reg, "lsfquery_commands_total", "command", "bjobs", "status", "ok")
func GetMetricValue(c *check.C, reg *prometheus.Registry, name string, labels ...string) float64 {
	gather, err := reg.Gather()
	c.Assert(err, check.IsNil)
	for _, mf := range gather {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if !labelsMatch(m.Label, labels) {
				continue
			}
			switch {
			case m.Counter != nil:
				return m.GetCounter().GetValue()
			case m.Gauge != nil:
				return m.GetGauge().GetValue()
			case m.Summary != nil:
				return float64(m.GetSummary().GetSampleCount())
			case m.Untyped != nil:
				return m.GetUntyped().GetValue()
			}
			c.Fatalf("GetMetricValue: unsupported metric type: %s", m)
		}
	}
	return 0
}

func labelsMatch(have []*dto.LabelPair, want []string) bool {
	if 2*len(have) != len(want) {
		return false
	}
	for _, lp := range have {
		found := false
		for i := 0; i+1 < len(want); i += 2 {
			if lp.GetName() == want[i] && lp.GetValue() == want[i+1] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
