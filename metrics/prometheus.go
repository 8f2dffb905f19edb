// Copyright 2019 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package metrics

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Collector exposes a Metrics instance to a Prometheus registry. Timers and
// counters become counters, histograms become summaries.
type Collector struct {
	inner Metrics
}

// NewPrometheusCollector returns a prometheus.Collector that reports m.
func NewPrometheusCollector(m Metrics) *Collector {
	return &Collector{inner: m}
}

// Describe implements prometheus.Collector. The metric set is only known at
// collection time, so descriptors are derived from a collection.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	prometheus.DescribeByCollect(c, ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	all := c.inner.All()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, key := range keys {
		name := sanitize(key)
		switch v := all[key].(type) {
		case int64:
			desc := prometheus.NewDesc(name, "Accumulated time in nanoseconds.", nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
		case uint64:
			desc := prometheus.NewDesc(name, "Number of occurrences.", nil, nil)
			ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v))
		case map[string]any:
			count, _ := v["count"].(int64)
			mean, _ := v["mean"].(float64)
			quantiles := map[float64]float64{}
			for i, p := range percentiles {
				if q, ok := v[percentileNames[i]].(float64); ok {
					quantiles[p] = q
				}
			}
			desc := prometheus.NewDesc(name, "Sampled distribution.", nil, nil)
			ch <- prometheus.MustNewConstSummary(desc, uint64(count), mean*float64(count), quantiles)
		}
	}
}

// WritePrometheus writes m to w in the Prometheus text exposition format.
func WritePrometheus(w io.Writer, m Metrics) error {
	registry := prometheus.NewPedanticRegistry()
	if err := registry.Register(NewPrometheusCollector(m)); err != nil {
		return err
	}
	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, f := range families {
		if _, err := expfmt.MetricFamilyToText(w, f); err != nil {
			return err
		}
	}
	return nil
}

func sanitize(key string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			return r
		}
		return '_'
	}, key)
}
