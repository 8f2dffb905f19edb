// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package metrics contains helpers for performance metric management inside the interpreter.
package metrics

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

// Well-known metric names.
const (
	ModuleParse   = "regolith_module_parse"
	ModuleCompile = "regolith_module_compile"
	QueryParse    = "regolith_query_parse"
	QueryCompile  = "regolith_query_compile"
	QueryEval     = "regolith_query_eval"
	QueryCacheHit = "regolith_query_cache_hit"
	RuleEvals     = "regolith_rule_evals"
	DataParse     = "regolith_data_parse"
	LoadFiles     = "regolith_load_files"
)

// Info contains attributes describing the underlying metrics provider.
type Info struct {
	Name string `json:"name"`
}

// Metrics defines the interface for a collection of performance metrics.
type Metrics interface {
	Info() Info
	Timer(name string) Timer
	Histogram(name string) Histogram
	Counter(name string) Counter
	All() map[string]any
	Clear()
	json.Marshaler
}

type metrics struct {
	mtx        sync.Mutex
	timers     map[string]Timer
	histograms map[string]Histogram
	counters   map[string]Counter
}

// New returns a new Metrics object.
func New() Metrics {
	m := &metrics{}
	m.Clear()
	return m
}

// NoOp returns a Metrics implementation that records nothing.
func NoOp() Metrics {
	return noOp
}

func (*metrics) Info() Info {
	return Info{Name: "<built-in>"}
}

// String returns the metrics as space separated key:value pairs sorted by key.
func (m *metrics) String() string {
	all := m.All()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	buf := make([]string, len(keys))
	for i, k := range keys {
		buf[i] = fmt.Sprintf("%v:%v", k, all[k])
	}
	return strings.Join(buf, " ")
}

func (m *metrics) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.All())
}

func (m *metrics) Timer(name string) Timer {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	t, ok := m.timers[name]
	if !ok {
		t = &timer{}
		m.timers[name] = t
	}
	return t
}

func (m *metrics) Histogram(name string) Histogram {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	h, ok := m.histograms[name]
	if !ok {
		h = newHistogram()
		m.histograms[name] = h
	}
	return h
}

func (m *metrics) Counter(name string) Counter {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	c, ok := m.counters[name]
	if !ok {
		c = &counter{}
		m.counters[name] = c
	}
	return c
}

// All returns every metric keyed by its kind-qualified name: timer_<name>_ns,
// histogram_<name> and counter_<name>.
func (m *metrics) All() map[string]any {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	result := make(map[string]any, len(m.timers)+len(m.histograms)+len(m.counters))
	for name, t := range m.timers {
		result[TimerKey(name)] = t.Value()
	}
	for name, h := range m.histograms {
		result[HistogramKey(name)] = h.Value()
	}
	for name, c := range m.counters {
		result[CounterKey(name)] = c.Value()
	}
	return result
}

func (m *metrics) Clear() {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.timers = map[string]Timer{}
	m.histograms = map[string]Histogram{}
	m.counters = map[string]Counter{}
}

// TimerKey returns the key a timer is reported under by All.
func TimerKey(name string) string { return "timer_" + name + "_ns" }

// HistogramKey returns the key a histogram is reported under by All.
func HistogramKey(name string) string { return "histogram_" + name }

// CounterKey returns the key a counter is reported under by All.
func CounterKey(name string) string { return "counter_" + name }

// Timer defines the interface for a restartable timer that accumulates elapsed
// time.
type Timer interface {
	Value() any
	Int64() int64
	// Start or resume the timer.
	Start()
	// Stop the timer and accumulate the nanoseconds since it was last started.
	Stop() int64
}

type timer struct {
	mtx   sync.Mutex
	start time.Time
	value int64
}

func (t *timer) Start() {
	t.mtx.Lock()
	t.start = time.Now()
	t.mtx.Unlock()
}

func (t *timer) Stop() int64 {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.start.IsZero() {
		return 0
	}
	delta := time.Since(t.start).Nanoseconds()
	t.value += delta
	t.start = time.Time{}
	return delta
}

func (t *timer) Value() any {
	return t.Int64()
}

func (t *timer) Int64() int64 {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.value
}

// Histogram defines the interface for a histogram with fixed percentiles.
type Histogram interface {
	Value() any
	Update(int64)
}

type histogram struct {
	hist gometrics.Histogram
}

var percentiles = []float64{0.5, 0.75, 0.9, 0.95, 0.99, 0.999}

var percentileNames = []string{"median", "75%", "90%", "95%", "99%", "99.9%"}

func newHistogram() Histogram {
	return &histogram{gometrics.NewHistogram(gometrics.NewExpDecaySample(1028, 0.015))}
}

func (h *histogram) Update(v int64) {
	h.hist.Update(v)
}

func (h *histogram) Value() any {
	snap := h.hist.Snapshot()
	values := map[string]any{
		"count":  snap.Count(),
		"min":    snap.Min(),
		"max":    snap.Max(),
		"mean":   snap.Mean(),
		"stddev": snap.StdDev(),
	}
	for i, p := range snap.Percentiles(percentiles) {
		values[percentileNames[i]] = p
	}
	return values
}

// Counter defines the interface for a monotonic increasing counter.
type Counter interface {
	Value() any
	Incr()
	Add(n uint64)
}

type counter struct {
	c atomic.Uint64
}

func (c *counter) Incr() {
	c.c.Add(1)
}

func (c *counter) Add(n uint64) {
	c.c.Add(n)
}

func (c *counter) Value() any {
	return c.c.Load()
}

// Statistics returns histogram statistics for the given samples.
func Statistics(num ...int64) any {
	h := newHistogram()
	for _, n := range num {
		h.Update(n)
	}
	return h.Value()
}

type noOpMetrics struct{}
type noOpTimer struct{}
type noOpHistogram struct{}
type noOpCounter struct{}

var noOp = &noOpMetrics{}

func (*noOpMetrics) Info() Info                 { return Info{Name: "<built-in no-op>"} }
func (*noOpMetrics) Timer(string) Timer         { return noOpTimer{} }
func (*noOpMetrics) Histogram(string) Histogram { return noOpHistogram{} }
func (*noOpMetrics) Counter(string) Counter     { return noOpCounter{} }
func (*noOpMetrics) All() map[string]any        { return nil }
func (*noOpMetrics) Clear()                     {}
func (*noOpMetrics) MarshalJSON() ([]byte, error) {
	return []byte(`{"name": "<built-in no-op>"}`), nil
}

func (noOpTimer) Start()       {}
func (noOpTimer) Stop() int64  { return 0 }
func (noOpTimer) Value() any   { return 0 }
func (noOpTimer) Int64() int64 { return 0 }

func (noOpHistogram) Update(int64) {}
func (noOpHistogram) Value() any   { return nil }

func (noOpCounter) Incr()      {}
func (noOpCounter) Add(uint64) {}
func (noOpCounter) Value() any { return 0 }
