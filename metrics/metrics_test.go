// Copyright 2017 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

package metrics

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestMetricsTimer(t *testing.T) {
	m := New()
	m.Timer("foo").Start()
	time.Sleep(time.Millisecond)
	m.Timer("foo").Stop()
	if m.All()["timer_foo_ns"] == int64(0) {
		t.Fatalf("Expected foo timer to be non-zero: %v", m.All())
	}
	m.Clear()

	if len(m.All()) > 0 {
		t.Fatalf("Expected metrics to be cleared, but found %v", m.All())
	}
}

func TestMetricsTimerDoubleStop(t *testing.T) {
	m := New()
	m.Timer("foo").Start()
	time.Sleep(time.Millisecond)
	m.Timer("foo").Stop()
	t1 := m.Timer("foo").Int64()

	time.Sleep(time.Millisecond)
	if delta := m.Timer("foo").Stop(); delta != 0 {
		t.Fatalf("Expected second stop to report zero, got %v", delta)
	}
	if t2 := m.Timer("foo").Int64(); t1 != t2 {
		t.Fatalf("Unexpected difference in stopped timer values: %v, %v", t1, t2)
	}
}

func TestMetricsCounter(t *testing.T) {
	m := New()
	m.Counter(RuleEvals).Incr()
	m.Counter(RuleEvals).Add(4)
	if v := m.All()["counter_regolith_rule_evals"]; v != uint64(5) {
		t.Fatalf("Expected counter value 5 but got %v", v)
	}
}

func TestMetricsHistogram(t *testing.T) {
	m := New()
	for i := int64(1); i <= 10; i++ {
		m.Histogram("h").Update(i)
	}
	v := m.All()["histogram_h"].(map[string]any)
	if v["count"] != int64(10) || v["max"] != int64(10) || v["min"] != int64(1) {
		t.Fatalf("Unexpected histogram: %v", v)
	}
}

func TestMetricsString(t *testing.T) {
	m := New()
	m.Counter("b").Incr()
	m.Counter("a").Add(2)
	if s := m.(interface{ String() string }).String(); s != "counter_a:2 counter_b:1" {
		t.Fatalf("Unexpected string: %q", s)
	}
}

func TestMetricsJSON(t *testing.T) {
	m := New()
	m.Counter("x").Incr()
	bs, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != `{"counter_x":1}` {
		t.Fatalf("Unexpected JSON: %s", bs)
	}
}

func TestNoOp(t *testing.T) {
	m := NoOp()
	m.Timer("x").Start()
	m.Counter("y").Incr()
	if m.Timer("x").Stop() != 0 || len(m.All()) != 0 {
		t.Fatalf("Expected no-op metrics to record nothing: %v", m.All())
	}
}

func TestWritePrometheus(t *testing.T) {
	m := New()
	m.Counter(RuleEvals).Add(3)
	m.Timer(QueryEval).Start()
	m.Timer(QueryEval).Stop()
	m.Histogram("latency").Update(7)

	var buf bytes.Buffer
	if err := WritePrometheus(&buf, m); err != nil {
		t.Fatal(err)
	}

	for _, exp := range []string{
		"counter_regolith_rule_evals 3",
		"# TYPE timer_regolith_query_eval_ns counter",
		"# TYPE histogram_latency summary",
		"histogram_latency_count 1",
	} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("Expected output to contain %q:\n%s", exp, buf.String())
		}
	}
}
