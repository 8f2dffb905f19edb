// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package tracing emits OpenTelemetry spans for policy evaluation. Without a
// configured provider the global no-op provider is used and spans cost
// nothing.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName is the name reported by tracers created here.
const InstrumentationName = "github.com/regolith-dev/regolith"

// Attribute keys attached to evaluation spans.
const (
	QueryKey   = attribute.Key("regolith.query")
	PathKey    = attribute.Key("regolith.path")
	VersionKey = attribute.Key("regolith.version")
	ResultsKey = attribute.Key("regolith.results")
)

// Tracer wraps an OpenTelemetry tracer.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer backed by tp. If tp is nil, the globally
// registered provider is used.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(InstrumentationName)}
}

// SetProvider registers tp as the global provider.
func SetProvider(tp trace.TracerProvider) {
	otel.SetTracerProvider(tp)
}

// Start opens a span named name. The caller must call End on the returned
// span.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
	return ctx, &Span{span: span}
}

// Span is an open evaluation span.
type Span struct {
	span trace.Span
}

// SetAttributes adds attrs to the span.
func (s *Span) SetAttributes(attrs ...attribute.KeyValue) {
	s.span.SetAttributes(attrs...)
}

// End closes the span. A non-nil err is recorded and marks the span failed.
func (s *Span) End(err error) {
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	}
	s.span.End()
}
