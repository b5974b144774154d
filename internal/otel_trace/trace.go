/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package otel_trace provides optional OpenTelemetry tracing for operator
// commands and process lifecycle events.
// otel_trace 包为操作员命令和进程生命周期事件提供可选的 OpenTelemetry 追踪。
package otel_trace

import (
	"context"
	"fmt"
	"sync"

	"github.com/seatunnel/procadmin/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName names the tracer used by procadmin
// InstrumentationName 是 procadmin 使用的 tracer 名称
const InstrumentationName = "github.com/seatunnel/procadmin"

var (
	mu       sync.RWMutex
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer("noop")
	provider *sdktrace.TracerProvider
	enabled  bool
)

// Init installs a tracer provider exporting over OTLP gRPC when cfg
// enables tracing, and a noop tracer otherwise.
// Init 在启用追踪时安装通过 OTLP gRPC 导出的 tracer provider，否则使用空操作 tracer。
func Init(ctx context.Context, cfg config.TraceConfig) error {
	if !cfg.Enabled {
		Reset()
		return nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	install(sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(newResource(cfg.ServiceName)),
	))
	return nil
}

// InitWithExporter installs a provider that exports spans synchronously
// InitWithExporter 安装同步导出 span 的 provider
func InitWithExporter(exporter sdktrace.SpanExporter, serviceName string) {
	install(sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(newResource(serviceName)),
	))
}

func install(tp *sdktrace.TracerProvider) {
	otel.SetTextMapPropagator(newPropagator())
	otel.SetTracerProvider(tp)

	mu.Lock()
	previous := provider
	provider = tp
	tracer = tp.Tracer(InstrumentationName)
	enabled = true
	mu.Unlock()

	if previous != nil {
		_ = previous.Shutdown(context.Background())
	}
}

func newResource(serviceName string) *sdkresource.Resource {
	if serviceName == "" {
		serviceName = config.DefaultTraceServiceName
	}
	return sdkresource.NewSchemaless(attribute.String("service.name", serviceName))
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// IsEnabled returns whether tracing is enabled.
// IsEnabled 返回追踪是否已启用。
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Shutdown flushes pending spans and falls back to the noop tracer
// Shutdown 刷新待导出的 span 并回退到空操作 tracer
func Shutdown(ctx context.Context) error {
	mu.Lock()
	tp := provider
	provider = nil
	tracer = noop.NewTracerProvider().Tracer("noop")
	enabled = false
	mu.Unlock()

	if tp == nil {
		return nil
	}
	return tp.Shutdown(ctx)
}

// Reset discards the active provider without flushing
// Reset 丢弃当前 provider 而不刷新
func Reset() {
	mu.Lock()
	provider = nil
	tracer = noop.NewTracerProvider().Tracer("noop")
	enabled = false
	mu.Unlock()
}

// Start starts a span on the procadmin tracer
// Start 在 procadmin tracer 上启动 span
func Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	mu.RLock()
	t := tracer
	mu.RUnlock()
	return t.Start(ctx, name, opts...)
}
