/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package telemetry exposes Prometheus metrics for the host process.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the process metric set on its own registry, so tests
// can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	CompilesTotal      *prometheus.CounterVec
	UploadsTotal       *prometheus.CounterVec
	RunsTotal          *prometheus.CounterVec
	RunDurationSeconds prometheus.Histogram
	LinkErrorsTotal    prometheus.Counter

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New builds the metric set and registers it with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		CompilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volund_compiles_total",
			Help: "Profile compilations by outcome.",
		}, []string{"outcome"}),
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volund_uploads_total",
			Help: "Profile uploads to the device by outcome.",
		}, []string{"outcome"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volund_runs_total",
			Help: "Device runs by result (ok, stopped, error, timeout).",
		}, []string{"result"}),
		RunDurationSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "volund_run_duration_seconds",
			Help:    "Wall time of device runs from RUN ack to completion.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		LinkErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "volund_link_errors_total",
			Help: "Device link failures (timeouts, write errors).",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "volund_http_requests_total",
			Help: "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "volund_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CompilesTotal,
		m.UploadsTotal,
		m.RunsTotal,
		m.RunDurationSeconds,
		m.LinkErrorsTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)
	return m
}

// Handler exposes the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
