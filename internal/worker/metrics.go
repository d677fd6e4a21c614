// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aibor/dutrun/internal/upload"
)

const metricsNamespace = "dutrun_worker"

// Upload results as used in the uploads metric.
const (
	uploadStored = "stored"
	uploadCached = "cached"
	uploadFailed = "failed"
)

type metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	flashBytes prometheus.Counter
	uploads    *prometheus.CounterVec
	sessions   prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Device operations by operation and result.",
		}, []string{"operation", "result"}),
		flashBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "flash_bytes_total",
			Help:      "Image bytes received for flashing.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "uploads_total",
			Help:      "Artifact uploads by result.",
		}, []string{"result"}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_sessions",
			Help:      "Currently connected run sessions.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.operations,
		m.flashBytes,
		m.uploads,
		m.sessions,
	)

	return m
}

func (m *metrics) observe(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}

	m.operations.WithLabelValues(operation, result).Inc()
}

func (m *metrics) observeUpload(received upload.Received) {
	result := uploadStored

	switch {
	case received.Err != nil:
		result = uploadFailed
	case received.Cached:
		result = uploadCached
	}

	m.uploads.WithLabelValues(result).Inc()
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
