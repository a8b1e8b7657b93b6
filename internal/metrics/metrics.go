// Copyright 2026 The Wormhole Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics carries the ambient observability surface spec.md §1
// scopes outside the core subsystems but never out of the ambient stack
// (SPEC_FULL.md §6): per-pod Prometheus counters/gauges for bytes moved,
// redundancy activity, and peer count. The teacher wires its own metrics
// through github.com/prometheus/client_golang (common/oc_metrics.go additionally
// carries an opencensus bridge this port does not need); this package keeps
// the one counter/gauge/histogram surface and drops the opencensus bridge,
// since nothing in SPEC_FULL.md exports traces.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PodMetrics is the set of Prometheus collectors one Pod registers and
// updates as FsInterface, NetworkInterface, and RedundancyWorker operate.
type PodMetrics struct {
	BytesRead       prometheus.Counter
	BytesWritten    prometheus.Counter
	OpsTotal        *prometheus.CounterVec
	OpsErrors       *prometheus.CounterVec
	PeerCount       prometheus.Gauge
	RedundancyRetry prometheus.Counter
	FilesUnderR     prometheus.Gauge
	FlushLatency    prometheus.Histogram
}

// NewPodMetrics builds and registers a PodMetrics under a pod-name label so
// a Service hosting several Pods can distinguish them on one registry.
func NewPodMetrics(reg prometheus.Registerer, podName string) *PodMetrics {
	labels := prometheus.Labels{"pod": podName}

	m := &PodMetrics{
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wormhole",
			Name:        "bytes_read_total",
			Help:        "Bytes served to applications via FsInterface.Read.",
			ConstLabels: labels,
		}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wormhole",
			Name:        "bytes_written_total",
			Help:        "Bytes accepted by FsInterface.Write.",
			ConstLabels: labels,
		}),
		OpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "wormhole",
			Name:        "fs_ops_total",
			Help:        "FsInterface operations by name.",
			ConstLabels: labels,
		}, []string{"op"}),
		OpsErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "wormhole",
			Name:        "fs_ops_errors_total",
			Help:        "FsInterface operations that returned an error, by name.",
			ConstLabels: labels,
		}, []string{"op"}),
		PeerCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "wormhole",
			Name:        "peers_connected",
			Help:        "Number of peers currently connected.",
			ConstLabels: labels,
		}),
		RedundancyRetry: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "wormhole",
			Name:        "redundancy_retries_total",
			Help:        "RedundancyWorker send retries issued.",
			ConstLabels: labels,
		}),
		FilesUnderR: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "wormhole",
			Name:        "files_under_redundancy_target",
			Help:        "Files whose host count is currently below R.",
			ConstLabels: labels,
		}),
		FlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "wormhole",
			Name:        "flush_latency_seconds",
			Help:        "Latency of FsInterface.Flush, including delta computation.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.BytesRead, m.BytesWritten, m.OpsTotal, m.OpsErrors,
		m.PeerCount, m.RedundancyRetry, m.FilesUnderR, m.FlushLatency,
	)
	return m
}

// ObserveOp records one FsInterface call, incrementing OpsTotal and, if err
// is non-nil, OpsErrors.
func (m *PodMetrics) ObserveOp(op string, err error) {
	if m == nil {
		return
	}
	m.OpsTotal.WithLabelValues(op).Inc()
	if err != nil {
		m.OpsErrors.WithLabelValues(op).Inc()
	}
}

// AddBytesRead accumulates bytes served by FsInterface.Read.
func (m *PodMetrics) AddBytesRead(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesRead.Add(float64(n))
}

// AddBytesWritten accumulates bytes accepted by FsInterface.Write.
func (m *PodMetrics) AddBytesWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.BytesWritten.Add(float64(n))
}

// ObserveFlush records one Flush call's wall-clock duration.
func (m *PodMetrics) ObserveFlush(seconds float64) {
	if m == nil {
		return
	}
	m.FlushLatency.Observe(seconds)
}

// SetPeerCount reports the current connected-peer count.
func (m *PodMetrics) SetPeerCount(n int) {
	if m == nil {
		return
	}
	m.PeerCount.Set(float64(n))
}

// IncRedundancyRetry counts one re-issued RedundancyFile send.
func (m *PodMetrics) IncRedundancyRetry() {
	if m == nil {
		return
	}
	m.RedundancyRetry.Inc()
}

// SetFilesUnderTarget reports how many files the last integrity sweep found
// below the redundancy target.
func (m *PodMetrics) SetFilesUnderTarget(n int) {
	if m == nil {
		return
	}
	m.FilesUnderR.Set(float64(n))
}
