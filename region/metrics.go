/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package region

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	hostedRegions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shmem",
		Subsystem: "region",
		Name:      "hosted",
		Help:      "Regions currently hosted by this process.",
	})

	mappedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "shmem",
		Subsystem: "region",
		Name:      "mapped_bytes",
		Help:      "Bytes currently mapped through live region handles.",
	})

	hostsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shmem",
		Subsystem: "region",
		Name:      "hosts_total",
		Help:      "Regions created by this process since start.",
	})

	blobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "shmem",
		Subsystem: "region",
		Name:      "blobs_total",
		Help:      "Anonymous blobs handed out since start.",
	})

	attachesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "shmem",
		Subsystem: "region",
		Name:      "attaches_total",
		Help:      "Attach attempts by outcome.",
	}, []string{"outcome"})

	readyWaitSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "shmem",
		Subsystem: "region",
		Name:      "ready_wait_seconds",
		Help:      "Time spent polling the readiness gate during attach.",
		Buckets:   prometheus.ExponentialBuckets(100e-6, 4, 8),
	})
)

func init() {
	prometheus.MustRegister(hostedRegions, mappedBytes, hostsTotal, blobsTotal, attachesTotal, readyWaitSeconds)
}

// attachOutcome folds an attach error into the label set of attachesTotal.
func attachOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoSuchProcess):
		return "no_process"
	case errors.Is(err, ErrRegionNotFound):
		return "not_found"
	case errors.Is(err, ErrReadyTimeout):
		return "ready_timeout"
	case errors.Is(err, ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ErrBadRegion):
		return "bad_region"
	}
	return "error"
}

// instruments bundles the optional OpenTelemetry side of a Config. A zero
// instruments value is inert.
type instruments struct {
	tracer   trace.Tracer
	hosts    metric.Int64Counter
	attaches metric.Int64Counter
}

func newInstruments(cfg Config) instruments {
	ins := instruments{tracer: cfg.Tracer}
	if cfg.Meter == nil {
		return ins
	}
	var err error
	ins.hosts, err = cfg.Meter.Int64Counter("shmem.region.hosts",
		metric.WithDescription("Regions created by this process."))
	if err != nil {
		internalLogger.warnf("hosts counter: %v", err)
	}
	ins.attaches, err = cfg.Meter.Int64Counter("shmem.region.attaches",
		metric.WithDescription("Attach attempts by outcome."))
	if err != nil {
		internalLogger.warnf("attaches counter: %v", err)
	}
	return ins
}

func (i instruments) countHost(name string) {
	if i.hosts != nil {
		i.hosts.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("region.name", name)))
	}
}

func (i instruments) countAttach(ctx context.Context, name, outcome string) {
	if i.attaches != nil {
		i.attaches.Add(ctx, 1, metric.WithAttributes(
			attribute.String("region.name", name),
			attribute.String("outcome", outcome)))
	}
}
