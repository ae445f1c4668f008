// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of reproduce.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package report

import (
	"net/http"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Run counters, global so every input of a directory run accumulates into
// the same series. They cost nothing unless ServeMetrics was called.
var (
	ProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reproduce_processed_total",
		Help: "Units read from the input and converted into batch entries",
	})
	SkippedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reproduce_skipped_total",
		Help: "Units filtered out or failing conversion",
	})
	ProducedBatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reproduce_produced_batches_total",
		Help: "Serialized batches handed to the sink producer",
	})
)

// ServeMetrics registers the run counters and serves /metrics on addr in
// the background.
func ServeMetrics(addr string) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(ProcessedTotal, SkippedTotal, ProducedBatchesTotal)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			cclog.Errorf("metrics endpoint failed: %s", err.Error())
		}
	}()
	cclog.Infof("serving metrics at %s/metrics", addr)
}
