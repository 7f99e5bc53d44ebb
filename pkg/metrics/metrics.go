// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes an optional Prometheus /metrics endpoint for a
// running engine invocation, following the teacher's index-command pattern
// of starting promhttp.Handler on a flag-supplied address.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TasksExecuted counts completed rule executions, labeled by outcome
	// (ok, error, skipped_cancelled, skipped_optional_not_enabled,
	// skipped_same_inputs).
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spaces_tasks_total",
		Help: "Rule executions by outcome.",
	}, []string{"outcome"})

	// TaskDurationSeconds observes elapsed wall time per executed rule.
	TaskDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spaces_task_duration_seconds",
		Help:    "Elapsed wall time of one rule's execution.",
		Buckets: prometheus.DefBuckets,
	})
)

// Serve starts the Prometheus HTTP endpoint on addr in the background. It
// returns immediately; the listener runs until ctx is cancelled.
func Serve(ctx context.Context, addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		slog.Info("metrics.http.start", "addr", addr, "path", "/metrics")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Warn("metrics.http.error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
