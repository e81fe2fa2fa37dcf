/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package processor

import (
	"time"

	"juice-ledger-go/internal/models"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics for batch job runs
type Metrics struct {
	// RowsProcessed counts rows per job and outcome.
	// Labels: job, outcome (claimed, advanced, skipped, failed)
	RowsProcessed *prometheus.CounterVec

	// JobRuns counts invocations per job and result.
	// Labels: job, status (ok, error)
	JobRuns *prometheus.CounterVec

	// JobDuration observes how long each job invocation took.
	// Labels: job
	JobDuration *prometheus.HistogramVec
}

// NewMetrics creates the runner metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "juice",
			Subsystem: "processor",
			Name:      "rows_total",
			Help:      "Rows handled by batch jobs, by outcome.",
		}, []string{"job", "outcome"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "juice",
			Subsystem: "processor",
			Name:      "job_runs_total",
			Help:      "Batch job invocations, by status.",
		}, []string{"job", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "juice",
			Subsystem: "processor",
			Name:      "job_duration_seconds",
			Help:      "Duration of batch job invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{m.RowsProcessed, m.JobRuns, m.JobDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observe(result models.BatchResult, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	job := result.Job
	m.RowsProcessed.WithLabelValues(job, "claimed").Add(float64(result.Claimed))
	m.RowsProcessed.WithLabelValues(job, "advanced").Add(float64(result.Advanced))
	m.RowsProcessed.WithLabelValues(job, "skipped").Add(float64(result.Skipped))
	m.RowsProcessed.WithLabelValues(job, "failed").Add(float64(result.Failed))

	status := "ok"
	if err != nil {
		status = "error"
	}
	m.JobRuns.WithLabelValues(job, status).Inc()
	m.JobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}
