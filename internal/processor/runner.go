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

// Package processor runs the pipeline batch jobs, either once on demand or
// on a polling interval.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"juice-ledger-go/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Job is one batch step, e.g. crediting due purchases.
type Job interface {
	Name() string
	Run(ctx context.Context) (models.BatchResult, error)
}

type jobFunc struct {
	name string
	run  func(ctx context.Context) (models.BatchResult, error)
}

func (j jobFunc) Name() string { return j.name }

func (j jobFunc) Run(ctx context.Context) (models.BatchResult, error) { return j.run(ctx) }

// NewJob wraps a pipeline batch method as a Job.
func NewJob(name string, run func(ctx context.Context) (models.BatchResult, error)) Job {
	return jobFunc{name: name, run: run}
}

// Trigger runs every job once. The polling loop and an external scheduler
// both go through it.
type Trigger interface {
	RunOnce(ctx context.Context) Report
}

// Report is the outcome of one RunOnce call.
type Report struct {
	RunId     string
	StartedAt time.Time
	Duration  time.Duration
	Results   []models.BatchResult
	Errors    map[string]error
}

// Total sums the row counts of every job.
func (r Report) Total() models.BatchResult {
	total := models.BatchResult{Job: "total"}
	for _, res := range r.Results {
		total.Add(res)
	}
	return total
}

// Err joins the job-level errors, or returns nil when every job ran.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if err, ok := r.Errors[res.Job]; ok {
			errs = append(errs, fmt.Errorf("%s: %w", res.Job, err))
		}
	}
	return errors.Join(errs...)
}

// RunnerConfig contains configuration for Runner
type RunnerConfig struct {
	Jobs            []Job
	PollingInterval time.Duration
	Metrics         *Metrics
}

// Runner executes jobs concurrently. A failing job never stops the others.
type Runner struct {
	jobs            []Job
	pollingInterval time.Duration
	metrics         *Metrics

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

var _ Trigger = (*Runner)(nil)

func NewRunner(cfg RunnerConfig) *Runner {
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Runner{
		jobs:            cfg.Jobs,
		pollingInterval: interval,
		metrics:         cfg.Metrics,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// RunOnce runs every job concurrently and waits for all of them.
func (r *Runner) RunOnce(ctx context.Context) Report {
	report := Report{
		RunId:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		Results:   make([]models.BatchResult, len(r.jobs)),
		Errors:    make(map[string]error),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i, job := range r.jobs {
		wg.Add(1)
		go func(i int, job Job) {
			defer wg.Done()
			result, err := r.runJob(ctx, report, job)
			mu.Lock()
			defer mu.Unlock()
			report.Results[i] = result
			if err != nil {
				report.Errors[job.Name()] = err
			}
		}(i, job)
	}
	wg.Wait()
	report.Duration = time.Since(report.StartedAt)

	total := report.Total()
	zap.L().Info("Batch run finished",
		zap.String("run_id", report.RunId),
		zap.Int("jobs", len(r.jobs)),
		zap.Int("claimed", total.Claimed),
		zap.Int("advanced", total.Advanced),
		zap.Int("skipped", total.Skipped),
		zap.Int("failed", total.Failed),
		zap.Int("job_errors", len(report.Errors)),
		zap.Duration("duration", report.Duration))
	return report
}

func (r *Runner) runJob(ctx context.Context, report Report, job Job) (result models.BatchResult, err error) {
	ctx = models.WithBatchContext(ctx, &models.BatchContext{
		RunId:     report.RunId,
		Job:       job.Name(),
		StartedAt: report.StartedAt,
	})
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job panicked: %v", p)
		}
		result.Job = job.Name()
		r.metrics.observe(result, err, time.Since(start))
		if err != nil {
			zap.L().Error("Batch job failed",
				zap.String("run_id", report.RunId),
				zap.String("job", job.Name()),
				zap.Error(err))
		}
	}()

	return job.Run(ctx)
}

// Start runs the jobs immediately and then on every polling interval
// until Stop is called or ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	zap.L().Info("Starting batch runner",
		zap.Int("jobs", len(r.jobs)),
		zap.Duration("polling_interval", r.pollingInterval))
	go r.pollLoop(ctx)
}

// Stop gracefully stops the polling loop and waits for the current run.
func (r *Runner) Stop() {
	zap.L().Info("Stopping batch runner")
	r.stopOnce.Do(func() { close(r.stopChan) })
	<-r.doneChan
	zap.L().Info("Batch runner stopped")
}

func (r *Runner) pollLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	r.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
