// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stats

import (
	"context"
	"log/slog"
	"time"
)

// Gauges lets a connector or sink process report its own domain counters
// (open streams, connected sockets, ...) alongside the host metrics
// collected by Monitor.
type Gauges func() map[string]int64

// Reporter logs a structured snapshot of host metrics plus caller-supplied
// gauges on a fixed interval, grounded on the teacher's StatsReporter
// (internal/agent/stats_reporter.go), generalized from job-scheduler
// snapshots to connector/sink health snapshots.
type Reporter struct {
	monitor   *Monitor
	gauges    Gauges
	logger    *slog.Logger
	interval  time.Duration
	startTime time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewReporter builds a Reporter. gauges may be nil if there is nothing
// domain-specific to report.
func NewReporter(monitor *Monitor, gauges Gauges, logger *slog.Logger, interval time.Duration) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reporter{
		monitor:  monitor,
		gauges:   gauges,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the periodic reporting goroutine.
func (r *Reporter) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.startTime = time.Now()

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.report()
			case <-ctx.Done():
				return
			}
		}
	}()

	r.logger.Info("stats reporter started", "interval", r.interval)
}

// Stop stops the reporter and waits for its goroutine to exit.
func (r *Reporter) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	<-r.done
	r.logger.Info("stats reporter stopped")
}

func (r *Reporter) report() {
	snap := r.monitor.Snapshot()
	uptime := time.Since(r.startTime).Seconds()

	attrs := []any{
		"uptime_seconds", int64(uptime),
		"cpu_percent", snap.CPUPercent,
		"memory_percent", snap.MemoryPercent,
		"disk_usage_percent", snap.DiskUsagePercent,
		"load_average", snap.LoadAverage,
	}

	if r.gauges != nil {
		for name, value := range r.gauges() {
			attrs = append(attrs, name, value)
		}
	}

	r.logger.Info("connector stats", attrs...)
}
