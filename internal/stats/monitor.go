// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package stats is the ambient health-sampling surface shared by the
// connector and sink processes: periodic CPU/memory/disk/load snapshots,
// grounded on the teacher's internal/agent/monitor.go and
// stats_reporter.go. This is observability, not a protocol feature, and
// is carried regardless of spec.md's non-goals per the ambient-stack rule.
package stats

import (
	"log/slog"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

// Snapshot holds one round of collected host metrics.
type Snapshot struct {
	CPUPercent       float64
	MemoryPercent    float64
	DiskUsagePercent float64
	LoadAverage      float64
}

// Monitor collects host metrics periodically in the background.
type Monitor struct {
	logger   *slog.Logger
	interval time.Duration
	close    chan struct{}
	wg       sync.WaitGroup
	snap     Snapshot
	mu       sync.RWMutex
}

// NewMonitor builds a Monitor sampling every interval (default 15s).
func NewMonitor(logger *slog.Logger, interval time.Duration) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		logger:   logger.With("component", "health_monitor"),
		interval: interval,
		close:    make(chan struct{}),
	}
}

// Start begins periodic collection.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
}

// Stop stops the monitor and waits for its goroutine to exit.
func (m *Monitor) Stop() {
	close(m.close)
	m.wg.Wait()
}

// Snapshot returns the most recently collected metrics.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collect()

	for {
		select {
		case <-m.close:
			return
		case <-ticker.C:
			m.collect()
		}
	}
}

func (m *Monitor) collect() {
	snap := Snapshot{}

	if percentage, err := cpu.Percent(0, false); err == nil && len(percentage) > 0 {
		snap.CPUPercent = percentage[0]
	} else {
		m.logger.Debug("failed to collect cpu stats", "error", err)
	}

	if v, err := mem.VirtualMemory(); err == nil {
		snap.MemoryPercent = v.UsedPercent
	} else {
		m.logger.Debug("failed to collect memory stats", "error", err)
	}

	if d, err := disk.Usage("/"); err == nil {
		snap.DiskUsagePercent = d.UsedPercent
	} else {
		m.logger.Debug("failed to collect disk stats", "error", err)
	}

	if l, err := load.Avg(); err == nil {
		snap.LoadAverage = l.Load1
	} else {
		m.logger.Debug("failed to collect load stats", "error", err)
	}

	m.mu.Lock()
	m.snap = snap
	m.mu.Unlock()
}
