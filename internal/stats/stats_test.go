// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package stats

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestMonitor_CollectsOnStart(t *testing.T) {
	m := NewMonitor(nil, 10*time.Millisecond)
	m.Start()
	defer m.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := m.Snapshot()
		if snap.MemoryPercent > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected a non-zero memory snapshot within 2s")
}

func TestReporter_LogsGaugesAlongsideHostMetrics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	m := NewMonitor(logger, time.Hour) // no automatic collection needed for this test
	m.Start()
	defer m.Stop()

	gauges := func() map[string]int64 {
		return map[string]int64{"open_streams": 3}
	}

	r := NewReporter(m, gauges, logger, 10*time.Millisecond)
	r.Start()
	time.Sleep(50 * time.Millisecond)
	r.Stop()

	out := buf.String()
	if !strings.Contains(out, "connector stats") {
		t.Fatalf("expected a 'connector stats' log line, got: %s", out)
	}
	if !strings.Contains(out, "open_streams") {
		t.Fatalf("expected open_streams gauge in output, got: %s", out)
	}
}
