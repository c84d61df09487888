// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package housekeeper

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/nishisan-dev/streamconnect/internal/registry"
)

type fakePending struct {
	entries []registry.PendingEOSEntry
}

func (f fakePending) PendingEOS() []registry.PendingEOSEntry { return f.entries }

func TestSweep_WarnsOnStalePendingEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	stale := fakePending{entries: []registry.PendingEOSEntry{
		{StreamID: 42, EOSPOR: 100, Since: time.Now().Add(-time.Hour)},
	}}

	h, err := New(stale, logger, "@every 1h", 10*time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Sweep()

	out := buf.String()
	if !strings.Contains(out, "stream stalled awaiting eos ack") {
		t.Fatalf("expected warning log, got: %s", out)
	}
	if !strings.Contains(out, "42") {
		t.Fatalf("expected stream id in log, got: %s", out)
	}
}

func TestSweep_SkipsFreshPendingEntry(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	fresh := fakePending{entries: []registry.PendingEOSEntry{
		{StreamID: 7, EOSPOR: 10, Since: time.Now()},
	}}

	h, err := New(fresh, logger, "@every 1h", 10*time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Sweep()

	if strings.Contains(buf.String(), "stream stalled") {
		t.Fatalf("did not expect a warning for a fresh pending entry, got: %s", buf.String())
	}
}

func TestSweep_SkipsZeroSince(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	entries := fakePending{entries: []registry.PendingEOSEntry{{StreamID: 1, EOSPOR: 1}}}

	h, err := New(entries, logger, "@every 1h", 0)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Sweep()

	if strings.Contains(buf.String(), "stream stalled") {
		t.Fatalf("expected zero Since to be skipped, got: %s", buf.String())
	}
}

func TestNew_InvalidScheduleFails(t *testing.T) {
	if _, err := New(fakePending{}, nil, "not a schedule", time.Minute); err == nil {
		t.Fatal("expected error for invalid cron schedule")
	}
}

func TestStartStop_DoesNotPanic(t *testing.T) {
	h, err := New(fakePending{}, nil, "@every 1h", time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.Start()
	h.Stop()
}
