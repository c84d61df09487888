// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package housekeeper runs the optional, off-by-default sweep over a
// connector's stalled pending_eos_ack entries (spec.md §5: "a
// caller-level timeout may abandon a pending EOS; implementers should
// surface a predicate to inspect pending_eos_ack"). It never force-closes
// a stream — unilaterally abandoning EOS would violate at-least-once
// delivery — it only logs a warning so an operator can investigate.
// Grounded on the teacher's internal/agent/scheduler.go cron wiring
// (cron.New with a slog-backed logger, one AddFunc per job).
package housekeeper

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nishisan-dev/streamconnect/internal/registry"
)

// PendingSource is the subset of *registry.Registry the sweep needs.
type PendingSource interface {
	PendingEOS() []registry.PendingEOSEntry
}

// Housekeeper periodically scans a registry for pending_eos_ack entries
// older than AbandonAfter and logs a warning for each.
type Housekeeper struct {
	reg          PendingSource
	logger       *slog.Logger
	abandonAfter time.Duration
	cron         *cron.Cron
}

// New builds a Housekeeper on the given cron schedule (e.g. "@every 1m").
func New(reg PendingSource, logger *slog.Logger, schedule string, abandonAfter time.Duration) (*Housekeeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Housekeeper{
		reg:          reg,
		logger:       logger.With("component", "housekeeper"),
		abandonAfter: abandonAfter,
	}

	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(h.logger.Handler(), slog.LevelDebug))))
	if _, err := c.AddFunc(schedule, h.sweep); err != nil {
		return nil, fmt.Errorf("scheduling housekeeper sweep %q: %w", schedule, err)
	}
	h.cron = c
	return h, nil
}

// Start begins the background sweep.
func (h *Housekeeper) Start() { h.cron.Start() }

// Stop stops the sweep and waits for any in-flight run to finish.
func (h *Housekeeper) Stop() { <-h.cron.Stop().Done() }

// Sweep runs one scan immediately, independent of the cron schedule.
// Exposed so callers/tests don't need to wait on a cron tick.
func (h *Housekeeper) Sweep() { h.sweep() }

func (h *Housekeeper) sweep() {
	now := time.Now()
	for _, entry := range h.reg.PendingEOS() {
		if entry.Since.IsZero() {
			continue
		}
		age := now.Sub(entry.Since)
		if age < h.abandonAfter {
			continue
		}
		h.logger.Warn("stream stalled awaiting eos ack",
			slog.Uint64("stream_id", entry.StreamID),
			slog.Uint64("eos_por", entry.EOSPOR),
			slog.Duration("age", age),
		)
	}
}
