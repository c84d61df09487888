// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// sink-demo runs a passive sink connector: it listens for connections from
// one or more source connectors and logs every decoded frame, driven by
// internal/sink.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nishisan-dev/streamconnect/internal/config"
	"github.com/nishisan-dev/streamconnect/internal/logging"
	"github.com/nishisan-dev/streamconnect/internal/sink"
	"github.com/nishisan-dev/streamconnect/internal/stats"
	"github.com/nishisan-dev/streamconnect/internal/wire"
)

func main() {
	configPath := flag.String("config", "/etc/streamconnect/sink.yaml", "path to sink connector config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format, "")
	defer logCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sink error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ConnectorConfig, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Listen.Address())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Listen.Address(), err)
	}

	reader := sink.NewReader(ln, wire.FrameDecoder{}, logger)
	defer reader.Close()

	var framesSeen int64
	monitor := stats.NewMonitor(logger, 15*time.Second)
	monitor.Start()
	defer monitor.Stop()

	reporter := stats.NewReporter(monitor, func() map[string]int64 {
		return map[string]int64{"frames_seen": atomic.LoadInt64(&framesSeen)}
	}, logger, 5*time.Minute)
	reporter.Start()
	defer reporter.Stop()

	logger.Info("sink listening", slog.String("address", cfg.Listen.Address()))

	for {
		frame, err := reader.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}
		atomic.AddInt64(&framesSeen, 1)
		logger.Debug("frame received",
			slog.Uint64("conn_id", frame.ConnID),
			slog.Int("payload_bytes", len(frame.Payload)),
		)
	}
}
