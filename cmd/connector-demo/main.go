// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// connector-demo runs a single at-least-once source connector: it reads a
// local file (plain, gzip-framed, or throttled, depending on config) and
// streams it to an engine over the wire protocol in internal/wire, driven
// by internal/connector.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nishisan-dev/streamconnect/internal/config"
	"github.com/nishisan-dev/streamconnect/internal/connector"
	"github.com/nishisan-dev/streamconnect/internal/housekeeper"
	"github.com/nishisan-dev/streamconnect/internal/logging"
	"github.com/nishisan-dev/streamconnect/internal/scheduler"
	"github.com/nishisan-dev/streamconnect/internal/source"
	"github.com/nishisan-dev/streamconnect/internal/stats"
	"github.com/nishisan-dev/streamconnect/internal/transport"
)

func main() {
	configPath := flag.String("config", "/etc/streamconnect/source.yaml", "path to source connector config file")
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
		logger.Error("connector error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.ConnectorConfig, logger *slog.Logger) error {
	src, err := openSource(cfg)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer src.Close()

	c := connector.New(connector.Identity{
		Cookie:       cfg.Identity.Cookie,
		ProgramName:  cfg.Identity.ProgramName,
		InstanceName: cfg.Identity.InstanceName,
	}, logger)
	c.SetStreamLogDir(cfg.Logging.StreamLogDir)

	if err := c.Connect(ctx, transport.Config{
		Address:             cfg.Server.Address(),
		RetryDelay:          cfg.Transport.RetryDelay,
		MaxRetries:          cfg.Transport.MaxRetries,
		DSCP:                cfg.Transport.DSCP,
		ThrottleBytesPerSec: cfg.Transport.ThrottleBytes,
	}); err != nil {
		return fmt.Errorf("connecting to engine: %w", err)
	}
	defer c.Close()

	if err := c.AddSource(src); err != nil {
		return fmt.Errorf("registering source %q: %w", src.Name(), err)
	}

	monitor := stats.NewMonitor(logger, 15*time.Second)
	monitor.Start()
	defer monitor.Stop()

	reporter := stats.NewReporter(monitor, func() map[string]int64 {
		return map[string]int64{"open_streams": 1}
	}, logger, 5*time.Minute)
	reporter.Start()
	defer reporter.Stop()

	var hk *housekeeper.Housekeeper
	if cfg.Housekeeping.Enabled {
		hk, err = housekeeper.New(c, logger, cfg.Housekeeping.Schedule, cfg.Housekeeping.AbandonAfter)
		if err != nil {
			return fmt.Errorf("building housekeeper: %w", err)
		}
		hk.Start()
		defer hk.Stop()
	}

	// One loop drives both inbound frame handling and the scheduler tick;
	// PollInbound's bounded wait is what lets it interleave the two without
	// a second goroutine touching the registry.
	const inboundPollInterval = 10 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := c.PollInbound(inboundPollInterval); err != nil {
			if errors.Is(err, io.EOF) {
				logger.Info("engine closed the connection")
				return nil
			}
			return fmt.Errorf("handling inbound frame: %w", err)
		}

		res, err := c.Next()
		if err != nil {
			return fmt.Errorf("driving scheduler: %w", err)
		}
		if res.Kind == scheduler.ResultEndOfAllSources {
			logger.Info("all sources exhausted and closed")
			return nil
		}
	}
}

func openSource(cfg *config.ConnectorConfig) (source.Source, error) {
	path, ok := cfg.Params.Get("path")
	if !ok {
		return nil, fmt.Errorf("config params.values.path is required")
	}

	format, _ := cfg.Params.Get("format")
	switch format {
	case "gzip":
		return source.NewGzipFramedFile(path)
	case "throttled":
		return source.NewThrottled(path, source.ModeFramed, cfg.Transport.ThrottleBytes)
	default:
		return source.NewFramedFile(path)
	}
}
