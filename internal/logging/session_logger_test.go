// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewStreamLogger_Disabled(t *testing.T) {
	base := slog.New(slog.NewTextHandler(os.Stderr, nil))

	logger, closer, path, err := NewStreamLogger(base, "", "celsius", "stream-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer closer.Close()

	if logger != base {
		t.Error("expected base logger when streamLogDir is empty")
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

func TestNewStreamLogger_CreatesFileAndLogs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewStreamLogger(base, dir, "celsius", "stream-abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	connectorDir := filepath.Join(dir, "celsius")
	if _, err := os.Stat(connectorDir); os.IsNotExist(err) {
		t.Fatalf("connector dir not created: %s", connectorDir)
	}

	expectedPath := filepath.Join(connectorDir, "stream-abc.log")
	if logPath != expectedPath {
		t.Errorf("expected path %q, got %q", expectedPath, logPath)
	}

	logger.Info("test message", "key", "value")
	closer.Close()

	if !strings.Contains(baseBuf.String(), "test message") {
		t.Errorf("log message not found in base handler output: %s", baseBuf.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading stream log file: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "test message") {
		t.Errorf("log message not found in stream file: %s", content)
	}
	if !strings.Contains(content, `"key":"value"`) {
		t.Errorf("structured key not found in stream file: %s", content)
	}
}

func TestNewStreamLogger_DebugInFileInfoInBase(t *testing.T) {
	dir := t.TempDir()

	// Base logger at INFO level: doesn't accept DEBUG.
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	logger, closer, logPath, err := NewStreamLogger(base, dir, "celsius", "stream-debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Debug("debug only message")
	logger.Info("info for both")

	closer.Close()

	if strings.Contains(baseBuf.String(), "debug only message") {
		t.Error("DEBUG message should not appear in base handler with INFO level")
	}
	if !strings.Contains(baseBuf.String(), "info for both") {
		t.Error("INFO message missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "debug only message") {
		t.Errorf("DEBUG message missing from stream file: %s", content)
	}
	if !strings.Contains(content, "info for both") {
		t.Errorf("INFO message missing from stream file: %s", content)
	}
}

func TestRemoveStreamLog(t *testing.T) {
	dir := t.TempDir()
	connectorDir := filepath.Join(dir, "celsius")
	os.MkdirAll(connectorDir, 0755)

	logPath := filepath.Join(connectorDir, "stream-to-remove.log")
	os.WriteFile(logPath, []byte("test"), 0644)

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Fatal("setup failed: log file not created")
	}

	RemoveStreamLog(dir, "celsius", "stream-to-remove")

	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Error("stream log file should have been removed")
	}
}

func TestRemoveStreamLog_NoOpWhenEmpty(t *testing.T) {
	RemoveStreamLog("", "celsius", "stream")
}

func TestRemoveStreamLog_NoOpWhenFileMissing(t *testing.T) {
	RemoveStreamLog(t.TempDir(), "celsius", "nonexistent-stream")
}

func TestNewStreamLogger_WithAttrs(t *testing.T) {
	dir := t.TempDir()
	var baseBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger, closer, logPath, err := NewStreamLogger(base, dir, "celsius", "stream-attrs")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	enriched := logger.With("stream", "stream-attrs", "mode", "framed")
	enriched.Info("enriched message")

	closer.Close()

	if !strings.Contains(baseBuf.String(), "stream-attrs") {
		t.Error("stream attr missing from base handler")
	}

	data, _ := os.ReadFile(logPath)
	content := string(data)
	if !strings.Contains(content, "stream-attrs") {
		t.Errorf("stream attr missing from stream file: %s", content)
	}
	if !strings.Contains(content, "framed") {
		t.Errorf("mode attr missing from stream file: %s", content)
	}
}
