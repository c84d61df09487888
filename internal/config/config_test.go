// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connector.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoad_SourceConnectorDefaults(t *testing.T) {
	path := writeConfig(t, `
role: source_connector
name: celsius
identity:
  cookie: sekrit
server:
  host: engine.internal
  port: 7000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Identity.ProgramName != "celsius" {
		t.Errorf("expected program_name to default to name, got %q", cfg.Identity.ProgramName)
	}
	if cfg.Server.Address() != "engine.internal:7000" {
		t.Errorf("got address %q", cfg.Server.Address())
	}
	if cfg.Transport.RetryDelay.Seconds() != 1 {
		t.Errorf("expected default retry delay 1s, got %v", cfg.Transport.RetryDelay)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected default logging info/json, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_SinkConnectorRequiresListenPort(t *testing.T) {
	path := writeConfig(t, `
role: sink_connector
name: collector
identity:
  cookie: sekrit
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing listen.port")
	}
}

func TestLoad_MissingRequiredParamFails(t *testing.T) {
	path := writeConfig(t, `
role: source_connector
name: celsius
identity:
  cookie: sekrit
server:
  host: engine.internal
  port: 7000
params:
  required: [path]
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing required param")
	}
}

func TestLoad_ThrottleRateParsed(t *testing.T) {
	path := writeConfig(t, `
role: source_connector
name: celsius
identity:
  cookie: sekrit
server:
  host: engine.internal
  port: 7000
transport:
  throttle_rate: "2mb"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Transport.ThrottleBytes != 2*1024*1024 {
		t.Errorf("got %d, want %d", cfg.Transport.ThrottleBytes, 2*1024*1024)
	}
}

func TestLoad_InvalidRoleFails(t *testing.T) {
	path := writeConfig(t, `
role: bogus
name: celsius
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for invalid role")
	}
}

func TestParseByteSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"256mb", 256 * 1024 * 1024},
		{"1gb", 1024 * 1024 * 1024},
		{"512b", 512},
		{"1024", 1024},
	}
	for _, tt := range tests {
		got, err := ParseByteSize(tt.in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseByteSize(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
