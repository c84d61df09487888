// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config loads the YAML configuration for a source or sink
// connector: server address, handshake identity, required/optional
// parameter declarations, and the ambient transport/logging knobs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Role names which half of the protocol a connector plays.
type Role string

const (
	RoleSourceConnector Role = "source_connector"
	RoleSinkConnector   Role = "sink_connector"
)

// ConnectorConfig is the full configuration for either a source or a sink
// connector process.
type ConnectorConfig struct {
	Role         Role          `yaml:"role"`
	Name         string        `yaml:"name"`
	Identity     IdentityInfo  `yaml:"identity"`
	Server       ServerAddr    `yaml:"server"`
	Listen       ListenAddr    `yaml:"listen"`
	Params       ParamsConfig  `yaml:"params"`
	Transport    TransportInfo `yaml:"transport"`
	Logging      LoggingInfo   `yaml:"logging"`
	Housekeeping HousekeepInfo `yaml:"housekeeping"`
}

// IdentityInfo is sent in the Hello handshake.
type IdentityInfo struct {
	Cookie       string `yaml:"cookie"`
	ProgramName  string `yaml:"program_name"`
	InstanceName string `yaml:"instance_name"`
}

// ServerAddr is the engine address a source connector dials.
type ServerAddr struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address formats Host:Port for net.Dial.
func (s ServerAddr) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ListenAddr is the address a sink connector accepts connections on.
type ListenAddr struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Address formats Host:Port for net.Listen.
func (l ListenAddr) Address() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// ParamsConfig declares which connector parameters are required vs.
// optional and carries their resolved values, mirroring the Python
// SourceConnector/SinkConnector's params.<attr> access pattern via a
// map lookup instead of dynamic attributes.
type ParamsConfig struct {
	Required []string          `yaml:"required"`
	Optional []string          `yaml:"optional"`
	Values   map[string]string `yaml:"values"`
}

// Get returns a declared parameter's value and whether it was present.
func (p ParamsConfig) Get(name string) (string, bool) {
	v, ok := p.Values[name]
	return v, ok
}

// TransportInfo configures the outbound session (source connectors only).
type TransportInfo struct {
	DSCP          string        `yaml:"dscp"`
	ThrottleRate  string        `yaml:"throttle_rate"` // e.g. "2mb", "0" disables
	ThrottleBytes int64         `yaml:"-"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	MaxRetries    int           `yaml:"max_retries"`
}

// LoggingInfo configures the slog logger.
type LoggingInfo struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	StreamLogDir string `yaml:"stream_log_dir"` // per-stream log files; empty disables
}

// HousekeepInfo configures the optional pending-EOS sweep.
type HousekeepInfo struct {
	Enabled       bool          `yaml:"enabled"`
	Schedule      string        `yaml:"schedule"` // cron expression, default "@every 1m"
	AbandonAfter  time.Duration `yaml:"abandon_after"`
}

// Load reads and validates a connector config file.
func Load(path string) (*ConnectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading connector config: %w", err)
	}

	var cfg ConnectorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing connector config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating connector config: %w", err)
	}

	return &cfg, nil
}

func (c *ConnectorConfig) validate() error {
	switch c.Role {
	case RoleSourceConnector, RoleSinkConnector:
	case "":
		return fmt.Errorf("role is required")
	default:
		return fmt.Errorf("role must be %q or %q, got %q", RoleSourceConnector, RoleSinkConnector, c.Role)
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Identity.Cookie == "" {
		return fmt.Errorf("identity.cookie is required")
	}
	if c.Identity.ProgramName == "" {
		c.Identity.ProgramName = c.Name
	}
	if c.Identity.InstanceName == "" {
		c.Identity.InstanceName = c.Name
	}

	if c.Role == RoleSourceConnector {
		if c.Server.Host == "" {
			return fmt.Errorf("server.host is required for a source connector")
		}
		if c.Server.Port <= 0 {
			return fmt.Errorf("server.port must be > 0, got %d", c.Server.Port)
		}
	} else {
		if c.Listen.Host == "" {
			c.Listen.Host = "0.0.0.0"
		}
		if c.Listen.Port <= 0 {
			return fmt.Errorf("listen.port must be > 0, got %d", c.Listen.Port)
		}
	}

	if c.Params.Values == nil {
		c.Params.Values = map[string]string{}
	}
	for _, name := range c.Params.Required {
		if _, ok := c.Params.Values[name]; !ok {
			return fmt.Errorf("params.values.%s is required", name)
		}
	}

	if c.Transport.ThrottleRate == "" || c.Transport.ThrottleRate == "0" {
		c.Transport.ThrottleBytes = 0
	} else {
		parsed, err := ParseByteSize(c.Transport.ThrottleRate)
		if err != nil {
			return fmt.Errorf("transport.throttle_rate: %w", err)
		}
		c.Transport.ThrottleBytes = parsed
	}
	if c.Transport.RetryDelay <= 0 {
		c.Transport.RetryDelay = time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Housekeeping.Enabled {
		if c.Housekeeping.Schedule == "" {
			c.Housekeeping.Schedule = "@every 1m"
		}
		if c.Housekeeping.AbandonAfter <= 0 {
			c.Housekeeping.AbandonAfter = 10 * time.Minute
		}
	}

	return nil
}

// ParseByteSize converts human-readable sizes like "256mb", "1gb" to bytes.
func ParseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	type suffix struct {
		s string
		m int64
	}
	suffixes := []suffix{
		{"gb", 1024 * 1024 * 1024},
		{"mb", 1024 * 1024},
		{"kb", 1024},
		{"b", 1},
	}

	for _, sfx := range suffixes {
		if strings.HasSuffix(s, sfx.s) {
			numStr := strings.TrimSuffix(s, sfx.s)
			num, err := strconv.ParseInt(numStr, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid number %q: %w", numStr, err)
			}
			return num * sfx.m, nil
		}
	}

	num, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unknown size format %q", s)
	}
	return num, nil
}
