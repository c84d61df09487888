// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package transport owns the single outbound TCP connection the connector
// speaks the protocol over: connect-with-retry, atomic per-frame writes,
// and an optional DSCP/throughput-throttle knob. Generalized from the
// teacher's per-stream reconnect/backoff loop (one TLS-secured upload
// connection per parallel stream) down to a single plaintext session.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Session's connection behavior.
type Config struct {
	// Address is the host:port to dial.
	Address string
	// RetryDelay is the pause between connection-refused retries. Defaults
	// to 1 second, matching spec.md §4.7.
	RetryDelay time.Duration
	// MaxRetries bounds the number of retry attempts; 0 means unbounded.
	MaxRetries int
	// DSCP optionally names a DSCP class (see ParseDSCP) applied to the
	// socket once connected.
	DSCP string
	// ThrottleBytesPerSec, if positive, rate-limits outbound writes. This
	// mirrors the teacher's ThrottledWriter, applied here to the whole
	// session rather than per parallel upload stream.
	ThrottleBytesPerSec int64
}

// Session owns one outbound TCP connection and presents atomic per-frame
// writes (full-write semantics) to callers, matching spec.md §4.7.
type Session struct {
	cfg  Config
	conn net.Conn
	w    netWriter
}

// netWriter lets the throttle wrap conn.Write without hiding net.Conn's
// other methods (Close, deadlines) from Session.
type netWriter interface {
	Write(p []byte) (int, error)
}

// Dial opens the session, retrying on connection-refused with cfg.RetryDelay
// between attempts (bounded by cfg.MaxRetries if positive). Any other dial
// error is returned immediately.
func Dial(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	dscp, err := ParseDSCP(cfg.DSCP)
	if err != nil {
		return nil, fmt.Errorf("parsing dscp class: %w", err)
	}

	var dialer net.Dialer
	attempt := 0
	for {
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err == nil {
			if dscp != 0 {
				if err := ApplyDSCP(conn, dscp); err != nil {
					conn.Close()
					return nil, fmt.Errorf("applying dscp to session: %w", err)
				}
			}
			s := &Session{cfg: cfg, conn: conn}
			s.w = newThrottledWriter(ctx, conn, cfg.ThrottleBytesPerSec)
			return s, nil
		}
		if !isConnRefused(err) {
			return nil, fmt.Errorf("dialing %s: %w", cfg.Address, err)
		}
		if cfg.MaxRetries > 0 && attempt > cfg.MaxRetries {
			return nil, fmt.Errorf("dialing %s: exhausted %d retries: %w", cfg.Address, cfg.MaxRetries, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(cfg.RetryDelay):
		}
	}
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// Write performs an atomic full-write of p; Go's net.Conn.Write already
// blocks until all bytes are written or an error occurs, so this only adds
// the throttle pass-through.
func (s *Session) Write(p []byte) (int, error) {
	n, err := s.w.Write(p)
	if err != nil {
		return n, fmt.Errorf("writing to session: %w", err)
	}
	return n, nil
}

// Conn exposes the underlying connection for reads; the read side of the
// protocol (Ok/StreamAdded/.../Ack frames) is driven directly against it by
// the connector's inbound loop.
func (s *Session) Conn() net.Conn { return s.conn }

// Close closes the underlying connection.
func (s *Session) Close() error {
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("closing session: %w", err)
	}
	return nil
}

const maxThrottleBurst = 256 * 1024

// throttledWriter wraps an io.Writer with a token-bucket rate limit,
// adapted directly from the teacher's ThrottledWriter (internal/agent, in
// the prior revision of this tree): same burst-splitting write loop, same
// blocking WaitN semantics, generalized from a TLS upload stream to the
// connector's single outbound session.
type throttledWriter struct {
	w       netWriter
	limiter *rate.Limiter
	ctx     context.Context
}

// newThrottledWriter returns w unchanged (bypass) when bytesPerSec <= 0.
func newThrottledWriter(ctx context.Context, w netWriter, bytesPerSec int64) netWriter {
	if bytesPerSec <= 0 {
		return w
	}

	burst := int(bytesPerSec)
	if burst > maxThrottleBurst {
		burst = maxThrottleBurst
	}

	return &throttledWriter{
		w:       w,
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), burst),
		ctx:     ctx,
	}
}

func (tw *throttledWriter) Write(p []byte) (int, error) {
	totalWritten := 0

	for len(p) > 0 {
		chunk := len(p)
		if chunk > tw.limiter.Burst() {
			chunk = tw.limiter.Burst()
		}

		if err := tw.limiter.WaitN(tw.ctx, chunk); err != nil {
			return totalWritten, err
		}

		n, err := tw.w.Write(p[:chunk])
		totalWritten += n
		if err != nil {
			return totalWritten, err
		}

		p = p[n:]
	}

	return totalWritten, nil
}
