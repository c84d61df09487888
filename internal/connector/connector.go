// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package connector is the protocol engine (C4): it owns the session, the
// registry, and the scheduler, and exposes Connect/AddSource/RemoveSource/
// Send to the caller while applying inbound events to the stream state
// machine exactly as spec.md §4.4 describes.
package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/nishisan-dev/streamconnect/internal/identity"
	"github.com/nishisan-dev/streamconnect/internal/logging"
	"github.com/nishisan-dev/streamconnect/internal/registry"
	"github.com/nishisan-dev/streamconnect/internal/scheduler"
	"github.com/nishisan-dev/streamconnect/internal/source"
	"github.com/nishisan-dev/streamconnect/internal/transport"
	"github.com/nishisan-dev/streamconnect/internal/wire"
)

// Identity names the client in the handshake.
type Identity struct {
	Cookie       string
	ProgramName  string
	InstanceName string
}

// Connector is a connected at-least-once source session: registry +
// scheduler + transport, bound together by the inbound event loop.
type Connector struct {
	identity Identity
	session  *transport.Session
	reg      *registry.Registry
	sched    *scheduler.Scheduler
	log      *slog.Logger

	streamLogDir string
	streamLogs   map[uint64]streamLogHandle
}

// streamLogHandle is the per-stream fan-out logger and its backing file
// closer, held for the lifetime of one open stream.
type streamLogHandle struct {
	logger *slog.Logger
	closer io.Closer
}

// New builds a disconnected Connector. Call Connect before any other
// operation.
func New(id Identity, log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	reg := registry.New()
	c := &Connector{identity: id, reg: reg, log: log, streamLogs: make(map[uint64]streamLogHandle)}
	c.sched = scheduler.New(reg, c)
	return c
}

// SetStreamLogDir enables a dedicated log file per open stream, written to
// {dir}/{program_name}/{stream_id}.log via internal/logging.NewStreamLogger.
// The default (unset, empty dir) leaves every stream logging only through
// the base logger, matching NewStreamLogger's own no-op convention.
func (c *Connector) SetStreamLogDir(dir string) {
	c.streamLogDir = dir
}

// openStreamLog opens id's dedicated log file, if stream logging is
// enabled and it isn't already open.
func (c *Connector) openStreamLog(id uint64) {
	if c.streamLogDir == "" {
		return
	}
	if _, ok := c.streamLogs[id]; ok {
		return
	}
	logger, closer, _, err := logging.NewStreamLogger(c.log, c.streamLogDir, c.identity.ProgramName, strconv.FormatUint(id, 10))
	if err != nil {
		c.log.Warn("opening stream log file", slog.Uint64("stream_id", id), slog.Any("error", err))
		return
	}
	c.streamLogs[id] = streamLogHandle{logger: logger, closer: closer}
	logger.Debug("stream log opened", slog.Uint64("stream_id", id))
}

// closeStreamLog closes and removes id's dedicated log file, if one is open.
func (c *Connector) closeStreamLog(id uint64) {
	h, ok := c.streamLogs[id]
	if !ok {
		return
	}
	h.closer.Close()
	delete(c.streamLogs, id)
	logging.RemoveStreamLog(c.streamLogDir, c.identity.ProgramName, strconv.FormatUint(id, 10))
}

// logFor returns id's dedicated stream logger if stream logging is enabled
// and open for it, otherwise the connector's base logger.
func (c *Connector) logFor(id uint64) *slog.Logger {
	if h, ok := c.streamLogs[id]; ok {
		return h.logger
	}
	return c.log
}

// Connect dials cfg.Address, performs the hello handshake, and applies any
// pre-existing per-stream POR the engine reports in its Ok reply.
func (c *Connector) Connect(ctx context.Context, cfg transport.Config) error {
	sess, err := transport.Dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connecting session: %w", err)
	}

	if err := wire.WriteHello(sess, wire.Hello{
		Version:      wire.ProtocolVersion,
		Cookie:       c.identity.Cookie,
		ProgramName:  c.identity.ProgramName,
		InstanceName: c.identity.InstanceName,
	}); err != nil {
		sess.Close()
		return fmt.Errorf("sending hello: %w", err)
	}

	magic, err := wire.PeekMagic(sess.Conn())
	if err != nil {
		sess.Close()
		return fmt.Errorf("reading handshake reply: %w", err)
	}
	switch magic {
	case wire.MagicOk:
		ok, err := wire.ReadOkBody(sess.Conn())
		if err != nil {
			sess.Close()
			return fmt.Errorf("decoding ok: %w", err)
		}
		for _, sp := range ok.Streams {
			if err := c.reg.StreamAdded(sp.StreamID, sp.POR); err != nil {
				sess.Close()
				return fmt.Errorf("applying pre-existing stream state: %w", err)
			}
		}
	case wire.MagicHelloErr:
		herr, err := wire.ReadHelloErrorBody(sess.Conn())
		if err != nil {
			sess.Close()
			return fmt.Errorf("decoding hello error: %w", err)
		}
		sess.Close()
		return fmt.Errorf("%w: %s", ErrProtocolError, herr.Message)
	default:
		sess.Close()
		return fmt.Errorf("%w: unexpected handshake reply %q", ErrProtocolError, magic)
	}

	c.session = sess
	return nil
}

// AddSource registers src, sending Notify to the engine.
func (c *Connector) AddSource(src source.Source) error {
	if c.session == nil {
		return ErrNotConnected
	}
	id := identity.StreamID(src.Name())
	if err := c.reg.Add(id, src); err != nil {
		return err
	}
	if err := wire.WriteNotify(c.session, wire.Notify{
		StreamID: id,
		Name:     src.Name(),
		POR:      src.PointOfRef(),
	}); err != nil {
		return fmt.Errorf("sending notify for stream %d: %w", id, err)
	}
	return nil
}

// RemoveSource starts asynchronous closure of src's stream.
func (c *Connector) RemoveSource(src source.Source) error {
	return c.RemoveByID(identity.StreamID(src.Name()))
}

// RemoveByID implements scheduler.Remover: it lets the scheduler retire a
// source whose Next() signalled end-of-data through the same EOS handshake
// a caller-initiated RemoveSource would use.
func (c *Connector) RemoveByID(id uint64) error {
	if c.session == nil {
		return ErrNotConnected
	}
	if _, err := c.reg.Remove(id); err != nil {
		return err
	}
	if err := wire.WriteEOS(c.session, wire.EOS{StreamID: id}); err != nil {
		return fmt.Errorf("sending eos for stream %d: %w", id, err)
	}
	return nil
}

// Send emits one message for an Open stream.
func (c *Connector) Send(src source.Source, eventTime uint64, payload []byte) error {
	if c.session == nil {
		return ErrNotConnected
	}
	id := identity.StreamID(src.Name())
	state, ok := c.reg.State(id)
	if !ok || state != registry.Open {
		return fmt.Errorf("%w: send on stream %d not open", ErrConnectorError, id)
	}
	return wire.WriteMessage(c.session, wire.Message{
		StreamID:  id,
		MessageID: src.PointOfRef(),
		EventTime: eventTime,
		Key:       src.Key(),
		Payload:   payload,
	})
}

// Next drives one round-robin scheduler step and sends any resulting
// message frame over the session.
func (c *Connector) Next() (scheduler.Result, error) {
	res := c.sched.Next()
	if res.Kind != scheduler.ResultMessage {
		return res, nil
	}
	if c.session == nil {
		return res, ErrNotConnected
	}
	if err := wire.WriteMessage(c.session, wire.Message{
		StreamID:  res.StreamID,
		MessageID: res.MessageID,
		EventTime: 0,
		Key:       res.Key,
		Payload:   res.Payload,
	}); err != nil {
		return res, fmt.Errorf("sending message for stream %d: %w", res.StreamID, err)
	}
	return res, nil
}

// HandleInbound processes exactly one inbound event frame from the engine,
// applying it to the registry per spec.md §4.4.
func (c *Connector) HandleInbound() error {
	if c.session == nil {
		return ErrNotConnected
	}
	magic, err := wire.PeekMagic(c.session.Conn())
	if err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return fmt.Errorf("reading inbound magic: %w", err)
	}

	switch magic {
	case wire.MagicStreamAdded:
		f, err := wire.ReadStreamAddedBody(c.session.Conn())
		if err != nil {
			return fmt.Errorf("decoding stream_added: %w", err)
		}
		return c.reg.StreamAdded(f.StreamID, f.POR)

	case wire.MagicStreamOpened:
		f, err := wire.ReadStreamOpenedBody(c.session.Conn())
		if err != nil {
			return fmt.Errorf("decoding stream_opened: %w", err)
		}
		if err := c.reg.StreamOpened(f.StreamID, f.POR); err != nil {
			return err
		}
		c.openStreamLog(f.StreamID)
		return nil

	case wire.MagicStreamClosed:
		f, err := wire.ReadStreamClosedBody(c.session.Conn())
		if err != nil {
			return fmt.Errorf("decoding stream_closed: %w", err)
		}
		c.reg.StreamClosed(f.StreamID)
		return nil

	case wire.MagicAck:
		f, err := wire.ReadAckBody(c.session.Conn())
		if err != nil {
			return fmt.Errorf("decoding ack: %w", err)
		}
		finalize, err := c.reg.StreamAcked(f.StreamID, f.POR)
		if err != nil {
			return err
		}
		if finalize {
			c.logFor(f.StreamID).Debug("stream closed", slog.Uint64("stream_id", f.StreamID))
			if err := c.reg.CloseAndDelete(f.StreamID); err != nil {
				return err
			}
			c.closeStreamLog(f.StreamID)
		}
		return nil

	default:
		return fmt.Errorf("%w: unexpected inbound frame %q", ErrProtocolError, magic)
	}
}

// PollInbound processes at most one inbound event frame, waiting no longer
// than timeout for it to arrive. If nothing arrives in time it returns nil
// rather than blocking, so a single goroutine can interleave inbound
// processing with scheduler ticks (via Next) on a fixed cadence instead of
// handing the registry to two goroutines: registry.Registry is "not safe
// for concurrent use ... serializes all access through the connector's
// event loop" (spec.md §5), and PollInbound plus a single calling loop is
// that event loop. Grounded on the teacher's control channel reader, which
// polls a magic-prefixed frame under a rolling SetReadDeadline the same way.
func (c *Connector) PollInbound(timeout time.Duration) error {
	if c.session == nil {
		return ErrNotConnected
	}
	conn := c.session.Conn()
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("setting inbound read deadline: %w", err)
	}
	err := c.HandleInbound()
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return nil
	}
	return err
}

// PendingEOS implements housekeeper.PendingSource, exposing the registry's
// stalled-EOS predicate without handing callers the registry itself.
func (c *Connector) PendingEOS() []registry.PendingEOSEntry {
	return c.reg.PendingEOS()
}

// Close tears down the session.
func (c *Connector) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
