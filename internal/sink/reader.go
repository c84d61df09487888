// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package sink is the passive counterpart to internal/connector (C6): it
// accepts connections from one or more source connectors and decodes
// length-prefixed frames off each, presenting them one at a time through a
// single blocking Read call. Grounded on
// original_source's connector.py SinkConnector (_select_any/_read_one) and
// the teacher's internal/server/handler.go connection bookkeeping, with
// Go's lack of a direct select(2)-over-fds primitive bridged by a
// goroutine-per-connection feeding a single dispatch channel, per
// SPEC_FULL.md §5.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/nishisan-dev/streamconnect/internal/wire"
)

// Frame is one decoded payload read off some accepted connection.
type Frame struct {
	ConnID  uint64
	Payload []byte
}

type eventKind int

const (
	eventAccepted eventKind = iota
	eventData
	eventConnError
	eventAcceptError
)

type event struct {
	kind   eventKind
	connID uint64
	conn   net.Conn
	data   []byte
	err    error
}

// Reader accepts connections on a listener and decodes framed payloads off
// each, using decoder to locate frame boundaries (spec.md §4.1/§4.6).
//
// Only Read (called from a single goroutine) touches buffers, pending, and
// conns; acceptLoop and each connection's readLoop only ever send on
// events, so no locking is needed on the consumer-side state.
type Reader struct {
	ln      net.Listener
	decoder wire.Decoder
	log     *slog.Logger

	events chan event

	buffers map[uint64][]byte
	pending []uint64
	conns   map[uint64]net.Conn

	nextConnID uint64

	closeOnce sync.Once
	closed    chan struct{}
}

// NewReader starts accepting connections on ln immediately.
func NewReader(ln net.Listener, decoder wire.Decoder, log *slog.Logger) *Reader {
	if log == nil {
		log = slog.Default()
	}
	r := &Reader{
		ln:      ln,
		decoder: decoder,
		log:     log,
		events:  make(chan event, 64),
		buffers: make(map[uint64][]byte),
		conns:   make(map[uint64]net.Conn),
		closed:  make(chan struct{}),
	}
	go r.acceptLoop()
	return r
}

func (r *Reader) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			r.sendEvent(event{kind: eventAcceptError, err: err})
			return
		}
		id := atomic.AddUint64(&r.nextConnID, 1)
		r.sendEvent(event{kind: eventAccepted, connID: id, conn: conn})
		go r.readLoop(id, conn)
	}
}

func (r *Reader) readLoop(id uint64, conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			if !r.sendEvent(event{kind: eventData, connID: id, data: data}) {
				return
			}
		}
		if err != nil {
			r.sendEvent(event{kind: eventConnError, connID: id, err: err})
			return
		}
	}
}

// sendEvent returns false if the Reader was closed before the event could
// be delivered.
func (r *Reader) sendEvent(ev event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.closed:
		return false
	}
}

// Read blocks until one framed payload is available, the acceptor enters
// an exceptional state (ErrUnexpectedSocket, fatal), or ctx is done.
// Per-connection exceptional state tears down only that connection and
// never surfaces as an error to the caller.
func (r *Reader) Read(ctx context.Context) (Frame, error) {
	for {
		for len(r.pending) > 0 {
			id := r.pending[0]
			r.pending = r.pending[1:]

			buf, ok := r.buffers[id]
			if !ok {
				continue // torn down since it was queued
			}
			payload, decoded := r.readOne(id, buf)
			if !decoded {
				continue
			}
			if len(r.buffers[id]) >= r.decoder.HeaderLength() {
				r.pending = append(r.pending, id)
			}
			return Frame{ConnID: id, Payload: payload}, nil
		}

		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-r.closed:
			return Frame{}, ErrClosed
		case ev := <-r.events:
			r.apply(ev)
			if ev.kind == eventAcceptError {
				return Frame{}, fmt.Errorf("%w: %v", ErrUnexpectedSocket, ev.err)
			}
		}
	}
}

func (r *Reader) apply(ev event) {
	switch ev.kind {
	case eventAccepted:
		r.conns[ev.connID] = ev.conn
		r.buffers[ev.connID] = nil
	case eventData:
		if _, ok := r.buffers[ev.connID]; !ok {
			return // already torn down
		}
		r.buffers[ev.connID] = append(r.buffers[ev.connID], ev.data...)
		r.pending = append(r.pending, ev.connID)
	case eventConnError:
		r.teardown(ev.connID)
	}
}

// readOne extracts at most one frame from buf, matching
// connector.py's _read_one: if a full header plus its declared payload
// isn't yet buffered, it reports no decode and leaves buf untouched.
func (r *Reader) readOne(id uint64, buf []byte) ([]byte, bool) {
	hl := r.decoder.HeaderLength()
	if len(buf) < hl {
		return nil, false
	}
	plen := int(r.decoder.PayloadLength(buf[:hl]))
	if len(buf) < hl+plen {
		return nil, false
	}
	payload := make([]byte, plen)
	copy(payload, buf[hl:hl+plen])
	r.buffers[id] = buf[hl+plen:]
	return payload, true
}

func (r *Reader) teardown(id uint64) {
	if conn, ok := r.conns[id]; ok {
		conn.Close()
	}
	delete(r.conns, id)
	delete(r.buffers, id)
	r.log.Debug("sink connection torn down", slog.Uint64("conn_id", id))
}

// Close stops accepting new connections and closes every tracked one.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		err = r.ln.Close()
		for _, conn := range r.conns {
			conn.Close()
		}
	})
	return err
}
