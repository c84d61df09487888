// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package wire implements the binary frame layer of the at-least-once
// connector protocol: the handshake, per-stream control messages, and the
// data Message frame. Each frame starts with a 4-byte magic, mirroring the
// distinct magic-per-frame-type convention the rest of this protocol family
// uses for its own wire messages.
package wire

import "errors"

// ProtocolVersion is the version byte sent in Hello.
const ProtocolVersion byte = 0x01

// U64Max is the POR sentinel meaning "the engine has no record of this stream".
const U64Max = ^uint64(0)

// Frame magic bytes, one per message kind.
var (
	MagicHello        = [4]byte{'C', 'H', 'L', 'O'}
	MagicOk           = [4]byte{'S', 'O', 'K', '0'}
	MagicHelloErr     = [4]byte{'H', 'E', 'R', 'R'}
	MagicNotify       = [4]byte{'N', 'T', 'F', 'Y'}
	MagicStreamAdded  = [4]byte{'S', 'A', 'D', 'D'}
	MagicStreamOpened = [4]byte{'S', 'O', 'P', 'N'}
	MagicStreamClosed = [4]byte{'S', 'C', 'L', 'S'}
	MagicAck          = [4]byte{'A', 'C', 'K', '0'}
	MagicEOS          = [4]byte{'E', 'O', 'S', '0'}
	MagicMessage      = [4]byte{'M', 'S', 'G', '0'}
)

// Errors returned while decoding frames.
var (
	ErrInvalidMagic   = errors.New("wire: invalid magic bytes")
	ErrInvalidVersion = errors.New("wire: unsupported protocol version")
	ErrTruncatedFrame = errors.New("wire: truncated frame")
	ErrUnknownFrame   = errors.New("wire: unrecognized frame magic")
)

// Hello is the client-to-server handshake frame.
type Hello struct {
	Version      byte
	Cookie       string
	ProgramName  string
	InstanceName string
}

// StreamPOR pairs a stream id with the engine's last-known point of reference
// for it, used inside Ok to seed the client's registry on (re)connect.
type StreamPOR struct {
	StreamID uint64
	POR      uint64
}

// Ok is the server's successful reply to Hello.
type Ok struct {
	Streams []StreamPOR
}

// HelloError is the server's rejecting reply to Hello.
type HelloError struct {
	Message string
}

// Notify announces a stream and its current point of reference. Sent by the
// client whenever add_source registers a new stream.
type Notify struct {
	StreamID uint64
	Name     []byte
	POR      uint64
}

// StreamAdded is the server's acknowledgement that it has recorded Notify.
type StreamAdded struct {
	StreamID uint64
	POR      uint64
}

// StreamOpened tells the client it may begin sending Message frames for a stream.
type StreamOpened struct {
	StreamID uint64
	POR      uint64
}

// StreamClosed tells the client a stream is no longer open on the engine side.
type StreamClosed struct {
	StreamID uint64
}

// Ack reports the point of reference the engine has durably processed.
type Ack struct {
	StreamID uint64
	POR      uint64
}

// EOS requests orderly closure of a stream; sent by the client.
type EOS struct {
	StreamID uint64
}

// Message carries one record for a stream.
type Message struct {
	StreamID  uint64
	MessageID uint64 // the record's POR
	EventTime uint64
	Key       []byte
	Payload   []byte
}
