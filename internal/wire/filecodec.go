// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Decoder knows how to carve payloads out of a byte stream whose frames
// share a fixed-size header carrying the payload length. The sink reader
// uses this to stay agnostic of the concrete wire format its peers speak.
type Decoder interface {
	// HeaderLength returns the number of bytes that make up a frame's header.
	HeaderLength() int
	// PayloadLength returns the payload size encoded in header, which must
	// be exactly HeaderLength() bytes.
	PayloadLength(header []byte) uint32
}

// FrameDecoder is the Decoder for the framed file format: a 4-byte
// big-endian length prefix followed by that many bytes of payload.
type FrameDecoder struct{}

func (FrameDecoder) HeaderLength() int { return 4 }

func (FrameDecoder) PayloadLength(header []byte) uint32 {
	return binary.BigEndian.Uint32(header)
}

// WriteFrame writes one [u32 length][payload] record, the framed file
// format used by source.FramedFile and its throttled/compressed variants.
func WriteFrame(w io.Writer, payload []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(payload))); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one [u32 length][payload] record.
//
// A clean EOF before any byte of the length header is read is returned as
// io.EOF unchanged — the normal end of a well-formed file. Any other
// truncation (a partial header, or a payload shorter than its declared
// length) is io.ErrUnexpectedEOF, signaling a corrupt or mid-write file
// per spec.md's framing strictness requirement.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	n, err := io.ReadFull(r, header[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return nil, nil
	}
	if length > maxFrameBytes {
		return nil, fmt.Errorf("frame length %d exceeds %d byte bound", length, maxFrameBytes)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, io.ErrUnexpectedEOF
	}
	return payload, nil
}
