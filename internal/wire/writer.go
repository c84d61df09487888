// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

func writeString(w io.Writer, s string) error {
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("writing string: %w", err)
	}
	if _, err := w.Write([]byte{'\n'}); err != nil {
		return fmt.Errorf("writing string delimiter: %w", err)
	}
	return nil
}

func writeBytesLP(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint16(len(b))); err != nil {
		return fmt.Errorf("writing length prefix: %w", err)
	}
	if len(b) == 0 {
		return nil
	}
	if _, err := w.Write(b); err != nil {
		return fmt.Errorf("writing bytes: %w", err)
	}
	return nil
}

// WriteHello writes the client handshake frame.
// Format: [Magic 4B][Version 1B][Cookie UTF-8 '\n'][ProgramName UTF-8 '\n'][InstanceName UTF-8 '\n']
func WriteHello(w io.Writer, h Hello) error {
	if _, err := w.Write(MagicHello[:]); err != nil {
		return fmt.Errorf("writing hello magic: %w", err)
	}
	if _, err := w.Write([]byte{h.Version}); err != nil {
		return fmt.Errorf("writing hello version: %w", err)
	}
	for _, s := range []string{h.Cookie, h.ProgramName, h.InstanceName} {
		if err := writeString(w, s); err != nil {
			return err
		}
	}
	return nil
}

// WriteOk writes the server's successful handshake reply.
// Format: [Magic 4B][Count uint32][Count * (StreamID uint64, POR uint64)]
func WriteOk(w io.Writer, ok Ok) error {
	if _, err := w.Write(MagicOk[:]); err != nil {
		return fmt.Errorf("writing ok magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(ok.Streams))); err != nil {
		return fmt.Errorf("writing ok count: %w", err)
	}
	for _, s := range ok.Streams {
		if err := binary.Write(w, binary.BigEndian, s.StreamID); err != nil {
			return fmt.Errorf("writing ok stream id: %w", err)
		}
		if err := binary.Write(w, binary.BigEndian, s.POR); err != nil {
			return fmt.Errorf("writing ok por: %w", err)
		}
	}
	return nil
}

// WriteHelloError writes the server's rejecting handshake reply.
func WriteHelloError(w io.Writer, e HelloError) error {
	if _, err := w.Write(MagicHelloErr[:]); err != nil {
		return fmt.Errorf("writing hello-error magic: %w", err)
	}
	return writeString(w, e.Message)
}

// WriteNotify writes a stream announcement.
// Format: [Magic 4B][StreamID uint64][NameLen uint16][Name][POR uint64]
func WriteNotify(w io.Writer, n Notify) error {
	if _, err := w.Write(MagicNotify[:]); err != nil {
		return fmt.Errorf("writing notify magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, n.StreamID); err != nil {
		return fmt.Errorf("writing notify stream id: %w", err)
	}
	if err := writeBytesLP(w, n.Name); err != nil {
		return err
	}
	return binary.Write(w, binary.BigEndian, n.POR)
}

// WriteStreamAdded writes the server's ack of Notify.
func WriteStreamAdded(w io.Writer, s StreamAdded) error {
	if _, err := w.Write(MagicStreamAdded[:]); err != nil {
		return fmt.Errorf("writing stream-added magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, s.StreamID); err != nil {
		return fmt.Errorf("writing stream-added id: %w", err)
	}
	return binary.Write(w, binary.BigEndian, s.POR)
}

// WriteStreamOpened writes the server's stream-open notification.
func WriteStreamOpened(w io.Writer, s StreamOpened) error {
	if _, err := w.Write(MagicStreamOpened[:]); err != nil {
		return fmt.Errorf("writing stream-opened magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, s.StreamID); err != nil {
		return fmt.Errorf("writing stream-opened id: %w", err)
	}
	return binary.Write(w, binary.BigEndian, s.POR)
}

// WriteStreamClosed writes the server's stream-close notification.
func WriteStreamClosed(w io.Writer, s StreamClosed) error {
	if _, err := w.Write(MagicStreamClosed[:]); err != nil {
		return fmt.Errorf("writing stream-closed magic: %w", err)
	}
	return binary.Write(w, binary.BigEndian, s.StreamID)
}

// WriteAck writes the server's processed-POR acknowledgement.
func WriteAck(w io.Writer, a Ack) error {
	if _, err := w.Write(MagicAck[:]); err != nil {
		return fmt.Errorf("writing ack magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, a.StreamID); err != nil {
		return fmt.Errorf("writing ack stream id: %w", err)
	}
	return binary.Write(w, binary.BigEndian, a.POR)
}

// WriteEOS writes the client's end-of-stream request.
func WriteEOS(w io.Writer, e EOS) error {
	if _, err := w.Write(MagicEOS[:]); err != nil {
		return fmt.Errorf("writing eos magic: %w", err)
	}
	return binary.Write(w, binary.BigEndian, e.StreamID)
}

// WriteMessage writes one record for a stream.
// Format: [Magic 4B][StreamID u64][MessageID u64][EventTime u64]
//
//	[KeyLen u16][Key][PayloadLen u32][Payload]
func WriteMessage(w io.Writer, m Message) error {
	if _, err := w.Write(MagicMessage[:]); err != nil {
		return fmt.Errorf("writing message magic: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, m.StreamID); err != nil {
		return fmt.Errorf("writing message stream id: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, m.MessageID); err != nil {
		return fmt.Errorf("writing message id: %w", err)
	}
	if err := binary.Write(w, binary.BigEndian, m.EventTime); err != nil {
		return fmt.Errorf("writing message event time: %w", err)
	}
	if err := writeBytesLP(w, m.Key); err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(m.Payload))); err != nil {
		return fmt.Errorf("writing message payload length: %w", err)
	}
	if len(m.Payload) == 0 {
		return nil
	}
	if _, err := w.Write(m.Payload); err != nil {
		return fmt.Errorf("writing message payload: %w", err)
	}
	return nil
}
