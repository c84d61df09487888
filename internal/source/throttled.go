// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/nishisan-dev/streamconnect/internal/wire"
)

// Mode selects how Throttled carves records out of the underlying file.
type Mode int

const (
	// ModeFramed reads the framed file format ([u32 length][payload]).
	ModeFramed Mode = iota
	// ModeTextLines reads newline-delimited ASCII records.
	ModeTextLines
)

// rateWindowFactor bounds how long the throttle lets its accounting window
// run before resetting, expressed as a multiple of limitRate bytes. This
// mirrors the reference reader's "roughly every minute" reset rule.
const rateWindowFactor = 60

// Throttled wraps a file with a cooperative byte-rate limiter: exceeding the
// configured rate makes Next() yield instead of blocking, preserving the
// single-task scheduling model (spec §5).
type Throttled struct {
	file      *os.File
	br        *bufio.Reader
	name      []byte
	key       []byte
	mode      Mode
	limitRate int64

	bytesRead    int64
	firstIterAt  time.Time
	haveIterated bool
	err          error
}

// NewThrottled opens path in the given mode with a target rate of
// limitRateBytesPerSec bytes/second. A non-positive rate disables throttling.
func NewThrottled(path string, mode Mode, limitRateBytesPerSec int64) (*Throttled, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening throttled file %q: %w", path, err)
	}
	t := &Throttled{
		file:      f,
		br:        bufio.NewReader(f),
		name:      []byte(path),
		key:       []byte(path),
		mode:      mode,
		limitRate: limitRateBytesPerSec,
	}
	return t, nil
}

func (t *Throttled) Name() []byte { return t.name }
func (t *Throttled) Key() []byte  { return t.key }

func (t *Throttled) PointOfRef() uint64 {
	pos, err := t.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return MaxPOR
	}
	// bufio.Reader may have buffered ahead of the underlying file's offset.
	return uint64(pos) - uint64(t.br.Buffered())
}

// Reset repositions the source. MaxPOR rewinds to the start; any other value
// seeks directly to por without discarding a record, matching the reference
// ThrottledFileReader (like FramedFile, it does not auto-advance past POR).
func (t *Throttled) Reset(por uint64) error {
	pos := int64(por)
	if por == MaxPOR {
		pos = 0
	}
	if _, err := t.file.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("resetting throttled file to %d: %w", pos, err)
	}
	t.br.Reset(t.file)
	return nil
}

func (t *Throttled) Next() Outcome {
	now := time.Now()
	if !t.haveIterated {
		t.firstIterAt = now
		t.haveIterated = true
	}

	if t.limitRate > 0 {
		elapsed := now.Sub(t.firstIterAt).Seconds()
		if elapsed <= 0 {
			elapsed = 0.000001
		}
		readRate := float64(t.bytesRead) / elapsed
		if readRate > float64(t.limitRate) {
			return Yield(t.PointOfRef())
		}
	}

	var record []byte
	switch t.mode {
	case ModeTextLines:
		line, err := t.br.ReadBytes('\n')
		if len(line) == 0 && errors.Is(err, io.EOF) {
			return End()
		}
		if err != nil && !errors.Is(err, io.EOF) {
			t.err = err
			return End()
		}
		record = line
	default:
		payload, err := wire.ReadFrame(t.br)
		if errors.Is(err, io.EOF) {
			return End()
		}
		if err != nil {
			t.err = err
			return End()
		}
		record = payload
	}

	// Reset the rate-accounting basis roughly every minute of equivalent
	// bytes, to avoid unbounded float drift in the rate computation.
	if t.limitRate > 0 && t.bytesRead > t.limitRate*rateWindowFactor {
		t.bytesRead = 0
		t.firstIterAt = now.Add(-time.Millisecond)
	}
	t.bytesRead += int64(len(record))

	return Record(record, t.PointOfRef())
}

// Err returns the error that caused the most recent End outcome, if any.
func (t *Throttled) Err() error { return t.err }

func (t *Throttled) Acked(por uint64) {}

func (t *Throttled) Close() error {
	if err := t.file.Close(); err != nil {
		return fmt.Errorf("closing throttled file: %w", err)
	}
	return nil
}
