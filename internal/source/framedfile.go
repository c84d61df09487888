// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nishisan-dev/streamconnect/internal/wire"
)

// FramedFile reads the framed file format ([u32 length][payload]...) from a
// seekable file, resettable by byte offset.
type FramedFile struct {
	file *os.File
	name []byte
	key  []byte
	err  error
}

// NewFramedFile opens path for reading in framed-file mode. name and key
// are both set to path's bytes.
func NewFramedFile(path string) (*FramedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening framed file %q: %w", path, err)
	}
	return &FramedFile{
		file: f,
		name: []byte(path),
		key:  []byte(path),
	}, nil
}

func (f *FramedFile) Name() []byte { return f.name }
func (f *FramedFile) Key() []byte  { return f.key }

func (f *FramedFile) PointOfRef() uint64 {
	pos, err := f.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return MaxPOR
	}
	return uint64(pos)
}

// Reset seeks to por. MaxPOR means seek to the start of the file. Otherwise
// it seeks directly to por: since POR is defined as the byte offset at
// which the next header begins, por already points at the start of the
// record following whatever was last acked, so no further discard is
// needed.
func (f *FramedFile) Reset(por uint64) error {
	if por == MaxPOR {
		por = 0
	}
	if _, err := f.file.Seek(int64(por), io.SeekStart); err != nil {
		return fmt.Errorf("resetting framed file to %d: %w", por, err)
	}
	return nil
}

func (f *FramedFile) Next() Outcome {
	payload, err := wire.ReadFrame(f.file)
	if errors.Is(err, io.EOF) {
		return End()
	}
	if err != nil {
		// A truncated frame mid-stream is a hard error (spec §4.1); record
		// it so the caller can distinguish this from a clean end-of-file
		// via Err, while still reporting End to the scheduler so the
		// stream is removed rather than spun on forever.
		f.err = err
		return End()
	}
	return Record(payload, f.PointOfRef())
}

// Err returns the error that caused the most recent End outcome, if any. A
// clean end-of-file leaves this nil.
func (f *FramedFile) Err() error { return f.err }

func (f *FramedFile) Acked(por uint64) {}

func (f *FramedFile) Close() error {
	if err := f.file.Close(); err != nil {
		return fmt.Errorf("closing framed file: %w", err)
	}
	return nil
}
