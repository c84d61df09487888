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

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"

	"github.com/nishisan-dev/streamconnect/internal/wire"
)

// gzipStream is the subset of *gzip.Reader / *pgzip.Reader GzipFramedFile
// needs, letting it pick either decompressor without duplicating the
// read/reset logic below.
type gzipStream interface {
	io.Reader
	Close() error
}

// largeFileThreshold is the size above which NewGzipFramedFile prefers
// klauspost/pgzip's parallel decompressor over klauspost/compress/gzip's
// single-goroutine one.
const largeFileThreshold = 64 * 1024 * 1024

// GzipFramedFile reads the framed file format from a gzip-compressed file.
// Because a gzip stream is not seekable by arbitrary byte offset, POR here
// is a monotonic record counter rather than a byte offset: Reset(por)
// rewinds the decompressor to the start and skips forward por records.
type GzipFramedFile struct {
	path     string
	name     []byte
	key      []byte
	parallel bool

	file *os.File
	gz   gzipStream
	br   *bufio.Reader
	por  uint64
	err  error
}

// NewGzipFramedFile opens a gzip-compressed framed file for streaming
// reads, automatically switching to klauspost/pgzip's parallel
// decompressor once the file exceeds largeFileThreshold.
func NewGzipFramedFile(path string) (*GzipFramedFile, error) {
	parallel := false
	if info, err := os.Stat(path); err == nil && info.Size() > largeFileThreshold {
		parallel = true
	}
	g := &GzipFramedFile{path: path, name: []byte(path), key: []byte(path), parallel: parallel}
	if err := g.openAt(0); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *GzipFramedFile) openAt(skipRecords uint64) error {
	if g.gz != nil {
		g.gz.Close()
	}
	if g.file != nil {
		g.file.Close()
	}

	f, err := os.Open(g.path)
	if err != nil {
		return fmt.Errorf("opening gzip framed file %q: %w", g.path, err)
	}
	gz, err := g.newDecompressor(f)
	if err != nil {
		f.Close()
		return fmt.Errorf("opening gzip stream for %q: %w", g.path, err)
	}
	g.file = f
	g.gz = gz
	g.br = bufio.NewReader(gz)
	g.por = 0

	for i := uint64(0); i < skipRecords; i++ {
		if _, err := wire.ReadFrame(g.br); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("skipping to record %d in %q: %w", skipRecords, g.path, err)
		}
		g.por++
	}
	return nil
}

// newDecompressor opens gzip.Reader or pgzip.Reader over f depending on
// g.parallel. pgzip's reader decompresses ahead of the consumer on its own
// goroutine pool, which pays off once a file is large enough that keeping
// the CPU ahead of disk read latency matters more than the extra
// goroutines; small files stay on klauspost/compress/gzip.
func (g *GzipFramedFile) newDecompressor(f *os.File) (gzipStream, error) {
	if g.parallel {
		return pgzip.NewReader(f)
	}
	return gzip.NewReader(f)
}

func (g *GzipFramedFile) Name() []byte { return g.name }
func (g *GzipFramedFile) Key() []byte  { return g.key }

func (g *GzipFramedFile) PointOfRef() uint64 { return g.por }

// Reset rewinds the gzip stream to the start and replays exactly por
// records, so the next Next() call resumes at the record right after the
// one last reported as por (matching FramedFile's "POR already names the
// next position" convention, since gzip has no seekable byte offset to
// mirror it with). MaxPOR means start over.
func (g *GzipFramedFile) Reset(por uint64) error {
	if por == MaxPOR {
		return g.openAt(0)
	}
	return g.openAt(por)
}

func (g *GzipFramedFile) Next() Outcome {
	payload, err := wire.ReadFrame(g.br)
	if errors.Is(err, io.EOF) {
		return End()
	}
	if err != nil {
		g.err = err
		return End()
	}
	g.por++
	return Record(payload, g.por)
}

// Err returns the error that caused the most recent End outcome, if any.
func (g *GzipFramedFile) Err() error { return g.err }

func (g *GzipFramedFile) Acked(por uint64) {}

func (g *GzipFramedFile) Close() error {
	if err := g.gz.Close(); err != nil {
		g.file.Close()
		return fmt.Errorf("closing gzip stream: %w", err)
	}
	if err := g.file.Close(); err != nil {
		return fmt.Errorf("closing gzip framed file: %w", err)
	}
	return nil
}
