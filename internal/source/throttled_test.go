// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nishisan-dev/streamconnect/internal/wire"
)

func TestThrottled_FramedModeUnlimited(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.framed")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, rec := range [][]byte{[]byte("a"), []byte("bb")} {
		if err := wire.WriteFrame(f, rec); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	f.Close()

	src, err := NewThrottled(path, ModeFramed, 0)
	if err != nil {
		t.Fatalf("NewThrottled: %v", err)
	}
	defer src.Close()

	out := src.Next()
	if out.Kind != KindRecord || string(out.Payload) != "a" {
		t.Fatalf("expected record 'a', got %+v", out)
	}
	out = src.Next()
	if out.Kind != KindRecord || string(out.Payload) != "bb" {
		t.Fatalf("expected record 'bb', got %+v", out)
	}
	if out := src.Next(); out.Kind != KindEnd {
		t.Fatalf("expected KindEnd, got %v", out.Kind)
	}
}

func TestThrottled_TextLinesMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.txt")
	if err := os.WriteFile(path, []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	src, err := NewThrottled(path, ModeTextLines, 0)
	if err != nil {
		t.Fatalf("NewThrottled: %v", err)
	}
	defer src.Close()

	out := src.Next()
	if out.Kind != KindRecord || string(out.Payload) != "line one\n" {
		t.Fatalf("expected first line, got %+v", out)
	}
	out = src.Next()
	if out.Kind != KindRecord || string(out.Payload) != "line two\n" {
		t.Fatalf("expected second line, got %+v", out)
	}
	if out := src.Next(); out.Kind != KindEnd {
		t.Fatalf("expected KindEnd, got %v", out.Kind)
	}
}

func TestThrottled_YieldsWithoutAdvancingPOR(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.framed")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := wire.WriteFrame(f, []byte("xxxx")); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	f.Close()

	// A 1 byte/sec limit guarantees the very first call already exceeds
	// the instantaneous rate threshold once any bytes have been read, but
	// on the first call bytesRead == 0 so it will read one record, then
	// throttle further ones. Here we just assert the no-advance invariant
	// by checking the yielded POR never passes beyond the yield point.
	src, err := NewThrottled(path, ModeFramed, 1)
	if err != nil {
		t.Fatalf("NewThrottled: %v", err)
	}
	defer src.Close()

	first := src.Next()
	if first.Kind != KindRecord {
		t.Fatalf("expected first read to succeed, got %+v", first)
	}

	// Restart the elapsed-time basis at now and inflate bytesRead, so the
	// computed rate is far above the tiny configured limit and the next read
	// must yield.
	src.firstIterAt = time.Now()
	src.bytesRead = 1 << 20

	out := src.Next()
	if out.Kind != KindYield {
		t.Fatalf("expected KindYield once over rate, got %+v", out)
	}
	if out.POR != first.POR {
		t.Errorf("yield must not advance POR: got %d, want %d", out.POR, first.POR)
	}
}

func TestThrottled_ResetToStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.framed")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, rec := range [][]byte{[]byte("a"), []byte("bb")} {
		if err := wire.WriteFrame(f, rec); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	f.Close()

	src, err := NewThrottled(path, ModeFramed, 0)
	if err != nil {
		t.Fatalf("NewThrottled: %v", err)
	}
	defer src.Close()

	src.Next()
	if err := src.Reset(MaxPOR); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	out := src.Next()
	if out.Kind != KindRecord || string(out.Payload) != "a" {
		t.Fatalf("expected 'a' after reset to start, got %+v", out)
	}
}
