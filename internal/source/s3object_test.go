// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/nishisan-dev/streamconnect/internal/wire"
)

type fakeS3 struct {
	data []byte
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	var start, end int
	if in.Range == nil {
		start, end = 0, len(f.data)-1
	} else {
		if _, err := fmt.Sscanf(*in.Range, "bytes=%d-%d", &start, &end); err != nil {
			return nil, err
		}
	}
	if start >= len(f.data) {
		return nil, &smithy.GenericAPIError{Code: "InvalidRange", Message: "range start out of bounds"}
	}
	if end >= len(f.data) {
		end = len(f.data) - 1
	}
	chunk := f.data[start : end+1]
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(chunk))}, nil
}

func buildFramedBlob(t *testing.T, records [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, rec := range records {
		if err := wire.WriteFrame(&buf, rec); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}
	return buf.Bytes()
}

func newTestS3Object(data []byte) *S3Object {
	return &S3Object{
		client: &fakeS3{data: data},
		bucket: "bucket",
		key:    "key",
		name:   []byte("s3://bucket/key"),
		ctx:    context.Background(),
	}
}

func TestS3Object_RoundTrip(t *testing.T) {
	records := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	src := newTestS3Object(buildFramedBlob(t, records))

	wantPOR := []uint64{5, 11, 18}
	for i, want := range records {
		out := src.Next()
		if out.Kind != KindRecord {
			t.Fatalf("record %d: expected KindRecord, got %v (err=%v)", i, out.Kind, src.Err())
		}
		if string(out.Payload) != string(want) {
			t.Errorf("record %d: got %q, want %q", i, out.Payload, want)
		}
		if out.POR != wantPOR[i] {
			t.Errorf("record %d: got POR %d, want %d", i, out.POR, wantPOR[i])
		}
	}
	if out := src.Next(); out.Kind != KindEnd {
		t.Fatalf("expected KindEnd, got %v", out.Kind)
	}
}

func TestS3Object_ResetAfterPOR(t *testing.T) {
	records := [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")}
	src := newTestS3Object(buildFramedBlob(t, records))

	if err := src.Reset(5); err != nil {
		t.Fatalf("Reset(5): %v", err)
	}
	out := src.Next()
	if out.Kind != KindRecord || string(out.Payload) != "bb" {
		t.Fatalf("expected bb after reset to the offset following the first record, got %+v", out)
	}
}

func TestS3Object_ResetToStart(t *testing.T) {
	records := [][]byte{[]byte("a"), []byte("bb")}
	src := newTestS3Object(buildFramedBlob(t, records))

	src.Next()
	if err := src.Reset(MaxPOR); err != nil {
		t.Fatalf("Reset(MaxPOR): %v", err)
	}
	out := src.Next()
	if out.Kind != KindRecord || string(out.Payload) != "a" {
		t.Fatalf("expected 'a' after reset to start, got %+v", out)
	}
}

func TestClassifyS3Error_InvalidRangeBecomesEOF(t *testing.T) {
	err := classifyS3Error(&smithy.GenericAPIError{Code: "InvalidRange"})
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestClassifyS3Error_OtherErrorsWrapped(t *testing.T) {
	err := classifyS3Error(errors.New("connection reset"))
	if err == nil || !strings.Contains(err.Error(), "connection reset") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
