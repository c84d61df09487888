// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// s3GetObjectAPI is the subset of the S3 client S3Object depends on,
// allowing tests to substitute a fake without standing up real AWS
// credentials or a network call.
type s3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Object reads the framed file format from an object in S3 via ranged
// GetObject calls, two range fetches per record read (header, then payload).
// POR is the byte offset within the object, same convention as FramedFile.
type S3Object struct {
	client s3GetObjectAPI
	bucket string
	key    string
	name   []byte
	por    uint64
	err    error

	ctx context.Context
}

// NewS3Object builds an S3Object source for bucket/key. The supplied context
// is used for every GetObject call this source makes over its lifetime.
func NewS3Object(ctx context.Context, client *s3.Client, bucket, key string) *S3Object {
	return &S3Object{
		client: client,
		bucket: bucket,
		key:    key,
		name:   []byte(fmt.Sprintf("s3://%s/%s", bucket, key)),
		ctx:    ctx,
	}
}

func (s *S3Object) Name() []byte { return s.name }
func (s *S3Object) Key() []byte  { return []byte(s.key) }

func (s *S3Object) PointOfRef() uint64 { return s.por }

// Reset repositions by byte offset, matching FramedFile's semantics: POR
// already names the byte offset the next frame header begins at, so Reset
// just moves the cursor there. MaxPOR rewinds to the object's start.
func (s *S3Object) Reset(por uint64) error {
	if por == MaxPOR {
		por = 0
	}
	s.por = por
	return nil
}

func (s *S3Object) rangeHeader(start int64, length int64) string {
	return fmt.Sprintf("bytes=%d-%d", start, start+length-1)
}

func (s *S3Object) getRange(start int64, length int64) ([]byte, error) {
	rng := s.rangeHeader(start, length)
	out, err := s.client.GetObject(s.ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
		Range:  aws.String(rng),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// readFrame fetches the 4-byte length header at the current POR, then the
// declared payload, each as a separate ranged GetObject call.
func (s *S3Object) readFrame() ([]byte, error) {
	header, err := s.getRange(int64(s.por), 4)
	if err != nil {
		return nil, classifyS3Error(err)
	}
	if len(header) == 0 {
		return nil, io.EOF
	}
	if len(header) < 4 {
		return nil, io.ErrUnexpectedEOF
	}
	length := binary.BigEndian.Uint32(header)
	if length == 0 {
		s.por += 4
		return nil, nil
	}
	payload, err := s.getRange(int64(s.por)+4, int64(length))
	if err != nil {
		return nil, classifyS3Error(err)
	}
	if uint32(len(payload)) < length {
		return nil, io.ErrUnexpectedEOF
	}
	s.por += 4 + uint64(length)
	return payload, nil
}

func (s *S3Object) Next() Outcome {
	payload, err := s.readFrame()
	if errors.Is(err, io.EOF) {
		return End()
	}
	if err != nil {
		s.err = err
		return End()
	}
	return Record(payload, s.por)
}

// Err returns the error that caused the most recent End outcome, if any.
func (s *S3Object) Err() error { return s.err }

func (s *S3Object) Acked(por uint64) {}

func (s *S3Object) Close() error { return nil }

// s3InvalidRange is the S3 error code returned when a GetObject range
// request starts past the end of the object, the signal that a framed
// reader has reached the end of the object cleanly.
const s3InvalidRange = "InvalidRange"

func classifyS3Error(err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == s3InvalidRange {
		return io.EOF
	}
	return fmt.Errorf("fetching s3 range: %w", err)
}
