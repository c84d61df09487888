// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package source implements the producer side of the connector: the Source
// capability surface and the concrete readers that feed a scheduler.
package source

import (
	"errors"

	"github.com/nishisan-dev/streamconnect/internal/wire"
)

// MaxPOR is the point-of-reference sentinel meaning "no prior progress".
const MaxPOR = wire.U64Max

// ErrEndOfData signals a source is permanently exhausted. It is distinct
// from a Yield outcome, which means "nothing ready yet, try again".
var ErrEndOfData = errors.New("source: end of data")

// Outcome is the three-way result of a call to Next. Exactly one field is
// meaningful, selected by Kind; this sum-type shape avoids overloading a nil
// payload to mean both "no record yet" and "no more records ever".
type Outcome struct {
	Kind    OutcomeKind
	Payload []byte
	POR     uint64
}

// OutcomeKind discriminates an Outcome.
type OutcomeKind int

const (
	// KindRecord carries a record and the POR immediately after it.
	KindRecord OutcomeKind = iota
	// KindYield means no record is available right now; POR is unchanged
	// and must not be treated as progress.
	KindYield
	// KindEnd means the source is exhausted and should be removed.
	KindEnd
)

// Record builds a KindRecord outcome.
func Record(payload []byte, por uint64) Outcome {
	return Outcome{Kind: KindRecord, Payload: payload, POR: por}
}

// Yield builds a KindYield outcome carrying the unchanged POR.
func Yield(por uint64) Outcome {
	return Outcome{Kind: KindYield, POR: por}
}

// End builds a KindEnd outcome.
func End() Outcome {
	return Outcome{Kind: KindEnd}
}

// Source is the capability surface every producer must implement. A single
// source is never accessed concurrently: the scheduler drives it from one
// logical task (spec §5).
type Source interface {
	// Name is the human-readable identity used to derive the stream id.
	Name() []byte
	// Key is the partitioning key attached to every emitted record.
	Key() []byte
	// PointOfRef returns the current point of reference.
	PointOfRef() uint64
	// Reset repositions the source so the next Next() call resumes after por.
	// por == MaxPOR means "rewind to the beginning".
	Reset(por uint64) error
	// Next produces the next outcome. It must never block.
	Next() Outcome
	// Acked is called when the engine acknowledges durable processing of a
	// POR produced by this source. Most sources can no-op this.
	Acked(por uint64)
	// Close releases any resources the source holds.
	Close() error
}
