// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package scheduler implements round-robin message dispatch across the set
// of currently-open streams, generalized from the teacher's chunk dispatcher
// (round-robin skip-dead-or-inactive loop over parallel upload streams) to
// message dispatch across open logical streams.
package scheduler

import (
	"github.com/nishisan-dev/streamconnect/internal/registry"
	"github.com/nishisan-dev/streamconnect/internal/source"
)

// Result is what one Next() call produces.
type Result struct {
	Kind     ResultKind
	StreamID uint64
	MessageID uint64
	Key       []byte
	Payload   []byte
}

// ResultKind discriminates a scheduler Result.
type ResultKind int

const (
	// ResultNone means no message is ready this tick; try again.
	ResultNone ResultKind = iota
	// ResultMessage carries a message ready to send for an open stream.
	ResultMessage
	// ResultEndOfAllSources means every source has been added and closed:
	// there is nothing left to ever schedule.
	ResultEndOfAllSources
)

// Remover is the capability the scheduler needs from its connector to retire
// a source whose Next() signalled end-of-data, without scheduler owning the
// full connector API.
type Remover interface {
	RemoveByID(id uint64) error
}

// Scheduler drives the registry's ordered key list with a single cursor,
// advancing exactly one step per Next() call regardless of whether that
// step produced a message (spec.md §4.5 fairness guarantee).
type Scheduler struct {
	reg     *registry.Registry
	remover Remover
}

// New builds a Scheduler over reg, using remover to retire exhausted
// sources discovered during Next().
func New(reg *registry.Registry, remover Remover) *Scheduler {
	return &Scheduler{reg: reg, remover: remover}
}

// Next runs one round-robin step per spec.md §4.5.
func (s *Scheduler) Next() Result {
	keys := s.reg.Keys()
	if len(keys) == 0 {
		if !s.reg.AddedAny() {
			return Result{Kind: ResultNone}
		}
		if !s.reg.HasAnyClosed() {
			return Result{Kind: ResultNone}
		}
		return Result{Kind: ResultEndOfAllSources}
	}

	cursor := (s.reg.Cursor() + 1) % len(keys)
	s.reg.SetCursor(cursor)
	id := keys[cursor]

	state, known := s.reg.State(id)
	if !known || state != registry.Open {
		return Result{Kind: ResultNone}
	}

	src, ok := s.reg.Source(id)
	if !ok {
		return Result{Kind: ResultNone}
	}

	outcome := src.Next()
	switch outcome.Kind {
	case source.KindYield:
		return Result{Kind: ResultNone}
	case source.KindEnd:
		_ = s.remover.RemoveByID(id)
		return Result{Kind: ResultNone}
	default:
		return Result{
			Kind:      ResultMessage,
			StreamID:  id,
			MessageID: outcome.POR,
			Key:       src.Key(),
			Payload:   outcome.Payload,
		}
	}
}
