// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package registry tracks every stream the connector knows about, its
// source, and its position in the client-view state machine
// (Joining/Open/PendingEosAck/Closed).
package registry

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nishisan-dev/streamconnect/internal/source"
	"github.com/nishisan-dev/streamconnect/internal/wire"
)

// State is a stream's client-view lifecycle stage.
type State int

const (
	Joining State = iota
	Open
	PendingEosAck
	Closed
)

func (s State) String() string {
	switch s {
	case Joining:
		return "joining"
	case Open:
		return "open"
	case PendingEosAck:
		return "pending_eos_ack"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Errors surfaced by registry operations, matching spec.md's error taxonomy.
var (
	ErrDuplicateSource = errors.New("registry: duplicate source")
	ErrUnknownStream   = errors.New("registry: unknown stream")
	ErrAckOverrun      = errors.New("registry: ack point of reference exceeds eos point of reference")
	ErrNotRemoved      = errors.New("registry: source not in pending_eos_ack before close")
)

// entry is the registry's bookkeeping record for one stream_id. source is
// nil when the engine has reported state for an id before the matching
// add_source call has arrived locally (spec.md §4.4, stream_added).
type entry struct {
	src            source.Source
	state          State
	acked          uint64
	hasAcked       bool
	eosPOR         uint64
	pendingPOR     uint64 // engine_POR recorded before add_source arrives, see stream_added
	havePendingPOR bool
	pendingSince   time.Time // set when entering PendingEosAck, for housekeeper sweeps
}

// Registry is the sole owner of every stream's source and lifecycle state.
// It is not safe for concurrent use: the single-threaded cooperative model
// (spec.md §5) serializes all access through the connector's event loop.
type Registry struct {
	entries map[uint64]*entry
	keys    []uint64
	cursor  int

	addedAny bool
	closed   map[uint64]uint64 // stream_id -> final acked POR
}

// New returns an empty registry with its scheduler cursor at -1.
func New() *Registry {
	return &Registry{
		entries: make(map[uint64]*entry),
		cursor:  -1,
		closed:  make(map[uint64]uint64),
	}
}

// Add registers a new source under id, inserting it into Joining. Returns
// ErrDuplicateSource if id is already registered and live.
func (r *Registry) Add(id uint64, src source.Source) error {
	r.addedAny = true
	if e, ok := r.entries[id]; ok && e.src != nil {
		return fmt.Errorf("%w: id %d", ErrDuplicateSource, id)
	}

	e, existed := r.entries[id]
	if existed {
		// The engine already reported state for this id via stream_added
		// before the local add_source call arrived; apply it now. That entry
		// was never scheduled, so it joins the key list here.
		e.src = src
		r.keys = append(r.keys, id)
		if e.havePendingPOR && e.pendingPOR != src.PointOfRef() {
			if err := src.Reset(e.pendingPOR); err != nil {
				return fmt.Errorf("applying deferred reset for stream %d: %w", id, err)
			}
		}
	} else {
		e = &entry{src: src, state: Joining}
		r.entries[id] = e
		r.keys = append(r.keys, id)
	}
	e.state = Joining
	return nil
}

// StreamAdded applies an inbound stream_added(id, engine_POR) event. If the
// source is already known and its POR differs, it is reset to engine_POR.
// If the id is not yet known locally, the POR is recorded for when Add
// eventually registers it.
func (r *Registry) StreamAdded(id uint64, enginePOR uint64) error {
	e, ok := r.entries[id]
	if !ok {
		r.entries[id] = &entry{pendingPOR: enginePOR, havePendingPOR: true}
		return nil
	}
	if e.src == nil {
		e.pendingPOR = enginePOR
		e.havePendingPOR = true
		return nil
	}
	if e.src.PointOfRef() != enginePOR {
		if err := e.src.Reset(enginePOR); err != nil {
			return fmt.Errorf("resetting stream %d to engine por %d: %w", id, enginePOR, err)
		}
	}
	return nil
}

// StreamOpened applies an inbound stream_opened(id, engine_POR) event.
func (r *Registry) StreamOpened(id uint64, enginePOR uint64) error {
	e, ok := r.entries[id]
	if !ok || e.src == nil {
		return fmt.Errorf("%w: stream_opened for id %d", ErrUnknownStream, id)
	}
	if e.state == Joining {
		if e.src.PointOfRef() != enginePOR {
			if err := e.src.Reset(enginePOR); err != nil {
				return fmt.Errorf("resetting stream %d to engine por %d: %w", id, enginePOR, err)
			}
		}
	}
	e.state = Open
	return nil
}

// StreamClosed applies an inbound stream_closed(id) event.
func (r *Registry) StreamClosed(id uint64) {
	e, ok := r.entries[id]
	if !ok || e.src == nil {
		return
	}
	switch e.state {
	case Open:
		e.state = Joining
	case PendingEosAck:
		e.state = Joining
		e.havePendingPOR = false
		e.pendingSince = time.Time{}
	case Closed:
		// Already closed; nothing to do beyond a caller-side log.
	}
}

// StreamAcked applies an inbound stream_acked(id, ack_POR) event and returns
// true when this ack finalized the stream's closure (caller should invoke
// CloseAndDelete).
func (r *Registry) StreamAcked(id uint64, ackPOR uint64) (finalize bool, err error) {
	e, ok := r.entries[id]
	if !ok || e.src == nil {
		if _, isClosed := r.closed[id]; isClosed {
			return false, nil
		}
		return false, fmt.Errorf("%w: stream_acked for id %d", ErrUnknownStream, id)
	}

	e.src.Acked(ackPOR)

	if e.state == PendingEosAck {
		switch {
		case ackPOR == e.eosPOR:
			return true, nil
		case ackPOR < e.eosPOR:
			e.acked = ackPOR
			e.hasAcked = true
			return false, nil
		default:
			return false, fmt.Errorf("%w: stream %d expected %d, got %d", ErrAckOverrun, id, e.eosPOR, ackPOR)
		}
	}

	if e.hasAcked && ackPOR < e.acked {
		if err := e.src.Reset(ackPOR); err != nil {
			return false, fmt.Errorf("replaying stream %d to %d: %w", id, ackPOR, err)
		}
	} else if !e.hasAcked {
		if err := e.src.Reset(ackPOR); err != nil {
			return false, fmt.Errorf("resetting stream %d to first ack %d: %w", id, ackPOR, err)
		}
	}
	e.acked = ackPOR
	e.hasAcked = true
	return false, nil
}

// Remove starts the asynchronous removal of id: it must be Open, moves it
// to PendingEosAck recording its current POR as the EOS point, and reports
// the POR the caller should send in the EOS frame.
func (r *Registry) Remove(id uint64) (eosPOR uint64, err error) {
	e, ok := r.entries[id]
	if !ok || e.src == nil || e.state != Open {
		return 0, fmt.Errorf("%w: remove_source for id %d not open", ErrUnknownStream, id)
	}
	e.eosPOR = e.src.PointOfRef()
	e.state = PendingEosAck
	e.pendingSince = time.Now()
	return e.eosPOR, nil
}

// CloseAndDelete finalizes a stream whose EOS ack matched its eosPOR:
// removes it from the live keyspace, adjusting the scheduler cursor so no
// remaining live stream is skipped, closes the source, and records it in
// Closed with its final acked POR.
func (r *Registry) CloseAndDelete(id uint64) error {
	e, ok := r.entries[id]
	if !ok || e.src == nil {
		return fmt.Errorf("%w: id %d", ErrNotRemoved, id)
	}
	if e.state != PendingEosAck {
		return fmt.Errorf("%w: id %d", ErrNotRemoved, id)
	}

	idx := -1
	for i, k := range r.keys {
		if k == id {
			idx = i
			break
		}
	}
	if idx >= 0 {
		r.keys = append(r.keys[:idx], r.keys[idx+1:]...)
		if r.cursor >= idx {
			r.cursor--
		}
	}

	if err := e.src.Close(); err != nil {
		return fmt.Errorf("closing source for stream %d: %w", id, err)
	}

	finalAcked := e.eosPOR
	delete(r.entries, id)
	r.closed[id] = finalAcked
	return nil
}

// Source returns the source registered under id, if any.
func (r *Registry) Source(id uint64) (source.Source, bool) {
	e, ok := r.entries[id]
	if !ok || e.src == nil {
		return nil, false
	}
	return e.src, true
}

// State returns the lifecycle state of id, if known and live.
func (r *Registry) State(id uint64) (State, bool) {
	e, ok := r.entries[id]
	if !ok || e.src == nil {
		return 0, false
	}
	return e.state, true
}

// IsClosed reports whether id has been finalized via CloseAndDelete.
func (r *Registry) IsClosed(id uint64) bool {
	_, ok := r.closed[id]
	return ok
}

// HasAnyClosed reports whether any stream has ever been finalized.
func (r *Registry) HasAnyClosed() bool { return len(r.closed) > 0 }

// AddedAny reports whether Add has ever been called, used by the scheduler
// to distinguish "nothing added yet" from "everything has been closed".
func (r *Registry) AddedAny() bool { return r.addedAny }

// Keys returns the live ordered id list the scheduler iterates over. The
// returned slice must not be mutated by the caller.
func (r *Registry) Keys() []uint64 { return r.keys }

// Cursor returns the scheduler's current cursor position.
func (r *Registry) Cursor() int { return r.cursor }

// SetCursor overwrites the scheduler's cursor position.
func (r *Registry) SetCursor(idx int) { r.cursor = idx }

// PendingEOSPoint returns the recorded eos POR for id if it is currently
// PendingEosAck.
func (r *Registry) PendingEOSPoint(id uint64) (uint64, bool) {
	e, ok := r.entries[id]
	if !ok || e.state != PendingEosAck {
		return 0, false
	}
	return e.eosPOR, true
}

// PendingEOSEntry describes one stream currently awaiting its EOS ack.
type PendingEOSEntry struct {
	StreamID uint64
	EOSPOR   uint64
	Since    time.Time
}

// PendingEOS returns every stream currently in PendingEosAck, ordered by
// stream_id. A caller-level timeout may want to abandon a long-pending EOS
// (spec.md §5); this is the predicate that lets it inspect how long each
// entry has been waiting. The registry itself never abandons one — see
// internal/housekeeper.
func (r *Registry) PendingEOS() []PendingEOSEntry {
	var out []PendingEOSEntry
	for id, e := range r.entries {
		if e.state == PendingEosAck {
			out = append(out, PendingEOSEntry{StreamID: id, EOSPOR: e.eosPOR, Since: e.pendingSince})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StreamID < out[j].StreamID })
	return out
}

// MaxPOR re-exports the sentinel used throughout the registry and source
// layers, so callers needn't import both packages just for the constant.
const MaxPOR = wire.U64Max
