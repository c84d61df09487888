// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package source

// Apply produces the next payload given the previous one (nil on the first
// call), returning ok=false once the generator is exhausted.
type Apply func(last []byte) (next []byte, ok bool)

// Generator is an in-memory/callback producer for non-file feeds: tests,
// synthetic data, or anything driven by a plain Go function rather than a
// seekable byte stream.
type Generator struct {
	name []byte
	key  []byte
	fn   Apply

	por  uint64
	last []byte
}

// NewGenerator builds a Generator identified by name/key, driven by fn. por
// seeds the initial point of reference (use MaxPOR for a fresh generator).
func NewGenerator(name, key []byte, por uint64, fn Apply) *Generator {
	return &Generator{name: name, key: key, fn: fn, por: por}
}

func (g *Generator) Name() []byte { return g.name }
func (g *Generator) Key() []byte  { return g.key }

func (g *Generator) PointOfRef() uint64 { return g.por }

// Reset repositions the generator's POR counter. Because a Generator has no
// backing store to seek within, this only resets the counter a caller-level
// resume can then interpret; MaxPOR restarts from record 0.
func (g *Generator) Reset(por uint64) error {
	if por == MaxPOR {
		g.por = 0
		g.last = nil
		return nil
	}
	g.por = por
	return nil
}

func (g *Generator) Next() Outcome {
	next, ok := g.fn(g.last)
	if !ok {
		return End()
	}
	g.last = next
	g.por++
	return Record(next, g.por)
}

func (g *Generator) Acked(por uint64) {}

func (g *Generator) Close() error { return nil }
