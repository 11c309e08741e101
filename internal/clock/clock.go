/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package clock implements the logical clocks attached to columns.

Three clock kinds exist:

  - Timestamp: a 64-bit signed integer; plain last-writer-wins.
  - IncrementCounter: a counter context — an 8-byte wall-clock header
    followed by (node-id, count) tuples.
  - StandardCounter: the signed flavor — tuples carry separate
    increment and decrement tallies.

A clock is a tagged value, not an interface hierarchy: every
operation dispatches on Kind so the algorithms stay data-directed.

Clock Relations:
================

	compare  recency order: header timestamps for counters, the raw
	         value for timestamp clocks. Drives tombstone-vs-live
	         decisions and last-writer-wins.
	diff     information order over the per-node count vectors. Drives
	         read repair: LESS means the left side is missing counts.
	superset the join: a clock dominating all inputs.

DISJOINT is only reachable from counter diffs — two replicas each
holding counts the other has not seen.
*/
package clock

import (
	"fmt"
	"math"

	"flywide/internal/errors"
)

// Relation is the four-valued outcome of a clock comparison.
type Relation int

// Relation values.
const (
	Less Relation = iota
	Equal
	Greater
	Disjoint
)

// String returns the relation name.
func (r Relation) String() string {
	switch r {
	case Less:
		return "LESS"
	case Equal:
		return "EQUAL"
	case Greater:
		return "GREATER"
	case Disjoint:
		return "DISJOINT"
	default:
		return "UNKNOWN"
	}
}

// Kind discriminates the clock variants.
type Kind uint8

// Clock kinds.
const (
	KindTimestamp Kind = iota
	KindIncrementCounter
	KindStandardCounter
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindTimestamp:
		return "Timestamp"
	case KindIncrementCounter:
		return "IncrementCounter"
	case KindStandardCounter:
		return "StandardCounter"
	default:
		return "UNKNOWN"
	}
}

// IsCounter reports whether the kind carries a counter context.
func (k Kind) IsCounter() bool {
	return k == KindIncrementCounter || k == KindStandardCounter
}

// Clock is a tagged clock value. Zero value is the minimum timestamp
// clock. Clocks are immutable once attached to a published column;
// the write pipeline replaces them wholesale.
type Clock struct {
	kind  Kind
	ts    int64
	ctx   Context
	idLen int
}

// NewTimestamp returns a timestamp clock.
func NewTimestamp(ts int64) Clock {
	return Clock{kind: KindTimestamp, ts: ts}
}

// NewCounter returns a counter clock of the given kind over raw
// context bytes. idLen is the node id width the context was built
// with.
func NewCounter(kind Kind, ctx Context, idLen int) Clock {
	return Clock{kind: kind, ctx: ctx, idLen: idLen}
}

// MinClock returns the minimum clock of a kind, used to initialize
// family tombstones.
func MinClock(kind Kind, idLen int) Clock {
	switch kind {
	case KindTimestamp:
		return NewTimestamp(math.MinInt64)
	default:
		return NewCounter(kind, newHeaderOnly(math.MinInt64), idLen)
	}
}

// Kind returns the clock kind.
func (c Clock) Kind() Kind { return c.kind }

// Timestamp returns the scalar timestamp, or the context header for
// counter kinds.
func (c Clock) Timestamp() int64 {
	if c.kind == KindTimestamp {
		return c.ts
	}
	return headerTimestamp(c.ctx)
}

// Context returns the raw counter context; nil for timestamp clocks.
func (c Clock) Context() Context { return c.ctx }

// IDLen returns the node id width of a counter clock.
func (c Clock) IDLen() int { return c.idLen }

// WithContext returns a clock of the same kind over new context
// bytes. Used by the write pipeline after an in-place update.
func (c Clock) WithContext(ctx Context) Clock {
	return Clock{kind: c.kind, ctx: ctx, idLen: c.idLen}
}

// Compare returns the recency relation between two clocks of the
// same kind. For counters only the header timestamps are consulted;
// DISJOINT is unreachable here.
func (c Clock) Compare(o Clock) (Relation, error) {
	if c.kind != o.kind {
		return Equal, errors.ClockKindMismatch(c.kind.String(), o.kind.String())
	}
	return compareInt64(c.Timestamp(), o.Timestamp()), nil
}

// Diff returns the information relation between two clocks of the
// same kind. Timestamp clocks diff exactly as they compare; counter
// clocks walk their id-sorted count vectors.
func (c Clock) Diff(o Clock) (Relation, error) {
	if c.kind != o.kind {
		return Equal, errors.ClockKindMismatch(c.kind.String(), o.kind.String())
	}
	switch c.kind {
	case KindTimestamp:
		return compareInt64(c.ts, o.ts), nil
	case KindIncrementCounter:
		return NewIncrementCodec(c.idLen).Diff(c.ctx, o.ctx)
	case KindStandardCounter:
		return NewStandardCodec(c.idLen).Diff(c.ctx, o.ctx)
	default:
		return Equal, errors.ClockKindMismatch(c.kind.String(), o.kind.String())
	}
}

// Superset returns the join of the given clocks: a clock that
// dominates every input. All clocks must share a kind. localID is
// the local node identity, whose tuples aggregate by summation
// during counter merges; it is ignored for timestamp clocks.
func Superset(clocks []Clock, localID []byte) (Clock, error) {
	if len(clocks) == 0 {
		return Clock{}, fmt.Errorf("superset of zero clocks")
	}
	kind := clocks[0].kind
	for _, c := range clocks[1:] {
		if c.kind != kind {
			return Clock{}, errors.ClockKindMismatch(kind.String(), c.kind.String())
		}
	}

	switch kind {
	case KindTimestamp:
		max := clocks[0].ts
		for _, c := range clocks[1:] {
			if c.ts > max {
				max = c.ts
			}
		}
		return NewTimestamp(max), nil
	case KindIncrementCounter:
		idLen := clocks[0].idLen
		ctxs := make([]Context, len(clocks))
		for i, c := range clocks {
			ctxs[i] = c.ctx
		}
		merged, err := NewIncrementCodec(idLen).Merge(localID, ctxs)
		if err != nil {
			return Clock{}, err
		}
		return NewCounter(kind, merged, idLen), nil
	case KindStandardCounter:
		idLen := clocks[0].idLen
		ctxs := make([]Context, len(clocks))
		for i, c := range clocks {
			ctxs[i] = c.ctx
		}
		merged, err := NewStandardCodec(idLen).Merge(localID, ctxs)
		if err != nil {
			return Clock{}, err
		}
		return NewCounter(kind, merged, idLen), nil
	default:
		return Clock{}, errors.ClockKindMismatch(kind.String(), "?")
	}
}

func compareInt64(a, b int64) Relation {
	switch {
	case a < b:
		return Less
	case a > b:
		return Greater
	default:
		return Equal
	}
}
