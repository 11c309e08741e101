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
Counter Context Codec
=====================

A counter context is the byte payload of a counter clock:

	+----------------+----------------+----------------+...
	| timestamp (8B) |    tuple 1     |    tuple 2     |
	+----------------+----------------+----------------+...

	increment tuple:  [ id: idLen ][ count: i64 ]
	signed tuple:     [ id: idLen ][ incr: i64 ][ decr: i64 ]

All integers are big-endian. The header timestamp is wall-clock
milliseconds and orders contexts for last-writer-wins decisions;
the tuples order them causally.

Tuples sit in most-recently-touched-first order on the update path:
updating a node's count rotates its tuple to the front, so the local
node's entry is cheap to find on the hot path. Comparisons never rely
on that order — diff works over id-sorted copies, and merge emits
count-descending output.

The update path mutates the buffer in place while capacity exists and
reallocates by one step when a new node id arrives. Callers must
reassign the returned slice. Once a column owning the context is
published to a family map the bytes are immutable; reconciliation
replaces them wholesale.
*/
package clock

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"flywide/internal/errors"
)

// Context is the raw byte payload of a counter clock.
type Context []byte

// headerSize is the context header width: one wall-clock timestamp.
const headerSize = 8

// nowMillis is the wall clock, a variable for tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

func newHeaderOnly(ts int64) Context {
	ctx := make(Context, headerSize)
	binary.BigEndian.PutUint64(ctx, uint64(ts))
	return ctx
}

func headerTimestamp(ctx Context) int64 {
	if len(ctx) < headerSize {
		return math.MinInt64
	}
	return int64(binary.BigEndian.Uint64(ctx))
}

func setHeaderTimestamp(ctx Context, ts int64) {
	binary.BigEndian.PutUint64(ctx, uint64(ts))
}

func getInt64(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func putInt64(b []byte, v int64) {
	binary.BigEndian.PutUint64(b, uint64(v))
}

// Tuple is one decoded (id, count) entry of an increment context.
type Tuple struct {
	ID    []byte
	Count int64
}

// diffEntry is the per-id weight used by the lock-step diff walk.
// For signed contexts the weight is incr+decr: the sum of absolute
// contributions, so disagreement shows even when the nets cancel.
type diffEntry struct {
	id    []byte
	count int64
}

// diffWalk classifies the relation between two id-sorted entry
// vectors using the relation-advance machine: each pairing either
// keeps the running relation, strengthens EQUAL into an ordering, or
// collapses conflicting orderings into DISJOINT.
func diffWalk(left, right []diffEntry) Relation {
	rel := Equal
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		cmp := bytes.Compare(left[i].id, right[j].id)
		switch {
		case cmp == 0:
			lc, rc := left[i].count, right[j].count
			if lc > rc {
				if rel == Less {
					return Disjoint
				}
				rel = Greater
			} else if lc < rc {
				if rel == Greater {
					return Disjoint
				}
				rel = Less
			}
			i++
			j++
		case cmp < 0:
			// id present only on the left
			if rel == Less {
				return Disjoint
			}
			rel = Greater
			i++
		default:
			// id present only on the right
			if rel == Greater {
				return Disjoint
			}
			rel = Less
			j++
		}
	}
	if i < len(left) {
		if rel == Less {
			return Disjoint
		}
		rel = Greater
	}
	if j < len(right) {
		if rel == Greater {
			return Disjoint
		}
		rel = Less
	}
	return rel
}

// sortEntriesByID returns the entries id-sorted. The input contexts
// stay untouched: normalization always works on copies.
func sortEntriesByID(entries []diffEntry) []diffEntry {
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].id, entries[j].id) < 0
	})
	return entries
}

// IncrementCodec encodes and decodes increment-only counter
// contexts at a fixed node id width.
type IncrementCodec struct {
	idLen int
	now   func() int64
}

// NewIncrementCodec returns a codec for the given id width.
func NewIncrementCodec(idLen int) IncrementCodec {
	return IncrementCodec{idLen: idLen, now: nowMillis}
}

// Step is the byte width of one tuple.
func (c IncrementCodec) Step() int { return c.idLen + 8 }

// Create returns a fresh context holding only the current wall-clock
// timestamp.
func (c IncrementCodec) Create() Context {
	return newHeaderOnly(c.now())
}

// Validate checks that the context decomposes into a header plus
// whole tuples.
func (c IncrementCodec) Validate(ctx Context) error {
	if len(ctx) < headerSize || (len(ctx)-headerSize)%c.Step() != 0 {
		return errors.MalformedContext(len(ctx), c.Step())
	}
	return nil
}

// Update folds delta into the tuple for the given node id, bumping
// the header timestamp to max(now, header) and rotating the touched
// tuple to the front. When the id is absent the context grows by one
// step and the new tuple is spliced in at the front. The returned
// slice may alias the input or be a fresh allocation; callers must
// reassign.
func (c IncrementCodec) Update(ctx Context, id []byte, delta int64) (Context, error) {
	if len(id) != c.idLen {
		return nil, errors.BadNodeID(c.idLen, len(id))
	}
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}

	if now := c.now(); now > headerTimestamp(ctx) {
		setHeaderTimestamp(ctx, now)
	}

	step := c.Step()
	for off := headerSize; off < len(ctx); off += step {
		if !bytes.Equal(ctx[off:off+c.idLen], id) {
			continue
		}
		count := getInt64(ctx[off+c.idLen:off+step]) + delta
		// rotate to front: shift the preceding tuples one step right
		tuple := make([]byte, step)
		copy(tuple, id)
		putInt64(tuple[c.idLen:], count)
		copy(ctx[headerSize+step:off+step], ctx[headerSize:off])
		copy(ctx[headerSize:], tuple)
		return ctx, nil
	}

	// new node: grow by one step, splice at the front
	out := make(Context, len(ctx)+step)
	copy(out, ctx[:headerSize])
	copy(out[headerSize:], id)
	putInt64(out[headerSize+c.idLen:], delta)
	copy(out[headerSize+step:], ctx[headerSize:])
	return out, nil
}

// Diff classifies the information relation between two contexts by
// walking their id-sorted count vectors in lock step.
func (c IncrementCodec) Diff(left, right Context) (Relation, error) {
	if err := c.Validate(left); err != nil {
		return Equal, err
	}
	if err := c.Validate(right); err != nil {
		return Equal, err
	}
	return diffWalk(c.sortedEntries(left), c.sortedEntries(right)), nil
}

func (c IncrementCodec) sortedEntries(ctx Context) []diffEntry {
	step := c.Step()
	entries := make([]diffEntry, 0, (len(ctx)-headerSize)/step)
	for off := headerSize; off < len(ctx); off += step {
		entries = append(entries, diffEntry{
			id:    ctx[off : off+c.idLen],
			count: getInt64(ctx[off+c.idLen : off+step]),
		})
	}
	return sortEntriesByID(entries)
}

// Merge joins the given contexts: the highest header timestamp wins;
// the local node's counts sum across inputs while every remote id
// keeps its highest observed count (ties keep the first seen). The
// output tuples are ordered by count descending.
func (c IncrementCodec) Merge(localID []byte, ctxs []Context) (Context, error) {
	if len(localID) != c.idLen {
		return nil, errors.BadNodeID(c.idLen, len(localID))
	}

	type agg struct {
		id    []byte
		count int64
	}
	maxTS := int64(math.MinInt64)
	var order []*agg
	index := make(map[string]*agg)
	step := c.Step()

	for _, ctx := range ctxs {
		if err := c.Validate(ctx); err != nil {
			return nil, err
		}
		if ts := headerTimestamp(ctx); ts > maxTS {
			maxTS = ts
		}
		for off := headerSize; off < len(ctx); off += step {
			id := ctx[off : off+c.idLen]
			count := getInt64(ctx[off+c.idLen : off+step])
			key := string(id)
			e, ok := index[key]
			if !ok {
				e = &agg{id: append([]byte(nil), id...), count: count}
				index[key] = e
				order = append(order, e)
				continue
			}
			if bytes.Equal(id, localID) {
				e.count += count
			} else if count > e.count {
				e.count = count
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].count > order[j].count
	})

	out := make(Context, headerSize+len(order)*step)
	setHeaderTimestamp(out, maxTS)
	off := headerSize
	for _, e := range order {
		copy(out[off:], e.id)
		putInt64(out[off+c.idLen:], e.count)
		off += step
	}
	return out, nil
}

// Total sums the counts of every tuple: the value of an
// increment-only counter column.
func (c IncrementCodec) Total(ctx Context) int64 {
	step := c.Step()
	var total int64
	for off := headerSize; off+step <= len(ctx); off += step {
		total += getInt64(ctx[off+c.idLen : off+step])
	}
	return total
}

// TotalBytes returns Total as an 8-byte big-endian signed integer.
func (c IncrementCodec) TotalBytes(ctx Context) []byte {
	out := make([]byte, 8)
	putInt64(out, c.Total(ctx))
	return out
}

// CleanNodeCounts returns a copy of the context without the tuple
// for the given node id. When the id is absent the original context
// is returned unchanged.
func (c IncrementCodec) CleanNodeCounts(ctx Context, id []byte) Context {
	step := c.Step()
	for off := headerSize; off+step <= len(ctx); off += step {
		if !bytes.Equal(ctx[off:off+c.idLen], id) {
			continue
		}
		out := make(Context, len(ctx)-step)
		copy(out, ctx[:off])
		copy(out[off:], ctx[off+step:])
		return out
	}
	return ctx
}

// IsEmpty reports whether the context holds no tuples.
func (c IncrementCodec) IsEmpty(ctx Context) bool {
	return len(ctx) <= headerSize
}

// Tuples decodes the context for inspection.
func (c IncrementCodec) Tuples(ctx Context) []Tuple {
	step := c.Step()
	tuples := make([]Tuple, 0, (len(ctx)-headerSize)/step)
	for off := headerSize; off+step <= len(ctx); off += step {
		tuples = append(tuples, Tuple{
			ID:    append([]byte(nil), ctx[off:off+c.idLen]...),
			Count: getInt64(ctx[off+c.idLen : off+step]),
		})
	}
	return tuples
}

// String renders the context for logs.
func (c IncrementCodec) String(ctx Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "{ts=%d", headerTimestamp(ctx))
	for _, t := range c.Tuples(ctx) {
		fmt.Fprintf(&sb, " (%v,%d)", t.ID, t.Count)
	}
	sb.WriteString("}")
	return sb.String()
}
