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

package clock

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"strings"

	"flywide/internal/errors"
)

// SignedTuple is one decoded (id, incr, decr) entry of a standard
// counter context. Both tallies are non-negative magnitudes.
type SignedTuple struct {
	ID   []byte
	Incr int64
	Decr int64
}

// StandardCodec encodes and decodes signed counter contexts at a
// fixed node id width. Layout matches the increment codec except
// each tuple carries separate increment and decrement tallies.
type StandardCodec struct {
	idLen int
	now   func() int64
}

// NewStandardCodec returns a codec for the given id width.
func NewStandardCodec(idLen int) StandardCodec {
	return StandardCodec{idLen: idLen, now: nowMillis}
}

// Step is the byte width of one tuple.
func (c StandardCodec) Step() int { return c.idLen + 16 }

// Create returns a fresh context holding only the current wall-clock
// timestamp.
func (c StandardCodec) Create() Context {
	return newHeaderOnly(c.now())
}

// Validate checks that the context decomposes into a header plus
// whole tuples.
func (c StandardCodec) Validate(ctx Context) error {
	if len(ctx) < headerSize || (len(ctx)-headerSize)%c.Step() != 0 {
		return errors.MalformedContext(len(ctx), c.Step())
	}
	return nil
}

// Update folds delta into the tuple for the given node id: a
// positive delta adds to the increment tally, a negative one adds
// its magnitude to the decrement tally. Header bump, front rotation
// and growth behave as in the increment codec.
func (c StandardCodec) Update(ctx Context, id []byte, delta int64) (Context, error) {
	if len(id) != c.idLen {
		return nil, errors.BadNodeID(c.idLen, len(id))
	}
	if err := c.Validate(ctx); err != nil {
		return nil, err
	}

	if now := c.now(); now > headerTimestamp(ctx) {
		setHeaderTimestamp(ctx, now)
	}

	incrDelta, decrDelta := splitDelta(delta)

	step := c.Step()
	for off := headerSize; off < len(ctx); off += step {
		if !bytes.Equal(ctx[off:off+c.idLen], id) {
			continue
		}
		incr := getInt64(ctx[off+c.idLen:off+c.idLen+8]) + incrDelta
		decr := getInt64(ctx[off+c.idLen+8:off+step]) + decrDelta
		tuple := make([]byte, step)
		copy(tuple, id)
		putInt64(tuple[c.idLen:], incr)
		putInt64(tuple[c.idLen+8:], decr)
		copy(ctx[headerSize+step:off+step], ctx[headerSize:off])
		copy(ctx[headerSize:], tuple)
		return ctx, nil
	}

	out := make(Context, len(ctx)+step)
	copy(out, ctx[:headerSize])
	copy(out[headerSize:], id)
	putInt64(out[headerSize+c.idLen:], incrDelta)
	putInt64(out[headerSize+c.idLen+8:], decrDelta)
	copy(out[headerSize+step:], ctx[headerSize:])
	return out, nil
}

func splitDelta(delta int64) (incr, decr int64) {
	if delta >= 0 {
		return delta, 0
	}
	return 0, -delta
}

// Diff classifies the information relation between two contexts.
// The weight of a tuple is incr+decr — the sum of absolute
// contributions — so two replicas disagree even when their net
// totals happen to cancel.
func (c StandardCodec) Diff(left, right Context) (Relation, error) {
	if err := c.Validate(left); err != nil {
		return Equal, err
	}
	if err := c.Validate(right); err != nil {
		return Equal, err
	}
	return diffWalk(c.sortedEntries(left), c.sortedEntries(right)), nil
}

func (c StandardCodec) sortedEntries(ctx Context) []diffEntry {
	step := c.Step()
	entries := make([]diffEntry, 0, (len(ctx)-headerSize)/step)
	for off := headerSize; off < len(ctx); off += step {
		incr := getInt64(ctx[off+c.idLen : off+c.idLen+8])
		decr := getInt64(ctx[off+c.idLen+8 : off+step])
		entries = append(entries, diffEntry{
			id:    ctx[off : off+c.idLen],
			count: incr + decr,
		})
	}
	return sortEntriesByID(entries)
}

// Merge joins the given contexts: highest header timestamp wins, the
// local node's increment and decrement tallies sum separately, and
// every remote id keeps the tuple with the highest incr+decr (ties
// keep the first seen). Output tuples are ordered by incr+decr
// descending.
func (c StandardCodec) Merge(localID []byte, ctxs []Context) (Context, error) {
	if len(localID) != c.idLen {
		return nil, errors.BadNodeID(c.idLen, len(localID))
	}

	type agg struct {
		id   []byte
		incr int64
		decr int64
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
			incr := getInt64(ctx[off+c.idLen : off+c.idLen+8])
			decr := getInt64(ctx[off+c.idLen+8 : off+step])
			key := string(id)
			e, ok := index[key]
			if !ok {
				e = &agg{id: append([]byte(nil), id...), incr: incr, decr: decr}
				index[key] = e
				order = append(order, e)
				continue
			}
			if bytes.Equal(id, localID) {
				e.incr += incr
				e.decr += decr
			} else if incr+decr > e.incr+e.decr {
				e.incr, e.decr = incr, decr
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].incr+order[i].decr > order[j].incr+order[j].decr
	})

	out := make(Context, headerSize+len(order)*step)
	setHeaderTimestamp(out, maxTS)
	off := headerSize
	for _, e := range order {
		copy(out[off:], e.id)
		putInt64(out[off+c.idLen:], e.incr)
		putInt64(out[off+c.idLen+8:], e.decr)
		off += step
	}
	return out, nil
}

// Total returns the net value of the counter: the sum of increments
// minus the sum of decrements across all tuples.
func (c StandardCodec) Total(ctx Context) int64 {
	step := c.Step()
	var total int64
	for off := headerSize; off+step <= len(ctx); off += step {
		total += getInt64(ctx[off+c.idLen : off+c.idLen+8])
		total -= getInt64(ctx[off+c.idLen+8 : off+step])
	}
	return total
}

// TotalBytes returns Total as an 8-byte big-endian signed integer.
func (c StandardCodec) TotalBytes(ctx Context) []byte {
	out := make([]byte, 8)
	putInt64(out, c.Total(ctx))
	return out
}

// TotalParts returns the summed increment and decrement magnitudes.
func (c StandardCodec) TotalParts(ctx Context) (incr, decr int64) {
	step := c.Step()
	for off := headerSize; off+step <= len(ctx); off += step {
		incr += getInt64(ctx[off+c.idLen : off+c.idLen+8])
		decr += getInt64(ctx[off+c.idLen+8 : off+step])
	}
	return incr, decr
}

// CleanNodeCounts returns a copy of the context without the tuple
// for the given node id; the original when the id is absent.
func (c StandardCodec) CleanNodeCounts(ctx Context, id []byte) Context {
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
func (c StandardCodec) IsEmpty(ctx Context) bool {
	return len(ctx) <= headerSize
}

// Tuples decodes the context for inspection.
func (c StandardCodec) Tuples(ctx Context) []SignedTuple {
	step := c.Step()
	tuples := make([]SignedTuple, 0, (len(ctx)-headerSize)/step)
	for off := headerSize; off+step <= len(ctx); off += step {
		tuples = append(tuples, SignedTuple{
			ID:   append([]byte(nil), ctx[off:off+c.idLen]...),
			Incr: getInt64(ctx[off+c.idLen : off+c.idLen+8]),
			Decr: getInt64(ctx[off+c.idLen+8 : off+step]),
		})
	}
	return tuples
}

// String renders the context for logs.
func (c StandardCodec) String(ctx Context) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "{ts=%d", headerTimestamp(ctx))
	for _, t := range c.Tuples(ctx) {
		fmt.Fprintf(&sb, " (%v,+%d,-%d)", t.ID, t.Incr, t.Decr)
	}
	sb.WriteString("}")
	return sb.String()
}
