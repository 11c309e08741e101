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
Column Family
=============

A column family is a concurrent, comparator-ordered mapping from
column name to column (or super column), plus family-level tombstone
metadata. The insertion protocol guarantees that for any (family,
name) pair, every observable state is the reconciliation-join of a
subset of the applied mutations:

  - Counter families reconcile unconditionally: old and new always
    join, so the final state is schedule-independent (the CRDT
    property).
  - Timestamped families keep the higher-priority column, with
    tombstones winning ties, and reconcile DISJOINT version vectors.

Both paths loop on compare-and-swap against the shared map and
re-read after every failure. Columns are immutable once published;
only the reconciler replaces them.
*/
package storage

import (
	"crypto/md5"
	"encoding/binary"
	"sync"
	"sync/atomic"

	"flywide/internal/clock"
	"flywide/internal/errors"
)

// ColumnFamily is the in-memory representation of one family's
// columns for a single row key.
type ColumnFamily struct {
	name          string
	typ           FamilyType
	comparator    Comparator
	subComparator Comparator
	clockKind     clock.Kind
	idLen         int
	localID       []byte
	reconciler    Reconciler

	columns *columnMap

	// tombstone pair, updated under atomic-max semantics
	tombstoneMu       sync.Mutex
	markedForDeleteAt clock.Clock
	localDeletionTime atomic.Int32
}

// FamilyOption customizes a column family at construction.
type FamilyOption func(*ColumnFamily)

// WithSubComparator sets the sub-column comparator of a super family.
func WithSubComparator(cmp Comparator) FamilyOption {
	return func(cf *ColumnFamily) { cf.subComparator = cmp }
}

// WithClockKind overrides the clock kind; used for signed counter
// families that carry StandardCounter contexts.
func WithClockKind(kind clock.Kind) FamilyOption {
	return func(cf *ColumnFamily) { cf.clockKind = kind }
}

// WithDeletePolicy sets the counter live-vs-tombstone tie-break.
func WithDeletePolicy(p CounterDeletePolicy) FamilyOption {
	return func(cf *ColumnFamily) {
		if r, ok := cf.reconciler.(CounterReconciler); ok {
			r.DeletePolicy = p
			cf.reconciler = r
		}
	}
}

// NewColumnFamily builds an empty family. localID is the local node
// identity (counter families stamp and merge with it) and idLen the
// node id width of the family's contexts.
func NewColumnFamily(name string, typ FamilyType, comparator Comparator, localID []byte, idLen int, opts ...FamilyOption) *ColumnFamily {
	cf := &ColumnFamily{
		name:       name,
		typ:        typ,
		comparator: comparator,
		clockKind:  typ.ClockKind(),
		idLen:      idLen,
		localID:    append([]byte(nil), localID...),
		columns:    newColumnMap(comparator),
	}
	switch {
	case typ.IsCounter():
		cf.reconciler = CounterReconciler{LocalID: cf.localID, IDLen: idLen}
	case typ.IsVersion():
		cf.reconciler = ConcatenatingReconciler{LocalID: cf.localID}
	default:
		cf.reconciler = TimestampReconciler{}
	}
	if typ.IsSuper() {
		cf.subComparator = comparator
	}
	for _, opt := range opts {
		opt(cf)
	}
	cf.markedForDeleteAt = clock.MinClock(cf.clockKind, idLen)
	return cf
}

// Name returns the family name.
func (cf *ColumnFamily) Name() string { return cf.name }

// Type returns the family type.
func (cf *ColumnFamily) Type() FamilyType { return cf.typ }

// Comparator returns the column name comparator.
func (cf *ColumnFamily) Comparator() Comparator { return cf.comparator }

// ClockKind returns the clock kind of the family's columns.
func (cf *ColumnFamily) ClockKind() clock.Kind { return cf.clockKind }

// IDLen returns the node id width of the family's contexts.
func (cf *ColumnFamily) IDLen() int { return cf.idLen }

// Reconciler returns the family's reconciler.
func (cf *ColumnFamily) Reconciler() Reconciler { return cf.reconciler }

// Len returns the number of top-level cells.
func (cf *ColumnFamily) Len() int { return cf.columns.Len() }

// IsEmpty reports whether the family holds no cells and no tombstone.
func (cf *ColumnFamily) IsEmpty() bool {
	return cf.columns.Len() == 0 && !cf.IsMarkedForDelete()
}

// GetColumn returns the cell stored under name.
func (cf *ColumnFamily) GetColumn(name []byte) (Cell, bool) {
	return cf.columns.Get(name)
}

// Cells returns a point-in-time snapshot of the cells in order.
func (cf *ColumnFamily) Cells() []Cell { return cf.columns.Cells() }

// AddColumn inserts a cell, reconciling against concurrent writers
// until the insertion takes.
func (cf *ColumnFamily) AddColumn(c Cell) error {
	if cf.typ.IsSuper() {
		return cf.addSuperColumn(c)
	}
	col, ok := c.(*Column)
	if !ok {
		return errors.InvalidValue("standard family expects plain columns")
	}
	if cf.typ.IsCounter() {
		return cf.addCounterColumn(col)
	}
	return cf.addTimestampedColumn(col)
}

// addCounterColumn reconciles unconditionally: every pair of
// concurrent writes joins, whatever the interleaving.
func (cf *ColumnFamily) addCounterColumn(col *Column) error {
	for {
		old, inserted := cf.columns.PutIfAbsent(col)
		if inserted {
			return nil
		}
		oldCol, ok := old.(*Column)
		if !ok {
			return errors.InvalidValue("counter family holds a non-column cell")
		}
		merged, err := cf.reconciler.Reconcile(oldCol, col)
		if err != nil {
			return err
		}
		if cf.columns.CompareAndReplace(col.Name(), old, merged) {
			return nil
		}
		// lost the race; re-read and reconcile against the new incumbent
	}
}

// addTimestampedColumn keeps the higher-priority column. The loop
// exits as soon as the incumbent strictly dominates the candidate.
func (cf *ColumnFamily) addTimestampedColumn(col *Column) error {
	for {
		old, inserted := cf.columns.PutIfAbsent(col)
		if inserted {
			return nil
		}
		oldCol, ok := old.(*Column)
		if !ok {
			return errors.InvalidValue("standard family holds a non-column cell")
		}

		rel, err := cf.columnPriority(oldCol, col)
		if err != nil {
			return err
		}
		if rel == clock.Greater {
			return nil
		}

		repl := col
		if rel == clock.Disjoint || rel == clock.Equal {
			if repl, err = cf.reconciler.Reconcile(oldCol, col); err != nil {
				return err
			}
		}
		if cf.columns.CompareAndReplace(col.Name(), old, repl) {
			return nil
		}
	}
}

// columnPriority is the clock relation with the tombstone tie-break
// folded in: on equal clocks a tombstone outranks a live column.
// Version families rank by the vector relation so concurrent writes
// surface as DISJOINT and reach the concatenating reconciler; plain
// timestamp families can never be disjoint.
func (cf *ColumnFamily) columnPriority(old, new *Column) (clock.Relation, error) {
	var rel clock.Relation
	var err error
	if cf.typ.IsVersion() {
		rel, err = old.Clock().Diff(new.Clock())
	} else {
		rel, err = old.Clock().Compare(new.Clock())
	}
	if err != nil {
		return rel, err
	}
	if rel == clock.Equal && old.IsMarkedForDelete() != new.IsMarkedForDelete() {
		if old.IsMarkedForDelete() {
			return clock.Greater, nil
		}
		return clock.Less, nil
	}
	return rel, nil
}

func (cf *ColumnFamily) addSuperColumn(c Cell) error {
	name := c.Name()
	cur, ok := cf.columns.Get(name)
	if !ok {
		// PutIfAbsent hands back the winner when two writers race to
		// create the container; both then merge into the same one
		fresh := NewSuperColumn(name, cf.subComparator, cf.reconciler)
		cur, _ = cf.columns.PutIfAbsent(fresh)
	}
	sc, isSuper := cur.(*SuperColumn)
	if !isSuper {
		return errors.InvalidValue("super family holds a non-super cell")
	}
	switch in := c.(type) {
	case *SuperColumn:
		for _, sub := range in.Columns() {
			if err := sc.AddColumn(sub); err != nil {
				return err
			}
		}
	case *Column:
		if err := sc.AddColumn(in); err != nil {
			return err
		}
	default:
		return errors.InvalidValue("unknown cell type")
	}
	return nil
}

// Delete raises the family tombstone under atomic-max semantics:
// both halves only ever move forward.
func (cf *ColumnFamily) Delete(markedForDeleteAt clock.Clock, localDeletionTime int32) error {
	for {
		cur := cf.localDeletionTime.Load()
		if localDeletionTime <= cur || cf.localDeletionTime.CompareAndSwap(cur, localDeletionTime) {
			break
		}
	}

	cf.tombstoneMu.Lock()
	defer cf.tombstoneMu.Unlock()
	rel, err := cf.markedForDeleteAt.Compare(markedForDeleteAt)
	if err != nil {
		return err
	}
	switch rel {
	case clock.Greater, clock.Equal:
		return nil
	case clock.Less:
		cf.markedForDeleteAt = markedForDeleteAt
		return nil
	default:
		// join first, then store the dominating clock
		sup, err := clock.Superset([]clock.Clock{cf.markedForDeleteAt, markedForDeleteAt}, cf.localID)
		if err != nil {
			return err
		}
		cf.markedForDeleteAt = sup
		return nil
	}
}

// MarkedForDeleteAt returns the tombstone clock.
func (cf *ColumnFamily) MarkedForDeleteAt() clock.Clock {
	cf.tombstoneMu.Lock()
	defer cf.tombstoneMu.Unlock()
	return cf.markedForDeleteAt
}

// LocalDeletionTime returns the tombstone GC timestamp.
func (cf *ColumnFamily) LocalDeletionTime() int32 {
	return cf.localDeletionTime.Load()
}

// IsMarkedForDelete reports whether the family tombstone has been
// raised above the minimum clock.
func (cf *ColumnFamily) IsMarkedForDelete() bool {
	rel, err := cf.MarkedForDeleteAt().Compare(clock.MinClock(cf.clockKind, cf.idLen))
	return err == nil && rel == clock.Greater
}

// AddAll merges every cell and the tombstone of other into cf.
func (cf *ColumnFamily) AddAll(other *ColumnFamily) error {
	if err := cf.Delete(other.MarkedForDeleteAt(), other.LocalDeletionTime()); err != nil {
		return err
	}
	for _, c := range other.Cells() {
		if err := cf.AddColumn(c); err != nil {
			return err
		}
	}
	return nil
}

// CloneShallow returns an empty family with the same metadata.
func (cf *ColumnFamily) CloneShallow() *ColumnFamily {
	clone := NewColumnFamily(cf.name, cf.typ, cf.comparator, cf.localID, cf.idLen)
	clone.subComparator = cf.subComparator
	clone.clockKind = cf.clockKind
	clone.reconciler = cf.reconciler
	clone.markedForDeleteAt = clock.MinClock(cf.clockKind, cf.idLen)
	return clone
}

// CloneMe returns a copy of the family sharing the immutable cells.
func (cf *ColumnFamily) CloneMe() *ColumnFamily {
	clone := cf.CloneShallow()
	clone.markedForDeleteAt = cf.MarkedForDeleteAt()
	clone.localDeletionTime.Store(cf.LocalDeletionTime())
	for _, c := range cf.Cells() {
		clone.columns.Put(c)
	}
	return clone
}

// UpdateClocks stamps every counter column with the local node's
// contribution before fan-out: each column's value is read as an
// 8-byte signed delta, folded into its context under localID, and
// the column's value becomes the context total. Only the write
// pipeline calls this, on columns the caller exclusively owns.
func (cf *ColumnFamily) UpdateClocks(localID []byte) error {
	if !cf.typ.IsCounter() {
		return nil
	}
	for _, c := range cf.Cells() {
		switch cell := c.(type) {
		case *Column:
			stamped, err := cf.stampColumn(cell, localID)
			if err != nil {
				return err
			}
			cf.columns.Put(stamped)
		case *SuperColumn:
			cols := cell.Columns()
			stamped := make([]*Column, len(cols))
			for i, sub := range cols {
				s, err := cf.stampColumn(sub, localID)
				if err != nil {
					return err
				}
				stamped[i] = s
			}
			cf.columns.Put(cell.cloneWith(stamped))
		}
	}
	return nil
}

func (cf *ColumnFamily) stampColumn(col *Column, localID []byte) (*Column, error) {
	if col.IsMarkedForDelete() {
		return col, nil
	}
	delta, err := decodeInt64Value(col.Value())
	if err != nil {
		return nil, err
	}

	var ctx clock.Context
	var value []byte
	switch cf.clockKind {
	case clock.KindStandardCounter:
		codec := clock.NewStandardCodec(cf.idLen)
		if ctx, err = codec.Update(col.Clock().Context(), localID, delta); err != nil {
			return nil, err
		}
		value = codec.TotalBytes(ctx)
	default:
		codec := clock.NewIncrementCodec(cf.idLen)
		if ctx, err = codec.Update(col.Clock().Context(), localID, delta); err != nil {
			return nil, err
		}
		value = codec.TotalBytes(ctx)
	}
	return NewColumn(col.Name(), value, col.Clock().WithContext(ctx)), nil
}

// CleanContext strips node's per-node counts from every counter
// column and drops columns whose context empties. It mutates cf and
// is meant for clones on the read and anti-entropy paths; counter
// contexts inside a live family map are immutable.
func (cf *ColumnFamily) CleanContext(node []byte) error {
	if !cf.typ.IsCounter() {
		return nil
	}
	for _, c := range cf.Cells() {
		switch cell := c.(type) {
		case *Column:
			cleaned, empty := cf.cleanColumn(cell, node)
			if empty {
				cf.columns.Remove(cell.Name())
			} else if cleaned != cell {
				cf.columns.Put(cleaned)
			}
		case *SuperColumn:
			cols := cell.Columns()
			kept := make([]*Column, 0, len(cols))
			changed := false
			for _, sub := range cols {
				cleaned, empty := cf.cleanColumn(sub, node)
				if empty {
					changed = true
					continue
				}
				if cleaned != sub {
					changed = true
				}
				kept = append(kept, cleaned)
			}
			if len(kept) == 0 {
				cf.columns.Remove(cell.Name())
			} else if changed {
				cf.columns.Put(cell.cloneWith(kept))
			}
		}
	}
	return nil
}

func (cf *ColumnFamily) cleanColumn(col *Column, node []byte) (cleaned *Column, empty bool) {
	if col.IsMarkedForDelete() {
		return col, false
	}
	var ctx clock.Context
	var isEmpty bool
	switch cf.clockKind {
	case clock.KindStandardCounter:
		codec := clock.NewStandardCodec(cf.idLen)
		ctx = codec.CleanNodeCounts(col.Clock().Context(), node)
		isEmpty = codec.IsEmpty(ctx)
	default:
		codec := clock.NewIncrementCodec(cf.idLen)
		ctx = codec.CleanNodeCounts(col.Clock().Context(), node)
		isEmpty = codec.IsEmpty(ctx)
	}
	if isEmpty {
		return nil, true
	}
	if len(ctx) == len(col.Clock().Context()) {
		return col, false
	}
	return col.WithClock(col.Clock().WithContext(ctx)), false
}

// Digest returns the MD5 digest over the family's serialized cells
// and tombstone, used to compare replica responses.
func (cf *ColumnFamily) Digest() []byte {
	h := md5.New()
	if err := cf.serializeBody(h); err != nil {
		// writing to a hash cannot fail; any error here is a bug in
		// the serializer itself
		panic(err)
	}
	sum := h.Sum(nil)
	return sum
}

// Diff returns the part of superset missing from cf: the repair
// payload for the replica that sent cf. Nil when cf already holds
// everything.
func Diff(replica, superset *ColumnFamily) (*ColumnFamily, error) {
	out := superset.CloneShallow()

	rel, err := replica.MarkedForDeleteAt().Diff(superset.MarkedForDeleteAt())
	if err != nil {
		return nil, err
	}
	hasTombstone := false
	if rel == clock.Less || rel == clock.Disjoint {
		if err := out.Delete(superset.MarkedForDeleteAt(), superset.LocalDeletionTime()); err != nil {
			return nil, err
		}
		hasTombstone = true
	}

	for _, c := range superset.Cells() {
		cur, ok := replica.GetColumn(c.Name())
		if !ok {
			if err := out.AddColumn(c); err != nil {
				return nil, err
			}
			continue
		}
		missing, err := cellMissing(cur, c)
		if err != nil {
			return nil, err
		}
		if missing {
			if err := out.AddColumn(c); err != nil {
				return nil, err
			}
		}
	}

	if out.Len() == 0 && !hasTombstone {
		return nil, nil
	}
	return out, nil
}

// cellMissing reports whether the replica's cell lacks information
// the superset cell carries.
func cellMissing(replicaCell, supersetCell Cell) (bool, error) {
	rc, rok := replicaCell.(*Column)
	sc, sok := supersetCell.(*Column)
	if rok && sok {
		rel, err := rc.Clock().Diff(sc.Clock())
		if err != nil {
			return false, err
		}
		return rel == clock.Less || rel == clock.Disjoint, nil
	}

	rsc, rok := replicaCell.(*SuperColumn)
	ssc, sok := supersetCell.(*SuperColumn)
	if rok && sok {
		for _, sub := range ssc.Columns() {
			cur, ok := rsc.GetColumn(sub.Name())
			if !ok {
				return true, nil
			}
			rel, err := cur.Clock().Diff(sub.Clock())
			if err != nil {
				return false, err
			}
			if rel == clock.Less || rel == clock.Disjoint {
				return true, nil
			}
		}
		return false, nil
	}
	return false, errors.InvalidValue("mismatched cell kinds in diff")
}

func decodeInt64Value(value []byte) (int64, error) {
	if len(value) != 8 {
		return 0, errors.InvalidValue("counter delta must be an 8-byte integer")
	}
	return int64(binary.BigEndian.Uint64(value)), nil
}
