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
Reconcilers
===========

A reconciler is a pure function merging two columns that share a name
but arrived with different clocks or values. Each family type
designates one:

	Standard / Super            -> TimestampReconciler
	Version / SuperVersion      -> ConcatenatingReconciler
	IncrementCounter (+ Super)  -> CounterReconciler

Tombstones win ties on every path.
*/
package storage

import (
	"bytes"
	"fmt"

	"flywide/internal/clock"
	"flywide/internal/errors"
)

// Reconciler merges two same-name columns into one.
type Reconciler interface {
	Reconcile(left, right *Column) (*Column, error)
}

// TimestampReconciler implements last-writer-wins over timestamp
// clocks. On a timestamp tie the tombstone wins; between two live
// columns the lexically greater value wins so the outcome is
// deterministic across replicas.
type TimestampReconciler struct{}

// Reconcile implements Reconciler.
func (TimestampReconciler) Reconcile(left, right *Column) (*Column, error) {
	rel, err := left.Clock().Compare(right.Clock())
	if err != nil {
		return nil, err
	}
	switch rel {
	case clock.Greater:
		return left, nil
	case clock.Less:
		return right, nil
	case clock.Equal:
		if left.IsMarkedForDelete() != right.IsMarkedForDelete() {
			if left.IsMarkedForDelete() {
				return left, nil
			}
			return right, nil
		}
		if bytes.Compare(left.Value(), right.Value()) >= 0 {
			return left, nil
		}
		return right, nil
	default:
		// timestamp clocks cannot be disjoint
		return nil, errors.ImpossibleRelation(
			fmt.Sprintf("timestamp clocks disjoint for column %q", left.Name()))
	}
}

// ConcatenatingReconciler merges version-vector columns: concurrent
// live values concatenate rather than one silently winning.
type ConcatenatingReconciler struct {
	// LocalID is the local node identity used during clock joins.
	LocalID []byte
}

// Reconcile implements Reconciler.
func (r ConcatenatingReconciler) Reconcile(left, right *Column) (*Column, error) {
	sup, err := clock.Superset([]clock.Clock{left.Clock(), right.Clock()}, r.LocalID)
	if err != nil {
		return nil, err
	}

	leftDead, rightDead := left.IsMarkedForDelete(), right.IsMarkedForDelete()
	switch {
	case leftDead && rightDead:
		// keep the later deletion time for GC
		later := left
		if right.LocalDeletionTime() > left.LocalDeletionTime() {
			later = right
		}
		return NewTombstone(later.Name(), later.LocalDeletionTime(), sup), nil
	case leftDead:
		return NewColumn(right.Name(), right.Value(), sup), nil
	case rightDead:
		return NewColumn(left.Name(), left.Value(), sup), nil
	default:
		value := make([]byte, 0, len(left.Value())+len(right.Value()))
		value = append(value, left.Value()...)
		value = append(value, right.Value()...)
		return NewColumn(left.Name(), value, sup), nil
	}
}

// CounterDeletePolicy selects the tie-break between a live counter
// write and a tombstone carrying an equal clock. The deletion
// semantics for counters are not fully settled upstream; the rule is
// a knob rather than a constant, with tombstone-wins as the default.
type CounterDeletePolicy int

// Counter delete policies.
const (
	// DeleteTombstoneWinsTies keeps the tombstone on an equal clock.
	DeleteTombstoneWinsTies CounterDeletePolicy = iota
	// DeleteLiveWinsTies keeps the live column on an equal clock.
	DeleteLiveWinsTies
)

// CounterReconciler merges counter columns. Two live columns join
// their contexts and take the total as the new value; live against
// tombstone resolves by clock recency with the policy tie-break; a
// DISJOINT relation between a live column and a tombstone signals a
// protocol regression and fails loudly.
type CounterReconciler struct {
	// LocalID is the local node identity used during context merges.
	LocalID []byte

	// IDLen is the node id width of the family's contexts.
	IDLen int

	// DeletePolicy is the live-vs-tombstone tie-break.
	DeletePolicy CounterDeletePolicy
}

// Reconcile implements Reconciler.
func (r CounterReconciler) Reconcile(left, right *Column) (*Column, error) {
	leftDead, rightDead := left.IsMarkedForDelete(), right.IsMarkedForDelete()

	switch {
	case !leftDead && !rightDead:
		sup, err := clock.Superset([]clock.Clock{left.Clock(), right.Clock()}, r.LocalID)
		if err != nil {
			return nil, err
		}
		value := r.totalOf(sup)
		return NewColumn(left.Name(), value, sup), nil

	case leftDead && rightDead:
		sup, err := clock.Superset([]clock.Clock{left.Clock(), right.Clock()}, r.LocalID)
		if err != nil {
			return nil, err
		}
		later := left
		if right.LocalDeletionTime() > left.LocalDeletionTime() {
			later = right
		}
		return NewTombstone(later.Name(), later.LocalDeletionTime(), sup), nil

	default:
		live, dead := left, right
		if leftDead {
			live, dead = right, left
		}
		rel, err := live.Clock().Compare(dead.Clock())
		if err != nil {
			return nil, err
		}
		switch rel {
		case clock.Greater:
			return live, nil
		case clock.Less:
			return dead, nil
		case clock.Equal:
			if r.DeletePolicy == DeleteLiveWinsTies {
				return live, nil
			}
			return dead, nil
		default:
			return nil, errors.ImpossibleRelation(
				fmt.Sprintf("counter live vs tombstone disjoint for column %q", live.Name()))
		}
	}
}

func (r CounterReconciler) totalOf(c clock.Clock) []byte {
	switch c.Kind() {
	case clock.KindStandardCounter:
		return clock.NewStandardCodec(r.IDLen).TotalBytes(c.Context())
	default:
		return clock.NewIncrementCodec(r.IDLen).TotalBytes(c.Context())
	}
}
