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

package storage

import (
	"sync"

	"flywide/internal/clock"
)

// SuperColumn is a named container of columns sharing one comparator
// and one reconciler. It is the Cell stored in super family maps;
// merging two same-name super columns merges their sub-columns
// pairwise.
type SuperColumn struct {
	name       []byte
	comparator Comparator
	reconciler Reconciler

	mu      sync.RWMutex
	columns []*Column // kept sorted by comparator over names
}

// NewSuperColumn builds an empty super column.
func NewSuperColumn(name []byte, comparator Comparator, reconciler Reconciler) *SuperColumn {
	return &SuperColumn{name: name, comparator: comparator, reconciler: reconciler}
}

// Name implements Cell.
func (sc *SuperColumn) Name() []byte { return sc.name }

// IsMarkedForDelete implements Cell. A super column is a tombstone
// when every sub-column is.
func (sc *SuperColumn) IsMarkedForDelete() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if len(sc.columns) == 0 {
		return false
	}
	for _, c := range sc.columns {
		if !c.IsMarkedForDelete() {
			return false
		}
	}
	return true
}

// AddColumn inserts a sub-column, reconciling with any incumbent of
// the same name.
func (sc *SuperColumn) AddColumn(col *Column) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	lo, hi := 0, len(sc.columns)
	for lo < hi {
		mid := (lo + hi) / 2
		if sc.comparator.Compare(sc.columns[mid].Name(), col.Name()) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo < len(sc.columns) && sc.comparator.Compare(sc.columns[lo].Name(), col.Name()) == 0 {
		merged, err := sc.reconciler.Reconcile(sc.columns[lo], col)
		if err != nil {
			return err
		}
		sc.columns[lo] = merged
		return nil
	}

	sc.columns = append(sc.columns, nil)
	copy(sc.columns[lo+1:], sc.columns[lo:])
	sc.columns[lo] = col
	return nil
}

// GetColumn returns the sub-column with the given name.
func (sc *SuperColumn) GetColumn(name []byte) (*Column, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	for _, c := range sc.columns {
		if sc.comparator.Compare(c.Name(), name) == 0 {
			return c, true
		}
	}
	return nil, false
}

// Columns returns the sub-columns in comparator order.
func (sc *SuperColumn) Columns() []*Column {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	out := make([]*Column, len(sc.columns))
	copy(out, sc.columns)
	return out
}

// Len returns the sub-column count.
func (sc *SuperColumn) Len() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return len(sc.columns)
}

// MaxClock returns the join-free recency bound of the container: the
// greatest sub-column clock by compare order. Used when a super
// column stands in for a cell in recency decisions.
func (sc *SuperColumn) MaxClock() (clock.Clock, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	if len(sc.columns) == 0 {
		return clock.Clock{}, false
	}
	max := sc.columns[0].Clock()
	for _, c := range sc.columns[1:] {
		if rel, err := c.Clock().Compare(max); err == nil && rel == clock.Greater {
			max = c.Clock()
		}
	}
	return max, true
}

// cloneWith returns a copy of the super column with its sub-columns
// replaced. Used by the read path when sanitizing counter contexts.
func (sc *SuperColumn) cloneWith(columns []*Column) *SuperColumn {
	return &SuperColumn{
		name:       sc.name,
		comparator: sc.comparator,
		reconciler: sc.reconciler,
		columns:    columns,
	}
}

// Size implements Cell: u16 name length, name, u16 sub-column count,
// sub-columns.
func (sc *SuperColumn) Size() int {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	size := 2 + len(sc.name) + 2
	for _, c := range sc.columns {
		size += c.Size()
	}
	return size
}
