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

	"github.com/tidwall/btree"
)

// columnMap is a concurrent, comparator-ordered map from column name
// to Cell. PutIfAbsent and CompareAndReplace are linearizable; they
// are the only mutation protocol the write path uses. Iteration
// works over a snapshot of the underlying copy-on-write tree, so a
// failed CompareAndReplace must be followed by a fresh Get rather
// than a re-scan.
type columnMap struct {
	mu   sync.RWMutex
	tree *btree.BTreeG[Cell]
}

// keyProbe is a minimal Cell used to search the tree by name.
type keyProbe struct {
	name []byte
}

func (k keyProbe) Name() []byte            { return k.name }
func (k keyProbe) Size() int               { return 0 }
func (k keyProbe) IsMarkedForDelete() bool { return false }

func newColumnMap(cmp Comparator) *columnMap {
	return &columnMap{
		tree: btree.NewBTreeGOptions(
			func(a, b Cell) bool { return cmp.Compare(a.Name(), b.Name()) < 0 },
			btree.Options{NoLocks: true},
		),
	}
}

// Get returns the cell stored under name.
func (m *columnMap) Get(name []byte) (Cell, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Get(keyProbe{name: name})
}

// PutIfAbsent inserts the cell when no cell with its name exists.
// It returns the incumbent and false on collision, the inserted cell
// and true otherwise.
func (m *columnMap) PutIfAbsent(c Cell) (Cell, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.tree.Get(c); ok {
		return old, false
	}
	m.tree.Set(c)
	return c, true
}

// CompareAndReplace swaps the cell stored under name for repl only
// when the incumbent is still exactly old. Returns false when the
// entry changed or vanished since the caller read it.
func (m *columnMap) CompareAndReplace(name []byte, old, repl Cell) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.tree.Get(keyProbe{name: name})
	if !ok || cur != old {
		return false
	}
	m.tree.Set(repl)
	return true
}

// Put stores the cell unconditionally. Deserialization only; the
// write path goes through PutIfAbsent/CompareAndReplace.
func (m *columnMap) Put(c Cell) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tree.Set(c)
}

// Remove deletes the cell stored under name.
func (m *columnMap) Remove(name []byte) (Cell, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tree.Delete(keyProbe{name: name})
}

// Len returns the number of cells.
func (m *columnMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tree.Len()
}

// Ascend walks the cells in comparator order over a point-in-time
// snapshot. The callback returns false to stop early.
func (m *columnMap) Ascend(fn func(Cell) bool) {
	m.mu.RLock()
	snapshot := m.tree.Copy()
	m.mu.RUnlock()
	snapshot.Scan(fn)
}

// Cells returns a point-in-time slice of all cells in order.
func (m *columnMap) Cells() []Cell {
	out := make([]Cell, 0, m.Len())
	m.Ascend(func(c Cell) bool {
		out = append(out, c)
		return true
	})
	return out
}
