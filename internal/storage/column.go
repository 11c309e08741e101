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
	"encoding/binary"

	"flywide/internal/clock"
)

// Cell is a named entry in a column family map: a Column for
// standard families, a SuperColumn for super families.
type Cell interface {
	// Name returns the cell's column name.
	Name() []byte

	// Size returns the exact serialized byte count.
	Size() int

	// IsMarkedForDelete reports whether the cell is a tombstone.
	IsMarkedForDelete() bool
}

// Column is an immutable (name, value, clock) triple. A deleted
// column's value is its 4-byte local-deletion-time in seconds since
// the epoch, kept for tombstone GC.
//
// Columns must never be mutated after insertion into a family map;
// the write path replaces them wholesale through reconciliation.
type Column struct {
	name    []byte
	value   []byte
	clk     clock.Clock
	deleted bool
}

// NewColumn builds a live column.
func NewColumn(name, value []byte, clk clock.Clock) *Column {
	return &Column{name: name, value: value, clk: clk}
}

// NewTombstone builds a deleted column whose value records the local
// deletion time.
func NewTombstone(name []byte, localDeletionTime int32, clk clock.Clock) *Column {
	value := make([]byte, 4)
	binary.BigEndian.PutUint32(value, uint32(localDeletionTime))
	return &Column{name: name, value: value, clk: clk, deleted: true}
}

// Name implements Cell.
func (c *Column) Name() []byte { return c.name }

// Value returns the column value bytes.
func (c *Column) Value() []byte { return c.value }

// Clock returns the column's clock.
func (c *Column) Clock() clock.Clock { return c.clk }

// IsMarkedForDelete implements Cell.
func (c *Column) IsMarkedForDelete() bool { return c.deleted }

// LocalDeletionTime returns the GC timestamp of a tombstone; zero
// for live columns.
func (c *Column) LocalDeletionTime() int32 {
	if !c.deleted || len(c.value) != 4 {
		return 0
	}
	return int32(binary.BigEndian.Uint32(c.value))
}

// WithClock returns a copy of the column carrying a different clock.
func (c *Column) WithClock(clk clock.Clock) *Column {
	return &Column{name: c.name, value: c.value, clk: clk, deleted: c.deleted}
}

// WithValue returns a copy of the column carrying a different value.
func (c *Column) WithValue(value []byte) *Column {
	return &Column{name: c.name, value: value, clk: c.clk, deleted: c.deleted}
}

// Size implements Cell: u16 name length, name, deletion flag, clock,
// u32 value length, value.
func (c *Column) Size() int {
	return 2 + len(c.name) + 1 + c.clk.Size() + 4 + len(c.value)
}
