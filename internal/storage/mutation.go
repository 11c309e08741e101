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
	"bytes"
	"fmt"
	"io"
	"sort"

	"flywide/internal/errors"
)

// RowMutation is the unit of write: the families to apply to one row
// of one keyspace. Clients build it column by column; the write
// pipeline stamps counter clocks with the local identity, appends
// the serialized form to the commit log and folds the families into
// the in-memory store.
type RowMutation struct {
	keyspace string
	key      []byte
	families map[string]*ColumnFamily
}

// NewRowMutation starts an empty mutation for a row.
func NewRowMutation(keyspace string, key []byte) *RowMutation {
	return &RowMutation{
		keyspace: keyspace,
		key:      append([]byte(nil), key...),
		families: make(map[string]*ColumnFamily),
	}
}

// Keyspace returns the target keyspace.
func (m *RowMutation) Keyspace() string { return m.keyspace }

// Key returns the row key.
func (m *RowMutation) Key() []byte { return m.key }

// AddColumnFamily attaches a fully built family to the mutation,
// merging when the family was added before.
func (m *RowMutation) AddColumnFamily(cf *ColumnFamily) error {
	if cur, ok := m.families[cf.Name()]; ok {
		return cur.AddAll(cf)
	}
	m.families[cf.Name()] = cf
	return nil
}

// Family returns the staged family with the given name.
func (m *RowMutation) Family(name string) (*ColumnFamily, bool) {
	cf, ok := m.families[name]
	return cf, ok
}

// FamilyNames returns the staged family names, sorted for
// deterministic iteration and serialization.
func (m *RowMutation) FamilyNames() []string {
	names := make([]string, 0, len(m.families))
	for name := range m.families {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the mutation stages no families.
func (m *RowMutation) IsEmpty() bool { return len(m.families) == 0 }

// UpdateClocks stamps every staged counter family with the local
// node's contribution. This runs at the coordinator before fan-out,
// on columns the mutation exclusively owns; it is the only in-place
// counter update path.
func (m *RowMutation) UpdateClocks(localID []byte) error {
	for _, cf := range m.families {
		if err := cf.UpdateClocks(localID); err != nil {
			return err
		}
	}
	return nil
}

// Serialize writes the mutation envelope payload: keyspace, key and
// the staged families, each length-prefixed.
func (m *RowMutation) Serialize(w io.Writer) error {
	if err := writeBytes16(w, []byte(m.keyspace)); err != nil {
		return err
	}
	if err := writeBytes16(w, m.key); err != nil {
		return err
	}
	names := m.FamilyNames()
	if err := writeUint32(w, uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := SerializeColumnFamily(w, m.families[name]); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the serialized mutation.
func (m *RowMutation) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := m.Serialize(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeserializeRowMutation reads a mutation envelope payload. localID
// is wired into the reconcilers of the deserialized families.
func DeserializeRowMutation(r io.Reader, localID []byte) (*RowMutation, error) {
	keyspace, err := readBytes16(r)
	if err != nil {
		return nil, err
	}
	key, err := readBytes16(r)
	if err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if int32(count) < 0 {
		return nil, errors.CorruptFrame(fmt.Sprintf("negative family count %d", int32(count)))
	}

	m := NewRowMutation(string(keyspace), key)
	for i := 0; i < int(count); i++ {
		cf, err := DeserializeColumnFamily(r, localID)
		if err != nil {
			return nil, err
		}
		if err := m.AddColumnFamily(cf); err != nil {
			return nil, err
		}
	}
	return m, nil
}
