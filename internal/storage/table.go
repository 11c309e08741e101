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

	"flywide/internal/errors"
	"flywide/internal/logging"
)

// FamilyDef describes one column family of a keyspace schema.
type FamilyDef struct {
	Name          string
	Type          FamilyType
	Comparator    Comparator
	SubComparator Comparator
	Options       []FamilyOption
}

// Table is one keyspace's in-memory store: a ColumnFamilyStore per
// defined family. It owns the write pipeline: stamp counter clocks,
// append to the commit log, fold into the memtables.
type Table struct {
	name    string
	localID []byte
	idLen   int
	log     *logging.Logger

	commitLog CommitLog

	mu     sync.RWMutex
	stores map[string]*ColumnFamilyStore
}

// NewTable builds a keyspace store over the given schema.
func NewTable(name string, defs []FamilyDef, localID []byte, idLen int, commitLog CommitLog) *Table {
	if commitLog == nil {
		commitLog = NopCommitLog{}
	}
	t := &Table{
		name:      name,
		localID:   append([]byte(nil), localID...),
		idLen:     idLen,
		log:       logging.NewLogger("table").With("keyspace", name),
		commitLog: commitLog,
		stores:    make(map[string]*ColumnFamilyStore, len(defs)),
	}
	for _, def := range defs {
		t.stores[def.Name] = newColumnFamilyStore(def, localID, idLen)
	}
	return t
}

// Name returns the keyspace name.
func (t *Table) Name() string { return t.name }

// Store returns the per-family store.
func (t *Table) Store(family string) (*ColumnFamilyStore, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.stores[family]
	return s, ok
}

// Apply runs the write pipeline for one mutation:
//
//  1. Counter families are stamped with the local node's identity,
//     folding each column's delta into its context in place. This
//     happens before the mutation becomes visible anywhere.
//  2. The serialized mutation goes to the commit log.
//  3. Each family folds into its memtable under the reconciling
//     insertion protocol.
func (t *Table) Apply(m *RowMutation) error {
	if m.Keyspace() != t.name {
		return errors.UnknownFamily(m.Keyspace(), "(keyspace mismatch)")
	}

	if err := m.UpdateClocks(t.localID); err != nil {
		return err
	}

	payload, err := m.Bytes()
	if err != nil {
		return err
	}
	if err := t.commitLog.Append(payload); err != nil {
		return errors.CommitLogFailure(err)
	}

	for _, name := range m.FamilyNames() {
		store, ok := t.Store(name)
		if !ok {
			return errors.UnknownFamily(t.name, name)
		}
		cf, _ := m.Family(name)
		if err := store.Apply(m.Key(), cf); err != nil {
			return err
		}
	}
	t.log.Debug("mutation applied", "key", string(m.Key()), "families", len(m.FamilyNames()))
	return nil
}

// ColumnFamilyStore holds one family's memtable: row key to the
// family's reconciled in-memory state.
type ColumnFamilyStore struct {
	def     FamilyDef
	localID []byte
	idLen   int

	mu       sync.RWMutex
	memtable map[string]*ColumnFamily
}

func newColumnFamilyStore(def FamilyDef, localID []byte, idLen int) *ColumnFamilyStore {
	return &ColumnFamilyStore{
		def:      def,
		localID:  append([]byte(nil), localID...),
		idLen:    idLen,
		memtable: make(map[string]*ColumnFamily),
	}
}

// Def returns the family definition.
func (s *ColumnFamilyStore) Def() FamilyDef { return s.def }

// EmptyFamily builds a fresh family matching the store's schema.
func (s *ColumnFamilyStore) EmptyFamily() *ColumnFamily {
	opts := s.def.Options
	if s.def.SubComparator != nil {
		opts = append(append([]FamilyOption(nil), opts...), WithSubComparator(s.def.SubComparator))
	}
	return NewColumnFamily(s.def.Name, s.def.Type, s.def.Comparator, s.localID, s.idLen, opts...)
}

// Apply folds the incoming family into the row's resident state.
// The resident family instance is created at most once per key; all
// mutation happens through its reconciling insertion protocol, so
// concurrent Apply calls for one key interleave safely.
func (s *ColumnFamilyStore) Apply(key []byte, incoming *ColumnFamily) error {
	resident := s.resident(key)
	return resident.AddAll(incoming)
}

func (s *ColumnFamilyStore) resident(key []byte) *ColumnFamily {
	k := string(key)
	s.mu.RLock()
	cf, ok := s.memtable[k]
	s.mu.RUnlock()
	if ok {
		return cf
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cf, ok = s.memtable[k]; ok {
		return cf
	}
	cf = s.EmptyFamily()
	s.memtable[k] = cf
	return cf
}

// Snapshot returns the row's current family state.
func (s *ColumnFamilyStore) Snapshot(key []byte) (*ColumnFamily, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cf, ok := s.memtable[string(key)]
	return cf, ok
}

// Rows returns a point-in-time view of all resident rows, for the
// flusher.
func (s *ColumnFamilyStore) Rows() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]Row, 0, len(s.memtable))
	for key, cf := range s.memtable {
		rows = append(rows, Row{Key: []byte(key), Family: cf})
	}
	return rows
}

// Truncate drops all resident rows after a flush.
func (s *ColumnFamilyStore) Truncate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.memtable = make(map[string]*ColumnFamily)
}
