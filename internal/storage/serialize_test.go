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
	"testing"

	"flywide/internal/clock"
	"flywide/internal/errors"
)

func TestColumnRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		col  *Column
		kind clock.Kind
	}{
		{
			name: "timestamped column",
			col:  NewColumn([]byte("name"), []byte("value"), clock.NewTimestamp(42)),
			kind: clock.KindTimestamp,
		},
		{
			name: "timestamped tombstone",
			col:  NewTombstone([]byte("name"), 123456, clock.NewTimestamp(42)),
			kind: clock.KindTimestamp,
		},
		{
			name: "counter column",
			col: NewColumn([]byte("hits"), deltaValue(5),
				counterClock(10, clock.Tuple{ID: nid(2), Count: 5})),
			kind: clock.KindIncrementCounter,
		},
		{
			name: "empty value",
			col:  NewColumn([]byte("n"), nil, clock.NewTimestamp(0)),
			kind: clock.KindTimestamp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := SerializeColumn(&buf, tt.col); err != nil {
				t.Fatalf("SerializeColumn failed: %v", err)
			}
			if buf.Len() != tt.col.Size() {
				t.Errorf("Size() = %d, serialized %d bytes", tt.col.Size(), buf.Len())
			}

			got, err := DeserializeColumn(&buf, tt.kind, 4)
			if err != nil {
				t.Fatalf("DeserializeColumn failed: %v", err)
			}
			if !bytes.Equal(got.Name(), tt.col.Name()) {
				t.Errorf("name = %q, want %q", got.Name(), tt.col.Name())
			}
			if !bytes.Equal(got.Value(), tt.col.Value()) {
				t.Errorf("value = %q, want %q", got.Value(), tt.col.Value())
			}
			if got.IsMarkedForDelete() != tt.col.IsMarkedForDelete() {
				t.Errorf("deleted = %v, want %v", got.IsMarkedForDelete(), tt.col.IsMarkedForDelete())
			}
			if got.Clock().Timestamp() != tt.col.Clock().Timestamp() {
				t.Errorf("clock = %d, want %d", got.Clock().Timestamp(), tt.col.Clock().Timestamp())
			}
			if !bytes.Equal(got.Clock().Context(), tt.col.Clock().Context()) {
				t.Errorf("context = %v, want %v", got.Clock().Context(), tt.col.Clock().Context())
			}
		})
	}
}

func TestColumnFamilyRoundTrip(t *testing.T) {
	cf := NewColumnFamily("Counter1", TypeIncrementCounter, BytesComparator{}, nid(1), 4)
	if err := cf.AddColumn(NewColumn([]byte("a"), deltaValue(5),
		counterClock(10, clock.Tuple{ID: nid(2), Count: 5}))); err != nil {
		t.Fatal(err)
	}
	if err := cf.AddColumn(NewTombstone([]byte("b"), 777, counterClock(20))); err != nil {
		t.Fatal(err)
	}
	if err := cf.Delete(counterClockAsClock(15), 999); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := SerializeColumnFamily(&buf, cf); err != nil {
		t.Fatalf("SerializeColumnFamily failed: %v", err)
	}

	got, err := DeserializeColumnFamily(&buf, nid(1))
	if err != nil {
		t.Fatalf("DeserializeColumnFamily failed: %v", err)
	}

	if got.Name() != "Counter1" || got.Type() != TypeIncrementCounter {
		t.Errorf("metadata = (%s, %s)", got.Name(), got.Type())
	}
	if got.Len() != 2 {
		t.Fatalf("cell count = %d, want 2", got.Len())
	}
	if got.LocalDeletionTime() != 999 {
		t.Errorf("deletion time = %d, want 999", got.LocalDeletionTime())
	}
	if got.MarkedForDeleteAt().Timestamp() != 15 {
		t.Errorf("tombstone clock = %d, want 15", got.MarkedForDeleteAt().Timestamp())
	}

	// digests agree after a round trip
	if !bytes.Equal(cf.Digest(), got.Digest()) {
		t.Error("round-tripped family must digest identically")
	}
}

func counterClockAsClock(ts int64) clock.Clock {
	return clock.NewCounter(clock.KindIncrementCounter, counterContext(ts), 4)
}

func TestSuperFamilyRoundTrip(t *testing.T) {
	cf := NewColumnFamily("Super1", TypeSuper, BytesComparator{}, nid(1), 4,
		WithSubComparator(BytesComparator{}))

	sc := NewSuperColumn([]byte("group"), BytesComparator{}, TimestampReconciler{})
	if err := sc.AddColumn(NewColumn([]byte("x"), []byte("1"), clock.NewTimestamp(1))); err != nil {
		t.Fatal(err)
	}
	if err := sc.AddColumn(NewColumn([]byte("y"), []byte("2"), clock.NewTimestamp(2))); err != nil {
		t.Fatal(err)
	}
	if err := cf.AddColumn(sc); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := SerializeColumnFamily(&buf, cf); err != nil {
		t.Fatalf("SerializeColumnFamily failed: %v", err)
	}
	got, err := DeserializeColumnFamily(&buf, nid(1))
	if err != nil {
		t.Fatalf("DeserializeColumnFamily failed: %v", err)
	}

	cell, ok := got.GetColumn([]byte("group"))
	if !ok {
		t.Fatal("super column missing after round trip")
	}
	group, ok := cell.(*SuperColumn)
	if !ok {
		t.Fatal("cell is not a super column")
	}
	if group.Len() != 2 {
		t.Errorf("sub-column count = %d, want 2", group.Len())
	}
	x, ok := group.GetColumn([]byte("x"))
	if !ok || !bytes.Equal(x.Value(), []byte("1")) {
		t.Error("sub-column x lost in round trip")
	}
}

func TestRowMutationRoundTrip(t *testing.T) {
	m := NewRowMutation("Keyspace1", []byte("row1"))

	std := NewColumnFamily("Standard1", TypeStandard, BytesComparator{}, nid(1), 4)
	if err := std.AddColumn(NewColumn([]byte("a"), []byte("v"), clock.NewTimestamp(1))); err != nil {
		t.Fatal(err)
	}
	ctr := NewColumnFamily("Counter1", TypeIncrementCounter, BytesComparator{}, nid(1), 4)
	if err := ctr.AddColumn(NewColumn([]byte("hits"), deltaValue(3),
		counterClock(10, clock.Tuple{ID: nid(1), Count: 3}))); err != nil {
		t.Fatal(err)
	}
	if err := m.AddColumnFamily(std); err != nil {
		t.Fatal(err)
	}
	if err := m.AddColumnFamily(ctr); err != nil {
		t.Fatal(err)
	}

	payload, err := m.Bytes()
	if err != nil {
		t.Fatalf("Bytes failed: %v", err)
	}

	got, err := DeserializeRowMutation(bytes.NewReader(payload), nid(1))
	if err != nil {
		t.Fatalf("DeserializeRowMutation failed: %v", err)
	}

	if got.Keyspace() != "Keyspace1" || !bytes.Equal(got.Key(), []byte("row1")) {
		t.Errorf("envelope = (%s, %q)", got.Keyspace(), got.Key())
	}
	names := got.FamilyNames()
	if len(names) != 2 || names[0] != "Counter1" || names[1] != "Standard1" {
		t.Errorf("family names = %v", names)
	}

	family, _ := got.Family("Counter1")
	cell, ok := family.GetColumn([]byte("hits"))
	if !ok {
		t.Fatal("counter column missing after round trip")
	}
	if cell.(*Column).Clock().Timestamp() != 10 {
		t.Error("counter clock lost in round trip")
	}
}

func TestDeserializeNegativeValueLength(t *testing.T) {
	var buf bytes.Buffer
	// name
	if err := writeBytes16(&buf, []byte("a")); err != nil {
		t.Fatal(err)
	}
	// live flag + timestamp clock
	buf.Write([]byte{0})
	if err := clock.NewTimestamp(1).Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	// value length 0xFFFFFFFF reads as -1
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	_, err := DeserializeColumn(&buf, clock.KindTimestamp, 4)
	if !errors.HasCode(err, errors.ErrCodeCorruptFrame) {
		t.Errorf("err = %v, want corrupt frame", err)
	}
}

func TestDeserializeOversizedValue(t *testing.T) {
	var buf bytes.Buffer
	if err := writeBytes16(&buf, []byte("a")); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0})
	if err := clock.NewTimestamp(1).Serialize(&buf); err != nil {
		t.Fatal(err)
	}
	// 2 GiB value
	buf.Write([]byte{0x7F, 0xFF, 0xFF, 0xFF})

	_, err := DeserializeColumn(&buf, clock.KindTimestamp, 4)
	if !errors.HasCode(err, errors.ErrCodeFrameTooLarge) {
		t.Errorf("err = %v, want frame too large", err)
	}
}
