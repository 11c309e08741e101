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
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flywide/internal/clock"
)

func standardFamily(t *testing.T) *ColumnFamily {
	t.Helper()
	return NewColumnFamily("Standard1", TypeStandard, BytesComparator{}, nid(1), 4)
}

func counterFamily(t *testing.T) *ColumnFamily {
	t.Helper()
	return NewColumnFamily("Counter1", TypeIncrementCounter, BytesComparator{}, nid(1), 4)
}

func deltaValue(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func TestAddColumnLastWriterWins(t *testing.T) {
	cf := standardFamily(t)

	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("v1"), clock.NewTimestamp(1))))
	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("v2"), clock.NewTimestamp(5))))
	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("v0"), clock.NewTimestamp(3))))

	cell, ok := cf.GetColumn([]byte("a"))
	require.True(t, ok)
	col := cell.(*Column)
	assert.Equal(t, []byte("v2"), col.Value())
	assert.EqualValues(t, 5, col.Clock().Timestamp())
	assert.Equal(t, 1, cf.Len())
}

func TestAddColumnTombstoneTie(t *testing.T) {
	cf := standardFamily(t)

	require.NoError(t, cf.AddColumn(NewTombstone([]byte("a"), 100, clock.NewTimestamp(5))))
	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("v"), clock.NewTimestamp(5))))

	cell, ok := cf.GetColumn([]byte("a"))
	require.True(t, ok)
	assert.True(t, cell.IsMarkedForDelete(), "tombstone must survive an equal-clock live write")
}

func TestAddColumnOrdering(t *testing.T) {
	cf := standardFamily(t)
	for _, name := range []string{"c", "a", "b"} {
		require.NoError(t, cf.AddColumn(NewColumn([]byte(name), []byte("v"), clock.NewTimestamp(1))))
	}
	cells := cf.Cells()
	require.Len(t, cells, 3)
	assert.Equal(t, []byte("a"), cells[0].Name())
	assert.Equal(t, []byte("b"), cells[1].Name())
	assert.Equal(t, []byte("c"), cells[2].Name())
}

// Concurrent counter writes must converge on the sum regardless of
// schedule: the insertion protocol reconciles unconditionally.
func TestCounterConcurrentAdds(t *testing.T) {
	cf := counterFamily(t)
	name := []byte("hits")

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				// contexts stamped as if by distinct coordinators, one
				// tuple each, so totals add across merges
				ctx := counterContext(int64(w*1000+i), clock.Tuple{ID: nid(uint32(w + 100)), Count: 1})
				col := NewColumn(name, deltaValue(1), clock.NewCounter(clock.KindIncrementCounter, ctx, 4))
				if err := cf.AddColumn(col); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	cell, ok := cf.GetColumn(name)
	require.True(t, ok)
	col := cell.(*Column)

	// per-node counts merge by max, so each writer contributes
	// exactly its highest count; with count=1 per write the merged
	// total is the writer count
	codec := clock.NewIncrementCodec(4)
	tuples := codec.Tuples(col.Clock().Context())
	assert.Len(t, tuples, writers)
	assert.EqualValues(t, writers, codec.Total(col.Clock().Context()))
}

// Writers pushing increasing counts for their own node id: the final
// state must hold every writer's maximum, whatever the interleaving.
func TestCounterConvergesToJoin(t *testing.T) {
	cf := counterFamily(t)
	name := []byte("hits")

	const writers = 4
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1; i <= perWriter; i++ {
				ctx := counterContext(int64(i), clock.Tuple{ID: nid(uint32(w + 2)), Count: int64(i)})
				col := NewColumn(name, deltaValue(int64(i)), clock.NewCounter(clock.KindIncrementCounter, ctx, 4))
				if err := cf.AddColumn(col); err != nil {
					t.Error(err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	cell, ok := cf.GetColumn(name)
	require.True(t, ok)
	col := cell.(*Column)

	codec := clock.NewIncrementCodec(4)
	for _, tuple := range codec.Tuples(col.Clock().Context()) {
		assert.EqualValues(t, perWriter, tuple.Count, "node %v must hold its max", tuple.ID)
	}
	assert.EqualValues(t, writers*perWriter, codec.Total(col.Clock().Context()))
}

func TestFamilyTombstoneAtomicMax(t *testing.T) {
	cf := standardFamily(t)

	require.NoError(t, cf.Delete(clock.NewTimestamp(10), 100))
	require.NoError(t, cf.Delete(clock.NewTimestamp(5), 50))

	assert.EqualValues(t, 10, cf.MarkedForDeleteAt().Timestamp(), "tombstone clock never regresses")
	assert.EqualValues(t, 100, cf.LocalDeletionTime(), "deletion time never regresses")
	assert.True(t, cf.IsMarkedForDelete())

	require.NoError(t, cf.Delete(clock.NewTimestamp(20), 70))
	assert.EqualValues(t, 20, cf.MarkedForDeleteAt().Timestamp())
	assert.EqualValues(t, 100, cf.LocalDeletionTime())
}

func TestFamilyTombstoneConcurrent(t *testing.T) {
	cf := standardFamily(t)

	var wg sync.WaitGroup
	for i := 1; i <= 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = cf.Delete(clock.NewTimestamp(int64(i)), int32(i))
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 64, cf.MarkedForDeleteAt().Timestamp())
	assert.EqualValues(t, 64, cf.LocalDeletionTime())
}

func TestAddAll(t *testing.T) {
	left := standardFamily(t)
	require.NoError(t, left.AddColumn(NewColumn([]byte("a"), []byte("v1"), clock.NewTimestamp(1))))
	require.NoError(t, left.AddColumn(NewColumn([]byte("b"), []byte("v2"), clock.NewTimestamp(2))))

	right := standardFamily(t)
	require.NoError(t, right.AddColumn(NewColumn([]byte("b"), []byte("v9"), clock.NewTimestamp(9))))
	require.NoError(t, right.AddColumn(NewColumn([]byte("c"), []byte("v3"), clock.NewTimestamp(3))))
	require.NoError(t, right.Delete(clock.NewTimestamp(4), 40))

	require.NoError(t, left.AddAll(right))

	assert.Equal(t, 3, left.Len())
	cell, _ := left.GetColumn([]byte("b"))
	assert.Equal(t, []byte("v9"), cell.(*Column).Value())
	assert.EqualValues(t, 4, left.MarkedForDeleteAt().Timestamp())
}

func TestDigest(t *testing.T) {
	a := standardFamily(t)
	b := standardFamily(t)
	for _, cf := range []*ColumnFamily{a, b} {
		require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("v"), clock.NewTimestamp(1))))
	}
	assert.Equal(t, a.Digest(), b.Digest(), "identical families digest identically")

	require.NoError(t, b.AddColumn(NewColumn([]byte("z"), []byte("v"), clock.NewTimestamp(2))))
	assert.NotEqual(t, a.Digest(), b.Digest(), "diverged families digest differently")
}

func TestDiff(t *testing.T) {
	replica := counterFamily(t)
	superset := counterFamily(t)

	shared := NewColumn([]byte("a"), deltaValue(5),
		clock.NewCounter(clock.KindIncrementCounter, counterContext(10, clock.Tuple{ID: nid(2), Count: 5}), 4))
	require.NoError(t, replica.AddColumn(shared))
	require.NoError(t, superset.AddColumn(shared))

	ahead := NewColumn([]byte("b"), deltaValue(7),
		clock.NewCounter(clock.KindIncrementCounter, counterContext(20, clock.Tuple{ID: nid(3), Count: 7}), 4))
	require.NoError(t, superset.AddColumn(ahead))

	diff, err := Diff(replica, superset)
	require.NoError(t, err)
	require.NotNil(t, diff)
	assert.Equal(t, 1, diff.Len())
	_, ok := diff.GetColumn([]byte("b"))
	assert.True(t, ok, "diff must carry the missing column only")

	// a replica already holding everything needs no repair
	full, err := Diff(superset, superset)
	require.NoError(t, err)
	assert.Nil(t, full)
}

func TestDiffStaleCounts(t *testing.T) {
	replica := counterFamily(t)
	superset := counterFamily(t)

	require.NoError(t, replica.AddColumn(NewColumn([]byte("a"), deltaValue(2),
		clock.NewCounter(clock.KindIncrementCounter, counterContext(10, clock.Tuple{ID: nid(2), Count: 2}), 4))))
	require.NoError(t, superset.AddColumn(NewColumn([]byte("a"), deltaValue(9),
		clock.NewCounter(clock.KindIncrementCounter, counterContext(10, clock.Tuple{ID: nid(2), Count: 9}), 4))))

	diff, err := Diff(replica, superset)
	require.NoError(t, err)
	require.NotNil(t, diff, "stale per-node count must trigger a diff")
	_, ok := diff.GetColumn([]byte("a"))
	assert.True(t, ok)
}

func TestCleanContext(t *testing.T) {
	cf := counterFamily(t)

	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), deltaValue(7),
		clock.NewCounter(clock.KindIncrementCounter,
			counterContext(10, clock.Tuple{ID: nid(2), Count: 5}, clock.Tuple{ID: nid(3), Count: 2}), 4))))
	require.NoError(t, cf.AddColumn(NewColumn([]byte("b"), deltaValue(1),
		clock.NewCounter(clock.KindIncrementCounter,
			counterContext(10, clock.Tuple{ID: nid(3), Count: 1}), 4))))

	clone := cf.CloneMe()
	require.NoError(t, clone.CleanContext(nid(3)))

	// column a keeps node 2's count
	cell, ok := clone.GetColumn([]byte("a"))
	require.True(t, ok)
	codec := clock.NewIncrementCodec(4)
	tuples := codec.Tuples(cell.(*Column).Clock().Context())
	require.Len(t, tuples, 1)
	assert.Equal(t, nid(2), tuples[0].ID)

	// column b's context emptied, so the column is dropped
	_, ok = clone.GetColumn([]byte("b"))
	assert.False(t, ok, "column with an emptied context must be dropped")

	// the original family is untouched
	cell, ok = cf.GetColumn([]byte("b"))
	require.True(t, ok)
	assert.Len(t, codec.Tuples(cell.(*Column).Clock().Context()), 1)
}

func TestUpdateClocksStampsLocalNode(t *testing.T) {
	cf := counterFamily(t)
	codec := clock.NewIncrementCodec(4)

	ctx := codec.Create()
	require.NoError(t, cf.AddColumn(NewColumn([]byte("hits"), deltaValue(3),
		clock.NewCounter(clock.KindIncrementCounter, ctx, 4))))

	require.NoError(t, cf.UpdateClocks(nid(1)))

	cell, ok := cf.GetColumn([]byte("hits"))
	require.True(t, ok)
	col := cell.(*Column)

	tuples := codec.Tuples(col.Clock().Context())
	require.Len(t, tuples, 1)
	assert.Equal(t, nid(1), tuples[0].ID)
	assert.EqualValues(t, 3, tuples[0].Count)

	// the value becomes the context total
	assert.EqualValues(t, 3, int64(binary.BigEndian.Uint64(col.Value())))
}

func TestCloneMeIndependence(t *testing.T) {
	cf := standardFamily(t)
	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("v"), clock.NewTimestamp(1))))

	clone := cf.CloneMe()
	require.NoError(t, clone.AddColumn(NewColumn([]byte("b"), []byte("w"), clock.NewTimestamp(2))))

	assert.Equal(t, 1, cf.Len(), "mutating the clone must not touch the original")
	assert.Equal(t, 2, clone.Len())
}

func TestSuperFamilyAdd(t *testing.T) {
	cf := NewColumnFamily("Super1", TypeSuper, BytesComparator{}, nid(1), 4,
		WithSubComparator(BytesComparator{}))

	sc := NewSuperColumn([]byte("group"), BytesComparator{}, TimestampReconciler{})
	require.NoError(t, sc.AddColumn(NewColumn([]byte("x"), []byte("1"), clock.NewTimestamp(1))))
	require.NoError(t, sc.AddColumn(NewColumn([]byte("y"), []byte("2"), clock.NewTimestamp(1))))
	require.NoError(t, cf.AddColumn(sc))

	// a later write into the same group merges sub-columns
	sc2 := NewSuperColumn([]byte("group"), BytesComparator{}, TimestampReconciler{})
	require.NoError(t, sc2.AddColumn(NewColumn([]byte("x"), []byte("9"), clock.NewTimestamp(5))))
	require.NoError(t, cf.AddColumn(sc2))

	cell, ok := cf.GetColumn([]byte("group"))
	require.True(t, ok)
	group := cell.(*SuperColumn)
	assert.Equal(t, 2, group.Len())

	x, ok := group.GetColumn([]byte("x"))
	require.True(t, ok)
	assert.Equal(t, []byte("9"), x.Value())
}

// Concurrent writes to a version family carry disjoint vectors; the
// concatenating reconciler keeps both values.
func TestVersionFamilyConcatenatesDisjoint(t *testing.T) {
	cf := NewColumnFamily("Version1", TypeVersion, BytesComparator{}, nid(1), 4)

	left := NewColumn([]byte("a"), []byte("xx"),
		counterClock(10, clock.Tuple{ID: nid(2), Count: 1}))
	right := NewColumn([]byte("a"), []byte("yy"),
		counterClock(10, clock.Tuple{ID: nid(3), Count: 1}))

	require.NoError(t, cf.AddColumn(left))
	require.NoError(t, cf.AddColumn(right))

	cell, ok := cf.GetColumn([]byte("a"))
	require.True(t, ok)
	col := cell.(*Column)
	assert.Equal(t, []byte("xxyy"), col.Value(), "disjoint version writes concatenate")

	// the merged vector dominates both inputs
	for _, in := range []*Column{left, right} {
		rel, err := in.Clock().Diff(col.Clock())
		require.NoError(t, err)
		assert.Contains(t, []clock.Relation{clock.Less, clock.Equal}, rel)
	}
}

// A version write whose vector strictly dominates the incumbent
// replaces it outright.
func TestVersionFamilyDominatingWrite(t *testing.T) {
	cf := NewColumnFamily("Version1", TypeVersion, BytesComparator{}, nid(1), 4)

	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("old"),
		counterClock(10, clock.Tuple{ID: nid(2), Count: 1}))))
	require.NoError(t, cf.AddColumn(NewColumn([]byte("a"), []byte("new"),
		counterClock(11, clock.Tuple{ID: nid(2), Count: 2}))))

	cell, _ := cf.GetColumn([]byte("a"))
	assert.Equal(t, []byte("new"), cell.(*Column).Value())
}

func TestFamilyTypeFlags(t *testing.T) {
	tests := []struct {
		typ     FamilyType
		super   bool
		counter bool
		version bool
	}{
		{TypeStandard, false, false, false},
		{TypeSuper, true, false, false},
		{TypeVersion, false, false, true},
		{TypeSuperVersion, true, false, true},
		{TypeIncrementCounter, false, true, false},
		{TypeSuperIncrementCounter, true, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.super, tt.typ.IsSuper())
			assert.Equal(t, tt.counter, tt.typ.IsCounter())
			assert.Equal(t, tt.version, tt.typ.IsVersion())
			assert.True(t, tt.typ.Valid())
		})
	}

	if _, err := ParseFamilyType(6); err == nil {
		t.Error("version|counter must be rejected")
	}
	if _, err := ParseFamilyType(8); err == nil {
		t.Error("unknown flag bits must be rejected")
	}
}
