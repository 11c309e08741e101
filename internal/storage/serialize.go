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
Storage Wire Format
===================

Column (inside a family):

	+------------------+-----------+---------------+------------+
	| name length (2B) | name      | deleted (1B)  | clock      |
	+------------------+-----------+---------------+------------+
	| value length (4B)| value                                  |
	+------------------+----------------------------------------+

Super column:

	+------------------+-----------+--------------------+---------+
	| name length (2B) | name      | column count (2B)  | columns |
	+------------------+-----------+--------------------+---------+

Column family:

	+------------------+--------+-------------------+---------------------+
	| name length (2B) | type   | comparator (2B+s) | subcomparator (2B+s)|
	+------------------+--------+-------------------+---------------------+
	| kind (1B) | id width (1B) | tombstone clock | deletion time (4B)    |
	+-----------+---------------+-----------------+-----------------------+
	| count (4B) | cells ...                                              |
	+------------+--------------------------------------------------------+

kind is the clock kind byte. All integers are big-endian. Every
32-bit length prefix is validated before allocation; a negative length
is a corrupt frame and an oversized one a frame-too-large error.
*/
package storage

import (
	"encoding/binary"
	"fmt"
	"io"

	"flywide/internal/clock"
	"flywide/internal/errors"
)

// MaxValueSize bounds a single column value frame.
const MaxValueSize = 1 << 30

// MaxNameSize bounds a single column name frame.
const MaxNameSize = 1 << 16

func writeUint16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeBytes16(w io.Writer, b []byte) error {
	if err := writeUint16(w, uint16(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes16(r io.Reader) ([]byte, error) {
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func writeBytes32(w io.Writer, b []byte) error {
	if err := writeUint32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes32(r io.Reader, limit int) ([]byte, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if int32(n) < 0 {
		return nil, errors.CorruptFrame(fmt.Sprintf("negative length prefix %d", int32(n)))
	}
	if int(n) > limit {
		return nil, errors.FrameTooLarge(int(n), limit)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// SerializeColumn writes the column wire form.
func SerializeColumn(w io.Writer, c *Column) error {
	if err := writeBytes16(w, c.Name()); err != nil {
		return err
	}
	flag := byte(0)
	if c.IsMarkedForDelete() {
		flag = 1
	}
	if _, err := w.Write([]byte{flag}); err != nil {
		return err
	}
	if err := c.Clock().Serialize(w); err != nil {
		return err
	}
	return writeBytes32(w, c.Value())
}

// DeserializeColumn reads a column whose clock kind and id width are
// dictated by the owning family.
func DeserializeColumn(r io.Reader, kind clock.Kind, idLen int) (*Column, error) {
	name, err := readBytes16(r)
	if err != nil {
		return nil, err
	}
	var flag [1]byte
	if _, err := io.ReadFull(r, flag[:]); err != nil {
		return nil, err
	}
	clk, err := clock.DeserializeClock(r, kind, idLen)
	if err != nil {
		return nil, err
	}
	value, err := readBytes32(r, MaxValueSize)
	if err != nil {
		return nil, err
	}
	col := &Column{name: name, value: value, clk: clk, deleted: flag[0] != 0}
	return col, nil
}

func serializeSuperColumn(w io.Writer, sc *SuperColumn) error {
	if err := writeBytes16(w, sc.Name()); err != nil {
		return err
	}
	cols := sc.Columns()
	if err := writeUint16(w, uint16(len(cols))); err != nil {
		return err
	}
	for _, c := range cols {
		if err := SerializeColumn(w, c); err != nil {
			return err
		}
	}
	return nil
}

func deserializeSuperColumn(r io.Reader, kind clock.Kind, idLen int, comparator Comparator, reconciler Reconciler) (*SuperColumn, error) {
	name, err := readBytes16(r)
	if err != nil {
		return nil, err
	}
	count, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	sc := NewSuperColumn(name, comparator, reconciler)
	for i := 0; i < int(count); i++ {
		col, err := DeserializeColumn(r, kind, idLen)
		if err != nil {
			return nil, err
		}
		if err := sc.AddColumn(col); err != nil {
			return nil, err
		}
	}
	return sc, nil
}

// serializeBody writes the tombstone pair and cells: the digest
// input and the family payload after the metadata header.
func (cf *ColumnFamily) serializeBody(w io.Writer) error {
	if err := cf.MarkedForDeleteAt().Serialize(w); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(cf.LocalDeletionTime())); err != nil {
		return err
	}
	cells := cf.Cells()
	if err := writeUint32(w, uint32(len(cells))); err != nil {
		return err
	}
	for _, c := range cells {
		switch cell := c.(type) {
		case *Column:
			if err := SerializeColumn(w, cell); err != nil {
				return err
			}
		case *SuperColumn:
			if err := serializeSuperColumn(w, cell); err != nil {
				return err
			}
		default:
			return errors.InvalidValue("unknown cell type in family")
		}
	}
	return nil
}

// SerializeColumnFamily writes the family's full wire form.
func SerializeColumnFamily(w io.Writer, cf *ColumnFamily) error {
	if err := writeBytes16(w, []byte(cf.Name())); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(cf.Type())}); err != nil {
		return err
	}
	if err := writeBytes16(w, []byte(cf.comparator.Name())); err != nil {
		return err
	}
	sub := ""
	if cf.subComparator != nil {
		sub = cf.subComparator.Name()
	}
	if err := writeBytes16(w, []byte(sub)); err != nil {
		return err
	}
	kindAndWidth := []byte{byte(cf.clockKind), byte(cf.idLen)}
	if _, err := w.Write(kindAndWidth); err != nil {
		return err
	}
	return cf.serializeBody(w)
}

// DeserializeColumnFamily reads a family. localID is the local node
// identity wired into the family's reconciler.
func DeserializeColumnFamily(r io.Reader, localID []byte) (*ColumnFamily, error) {
	name, err := readBytes16(r)
	if err != nil {
		return nil, err
	}
	var typByte [1]byte
	if _, err := io.ReadFull(r, typByte[:]); err != nil {
		return nil, err
	}
	typ, err := ParseFamilyType(typByte[0])
	if err != nil {
		return nil, err
	}
	cmpName, err := readBytes16(r)
	if err != nil {
		return nil, err
	}
	comparator, err := ComparatorByName(string(cmpName))
	if err != nil {
		return nil, err
	}
	subName, err := readBytes16(r)
	if err != nil {
		return nil, err
	}
	var kindAndWidth [2]byte
	if _, err := io.ReadFull(r, kindAndWidth[:]); err != nil {
		return nil, err
	}
	kind := clock.Kind(kindAndWidth[0])
	idLen := int(kindAndWidth[1])

	opts := []FamilyOption{WithClockKind(kind)}
	if typ.IsSuper() {
		subComparator, err := ComparatorByName(string(subName))
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithSubComparator(subComparator))
	}
	cf := NewColumnFamily(string(name), typ, comparator, localID, idLen, opts...)

	tombstone, err := clock.DeserializeClock(r, kind, idLen)
	if err != nil {
		return nil, err
	}
	deletionTime, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if err := cf.Delete(tombstone, int32(deletionTime)); err != nil {
		return nil, err
	}

	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	if int32(count) < 0 {
		return nil, errors.CorruptFrame(fmt.Sprintf("negative cell count %d", int32(count)))
	}
	for i := 0; i < int(count); i++ {
		var cell Cell
		if typ.IsSuper() {
			cell, err = deserializeSuperColumn(r, kind, idLen, cf.subComparator, cf.reconciler)
		} else {
			cell, err = DeserializeColumn(r, kind, idLen)
		}
		if err != nil {
			return nil, err
		}
		cf.columns.Put(cell)
	}
	return cf, nil
}
