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
Column Name Comparators
=======================

A column family orders its columns by name under a comparator chosen
at family definition time. The comparator is part of the on-disk and
on-wire contract for the family: changing it re-orders every row.

Supported comparators:

  1. BytesType (default):
     - Byte-by-byte comparison, fastest
  2. AsciiType:
     - Byte comparison; names are not checked for 7-bit ASCII
  3. UTF8Type:
     - Unicode collation via golang.org/x/text/collate
  4. LongType:
     - Names are 8-byte big-endian signed integers
  5. TimeUUIDType:
     - Names are 16-byte version-1 UUIDs ordered by their embedded
       timestamp, then lexically as a tie-break
*/
package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/google/uuid"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"flywide/internal/errors"
)

// Comparator orders column names within a family.
type Comparator interface {
	// Name returns the symbolic comparator name used in schema and
	// wire headers.
	Name() string

	// Compare returns -1, 0 or 1 as a sorts before, equal to or
	// after b.
	Compare(a, b []byte) int
}

// BytesComparator compares names byte-wise.
type BytesComparator struct{}

// Name implements Comparator.
func (BytesComparator) Name() string { return "BytesType" }

// Compare implements Comparator.
func (BytesComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// AsciiComparator compares names byte-wise. Names are not checked for
// 7-bit ASCII, here or on the write path.
type AsciiComparator struct{}

// Name implements Comparator.
func (AsciiComparator) Name() string { return "AsciiType" }

// Compare implements Comparator.
func (AsciiComparator) Compare(a, b []byte) int { return bytes.Compare(a, b) }

// LongComparator treats names as 8-byte big-endian signed integers.
// Shorter names sort before longer ones.
type LongComparator struct{}

// Name implements Comparator.
func (LongComparator) Name() string { return "LongType" }

// Compare implements Comparator.
func (LongComparator) Compare(a, b []byte) int {
	if len(a) != 8 || len(b) != 8 {
		switch {
		case len(a) < len(b):
			return -1
		case len(a) > len(b):
			return 1
		default:
			return bytes.Compare(a, b)
		}
	}
	av := int64(binary.BigEndian.Uint64(a))
	bv := int64(binary.BigEndian.Uint64(b))
	switch {
	case av < bv:
		return -1
	case av > bv:
		return 1
	default:
		return 0
	}
}

// UTF8Comparator orders names by Unicode collation.
type UTF8Comparator struct {
	collator *collate.Collator
}

// NewUTF8Comparator builds a comparator over the root locale.
func NewUTF8Comparator() *UTF8Comparator {
	return &UTF8Comparator{collator: collate.New(language.Und)}
}

// Name implements Comparator.
func (*UTF8Comparator) Name() string { return "UTF8Type" }

// Compare implements Comparator.
func (c *UTF8Comparator) Compare(a, b []byte) int {
	return c.collator.Compare(a, b)
}

// TimeUUIDComparator orders 16-byte version-1 UUID names by their
// embedded timestamp. Non-UUID or non-v1 names fall back to byte
// order so malformed data still sorts deterministically.
type TimeUUIDComparator struct{}

// Name implements Comparator.
func (TimeUUIDComparator) Name() string { return "TimeUUIDType" }

// Compare implements Comparator.
func (TimeUUIDComparator) Compare(a, b []byte) int {
	at, aok := timeUUIDStamp(a)
	bt, bok := timeUUIDStamp(b)
	if aok && bok {
		switch {
		case at < bt:
			return -1
		case at > bt:
			return 1
		}
	}
	return bytes.Compare(a, b)
}

func timeUUIDStamp(name []byte) (int64, bool) {
	u, err := uuid.FromBytes(name)
	if err != nil || u.Version() != 1 {
		return 0, false
	}
	return int64(u.Time()), true
}

// ComparatorByName resolves a symbolic comparator name.
func ComparatorByName(name string) (Comparator, error) {
	switch name {
	case "BytesType", "":
		return BytesComparator{}, nil
	case "AsciiType":
		return AsciiComparator{}, nil
	case "UTF8Type":
		return NewUTF8Comparator(), nil
	case "LongType":
		return LongComparator{}, nil
	case "TimeUUIDType":
		return TimeUUIDComparator{}, nil
	default:
		return nil, errors.UnknownComparator(name)
	}
}
