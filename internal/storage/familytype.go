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
	"flywide/internal/clock"
	"flywide/internal/errors"
)

// FamilyType discriminates the column family kinds. It decomposes
// into bit flags:
//
//	bit 0: super (columns are super columns)
//	bit 1: version (deprecated version-vector families)
//	bit 2: increment counter
//
// The flags select the clock kind attached to columns, the default
// minimum clock for tombstones and the reconciler used on merge.
type FamilyType uint8

// Family type flags.
const (
	flagSuper   FamilyType = 1 << 0
	flagVersion FamilyType = 1 << 1
	flagCounter FamilyType = 1 << 2
)

// Valid family types.
const (
	TypeStandard              FamilyType = 0
	TypeSuper                 FamilyType = flagSuper
	TypeVersion               FamilyType = flagVersion
	TypeSuperVersion          FamilyType = flagSuper | flagVersion
	TypeIncrementCounter      FamilyType = flagCounter
	TypeSuperIncrementCounter FamilyType = flagSuper | flagCounter
)

// String returns the symbolic type name.
func (t FamilyType) String() string {
	switch t {
	case TypeStandard:
		return "Standard"
	case TypeSuper:
		return "Super"
	case TypeVersion:
		return "Version"
	case TypeSuperVersion:
		return "SuperVersion"
	case TypeIncrementCounter:
		return "IncrementCounter"
	case TypeSuperIncrementCounter:
		return "SuperIncrementCounter"
	default:
		return "INVALID"
	}
}

// IsSuper reports whether columns of the family are super columns.
func (t FamilyType) IsSuper() bool { return t&flagSuper != 0 }

// IsCounter reports whether the family carries counter clocks.
func (t FamilyType) IsCounter() bool { return t&flagCounter != 0 }

// IsVersion reports whether the family is a retired version-vector
// family, kept for wire compatibility.
func (t FamilyType) IsVersion() bool { return t&flagVersion != 0 }

// Valid reports whether the flag combination names a defined type.
func (t FamilyType) Valid() bool {
	switch t {
	case TypeStandard, TypeSuper, TypeVersion, TypeSuperVersion,
		TypeIncrementCounter, TypeSuperIncrementCounter:
		return true
	default:
		return false
	}
}

// ParseFamilyType validates a raw type byte.
func ParseFamilyType(b uint8) (FamilyType, error) {
	t := FamilyType(b)
	if !t.Valid() {
		return 0, errors.BadFamilyType(b)
	}
	return t, nil
}

// ClockKind returns the clock kind columns of this family carry.
// Counter and version families both use the vector-shaped context;
// everything else is plain timestamps.
func (t FamilyType) ClockKind() clock.Kind {
	if t.IsCounter() || t.IsVersion() {
		return clock.KindIncrementCounter
	}
	return clock.KindTimestamp
}

// MinClock returns the family's default minimum clock, used to
// initialize the tombstone pair.
func (t FamilyType) MinClock(idLen int) clock.Clock {
	return clock.MinClock(t.ClockKind(), idLen)
}
