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

package clock

import (
	"encoding/binary"
	"fmt"
	"io"

	"flywide/internal/errors"
)

// MaxContextSize bounds a counter context frame. A context this
// large would mean tens of millions of replicas; anything beyond it
// is treated as corruption.
const MaxContextSize = 1 << 26

// Size returns the exact byte count Serialize produces.
func (c Clock) Size() int {
	if c.kind == KindTimestamp {
		return 8
	}
	return 4 + len(c.ctx)
}

// Serialize writes the clock's wire form:
//
//	Timestamp:  8-byte big-endian i64
//	Counter:    u32 big-endian context length, then the raw bytes
func (c Clock) Serialize(w io.Writer) error {
	if c.kind == KindTimestamp {
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(c.ts))
		_, err := w.Write(buf[:])
		return err
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c.ctx)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(c.ctx)
	return err
}

// DeserializeClock reads a clock of a known kind. Counter contexts
// are validated structurally: a negative length prefix and a byte
// count that does not decompose into header plus whole tuples are
// corruption; a length above MaxContextSize is a frame-too-large
// error.
func DeserializeClock(r io.Reader, kind Kind, idLen int) (Clock, error) {
	if kind == KindTimestamp {
		var buf [8]byte
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return Clock{}, err
		}
		return NewTimestamp(int64(binary.BigEndian.Uint64(buf[:]))), nil
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Clock{}, err
	}
	n := int32(binary.BigEndian.Uint32(lenBuf[:]))
	if n < 0 {
		return Clock{}, errors.CorruptFrame(fmt.Sprintf("negative counter context length %d", n))
	}
	if n > MaxContextSize {
		return Clock{}, errors.FrameTooLarge(int(n), MaxContextSize)
	}

	ctx := make(Context, n)
	if _, err := io.ReadFull(r, ctx); err != nil {
		return Clock{}, err
	}

	switch kind {
	case KindIncrementCounter:
		if err := NewIncrementCodec(idLen).Validate(ctx); err != nil {
			return Clock{}, err
		}
	case KindStandardCounter:
		if err := NewStandardCodec(idLen).Validate(ctx); err != nil {
			return Clock{}, err
		}
	default:
		return Clock{}, errors.ClockKindMismatch(kind.String(), "?")
	}
	return NewCounter(kind, ctx, idLen), nil
}
