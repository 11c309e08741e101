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
Package protocol implements the FlyWide envelope framing.

The messaging layer between replicas is an external collaborator;
this package only defines the envelope that wraps a serialized
payload — a row mutation, a repair mutation, a read response or a
digest — on its way to the commit log or the transport.

Envelope Format:
================

	+--------+--------+--------+--------+--------+--------+...
	| Magic  | Version| MsgType| Flags  |    Length (4B)   | Payload...
	+--------+--------+--------+--------+--------+--------+...
	|                  Checksum (8B, xxhash64)             |
	+------------------------------------------------------+

	- Magic (1 byte): Protocol magic number (0xFB for FlyWide)
	- Version (1 byte): Protocol version (currently 0x01)
	- MsgType (1 byte): Message type identifier
	- Flags (1 byte): Message flags (compression)
	- Length (4 bytes): Payload length in big-endian
	- Payload: Variable-length message data
	- Checksum (8 bytes): xxhash64 over the payload, big-endian

Message Types:
==============

	- 0x01: Mutation - row mutation fan-out
	- 0x02: MutationAck - replica write acknowledgement
	- 0x03: ReadResponse - full column family snapshot
	- 0x04: DigestResponse - MD5 digest of a snapshot
	- 0x05: Repair - one-way read-repair mutation
	- 0x06: Error - error response
*/
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/cespare/xxhash/v2"

	flyerrors "flywide/internal/errors"
)

// Protocol constants.
const (
	MagicByte       byte = 0xFB // FlyWide magic byte
	ProtocolVersion byte = 0x01

	// Maximum payload size (64 MB)
	MaxPayloadSize = 64 * 1024 * 1024

	// Header size in bytes
	HeaderSize = 8

	// Checksum trailer size in bytes
	ChecksumSize = 8
)

// MessageType represents the type of envelope.
type MessageType byte

// Message type constants.
const (
	MsgMutation       MessageType = 0x01
	MsgMutationAck    MessageType = 0x02
	MsgReadResponse   MessageType = 0x03
	MsgDigestResponse MessageType = 0x04
	MsgRepair         MessageType = 0x05
	MsgError          MessageType = 0x06
)

// MessageFlag represents envelope flags.
type MessageFlag byte

// Message flag constants.
const (
	FlagNone       MessageFlag = 0x00
	FlagCompressed MessageFlag = 0x01
)

// Header represents an envelope header.
type Header struct {
	Magic   byte
	Version byte
	Type    MessageType
	Flags   MessageFlag
	Length  uint32
}

// Envelope represents a complete framed message.
type Envelope struct {
	Header  Header
	Payload []byte
}

// WriteHeader writes an envelope header to the writer.
func WriteHeader(w io.Writer, h Header) error {
	buf := make([]byte, HeaderSize)
	buf[0] = h.Magic
	buf[1] = h.Version
	buf[2] = byte(h.Type)
	buf[3] = byte(h.Flags)
	binary.BigEndian.PutUint32(buf[4:], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads and validates an envelope header.
func ReadHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, err
	}

	h := Header{
		Magic:   buf[0],
		Version: buf[1],
		Type:    MessageType(buf[2]),
		Flags:   MessageFlag(buf[3]),
		Length:  binary.BigEndian.Uint32(buf[4:]),
	}

	if h.Magic != MagicByte {
		return Header{}, &flyerrors.FlyWideError{
			Code:     flyerrors.ErrCodeInvalidMagic,
			Category: flyerrors.CategorySerialization,
			Message:  "invalid envelope magic byte",
		}
	}
	if h.Version != ProtocolVersion {
		return Header{}, &flyerrors.FlyWideError{
			Code:     flyerrors.ErrCodeInvalidVersion,
			Category: flyerrors.CategorySerialization,
			Message:  "unsupported envelope version",
		}
	}
	if int32(h.Length) < 0 {
		return Header{}, flyerrors.CorruptFrame("negative payload length")
	}
	if h.Length > MaxPayloadSize {
		return Header{}, flyerrors.FrameTooLarge(int(h.Length), MaxPayloadSize)
	}

	return h, nil
}

// WriteEnvelope frames and writes a payload with its checksum.
func WriteEnvelope(w io.Writer, msgType MessageType, flags MessageFlag, payload []byte) error {
	h := Header{
		Magic:   MagicByte,
		Version: ProtocolVersion,
		Type:    msgType,
		Flags:   flags,
		Length:  uint32(len(payload)),
	}

	if err := WriteHeader(w, h); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}

	var sum [ChecksumSize]byte
	binary.BigEndian.PutUint64(sum[:], xxhash.Sum64(payload))
	_, err := w.Write(sum[:])
	return err
}

// ReadEnvelope reads a complete envelope and verifies its checksum.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	env := &Envelope{Header: h}
	if h.Length > 0 {
		env.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, env.Payload); err != nil {
			return nil, err
		}
	}

	var sum [ChecksumSize]byte
	if _, err := io.ReadFull(r, sum[:]); err != nil {
		return nil, err
	}
	want := binary.BigEndian.Uint64(sum[:])
	got := xxhash.Sum64(env.Payload)
	if want != got {
		return nil, flyerrors.ChecksumMismatch(want, got)
	}

	return env, nil
}
