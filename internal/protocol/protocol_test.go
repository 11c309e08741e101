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

package protocol

import (
	"bytes"
	"testing"

	"flywide/internal/errors"
)

func TestWriteAndReadHeader(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{
			name: "Mutation envelope",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgMutation,
				Flags:   FlagNone,
				Length:  50,
			},
		},
		{
			name: "Compressed repair",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgRepair,
				Flags:   FlagCompressed,
				Length:  1000,
			},
		},
		{
			name: "Digest response",
			header: Header{
				Magic:   MagicByte,
				Version: ProtocolVersion,
				Type:    MsgDigestResponse,
				Flags:   FlagNone,
				Length:  16,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)

			if err := WriteHeader(buf, tt.header); err != nil {
				t.Fatalf("WriteHeader failed: %v", err)
			}

			readHeader, err := ReadHeader(buf)
			if err != nil {
				t.Fatalf("ReadHeader failed: %v", err)
			}

			if readHeader != tt.header {
				t.Errorf("header = %+v, want %+v", readHeader, tt.header)
			}
		})
	}
}

func TestWriteAndReadEnvelope(t *testing.T) {
	payload := []byte("serialized row mutation bytes")
	buf := new(bytes.Buffer)

	if err := WriteEnvelope(buf, MsgMutation, FlagNone, payload); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	env, err := ReadEnvelope(buf)
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}

	if env.Header.Type != MsgMutation {
		t.Errorf("Type = %#02x, want MsgMutation", env.Header.Type)
	}
	if !bytes.Equal(env.Payload, payload) {
		t.Errorf("Payload = %q, want %q", env.Payload, payload)
	}
}

func TestEmptyPayload(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := WriteEnvelope(buf, MsgMutationAck, FlagNone, nil); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	env, err := ReadEnvelope(buf)
	if err != nil {
		t.Fatalf("ReadEnvelope failed: %v", err)
	}
	if len(env.Payload) != 0 {
		t.Errorf("Payload length = %d, want 0", len(env.Payload))
	}
}

func TestInvalidMagicByte(t *testing.T) {
	frame := []byte{0x00, ProtocolVersion, byte(MsgMutation), 0x00, 0, 0, 0, 0}
	_, err := ReadHeader(bytes.NewReader(frame))
	if !errors.HasCode(err, errors.ErrCodeInvalidMagic) {
		t.Errorf("err = %v, want invalid magic", err)
	}
}

func TestInvalidVersion(t *testing.T) {
	frame := []byte{MagicByte, 0x7F, byte(MsgMutation), 0x00, 0, 0, 0, 0}
	_, err := ReadHeader(bytes.NewReader(frame))
	if !errors.HasCode(err, errors.ErrCodeInvalidVersion) {
		t.Errorf("err = %v, want invalid version", err)
	}
}

func TestPayloadTooLarge(t *testing.T) {
	frame := []byte{MagicByte, ProtocolVersion, byte(MsgMutation), 0x00, 0x07, 0xFF, 0xFF, 0xFF}
	_, err := ReadHeader(bytes.NewReader(frame))
	if !errors.HasCode(err, errors.ErrCodeFrameTooLarge) {
		t.Errorf("err = %v, want frame too large", err)
	}
}

func TestNegativePayloadLength(t *testing.T) {
	frame := []byte{MagicByte, ProtocolVersion, byte(MsgMutation), 0x00, 0xFF, 0xFF, 0xFF, 0xFF}
	_, err := ReadHeader(bytes.NewReader(frame))
	if !errors.HasCode(err, errors.ErrCodeCorruptFrame) {
		t.Errorf("err = %v, want corrupt frame", err)
	}
}

func TestChecksumMismatch(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := WriteEnvelope(buf, MsgMutation, FlagNone, []byte("payload")); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	// corrupt one payload byte
	frame := buf.Bytes()
	frame[HeaderSize] ^= 0xFF

	_, err := ReadEnvelope(bytes.NewReader(frame))
	if !errors.HasCode(err, errors.ErrCodeChecksumMismatch) {
		t.Errorf("err = %v, want checksum mismatch", err)
	}
}

func TestTruncatedEnvelope(t *testing.T) {
	buf := new(bytes.Buffer)
	if err := WriteEnvelope(buf, MsgMutation, FlagNone, []byte("payload")); err != nil {
		t.Fatalf("WriteEnvelope failed: %v", err)
	}

	frame := buf.Bytes()
	if _, err := ReadEnvelope(bytes.NewReader(frame[:len(frame)-4])); err == nil {
		t.Error("expected error for truncated envelope")
	}
}
