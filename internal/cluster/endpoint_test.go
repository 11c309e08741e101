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

package cluster

import (
	"bytes"
	"net"
	"testing"
)

func TestNewEndpoint(t *testing.T) {
	ep, err := NewEndpoint(net.ParseIP("10.0.0.2"), 4)
	if err != nil {
		t.Fatalf("NewEndpoint failed: %v", err)
	}
	if !bytes.Equal(ep.ID(), []byte{10, 0, 0, 2}) {
		t.Errorf("ID = %v", ep.ID())
	}
	if ep.String() != "10.0.0.2" {
		t.Errorf("String = %s", ep.String())
	}
	if ep.IsZero() {
		t.Error("endpoint should not be zero")
	}
}

func TestNewEndpointV6(t *testing.T) {
	ep, err := NewEndpoint(net.ParseIP("fe80::1"), 16)
	if err != nil {
		t.Fatalf("NewEndpoint failed: %v", err)
	}
	if len(ep.ID()) != 16 {
		t.Errorf("ID width = %d, want 16", len(ep.ID()))
	}
}

func TestNewEndpointWidthMismatch(t *testing.T) {
	if _, err := NewEndpoint(net.ParseIP("fe80::1"), 4); err == nil {
		t.Error("v6 address must not fit a 4-byte id")
	}
}

func TestEndpointEqual(t *testing.T) {
	a, _ := NewEndpoint(net.ParseIP("10.0.0.2"), 4)
	b := EndpointFromID([]byte{10, 0, 0, 2})
	c, _ := NewEndpoint(net.ParseIP("10.0.0.3"), 4)

	if !a.Equal(b) {
		t.Error("same-id endpoints must be equal")
	}
	if a.Equal(c) {
		t.Error("different endpoints must not be equal")
	}
}
