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
Package cluster defines how the core addresses other replicas.

Membership, gossip and quorum coordination live outside the core;
this package holds the endpoint model they share with it, the
interfaces the read path calls out through, and the mDNS seed
discovery helper the bootstrap uses to find initial contact points.
*/
package cluster

import (
	"bytes"
	"fmt"
	"net"

	"flywide/internal/errors"
)

// Endpoint identifies one replica by its address bytes at the
// cluster's configured id width. The bytes double as the node id in
// counter contexts.
type Endpoint struct {
	id []byte
}

// NewEndpoint builds an endpoint from an IP at the given id width.
func NewEndpoint(ip net.IP, width int) (Endpoint, error) {
	var raw []byte
	switch width {
	case 4:
		raw = ip.To4()
	case 16:
		raw = ip.To16()
	}
	if raw == nil {
		return Endpoint{}, errors.BadNodeID(width, len(ip))
	}
	return Endpoint{id: append([]byte(nil), raw...)}, nil
}

// EndpointFromID builds an endpoint from raw id bytes.
func EndpointFromID(id []byte) Endpoint {
	return Endpoint{id: append([]byte(nil), id...)}
}

// ID returns the endpoint's node id bytes.
func (e Endpoint) ID() []byte { return e.id }

// Equal reports endpoint identity.
func (e Endpoint) Equal(o Endpoint) bool { return bytes.Equal(e.id, o.id) }

// IsZero reports whether the endpoint is unset.
func (e Endpoint) IsZero() bool { return len(e.id) == 0 }

// String renders the endpoint as an address.
func (e Endpoint) String() string {
	if len(e.id) == 4 || len(e.id) == 16 {
		return net.IP(e.id).String()
	}
	return fmt.Sprintf("%x", e.id)
}

// Membership is the view of the ring the core reads. The gossip
// implementation behind it lives outside the core.
type Membership interface {
	// LocalEndpoint returns this replica.
	LocalEndpoint() Endpoint

	// LiveReplicas returns the replicas currently holding the key,
	// local node included when applicable.
	LiveReplicas(keyspace string, key []byte) []Endpoint
}

// MessagingService carries one-way messages to other replicas. The
// transport implementation lives outside the core; read repair only
// needs fire-and-forget delivery of a serialized mutation.
type MessagingService interface {
	// SendRepair delivers a serialized repair mutation to the given
	// replica. Best-effort: a lost repair is retried by a later read.
	SendRepair(to Endpoint, mutation []byte) error
}
