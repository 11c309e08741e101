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
Package replication resolves multi-replica read responses.

A read fans out to N replicas; each answers with either a full column
family snapshot or an MD5 digest of one. The resolver:

 1. Cross-checks digests: every digest must match every full
    snapshot's digest, or the read surfaces a digest mismatch and the
    coordinator retries with full data.
 2. Sanitizes counters: a remote replica's view of the local node's
    own counts is never trusted, so the local tuple is stripped from
    every non-local counter snapshot before merging.
 3. Builds the superset by reconciling all snapshots pairwise.
 4. Diffs every replica's version against the superset and schedules
    a one-way repair mutation to each replica still missing
    information after its own tuple is removed from the diff.

Repairs are best-effort; correctness rests on the join semantics of
the reconcilers, not on delivery order.
*/
package replication

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"flywide/internal/cluster"
	"flywide/internal/errors"
	"flywide/internal/logging"
	"flywide/internal/storage"
)

// ReadResponse is one replica's answer to a read: either a full row
// snapshot or a digest over the family's serialized form.
type ReadResponse struct {
	From   cluster.Endpoint
	Row    *storage.Row
	Digest []byte
}

// IsDigest reports whether the response carries only a digest.
func (r ReadResponse) IsDigest() bool { return r.Row == nil }

// ResponseResolver merges replica responses for one keyspace and
// schedules read repair through the messaging layer.
type ResponseResolver struct {
	keyspace  string
	local     cluster.Endpoint
	messaging cluster.MessagingService
	log       *logging.Logger
}

// NewResponseResolver builds a resolver. messaging may be nil when
// the caller only wants the merged result (e.g. single-replica
// reads); repairs are then skipped.
func NewResponseResolver(keyspace string, local cluster.Endpoint, messaging cluster.MessagingService) *ResponseResolver {
	return &ResponseResolver{
		keyspace:  keyspace,
		local:     local,
		messaging: messaging,
		log:       logging.NewLogger("resolver").With("keyspace", keyspace),
	}
}

// Resolve merges the responses into the superset row and schedules
// repairs to stale replicas. Digest-only response sets resolve to an
// error: there is nothing to merge.
func (rv *ResponseResolver) Resolve(ctx context.Context, responses []ReadResponse) (*storage.Row, error) {
	if len(responses) == 0 {
		return nil, errors.NoResponses()
	}

	var data []ReadResponse
	var digests [][]byte
	for _, r := range responses {
		if r.IsDigest() {
			digests = append(digests, r.Digest)
		} else {
			data = append(data, r)
		}
	}
	if len(data) == 0 {
		return nil, errors.NoResponses().WithDetail("digest-only response set")
	}

	// digest cross-check before any merging work
	if len(digests) > 0 {
		for _, r := range data {
			d := r.Row.Family.Digest()
			for _, expected := range digests {
				if !bytes.Equal(d, expected) {
					return nil, errors.DigestMismatch(
						fmt.Sprintf("replica %s disagrees with a digest response", r.From))
				}
			}
		}
	}

	key := data[0].Row.Key
	counter := data[0].Row.Family.Type().IsCounter()

	// sanitize: strip the local node's tuple from every non-local
	// counter snapshot; the remote's view of our counts is stale by
	// definition
	versions := make([]*storage.ColumnFamily, len(data))
	for i, r := range data {
		cf := r.Row.Family
		if counter && !r.From.Equal(rv.local) {
			cf = cf.CloneMe()
			if err := cf.CleanContext(rv.local.ID()); err != nil {
				return nil, err
			}
		}
		versions[i] = cf
	}

	superset := versions[0].CloneMe()
	for _, v := range versions[1:] {
		if err := superset.AddAll(v); err != nil {
			return nil, err
		}
	}

	if rv.messaging != nil {
		if err := rv.scheduleRepairs(ctx, key, data, versions, superset, counter); err != nil {
			return nil, err
		}
	}

	return &storage.Row{Key: key, Family: superset}, nil
}

// scheduleRepairs sends each stale replica the part of the superset
// it is missing. A replica whose diff empties once its own tuple is
// removed already owns that information authoritatively and is
// skipped.
func (rv *ResponseResolver) scheduleRepairs(ctx context.Context, key []byte, data []ReadResponse, versions []*storage.ColumnFamily, superset *storage.ColumnFamily, counter bool) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, r := range data {
		diff, err := storage.Diff(versions[i], superset)
		if err != nil {
			return err
		}
		if diff == nil {
			continue
		}
		if counter {
			if err := diff.CleanContext(r.From.ID()); err != nil {
				return err
			}
			if diff.IsEmpty() {
				continue
			}
		}

		mutation := storage.NewRowMutation(rv.keyspace, key)
		if err := mutation.AddColumnFamily(diff); err != nil {
			return err
		}
		payload, err := mutation.Bytes()
		if err != nil {
			return err
		}

		to := r.From
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			rv.log.Info("read repair scheduled", "endpoint", to.String(), "key", string(key))
			return rv.messaging.SendRepair(to, payload)
		})
	}
	return g.Wait()
}
