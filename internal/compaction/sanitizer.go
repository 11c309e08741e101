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
Package compaction holds the counter sanitizer for anti-entropy
rewrites.

When an SSTable range is rebuilt for shipment to a target replica,
the target's own per-node counts must not travel with it: the target
is authoritative for its contributions and a stale echo of them could
roll its counter back. The sanitizer strips the target's tuple from
every counter column and drops columns whose context empties.

The compaction scheduler, file formats and streaming all live outside
the core; this package only transforms rows handed through it.
*/
package compaction

import (
	"io"

	"flywide/internal/cluster"
	"flywide/internal/logging"
	"flywide/internal/storage"
)

// SanitizeFamily returns a copy of the family with the target's
// counts removed. Non-counter families pass through untouched. The
// second return is false when the family sanitized away entirely.
func SanitizeFamily(cf *storage.ColumnFamily, target cluster.Endpoint) (*storage.ColumnFamily, bool, error) {
	if !cf.Type().IsCounter() {
		return cf, true, nil
	}
	clean := cf.CloneMe()
	if err := clean.CleanContext(target.ID()); err != nil {
		return nil, false, err
	}
	if clean.IsEmpty() {
		return nil, false, nil
	}
	return clean, true, nil
}

// SanitizeRows streams rows from it to w, sanitizing each family for
// the target endpoint. Rows that sanitize away entirely are dropped.
// Returns the number of rows written.
func SanitizeRows(it storage.RowIterator, w storage.RowWriter, target cluster.Endpoint) (int, error) {
	log := logging.NewLogger("compaction").With("target", target.String())

	written := 0
	for {
		row, err := it.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}

		clean, keep, err := SanitizeFamily(row.Family, target)
		if err != nil {
			return written, err
		}
		if !keep {
			log.Debug("row sanitized away", "key", string(row.Key))
			continue
		}
		if err := w.Append(&storage.Row{Key: row.Key, Family: clean}); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}
