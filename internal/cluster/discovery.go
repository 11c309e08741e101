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
	"time"

	"github.com/hashicorp/mdns"

	"flywide/internal/logging"
)

// DefaultMDNSService is the service name FlyWide nodes advertise.
const DefaultMDNSService = "_flywide._tcp"

// DiscoverSeeds queries mDNS for other nodes on the local network
// and returns their endpoints. Used at bootstrap when the seed list
// is empty; clusters spanning networks configure seeds explicitly.
func DiscoverSeeds(service string, width int, timeout time.Duration) ([]Endpoint, error) {
	if service == "" {
		service = DefaultMDNSService
	}
	log := logging.NewLogger("discovery")

	entries := make(chan *mdns.ServiceEntry, 16)
	done := make(chan []Endpoint, 1)
	go func() {
		var found []Endpoint
		for entry := range entries {
			ip := entry.AddrV4
			if ip == nil {
				ip = entry.AddrV6
			}
			if ip == nil {
				continue
			}
			ep, err := NewEndpoint(ip, width)
			if err != nil {
				log.Warn("discovered peer does not fit id width", "addr", ip.String(), "width", width)
				continue
			}
			log.Info("discovered peer", "addr", ep.String(), "host", entry.Host)
			found = append(found, ep)
		}
		done <- found
	}()

	params := mdns.DefaultParams(service)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = width == 4

	err := mdns.Query(params)
	close(entries)
	seeds := <-done
	if err != nil {
		return seeds, err
	}
	return seeds, nil
}
