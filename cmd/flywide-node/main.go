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
flywide-node - FlyWide storage node

Bootstraps one replica: loads configuration, pins the process-wide
node identity from the listen address, optionally discovers seed
nodes over mDNS, and brings up the keyspace stores. The serving
surfaces (client RPC, inter-replica transport) attach on top of the
engine this binary assembles.

Usage:
    flywide-node --config flywide.yaml
    flywide-node --config flywide.yaml --discover
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"flywide/internal/cluster"
	"flywide/internal/compression"
	"flywide/internal/config"
	"flywide/internal/logging"
	"flywide/internal/node"
	"flywide/internal/protocol"
	"flywide/internal/storage"
)

const version = "0.3.0"

func main() {
	configPath := flag.String("config", "flywide.yaml", "Path to the node configuration file")
	discover := flag.Bool("discover", false, "Discover seed nodes over mDNS when the seed list is empty")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flywide-node %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "flywide-node: %v\n", err)
		os.Exit(1)
	}

	logging.SetGlobalLevel(logging.ParseLevel(cfg.LogLevel))
	logging.SetJSONMode(cfg.LogJSON)
	log := logging.NewLogger("node")

	if err := node.Init(cfg.NodeIP(), cfg.IDWidth); err != nil {
		log.Error("identity initialization failed", "err", err.Error())
		os.Exit(1)
	}
	local := cluster.EndpointFromID(node.ID())
	log.Info("node identity pinned", "endpoint", local.String(), "id_width", cfg.IDWidth)

	seeds := cfg.Seeds
	if len(seeds) == 0 && *discover {
		found, err := cluster.DiscoverSeeds(cfg.MDNSService, cfg.IDWidth, 5*time.Second)
		if err != nil {
			log.Warn("seed discovery failed", "err", err.Error())
		}
		for _, ep := range found {
			if !ep.Equal(local) {
				seeds = append(seeds, ep.String())
			}
		}
	}
	log.Info("seed list resolved", "count", len(seeds))

	commitLog, err := newEnvelopeCommitLog(cfg)
	if err != nil {
		log.Error("commit log setup failed", "err", err.Error())
		os.Exit(1)
	}

	table := storage.NewTable("system", systemSchema(), node.ID(), cfg.IDWidth, commitLog)
	log.Info("keyspace online", "keyspace", table.Name())

	// the external serving surfaces attach here; a bare engine node
	// just reports readiness
	log.Info("flywide-node ready", "version", version)
}

// systemSchema is the built-in keyspace every node carries.
func systemSchema() []storage.FamilyDef {
	return []storage.FamilyDef{
		{Name: "LocationInfo", Type: storage.TypeStandard, Comparator: storage.BytesComparator{}},
		{Name: "HintsColumnFamily", Type: storage.TypeSuper, Comparator: storage.BytesComparator{},
			SubComparator: storage.BytesComparator{}},
		{Name: "NodeCounters", Type: storage.TypeIncrementCounter, Comparator: storage.BytesComparator{}},
	}
}

// envelopeCommitLog frames mutations as protocol envelopes, with
// payload compression per configuration, and appends them to a log
// sink. The durable sink is stderr-adjacent here: a real deployment
// swaps in the disk-backed commit log implementation.
type envelopeCommitLog struct {
	algo       compression.Algorithm
	minSize    int
	compressor *compression.Compressor
	out        *os.File
}

func newEnvelopeCommitLog(cfg *config.Config) (*envelopeCommitLog, error) {
	algo, err := compression.ParseAlgorithm(cfg.CommitLogCompression)
	if err != nil {
		return nil, err
	}
	ccfg := compression.DefaultConfig()
	ccfg.Algorithm = algo
	return &envelopeCommitLog{
		algo:       algo,
		minSize:    ccfg.MinSize,
		compressor: compression.NewCompressor(ccfg),
		out:        os.Stderr,
	}, nil
}

// Append implements storage.CommitLog.
func (c *envelopeCommitLog) Append(payload []byte) error {
	framed, err := c.compressor.Compress(payload)
	if err != nil {
		return err
	}
	flags := protocol.FlagNone
	if c.algo != compression.AlgorithmNone && len(payload) >= c.minSize {
		flags = protocol.FlagCompressed
	}
	return protocol.WriteEnvelope(c.out, protocol.MsgMutation, flags, framed)
}
